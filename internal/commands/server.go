package commands

import (
	"github.com/spf13/cobra"
)

var (
	serverPort int
	serverHost string
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the read API server",
	Long: `Start the HTTP read API.

Routes:
• GET /api/v1/health
• GET /api/v1/snapshots/latest
• GET /api/v1/symbols
• GET /api/v1/symbols/{symbol}/latest
• GET /api/v1/symbols/{symbol}/snapshots
• GET /api/v1/symbols/{symbol}/series
• GET /api/v1/metrics

Examples:
  screener-back server                    # Start with SERVER_HOST and SERVER_PORT
  screener-back server --port 9090        # Start on custom port
  screener-back server --host 127.0.0.1   # Bind to loopback only`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "Server port (overrides SERVER_PORT)")
	serverCmd.Flags().StringVarP(&serverHost, "host", "H", "", "Server host (overrides SERVER_HOST)")
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	application, cfg, log, err := startApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}

	log.Info("🚀 Starting screener read API")
	if err := application.RunServer(ctx); err != nil {
		return err
	}
	log.Info("✅ Server shutdown complete")
	return nil
}
