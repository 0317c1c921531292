package commands

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/screener-back/pkg/models"
)

var (
	ingestMarket string
	ingestOnce   bool
)

// ingestCmd runs the ingestion loop for one market segment
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Poll the exchange and store metric snapshots",
	Long: `Poll the exchange's 24h tickers for one market segment, derive the
horizon metrics of every symbol and append a snapshot per symbol.

Run one process per market segment. Spot snapshots borrow open interest and
funding from the latest futures snapshot of the same ticker, so run the
futures ingester as well.

Examples:
  screener-back ingest --market futures
  screener-back ingest --market spot
  screener-back ingest --market futures --once`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVarP(&ingestMarket, "market", "m", string(models.MarketFutures), "Market segment (futures, spot)")
	ingestCmd.Flags().BoolVar(&ingestOnce, "once", false, "Run a single cycle and exit")
}

func runIngest(cmd *cobra.Command, args []string) error {
	market, err := models.ParseMarketType(ingestMarket)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	application, _, log, err := startApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	ingestor := application.NewIngestor(market)

	if ingestOnce {
		stats, err := ingestor.RunCycle(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d tickers, %d stored, %d failed, %d skipped in %s\n",
			market, stats.Tickers, stats.Stored, stats.Failed, stats.Skipped, stats.Duration)
		return nil
	}

	log.WithFields(logrus.Fields{"market": market}).Info("Ingestion started, press Ctrl+C to stop")
	return ingestor.Run(ctx)
}
