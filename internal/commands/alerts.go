package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/screener-back/pkg/models"
)

var (
	alertUserID    int64
	alertChatID    int64
	alertSymbol    string
	alertMarket    string
	alertMetric    string
	alertOperator  string
	alertThreshold float64
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Evaluate and manage alert rules",
	Long: `Evaluate alert rules against the latest snapshots and manage rules.

Examples:
  screener-back alerts check                   # One evaluation pass (cron mode)
  screener-back alerts run                     # Evaluate every ALERTS_INTERVAL
  screener-back alerts create --symbol BTCUSDT --market futures \
      --metric change_15m --operator ">" --threshold 1.5 --chat-id 123456
  screener-back alerts list --user 1
  screener-back alerts toggle 7 off
  screener-back alerts delete 7`,
}

var alertsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one evaluation pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		application, _, _, err := startApp(ctx)
		if err != nil {
			return err
		}
		defer application.Close()

		evaluator, err := application.NewAlertEvaluator()
		if err != nil {
			return err
		}

		stats, err := evaluator.Evaluate(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Checked %d rules: %d fired (%d undelivered), %d skipped, %d failed\n",
			stats.Rules, stats.Fired, stats.NotifyFailed, stats.Skipped, stats.Failed)
		return nil
	},
}

var alertsRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Evaluate rules on a fixed interval until stopped",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		application, cfg, log, err := startApp(ctx)
		if err != nil {
			return err
		}
		defer application.Close()

		evaluator, err := application.NewAlertEvaluator()
		if err != nil {
			return err
		}

		log.WithField("interval", cfg.Alerts.Interval).Info("Alert evaluation started, press Ctrl+C to stop")
		return evaluator.RunEvery(ctx, cfg.Alerts.Interval)
	},
}

var alertsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an alert rule",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		application, _, _, err := startApp(ctx)
		if err != nil {
			return err
		}
		defer application.Close()

		in := models.NewAlertRule{
			Symbol:     alertSymbol,
			MarketType: alertMarket,
			Metric:     alertMetric,
			Operator:   alertOperator,
			Threshold:  alertThreshold,
		}
		if cmd.Flags().Changed("user") {
			in.UserID = &alertUserID
		}
		if cmd.Flags().Changed("chat-id") {
			in.ChatID = &alertChatID
		}

		rule, err := application.NewAlertRuleService().Create(ctx, in)
		if err != nil {
			return err
		}

		fmt.Printf("✅ Created rule %d: %s %s %s\n", rule.ID, rule.Symbol, rule.MarketType, rule.Condition())
		if rule.ChatID == nil {
			fmt.Println("⚠️  Rule has no Telegram chat id and will be skipped until one is set")
		}
		return nil
	},
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alert rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		application, _, _, err := startApp(ctx)
		if err != nil {
			return err
		}
		defer application.Close()

		var userID *int64
		if cmd.Flags().Changed("user") {
			userID = &alertUserID
		}

		rules, err := application.NewAlertRuleService().List(ctx, userID)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSYMBOL\tMARKET\tCONDITION\tCHAT\tACTIVE\tLAST TRIGGERED")
		for _, r := range rules {
			chat, last := "-", "-"
			if r.ChatID != nil {
				chat = strconv.FormatInt(*r.ChatID, 10)
			}
			if r.LastTriggeredAt != nil {
				last = r.LastTriggeredAt.UTC().Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%t\t%s\n",
				r.ID, r.Symbol, r.MarketType, r.Condition(), chat, r.Active, last)
		}
		w.Flush()
		fmt.Printf("\nTotal: %d rules\n", len(rules))
		return nil
	},
}

var alertsToggleCmd = &cobra.Command{
	Use:   "toggle [id] [on|off]",
	Short: "Enable or disable an alert rule",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid rule id %q", args[0])
		}

		var active bool
		switch strings.ToLower(args[1]) {
		case "on", "true", "enable":
			active = true
		case "off", "false", "disable":
			active = false
		default:
			return fmt.Errorf("expected on or off, got %q", args[1])
		}

		ctx, stop := signalContext()
		defer stop()

		application, _, _, err := startApp(ctx)
		if err != nil {
			return err
		}
		defer application.Close()

		if err := application.NewAlertRuleService().SetActive(ctx, id, active); err != nil {
			return err
		}
		fmt.Printf("✅ Rule %d active=%t\n", id, active)
		return nil
	},
}

var alertsDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete an alert rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid rule id %q", args[0])
		}

		ctx, stop := signalContext()
		defer stop()

		application, _, _, err := startApp(ctx)
		if err != nil {
			return err
		}
		defer application.Close()

		if err := application.NewAlertRuleService().Delete(ctx, id); err != nil {
			return err
		}
		fmt.Printf("✅ Rule %d deleted\n", id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(alertsCmd)

	alertsCmd.AddCommand(alertsCheckCmd)
	alertsCmd.AddCommand(alertsRunCmd)
	alertsCmd.AddCommand(alertsCreateCmd)
	alertsCmd.AddCommand(alertsListCmd)
	alertsCmd.AddCommand(alertsToggleCmd)
	alertsCmd.AddCommand(alertsDeleteCmd)

	alertsCreateCmd.Flags().StringVarP(&alertSymbol, "symbol", "s", "", "Ticker code, e.g. BTCUSDT")
	alertsCreateCmd.Flags().StringVarP(&alertMarket, "market", "m", string(models.MarketFutures), "Market segment (futures, spot)")
	alertsCreateCmd.Flags().StringVar(&alertMetric, "metric", "", "Metric name, e.g. change_15m")
	alertsCreateCmd.Flags().StringVar(&alertOperator, "operator", ">", "Comparison operator (>, <, >=, <=)")
	alertsCreateCmd.Flags().Float64Var(&alertThreshold, "threshold", 0, "Threshold value")
	alertsCreateCmd.Flags().Int64Var(&alertChatID, "chat-id", 0, "Telegram chat id (defaults to the user's profile)")
	alertsCreateCmd.Flags().Int64Var(&alertUserID, "user", 0, "Owning user id")
	_ = alertsCreateCmd.MarkFlagRequired("symbol")
	_ = alertsCreateCmd.MarkFlagRequired("metric")
	_ = alertsCreateCmd.MarkFlagRequired("threshold")

	alertsListCmd.Flags().Int64Var(&alertUserID, "user", 0, "Only rules of this user")
}
