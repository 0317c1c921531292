package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/screener-back/pkg/models"
)

var symbolsCmd = &cobra.Command{
	Use:   "symbols",
	Short: "Inspect tracked symbols",
}

var listSymbolsCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked symbols",
	Long:  "List the symbols the ingesters have registered",
	RunE: func(cmd *cobra.Command, args []string) error {
		marketFlag, _ := cmd.Flags().GetString("market")
		limit, _ := cmd.Flags().GetInt("limit")

		var market models.MarketType
		if marketFlag != "" {
			m, err := models.ParseMarketType(marketFlag)
			if err != nil {
				return err
			}
			market = m
		}

		ctx, stop := signalContext()
		defer stop()

		application, _, _, err := startApp(ctx)
		if err != nil {
			return err
		}
		defer application.Close()

		symbols, err := application.MySQL().ListSymbols(ctx, market)
		if err != nil {
			return err
		}

		fmt.Printf("%-8s %-15s %-20s %-8s\n", "ID", "Symbol", "Name", "Market")
		fmt.Println(strings.Repeat("-", 55))

		count := 0
		for _, s := range symbols {
			if limit > 0 && count >= limit {
				break
			}
			fmt.Printf("%-8d %-15s %-20s %-8s\n", s.ID, s.Symbol, s.Name, s.MarketType)
			count++
		}

		fmt.Printf("\nTotal: %d symbols", count)
		if count < len(symbols) {
			fmt.Printf(" (of %d)", len(symbols))
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(symbolsCmd)
	symbolsCmd.AddCommand(listSymbolsCmd)

	listSymbolsCmd.Flags().StringP("market", "m", "", "Filter by market segment (futures, spot)")
	listSymbolsCmd.Flags().IntP("limit", "l", 0, "Limit number of results")
}
