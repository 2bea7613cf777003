package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().Bool("detailed", false, "Include per-month, per-model and confidence histograms")
}

func runStats(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	detailed := mustGetBool(cmd, "detailed")
	stats, err := store.Stats(cmd.Context(), detailed)
	if err != nil {
		return err
	}

	fmt.Printf("Users:               %d\n", stats.TotalUsers)
	fmt.Printf("Analyses:            %d\n", stats.TotalAnalyses)
	fmt.Printf("Embeddings:          %d\n", stats.TotalEmbeddings)
	fmt.Printf("Verifications:       %d\n", stats.TotalVerifications)
	fmt.Printf("Analyses (7 days):   %d\n", stats.RecentAnalyses7Days)
	fmt.Printf("Database size:       %.2f MB\n", stats.DatabaseSizeMB)

	if !detailed {
		return nil
	}

	if len(stats.AnalysesPerMonth) > 0 {
		fmt.Println("\nAnalyses per month:")
		months := make([]string, 0, len(stats.AnalysesPerMonth))
		for month := range stats.AnalysesPerMonth {
			months = append(months, month)
		}
		sort.Strings(months)
		for _, month := range months {
			fmt.Printf("  %s: %d\n", month, stats.AnalysesPerMonth[month])
		}
	}

	if len(stats.ModelUsage) > 0 {
		fmt.Println("\nModel usage:")
		models := make([]string, 0, len(stats.ModelUsage))
		for model := range stats.ModelUsage {
			models = append(models, model)
		}
		sort.Strings(models)
		for _, model := range models {
			fmt.Printf("  %s: %d\n", model, stats.ModelUsage[model])
		}
	}

	if stats.ConfidenceBuckets != nil {
		fmt.Println("\nConfidence distribution:")
		fmt.Printf("  high   (>= 0.9):    %d\n", stats.ConfidenceBuckets.High)
		fmt.Printf("  medium (0.7-0.9):   %d\n", stats.ConfidenceBuckets.Medium)
		fmt.Printf("  low    (< 0.7):     %d\n", stats.ConfidenceBuckets.Low)
	}
	return nil
}
