package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/facevault/facevault/internal/extractor"
	"github.com/facevault/facevault/internal/searcher"
)

var searchCmd = &cobra.Command{
	Use:   "search [image]",
	Short: "Find stored faces similar to an image",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().Float64("threshold", searcher.DefaultThreshold, "Minimum cosine similarity (0.0-1.0)")
	searchCmd.Flags().Int("limit", searcher.DefaultLimit, "Maximum number of matches")
}

func runSearch(cmd *cobra.Command, args []string) error {
	imagePath := args[0]

	ext, err := extractor.NewFromEnv()
	if err != nil {
		return err
	}
	defer func() { _ = ext.Close() }()

	emb, err := ext.ExtractEmbedding(cmd.Context(), extractor.ExtractRequest{ImagePath: imagePath})
	if errors.Is(err, extractor.ErrNoFace) {
		return fmt.Errorf("no face detected in %s", imagePath)
	}
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	srch, err := searcher.New(store)
	if err != nil {
		return err
	}

	threshold := mustGetFloat64(cmd, "threshold")
	resp, err := srch.Search(cmd.Context(), searcher.SearchRequest{
		Vector:    emb.Vector,
		Threshold: &threshold,
		Limit:     mustGetInt(cmd, "limit"),
	})
	if err != nil {
		return err
	}

	if len(resp.Matches) == 0 {
		fmt.Printf("No matches (%d embeddings scanned)\n", resp.RowsScanned)
		return nil
	}

	fmt.Printf("%d matches (%d embeddings scanned in %s):\n",
		len(resp.Matches), resp.RowsScanned, resp.Duration.Round(0))
	for _, m := range resp.Matches {
		fmt.Printf("  %2d. %.4f  %-20s %s\n", m.Rank, m.Similarity, m.UserName, m.ImagePath)
	}
	if resp.SkippedRows > 0 {
		fmt.Printf("Warning: skipped %d rows with malformed vectors\n", resp.SkippedRows)
	}
	return nil
}
