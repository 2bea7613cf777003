package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/facevault/facevault/internal/storage"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove stale analyses, duplicates and orphaned embeddings",
	RunE:  runCleanup,
}

var exportCmd = &cobra.Command{
	Use:   "export [output-file]",
	Short: "Export the database to JSON or SQL",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var vacuumCmd = &cobra.Command{
	Use:   "vacuum",
	Short: "Rebuild the database file to reclaim space",
	RunE:  runVacuum,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete ALL stored data",
	RunE:  runClear,
}

func init() {
	rootCmd.AddCommand(cleanupCmd, exportCmd, vacuumCmd, clearCmd)

	cleanupCmd.Flags().Bool("dry-run", false, "Report what would be removed without deleting")

	exportCmd.Flags().String("format", "json", "Export format: json or sql")
	exportCmd.Flags().String("scope", "all", "Entities to include: all, users, analyses, verifications")
	exportCmd.Flags().Bool("include-embeddings", false, "Include embedding vectors (large)")

	clearCmd.Flags().Bool("confirm", false, "Required; guards against accidental wipes")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	dryRun := mustGetBool(cmd, "dry-run")
	stats, err := store.CleanupOrphans(cmd.Context(), dryRun)
	if err != nil {
		return err
	}

	verb := "Removed"
	if dryRun {
		verb = "Would remove"
	}
	fmt.Printf("%s %d rows:\n", verb, stats.Removed())
	fmt.Printf("  analyses with missing images: %d\n", stats.MissingImageAnalyses)
	fmt.Printf("  duplicate analyses:           %d\n", stats.DuplicateAnalyses)
	fmt.Printf("  orphaned embeddings:          %d\n", stats.OrphanedEmbeddings)
	if stats.Vacuumed {
		fmt.Println("Database vacuumed")
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	stats, err := store.Export(cmd.Context(), args[0], storage.ExportOptions{
		Format:            storage.ExportFormat(mustGetString(cmd, "format")),
		Scope:             storage.ExportScope(mustGetString(cmd, "scope")),
		IncludeEmbeddings: mustGetBool(cmd, "include-embeddings"),
	})
	if err != nil {
		return err
	}

	fmt.Printf("Exported %d users, %d analyses, %d embeddings, %d verifications to %s (%d bytes)\n",
		stats.Users, stats.Analyses, stats.Embeddings, stats.Verifications, stats.Path, stats.Bytes)
	return nil
}

func runVacuum(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Vacuum(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("Database vacuumed")
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	err = store.ClearAll(cmd.Context(), mustGetBool(cmd, "confirm"))
	if errors.Is(err, storage.ErrConfirmationRequired) {
		return errors.New("refusing to clear without --confirm")
	}
	if err != nil {
		return err
	}
	fmt.Println("All data cleared")
	return nil
}
