package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/facevault/facevault/internal/extractor"
	"github.com/facevault/facevault/internal/storage"
)

var importCmd = &cobra.Command{
	Use:   "import [directory]",
	Short: "Batch import images from a directory",
	Long: `Walk a directory for images, extract a face embedding for each and
store everything as batch_import analyses. Images already in the
database are skipped, so re-running an import is safe.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().String("user", "", "Attach every imported image to this user name")
	importCmd.Flags().String("email", "", "Email for the user (merges with an existing user)")
	importCmd.Flags().Bool("recursive", true, "Descend into subdirectories")
}

// imageExtensions are the file types the importer picks up
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".bmp":  true,
}

func runImport(cmd *cobra.Command, args []string) error {
	dir := args[0]
	userName := mustGetString(cmd, "user")
	userEmail := mustGetString(cmd, "email")
	recursive := mustGetBool(cmd, "recursive")

	images, err := collectImages(dir, recursive)
	if err != nil {
		return err
	}
	if len(images) == 0 {
		fmt.Println("No images found")
		return nil
	}
	fmt.Printf("Found %d images\n", len(images))

	ext, err := extractor.NewFromEnv()
	if err != nil {
		return err
	}
	defer func() { _ = ext.Close() }()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	bar := progressbar.NewOptions(len(images),
		progressbar.OptionSetDescription("Extracting embeddings"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	ctx := cmd.Context()
	records := make([]storage.ImportRecord, 0, len(images))
	noFace := 0
	for _, img := range images {
		record := storage.ImportRecord{
			UserName:  userName,
			ImagePath: img,
		}
		if userEmail != "" {
			record.UserEmail = &userEmail
		}

		emb, err := ext.ExtractEmbedding(ctx, extractor.ExtractRequest{ImagePath: img})
		switch {
		case errors.Is(err, extractor.ErrNoFace):
			noFace++
		case err != nil:
			return fmt.Errorf("extraction failed for %s: %w", img, err)
		default:
			record.Vector = emb.Vector
			record.FaceLocation = emb.FaceLocation
			record.ModelUsed = emb.Model
			record.DetectorUsed = emb.Detector
		}
		records = append(records, record)
		_ = bar.Add(1)
	}
	fmt.Println()

	stats, err := store.BatchImport(ctx, records)
	if err != nil {
		return err
	}

	fmt.Printf("Imported: %d, skipped: %d, errors: %d", stats.Imported, stats.Skipped, stats.Errors)
	if noFace > 0 {
		fmt.Printf(" (no face found in %d images)", noFace)
	}
	fmt.Println()
	for _, msg := range stats.ErrorMessages {
		fmt.Printf("  %s\n", msg)
	}
	return nil
}

// collectImages lists importable image files under dir
func collectImages(dir string, recursive bool) ([]string, error) {
	images := make([]string, 0)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if imageExtensions[strings.ToLower(filepath.Ext(path))] {
			images = append(images, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return images, nil
}
