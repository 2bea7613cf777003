package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/facevault/facevault/internal/storage"
)

var dbPath string

var rootCmd = &cobra.Command{
	Use:   "facevault",
	Short: "A face-analysis store with similarity search",
	Long: `FaceVault persists face analyses, embeddings and verification results
in SQLite and searches them by cosine similarity. It runs either as a
command-line tool or as an MCP server over stdio.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the database file (default ~/.facevault/facevault.db)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// resolveDBPath picks the database location: --db flag, then environment,
// then the default under the home directory.
func resolveDBPath() (string, error) {
	if dbPath != "" {
		return dbPath, nil
	}
	if fromEnv := os.Getenv("FACEVAULT_DB_PATH"); fromEnv != "" {
		return fromEnv, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	dir := filepath.Join(home, ".facevault")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}
	return filepath.Join(dir, "facevault.db"), nil
}

// openStore opens the configured database
func openStore() (*storage.SQLiteStorage, error) {
	path, err := resolveDBPath()
	if err != nil {
		return nil, err
	}
	return storage.NewSQLiteStorage(path)
}
