package cli

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/facevault/facevault/internal/mcp"
	"github.com/facevault/facevault/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio",
	Long: `Start FaceVault as an MCP server. Tools for saving analyses, similarity
search and database maintenance are exposed over stdio.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Log to stderr; stdout is reserved for the MCP protocol
	log.SetOutput(os.Stderr)
	log.Printf("FaceVault MCP server starting (driver: %s, mode: %s)",
		storage.DriverName, storage.BuildMode)

	path, err := resolveDBPath()
	if err != nil {
		return err
	}

	server, err := mcp.NewServer(filepath.Dir(path))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		log.Println("MCP server ready, listening on stdio...")
		errChan <- server.Serve(ctx)
	}()

	select {
	case sig := <-sigChan:
		log.Printf("Received signal %v, shutting down...", sig)
		cancel()
		return nil
	case err := <-errChan:
		return err
	}
}
