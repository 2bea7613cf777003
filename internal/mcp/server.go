package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"

	"github.com/facevault/facevault/internal/extractor"
	"github.com/facevault/facevault/internal/searcher"
	"github.com/facevault/facevault/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "facevault-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
	// DefaultDBPath is the default location for the database
	DefaultDBPath = "~/.facevault"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp       *server.MCPServer
	storage   storage.Storage
	extractor extractor.Extractor
	searcher  *searcher.Searcher
}

// NewServer creates a new MCP server instance
func NewServer(dbPath string) (*Server, error) {
	// Expand home directory if needed
	if dbPath == "" || dbPath == DefaultDBPath {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".facevault")
	}

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	dbFile := filepath.Join(dbPath, "facevault.db")

	store, err := storage.NewSQLiteStorage(dbFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	ext, err := extractor.NewFromEnv()
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize extractor: %w", err)
	}

	srch, err := searcher.New(store)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize searcher: %w", err)
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
	)

	s := &Server{
		mcp:       mcpServer,
		storage:   store,
		extractor: ext,
		searcher:  srch,
	}
	s.registerTools()
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() {
		_ = s.extractor.Close()
		_ = s.storage.Close()
	}()
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(saveAnalysisTool(), s.handleSaveAnalysis)
	s.mcp.AddTool(searchSimilarFacesTool(), s.handleSearchSimilarFaces)
	s.mcp.AddTool(getStatsTool(), s.handleGetStats)
	s.mcp.AddTool(batchImportTool(), s.handleBatchImport)
	s.mcp.AddTool(cleanupDatabaseTool(), s.handleCleanupDatabase)
	s.mcp.AddTool(exportDatabaseTool(), s.handleExportDatabase)
	s.mcp.AddTool(clearDatabaseTool(), s.handleClearDatabase)
}
