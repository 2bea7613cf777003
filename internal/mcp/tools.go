package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/facevault/facevault/internal/extractor"
	"github.com/facevault/facevault/internal/searcher"
	"github.com/facevault/facevault/internal/storage"
	"github.com/facevault/facevault/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams        = -32602 // Invalid method parameters
	ErrorCodeInternalError        = -32603 // Internal JSON-RPC error
	ErrorCodeNotFound             = -32001 // Requested entity does not exist
	ErrorCodeNoFace               = -32002 // No face detected in the image
	ErrorCodeConfirmationRequired = -32003 // Destructive operation not confirmed
)

// handleSaveAnalysis handles the save_analysis tool invocation
func (s *Server) handleSaveAnalysis(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	imagePath, ok := args["image_path"].(string)
	if !ok || imagePath == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "image_path parameter is required", map[string]interface{}{
			"param":  "image_path",
			"reason": "missing or empty",
		})
	}

	analysisType := storage.AnalysisType(getStringDefault(args, "analysis_type", "analyze"))
	switch analysisType {
	case storage.AnalysisTypeAnalyze, storage.AnalysisTypeVerify, storage.AnalysisTypeBatchImport:
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid analysis_type", map[string]interface{}{
			"param": "analysis_type",
			"value": string(analysisType),
		})
	}

	analysis := &storage.Analysis{
		ImagePath:    imagePath,
		AnalysisType: analysisType,
		ModelUsed:    getStringDefault(args, "model", ""),
	}
	if resultData, ok := args["result_data"].(map[string]interface{}); ok {
		analysis.ResultData = resultData
	}
	if confidence, ok := args["confidence"].(float64); ok {
		analysis.ConfidenceScore = &confidence
	}

	userName, _ := args["user_name"].(string)
	if userName != "" {
		var email *string
		if raw, ok := args["user_email"].(string); ok && raw != "" {
			email = &raw
		}
		userID, err := s.storage.AddUser(ctx, userName, email)
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to save user", map[string]interface{}{
				"error": err.Error(),
			})
		}
		analysis.UserID = &userID
	}

	analysisID, err := s.storage.SaveAnalysis(ctx, analysis)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to save analysis", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"analysis_id":     analysisID,
		"image_path":      imagePath,
		"analysis_type":   string(analysisType),
		"embedding_saved": false,
	}
	if analysis.UserID != nil {
		response["user_id"] = *analysis.UserID
	}

	if getBoolDefault(args, "extract_embedding", true) {
		emb, err := s.extractor.ExtractEmbedding(ctx, extractor.ExtractRequest{
			ImagePath: imagePath,
			Model:     analysis.ModelUsed,
		})
		switch {
		case errors.Is(err, extractor.ErrNoFace):
			response["embedding_note"] = "no face detected, analysis saved without embedding"
		case err != nil:
			return nil, newMCPError(ErrorCodeInternalError, "embedding extraction failed", map[string]interface{}{
				"error": err.Error(),
			})
		default:
			if _, err := s.storage.SaveEmbedding(ctx, analysisID, emb.Vector, emb.FaceLocation); err != nil {
				return nil, newMCPError(ErrorCodeInternalError, "failed to save embedding", map[string]interface{}{
					"error": err.Error(),
				})
			}
			response["embedding_saved"] = true
			response["embedding_dimension"] = emb.Dimension
			s.searcher.InvalidateCache()
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchSimilarFaces handles the search_similar_faces tool invocation
func (s *Server) handleSearchSimilarFaces(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	vector, err := s.queryVector(ctx, args)
	if err != nil {
		return nil, err
	}

	limit := getIntDefault(args, "limit", searcher.DefaultLimit)
	if limit < 1 || limit > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	req := searcher.SearchRequest{
		Vector:   vector,
		Limit:    limit,
		UseCache: getBoolDefault(args, "use_cache", false),
	}
	// An explicit threshold is passed through even at 0; absent means
	// the searcher default
	if raw, ok := args["threshold"].(float64); ok {
		req.Threshold = &raw
	}
	if raw, ok := args["user_id"].(float64); ok {
		userID := int64(raw)
		req.UserID = &userID
	}
	if raw, ok := args["min_confidence"].(float64); ok {
		req.MinConfidence = &raw
	}

	resp, err := s.searcher.Search(ctx, req)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"matches":      resp.Matches,
		"match_count":  len(resp.Matches),
		"rows_scanned": resp.RowsScanned,
		"duration_ms":  resp.Duration.Milliseconds(),
		"cache_hit":    resp.CacheHit,
	}
	if resp.SkippedRows > 0 {
		response["skipped_rows"] = resp.SkippedRows
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// queryVector resolves the search vector from an explicit array or by
// extracting the embedding of the query image
func (s *Server) queryVector(ctx context.Context, args map[string]interface{}) ([]float32, error) {
	if raw, ok := args["vector"]; ok {
		vector, err := types.ToVector(raw)
		if err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid vector", map[string]interface{}{
				"param":  "vector",
				"reason": err.Error(),
			})
		}
		return vector, nil
	}

	imagePath, _ := args["image_path"].(string)
	if imagePath == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "either image_path or vector is required", nil)
	}

	emb, err := s.extractor.ExtractEmbedding(ctx, extractor.ExtractRequest{ImagePath: imagePath})
	if errors.Is(err, extractor.ErrNoFace) {
		return nil, newMCPError(ErrorCodeNoFace, "no face detected in query image", map[string]interface{}{
			"image_path": imagePath,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "embedding extraction failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return emb.Vector, nil
}

// handleGetStats handles the get_stats tool invocation
func (s *Server) handleGetStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	detailed := getBoolDefault(args, "detailed", false)

	stats, err := s.storage.Stats(ctx, detailed)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get statistics", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"total_users":           stats.TotalUsers,
		"total_analyses":        stats.TotalAnalyses,
		"total_embeddings":      stats.TotalEmbeddings,
		"total_verifications":   stats.TotalVerifications,
		"recent_analyses_7days": stats.RecentAnalyses7Days,
		"database_size_mb":      fmt.Sprintf("%.2f", stats.DatabaseSizeMB),
	}
	if detailed {
		response["analyses_per_month"] = stats.AnalysesPerMonth
		response["model_usage"] = stats.ModelUsage
		if stats.ConfidenceBuckets != nil {
			response["confidence_distribution"] = map[string]interface{}{
				"high":   stats.ConfidenceBuckets.High,
				"medium": stats.ConfidenceBuckets.Medium,
				"low":    stats.ConfidenceBuckets.Low,
			}
		}
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// importExtensions are the file types batch_import picks up
var importExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".bmp":  true,
}

// handleBatchImport handles the batch_import tool invocation
func (s *Server) handleBatchImport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	dir, ok := args["directory"].(string)
	if !ok || dir == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "directory parameter is required", map[string]interface{}{
			"param":  "directory",
			"reason": "missing or empty",
		})
	}
	userName := getStringDefault(args, "user_name", "")
	recursive := getBoolDefault(args, "recursive", true)

	images, err := listImportImages(dir, recursive)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to scan directory", map[string]interface{}{
			"error": err.Error(),
		})
	}

	records := make([]storage.ImportRecord, 0, len(images))
	noFace := 0
	for _, img := range images {
		record := storage.ImportRecord{
			UserName:  userName,
			ImagePath: img,
		}
		if raw, ok := args["user_email"].(string); ok && raw != "" {
			email := raw
			record.UserEmail = &email
		}

		emb, err := s.extractor.ExtractEmbedding(ctx, extractor.ExtractRequest{ImagePath: img})
		switch {
		case errors.Is(err, extractor.ErrNoFace):
			noFace++
		case err != nil:
			return nil, newMCPError(ErrorCodeInternalError, "embedding extraction failed", map[string]interface{}{
				"image_path": img,
				"error":      err.Error(),
			})
		default:
			record.Vector = emb.Vector
			record.FaceLocation = emb.FaceLocation
			record.ModelUsed = emb.Model
			record.DetectorUsed = emb.Detector
		}
		records = append(records, record)
	}

	stats, err := s.storage.BatchImport(ctx, records)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "batch import failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if stats.Imported > 0 {
		s.searcher.InvalidateCache()
	}

	response := map[string]interface{}{
		"directory":      dir,
		"images_found":   len(images),
		"imported":       stats.Imported,
		"skipped":        stats.Skipped,
		"errors":         stats.Errors,
		"no_face_images": noFace,
	}
	if len(stats.ErrorMessages) > 0 {
		response["error_messages"] = stats.ErrorMessages
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// listImportImages lists importable image files under dir
func listImportImages(dir string, recursive bool) ([]string, error) {
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
		if importExtensions[strings.ToLower(filepath.Ext(path))] {
			images = append(images, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return images, nil
}

// handleCleanupDatabase handles the cleanup_database tool invocation
func (s *Server) handleCleanupDatabase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	dryRun := getBoolDefault(args, "dry_run", true)

	stats, err := s.storage.CleanupOrphans(ctx, dryRun)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "cleanup failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if !dryRun && stats.Removed() > 0 {
		s.searcher.InvalidateCache()
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"dry_run":                dryRun,
		"missing_image_analyses": stats.MissingImageAnalyses,
		"duplicate_analyses":     stats.DuplicateAnalyses,
		"orphaned_embeddings":    stats.OrphanedEmbeddings,
		"total_removed":          stats.Removed(),
		"vacuumed":               stats.Vacuumed,
	})), nil
}

// handleExportDatabase handles the export_database tool invocation
func (s *Server) handleExportDatabase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	outputPath, ok := args["output_path"].(string)
	if !ok || outputPath == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "output_path parameter is required", map[string]interface{}{
			"param":  "output_path",
			"reason": "missing or empty",
		})
	}

	scope := storage.ExportScope(getStringDefault(args, "scope", "all"))
	switch scope {
	case storage.ExportScopeAll, storage.ExportScopeUsers,
		storage.ExportScopeAnalyses, storage.ExportScopeVerifications:
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid scope", map[string]interface{}{
			"param": "scope",
			"value": string(scope),
		})
	}

	opts := storage.ExportOptions{
		Scope:             scope,
		Format:            storage.ExportFormat(getStringDefault(args, "format", "json")),
		IncludeEmbeddings: getBoolDefault(args, "include_embeddings", false),
	}

	stats, err := s.storage.Export(ctx, outputPath, opts)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "export failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"path":          stats.Path,
		"bytes":         stats.Bytes,
		"users":         stats.Users,
		"analyses":      stats.Analyses,
		"embeddings":    stats.Embeddings,
		"verifications": stats.Verifications,
	})), nil
}

// handleClearDatabase handles the clear_database tool invocation
func (s *Server) handleClearDatabase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	confirm := getBoolDefault(args, "confirm", false)

	err := s.storage.ClearAll(ctx, confirm)
	if errors.Is(err, storage.ErrConfirmationRequired) {
		return nil, newMCPError(ErrorCodeConfirmationRequired,
			"clear_database requires confirm: true", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "clear failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	s.searcher.InvalidateCache()

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"cleared": true,
	})), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok && val != "" {
		return val
	}
	return defaultValue
}
