package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facevault/facevault/internal/extractor"
	"github.com/facevault/facevault/internal/searcher"
	"github.com/facevault/facevault/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	srch, err := searcher.New(store)
	require.NoError(t, err)

	return &Server{
		storage:   store,
		extractor: extractor.NewSidecarExtractor("", "", 3),
		searcher:  srch,
	}
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultJSON(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &payload))
	return payload
}

// writeFaceFixture creates an image with a sidecar embedding
func writeFaceFixture(t *testing.T, dir, name string, vector []float32) string {
	t.Helper()
	img := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(img, []byte(name), 0o644))

	sidecar, err := json.Marshal(map[string]interface{}{"vector": vector})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(img+".embedding.json", sidecar, 0o644))
	return img
}

func TestHandleSaveAnalysis(t *testing.T) {
	s := newTestServer(t)
	dir := t.TempDir()
	img := writeFaceFixture(t, dir, "alice.jpg", []float32{1, 0, 0})

	result, err := s.handleSaveAnalysis(context.Background(), callRequest(map[string]interface{}{
		"image_path": img,
		"user_name":  "Alice",
		"user_email": "alice@example.com",
		"result_data": map[string]interface{}{
			"emotion": "neutral",
		},
		"confidence": 0.92,
	}))
	require.NoError(t, err)

	payload := resultJSON(t, result)
	assert.Equal(t, true, payload["embedding_saved"])
	assert.NotNil(t, payload["analysis_id"])
	assert.NotNil(t, payload["user_id"])
}

func TestHandleSaveAnalysisWithoutFace(t *testing.T) {
	s := newTestServer(t)
	dir := t.TempDir()
	img := filepath.Join(dir, "nosidecar.jpg")
	require.NoError(t, os.WriteFile(img, []byte("img"), 0o644))

	result, err := s.handleSaveAnalysis(context.Background(), callRequest(map[string]interface{}{
		"image_path": img,
	}))
	require.NoError(t, err)

	payload := resultJSON(t, result)
	assert.Equal(t, false, payload["embedding_saved"])
	assert.NotEmpty(t, payload["embedding_note"])
}

func TestHandleSaveAnalysisValidation(t *testing.T) {
	s := newTestServer(t)

	_, err := s.handleSaveAnalysis(context.Background(), callRequest(map[string]interface{}{}))
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)

	_, err = s.handleSaveAnalysis(context.Background(), callRequest(map[string]interface{}{
		"image_path":    "/p/x.jpg",
		"analysis_type": "guess",
	}))
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
}

func TestHandleSearchSimilarFaces(t *testing.T) {
	s := newTestServer(t)
	dir := t.TempDir()

	// Store two faces, then search with the first one's vector
	for i, vec := range [][]float32{{1, 0, 0}, {0, 1, 0}} {
		img := writeFaceFixture(t, dir, string(rune('a'+i))+".jpg", vec)
		_, err := s.handleSaveAnalysis(context.Background(), callRequest(map[string]interface{}{
			"image_path": img,
		}))
		require.NoError(t, err)
	}

	result, err := s.handleSearchSimilarFaces(context.Background(), callRequest(map[string]interface{}{
		"vector":    []interface{}{1.0, 0.0, 0.0},
		"threshold": 0.8,
	}))
	require.NoError(t, err)

	payload := resultJSON(t, result)
	assert.Equal(t, float64(1), payload["match_count"])
	assert.Equal(t, float64(2), payload["rows_scanned"])

	// An explicit zero threshold matches even orthogonal faces
	result, err = s.handleSearchSimilarFaces(context.Background(), callRequest(map[string]interface{}{
		"vector":    []interface{}{1.0, 0.0, 0.0},
		"threshold": 0.0,
	}))
	require.NoError(t, err)
	payload = resultJSON(t, result)
	assert.Equal(t, float64(2), payload["match_count"])
}

func TestHandleSearchSimilarFacesByImage(t *testing.T) {
	s := newTestServer(t)
	dir := t.TempDir()

	stored := writeFaceFixture(t, dir, "stored.jpg", []float32{1, 0, 0})
	_, err := s.handleSaveAnalysis(context.Background(), callRequest(map[string]interface{}{
		"image_path": stored,
	}))
	require.NoError(t, err)

	query := writeFaceFixture(t, dir, "query.jpg", []float32{0.95, 0.05, 0})
	result, err := s.handleSearchSimilarFaces(context.Background(), callRequest(map[string]interface{}{
		"image_path": query,
	}))
	require.NoError(t, err)

	payload := resultJSON(t, result)
	assert.Equal(t, float64(1), payload["match_count"])
}

func TestHandleSearchRequiresQuery(t *testing.T) {
	s := newTestServer(t)

	_, err := s.handleSearchSimilarFaces(context.Background(), callRequest(map[string]interface{}{}))
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
}

func TestHandleGetStats(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleGetStats(context.Background(), callRequest(map[string]interface{}{
		"detailed": true,
	}))
	require.NoError(t, err)

	payload := resultJSON(t, result)
	assert.Equal(t, float64(0), payload["total_users"])
	assert.Contains(t, payload, "confidence_distribution")
}

func TestHandleBatchImport(t *testing.T) {
	s := newTestServer(t)
	dir := t.TempDir()

	writeFaceFixture(t, dir, "alice.jpg", []float32{1, 0, 0})
	writeFaceFixture(t, dir, "bob.png", []float32{0, 1, 0})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "noface.jpg"), []byte("img"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o644))

	result, err := s.handleBatchImport(context.Background(), callRequest(map[string]interface{}{
		"directory": dir,
		"user_name": "Team",
	}))
	require.NoError(t, err)

	payload := resultJSON(t, result)
	assert.Equal(t, float64(3), payload["images_found"])
	assert.Equal(t, float64(3), payload["imported"])
	assert.Equal(t, float64(0), payload["skipped"])
	assert.Equal(t, float64(1), payload["no_face_images"])

	// Re-running the same import skips everything already stored.
	result, err = s.handleBatchImport(context.Background(), callRequest(map[string]interface{}{
		"directory": dir,
	}))
	require.NoError(t, err)

	payload = resultJSON(t, result)
	assert.Equal(t, float64(0), payload["imported"])
	assert.Equal(t, float64(3), payload["skipped"])
}

func TestHandleBatchImportValidation(t *testing.T) {
	s := newTestServer(t)

	_, err := s.handleBatchImport(context.Background(), callRequest(map[string]interface{}{}))
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
}

func TestHandleCleanupDatabaseDryRunDefault(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleCleanupDatabase(context.Background(), callRequest(map[string]interface{}{}))
	require.NoError(t, err)

	payload := resultJSON(t, result)
	assert.Equal(t, true, payload["dry_run"])
}

func TestHandleClearDatabaseRequiresConfirmation(t *testing.T) {
	s := newTestServer(t)

	_, err := s.handleClearDatabase(context.Background(), callRequest(map[string]interface{}{}))
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeConfirmationRequired, mcpErr.Code)

	result, err := s.handleClearDatabase(context.Background(), callRequest(map[string]interface{}{
		"confirm": true,
	}))
	require.NoError(t, err)
	payload := resultJSON(t, result)
	assert.Equal(t, true, payload["cleared"])
}

func TestHandleExportDatabase(t *testing.T) {
	s := newTestServer(t)
	out := filepath.Join(t.TempDir(), "export.json")

	result, err := s.handleExportDatabase(context.Background(), callRequest(map[string]interface{}{
		"output_path": out,
	}))
	require.NoError(t, err)

	payload := resultJSON(t, result)
	assert.Equal(t, out, payload["path"])
	_, statErr := os.Stat(out)
	assert.NoError(t, statErr)

	_, err = s.handleExportDatabase(context.Background(), callRequest(map[string]interface{}{
		"output_path": out,
		"scope":       "everything",
	}))
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
}
