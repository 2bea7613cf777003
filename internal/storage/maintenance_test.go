package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestImage creates a real file so cleanup treats it as present
func writeTestImage(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCleanupRemovesMissingImageAnalyses(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	dir := t.TempDir()

	present := writeTestImage(t, dir, "present.jpg", "image a")
	keep := seedEmbedding(t, store, nil, present, []float32{1, 0}, nil)
	gone := seedEmbedding(t, store, nil, filepath.Join(dir, "gone.jpg"), []float32{0, 1}, nil)

	// Dry run reports but does not delete
	stats, err := store.CleanupOrphans(ctx, true)
	require.NoError(t, err)
	assert.True(t, stats.DryRun)
	assert.Equal(t, 1, stats.MissingImageAnalyses)
	assert.Equal(t, 1, stats.OrphanedEmbeddings)
	assert.False(t, stats.Vacuumed)

	_, err = store.GetAnalysisByID(ctx, gone)
	require.NoError(t, err)

	// Live run deletes and vacuums
	stats, err = store.CleanupOrphans(ctx, false)
	require.NoError(t, err)
	assert.False(t, stats.DryRun)
	assert.Equal(t, 1, stats.MissingImageAnalyses)
	assert.Equal(t, 1, stats.OrphanedEmbeddings)
	assert.Equal(t, 2, stats.Removed())
	assert.True(t, stats.Vacuumed)

	_, err = store.GetAnalysisByID(ctx, gone)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetAnalysisByID(ctx, keep)
	require.NoError(t, err)
}

func TestCleanupDeduplicatesByImageHash(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	dir := t.TempDir()

	img := writeTestImage(t, dir, "same.jpg", "identical bytes")

	// Two analyses of the same file content share an image_hash
	older, err := store.SaveAnalysis(ctx, &Analysis{ImagePath: img, AnalysisType: AnalysisTypeAnalyze})
	require.NoError(t, err)
	newer, err := store.SaveAnalysis(ctx, &Analysis{ImagePath: img, AnalysisType: AnalysisTypeAnalyze})
	require.NoError(t, err)

	stats, err := store.CleanupOrphans(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DuplicateAnalyses)

	_, err = store.GetAnalysisByID(ctx, older)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetAnalysisByID(ctx, newer)
	require.NoError(t, err)

	// A second sweep finds nothing
	stats, err = store.CleanupOrphans(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Removed())
	assert.False(t, stats.Vacuumed)
}

func TestCleanupDryRunMatchesLive(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	dir := t.TempDir()

	// A missing-image analysis carrying an embedding, plus a duplicate
	// pair where the older row also has one
	seedEmbedding(t, store, nil, filepath.Join(dir, "missing.jpg"), []float32{0, 1}, nil)
	img := writeTestImage(t, dir, "dup.jpg", "shared bytes")
	seedEmbedding(t, store, nil, img, []float32{1, 0}, nil)
	_, err := store.SaveAnalysis(ctx, &Analysis{ImagePath: img, AnalysisType: AnalysisTypeAnalyze})
	require.NoError(t, err)

	dry, err := store.CleanupOrphans(ctx, true)
	require.NoError(t, err)
	live, err := store.CleanupOrphans(ctx, false)
	require.NoError(t, err)

	// A dry run is a faithful preview of the live sweep
	assert.Equal(t, dry.MissingImageAnalyses, live.MissingImageAnalyses)
	assert.Equal(t, dry.DuplicateAnalyses, live.DuplicateAnalyses)
	assert.Equal(t, dry.OrphanedEmbeddings, live.OrphanedEmbeddings)
	assert.Equal(t, dry.Removed(), live.Removed())
	assert.Equal(t, 2, live.OrphanedEmbeddings)
}

func TestCleanupRemovesOrphanedEmbeddings(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	dir := t.TempDir()

	img := writeTestImage(t, dir, "a.jpg", "bytes")
	id := seedEmbedding(t, store, nil, img, []float32{1, 0}, nil)

	// Orphan the embedding behind the API's back
	_, err := store.db.ExecContext(ctx, "DELETE FROM analyses WHERE id = ?", id)
	require.NoError(t, err)

	stats, err := store.CleanupOrphans(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.OrphanedEmbeddings)
}

func TestStatsBasicAndDetailed(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	userID, err := store.AddUser(ctx, "Nia", strPtr("nia@example.com"))
	require.NoError(t, err)
	for _, tc := range []struct {
		path  string
		model string
		conf  float64
	}{
		{"/p/1.jpg", "Facenet512", 0.95},
		{"/p/2.jpg", "Facenet512", 0.8},
		{"/p/3.jpg", "VGG-Face", 0.5},
	} {
		id, err := store.SaveAnalysis(ctx, &Analysis{
			UserID:          &userID,
			ImagePath:       tc.path,
			AnalysisType:    AnalysisTypeAnalyze,
			ConfidenceScore: f64Ptr(tc.conf),
			ModelUsed:       tc.model,
		})
		require.NoError(t, err)
		_, err = store.SaveEmbedding(ctx, id, []float32{1, 2}, nil)
		require.NoError(t, err)
	}

	basic, err := store.Stats(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, basic.TotalUsers)
	assert.Equal(t, 3, basic.TotalAnalyses)
	assert.Equal(t, 3, basic.TotalEmbeddings)
	assert.Equal(t, 3, basic.RecentAnalyses7Days)
	assert.Nil(t, basic.AnalysesPerMonth)

	detailed, err := store.Stats(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, detailed.ModelUsage["Facenet512"])
	assert.Equal(t, 1, detailed.ModelUsage["VGG-Face"])
	require.NotNil(t, detailed.ConfidenceBuckets)
	assert.Equal(t, 1, detailed.ConfidenceBuckets.High)
	assert.Equal(t, 1, detailed.ConfidenceBuckets.Medium)
	assert.Equal(t, 1, detailed.ConfidenceBuckets.Low)
	assert.Len(t, detailed.AnalysesPerMonth, 1)
}

func TestExportJSON(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	userID, err := store.AddUser(ctx, "Omar", strPtr("omar@example.com"))
	require.NoError(t, err)
	id := seedEmbedding(t, store, &userID, "/p/omar.jpg", []float32{0.5, 0.5}, f64Ptr(0.9))
	_, err = store.SaveVerification(ctx, &VerificationRecord{
		Image1ID: id, Image2ID: id, SimilarityScore: 1, Verified: true, ThresholdUsed: 0.68,
		ModelUsed: "Facenet512", DetectorUsed: "retinaface", ProcessingTime: f64Ptr(0.42),
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "export.json")
	stats, err := store.Export(ctx, path, ExportOptions{IncludeEmbeddings: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Users)
	assert.Equal(t, 1, stats.Analyses)
	assert.Equal(t, 1, stats.Embeddings)
	assert.Equal(t, 1, stats.Verifications)
	assert.Positive(t, stats.Bytes)

	blob, err := os.ReadFile(path)
	require.NoError(t, err)
	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(blob, &env))
	assert.NotEmpty(t, env["export_id"])
	assert.Equal(t, CurrentSchemaVersion, env["schema_version"])
	assert.Len(t, env["users"], 1)
	assert.Len(t, env["analyses"], 1)

	// Verification rows export in full
	verifications, ok := env["verification_history"].([]interface{})
	require.True(t, ok)
	require.Len(t, verifications, 1)
	v, ok := verifications[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "retinaface", v["detector_used"])
	assert.Equal(t, 0.42, v["processing_time"])
}

func TestExportJSONExcludesEmbeddingsByDefault(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	seedEmbedding(t, store, nil, "/p/x.jpg", []float32{1}, nil)

	path := filepath.Join(t.TempDir(), "export.json")
	stats, err := store.Export(ctx, path, ExportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Embeddings)

	blob, err := os.ReadFile(path)
	require.NoError(t, err)
	var env map[string]interface{}
	require.NoError(t, json.Unmarshal(blob, &env))
	_, present := env["embeddings"]
	assert.False(t, present)
}

func TestExportSQLDump(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	_, err := store.AddUser(ctx, "Pia", strPtr("pia's@example.com"))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "dump.sql")
	stats, err := store.Export(ctx, path, ExportOptions{Format: ExportFormatSQL, Scope: ExportScopeUsers})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Users)

	blob, err := os.ReadFile(path)
	require.NoError(t, err)
	dump := string(blob)
	assert.Contains(t, dump, "CREATE TABLE")
	assert.Contains(t, dump, "INSERT INTO users")
	// Embedded quote is escaped
	assert.Contains(t, dump, "pia''s@example.com")
}

func TestVacuum(t *testing.T) {
	store := newTestStorage(t)
	require.NoError(t, store.Vacuum(context.Background()))
}
