package storage

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchImport(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	records := []ImportRecord{
		{
			UserName:  "Ivy",
			UserEmail: strPtr("ivy@example.com"),
			ImagePath: "/p/ivy-1.jpg",
			Vector:    []float32{0.1, 0.2, 0.3},
		},
		{
			UserName:  "Ivy",
			UserEmail: strPtr("ivy@example.com"),
			ImagePath: "/p/ivy-2.jpg",
			Vector:    []float32{0.2, 0.3, 0.4},
		},
		{
			ImagePath: "/p/nobody.jpg",
		},
	}

	stats, err := store.BatchImport(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 3, stats.Imported)
	assert.Equal(t, 0, stats.Skipped)
	assert.Equal(t, 0, stats.Errors)

	// Ivy was merged into one user across records
	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	analyses, err := store.GetAnalyses(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, analyses, 3)
	for _, a := range analyses {
		assert.Equal(t, AnalysisTypeBatchImport, a.AnalysisType)
	}
}

func TestBatchImportSkipsExistingPaths(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	_, err := store.SaveAnalysis(ctx, &Analysis{
		ImagePath:    "/p/seen.jpg",
		AnalysisType: AnalysisTypeAnalyze,
	})
	require.NoError(t, err)

	stats, err := store.BatchImport(ctx, []ImportRecord{
		{ImagePath: "/p/seen.jpg", Vector: []float32{1}},
		{ImagePath: "/p/new.jpg", Vector: []float32{1}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Imported)

	// Re-running the same batch imports nothing
	stats, err = store.BatchImport(ctx, []ImportRecord{
		{ImagePath: "/p/seen.jpg", Vector: []float32{1}},
		{ImagePath: "/p/new.jpg", Vector: []float32{1}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Skipped)
	assert.Equal(t, 0, stats.Imported)
}

func TestBatchImportRollsBackFailedRecord(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	// NaN cannot be encoded as JSON, so this record fails after its
	// user row was already upserted
	stats, err := store.BatchImport(ctx, []ImportRecord{
		{
			UserName:  "Good",
			ImagePath: "/p/good.jpg",
			Vector:    []float32{1, 0},
		},
		{
			UserName:   "Broken",
			ImagePath:  "/p/broken.jpg",
			ResultData: map[string]interface{}{"score": math.NaN()},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Imported)
	assert.Equal(t, 1, stats.Errors)
	require.Len(t, stats.ErrorMessages, 1)
	assert.Contains(t, stats.ErrorMessages[0], "/p/broken.jpg")

	// The failed record left nothing behind, not even its user
	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Good", users[0].Name)

	analyses, err := store.GetAnalyses(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, analyses, 1)
}

func TestBatchImportCommitsInChunks(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	records := make([]ImportRecord, batchCommitInterval+25)
	for i := range records {
		records[i] = ImportRecord{
			ImagePath: fmt.Sprintf("/p/bulk-%03d.jpg", i),
			Vector:    []float32{float32(i), 1},
		}
	}

	stats, err := store.BatchImport(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, len(records), stats.Imported)

	dbStats, err := store.Stats(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, len(records), dbStats.TotalAnalyses)
	assert.Equal(t, len(records), dbStats.TotalEmbeddings)
}

func TestBatchImportEmpty(t *testing.T) {
	store := newTestStorage(t)

	stats, err := store.BatchImport(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
}
