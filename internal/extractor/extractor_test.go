package extractor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facevault/facevault/pkg/types"
)

func writeSidecar(t *testing.T, imagePath string, doc sidecarDocument) {
	t.Helper()
	blob, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(imagePath+sidecarSuffix, blob, 0o644))
}

func TestSidecarExtractor(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "face.jpg")
	require.NoError(t, os.WriteFile(img, []byte("image bytes"), 0o644))
	writeSidecar(t, img, sidecarDocument{
		Vector:       []float32{0.1, 0.2, 0.3},
		Model:        "ArcFace",
		FaceLocation: &types.FaceLocation{X: 1, Y: 2, Width: 3, Height: 4},
	})

	e := NewSidecarExtractor("", "", 3)
	emb, err := e.ExtractEmbedding(context.Background(), ExtractRequest{ImagePath: img})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, emb.Vector)
	assert.Equal(t, 3, emb.Dimension)
	assert.Equal(t, "ArcFace", emb.Model)
	// Detector falls back to the provider default
	assert.Equal(t, "opencv", emb.Detector)
	require.NotNil(t, emb.FaceLocation)
	assert.Equal(t, 3, emb.FaceLocation.Width)
	assert.NotEmpty(t, emb.Hash)
}

func TestSidecarExtractorNoFace(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "empty.jpg")
	require.NoError(t, os.WriteFile(img, []byte("image"), 0o644))

	e := NewSidecarExtractor("", "", 512)
	_, err := e.ExtractEmbedding(context.Background(), ExtractRequest{ImagePath: img})
	assert.ErrorIs(t, err, ErrNoFace)
}

func TestSidecarExtractorMissingImage(t *testing.T) {
	e := NewSidecarExtractor("", "", 512)

	_, err := e.ExtractEmbedding(context.Background(), ExtractRequest{ImagePath: "/nope/missing.jpg"})
	assert.ErrorIs(t, err, ErrInvalidImage)

	_, err = e.ExtractEmbedding(context.Background(), ExtractRequest{})
	assert.ErrorIs(t, err, types.ErrMissingImagePath)
}

func TestSidecarExtractorCaches(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "face.jpg")
	require.NoError(t, os.WriteFile(img, []byte("image bytes"), 0o644))
	writeSidecar(t, img, sidecarDocument{Vector: []float32{1, 2}})

	e := NewSidecarExtractor("", "", 2)
	first, err := e.ExtractEmbedding(context.Background(), ExtractRequest{ImagePath: img})
	require.NoError(t, err)

	// Remove the sidecar; the cached entry still answers
	require.NoError(t, os.Remove(img+sidecarSuffix))
	second, err := e.ExtractEmbedding(context.Background(), ExtractRequest{ImagePath: img})
	require.NoError(t, err)
	assert.Equal(t, first.Vector, second.Vector)
	assert.Equal(t, 1, e.cache.Size())
}

func TestServiceExtractor(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "face.jpg")
	require.NoError(t, os.WriteFile(img, []byte("image"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/represent", r.URL.Path)
		var req serviceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, img, req.ImagePath)
		_ = json.NewEncoder(w).Encode(serviceResponse{
			Vector:    []float32{0.5, 0.5},
			FaceFound: true,
		})
	}))
	defer srv.Close()

	e := NewServiceExtractor(srv.URL, "VGG-Face", "retinaface", 2)
	emb, err := e.ExtractEmbedding(context.Background(), ExtractRequest{ImagePath: img})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, emb.Vector)
	assert.Equal(t, "VGG-Face", emb.Model)
	assert.Equal(t, "retinaface", emb.Detector)
}

func TestServiceExtractorRetriesTransientFailures(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "face.jpg")
	require.NoError(t, os.WriteFile(img, []byte("image"), 0o644))

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(serviceResponse{Vector: []float32{1}, FaceFound: true})
	}))
	defer srv.Close()

	e := NewServiceExtractor(srv.URL, "", "", 1)
	e.retry = RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}

	emb, err := e.ExtractEmbedding(context.Background(), ExtractRequest{ImagePath: img})
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, emb.Vector)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestServiceExtractorNoFace(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "face.jpg")
	require.NoError(t, os.WriteFile(img, []byte("image"), 0o644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(serviceResponse{FaceFound: false})
	}))
	defer srv.Close()

	e := NewServiceExtractor(srv.URL, "", "", 512)
	e.retry.BaseDelay = time.Millisecond

	_, err := e.ExtractEmbedding(context.Background(), ExtractRequest{ImagePath: img})
	assert.ErrorIs(t, err, ErrNoFace)
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv(EnvProvider, "sidecar")
	t.Setenv(EnvModel, "SFace")
	e, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "SFace", e.Model())

	t.Setenv(EnvProvider, "service")
	t.Setenv(EnvServerURL, "")
	_, err = NewFromEnv()
	assert.ErrorIs(t, err, ErrNoProviderEnabled)

	t.Setenv(EnvProvider, "teleport")
	_, err = NewFromEnv()
	assert.ErrorIs(t, err, ErrNoProviderEnabled)

	t.Setenv(EnvProvider, "")
	t.Setenv(EnvDimension, "not-a-number")
	_, err = NewFromEnv()
	assert.Error(t, err)
}
