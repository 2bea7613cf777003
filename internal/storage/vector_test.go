package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorSerializationRoundTrip(t *testing.T) {
	vector := []float32{0.1, -0.5, 3.25, 0}

	blob := serializeVector(vector)
	assert.Len(t, blob, len(vector)*4)

	got, err := deserializeVector(blob)
	require.NoError(t, err)
	assert.Equal(t, vector, got)
}

func TestDeserializeVectorRejectsMalformedBlobs(t *testing.T) {
	_, err := deserializeVector(nil)
	assert.Error(t, err)

	_, err = deserializeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}

	// Orthogonal vectors score zero, identical vectors score one
	assert.InDelta(t, 0.0, cosineSimilarity(a, b), 1e-9)
	assert.InDelta(t, 1.0, cosineSimilarity(a, a), 1e-6)

	// Symmetric
	c := []float32{0.9, 0.1, 0}
	assert.InDelta(t, cosineSimilarity(a, c), cosineSimilarity(c, a), 1e-9)

	// Scale invariant
	scaled := []float32{2, 0, 0}
	assert.InDelta(t, 1.0, cosineSimilarity(a, scaled), 1e-6)
}

func TestCosineSimilarityDegenerateInputs(t *testing.T) {
	// Dimension mismatch and zero-norm inputs score zero instead of erroring
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0, 0}, []float32{1, 2, 3}))
	assert.Equal(t, 0.0, cosineSimilarity(nil, nil))
}
