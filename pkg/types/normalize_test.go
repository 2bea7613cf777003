package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeScalars(t *testing.T) {
	assert.Nil(t, Normalize(nil))
	assert.Equal(t, true, Normalize(true))
	assert.Equal(t, "hi", Normalize("hi"))
	assert.Equal(t, int64(42), Normalize(int32(42)))
	assert.Equal(t, int64(42), Normalize(uint8(42)))
	assert.Equal(t, float64(1.5), Normalize(float32(1.5)))
	assert.Equal(t, float64(2.5), Normalize(2.5))
}

func TestNormalizeJSONNumber(t *testing.T) {
	assert.Equal(t, int64(7), Normalize(json.Number("7")))
	assert.Equal(t, 0.5, Normalize(json.Number("0.5")))
}

func TestNormalizeNested(t *testing.T) {
	input := map[string]interface{}{
		"age": int16(30),
		"scores": []float32{0.1, 0.9},
		"nested": map[string]interface{}{
			"count": uint(3),
		},
	}

	out, ok := Normalize(input).(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, int64(30), out["age"])
	assert.Equal(t, []interface{}{float64(float32(0.1)), float64(float32(0.9))}, out["scores"])
	nested, ok := out["nested"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, int64(3), nested["count"])
}

func TestNormalizeTypedSlices(t *testing.T) {
	// Typed slices outside the fast paths go through reflection
	out := Normalize([]int16{1, 2, 3})
	assert.Equal(t, []interface{}{int64(1), int64(2), int64(3)}, out)
}

func TestNormalizeSurvivesJSONRoundTrip(t *testing.T) {
	input := map[string]interface{}{
		"vector":     []float32{0.25, 0.5},
		"dimensions": uint32(512),
	}

	blob, err := json.Marshal(NormalizeMap(input))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(blob, &decoded))
	assert.Equal(t, float64(512), decoded["dimensions"])
}

func TestToVector(t *testing.T) {
	v, err := ToVector([]interface{}{1.0, 2.0, 3.0})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, v)

	// Nested sequences flatten, matching multi-face embedding payloads
	v, err = ToVector([]interface{}{
		[]interface{}{1.0, 2.0},
		[]interface{}{3.0},
	})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, v)

	v, err = ToVector([]float32{0.5})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5}, v)

	_, err = ToVector([]interface{}{})
	assert.ErrorIs(t, err, ErrEmptyVector)

	_, err = ToVector([]interface{}{"nope"})
	assert.ErrorIs(t, err, ErrNotAVector)

	_, err = ToVector("nope")
	assert.ErrorIs(t, err, ErrNotAVector)
}

func TestMatchValidate(t *testing.T) {
	m := Match{
		AnalysisID: 1,
		Rank:       1,
		Similarity: 0.9,
		ImagePath:  "/p/a.jpg",
	}
	assert.NoError(t, m.Validate())

	bad := m
	bad.AnalysisID = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidAnalysisID)

	bad = m
	bad.Rank = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidRank)

	bad = m
	bad.Similarity = 1.5
	assert.ErrorIs(t, bad.Validate(), ErrInvalidSimilarity)

	bad = m
	bad.ImagePath = ""
	assert.ErrorIs(t, bad.Validate(), ErrMissingImagePath)
}
