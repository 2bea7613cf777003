package types

import "time"

// FaceLocation describes the bounding box of a detected face within an
// image, in pixel coordinates.
type FaceLocation struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"w"`
	Height int `json:"h"`
}

// Match represents a single similarity search result with ranking
// information and enough analysis metadata to display it.
type Match struct {
	// Identification
	AnalysisID int64 `json:"analysis_id"`
	Rank       int   `json:"rank"` // Position in result set (1-based)

	// Scoring
	Similarity float64 `json:"similarity"` // Cosine similarity against the query vector

	// Metadata from the owning analysis
	ImagePath    string    `json:"image_path"`
	AnalysisType string    `json:"analysis_type"`
	UserName     string    `json:"user_name"` // "Anonymous" when the analysis has no user
	ModelUsed    string    `json:"model_used,omitempty"`
	Confidence   *float64  `json:"confidence"` // Nullable
	CreatedAt    time.Time `json:"created_at"`
}

// Validate checks if the match is well formed
func (m *Match) Validate() error {
	if m.AnalysisID == 0 {
		return ErrInvalidAnalysisID
	}

	if m.Rank < 1 {
		return ErrInvalidRank
	}

	if m.Similarity < -1 || m.Similarity > 1 {
		return ErrInvalidSimilarity
	}

	if m.ImagePath == "" {
		return ErrMissingImagePath
	}

	return nil
}
