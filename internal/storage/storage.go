package storage

import (
	"context"
	"time"

	"github.com/facevault/facevault/pkg/types"
)

// AnalysisType enumerates the supported kinds of analysis events
type AnalysisType string

const (
	AnalysisTypeAnalyze     AnalysisType = "analyze"
	AnalysisTypeVerify      AnalysisType = "verify"
	AnalysisTypeBatchImport AnalysisType = "batch_import"
)

// Storage defines the interface for persisting and querying face-analysis
// data. All blocking operations take a context.
type Storage interface {
	// User operations
	AddUser(ctx context.Context, name string, email *string) (int64, error)
	GetUser(ctx context.Context, userID int64) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)

	// Analysis operations
	SaveAnalysis(ctx context.Context, analysis *Analysis) (int64, error)
	GetAnalysisByID(ctx context.Context, analysisID int64) (*Analysis, error)
	GetAnalyses(ctx context.Context, opts ListOptions) ([]*Analysis, error)
	GetUserAnalyses(ctx context.Context, userID int64, limit int) ([]*Analysis, error)
	DeleteAnalysis(ctx context.Context, analysisID int64) error

	// Embedding operations
	SaveEmbedding(ctx context.Context, analysisID int64, vector []float32, faceLocation *types.FaceLocation) (int64, error)
	GetEmbeddingByAnalysisID(ctx context.Context, analysisID int64) ([]float32, error)

	// Verification operations
	SaveVerification(ctx context.Context, rec *VerificationRecord) (int64, error)
	GetVerificationHistory(ctx context.Context, limit int) ([]*VerificationRecord, error)

	// Search operations
	SearchVector(ctx context.Context, query []float32, opts SearchOptions) (*VectorScan, error)

	// Batch operations
	BatchImport(ctx context.Context, records []ImportRecord) (*ImportStats, error)

	// Maintenance operations
	CleanupOrphans(ctx context.Context, dryRun bool) (*CleanupStats, error)
	Export(ctx context.Context, path string, opts ExportOptions) (*ExportStats, error)
	Stats(ctx context.Context, detailed bool) (*Stats, error)
	Vacuum(ctx context.Context) error
	ClearAll(ctx context.Context, confirm bool) error

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// User is an identity referenced by analyses. Email, when present, is
// unique; inserting a duplicate merges into the existing row.
type User struct {
	ID        int64
	Name      string
	Email     *string // Nullable
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Analysis is one face-analysis event. UserID is a non-owning
// back-reference; UserName/UserEmail are populated by joined reads.
type Analysis struct {
	ID              int64
	UserID          *int64 // Nullable
	UserName        string // "Anonymous" when no user is attached
	UserEmail       *string
	ImagePath       string
	ImageHash       *string // Hex SHA-256 of file content, nil when unreadable
	AnalysisType    AnalysisType
	ResultData      map[string]interface{}
	ConfidenceScore *float64
	ProcessingTime  *float64 // Seconds
	ModelUsed       string
	DetectorUsed    string
	CreatedAt       time.Time

	// Metadata is merged into ResultData under a "metadata" key on save.
	// It is never read back separately.
	Metadata map[string]interface{}
}

// VerificationRecord is the result of comparing two analyses
type VerificationRecord struct {
	ID              int64
	Image1ID        int64
	Image2ID        int64
	Image1Path      string // Populated by joined reads
	Image2Path      string
	SimilarityScore float64
	Verified        bool
	ThresholdUsed   float64
	ModelUsed       string
	DetectorUsed    string
	ProcessingTime  *float64
	CreatedAt       time.Time
}

// FilterOp is a comparison operator in a filter spec
type FilterOp string

const (
	FilterOpEq   FilterOp = "="
	FilterOpNeq  FilterOp = "!="
	FilterOpGte  FilterOp = ">="
	FilterOpLte  FilterOp = "<="
	FilterOpLike FilterOp = "LIKE"
)

// Filter is one (field, operator, value) predicate. Fields are validated
// against a fixed allow-list before any SQL is built.
type Filter struct {
	Field string
	Op    FilterOp
	Value interface{}
}

// ListOptions controls filtered analysis listings
type ListOptions struct {
	Filters    []Filter
	OrderBy    string // Defaults to created_at
	Descending bool
	Limit      int // Defaults to 100
}

// SearchOptions narrows a vector scan before similarity is computed
type SearchOptions struct {
	Threshold     float64  // Minimum similarity, results below are dropped
	UserID        *int64   // Restrict to embeddings owned by this user
	MinConfidence *float64 // Minimum confidence_score on the owning analysis
}

// VectorCandidate is one embedding that passed the similarity threshold
type VectorCandidate struct {
	EmbeddingID int64
	AnalysisID  int64
	Similarity  float64
}

// VectorScan is the outcome of a similarity scan: candidates sorted by
// similarity descending, plus the number of stored rows whose vector could
// not be decoded and was skipped.
type VectorScan struct {
	Candidates  []VectorCandidate
	RowsScanned int
	RowsSkipped int
}

// ImportRecord is one unit of a batch import: an analysis plus its
// embedding, inserted atomically.
type ImportRecord struct {
	UserName        string
	UserEmail       *string
	ImagePath       string
	ResultData      map[string]interface{}
	Vector          []float32
	FaceLocation    *types.FaceLocation
	ConfidenceScore *float64
	ModelUsed       string
	DetectorUsed    string
}

// ImportStats reports per-record outcomes of a batch import
type ImportStats struct {
	Total    int
	Imported int
	Skipped  int
	Errors   int
	// First few failure messages, for surfacing without flooding
	ErrorMessages []string
}

// CleanupStats reports what an orphan/duplicate sweep found or removed
type CleanupStats struct {
	MissingImageAnalyses int
	OrphanedEmbeddings   int
	DuplicateAnalyses    int
	DryRun               bool
	Vacuumed             bool
}

// Removed reports the total rows affected by the sweep
func (c *CleanupStats) Removed() int {
	return c.MissingImageAnalyses + c.OrphanedEmbeddings + c.DuplicateAnalyses
}

// ExportScope selects which entities an export includes
type ExportScope string

const (
	ExportScopeAll           ExportScope = "all"
	ExportScopeUsers         ExportScope = "users"
	ExportScopeAnalyses      ExportScope = "analyses"
	ExportScopeVerifications ExportScope = "verifications"
)

// ExportFormat selects the on-disk representation
type ExportFormat string

const (
	// ExportFormatJSON writes the structured envelope
	ExportFormatJSON ExportFormat = "json"
	// ExportFormatSQL writes a schema-plus-data dump
	ExportFormatSQL ExportFormat = "sql"
)

// ExportOptions controls an export run. Embeddings are excluded by default
// due to size.
type ExportOptions struct {
	Scope             ExportScope
	Format            ExportFormat
	IncludeEmbeddings bool
}

// ExportStats reports what an export wrote
type ExportStats struct {
	Path          string
	Bytes         int64
	Users         int
	Analyses      int
	Embeddings    int
	Verifications int
}

// Stats summarizes the corpus. Detailed fields are nil unless requested.
type Stats struct {
	TotalUsers          int
	TotalAnalyses       int
	TotalEmbeddings     int
	TotalVerifications  int
	RecentAnalyses7Days int
	DatabaseSizeMB      float64

	// Detailed mode only
	AnalysesPerMonth  map[string]int // "2006-01" -> count
	ModelUsage        map[string]int
	ConfidenceBuckets *ConfidenceBuckets
}

// ConfidenceBuckets is the confidence-score distribution: high >= 0.9,
// medium in [0.7, 0.9), low < 0.7.
type ConfidenceBuckets struct {
	High   int
	Medium int
	Low    int
}
