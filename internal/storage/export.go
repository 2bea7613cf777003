package storage

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// exportEnvelope is the JSON export document
type exportEnvelope struct {
	ExportID            string               `json:"export_id"`
	ExportedAt          time.Time            `json:"exported_at"`
	SchemaVersion       string               `json:"schema_version"`
	Scope               ExportScope          `json:"scope"`
	Users               []exportUser         `json:"users,omitempty"`
	Analyses            []exportAnalysis     `json:"analyses,omitempty"`
	VerificationHistory []exportVerification `json:"verification_history,omitempty"`
	Embeddings          []exportEmbedding    `json:"embeddings,omitempty"`
}

type exportUser struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     *string   `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type exportAnalysis struct {
	ID              int64                  `json:"id"`
	UserID          *int64                 `json:"user_id"`
	UserName        string                 `json:"user_name"`
	ImagePath       string                 `json:"image_path"`
	ImageHash       *string                `json:"image_hash"`
	AnalysisType    string                 `json:"analysis_type"`
	ResultData      map[string]interface{} `json:"result_data"`
	ConfidenceScore *float64               `json:"confidence_score"`
	ProcessingTime  *float64               `json:"processing_time"`
	ModelUsed       string                 `json:"model_used,omitempty"`
	DetectorUsed    string                 `json:"detector_used,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
}

type exportVerification struct {
	ID              int64     `json:"id"`
	Image1ID        int64     `json:"image1_id"`
	Image2ID        int64     `json:"image2_id"`
	SimilarityScore float64   `json:"similarity_score"`
	Verified        bool      `json:"verified"`
	ThresholdUsed   float64   `json:"threshold_used"`
	ModelUsed       string    `json:"model_used,omitempty"`
	DetectorUsed    string    `json:"detector_used,omitempty"`
	ProcessingTime  *float64  `json:"processing_time"`
	CreatedAt       time.Time `json:"created_at"`
}

type exportEmbedding struct {
	ID         int64     `json:"id"`
	AnalysisID int64     `json:"analysis_id"`
	Vector     []float32 `json:"vector"`
	CreatedAt  time.Time `json:"created_at"`
}

// Export writes the database contents to path. The JSON format is a
// structured envelope with a fresh export id; the SQL format is a
// schema-plus-data dump replayable with the sqlite3 shell. Embeddings
// are included only on request.
func (s *SQLiteStorage) Export(ctx context.Context, path string, opts ExportOptions) (*ExportStats, error) {
	if opts.Scope == "" {
		opts.Scope = ExportScopeAll
	}
	if opts.Format == "" {
		opts.Format = ExportFormatJSON
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Release(conn)

	switch opts.Format {
	case ExportFormatJSON:
		return s.exportJSON(ctx, conn, path, opts)
	case ExportFormatSQL:
		return s.exportSQL(ctx, conn, path, opts)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", opts.Format)
	}
}

func scopeIncludes(scope ExportScope, entity ExportScope) bool {
	return scope == ExportScopeAll || scope == entity
}

func (s *SQLiteStorage) exportJSON(ctx context.Context, q querier, path string, opts ExportOptions) (*ExportStats, error) {
	env := exportEnvelope{
		ExportID:      uuid.New().String(),
		ExportedAt:    time.Now().UTC(),
		SchemaVersion: CurrentSchemaVersion,
		Scope:         opts.Scope,
	}
	stats := &ExportStats{Path: path}

	if scopeIncludes(opts.Scope, ExportScopeUsers) {
		users, err := s.listUsersWithQuerier(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			env.Users = append(env.Users, exportUser{
				ID: u.ID, Name: u.Name, Email: u.Email,
				CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt,
			})
		}
		stats.Users = len(env.Users)
	}

	if scopeIncludes(opts.Scope, ExportScopeAnalyses) {
		analyses, err := s.exportAllAnalyses(ctx, q)
		if err != nil {
			return nil, err
		}
		env.Analyses = analyses
		stats.Analyses = len(analyses)

		if opts.IncludeEmbeddings {
			embeddings, err := s.exportAllEmbeddings(ctx, q)
			if err != nil {
				return nil, err
			}
			env.Embeddings = embeddings
			stats.Embeddings = len(embeddings)
		}
	}

	if scopeIncludes(opts.Scope, ExportScopeVerifications) {
		verifications, err := s.exportAllVerifications(ctx, q)
		if err != nil {
			return nil, err
		}
		env.VerificationHistory = verifications
		stats.Verifications = len(verifications)
	}

	blob, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write export: %w", err)
	}
	stats.Bytes = int64(len(blob))
	return stats, nil
}

// exportAllAnalyses reads every analysis without a row limit
func (s *SQLiteStorage) exportAllAnalyses(ctx context.Context, q querier) ([]exportAnalysis, error) {
	rows, err := q.QueryContext(ctx, analysisSelect+" ORDER BY a.id")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]exportAnalysis, 0)
	for rows.Next() {
		a, err := scanAnalysis(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, exportAnalysis{
			ID: a.ID, UserID: a.UserID, UserName: a.UserName,
			ImagePath: a.ImagePath, ImageHash: a.ImageHash,
			AnalysisType: string(a.AnalysisType), ResultData: a.ResultData,
			ConfidenceScore: a.ConfidenceScore, ProcessingTime: a.ProcessingTime,
			ModelUsed: a.ModelUsed, DetectorUsed: a.DetectorUsed,
			CreatedAt: a.CreatedAt,
		})
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) exportAllEmbeddings(ctx context.Context, q querier) ([]exportEmbedding, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, analysis_id, embedding_data, created_at FROM embeddings ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]exportEmbedding, 0)
	for rows.Next() {
		var e exportEmbedding
		var blob []byte
		if err := rows.Scan(&e.ID, &e.AnalysisID, &blob, &e.CreatedAt); err != nil {
			return nil, err
		}
		vector, err := deserializeVector(blob)
		if err != nil {
			// Malformed vectors are not exportable; skip the row
			continue
		}
		e.Vector = vector
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) exportAllVerifications(ctx context.Context, q querier) ([]exportVerification, error) {
	records, err := s.getVerificationHistoryWithQuerier(ctx, q, 1<<31-1)
	if err != nil {
		return nil, err
	}
	out := make([]exportVerification, 0, len(records))
	for _, r := range records {
		out = append(out, exportVerification{
			ID: r.ID, Image1ID: r.Image1ID, Image2ID: r.Image2ID,
			SimilarityScore: r.SimilarityScore, Verified: r.Verified,
			ThresholdUsed: r.ThresholdUsed, ModelUsed: r.ModelUsed,
			DetectorUsed: r.DetectorUsed, ProcessingTime: r.ProcessingTime,
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

// exportSQL writes a CREATE+INSERT dump of the selected tables
func (s *SQLiteStorage) exportSQL(ctx context.Context, q querier, path string, opts ExportOptions) (*ExportStats, error) {
	tables := make([]string, 0, 4)
	if scopeIncludes(opts.Scope, ExportScopeUsers) {
		tables = append(tables, "users")
	}
	if scopeIncludes(opts.Scope, ExportScopeAnalyses) {
		tables = append(tables, "analyses")
		if opts.IncludeEmbeddings {
			tables = append(tables, "embeddings")
		}
	}
	if scopeIncludes(opts.Scope, ExportScopeVerifications) {
		tables = append(tables, "verification_history")
	}

	var b strings.Builder
	b.WriteString("PRAGMA foreign_keys=OFF;\nBEGIN TRANSACTION;\n")

	stats := &ExportStats{Path: path}
	for _, table := range tables {
		var ddl string
		err := q.QueryRowContext(ctx,
			"SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&ddl)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema for %s: %w", table, err)
		}
		b.WriteString(ddl)
		b.WriteString(";\n")

		count, err := dumpTableRows(ctx, q, &b, table)
		if err != nil {
			return nil, err
		}
		switch table {
		case "users":
			stats.Users = count
		case "analyses":
			stats.Analyses = count
		case "embeddings":
			stats.Embeddings = count
		case "verification_history":
			stats.Verifications = count
		}
	}
	b.WriteString("COMMIT;\n")

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write export: %w", err)
	}
	stats.Bytes = int64(b.Len())
	return stats, nil
}

func dumpTableRows(ctx context.Context, q querier, b *strings.Builder, table string) (int, error) {
	rows, err := q.QueryContext(ctx, "SELECT * FROM "+table)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return 0, err
	}

	count := 0
	values := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return count, err
		}
		literals := make([]string, len(values))
		for i, v := range values {
			literals[i] = sqlLiteral(v)
		}
		fmt.Fprintf(b, "INSERT INTO %s VALUES(%s);\n", table, strings.Join(literals, ","))
		count++
	}
	return count, rows.Err()
}

// sqlLiteral renders one scanned value as a SQLite literal
func sqlLiteral(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		if val {
			return "1"
		}
		return "0"
	case []byte:
		return "X'" + hex.EncodeToString(val) + "'"
	case time.Time:
		return "'" + val.UTC().Format("2006-01-02 15:04:05.999999999") + "'"
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	default:
		return "'" + strings.ReplaceAll(fmt.Sprint(val), "'", "''") + "'"
	}
}
