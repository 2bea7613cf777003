package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/facevault/facevault/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrConfirmationRequired is returned when a destructive operation is
	// attempted without the explicit confirmation flag
	ErrConfirmationRequired = errors.New("confirmation required")
	// ErrInvalidFilter is returned when a filter references a field
	// outside the allow-list or an unknown operator
	ErrInvalidFilter = errors.New("invalid filter")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db     *sql.DB
	pool   *Pool
	dbPath string
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{
		db:     db,
		pool:   NewPool(db, DefaultPoolSize, DefaultIdleTimeout),
		dbPath: dbPath,
	}, nil
}

// Close closes the connection pool and the database
func (s *SQLiteStorage) Close() error {
	return s.pool.Close()
}

// BeginTx starts a new transaction on a dedicated pooled connection. The
// connection returns to the pool on Commit or Rollback.
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		s.pool.Release(conn)
		return nil, err
	}
	return &sqliteTx{tx: tx, conn: conn, storage: s}, nil
}

// querier is an interface that *sql.DB, *sql.Conn and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction on a pooled connection
type sqliteTx struct {
	tx      *sql.Tx
	conn    *sql.Conn
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	err := t.tx.Commit()
	t.storage.pool.Release(t.conn)
	t.conn = nil
	return err
}

func (t *sqliteTx) Rollback() error {
	err := t.tx.Rollback()
	if t.conn != nil {
		t.storage.pool.Release(t.conn)
		t.conn = nil
	}
	return err
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// User operations

// addUserWithQuerier is the internal implementation that uses a querier.
// A duplicate non-null email merges into the existing row: the name and
// updated_at are refreshed and the existing id is returned.
func (s *SQLiteStorage) addUserWithQuerier(ctx context.Context, q querier, name string, email *string) (int64, error) {
	query := `
		INSERT INTO users (name, email, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			name = excluded.name,
			updated_at = excluded.updated_at
		RETURNING id
	`
	now := time.Now()
	var id int64
	if err := q.QueryRowContext(ctx, query, name, email, now, now).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to add user: %w", err)
	}
	return id, nil
}

func (s *SQLiteStorage) AddUser(ctx context.Context, name string, email *string) (int64, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Release(conn)
	return s.addUserWithQuerier(ctx, conn, name, email)
}

// getUserWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getUserWithQuerier(ctx context.Context, q querier, userID int64) (*User, error) {
	query := `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE id = ?
	`
	var user User
	var email sql.NullString
	err := q.QueryRowContext(ctx, query, userID).Scan(
		&user.ID, &user.Name, &email, &user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if email.Valid {
		user.Email = &email.String
	}
	return &user, nil
}

func (s *SQLiteStorage) GetUser(ctx context.Context, userID int64) (*User, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Release(conn)
	return s.getUserWithQuerier(ctx, conn, userID)
}

// listUsersWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listUsersWithQuerier(ctx context.Context, q querier) ([]*User, error) {
	query := `
		SELECT id, name, email, created_at, updated_at
		FROM users
		ORDER BY name
	`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	users := make([]*User, 0)
	for rows.Next() {
		var user User
		var email sql.NullString
		if err := rows.Scan(&user.ID, &user.Name, &email, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, err
		}
		if email.Valid {
			user.Email = &email.String
		}
		users = append(users, &user)
	}
	return users, rows.Err()
}

func (s *SQLiteStorage) ListUsers(ctx context.Context) ([]*User, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Release(conn)
	return s.listUsersWithQuerier(ctx, conn)
}

// Analysis operations

// saveAnalysisWithQuerier is the internal implementation that uses a
// querier. ResultData is normalized to plain JSON-native values, the
// optional Metadata map is merged under a "metadata" key, and the image
// file is content-hashed when readable.
func (s *SQLiteStorage) saveAnalysisWithQuerier(ctx context.Context, q querier, analysis *Analysis) (int64, error) {
	resultData := types.NormalizeMap(analysis.ResultData)
	if resultData == nil {
		resultData = map[string]interface{}{}
	}
	if analysis.Metadata != nil {
		resultData["metadata"] = types.Normalize(analysis.Metadata)
	}

	blob, err := json.Marshal(resultData)
	if err != nil {
		return 0, fmt.Errorf("failed to encode result data: %w", err)
	}

	if analysis.ImageHash == nil {
		analysis.ImageHash = hashImageFile(analysis.ImagePath)
	}

	query := `
		INSERT INTO analyses
		(user_id, image_path, image_hash, analysis_type, result_data,
		 confidence_score, processing_time, model_used, detector_used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query,
		analysis.UserID, analysis.ImagePath, analysis.ImageHash,
		string(analysis.AnalysisType), string(blob),
		analysis.ConfidenceScore, analysis.ProcessingTime,
		nullIfEmpty(analysis.ModelUsed), nullIfEmpty(analysis.DetectorUsed), now)
	if err != nil {
		return 0, fmt.Errorf("failed to save analysis: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	analysis.ID = id
	analysis.ResultData = resultData
	analysis.CreatedAt = now
	return id, nil
}

func (s *SQLiteStorage) SaveAnalysis(ctx context.Context, analysis *Analysis) (int64, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Release(conn)
	return s.saveAnalysisWithQuerier(ctx, conn, analysis)
}

const analysisSelect = `
	SELECT a.id, a.user_id, a.image_path, a.image_hash, a.analysis_type,
	       a.result_data, a.confidence_score, a.processing_time,
	       a.model_used, a.detector_used, a.created_at,
	       COALESCE(u.name, 'Anonymous') AS user_name, u.email AS user_email
	FROM analyses a
	LEFT JOIN users u ON a.user_id = u.id
`

// scanAnalysis reads one joined analysis row
func scanAnalysis(scan func(dest ...interface{}) error) (*Analysis, error) {
	var a Analysis
	var userID sql.NullInt64
	var imageHash, modelUsed, detectorUsed, userEmail sql.NullString
	var confidence, processing sql.NullFloat64
	var analysisType, resultData string

	err := scan(
		&a.ID, &userID, &a.ImagePath, &imageHash, &analysisType,
		&resultData, &confidence, &processing,
		&modelUsed, &detectorUsed, &a.CreatedAt,
		&a.UserName, &userEmail,
	)
	if err != nil {
		return nil, err
	}

	a.AnalysisType = AnalysisType(analysisType)
	if userID.Valid {
		id := userID.Int64
		a.UserID = &id
	}
	if imageHash.Valid {
		a.ImageHash = &imageHash.String
	}
	if confidence.Valid {
		v := confidence.Float64
		a.ConfidenceScore = &v
	}
	if processing.Valid {
		v := processing.Float64
		a.ProcessingTime = &v
	}
	if modelUsed.Valid {
		a.ModelUsed = modelUsed.String
	}
	if detectorUsed.Valid {
		a.DetectorUsed = detectorUsed.String
	}
	if userEmail.Valid {
		a.UserEmail = &userEmail.String
	}
	if a.UserName == "" {
		a.UserName = "Anonymous"
	}
	if err := json.Unmarshal([]byte(resultData), &a.ResultData); err != nil {
		return nil, fmt.Errorf("failed to decode result data: %w", err)
	}
	return &a, nil
}

// getAnalysisByIDWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getAnalysisByIDWithQuerier(ctx context.Context, q querier, analysisID int64) (*Analysis, error) {
	row := q.QueryRowContext(ctx, analysisSelect+" WHERE a.id = ?", analysisID)
	analysis, err := scanAnalysis(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return analysis, nil
}

func (s *SQLiteStorage) GetAnalysisByID(ctx context.Context, analysisID int64) (*Analysis, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Release(conn)
	return s.getAnalysisByIDWithQuerier(ctx, conn, analysisID)
}

// filterableColumns is the allow-list for GetAnalyses filter specs
var filterableColumns = map[string]bool{
	"user_id":          true,
	"analysis_type":    true,
	"image_path":       true,
	"image_hash":       true,
	"model_used":       true,
	"detector_used":    true,
	"confidence_score": true,
	"created_at":       true,
}

// orderableColumns is the allow-list for GetAnalyses ordering
var orderableColumns = map[string]bool{
	"created_at":       true,
	"confidence_score": true,
	"id":               true,
}

var filterOps = map[FilterOp]bool{
	FilterOpEq:   true,
	FilterOpNeq:  true,
	FilterOpGte:  true,
	FilterOpLte:  true,
	FilterOpLike: true,
}

// buildListQuery validates the filter spec and assembles the SQL
func buildListQuery(opts ListOptions) (string, []interface{}, error) {
	query := analysisSelect
	args := make([]interface{}, 0, len(opts.Filters)+1)

	conds := make([]string, 0, len(opts.Filters))
	for _, f := range opts.Filters {
		if !filterableColumns[f.Field] {
			return "", nil, fmt.Errorf("%w: field %q", ErrInvalidFilter, f.Field)
		}
		if !filterOps[f.Op] {
			return "", nil, fmt.Errorf("%w: operator %q", ErrInvalidFilter, f.Op)
		}
		conds = append(conds, fmt.Sprintf("a.%s %s ?", f.Field, f.Op))
		args = append(args, f.Value)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	orderBy := opts.OrderBy
	if orderBy == "" {
		orderBy = "created_at"
	}
	if !orderableColumns[orderBy] {
		return "", nil, fmt.Errorf("%w: order column %q", ErrInvalidFilter, orderBy)
	}
	direction := "ASC"
	if opts.Descending {
		direction = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY a.%s %s", orderBy, direction)

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ?"
	args = append(args, limit)

	return query, args, nil
}

// getAnalysesWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getAnalysesWithQuerier(ctx context.Context, q querier, opts ListOptions) ([]*Analysis, error) {
	query, args, err := buildListQuery(opts)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	analyses := make([]*Analysis, 0)
	for rows.Next() {
		analysis, err := scanAnalysis(rows.Scan)
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, analysis)
	}
	return analyses, rows.Err()
}

func (s *SQLiteStorage) GetAnalyses(ctx context.Context, opts ListOptions) ([]*Analysis, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Release(conn)
	return s.getAnalysesWithQuerier(ctx, conn, opts)
}

// GetUserAnalyses lists one user's analyses, newest first
func (s *SQLiteStorage) GetUserAnalyses(ctx context.Context, userID int64, limit int) ([]*Analysis, error) {
	return s.GetAnalyses(ctx, ListOptions{
		Filters:    []Filter{{Field: "user_id", Op: FilterOpEq, Value: userID}},
		OrderBy:    "created_at",
		Descending: true,
		Limit:      limit,
	})
}

// deleteAnalysisWithQuerier removes an analysis and its embeddings
func (s *SQLiteStorage) deleteAnalysisWithQuerier(ctx context.Context, q querier, analysisID int64) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM embeddings WHERE analysis_id = ?", analysisID); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, "DELETE FROM analyses WHERE id = ?", analysisID)
	return err
}

func (s *SQLiteStorage) DeleteAnalysis(ctx context.Context, analysisID int64) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Release(conn)
	return s.deleteAnalysisWithQuerier(ctx, conn, analysisID)
}

// Embedding operations

// saveEmbeddingWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) saveEmbeddingWithQuerier(ctx context.Context, q querier, analysisID int64, vector []float32, faceLocation *types.FaceLocation) (int64, error) {
	if len(vector) == 0 {
		return 0, types.ErrEmptyVector
	}

	var location interface{}
	if faceLocation != nil {
		blob, err := json.Marshal(faceLocation)
		if err != nil {
			return 0, fmt.Errorf("failed to encode face location: %w", err)
		}
		location = string(blob)
	}

	query := `
		INSERT INTO embeddings (analysis_id, embedding_data, dimension, face_location, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := q.ExecContext(ctx, query,
		analysisID, serializeVector(vector), len(vector), location, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to save embedding: %w", err)
	}
	return result.LastInsertId()
}

func (s *SQLiteStorage) SaveEmbedding(ctx context.Context, analysisID int64, vector []float32, faceLocation *types.FaceLocation) (int64, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Release(conn)
	return s.saveEmbeddingWithQuerier(ctx, conn, analysisID, vector, faceLocation)
}

// getEmbeddingByAnalysisIDWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getEmbeddingByAnalysisIDWithQuerier(ctx context.Context, q querier, analysisID int64) ([]float32, error) {
	var blob []byte
	err := q.QueryRowContext(ctx,
		"SELECT embedding_data FROM embeddings WHERE analysis_id = ? ORDER BY created_at DESC LIMIT 1",
		analysisID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return deserializeVector(blob)
}

func (s *SQLiteStorage) GetEmbeddingByAnalysisID(ctx context.Context, analysisID int64) ([]float32, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Release(conn)
	return s.getEmbeddingByAnalysisIDWithQuerier(ctx, conn, analysisID)
}

// Verification operations

// saveVerificationWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) saveVerificationWithQuerier(ctx context.Context, q querier, rec *VerificationRecord) (int64, error) {
	query := `
		INSERT INTO verification_history
		(image1_id, image2_id, similarity_score, verified, threshold_used,
		 model_used, detector_used, processing_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query,
		rec.Image1ID, rec.Image2ID, rec.SimilarityScore, rec.Verified,
		rec.ThresholdUsed, nullIfEmpty(rec.ModelUsed), nullIfEmpty(rec.DetectorUsed),
		rec.ProcessingTime, now)
	if err != nil {
		return 0, fmt.Errorf("failed to save verification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	rec.ID = id
	rec.CreatedAt = now
	return id, nil
}

func (s *SQLiteStorage) SaveVerification(ctx context.Context, rec *VerificationRecord) (int64, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Release(conn)
	return s.saveVerificationWithQuerier(ctx, conn, rec)
}

// getVerificationHistoryWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getVerificationHistoryWithQuerier(ctx context.Context, q querier, limit int) ([]*VerificationRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT vh.id, vh.image1_id, vh.image2_id, vh.similarity_score,
		       vh.verified, vh.threshold_used, vh.model_used, vh.detector_used,
		       vh.processing_time, vh.created_at,
		       COALESCE(a1.image_path, '') AS image1_path,
		       COALESCE(a2.image_path, '') AS image2_path
		FROM verification_history vh
		LEFT JOIN analyses a1 ON vh.image1_id = a1.id
		LEFT JOIN analyses a2 ON vh.image2_id = a2.id
		ORDER BY vh.created_at DESC
		LIMIT ?
	`
	rows, err := q.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	records := make([]*VerificationRecord, 0)
	for rows.Next() {
		var rec VerificationRecord
		var threshold sql.NullFloat64
		var model, detector sql.NullString
		var processing sql.NullFloat64
		err := rows.Scan(
			&rec.ID, &rec.Image1ID, &rec.Image2ID, &rec.SimilarityScore,
			&rec.Verified, &threshold, &model, &detector,
			&processing, &rec.CreatedAt,
			&rec.Image1Path, &rec.Image2Path,
		)
		if err != nil {
			return nil, err
		}
		if threshold.Valid {
			rec.ThresholdUsed = threshold.Float64
		}
		if model.Valid {
			rec.ModelUsed = model.String
		}
		if detector.Valid {
			rec.DetectorUsed = detector.String
		}
		if processing.Valid {
			v := processing.Float64
			rec.ProcessingTime = &v
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStorage) GetVerificationHistory(ctx context.Context, limit int) ([]*VerificationRecord, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Release(conn)
	return s.getVerificationHistoryWithQuerier(ctx, conn, limit)
}

// ClearAll deletes all rows from all four tables in dependency order.
// Rejected with ErrConfirmationRequired before any mutation unless confirm
// is set.
func (s *SQLiteStorage) ClearAll(ctx context.Context, confirm bool) error {
	if !confirm {
		return ErrConfirmationRequired
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return err
	}
	stx := tx.(*sqliteTx)

	tables := []string{"verification_history", "embeddings", "analyses", "users"}
	for _, table := range tables {
		if _, err := stx.tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// hashImageFile returns the hex SHA-256 of the file content, or nil when
// the file cannot be read. A missing hash is not an error; dedup just
// cannot group the row.
func hashImageFile(path string) *string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil
	}
	sum := hex.EncodeToString(h.Sum(nil))
	return &sum
}

// nullIfEmpty maps "" to SQL NULL for optional text columns
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Transaction implementations

func (t *sqliteTx) AddUser(ctx context.Context, name string, email *string) (int64, error) {
	return t.storage.addUserWithQuerier(ctx, t.querier(), name, email)
}

func (t *sqliteTx) GetUser(ctx context.Context, userID int64) (*User, error) {
	return t.storage.getUserWithQuerier(ctx, t.querier(), userID)
}

func (t *sqliteTx) ListUsers(ctx context.Context) ([]*User, error) {
	return t.storage.listUsersWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) SaveAnalysis(ctx context.Context, analysis *Analysis) (int64, error) {
	return t.storage.saveAnalysisWithQuerier(ctx, t.querier(), analysis)
}

func (t *sqliteTx) GetAnalysisByID(ctx context.Context, analysisID int64) (*Analysis, error) {
	return t.storage.getAnalysisByIDWithQuerier(ctx, t.querier(), analysisID)
}

func (t *sqliteTx) GetAnalyses(ctx context.Context, opts ListOptions) ([]*Analysis, error) {
	return t.storage.getAnalysesWithQuerier(ctx, t.querier(), opts)
}

func (t *sqliteTx) GetUserAnalyses(ctx context.Context, userID int64, limit int) ([]*Analysis, error) {
	return t.storage.getAnalysesWithQuerier(ctx, t.querier(), ListOptions{
		Filters:    []Filter{{Field: "user_id", Op: FilterOpEq, Value: userID}},
		OrderBy:    "created_at",
		Descending: true,
		Limit:      limit,
	})
}

func (t *sqliteTx) DeleteAnalysis(ctx context.Context, analysisID int64) error {
	return t.storage.deleteAnalysisWithQuerier(ctx, t.querier(), analysisID)
}

func (t *sqliteTx) SaveEmbedding(ctx context.Context, analysisID int64, vector []float32, faceLocation *types.FaceLocation) (int64, error) {
	return t.storage.saveEmbeddingWithQuerier(ctx, t.querier(), analysisID, vector, faceLocation)
}

func (t *sqliteTx) GetEmbeddingByAnalysisID(ctx context.Context, analysisID int64) ([]float32, error) {
	return t.storage.getEmbeddingByAnalysisIDWithQuerier(ctx, t.querier(), analysisID)
}

func (t *sqliteTx) SaveVerification(ctx context.Context, rec *VerificationRecord) (int64, error) {
	return t.storage.saveVerificationWithQuerier(ctx, t.querier(), rec)
}

func (t *sqliteTx) GetVerificationHistory(ctx context.Context, limit int) ([]*VerificationRecord, error) {
	return t.storage.getVerificationHistoryWithQuerier(ctx, t.querier(), limit)
}

func (t *sqliteTx) SearchVector(ctx context.Context, query []float32, opts SearchOptions) (*VectorScan, error) {
	return t.storage.searchVectorWithQuerier(ctx, t.querier(), query, opts)
}

// Batch and maintenance operations manage their own transaction
// boundaries and always run on the main storage.

func (t *sqliteTx) BatchImport(ctx context.Context, records []ImportRecord) (*ImportStats, error) {
	return t.storage.BatchImport(ctx, records)
}

func (t *sqliteTx) CleanupOrphans(ctx context.Context, dryRun bool) (*CleanupStats, error) {
	return t.storage.CleanupOrphans(ctx, dryRun)
}

func (t *sqliteTx) Export(ctx context.Context, path string, opts ExportOptions) (*ExportStats, error) {
	return t.storage.Export(ctx, path, opts)
}

func (t *sqliteTx) Stats(ctx context.Context, detailed bool) (*Stats, error) {
	return t.storage.Stats(ctx, detailed)
}

func (t *sqliteTx) Vacuum(ctx context.Context) error {
	return t.storage.Vacuum(ctx)
}

func (t *sqliteTx) ClearAll(ctx context.Context, confirm bool) error {
	return t.storage.ClearAll(ctx, confirm)
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying pool
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}
