package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// batchCommitInterval is how many imported records share one transaction
const batchCommitInterval = 100

// maxImportErrorMessages caps how many per-record failures are reported verbatim
const maxImportErrorMessages = 10

// BatchImport inserts many analysis+embedding pairs in one pass. Records
// whose image_path is already stored are skipped, a failing record is
// counted and reported without aborting the rest, and work is committed
// every batchCommitInterval records so a crash loses at most one chunk.
func (s *SQLiteStorage) BatchImport(ctx context.Context, records []ImportRecord) (*ImportStats, error) {
	stats := &ImportStats{Total: len(records)}
	if len(records) == 0 {
		return stats, nil
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Release(conn)

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	pending := 0

	recordError := func(rec *ImportRecord, err error) {
		stats.Errors++
		if len(stats.ErrorMessages) < maxImportErrorMessages {
			stats.ErrorMessages = append(stats.ErrorMessages,
				fmt.Sprintf("%s: %v", rec.ImagePath, err))
		}
	}

	for i := range records {
		rec := &records[i]

		exists, err := s.imagePathExists(ctx, tx, rec.ImagePath)
		if err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("failed to check existing import: %w", err)
		}
		if exists {
			stats.Skipped++
			continue
		}

		// Each record runs under a savepoint so a half-inserted record
		// (user or analysis without its embedding) rolls back without
		// losing the rest of the chunk
		if _, err := tx.ExecContext(ctx, "SAVEPOINT import_record"); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("failed to create import savepoint: %w", err)
		}
		if err := s.importRecord(ctx, tx, rec); err != nil {
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO import_record"); rbErr != nil {
				_ = tx.Rollback()
				return nil, fmt.Errorf("failed to roll back import record: %w", rbErr)
			}
			if _, relErr := tx.ExecContext(ctx, "RELEASE import_record"); relErr != nil {
				_ = tx.Rollback()
				return nil, fmt.Errorf("failed to release import savepoint: %w", relErr)
			}
			recordError(rec, err)
			continue
		}
		if _, err := tx.ExecContext(ctx, "RELEASE import_record"); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("failed to release import savepoint: %w", err)
		}
		stats.Imported++
		pending++

		if pending >= batchCommitInterval {
			if err := tx.Commit(); err != nil {
				return nil, fmt.Errorf("failed to commit import chunk: %w", err)
			}
			tx, err = conn.BeginTx(ctx, nil)
			if err != nil {
				return nil, err
			}
			pending = 0
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit import: %w", err)
	}
	return stats, nil
}

// imagePathExists reports whether an analysis for this path is already stored
func (s *SQLiteStorage) imagePathExists(ctx context.Context, q querier, imagePath string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx,
		"SELECT 1 FROM analyses WHERE image_path = ? LIMIT 1", imagePath).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// importRecord inserts one record's user, analysis and embedding
func (s *SQLiteStorage) importRecord(ctx context.Context, q querier, rec *ImportRecord) error {
	var userID *int64
	if rec.UserName != "" {
		id, err := s.addUserWithQuerier(ctx, q, rec.UserName, rec.UserEmail)
		if err != nil {
			return err
		}
		userID = &id
	}

	analysis := &Analysis{
		UserID:          userID,
		ImagePath:       rec.ImagePath,
		AnalysisType:    AnalysisTypeBatchImport,
		ResultData:      rec.ResultData,
		ConfidenceScore: rec.ConfidenceScore,
		ModelUsed:       rec.ModelUsed,
		DetectorUsed:    rec.DetectorUsed,
	}
	analysisID, err := s.saveAnalysisWithQuerier(ctx, q, analysis)
	if err != nil {
		return err
	}

	if len(rec.Vector) > 0 {
		if _, err := s.saveEmbeddingWithQuerier(ctx, q, analysisID, rec.Vector, rec.FaceLocation); err != nil {
			return err
		}
	}
	return nil
}
