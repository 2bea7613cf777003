package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// CleanupOrphans sweeps the database for analyses whose image file no
// longer exists, duplicate analyses sharing an image_hash (newest kept),
// and embeddings whose analysis is gone. The sweep runs in one
// transaction; with dryRun set it only counts. A live sweep that removed
// rows is followed by VACUUM.
func (s *SQLiteStorage) CleanupOrphans(ctx context.Context, dryRun bool) (*CleanupStats, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Release(conn)

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	stats, err := s.sweepWithTx(ctx, tx, dryRun)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	if !dryRun && stats.Removed() > 0 {
		if _, err := conn.ExecContext(ctx, "VACUUM"); err != nil {
			return stats, fmt.Errorf("cleanup succeeded but vacuum failed: %w", err)
		}
		stats.Vacuumed = true
	}
	return stats, nil
}

func (s *SQLiteStorage) sweepWithTx(ctx context.Context, tx *sql.Tx, dryRun bool) (*CleanupStats, error) {
	stats := &CleanupStats{DryRun: dryRun}

	// Analyses referencing images that no longer exist on disk
	missing, err := s.findMissingImageAnalyses(ctx, tx)
	if err != nil {
		return nil, err
	}
	stats.MissingImageAnalyses = len(missing)
	cascaded := 0
	if !dryRun && len(missing) > 0 {
		n, err := deleteAnalysesByID(ctx, tx, missing)
		if err != nil {
			return nil, err
		}
		cascaded += n
	}

	// Duplicate analyses per image_hash, keeping the newest row
	const dupSelect = `
		SELECT id FROM analyses
		WHERE image_hash IS NOT NULL
		  AND id NOT IN (
			SELECT MAX(id) FROM analyses
			WHERE image_hash IS NOT NULL
			GROUP BY image_hash
		  )
	`
	dups, err := collectIDs(ctx, tx, dupSelect)
	if err != nil {
		return nil, err
	}
	stats.DuplicateAnalyses = len(dups)
	if !dryRun && len(dups) > 0 {
		n, err := deleteAnalysesByID(ctx, tx, dups)
		if err != nil {
			return nil, err
		}
		cascaded += n
	}

	// Embeddings without an owning analysis. Runs last so embeddings
	// orphaned by the deletes above are caught in the same sweep.
	const orphanSelect = `
		SELECT id FROM embeddings
		WHERE analysis_id NOT IN (SELECT id FROM analyses)
	`
	if dryRun {
		// A dry run still has to count what the deletes above would
		// have orphaned
		orphans, err := collectIDs(ctx, tx, `
			SELECT e.id FROM embeddings e
			WHERE e.analysis_id NOT IN (SELECT id FROM analyses)
			   OR e.analysis_id IN (`+placeholdersFor(append(missing, dups...))+`)
		`, int64Args(append(missing, dups...))...)
		if err != nil {
			return nil, err
		}
		stats.OrphanedEmbeddings = len(orphans)
		return stats, nil
	}

	result, err := tx.ExecContext(ctx,
		"DELETE FROM embeddings WHERE id IN ("+orphanSelect+")")
	if err != nil {
		return nil, err
	}
	removed, _ := result.RowsAffected()
	// Embeddings cascaded away with their analyses count as orphans too,
	// keeping live stats equal to what the dry run reported
	stats.OrphanedEmbeddings = cascaded + int(removed)
	return stats, nil
}

// findMissingImageAnalyses stats every image_path and returns the ids
// whose file is gone
func (s *SQLiteStorage) findMissingImageAnalyses(ctx context.Context, q querier) ([]int64, error) {
	rows, err := q.QueryContext(ctx, "SELECT id, image_path FROM analyses")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	missing := make([]int64, 0)
	for rows.Next() {
		var id int64
		var path string
		if err := rows.Scan(&id, &path); err != nil {
			return nil, err
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			missing = append(missing, id)
		}
	}
	return missing, rows.Err()
}

func collectIDs(ctx context.Context, q querier, query string, args ...interface{}) ([]int64, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// deleteAnalysesByID removes the analyses along with their embeddings and
// verification rows, reporting how many embeddings went with them
func deleteAnalysesByID(ctx context.Context, q querier, ids []int64) (int, error) {
	in := placeholdersFor(ids)
	result, err := q.ExecContext(ctx,
		"DELETE FROM embeddings WHERE analysis_id IN ("+in+")", int64Args(ids)...)
	if err != nil {
		return 0, err
	}
	embeddings, _ := result.RowsAffected()
	// Verification rows referencing a removed analysis would otherwise
	// trip the foreign keys
	if _, err := q.ExecContext(ctx,
		"DELETE FROM verification_history WHERE image1_id IN ("+in+") OR image2_id IN ("+in+")",
		append(int64Args(ids), int64Args(ids)...)...); err != nil {
		return 0, err
	}
	if _, err := q.ExecContext(ctx,
		"DELETE FROM analyses WHERE id IN ("+in+")", int64Args(ids)...); err != nil {
		return 0, err
	}
	return int(embeddings), nil
}

// placeholdersFor builds a "?, ?, ..." list. An empty slice yields a
// clause that matches nothing.
func placeholdersFor(ids []int64) string {
	if len(ids) == 0 {
		return "NULL"
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
}

func int64Args(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// Vacuum rebuilds the database file, reclaiming free pages
func (s *SQLiteStorage) Vacuum(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Release(conn)
	_, err = conn.ExecContext(ctx, "VACUUM")
	return err
}

// Stats summarizes the corpus. Basic mode is row counts plus file size;
// detailed mode adds per-month, per-model and confidence histograms,
// computed concurrently on separate pooled connections.
func (s *SQLiteStorage) Stats(ctx context.Context, detailed bool) (*Stats, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{}
	counts := map[string]*int{
		"users":                &stats.TotalUsers,
		"analyses":             &stats.TotalAnalyses,
		"embeddings":           &stats.TotalEmbeddings,
		"verification_history": &stats.TotalVerifications,
	}
	for table, dest := range counts {
		if err := conn.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM "+table).Scan(dest); err != nil {
			s.pool.Release(conn)
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
	}

	cutoff := time.Now().AddDate(0, 0, -7)
	if err := conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM analyses WHERE created_at >= ?", cutoff).
		Scan(&stats.RecentAnalyses7Days); err != nil {
		s.pool.Release(conn)
		return nil, err
	}
	s.pool.Release(conn)

	if info, err := os.Stat(s.dbPath); err == nil {
		stats.DatabaseSizeMB = float64(info.Size()) / (1024 * 1024)
	}

	if !detailed {
		return stats, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		perMonth, err := s.analysesPerMonth(gctx)
		if err != nil {
			return err
		}
		stats.AnalysesPerMonth = perMonth
		return nil
	})
	g.Go(func() error {
		usage, err := s.modelUsage(gctx)
		if err != nil {
			return err
		}
		stats.ModelUsage = usage
		return nil
	})
	g.Go(func() error {
		buckets, err := s.confidenceBuckets(gctx)
		if err != nil {
			return err
		}
		stats.ConfidenceBuckets = buckets
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *SQLiteStorage) analysesPerMonth(ctx context.Context) (map[string]int, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Release(conn)

	rows, err := conn.QueryContext(ctx, `
		SELECT strftime('%Y-%m', created_at) AS month, COUNT(*)
		FROM analyses
		GROUP BY month
		ORDER BY month
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	perMonth := make(map[string]int)
	for rows.Next() {
		var month sql.NullString
		var count int
		if err := rows.Scan(&month, &count); err != nil {
			return nil, err
		}
		if month.Valid {
			perMonth[month.String] = count
		}
	}
	return perMonth, rows.Err()
}

func (s *SQLiteStorage) modelUsage(ctx context.Context) (map[string]int, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Release(conn)

	rows, err := conn.QueryContext(ctx, `
		SELECT model_used, COUNT(*)
		FROM analyses
		WHERE model_used IS NOT NULL
		GROUP BY model_used
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	usage := make(map[string]int)
	for rows.Next() {
		var model string
		var count int
		if err := rows.Scan(&model, &count); err != nil {
			return nil, err
		}
		usage[model] = count
	}
	return usage, rows.Err()
}

func (s *SQLiteStorage) confidenceBuckets(ctx context.Context) (*ConfidenceBuckets, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Release(conn)

	var buckets ConfidenceBuckets
	err = conn.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN confidence_score >= 0.9 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN confidence_score >= 0.7 AND confidence_score < 0.9 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN confidence_score < 0.7 THEN 1 ELSE 0 END), 0)
		FROM analyses
		WHERE confidence_score IS NOT NULL
	`).Scan(&buckets.High, &buckets.Medium, &buckets.Low)
	if err != nil {
		return nil, err
	}
	return &buckets, nil
}
