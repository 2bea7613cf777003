package storage

import (
	"context"
	"sort"
	"strings"
)

// searchVectorWithQuerier scans every stored embedding, scoring each
// against the query vector. Rows whose BLOB cannot be decoded are
// counted and skipped rather than failing the scan. Candidates at or
// above the threshold come back sorted by similarity, best first; the
// caller applies any result limit after hydration.
func (s *SQLiteStorage) searchVectorWithQuerier(ctx context.Context, q querier, query []float32, opts SearchOptions) (*VectorScan, error) {
	sql := `
		SELECT e.id, e.analysis_id, e.embedding_data
		FROM embeddings e
		INNER JOIN analyses a ON e.analysis_id = a.id
	`
	conds := make([]string, 0, 2)
	args := make([]interface{}, 0, 2)
	if opts.UserID != nil {
		conds = append(conds, "a.user_id = ?")
		args = append(args, *opts.UserID)
	}
	if opts.MinConfidence != nil {
		conds = append(conds, "a.confidence_score >= ?")
		args = append(args, *opts.MinConfidence)
	}
	if len(conds) > 0 {
		sql += " WHERE " + strings.Join(conds, " AND ")
	}

	rows, err := q.QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	scan := &VectorScan{Candidates: make([]VectorCandidate, 0)}
	for rows.Next() {
		var embeddingID, analysisID int64
		var blob []byte
		if err := rows.Scan(&embeddingID, &analysisID, &blob); err != nil {
			return nil, err
		}
		scan.RowsScanned++

		stored, err := deserializeVector(blob)
		if err != nil {
			scan.RowsSkipped++
			continue
		}

		similarity := cosineSimilarity(query, stored)
		if similarity >= opts.Threshold {
			scan.Candidates = append(scan.Candidates, VectorCandidate{
				EmbeddingID: embeddingID,
				AnalysisID:  analysisID,
				Similarity:  similarity,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(scan.Candidates, func(i, j int) bool {
		return scan.Candidates[i].Similarity > scan.Candidates[j].Similarity
	})
	return scan, nil
}

// SearchVector runs a full similarity scan over all stored embeddings
func (s *SQLiteStorage) SearchVector(ctx context.Context, query []float32, opts SearchOptions) (*VectorScan, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Release(conn)
	return s.searchVectorWithQuerier(ctx, conn, query, opts)
}
