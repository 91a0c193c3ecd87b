package history

import (
	"context"
	"database/sql"
	"time"
)

const selectColumns = `
	SELECT id, timestamp, op, source, target, outcome, error_kind, detail, bytes, duration_ms
	FROM operations
`

// Recent returns the N most recent operations
func (d *DB) Recent(ctx context.Context, limit int) ([]Record, error) {
	return d.query(ctx, selectColumns+`
	ORDER BY timestamp DESC, id DESC
	LIMIT ?
	`, limit)
}

// ByOp returns the N most recent operations of one kind
func (d *DB) ByOp(ctx context.Context, op string, limit int) ([]Record, error) {
	return d.query(ctx, selectColumns+`
	WHERE op = ?
	ORDER BY timestamp DESC, id DESC
	LIMIT ?
	`, op, limit)
}

// Failed returns the N most recent failed operations
func (d *DB) Failed(ctx context.Context, limit int) ([]Record, error) {
	return d.query(ctx, selectColumns+`
	WHERE outcome = ?
	ORDER BY timestamp DESC, id DESC
	LIMIT ?
	`, OutcomeFailure, limit)
}

// ByErrorKind returns the N most recent failures of one error kind
func (d *DB) ByErrorKind(ctx context.Context, kind string, limit int) ([]Record, error) {
	return d.query(ctx, selectColumns+`
	WHERE error_kind = ?
	ORDER BY timestamp DESC, id DESC
	LIMIT ?
	`, kind, limit)
}

// Between returns operations within a time range
func (d *DB) Between(ctx context.Context, start, end time.Time) ([]Record, error) {
	return d.query(ctx, selectColumns+`
	WHERE timestamp BETWEEN ? AND ?
	ORDER BY timestamp DESC, id DESC
	`, start.UTC(), end.UTC())
}

// Stats holds aggregated statistics
type Stats struct {
	Total       int            `json:"total"`
	Succeeded   int            `json:"succeeded"`
	Failed      int            `json:"failed"`
	DryRuns     int            `json:"dry_runs"`
	Bytes       int64          `json:"bytes"`
	ByOp        map[string]int `json:"by_op"`
	ByErrorKind map[string]int `json:"by_error_kind"`
	StartDate   time.Time      `json:"start_date"`
	EndDate     time.Time      `json:"end_date"`
}

// Stats returns aggregated statistics for the last days
func (d *DB) Stats(ctx context.Context, days int) (*Stats, error) {
	now := d.now()
	since := now.AddDate(0, 0, -days)

	stats := &Stats{StartDate: since, EndDate: now}

	err := d.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(CASE WHEN outcome = ? THEN 1 END),
			COUNT(CASE WHEN outcome = ? THEN 1 END),
			COUNT(CASE WHEN outcome = ? THEN 1 END),
			COALESCE(SUM(CASE WHEN outcome = ? THEN bytes END), 0)
		FROM operations
		WHERE timestamp >= ?
	`, OutcomeSuccess, OutcomeFailure, OutcomeDryRun, OutcomeSuccess, since.UTC()).
		Scan(&stats.Total, &stats.Succeeded, &stats.Failed, &stats.DryRuns, &stats.Bytes)
	if err != nil {
		return nil, err
	}

	stats.ByOp, err = d.countBy(ctx, "op", since)
	if err != nil {
		return nil, err
	}
	stats.ByErrorKind, err = d.countBy(ctx, "error_kind", since)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// countBy groups rows since a point in time by a fixed column name
func (d *DB) countBy(ctx context.Context, column string, since time.Time) (map[string]int, error) {
	rows, err := d.db.QueryContext(ctx, `
	SELECT `+column+`, COUNT(*)
	FROM operations
	WHERE timestamp >= ? AND `+column+` IS NOT NULL AND `+column+` != ''
	GROUP BY `+column, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		counts[key] = count
	}
	return counts, rows.Err()
}

// DeleteOlderThan removes records older than the given number of days
func (d *DB) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := d.now().AddDate(0, 0, -days)

	result, err := d.db.ExecContext(ctx, `DELETE FROM operations WHERE timestamp < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// query is a helper function to execute queries and scan results
func (d *DB) query(ctx context.Context, query string, args ...interface{}) ([]Record, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var source, errorKind, detail sql.NullString

		err := rows.Scan(
			&r.ID, &r.Timestamp, &r.Op, &source, &r.Target,
			&r.Outcome, &errorKind, &detail, &r.Bytes, &r.DurationMS,
		)
		if err != nil {
			return nil, err
		}
		r.Source = source.String
		r.ErrorKind = errorKind.String
		r.Detail = detail.String

		records = append(records, r)
	}
	return records, rows.Err()
}
