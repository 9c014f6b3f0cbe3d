package storage

import (
	"fmt"
	"time"
)

// DailyStats represents statistics for a single day
type DailyStats struct {
	Date       string `json:"date"`
	Captures   int    `json:"captures"`
	Promotes   int    `json:"promotes"`
	Copies     int    `json:"copies"`
	Suppressed int    `json:"suppressed"`
}

// KindStats represents captures grouped by item kind
type KindStats struct {
	Kind       string `json:"kind"`
	Captures   int    `json:"captures"`
	TotalBytes int64  `json:"totalBytes"`
}

// OverallStats represents overall statistics
type OverallStats struct {
	TotalEvents   int   `json:"totalEvents"`
	Captures      int   `json:"captures"`
	Promotes      int   `json:"promotes"`
	Copies        int   `json:"copies"`
	Suppressed    int   `json:"suppressed"`
	DistinctItems int   `json:"distinctItems"`
	CapturedBytes int64 `json:"capturedBytes"`
}

const countByType = `
	SUM(CASE WHEN event_type = 'capture' THEN 1 ELSE 0 END),
	SUM(CASE WHEN event_type = 'promote' THEN 1 ELSE 0 END),
	SUM(CASE WHEN event_type = 'copy' THEN 1 ELSE 0 END),
	SUM(CASE WHEN event_type = 'suppress' THEN 1 ELSE 0 END)
`

// GetDailyStats retrieves statistics grouped by date for the last N days
func (db *DB) GetDailyStats(days int) ([]DailyStats, error) {
	query := `
		SELECT DATE(timestamp) as date,` + countByType + `
		FROM events
		WHERE timestamp >= datetime('now', '-' || ? || ' days')
		GROUP BY DATE(timestamp)
		ORDER BY date DESC
	`

	rows, err := db.conn.Query(query, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	defer rows.Close()

	var stats []DailyStats
	for rows.Next() {
		var s DailyStats
		if err := rows.Scan(&s.Date, &s.Captures, &s.Promotes, &s.Copies, &s.Suppressed); err != nil {
			return nil, fmt.Errorf("failed to scan daily stats: %w", err)
		}
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

// GetKindStats retrieves capture counts grouped by kind for the last N days
func (db *DB) GetKindStats(days int) ([]KindStats, error) {
	query := `
		SELECT kind, COUNT(*), COALESCE(SUM(size_bytes), 0)
		FROM events
		WHERE event_type = 'capture'
		  AND timestamp >= datetime('now', '-' || ? || ' days')
		GROUP BY kind
		ORDER BY COUNT(*) DESC
	`

	rows, err := db.conn.Query(query, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query kind stats: %w", err)
	}
	defer rows.Close()

	var stats []KindStats
	for rows.Next() {
		var s KindStats
		if err := rows.Scan(&s.Kind, &s.Captures, &s.TotalBytes); err != nil {
			return nil, fmt.Errorf("failed to scan kind stats: %w", err)
		}
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

// GetOverallStats retrieves overall statistics for the last N days
func (db *DB) GetOverallStats(days int) (*OverallStats, error) {
	query := `
		SELECT COUNT(*),` + coalesced() + `,
			COUNT(DISTINCT content_hash),
			COALESCE(SUM(CASE WHEN event_type = 'capture' THEN size_bytes ELSE 0 END), 0)
		FROM events
		WHERE timestamp >= datetime('now', '-' || ? || ' days')
	`
	return db.scanOverall(query, days)
}

// GetStatsForDateRange retrieves overall stats for a custom date range
func (db *DB) GetStatsForDateRange(startTime, endTime time.Time) (*OverallStats, error) {
	query := `
		SELECT COUNT(*),` + coalesced() + `,
			COUNT(DISTINCT content_hash),
			COALESCE(SUM(CASE WHEN event_type = 'capture' THEN size_bytes ELSE 0 END), 0)
		FROM events
		WHERE timestamp >= ? AND timestamp <= ?
	`
	return db.scanOverall(query, startTime.UTC().Format(timeLayout), endTime.UTC().Format(timeLayout))
}

func (db *DB) scanOverall(query string, args ...any) (*OverallStats, error) {
	var stats OverallStats
	err := db.conn.QueryRow(query, args...).Scan(
		&stats.TotalEvents,
		&stats.Captures,
		&stats.Promotes,
		&stats.Copies,
		&stats.Suppressed,
		&stats.DistinctItems,
		&stats.CapturedBytes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query overall stats: %w", err)
	}
	return &stats, nil
}

// SUM over an empty set is NULL; wrap each per-type count.
func coalesced() string {
	return `
	COALESCE(SUM(CASE WHEN event_type = 'capture' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN event_type = 'promote' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN event_type = 'copy' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN event_type = 'suppress' THEN 1 ELSE 0 END), 0)`
}
