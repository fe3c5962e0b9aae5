package store

import (
	"context"
	"fmt"
)

// LogEntry is one row of the log table from spec §4.B.
type LogEntry struct {
	Pkg     string
	Version string
	Date    int64
	Msg     string
}

// LogEvent appends an entry to the event log. date is normally
// collab.Clock.Now().Unix(), injected by the caller rather than read here, so
// tests can fix the clock (spec §9).
func LogEvent(ctx context.Context, q querier, pkg, version string, date int64, msg string) error {
	_, err := q.ExecContext(ctx, `INSERT INTO log (pkg, version, date, msg) VALUES (?,?,?,?)`, pkg, version, date, msg)
	if err != nil {
		return fmt.Errorf("store: log event for %q: %w", pkg, err)
	}
	return nil
}

// EventsForPackage returns the log rows for pkg, oldest first.
func EventsForPackage(ctx context.Context, q querier, pkg string) ([]LogEntry, error) {
	rows, err := q.QueryContext(ctx, `SELECT pkg, version, date, msg FROM log WHERE pkg = ? ORDER BY date`, pkg)
	if err != nil {
		return nil, fmt.Errorf("store: query log for %q: %w", pkg, err)
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.Pkg, &e.Version, &e.Date, &e.Msg); err != nil {
			return nil, fmt.Errorf("store: scan log entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
