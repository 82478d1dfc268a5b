package memory

import (
	"context"
	"os"
)

// Stats holds message log statistics.
type Stats struct {
	DBPath        string         `json:"db_path"`
	DBSizeBytes   int64          `json:"db_size_bytes"`
	TotalMessages int            `json:"total_messages"`
	Roles         []RoleStats    `json:"roles"`
	Outcomes      []OutcomeStats `json:"outcomes,omitempty"`
}

// RoleStats holds per-role message counts.
type RoleStats struct {
	Role  string `json:"role"`
	Count int    `json:"count"`
}

// OutcomeStats holds per-outcome step counts, read from message metadata.
type OutcomeStats struct {
	Outcome string `json:"outcome"`
	Count   int    `json:"count"`
}

// Stats returns counts over the message log.
func (s *Store) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath}

	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages`).Scan(&st.TotalMessages); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, COUNT(*) FROM messages GROUP BY role ORDER BY COUNT(*) DESC`)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var r RoleStats
		if err := rows.Scan(&r.Role, &r.Count); err != nil {
			return st, err
		}
		st.Roles = append(st.Roles, r)
	}
	if err := rows.Err(); err != nil {
		return st, err
	}

	orows, err := s.db.QueryContext(ctx, `
		SELECT json_extract(metadata, '$.outcome') AS outcome, COUNT(*)
		FROM messages
		WHERE json_valid(metadata) AND json_extract(metadata, '$.outcome') IS NOT NULL
		GROUP BY outcome ORDER BY COUNT(*) DESC`)
	if err != nil {
		return st, err
	}
	defer orows.Close()
	for orows.Next() {
		var o OutcomeStats
		if err := orows.Scan(&o.Outcome, &o.Count); err != nil {
			return st, err
		}
		st.Outcomes = append(st.Outcomes, o)
	}
	return st, orows.Err()
}
