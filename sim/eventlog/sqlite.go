package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteSink persists records to a SQLite database, one row per record,
// keyed by run id and sequence number.
type SQLiteSink struct {
	db    *sql.DB
	runID string
}

// NewSQLiteSink opens or creates the database at path and ensures the schema.
func NewSQLiteSink(path, runID string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening event db: %w", err)
	}
	schema := `CREATE TABLE IF NOT EXISTS event_log (
        run_id TEXT NOT NULL,
        seq INTEGER NOT NULL,
        time INTEGER NOT NULL,
        kind TEXT NOT NULL,
        record TEXT NOT NULL,
        PRIMARY KEY (run_id, seq)
    );`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, fmt.Errorf("creating event db schema: %w", err)
	}
	return &SQLiteSink{db: db, runID: runID}, nil
}

// Append writes the record.
func (s *SQLiteSink) Append(ctx context.Context, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO event_log (run_id, seq, time, kind, record) VALUES (?, ?, ?, ?, ?)`,
		s.runID, int64(rec.Seq), rec.Time, rec.Kind.String(), string(b))
	return err
}

// Query filters stored records of this run.
type Query struct {
	// Kinds restricts the result to these kinds when not empty.
	Kinds []Kind
	// From and To bound the record time, inclusive. To <= 0 means unbounded.
	From, To int64
}

// Query returns the matching records of this run in sequence order.
func (s *SQLiteSink) Query(ctx context.Context, q Query) ([]Record, error) {
	query := `SELECT record FROM event_log WHERE run_id = ? AND time >= ?`
	args := []any{s.runID, q.From}
	if q.To > 0 {
		query += ` AND time <= ?`
		args = append(args, q.To)
	}
	if len(q.Kinds) > 0 {
		query += ` AND kind IN (?` + strings.Repeat(",?", len(q.Kinds)-1) + `)`
		for _, k := range q.Kinds {
			args = append(args, k.String())
		}
	}
	query += ` ORDER BY seq`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r Record
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (s *SQLiteSink) Close() error { return s.db.Close() }
