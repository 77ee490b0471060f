package locus

import (
	"context"
	"database/sql"
	"encoding/json"
	_ "embed"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"locuscore/internal/clock"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteClient is the durable local fallback backend. It keeps the
// append-and-search contract of the production store on a single SQLite
// file: no updates, no deletes, search ordered newest first.
type SQLiteClient struct {
	db  *sql.DB
	clk clock.Clock
}

// OpenSQLite creates or opens the event log at the given path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func OpenSQLite(path string, clk clock.Clock) (*SQLiteClient, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect event log: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if clk == nil {
		clk = clock.System()
	}
	return &SQLiteClient{db: db, clk: clk}, nil
}

// Close closes the underlying database.
func (c *SQLiteClient) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Append implements Client. Malformed payloads are soft failures; database
// errors wrap ErrStoreUnavailable.
func (c *SQLiteClient) Append(ctx context.Context, req AppendRequest) (AppendResult, error) {
	payloadJSON, err := json.Marshal(req.Payload)
	if err != nil {
		return AppendResult{
			Status:       "rejected",
			ErrorMessage: fmt.Sprintf("payload not serializable: %v", err),
		}, nil
	}

	id := "evt-" + NewID()
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO events
		(id, kind, payload, context_id, related_to, extends, reinforces, contradicts, timestamp, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id,
		req.Kind,
		string(payloadJSON),
		req.ContextID,
		marshalLinks(req.RelatedTo),
		marshalLinks(req.Extends),
		marshalLinks(req.Reinforces),
		marshalLinks(req.Contradicts),
		c.clk.Now().Format(time.RFC3339Nano),
		req.Source,
	)
	if err != nil {
		return AppendResult{}, &StoreError{Op: "append", Err: fmt.Errorf("%w: %v", ErrStoreUnavailable, err)}
	}

	return AppendResult{EventID: id, Status: StatusStored}, nil
}

// Search implements Client. Context-id filters are exact; the keyword match
// is a LIKE scan over kind, context id, and payload text, applied only when
// no context ids are given. ContextTypes tag filtering runs locally after
// the scan, sharing the memory backend's matcher.
func (c *SQLiteClient) Search(ctx context.Context, req SearchRequest) ([]Event, error) {
	var (
		where []string
		args  []any
	)

	if len(req.ContextIDs) > 0 {
		placeholders := strings.Repeat("?,", len(req.ContextIDs))
		where = append(where, fmt.Sprintf("context_id IN (%s)", placeholders[:len(placeholders)-1]))
		for _, id := range req.ContextIDs {
			args = append(args, id)
		}
	} else if tokens := queryTokens(req.Query); len(tokens) > 0 {
		var likes []string
		for _, token := range tokens {
			likes = append(likes, "(lower(kind) LIKE ? OR lower(context_id) LIKE ? OR lower(payload) LIKE ?)")
			pattern := "%" + token + "%"
			args = append(args, pattern, pattern, pattern)
		}
		where = append(where, "("+strings.Join(likes, " OR ")+")")
	}

	if len(req.ContextTypes) > 0 {
		placeholders := make([]string, 0, len(req.ContextTypes))
		for kind := range req.ContextTypes {
			placeholders = append(placeholders, "?")
			args = append(args, kind)
		}
		where = append(where, fmt.Sprintf("kind IN (%s)", strings.Join(placeholders, ",")))
	}

	query := "SELECT id, kind, payload, context_id, related_to, extends, reinforces, contradicts, timestamp, source FROM events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, rowid DESC"
	if req.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, req.Limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &StoreError{Op: "search", Err: fmt.Errorf("%w: %v", ErrStoreUnavailable, err)}
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, &StoreError{Op: "search", Err: err}
		}
		if !matchContextTypes(ev, req.ContextTypes) {
			continue
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "search", Err: fmt.Errorf("%w: %v", ErrStoreUnavailable, err)}
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var (
		ev                                          Event
		payload, related, extends, reinf, contra, ts string
	)
	if err := rows.Scan(&ev.ID, &ev.Kind, &payload, &ev.ContextID, &related, &extends, &reinf, &contra, &ts, &ev.Source); err != nil {
		return Event{}, fmt.Errorf("scan event: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
		return Event{}, fmt.Errorf("decode payload of %s: %w", ev.ID, err)
	}
	ev.RelatedTo = unmarshalLinks(related)
	ev.Extends = unmarshalLinks(extends)
	ev.Reinforces = unmarshalLinks(reinf)
	ev.Contradicts = unmarshalLinks(contra)
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return Event{}, fmt.Errorf("decode timestamp of %s: %w", ev.ID, err)
	}
	ev.Timestamp = parsed
	return ev, nil
}

func marshalLinks(links []string) string {
	if len(links) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(links)
	return string(b)
}

func unmarshalLinks(s string) []string {
	var links []string
	if err := json.Unmarshal([]byte(s), &links); err != nil || len(links) == 0 {
		return nil
	}
	return links
}

func queryTokens(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		// "field:value" tokens match on the value side.
		if _, val, ok := strings.Cut(f, ":"); ok && val != "" {
			f = val
		}
		tokens = append(tokens, f)
	}
	return tokens
}
