// Package runlog keeps an audit trail of completed agent exchanges. It is
// an operator record only; transcripts are never read back from it.
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"merchantama/internal/db"
)

type Mode string

const (
	ModeSync   Mode = "sync"
	ModeStream Mode = "stream"
)

type Entry struct {
	ID          string        `json:"id"`
	MerchantID  int64         `json:"merchantId"`
	Mode        Mode          `json:"mode"`
	PromptLen   int           `json:"promptLen"`
	FinalOutput string        `json:"finalOutput,omitempty"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"startedAt"`
	Duration    time.Duration `json:"-"`
	DurationMS  int64         `json:"durationMs"`
}

type Store struct {
	conn *sql.DB
}

func NewStore(database *db.DB) *Store {
	return &Store{conn: database.Conn()}
}

func (s *Store) Record(ctx context.Context, e Entry) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO runs (id, merchant_id, mode, prompt_len, final_output, error, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.MerchantID, string(e.Mode), e.PromptLen, e.FinalOutput, e.Error,
		e.StartedAt.UTC(), e.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", e.ID, err)
	}
	return nil
}

// Recent returns the merchant's latest runs, newest first.
func (s *Store) Recent(ctx context.Context, merchantID int64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, merchant_id, mode, prompt_len, final_output, error, started_at, duration_ms
		FROM runs
		WHERE merchant_id = ?
		ORDER BY started_at DESC
		LIMIT ?`, merchantID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e        Entry
			mode     string
			duration int64
		)
		if err := rows.Scan(&e.ID, &e.MerchantID, &mode, &e.PromptLen, &e.FinalOutput, &e.Error, &e.StartedAt, &duration); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		e.Mode = Mode(mode)
		e.Duration = time.Duration(duration) * time.Millisecond
		e.DurationMS = duration
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
