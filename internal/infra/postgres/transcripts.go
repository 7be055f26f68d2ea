package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNoRows is returned when a lookup matches nothing.
var ErrNoRows = errors.New("record not found")

// Transcript is a stored transcription result.
type Transcript struct {
	ID           string    `db:"id"`
	SessionID    string    `db:"session_id"`
	UserID       string    `db:"user_id"`
	Text         string    `db:"text"`
	DurationSecs float64   `db:"duration_secs"`
	Language     string    `db:"language"`
	CreatedAt    time.Time `db:"created_at"`
}

// TranscriptRepo stores and retrieves transcripts.
type TranscriptRepo struct {
	db *DB
}

// NewTranscriptRepo creates a transcript repository.
func NewTranscriptRepo(db *DB) *TranscriptRepo {
	return &TranscriptRepo{db: db}
}

// Insert stores a transcript.
func (r *TranscriptRepo) Insert(ctx context.Context, t *Transcript) error {
	const q = `
		INSERT INTO transcripts (id, session_id, user_id, text, duration_secs, language, created_at)
		VALUES (:id, :session_id, :user_id, :text, :duration_secs, :language, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, q, t); err != nil {
		return fmt.Errorf("failed to insert transcript: %w", err)
	}
	return nil
}

// Get loads a transcript by ID.
func (r *TranscriptRepo) Get(ctx context.Context, id string) (*Transcript, error) {
	var t Transcript
	err := r.db.GetContext(ctx, &t, `SELECT * FROM transcripts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transcript: %w", err)
	}
	return &t, nil
}

// BySession returns all transcripts for a recording session, oldest
// first.
func (r *TranscriptRepo) BySession(ctx context.Context, sessionID string) ([]*Transcript, error) {
	var out []*Transcript
	err := r.db.SelectContext(ctx, &out,
		`SELECT * FROM transcripts WHERE session_id = $1 ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}
	return out, nil
}
