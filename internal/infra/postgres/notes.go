package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// Note is a formatted medical note produced by the agent service.
type Note struct {
	ID           string    `db:"id"`
	UserID       string    `db:"user_id"`
	SessionID    string    `db:"session_id"`
	TranscriptID string    `db:"transcript_id"`
	JobID        string    `db:"job_id"`
	Sections     []byte    `db:"sections"`
	Model        string    `db:"model"`
	CreatedAt    time.Time `db:"created_at"`
}

// SetSections serializes the structured note body into the JSONB
// column.
func (n *Note) SetSections(sections map[string]any) error {
	data, err := sonic.Marshal(sections)
	if err != nil {
		return fmt.Errorf("failed to marshal note sections: %w", err)
	}
	n.Sections = data
	return nil
}

// GetSections deserializes the JSONB column.
func (n *Note) GetSections() (map[string]any, error) {
	out := make(map[string]any)
	if len(n.Sections) == 0 {
		return out, nil
	}
	if err := sonic.Unmarshal(n.Sections, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal note sections: %w", err)
	}
	return out, nil
}

// NoteRepo stores and retrieves formatted notes.
type NoteRepo struct {
	db *DB
}

// NewNoteRepo creates a note repository.
func NewNoteRepo(db *DB) *NoteRepo {
	return &NoteRepo{db: db}
}

// Insert stores a note.
func (r *NoteRepo) Insert(ctx context.Context, n *Note) error {
	const q = `
		INSERT INTO notes (id, user_id, session_id, transcript_id, job_id, sections, model, created_at)
		VALUES (:id, :user_id, :session_id, :transcript_id, :job_id, :sections, :model, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, q, n); err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

// Get loads a note by ID.
func (r *NoteRepo) Get(ctx context.Context, id string) (*Note, error) {
	var n Note
	err := r.db.GetContext(ctx, &n, `SELECT * FROM notes WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	return &n, nil
}

// ByJob returns the note produced by a job, if any.
func (r *NoteRepo) ByJob(ctx context.Context, jobID string) (*Note, error) {
	var n Note
	err := r.db.GetContext(ctx, &n, `SELECT * FROM notes WHERE job_id = $1`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note by job: %w", err)
	}
	return &n, nil
}
