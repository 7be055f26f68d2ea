package collab

import (
	"context"

	"github.com/medscribe/dispatch/internal/core/config"
	"github.com/medscribe/dispatch/internal/resilience/breaker"
)

// NoteFormatter turns a raw transcript into a structured medical note.
type NoteFormatter interface {
	FormatNote(ctx context.Context, req FormatRequest) (*FormatResult, error)
}

// FormatRequest carries the transcript and the note template to apply.
type FormatRequest struct {
	TranscriptID string `json:"transcript_id"`
	Transcript   string `json:"transcript"`
	Template     string `json:"template,omitempty"`
	Specialty    string `json:"specialty,omitempty"`
}

// FormatResult is the agent service's structured note.
type FormatResult struct {
	NoteID   string         `json:"note_id"`
	Sections map[string]any `json:"sections"`
	Model    string         `json:"model,omitempty"`
}

// AgentClient calls the note formatting agent over HTTP.
type AgentClient struct {
	client
}

// NewAgentClient builds the client from config.
func NewAgentClient(cfg config.CollabConfig, breakers *breaker.Registry) *AgentClient {
	return &AgentClient{client: newClient(ServiceAgent, cfg.AgentURL, cfg, breakers)}
}

// FormatNote asks the agent to format a transcript into a note.
func (c *AgentClient) FormatNote(ctx context.Context, req FormatRequest) (*FormatResult, error) {
	var out FormatResult
	if err := c.postJSON(ctx, "/v1/notes/format", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
