package collab

import (
	"context"

	"github.com/medscribe/dispatch/internal/core/config"
	"github.com/medscribe/dispatch/internal/resilience/breaker"
)

// Transcriber turns recorded audio into a transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, req TranscribeRequest) (*TranscribeResult, error)
}

// TranscribeRequest carries the audio to transcribe. Audio marshals as
// base64 on the wire.
type TranscribeRequest struct {
	SessionID   string `json:"session_id"`
	Audio       []byte `json:"audio"`
	ContentType string `json:"content_type"`
	Language    string `json:"language,omitempty"`
}

// TranscribeResult is the transcription service's response.
type TranscribeResult struct {
	TranscriptID string  `json:"transcript_id"`
	Text         string  `json:"text"`
	DurationSecs float64 `json:"duration_seconds"`
	Language     string  `json:"language,omitempty"`
}

// TranscriptionClient calls the transcription service over HTTP.
type TranscriptionClient struct {
	client
}

// NewTranscriptionClient builds the client from config.
func NewTranscriptionClient(cfg config.CollabConfig, breakers *breaker.Registry) *TranscriptionClient {
	return &TranscriptionClient{client: newClient(ServiceTranscription, cfg.TranscriptionURL, cfg, breakers)}
}

// Transcribe submits audio for transcription and waits for the result.
func (c *TranscriptionClient) Transcribe(ctx context.Context, req TranscribeRequest) (*TranscribeResult, error) {
	var out TranscribeResult
	if err := c.postJSON(ctx, "/v1/transcribe", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
