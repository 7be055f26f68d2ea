package process

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medscribe/dispatch/internal/collab"
	"github.com/medscribe/dispatch/internal/core/domain"
	"github.com/medscribe/dispatch/internal/infra/postgres"
)

// TranscriptWriter persists transcription results.
type TranscriptWriter interface {
	Insert(ctx context.Context, t *postgres.Transcript) error
}

// NoteWriter persists formatted notes.
type NoteWriter interface {
	Insert(ctx context.Context, n *postgres.Note) error
}

// Warmer precomputes cached data for a user.
type Warmer interface {
	Warm(ctx context.Context, userID string) error
}

// Pipeline wires the downstream services and storage used by every
// job type.
type Pipeline struct {
	transcriber collab.Transcriber
	formatter   collab.NoteFormatter
	transcripts TranscriptWriter
	notes       NoteWriter
	warmer      Warmer
	now         func() time.Time
}

// NewPipeline builds the processing pipeline.
func NewPipeline(
	transcriber collab.Transcriber,
	formatter collab.NoteFormatter,
	transcripts TranscriptWriter,
	notes NoteWriter,
	warmer Warmer,
) *Pipeline {
	return &Pipeline{
		transcriber: transcriber,
		formatter:   formatter,
		transcripts: transcripts,
		notes:       notes,
		warmer:      warmer,
		now:         time.Now,
	}
}

// For returns the processor for a job type.
func (p *Pipeline) For(jobType domain.JobType) (Func, error) {
	switch jobType {
	case domain.JobTypeAudioProcessing:
		return p.processAudio, nil
	case domain.JobTypeTextProcessing:
		return p.processText, nil
	case domain.JobTypeTranscriptionOnly:
		return p.processTranscriptionOnly, nil
	case domain.JobTypeCacheWarming:
		return p.processCacheWarming, nil
	default:
		return nil, fmt.Errorf("no processor for job type %q", jobType)
	}
}

// processAudio runs the full pipeline: transcribe the recording,
// format the transcript into a note, persist both.
func (p *Pipeline) processAudio(ctx context.Context, job *domain.Job) (map[string]any, error) {
	tr, err := p.transcribe(ctx, job)
	if err != nil {
		return nil, err
	}

	note, err := p.formatAndStore(ctx, job, tr.ID, tr.Text)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"transcript_id": tr.ID,
		"note_id":       note.ID,
		"duration_secs": tr.DurationSecs,
	}, nil
}

// processText formats already-transcribed text into a note.
func (p *Pipeline) processText(ctx context.Context, job *domain.Job) (map[string]any, error) {
	text, _ := job.InputData["text"].(string)
	if text == "" {
		return nil, &ServiceError{Service: ServiceStorage, Err: fmt.Errorf("validation failed: missing text input")}
	}

	note, err := p.formatAndStore(ctx, job, job.TranscriptID, text)
	if err != nil {
		return nil, err
	}
	return map[string]any{"note_id": note.ID}, nil
}

// processTranscriptionOnly transcribes without note formatting.
func (p *Pipeline) processTranscriptionOnly(ctx context.Context, job *domain.Job) (map[string]any, error) {
	tr, err := p.transcribe(ctx, job)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"transcript_id": tr.ID,
		"text":          tr.Text,
		"duration_secs": tr.DurationSecs,
	}, nil
}

// processCacheWarming precomputes the user's cached views.
func (p *Pipeline) processCacheWarming(ctx context.Context, job *domain.Job) (map[string]any, error) {
	if err := p.warmer.Warm(ctx, job.UserID); err != nil {
		return nil, serviceErr(ServiceStorage, err)
	}
	return map[string]any{"warmed": true}, nil
}

func (p *Pipeline) transcribe(ctx context.Context, job *domain.Job) (*postgres.Transcript, error) {
	encoded, _ := job.InputData["audio_data"].(string)
	if encoded == "" {
		return nil, serviceErr(collab.ServiceTranscription, fmt.Errorf("validation failed: missing audio_data input"))
	}
	audio, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, serviceErr(collab.ServiceTranscription, fmt.Errorf("validation failed: audio_data is not valid base64: %w", err))
	}
	contentType, _ := job.InputData["content_type"].(string)
	if contentType == "" {
		contentType = "audio/wav"
	}
	language, _ := job.InputData["language"].(string)

	res, err := p.transcriber.Transcribe(ctx, collab.TranscribeRequest{
		SessionID:   job.SessionID,
		Audio:       audio,
		ContentType: contentType,
		Language:    language,
	})
	if err != nil {
		return nil, serviceErr(collab.ServiceTranscription, err)
	}

	tr := &postgres.Transcript{
		ID:           res.TranscriptID,
		SessionID:    job.SessionID,
		UserID:       job.UserID,
		Text:         res.Text,
		DurationSecs: res.DurationSecs,
		Language:     res.Language,
		CreatedAt:    p.now(),
	}
	if tr.ID == "" {
		tr.ID = uuid.NewString()
	}
	// Persistence is optional, results still flow back on the job.
	if p.transcripts != nil {
		if err := p.transcripts.Insert(ctx, tr); err != nil {
			return nil, serviceErr(ServiceStorage, err)
		}
	}
	return tr, nil
}

func (p *Pipeline) formatAndStore(ctx context.Context, job *domain.Job, transcriptID, text string) (*postgres.Note, error) {
	template, _ := job.InputData["template"].(string)
	specialty, _ := job.InputData["specialty"].(string)

	res, err := p.formatter.FormatNote(ctx, collab.FormatRequest{
		TranscriptID: transcriptID,
		Transcript:   text,
		Template:     template,
		Specialty:    specialty,
	})
	if err != nil {
		return nil, serviceErr(collab.ServiceAgent, err)
	}

	note := &postgres.Note{
		ID:           res.NoteID,
		UserID:       job.UserID,
		SessionID:    job.SessionID,
		TranscriptID: transcriptID,
		JobID:        job.JobID,
		Model:        res.Model,
		CreatedAt:    p.now(),
	}
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	if err := note.SetSections(res.Sections); err != nil {
		return nil, serviceErr(ServiceStorage, err)
	}
	if p.notes != nil {
		if err := p.notes.Insert(ctx, note); err != nil {
			return nil, serviceErr(ServiceStorage, err)
		}
	}
	return note, nil
}
