package collab

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/medscribe/dispatch/internal/core/config"
	"github.com/medscribe/dispatch/internal/resilience/breaker"
)

func testConfig(url string) config.CollabConfig {
	return config.CollabConfig{
		TranscriptionURL: url,
		AgentURL:         url,
		APIKey:           "test-key",
		RequestTimeout:   5 * time.Second,
	}
}

func newRegistry() *breaker.Registry {
	return breaker.NewRegistry(breaker.DefaultConfig(), slog.Default())
}

func TestTranscribeSuccess(t *testing.T) {
	var gotAuth string
	var gotBody struct {
		SessionID   string `json:"session_id"`
		Audio       []byte `json:"audio"`
		ContentType string `json:"content_type"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, "/v1/transcribe", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"transcript_id":"tr1","text":"patient reports","duration_seconds":12.5}`))
	}))
	defer srv.Close()

	c := NewTranscriptionClient(testConfig(srv.URL), newRegistry())
	res, err := c.Transcribe(context.Background(), TranscribeRequest{
		SessionID:   "s1",
		Audio:       []byte("RIFFfake-wav-bytes"),
		ContentType: "audio/wav",
	})
	require.NoError(t, err)
	require.Equal(t, "tr1", res.TranscriptID)
	require.Equal(t, "patient reports", res.Text)
	require.Equal(t, "Bearer test-key", gotAuth)
	// []byte fields travel base64 encoded and decode back to raw audio
	require.Equal(t, []byte("RIFFfake-wav-bytes"), gotBody.Audio)
	require.Equal(t, "audio/wav", gotBody.ContentType)
}

func TestFormatNoteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/notes/format", r.URL.Path)
		w.Write([]byte(`{"note_id":"n1","sections":{"subjective":"..."}}`))
	}))
	defer srv.Close()

	c := NewAgentClient(testConfig(srv.URL), newRegistry())
	res, err := c.FormatNote(context.Background(), FormatRequest{TranscriptID: "tr1", Transcript: "text"})
	require.NoError(t, err)
	require.Equal(t, "n1", res.NoteID)
}

func TestHTTPErrorSurfacesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewTranscriptionClient(testConfig(srv.URL), newRegistry())
	_, err := c.Transcribe(context.Background(), TranscribeRequest{SessionID: "s1"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "503")
}

func TestFailuresFeedBreakerUntilOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	reg := newRegistry()
	c := NewTranscriptionClient(testConfig(srv.URL), reg)

	// default config: volume 10, consecutive failure threshold 5
	for i := 0; i < 10; i++ {
		_, err := c.Transcribe(context.Background(), TranscribeRequest{SessionID: "s1"})
		require.Error(t, err)
	}

	require.Equal(t, breaker.StateOpen, reg.For(ServiceTranscription).State())

	_, err := c.Transcribe(context.Background(), TranscribeRequest{SessionID: "s1"})
	require.ErrorIs(t, err, ErrCircuitOpen)
}

func TestOpenBreakerSkipsNetwork(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	reg := newRegistry()
	reg.ForceOpen(ServiceAgent)

	c := NewAgentClient(testConfig(srv.URL), reg)
	_, err := c.FormatNote(context.Background(), FormatRequest{Transcript: "t"})
	require.ErrorIs(t, err, ErrCircuitOpen)
	require.Zero(t, calls)
}

func TestContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server watches for the client
		// disconnect; otherwise r.Context() is never canceled and
		// srv.Close deadlocks.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewTranscriptionClient(testConfig(srv.URL), newRegistry())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Transcribe(ctx, TranscribeRequest{SessionID: "s1"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
