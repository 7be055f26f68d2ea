package worker

import (
	"log/slog"
	"testing"
	"time"

	"github.com/medscribe/dispatch/internal/core/config"
	"github.com/medscribe/dispatch/internal/core/domain"
)

func testRegistry() (*Registry, *time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := NewRegistry(config.HealthConfig{
		StaleAfter:    120 * time.Second,
		CheckInterval: 30 * time.Second,
	}, slog.Default())
	r.now = func() time.Time { return now }
	return r, &now
}

func TestRegisterAndSnapshot(t *testing.T) {
	r, _ := testRegistry()
	r.Register("w1", "audio_processing")
	r.Register("w2", "text_processing")

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot length = %d, want 2", len(snap))
	}
	for _, w := range snap {
		if w.Status != domain.WorkerStatusIdle {
			t.Errorf("%s: status = %s, want idle", w.WorkerID, w.Status)
		}
	}
}

func TestJobLifecycleStats(t *testing.T) {
	r, _ := testRegistry()
	r.Register("w1", "audio_processing")

	r.StartJob("w1", "j1")
	snap := r.Snapshot()
	if snap[0].Status != domain.WorkerStatusProcessing || snap[0].CurrentJobID != "j1" {
		t.Fatalf("unexpected state after start: %+v", snap[0])
	}

	r.FinishJob("w1", 2*time.Second, true)
	r.StartJob("w1", "j2")
	r.FinishJob("w1", 4*time.Second, false)

	snap = r.Snapshot()
	w := snap[0]
	if w.JobsProcessed != 1 || w.JobsFailed != 1 {
		t.Errorf("counts: processed=%d failed=%d", w.JobsProcessed, w.JobsFailed)
	}
	if w.ConsecutiveFailures != 1 {
		t.Errorf("consecutive failures = %d, want 1", w.ConsecutiveFailures)
	}
	if w.Status != domain.WorkerStatusIdle || w.CurrentJobID != "" {
		t.Errorf("not returned to idle: %+v", w)
	}
	if w.AvgProcessingMillis <= 0 {
		t.Errorf("avg processing = %d, want > 0", w.AvgProcessingMillis)
	}
}

func TestSystemLoad(t *testing.T) {
	r, _ := testRegistry()

	// empty registry means nothing can absorb work
	if got := r.SystemLoad(); got != 1.0 {
		t.Errorf("empty load = %v, want 1.0", got)
	}

	r.Register("w1", "q")
	r.Register("w2", "q")
	if got := r.SystemLoad(); got != 0 {
		t.Errorf("idle load = %v, want 0", got)
	}

	r.StartJob("w1", "j1")
	if got := r.SystemLoad(); got != 0.5 {
		t.Errorf("half busy load = %v, want 0.5", got)
	}
}

func TestHealthScore(t *testing.T) {
	r, _ := testRegistry()

	// no workers at all
	if got := r.HealthScore(); got != 50 {
		t.Errorf("no-worker score = %d, want 50", got)
	}

	r.Register("w1", "q")
	if got := r.HealthScore(); got != 100 {
		t.Errorf("healthy score = %d, want 100", got)
	}

	// push failure rate to 50%
	for i := 0; i < 5; i++ {
		r.StartJob("w1", "j")
		r.FinishJob("w1", time.Second, true)
		r.StartJob("w1", "j")
		r.FinishJob("w1", time.Second, false)
	}
	if got := r.HealthScore(); got != 50 {
		t.Errorf("failing score = %d, want 50", got)
	}
}

func TestHealthScoreSlowProcessing(t *testing.T) {
	r, _ := testRegistry()
	r.Register("w1", "q")
	r.StartJob("w1", "j")
	r.FinishJob("w1", 45*time.Second, true)

	if got := r.HealthScore(); got != 80 {
		t.Errorf("slow score = %d, want 80", got)
	}
}

func TestPurgeStale(t *testing.T) {
	r, now := testRegistry()
	r.Register("w1", "q")
	r.Register("w2", "q")

	*now = now.Add(60 * time.Second)
	r.Heartbeat("w2")

	*now = now.Add(90 * time.Second)
	r.purgeStale()

	snap := r.Snapshot()
	if len(snap) != 1 || snap[0].WorkerID != "w2" {
		t.Fatalf("expected only w2 to survive, got %+v", snap)
	}
}

func TestStoppedWorkersAreNotPurged(t *testing.T) {
	r, now := testRegistry()
	r.Register("w1", "q")
	r.MarkStopped("w1")

	*now = now.Add(10 * time.Minute)
	r.purgeStale()

	if len(r.Snapshot()) != 1 {
		t.Fatal("stopped worker should survive the purge")
	}
}
