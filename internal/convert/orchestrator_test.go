package convert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/textwave/textwave/internal/text"
	"github.com/textwave/textwave/internal/tts"
)

func makeChunks(n int) []text.Chunk {
	chunks := make([]text.Chunk, n)
	for i := range chunks {
		chunks[i] = text.Chunk{Index: i, Text: fmt.Sprintf("sentence number %d.", i)}
	}
	return chunks
}

func testJob(n int) *Job {
	return NewJob("/in/book.pdf", "/out/book.mp3", "test-voice", 1000, makeChunks(n))
}

func fastOpts() OrchestratorOptions {
	return OrchestratorOptions{
		Concurrency: 3,
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		BackoffMax:  4 * time.Millisecond,
		CallTimeout: time.Second,
	}
}

// scriptedSynth runs a per-call function keyed by chunk text, counting
// attempts.
type scriptedSynth struct {
	mu       sync.Mutex
	attempts map[string]int
	fn       func(text string, attempt int) ([]byte, error)
}

func newScriptedSynth(fn func(text string, attempt int) ([]byte, error)) *scriptedSynth {
	return &scriptedSynth{attempts: make(map[string]int), fn: fn}
}

func (s *scriptedSynth) Synthesize(ctx context.Context, req tts.Request) (tts.Result, error) {
	s.mu.Lock()
	s.attempts[req.Text]++
	attempt := s.attempts[req.Text]
	s.mu.Unlock()

	audio, err := s.fn(req.Text, attempt)
	if err != nil {
		return tts.Result{}, err
	}
	return tts.Result{Audio: audio}, nil
}

func (s *scriptedSynth) attemptsFor(text string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[text]
}

// collectingSink records every progress report, safe for concurrent use.
type collectingSink struct {
	mu      sync.Mutex
	reports []Progress
}

func (c *collectingSink) OnProgress(p Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, p)
}

func (c *collectingSink) snapshot() []Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Progress(nil), c.reports...)
}

func TestRunAllChunksSucceed(t *testing.T) {
	synth := newScriptedSynth(func(text string, attempt int) ([]byte, error) {
		return []byte("audio:" + text), nil
	})
	sink := &collectingSink{}
	orch := NewOrchestrator(synth, fastOpts(), sink, nil, nil)

	job := testJob(10)
	if err := orch.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := job.completedCount(); got != 10 {
		t.Fatalf("completed = %d, want 10", got)
	}
	for i := 0; i < 10; i++ {
		res := job.result(i)
		if res == nil {
			t.Fatalf("missing result for chunk %d", i)
		}
		want := "audio:" + job.Chunks[i].Text
		if string(res.Audio) != want {
			t.Fatalf("chunk %d audio = %q, want %q", i, res.Audio, want)
		}
	}

	reports := sink.snapshot()
	if len(reports) == 0 {
		t.Fatal("expected progress reports")
	}
	prev := -1
	for _, p := range reports {
		if p.Completed < prev {
			t.Fatalf("progress went backwards: %d after %d", p.Completed, prev)
		}
		prev = p.Completed
	}
	last := reports[len(reports)-1]
	if last.Completed != 10 || last.Percent() != 100 {
		t.Fatalf("final report = %d/%d (%.0f%%), want 10/10 (100%%)", last.Completed, last.Total, last.Percent())
	}
}

func TestRunConcurrencyBound(t *testing.T) {
	var mu sync.Mutex
	current, peak := 0, 0

	synth := newScriptedSynth(func(text string, attempt int) ([]byte, error) {
		mu.Lock()
		current++
		if current > peak {
			peak = current
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		current--
		mu.Unlock()
		return []byte("x"), nil
	})

	opts := fastOpts()
	opts.Concurrency = 2
	orch := NewOrchestrator(synth, opts, nil, nil, nil)

	if err := orch.Run(context.Background(), testJob(8)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if peak > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestRunRetriesTransientFailure(t *testing.T) {
	flaky := "sentence number 2."
	synth := newScriptedSynth(func(text string, attempt int) ([]byte, error) {
		if text == flaky && attempt < 3 {
			return nil, &tts.RetryableError{Err: errors.New("503 service unavailable")}
		}
		return []byte("ok"), nil
	})
	orch := NewOrchestrator(synth, fastOpts(), nil, nil, nil)

	job := testJob(5)
	if err := orch.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}

	res := job.result(2)
	if res == nil {
		t.Fatal("missing result for flaky chunk")
	}
	if res.Attempts != 3 {
		t.Fatalf("flaky chunk attempts = %d, want 3", res.Attempts)
	}
	if synth.attemptsFor(flaky) != 3 {
		t.Fatalf("synth called %d times for flaky chunk, want 3", synth.attemptsFor(flaky))
	}
}

func TestRunFailsFastOnTerminalError(t *testing.T) {
	bad := "sentence number 1."
	synth := newScriptedSynth(func(text string, attempt int) ([]byte, error) {
		if text == bad {
			return nil, &tts.TerminalError{Err: errors.New("401 unauthorized")}
		}
		time.Sleep(2 * time.Millisecond)
		return []byte("ok"), nil
	})
	orch := NewOrchestrator(synth, fastOpts(), nil, nil, nil)

	job := testJob(6)
	err := orch.Run(context.Background(), job)
	if err == nil {
		t.Fatal("expected terminal failure")
	}

	var chunkErr *ChunkError
	if !errors.As(err, &chunkErr) {
		t.Fatalf("error %T does not name the failing chunk", err)
	}
	if chunkErr.Index != 1 {
		t.Fatalf("failing chunk = %d, want 1", chunkErr.Index)
	}
	if chunkErr.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (no retry of terminal errors)", chunkErr.Attempts)
	}
	if got := synth.attemptsFor(bad); got != 1 {
		t.Fatalf("terminal chunk attempted %d times, want 1", got)
	}
}

func TestRunExhaustsRetries(t *testing.T) {
	synth := newScriptedSynth(func(text string, attempt int) ([]byte, error) {
		return nil, &tts.RetryableError{Err: errors.New("connection refused")}
	})
	opts := fastOpts()
	opts.MaxAttempts = 2
	orch := NewOrchestrator(synth, opts, nil, nil, nil)

	job := testJob(1)
	err := orch.Run(context.Background(), job)

	var chunkErr *ChunkError
	if !errors.As(err, &chunkErr) {
		t.Fatalf("expected *ChunkError, got %T: %v", err, err)
	}
	if chunkErr.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", chunkErr.Attempts)
	}
}

// gateSynth lets the test control exactly when each in-flight call finishes.
type gateSynth struct {
	started chan struct{}
	release chan struct{}
}

func (g *gateSynth) Synthesize(ctx context.Context, req tts.Request) (tts.Result, error) {
	g.started <- struct{}{}
	<-g.release
	return tts.Result{Audio: []byte("late")}, nil
}

func TestRunCancellationDrainsInFlight(t *testing.T) {
	synth := &gateSynth{
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
	opts := fastOpts()
	opts.Concurrency = 2
	orch := NewOrchestrator(synth, opts, nil, nil, nil)

	job := testJob(6)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- orch.Run(ctx, job) }()

	// Wait for both workers to be in flight, then cancel.
	<-synth.started
	<-synth.started
	cancel()
	close(synth.release)

	select {
	case err := <-done:
		if !errors.Is(err, ErrCancelled) {
			t.Fatalf("Run = %v, want ErrCancelled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	// The two drained calls completed after cancellation was observed, so
	// their results are discarded and nothing further was dispatched.
	if got := job.completedCount(); got != 0 {
		t.Fatalf("completed = %d, want 0 (late results discarded)", got)
	}
	select {
	case <-synth.started:
		t.Fatal("a new call was dispatched after cancellation")
	case <-time.After(20 * time.Millisecond):
	}
}

// memStore is an in-memory ResultStore for resume tests.
type memStore struct {
	mu     sync.Mutex
	chunks map[string][]byte // key: fingerprint/index/text
}

func newMemStore() *memStore {
	return &memStore{chunks: make(map[string][]byte)}
}

func (m *memStore) key(fp string, idx int, text string) string {
	return fmt.Sprintf("%s/%d/%s", fp, idx, text)
}

func (m *memStore) LookupChunk(_ context.Context, fp string, idx int, text string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	audio, ok := m.chunks[m.key(fp, idx, text)]
	return audio, ok, nil
}

func (m *memStore) SaveChunk(_ context.Context, fp string, idx int, text string, audio []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[m.key(fp, idx, text)] = audio
	return nil
}

func (m *memStore) DeleteJob(_ context.Context, fp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.chunks {
		if len(k) > len(fp) && k[:len(fp)] == fp {
			delete(m.chunks, k)
		}
	}
	return nil
}

func TestRunResumesFromStore(t *testing.T) {
	job := testJob(4)
	store := newMemStore()
	for i := 0; i < 2; i++ {
		if err := store.SaveChunk(context.Background(), job.Fingerprint, i, job.Chunks[i].Text, []byte("stored")); err != nil {
			t.Fatal(err)
		}
	}

	synth := newScriptedSynth(func(text string, attempt int) ([]byte, error) {
		return []byte("fresh"), nil
	})
	orch := NewOrchestrator(synth, fastOpts(), nil, store, nil)

	if err := orch.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for i := 0; i < 2; i++ {
		if synth.attemptsFor(job.Chunks[i].Text) != 0 {
			t.Fatalf("chunk %d was re-synthesized despite stored audio", i)
		}
		if string(job.result(i).Audio) != "stored" {
			t.Fatalf("chunk %d audio = %q, want stored copy", i, job.result(i).Audio)
		}
	}
	for i := 2; i < 4; i++ {
		if string(job.result(i).Audio) != "fresh" {
			t.Fatalf("chunk %d audio = %q, want fresh synthesis", i, job.result(i).Audio)
		}
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	orch := NewOrchestrator(nil, OrchestratorOptions{
		Concurrency: 1,
		MaxAttempts: 10,
		BackoffBase: time.Second,
		BackoffMax:  4 * time.Second,
	}, nil, nil, nil)

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 4 * time.Second},
		{8, 4 * time.Second},
	}
	for _, tc := range cases {
		if got := orch.backoff(tc.attempt); got != tc.want {
			t.Fatalf("backoff(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestJobTerminalStatesAreSticky(t *testing.T) {
	job := testJob(1)
	if err := job.start(); err != nil {
		t.Fatal(err)
	}
	job.finish(StatusCancelled, ErrCancelled)
	job.finish(StatusSucceeded, nil)
	if job.Status() != StatusCancelled {
		t.Fatalf("status = %s, want cancelled to stick", job.Status())
	}
}

func TestSnapshotETA(t *testing.T) {
	job := testJob(4)
	if err := job.start(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)
	job.recordSuccess(0, []byte("a"), 1)
	job.recordSuccess(1, []byte("b"), 1)

	p := job.Snapshot()
	if p.Elapsed <= 0 {
		t.Fatal("running job should report elapsed time")
	}
	if p.ETA <= 0 {
		t.Fatal("partially complete job should estimate time remaining")
	}
	if p.BytesWritten != 2 {
		t.Fatalf("bytes = %d, want 2", p.BytesWritten)
	}

	job.recordSuccess(2, []byte("c"), 1)
	job.recordSuccess(3, []byte("d"), 1)
	if p := job.Snapshot(); p.ETA != 0 {
		t.Fatalf("complete job ETA = %v, want 0", p.ETA)
	}
}

func TestJobRejectsDuplicateResults(t *testing.T) {
	job := testJob(2)
	if !job.recordSuccess(0, []byte("a"), 1) {
		t.Fatal("first insert should succeed")
	}
	if job.recordSuccess(0, []byte("b"), 2) {
		t.Fatal("duplicate insert should be refused")
	}
	if string(job.result(0).Audio) != "a" {
		t.Fatal("duplicate insert overwrote the original")
	}
}
