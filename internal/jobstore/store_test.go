package jobstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/textwave/textwave/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.JobStoreConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "jobs.db")}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open job store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenDisabled(t *testing.T) {
	s, err := Open(context.Background(), config.JobStoreConfig{Enabled: false}, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.SaveChunk(context.Background(), "fp", 0, "text", []byte("audio")); err != nil {
		t.Fatalf("disabled save should be a no-op: %v", err)
	}
	_, ok, err := s.LookupChunk(context.Background(), "fp", 0, "text")
	if err != nil {
		t.Fatalf("disabled lookup: %v", err)
	}
	if ok {
		t.Fatal("disabled store should never hit")
	}
}

func TestSaveAndLookup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveChunk(ctx, "fp-1", 3, "hello world.", []byte("audio-bytes")); err != nil {
		t.Fatalf("save chunk: %v", err)
	}

	audio, ok, err := s.LookupChunk(ctx, "fp-1", 3, "hello world.")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !ok {
		t.Fatal("expected hit for saved chunk")
	}
	if string(audio) != "audio-bytes" {
		t.Fatalf("audio = %q, want audio-bytes", audio)
	}

	// Different fingerprint or index misses.
	if _, ok, _ := s.LookupChunk(ctx, "fp-2", 3, "hello world."); ok {
		t.Fatal("wrong fingerprint should miss")
	}
	if _, ok, _ := s.LookupChunk(ctx, "fp-1", 4, "hello world."); ok {
		t.Fatal("wrong index should miss")
	}
}

func TestLookupRejectsStaleText(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveChunk(ctx, "fp-1", 0, "the old sentence.", []byte("old-audio")); err != nil {
		t.Fatalf("save chunk: %v", err)
	}
	// Same slot, but the document was re-chunked and the text moved.
	if _, ok, _ := s.LookupChunk(ctx, "fp-1", 0, "a different sentence."); ok {
		t.Fatal("stale text must count as a miss")
	}
}

func TestSaveReplacesExisting(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveChunk(ctx, "fp-1", 0, "v1 text.", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveChunk(ctx, "fp-1", 0, "v2 text.", []byte("v2")); err != nil {
		t.Fatal(err)
	}

	audio, ok, err := s.LookupChunk(ctx, "fp-1", 0, "v2 text.")
	if err != nil || !ok {
		t.Fatalf("lookup after replace: ok=%v err=%v", ok, err)
	}
	if string(audio) != "v2" {
		t.Fatalf("audio = %q, want v2", audio)
	}
}

func TestDeleteJob(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.SaveChunk(ctx, "fp-1", i, "t", []byte("a")); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.SaveChunk(ctx, "fp-other", 0, "t", []byte("a")); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteJob(ctx, "fp-1"); err != nil {
		t.Fatalf("delete job: %v", err)
	}

	if _, ok, _ := s.LookupChunk(ctx, "fp-1", 0, "t"); ok {
		t.Fatal("deleted job still has chunks")
	}
	if _, ok, _ := s.LookupChunk(ctx, "fp-other", 0, "t"); !ok {
		t.Fatal("delete removed another job's chunks")
	}
}

func TestPruneDropsOldChunks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := s.SaveChunk(ctx, "fp-old", 0, "t", []byte("a")); err != nil {
		t.Fatal(err)
	}

	s.clock = func() time.Time { return time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC) }
	if err := s.SaveChunk(ctx, "fp-new", 0, "t", []byte("a")); err != nil {
		t.Fatal(err)
	}

	if err := s.Prune(ctx, 14*24*time.Hour); err != nil {
		t.Fatalf("prune: %v", err)
	}

	if _, ok, _ := s.LookupChunk(ctx, "fp-old", 0, "t"); ok {
		t.Fatal("expected old chunk pruned")
	}
	if _, ok, _ := s.LookupChunk(ctx, "fp-new", 0, "t"); !ok {
		t.Fatal("recent chunk should survive prune")
	}
}
