package convert

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/textwave/textwave/internal/text"
)

// Status is the lifecycle state of a conversion job. The terminal states are
// sticky: once a job is Succeeded, Failed, or Cancelled it never leaves.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusSucceeded
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// SynthesisResult records the outcome of synthesizing one chunk.
type SynthesisResult struct {
	Index    int
	Audio    []byte
	Attempts int
}

// Progress is one progress report: how many chunks are done, how many bytes
// of audio exist so far, and a wall-clock estimate of the remainder.
type Progress struct {
	JobID        string
	Status       string
	Completed    int
	Total        int
	BytesWritten int64
	Elapsed      time.Duration
	ETA          time.Duration
}

// Percent is Completed/Total scaled to 0-100. It reaches 100 only when every
// chunk succeeded.
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Completed) / float64(p.Total) * 100
}

// ProgressSink receives progress reports from the orchestrator's goroutine.
// Implementations must not block.
type ProgressSink interface {
	OnProgress(Progress)
}

// ProgressFunc adapts a function to the ProgressSink interface.
type ProgressFunc func(Progress)

func (f ProgressFunc) OnProgress(p Progress) { f(p) }

// Job is one PDF-to-audio conversion. Results are inserted through a single
// synchronized point keyed by chunk index; no index is ever written twice and
// chunks are never shared across jobs.
type Job struct {
	ID          string
	InputPath   string
	OutputPath  string
	Voice       string
	Fingerprint string
	Chunks      []text.Chunk

	mu        sync.Mutex
	status    Status
	results   map[int]*SynthesisResult
	bytesOut  int64
	startedAt time.Time
	err       error
}

// NewJob builds a pending job over an ordered chunk list.
func NewJob(inputPath, outputPath, voice string, maxChars int, chunks []text.Chunk) *Job {
	return &Job{
		ID:          uuid.NewString(),
		InputPath:   inputPath,
		OutputPath:  outputPath,
		Voice:       voice,
		Fingerprint: fingerprint(inputPath, outputPath, voice, maxChars),
		Chunks:      chunks,
		status:      StatusPending,
		results:     make(map[int]*SynthesisResult, len(chunks)),
	}
}

// fingerprint identifies a conversion for resume purposes: same input, same
// destination, same voice, same chunking limit.
func fingerprint(inputPath, outputPath, voice string, maxChars int) string {
	h := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%s|%d", inputPath, outputPath, voice, maxChars))
	return hex.EncodeToString(h[:8])
}

// Status returns the current lifecycle state.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Err returns the terminal cause for a failed job, nil otherwise.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// start moves Pending to Running.
func (j *Job) start() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusPending {
		return fmt.Errorf("cannot start job in state %s", j.status)
	}
	j.status = StatusRunning
	j.startedAt = time.Now()
	return nil
}

// finish moves the job into a terminal state. Terminal states are sticky;
// finishing an already-terminal job is a no-op.
func (j *Job) finish(status Status, err error) {
	if !status.Terminal() {
		panic(fmt.Sprintf("finish called with non-terminal status %s", status))
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return
	}
	j.status = status
	j.err = err
}

// recordSuccess is the job's single result-insertion point. It refuses
// duplicate indices so no chunk can appear in the output twice.
func (j *Job) recordSuccess(index int, audio []byte, attempts int) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, dup := j.results[index]; dup {
		return false
	}
	j.results[index] = &SynthesisResult{Index: index, Audio: audio, Attempts: attempts}
	j.bytesOut += int64(len(audio))
	return true
}

// result returns the recorded result for index, or nil.
func (j *Job) result(index int) *SynthesisResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.results[index]
}

// completedCount returns how many chunks have succeeded.
func (j *Job) completedCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.results)
}

// Snapshot assembles a progress report from the job's current state.
func (j *Job) Snapshot() Progress {
	j.mu.Lock()
	defer j.mu.Unlock()

	p := Progress{
		JobID:        j.ID,
		Status:       j.status.String(),
		Completed:    len(j.results),
		Total:        len(j.Chunks),
		BytesWritten: j.bytesOut,
	}
	if !j.startedAt.IsZero() {
		p.Elapsed = time.Since(j.startedAt)
		if p.Completed > 0 && p.Completed < p.Total {
			perChunk := p.Elapsed / time.Duration(p.Completed)
			p.ETA = perChunk * time.Duration(p.Total-p.Completed)
		}
	}
	return p
}

// ChunkError names the chunk whose synthesis terminally failed the job.
type ChunkError struct {
	Index    int
	Attempts int
	Err      error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d failed after %d attempt(s): %v", e.Index, e.Attempts, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }
