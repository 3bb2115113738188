package convert

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/textwave/textwave/internal/text"
	"github.com/textwave/textwave/internal/tts"
)

// ErrCancelled is returned by Run when the job's context was cancelled before
// every chunk completed.
var ErrCancelled = errors.New("conversion cancelled")

// ResultStore persists per-chunk audio so an interrupted conversion can
// resume without re-synthesizing what it already has. Implementations key on
// the job fingerprint plus chunk index and must reject stale text.
type ResultStore interface {
	LookupChunk(ctx context.Context, fingerprint string, index int, chunkText string) ([]byte, bool, error)
	SaveChunk(ctx context.Context, fingerprint string, index int, chunkText string, audio []byte) error
	DeleteJob(ctx context.Context, fingerprint string) error
}

// OrchestratorOptions bound the synthesis fan-out and retry policy.
type OrchestratorOptions struct {
	// Concurrency is the maximum number of in-flight synthesis calls.
	Concurrency int
	// MaxAttempts is the total number of tries per chunk, first included.
	MaxAttempts int
	// BackoffBase doubles per retry: base, 2*base, 4*base, capped at
	// BackoffMax.
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// CallTimeout bounds each individual synthesis call.
	CallTimeout time.Duration
}

func (o *OrchestratorOptions) normalize() {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 1
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 30 * time.Second
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 2 * time.Minute
	}
}

// Orchestrator drives chunk synthesis: a bounded worker fan-out, exponential
// retry for transient failures, fail-fast on terminal ones, and strictly
// ordered result recording via the job's index map.
type Orchestrator struct {
	synth tts.Synthesizer
	opts  OrchestratorOptions
	sink  ProgressSink
	store ResultStore
	log   *slog.Logger
}

// NewOrchestrator wires a synthesizer to a retry/fan-out policy. The sink and
// store may be nil.
func NewOrchestrator(synth tts.Synthesizer, opts OrchestratorOptions, sink ProgressSink, store ResultStore, log *slog.Logger) *Orchestrator {
	opts.normalize()
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{synth: synth, opts: opts, sink: sink, store: store, log: log}
}

// workItem is one pending synthesis try.
type workItem struct {
	chunk   text.Chunk
	attempt int // 1-based
}

// outcome is what a worker goroutine reports back to the coordinator.
type outcome struct {
	item  workItem
	audio []byte
	err   error
}

// Run synthesizes every chunk of job, blocking until the job reaches a
// terminal condition. It returns nil when all chunks succeeded, ErrCancelled
// when ctx was cancelled first, and a *ChunkError when a chunk terminally
// failed or exhausted its attempts. In the failure cases, in-flight calls are
// drained before Run returns and their late results are discarded.
func (o *Orchestrator) Run(ctx context.Context, job *Job) error {
	total := len(job.Chunks)
	if total == 0 {
		return nil
	}

	// Store operations outlive a cancelled job context: partial audio is
	// exactly what a resume needs.
	storeCtx := context.WithoutCancel(ctx)

	queue := make([]workItem, 0, total)
	for _, c := range job.Chunks {
		if o.restoreFromStore(storeCtx, job, c) {
			continue
		}
		queue = append(queue, workItem{chunk: c, attempt: 1})
	}
	if job.completedCount() > 0 {
		o.log.Info("resuming conversion",
			"job_id", job.ID,
			"restored", job.completedCount(),
			"total", total)
		o.emit(job)
	}

	// Buffered to the chunk count so a retry timer that fires after Run has
	// returned can never block.
	results := make(chan outcome, total)
	requeue := make(chan workItem, total)

	var (
		inFlight  int
		pending   int // retries waiting on a backoff timer
		stopping  bool
		cancelled bool
		failure   error
	)

	dispatch := func(item workItem) {
		inFlight++
		go func() {
			// The call context is detached from the job context: an
			// observed cancellation stops new dispatches but lets calls
			// already in flight run to completion.
			callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.CallTimeout)
			defer cancel()
			res, err := o.synth.Synthesize(callCtx, tts.Request{Text: item.chunk.Text, Voice: job.Voice})
			results <- outcome{item: item, audio: res.Audio, err: err}
		}()
	}

	// observeCancel polls the job context so that cancellation is seen
	// before any further result is recorded or work dispatched, whichever
	// select arm happened to fire.
	observeCancel := func() {
		if stopping {
			return
		}
		select {
		case <-ctx.Done():
			stopping = true
			cancelled = true
			o.log.Info("cancellation observed, draining in-flight calls",
				"job_id", job.ID, "in_flight", inFlight)
			ctx = context.WithoutCancel(ctx)
		default:
		}
	}

	for {
		observeCancel()
		if !stopping {
			for len(queue) > 0 && inFlight < o.opts.Concurrency {
				dispatch(queue[0])
				queue = queue[1:]
			}
		}

		if job.completedCount() == total {
			return nil
		}
		if stopping && inFlight == 0 {
			break
		}
		if !stopping && inFlight == 0 && len(queue) == 0 && pending == 0 {
			// Nothing running, nothing queued, nothing scheduled: this
			// would be a hang, not a state the dispatch rules can reach.
			panic("orchestrator stalled with incomplete job")
		}

		select {
		case <-ctx.Done():
			// Handled by observeCancel at the top of the loop.

		case out := <-results:
			inFlight--
			observeCancel()
			o.handleOutcome(storeCtx, job, out, &pending, &stopping, &failure, requeue)

		case item := <-requeue:
			pending--
			observeCancel()
			if !stopping {
				queue = append(queue, item)
			}
		}
	}

	if cancelled {
		return ErrCancelled
	}
	return failure
}

// handleOutcome applies one worker result to the job. Late results arriving
// after the job started stopping are discarded without recording.
func (o *Orchestrator) handleOutcome(ctx context.Context, job *Job, out outcome, pending *int, stopping *bool, failure *error, requeue chan<- workItem) {
	item := out.item

	if out.err == nil {
		if *stopping {
			o.log.Debug("discarding late result", "job_id", job.ID, "chunk", item.chunk.Index)
			return
		}
		if !job.recordSuccess(item.chunk.Index, out.audio, item.attempt) {
			o.log.Warn("duplicate result for chunk", "job_id", job.ID, "chunk", item.chunk.Index)
			return
		}
		if o.store != nil {
			if err := o.store.SaveChunk(ctx, job.Fingerprint, item.chunk.Index, item.chunk.Text, out.audio); err != nil {
				o.log.Warn("persisting chunk audio failed", "chunk", item.chunk.Index, "error", err)
			}
		}
		o.log.Debug("chunk synthesized",
			"job_id", job.ID,
			"chunk", item.chunk.Index,
			"attempt", item.attempt,
			"bytes", len(out.audio))
		o.emit(job)
		return
	}

	if *stopping {
		return
	}

	if tts.IsTerminal(out.err) {
		*stopping = true
		*failure = &ChunkError{Index: item.chunk.Index, Attempts: item.attempt, Err: out.err}
		o.log.Error("chunk failed terminally",
			"job_id", job.ID,
			"chunk", item.chunk.Index,
			"attempt", item.attempt,
			"error", out.err)
		return
	}

	if item.attempt >= o.opts.MaxAttempts {
		*stopping = true
		*failure = &ChunkError{Index: item.chunk.Index, Attempts: item.attempt, Err: out.err}
		o.log.Error("chunk exhausted retries",
			"job_id", job.ID,
			"chunk", item.chunk.Index,
			"attempts", item.attempt,
			"error", out.err)
		return
	}

	delay := o.backoff(item.attempt)
	o.log.Warn("chunk synthesis failed, will retry",
		"job_id", job.ID,
		"chunk", item.chunk.Index,
		"attempt", item.attempt,
		"retry_in", delay,
		"error", out.err)
	*pending++
	next := workItem{chunk: item.chunk, attempt: item.attempt + 1}
	time.AfterFunc(delay, func() { requeue <- next })
}

// backoff returns the delay before attempt+1: base*2^(attempt-1), capped.
func (o *Orchestrator) backoff(attempt int) time.Duration {
	d := o.opts.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= o.opts.BackoffMax {
			return o.opts.BackoffMax
		}
	}
	return min(d, o.opts.BackoffMax)
}

// restoreFromStore recovers a previously synthesized chunk, if any.
func (o *Orchestrator) restoreFromStore(ctx context.Context, job *Job, c text.Chunk) bool {
	if o.store == nil {
		return false
	}
	audio, ok, err := o.store.LookupChunk(ctx, job.Fingerprint, c.Index, c.Text)
	if err != nil {
		o.log.Warn("chunk store lookup failed", "chunk", c.Index, "error", err)
		return false
	}
	if !ok {
		return false
	}
	return job.recordSuccess(c.Index, audio, 0)
}

func (o *Orchestrator) emit(job *Job) {
	if o.sink != nil {
		o.sink.OnProgress(job.Snapshot())
	}
}
