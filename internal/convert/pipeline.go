package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/textwave/textwave/internal/config"
	"github.com/textwave/textwave/internal/pdf"
	"github.com/textwave/textwave/internal/text"
	"github.com/textwave/textwave/internal/tts"
)

// ErrEmptyDocument reports a PDF that yielded no narratable text after
// cleaning. The conversion still counts as succeeded; no output file is
// written.
var ErrEmptyDocument = errors.New("document contains no narratable text")

// PowerGuard keeps the host awake while a conversion runs. Acquire and
// Release are scoped to the job.
type PowerGuard interface {
	Acquire() error
	Release()
}

// Extractor produces per-page text from a PDF on disk.
type Extractor interface {
	Extract(path string) (*pdf.Document, error)
}

// Pipeline strings the stages together: extract, clean, chunk, synthesize,
// assemble.
type Pipeline struct {
	extractor Extractor
	cleanOpts text.CleanOptions
	maxChars  int
	orch      *Orchestrator
	assembler *Assembler
	guard     PowerGuard
	sink      ProgressSink
	store     ResultStore
	jobLimit  time.Duration
	log       *slog.Logger
}

// PipelineDeps carries the collaborators the pipeline does not build itself.
// Guard, Sink, and Store may be nil.
type PipelineDeps struct {
	Extractor Extractor
	Synth     tts.Synthesizer
	Guard     PowerGuard
	Sink      ProgressSink
	Store     ResultStore
	Logger    *slog.Logger
}

// NewPipeline builds a pipeline from configuration plus externally
// constructed collaborators.
func NewPipeline(cfg config.Config, deps PipelineDeps) (*Pipeline, error) {
	if deps.Extractor == nil {
		return nil, fmt.Errorf("pipeline requires an extractor")
	}
	if deps.Synth == nil {
		return nil, fmt.Errorf("pipeline requires a synthesizer")
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	orch := NewOrchestrator(deps.Synth, OrchestratorOptions{
		Concurrency: cfg.Orchestrator.Concurrency,
		MaxAttempts: cfg.Orchestrator.MaxAttempts,
		BackoffBase: time.Duration(cfg.Orchestrator.BackoffBase) * time.Millisecond,
		BackoffMax:  time.Duration(cfg.Orchestrator.BackoffMax) * time.Millisecond,
		CallTimeout: time.Duration(cfg.TTS.RequestTimeout) * time.Millisecond,
	}, deps.Sink, deps.Store, log)

	return &Pipeline{
		extractor: deps.Extractor,
		cleanOpts: text.CleanOptions{
			StripPageNumbers:    cfg.Clean.StripPageNumbers,
			StripHeadersFooters: cfg.Clean.StripHeadersFooter,
			MinLineLength:       cfg.Clean.MinLineLength,
		},
		maxChars:  cfg.Chunk.MaxChars,
		orch:      orch,
		assembler: NewAssembler(log),
		guard:     deps.Guard,
		sink:      deps.Sink,
		store:     deps.Store,
		jobLimit:  time.Duration(cfg.Orchestrator.JobTimeout) * time.Millisecond,
		log:       log,
	}, nil
}

// Convert runs one PDF through the full pipeline. The returned job is always
// non-nil once chunking succeeded and carries the terminal status; the error
// describes why the job did not fully succeed (ErrEmptyDocument is paired
// with a Succeeded job).
func (p *Pipeline) Convert(ctx context.Context, inputPath, outputPath, voice string) (*Job, error) {
	doc, err := p.extractor.Extract(inputPath)
	if err != nil {
		return nil, err
	}
	if failed := doc.FailedPages(); len(failed) > 0 {
		p.log.Warn("some pages yielded no text", "path", inputPath, "pages", failed)
	}

	pages := text.CleanPages(doc.PageTexts(), p.cleanOpts)
	chunks := text.SplitPages(pages, p.maxChars)

	job := NewJob(inputPath, outputPath, voice, p.maxChars, chunks)
	log := p.log.With("job_id", job.ID, "input", inputPath)

	if len(chunks) == 0 {
		log.Info("document has no narratable text, nothing to synthesize")
		job.finish(StatusSucceeded, nil)
		p.emit(job)
		return job, ErrEmptyDocument
	}

	log.Info("conversion starting",
		"pages", len(doc.Pages),
		"chunks", len(chunks),
		"voice", voice,
		"output", outputPath)

	if p.guard != nil {
		if err := p.guard.Acquire(); err != nil {
			log.Warn("power guard unavailable, continuing without it", "error", err)
		} else {
			defer p.guard.Release()
		}
	}

	if err := job.start(); err != nil {
		return job, err
	}
	p.emit(job)

	runCtx := ctx
	if p.jobLimit > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.jobLimit)
		defer cancel()
	}

	switch err := p.orch.Run(runCtx, job); {
	case err == nil:
		// All chunks present; write the file before declaring success.
		bytes, aerr := p.assembler.Assemble(job, outputPath)
		if aerr != nil {
			job.finish(StatusFailed, aerr)
			p.emit(job)
			return job, aerr
		}
		job.finish(StatusSucceeded, nil)
		p.emit(job)
		p.cleanupStore(context.WithoutCancel(ctx), job)
		log.Info("conversion succeeded", "bytes", bytes, "output", outputPath)
		return job, nil

	case errors.Is(err, ErrCancelled):
		job.finish(StatusCancelled, err)
		p.emit(job)
		log.Info("conversion cancelled",
			"completed", job.completedCount(),
			"total", len(job.Chunks))
		return job, err

	default:
		job.finish(StatusFailed, err)
		p.emit(job)
		log.Error("conversion failed", "error", err)
		return job, err
	}
}

// cleanupStore drops persisted chunk audio once the output file exists.
func (p *Pipeline) cleanupStore(ctx context.Context, job *Job) {
	if p.store == nil {
		return
	}
	if err := p.store.DeleteJob(ctx, job.Fingerprint); err != nil {
		p.log.Warn("cleaning up persisted chunks failed", "job_id", job.ID, "error", err)
	}
}

func (p *Pipeline) emit(job *Job) {
	if p.sink != nil {
		p.sink.OnProgress(job.Snapshot())
	}
}
