package tts

import "context"

// Request is one synthesis call: a bounded unit of text and the voice to
// narrate it with. Voice selection belongs to the caller; synthesizers only
// pass it through.
type Request struct {
	Text  string
	Voice string
}

// Result carries the encoded audio returned by the service.
type Result struct {
	Audio []byte
}

// Synthesizer is the contract for producing audio from text. Implementations
// must classify failures as RetryableError or TerminalError so the
// orchestrator can decide between backoff and fail-fast.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (Result, error)
}
