package tts

import (
	"context"
	"fmt"
	"time"
)

type mockSynth struct {
	delay time.Duration
}

// NewMockSynth returns a synthesizer that fabricates audio bytes without any
// remote calls. Useful for dry runs and tests.
func NewMockSynth(delay time.Duration) Synthesizer {
	return &mockSynth{delay: delay}
}

func (m *mockSynth) Synthesize(ctx context.Context, req Request) (Result, error) {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return Result{}, &RetryableError{Err: ctx.Err()}
		case <-time.After(m.delay):
		}
	}
	// Fabricated payload roughly proportional to the input length, so
	// progress byte counts look plausible.
	header := fmt.Sprintf("MOCKAUDIO[%s]", req.Voice)
	audio := make([]byte, 0, len(header)+len(req.Text))
	audio = append(audio, header...)
	audio = append(audio, req.Text...)
	return Result{Audio: audio}, nil
}
