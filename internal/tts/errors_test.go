package tts

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifyHTTPStatus(t *testing.T) {
	cases := []struct {
		status   int
		terminal bool
	}{
		{401, true},
		{403, true},
		{400, true},
		{404, true},
		{422, true},
		{429, false},
		{500, false},
		{502, false},
		{503, false},
	}
	for _, tc := range cases {
		err := classifyHTTPStatus(tc.status, "boom")
		if got := IsTerminal(err); got != tc.terminal {
			t.Fatalf("status %d: IsTerminal = %v, want %v (%v)", tc.status, got, tc.terminal, err)
		}
		if IsRetryable(err) == tc.terminal {
			t.Fatalf("status %d: retryable/terminal classification inconsistent", tc.status)
		}
	}
}

func TestClassifyTransportError(t *testing.T) {
	if !IsRetryable(classifyTransportError(context.DeadlineExceeded)) {
		t.Fatal("deadline exceeded should be retryable")
	}
	if !IsRetryable(classifyTransportError(errors.New("connection reset"))) {
		t.Fatal("unknown transport error should default to retryable")
	}
}

func TestErrorUnwrap(t *testing.T) {
	base := errors.New("quota exhausted")
	var err error = &TerminalError{Err: fmt.Errorf("wrapped: %w", base)}
	if !errors.Is(err, base) {
		t.Fatal("TerminalError should unwrap to its cause")
	}

	err = &RetryableError{Err: base}
	if !errors.Is(err, base) {
		t.Fatal("RetryableError should unwrap to its cause")
	}
}

func TestClassifyExecFailure(t *testing.T) {
	base := errors.New("exit status 1")
	cases := []struct {
		output   string
		terminal bool
	}{
		{"error: Invalid voice 'en-XX-Nobody'", true},
		{"HTTP 401 Unauthorized", true},
		{"403 Forbidden", true},
		{"429 Too Many Requests", false},
		{"connection timed out", false},
		{"", false},
	}
	for _, tc := range cases {
		err := classifyExecFailure(base, tc.output)
		if got := IsTerminal(err); got != tc.terminal {
			t.Fatalf("output %q: IsTerminal = %v, want %v", tc.output, got, tc.terminal)
		}
	}
}

func TestMockSynthProducesAudio(t *testing.T) {
	s := NewMockSynth(0)
	res, err := s.Synthesize(context.Background(), Request{Text: "hello", Voice: "test-voice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Audio) == 0 {
		t.Fatal("expected fabricated audio bytes")
	}
}
