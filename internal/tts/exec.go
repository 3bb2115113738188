package tts

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/mattn/go-shellwords"
)

// execSynth shells out to an edge-tts style CLI: the command receives the
// text and voice as flags and writes encoded audio to a media file, which we
// read back. This is the converter's default engine; the edge-tts service
// needs no API key.
type execSynth struct {
	cmd     []string
	tmpDir  string
	counter atomic.Uint64
}

// NewExecSynth parses command ("edge-tts", "python3 -m edge_tts", ...) and
// returns a synthesizer that invokes it once per request.
func NewExecSynth(command, tmpDir string) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	return &execSynth{cmd: args, tmpDir: tmpDir}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, req Request) (Result, error) {
	outFile := filepath.Join(e.tmpDir, fmt.Sprintf("textwave-seg-%d-%d.mp3", os.Getpid(), e.counter.Add(1)))
	defer os.Remove(outFile)

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	args = append(args,
		"--text", req.Text,
		"--voice", req.Voice,
		"--write-media", outFile,
	)

	cmd := exec.CommandContext(ctx, base, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, &RetryableError{Err: fmt.Errorf("tts command timed out: %w", ctx.Err())}
		}
		return Result{}, classifyExecFailure(err, string(output))
	}

	audio, err := os.ReadFile(outFile)
	if err != nil {
		return Result{}, &RetryableError{Err: fmt.Errorf("read tts output: %w", err)}
	}
	if len(audio) == 0 {
		return Result{}, &RetryableError{Err: fmt.Errorf("tts command produced empty audio, output: %s", strings.TrimSpace(string(output)))}
	}
	return Result{Audio: audio}, nil
}

// classifyExecFailure inspects CLI output for the failure modes the edge-tts
// service reports through its exit message.
func classifyExecFailure(err error, output string) error {
	lower := strings.ToLower(output)
	wrapped := fmt.Errorf("tts command failed: %w, output: %s", err, strings.TrimSpace(output))
	switch {
	case strings.Contains(lower, "invalid voice"),
		strings.Contains(lower, "no such voice"),
		strings.Contains(lower, "401"),
		strings.Contains(lower, "403"),
		strings.Contains(lower, "unauthorized"),
		strings.Contains(lower, "forbidden"):
		return &TerminalError{Err: wrapped}
	case strings.Contains(lower, "429"),
		strings.Contains(lower, "rate limit"),
		strings.Contains(lower, "too many requests"):
		return &RetryableError{Err: wrapped}
	default:
		return &RetryableError{Err: wrapped}
	}
}
