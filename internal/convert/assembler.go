package convert

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Assembler concatenates per-chunk audio segments, in index order, into the
// final output file. MP3 frames are self-delimiting, so straight
// concatenation of segments produced with identical settings yields a valid
// stream.
type Assembler struct {
	log *slog.Logger
}

func NewAssembler(log *slog.Logger) *Assembler {
	if log == nil {
		log = slog.Default()
	}
	return &Assembler{log: log}
}

// Assemble writes all of job's segments to destPath. The write goes to a
// temporary file in the destination directory and is renamed into place only
// after a successful sync, so a pre-existing file at destPath is never left
// half-overwritten.
func (a *Assembler) Assemble(job *Job, destPath string) (int64, error) {
	total := len(job.Chunks)
	for i := 0; i < total; i++ {
		if job.result(i) == nil {
			return 0, fmt.Errorf("assemble: missing audio for chunk %d of %d", i, total)
		}
	}

	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("assemble: create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".textwave-*.partial")
	if err != nil {
		return 0, fmt.Errorf("assemble: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	var written int64
	for i := 0; i < total; i++ {
		n, err := tmp.Write(job.result(i).Audio)
		written += int64(n)
		if err != nil {
			tmp.Close()
			return 0, fmt.Errorf("assemble: write chunk %d: %w", i, err)
		}
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("assemble: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("assemble: close: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return 0, fmt.Errorf("assemble: rename into place: %w", err)
	}

	a.log.Info("audio assembled",
		"job_id", job.ID,
		"path", destPath,
		"chunks", total,
		"bytes", written)
	return written, nil
}
