package power

import (
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"sync"
)

// Guard keeps the machine awake for the duration of a conversion. On macOS
// it holds a caffeinate child process; elsewhere it is a no-op, since long
// headless jobs on servers are not at risk of the host dozing off.
type Guard struct {
	enabled bool
	log     *slog.Logger

	mu  sync.Mutex
	cmd *exec.Cmd
}

func NewGuard(enabled bool, log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	return &Guard{enabled: enabled, log: log}
}

// Acquire starts the sleep inhibitor. Calling Acquire while one is already
// held is an error; the guard is scoped to a single job at a time.
func (g *Guard) Acquire() error {
	if !g.enabled || runtime.GOOS != "darwin" {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cmd != nil {
		return fmt.Errorf("power guard already held")
	}

	// -d keeps the display awake, -i the system.
	cmd := exec.Command("caffeinate", "-di")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start caffeinate: %w", err)
	}
	g.cmd = cmd
	g.log.Debug("power guard acquired", "pid", cmd.Process.Pid)
	return nil
}

// Release stops the inhibitor. Safe to call when nothing is held.
func (g *Guard) Release() {
	g.mu.Lock()
	cmd := g.cmd
	g.cmd = nil
	g.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := cmd.Process.Kill(); err != nil {
		g.log.Warn("stopping caffeinate failed", "error", err)
	}
	_ = cmd.Wait()
	g.log.Debug("power guard released")
}
