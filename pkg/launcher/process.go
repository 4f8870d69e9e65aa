package launcher

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/soypete/safesound/pkg/platform"
)

// Process is a handle on the spawned UI server.
type Process struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu      sync.Mutex
	waitErr error
}

// ServerArgs returns the fixed argument list binding the server to host:port
// in headless mode.
func ServerArgs(scriptPath, host string, port int) []string {
	return []string{
		"run",
		scriptPath,
		"--server.address=" + host,
		"--server.port=" + strconv.Itoa(port),
		"--browser.serverAddress=" + host,
		"--server.headless=true",
		"--theme.base=light",
	}
}

// StartServer starts the UI server without waiting for it. The child is not
// tied to any context: only Stop or a forwarded signal ends it.
func StartServer(executable, scriptPath, host string, port int) (*Process, error) {
	cmd := exec.Command(executable, ServerArgs(scriptPath, host, port)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start server %s: %w", executable, err)
	}

	p := &Process{
		cmd:  cmd,
		done: make(chan struct{}),
	}

	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.waitErr = err
		p.mu.Unlock()
		close(p.done)
	}()

	return p, nil
}

// Pid returns the child's process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Done is closed once the child has exited and been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Running reports whether the child has not exited yet.
func (p *Process) Running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// ExitCode returns the child's exit code once it has exited. A child killed
// by a signal, or one that could not be waited on, reports ExitFailure.
func (p *Process) ExitCode() int {
	if p.Running() {
		return -1
	}

	p.mu.Lock()
	waitErr := p.waitErr
	p.mu.Unlock()

	if state := p.cmd.ProcessState; state != nil {
		if code := state.ExitCode(); code >= 0 {
			return code
		}
		return ExitFailure
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) && exitErr.ExitCode() >= 0 {
		return exitErr.ExitCode()
	}
	return ExitFailure
}

// Signal forwards sig to the child. Where signals are unsupported the child
// is killed instead.
func (p *Process) Signal(sig os.Signal) error {
	if !p.Running() {
		return nil
	}
	if !platform.SupportsSignals() {
		return p.cmd.Process.Kill()
	}
	if err := p.cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// WaitFor waits up to d for the child to exit and reports whether it did.
func (p *Process) WaitFor(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-p.done:
		return true
	case <-timer.C:
		return false
	}
}

// Kill kills the child and waits for it to be reaped.
func (p *Process) Kill() error {
	if !p.Running() {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	<-p.done
	return nil
}

// Stop asks the child to stop with sig, waits up to grace, then kills it.
// It returns only once the child is no longer running.
func (p *Process) Stop(sig os.Signal, grace time.Duration) error {
	if err := p.Signal(sig); err != nil {
		return p.Kill()
	}
	if p.WaitFor(grace) {
		return nil
	}
	return p.Kill()
}
