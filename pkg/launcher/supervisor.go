package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"github.com/soypete/safesound/pkg/config"
)

// Options configures a Supervisor.
type Options struct {
	Host          string
	Port          int
	HealthPath    string
	HealthTimeout time.Duration
	PollInterval  time.Duration
	BrowserDelay  time.Duration
	ShutdownGrace time.Duration

	// OpenBrowser navigates the default browser to a URL.
	OpenBrowser func(url string) error
	// Notify shows a desktop notification for fatal startup failures.
	// It is best effort and may be nil.
	Notify func(title, message string) error
}

// OptionsFromConfig maps the launcher config section to supervisor options.
func OptionsFromConfig(cfg config.LauncherConfig) Options {
	return Options{
		Host:          cfg.Host,
		Port:          cfg.Port,
		HealthPath:    cfg.HealthPath,
		HealthTimeout: cfg.HealthTimeout(),
		PollInterval:  cfg.PollInterval(),
		BrowserDelay:  cfg.BrowserDelay(),
		ShutdownGrace: cfg.ShutdownGrace(),
	}
}

// Supervisor owns the lifecycle of one UI server process.
type Supervisor struct {
	opts    Options
	logger  *slog.Logger
	health  *HealthChecker
	browser *browserOnce

	mu          sync.Mutex
	state       State
	transitions []State
	proc        *Process
}

// New creates a Supervisor. The logger is owned by the caller.
func New(opts Options, logger *slog.Logger) *Supervisor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = func(string) error { return errors.New("no browser opener configured") }
	}

	return &Supervisor{
		opts:        opts,
		logger:      logger,
		health:      NewHealthChecker(opts.HealthPath, opts.PollInterval, logger),
		browser:     &browserOnce{open: opts.OpenBrowser},
		state:       StateInit,
		transitions: []State{StateInit},
	}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transitions returns every state entered so far, in order.
func (s *Supervisor) Transitions() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]State, len(s.transitions))
	copy(out, s.transitions)
	return out
}

// Process returns the child handle, or nil before spawning.
func (s *Supervisor) Process() *Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc
}

// HealthProbes returns the number of health probes sent.
func (s *Supervisor) HealthProbes() int {
	return s.health.Probes()
}

// URL is the address the browser is sent to.
func (s *Supervisor) URL() string {
	return fmt.Sprintf("http://%s:%d", s.opts.Host, s.opts.Port)
}

func (s *Supervisor) transition(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.transitions = append(s.transitions, to)
	s.mu.Unlock()

	s.logger.Debug("Supervisor state change", "from", from.String(), "to", to.String())
}

// StartServer spawns the UI server and records its handle.
func (s *Supervisor) StartServer(executable, scriptPath string) (*Process, error) {
	proc, err := StartServer(executable, scriptPath, s.opts.Host, s.opts.Port)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.proc = proc
	s.mu.Unlock()
	return proc, nil
}

// WaitUntilHealthy polls the server's health endpoint.
func (s *Supervisor) WaitUntilHealthy(ctx context.Context) (bool, error) {
	return s.health.WaitUntilHealthy(ctx, s.opts.Host, s.opts.Port, s.opts.HealthTimeout)
}

// waitHealthyOrExit polls for health but gives up as soon as the child exits.
// err is non-nil only when ctx was cancelled.
func (s *Supervisor) waitHealthyOrExit(ctx context.Context, proc *Process) (healthy, exited bool, err error) {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-proc.Done():
			cancel()
		case <-waitCtx.Done():
		}
	}()

	healthy, err = s.WaitUntilHealthy(waitCtx)
	if ctx.Err() != nil {
		return false, false, ctx.Err()
	}
	if healthy {
		return true, false, nil
	}
	return false, !proc.Running(), nil
}

// OpenBrowserOnce opens url in the default browser the first time it is
// called; later calls return the first result without opening anything.
func (s *Supervisor) OpenBrowserOnce(url string) BrowserResult {
	return s.browser.Open(url)
}

// Supervise blocks until the child exits and returns its exit code. When ctx
// is cancelled the received signal is forwarded, the child gets the shutdown
// grace period to stop on its own, and Supervise returns ExitOK.
func (s *Supervisor) Supervise(ctx context.Context, proc *Process) int {
	select {
	case <-proc.Done():
		code := proc.ExitCode()
		if code == ExitOK {
			s.logger.Info("Server process exited", "code", code)
		} else {
			s.logger.Error("Server process exited unexpectedly", "code", code)
		}
		return code
	case <-ctx.Done():
		return s.shutdown(ctx, proc)
	}
}

// shutdown handles a signal received while waiting or supervising.
func (s *Supervisor) shutdown(ctx context.Context, proc *Process) int {
	sig := signalFrom(ctx)
	s.logger.Info("Received signal to terminate. Cleaning up...", "signal", sig.String())

	if err := proc.Signal(sig); err != nil {
		s.logger.Warn("Failed to forward signal to server", "error", err)
	}

	if !proc.WaitFor(s.opts.ShutdownGrace) {
		s.logger.Warn("Server did not stop within grace period, killing it", "grace", s.opts.ShutdownGrace)
		if err := proc.Kill(); err != nil {
			s.logger.Error("Failed to kill server process", "error", err)
		}
	}

	return ExitOK
}

// Run executes the full launch sequence and returns the process exit code.
// Panics are recovered, logged with their stack and mapped to ExitFailure.
func (s *Supervisor) Run(ctx context.Context, executable, scriptPath string) (code int) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Error occurred", "error", fmt.Sprint(r), "stack", string(debug.Stack()))
			if proc := s.Process(); proc != nil && proc.Running() {
				_ = proc.Stop(syscall.SIGTERM, s.opts.ShutdownGrace)
			}
			code = ExitFailure
		}
		s.transition(StateExited)
	}()

	s.transition(StateSpawning)
	s.logger.Info("Starting server process...", "executable", executable, "script", scriptPath)
	proc, err := s.StartServer(executable, scriptPath)
	if err != nil {
		s.logger.Error("Failed to start server", "error", err)
		s.notify("SafeSound could not start", err.Error())
		return ExitFailure
	}
	s.logger.Info("Server process started", "pid", proc.Pid())

	s.transition(StateWaitingHealthy)
	s.logger.Info("Waiting for server to be ready...", "url", HealthURL(s.opts.Host, s.opts.Port, s.opts.HealthPath), "timeout", s.opts.HealthTimeout)
	healthy, exited, err := s.waitHealthyOrExit(ctx, proc)
	if err != nil {
		return s.shutdown(ctx, proc)
	}

	if !healthy {
		s.transition(StateTimedOut)
		if exited {
			s.logger.Error("Server process exited before becoming healthy", "code", proc.ExitCode(), "probes", s.HealthProbes())
		} else {
			s.logger.Error("Server failed to become healthy", "timeout", s.opts.HealthTimeout, "probes", s.HealthProbes())
		}
		s.transition(StateTerminating)
		if err := proc.Stop(syscall.SIGTERM, s.opts.ShutdownGrace); err != nil {
			s.logger.Error("Failed to terminate server process", "error", err)
		}
		s.logger.Info("Server process terminated", "running", proc.Running())
		s.notify("SafeSound failed to start", "The server did not become ready in time.")
		return ExitFailure
	}

	s.transition(StateHealthy)
	s.logger.Info("Server is ready", "probes", s.HealthProbes())

	if s.opts.BrowserDelay > 0 {
		timer := time.NewTimer(s.opts.BrowserDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return s.shutdown(ctx, proc)
		case <-timer.C:
		}
	}

	result := s.OpenBrowserOnce(s.URL())
	if result.Opened {
		s.logger.Info("Browser opened", "url", s.URL())
	} else {
		s.logger.Warn("Could not open browser, navigate manually", "url", s.URL(), "error", result.Err)
	}
	s.transition(StateBrowserOpened)

	s.transition(StateSupervising)
	return s.Supervise(ctx, proc)
}

func (s *Supervisor) notify(title, message string) {
	if s.opts.Notify == nil {
		return
	}
	if err := s.opts.Notify(title, message); err != nil {
		s.logger.Debug("Desktop notification failed", "error", err)
	}
}
