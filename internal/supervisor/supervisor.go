// Package supervisor runs the studio dev server and watches it for readiness.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/onuhq/onu/internal/env"
	"github.com/onuhq/onu/internal/logger"
	"github.com/onuhq/onu/internal/metrics"
	"github.com/onuhq/onu/internal/process"
)

// ErrReadyTimeout is returned when the server never prints the readiness marker.
var ErrReadyTimeout = errors.New("studio server did not become ready in time")

type State int32

const (
	NotReady State = iota
	Ready
	Exited
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Exited:
		return "exited"
	default:
		return "not_ready"
	}
}

var allStates = []string{NotReady.String(), Ready.String(), Exited.String()}

type Config struct {
	ClientDir          string
	StartCommand       string
	ReconfigureCommand string
	// ReconfigureArg is passed to the reconfigure command, usually the
	// project path relative to ClientDir.
	ReconfigureArg string
	SourcePathVar  string
	ReadyMarker    string
	BenignStderr   []string
	Log            logger.Config
	// Env is the base environment; nil means the current process environment.
	Env *env.Env

	Stdout io.Writer
	Stderr io.Writer
}

type Supervisor struct {
	cfg    Config
	runner process.Runner
	log    *slog.Logger
}

func New(cfg Config, runner process.Runner, log *slog.Logger) *Supervisor {
	if cfg.SourcePathVar == "" {
		cfg.SourcePathVar = "ONU_PATH"
	}
	if cfg.Env == nil {
		cfg.Env = env.New()
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{cfg: cfg, runner: runner, log: log}
}

// Environ composes the child environment: base, then PORT and the source
// path variable, then extra.
func (s *Supervisor) Environ(port int, sourcePath string, extra env.Var) []string {
	vars := env.Var{
		"PORT":              strconv.Itoa(port),
		s.cfg.SourcePathVar: sourcePath,
	}
	for k, v := range extra {
		vars[k] = v
	}
	return s.cfg.Env.Merge(vars)
}

// Configure runs the bundle's configuration step once and waits for it.
func (s *Supervisor) Configure(ctx context.Context, port int, sourcePath string, extra env.Var) (err error) {
	defer func() { metrics.IncReconfigure(err) }()
	if s.cfg.ReconfigureCommand == "" {
		return nil
	}
	var args []string
	if s.cfg.ReconfigureArg != "" {
		args = []string{s.cfg.ReconfigureArg}
	}
	out, err := s.runner.Run(ctx, process.Spec{
		Name:    "studio-configure",
		Command: s.cfg.ReconfigureCommand,
		Args:    args,
		WorkDir: s.cfg.ClientDir,
		Env:     s.Environ(port, sourcePath, extra),
	})
	if err != nil {
		s.log.Debug("configure output", "output", string(out))
		return fmt.Errorf("reconfigure studio: %w", err)
	}
	return nil
}

// Reconfigure re-runs the configuration step for a running server with its
// port and source path and a fresh extra environment. The server process is
// never touched.
func (s *Supervisor) Reconfigure(ctx context.Context, h *Handle, extra env.Var) error {
	return s.Configure(ctx, h.port, h.sourcePath, extra)
}

// Launch starts the server with PORT and the source path exported.
func (s *Supervisor) Launch(port int, sourcePath string, extra env.Var) (*Handle, error) {
	proc := process.New(process.Spec{
		Name:    "studio",
		Command: s.cfg.StartCommand,
		WorkDir: s.cfg.ClientDir,
		Env:     s.Environ(port, sourcePath, extra),
		Log:     s.cfg.Log,
	})
	metrics.SetChildState(NotReady.String(), allStates...)
	if err := proc.Start(); err != nil {
		return nil, err
	}
	h := &Handle{
		proc:       proc,
		port:       port,
		sourcePath: sourcePath,
		started:    time.Now(),
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
	}
	s.log.Debug("studio server started", "pid", proc.Snapshot().PID, "port", port)
	go s.dispatch(h)
	return h, nil
}

// dispatch consumes child output in emission order.
func (s *Supervisor) dispatch(h *Handle) {
	for ln := range h.proc.Lines() {
		switch ln.Stream {
		case process.Stdout:
			_, _ = fmt.Fprintln(s.cfg.Stdout, ln.Text)
			if s.cfg.ReadyMarker != "" && strings.Contains(ln.Text, s.cfg.ReadyMarker) {
				h.markReady()
			}
		case process.Stderr:
			if s.benign(ln.Text) {
				continue
			}
			_, _ = fmt.Fprintln(s.cfg.Stderr, ln.Text)
		}
	}
	<-h.proc.Done()
	h.state.Store(int32(Exited))
	metrics.SetChildState(Exited.String(), allStates...)
	if st := h.proc.Snapshot(); st.ExitErr != nil {
		s.log.Debug("studio server exited", "error", st.ExitErr)
	}
	close(h.done)
}

func (s *Supervisor) benign(line string) bool {
	for _, b := range s.cfg.BenignStderr {
		if b != "" && strings.Contains(line, b) {
			return true
		}
	}
	return false
}

// Handle is a running studio server.
type Handle struct {
	proc       *process.Process
	port       int
	sourcePath string
	started    time.Time

	state     atomic.Int32
	readyOnce sync.Once
	ready     chan struct{}
	done      chan struct{}

	termOnce sync.Once
	termErr  error
}

func (h *Handle) markReady() {
	h.readyOnce.Do(func() {
		h.state.Store(int32(Ready))
		metrics.ObserveReady(time.Since(h.started).Seconds())
		metrics.SetChildState(Ready.String(), allStates...)
		close(h.ready)
	})
}

// Ready is closed the first time the readiness marker is seen.
func (h *Handle) Ready() <-chan struct{} { return h.ready }

// Done is closed once the server has exited and its output is drained.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) State() State { return State(h.state.Load()) }
func (h *Handle) Port() int    { return h.port }
func (h *Handle) PID() int     { return h.proc.Snapshot().PID }

// SourcePath is the source path the server was launched with.
func (h *Handle) SourcePath() string { return h.sourcePath }

// ExitErr returns the wait error once the server has exited.
func (h *Handle) ExitErr() error { return h.proc.Snapshot().ExitErr }

// Terminate sends an interrupt to the server's process group. Only the
// first call signals; later calls return the first result.
func (h *Handle) Terminate() error {
	h.termOnce.Do(func() {
		if h.State() == Exited {
			return
		}
		h.termErr = h.proc.Signal(syscall.SIGINT)
	})
	return h.termErr
}

// Stop terminates the server and kills its group if it is still running
// after grace.
func (h *Handle) Stop(grace time.Duration) error {
	if err := h.Terminate(); err != nil {
		return err
	}
	select {
	case <-h.done:
		return nil
	case <-time.After(grace):
	}
	if err := h.proc.Stop(syscall.SIGKILL, 0); err != nil {
		return err
	}
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		// output pipes held open by an orphaned descendant
	}
	return nil
}
