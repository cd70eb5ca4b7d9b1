package studio

import (
	"context"
	"fmt"
	"time"

	"github.com/onuhq/onu/internal/bundle"
	"github.com/onuhq/onu/internal/env"
	"github.com/onuhq/onu/internal/projector"
	"github.com/onuhq/onu/internal/supervisor"
	"github.com/onuhq/onu/internal/watcher"
)

// BundleCache is the part of *bundle.Cache the manager drives.
type BundleCache interface {
	Ensure(ctx context.Context, version string) (bundle.Result, error)
	Online(ctx context.Context) bool
	DepsInstalled() bool
	InstallDeps(ctx context.Context) error
}

type Projector interface {
	Project(ctx context.Context, req projector.Request) (projector.Result, error)
}

// Server is a launched studio server.
type Server interface {
	Ready() <-chan struct{}
	Done() <-chan struct{}
	Terminate() error
	Stop(grace time.Duration) error
	PID() int
}

type Launcher interface {
	Configure(ctx context.Context, port int, sourcePath string, extra env.Var) error
	Launch(port int, sourcePath string, extra env.Var) (Server, error)
	// Reconfigure re-runs the configuration step for a launched server.
	Reconfigure(ctx context.Context, srv Server, extra env.Var) error
}

type Watcher interface {
	Start(ctx context.Context, onChange watcher.Handler) error
	Stop()
}

// Notifier prints user-facing messages.
type Notifier interface {
	Success(format string, a ...any)
	Notice(format string, a ...any)
	Warn(format string, a ...any)
	Error(format string, a ...any)
}

type supervisorLauncher struct {
	s *supervisor.Supervisor
}

// FromSupervisor adapts a supervisor to the Launcher interface.
func FromSupervisor(s *supervisor.Supervisor) Launcher { return supervisorLauncher{s: s} }

func (l supervisorLauncher) Configure(ctx context.Context, port int, sourcePath string, extra env.Var) error {
	return l.s.Configure(ctx, port, sourcePath, extra)
}

func (l supervisorLauncher) Launch(port int, sourcePath string, extra env.Var) (Server, error) {
	h, err := l.s.Launch(port, sourcePath, extra)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (l supervisorLauncher) Reconfigure(ctx context.Context, srv Server, extra env.Var) error {
	h, ok := srv.(*supervisor.Handle)
	if !ok {
		return fmt.Errorf("reconfigure: unexpected server type %T", srv)
	}
	return l.s.Reconfigure(ctx, h, extra)
}
