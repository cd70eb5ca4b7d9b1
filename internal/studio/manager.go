// Package studio runs a local studio session: it prepares the runtime
// bundle, stages the project sources, starts the server and hot-reloads it.
package studio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/onuhq/onu/internal/config"
	"github.com/onuhq/onu/internal/env"
	"github.com/onuhq/onu/internal/metrics"
	"github.com/onuhq/onu/internal/projector"
	"github.com/onuhq/onu/internal/supervisor"
	"github.com/onuhq/onu/internal/watcher"
)

var (
	ErrOfflineDepsMissing = errors.New("studio dependencies are missing and you are offline; connect to the internet and run `onu install`")
	ErrInstallOffline     = errors.New("installing Onu Studio requires an internet connection")
	ErrServerExited       = errors.New("studio server exited unexpectedly")
)

// ExitMessage is printed when the session ends on an interrupt.
const ExitMessage = "✨ Successfully exited Onu Studio"

type Config struct {
	Version  string
	Host     string
	Port     int
	Paths    config.Paths
	TSConfig string
	Mode     projector.Mode
	// Reinstall forces a dependency install in the bundle.
	Reinstall    bool
	ReadyTimeout time.Duration
	StopTimeout  time.Duration
	OpenBrowser  bool
	// SampleInterval enables resource sampling of the server when positive.
	SampleInterval time.Duration
}

// URL is where the studio is served.
func (c Config) URL() string {
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, c.Port)
}

type Deps struct {
	Cache     BundleCache
	Projector Projector
	Launcher  Launcher
	Watcher   Watcher
	Notifier  Notifier
	// OpenURL opens the studio in a browser; nil disables it.
	OpenURL func(url string) error
	// Signals overrides the OS signal subscription.
	Signals <-chan os.Signal
	Logger  *slog.Logger
}

type Manager struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	reloadMu     sync.Mutex
	server       Server
	launchedPath string

	readyOnce    sync.Once
	shutdownOnce sync.Once
}

func NewManager(cfg Config, deps Deps) *Manager {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}
	return &Manager{cfg: cfg, deps: deps, log: log}
}

// Run executes one dev session and blocks until it ends. A nil return
// means the session was stopped by a signal or by ctx.
func (m *Manager) Run(ctx context.Context) error {
	manifest, extra, err := m.loadManifest()
	if err != nil {
		return err
	}
	if err := m.prepareBundle(ctx); err != nil {
		return err
	}
	if err := m.fullBuild(ctx); err != nil {
		return err
	}

	sourcePath := m.sourcePath(manifest)
	if err := m.deps.Launcher.Configure(ctx, m.cfg.Port, sourcePath, extra); err != nil {
		m.deps.Notifier.Warn("Studio configuration step failed: %v", err)
	}

	m.deps.Notifier.Notice("Local Onu Studio instance is ready. Launching your site...")
	srv, err := m.deps.Launcher.Launch(m.cfg.Port, sourcePath, extra)
	if err != nil {
		return fmt.Errorf("launch studio: %w", err)
	}
	m.server = srv
	m.launchedPath = sourcePath

	sigs := m.deps.Signals
	if sigs == nil {
		ch := make(chan os.Signal, 2)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		sigs = ch
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if m.cfg.SampleInterval > 0 && srv.PID() > 0 {
		go metrics.Sampler{Interval: m.cfg.SampleInterval, Logger: m.log}.Run(ctx, int32(srv.PID()))
	}

	if err := m.deps.Watcher.Start(ctx, m.Reload); err != nil {
		m.shutdown()
		return fmt.Errorf("watch %s: %w", m.cfg.Paths.ProjectDir, err)
	}

	var readyTimeout <-chan time.Time
	if m.cfg.ReadyTimeout > 0 {
		t := time.NewTimer(m.cfg.ReadyTimeout)
		defer t.Stop()
		readyTimeout = t.C
	}

	ready := srv.Ready()
	for {
		select {
		case <-ready:
			ready = nil
			readyTimeout = nil
			m.announce()
		case <-readyTimeout:
			m.shutdown()
			return fmt.Errorf("%w (waited %s)", supervisor.ErrReadyTimeout, m.cfg.ReadyTimeout)
		case <-srv.Done():
			m.shutdown()
			return ErrServerExited
		case sig := <-sigs:
			m.log.Debug("received signal", "signal", sig)
			m.shutdown()
			if sig == os.Interrupt {
				m.deps.Notifier.Success("\n%s\n", ExitMessage)
			}
			return nil
		case <-ctx.Done():
			m.shutdown()
			return nil
		}
	}
}

func (m *Manager) loadManifest() (*config.Manifest, env.Var, error) {
	man, err := config.LoadManifest(m.cfg.Paths.Manifest)
	if err != nil {
		return nil, nil, err
	}
	extra, err := man.FlatEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", config.ManifestFileName, err)
	}
	return man, extra, nil
}

func (m *Manager) sourcePath(man *config.Manifest) string {
	return filepath.Join(m.cfg.Paths.StagingDir, man.RelPath())
}

// prepareBundle refreshes the runtime when needed and makes sure its
// dependencies are installed.
func (m *Manager) prepareBundle(ctx context.Context) error {
	m.deps.Notifier.Notice("Preparing local Onu Studio instance...")
	res, err := m.deps.Cache.Ensure(ctx, m.cfg.Version)
	if err != nil {
		return err
	}
	if res.Stale {
		m.deps.Notifier.Warn("You are offline, using Onu Studio %s instead of %s", orUnknown(res.Version), m.cfg.Version)
	}
	if res.Refreshed || (!m.cfg.Reinstall && m.deps.Cache.DepsInstalled()) {
		return nil
	}

	online := res.Online
	if !res.Checked {
		online = m.deps.Cache.Online(ctx)
	}
	if !online {
		return ErrOfflineDepsMissing
	}
	m.deps.Notifier.Notice("Installing dependencies...")
	return m.deps.Cache.InstallDeps(ctx)
}

func orUnknown(v string) string {
	if v == "" {
		return "(unknown version)"
	}
	return v
}

// fullBuild clears the server's dev cache and stages the project from scratch.
func (m *Manager) fullBuild(ctx context.Context) error {
	if dir := m.cfg.Paths.DevCacheDir; dir != "" {
		if err := os.RemoveAll(dir); err != nil {
			m.log.Warn("remove dev cache", "path", dir, "error", err)
		}
	}
	res, err := m.deps.Projector.Project(ctx, m.request(true))
	if err != nil {
		m.reportProjection(err)
		return err
	}
	if res.Mode == projector.ModeCompile {
		m.deps.Notifier.Notice("Compiled Typescript files")
	}
	return nil
}

func (m *Manager) request(installDeps bool) projector.Request {
	return projector.Request{
		SourceRoot:  m.cfg.Paths.ProjectDir,
		StagingPath: m.cfg.Paths.StagingDir,
		TSConfig:    m.cfg.TSConfig,
		Mode:        m.cfg.Mode,
		InstallDeps: installDeps,
	}
}

func (m *Manager) reportProjection(err error) {
	var pe *projector.ProjectionError
	if errors.As(err, &pe) && len(pe.Output) > 0 {
		m.deps.Notifier.Error("%s", string(pe.Output))
	}
	m.deps.Notifier.Error("There was an error compiling your files: %v", err)
}

// Reload runs one hot-reload cycle. Failures are reported and leave the
// running server and the last good staged output in place.
func (m *Manager) Reload(ctx context.Context, ev watcher.Event) {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	err := m.reload(ctx, ev)
	metrics.IncReload(err)
	if err != nil {
		m.log.Debug("reload failed", "path", ev.Path, "op", ev.Op, "error", err)
	}
}

func (m *Manager) reload(ctx context.Context, ev watcher.Event) error {
	m.log.Debug("source changed", "path", ev.Path, "op", ev.Op)
	man, extra, err := m.loadManifest()
	if err != nil {
		m.deps.Notifier.Error("Skipping reload: %v", err)
		return err
	}
	if p := m.sourcePath(man); p != m.launchedPath {
		m.deps.Notifier.Warn("The path in %s changed to %q; restart `onu dev` to serve it.", config.ManifestFileName, man.Path)
	}
	if _, err := m.deps.Projector.Project(ctx, m.request(false)); err != nil {
		m.reportProjection(err)
		return err
	}
	if err := m.deps.Launcher.Reconfigure(ctx, m.server, extra); err != nil {
		m.deps.Notifier.Warn("Studio reconfigure failed: %v", err)
		return err
	}
	return nil
}

func (m *Manager) announce() {
	m.readyOnce.Do(func() {
		url := m.cfg.URL()
		m.deps.Notifier.Success("Onu Studio is available at %s", url)
		m.deps.Notifier.Success("Press Ctrl+C any time to stop the local studio.")
		if m.cfg.OpenBrowser && m.deps.OpenURL != nil {
			if err := m.deps.OpenURL(url); err != nil {
				m.log.Debug("open browser", "url", url, "error", err)
			}
		}
	})
}

// shutdown stops the watcher and the server exactly once.
func (m *Manager) shutdown() {
	m.shutdownOnce.Do(func() {
		m.deps.Watcher.Stop()
		if m.server != nil {
			if err := m.server.Stop(m.cfg.StopTimeout); err != nil {
				m.log.Warn("stop studio server", "error", err)
			}
		}
	})
}

// Install downloads the configured version regardless of the local marker.
func Install(ctx context.Context, cache Refresher, version string) error {
	if !cache.Online(ctx) {
		return ErrInstallOffline
	}
	return cache.Refresh(ctx, version)
}

// Refresher is implemented by *bundle.Cache.
type Refresher interface {
	Online(ctx context.Context) bool
	Refresh(ctx context.Context, version string) error
}
