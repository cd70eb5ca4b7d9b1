package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/onuhq/onu/internal/bundle"
	"github.com/onuhq/onu/internal/config"
	"github.com/onuhq/onu/internal/env"
	"github.com/onuhq/onu/internal/logger"
	"github.com/onuhq/onu/internal/process"
	"github.com/onuhq/onu/internal/projector"
	"github.com/onuhq/onu/internal/studio"
	"github.com/onuhq/onu/internal/supervisor"
	"github.com/onuhq/onu/internal/ui"
	"github.com/onuhq/onu/internal/watcher"
	"github.com/pkg/browser"
	"gopkg.in/yaml.v3"
)

// command carries the collaborators of every subcommand. Fields are
// swapped out in tests.
type command struct {
	console     *ui.Console
	runner      process.Runner
	interactive func() bool
	lookPath    func(string) (string, error)
	getwd       func() (string, error)
	openURL     func(string) error
	stderr      io.Writer
}

func newCommand() *command {
	console := ui.NewConsole()
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
	return &command{
		console:     console,
		runner:      process.ExecRunner{},
		interactive: console.Interactive,
		lookPath:    exec.LookPath,
		getwd:       os.Getwd,
		openURL:     browser.OpenURL,
		stderr:      os.Stderr,
	}
}

func (c *command) load(g GlobalFlags) (*config.Settings, *slog.Logger, error) {
	s, err := config.LoadSettings(g.ConfigPath)
	if err != nil {
		return nil, nil, err
	}
	if g.LogLevel != "" {
		s.Log.Level = g.LogLevel
	}
	log := logger.New(c.stderr, s.Log.Level, s.Log.Color)
	slog.SetDefault(log)
	return s, log, nil
}

func newCache(s *config.Settings, paths config.Paths, runner process.Runner, base *env.Env, log *slog.Logger) *bundle.Cache {
	return bundle.New(bundle.Config{
		Root:           paths.StudioRoot,
		ClientDir:      paths.ClientDir,
		VersionFile:    paths.VersionFile,
		Owner:          s.Studio.Owner,
		Repo:           s.Studio.Repo,
		InstallCommand: s.Studio.InstallCommand,
		Env:            base.Merge(nil),
	},
		&bundle.HTTPFetcher{BaseURL: s.Studio.APIURL, Token: os.Getenv("GITHUB_TOKEN")},
		&bundle.HTTPProber{URL: s.Studio.ProbeURL, Retries: 1},
		runner, log)
}

// Dev runs a studio session for the project in the working directory.
func (c *command) Dev(ctx context.Context, g GlobalFlags, f DevFlags) error {
	s, log, err := c.load(g)
	if err != nil {
		return err
	}
	if f.Mode != "" {
		s.Projection.Mode = f.Mode
		if err := validMode(f.Mode); err != nil {
			return err
		}
	}
	if err := validPort(f.Port); err != nil {
		return err
	}

	cwd, err := c.getwd()
	if err != nil {
		return err
	}
	if err := config.CheckProjectRoot(cwd); err != nil {
		return fmt.Errorf("you must run this command in the project's root directory: %w", err)
	}
	paths := s.Paths(cwd)
	if err := c.ensureManifest(paths); err != nil {
		return err
	}
	if err := c.ensureYarn(ctx); err != nil {
		return err
	}
	port, err := c.resolvePort(f.Port)
	if err != nil {
		return err
	}
	if f.MetricsListen != "" {
		if err := serveMetrics(f.MetricsListen, log); err != nil {
			return err
		}
	}

	base := env.New()
	base.FromOS()
	rel, err := filepath.Rel(paths.ClientDir, cwd)
	if err != nil {
		rel = cwd
	}

	cache := newCache(s, paths, c.runner, base, log)
	proj := projector.New(projector.Config{
		CompileCommand: s.Projection.CompileCommand,
		AliasCommand:   s.Projection.AliasCommand,
		InstallCommand: s.Projection.InstallCommand,
		Exclude:        s.Projection.Exclude,
		Env:            base.Merge(nil),
	}, c.runner, log)
	sup := supervisor.New(supervisor.Config{
		ClientDir:          paths.ClientDir,
		StartCommand:       s.Studio.StartCommand,
		ReconfigureCommand: s.Studio.ReconfigureCommand,
		ReconfigureArg:     rel,
		SourcePathVar:      s.Studio.SourcePathVar,
		ReadyMarker:        s.Studio.ReadyMarker,
		BenignStderr:       s.Studio.BenignStderr,
		Log:                s.Log.File,
		Env:                base,
		Stdout:             c.console.Out,
		Stderr:             c.stderr,
	}, c.runner, log)

	var sampleEvery time.Duration
	if f.MetricsListen != "" {
		sampleEvery = 5 * time.Second
	}
	mgr := studio.NewManager(studio.Config{
		Version:        s.Studio.Version,
		Host:           s.Studio.Host,
		Port:           port,
		Paths:          paths,
		TSConfig:       f.TSConfig,
		Mode:           projector.Mode(s.Projection.Mode),
		Reinstall:      f.Reinstall,
		ReadyTimeout:   s.Studio.ReadyTimeout,
		StopTimeout:    s.Studio.StopTimeout,
		OpenBrowser:    s.Studio.OpenBrowser && !f.NoOpen,
		SampleInterval: sampleEvery,
	}, studio.Deps{
		Cache:     cache,
		Projector: proj,
		Launcher:  studio.FromSupervisor(sup),
		Watcher:   watcher.New(cwd, s.Projection.Exclude, log),
		Notifier:  c.console,
		OpenURL:   c.openURL,
		Logger:    log,
	})
	return mgr.Run(ctx)
}

func validMode(m string) error {
	switch projector.Mode(m) {
	case projector.ModeAuto, projector.ModeCompile, projector.ModeCopy:
		return nil
	}
	return fmt.Errorf("--mode must be auto, compile or copy, got %q", m)
}

func validPort(p int) error {
	if p < 1 || p > 65535 {
		return fmt.Errorf("%w: --port must be between 1 and 65535, got %d", errInvalidPort, p)
	}
	return nil
}

// Install force-refreshes the studio runtime.
func (c *command) Install(ctx context.Context, g GlobalFlags, f InstallFlags) error {
	s, log, err := c.load(g)
	if err != nil {
		return err
	}
	if err := c.ensureYarn(ctx); err != nil {
		return err
	}
	version := f.Version
	if version == "" {
		version = s.Studio.Version
	}
	cwd, err := c.getwd()
	if err != nil {
		return err
	}
	base := env.New()
	base.FromOS()
	cache := newCache(s, s.Paths(cwd), c.runner, base, log)
	c.console.Notice("Downloading Onu framework %s...", version)
	if err := studio.Install(ctx, cache, version); err != nil {
		return err
	}
	c.console.Success("Onu Studio %s installed.", version)
	return nil
}

// PrintConfig writes the effective settings as YAML.
func (c *command) PrintConfig(w io.Writer, g GlobalFlags) error {
	s, err := config.LoadSettings(g.ConfigPath)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return err
	}
	return enc.Close()
}
