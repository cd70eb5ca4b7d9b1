// Package bundle keeps a versioned copy of the studio runtime on local disk.
//
// The on-disk layout under Root is:
//
//	client/                    extracted release archive
//	onu-studio-version.txt     marker holding the installed version tag
//
// The marker equals the target tag only when client/ holds that release.
package bundle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/onuhq/onu/internal/metrics"
	"github.com/onuhq/onu/internal/process"
)

// ErrOfflineFirstRun is returned when no bundle exists and the source is unreachable.
var ErrOfflineFirstRun = errors.New("running Onu Studio for the first time requires an internet connection")

// Config describes where the bundle lives and how it is obtained.
type Config struct {
	Root           string
	ClientDir      string
	VersionFile    string
	Owner          string
	Repo           string
	InstallCommand string
	Env            []string
	// MaxRetries bounds download attempts after the first one.
	MaxRetries uint64
}

// Cache implements ensure/refresh for one bundle location.
type Cache struct {
	cfg     Config
	fetcher Fetcher
	prober  Prober
	runner  process.Runner
	log     *slog.Logger

	newBackOff func() backoff.BackOff
}

// Result describes what Ensure did.
type Result struct {
	Version   string
	Refreshed bool
	// Checked reports whether reachability was probed; Online is only meaningful then.
	Checked bool
	Online  bool
	// Stale is set when an outdated or unversioned bundle is used offline.
	Stale bool
}

func New(cfg Config, fetcher Fetcher, prober Prober, runner process.Runner, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	if cfg.ClientDir == "" {
		cfg.ClientDir = filepath.Join(cfg.Root, "client")
	}
	if cfg.VersionFile == "" {
		cfg.VersionFile = filepath.Join(cfg.Root, "onu-studio-version.txt")
	}
	if cfg.InstallCommand == "" {
		cfg.InstallCommand = "yarn"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	return &Cache{
		cfg:     cfg,
		fetcher: fetcher,
		prober:  prober,
		runner:  runner,
		log:     log,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = time.Minute
			return b
		},
	}
}

// ClientDir is the extracted bundle directory.
func (c *Cache) ClientDir() string { return c.cfg.ClientDir }

// Exists reports whether any bundle, of any version, is on disk.
func (c *Cache) Exists() bool {
	st, err := os.Stat(c.cfg.ClientDir)
	return err == nil && st.IsDir()
}

// CurrentVersion returns the marker content, or "" when absent.
func (c *Cache) CurrentVersion() (string, error) {
	b, err := os.ReadFile(c.cfg.VersionFile)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// DepsInstalled reports whether the bundle's dependencies look installed.
func (c *Cache) DepsInstalled() bool {
	st, err := os.Stat(filepath.Join(c.cfg.ClientDir, "node_modules"))
	return err == nil && st.IsDir()
}

// Online probes the bundle source.
func (c *Cache) Online(ctx context.Context) bool {
	if c.prober == nil {
		return false
	}
	return c.prober.Online(ctx)
}

// Ensure makes sure the bundle at version is present. A matching marker
// short-circuits without touching the network or the disk.
func (c *Cache) Ensure(ctx context.Context, version string) (Result, error) {
	cur, err := c.CurrentVersion()
	if err != nil {
		return Result{}, fmt.Errorf("read version marker: %w", err)
	}
	if cur == version && c.Exists() {
		c.log.Debug("studio bundle up to date", "version", version)
		return Result{Version: version}, nil
	}

	online := c.Online(ctx)
	res := Result{Checked: true, Online: online}
	if !online {
		if !c.Exists() {
			return res, ErrOfflineFirstRun
		}
		c.log.Warn("offline, using existing studio bundle", "have", cur, "want", version)
		res.Version = cur
		res.Stale = true
		return res, nil
	}

	if err := c.Refresh(ctx, version); err != nil {
		return res, err
	}
	res.Version = version
	res.Refreshed = true
	return res, nil
}

// Refresh replaces the bundle with version regardless of the marker, then
// installs its dependencies. The previous bundle is kept until the new
// archive has been extracted.
func (c *Cache) Refresh(ctx context.Context, version string) (err error) {
	defer func() { metrics.IncBundleRefresh(err) }()

	if c.fetcher == nil {
		return errors.New("bundle fetcher not configured")
	}
	if err := os.MkdirAll(c.cfg.Root, 0o755); err != nil {
		return fmt.Errorf("create studio dir: %w", err)
	}
	if err := os.Remove(c.cfg.VersionFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove version marker: %w", err)
	}

	c.log.Info("downloading Onu framework", "owner", c.cfg.Owner, "repo", c.cfg.Repo, "version", version)
	tmp, err := c.download(ctx, version)
	if err != nil {
		return err
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	if err := c.clearRoot(filepath.Base(tmp)); err != nil {
		return fmt.Errorf("clear studio dir: %w", err)
	}
	if err := os.Rename(tmp, c.cfg.ClientDir); err != nil {
		return fmt.Errorf("install bundle: %w", err)
	}
	if err := os.WriteFile(c.cfg.VersionFile, []byte(version), 0o644); err != nil {
		return fmt.Errorf("write version marker: %w", err)
	}

	c.log.Info("installing studio dependencies")
	return c.InstallDeps(ctx)
}

func (c *Cache) download(ctx context.Context, version string) (string, error) {
	var tmp string
	op := func() error {
		if tmp != "" {
			_ = os.RemoveAll(tmp)
		}
		d, err := os.MkdirTemp(c.cfg.Root, ".download-")
		if err != nil {
			return backoff.Permanent(err)
		}
		tmp = d
		body, err := c.fetcher.Fetch(ctx, c.cfg.Owner, c.cfg.Repo, version)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && se.Code >= 400 && se.Code < 500 {
				return backoff.Permanent(err)
			}
			return err
		}
		defer func() { _ = body.Close() }()
		n, err := Extract(body, tmp, 1)
		if err != nil {
			return err
		}
		c.log.Debug("extracted studio bundle", "files", n)
		return nil
	}
	notify := func(err error, d time.Duration) {
		c.log.Warn("bundle download failed, retrying", "error", err, "in", d)
	}
	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.cfg.MaxRetries), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		if tmp != "" {
			_ = os.RemoveAll(tmp)
		}
		return "", fmt.Errorf("download %s/%s@%s: %w", c.cfg.Owner, c.cfg.Repo, version, err)
	}
	return tmp, nil
}

// clearRoot empties Root except for the entry named keep.
func (c *Cache) clearRoot(keep string) error {
	entries, err := os.ReadDir(c.cfg.Root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name() == keep {
			continue
		}
		if err := os.RemoveAll(filepath.Join(c.cfg.Root, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// InstallDeps runs the package manager inside the bundle.
func (c *Cache) InstallDeps(ctx context.Context) error {
	if c.runner == nil {
		return errors.New("bundle runner not configured")
	}
	spec := process.Spec{
		Name:    "studio-install",
		Command: c.cfg.InstallCommand,
		WorkDir: c.cfg.ClientDir,
		Env:     c.cfg.Env,
	}
	if _, err := c.runner.Run(ctx, spec); err != nil {
		return fmt.Errorf("install studio dependencies: %w", err)
	}
	return nil
}
