// Package projector turns a user's task sources into a runnable tree in the
// studio staging directory, either by compiling with tsc or by mirroring.
package projector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/onuhq/onu/internal/metrics"
	"github.com/onuhq/onu/internal/process"
)

type Mode string

const (
	ModeAuto    Mode = "auto"
	ModeCompile Mode = "compile"
	ModeCopy    Mode = "copy"
)

// DefaultTSConfig is looked up at the source root in auto mode.
const DefaultTSConfig = "tsconfig.json"

// dependency manifests copied into staging before installing
var depFiles = []string{"package.json", "yarn.lock", "package-lock.json", "npm-shrinkwrap.json"}

// ProjectionError carries the step that failed and its captured output.
type ProjectionError struct {
	Step   string
	Output []byte
	Err    error
}

func (e *ProjectionError) Error() string {
	return fmt.Sprintf("projection step %s failed: %v", e.Step, e.Err)
}

func (e *ProjectionError) Unwrap() error { return e.Err }

type Config struct {
	CompileCommand string
	AliasCommand   string
	InstallCommand string
	Exclude        []string
	Env            []string
}

type Request struct {
	SourceRoot  string
	StagingPath string
	// TSConfig is relative to SourceRoot unless absolute.
	TSConfig    string
	Mode        Mode
	InstallDeps bool
}

type Result struct {
	Mode     Mode
	Written  int
	Removed  int
	Duration time.Duration
}

type Projector struct {
	cfg    Config
	runner process.Runner
	log    *slog.Logger
}

func New(cfg Config, runner process.Runner, log *slog.Logger) *Projector {
	if cfg.CompileCommand == "" {
		cfg.CompileCommand = "npx --yes tsc"
	}
	if cfg.AliasCommand == "" {
		cfg.AliasCommand = "npx --yes tsc-alias"
	}
	if cfg.InstallCommand == "" {
		cfg.InstallCommand = "yarn"
	}
	if cfg.Exclude == nil {
		cfg.Exclude = []string{"node_modules", ".git"}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Projector{cfg: cfg, runner: runner, log: log}
}

func tsconfigPath(root, tsconfig string) string {
	if tsconfig == "" {
		tsconfig = DefaultTSConfig
	}
	if filepath.IsAbs(tsconfig) {
		return tsconfig
	}
	return filepath.Join(root, tsconfig)
}

// DetectMode resolves auto to compile when the type-checker config exists
// at the source root and to copy otherwise. Explicit modes are returned as is.
func DetectMode(sourceRoot, tsconfig string, configured Mode) Mode {
	switch configured {
	case ModeCompile, ModeCopy:
		return configured
	}
	if _, err := os.Stat(tsconfigPath(sourceRoot, tsconfig)); err == nil {
		return ModeCompile
	}
	return ModeCopy
}

// Project stages req.SourceRoot into req.StagingPath. With InstallDeps the
// staging directory is recreated and dependencies are installed into it.
func (p *Projector) Project(ctx context.Context, req Request) (res Result, err error) {
	start := time.Now()
	res.Mode = DetectMode(req.SourceRoot, req.TSConfig, req.Mode)
	kind := "reload"
	if req.InstallDeps {
		kind = "full"
	}
	defer func() {
		res.Duration = time.Since(start)
		metrics.IncProjection(string(res.Mode), kind, err)
	}()

	if req.SourceRoot == "" || req.StagingPath == "" {
		return res, &ProjectionError{Step: "prepare", Err: errors.New("source root and staging path are required")}
	}
	if req.InstallDeps {
		if err := os.RemoveAll(req.StagingPath); err != nil {
			return res, &ProjectionError{Step: "prepare", Err: err}
		}
	}
	if err := os.MkdirAll(req.StagingPath, 0o755); err != nil {
		return res, &ProjectionError{Step: "prepare", Err: err}
	}

	switch res.Mode {
	case ModeCompile:
		st, err := p.compile(ctx, req)
		res.Written, res.Removed = st.Written, st.Removed
		if err != nil {
			return res, err
		}
	default:
		st, err := Mirror(req.SourceRoot, req.StagingPath, p.cfg.Exclude)
		res.Written, res.Removed = st.Written, st.Removed
		if err != nil {
			return res, &ProjectionError{Step: "sync", Err: err}
		}
	}

	if req.InstallDeps {
		if err := p.installDeps(ctx, req); err != nil {
			return res, err
		}
	}
	p.log.Debug("projected sources", "mode", res.Mode, "kind", kind, "written", res.Written, "removed", res.Removed)
	return res, nil
}

func (p *Projector) run(ctx context.Context, step string, spec process.Spec) error {
	out, err := p.runner.Run(ctx, spec)
	if err != nil {
		return &ProjectionError{Step: step, Output: out, Err: err}
	}
	return nil
}

// compile builds into a scratch directory next to the staging path and
// mirrors the result only when every step succeeded, so a failed build
// leaves the last good output in place.
func (p *Projector) compile(ctx context.Context, req Request) (SyncStats, error) {
	tmp, err := os.MkdirTemp(filepath.Dir(req.StagingPath), ".compile-")
	if err != nil {
		return SyncStats{}, &ProjectionError{Step: "prepare", Err: err}
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	cfgPath := tsconfigPath(req.SourceRoot, req.TSConfig)
	args := []string{"-p", cfgPath, "--outDir", tmp}
	err = p.run(ctx, "compile", process.Spec{
		Name:    "tsc",
		Command: p.cfg.CompileCommand,
		Args:    args,
		WorkDir: req.SourceRoot,
		Env:     p.cfg.Env,
	})
	if err != nil {
		return SyncStats{}, err
	}
	if needsAliasPass(cfgPath) {
		err = p.run(ctx, "alias", process.Spec{
			Name:    "tsc-alias",
			Command: p.cfg.AliasCommand,
			Args:    args,
			WorkDir: req.SourceRoot,
			Env:     p.cfg.Env,
		})
		if err != nil {
			return SyncStats{}, err
		}
	}
	// dependency manifests live next to the compiled output
	if err := copyDepFiles(req.SourceRoot, tmp); err != nil {
		return SyncStats{}, &ProjectionError{Step: "sync", Err: err}
	}
	st, err := Mirror(tmp, req.StagingPath, p.cfg.Exclude)
	if err != nil {
		return st, &ProjectionError{Step: "sync", Err: err}
	}
	return st, nil
}

func copyDepFiles(srcRoot, dst string) error {
	for _, name := range depFiles {
		src := filepath.Join(srcRoot, name)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if _, err := syncFile(src, filepath.Join(dst, name)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Projector) installDeps(ctx context.Context, req Request) error {
	copied := 0
	for _, name := range depFiles {
		src := filepath.Join(req.SourceRoot, name)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if _, err := syncFile(src, filepath.Join(req.StagingPath, name)); err != nil {
			return &ProjectionError{Step: "install", Err: err}
		}
		copied++
	}
	if copied == 0 {
		p.log.Debug("no dependency manifest, skipping install", "source", req.SourceRoot)
		return nil
	}
	return p.run(ctx, "install", process.Spec{
		Name:    "staging-install",
		Command: p.cfg.InstallCommand,
		WorkDir: req.StagingPath,
		Env:     p.cfg.Env,
	})
}
