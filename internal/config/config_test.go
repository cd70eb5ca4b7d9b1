package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func TestLoadSettings_Defaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("ONU_HOME", home)

	s, err := LoadSettings("")
	require.NoError(t, err)
	assert.Equal(t, home, s.Home)
	assert.Equal(t, "v0.0.1", s.Studio.Version)
	assert.Equal(t, "onuhq", s.Studio.Owner)
	assert.Equal(t, "studio", s.Studio.Repo)
	assert.Equal(t, "npm run dev", s.Studio.StartCommand)
	assert.Equal(t, "ONU_PATH", s.Studio.SourcePathVar)
	assert.Equal(t, "started server on", s.Studio.ReadyMarker)
	assert.Contains(t, s.Studio.BenignStderr, "ExperimentalWarning")
	assert.Equal(t, 2*time.Minute, s.Studio.ReadyTimeout)
	assert.Equal(t, 5*time.Second, s.Studio.StopTimeout)
	assert.Equal(t, "auto", s.Projection.Mode)
	assert.Equal(t, filepath.Join(home, "logs"), s.Log.File.Dir)
	assert.Equal(t, filepath.Join(home, "logs", "studio.stdout.log"), s.Log.File.StdoutPath)
}

func TestLoadSettings_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "settings.yaml")
	writeFile(t, cfg, `
home: `+dir+`
studio:
  version: v0.0.2
  ready_timeout: 30s
projection:
  mode: copy
log:
  level: debug
`)
	t.Setenv("ONU_STUDIO_OWNER", "acme")

	s, err := LoadSettings(cfg)
	require.NoError(t, err)
	assert.Equal(t, "v0.0.2", s.Studio.Version)
	assert.Equal(t, 30*time.Second, s.Studio.ReadyTimeout)
	assert.Equal(t, "copy", s.Projection.Mode)
	assert.Equal(t, "debug", s.Log.Level)
	assert.Equal(t, "acme", s.Studio.Owner)
}

func TestLoadSettings_DiscoveredInHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("ONU_HOME", home)
	writeFile(t, filepath.Join(home, "settings.toml"), "[studio]\nversion = \"v9\"\n")

	s, err := LoadSettings("")
	require.NoError(t, err)
	assert.Equal(t, "v9", s.Studio.Version)
}

func TestLoadSettings_Errors(t *testing.T) {
	_, err := LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	cfg := filepath.Join(t.TempDir(), "settings.yaml")
	writeFile(t, cfg, "projection:\n  mode: transpile\n")
	_, err = LoadSettings(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "projection.mode")
}

func TestPaths(t *testing.T) {
	s := &Settings{Home: "/h/.onu"}
	s.Studio.DevCache = ".next/cache"
	s.Log.File.Dir = "/h/.onu/logs"
	p := s.Paths("/proj")
	assert.Equal(t, "/h/.onu/studio", p.StudioRoot)
	assert.Equal(t, "/h/.onu/studio/client", p.ClientDir)
	assert.Equal(t, "/h/.onu/studio/onu-studio-version.txt", p.VersionFile)
	assert.Equal(t, "/h/.onu/studio/dist", p.StagingDir)
	assert.Equal(t, "/h/.onu/studio/client/.next/cache", p.DevCacheDir)
	assert.Equal(t, "/proj/onu.dev.json", p.Manifest)
}

func TestCheckProjectRoot(t *testing.T) {
	dir := t.TempDir()
	err := CheckProjectRoot(dir)
	require.True(t, errors.Is(err, ErrNotProjectRoot))

	writeFile(t, filepath.Join(dir, "package.json"), "{}")
	err = CheckProjectRoot(dir)
	require.ErrorIs(t, err, ErrNotProjectRoot)
	assert.Contains(t, err.Error(), "node_modules")

	require.NoError(t, os.Mkdir(filepath.Join(dir, "node_modules"), 0o755))
	require.NoError(t, CheckProjectRoot(dir))
}
