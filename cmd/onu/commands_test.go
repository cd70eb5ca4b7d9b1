package main

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/onuhq/onu/internal/config"
	"github.com/onuhq/onu/internal/process"
	"github.com/onuhq/onu/internal/ui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type fakeRunner struct {
	specs []process.Spec
	err   error
}

func (r *fakeRunner) Run(_ context.Context, spec process.Spec) ([]byte, error) {
	r.specs = append(r.specs, spec)
	return nil, r.err
}

func testCommand(t *testing.T, input string, interactive bool) (*command, *bytes.Buffer, *fakeRunner) {
	t.Helper()
	out := &bytes.Buffer{}
	r := &fakeRunner{}
	return &command{
		console:     &ui.Console{Out: out, In: strings.NewReader(input)},
		runner:      r,
		interactive: func() bool { return interactive },
		lookPath:    func(string) (string, error) { return "/usr/bin/yarn", nil },
		getwd:       func() (string, error) { return t.TempDir(), nil },
		openURL:     func(string) error { return nil },
		stderr:      &bytes.Buffer{},
	}, out, r
}

func busyPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	return ln.Addr().(*net.TCPAddr).Port
}

func TestResolvePort(t *testing.T) {
	c, _, _ := testCommand(t, "", true)
	free, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	port := free.Addr().(*net.TCPAddr).Port
	require.NoError(t, free.Close())

	got, err := c.resolvePort(port)
	require.NoError(t, err)
	assert.Equal(t, port, got)

	busy := busyPort(t)
	c, out, _ := testCommand(t, "y\n", true)
	got, err = c.resolvePort(busy)
	require.NoError(t, err)
	assert.Greater(t, got, busy)
	assert.Contains(t, out.String(), "is already in use")

	c, _, _ = testCommand(t, "n\n", true)
	_, err = c.resolvePort(busy)
	require.ErrorIs(t, err, errNoPort)

	c, out, _ = testCommand(t, "", false)
	got, err = c.resolvePort(busy)
	require.NoError(t, err)
	assert.NotEqual(t, busy, got)
	assert.Contains(t, out.String(), "using port")
}

func testPaths(t *testing.T) config.Paths {
	t.Helper()
	s := &config.Settings{Home: t.TempDir()}
	return s.Paths(t.TempDir())
}

func TestEnsureManifest_Create(t *testing.T) {
	paths := testPaths(t)
	c, _, _ := testCommand(t, "y\nsrc/onu/\ny\n", true)
	require.NoError(t, c.ensureManifest(paths))

	m, err := config.LoadManifest(paths.Manifest)
	require.NoError(t, err)
	assert.Equal(t, "src/onu/", m.Path)

	gi, err := os.ReadFile(filepath.Join(paths.ProjectDir, ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, "onu.dev.json\n", string(gi))

	// existing manifest is left alone
	c, _, _ = testCommand(t, "", true)
	require.NoError(t, c.ensureManifest(paths))
}

func TestEnsureManifest_Declined(t *testing.T) {
	paths := testPaths(t)
	c, _, _ := testCommand(t, "n\n", true)
	require.ErrorIs(t, c.ensureManifest(paths), config.ErrManifestNotFound)
	assert.NoFileExists(t, paths.Manifest)

	c, _, _ = testCommand(t, "y\n\n", true)
	require.ErrorIs(t, c.ensureManifest(paths), config.ErrManifestPathRequired)
	assert.NoFileExists(t, paths.Manifest)

	c, _, _ = testCommand(t, "", false)
	require.ErrorIs(t, c.ensureManifest(paths), config.ErrManifestNotFound)
}

func TestEnsureYarn(t *testing.T) {
	c, _, r := testCommand(t, "", true)
	require.NoError(t, c.ensureYarn(context.Background()))
	assert.Empty(t, r.specs)

	missing := func(string) (string, error) { return "", errors.New("not found") }

	c, _, r = testCommand(t, "y\n", true)
	c.lookPath = missing
	require.NoError(t, c.ensureYarn(context.Background()))
	require.Len(t, r.specs, 1)
	assert.Equal(t, "npm install --global yarn", r.specs[0].Command)

	c, out, r := testCommand(t, "n\n", true)
	c.lookPath = missing
	require.ErrorIs(t, c.ensureYarn(context.Background()), errYarnMissing)
	assert.Empty(t, r.specs)
	assert.Contains(t, out.String(), "Installation cancelled.")

	c, _, _ = testCommand(t, "", false)
	c.lookPath = missing
	require.ErrorIs(t, c.ensureYarn(context.Background()), errYarnMissing)
}

func TestDev_RequiresProjectRoot(t *testing.T) {
	t.Setenv("ONU_HOME", t.TempDir())
	c, _, r := testCommand(t, "", false)
	err := c.Dev(context.Background(), GlobalFlags{}, DevFlags{Port: 3000})
	require.ErrorIs(t, err, config.ErrNotProjectRoot)
	assert.Empty(t, r.specs)
}

func TestDev_RejectsBadMode(t *testing.T) {
	t.Setenv("ONU_HOME", t.TempDir())
	c, _, _ := testCommand(t, "", false)
	err := c.Dev(context.Background(), GlobalFlags{}, DevFlags{Port: 3000, Mode: "transpile"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--mode")
}

func TestDev_RejectsOutOfRangePort(t *testing.T) {
	t.Setenv("ONU_HOME", t.TempDir())
	for _, port := range []int{0, -1, 65536, 70000} {
		c, out, r := testCommand(t, "", true)
		err := c.Dev(context.Background(), GlobalFlags{}, DevFlags{Port: port})
		require.ErrorIs(t, err, errInvalidPort, "port %d", port)
		assert.NotErrorIs(t, err, errNoPort)
		assert.Empty(t, out.String(), "no prompt for port %d", port)
		assert.Empty(t, r.specs)
	}
}

func TestPrintConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("ONU_HOME", home)
	t.Setenv("ONU_STUDIO_VERSION", "v0.0.7")
	c, _, _ := testCommand(t, "", false)

	var buf bytes.Buffer
	require.NoError(t, c.PrintConfig(&buf, GlobalFlags{}))

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	studio, ok := got["studio"].(map[string]any)
	require.True(t, ok, "studio section present: %s", buf.String())
	assert.Equal(t, "v0.0.7", studio["version"])
	assert.Equal(t, home, got["home"])
}

func TestRootCommand(t *testing.T) {
	root := buildRoot(&command{})
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["dev"])
	assert.True(t, names["install"])
	assert.True(t, names["config"])

	dev, _, err := root.Find([]string{"dev"})
	require.NoError(t, err)
	require.NoError(t, dev.ParseFlags([]string{"-p", "8000", "-t", "tsconfig.build.json", "--reinstall"}))
	port, _ := dev.Flags().GetInt("port")
	assert.Equal(t, 8000, port)
	ts, _ := dev.Flags().GetString("tsconfig")
	assert.Equal(t, "tsconfig.build.json", ts)
	re, _ := dev.Flags().GetBool("reinstall")
	assert.True(t, re)
}
