package config

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/onuhq/onu/internal/env"
)

// ManifestFileName is the project manifest read from the project root.
const ManifestFileName = "onu.dev.json"

var (
	ErrManifestNotFound     = errors.New("onu.dev.json not found")
	ErrManifestPathRequired = errors.New("onu.dev.json requires a non-empty \"path\"")
)

// Manifest is the per-project onu.dev.json. Path points at the task
// sources relative to the project root; Env is passed to the studio.
type Manifest struct {
	Path string         `json:"path"`
	Env  map[string]any `json:"env,omitempty"`
}

// LoadManifest reads and validates the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, path)
		}
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks that Path is present and stays inside the project.
func (m *Manifest) Validate() error {
	p := strings.TrimSpace(m.Path)
	if p == "" {
		return ErrManifestPathRequired
	}
	if filepath.IsAbs(p) {
		return fmt.Errorf("manifest path %q must be relative to the project root", m.Path)
	}
	clean := filepath.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("manifest path %q escapes the project root", m.Path)
	}
	return nil
}

// RelPath is the cleaned source path handed to the reconfigure command.
func (m *Manifest) RelPath() string {
	return filepath.Clean(strings.TrimSpace(m.Path))
}

// FlatEnv renders Env as string variables for the child process.
func (m *Manifest) FlatEnv() (env.Var, error) {
	return env.Flatten(m.Env)
}

// WriteManifest writes m to path as indented JSON.
func WriteManifest(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// EnsureGitIgnore appends entry to dir/.gitignore unless a line already
// matches it. It reports whether the file changed.
func EnsureGitIgnore(dir, entry string) (bool, error) {
	path := filepath.Join(dir, ".gitignore")
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return false, err
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == entry || line == "/"+entry {
			return false, nil
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return false, err
	}
	defer func() { _ = f.Close() }()
	var b strings.Builder
	if len(data) > 0 && data[len(data)-1] != '\n' {
		b.WriteByte('\n')
	}
	b.WriteString(entry)
	b.WriteByte('\n')
	if _, err := f.WriteString(b.String()); err != nil {
		return false, err
	}
	return true, nil
}
