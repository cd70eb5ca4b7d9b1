package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotProjectRoot is returned when the working directory lacks package.json or node_modules.
var ErrNotProjectRoot = errors.New("must be run from the root of a node project with installed dependencies")

// Paths is the resolved filesystem layout for one studio session.
type Paths struct {
	Home        string
	StudioRoot  string
	ClientDir   string
	VersionFile string
	StagingDir  string
	DevCacheDir string
	LogDir      string
	ProjectDir  string
	Manifest    string
}

// Paths resolves the layout for a project rooted at projectDir.
func (s *Settings) Paths(projectDir string) Paths {
	root := filepath.Join(s.Home, "studio")
	client := filepath.Join(root, "client")
	p := Paths{
		Home:        s.Home,
		StudioRoot:  root,
		ClientDir:   client,
		VersionFile: filepath.Join(root, "onu-studio-version.txt"),
		StagingDir:  filepath.Join(root, "dist"),
		LogDir:      s.Log.File.Dir,
		ProjectDir:  projectDir,
		Manifest:    filepath.Join(projectDir, ManifestFileName),
	}
	if s.Studio.DevCache != "" {
		p.DevCacheDir = filepath.Join(client, s.Studio.DevCache)
	}
	return p
}

// CheckProjectRoot verifies dir looks like an installed node project.
func CheckProjectRoot(dir string) error {
	for _, name := range []string{"package.json", "node_modules"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("%w: %s not found in %s", ErrNotProjectRoot, name, dir)
			}
			return err
		}
	}
	return nil
}
