package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/onuhq/onu/internal/config"
	"github.com/onuhq/onu/internal/ports"
	"github.com/onuhq/onu/internal/process"
)

var (
	errNoPort      = errors.New("no available port found")
	errInvalidPort = errors.New("invalid port")
	errYarnMissing = errors.New("yarn must be installed, run\n\n    npm install --global yarn\n")
)

// portScanSpan bounds the search for a free port after a busy one.
const portScanSpan = 100

// resolvePort returns port when it is free. Otherwise it offers the next
// free port, repeating until one is accepted or declined.
func (c *command) resolvePort(port int) (int, error) {
	for {
		if ports.Available(port) {
			return port, nil
		}
		next, err := ports.NextAvailable(port+1, portScanSpan)
		if err != nil {
			return 0, errNoPort
		}
		if !c.interactive() {
			c.console.Warn("Port %d is already in use, using port %d instead.", port, next)
			return next, nil
		}
		ok, err := c.console.Confirm(fmt.Sprintf("Port %d is already in use. Use port %d instead?", port, next), true)
		if err != nil || !ok {
			return 0, errNoPort
		}
		port = next
	}
}

// ensureManifest offers to create onu.dev.json when it is missing.
func (c *command) ensureManifest(paths config.Paths) error {
	if _, err := os.Stat(paths.Manifest); err == nil {
		return nil
	}
	if !c.interactive() {
		return fmt.Errorf("%w: onu.dev.json is required for the `dev` command", config.ErrManifestNotFound)
	}
	ok, err := c.console.Confirm("No onu.dev.json file found. Create one?", true)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: onu.dev.json is required for the `dev` command", config.ErrManifestNotFound)
	}
	path, err := c.console.Ask("Enter the path to your onu/ directory. ex: src/onu/", "")
	if err != nil {
		return err
	}
	m := &config.Manifest{Path: path, Env: map[string]any{}}
	if err := m.Validate(); err != nil {
		return err
	}
	if err := config.WriteManifest(paths.Manifest, m); err != nil {
		return fmt.Errorf("write onu.dev.json: %w", err)
	}
	add, err := c.console.Confirm("Add onu.dev.json to .gitignore?", true)
	if err != nil {
		return err
	}
	if add {
		if _, err := config.EnsureGitIgnore(paths.ProjectDir, config.ManifestFileName); err != nil {
			return fmt.Errorf("update .gitignore: %w", err)
		}
	}
	c.console.Success("onu.dev.json created. Continuing installation...")
	return nil
}

// ensureYarn makes sure yarn is on PATH, offering a global install.
func (c *command) ensureYarn(ctx context.Context) error {
	if _, err := c.lookPath("yarn"); err == nil {
		return nil
	}
	if !c.interactive() {
		return errYarnMissing
	}
	ok, err := c.console.Confirm("yarn must be globally installed. Install yarn?", true)
	if err != nil || !ok {
		c.console.Warn("Installation cancelled.")
		return errYarnMissing
	}
	out, err := c.runner.Run(ctx, process.Spec{Name: "install-yarn", Command: "npm install --global yarn"})
	if err != nil {
		c.console.Error("%s", string(out))
		return fmt.Errorf("install yarn: %w", err)
	}
	return nil
}
