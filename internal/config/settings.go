package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/onuhq/onu/internal/logger"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. ONU_STUDIO_VERSION.
const EnvPrefix = "ONU"

// Settings is the CLI configuration. It is read from ~/.onu/settings.{yaml,toml,json}
// (or --config), then overridden by ONU_* environment variables.
type Settings struct {
	Home       string             `mapstructure:"home" yaml:"home"`
	Studio     StudioSettings     `mapstructure:"studio" yaml:"studio"`
	Projection ProjectionSettings `mapstructure:"projection" yaml:"projection"`
	Log        LogSettings        `mapstructure:"log" yaml:"log"`
}

type StudioSettings struct {
	Version            string        `mapstructure:"version" yaml:"version"`
	Owner              string        `mapstructure:"owner" yaml:"owner"`
	Repo               string        `mapstructure:"repo" yaml:"repo"`
	APIURL             string        `mapstructure:"api_url" yaml:"api_url"`
	ProbeURL           string        `mapstructure:"probe_url" yaml:"probe_url"`
	InstallCommand     string        `mapstructure:"install_command" yaml:"install_command"`
	StartCommand       string        `mapstructure:"start_command" yaml:"start_command"`
	ReconfigureCommand string        `mapstructure:"reconfigure_command" yaml:"reconfigure_command"`
	SourcePathVar      string        `mapstructure:"source_path_var" yaml:"source_path_var"`
	ReadyMarker        string        `mapstructure:"ready_marker" yaml:"ready_marker"`
	BenignStderr       []string      `mapstructure:"benign_stderr" yaml:"benign_stderr"`
	DevCache           string        `mapstructure:"dev_cache" yaml:"dev_cache"`
	Host               string        `mapstructure:"host" yaml:"host"`
	ReadyTimeout       time.Duration `mapstructure:"ready_timeout" yaml:"ready_timeout"`
	StopTimeout        time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`
	OpenBrowser        bool          `mapstructure:"open_browser" yaml:"open_browser"`
}

type ProjectionSettings struct {
	Mode           string   `mapstructure:"mode" yaml:"mode"`
	CompileCommand string   `mapstructure:"compile_command" yaml:"compile_command"`
	AliasCommand   string   `mapstructure:"alias_command" yaml:"alias_command"`
	InstallCommand string   `mapstructure:"install_command" yaml:"install_command"`
	Exclude        []string `mapstructure:"exclude" yaml:"exclude"`
}

type LogSettings struct {
	Level string        `mapstructure:"level" yaml:"level"`
	Color bool          `mapstructure:"color" yaml:"color"`
	File  logger.Config `mapstructure:"file" yaml:"file"`
}

// DefaultHome returns ~/.onu, falling back to ./.onu when the home directory is unknown.
func DefaultHome() string {
	h, err := os.UserHomeDir()
	if err != nil || h == "" {
		return ".onu"
	}
	return filepath.Join(h, ".onu")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("home", DefaultHome())

	v.SetDefault("studio.version", "v0.0.1")
	v.SetDefault("studio.owner", "onuhq")
	v.SetDefault("studio.repo", "studio")
	v.SetDefault("studio.api_url", "https://api.github.com")
	v.SetDefault("studio.probe_url", "https://api.github.com")
	v.SetDefault("studio.install_command", "yarn")
	v.SetDefault("studio.start_command", "npm run dev")
	v.SetDefault("studio.reconfigure_command", "yarn preconfigure")
	v.SetDefault("studio.source_path_var", "ONU_PATH")
	v.SetDefault("studio.ready_marker", "started server on")
	v.SetDefault("studio.benign_stderr", []string{
		"ExperimentalWarning",
		"Fast Refresh had to perform a full reload",
	})
	v.SetDefault("studio.dev_cache", filepath.Join(".next", "cache"))
	v.SetDefault("studio.host", "localhost")
	v.SetDefault("studio.ready_timeout", 2*time.Minute)
	v.SetDefault("studio.stop_timeout", 5*time.Second)
	v.SetDefault("studio.open_browser", true)

	v.SetDefault("projection.mode", "auto")
	v.SetDefault("projection.compile_command", "npx --yes tsc")
	v.SetDefault("projection.alias_command", "npx --yes tsc-alias")
	v.SetDefault("projection.install_command", "yarn")
	v.SetDefault("projection.exclude", []string{"node_modules", ".git"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.color", true)
	v.SetDefault("log.file.dir", "")
	v.SetDefault("log.file.stdout", "")
	v.SetDefault("log.file.stderr", "")
	v.SetDefault("log.file.max_size_mb", 10)
	v.SetDefault("log.file.max_backups", 3)
	v.SetDefault("log.file.max_age_days", 7)
	v.SetDefault("log.file.compress", false)
}

// LoadSettings reads settings from path. With an empty path it looks for
// settings.* under the default home and tolerates its absence.
func LoadSettings(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read settings %s: %w", path, err)
		}
	} else {
		v.SetConfigName("settings")
		v.AddConfigPath(v.GetString("home"))
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return nil, fmt.Errorf("read settings: %w", err)
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if err := s.normalize(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) normalize() error {
	s.Home = expandHome(s.Home)
	if s.Home == "" {
		s.Home = DefaultHome()
	}
	switch s.Projection.Mode {
	case "", "auto", "compile", "copy":
	default:
		return fmt.Errorf("projection.mode must be auto, compile or copy, got %q", s.Projection.Mode)
	}
	if s.Projection.Mode == "" {
		s.Projection.Mode = "auto"
	}
	if s.Studio.ReadyTimeout < 0 {
		return fmt.Errorf("studio.ready_timeout must not be negative")
	}
	if s.Studio.StopTimeout <= 0 {
		s.Studio.StopTimeout = 5 * time.Second
	}
	if s.Log.File.Dir == "" {
		s.Log.File.Dir = filepath.Join(s.Home, "logs")
	} else {
		s.Log.File.Dir = expandHome(s.Log.File.Dir)
	}
	if s.Log.File.StdoutPath == "" {
		s.Log.File.StdoutPath = filepath.Join(s.Log.File.Dir, "studio.stdout.log")
	}
	if s.Log.File.StderrPath == "" {
		s.Log.File.StderrPath = filepath.Join(s.Log.File.Dir, "studio.stderr.log")
	}
	return nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		h, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(h, strings.TrimPrefix(p, "~"))
	}
	return p
}
