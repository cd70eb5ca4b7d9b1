package projector

import (
	"encoding/json"
	"os"

	"github.com/tidwall/jsonc"
)

type tsConfig struct {
	Extends         json.RawMessage `json:"extends"`
	CompilerOptions struct {
		Paths   map[string][]string `json:"paths"`
		BaseURL string              `json:"baseUrl"`
	} `json:"compilerOptions"`
}

// needsAliasPass reports whether compiled output may contain non-relative
// imports that tsc-alias rewrites, from paths or baseUrl. Configs that cannot
// be read, or that extend another config, are assumed to.
func needsAliasPass(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return true
	}
	var cfg tsConfig
	if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
		return true
	}
	if len(cfg.Extends) > 0 && string(cfg.Extends) != "null" {
		return true
	}
	return len(cfg.CompilerOptions.Paths) > 0 || cfg.CompilerOptions.BaseURL != ""
}
