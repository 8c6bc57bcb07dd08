/*
Copyright © 2025 The laszoo Authors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package config defines the laszoo agent's configuration schema and the
// viper-backed loader that resolves it from defaults, an optional YAML
// file, and LASZOO_* environment variables (spec.md §6).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// Config holds the agent's runtime configuration, mapping 1:1 onto the
// fields spec.md §6 says LASZOO_<UPPER> environment variables may override.
type Config struct {
	MFSMount       string `mapstructure:"mfs_mount" yaml:"mfs_mount"`
	LaszooDir      string `mapstructure:"laszoo_dir" yaml:"laszoo_dir"`
	SyncStrategy   string `mapstructure:"sync_strategy" yaml:"sync_strategy"`
	AutoCommit     bool   `mapstructure:"auto_commit" yaml:"auto_commit"`
	OllamaEndpoint string `mapstructure:"ollama_endpoint" yaml:"ollama_endpoint"`
	OllamaModel    string `mapstructure:"ollama_model" yaml:"ollama_model"`
	LogLevel       string `mapstructure:"log_level" yaml:"log_level"`
}

// Clone returns a deep copy of c so callers may mutate the result without
// affecting the loaded configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Defaults returns the built-in configuration used when no file or
// environment override is present.
func Defaults() *Config {
	return &Config{
		MFSMount:       "/mnt/laszoo",
		LaszooDir:      "/etc/laszoo",
		SyncStrategy:   "converge",
		AutoCommit:     true,
		OllamaEndpoint: "http://localhost:11434",
		OllamaModel:    "llama3",
		LogLevel:       "info",
	}
}

// Load resolves the configuration from Defaults(), then an optional YAML
// file (explicitPath, or $XDG_CONFIG_HOME/laszoo/laszoo.yaml when empty),
// then LASZOO_<UPPER> environment variables, in that order of precedence.
func Load(explicitPath string) (*Config, error) {
	v := viper.New()

	defaults := Defaults()
	v.SetDefault("mfs_mount", defaults.MFSMount)
	v.SetDefault("laszoo_dir", defaults.LaszooDir)
	v.SetDefault("sync_strategy", defaults.SyncStrategy)
	v.SetDefault("auto_commit", defaults.AutoCommit)
	v.SetDefault("ollama_endpoint", defaults.OllamaEndpoint)
	v.SetDefault("ollama_model", defaults.OllamaModel)
	v.SetDefault("log_level", defaults.LogLevel)

	cfgFile := explicitPath
	if cfgFile == "" {
		if home, err := xdg.ConfigFile("laszoo/laszoo.yaml"); err == nil {
			cfgFile = home
		}
	}
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			v.SetConfigFile(cfgFile)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading config file %s: %w", cfgFile, err)
			}
		}
	}

	v.SetEnvPrefix("laszoo")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling configuration: %w", err)
	}
	return cfg, nil
}

// ExpandMount resolves the configured shared-store mount to an absolute
// path, expanding a leading "~" the way the teacher's cmd.expandPath does.
func ExpandMount(cfg *Config) (string, error) {
	p := cfg.MFSMount
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if p == "~" {
			p = home
		} else if strings.HasPrefix(p, "~/") {
			p = filepath.Join(home, p[2:])
		}
	}
	return filepath.Abs(p)
}
