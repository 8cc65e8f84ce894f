// Package config loads the optional server configuration file and layers
// environment-variable overrides on top of it, the same two-stage pattern
// the teacher uses for team config (YAML file) plus env-based secrets.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable the server needs at startup.
type Config struct {
	Port         int    `yaml:"port"`
	DataDir      string `yaml:"data_dir"`
	DBFile       string `yaml:"db_file"`
	FilesDir     string `yaml:"files_dir"`
	MaxFileSize  int64  `yaml:"max_file_size"`
	AdminSecret  string `yaml:"admin_secret"`
	DBTimeoutSec int    `yaml:"db_timeout_seconds"`
}

const defaultMaxFileSize = 50 * 1024 * 1024 // 50 MiB, spec.md §6

// Default returns the baseline configuration before a file or environment
// is consulted.
func Default() *Config {
	return &Config{
		Port:         8080,
		DataDir:      "data",
		DBFile:       "data/bridge.db",
		FilesDir:     "data/files",
		MaxFileSize:  defaultMaxFileSize,
		DBTimeoutSec: 10,
	}
}

// Load reads path (if it exists) as YAML on top of Default(), then applies
// environment overrides. A missing config file is not an error — mirrors
// loadNotificationConfig's tolerant behavior in the teacher's server setup.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	applyEnv(cfg)

	if cfg.AdminSecret == "" {
		cfg.AdminSecret = readSecretFile(filepath.Join(cfg.DataDir, "admin_secret.txt"))
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("BRIDGE_ADMIN_SECRET"); v != "" {
		cfg.AdminSecret = v
	}
	if v := os.Getenv("BRIDGE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("BRIDGE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
}

// readSecretFile mirrors the original's SECRET_FILE fallback: read, trim,
// ignore a missing file.
func readSecretFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
