package server

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the full service configuration.
type Config struct {
	Listen    string `yaml:"listen"`
	DBPath    string `yaml:"db_path"`
	UploadDir string `yaml:"upload_dir"`
	OutputDir string `yaml:"output_dir"`

	MaxUploadMB int `yaml:"max_upload_mb"`

	// TargetCRS is the default output CRS for new projects.
	TargetCRS string `yaml:"target_crs"`

	// ODAPath and BlenderPath locate the external tools; empty means probe
	// the usual install locations (Blender) or fall back (ODA).
	ODAPath     string `yaml:"oda_path"`
	BlenderPath string `yaml:"blender_path"`

	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:      ":8080",
		DBPath:      "data/pipevision.db",
		UploadDir:   "data/uploads",
		OutputDir:   "data/outputs",
		MaxUploadMB: 200,
		TargetCRS:   "EPSG:4326",
		LogLevel:    "info",
	}
}

// LoadConfig reads a YAML config file merged over DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.UploadDir == "" {
		return fmt.Errorf("upload_dir is required")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("max_upload_mb must be > 0")
	}
	return nil
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 { return int64(c.MaxUploadMB) * 1024 * 1024 }
