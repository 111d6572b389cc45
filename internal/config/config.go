// Package config loads bmffgate settings from YAML or TOML files and
// resolves validation presets.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"example.com/bmffgate/internal/common"
)

type Logs struct {
	Directory  string `yaml:"directory" toml:"directory"`
	Level      string `yaml:"level" toml:"level"`
	MaxSizeMB  int    `yaml:"maxSizeMB" toml:"maxSizeMB"`
	MaxAgeDays int    `yaml:"maxAgeDays" toml:"maxAgeDays"`
	MaxBackups int    `yaml:"maxBackups" toml:"maxBackups"`
	Compress   bool   `yaml:"compress" toml:"compress"`
}

// LogOptions converts the section into logger options writing filename.
func (l Logs) LogOptions(filename string) common.LogOptions {
	return common.LogOptions{
		Directory:  l.Directory,
		Filename:   filename,
		Level:      l.Level,
		MaxSizeMB:  l.MaxSizeMB,
		MaxAgeDays: l.MaxAgeDays,
		MaxBackups: l.MaxBackups,
		Compress:   l.Compress,
	}
}

type Report struct {
	IncludeClean bool `yaml:"includeClean" toml:"includeClean"`
	QRSize       int  `yaml:"qrSize" toml:"qrSize"`
}

type Config struct {
	Port        int    `yaml:"port" toml:"port"`
	StorageDir  string `yaml:"storageDir" toml:"storageDir"`
	Concurrency int    `yaml:"concurrency" toml:"concurrency"`
	Preset      string `yaml:"preset" toml:"preset"`
	PresetsFile string `yaml:"presetsFile" toml:"presetsFile"`
	Lang        string `yaml:"lang" toml:"lang"`
	ResearchLog string `yaml:"researchLog" toml:"researchLog"`
	MaxDepth    int    `yaml:"maxDepth" toml:"maxDepth"`
	Logs        Logs   `yaml:"logs" toml:"logs"`
	Report      Report `yaml:"report" toml:"report"`
}

// Default returns a configuration with every default applied.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.StorageDir == "" {
		c.StorageDir = filepath.Join(".", "data")
	}
	if c.Concurrency <= 0 {
		c.Concurrency = runtime.NumCPU()
	}
	if c.Preset == "" {
		c.Preset = DefaultPreset
	}
	if c.Lang == "" {
		c.Lang = "en"
	}
	if c.Logs.Directory == "" {
		c.Logs.Directory = filepath.Join(c.StorageDir, "logs")
	}
	if c.Logs.MaxSizeMB <= 0 {
		c.Logs.MaxSizeMB = 25
	}
	if c.Logs.MaxAgeDays <= 0 {
		c.Logs.MaxAgeDays = 14
	}
	if c.Logs.MaxBackups <= 0 {
		c.Logs.MaxBackups = 5
	}
	if c.Report.QRSize == 0 {
		c.Report.QRSize = 128
	}
}

// Load reads path as TOML when it ends in .toml and as YAML otherwise.
// Relative paths inside the file resolve against its directory.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	cfg, err := decode(f, strings.EqualFold(filepath.Ext(path), ".toml"))
	if err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	baseDir := filepath.Dir(path)
	cfg.StorageDir = resolvePath(baseDir, cfg.StorageDir)
	cfg.Logs.Directory = resolvePath(baseDir, cfg.Logs.Directory)
	cfg.PresetsFile = resolvePath(baseDir, cfg.PresetsFile)
	if cfg.ResearchLog != "default" && cfg.ResearchLog != "off" {
		cfg.ResearchLog = resolvePath(baseDir, cfg.ResearchLog)
	}
	if err := cfg.finish(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode parses a configuration document and applies defaults. Unknown keys
// are rejected.
func Decode(r io.Reader, isTOML bool) (Config, error) {
	cfg, err := decode(r, isTOML)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.finish(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(r io.Reader, isTOML bool) (Config, error) {
	var cfg Config
	if isTOML {
		dec := toml.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, err
		}
	} else {
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && err != io.EOF {
			return Config{}, err
		}
	}
	return cfg, nil
}

func (c *Config) finish() error {
	c.applyDefaults()
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	return nil
}

// resolvePath prefers baseDir/p when it exists, otherwise p as given.
func resolvePath(baseDir, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	candidate := filepath.Clean(filepath.Join(baseDir, p))
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return filepath.Clean(p)
}
