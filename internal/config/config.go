// Package config holds the runner configuration for tinyhook.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the tinyhook runner. Flags on
// the command line override values loaded from file.
type Config struct {
	Script string      `yaml:"script"` // Hook script path
	Debug  bool        `yaml:"debug"`  // Verbose engine logging
	Trace  TraceConfig `yaml:"trace"`
}

// TraceConfig controls per-run trace output.
type TraceConfig struct {
	Syscalls bool `yaml:"syscalls"` // Print one line per intercepted syscall
	Code     bool `yaml:"code"`     // Disassemble executed instructions
	MaxInsn  int  `yaml:"max_insn"` // Cap on disassembled instructions shown
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Trace: TraceConfig{
			Syscalls: true,
			MaxInsn:  500,
		},
	}
}

// Load reads a YAML configuration file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
