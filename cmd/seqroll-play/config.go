package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the settings that can also be given in a YAML file with -c.
// Flags given on the command line override the file.
type Config struct {
	Output       string `yaml:"output"`
	ChunkMs      int    `yaml:"chunk_ms"`
	LogLevel     string `yaml:"log_level"`
	Template     string `yaml:"template"`
	Manufacturer int    `yaml:"manufacturer"`
}

func defaultConfig() Config {
	return Config{
		ChunkMs:      2000,
		LogLevel:     "warn",
		Manufacturer: 0x7D,
	}
}

func loadConfig(path string) (Config, error) {
	c := defaultConfig()
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("could not read config %v: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("could not parse config %v: %w", path, err)
	}
	return c, nil
}
