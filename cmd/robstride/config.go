package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hipsterbrown/robstride-motor/robstride"
)

// fileConfig is the on-disk motor table.
type fileConfig struct {
	Port     string                  `json:"port"`
	BaudRate int                     `json:"baud_rate,omitempty"`
	Motors   []robstride.MotorConfig `json:"motors"`
}

// loadControllerConfig reads the config file and applies command-line
// overrides.
func loadControllerConfig() (robstride.Config, error) {
	data, err := os.ReadFile(opts.Config)
	if err != nil {
		return robstride.Config{}, fmt.Errorf("reading %s: %w", opts.Config, err)
	}
	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return robstride.Config{}, fmt.Errorf("parsing %s: %w", opts.Config, err)
	}

	cfg := robstride.Config{
		Port:     fc.Port,
		BaudRate: fc.BaudRate,
		Motors:   fc.Motors,
	}
	if opts.Port != "" {
		cfg.Port = opts.Port
	}
	if cfg.Port == "" {
		return robstride.Config{}, fmt.Errorf("no serial port: set %q in %s or pass --port", "port", opts.Config)
	}
	return cfg, nil
}
