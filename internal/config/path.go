package config

import (
	"os"
	"path/filepath"
)

// Dir returns ~/.config/alarm-manager (or the working directory as a fallback).
func Dir() string {
	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		return filepath.Join(home, ".config", "alarm-manager")
	}
	cwd, _ := os.Getwd()
	return filepath.Join(cwd, ".alarm-manager")
}

// DefaultPath returns ~/.config/alarm-manager/config.json.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.json")
}
