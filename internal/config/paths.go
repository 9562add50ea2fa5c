package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const configName = "gateway.yaml"

// DefaultConfigPath returns the default config file path for this platform.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	programData := os.Getenv("ProgramData")
	return ResolveConfigPath(runtime.GOOS, home, programData)
}

// ResolveConfigPath constructs the config file path for the given OS and base
// directories. It is mainly used in tests.
func ResolveConfigPath(goos, home, programData string) string {
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "llmgate", configName)
	case "windows":
		if programData == "" {
			programData = "C:/ProgramData"
		}
		programData = strings.TrimRight(programData, "\\/")
		return filepath.Join(programData, "llmgate", configName)
	default:
		return filepath.Join("/etc", "llmgate", configName)
	}
}

// GetEnv returns the value of key or def when unset or empty.
func GetEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}
