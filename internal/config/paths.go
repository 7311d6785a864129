package config

import (
	"os"
	"path/filepath"
)

// JarvisPath returns the root directory for Jarvis data.
// It uses $JARVIS_PATH if set, otherwise defaults to ~/.jarvis.
func JarvisPath() string {
	if v := os.Getenv("JARVIS_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".jarvis")
	}
	return filepath.Join(home, ".jarvis")
}

// ConfigPath returns the path to the Jarvis config file.
func ConfigPath() string {
	return filepath.Join(JarvisPath(), "config.jsonc")
}

// DotenvPath returns the path to the Jarvis .env file.
func DotenvPath() string {
	return filepath.Join(JarvisPath(), ".env")
}

// HeartbeatPath returns the path of the gateway heartbeat file.
func HeartbeatPath() string {
	return filepath.Join(JarvisPath(), "run", "gateway.heartbeat")
}
