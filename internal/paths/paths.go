package paths

import (
	"os"
	"path/filepath"
)

// EnvSpoolDir overrides the spool directory when set.
const EnvSpoolDir = "RENDERDOC_MCP_DIR"

// EnvConfigFile overrides the config file location when set.
const EnvConfigFile = "RENDERDOC_MCP_CONFIG"

func homeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	h, _ := os.UserHomeDir()
	return h
}

func xdgDir(envVar, fallbackSuffix string) string {
	if v := os.Getenv(envVar); v != "" {
		return filepath.Join(v, "renderdoc-mcp")
	}
	return filepath.Join(homeDir(), fallbackSuffix, "renderdoc-mcp")
}

// SpoolDir returns the shared IPC spool directory. The default lives under
// the system temp directory so both the debugger-embedded server and the
// MCP process resolve the same path without any prior agreement.
func SpoolDir() string {
	if v := os.Getenv(EnvSpoolDir); v != "" {
		return v
	}
	return filepath.Join(os.TempDir(), "renderdoc_mcp")
}

// ConfigDir returns the config directory ($XDG_CONFIG_HOME/renderdoc-mcp).
func ConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// CacheDir returns the cache directory ($XDG_CACHE_HOME/renderdoc-mcp).
func CacheDir() string {
	return xdgDir("XDG_CACHE_HOME", ".cache")
}

// ConfigFile returns the path to bridge.toml.
func ConfigFile() string {
	if v := os.Getenv(EnvConfigFile); v != "" {
		return v
	}
	return filepath.Join(ConfigDir(), "bridge.toml")
}

// EnsureDir creates a directory and parents if needed.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0700)
}
