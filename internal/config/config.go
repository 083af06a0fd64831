package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/elliotttate/RenderDocMCP/internal/paths"
)

// Environment keys. The RENDERDOC_MCP_ prefix and key names are part of the
// wire contract with the debugger-side peer.
const (
	EnvTimeout               = "RENDERDOC_MCP_TIMEOUT"
	EnvHardTimeoutCap        = "RENDERDOC_MCP_HARD_TIMEOUT_CAP"
	EnvEnqueueTimeout        = "RENDERDOC_MCP_REQUEST_ENQUEUE_TIMEOUT"
	EnvClaimGrace            = "RENDERDOC_MCP_REQUEST_CLAIM_GRACE"
	EnvDisableLegacyFallback = "RENDERDOC_MCP_DISABLE_LEGACY_FALLBACK"

	EnvHeartbeatMaxAge           = "RENDERDOC_MCP_HEARTBEAT_MAX_AGE"
	EnvHeartbeatStartupGrace     = "RENDERDOC_MCP_HEARTBEAT_STARTUP_GRACE"
	EnvHeartbeatStaleFailFast    = "RENDERDOC_MCP_HEARTBEAT_STALE_FAIL_FAST_AGE"
	EnvHeartbeatMissingFailFast  = "RENDERDOC_MCP_HEARTBEAT_MISSING_FAIL_FAST"
	EnvHeartbeatFailFastInFlight = "RENDERDOC_MCP_HEARTBEAT_FAIL_FAST_DURING_REQUEST"

	EnvProcessingTimeout = "RENDERDOC_MCP_PROCESSING_TIMEOUT"
	EnvHeartbeatInterval = "RENDERDOC_MCP_HEARTBEAT_INTERVAL"

	EnvLogLevel = "RENDERDOC_MCP_LOG"

	// EnvEnableOpenCapture opts the serving side into open_capture. It is
	// read by the facade, not the transport.
	EnvEnableOpenCapture = "RENDERDOC_MCP_ENABLE_OPEN_CAPTURE"

	envMethodTimeoutPrefix = "RENDERDOC_MCP_TIMEOUT_"
)

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load returns the effective configuration: defaults, overlaid by the
// optional TOML file, overlaid by environment variables.
func Load() (*Config, error) {
	return LoadFrom(paths.ConfigFile())
}

// LoadFrom is Load with an explicit config file path.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	file, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if file != nil {
		applyFile(cfg, file)
	}
	applyEnv(cfg)

	if cfg.ClaimGrace < minClaimGrace {
		cfg.ClaimGrace = minClaimGrace
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultSpoolDir() string {
	return paths.SpoolDir()
}

func readFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var file fileConfig
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	file.expandEnvVars()
	return &file, nil
}

func applyFile(cfg *Config, file *fileConfig) {
	if file.Bridge.Dir != "" {
		cfg.SpoolDir = file.Bridge.Dir
	}
	if file.Bridge.LogLevel != "" {
		cfg.LogLevel = file.Bridge.LogLevel
	}
	setBool(&cfg.DisableLegacyFallback, file.Bridge.DisableLegacyFallback)

	setSeconds(&cfg.DefaultTimeout, file.Timeouts.Default)
	setSeconds(&cfg.HardTimeoutCap, file.Timeouts.HardCap)
	setSeconds(&cfg.EnqueueTimeout, file.Timeouts.Enqueue)
	setSeconds(&cfg.ClaimGrace, file.Timeouts.ClaimGrace)
	for method, secs := range file.Timeouts.Methods {
		cfg.MethodTimeouts[method] = secondsToDuration(secs)
	}

	setSeconds(&cfg.HeartbeatMaxAge, file.Heartbeat.MaxAge)
	setSeconds(&cfg.HeartbeatStartupGrace, file.Heartbeat.StartupGrace)
	setSeconds(&cfg.HeartbeatStaleFailFastAge, file.Heartbeat.StaleFailFastAge)
	setSeconds(&cfg.HeartbeatMissingFailFast, file.Heartbeat.MissingFailFast)
	setBool(&cfg.HeartbeatFailFastDuringRequest, file.Heartbeat.FailFastDuringRequest)
	setSeconds(&cfg.HeartbeatInterval, file.Heartbeat.Interval)

	setSeconds(&cfg.ProcessingTimeout, file.Server.ProcessingTimeout)
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(paths.EnvSpoolDir); v != "" {
		cfg.SpoolDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}

	envSeconds(&cfg.DefaultTimeout, EnvTimeout)
	envSeconds(&cfg.HardTimeoutCap, EnvHardTimeoutCap)
	envSeconds(&cfg.EnqueueTimeout, EnvEnqueueTimeout)
	envSeconds(&cfg.ClaimGrace, EnvClaimGrace)
	envBool(&cfg.DisableLegacyFallback, EnvDisableLegacyFallback)

	envSeconds(&cfg.HeartbeatMaxAge, EnvHeartbeatMaxAge)
	envSeconds(&cfg.HeartbeatStartupGrace, EnvHeartbeatStartupGrace)
	envSeconds(&cfg.HeartbeatStaleFailFastAge, EnvHeartbeatStaleFailFast)
	envSeconds(&cfg.HeartbeatMissingFailFast, EnvHeartbeatMissingFailFast)
	envBool(&cfg.HeartbeatFailFastDuringRequest, EnvHeartbeatFailFastInFlight)

	envSeconds(&cfg.ProcessingTimeout, EnvProcessingTimeout)
	envSeconds(&cfg.HeartbeatInterval, EnvHeartbeatInterval)

	for method, current := range cfg.MethodTimeouts {
		v := current
		envSeconds(&v, envMethodTimeoutPrefix+strings.ToUpper(method))
		cfg.MethodTimeouts[method] = v
	}
}

func secondsToDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}

func setSeconds(dst *time.Duration, src *float64) {
	if src != nil {
		*dst = secondsToDuration(*src)
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func envSeconds(dst *time.Duration, name string) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return
	}
	*dst = secondsToDuration(secs)
}

func envBool(dst *bool, name string) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	*dst = Truthy(v)
}

// Truthy mirrors how the peer parses boolean environment values.
func Truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// expandEnvVars replaces ${VAR_NAME} placeholders in string fields with the
// named environment variable, leaving unresolved placeholders as-is.
func expandEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarRe.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}
