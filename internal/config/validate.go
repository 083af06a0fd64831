package config

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var knownLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks configuration invariants and returns actionable errors.
func Validate(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	var errs []error

	if cfg.SpoolDir == "" {
		errs = append(errs, errors.New("bridge.dir: spool directory must not be empty"))
	}
	if !knownLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Errorf("bridge.log_level: unknown level %q", cfg.LogLevel))
	}

	positive := []struct {
		name  string
		value time.Duration
	}{
		{"timeouts.default", cfg.DefaultTimeout},
		{"timeouts.enqueue", cfg.EnqueueTimeout},
		{"timeouts.claim_grace", cfg.ClaimGrace},
		{"heartbeat.max_age", cfg.HeartbeatMaxAge},
		{"heartbeat.stale_fail_fast_age", cfg.HeartbeatStaleFailFastAge},
		{"heartbeat.interval", cfg.HeartbeatInterval},
		{"server.processing_timeout", cfg.ProcessingTimeout},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be > 0, got %s", p.name, p.value))
		}
	}

	// Zero disables these, negative never means anything.
	if cfg.HardTimeoutCap < 0 {
		errs = append(errs, fmt.Errorf("timeouts.hard_cap: must be >= 0, got %s", cfg.HardTimeoutCap))
	}
	if cfg.HeartbeatStartupGrace < 0 {
		errs = append(errs, fmt.Errorf("heartbeat.startup_grace: must be >= 0, got %s", cfg.HeartbeatStartupGrace))
	}
	if cfg.HeartbeatMissingFailFast < 0 {
		errs = append(errs, fmt.Errorf("heartbeat.missing_fail_fast: must be >= 0, got %s", cfg.HeartbeatMissingFailFast))
	}

	methods := make([]string, 0, len(cfg.MethodTimeouts))
	for method := range cfg.MethodTimeouts {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	for _, method := range methods {
		if cfg.MethodTimeouts[method] <= 0 {
			errs = append(errs, fmt.Errorf("timeouts.methods.%s: must be > 0, got %s", method, cfg.MethodTimeouts[method]))
		}
	}

	return errors.Join(errs...)
}
