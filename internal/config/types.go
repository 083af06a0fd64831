package config

import "time"

// Config holds every tunable of the file bridge, durations resolved.
// Start from Default and layer file and environment overrides via Load.
type Config struct {
	// SpoolDir is the shared IPC directory.
	SpoolDir string
	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string

	// Client side.
	DefaultTimeout        time.Duration
	MethodTimeouts        map[string]time.Duration
	HardTimeoutCap        time.Duration // 0 disables the cap
	EnqueueTimeout        time.Duration
	ClaimGrace            time.Duration
	DisableLegacyFallback bool

	HeartbeatMaxAge                time.Duration
	HeartbeatStartupGrace          time.Duration
	HeartbeatStaleFailFastAge      time.Duration
	HeartbeatMissingFailFast       time.Duration
	HeartbeatFailFastDuringRequest bool

	// Server side.
	ProcessingTimeout time.Duration
	HeartbeatInterval time.Duration

	// Poll cadence. Fixed short intervals; tests shorten them.
	ServerPollInterval   time.Duration
	ClientPollInterval   time.Duration
	EnqueueRetryInterval time.Duration
	ClaimGracePoll       time.Duration
}

// minClaimGrace is the floor applied to ClaimGrace so the fallback probe
// always observes at least one poll cycle.
const minClaimGrace = 50 * time.Millisecond

// Default returns the stock configuration. Values mirror what an unmodified
// peer assumes, so both sides agree without any shared file.
func Default() *Config {
	return &Config{
		SpoolDir: defaultSpoolDir(),
		LogLevel: "info",

		DefaultTimeout: 180 * time.Second,
		MethodTimeouts: map[string]time.Duration{
			"open_capture":        45 * time.Second,
			"get_draw_calls":      240 * time.Second,
			"get_pipeline_state":  240 * time.Second,
			"get_texture_data":    240 * time.Second,
			"get_buffer_contents": 240 * time.Second,
		},
		HardTimeoutCap:        0,
		EnqueueTimeout:        30 * time.Second,
		ClaimGrace:            800 * time.Millisecond,
		DisableLegacyFallback: false,

		HeartbeatMaxAge:                30 * time.Second,
		HeartbeatStartupGrace:          8 * time.Second,
		HeartbeatStaleFailFastAge:      120 * time.Second,
		HeartbeatMissingFailFast:       10 * time.Second,
		HeartbeatFailFastDuringRequest: false,

		ProcessingTimeout: 420 * time.Second,
		HeartbeatInterval: time.Second,

		ServerPollInterval:   100 * time.Millisecond,
		ClientPollInterval:   50 * time.Millisecond,
		EnqueueRetryInterval: 20 * time.Millisecond,
		ClaimGracePoll:       20 * time.Millisecond,
	}
}

// MethodTimeout resolves the call budget for method: per-method override,
// else the default, clamped by the hard cap when one is configured, always
// at least one second.
func (c *Config) MethodTimeout(method string) time.Duration {
	timeout := c.DefaultTimeout
	if t, ok := c.MethodTimeouts[method]; ok {
		timeout = t
	}
	if c.HardTimeoutCap > 0 && timeout > c.HardTimeoutCap {
		timeout = c.HardTimeoutCap
	}
	if timeout < time.Second {
		timeout = time.Second
	}
	return timeout
}

// EffectiveEnqueueTimeout returns the enqueue deadline for a call: at least
// the configured enqueue timeout, never shorter than the call budget.
func (c *Config) EffectiveEnqueueTimeout(callTimeout time.Duration) time.Duration {
	if callTimeout > c.EnqueueTimeout {
		return callTimeout
	}
	return c.EnqueueTimeout
}

// Clone returns a deep copy, so callers can tweak per-call settings without
// racing a shared instance.
func (c *Config) Clone() *Config {
	cloned := *c
	cloned.MethodTimeouts = make(map[string]time.Duration, len(c.MethodTimeouts))
	for k, v := range c.MethodTimeouts {
		cloned.MethodTimeouts[k] = v
	}
	return &cloned
}
