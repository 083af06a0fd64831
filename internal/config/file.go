package config

// fileConfig is the TOML shape of bridge.toml. Durations are plain seconds
// so the file reads the same as the environment variables it mirrors.
// Pointer fields distinguish "absent" from zero.
type fileConfig struct {
	Bridge struct {
		Dir                   string `toml:"dir"`
		LogLevel              string `toml:"log_level"`
		DisableLegacyFallback *bool  `toml:"disable_legacy_fallback"`
	} `toml:"bridge"`

	Timeouts struct {
		Default    *float64           `toml:"default"`
		HardCap    *float64           `toml:"hard_cap"`
		Enqueue    *float64           `toml:"enqueue"`
		ClaimGrace *float64           `toml:"claim_grace"`
		Methods    map[string]float64 `toml:"methods"`
	} `toml:"timeouts"`

	Heartbeat struct {
		MaxAge                *float64 `toml:"max_age"`
		StartupGrace          *float64 `toml:"startup_grace"`
		StaleFailFastAge      *float64 `toml:"stale_fail_fast_age"`
		MissingFailFast       *float64 `toml:"missing_fail_fast"`
		FailFastDuringRequest *bool    `toml:"fail_fast_during_request"`
		Interval              *float64 `toml:"interval"`
	} `toml:"heartbeat"`

	Server struct {
		ProcessingTimeout *float64 `toml:"processing_timeout"`
	} `toml:"server"`
}

func (f *fileConfig) expandEnvVars() {
	f.Bridge.Dir = expandEnvVars(f.Bridge.Dir)
	f.Bridge.LogLevel = expandEnvVars(f.Bridge.LogLevel)
}
