package config

import "time"

// DefaultSandboxCaps returns the built-in sandbox resource limits (§4.4).
func DefaultSandboxCaps() SandboxCaps {
	return SandboxCaps{
		MemoryLimitBytes:    int64(1.5 * 1024 * 1024 * 1024), // ~1.5 GiB
		BuildLogMaxSize:     5 * 1024 * 1024,                 // 5 MiB
		BuildLogMaxLines:    10000,
		OverallTimeoutSecs:  int((15 * time.Minute).Seconds()),
		NoOutputTimeoutSecs: int((2 * time.Minute).Seconds()),
	}
}

// OverallTimeout returns the configured overall timeout as a Duration,
// doubled when slow is set (§4.3 "slow doubles the overall timeout").
func (s SandboxCaps) OverallTimeout(slow bool) time.Duration {
	d := time.Duration(s.OverallTimeoutSecs) * time.Second
	if slow {
		return 2 * d
	}
	return d
}

// NoOutputTimeout returns the configured no-output timeout, or zero when
// quiet suppresses it (§4.3 "quiet disables the no-output timeout").
func (s SandboxCaps) NoOutputTimeout(quiet bool) time.Duration {
	if quiet {
		return 0
	}
	return time.Duration(s.NoOutputTimeoutSecs) * time.Second
}

// QueueConfig controls agent dispatch and heartbeat cadence (§4.5, §9),
// named and shaped after the teacher's pkg/config/queue.go.
type QueueConfig struct {
	PollInterval        time.Duration `yaml:"poll_interval"`
	PollIntervalJitter  time.Duration `yaml:"poll_interval_jitter"`
	HeartbeatInterval   time.Duration `yaml:"heartbeat_interval"`
	StaleAgentThreshold time.Duration `yaml:"stale_agent_threshold"` // §9: 2x heartbeat interval, configurable
}

// DefaultQueueConfig returns the built-in queue/dispatch defaults.
func DefaultQueueConfig() QueueConfig {
	heartbeat := 60 * time.Second
	return QueueConfig{
		PollInterval:        10 * time.Second,
		PollIntervalJitter:  3 * time.Second,
		HeartbeatInterval:   heartbeat,
		StaleAgentThreshold: 2 * heartbeat,
	}
}
