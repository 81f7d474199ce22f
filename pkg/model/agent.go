package model

import "time"

// Agent is a worker process record (§3 "Agent record").
type Agent struct {
	Name           string    `json:"name"`
	TokenHash      string    `json:"-"` // hashed for storage, never serialized
	Capabilities   []string  `json:"capabilities"`
	LastHeartbeat  time.Time `json:"last_heartbeat"`
	Assignment     string    `json:"assignment,omitempty"` // experiment name, if any
	InflightJobKey string    `json:"inflight_job_key,omitempty"`
}

// HasCapability reports whether the agent advertises the given capability.
func (a Agent) HasCapability(cap string) bool {
	for _, c := range a.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// Stale reports whether the agent's last heartbeat is older than threshold,
// per §9's "2x heartbeat interval" policy (the caller supplies the computed
// threshold duration).
func (a Agent) Stale(threshold time.Duration, now time.Time) bool {
	if a.LastHeartbeat.IsZero() {
		return false
	}
	return now.Sub(a.LastHeartbeat) > threshold
}
