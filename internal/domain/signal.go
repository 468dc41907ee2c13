package domain

import "time"

// ChannelWagerResolved carries ResolutionEvent payloads between processes.
const ChannelWagerResolved = "wagers.resolved"

// ResolutionEvent is published after a wager reaches a terminal status.
type ResolutionEvent struct {
	WagerID    string      `json:"wager_id"`
	EventID    string      `json:"event_id"`
	ModeKey    string      `json:"mode_key"`
	Status     WagerStatus `json:"status"`
	Choice     string      `json:"choice,omitempty"`
	Reason     string      `json:"reason,omitempty"`
	ResolvedAt time.Time   `json:"resolved_at"`
}

// SystemStatus is a summary of the resolver's operational state.
type SystemStatus struct {
	Mode          string            `json:"mode"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Queue         JobCounts         `json:"queue"`
	Breakers      []BreakerSnapshot `json:"breakers"`
}

// BreakerSnapshot is the observable state of one circuit breaker.
type BreakerSnapshot struct {
	Name     string     `json:"name"`
	State    string     `json:"state"`
	Failures int        `json:"failures"`
	OpenedAt *time.Time `json:"opened_at,omitempty"`
}
