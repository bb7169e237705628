package domain

import "time"

// WarmTrigger names what asked for a warming pass.
type WarmTrigger string

const (
	TriggerPeriodic     WarmTrigger = "periodic"
	TriggerConnectivity WarmTrigger = "connectivity"
	TriggerTimezone     WarmTrigger = "timezone"
	TriggerRefresh      WarmTrigger = "refresh"
	TriggerManual       WarmTrigger = "manual"
)

// WarmingStats is persisted after every warming attempt.
type WarmingStats struct {
	Attempts    int         `json:"attempts"`
	Successes   int         `json:"successes"`
	Failures    int         `json:"failures"`
	Skipped     int         `json:"skipped"`
	LastTrigger WarmTrigger `json:"last_trigger,omitempty"`
	LastRun     time.Time   `json:"last_run,omitempty"`
	LastError   string      `json:"last_error,omitempty"`
}

// WarmResult reports one warming pass.
type WarmResult struct {
	Trigger WarmTrigger `json:"trigger"`
	Warmed  bool        `json:"warmed"`
	Reason  string      `json:"reason"`
}
