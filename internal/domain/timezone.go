package domain

import "time"

// TimezoneSnapshot is one observation of the host timezone.
type TimezoneSnapshot struct {
	Identifier       string    `json:"identifier"`
	UTCOffsetMinutes int       `json:"utc_offset_minutes"`
	IsDST            bool      `json:"is_dst"`
	ObservedAt       time.Time `json:"observed_at"`
}

// TimezoneChange is the diff between the persisted and a fresh snapshot.
type TimezoneChange struct {
	Previous          *TimezoneSnapshot `json:"previous,omitempty"`
	Current           TimezoneSnapshot  `json:"current"`
	IdentifierChanged bool              `json:"identifier_changed"`
	OffsetChanged     bool              `json:"offset_changed"`
	DSTChanged        bool              `json:"dst_changed"`
	OffsetDelta       time.Duration     `json:"offset_delta"`
	ShouldRefresh     bool              `json:"should_refresh"`
}

// Changed reports whether any observable signal changed.
func (c TimezoneChange) Changed() bool {
	return c.IdentifierChanged || c.OffsetChanged || c.DSTChanged
}
