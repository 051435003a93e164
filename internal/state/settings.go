// Package state owns the persisted daemon state. A single goroutine holds
// the settings in memory and serializes every read and mutation, which
// removes the read-modify-write race a shared JSON file otherwise invites.
package state

import (
	"time"

	"statuslight/internal/status"
)

// Minimum refresh interval, in seconds. Anything lower hammers the calendar
// API for no benefit.
const MinRefreshInterval = 15

// DefaultRefreshInterval is used when the state file carries no interval.
const DefaultRefreshInterval = 60

// Settings is the file-backed record shared between the scheduler and the
// UI layer. JSON keys are the historical state-file names; renaming them
// would orphan existing installs.
type Settings struct {
	CurrentStatus string `json:"CURRENT_STATUS"`

	ManualStatus          string     `json:"MANUAL_STATUS"`
	ManualStatusTimestamp *time.Time `json:"MANUAL_STATUS_TIMESTAMP"`
	ManualStatusExpiry    int        `json:"MANUAL_STATUS_EXPIRY"` // seconds

	SnoozeUntil        *time.Time `json:"SNOOZE_UNTIL"`
	SnoozeEventID      string     `json:"SNOOZE_EVENT_ID"`
	SnoozeEventSummary string     `json:"SNOOZE_EVENT_SUMMARY"`
	SnoozeEventStart   *time.Time `json:"SNOOZE_EVENT_START"`

	SelectedCalendarID string           `json:"SELECTED_CALENDAR_ID"`
	StatusColorMap     *status.ColorMap `json:"STATUS_COLOR_MAP"`
	RefreshInterval    int              `json:"REFRESH_INTERVAL"` // seconds

	DisableCalendarSync   bool `json:"DISABLE_CALENDAR_SYNC"`
	DisableLightControl   bool `json:"DISABLE_LIGHT_CONTROL"`
	PowerOffWhenAvailable bool `json:"POWER_OFF_WHEN_AVAILABLE"`
	OffForUnknownStatus   bool `json:"OFF_FOR_UNKNOWN_STATUS"`

	LastColorApplied string `json:"LAST_COLOR_APPLIED"`
	LastPowerApplied string `json:"LAST_POWER_APPLIED"` // "on", "off" or ""
}

// Override converts the persisted manual-status fields into the resolver's
// form.
func (s *Settings) Override() status.ManualOverride {
	ov := status.ManualOverride{Status: s.ManualStatus}
	if s.ManualStatusTimestamp != nil {
		ov.SetAt = *s.ManualStatusTimestamp
	}
	if s.ManualStatusExpiry > 0 {
		ov.Expiry = time.Duration(s.ManualStatusExpiry) * time.Second
	}
	return ov
}

// SetOverride records a manual override.
func (s *Settings) SetOverride(ov status.ManualOverride) {
	s.ManualStatus = ov.Status
	if ov.SetAt.IsZero() {
		s.ManualStatusTimestamp = nil
	} else {
		t := ov.SetAt
		s.ManualStatusTimestamp = &t
	}
	if ov.Expiry > 0 {
		s.ManualStatusExpiry = int(ov.Expiry / time.Second)
	}
}

// ClearOverride removes the manual override, leaving the configured expiry
// in place for the next one.
func (s *Settings) ClearOverride() {
	s.ManualStatus = ""
	s.ManualStatusTimestamp = nil
}

// Snooze converts the persisted snooze fields into the resolver's form.
func (s *Settings) Snooze() status.SnoozeWindow {
	var sw status.SnoozeWindow
	if s.SnoozeUntil != nil {
		sw.Until = *s.SnoozeUntil
	}
	sw.AnchorID = s.SnoozeEventID
	sw.AnchorSummary = s.SnoozeEventSummary
	if s.SnoozeEventStart != nil {
		sw.AnchorStart = *s.SnoozeEventStart
	}
	return sw
}

// SetSnooze records a snooze window.
func (s *Settings) SetSnooze(sw status.SnoozeWindow) {
	until := sw.Until
	s.SnoozeUntil = &until
	s.SnoozeEventID = sw.AnchorID
	s.SnoozeEventSummary = sw.AnchorSummary
	if sw.AnchorStart.IsZero() {
		s.SnoozeEventStart = nil
	} else {
		start := sw.AnchorStart
		s.SnoozeEventStart = &start
	}
}

// ClearSnooze removes the snooze window.
func (s *Settings) ClearSnooze() {
	s.SnoozeUntil = nil
	s.SnoozeEventID = ""
	s.SnoozeEventSummary = ""
	s.SnoozeEventStart = nil
}

// Interval returns the refresh cadence, clamped to a supported value.
// Supported intervals divide a minute so ticks can align to wall-clock
// boundaries.
func (s *Settings) Interval() time.Duration {
	sec := s.RefreshInterval
	switch {
	case sec <= 0:
		sec = DefaultRefreshInterval
	case sec < MinRefreshInterval:
		sec = MinRefreshInterval
	}

	switch {
	case sec < 30:
		sec = 15
	case sec < 60:
		sec = 30
	default:
		sec = 60
	}
	return time.Duration(sec) * time.Second
}

// normalize repairs a freshly loaded settings record: clamps the interval
// and guarantees a non-nil color map.
func (s *Settings) normalize() {
	if s.RefreshInterval <= 0 {
		s.RefreshInterval = DefaultRefreshInterval
	}
	if s.RefreshInterval < MinRefreshInterval {
		s.RefreshInterval = MinRefreshInterval
	}
	if s.ManualStatusExpiry <= 0 {
		s.ManualStatusExpiry = int(status.DefaultOverrideExpiry / time.Second)
	}
	if s.StatusColorMap == nil {
		s.StatusColorMap = status.NewColorMap()
	}
}

// clone deep-copies the settings so snapshots cannot alias the actor's copy.
func (s *Settings) clone() Settings {
	out := *s
	out.StatusColorMap = s.StatusColorMap.Clone()
	copyTime := func(t *time.Time) *time.Time {
		if t == nil {
			return nil
		}
		v := *t
		return &v
	}
	out.ManualStatusTimestamp = copyTime(s.ManualStatusTimestamp)
	out.SnoozeUntil = copyTime(s.SnoozeUntil)
	out.SnoozeEventStart = copyTime(s.SnoozeEventStart)
	return out
}
