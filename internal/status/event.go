// Package status implements the availability state machine: meeting events,
// manual overrides, snooze windows, the color map, and the pure resolver that
// combines them into a single status label.
package status

import "time"

// Well-known status labels. Any color-map key can also act as a status label
// when keyword matching selects it from a meeting summary.
const (
	StatusInMeeting         = "in_meeting"
	StatusAvailable         = "available"
	StatusMeetingEndedEarly = "meeting_ended_early"
)

// Timing thresholds used by the resolver and the snooze manager.
const (
	// ImminentWindow is how far ahead an upcoming meeting counts as imminent.
	ImminentWindow = 60 * time.Second

	// ConflictLookahead is the search window for meetings that conflict with
	// an active snooze.
	ConflictLookahead = 5 * time.Minute

	// DefaultOverrideExpiry applies when a manual override carries no
	// explicit expiry.
	DefaultOverrideExpiry = 2 * time.Hour

	// SnoozeFallback is the legacy snooze length used when "end meeting
	// early" is pressed with no meeting actually ongoing.
	SnoozeFallback = 5 * time.Minute

	// ExtensionStep is the increment used when an expired snooze is extended
	// because its anchor meeting is still running.
	ExtensionStep = 60 * time.Second
)

// MeetingEvent is an immutable snapshot of one calendar event. Only the
// fields the resolver needs are retained.
type MeetingEvent struct {
	ID      string
	Summary string
	Start   time.Time
	End     time.Time
}

// Ongoing reports whether the event is in progress at the given time
// (start <= now <= end).
func (e MeetingEvent) Ongoing(now time.Time) bool {
	return !e.Start.After(now) && !e.End.Before(now)
}

// StartsWithin reports whether the event starts at or after now and no later
// than now+d. An event that already started is not "starting within" anything.
func (e MeetingEvent) StartsWithin(now time.Time, d time.Duration) bool {
	delta := e.Start.Sub(now)
	return delta >= 0 && delta <= d
}

// Same reports whether two events refer to the same calendar entry. Calendar
// IDs are not always present on recurring-event instances, so (summary, start)
// is the fallback composite key.
func (e MeetingEvent) Same(other MeetingEvent) bool {
	if e.ID != "" && other.ID != "" {
		return e.ID == other.ID
	}
	return e.Summary == other.Summary && e.Start.Equal(other.Start)
}

// CurrentAndNext picks the two meetings the resolver cares about: the ongoing
// meeting (the one ending last when several overlap) and the nearest upcoming
// one. Either may be nil.
func CurrentAndNext(events []MeetingEvent, now time.Time) (current, next *MeetingEvent) {
	for i := range events {
		e := &events[i]
		if e.Ongoing(now) {
			if current == nil || e.End.After(current.End) {
				current = e
			}
			continue
		}
		if e.Start.After(now) {
			if next == nil || e.Start.Before(next.Start) {
				next = e
			}
		}
	}
	return current, next
}
