package status

import "time"

// SnoozeWindow is the suppression period created by "end meeting early". The
// anchor identifies the meeting that was ended so that the same meeting does
// not cancel its own snooze.
type SnoozeWindow struct {
	Until         time.Time
	AnchorID      string
	AnchorSummary string
	AnchorStart   time.Time
}

// Set reports whether a snooze window exists.
func (s SnoozeWindow) Set() bool {
	return !s.Until.IsZero()
}

// Active reports whether the snooze is still in effect.
func (s SnoozeWindow) Active(now time.Time) bool {
	return s.Set() && now.Before(s.Until)
}

// Anchors reports whether the event is the meeting this snooze was created
// from, matching by ID when both sides have one, otherwise by the
// (summary, start) composite key.
func (s SnoozeWindow) Anchors(e MeetingEvent) bool {
	if s.AnchorID != "" && e.ID != "" {
		return s.AnchorID == e.ID
	}
	if s.AnchorSummary == "" && s.AnchorStart.IsZero() {
		return false
	}
	return s.AnchorSummary == e.Summary && s.AnchorStart.Equal(e.Start)
}

// Overlapping returns the events that conflict with the snooze: meetings
// other than the anchor that are ongoing or start within the lookahead
// window.
func (s SnoozeWindow) Overlapping(now time.Time, events []MeetingEvent) []MeetingEvent {
	var conflicts []MeetingEvent
	for _, e := range events {
		if s.Anchors(e) {
			continue
		}
		if e.Ongoing(now) || e.StartsWithin(now, ConflictLookahead) {
			conflicts = append(conflicts, e)
		}
	}
	return conflicts
}

// conflictRequiresClear reports whether any conflicting meeting has started
// or is about to (within the imminent window). Only those cancel the snooze;
// a conflict a few minutes out merely shows up in the wider lookahead.
func (s SnoozeWindow) conflictRequiresClear(now time.Time, events []MeetingEvent) bool {
	for _, e := range s.Overlapping(now, events) {
		if e.Ongoing(now) || e.StartsWithin(now, ImminentWindow) {
			return true
		}
	}
	return false
}

// BeginSnooze builds the snooze window for "end meeting early". Among all
// currently ongoing meetings it anchors on the one ending last, which matters
// when the user ends the outer of two overlapping meetings. With nothing
// ongoing it falls back to a fixed-length window with no anchor.
func BeginSnooze(now time.Time, events []MeetingEvent) SnoozeWindow {
	var anchor *MeetingEvent
	for i := range events {
		e := &events[i]
		if !e.Ongoing(now) {
			continue
		}
		if anchor == nil || e.End.After(anchor.End) {
			anchor = e
		}
	}

	if anchor == nil {
		return SnoozeWindow{Until: now.Add(SnoozeFallback)}
	}

	return SnoozeWindow{
		Until:         anchor.End,
		AnchorID:      anchor.ID,
		AnchorSummary: anchor.Summary,
		AnchorStart:   anchor.Start,
	}
}
