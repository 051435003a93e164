package status

import "time"

// Input is everything one resolution cycle knows: the clock, the fetched
// calendar window, and the persisted override/snooze state.
type Input struct {
	Now     time.Time
	Events  []MeetingEvent // fetched window, used for snooze conflict checks
	Current *MeetingEvent  // ongoing meeting, nil when none
	Next    *MeetingEvent  // nearest upcoming meeting, nil when none

	Override ManualOverride
	Snooze   SnoozeWindow
	Colors   *ColorMap
}

// Patch is the set of state mutations a resolution demands. The caller
// applies it atomically; the resolver itself mutates nothing.
type Patch struct {
	ClearOverride bool
	ClearSnooze   bool

	// ExtendSnoozeUntil moves the snooze deadline forward. Zero leaves it
	// alone.
	ExtendSnoozeUntil time.Time
}

// Empty reports whether the patch mutates anything.
func (p Patch) Empty() bool {
	return !p.ClearOverride && !p.ClearSnooze && p.ExtendSnoozeUntil.IsZero()
}

// Resolution is the outcome of one cycle.
type Resolution struct {
	Status string
	Patch  Patch
}

// Resolve decides the status to display. Rules are evaluated in strict
// priority order; each is a hard tie-break:
//
//  1. an ongoing meeting (unless snoozed) or a meeting starting within 60s
//     forces "in_meeting" and evicts any other override,
//  2. an active "meeting ended early" snooze forces "available" unless a
//     different meeting has started or is about to,
//  3. an expired snooze is either extended (anchor meeting still running,
//     nothing else pending) or torn down,
//  4. a live manual override wins,
//  5. otherwise the calendar speaks for itself.
func Resolve(in Input) Resolution {
	now := in.Now
	ov := in.Override
	var patch Patch

	// A status with no timestamp (other than the snooze bridge) is a partial
	// write; drop it before it can influence anything.
	if ov.Corrupted() {
		patch.ClearOverride = true
		ov = ManualOverride{}
	}

	// Rule 1: imminent or active meeting, not snoozed.
	currentActive := in.Current != nil && in.Current.Ongoing(now)
	imminent := in.Next != nil && in.Next.StartsWithin(now, ImminentWindow)
	if (currentActive && ov.Status != StatusMeetingEndedEarly) || imminent {
		if ov.Set() && ov.Status != StatusInMeeting {
			patch.ClearOverride = true
		}
		if in.Snooze.Set() {
			patch.ClearSnooze = true
		}
		return Resolution{Status: StatusInMeeting, Patch: patch}
	}

	// Rule 2: active snooze.
	if ov.Status == StatusMeetingEndedEarly && in.Snooze.Active(now) {
		if in.Snooze.conflictRequiresClear(now, in.Events) {
			patch.ClearOverride = true
			patch.ClearSnooze = true
			return Resolution{Status: calendarStatus(now, in.Current, in.Colors), Patch: patch}
		}
		return Resolution{Status: StatusAvailable, Patch: patch}
	}

	// Rule 3: snooze expired (or the bridge override lost its window).
	if ov.Status == StatusMeetingEndedEarly {
		if until, ok := extendExpiredSnooze(in); ok {
			patch.ExtendSnoozeUntil = until
			return Resolution{Status: StatusAvailable, Patch: patch}
		}
		patch.ClearOverride = true
		if in.Snooze.Set() {
			patch.ClearSnooze = true
		}
		return Resolution{Status: calendarStatus(now, in.Current, in.Colors), Patch: patch}
	}

	// An expired snooze left behind without its bridge override is stale.
	if in.Snooze.Set() && !in.Snooze.Active(now) {
		patch.ClearSnooze = true
	}

	// Rule 4: manual override.
	if ov.Set() {
		if !ov.Expired(now) {
			return Resolution{Status: ov.Status, Patch: patch}
		}
		patch.ClearOverride = true
	}

	// Rule 5: raw calendar status.
	return Resolution{Status: calendarStatus(now, in.Current, in.Colors), Patch: patch}
}

// calendarStatus derives the status from the calendar alone. With a meeting
// ongoing, the first color-map key found in its summary names the status;
// otherwise a generic "in_meeting". With no meeting, "available".
func calendarStatus(now time.Time, current *MeetingEvent, colors *ColorMap) string {
	if current == nil || !current.Ongoing(now) {
		return StatusAvailable
	}
	if key, ok := colors.MatchSummary(current.Summary); ok {
		return key
	}
	return StatusInMeeting
}

// extendExpiredSnooze handles the expiry of a snooze whose anchor meeting is
// still technically ongoing with nothing new pending: rather than flapping
// the lights back on, the deadline is pushed out in 60-second steps, capped
// at the anchor meeting's end.
func extendExpiredSnooze(in Input) (time.Time, bool) {
	if !in.Snooze.Set() || in.Current == nil || !in.Current.Ongoing(in.Now) {
		return time.Time{}, false
	}
	if !in.Snooze.Anchors(*in.Current) {
		return time.Time{}, false
	}
	if in.Snooze.conflictRequiresClear(in.Now, in.Events) {
		return time.Time{}, false
	}

	until := in.Snooze.Until
	for !until.After(in.Now) {
		until = until.Add(ExtensionStep)
	}
	if until.After(in.Current.End) {
		until = in.Current.End
	}
	if !until.After(in.Now) {
		return time.Time{}, false
	}
	return until, true
}

