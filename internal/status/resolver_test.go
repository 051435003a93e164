package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)

func meeting(id, summary string, start, end time.Time) MeetingEvent {
	return MeetingEvent{ID: id, Summary: summary, Start: start, End: end}
}

func defaultColors() *ColorMap {
	m := NewColorMap()
	m.Set(StatusInMeeting, ColorAction{Color: RGB{R: 255, G: 0, B: 0}})
	m.Set(StatusAvailable, ColorAction{Color: RGB{R: 0, G: 255, B: 0}})
	m.Set("focus", ColorAction{Color: RGB{R: 0, G: 0, B: 255}})
	return m
}

func resolveInput(in Input) Resolution {
	if in.Current == nil && in.Next == nil {
		in.Current, in.Next = CurrentAndNext(in.Events, in.Now)
	}
	return Resolve(in)
}

func TestResolve_OngoingMeetingWinsOverOverride(t *testing.T) {
	m := meeting("m1", "Standup", base.Add(-10*time.Minute), base.Add(20*time.Minute))

	res := resolveInput(Input{
		Now:      base,
		Events:   []MeetingEvent{m},
		Override: ManualOverride{Status: "focus", SetAt: base.Add(-time.Minute)},
		Colors:   defaultColors(),
	})

	assert.Equal(t, StatusInMeeting, res.Status)
	assert.True(t, res.Patch.ClearOverride, "non-in_meeting override must be evicted")
}

func TestResolve_ImminentWindowBoundary(t *testing.T) {
	tests := []struct {
		name       string
		startIn    time.Duration
		wantStatus string
	}{
		{"exactly 60s is imminent", 60 * time.Second, StatusInMeeting},
		{"60.1s is not imminent", 60*time.Second + 100*time.Millisecond, StatusAvailable},
		{"already started counts as active, not imminent", -100 * time.Millisecond, StatusInMeeting},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := meeting("m1", "Sync", base.Add(tt.startIn), base.Add(tt.startIn).Add(30*time.Minute))
			res := resolveInput(Input{
				Now:    base,
				Events: []MeetingEvent{m},
				Colors: defaultColors(),
			})
			assert.Equal(t, tt.wantStatus, res.Status)
		})
	}
}

func TestResolve_ImminentMeetingClearsOverride(t *testing.T) {
	next := meeting("m2", "Review", base.Add(30*time.Second), base.Add(30*time.Minute))

	res := resolveInput(Input{
		Now:      base,
		Events:   []MeetingEvent{next},
		Override: ManualOverride{Status: "focus", SetAt: base.Add(-10*time.Minute)},
		Colors:   defaultColors(),
	})

	assert.Equal(t, StatusInMeeting, res.Status)
	assert.True(t, res.Patch.ClearOverride)
}

func TestResolve_ActiveSnoozeForcesAvailable(t *testing.T) {
	anchor := meeting("m1", "All hands", base.Add(-30*time.Minute), base.Add(30*time.Minute))
	snooze := BeginSnooze(base, []MeetingEvent{anchor})

	res := resolveInput(Input{
		Now:      base,
		Events:   []MeetingEvent{anchor},
		Override: ManualOverride{Status: StatusMeetingEndedEarly},
		Snooze:   snooze,
		Colors:   defaultColors(),
	})

	assert.Equal(t, StatusAvailable, res.Status)
	assert.True(t, res.Patch.Empty(), "nothing to mutate while snooze holds")
}

func TestResolve_SnoozeClearedByDifferentImminentMeeting(t *testing.T) {
	anchor := meeting("m1", "All hands", base.Add(-30*time.Minute), base.Add(30*time.Minute))
	other := meeting("m2", "1:1", base.Add(45*time.Second), base.Add(30*time.Minute))
	snooze := BeginSnooze(base, []MeetingEvent{anchor})

	res := resolveInput(Input{
		Now:      base,
		Events:   []MeetingEvent{anchor, other},
		Override: ManualOverride{Status: StatusMeetingEndedEarly},
		Snooze:   snooze,
		Colors:   defaultColors(),
	})

	// The different meeting is within the imminent window, so rule 1 wins
	// outright and the snooze is torn down.
	assert.Equal(t, StatusInMeeting, res.Status)
	assert.True(t, res.Patch.ClearOverride)
	assert.True(t, res.Patch.ClearSnooze)
}

func TestResolve_SnoozeSurvivesDistantConflict(t *testing.T) {
	anchor := meeting("m1", "All hands", base.Add(-30*time.Minute), base.Add(30*time.Minute))
	// Inside the 5-minute lookahead but outside the 60s clear threshold.
	other := meeting("m2", "1:1", base.Add(3*time.Minute), base.Add(30*time.Minute))
	snooze := BeginSnooze(base, []MeetingEvent{anchor})

	res := resolveInput(Input{
		Now:      base,
		Events:   []MeetingEvent{anchor, other},
		Override: ManualOverride{Status: StatusMeetingEndedEarly},
		Snooze:   snooze,
		Colors:   defaultColors(),
	})

	assert.Equal(t, StatusAvailable, res.Status)
	assert.False(t, res.Patch.ClearSnooze)
}

func TestResolve_SnoozeOverlapScenario(t *testing.T) {
	// Anchor ends at T, snooze.until = T, a different meeting starts T+30s.
	// At T+5s the conflict is within 60s: the snooze must go.
	endT := base
	now := endT.Add(5 * time.Second)
	anchor := meeting("m1", "Town hall", endT.Add(-time.Hour), endT)
	other := meeting("m2", "Planning", endT.Add(30*time.Second), endT.Add(time.Hour))

	snooze := SnoozeWindow{Until: endT, AnchorID: "m1", AnchorSummary: "Town hall", AnchorStart: anchor.Start}

	res := resolveInput(Input{
		Now:      now,
		Events:   []MeetingEvent{anchor, other},
		Override: ManualOverride{Status: StatusMeetingEndedEarly},
		Snooze:   snooze,
		Colors:   defaultColors(),
	})

	assert.True(t, res.Patch.ClearSnooze)
	assert.True(t, res.Patch.ClearOverride)

	// Next cycle, with the state cleared, the imminent meeting rules.
	next := resolveInput(Input{
		Now:    now.Add(15 * time.Second),
		Events: []MeetingEvent{other},
		Colors: defaultColors(),
	})
	assert.Equal(t, StatusInMeeting, next.Status)
}

func TestResolve_ExpiredSnoozeExtendsWhileAnchorRuns(t *testing.T) {
	anchor := meeting("m1", "Workshop", base.Add(-time.Hour), base.Add(10*time.Minute))
	snooze := SnoozeWindow{
		Until:         base.Add(-30 * time.Second),
		AnchorID:      "m1",
		AnchorSummary: "Workshop",
		AnchorStart:   anchor.Start,
	}

	res := resolveInput(Input{
		Now:      base,
		Events:   []MeetingEvent{anchor},
		Override: ManualOverride{Status: StatusMeetingEndedEarly},
		Snooze:   snooze,
		Colors:   defaultColors(),
	})

	assert.Equal(t, StatusAvailable, res.Status)
	require.False(t, res.Patch.ExtendSnoozeUntil.IsZero(), "snooze should be extended, not cleared")
	assert.True(t, res.Patch.ExtendSnoozeUntil.After(base))
	assert.False(t, res.Patch.ExtendSnoozeUntil.After(anchor.End), "extension is capped at meeting end")
}

func TestResolve_ExpiredSnoozeClearsOnceAnchorEnds(t *testing.T) {
	anchor := meeting("m1", "Workshop", base.Add(-2*time.Hour), base.Add(-time.Minute))
	snooze := SnoozeWindow{
		Until:         base.Add(-time.Minute),
		AnchorID:      "m1",
		AnchorSummary: "Workshop",
		AnchorStart:   anchor.Start,
	}

	res := resolveInput(Input{
		Now:      base,
		Events:   []MeetingEvent{anchor},
		Override: ManualOverride{Status: StatusMeetingEndedEarly},
		Snooze:   snooze,
		Colors:   defaultColors(),
	})

	assert.Equal(t, StatusAvailable, res.Status)
	assert.True(t, res.Patch.ClearOverride)
	assert.True(t, res.Patch.ClearSnooze)
}

func TestResolve_OverrideExpiry(t *testing.T) {
	tests := []struct {
		name        string
		age         time.Duration
		wantStatus  string
		wantCleared bool
	}{
		{"7199s old is retained", 7199 * time.Second, "focus", false},
		{"7201s old is cleared", 7201 * time.Second, StatusAvailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := resolveInput(Input{
				Now:      base,
				Override: ManualOverride{Status: "focus", SetAt: base.Add(-tt.age)},
				Colors:   defaultColors(),
			})
			assert.Equal(t, tt.wantStatus, res.Status)
			assert.Equal(t, tt.wantCleared, res.Patch.ClearOverride)
		})
	}
}

func TestResolve_CorruptedOverrideForceCleared(t *testing.T) {
	res := resolveInput(Input{
		Now:      base,
		Override: ManualOverride{Status: "focus"}, // no timestamp
		Colors:   defaultColors(),
	})

	assert.Equal(t, StatusAvailable, res.Status)
	assert.True(t, res.Patch.ClearOverride)
}

func TestResolve_MeetingEndedEarlyWithoutTimestampAllowed(t *testing.T) {
	anchor := meeting("m1", "Retro", base.Add(-10*time.Minute), base.Add(20*time.Minute))
	snooze := BeginSnooze(base, []MeetingEvent{anchor})

	// The bridge override legitimately has no timestamp.
	res := resolveInput(Input{
		Now:      base,
		Events:   []MeetingEvent{anchor},
		Override: ManualOverride{Status: StatusMeetingEndedEarly},
		Snooze:   snooze,
		Colors:   defaultColors(),
	})

	assert.Equal(t, StatusAvailable, res.Status)
	assert.False(t, res.Patch.ClearOverride)
}

func TestResolve_CalendarStatusKeywordMatch(t *testing.T) {
	m := meeting("m1", "Deep Focus block", base.Add(-5*time.Minute), base.Add(55*time.Minute))

	res := resolveInput(Input{
		Now:    base,
		Events: []MeetingEvent{m},
		Colors: defaultColors(),
	})

	// "focus" is a color-map key and a substring of the summary, so the
	// derived status is the key itself... unless an earlier key also
	// matches. Here none does.
	assert.Equal(t, "focus", res.Status)
}

func TestResolve_CalendarStatusKeywordOrder(t *testing.T) {
	colors := NewColorMap()
	colors.Set("sync", ColorAction{Color: RGB{R: 255, G: 128, B: 0}})
	colors.Set("focus", ColorAction{Color: RGB{R: 0, G: 0, B: 255}})

	m := meeting("m1", "Focus sync", base.Add(-5*time.Minute), base.Add(55*time.Minute))

	res := resolveInput(Input{Now: base, Events: []MeetingEvent{m}, Colors: colors})

	// Both keys match; the one declared first wins.
	assert.Equal(t, "sync", res.Status)
}

func TestResolve_NoMeetingsNoOverride(t *testing.T) {
	res := resolveInput(Input{Now: base, Colors: defaultColors()})
	assert.Equal(t, StatusAvailable, res.Status)
	assert.True(t, res.Patch.Empty())
}

func TestResolve_LiveOverrideWins(t *testing.T) {
	res := resolveInput(Input{
		Now:      base,
		Override: ManualOverride{Status: "lunch", SetAt: base.Add(-time.Minute)},
		Colors:   defaultColors(),
	})
	assert.Equal(t, "lunch", res.Status)
	assert.True(t, res.Patch.Empty())
}

func TestResolve_PriorityInvariantHoldsForAvailableOverride(t *testing.T) {
	// An ongoing meeting beats every override other than the snooze bridge,
	// including a lingering "available" one.
	m := meeting("m1", "Marathon", base.Add(-3*time.Hour), base.Add(time.Hour))
	ov := ManualOverride{Status: StatusAvailable, SetAt: base.Add(-time.Minute)}

	res := resolveInput(Input{
		Now:      base,
		Events:   []MeetingEvent{m},
		Override: ov,
		Colors:   defaultColors(),
	})

	assert.Equal(t, StatusInMeeting, res.Status)
	assert.True(t, res.Patch.ClearOverride)
}

func TestCurrentAndNext(t *testing.T) {
	ongoing := meeting("m1", "A", base.Add(-10*time.Minute), base.Add(10*time.Minute))
	outer := meeting("m2", "B", base.Add(-20*time.Minute), base.Add(40*time.Minute))
	upcoming := meeting("m3", "C", base.Add(time.Hour), base.Add(2*time.Hour))
	sooner := meeting("m4", "D", base.Add(5*time.Minute), base.Add(15*time.Minute))

	current, next := CurrentAndNext([]MeetingEvent{ongoing, outer, upcoming, sooner}, base)

	require.NotNil(t, current)
	assert.Equal(t, "m2", current.ID, "the overlapping meeting ending last is current")
	require.NotNil(t, next)
	assert.Equal(t, "m4", next.ID, "the soonest upcoming meeting is next")
}
