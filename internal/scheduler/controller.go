// Package scheduler runs the resolution cycle: on a wall-clock aligned
// cadence it fetches the calendar window, resolves the status, applies the
// resulting state patch, and drives the light actuator. It also supervises
// the loop, restarting after a crash up to a bound, and exposes the
// imperative hooks the UI layer calls.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"statuslight/internal/calendar"
	"statuslight/internal/clock"
	"statuslight/internal/light"
	"statuslight/internal/state"
	"statuslight/internal/status"

	"go.uber.org/zap"
)

const (
	// crashBackoff is the pause before restarting the loop after a crash.
	crashBackoff = 5 * time.Second

	// maxCrashRestarts bounds consecutive crash-restarts. Exceeding it
	// stops the worker permanently; a hot crash loop helps nobody.
	maxCrashRestarts = 5

	// stopTimeout bounds how long Stop waits for the worker to exit.
	stopTimeout = 2 * time.Second

	fetchLookback   = 15 * time.Minute
	fetchHorizon    = 2 * time.Hour
	snoozeHorizon   = 24 * time.Hour
	maxFetchResults = 25
)

// Controller owns the scheduler worker. All exported methods are safe to
// call concurrently; at most one resolution cycle runs at a time.
type Controller struct {
	store    *state.Store
	cal      calendar.Client // nil disables calendar fetching entirely
	actuator *light.Actuator
	clk      clock.Clock
	logger   *zap.Logger

	// cycleMu serializes resolution cycles. An UpdateNow issued while a
	// scheduled cycle is in flight waits for it rather than interleaving.
	cycleMu sync.Mutex

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}

	notifyMu sync.RWMutex
	notify   []func(string)
}

// New creates a Controller. The calendar client may be nil, in which case
// the daemon runs on manual status alone.
func New(store *state.Store, cal calendar.Client, actuator *light.Actuator, clk clock.Clock, logger *zap.Logger) *Controller {
	return &Controller{
		store:    store,
		cal:      cal,
		actuator: actuator,
		clk:      clk,
		logger:   logger.Named("scheduler"),
	}
}

// OnStatusChange registers a callback fired (on its own goroutine) whenever
// the resolved status changes.
func (c *Controller) OnStatusChange(fn func(newStatus string)) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.notify = append(c.notify, fn)
}

// Running reports whether the periodic worker is active.
func (c *Controller) Running() bool {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.running
}

// Start runs one resolution cycle synchronously, so meetings already in
// progress are reflected without waiting for the first tick, then launches
// the periodic worker. Calling Start while running is a no-op.
func (c *Controller) Start() {
	c.runMu.Lock()
	if c.running {
		c.runMu.Unlock()
		c.logger.Debug("Start ignored, scheduler already running")
		return
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.done = make(chan struct{})
	stopCh, done := c.stopCh, c.done
	c.runMu.Unlock()

	c.logger.Info("Starting scheduler")
	if err := c.safeCycle(); err != nil {
		c.logger.Error("Initial resolution cycle crashed", zap.Error(err))
	}

	go c.loop(stopCh, done)
}

// Stop asks the worker to exit and waits for it, bounded by stopTimeout.
// An in-flight cycle is never interrupted; the caller accepts up to one
// cycle's latency.
func (c *Controller) Stop() {
	c.runMu.Lock()
	if !c.running {
		c.runMu.Unlock()
		return
	}
	c.running = false
	close(c.stopCh)
	done := c.done
	c.runMu.Unlock()

	select {
	case <-done:
		c.logger.Info("Scheduler stopped")
	case <-c.clk.After(stopTimeout):
		c.logger.Warn("Scheduler worker did not exit before the stop timeout")
	}
}

// UpdateNow forces one resolution cycle out-of-band from the timer. The
// scheduled cadence is not disturbed.
func (c *Controller) UpdateNow() {
	if err := c.safeCycle(); err != nil {
		c.logger.Error("On-demand resolution cycle crashed", zap.Error(err))
	}
}

// EndMeetingEarly creates a snooze window from the currently ongoing
// meetings and re-resolves immediately.
func (c *Controller) EndMeetingEarly() {
	now := c.clk.Now()
	snap := c.store.Snapshot()

	var events []status.MeetingEvent
	if c.cal != nil && !snap.DisableCalendarSync && snap.SelectedCalendarID != "" {
		fetched, err := c.cal.ListEvents(context.Background(), snap.SelectedCalendarID,
			now.Add(-fetchLookback), now.Add(fetchHorizon), maxFetchResults)
		if err != nil {
			c.logger.Warn("Calendar fetch failed, snoozing with the fixed fallback window",
				zap.Error(err))
		} else {
			events = fetched
		}
	}

	sw := status.BeginSnooze(now, events)
	if err := c.store.Update(func(s *state.Settings) {
		s.SetSnooze(sw)
		s.SetOverride(status.ManualOverride{Status: status.StatusMeetingEndedEarly, SetAt: now})
	}); err != nil {
		return
	}

	c.logger.Info("Meeting ended early",
		zap.Time("snooze_until", sw.Until),
		zap.String("anchor_summary", sw.AnchorSummary),
		zap.String("anchor_id", sw.AnchorID))

	c.UpdateNow()
}

// SetManualStatus records a manual override and re-resolves immediately.
// A zero expiry keeps the configured default.
func (c *Controller) SetManualStatus(label string, expiry time.Duration) {
	now := c.clk.Now()
	if err := c.store.Update(func(s *state.Settings) {
		s.SetOverride(status.ManualOverride{Status: label, SetAt: now, Expiry: expiry})
	}); err != nil {
		return
	}

	c.logger.Info("Manual status set", zap.String("status", label))
	c.UpdateNow()
}

// ClearManualStatus removes any override and snooze and re-resolves.
func (c *Controller) ClearManualStatus() {
	if err := c.store.Update(func(s *state.Settings) {
		s.ClearOverride()
		s.ClearSnooze()
	}); err != nil {
		return
	}

	c.logger.Info("Manual status cleared")
	c.UpdateNow()
}

// TurnOffLightsImmediately forces the light off, bypassing the
// light-control disable flag.
func (c *Controller) TurnOffLightsImmediately() error {
	if err := c.actuator.ForceOff(context.Background()); err != nil {
		return err
	}

	power, color := c.actuator.LastApplied()
	return c.store.Update(func(s *state.Settings) {
		s.LastPowerApplied = power
		s.LastColorApplied = color
	})
}

// loop is the periodic worker. The first scheduled iteration waits for the
// next wall-clock boundary; Start already ran the immediate cycle.
func (c *Controller) loop(stopCh, done chan struct{}) {
	defer close(done)

	crashes := 0
	for {
		snap := c.store.Snapshot()
		interval := snap.Interval()

		select {
		case <-stopCh:
			return
		case <-c.clk.After(alignDelay(c.clk.Now(), interval)):
		}

		if err := c.safeCycle(); err != nil {
			crashes++
			c.logger.Error("Resolution cycle crashed",
				zap.Int("consecutive_crashes", crashes),
				zap.Error(err))

			if crashes >= maxCrashRestarts {
				c.logger.Error("Giving up after repeated crashes, status updates stopped",
					zap.Int("max_restarts", maxCrashRestarts))
				c.markStopped()
				return
			}

			select {
			case <-stopCh:
				return
			case <-c.clk.After(crashBackoff):
			}
			continue
		}
		crashes = 0
	}
}

// markStopped flips the running flag when the supervisor gives up.
func (c *Controller) markStopped() {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	c.running = false
}

// safeCycle runs one cycle, converting a panic into an error so the
// supervisor can count it. Transient collaborator failures are handled and
// logged inside the cycle and are not crashes.
func (c *Controller) safeCycle() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("resolution cycle panicked: %v", r)
		}
	}()
	c.runCycle()
	return nil
}

// runCycle performs one full resolution: load state, fetch the calendar
// window, resolve, apply the patch, drive the light.
func (c *Controller) runCycle() {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	now := c.clk.Now()
	snap := c.store.Snapshot()

	events, ok := c.fetchEvents(now, &snap)
	if !ok {
		return
	}

	current, next := status.CurrentAndNext(events, now)
	res := status.Resolve(status.Input{
		Now:      now,
		Events:   events,
		Current:  current,
		Next:     next,
		Override: snap.Override(),
		Snooze:   snap.Snooze(),
		Colors:   snap.StatusColorMap,
	})

	previous := snap.CurrentStatus
	if err := c.store.Update(func(s *state.Settings) {
		if res.Patch.ClearOverride {
			s.ClearOverride()
		}
		if res.Patch.ClearSnooze {
			s.ClearSnooze()
		}
		if !res.Patch.ExtendSnoozeUntil.IsZero() {
			until := res.Patch.ExtendSnoozeUntil
			s.SnoozeUntil = &until
		}
		s.CurrentStatus = res.Status
	}); err != nil {
		// Persisting failed; keep going so the light still tracks reality.
		c.logger.Warn("State not persisted this cycle", zap.Error(err))
	}

	c.logCycle(now, res, current, next, &snap)

	if !snap.DisableLightControl {
		target := light.ResolveTarget(res.Status, snap.StatusColorMap,
			snap.PowerOffWhenAvailable, snap.OffForUnknownStatus)
		if err := c.actuator.Apply(context.Background(), target); err != nil {
			c.logger.Warn("Light not updated this cycle, will retry",
				zap.String("status", res.Status),
				zap.Error(err))
		}

		power, color := c.actuator.LastApplied()
		_ = c.store.Update(func(s *state.Settings) {
			s.LastPowerApplied = power
			s.LastColorApplied = color
		})
	}

	if res.Status != previous {
		c.logger.Info("Status changed",
			zap.String("from", previous),
			zap.String("to", res.Status))
		c.notifyStatus(res.Status)
	}
}

// fetchEvents returns the calendar window for this cycle. The second return
// is false when the cycle should be abandoned (transient fetch failure, no
// state mutated, retried on the next tick).
func (c *Controller) fetchEvents(now time.Time, snap *state.Settings) ([]status.MeetingEvent, bool) {
	if c.cal == nil || snap.DisableCalendarSync || snap.SelectedCalendarID == "" {
		return nil, true
	}

	// A wider horizon while snoozed: the overlap check needs to see
	// meetings well past the snooze window.
	horizon := fetchHorizon
	if snap.Snooze().Set() {
		horizon = snoozeHorizon
	}

	events, err := c.cal.ListEvents(context.Background(), snap.SelectedCalendarID,
		now.Add(-fetchLookback), now.Add(horizon), maxFetchResults)
	if err != nil {
		if calendar.IsAuthError(err) {
			c.logger.Error("Calendar authentication failed, disabling calendar sync",
				zap.String("calendar_id", snap.SelectedCalendarID),
				zap.Error(err))
			_ = c.store.Update(func(s *state.Settings) {
				s.DisableCalendarSync = true
			})
			// Degrade to manual-only status rather than abandoning the cycle.
			return nil, true
		}

		c.logger.Warn("Calendar fetch failed, will retry next cycle",
			zap.String("calendar_id", snap.SelectedCalendarID),
			zap.Error(err))
		return nil, false
	}

	return events, true
}

// logCycle records the full decision context; timing bugs in this state
// machine are undiagnosable without it.
func (c *Controller) logCycle(now time.Time, res status.Resolution, current, next *status.MeetingEvent, snap *state.Settings) {
	fields := []zap.Field{
		zap.Time("now", now),
		zap.String("status", res.Status),
		zap.String("override", snap.ManualStatus),
		zap.Bool("clear_override", res.Patch.ClearOverride),
		zap.Bool("clear_snooze", res.Patch.ClearSnooze),
	}
	if current != nil {
		fields = append(fields,
			zap.String("current_meeting", current.Summary),
			zap.Time("current_end", current.End))
	}
	if next != nil {
		fields = append(fields,
			zap.String("next_meeting", next.Summary),
			zap.Time("next_start", next.Start))
	}
	if snap.SnoozeUntil != nil {
		fields = append(fields, zap.Time("snooze_until", *snap.SnoozeUntil))
	}
	c.logger.Debug("Cycle resolved", fields...)
}

func (c *Controller) notifyStatus(newStatus string) {
	c.notifyMu.RLock()
	handlers := make([]func(string), len(c.notify))
	copy(handlers, c.notify)
	c.notifyMu.RUnlock()

	for _, fn := range handlers {
		go fn(newStatus)
	}
}

// alignDelay returns the time until the next wall-clock boundary of the
// interval: :00/:15/:30/:45 for 15s, :00/:30 for 30s, the top of the
// minute for 60s. Aligned checks are deterministic and easy to reason
// about in logs.
func alignDelay(now time.Time, interval time.Duration) time.Duration {
	return now.Truncate(interval).Add(interval).Sub(now)
}
