// Package light turns a resolved status into at most two device commands.
// The interesting part is what it does not send: the actuator diffs every
// target against the last state it successfully applied, which cuts the
// Govee API call volume to a fraction of a naive send-both-every-cycle loop.
package light

import (
	"context"
	"sync"

	"statuslight/internal/govee"
	"statuslight/internal/status"

	"go.uber.org/zap"
)

// Target is the desired light state for a status.
type Target struct {
	PowerOn    bool
	Color      status.RGB
	Brightness int // 0 means leave brightness alone
}

// ResolveTarget maps a status label to a light target via the color map.
// Statuses without an entry fall back to the configured booleans: available
// can power the light off, anything else unknown is either "off" or white
// depending on offForUnknown.
func ResolveTarget(st string, colors *status.ColorMap, powerOffWhenAvailable, offForUnknown bool) Target {
	if action, ok := colors.Get(st); ok {
		if action.Off {
			return Target{}
		}
		return Target{PowerOn: true, Color: action.Color, Brightness: action.Brightness}
	}

	if st == status.StatusAvailable && powerOffWhenAvailable {
		return Target{}
	}
	if offForUnknown {
		return Target{}
	}
	return Target{PowerOn: true, Color: status.White}
}

// Actuator applies targets to the device, suppressing redundant commands.
type Actuator struct {
	ctrl   govee.Controller
	logger *zap.Logger

	mu        sync.Mutex
	lastPower *bool
	lastColor *status.RGB
}

// NewActuator creates an actuator with an empty last-applied cache, so the
// first Apply always sends a power command.
func NewActuator(ctrl govee.Controller, logger *zap.Logger) *Actuator {
	return &Actuator{
		ctrl:   ctrl,
		logger: logger.Named("light"),
	}
}

// Prime seeds the last-applied cache from persisted state, so a daemon
// restart does not re-send commands the device already received. Values it
// cannot parse leave the cache empty.
func (a *Actuator) Prime(power, color string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch power {
	case "on", "off":
		on := power == "on"
		a.lastPower = &on
	default:
		return
	}

	if color == "" {
		return
	}
	if c, err := status.ParseRGB(color); err == nil {
		a.lastColor = &c
	}
}

// Apply brings the device to the target state. A power command is issued
// only on a power transition, a color command only while powered on and
// only when the color changed. Turning off forgets the color so the next
// "on" always re-sends one. A failed command leaves the cache untouched;
// the next cycle retries it.
func (a *Actuator) Apply(ctx context.Context, t Target) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.lastPower == nil || *a.lastPower != t.PowerOn {
		if err := a.ctrl.SetPower(ctx, t.PowerOn); err != nil {
			a.logger.Warn("Failed to set power",
				zap.Bool("on", t.PowerOn),
				zap.Error(err))
			return err
		}
		on := t.PowerOn
		a.lastPower = &on
		if !t.PowerOn {
			a.lastColor = nil
		}
		a.logger.Info("Light power changed", zap.Bool("on", t.PowerOn))
	}

	if !t.PowerOn {
		return nil
	}

	if a.lastColor == nil || *a.lastColor != t.Color {
		if t.Brightness > 0 {
			// Brightness is best-effort; a failure should not block the
			// color change.
			if err := a.ctrl.SetBrightness(ctx, t.Brightness); err != nil {
				a.logger.Warn("Failed to set brightness",
					zap.Int("brightness", t.Brightness),
					zap.Error(err))
			}
		}
		if err := a.ctrl.SetColor(ctx, t.Color); err != nil {
			a.logger.Warn("Failed to set color",
				zap.String("color", t.Color.String()),
				zap.Error(err))
			return err
		}
		c := t.Color
		a.lastColor = &c
		a.logger.Info("Light color changed", zap.String("color", t.Color.String()))
	}

	return nil
}

// ForceOff turns the light off unconditionally. The scheduler calls it for
// the immediate-off user action, which bypasses the disable flag.
func (a *Actuator) ForceOff(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.ctrl.SetPower(ctx, false); err != nil {
		a.logger.Warn("Failed to force lights off", zap.Error(err))
		return err
	}

	off := false
	a.lastPower = &off
	a.lastColor = nil
	a.logger.Info("Lights forced off")
	return nil
}

// LastApplied reports the cache in the state file's string form: power is
// "on"/"off"/"" and color is "r,g,b" or "".
func (a *Actuator) LastApplied() (power, color string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.lastPower != nil {
		if *a.lastPower {
			power = "on"
		} else {
			power = "off"
		}
	}
	if a.lastColor != nil {
		color = a.lastColor.String()
	}
	return power, color
}
