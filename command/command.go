// Package command translates a scheduler snapshot into the coarse
// inverter command the control loop dispatches, de-duplicating against
// the last-applied state so the inverter is not re-commanded every cycle
// for no reason.
package command

import (
	"math"

	"github.com/fennerhome/batteryctl/domain"
)

// Kind is the command the translator decided on.
type Kind string

const (
	KindCharge Kind = "charge"
	KindHold   Kind = "hold"
	KindAuto   Kind = "auto"
)

// Command is the semantic payload sent to the inverter driver.
type Command struct {
	Kind           Kind
	SocMinPercent  int // floor, meaningful for Auto
	TargetPercent  int // charge/hold target
}

// LastApplied records what was last sent, so the translator can suppress
// a repeat of an equivalent command.
type LastApplied struct {
	Kind          Kind
	TargetPercent int
	set           bool
}

// Translator turns snapshots into commands, holding the last-applied
// state between calls.
type Translator struct {
	last LastApplied
}

// NewTranslator returns a translator with no prior command recorded.
func NewTranslator() *Translator {
	return &Translator{}
}

// Translate inspects the snapshot and returns the command to send, or
// (Command{}, false) if the new command would be indistinguishable from
// the last one applied.
func (t *Translator) Translate(cfg domain.SimulationConfig, snap domain.SnapshotPayload) (Command, bool) {
	mode := inferredMode(snap)

	var cmd Command
	switch mode {
	case domain.ModeCharge:
		target := cfg.MaxChargeSocPercent
		if target <= 0 {
			target = 100
		}
		cmd = Command{Kind: KindCharge, TargetPercent: int(math.Round(target))}
	case domain.ModeHold:
		target := holdTarget(cfg, snap, t.last)
		cmd = Command{Kind: KindHold, TargetPercent: int(math.Round(target))}
	default:
		floor := cfg.FloorSocPercent
		if floor <= 0 {
			floor = derivedAutoFloor(snap)
		}
		cmd = Command{Kind: KindAuto, SocMinPercent: int(math.Round(floor))}
	}

	if t.last.set && t.last.Kind == kindFor(cmd) && withinOnePercent(t.last.TargetPercent, targetFor(cmd)) {
		return Command{}, false
	}

	t.last = LastApplied{Kind: kindFor(cmd), TargetPercent: targetFor(cmd), set: true}
	return cmd, true
}

func kindFor(c Command) Kind { return c.Kind }

func targetFor(c Command) int {
	if c.Kind == KindAuto {
		return c.SocMinPercent
	}
	return c.TargetPercent
}

func withinOnePercent(a, b int) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= 1
}

// inferredMode prefers the snapshot's reported mode, falling back to
// comparing next_step_soc_percent against the observed SoC when the
// metadata is absent.
func inferredMode(snap domain.SnapshotPayload) domain.Mode {
	if snap.CurrentMode != "" {
		return snap.CurrentMode
	}
	if snap.CurrentSocPercent == nil {
		return domain.ModeAuto
	}
	delta := snap.NextStepSocPercent - *snap.CurrentSocPercent
	switch {
	case delta > 0.5:
		return domain.ModeCharge
	case math.Abs(delta) <= 0.5:
		return domain.ModeHold
	default:
		return domain.ModeAuto
	}
}

// holdTarget targets the observed SoC, clamped to the configured band; it
// falls back to the last-applied target, then the charge ceiling, when no
// observed SoC is available.
func holdTarget(cfg domain.SimulationConfig, snap domain.SnapshotPayload, last LastApplied) float64 {
	ceiling := cfg.MaxChargeSocPercent
	if ceiling <= 0 {
		ceiling = 100
	}

	var target float64
	switch {
	case snap.CurrentSocPercent != nil:
		target = *snap.CurrentSocPercent
	case last.set:
		return clamp(float64(last.TargetPercent), cfg.FloorSocPercent, ceiling)
	default:
		return ceiling
	}
	return clamp(target, cfg.FloorSocPercent, ceiling)
}

// derivedAutoFloor falls back to next_step_soc_percent, then a 5%
// default, when no floor is configured.
func derivedAutoFloor(snap domain.SnapshotPayload) float64 {
	if snap.NextStepSocPercent > 0 {
		return snap.NextStepSocPercent
	}
	return 5
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
