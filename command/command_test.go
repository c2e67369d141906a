package command

import (
	"testing"

	"github.com/fennerhome/batteryctl/domain"
)

func cfg() domain.SimulationConfig {
	return domain.SimulationConfig{
		CapacityKwh:         10,
		FloorSocPercent:     10,
		MaxChargeSocPercent: 90,
	}
}

func pct(v float64) *float64 { return &v }

func TestTranslate_ChargeMode(t *testing.T) {
	tr := NewTranslator()
	snap := domain.SnapshotPayload{CurrentMode: domain.ModeCharge, CurrentSocPercent: pct(40)}
	cmd, ok := tr.Translate(cfg(), snap)
	if !ok {
		t.Fatal("expected a command on first call")
	}
	if cmd.Kind != KindCharge || cmd.TargetPercent != 90 {
		t.Fatalf("cmd = %+v, want Charge to 90", cmd)
	}
}

func TestTranslate_DeduplicatesHoldWithinOnePercent(t *testing.T) {
	tr := NewTranslator()
	snap := domain.SnapshotPayload{CurrentMode: domain.ModeHold, CurrentSocPercent: pct(55)}
	if _, ok := tr.Translate(cfg(), snap); !ok {
		t.Fatal("expected a command on first call")
	}

	snap2 := domain.SnapshotPayload{CurrentMode: domain.ModeHold, CurrentSocPercent: pct(55.4)}
	if _, ok := tr.Translate(cfg(), snap2); ok {
		t.Fatal("expected the near-identical hold to be suppressed")
	}
}

func TestTranslate_AutoUsesFloor(t *testing.T) {
	tr := NewTranslator()
	snap := domain.SnapshotPayload{CurrentMode: domain.ModeAuto}
	cmd, ok := tr.Translate(cfg(), snap)
	if !ok {
		t.Fatal("expected a command")
	}
	if cmd.Kind != KindAuto || cmd.SocMinPercent != 10 {
		t.Fatalf("cmd = %+v, want Auto floor 10", cmd)
	}
}

func TestTranslate_InferredModeFromDelta(t *testing.T) {
	tr := NewTranslator()
	snap := domain.SnapshotPayload{CurrentSocPercent: pct(40), NextStepSocPercent: 41}
	cmd, ok := tr.Translate(cfg(), snap)
	if !ok {
		t.Fatal("expected a command")
	}
	if cmd.Kind != KindCharge {
		t.Fatalf("Kind = %v, want Charge for +1%% delta", cmd.Kind)
	}
}
