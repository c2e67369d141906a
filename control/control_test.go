package control

import (
	"context"
	"log"
	"testing"
	"time"

	"github.com/fennerhome/batteryctl/command"
	"github.com/fennerhome/batteryctl/domain"
	"github.com/fennerhome/batteryctl/forecast"
)

func TestAlignedDelay_LandsOnIntervalBoundary(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 7, 30, 0, time.UTC)
	interval := 5 * time.Minute

	delay := alignedDelay(now, interval)
	next := now.Add(delay)

	if next.Minute()%5 != 0 || next.Second() != 0 {
		t.Fatalf("next tick = %v, want aligned to a 5-minute boundary", next)
	}
	if delay <= 0 || delay > interval {
		t.Fatalf("delay = %v, want in (0, %v]", delay, interval)
	}
}

type fakeCostSource struct {
	provider string
	priority int
	slots    []domain.PriceSlot
	err      error
}

func (f *fakeCostSource) FetchPriceSlots(ctx context.Context) ([]domain.PriceSlot, error) {
	return f.slots, f.err
}
func (f *fakeCostSource) Provider() string { return f.provider }
func (f *fakeCostSource) Priority() int    { return f.priority }

type fakeSolarSource struct {
	slots []domain.SolarSlot
}

func (f *fakeSolarSource) Refresh() error { return nil }
func (f *fakeSolarSource) SolarSlots(slots []domain.TimeSlot) ([]domain.SolarSlot, error) {
	return f.slots, nil
}

type fakeLiveState struct {
	state forecast.LiveState
}

func (f *fakeLiveState) FetchState(ctx context.Context) (forecast.LiveState, error) {
	return f.state, nil
}

type fakePublisher struct {
	last domain.SnapshotPayload
	got  bool
}

func (f *fakePublisher) Publish(snap domain.SnapshotPayload) {
	f.last = snap
	f.got = true
}

type fakeInverter struct {
	applied []command.Command
}

func (f *fakeInverter) Apply(ctx context.Context, cmd command.Command) error {
	f.applied = append(f.applied, cmd)
	return nil
}

func makeSlots(start time.Time, n int) []domain.PriceSlot {
	slots := make([]domain.PriceSlot, 0, n)
	for i := 0; i < n; i++ {
		s := start.Add(time.Duration(i) * time.Hour)
		e := s.Add(time.Hour)
		slot, _ := domain.NewTimeSlot(s, e)
		price := 0.20
		if i%2 == 0 {
			price = 0.05
		}
		slots = append(slots, domain.PriceSlot{Slot: slot, Price: domain.EnergyPrice{EurPerKwh: price}})
	}
	return slots
}

func TestLoop_RunOnce_ProducesSnapshotAndDispatchesCommand(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	cfg := domain.SimulationConfig{
		CapacityKwh:         10,
		MaxChargePowerW:     3000,
		MaxDischargePowerW:  3000,
		FloorSocPercent:     10,
		MaxChargeSocPercent: 100,
		HouseLoadW:          500,
		AllowGridCharge:     true,
	}

	loop := New(cfg, time.Minute, 24*time.Hour, log.New(discardWriter{}, "", 0))
	loop.CostSources = []CostSource{&fakeCostSource{provider: "entsoe", priority: 0, slots: makeSlots(now, 12)}}
	loop.SolarSources = []SolarSource{&fakeSolarSource{}}
	loop.LiveState = &fakeLiveState{state: forecast.LiveState{BatterySocPercent: 50}}
	pub := &fakePublisher{}
	loop.Publisher = pub
	inv := &fakeInverter{}
	loop.Inverter = inv

	snap := loop.runCycle(context.Background(), now)

	if len(snap.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", snap.Errors)
	}
	if snap.ForecastSamples != 12 {
		t.Fatalf("ForecastSamples = %d, want 12", snap.ForecastSamples)
	}
	if snap.CurrentSocPercent == nil || *snap.CurrentSocPercent != 50 {
		t.Fatalf("CurrentSocPercent = %v, want 50", snap.CurrentSocPercent)
	}

	loop.dispatch(context.Background(), snap)
	if len(inv.applied) != 1 {
		t.Fatalf("len(inv.applied) = %d, want 1", len(inv.applied))
	}
}

func TestLoop_Tick_SkipsOverlappingCycle(t *testing.T) {
	cfg := domain.SimulationConfig{CapacityKwh: 10, MaxChargeSocPercent: 100}
	loop := New(cfg, time.Minute, time.Hour, log.New(discardWriter{}, "", 0))
	loop.cycleInFlight.Store(true)

	pub := &fakePublisher{}
	loop.Publisher = pub
	loop.tick(context.Background())

	if pub.got {
		t.Fatal("expected tick to skip entirely while a cycle is already in flight")
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
