package scheduler

import (
	"testing"
	"time"

	"github.com/fennerhome/batteryctl/domain"
)

func hourlySlot(t *testing.T, start time.Time, eur float64, solarKwh float64) Slot {
	t.Helper()
	ts, err := domain.NewTimeSlot(start, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("NewTimeSlot: %v", err)
	}
	return Slot{TimeSlot: ts, Price: domain.EnergyPrice{EurPerKwh: eur}, SolarEnergyKwh: solarKwh}
}

func baseConfig() domain.SimulationConfig {
	return domain.SimulationConfig{
		CapacityKwh:         10,
		MaxChargePowerW:     3000,
		MaxDischargePowerW:  3000,
		FloorSocPercent:     10,
		MaxChargeSocPercent: 100,
		HouseLoadW:          500,
		AllowGridCharge:     true,
	}
}

func TestSchedule_RejectsEmptyForecast(t *testing.T) {
	_, err := Schedule(baseConfig(), 50, nil, time.Now())
	if err == nil {
		t.Fatal("expected an error for an empty slot list")
	}
}

func TestSchedule_RejectsInvalidConfig(t *testing.T) {
	cfg := baseConfig()
	cfg.CapacityKwh = 0
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	slots := []Slot{hourlySlot(t, start, 0.20, 0)}
	_, err := Schedule(cfg, 50, slots, time.Now())
	if err == nil {
		t.Fatal("expected an error for a non-positive capacity")
	}
}

func TestSchedule_ChargesDuringCheapSlotAheadOfExpensiveOne(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	slots := []Slot{
		hourlySlot(t, start, 0.05, 0),
		hourlySlot(t, start.Add(time.Hour), 0.40, 0),
	}

	out, err := Schedule(baseConfig(), 10, slots, start)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(out.OracleEntries) != 2 {
		t.Fatalf("len(OracleEntries) = %d, want 2", len(out.OracleEntries))
	}
	if out.OracleEntries[0].Strategy != domain.StrategyCharge {
		t.Errorf("first slot strategy = %v, want charge (cheap slot ahead of an expensive one)", out.OracleEntries[0].Strategy)
	}
	if out.ProjectedCostEur >= out.BaselineCostEur {
		t.Errorf("ProjectedCostEur = %v, want strictly less than BaselineCostEur = %v", out.ProjectedCostEur, out.BaselineCostEur)
	}
}

func TestSchedule_HoldsWhenGridChargeDisallowed(t *testing.T) {
	cfg := baseConfig()
	cfg.AllowGridCharge = false
	cfg.MaxChargePowerW = 0

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	slots := []Slot{
		hourlySlot(t, start, 0.05, 0),
		hourlySlot(t, start.Add(time.Hour), 0.40, 0),
	}

	out, err := Schedule(cfg, 50, slots, start)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	for _, e := range out.OracleEntries {
		if e.Strategy == domain.StrategyCharge {
			t.Errorf("entry %+v has charge strategy despite MaxChargePowerW=0", e)
		}
	}
}

func TestSchedule_NeverDropsBelowFloor(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	slots := make([]Slot, 0, 6)
	for i := 0; i < 6; i++ {
		slots = append(slots, hourlySlot(t, start.Add(time.Duration(i)*time.Hour), 0.30, 0))
	}

	cfg := baseConfig()
	cfg.FloorSocPercent = 20

	out, err := Schedule(cfg, 20, slots, start)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	for _, e := range out.OracleEntries {
		if e.EndSocPercent < cfg.FloorSocPercent-0.01 {
			t.Errorf("EndSocPercent = %v, want >= floor %v", e.EndSocPercent, cfg.FloorSocPercent)
		}
	}
}

func TestSlotsFromEras_SkipsErasWithoutACostSource(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ts, err := domain.NewTimeSlot(start, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("NewTimeSlot: %v", err)
	}
	era := domain.ForecastEra{Slot: ts, EraID: "no-cost"}

	slots := SlotsFromEras([]domain.ForecastEra{era})
	if len(slots) != 0 {
		t.Fatalf("len(slots) = %d, want 0 for an era with no cost source", len(slots))
	}
}
