package forecast

import (
	"testing"
	"time"

	"github.com/fennerhome/batteryctl/domain"
	"github.com/fennerhome/batteryctl/meteo"
)

func TestSolarSource_NightSlotIsZero(t *testing.T) {
	cache := NewWeatherCache(time.Hour)
	src := NewSolarSource(SolarConfig{Latitude: 52.5, Longitude: 13.4, PeakPowerKw: 5}, cache)

	midnight := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	slot, _ := domain.NewTimeSlot(midnight, midnight.Add(time.Hour))

	energy := src.clearSkyEnergyKwh(slot)
	if energy != 0 {
		t.Fatalf("clearSkyEnergyKwh at midnight = %v, want 0", energy)
	}
}

func TestSolarSource_NoonSlotIsPositive(t *testing.T) {
	cache := NewWeatherCache(time.Hour)
	src := NewSolarSource(SolarConfig{Latitude: 52.5, Longitude: 13.4, PeakPowerKw: 5}, cache)

	noon := time.Date(2026, 6, 21, 12, 0, 0, 0, time.UTC)
	slot, _ := domain.NewTimeSlot(noon, noon.Add(time.Hour))

	energy := src.clearSkyEnergyKwh(slot)
	if energy <= 0 {
		t.Fatalf("clearSkyEnergyKwh at summer noon = %v, want > 0", energy)
	}
	if energy > src.cfg.PeakPowerKw {
		t.Fatalf("clearSkyEnergyKwh = %v, want <= peak power %v for a one-hour slot", energy, src.cfg.PeakPowerKw)
	}
}

func TestWeatherCache_ExpiresAfterTTL(t *testing.T) {
	cache := NewWeatherCache(-time.Second) // already expired
	cache.Set(&meteo.METJSONForecast{})
	if _, ok := cache.Get(); ok {
		t.Fatal("expected cache miss once TTL has elapsed")
	}
}
