package forecast

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sixdouglas/suncalc"

	"github.com/fennerhome/batteryctl/domain"
	"github.com/fennerhome/batteryctl/meteo"
)

// WeatherCache is a mutex-guarded fetch-or-reuse cache for the MET Norway
// forecast, so the control loop's solar step doesn't re-fetch on every
// tick.
type WeatherCache struct {
	mu       sync.RWMutex
	forecast *meteo.METJSONForecast
	fetchedAt time.Time
	ttl      time.Duration
}

// NewWeatherCache builds a cache with the given TTL.
func NewWeatherCache(ttl time.Duration) *WeatherCache {
	return &WeatherCache{ttl: ttl}
}

// Get returns the cached forecast if it's still within TTL.
func (w *WeatherCache) Get() (*meteo.METJSONForecast, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.forecast == nil || time.Since(w.fetchedAt) > w.ttl {
		return nil, false
	}
	return w.forecast, true
}

// Set stores a freshly fetched forecast.
func (w *WeatherCache) Set(forecast *meteo.METJSONForecast) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.forecast = forecast
	w.fetchedAt = time.Now()
}

// SolarConfig configures the solar forecast adapter.
type SolarConfig struct {
	Latitude, Longitude float64
	UserAgent           string
	PeakPowerKw         float64 // nameplate PV array capacity
	Provider            string
}

// SolarSource produces per-slot PV energy estimates from MET Norway cloud
// cover plus a clear-sky solar-altitude model.
type SolarSource struct {
	cfg    SolarConfig
	client *meteo.Client
	cache  *WeatherCache
}

// NewSolarSource builds a solar source backed by a shared weather cache.
func NewSolarSource(cfg SolarConfig, cache *WeatherCache) *SolarSource {
	return &SolarSource{
		cfg:    cfg,
		client: meteo.NewClient(cfg.UserAgent),
		cache:  cache,
	}
}

// Refresh fetches a new forecast if the cache is stale.
func (s *SolarSource) Refresh() error {
	if _, ok := s.cache.Get(); ok {
		return nil
	}
	params := meteo.QueryParams{Location: meteo.Location{Latitude: s.cfg.Latitude, Longitude: s.cfg.Longitude}}
	forecast, err := s.client.GetCompact(params)
	if err != nil {
		return fmt.Errorf("fetch weather forecast: %w", err)
	}
	s.cache.Set(forecast)
	return nil
}

// SolarSlots estimates PV energy for every half-open slot in slots,
// combining cloud cover from the cached forecast with a clear-sky
// solar-altitude model from suncalc. Slots entirely below the horizon
// return zero energy.
func (s *SolarSource) SolarSlots(slots []domain.TimeSlot) ([]domain.SolarSlot, error) {
	forecast, ok := s.cache.Get()
	if !ok {
		if err := s.Refresh(); err != nil {
			return nil, err
		}
		forecast, _ = s.cache.Get()
	}

	out := make([]domain.SolarSlot, 0, len(slots))
	for _, slot := range slots {
		mid := slot.Start.Add(slot.End.Sub(slot.Start) / 2)

		cloudFraction := 0.5 // default assumption when no forecast data covers this slot
		if forecast != nil {
			if step := forecast.GetWeatherAtTime(mid); step != nil {
				if cc := step.GetCloudCoverage(); cc != nil {
					cloudFraction = *cc / 100.0
				}
			}
		}

		energy := s.clearSkyEnergyKwh(slot) * (1 - 0.90*cloudFraction)
		if energy < 0 {
			energy = 0
		}
		out = append(out, domain.SolarSlot{Slot: slot, EnergyKwh: energy})
	}
	return out, nil
}

// clearSkyEnergyKwh estimates the unclouded PV yield for a slot from the
// sun's altitude at the slot midpoint, the way
// scheduler.estimateSolarPowerFromWeather derives expected power from
// cloud cover and sun position.
func (s *SolarSource) clearSkyEnergyKwh(slot domain.TimeSlot) float64 {
	mid := slot.Start.Add(slot.End.Sub(slot.Start) / 2)
	pos := suncalc.GetPosition(mid, s.cfg.Latitude, s.cfg.Longitude)
	if pos.Altitude <= 0 {
		return 0
	}
	irradianceFactor := math.Sin(pos.Altitude)
	hours := slot.Duration().Hours()
	return s.cfg.PeakPowerKw * irradianceFactor * hours
}
