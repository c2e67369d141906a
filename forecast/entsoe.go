// Package forecast adapts the external price, live-state and weather
// collaborators into the domain types the normalize and scheduler
// packages consume.
package forecast

import (
	"context"
	"fmt"
	"time"

	"github.com/fennerhome/batteryctl/domain"
	"github.com/fennerhome/batteryctl/entsoe"
)

// EntsoeConfig configures the day-ahead market adapter.
type EntsoeConfig struct {
	SecurityToken string
	URLFormat     string
	Location      *time.Location
	Provider      string // name recorded on every domain.CostPayload
	Priority      int
}

// EntsoeSource fetches day-ahead prices from an ENTSO-E style API,
// merging in tomorrow's data once it's published (after 13:00 local, per
// entsoe.DownloadPublicationMarketData).
type EntsoeSource struct {
	cfg EntsoeConfig
}

func NewEntsoeSource(cfg EntsoeConfig) *EntsoeSource {
	return &EntsoeSource{cfg: cfg}
}

// FetchPriceSlots downloads the latest publication document and expands
// every TimeSeries/Period into one domain.PriceSlot per point, converting
// the ambiguous EUR/MWh unit ENTSO-E quotes into the canonical EUR/kWh.
// The grid fee is applied once, downstream in physics, not here.
func (s *EntsoeSource) FetchPriceSlots(ctx context.Context) ([]domain.PriceSlot, error) {
	loc := s.cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	doc, err := entsoe.DownloadPublicationMarketData(ctx, s.cfg.SecurityToken, s.cfg.URLFormat, loc)
	if err != nil {
		return nil, fmt.Errorf("download day-ahead market document: %w", err)
	}

	var slots []domain.PriceSlot
	for _, ts := range doc.TimeSeries {
		for _, point := range ts.Period.Points {
			start, end, valid := ts.Period.GetTimeRangeForPosition(point.Position)
			if !valid {
				continue
			}
			slot, err := domain.NewTimeSlot(start, end)
			if err != nil {
				continue
			}
			price := domain.EnergyPrice{EurPerKwh: point.PriceAmount / 1000.0}
			slots = append(slots, domain.PriceSlot{Slot: slot, Price: price})
		}
	}
	return slots, nil
}

// Provider returns the name FetchPriceSlots' sources should be tagged
// with, for normalize.Builder.AddCostSlots.
func (s *EntsoeSource) Provider() string { return s.cfg.Provider }

// Priority returns the precedence normalize should attach to this
// provider's cost sources (lower wins).
func (s *EntsoeSource) Priority() int { return s.cfg.Priority }
