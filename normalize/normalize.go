// Package normalize assembles heterogeneous ForecastSource readings
// (day-ahead market prices, solar estimates) onto a common grid of
// domain.ForecastEra, the typed replacement for an untyped per-hour
// property bag.
package normalize

import (
	"fmt"
	"sort"
	"time"

	"github.com/fennerhome/batteryctl/domain"
)

// Builder accumulates price and solar slots keyed by their start time and
// produces a sorted, deduplicated list of ForecastEras.
type Builder struct {
	eras map[time.Time]*domain.ForecastEra
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{eras: make(map[time.Time]*domain.ForecastEra)}
}

func (b *Builder) eraFor(slot domain.TimeSlot) *domain.ForecastEra {
	era, ok := b.eras[slot.Start]
	if !ok {
		era = &domain.ForecastEra{
			EraID: fmt.Sprintf("%d", slot.Start.Unix()),
			Slot:  slot,
		}
		b.eras[slot.Start] = era
	}
	return era
}

// AddCostSlots merges a provider's priced tariff slots into the era with
// the same start time, tagging every source with provider and priority.
// Slots that merely overlap an era without sharing its start get an era
// of their own.
func (b *Builder) AddCostSlots(provider string, priority int, slots []domain.PriceSlot) {
	for _, slot := range slots {
		era := b.eraFor(slot.Slot)
		if era.CostSourceCount() >= 2 {
			continue // at most two cost sources per era
		}
		era.Sources = append(era.Sources, domain.NewCostSource(domain.CostPayload{
			Provider: provider,
			Priority: priority,
			Price:    slot.Price,
		}))
	}
}

// AddSolarSlots merges a provider's solar estimates into the era with the
// same start time. At most one solar source per provider per era is kept; a
// second reading from the same provider for the same era replaces the
// first only if it carries a lower (i.e. more conservative) estimate,
// matching the "deduplicate by lower price/estimate" rule.
func (b *Builder) AddSolarSlots(provider string, isEstimate bool, slots []domain.SolarSlot) {
	for _, slot := range slots {
		era := b.eraFor(slot.Slot)
		if era.SolarSourceCountByProvider(provider) > 0 {
			b.replaceLowerSolarEstimate(era, provider, slot.EnergyKwh)
			continue
		}
		era.Sources = append(era.Sources, domain.NewSolarSource(domain.SolarPayload{
			Provider:   provider,
			EnergyKwh:  slot.EnergyKwh,
			IsEstimate: isEstimate,
		}))
	}
}

func (b *Builder) replaceLowerSolarEstimate(era *domain.ForecastEra, provider string, energyKwh float64) {
	for i := range era.Sources {
		s := era.Sources[i]
		if s.Kind != domain.SourceSolar || s.Solar == nil || s.Solar.Provider != provider {
			continue
		}
		if energyKwh < s.Solar.EnergyKwh {
			updated := *s.Solar
			updated.EnergyKwh = energyKwh
			era.Sources[i].Solar = &updated
		}
		return
	}
}

// Build returns the accumulated eras sorted by start time. Eras with no
// cost source at all are dropped: the scheduler has no price to plan
// against in that slot.
func (b *Builder) Build() []domain.ForecastEra {
	eras := make([]domain.ForecastEra, 0, len(b.eras))
	for _, era := range b.eras {
		if era.CostSourceCount() == 0 {
			continue
		}
		eras = append(eras, *era)
	}
	sort.Slice(eras, func(i, j int) bool { return eras[i].Slot.Start.Before(eras[j].Slot.Start) })
	return eras
}

// TrimToHorizon drops or truncates eras so the assembled forecast only
// covers [now, now+horizon). An era already in progress is trimmed to
// start at now, and any solar energy attached to it is pro-rated by the
// remaining fraction of the slot.
func TrimToHorizon(eras []domain.ForecastEra, now time.Time, horizon time.Duration) []domain.ForecastEra {
	end := now.Add(horizon)
	out := make([]domain.ForecastEra, 0, len(eras))
	for _, era := range eras {
		if !era.Slot.End.After(now) || !era.Slot.Start.Before(end) {
			continue
		}
		originalStart := era.Slot.Start
		trimmed := era.Slot.TrimStart(now)
		if trimmed.End.After(end) {
			trimmed.End = end
		}
		if !trimmed.End.After(trimmed.Start) {
			continue
		}

		fraction := trimmed.FractionRemaining(originalStart)
		era.Slot = trimmed
		era.Sources = proRateSolar(era.Sources, fraction)
		out = append(out, era)
	}
	return out
}

func proRateSolar(sources []domain.ForecastSource, fraction float64) []domain.ForecastSource {
	if fraction >= 1 {
		return sources
	}
	out := make([]domain.ForecastSource, len(sources))
	for i, s := range sources {
		if s.Kind == domain.SourceSolar && s.Solar != nil {
			scaled := *s.Solar
			scaled.EnergyKwh *= fraction
			s.Solar = &scaled
		}
		out[i] = s
	}
	return out
}
