// Package physics implements the pure per-slot physical model that both
// the scheduler and the backtester build on. Every function here is a
// pure mapping from slot duration, price, solar energy and configured
// loads/caps to derived quantities; none of it suspends or mutates
// shared state, since the DP passes that call it must not suspend.
package physics

import (
	"math"

	"github.com/fennerhome/batteryctl/domain"
)

// Epsilon is the numerical tolerance used throughout the DP and the
// physical model for energy comparisons.
const Epsilon = 1e-9

// Inputs bundles everything physics.Derive needs for one slot.
type Inputs struct {
	Duration      domain.Duration
	Price         domain.EnergyPrice
	SolarEnergyKwh float64
	Config        domain.SimulationConfig
}

// Derived holds every derived quantity for a slot, all in
// kWh (energies) or EUR/kWh (prices) unless noted.
type Derived struct {
	LoadEnergyKwh         float64
	DirectUseKwh          float64
	LoadAfterDirectKwh    float64
	AvailableSolarKwh     float64
	BaselineGridEnergyKwh float64
	BaselineGridImportKwh float64
	GridChargeLimitKwh    float64
	SolarChargeLimitKwh   float64
	DischargeLimitKwh     float64 // math.Inf(1) when uncapped
	PriceTotal            domain.EnergyPrice
	FeedInTariff          float64
}

// Derive computes the slot's derived physical quantities.
func Derive(in Inputs) Derived {
	hours := in.Duration.Hours()
	cfg := in.Config

	loadEnergyKwh := cfg.HouseLoadW * hours / 1000.0
	directUse := math.Min(loadEnergyKwh, cfg.DirectUseRatio*in.SolarEnergyKwh)
	loadAfterDirect := loadEnergyKwh - directUse
	availableSolar := math.Max(0, in.SolarEnergyKwh-directUse)
	baselineGridEnergy := loadAfterDirect - availableSolar
	baselineGridImport := math.Max(0, baselineGridEnergy)

	gridChargeLimit := 0.0
	if cfg.AllowGridCharge && cfg.MaxChargePowerW > 0 {
		gridChargeLimit = cfg.MaxChargePowerW * hours / 1000.0
	}

	pvChargeCapKwh := math.Inf(1)
	if cfg.MaxChargeSolarW > 0 {
		pvChargeCapKwh = cfg.MaxChargeSolarW * hours / 1000.0
	}
	solarChargeLimit := math.Min(availableSolar, pvChargeCapKwh)

	dischargeLimit := math.Inf(1)
	if cfg.MaxDischargePowerW > 0 {
		dischargeLimit = cfg.MaxDischargePowerW * hours / 1000.0
	}

	feedIn := cfg.EffectiveFeedInTariff()
	priceTotal := in.Price.AddFixedFee(cfg.GridFeeEurPerKwh)

	return Derived{
		LoadEnergyKwh:         loadEnergyKwh,
		DirectUseKwh:          directUse,
		LoadAfterDirectKwh:    loadAfterDirect,
		AvailableSolarKwh:     availableSolar,
		BaselineGridEnergyKwh: baselineGridEnergy,
		BaselineGridImportKwh: baselineGridImport,
		GridChargeLimitKwh:    gridChargeLimit,
		SolarChargeLimitKwh:   solarChargeLimit,
		DischargeLimitKwh:     dischargeLimit,
		PriceTotal:            priceTotal,
		FeedInTariff:          feedIn,
	}
}

// SlotCost returns the EUR cost of a slot given its realized grid energy
// (kWh, positive = import). Exports earn the feed-in tariff instead of
// paying the import price plus fees.
func (d Derived) SlotCost(gridEnergyKwh float64) float64 {
	if gridEnergyKwh >= 0 {
		return d.PriceTotal.CostFor(gridEnergyKwh)
	}
	return gridEnergyKwh * d.FeedInTariff
}
