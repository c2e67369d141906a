package domain

import "errors"

// SimulationConfig holds the static policy inputs shared by the scheduler
// and the backtester. It is immutable for the process
// lifetime once built by the config loader.
type SimulationConfig struct {
	CapacityKwh        float64
	MaxChargePowerW    float64 // grid-charge cap; 0 disallows grid charging
	MaxChargeSolarW    float64 // PV-charge cap; <=0 means "unbounded by hardware"
	MaxDischargePowerW float64 // <=0 means unlimited
	FloorSocPercent    float64
	MaxChargeSocPercent float64

	GridFeeEurPerKwh     float64
	FeedInTariffEurPerKwh float64

	HouseLoadW        float64
	DirectUseRatio    float64 // r in [0,1]
	AllowBatteryExport bool
	AllowGridCharge    bool // set by the config loader when max_charge_power_w > 0
}

var (
	// ErrInvalidConfig signals a fatal configuration error.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrEmptyForecast signals the scheduler was given no slots to plan over.
	ErrEmptyForecast = errors.New("empty forecast")
)

// Validate enforces the invariants the scheduler and backtester both rely
// on: capacity must be positive and the floor/ceiling band must be
// well-formed.
func (c SimulationConfig) Validate() error {
	if c.CapacityKwh <= 0 {
		return errors.New("capacity_kwh must be > 0")
	}
	if c.FloorSocPercent < 0 || c.FloorSocPercent > 100 {
		return errors.New("floor_soc_percent must be in [0,100]")
	}
	if c.MaxChargeSocPercent < 0 || c.MaxChargeSocPercent > 100 {
		return errors.New("max_charge_soc_percent must be in [0,100]")
	}
	if c.FloorSocPercent > c.MaxChargeSocPercent {
		return errors.New("floor_soc_percent must be <= max_charge_soc_percent")
	}
	if c.DirectUseRatio < 0 || c.DirectUseRatio > 1 {
		return errors.New("direct_use_ratio must be in [0,1]")
	}
	return nil
}

// EffectiveFeedInTariff floors the feed-in tariff at 0.
func (c SimulationConfig) EffectiveFeedInTariff() float64 {
	if c.FeedInTariffEurPerKwh < 0 {
		return 0
	}
	return c.FeedInTariffEurPerKwh
}
