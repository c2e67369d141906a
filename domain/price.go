package domain

// EnergyPrice is carried canonically in EUR/kWh. Upstream providers quote
// ct/kWh or EUR/MWh; adapters normalize to this type at the boundary.
type EnergyPrice struct {
	EurPerKwh float64
}

// NewEnergyPriceFromCents builds a price from ct/kWh.
func NewEnergyPriceFromCents(ctPerKwh float64) EnergyPrice {
	return EnergyPrice{EurPerKwh: ctPerKwh / 100.0}
}

// CentsPerKwh returns the price in ct/kWh.
func (p EnergyPrice) CentsPerKwh() float64 {
	return p.EurPerKwh * 100.0
}

// AddFixedFee returns a new price with a flat EUR/kWh fee added, e.g. the
// network tariff added to an import price.
func (p EnergyPrice) AddFixedFee(feeEurPerKwh float64) EnergyPrice {
	return EnergyPrice{EurPerKwh: p.EurPerKwh + feeEurPerKwh}
}

// CostFor returns the EUR cost of importing/exporting energyKwh at this
// price. Negative energyKwh (export) yields a negative cost, i.e. revenue.
func (p EnergyPrice) CostFor(energyKwh float64) float64 {
	return p.EurPerKwh * energyKwh
}
