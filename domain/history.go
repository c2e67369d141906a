package domain

import "time"

// HistoryPoint is one observed interval boundary, appended every control
// tick. The log is append-only.
type HistoryPoint struct {
	Timestamp time.Time

	BatterySocPercent *float64
	PriceEurPerKwh    *float64
	PriceCentsPerKwh  *float64

	GridPowerW  *float64
	SolarPowerW *float64
	SolarEnergyWh *float64
	HomePowerW  *float64

	BacktestedSavingsEur *float64
}
