// Package scheduler implements the dynamic-program-based optimal charging
// scheduler: a backward cost-to-go pass over a discretized SoC grid
// followed by a forward rollout that reconstructs the cheapest feasible
// trajectory and annotates it with per-slot commands.
package scheduler

import (
	"fmt"
	"math"
	"time"

	"github.com/fennerhome/batteryctl/domain"
	"github.com/fennerhome/batteryctl/physics"
)

// socSteps discretizes the SoC range into N equal steps (1% each).
const socSteps = 100

const percentStep = 100.0 / socSteps

// epsCharge and epsHold are the grid-energy/SoC-delta snap thresholds used
// to keep reported grid power and the charge/hold/auto annotation stable.
const (
	epsCharge = 0.05 // kWh
	epsHold   = 0.02 // kWh
)

// Slot is one priced, solar-annotated interval the scheduler plans over.
type Slot struct {
	TimeSlot       domain.TimeSlot
	Price          domain.EnergyPrice
	SolarEnergyKwh float64
	EraID          string
}

// SlotsFromEras builds scheduler slots from assembled forecast eras,
// taking each era's primary cost source and summed solar energy. Eras
// without a cost source are skipped; they carry nothing the DP can plan
// against.
func SlotsFromEras(eras []domain.ForecastEra) []Slot {
	slots := make([]Slot, 0, len(eras))
	for _, era := range eras {
		cost, ok := era.PrimaryCost()
		if !ok {
			continue
		}
		slots = append(slots, Slot{
			TimeSlot:       era.Slot,
			Price:          cost.Price,
			SolarEnergyKwh: era.TotalSolarKwh(),
			EraID:          era.EraID,
		})
	}
	return slots
}

// Output is the scheduler's projection plus the reconstructed trajectory.
type Output struct {
	InitialSocPercent     float64
	NextStepSocPercent    float64
	RecommendedSocPercent float64

	ProjectedCostEur    float64
	BaselineCostEur     float64
	ProjectedSavingsEur float64
	ProjectedGridPowerW float64

	AveragePriceEurPerKwh float64
	ForecastHours         float64
	ForecastSamples       int

	OracleEntries []domain.OracleEntry
	Timestamp     time.Time
}

// Schedule runs the backward/forward DP. liveSocPercent is the current
// battery SoC in [0,100]; callers resolve a nil live reading to the last
// persisted snapshot before calling in.
func Schedule(cfg domain.SimulationConfig, liveSocPercent float64, slots []Slot, timestamp time.Time) (Output, error) {
	if err := cfg.Validate(); err != nil {
		return Output{}, fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	if len(slots) == 0 {
		return Output{}, domain.ErrEmptyForecast
	}

	horizon := len(slots)
	derived := make([]physics.Derived, horizon)
	totalHours := 0.0
	for h, s := range slots {
		in := physics.Inputs{
			Duration:       s.TimeSlot.Duration(),
			Price:          s.Price,
			SolarEnergyKwh: s.SolarEnergyKwh,
			Config:         cfg,
		}
		derived[h] = physics.Derive(in)
		totalHours += s.TimeSlot.Duration().Hours()
	}
	if totalHours <= 0 {
		return Output{}, fmt.Errorf("%w: horizon duration must be > 0", domain.ErrInvalidConfig)
	}

	energyPerStepKwh := cfg.CapacityKwh / socSteps
	minStep := int(math.Ceil(cfg.FloorSocPercent/percentStep - physics.Epsilon))
	maxStep := int(math.Round(cfg.MaxChargeSocPercent / percentStep))
	if minStep > maxStep {
		minStep = maxStep
	}

	avgPriceTotal := 0.0
	for h, s := range slots {
		avgPriceTotal += derived[h].PriceTotal.EurPerKwh * s.TimeSlot.Duration().Hours()
	}
	avgPriceTotal /= totalHours

	// J[h][i]: minimum cumulative cost from slot h onward starting at SoC
	// index i. choice[h][i]: the Δ (signed step count) chosen at that cell.
	J := make([][]float64, horizon+1)
	choice := make([][]int, horizon)
	for h := range J {
		J[h] = make([]float64, socSteps+1)
	}
	for h := range choice {
		choice[h] = make([]int, socSteps+1)
	}

	for i := 0; i <= socSteps; i++ {
		J[horizon][i] = -avgPriceTotal * float64(i) * energyPerStepKwh
	}

	for h := horizon - 1; h >= 0; h-- {
		d := derived[h]
		for i := 0; i <= socSteps; i++ {
			upLimit := socSteps - i
			if chargeCap := int(math.Floor((d.GridChargeLimitKwh+d.SolarChargeLimitKwh)/energyPerStepKwh + physics.Epsilon)); chargeCap < upLimit {
				upLimit = chargeCap
			}
			if upLimit < 0 {
				upLimit = 0
			}

			downLimit := i - minStep
			if !math.IsInf(d.DischargeLimitKwh, 1) {
				if dischargeCap := int(math.Floor(d.DischargeLimitKwh/energyPerStepKwh + physics.Epsilon)); dischargeCap < downLimit {
					downLimit = dischargeCap
				}
			}
			if downLimit < 0 {
				downLimit = 0
			}

			bestCost := math.Inf(1)
			bestDelta := 0
			found := false

			for delta := -downLimit; delta <= upLimit; delta++ {
				j := i + delta
				if j < 0 || j > socSteps || j < minStep {
					continue
				}
				deltaE := float64(delta) * energyPerStepKwh
				gridEnergy := d.LoadAfterDirectKwh + deltaE - d.AvailableSolarKwh

				if gridEnergy < 0 {
					required := math.Min(d.AvailableSolarKwh-d.LoadAfterDirectKwh, d.SolarChargeLimitKwh)
					required = math.Min(required, float64(socSteps-i)*energyPerStepKwh)
					if required > 0 && deltaE+physics.Epsilon < required {
						continue
					}
				}

				if !cfg.AllowBatteryExport {
					if gridEnergy < math.Min(d.BaselineGridEnergyKwh, 0)-physics.Epsilon {
						continue
					}
				}

				if deltaE > 0 {
					additionalGrid := math.Max(0, math.Max(0, gridEnergy)-d.BaselineGridImportKwh)
					if additionalGrid > d.GridChargeLimitKwh+physics.Epsilon {
						continue
					}
					pvCapacity := math.Min(deltaE, math.Min(d.SolarChargeLimitKwh, d.AvailableSolarKwh))
					if additionalGrid > math.Max(0, deltaE-pvCapacity)+physics.Epsilon {
						continue
					}
					if j > maxStep && additionalGrid > physics.Epsilon {
						continue
					}
					solarCharging := math.Max(0, deltaE-additionalGrid)
					if solarCharging > d.SolarChargeLimitKwh+physics.Epsilon {
						continue
					}
				}

				cost := d.SlotCost(gridEnergy) + J[h+1][j]
				if cost < bestCost {
					bestCost = cost
					bestDelta = delta
					found = true
				}
			}

			if !found {
				bestCost = math.Inf(1)
			}
			J[h][i] = bestCost
			choice[h][i] = bestDelta
		}
	}

	current := clampStep(int(math.Round(liveSocPercent/percentStep)), 0, socSteps)
	initialSocPercent := float64(current) * percentStep

	entries := make([]domain.OracleEntry, 0, horizon)
	costTotal := 0.0
	baselineCost := 0.0
	gridChargeTotal := 0.0

	for h := 0; h < horizon; h++ {
		d := derived[h]
		delta := choice[h][current]
		j := current + delta
		deltaE := float64(delta) * energyPerStepKwh
		gridEnergy := d.LoadAfterDirectKwh + deltaE - d.AvailableSolarKwh

		if gridEnergy < 0 {
			unusedSolarHeadroom := math.Max(0, d.SolarChargeLimitKwh-deltaE)
			addKwh := math.Min(-gridEnergy, unusedSolarHeadroom)
			if addKwh > 0 {
				addSteps := int(math.Ceil(addKwh/energyPerStepKwh - physics.Epsilon))
				if maxSteps := socSteps - j; addSteps > maxSteps {
					addSteps = maxSteps
				}
				if addSteps > 0 {
					j += addSteps
					deltaE += float64(addSteps) * energyPerStepKwh
					gridEnergy = d.LoadAfterDirectKwh + deltaE - d.AvailableSolarKwh
				}
			}
		}
		if j < minStep {
			j = minStep
			deltaE = float64(j-current) * energyPerStepKwh
			gridEnergy = d.LoadAfterDirectKwh + deltaE - d.AvailableSolarKwh
		}

		additionalGrid := math.Max(0, math.Max(0, gridEnergy)-d.BaselineGridImportKwh)
		gridChargeTotal += additionalGrid

		if math.Abs(gridEnergy) < epsCharge {
			gridEnergy = 0
		}

		var strategy domain.Strategy
		switch {
		case additionalGrid > epsCharge:
			strategy = domain.StrategyCharge
		case math.Abs(deltaE) <= epsHold && additionalGrid <= epsCharge:
			strategy = domain.StrategyHold
		default:
			strategy = domain.StrategyAuto
		}

		startSoc := float64(current) * percentStep
		endSoc := float64(j) * percentStep

		entries = append(entries, domain.OracleEntry{
			EraID:            slots[h].EraID,
			StartSocPercent:  startSoc,
			EndSocPercent:    endSoc,
			TargetSocPercent: endSoc,
			GridEnergyWh:     gridEnergy * 1000,
			Strategy:         strategy,
		})

		costTotal += d.SlotCost(gridEnergy)
		baselineCost += d.SlotCost(d.BaselineGridEnergyKwh)

		current = j
	}

	finalStep := current
	inventoryAdjustment := avgPriceTotal * float64(finalStep) * energyPerStepKwh
	costTotal -= inventoryAdjustment
	baselineCost -= inventoryAdjustment

	recommended := entries[len(entries)-1].EndSocPercent
	if gridChargeTotal > epsCharge {
		recommended = cfg.MaxChargeSocPercent
	}
	recommended = clampPercent(recommended, cfg.FloorSocPercent, cfg.MaxChargeSocPercent)

	nextStep := entries[0].EndSocPercent
	if nextStep < cfg.FloorSocPercent {
		nextStep = cfg.FloorSocPercent
	}

	gridEnergyTotalKwh := 0.0
	for _, e := range entries {
		gridEnergyTotalKwh += e.GridEnergyWh / 1000
	}

	return Output{
		InitialSocPercent:     initialSocPercent,
		NextStepSocPercent:    nextStep,
		RecommendedSocPercent: recommended,
		ProjectedCostEur:      costTotal,
		BaselineCostEur:       baselineCost,
		ProjectedSavingsEur:   baselineCost - costTotal,
		ProjectedGridPowerW:   gridEnergyTotalKwh * 1000 / totalHours,
		AveragePriceEurPerKwh: avgPriceTotal,
		ForecastHours:         totalHours,
		ForecastSamples:       horizon,
		OracleEntries:         entries,
		Timestamp:             timestamp,
	}, nil
}

func clampStep(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampPercent(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
