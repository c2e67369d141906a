// Package backtest implements the ex-post "smart vs dumb" backtester:
// it replays stored history intervals, keeping a parallel
// simulated "dumb" PV-first baseline SoC alongside the actually-observed
// trajectory, and reports either a scalar savings figure or a full
// smart-vs-dumb time series.
package backtest

import (
	"math"
	"sort"
	"time"

	"github.com/fennerhome/batteryctl/domain"
	"github.com/fennerhome/batteryctl/physics"
)

// Options parameterizes a single backtest run.
type Options struct {
	WindowHours                   float64
	ReferenceTimestamp             time.Time
	ImportPriceFallbackEurPerKwh  float64
	EndValuationPriceEurPerKwh    *float64
}

func (o Options) windowHours() float64 {
	if o.WindowHours > 0 {
		return o.WindowHours
	}
	return 24
}

// SavingsResult is the scalar-mode output.
type SavingsResult struct {
	SavingsEur    float64
	ActualCostEur float64
	DumbCostEur   float64
	IntervalCount int
	WindowStart   time.Time
	WindowEnd     time.Time
}

// SeriesPoint is one interval boundary of the time-series output.
type SeriesPoint struct {
	Timestamp time.Time

	SmartGridPowerW float64
	DumbGridPowerW  float64
	SmartSocPercent float64
	DumbSocPercent  float64

	SmartCostEur float64
	DumbCostEur  float64

	SavingsEur           float64
	CumulativeSavingsEur float64
}

// Series is the time-series-mode output.
type Series struct {
	GeneratedAt time.Time
	WindowStart time.Time
	WindowEnd   time.Time
	Points      []SeriesPoint
}

// record is one processed consecutive-pair interval, in or out of window.
type record struct {
	timestamp time.Time
	deltaHours float64
	price      float64

	actualSocBefore, actualSocAfter float64 // ratio [0,1]
	dumbSocBefore, dumbSocAfter     float64 // ratio [0,1]

	smartGridEnergyKwh float64
	dumbImportKwh      float64
	dumbExportKwh      float64

	costSmart float64
	costDumb  float64

	inWindow bool
}

// resolvePrice prefers the canonical EUR/kWh reading, falling back to the
// ct/kWh reading, carried on HistoryPoint.
func resolvePrice(p domain.HistoryPoint) (float64, bool) {
	if p.PriceEurPerKwh != nil {
		return *p.PriceEurPerKwh, true
	}
	if p.PriceCentsPerKwh != nil {
		return *p.PriceCentsPerKwh / 100.0, true
	}
	return 0, false
}

// replay walks the sorted history once, producing one record per usable
// consecutive pair. Pairs missing the data the
// procedure requires are skipped without mutating the running dumb-SoC or
// last-price state.
func replay(cfg domain.SimulationConfig, sorted []domain.HistoryPoint, windowStart time.Time, importPriceFallback float64) []record {
	feedIn := cfg.EffectiveFeedInTariff()
	floorRatio := cfg.FloorSocPercent / 100.0

	var dumbSoc float64
	dumbSocSet := false
	lastPrice := 0.0
	lastPriceSet := false

	records := make([]record, 0, len(sorted))

	for idx := 1; idx < len(sorted); idx++ {
		prev := sorted[idx-1]
		curr := sorted[idx]

		deltaHours := curr.Timestamp.Sub(prev.Timestamp).Hours()
		if deltaHours <= 0 {
			continue
		}
		if prev.BatterySocPercent == nil || curr.BatterySocPercent == nil || prev.GridPowerW == nil {
			continue
		}

		if !dumbSocSet {
			dumbSoc = *prev.BatterySocPercent / 100.0
			dumbSocSet = true
		}

		price, ok := resolvePrice(prev)
		if !ok {
			price, ok = resolvePrice(curr)
		}
		if !ok {
			if lastPriceSet {
				price = lastPrice
			} else {
				price = importPriceFallback
			}
		}
		lastPrice = price
		lastPriceSet = true

		socPrevRatio := *prev.BatterySocPercent / 100.0
		socCurrRatio := *curr.BatterySocPercent / 100.0

		batteryPowerW := (socCurrRatio - socPrevRatio) * cfg.CapacityKwh * 1000 / deltaHours
		gridPowerW := *prev.GridPowerW
		solarPowerW := 0.0
		if prev.SolarPowerW != nil {
			solarPowerW = *prev.SolarPowerW
		}
		houseLoadW := math.Max(0, gridPowerW+solarPowerW-batteryPowerW)
		if prev.HomePowerW != nil {
			houseLoadW = *prev.HomePowerW
		}

		solarEnergyKwh := solarPowerW * deltaHours / 1000
		gridEnergyKwh := gridPowerW * deltaHours / 1000

		costSmart := 0.0
		if gridEnergyKwh > 0 {
			costSmart = gridEnergyKwh * price
		} else {
			costSmart = gridEnergyKwh * feedIn
		}

		dumbCfg := cfg
		dumbCfg.HouseLoadW = houseLoadW
		dumbCfg.AllowGridCharge = false
		d := physics.Derive(physics.Inputs{
			Duration:       domain.NewDuration(time.Duration(deltaHours * float64(time.Hour))),
			Price:          domain.EnergyPrice{EurPerKwh: price},
			SolarEnergyKwh: solarEnergyKwh,
			Config:         dumbCfg,
		})

		capacityRemainingKwh := math.Max(0, (1-dumbSoc)*cfg.CapacityKwh)
		chargeKwh := math.Min(capacityRemainingKwh, d.SolarChargeLimitKwh)

		floorEnergyKwh := floorRatio * cfg.CapacityKwh
		dischargeAvailableKwh := math.Max(0, dumbSoc*cfg.CapacityKwh-floorEnergyKwh)
		dischargeKwh := math.Min(d.LoadAfterDirectKwh, math.Min(dischargeAvailableKwh, d.DischargeLimitKwh))

		importKwh := d.LoadAfterDirectKwh - dischargeKwh
		exportKwh := math.Max(0, d.AvailableSolarKwh-chargeKwh)
		costDumb := importKwh*price - exportKwh*feedIn

		newDumbEnergyKwh := dumbSoc*cfg.CapacityKwh + chargeKwh - dischargeKwh
		newDumbSoc := newDumbEnergyKwh / cfg.CapacityKwh
		if newDumbSoc < floorRatio {
			newDumbSoc = floorRatio
		}
		if newDumbSoc > 1 {
			newDumbSoc = 1
		}

		records = append(records, record{
			timestamp:          curr.Timestamp,
			deltaHours:         deltaHours,
			price:               price,
			actualSocBefore:     socPrevRatio,
			actualSocAfter:      socCurrRatio,
			dumbSocBefore:       dumbSoc,
			dumbSocAfter:        newDumbSoc,
			smartGridEnergyKwh:  gridEnergyKwh,
			dumbImportKwh:       importKwh,
			dumbExportKwh:       exportKwh,
			costSmart:           costSmart,
			costDumb:            costDumb,
			inWindow:            !curr.Timestamp.Before(windowStart),
		})

		dumbSoc = newDumbSoc
	}

	return records
}

func sortedHistory(history []domain.HistoryPoint) []domain.HistoryPoint {
	sorted := append([]domain.HistoryPoint(nil), history...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })
	return sorted
}

func referenceTimestamp(opts Options, sorted []domain.HistoryPoint) time.Time {
	if !opts.ReferenceTimestamp.IsZero() {
		return opts.ReferenceTimestamp
	}
	if len(sorted) == 0 {
		return time.Time{}
	}
	return sorted[len(sorted)-1].Timestamp
}

// Savings computes the scalar savings figure.
// Returns nil when there is not enough usable history in the window.
func Savings(cfg domain.SimulationConfig, history []domain.HistoryPoint, opts Options) *SavingsResult {
	if len(history) < 2 {
		return nil
	}
	sorted := sortedHistory(history)
	ref := referenceTimestamp(opts, sorted)
	windowStart := ref.Add(-time.Duration(opts.windowHours() * float64(time.Hour)))

	recs := replay(cfg, sorted, windowStart, opts.ImportPriceFallbackEurPerKwh)

	actualCost := 0.0
	dumbCost := 0.0
	count := 0
	var actualStart, actualEnd, dumbStart, dumbEnd float64
	haveFirst := false

	for _, r := range recs {
		if !r.inWindow {
			continue
		}
		if !haveFirst {
			actualStart = r.actualSocBefore
			dumbStart = r.dumbSocBefore
			haveFirst = true
		}
		actualEnd = r.actualSocAfter
		dumbEnd = r.dumbSocAfter
		actualCost += r.costSmart
		dumbCost += r.costDumb
		count++
	}

	if count == 0 {
		return nil
	}

	savings := dumbCost - actualCost
	if opts.EndValuationPriceEurPerKwh != nil {
		valuation := *opts.EndValuationPriceEurPerKwh * ((actualEnd - actualStart) - (dumbEnd - dumbStart)) * cfg.CapacityKwh
		savings += valuation
	}

	return &SavingsResult{
		SavingsEur:    savings,
		ActualCostEur: actualCost,
		DumbCostEur:   dumbCost,
		IntervalCount: count,
		WindowStart:   windowStart,
		WindowEnd:     ref,
	}
}

// Run computes the smart-vs-dumb time series.
func Run(cfg domain.SimulationConfig, history []domain.HistoryPoint, opts Options, generatedAt time.Time) *Series {
	if len(history) < 2 {
		return nil
	}
	sorted := sortedHistory(history)
	ref := referenceTimestamp(opts, sorted)
	windowStart := ref.Add(-time.Duration(opts.windowHours() * float64(time.Hour)))

	recs := replay(cfg, sorted, windowStart, opts.ImportPriceFallbackEurPerKwh)

	points := make([]SeriesPoint, 0, len(recs))
	cumulative := 0.0
	for _, r := range recs {
		if !r.inWindow {
			continue
		}
		cumulative += r.costDumb - r.costSmart
		markToMarket := (r.actualSocAfter - r.dumbSocAfter) * cfg.CapacityKwh * r.price

		points = append(points, SeriesPoint{
			Timestamp:            r.timestamp,
			SmartGridPowerW:      r.smartGridEnergyKwh * 1000 / r.deltaHours,
			DumbGridPowerW:       (r.dumbImportKwh - r.dumbExportKwh) * 1000 / r.deltaHours,
			SmartSocPercent:      r.actualSocAfter * 100,
			DumbSocPercent:       r.dumbSocAfter * 100,
			SmartCostEur:         r.costSmart,
			DumbCostEur:          r.costDumb,
			SavingsEur:           r.costDumb - r.costSmart,
			CumulativeSavingsEur: cumulative + markToMarket,
		})
	}

	return &Series{
		GeneratedAt: generatedAt,
		WindowStart: windowStart,
		WindowEnd:   ref,
		Points:      points,
	}
}
