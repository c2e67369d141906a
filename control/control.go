// Package control runs the periodic cycle that ties the forecast
// adapters, the scheduler, the backtester, persistence, the command
// translator and the inverter driver together: gather inputs, plan,
// persist, dispatch, repeat.
package control

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/fennerhome/batteryctl/backtest"
	"github.com/fennerhome/batteryctl/command"
	"github.com/fennerhome/batteryctl/domain"
	"github.com/fennerhome/batteryctl/forecast"
	"github.com/fennerhome/batteryctl/inverter"
	"github.com/fennerhome/batteryctl/normalize"
	"github.com/fennerhome/batteryctl/scheduler"
	"github.com/fennerhome/batteryctl/store"
)

// CostSource supplies priced tariff slots for one provider.
type CostSource interface {
	FetchPriceSlots(ctx context.Context) ([]domain.PriceSlot, error)
	Provider() string
	Priority() int
}

// SolarSource supplies solar energy estimates over a requested grid of
// slots, from one provider.
type SolarSource interface {
	SolarSlots(slots []domain.TimeSlot) ([]domain.SolarSlot, error)
	Refresh() error
}

// LiveStateSource supplies the live battery SoC and instantaneous power
// readings used to seed the scheduler and annotate history.
type LiveStateSource interface {
	FetchState(ctx context.Context) (forecast.LiveState, error)
}

// Publisher receives the latest snapshot for the read-only status API.
type Publisher interface {
	Publish(snap domain.SnapshotPayload)
}

// Loop owns one control cycle's collaborators and runs them on a
// phase-aligned interval.
type Loop struct {
	Config        domain.SimulationConfig
	Interval      time.Duration
	ForecastHorizon time.Duration

	CostSources  []CostSource
	SolarSources []SolarSource
	LiveState    LiveStateSource

	Store     *store.Store
	Inverter  inverter.Driver
	Publisher Publisher
	Logger    *log.Logger

	translator *command.Translator
	lastSoc    float64
	haveSoc    bool

	cycleInFlight atomic.Bool
}

// New builds a Loop with a fresh command translator.
func New(cfg domain.SimulationConfig, interval, horizon time.Duration, logger *log.Logger) *Loop {
	if logger == nil {
		logger = log.Default()
	}
	return &Loop{
		Config:          cfg,
		Interval:        interval,
		ForecastHorizon: horizon,
		Logger:          logger,
		translator:      command.NewTranslator(),
	}
}

// Run blocks, ticking the control cycle on a phase-aligned interval until
// ctx is canceled. The first tick fires at the next interval boundary
// rather than Interval after Run is called.
func (l *Loop) Run(ctx context.Context) {
	delay := alignedDelay(time.Now(), l.Interval)
	l.Logger.Printf("[control] first cycle in %v (phase-aligned to %v interval)", delay, l.Interval)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		l.tick(ctx)
	case <-ctx.Done():
		l.Logger.Printf("[control] stopped before first cycle")
		return
	}

	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.tick(ctx)
		case <-ctx.Done():
			l.Logger.Printf("[control] stopped")
			return
		}
	}
}

// RunOnce executes exactly one control cycle, for -once/CLI-driven
// invocation outside the periodic loop.
func (l *Loop) RunOnce(ctx context.Context) {
	l.tick(ctx)
}

// alignedDelay returns how long to wait so the next tick lands on an
// interval-aligned boundary from the top of the hour.
func alignedDelay(now time.Time, interval time.Duration) time.Duration {
	top := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	elapsed := now.Sub(top)
	for elapsed > 0 {
		elapsed -= interval
	}
	return -elapsed
}

// tick runs one cycle, ignoring a trigger that arrives while the previous
// one is still running.
func (l *Loop) tick(ctx context.Context) {
	if !l.cycleInFlight.CompareAndSwap(false, true) {
		l.Logger.Printf("[control] overlapping cycle trigger ignored, previous cycle still running")
		return
	}
	defer l.cycleInFlight.Store(false)

	now := time.Now()
	snap := l.runCycle(ctx, now)

	if l.Store != nil {
		if err := l.Store.ReplaceSnapshot(ctx, snap); err != nil {
			l.Logger.Printf("[control] failed to persist snapshot: %v", err)
		}
		if err := l.Store.AppendHistory(ctx, l.historyPoint(snap)); err != nil {
			l.Logger.Printf("[control] failed to append history: %v", err)
		}
	}

	if l.Publisher != nil {
		l.Publisher.Publish(snap)
	}

	l.dispatch(ctx, snap)
}

func (l *Loop) runCycle(ctx context.Context, now time.Time) domain.SnapshotPayload {
	snap := domain.SnapshotPayload{Timestamp: now}

	liveSoc := l.lastSoc
	if state, err := l.fetchLiveState(ctx); err != nil {
		snap.AddWarning("live state unavailable: " + err.Error())
	} else {
		liveSoc = state.BatterySocPercent
		l.lastSoc = liveSoc
		l.haveSoc = true
	}
	if !l.haveSoc && l.Store != nil {
		if prev, ok, err := l.Store.LatestSnapshot(ctx); err == nil && ok && prev.CurrentSocPercent != nil {
			liveSoc = *prev.CurrentSocPercent
			l.lastSoc = liveSoc
			l.haveSoc = true
		}
	}
	if !l.haveSoc {
		snap.AddWarning("no live SoC observed yet; using 0 as the starting point")
	}
	soc := liveSoc
	snap.CurrentSocPercent = &soc

	eras := l.assembleEras(ctx, now, &snap)
	if len(eras) == 0 {
		snap.AddError("no forecast eras available, skipping this cycle's plan")
		return snap
	}
	snap.Eras = eras

	slots := scheduler.SlotsFromEras(eras)

	out, err := scheduler.Schedule(l.Config, liveSoc, slots, now)
	if err != nil {
		snap.AddError("scheduler failed: " + err.Error())
		return snap
	}
	applyScheduleOutput(&snap, out)

	noGridCfg := l.Config
	noGridCfg.AllowGridCharge = false
	noGridCfg.MaxChargePowerW = 0
	if basic, err := scheduler.Schedule(noGridCfg, liveSoc, slots, now); err == nil {
		cost := basic.ProjectedCostEur
		snap.BasicBatteryCostEur = &cost
	} else {
		snap.AddWarning("grid-charge-disallowed comparison pass failed: " + err.Error())
	}

	if l.Store != nil {
		if history, err := l.Store.RecentHistory(ctx, now.Add(-24*time.Hour)); err == nil {
			if result := backtest.Savings(l.Config, history, backtest.Options{ReferenceTimestamp: now}); result != nil {
				savings := result.SavingsEur
				snap.BacktestedSavingsEur = &savings
			}
		} else {
			snap.AddWarning("backtest history unavailable: " + err.Error())
		}
	}

	return snap
}

func (l *Loop) fetchLiveState(ctx context.Context) (forecast.LiveState, error) {
	if l.LiveState == nil {
		return forecast.LiveState{}, nil
	}
	return l.LiveState.FetchState(ctx)
}

// assembleEras gathers every configured cost and solar source, trims them
// to the forecast horizon starting at now, and builds the unified era
// grid the scheduler plans over.
func (l *Loop) assembleEras(ctx context.Context, now time.Time, snap *domain.SnapshotPayload) []domain.ForecastEra {
	builder := normalize.NewBuilder()

	for _, src := range l.CostSources {
		slots, err := src.FetchPriceSlots(ctx)
		if err != nil {
			snap.AddWarning("cost source " + src.Provider() + " failed: " + err.Error())
			continue
		}
		builder.AddCostSlots(src.Provider(), src.Priority(), slots)
	}

	eras := builder.Build()
	if len(eras) == 0 {
		return nil
	}

	slotGrid := make([]domain.TimeSlot, len(eras))
	for i, era := range eras {
		slotGrid[i] = era.Slot
	}

	for _, src := range l.SolarSources {
		if err := src.Refresh(); err != nil {
			snap.AddWarning("solar source refresh failed: " + err.Error())
		}
		solarSlots, err := src.SolarSlots(slotGrid)
		if err != nil {
			snap.AddWarning("solar source failed: " + err.Error())
			continue
		}
		mergeSolarOnto(eras, solarSlots)
	}

	return normalize.TrimToHorizon(eras, now, l.ForecastHorizon)
}

// mergeSolarOnto attaches solar slots to the matching era by start time.
// Providers are not distinguished here since SolarSources don't expose a
// provider name the way CostSources do; at most one solar source is
// expected to be configured per deployment.
func mergeSolarOnto(eras []domain.ForecastEra, solarSlots []domain.SolarSlot) {
	byStart := make(map[int64]domain.SolarSlot, len(solarSlots))
	for _, s := range solarSlots {
		byStart[s.Slot.Start.Unix()] = s
	}
	for i := range eras {
		if s, ok := byStart[eras[i].Slot.Start.Unix()]; ok {
			eras[i].Sources = append(eras[i].Sources, domain.NewSolarSource(domain.SolarPayload{
				Provider:   "solar",
				EnergyKwh:  s.EnergyKwh,
				IsEstimate: true,
			}))
		}
	}
}

func applyScheduleOutput(snap *domain.SnapshotPayload, out scheduler.Output) {
	snap.NextStepSocPercent = out.NextStepSocPercent
	snap.RecommendedSocPercent = out.RecommendedSocPercent
	snap.ProjectedCostEur = out.ProjectedCostEur
	snap.BaselineCostEur = out.BaselineCostEur
	snap.ProjectedSavingsEur = out.ProjectedSavingsEur
	snap.ProjectedGridPowerW = out.ProjectedGridPowerW
	snap.AveragePriceEurPerKwh = out.AveragePriceEurPerKwh
	snap.ForecastHours = out.ForecastHours
	snap.ForecastSamples = out.ForecastSamples
	snap.OracleEntries = out.OracleEntries

	if len(out.OracleEntries) > 0 {
		snap.CurrentMode = modeFromStrategy(out.OracleEntries[0].Strategy)
	}
}

func modeFromStrategy(s domain.Strategy) domain.Mode {
	switch s {
	case domain.StrategyCharge:
		return domain.ModeCharge
	case domain.StrategyHold:
		return domain.ModeHold
	default:
		return domain.ModeAuto
	}
}

func (l *Loop) historyPoint(snap domain.SnapshotPayload) domain.HistoryPoint {
	point := domain.HistoryPoint{
		Timestamp:            snap.Timestamp,
		BatterySocPercent:    snap.CurrentSocPercent,
		GridPowerW:           &snap.ProjectedGridPowerW,
		BacktestedSavingsEur: snap.BacktestedSavingsEur,
	}
	if snap.AveragePriceEurPerKwh != 0 {
		price := snap.AveragePriceEurPerKwh
		point.PriceEurPerKwh = &price
	}
	return point
}

func (l *Loop) dispatch(ctx context.Context, snap domain.SnapshotPayload) {
	if l.Inverter == nil {
		return
	}
	cmd, changed := l.translator.Translate(l.Config, snap)
	if !changed {
		return
	}
	if err := l.Inverter.Apply(ctx, cmd); err != nil {
		l.Logger.Printf("[control] failed to apply inverter command: %v", err)
	} else {
		l.Logger.Printf("[control] applied inverter command: kind=%s soc_min=%d target=%d", cmd.Kind, cmd.SocMinPercent, cmd.TargetPercent)
	}
}
