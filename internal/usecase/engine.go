package usecase

import (
	"context"
	"time"

	"FinSignal/internal/domain/models"
	applogger "FinSignal/pkg/logger"
	"FinSignal/pkg/scheduler"
)

// Job names.
const (
	JobRefreshUniverse  = "refresh-universe"
	JobScanMarket       = "scan-market"
	JobConfirmationTick = "confirmation-tick"
	JobDailyReset       = "daily-reset"
)

// EngineConfig holds the cadence of every engine job.
type EngineConfig struct {
	UniverseInterval     time.Duration
	ScanInterval         time.Duration
	ConfirmationInterval time.Duration
	DailyResetInterval   time.Duration
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		UniverseInterval:     20 * time.Minute,
		ScanInterval:         time.Minute,
		ConfirmationInterval: 5 * time.Minute,
		DailyResetInterval:   time.Minute,
	}
}

// Engine ties universe selection, scanning and confirmation into scheduler jobs.
type Engine struct {
	cfg          EngineConfig
	universe     *UniverseSelector
	scanner      *MarketScanner
	confirmation *ConfirmationManager
	log          *applogger.Logger
	now          func() time.Time
}

func NewEngine(cfg EngineConfig, universe *UniverseSelector, scanner *MarketScanner, confirmation *ConfirmationManager, log *applogger.Logger) *Engine {
	if log == nil {
		log = applogger.NewNop()
	}
	return &Engine{
		cfg:          cfg,
		universe:     universe,
		scanner:      scanner,
		confirmation: confirmation,
		log:          log.With(applogger.String("component", "engine")),
		now:          time.Now,
	}
}

// Jobs returns the periodic jobs to register with the scheduler.
func (e *Engine) Jobs() []scheduler.Job {
	return []scheduler.Job{
		scheduler.FuncJob{JobName: JobRefreshUniverse, Every: e.cfg.UniverseInterval, Fn: e.RefreshUniverse},
		scheduler.FuncJob{JobName: JobScanMarket, Every: e.cfg.ScanInterval, Fn: e.ScanMarket},
		// Pending signals and the daily set live in this process.
		scheduler.FuncJob{JobName: JobConfirmationTick, Every: e.cfg.ConfirmationInterval, Fn: e.ConfirmationTick, ProcessLocal: true},
		scheduler.FuncJob{JobName: JobDailyReset, Every: e.cfg.DailyResetInterval, Fn: e.DailyReset, ProcessLocal: true},
	}
}

// Start restores persisted pending signals and marks the confirmation loop active.
func (e *Engine) Start(ctx context.Context) {
	if _, err := e.confirmation.Restore(ctx); err != nil {
		e.log.Warn("restore pending signals failed", applogger.Error(err))
	}
	e.confirmation.SetActive(true)
}

func (e *Engine) Stop() {
	e.confirmation.SetActive(false)
}

func (e *Engine) RefreshUniverse(ctx context.Context) error {
	_, err := e.universe.Refresh(ctx)
	return err
}

// ScanMarket scans the current universe and admits every candidate. An empty
// universe is refreshed first.
func (e *Engine) ScanMarket(ctx context.Context) error {
	insts := e.universe.Current()
	if len(insts) == 0 {
		var err error
		if insts, err = e.universe.Refresh(ctx); err != nil && len(insts) == 0 {
			return err
		}
	}
	if len(insts) == 0 {
		e.log.Warn("universe empty, nothing to scan")
		return nil
	}

	candidates, err := e.scanner.Scan(ctx, insts)
	if err != nil {
		return err
	}
	admitted := e.admit(ctx, candidates)
	e.log.Info("scan cycle",
		applogger.Int("candidates", len(candidates)),
		applogger.Int("admitted", admitted))
	return nil
}

func (e *Engine) admit(ctx context.Context, candidates []models.CandidateSignal) int {
	now := e.now()
	n := 0
	for _, c := range candidates {
		if _, ok := e.confirmation.Admit(ctx, c, now); ok {
			n++
		}
	}
	return n
}

func (e *Engine) ConfirmationTick(ctx context.Context) error {
	e.confirmation.Tick(ctx, e.now())
	return ctx.Err()
}

func (e *Engine) DailyReset(ctx context.Context) error {
	e.confirmation.ResetIfNewDay(e.now())
	return nil
}
