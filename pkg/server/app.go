package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	xhttp "FinSignal/pkg/http"
	applogger "FinSignal/pkg/logger"
	"FinSignal/pkg/scheduler"
)

// Engine is the signal pipeline driven by the scheduler.
type Engine interface {
	Jobs() []scheduler.Job
	Start(ctx context.Context)
	Stop()
}

// Closer is a named resource released on shutdown.
type Closer struct {
	Name string
	io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	log          *applogger.Logger
	engine       Engine
	scheduler    *scheduler.Scheduler
	httpServer   *xhttp.Server
	drainTimeout time.Duration
	closers      []Closer
}

// New registers the engine jobs with sched. Closers are released in order
// after the scheduler and the HTTP server stop.
func New(log *applogger.Logger, engine Engine, sched *scheduler.Scheduler, srv *xhttp.Server, drainTimeout time.Duration, closers ...Closer) *App {
	if log == nil {
		log = applogger.NewNop()
	}
	sched.RegisterJobs(engine.Jobs())
	return &App{
		log:          log,
		engine:       engine,
		scheduler:    sched,
		httpServer:   srv,
		drainTimeout: drainTimeout,
		closers:      closers,
	}
}

// Run starts the application and blocks until interrupted, ctx is done or
// the HTTP listener fails.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.engine.Start(ctx)

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	if err := a.httpServer.Start(); err != nil {
		_ = a.shutdown()
		return fmt.Errorf("start http server: %w", err)
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case err := <-a.httpServer.Errors():
		runErr = err
	}

	return errors.Join(runErr, a.shutdown())
}

// shutdown stops the scheduler first so no job runs against closed clients.
func (a *App) shutdown() error {
	a.log.Info("shutting down...")
	var errs []error

	drainCtx, cancel := context.WithTimeout(context.Background(), a.drainTimeout)
	defer cancel()
	if err := a.scheduler.Stop(drainCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}

	if err := a.httpServer.Stop(context.Background()); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}

	a.engine.Stop()

	for _, c := range a.closers {
		if c.Closer == nil {
			continue
		}
		if err := c.Close(); err != nil {
			a.log.Warn("close error", applogger.String("resource", c.Name), applogger.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.Name, err))
		}
	}

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
