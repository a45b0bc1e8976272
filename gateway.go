// Package gateway wires the serial-side BMS client, the energy integrator,
// the CVL safety state machine and the Victron CAN publisher into one
// runnable unit, the way the teacher's cmd/canopen/main.go wires a
// BusManager and a Node before entering its INIT/RUNNING/RESETING loop —
// generalized here from a flag-driven state machine to goroutines
// cooperatively cancelled through a shared context.Context, per spec §5.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vesselenergy/tinybms-gateway/pkg/bms"
	"github.com/vesselenergy/tinybms-gateway/pkg/canbus"
	"github.com/vesselenergy/tinybms-gateway/pkg/config"
	"github.com/vesselenergy/tinybms-gateway/pkg/cvl"
	"github.com/vesselenergy/tinybms-gateway/pkg/energy"
	"github.com/vesselenergy/tinybms-gateway/pkg/eventbus"
	"github.com/vesselenergy/tinybms-gateway/pkg/registers"
	"github.com/vesselenergy/tinybms-gateway/pkg/serial"
	"github.com/vesselenergy/tinybms-gateway/pkg/victron"
)

// persistenceFlushInterval is how often the dedicated persistence-worker
// goroutine forces an energy-totals write, independent of the drift-based
// opportunistic persistence already performed inline by Integrate.
const persistenceFlushInterval = 5 * time.Minute

// shutdownWait bounds how long Shutdown waits for the worker goroutines to
// observe cancellation before returning anyway (spec §5's "bounded wait,
// then forceful abort" note — idiomatic Go has no forced-abort primitive,
// so the bound here only gates how long Shutdown blocks, not whether the
// goroutines actually stop).
const shutdownWait = 5 * time.Second

// Gateway owns every long-lived subsystem and the four worker goroutines
// of spec §5: serial-transport/poll, CAN RX/keepalive, publisher
// scheduler, and persistence.
type Gateway struct {
	cfg    *config.Configuration
	logger *slog.Logger

	transport  *serial.Transport
	client     *bms.Client
	model      *bms.LiveModel
	integrator *energy.Integrator
	cvlRuntime *cvl.Runtime
	events     *eventbus.Bus
	bus        canbus.Bus
	driver     *canbus.Driver
	scheduler  *victron.Scheduler

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// Dependencies groups the externally constructed pieces that Gateway
// cannot build for itself: the opened serial transport and the connected
// CAN bus backend. Callers select the bus backend by importing the desired
// pkg/canbus/{socketcan,virtual} package for its registration side effect
// and calling canbus.NewBus, matching the teacher's own "construct the bus
// before constructing the node" ordering in cmd/canopen/main.go.
type Dependencies struct {
	Transport *serial.Transport
	Bus       canbus.Bus
}

// New builds a Gateway from cfg and deps but does not start any goroutines
// or touch the network/serial link; call Start for that.
func New(cfg *config.Configuration, deps Dependencies, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	// instanceID tags every log line from this process, so multiple
	// gateways (e.g. one per battery bank) feeding a shared log sink stay
	// distinguishable without needing a separate correlation scheme.
	instanceID := uuid.NewString()
	logger = logger.With("service", "[gateway]", "instance_id", instanceID)

	cat := registers.Default()
	client := bms.NewClient(deps.Transport, cat, logger)
	model := bms.NewLiveModel()

	store := energy.NewFileStore(cfg.Energy.PersistPath)
	integrator := energy.New(store, logger)
	integrator.Restore()

	cvlRuntime := cvl.NewRuntime(logger)
	events := eventbus.New(64, logger)

	driverCfg := canbus.DriverConfig{
		KeepAliveInterval: cfg.CAN.KeepAliveInterval,
		KeepAliveTimeout:  cfg.CAN.KeepAliveTimeout,
		KeepAliveRetry:    cfg.CAN.KeepAliveRetry,
		BusOffBackoff:     cfg.CAN.BusOffBackoff,
	}
	driver := canbus.NewDriver(deps.Bus, driverCfg, events, logger)

	info := victron.StaticInfo{
		Manufacturer:    cfg.Identity.Manufacturer,
		BatteryName:     cfg.Identity.BatteryName,
		SerialNumber:    cfg.Identity.SerialNumber,
		BatteryFamily:   cfg.Identity.BatteryFamily,
		FirmwareVersion: cfg.Identity.FirmwareVersion,
		ModuleCount:     cfg.Identity.ModuleCount,
		ModulesOnline:   cfg.Identity.ModuleCount,
	}
	channels := victron.Table(info)
	scheduler := victron.NewScheduler(channels, driver, events, cvlRuntime, integrator, cfg.CAN.PublishIntervalMs, logger)

	return &Gateway{
		cfg:        cfg,
		logger:     logger,
		transport:  deps.Transport,
		client:     client,
		model:      model,
		integrator: integrator,
		cvlRuntime: cvlRuntime,
		events:     events,
		bus:        deps.Bus,
		driver:     driver,
		scheduler:  scheduler,
	}
}

// Model exposes the live-data model so observers (a CLI's selftest path, a
// future telemetry surface) can subscribe or read the latest snapshot.
func (g *Gateway) Model() *bms.LiveModel { return g.model }

// Events exposes the outbound event bus for GUI/telemetry subscribers.
func (g *Gateway) Events() *eventbus.Bus { return g.events }

// Start connects the CAN driver and launches the four worker goroutines.
// It returns once the CAN driver has connected; the workers themselves run
// until ctx is cancelled or Shutdown is called.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.running = true
	g.mu.Unlock()

	if err := g.driver.Start(runCtx); err != nil {
		cancel()
		g.mu.Lock()
		g.running = false
		g.mu.Unlock()
		return fmt.Errorf("gateway: starting can driver: %w", err)
	}

	g.wg.Add(3)
	go g.pollLoop(runCtx)
	go g.schedulerLoop(runCtx)
	go g.persistenceLoop(runCtx)

	g.logger.Info("gateway started")
	return nil
}

// Shutdown cancels the shared context and waits up to shutdownWait for the
// worker goroutines to exit, flushing the energy integrator once more
// before returning. It always tears down the CAN driver regardless of
// whether the wait completed in time.
func (g *Gateway) Shutdown() error {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return ErrNotStarted
	}
	cancel := g.cancel
	g.running = false
	g.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	var waitErr error
	select {
	case <-done:
	case <-time.After(shutdownWait):
		g.logger.Warn("shutdown wait timed out, proceeding anyway")
		waitErr = ErrShutdownTimeout
	}

	g.integrator.Flush(uint64(time.Now().UnixMilli()))
	if err := g.driver.Stop(); err != nil {
		g.logger.Warn("error stopping can driver", "error", err)
	}
	g.logger.Info("gateway stopped")
	return waitErr
}

// pollLoop is the serial-transport/poll worker: it runs PollCycle at
// cfg.Poll.Interval, publishes every successful snapshot to the live model
// and the CVL/energy subsystems, and hands the snapshot to the publisher
// scheduler, matching the teacher's background-task goroutine in
// cmd/canopen/main.go but driven by a ticker instead of a sleep-after-work
// loop so the cadence does not drift under load.
func (g *Gateway) pollLoop(ctx context.Context) {
	defer g.wg.Done()

	g.model.SetStatus(bms.Connecting)
	ticker := time.NewTicker(g.cfg.Poll.Interval)
	defer ticker.Stop()

	var prev bms.LiveData
	var cycleIndex uint64
	var consecutiveFailures int

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		next, err := g.client.PollCycle(ctx, prev, cycleIndex, g.cfg.Serial.RetryCount, g.cfg.Serial.RetryBackoff)
		cycleIndex++
		if err != nil {
			consecutiveFailures++
			if consecutiveFailures >= g.cfg.Poll.ConsecutiveFailureLimit {
				g.model.SetStatus(bms.Disconnected)
			}
			continue
		}
		consecutiveFailures = 0
		prev = next

		g.model.Publish(next)
		g.integrator.Integrate(next.TimestampMs, next.PackV, next.PackI)
		g.cvlRuntime.Update(cvl.Snapshot{
			SOCPercent: next.SOCPercent,
			MaxCellMV:  next.MaxCellMV,
			MinCellMV:  next.MinCellMV,
			PackI:      next.PackI,
			BmsCCLA:    next.BmsCCL_A,
			BmsDCLA:    next.BmsDCL_A,
		}, g.cfg.CVL)
		g.scheduler.OnSnapshot(next, time.Now())
	}
}

// schedulerLoop drives the publisher scheduler's periodic-mode dispatcher;
// it is a no-op for the gateway's lifetime in immediate mode, where
// dispatch happens synchronously from pollLoop via OnSnapshot instead.
func (g *Gateway) schedulerLoop(ctx context.Context) {
	defer g.wg.Done()
	g.scheduler.Run(ctx)
}

// persistenceLoop is the dedicated persistence worker of spec §5: it forces
// an energy-totals flush on a fixed cadence, independent of the
// drift-triggered opportunistic persistence already performed inline by
// Integrate, so a long period of near-constant load still reaches disk
// periodically.
func (g *Gateway) persistenceLoop(ctx context.Context) {
	defer g.wg.Done()
	ticker := time.NewTicker(persistenceFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.integrator.Flush(uint64(time.Now().UnixMilli()))
		}
	}
}
