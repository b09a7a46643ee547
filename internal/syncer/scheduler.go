package syncer

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"coldtrack-sync/internal/models"

	"go.uber.org/zap"
)

// State scheduler lifecycle state
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	default:
		return "STOPPED"
	}
}

// Lifecycle process-local holder of the scheduler state. At most one
// scheduler sharing a Lifecycle can leave STOPPED at a time.
type Lifecycle struct {
	state atomic.Int32
}

var processLifecycle Lifecycle

// ProcessLifecycle the lifecycle shared by every scheduler of this process
// unless Dependencies names another one
func ProcessLifecycle() *Lifecycle {
	return &processLifecycle
}

// State current state
func (l *Lifecycle) State() State {
	return State(l.state.Load())
}

func (l *Lifecycle) begin() bool {
	return l.state.CompareAndSwap(int32(StateStopped), int32(StateStarting))
}

func (l *Lifecycle) set(s State) {
	l.state.Store(int32(s))
}

// Options scheduler settings
type Options struct {
	Interval            time.Duration
	UserEveryCycles     int // <= 0 disables the user sub-cycle
	ReadingLookbackDays int
	// FullReadingScanEvery reads each device's whole status tree on cycle 1
	// and every N cycles after; other cycles read today plus the lookback
	// days. <= 0 never scans the full tree.
	FullReadingScanEvery int
	Location             *time.Location
}

// CycleReport outcome of one periodic pass
type CycleReport struct {
	Cycle        int64               `json:"cycle"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   time.Time           `json:"finished_at"`
	Devices      int                 `json:"devices"`
	DeviceErrors int                 `json:"device_errors"`
	FullScan     bool                `json:"full_reading_scan"`
	Events       models.SyncCounters `json:"events"`
	Readings     models.SyncCounters `json:"readings"`
	Snapshots    int                 `json:"snapshots"`
	Users        *UserReport         `json:"users,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// Dependencies collaborators of the scheduler. Users, LiveCache, Runs and
// Listeners are optional. A nil Lifecycle means ProcessLifecycle().
type Dependencies struct {
	Live      LiveStore
	Engine    *Engine
	Users     *UserSyncer
	LiveCache LiveCache
	Runs      RunPublisher
	Listeners *Listeners
	Lifecycle *Lifecycle
}

// Scheduler runs the periodic reconciliation loop and, when configured, the
// per-device change listeners.
type Scheduler struct {
	opts      Options
	live      LiveStore
	engine    *Engine
	users     *UserSyncer
	liveCache LiveCache
	runs      RunPublisher
	listeners *Listeners
	lifecycle *Lifecycle
	logger    *zap.Logger
	now       func() time.Time

	mu     sync.Mutex
	stopCh chan struct{}
	done   chan struct{}
	last   *CycleReport
	cycles atomic.Int64
}

// NewScheduler creates a stopped scheduler
func NewScheduler(opts Options, deps Dependencies, logger *zap.Logger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.ReadingLookbackDays < 0 {
		opts.ReadingLookbackDays = 0
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	lifecycle := deps.Lifecycle
	if lifecycle == nil {
		lifecycle = ProcessLifecycle()
	}

	return &Scheduler{
		opts:      opts,
		live:      deps.Live,
		engine:    deps.Engine,
		users:     deps.Users,
		liveCache: deps.LiveCache,
		runs:      deps.Runs,
		listeners: deps.Listeners,
		lifecycle: lifecycle,
		logger:    logger,
		now:       time.Now,
	}
}

// State current lifecycle state
func (s *Scheduler) State() State {
	return s.lifecycle.State()
}

// LastCycle report of the most recent completed cycle
func (s *Scheduler) LastCycle() (CycleReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return CycleReport{}, false
	}
	return *s.last, true
}

// Start checks the live store is reachable and launches the loop. Calling
// Start while the scheduler is not STOPPED is a no-op. A failed check returns
// the error and leaves the scheduler STOPPED.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.lifecycle.begin() {
		s.logger.Info("Sync scheduler already running, ignoring start request",
			zap.String("state", s.lifecycle.State().String()),
		)
		return nil
	}

	s.logger.Info("Starting sync scheduler",
		zap.Duration("interval", s.opts.Interval),
		zap.Bool("listeners_enabled", s.listeners != nil),
		zap.Int("user_every_cycles", s.opts.UserEveryCycles),
	)

	devices, err := s.live.Devices(ctx)
	if err != nil {
		s.lifecycle.set(StateStopped)
		s.logger.Error("Sync scheduler could not reach the live store, not starting", zap.Error(err))
		return fmt.Errorf("live store unreachable: %w", err)
	}
	s.logger.Info("Live store reachable", zap.Int("devices", len(devices)))

	stopCh := make(chan struct{})
	done := make(chan struct{})
	s.mu.Lock()
	s.stopCh = stopCh
	s.done = done
	s.mu.Unlock()

	// listeners and cycles outlive the caller's ctx; Stop ends them
	bg := context.WithoutCancel(ctx)
	listenCtx, cancelListeners := context.WithCancel(bg)
	var listenWG sync.WaitGroup
	if s.listeners != nil {
		listenWG.Add(1)
		go func() {
			defer listenWG.Done()
			s.listeners.Run(listenCtx, devices)
		}()
	}

	s.lifecycle.set(StateRunning)
	go func() {
		defer close(done)
		s.loop(bg, stopCh)
		cancelListeners()
		listenWG.Wait()
		s.lifecycle.set(StateStopped)
		s.logger.Info("Sync scheduler stopped")
	}()
	return nil
}

// Stop asks the loop to exit after the current cycle and waits for it, or for
// ctx. Calling Stop again after a timeout waits for the same loop.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	stopCh, done := s.stopCh, s.done
	s.stopCh = nil
	s.mu.Unlock()

	if done == nil {
		return nil
	}
	if stopCh != nil {
		close(stopCh)
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sync scheduler did not stop in time: %w", ctx.Err())
	}
}

func (s *Scheduler) loop(ctx context.Context, stopCh <-chan struct{}) {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.RunCycle(ctx)
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			select {
			case <-stopCh:
				return
			default:
			}
			s.RunCycle(ctx)
		}
	}
}

// RunCycle runs one full pass over every device. Panics are recovered into
// the report; the next cycle is unaffected.
func (s *Scheduler) RunCycle(ctx context.Context) (report CycleReport) {
	report.Cycle = s.cycles.Add(1)
	report.StartedAt = s.now()

	defer func() {
		if r := recover(); r != nil {
			report.Error = fmt.Sprintf("panic: %v", r)
			s.logger.Error("Sync cycle panicked",
				zap.Int64("cycle", report.Cycle),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
		report.FinishedAt = s.now()
		s.finishCycle(ctx, report)
	}()

	devices, err := s.live.Devices(ctx)
	if err != nil {
		report.Error = err.Error()
		s.logger.Error("Failed to list devices", zap.Int64("cycle", report.Cycle), zap.Error(err))
		return report
	}
	report.Devices = len(devices)
	report.FullScan = s.opts.FullReadingScanEvery > 0 &&
		(report.Cycle-1)%int64(s.opts.FullReadingScanEvery) == 0

	for _, deviceID := range devices {
		if err := s.syncDevice(ctx, deviceID, &report); err != nil {
			report.DeviceErrors++
			level := s.logger.Error
			if errors.Is(err, ErrCameraNotFound) {
				level = s.logger.Warn
			}
			level("Device sync failed",
				zap.Int64("cycle", report.Cycle),
				zap.String("device_id", deviceID),
				zap.Error(err),
			)
		}
	}

	if s.users != nil && s.opts.UserEveryCycles > 0 && (report.Cycle-1)%int64(s.opts.UserEveryCycles) == 0 {
		userReport, err := s.users.Sync(ctx)
		if err != nil {
			s.logger.Error("User sync failed", zap.Error(err))
		} else {
			report.Users = &userReport
		}
	}
	return report
}

func (s *Scheduler) syncDevice(ctx context.Context, deviceID string, report *CycleReport) error {
	events, err := s.live.AllEvents(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("failed to read events: %w", err)
	}

	readings, err := s.readings(ctx, deviceID, report.FullScan)
	if err != nil {
		return fmt.Errorf("failed to read readings: %w", err)
	}

	result, err := s.engine.SyncDevice(ctx, DeviceBatch{
		DeviceID: deviceID,
		Events:   events,
		Readings: readings,
		Origin:   models.OriginStatus,
	})
	report.Events.Add(result.Events)
	report.Readings.Add(result.Readings)
	if err != nil {
		return err
	}

	if s.liveCache != nil {
		snap, err := s.live.LiveSnapshot(ctx, deviceID)
		if err != nil {
			s.logger.Warn("Failed to read live snapshot", zap.String("device_id", deviceID), zap.Error(err))
		} else if snap != nil {
			if err := s.liveCache.Put(ctx, *snap); err != nil {
				s.logger.Warn("Failed to cache live snapshot", zap.String("device_id", deviceID), zap.Error(err))
			} else {
				report.Snapshots++
			}
		}
	}
	return nil
}

func (s *Scheduler) readings(ctx context.Context, deviceID string, full bool) ([]models.RawReading, error) {
	if full {
		return s.live.AllReadings(ctx, deviceID)
	}
	today := s.now().In(s.opts.Location)
	var readings []models.RawReading
	for d := 0; d <= s.opts.ReadingLookbackDays; d++ {
		day, err := s.live.Readings(ctx, deviceID, today.AddDate(0, 0, -d))
		if err != nil {
			return nil, err
		}
		readings = append(readings, day...)
	}
	return readings, nil
}

func (s *Scheduler) finishCycle(ctx context.Context, report CycleReport) {
	s.mu.Lock()
	s.last = &report
	s.mu.Unlock()

	if s.runs != nil {
		s.runs.PublishRun(ctx, "cycle", report)
	}

	s.logger.Info("Sync cycle completed",
		zap.Int64("cycle", report.Cycle),
		zap.Int("devices", report.Devices),
		zap.Int("device_errors", report.DeviceErrors),
		zap.Bool("full_reading_scan", report.FullScan),
		zap.Int("events_inserted", report.Events.Inserted),
		zap.Int("events_updated", report.Events.Updated),
		zap.Int("events_retained", report.Events.Retained),
		zap.Int("readings_inserted", report.Readings.Inserted),
		zap.Int("errored", report.Events.Errored+report.Readings.Errored),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)),
	)
}
