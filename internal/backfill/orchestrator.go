package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coldtrack-sync/internal/models"
	"coldtrack-sync/internal/syncer"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidRange bad or oversized date range
var ErrInvalidRange = errors.New("invalid date range")

const dateLayout = "2006-01-02"

// Request one backfill run. Dates are calendar days in the orchestrator's
// location; To is inclusive. An empty Devices list means every device.
type Request struct {
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	Devices   []string  `json:"devices,omitempty"`
	Summaries bool      `json:"summaries"`
}

// DayResult counters of one device/day
type DayResult struct {
	DeviceID string               `json:"device_id"`
	Date     string               `json:"date"`
	Events   models.SyncCounters  `json:"events"`
	Readings models.SyncCounters  `json:"readings"`
	Summary  *models.DailySummary `json:"summary,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// Result per-run counters
type Result struct {
	RunID        uuid.UUID   `json:"run_id"`
	From         string      `json:"from"`
	To           string      `json:"to"`
	Devices      int         `json:"devices"`
	DeviceErrors int         `json:"device_errors"`
	EventsRead   int         `json:"events_read"`
	ReadingsRead int         `json:"readings_read"`
	Inserted     int         `json:"inserted"`
	Updated      int         `json:"updated"`
	Retained     int         `json:"retained"`
	Skipped      int         `json:"skipped"`
	Errored      int         `json:"errored"`
	Summaries    int         `json:"summaries"`
	StartedAt    time.Time   `json:"started_at"`
	FinishedAt   time.Time   `json:"finished_at"`
	Days         []DayResult `json:"days,omitempty"`
}

func (r *Result) add(c models.SyncCounters) {
	r.Inserted += c.Inserted
	r.Updated += c.Updated
	r.Retained += c.Retained
	r.Skipped += c.Skipped
	r.Errored += c.Errored
}

// Options orchestrator settings
type Options struct {
	Location *time.Location
	MaxDays  int // upper bound on a single run's range
}

// Orchestrator replays date ranges from the live store through the same
// reconciler and ingestor the scheduler uses.
type Orchestrator struct {
	live      syncer.LiveStore
	engine    *syncer.Engine
	summaries syncer.SummaryStore
	runs      syncer.RunPublisher
	opts      Options
	logger    *zap.Logger
}

// NewOrchestrator creates an orchestrator; runs may be nil
func NewOrchestrator(live syncer.LiveStore, engine *syncer.Engine, summaries syncer.SummaryStore, runs syncer.RunPublisher, opts Options, logger *zap.Logger) *Orchestrator {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.MaxDays <= 0 {
		opts.MaxDays = 366
	}
	return &Orchestrator{
		live:      live,
		engine:    engine,
		summaries: summaries,
		runs:      runs,
		opts:      opts,
		logger:    logger,
	}
}

// Location calendar used to split days
func (o *Orchestrator) Location() *time.Location {
	return o.opts.Location
}

// ParseDate parses YYYY-MM-DD in the orchestrator's location
func (o *Orchestrator) ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, s, o.opts.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not YYYY-MM-DD", ErrInvalidRange, s)
	}
	return t, nil
}

// Today current local date
func (o *Orchestrator) Today() time.Time {
	return startOfDay(time.Now(), o.opts.Location)
}

// Run backfills every requested device/day. Record failures are counted and
// skipped; only an invalid request, an unreachable device list or a
// cancelled ctx end the run early.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	from := startOfDay(req.From, o.opts.Location)
	to := startOfDay(req.To, o.opts.Location)
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return nil, fmt.Errorf("%w: from %s to %s", ErrInvalidRange, from.Format(dateLayout), to.Format(dateLayout))
	}
	days := dayCount(from, to)
	if days > o.opts.MaxDays {
		return nil, fmt.Errorf("%w: %d days exceeds the limit of %d", ErrInvalidRange, days, o.opts.MaxDays)
	}

	result := &Result{
		RunID:     uuid.New(),
		From:      from.Format(dateLayout),
		To:        to.Format(dateLayout),
		StartedAt: time.Now(),
	}

	devices := req.Devices
	if len(devices) == 0 {
		var err error
		devices, err = o.live.Devices(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list devices: %w", err)
		}
	}
	result.Devices = len(devices)

	o.logger.Info("Starting backfill run",
		zap.String("run_id", result.RunID.String()),
		zap.String("from", result.From),
		zap.String("to", result.To),
		zap.Int("devices", len(devices)),
		zap.Bool("summaries", req.Summaries),
	)

	var runErr error
devices:
	for _, deviceID := range devices {
		cam, err := o.engine.Camera(ctx, deviceID)
		if err != nil {
			result.DeviceErrors++
			o.logger.Warn("Skipping device",
				zap.String("run_id", result.RunID.String()),
				zap.String("device_id", deviceID),
				zap.Error(err),
			)
			continue
		}

		for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
			if err := ctx.Err(); err != nil {
				runErr = err
				break devices
			}
			dr := o.runDay(ctx, cam, deviceID, day, req.Summaries, result)
			result.Days = append(result.Days, dr)
		}
	}

	result.FinishedAt = time.Now()
	if o.runs != nil {
		o.runs.PublishRun(ctx, "backfill", result)
	}

	o.logger.Info("Backfill run completed",
		zap.String("run_id", result.RunID.String()),
		zap.Int("events_read", result.EventsRead),
		zap.Int("readings_read", result.ReadingsRead),
		zap.Int("inserted", result.Inserted),
		zap.Int("updated", result.Updated),
		zap.Int("retained", result.Retained),
		zap.Int("skipped", result.Skipped),
		zap.Int("errored", result.Errored),
		zap.Int("summaries", result.Summaries),
		zap.Duration("took", result.FinishedAt.Sub(result.StartedAt)),
	)
	if runErr != nil {
		return result, fmt.Errorf("backfill run %s interrupted: %w", result.RunID, runErr)
	}
	return result, nil
}

func (o *Orchestrator) runDay(ctx context.Context, cam *models.Camera, deviceID string, day time.Time, withSummary bool, result *Result) DayResult {
	dr := DayResult{DeviceID: deviceID, Date: day.Format(dateLayout)}

	events, err := o.live.Events(ctx, deviceID, day)
	if err != nil {
		return o.dayFailed(dr, result, fmt.Errorf("failed to read events: %w", err))
	}
	readings, err := o.live.Readings(ctx, deviceID, day)
	if err != nil {
		return o.dayFailed(dr, result, fmt.Errorf("failed to read readings: %w", err))
	}
	result.EventsRead += len(events)
	result.ReadingsRead += len(readings)

	synced, err := o.engine.SyncDevice(ctx, syncer.DeviceBatch{
		DeviceID: deviceID,
		Events:   events,
		Readings: readings,
		Origin:   models.OriginBackfill,
	})
	dr.Events = synced.Events
	dr.Readings = synced.Readings
	result.add(synced.Events)
	result.add(synced.Readings)
	if err != nil {
		dr.Error = err.Error()
		return dr
	}

	if !withSummary {
		return dr
	}
	summary, ok := ComputeSummary(cam.ID, day, readings, events)
	if !ok {
		o.logger.Debug("No readings, skipping daily summary",
			zap.String("device_id", deviceID),
			zap.String("date", dr.Date),
		)
		return dr
	}
	if err := o.summaries.Upsert(ctx, summary); err != nil {
		result.Errored++
		dr.Error = err.Error()
		o.logger.Error("Failed to upsert daily summary",
			zap.String("device_id", deviceID),
			zap.String("date", dr.Date),
			zap.Error(err),
		)
		return dr
	}
	result.Summaries++
	dr.Summary = &summary
	return dr
}

func (o *Orchestrator) dayFailed(dr DayResult, result *Result, err error) DayResult {
	result.Errored++
	dr.Error = err.Error()
	o.logger.Error("Backfill day failed",
		zap.String("device_id", dr.DeviceID),
		zap.String("date", dr.Date),
		zap.Error(err),
	)
	return dr
}

// Backup backfills one calendar month with summaries
func (o *Orchestrator) Backup(ctx context.Context, year int, month time.Month, devices []string) (*Result, error) {
	from, to := MonthRange(year, month, o.opts.Location)
	if today := o.Today(); to.After(today) {
		to = today
	}
	return o.Run(ctx, Request{From: from, To: to, Devices: devices, Summaries: true})
}

// MonthRange first and last day of a month
func MonthRange(year int, month time.Month, loc *time.Location) (time.Time, time.Time) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return first, first.AddDate(0, 1, -1)
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func dayCount(from, to time.Time) int {
	n := 0
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		n++
	}
	return n
}
