package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"coldtrack-sync/internal/livestore"
	"coldtrack-sync/internal/models"

	"go.uber.org/zap"
)

// Listeners keeps one deviceWatch per device subscribed to the current day's
// event and status nodes, and re-subscribes when the local day rolls over.
type Listeners struct {
	sub        Subscriber
	live       LiveStore
	engine     *Engine
	seen       SeenCache
	loc        *time.Location
	retryDelay time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewListeners creates the listener set; seen may be nil
func NewListeners(sub Subscriber, live LiveStore, engine *Engine, seen SeenCache, loc *time.Location, logger *zap.Logger) *Listeners {
	if loc == nil {
		loc = time.Local
	}
	return &Listeners{
		sub:        sub,
		live:       live,
		engine:     engine,
		seen:       seen,
		loc:        loc,
		retryDelay: 5 * time.Second,
		logger:     logger,
		now:        time.Now,
	}
}

// deviceWatch explicit per-device subscription context
type deviceWatch struct {
	deviceID string
	date     time.Time
	l        *Listeners
}

// Run blocks until ctx is done
func (l *Listeners) Run(ctx context.Context, devices []string) {
	for {
		today := l.now().In(l.loc)
		dayCtx, cancel := context.WithCancel(ctx)

		var wg sync.WaitGroup
		for _, deviceID := range devices {
			w := &deviceWatch{deviceID: deviceID, date: today, l: l}
			wg.Add(2)
			go func() {
				defer wg.Done()
				w.watch(dayCtx, livestore.EventDayPath(w.deviceID, w.date, l.loc), w.onEventChange)
			}()
			go func() {
				defer wg.Done()
				w.watch(dayCtx, livestore.StatusDayPath(w.deviceID, w.date, l.loc), w.onReadingChange)
			}()
		}
		l.logger.Info("Change listeners subscribed",
			zap.Int("devices", len(devices)),
			zap.String("date", today.Format("2006-01-02")),
		)

		rollover := time.NewTimer(untilNextDay(l.now().In(l.loc)))
		select {
		case <-ctx.Done():
		case <-rollover.C:
		}
		rollover.Stop()
		cancel()
		wg.Wait()

		if ctx.Err() != nil {
			return
		}
		if refreshed, err := l.live.Devices(ctx); err != nil {
			l.logger.Warn("Failed to refresh device list on day rollover", zap.Error(err))
		} else {
			devices = refreshed
		}
	}
}

func untilNextDay(now time.Time) time.Duration {
	y, m, d := now.Date()
	next := time.Date(y, m, d+1, 0, 0, 1, 0, now.Location())
	return next.Sub(now)
}

// watch keeps a subscription open, reconnecting after stream failures
func (w *deviceWatch) watch(ctx context.Context, path string, handler livestore.Handler) {
	for {
		err := w.l.sub.Subscribe(ctx, path, handler)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, livestore.ErrAuthRevoked) {
			w.l.logger.Warn("Listener auth revoked, reconnecting", zap.String("path", path))
		} else {
			w.l.logger.Warn("Listener stream ended, reconnecting", zap.String("path", path), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.l.retryDelay):
		}
	}
}

// onEventChange handles changes below eventos/{device}/{y}/{m}/{d}
func (w *deviceWatch) onEventChange(ctx context.Context, change livestore.Change) {
	segments := change.Segments()

	switch {
	case change.Event == livestore.ChangePut && len(segments) == 0:
		events, errs := livestore.ParseEventDay(w.deviceID, change.Data)
		w.logShapeErrors(errs)
		for _, ev := range events {
			w.handleEvent(ctx, ev)
		}
	case change.Event == livestore.ChangePut && len(segments) == 1:
		if isNullJSON(change.Data) {
			return
		}
		ev, err := livestore.ParseEventNode(w.deviceID, segments[0], change.Data)
		if err != nil {
			w.logShapeErrors([]error{err})
			return
		}
		w.handleEvent(ctx, ev)
	default:
		// partial update: refetch each touched event node
		for _, id := range touchedChildren(change) {
			ev, err := w.l.live.Event(ctx, w.deviceID, w.date, id)
			if err != nil {
				w.l.logger.Warn("Failed to refetch changed event",
					zap.String("device_id", w.deviceID),
					zap.String("external_id", id),
					zap.Error(err),
				)
				continue
			}
			if ev != nil {
				w.handleEvent(ctx, *ev)
			}
		}
	}
}

func (w *deviceWatch) handleEvent(ctx context.Context, ev models.RawEvent) {
	if w.l.seen != nil && w.l.seen.Seen(ctx, ev) {
		return
	}

	outcome, err := w.l.engine.ReconcileEvent(ctx, ev)
	if err != nil {
		w.l.logger.Warn("Listener reconciliation failed",
			zap.String("device_id", ev.DeviceID),
			zap.String("external_id", ev.ExternalID),
			zap.String("outcome", outcome.String()),
			zap.Error(err),
		)
		return
	}
	if w.l.seen != nil && outcome != OutcomeFailed && outcome != OutcomeSkipped {
		w.l.seen.Mark(ctx, ev)
	}
	w.l.logger.Debug("Listener reconciled event",
		zap.String("device_id", ev.DeviceID),
		zap.String("external_id", ev.ExternalID),
		zap.String("outcome", outcome.String()),
	)
}

// onReadingChange handles changes below status/{device}/{y}/{m}/{d}. Readings
// are immutable, so only new timestamp children matter.
func (w *deviceWatch) onReadingChange(ctx context.Context, change livestore.Change) {
	segments := change.Segments()

	var readings []models.RawReading
	switch {
	case len(segments) == 0:
		var errs []error
		if change.Event == livestore.ChangePut {
			readings, errs = livestore.ParseReadingDay(w.deviceID, change.Data)
		} else {
			readings, errs = parsePatchedReadings(w.deviceID, change.Data)
		}
		w.logShapeErrors(errs)
	case len(segments) == 1 && change.Event == livestore.ChangePut:
		if segments[0] == livestore.LiveKey || isNullJSON(change.Data) {
			return
		}
		r, err := livestore.ParseReadingNode(w.deviceID, segments[0], change.Data)
		if err != nil {
			w.logShapeErrors([]error{err})
			return
		}
		readings = append(readings, r)
	default:
		return
	}

	for _, r := range readings {
		if _, err := w.l.engine.IngestReading(ctx, r); err != nil {
			w.l.logger.Warn("Listener reading ingest failed",
				zap.String("device_id", r.DeviceID),
				zap.Int64("ts", r.Timestamp),
				zap.Error(err),
			)
		}
	}
}

func (w *deviceWatch) logShapeErrors(errs []error) {
	for _, err := range errs {
		w.l.logger.Warn("Skipping malformed node",
			zap.String("device_id", w.deviceID),
			zap.Error(err),
		)
	}
}

// parsePatchedReadings handles a patch at the day node: keys are timestamps,
// multi-location keys ("ts/temp") are ignored.
func parsePatchedReadings(deviceID string, data json.RawMessage) ([]models.RawReading, []error) {
	var children map[string]json.RawMessage
	if err := json.Unmarshal(data, &children); err != nil {
		return nil, []error{&livestore.ShapeError{Path: "status/" + deviceID, Reason: err.Error()}}
	}
	var readings []models.RawReading
	var errs []error
	for key, raw := range children {
		if key == livestore.LiveKey || strings.Contains(key, "/") || isNullJSON(raw) {
			continue
		}
		r, err := livestore.ParseReadingNode(deviceID, key, raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		readings = append(readings, r)
	}
	return readings, errs
}

// touchedChildren event ids affected by a patch or a deep put
func touchedChildren(change livestore.Change) []string {
	if segments := change.Segments(); len(segments) > 0 {
		return []string{segments[0]}
	}
	var children map[string]json.RawMessage
	if err := json.Unmarshal(change.Data, &children); err != nil {
		return nil
	}
	seen := make(map[string]bool, len(children))
	var ids []string
	for key := range children {
		id, _, _ := strings.Cut(strings.Trim(key, "/"), "/")
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

func isNullJSON(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}
