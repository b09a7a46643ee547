package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coldtrack-sync/internal/models"

	"go.uber.org/zap"
)

// Reconciliation errors
var (
	ErrMissingStart   = errors.New("event has no start_ts")
	ErrMissingID      = errors.New("event has no external id")
	ErrCameraNotFound = errors.New("no camera registered for device")
)

// Outcome result of reconciling one record
type Outcome int

const (
	OutcomeInserted Outcome = iota
	OutcomeUpdated
	OutcomeRetained // retention rule: only duration and max temp rewritten
	OutcomeSkipped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	case OutcomeRetained:
		return "retained"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// count records o into c
func (o Outcome) count(c *models.SyncCounters) {
	c.Processed++
	switch o {
	case OutcomeInserted:
		c.Inserted++
	case OutcomeUpdated:
		c.Updated++
	case OutcomeRetained:
		c.Retained++
	case OutcomeSkipped:
		c.Skipped++
	default:
		c.Errored++
	}
}

// Reconciler the single event reconciliation policy. Every caller (scheduler,
// listeners, backfill, manual trigger) goes through it.
type Reconciler struct {
	events   EventStore
	notifier Notifier
	logger   *zap.Logger
}

// NewReconciler creates a reconciler; notifier may be nil
func NewReconciler(events EventStore, notifier Notifier, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		events:   events,
		notifier: notifier,
		logger:   logger,
	}
}

// Reconcile applies one raw event to the warehouse for cam.
//
// No row for the external id: insert with the computed status. Existing row in
// EN_CURSO and an in-progress raw type: retention, only duration and max temp
// change. Anything else: end, duration, max temp and status are rewritten.
func (r *Reconciler) Reconcile(ctx context.Context, cam *models.Camera, ev models.RawEvent) (Outcome, error) {
	if ev.ExternalID == "" {
		return OutcomeSkipped, ErrMissingID
	}
	if ev.StartTS == nil {
		return OutcomeSkipped, ErrMissingStart
	}

	existing, err := r.events.FindByExternalID(ctx, ev.ExternalID)
	if err != nil {
		return OutcomeFailed, err
	}
	if existing == nil {
		return r.insert(ctx, cam, ev)
	}
	return r.update(ctx, cam, existing, ev)
}

func (r *Reconciler) insert(ctx context.Context, cam *models.Camera, ev models.RawEvent) (Outcome, error) {
	externalID := ev.ExternalID
	row := &models.PersistedEvent{
		CameraID:        cam.ID,
		ExternalID:      &externalID,
		StartedAt:       epoch(*ev.StartTS),
		EndedAt:         finalEnd(ev),
		DurationMinutes: models.DurationMinutes(ev.DurationMS),
		MaxTempC:        ev.MaxTemp,
		Type:            ev.Type,
		Status:          models.ComputeStatus(ev),
	}

	inserted, err := r.events.Insert(ctx, row)
	if err != nil {
		return OutcomeFailed, err
	}
	if !inserted {
		// another writer created the row between lookup and insert
		existing, err := r.events.FindByExternalID(ctx, ev.ExternalID)
		if err != nil {
			return OutcomeFailed, err
		}
		if existing == nil {
			return OutcomeFailed, fmt.Errorf("event %s vanished after insert conflict", ev.ExternalID)
		}
		return r.update(ctx, cam, existing, ev)
	}

	r.logger.Info("Inserted event",
		zap.String("device_id", ev.DeviceID),
		zap.String("external_id", ev.ExternalID),
		zap.String("type", row.Type),
		zap.String("status", row.Status),
	)
	if models.IsFaultType(row.Type) {
		r.notify(ctx, models.NoticeFaultOpened, cam, ev, row)
	}
	return OutcomeInserted, nil
}

func (r *Reconciler) update(ctx context.Context, cam *models.Camera, existing *models.PersistedEvent, ev models.RawEvent) (Outcome, error) {
	duration := models.DurationMinutes(ev.DurationMS)

	if existing.Status == models.StatusInProgress && models.IsInProgressType(ev.Type) {
		err := r.events.Update(ctx, existing.ID, models.EventUpdate{
			DurationMinutes: duration,
			MaxTempC:        ev.MaxTemp,
		})
		if err != nil {
			return OutcomeFailed, err
		}
		r.logger.Debug("Retained in-progress event",
			zap.String("external_id", ev.ExternalID),
			zap.Int64("duration_minutes", duration),
			zap.Float64("max_temp", ev.MaxTemp),
		)
		return OutcomeRetained, nil
	}

	status := models.ComputeStatus(ev)
	end := finalEnd(ev)
	err := r.events.Update(ctx, existing.ID, models.EventUpdate{
		EndedAt:         end,
		SetEnd:          true,
		DurationMinutes: duration,
		MaxTempC:        ev.MaxTemp,
		Status:          &status,
	})
	if err != nil {
		return OutcomeFailed, err
	}

	if existing.Status != status {
		r.logger.Info("Event status changed",
			zap.String("external_id", ev.ExternalID),
			zap.String("from", existing.Status),
			zap.String("to", status),
		)
	}
	if status == models.StatusResolved && existing.Status != models.StatusResolved {
		updated := *existing
		updated.EndedAt = end
		updated.DurationMinutes = duration
		updated.MaxTempC = ev.MaxTemp
		updated.Type = ev.Type
		updated.Status = status
		r.notify(ctx, models.NoticeResolved, cam, ev, &updated)
	}
	return OutcomeUpdated, nil
}

// ReconcileBatch reconciles events of one camera. Failures are logged and
// counted; the batch always runs to the end.
func (r *Reconciler) ReconcileBatch(ctx context.Context, cam *models.Camera, events []models.RawEvent) models.SyncCounters {
	var counters models.SyncCounters
	for _, ev := range events {
		outcome, err := r.Reconcile(ctx, cam, ev)
		outcome.count(&counters)
		if err == nil {
			continue
		}
		if outcome == OutcomeSkipped {
			r.logger.Warn("Skipping malformed event",
				zap.String("device_id", ev.DeviceID),
				zap.String("external_id", ev.ExternalID),
				zap.Error(err),
			)
		} else {
			r.logger.Error("Failed to reconcile event",
				zap.String("device_id", ev.DeviceID),
				zap.String("external_id", ev.ExternalID),
				zap.Error(err),
			)
		}
	}
	return counters
}

func (r *Reconciler) notify(ctx context.Context, kind string, cam *models.Camera, ev models.RawEvent, row *models.PersistedEvent) {
	if r.notifier == nil {
		return
	}
	r.notifier.EventChanged(ctx, models.EventNotice{
		Kind:            kind,
		DeviceID:        ev.DeviceID,
		CameraID:        cam.ID,
		CameraName:      cam.Name,
		ExternalID:      ev.ExternalID,
		Type:            row.Type,
		Status:          row.Status,
		StartedAt:       row.StartedAt,
		EndedAt:         row.EndedAt,
		DurationMinutes: row.DurationMinutes,
		MaxTempC:        row.MaxTempC,
	})
}

func epoch(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// finalEnd fecha_fin for ev; in-progress types are not final and never carry one
func finalEnd(ev models.RawEvent) *time.Time {
	if ev.EndTS == nil || models.IsInProgressType(ev.Type) {
		return nil
	}
	t := epoch(*ev.EndTS)
	return &t
}
