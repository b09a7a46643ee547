package syncer

import (
	"context"
	"errors"
	"fmt"

	"coldtrack-sync/internal/models"

	"go.uber.org/zap"
)

// DeviceBatch records read for one device in one pass
type DeviceBatch struct {
	DeviceID string
	Events   []models.RawEvent
	Readings []models.RawReading
	Origin   string // reading origin tag
}

// DeviceResult counters of one DeviceBatch
type DeviceResult struct {
	Camera   *models.Camera
	Events   models.SyncCounters
	Readings models.SyncCounters
}

// Engine resolves the device's camera once and routes a batch through the
// Reconciler and the Ingestor.
type Engine struct {
	cameras    CameraStore
	reconciler *Reconciler
	ingestor   *Ingestor
	logger     *zap.Logger
}

func NewEngine(cameras CameraStore, reconciler *Reconciler, ingestor *Ingestor, logger *zap.Logger) *Engine {
	return &Engine{
		cameras:    cameras,
		reconciler: reconciler,
		ingestor:   ingestor,
		logger:     logger,
	}
}

// Camera resolves the camera for deviceID; ErrCameraNotFound when unregistered
func (e *Engine) Camera(ctx context.Context, deviceID string) (*models.Camera, error) {
	cam, err := e.cameras.FindByDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if cam == nil {
		return nil, fmt.Errorf("%w: %s", ErrCameraNotFound, deviceID)
	}
	return cam, nil
}

// SyncDevice reconciles the batch's events then ingests its readings. An
// unknown device counts every record as skipped and returns ErrCameraNotFound;
// a failed lookup counts them as errored.
func (e *Engine) SyncDevice(ctx context.Context, batch DeviceBatch) (DeviceResult, error) {
	var result DeviceResult

	cam, err := e.Camera(ctx, batch.DeviceID)
	if err != nil {
		result.Events.Processed = len(batch.Events)
		result.Readings.Processed = len(batch.Readings)
		if errors.Is(err, ErrCameraNotFound) {
			result.Events.Skipped = len(batch.Events)
			result.Readings.Skipped = len(batch.Readings)
		} else {
			result.Events.Errored = len(batch.Events)
			result.Readings.Errored = len(batch.Readings)
		}
		return result, err
	}
	result.Camera = cam

	origin := batch.Origin
	if origin == "" {
		origin = models.OriginStatus
	}

	result.Events = e.reconciler.ReconcileBatch(ctx, cam, batch.Events)
	result.Readings = e.ingestor.IngestBatch(ctx, cam, batch.Readings, origin)
	return result, nil
}

// ReconcileEvent single-event path used by listeners
func (e *Engine) ReconcileEvent(ctx context.Context, ev models.RawEvent) (Outcome, error) {
	cam, err := e.Camera(ctx, ev.DeviceID)
	if err != nil {
		return OutcomeSkipped, err
	}
	return e.reconciler.Reconcile(ctx, cam, ev)
}

// IngestReading single-reading path used by listeners
func (e *Engine) IngestReading(ctx context.Context, reading models.RawReading) (Outcome, error) {
	cam, err := e.Camera(ctx, reading.DeviceID)
	if err != nil {
		return OutcomeSkipped, err
	}
	return e.ingestor.Ingest(ctx, cam, reading, models.OriginStatus)
}
