package syncer

import (
	"context"
	"fmt"
	"math"

	"coldtrack-sync/internal/models"

	"go.uber.org/zap"
)

// Ingestor writes raw readings once per (camera, timestamp). Readings are
// never updated.
type Ingestor struct {
	readings ReadingStore
	logger   *zap.Logger
}

func NewIngestor(readings ReadingStore, logger *zap.Logger) *Ingestor {
	return &Ingestor{
		readings: readings,
		logger:   logger,
	}
}

// Ingest stores one reading unless the camera already has one at that second
func (i *Ingestor) Ingest(ctx context.Context, cam *models.Camera, reading models.RawReading, origin string) (Outcome, error) {
	if reading.Timestamp <= 0 {
		return OutcomeSkipped, fmt.Errorf("reading has no timestamp")
	}
	if math.IsNaN(reading.Temperature) || math.IsInf(reading.Temperature, 0) {
		return OutcomeSkipped, fmt.Errorf("reading temperature is not numeric")
	}

	ts := epoch(reading.Timestamp)
	exists, err := i.readings.Exists(ctx, cam.ID, ts)
	if err != nil {
		return OutcomeFailed, err
	}
	if exists {
		return OutcomeSkipped, nil
	}

	inserted, err := i.readings.Insert(ctx, models.PersistedReading{
		CameraID:     cam.ID,
		Timestamp:    ts,
		TemperatureC: reading.Temperature,
		Origin:       origin,
	})
	if err != nil {
		return OutcomeFailed, err
	}
	if !inserted {
		return OutcomeSkipped, nil
	}
	return OutcomeInserted, nil
}

// IngestBatch ingests readings of one camera; failures are logged and counted
func (i *Ingestor) IngestBatch(ctx context.Context, cam *models.Camera, readings []models.RawReading, origin string) models.SyncCounters {
	var counters models.SyncCounters
	for _, reading := range readings {
		outcome, err := i.Ingest(ctx, cam, reading, origin)
		outcome.count(&counters)
		if err == nil {
			continue
		}
		if outcome == OutcomeSkipped {
			i.logger.Warn("Skipping malformed reading",
				zap.String("device_id", reading.DeviceID),
				zap.Int64("ts", reading.Timestamp),
				zap.Error(err),
			)
		} else {
			i.logger.Error("Failed to ingest reading",
				zap.String("device_id", reading.DeviceID),
				zap.Int64("ts", reading.Timestamp),
				zap.Error(err),
			)
		}
	}

	if counters.Inserted > 0 {
		i.logger.Debug("Ingested readings",
			zap.Int64("camera_id", cam.ID),
			zap.Int("inserted", counters.Inserted),
			zap.Int("processed", counters.Processed),
		)
	}
	return counters
}
