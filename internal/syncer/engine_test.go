package syncer

import (
	"context"
	"math"
	"testing"
	"time"

	"coldtrack-sync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestEngine(w *fakeWarehouse, n Notifier) *Engine {
	logger := zap.NewNop()
	return NewEngine(
		w,
		NewReconciler(fakeEventStore{w}, n, logger),
		NewIngestor(fakeReadingStore{w}, logger),
		logger,
	)
}

func TestIngest_FirstValueWins(t *testing.T) {
	w := newFakeWarehouse()
	ing := NewIngestor(fakeReadingStore{w}, zap.NewNop())
	ctx := context.Background()

	outcome, err := ing.Ingest(ctx, camara1, models.RawReading{DeviceID: "camara1", Timestamp: 1700000000, Temperature: -18.2}, models.OriginStatus)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInserted, outcome)

	outcome, err = ing.Ingest(ctx, camara1, models.RawReading{DeviceID: "camara1", Timestamp: 1700000000, Temperature: -10}, models.OriginBackfill)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)

	rows := w.readingsFor(1)
	require.Len(t, rows, 1)
	assert.Equal(t, -18.2, rows[0].TemperatureC)
	assert.Equal(t, models.OriginStatus, rows[0].Origin)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), rows[0].Timestamp)
}

func TestIngest_InvalidReadings(t *testing.T) {
	w := newFakeWarehouse()
	ing := NewIngestor(fakeReadingStore{w}, zap.NewNop())

	counters := ing.IngestBatch(context.Background(), camara1, []models.RawReading{
		{DeviceID: "camara1", Timestamp: 0, Temperature: 1},
		{DeviceID: "camara1", Timestamp: 1700000000, Temperature: math.NaN()},
		{DeviceID: "camara1", Timestamp: 1700000060, Temperature: 2},
	}, models.OriginStatus)

	assert.Equal(t, 3, counters.Processed)
	assert.Equal(t, 1, counters.Inserted)
	assert.Equal(t, 2, counters.Skipped)
}

func TestEngine_EndToEnd(t *testing.T) {
	w := newFakeWarehouse()
	e := newTestEngine(w, nil)
	ctx := context.Background()

	batch := DeviceBatch{
		DeviceID: "camara1",
		Events: []models.RawEvent{{
			DeviceID:   "camara1",
			ExternalID: "evt1",
			StartTS:    i64(1700000000),
			EndTS:      i64(1700005400),
			DurationMS: 5400000,
			MaxTemp:    4.1,
			Type:       models.TypeDefrostNormal,
		}},
		Readings: []models.RawReading{
			{DeviceID: "camara1", Timestamp: 1700000000, Temperature: -18},
			{DeviceID: "camara1", Timestamp: 1700000060, Temperature: -17.5},
		},
	}

	result, err := e.SyncDevice(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Camera.ID)
	assert.Equal(t, 1, result.Events.Inserted)
	assert.Equal(t, 2, result.Readings.Inserted)

	// replaying the same pass changes nothing
	result, err = e.SyncDevice(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Events.Inserted)
	assert.Equal(t, 1, result.Events.Updated)
	assert.Equal(t, 2, result.Readings.Skipped)

	rows := w.eventsByExternalID("evt1")
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].CameraID)
	assert.Equal(t, int64(90), rows[0].DurationMinutes)
	assert.Equal(t, models.StatusResolved, rows[0].Status)
	assert.Len(t, w.readingsFor(1), 2)
}

func TestEngine_UnknownDeviceSkipsAll(t *testing.T) {
	w := newFakeWarehouse()
	e := newTestEngine(w, nil)

	result, err := e.SyncDevice(context.Background(), DeviceBatch{
		DeviceID: "camara9",
		Events:   []models.RawEvent{{DeviceID: "camara9", ExternalID: "e", StartTS: i64(1)}},
		Readings: []models.RawReading{{DeviceID: "camara9", Timestamp: 1, Temperature: 1}},
	})
	assert.ErrorIs(t, err, ErrCameraNotFound)
	assert.Equal(t, 1, result.Events.Skipped)
	assert.Equal(t, 1, result.Readings.Skipped)
	assert.Equal(t, 0, w.eventCount())
}

func TestEngine_LookupFailureCountsErrored(t *testing.T) {
	w := newFakeWarehouse()
	w.failLookups = true
	e := newTestEngine(w, nil)

	result, err := e.SyncDevice(context.Background(), DeviceBatch{
		DeviceID: "camara1",
		Events:   []models.RawEvent{{DeviceID: "camara1", ExternalID: "e", StartTS: i64(1)}},
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCameraNotFound)
	assert.Equal(t, 1, result.Events.Errored)
}

func TestEngine_BackfillOriginTag(t *testing.T) {
	w := newFakeWarehouse()
	e := newTestEngine(w, nil)

	_, err := e.SyncDevice(context.Background(), DeviceBatch{
		DeviceID: "camara2",
		Readings: []models.RawReading{{DeviceID: "camara2", Timestamp: 1700000000, Temperature: 1}},
		Origin:   models.OriginBackfill,
	})
	require.NoError(t, err)
	rows := w.readingsFor(2)
	require.Len(t, rows, 1)
	assert.Equal(t, models.OriginBackfill, rows[0].Origin)
}
