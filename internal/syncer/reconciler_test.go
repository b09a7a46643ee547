package syncer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"coldtrack-sync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestReconciler(w *fakeWarehouse, n Notifier) *Reconciler {
	return NewReconciler(fakeEventStore{w}, n, zap.NewNop())
}

var camara1 = &models.Camera{ID: 1, Name: "Camara 1", DevicePath: "camara1", Active: true}

func TestReconcile_InsertThenIdempotent(t *testing.T) {
	w := newFakeWarehouse()
	r := newTestReconciler(w, nil)
	ctx := context.Background()

	ev := models.RawEvent{
		DeviceID:   "camara1",
		ExternalID: "evt1",
		StartTS:    i64(1700000000),
		EndTS:      i64(1700005400),
		DurationMS: 5400000,
		MaxTemp:    -2.5,
		Type:       models.TypeDefrostNormal,
	}

	outcome, err := r.Reconcile(ctx, camara1, ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInserted, outcome)

	for i := 0; i < 3; i++ {
		outcome, err = r.Reconcile(ctx, camara1, ev)
		require.NoError(t, err)
		assert.Equal(t, OutcomeUpdated, outcome)
	}

	rows := w.eventsByExternalID("evt1")
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, int64(90), row.DurationMinutes)
	assert.Equal(t, models.StatusResolved, row.Status)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), row.StartedAt)
	require.NotNil(t, row.EndedAt)
	assert.Equal(t, time.Unix(1700005400, 0).UTC(), *row.EndedAt)
	assert.Equal(t, -2.5, row.MaxTempC)
}

func TestReconcile_InsertInProgress(t *testing.T) {
	w := newFakeWarehouse()
	r := newTestReconciler(w, nil)

	outcome, err := r.Reconcile(context.Background(), camara1, models.RawEvent{
		DeviceID:   "camara1",
		ExternalID: "evt-open",
		StartTS:    i64(1700000000),
		DurationMS: 0,
		Type:       models.TypeFaultInProgress,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeInserted, outcome)

	rows := w.eventsByExternalID("evt-open")
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatusInProgress, rows[0].Status)
	assert.Equal(t, int64(0), rows[0].DurationMinutes)
	assert.Nil(t, rows[0].EndedAt)
}

func TestReconcile_InsertInProgressIgnoresEndTS(t *testing.T) {
	w := newFakeWarehouse()
	r := newTestReconciler(w, nil)

	outcome, err := r.Reconcile(context.Background(), camara1, models.RawEvent{
		DeviceID:   "camara1",
		ExternalID: "evt-open-end",
		StartTS:    i64(1700000000),
		EndTS:      i64(1700000600),
		Ended:      true,
		DurationMS: 600000,
		MaxTemp:    9.2,
		Type:       models.TypeFaultInProgress,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeInserted, outcome)

	rows := w.eventsByExternalID("evt-open-end")
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatusInProgress, rows[0].Status)
	assert.Nil(t, rows[0].EndedAt)
	assert.Equal(t, int64(10), rows[0].DurationMinutes)
}

func TestReconcile_LegacyRowWithInProgressTypeClearsEnd(t *testing.T) {
	w := newFakeWarehouse()
	id := "evt-legacy-open"
	end := time.Unix(1700000600, 0).UTC()
	w.insertLegacy(models.PersistedEvent{
		CameraID:   1,
		ExternalID: &id,
		StartedAt:  time.Unix(1700000000, 0).UTC(),
		EndedAt:    &end,
		Type:       models.TypeFaultInProgress,
		Status:     models.StatusDetected,
	})
	r := newTestReconciler(w, nil)

	outcome, err := r.Reconcile(context.Background(), camara1, models.RawEvent{
		DeviceID:   "camara1",
		ExternalID: id,
		StartTS:    i64(1700000000),
		EndTS:      i64(1700000600),
		DurationMS: 600000,
		Type:       models.TypeFaultInProgress,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)

	row := w.eventsByExternalID(id)[0]
	assert.Equal(t, models.StatusInProgress, row.Status)
	assert.Nil(t, row.EndedAt)
}

func TestReconcile_RetainsInProgress(t *testing.T) {
	w := newFakeWarehouse()
	r := newTestReconciler(w, nil)
	ctx := context.Background()

	ev := models.RawEvent{
		DeviceID:   "camara1",
		ExternalID: "evt2",
		StartTS:    i64(1700000000),
		DurationMS: 60000,
		MaxTemp:    3.0,
		Type:       models.TypeFaultInProgress,
	}
	_, err := r.Reconcile(ctx, camara1, ev)
	require.NoError(t, err)

	// firmware reports a provisional end while the fault is still open
	ev.EndTS = i64(1700000600)
	ev.DurationMS = 600000
	ev.MaxTemp = 7.5
	outcome, err := r.Reconcile(ctx, camara1, ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRetained, outcome)

	row := w.eventsByExternalID("evt2")[0]
	assert.Equal(t, models.StatusInProgress, row.Status)
	assert.Nil(t, row.EndedAt, "retention must not touch fecha_fin")
	assert.Equal(t, int64(10), row.DurationMinutes)
	assert.Equal(t, 7.5, row.MaxTempC)
}

func TestReconcile_ClosesInProgress(t *testing.T) {
	w := newFakeWarehouse()
	n := &recordingNotifier{}
	r := newTestReconciler(w, n)
	ctx := context.Background()

	ev := models.RawEvent{
		DeviceID:   "camara1",
		ExternalID: "evt3",
		StartTS:    i64(1700000000),
		Type:       models.TypeFaultInProgress,
	}
	_, err := r.Reconcile(ctx, camara1, ev)
	require.NoError(t, err)

	ev.Type = models.TypeFault
	ev.EndTS = i64(1700001800)
	ev.DurationMS = 1800000
	ev.MaxTemp = 9
	outcome, err := r.Reconcile(ctx, camara1, ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)

	row := w.eventsByExternalID("evt3")[0]
	assert.Equal(t, models.StatusResolved, row.Status)
	require.NotNil(t, row.EndedAt)
	assert.Equal(t, time.Unix(1700001800, 0).UTC(), *row.EndedAt)
	assert.Equal(t, int64(30), row.DurationMinutes)

	notices := n.all()
	require.Len(t, notices, 2)
	assert.Equal(t, models.NoticeFaultOpened, notices[0].Kind)
	assert.Equal(t, models.NoticeResolved, notices[1].Kind)
	assert.Equal(t, "Camara 1", notices[1].CameraName)
	assert.Equal(t, int64(30), notices[1].DurationMinutes)

	// repeating the closed event does not notify again
	_, err = r.Reconcile(ctx, camara1, ev)
	require.NoError(t, err)
	assert.Len(t, n.all(), 2)
}

func TestReconcile_NoNoticeForDefrost(t *testing.T) {
	w := newFakeWarehouse()
	n := &recordingNotifier{}
	r := newTestReconciler(w, n)

	_, err := r.Reconcile(context.Background(), camara1, models.RawEvent{
		DeviceID:   "camara1",
		ExternalID: "evt-defrost",
		StartTS:    i64(1700000000),
		Type:       models.TypeDefrostScheduled,
	})
	require.NoError(t, err)
	assert.Empty(t, n.all())
}

func TestReconcile_ExistingLegacyStatusIsRecomputed(t *testing.T) {
	w := newFakeWarehouse()
	id := "evt-legacy"
	w.insertLegacy(models.PersistedEvent{
		CameraID:   1,
		ExternalID: &id,
		StartedAt:  time.Unix(1700000000, 0).UTC(),
		Type:       models.TypeFault,
		Status:     models.StatusDetected,
	})
	r := newTestReconciler(w, nil)

	outcome, err := r.Reconcile(context.Background(), camara1, models.RawEvent{
		DeviceID:   "camara1",
		ExternalID: id,
		StartTS:    i64(1700000000),
		EndTS:      i64(1700000120),
		DurationMS: 120000,
		Type:       models.TypeFault,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Equal(t, models.StatusResolved, w.eventsByExternalID(id)[0].Status)
}

func TestReconcile_DurationConversion(t *testing.T) {
	cases := []struct {
		ms   int64
		want int64
	}{
		{5400000, 90},
		{0, 0},
		{59999, 0},
		{60000, 1},
		{-1000, 0},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%dms", tc.ms), func(t *testing.T) {
			w := newFakeWarehouse()
			r := newTestReconciler(w, nil)
			_, err := r.Reconcile(context.Background(), camara1, models.RawEvent{
				DeviceID:   "camara1",
				ExternalID: "evt-dur",
				StartTS:    i64(1700000000),
				DurationMS: tc.ms,
				Type:       models.TypeDefrostNormal,
			})
			require.NoError(t, err)
			assert.Equal(t, tc.want, w.eventsByExternalID("evt-dur")[0].DurationMinutes)
		})
	}
}

func TestReconcile_MissingFields(t *testing.T) {
	w := newFakeWarehouse()
	r := newTestReconciler(w, nil)
	ctx := context.Background()

	outcome, err := r.Reconcile(ctx, camara1, models.RawEvent{DeviceID: "camara1", ExternalID: "evt-x"})
	assert.ErrorIs(t, err, ErrMissingStart)
	assert.Equal(t, OutcomeSkipped, outcome)

	outcome, err = r.Reconcile(ctx, camara1, models.RawEvent{DeviceID: "camara1", StartTS: i64(1)})
	assert.ErrorIs(t, err, ErrMissingID)
	assert.Equal(t, OutcomeSkipped, outcome)

	assert.Equal(t, 0, w.eventCount())
}

func TestReconcile_LostInsertRaceFallsBackToUpdate(t *testing.T) {
	w := newFakeWarehouse()
	r := newTestReconciler(w, nil)
	id := "evt-race"

	// a concurrent writer creates the row between lookup and insert
	w.insertRaceHook = func(externalID string) {
		w.insertRaceHook = nil
		w.insertLegacy(models.PersistedEvent{
			CameraID:   1,
			ExternalID: &id,
			StartedAt:  time.Unix(1700000000, 0).UTC(),
			Type:       models.TypeFault,
			Status:     models.StatusDetected,
		})
	}

	outcome, err := r.Reconcile(context.Background(), camara1, models.RawEvent{
		DeviceID:   "camara1",
		ExternalID: id,
		StartTS:    i64(1700000000),
		EndTS:      i64(1700000300),
		DurationMS: 300000,
		Type:       models.TypeFault,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)

	rows := w.eventsByExternalID(id)
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatusResolved, rows[0].Status)
	assert.Equal(t, int64(5), rows[0].DurationMinutes)
}

func TestReconcileBatch_MalformedRecordDoesNotAbort(t *testing.T) {
	w := newFakeWarehouse()
	r := newTestReconciler(w, nil)

	var events []models.RawEvent
	for i := 0; i < 10; i++ {
		ev := models.RawEvent{
			DeviceID:   "camara1",
			ExternalID: fmt.Sprintf("evt-%d", i),
			StartTS:    i64(1700000000 + int64(i)*60),
			Type:       models.TypeDefrostNormal,
		}
		if i == 4 {
			ev.StartTS = nil
		}
		events = append(events, ev)
	}

	counters := r.ReconcileBatch(context.Background(), camara1, events)
	assert.Equal(t, 10, counters.Processed)
	assert.Equal(t, 9, counters.Inserted)
	assert.Equal(t, 1, counters.Skipped)
	assert.Equal(t, 0, counters.Errored)
	assert.Equal(t, 9, w.eventCount())
}

func TestReconcileBatch_StoreFailureCounted(t *testing.T) {
	w := newFakeWarehouse()
	w.failInsertFor["evt-b"] = true
	r := newTestReconciler(w, nil)

	counters := r.ReconcileBatch(context.Background(), camara1, []models.RawEvent{
		{DeviceID: "camara1", ExternalID: "evt-a", StartTS: i64(1), Type: models.TypeFault},
		{DeviceID: "camara1", ExternalID: "evt-b", StartTS: i64(2), Type: models.TypeFault},
		{DeviceID: "camara1", ExternalID: "evt-c", StartTS: i64(3), Type: models.TypeFault},
	})
	assert.Equal(t, 2, counters.Inserted)
	assert.Equal(t, 1, counters.Errored)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "inserted", OutcomeInserted.String())
	assert.Equal(t, "retained", OutcomeRetained.String())
	assert.Equal(t, "failed", OutcomeFailed.String())
	assert.True(t, errors.Is(fmt.Errorf("wrap: %w", ErrCameraNotFound), ErrCameraNotFound))
}
