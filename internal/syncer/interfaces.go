package syncer

import (
	"context"
	"time"

	"coldtrack-sync/internal/livestore"
	"coldtrack-sync/internal/models"
)

// LiveStore read side of the live store
type LiveStore interface {
	Devices(ctx context.Context) ([]string, error)
	Events(ctx context.Context, deviceID string, date time.Time) ([]models.RawEvent, error)
	AllEvents(ctx context.Context, deviceID string) ([]models.RawEvent, error)
	Event(ctx context.Context, deviceID string, date time.Time, eventID string) (*models.RawEvent, error)
	Readings(ctx context.Context, deviceID string, date time.Time) ([]models.RawReading, error)
	AllReadings(ctx context.Context, deviceID string) ([]models.RawReading, error)
	LiveSnapshot(ctx context.Context, deviceID string) (*models.LiveSnapshot, error)
}

// Subscriber change notifications from the live store
type Subscriber interface {
	Subscribe(ctx context.Context, path string, handler livestore.Handler) error
}

// CameraStore resolves devices to warehouse cameras
type CameraStore interface {
	FindByDevice(ctx context.Context, deviceID string) (*models.Camera, error)
}

// EventStore eventos_temperatura keyed by external id
type EventStore interface {
	FindByExternalID(ctx context.Context, externalID string) (*models.PersistedEvent, error)
	Insert(ctx context.Context, ev *models.PersistedEvent) (bool, error)
	Update(ctx context.Context, id int64, upd models.EventUpdate) error
}

// ReadingStore lecturas_temperatura keyed by (camera, timestamp)
type ReadingStore interface {
	Exists(ctx context.Context, cameraID int64, ts time.Time) (bool, error)
	Insert(ctx context.Context, reading models.PersistedReading) (bool, error)
}

// SummaryStore resumen_diario_camara
type SummaryStore interface {
	Upsert(ctx context.Context, summary models.DailySummary) error
}

// UserStore usuarios keyed by external uid
type UserStore interface {
	FindByExternalID(ctx context.Context, uid string) (*models.User, error)
	Insert(ctx context.Context, u *models.User) (bool, error)
	UpdateProfile(ctx context.Context, u models.User) error
}

// UserSource identity provider account listing
type UserSource interface {
	ListUsers(ctx context.Context) ([]models.ExternalUser, error)
}

// Notifier receives fault-opened and resolved notices
type Notifier interface {
	EventChanged(ctx context.Context, notice models.EventNotice)
}

// RunPublisher receives cycle reports
type RunPublisher interface {
	PublishRun(ctx context.Context, kind string, report any)
}

// SeenCache best-effort suppression of repeated listener notifications
type SeenCache interface {
	Seen(ctx context.Context, ev models.RawEvent) bool
	Mark(ctx context.Context, ev models.RawEvent)
}

// LiveCache holds the latest snapshot per device
type LiveCache interface {
	Put(ctx context.Context, snap models.LiveSnapshot) error
}
