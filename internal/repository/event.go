package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"coldtrack-sync/internal/models"

	"go.uber.org/zap"
)

// EventRepository eventos_temperatura, keyed by firebase_event_id
type EventRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEventRepository creates an event repository
func NewEventRepository(db *sql.DB, logger *zap.Logger) *EventRepository {
	return &EventRepository{
		db:     db,
		logger: logger,
	}
}

const eventColumns = `
	id, camara_id, firebase_event_id, fecha_inicio, fecha_fin,
	COALESCE(duracion_minutos, 0), temp_max_c, tipo, estado, observaciones, created_at
`

// FindByExternalID returns nil, nil when no row carries the id
func (r *EventRepository) FindByExternalID(ctx context.Context, externalID string) (*models.PersistedEvent, error) {
	if externalID == "" {
		return nil, fmt.Errorf("external id is required")
	}

	query := `SELECT ` + eventColumns + `
		FROM eventos_temperatura
		WHERE firebase_event_id = $1
		ORDER BY id
		LIMIT 1
	`

	ev, err := scanEvent(r.db.QueryRowContext(ctx, query, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find event %s: %w", externalID, err)
	}
	return ev, nil
}

// Insert writes a new row. inserted is false when another writer already
// holds the external id; the row is left untouched in that case.
func (r *EventRepository) Insert(ctx context.Context, ev *models.PersistedEvent) (inserted bool, err error) {
	if ev.ExternalID == nil || *ev.ExternalID == "" {
		return false, fmt.Errorf("external id is required for new events")
	}

	query := `
		INSERT INTO eventos_temperatura (
			camara_id, firebase_event_id, fecha_inicio, fecha_fin,
			duracion_minutos, temp_max_c, tipo, estado, observaciones
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (firebase_event_id) WHERE firebase_event_id IS NOT NULL DO NOTHING
		RETURNING id, created_at
	`

	err = r.db.QueryRowContext(ctx, query,
		ev.CameraID,
		*ev.ExternalID,
		ev.StartedAt,
		nullTime(ev.EndedAt),
		ev.DurationMinutes,
		ev.MaxTempC,
		ev.Type,
		ev.Status,
		nullString(ev.Notes),
	).Scan(&ev.ID, &ev.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert event %s: %w", *ev.ExternalID, err)
	}
	return true, nil
}

// Update rewrites the mutable columns of row id
func (r *EventRepository) Update(ctx context.Context, id int64, upd models.EventUpdate) error {
	query := `
		UPDATE eventos_temperatura SET
			duracion_minutos = $2,
			temp_max_c = $3,
			fecha_fin = CASE WHEN $4::boolean THEN $5::timestamptz ELSE fecha_fin END,
			estado = COALESCE($6::text, estado)
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		id,
		upd.DurationMinutes,
		upd.MaxTempC,
		upd.SetEnd,
		nullTime(upd.EndedAt),
		nullString(upd.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to update event %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update event %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.PersistedEvent, error) {
	var ev models.PersistedEvent
	var externalID, notes sql.NullString
	var endedAt sql.NullTime

	err := row.Scan(
		&ev.ID,
		&ev.CameraID,
		&externalID,
		&ev.StartedAt,
		&endedAt,
		&ev.DurationMinutes,
		&ev.MaxTempC,
		&ev.Type,
		&ev.Status,
		&notes,
		&ev.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if externalID.Valid {
		ev.ExternalID = &externalID.String
	}
	if endedAt.Valid {
		t := endedAt.Time
		ev.EndedAt = &t
	}
	if notes.Valid {
		ev.Notes = &notes.String
	}
	return &ev, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
