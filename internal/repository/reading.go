package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"coldtrack-sync/internal/models"

	"go.uber.org/zap"
)

// ReadingRepository lecturas_temperatura, unique per (camara_id, timestamp)
type ReadingRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewReadingRepository creates a reading repository
func NewReadingRepository(db *sql.DB, logger *zap.Logger) *ReadingRepository {
	return &ReadingRepository{
		db:     db,
		logger: logger,
	}
}

// Exists reports whether a reading is stored for the camera at ts
func (r *ReadingRepository) Exists(ctx context.Context, cameraID int64, ts time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM lecturas_temperatura
			WHERE camara_id = $1 AND "timestamp" = $2
		)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, cameraID, ts).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check reading for camera %d: %w", cameraID, err)
	}
	return exists, nil
}

// Insert writes a reading; false when (camara_id, timestamp) is already taken
func (r *ReadingRepository) Insert(ctx context.Context, reading models.PersistedReading) (bool, error) {
	query := `
		INSERT INTO lecturas_temperatura (camara_id, "timestamp", temperatura_c, origen)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (camara_id, "timestamp") DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query,
		reading.CameraID,
		reading.Timestamp,
		reading.TemperatureC,
		reading.Origin,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert reading for camera %d: %w", reading.CameraID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to insert reading for camera %d: %w", reading.CameraID, err)
	}
	return n > 0, nil
}
