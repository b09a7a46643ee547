package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"coldtrack-sync/internal/models"

	"go.uber.org/zap"
)

// ErrNotFound row does not exist
var ErrNotFound = errors.New("not found")

// CameraRepository reads camaras_frio
type CameraRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCameraRepository creates a camera repository
func NewCameraRepository(db *sql.DB, logger *zap.Logger) *CameraRepository {
	return &CameraRepository{
		db:     db,
		logger: logger,
	}
}

// FindByDevice resolves the camera whose firebase_path is deviceID. Returns nil, nil when absent.
func (r *CameraRepository) FindByDevice(ctx context.Context, deviceID string) (*models.Camera, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}

	query := `
		SELECT id, nombre, COALESCE(codigo, ''), firebase_path, activa
		FROM camaras_frio
		WHERE firebase_path = $1
		ORDER BY id
		LIMIT 1
	`

	var cam models.Camera
	err := r.db.QueryRowContext(ctx, query, deviceID).Scan(
		&cam.ID,
		&cam.Name,
		&cam.Code,
		&cam.DevicePath,
		&cam.Active,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find camera for device %s: %w", deviceID, err)
	}
	return &cam, nil
}
