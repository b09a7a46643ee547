package repository

import (
	"context"
	"database/sql"
	"fmt"

	"coldtrack-sync/internal/models"

	"go.uber.org/zap"
)

// SummaryRepository resumen_diario_camara
type SummaryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSummaryRepository creates a summary repository
func NewSummaryRepository(db *sql.DB, logger *zap.Logger) *SummaryRepository {
	return &SummaryRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert writes the day's aggregate, replacing any earlier one for (fecha, camara_id)
func (r *SummaryRepository) Upsert(ctx context.Context, s models.DailySummary) error {
	query := `
		INSERT INTO resumen_diario_camara (
			fecha, camara_id, temp_min, temp_max, temp_promedio,
			total_lecturas, alertas_descongelamiento, fallas_detectadas
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (fecha, camara_id) DO UPDATE SET
			temp_min = EXCLUDED.temp_min,
			temp_max = EXCLUDED.temp_max,
			temp_promedio = EXCLUDED.temp_promedio,
			total_lecturas = EXCLUDED.total_lecturas,
			alertas_descongelamiento = EXCLUDED.alertas_descongelamiento,
			fallas_detectadas = EXCLUDED.fallas_detectadas
	`
	_, err := r.db.ExecContext(ctx, query,
		s.Date.Format("2006-01-02"),
		s.CameraID,
		round2(s.TempMin),
		round2(s.TempMax),
		round2(s.TempAvg),
		s.TotalReadings,
		s.DefrostAlerts,
		s.FaultsDetected,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert summary for camera %d on %s: %w", s.CameraID, s.Date.Format("2006-01-02"), err)
	}
	return nil
}

// temperature columns are NUMERIC(5,2)
func round2(v float64) float64 {
	if v < 0 {
		return -float64(int64(-v*100+0.5)) / 100
	}
	return float64(int64(v*100+0.5)) / 100
}
