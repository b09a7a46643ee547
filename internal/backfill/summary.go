package backfill

import (
	"math"
	"time"

	"coldtrack-sync/internal/models"
)

// ComputeSummary daily aggregate from the raw day. ok is false when the day
// has no usable readings.
func ComputeSummary(cameraID int64, day time.Time, readings []models.RawReading, events []models.RawEvent) (models.DailySummary, bool) {
	summary := models.DailySummary{Date: day, CameraID: cameraID}

	var sum float64
	for _, r := range readings {
		if math.IsNaN(r.Temperature) || math.IsInf(r.Temperature, 0) {
			continue
		}
		if summary.TotalReadings == 0 || r.Temperature < summary.TempMin {
			summary.TempMin = r.Temperature
		}
		if summary.TotalReadings == 0 || r.Temperature > summary.TempMax {
			summary.TempMax = r.Temperature
		}
		sum += r.Temperature
		summary.TotalReadings++
	}
	if summary.TotalReadings == 0 {
		return summary, false
	}
	summary.TempAvg = sum / float64(summary.TotalReadings)

	for _, ev := range events {
		switch {
		case models.IsDefrostType(ev.Type):
			summary.DefrostAlerts++
		case models.IsFaultType(ev.Type):
			summary.FaultsDetected++
		}
	}
	return summary, true
}
