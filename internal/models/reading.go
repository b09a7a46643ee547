package models

import "time"

// Reading origin tags (lecturas_temperatura.origen)
const (
	OriginStatus   = "firebase:status"
	OriginBackfill = "firebase:backfill"
)

// RawReading one /status/{device}/{yyyy}/{mm}/{dd}/{epoch} node
type RawReading struct {
	DeviceID    string  `json:"device_id"`
	Timestamp   int64   `json:"ts"`
	Temperature float64 `json:"temp"`
	State       string  `json:"state,omitempty"`
}

// LiveSnapshot /status/{device}/live
type LiveSnapshot struct {
	DeviceID    string  `json:"device_id"`
	Temperature float64 `json:"temp"`
	State       string  `json:"state"`
	TS          int64   `json:"ts"`
}

// PersistedReading row of lecturas_temperatura
type PersistedReading struct {
	ID           int64
	CameraID     int64
	Timestamp    time.Time
	TemperatureC float64
	Origin       string
}

// DailySummary row of resumen_diario_camara
type DailySummary struct {
	Date           time.Time `json:"fecha"`
	CameraID       int64     `json:"camara_id"`
	TempMin        float64   `json:"temp_min"`
	TempMax        float64   `json:"temp_max"`
	TempAvg        float64   `json:"temp_promedio"`
	TotalReadings  int64     `json:"total_lecturas"`
	DefrostAlerts  int64     `json:"alertas_descongelamiento"`
	FaultsDetected int64     `json:"fallas_detectadas"`
}
