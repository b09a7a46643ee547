package models

import "time"

// Event notice kinds
const (
	NoticeFaultOpened = "fault_opened"
	NoticeResolved    = "resolved"
)

// EventNotice published when the reconciler opens a fault or closes an event
type EventNotice struct {
	Kind            string     `json:"kind"`
	DeviceID        string     `json:"device_id"`
	CameraID        int64      `json:"camara_id"`
	CameraName      string     `json:"camara_nombre,omitempty"`
	ExternalID      string     `json:"firebase_event_id"`
	Type            string     `json:"tipo"`
	Status          string     `json:"estado"`
	StartedAt       time.Time  `json:"fecha_inicio"`
	EndedAt         *time.Time `json:"fecha_fin,omitempty"`
	DurationMinutes int64      `json:"duracion_minutos"`
	MaxTempC        float64    `json:"temp_max_c"`
}
