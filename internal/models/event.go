package models

import (
	"strings"
	"time"
)

// Event status values stored in eventos_temperatura.estado
const (
	StatusDetected   = "DETECTADO" // legacy, read only
	StatusInProgress = "EN_CURSO"
	StatusResolved   = "RESUELTO"
)

// Event type tags written by the device firmware
const (
	TypeDefrostNormal    = "DESHIELO_N"
	TypeDefrostScheduled = "DESHIELO_P"
	TypeFault            = "FALLA"
	TypeFaultInProgress  = "FALLA_EN_CURSO"
	TypeUnknown          = "UNKNOWN"

	// InProgressSuffix marks a type as not yet final regardless of end_ts
	InProgressSuffix = "_EN_CURSO"
)

// RawEvent one event node read from /eventos/{device}/{yyyy}/{mm}/{dd}/{id}
type RawEvent struct {
	DeviceID   string  `json:"device_id"`
	ExternalID string  `json:"external_id"`
	StartTS    *int64  `json:"start_ts,omitempty"`
	EndTS      *int64  `json:"end_ts,omitempty"`
	Ended      bool    `json:"ended"`
	DurationMS int64   `json:"duration_ms"`
	MaxTemp    float64 `json:"max_temp"`
	Type       string  `json:"type"`
}

// PersistedEvent row of eventos_temperatura
type PersistedEvent struct {
	ID              int64
	CameraID        int64
	ExternalID      *string // nil for rows created before firebase_event_id existed
	StartedAt       time.Time
	EndedAt         *time.Time
	DurationMinutes int64
	MaxTempC        float64
	Type            string
	Status          string
	Notes           *string
	CreatedAt       time.Time
}

// EventUpdate fields rewritten on an existing row. Nil pointers are left untouched.
type EventUpdate struct {
	EndedAt         *time.Time
	SetEnd          bool // write EndedAt even when nil (clears fecha_fin)
	DurationMinutes int64
	MaxTempC        float64
	Status          *string
}

// IsInProgressType reports whether the type tag carries the in-progress suffix
func IsInProgressType(eventType string) bool {
	return strings.HasSuffix(eventType, InProgressSuffix)
}

// IsDefrostType DESHIELO_N / DESHIELO_P
func IsDefrostType(eventType string) bool {
	return eventType == TypeDefrostNormal || eventType == TypeDefrostScheduled
}

// IsFaultType FALLA and any FALLA_* variant
func IsFaultType(eventType string) bool {
	return eventType == TypeFault || strings.HasPrefix(eventType, TypeFault+"_")
}

// DurationMinutes floor-divides milliseconds into whole minutes
func DurationMinutes(durationMS int64) int64 {
	if durationMS <= 0 {
		return 0
	}
	return durationMS / 60000
}

// ComputeStatus status for a raw event: in-progress types are always EN_CURSO,
// everything else is RESUELTO once an end timestamp exists.
func ComputeStatus(ev RawEvent) string {
	if IsInProgressType(ev.Type) {
		return StatusInProgress
	}
	if ev.EndTS != nil {
		return StatusResolved
	}
	return StatusInProgress
}
