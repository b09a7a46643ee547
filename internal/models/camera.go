package models

// Camera row of camaras_frio; DevicePath is the live store device id
type Camera struct {
	ID         int64  `json:"id"`
	Name       string `json:"nombre"`
	Code       string `json:"codigo,omitempty"`
	DevicePath string `json:"firebase_path"`
	Active     bool   `json:"activa"`
}
