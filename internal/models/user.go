package models

// Warehouse user roles
const (
	RoleAdmin   = "ADMIN"
	RoleManager = "ENCARGADO"
	RoleDeputy  = "SUBJEFE"
)

// User row of usuarios
type User struct {
	ID         int64
	ExternalID string
	Email      string
	Name       string
	Role       string
	Active     bool
}

// ExternalUser account listed by the identity provider
type ExternalUser struct {
	UID         string
	Email       string
	DisplayName string
	Disabled    bool
}
