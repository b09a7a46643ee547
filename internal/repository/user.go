package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"coldtrack-sync/internal/models"

	"go.uber.org/zap"
)

// UserRepository usuarios, keyed by firebase_uid
type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUserRepository creates a user repository
func NewUserRepository(db *sql.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// FindByExternalID returns nil, nil when absent
func (r *UserRepository) FindByExternalID(ctx context.Context, uid string) (*models.User, error) {
	query := `
		SELECT id, firebase_uid, email, nombre, rol, activo
		FROM usuarios
		WHERE firebase_uid = $1
	`
	var u models.User
	err := r.db.QueryRowContext(ctx, query, uid).Scan(
		&u.ID,
		&u.ExternalID,
		&u.Email,
		&u.Name,
		&u.Role,
		&u.Active,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user %s: %w", uid, err)
	}
	return &u, nil
}

// Insert creates a user; false when the uid already exists
func (r *UserRepository) Insert(ctx context.Context, u *models.User) (bool, error) {
	query := `
		INSERT INTO usuarios (firebase_uid, email, nombre, rol, activo)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (firebase_uid) WHERE firebase_uid IS NOT NULL DO NOTHING
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query, u.ExternalID, u.Email, u.Name, u.Role, u.Active).Scan(&u.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert user %s: %w", u.ExternalID, err)
	}
	return true, nil
}

// UpdateProfile rewrites email, name and active flag. Role is operator-owned.
func (r *UserRepository) UpdateProfile(ctx context.Context, u models.User) error {
	query := `
		UPDATE usuarios SET email = $2, nombre = $3, activo = $4
		WHERE firebase_uid = $1
	`
	result, err := r.db.ExecContext(ctx, query, u.ExternalID, u.Email, u.Name, u.Active)
	if err != nil {
		return fmt.Errorf("failed to update user %s: %w", u.ExternalID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user %s: %w", u.ExternalID, ErrNotFound)
	}
	return nil
}
