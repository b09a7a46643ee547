package syncer

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"coldtrack-sync/internal/models"

	"go.uber.org/zap"
)

// UserReport counters of one user sync
type UserReport struct {
	Found   int `json:"found"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Errored int `json:"errored"`
}

// UserSyncer mirrors identity provider accounts into usuarios, keyed by uid
type UserSyncer struct {
	source UserSource
	users  UserStore
	logger *zap.Logger
}

func NewUserSyncer(source UserSource, users UserStore, logger *zap.Logger) *UserSyncer {
	return &UserSyncer{
		source: source,
		users:  users,
		logger: logger,
	}
}

// Sync creates missing users and rewrites email, name and active flag on
// drift. Roles are assigned on creation only.
func (s *UserSyncer) Sync(ctx context.Context) (UserReport, error) {
	var report UserReport

	accounts, err := s.source.ListUsers(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list identity provider users: %w", err)
	}
	report.Found = len(accounts)

	for _, acc := range accounts {
		if acc.UID == "" {
			continue
		}
		created, updated, err := s.syncOne(ctx, acc)
		switch {
		case err != nil:
			report.Errored++
			s.logger.Error("Failed to sync user",
				zap.String("uid", acc.UID),
				zap.Error(err),
			)
		case created:
			report.Created++
		case updated:
			report.Updated++
		}
	}

	s.logger.Info("User sync completed",
		zap.Int("found", report.Found),
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("errored", report.Errored),
	)
	return report, nil
}

func (s *UserSyncer) syncOne(ctx context.Context, acc models.ExternalUser) (created, updated bool, err error) {
	desired := models.User{
		ExternalID: acc.UID,
		Email:      acc.Email,
		Name:       DisplayName(acc),
		Role:       RoleForEmail(acc.Email),
		Active:     !acc.Disabled,
	}

	existing, err := s.users.FindByExternalID(ctx, acc.UID)
	if err != nil {
		return false, false, err
	}
	if existing == nil {
		inserted, err := s.users.Insert(ctx, &desired)
		if err != nil {
			return false, false, err
		}
		if inserted {
			s.logger.Info("Created user",
				zap.String("uid", acc.UID),
				zap.String("email", acc.Email),
				zap.String("role", desired.Role),
			)
			return true, false, nil
		}
		// created concurrently, fall through to the drift check
		existing, err = s.users.FindByExternalID(ctx, acc.UID)
		if err != nil || existing == nil {
			return false, false, err
		}
	}

	if existing.Email == desired.Email && existing.Name == desired.Name && existing.Active == desired.Active {
		return false, false, nil
	}
	if err := s.users.UpdateProfile(ctx, desired); err != nil {
		return false, false, err
	}
	s.logger.Info("Updated user", zap.String("uid", acc.UID))
	return false, true, nil
}

// RoleForEmail derives the initial role from keywords in the address
func RoleForEmail(email string) string {
	lower := strings.ToLower(email)
	switch {
	case strings.Contains(lower, "admin"):
		return models.RoleAdmin
	case strings.Contains(lower, "encargado"):
		return models.RoleManager
	case strings.Contains(lower, "subjefe"):
		return models.RoleDeputy
	default:
		return models.RoleManager
	}
}

// DisplayName falls back to the email local part, dots as spaces, title-cased
// ("juan.perez@x" gives "Juan Perez")
func DisplayName(acc models.ExternalUser) string {
	if name := strings.TrimSpace(acc.DisplayName); name != "" {
		return name
	}
	local, _, _ := strings.Cut(acc.Email, "@")
	return titleCase(strings.ReplaceAll(local, ".", " "))
}

// titleCase upper-cases every letter that follows a non-letter and
// lower-cases the rest
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				r = unicode.ToLower(r)
			} else {
				r = unicode.ToUpper(r)
			}
			prevLetter = true
		} else {
			prevLetter = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
