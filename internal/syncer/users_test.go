package syncer

import (
	"context"
	"errors"
	"testing"

	"coldtrack-sync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRoleForEmail(t *testing.T) {
	cases := map[string]string{
		"admin@coldtrack.cl":         models.RoleAdmin,
		"Jefe.Admin@coldtrack.cl":    models.RoleAdmin,
		"subjefe.turno@coldtrack.cl": models.RoleDeputy,
		"encargado1@coldtrack.cl":    models.RoleManager,
		"maria@coldtrack.cl":         models.RoleManager,
		// encargado is checked before subjefe
		"encargado.subjefe@coldtrack.cl": models.RoleManager,
	}
	for email, want := range cases {
		assert.Equal(t, want, RoleForEmail(email), email)
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Maria Soto", DisplayName(models.ExternalUser{DisplayName: " Maria Soto ", Email: "m@x.cl"}))
	assert.Equal(t, "Encargado1", DisplayName(models.ExternalUser{Email: "encargado1@coldtrack.cl"}))
	assert.Equal(t, "Juan Perez", DisplayName(models.ExternalUser{Email: "juan.perez@coldtrack.cl"}))
	assert.Equal(t, "Maria Jose Soto", DisplayName(models.ExternalUser{Email: "MARIA.jose.SOTO@coldtrack.cl"}))
	assert.Equal(t, "Ana_B2C", DisplayName(models.ExternalUser{Email: "ana_b2c@coldtrack.cl"}))
}

func TestUserSync_CreateThenDrift(t *testing.T) {
	w := newFakeWarehouse()
	source := staticUserSource{users: []models.ExternalUser{
		{UID: "u1", Email: "admin@coldtrack.cl"},
		{UID: "u2", Email: "encargado1@coldtrack.cl", DisplayName: "Pedro"},
		{UID: "", Email: "ignored@coldtrack.cl"},
	}}
	s := NewUserSyncer(source, fakeUserStore{w}, zap.NewNop())
	ctx := context.Background()

	report, err := s.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, UserReport{Found: 3, Created: 2}, report)

	u1 := w.users["u1"]
	assert.Equal(t, models.RoleAdmin, u1.Role)
	assert.Equal(t, "Admin", u1.Name)
	assert.True(t, u1.Active)

	// second pass with no changes
	report, err = s.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, UserReport{Found: 3}, report)

	// manual role edit in the warehouse survives; profile drift is rewritten
	w.users["u2"].Role = models.RoleAdmin
	s = NewUserSyncer(staticUserSource{users: []models.ExternalUser{
		{UID: "u2", Email: "pedro@coldtrack.cl", DisplayName: "Pedro", Disabled: true},
	}}, fakeUserStore{w}, zap.NewNop())
	report, err = s.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Updated)

	u2 := w.users["u2"]
	assert.Equal(t, "pedro@coldtrack.cl", u2.Email)
	assert.False(t, u2.Active)
	assert.Equal(t, models.RoleAdmin, u2.Role)
}

func TestUserSync_SourceError(t *testing.T) {
	s := NewUserSyncer(staticUserSource{err: errors.New("quota exceeded")}, fakeUserStore{newFakeWarehouse()}, zap.NewNop())
	_, err := s.Sync(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}
