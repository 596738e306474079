package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/homecare/internal/domain"
	"github.com/pkordes/homecare/internal/service"
)

func newAccountService(users ...domain.User) (*service.AccountService, *mockClientRepo) {
	_, userRepo := userStore(users...)
	clients := &mockClientRepo{
		create: func(_ context.Context, c domain.Client) (domain.Client, error) {
			c.ID = uuid.New()
			return c, nil
		},
		listByUserID: func(context.Context, uuid.UUID) ([]domain.Client, error) { return []domain.Client{}, nil },
	}
	payments := service.NewPaymentReconciler(userRepo, &mockGateway{}, "CAD", quietLogger())
	return service.NewAccountService(userRepo, clients, payments), clients
}

// ---- Users -----------------------------------------------------------------

func TestAccountService_CreateMe(t *testing.T) {
	svc, _ := newAccountService()
	actor := domain.Actor{UserID: uuid.New()}

	u, err := svc.CreateMe(context.Background(), actor, " Ann@Example.com ", domain.User{FullName: " Ann "})

	require.NoError(t, err)
	assert.Equal(t, actor.UserID, u.ID)
	assert.Equal(t, "ann@example.com", u.Email)
	assert.Equal(t, "Ann", u.FullName)
}

func TestAccountService_CreateMe_InvalidEmail(t *testing.T) {
	svc, _ := newAccountService()

	_, err := svc.CreateMe(context.Background(), domain.Actor{UserID: uuid.New()}, "not-an-email", domain.User{})

	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAccountService_CreateMe_Twice(t *testing.T) {
	id := uuid.New()
	svc, _ := newAccountService(domain.User{ID: id})

	_, err := svc.CreateMe(context.Background(), domain.Actor{UserID: id}, "a@example.com", domain.User{})

	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestAccountService_UpdateMe(t *testing.T) {
	id := uuid.New()
	svc, _ := newAccountService(domain.User{ID: id, Email: "a@example.com"})

	u, err := svc.UpdateMe(context.Background(), domain.Actor{UserID: id}, domain.User{FullName: "New", PhoneNumber: "555"})

	require.NoError(t, err)
	assert.Equal(t, "New", u.FullName)
	assert.Equal(t, "a@example.com", u.Email, "email is not editable")
}

func TestAccountService_Me_NotFound(t *testing.T) {
	svc, _ := newAccountService()

	_, err := svc.Me(context.Background(), domain.Actor{UserID: uuid.New()})

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// ---- Clients ---------------------------------------------------------------

func TestAccountService_CreateClient(t *testing.T) {
	id := uuid.New()
	svc, _ := newAccountService(domain.User{ID: id})

	c, err := svc.CreateClient(context.Background(), domain.Actor{UserID: id}, domain.Client{
		UserID:   uuid.New(), // ignored: the actor always owns the client
		FullName: "Grandma",
		Address:  home,
	})

	require.NoError(t, err)
	assert.Equal(t, id, c.UserID)
}

func TestAccountService_CreateClient_MissingFields(t *testing.T) {
	id := uuid.New()
	svc, _ := newAccountService(domain.User{ID: id})

	_, err := svc.CreateClient(context.Background(), domain.Actor{UserID: id}, domain.Client{FullName: "x"})

	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.ErrorContains(t, err, "city, country, line1, postal_code, state")
}

func TestAccountService_CreateClient_UnknownUser(t *testing.T) {
	svc, _ := newAccountService()

	_, err := svc.CreateClient(context.Background(), domain.Actor{UserID: uuid.New()}, domain.Client{FullName: "x", Address: home})

	assert.ErrorIs(t, err, domain.ErrNotFound)
}
