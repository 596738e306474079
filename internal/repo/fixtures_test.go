package repo_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/homecare/internal/domain"
	"github.com/pkordes/homecare/internal/repo"
)

// repos bundles every repo built on the same test transaction.
type repos struct {
	users    repo.UserRepo
	clients  repo.ClientRepo
	services repo.ServiceRepo
	workers  repo.AgencyUserRepo
	visits   repo.VisitRepo
}

func newRepos(tx pgx.Tx) repos {
	return repos{
		users:    repo.NewUserRepo(tx),
		clients:  repo.NewClientRepo(tx),
		services: repo.NewServiceRepo(tx),
		workers:  repo.NewAgencyUserRepo(tx),
		visits:   repo.NewVisitRepo(tx),
	}
}

func addressFixture() domain.Address {
	return domain.Address{
		City:       "Toronto",
		Country:    "CA",
		Line1:      "100 Queen St W",
		PostalCode: "M5H 2N2",
		State:      "ON",
	}
}

func mustCreateUser(t *testing.T, r repos) domain.User {
	t.Helper()
	id := uuid.New()
	u, err := r.users.Create(context.Background(), domain.User{
		ID:       id,
		Email:    fmt.Sprintf("%s@example.com", id),
		FullName: "Test User",
	})
	require.NoError(t, err)
	return u
}

func mustCreateClient(t *testing.T, r repos, userID uuid.UUID) domain.Client {
	t.Helper()
	c, err := r.clients.Create(context.Background(), domain.Client{
		UserID:   userID,
		FullName: "Grandma",
		Address:  addressFixture(),
	})
	require.NoError(t, err)
	return c
}

func mustCreateService(t *testing.T, r repos, name string, fee int64) domain.Service {
	t.Helper()
	s, err := r.services.Create(context.Background(), domain.Service{Name: name, Fee: fee})
	require.NoError(t, err)
	return s
}

func mustCreateWorker(t *testing.T, r repos, serviceIDs ...uuid.UUID) domain.AgencyUser {
	t.Helper()
	u := mustCreateUser(t, r)
	w, err := r.workers.Create(context.Background(), u.ID, serviceIDs)
	require.NoError(t, err)
	return w
}

// mustCreateVisit drafts a visit for a fresh requester and client with one
// line item per given service.
func mustCreateVisit(t *testing.T, r repos, services ...domain.Service) domain.Visit {
	t.Helper()
	u := mustCreateUser(t, r)
	c := mustCreateClient(t, r, u.ID)

	items := make([]domain.VisitService, 0, len(services))
	for _, s := range services {
		items = append(items, domain.VisitService{ServiceID: s.ID, Name: s.Name, Fee: s.Fee})
	}
	v, err := r.visits.Create(context.Background(), domain.Visit{
		UserID:   u.ID,
		ClientID: c.ID,
		Address:  c.Address,
		BaseFee:  1000,
		Services: items,
	})
	require.NoError(t, err)
	return v
}
