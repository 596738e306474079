package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pkordes/homecare/internal/domain"
	"github.com/pkordes/homecare/internal/repo"
)

// CatalogService manages the service catalog and worker enrolment.
type CatalogService struct {
	services repo.ServiceRepo
	users    repo.UserRepo
	workers  repo.AgencyUserRepo
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(services repo.ServiceRepo, users repo.UserRepo, workers repo.AgencyUserRepo) *CatalogService {
	return &CatalogService{services: services, users: users, workers: workers}
}

// ListServices returns every active catalog entry.
func (s *CatalogService) ListServices(ctx context.Context) ([]domain.Service, error) {
	services, err := s.services.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service.CatalogService.ListServices: %w", err)
	}
	return services, nil
}

// AddService creates a catalog entry. fee is in cents.
func (s *CatalogService) AddService(ctx context.Context, name string, fee int64) (domain.Service, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Service{}, fmt.Errorf("service.CatalogService.AddService: %w: name is required", domain.ErrValidation)
	}
	if fee < 0 {
		return domain.Service{}, fmt.Errorf("service.CatalogService.AddService: %w: fee must not be negative", domain.ErrValidation)
	}
	created, err := s.services.Create(ctx, domain.Service{Name: name, Fee: fee})
	if err != nil {
		return domain.Service{}, fmt.Errorf("service.CatalogService.AddService: %w", err)
	}
	return created, nil
}

// EnrollWorker makes an existing user an agency user qualified for serviceIDs.
func (s *CatalogService) EnrollWorker(ctx context.Context, userID uuid.UUID, serviceIDs []uuid.UUID) (domain.AgencyUser, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return domain.AgencyUser{}, fmt.Errorf("service.CatalogService.EnrollWorker: %w", err)
	}
	if len(serviceIDs) > 0 {
		found, err := s.services.ListByIDs(ctx, serviceIDs)
		if err != nil {
			return domain.AgencyUser{}, fmt.Errorf("service.CatalogService.EnrollWorker: %w", err)
		}
		known := make(map[uuid.UUID]bool, len(found))
		for _, svc := range found {
			known[svc.ID] = true
		}
		for _, id := range serviceIDs {
			if !known[id] {
				return domain.AgencyUser{}, fmt.Errorf("service.CatalogService.EnrollWorker: %w: service %s", domain.ErrNotFound, id)
			}
		}
	}
	w, err := s.workers.Create(ctx, userID, serviceIDs)
	if err != nil {
		return domain.AgencyUser{}, fmt.Errorf("service.CatalogService.EnrollWorker: %w", err)
	}
	return w, nil
}
