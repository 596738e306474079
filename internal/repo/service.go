package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/homecare/internal/domain"
)

// ServiceRepo defines the persistence operations for the service catalog.
type ServiceRepo interface {
	// Create inserts a catalog entry.
	Create(ctx context.Context, svc domain.Service) (domain.Service, error)

	// List returns all active (not deleted) services ordered by name.
	List(ctx context.Context) ([]domain.Service, error)

	// ListByIDs returns the active services among ids, ordered by name.
	// Unknown or deleted ids are silently absent from the result.
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Service, error)
}

// pgServiceRepo is the Postgres implementation of ServiceRepo.
type pgServiceRepo struct {
	db db
}

// NewServiceRepo constructs a ServiceRepo backed by the provided db connection.
func NewServiceRepo(db db) ServiceRepo {
	return &pgServiceRepo{db: db}
}

func (r *pgServiceRepo) Create(ctx context.Context, svc domain.Service) (domain.Service, error) {
	const q = `
		INSERT INTO services (name, fee)
		VALUES (@name, @fee)
		RETURNING id, name, fee, created_at`

	result, err := scanService(r.db.QueryRow(ctx, q, pgx.NamedArgs{"name": svc.Name, "fee": svc.Fee}))
	if err != nil {
		return domain.Service{}, fmt.Errorf("repo.ServiceRepo.Create: %w", err)
	}
	return result, nil
}

func (r *pgServiceRepo) List(ctx context.Context) ([]domain.Service, error) {
	const q = `
		SELECT id, name, fee, created_at
		FROM services
		WHERE deleted_at IS NULL
		ORDER BY name, id`

	return r.query(ctx, "List", q, nil)
}

func (r *pgServiceRepo) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Service, error) {
	const q = `
		SELECT id, name, fee, created_at
		FROM services
		WHERE deleted_at IS NULL
		  AND id = ANY(@ids::uuid[])
		ORDER BY name, id`

	return r.query(ctx, "ListByIDs", q, pgx.NamedArgs{"ids": uuidStrings(ids)})
}

func (r *pgServiceRepo) query(ctx context.Context, op, q string, args pgx.NamedArgs) ([]domain.Service, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if args == nil {
		rows, err = r.db.Query(ctx, q)
	} else {
		rows, err = r.db.Query(ctx, q, args)
	}
	if err != nil {
		return nil, fmt.Errorf("repo.ServiceRepo.%s: %w", op, err)
	}
	defer rows.Close()

	services := []domain.Service{}
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("repo.ServiceRepo.%s: scan: %w", op, err)
		}
		services = append(services, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.ServiceRepo.%s: rows: %w", op, err)
	}
	return services, nil
}

// scanService maps a single database row into a domain.Service.
func scanService(s scanner) (domain.Service, error) {
	var (
		svc domain.Service
		id  pgtype.UUID
	)
	if err := s.Scan(&id, &svc.Name, &svc.Fee, &svc.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Service{}, domain.ErrNotFound
		}
		return domain.Service{}, err
	}
	svc.ID = uuid.UUID(id.Bytes)
	return svc, nil
}
