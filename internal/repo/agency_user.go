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

// AgencyUserRepo defines the persistence operations for workers and their
// qualifying services.
type AgencyUserRepo interface {
	// Create enrols userID as a worker qualified for serviceIDs, atomically.
	// Returns domain.ErrConflict if the user is already enrolled.
	Create(ctx context.Context, userID uuid.UUID, serviceIDs []uuid.UUID) (domain.AgencyUser, error)

	// GetByID retrieves a worker with its qualifying service ids.
	// Returns domain.ErrNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (domain.AgencyUser, error)

	// GetByUserID retrieves the worker linked to a user.
	// Returns domain.ErrNotFound if the user is not a worker.
	GetByUserID(ctx context.Context, userID uuid.UUID) (domain.AgencyUser, error)
}

// pgAgencyUserRepo is the Postgres implementation of AgencyUserRepo.
type pgAgencyUserRepo struct {
	db db
}

// NewAgencyUserRepo constructs an AgencyUserRepo backed by the provided db connection.
func NewAgencyUserRepo(db db) AgencyUserRepo {
	return &pgAgencyUserRepo{db: db}
}

func (r *pgAgencyUserRepo) Create(ctx context.Context, userID uuid.UUID, serviceIDs []uuid.UUID) (domain.AgencyUser, error) {
	var result domain.AgencyUser
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		const insertWorker = `
			INSERT INTO agency_users (user_id)
			VALUES (@user_id)
			RETURNING id, user_id, created_at`

		var id, uid pgtype.UUID
		if err := tx.QueryRow(ctx, insertWorker, pgx.NamedArgs{"user_id": userID}).
			Scan(&id, &uid, &result.CreatedAt); err != nil {
			return err
		}
		result.ID = uuid.UUID(id.Bytes)
		result.UserID = uuid.UUID(uid.Bytes)

		const insertService = `
			INSERT INTO agency_user_services (agency_user_id, service_id)
			VALUES (@agency_user_id, @service_id)
			ON CONFLICT DO NOTHING`
		for _, sid := range serviceIDs {
			if _, err := tx.Exec(ctx, insertService, pgx.NamedArgs{
				"agency_user_id": result.ID,
				"service_id":     sid,
			}); err != nil {
				return err
			}
		}
		result.ServiceIDs = append([]uuid.UUID{}, serviceIDs...)
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domain.AgencyUser{}, fmt.Errorf("repo.AgencyUserRepo.Create: %w: user is already a worker", domain.ErrConflict)
		}
		return domain.AgencyUser{}, fmt.Errorf("repo.AgencyUserRepo.Create: %w", err)
	}
	return result, nil
}

func (r *pgAgencyUserRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.AgencyUser, error) {
	result, err := r.get(ctx, "id", id)
	if err != nil {
		return domain.AgencyUser{}, fmt.Errorf("repo.AgencyUserRepo.GetByID: %w", err)
	}
	return result, nil
}

func (r *pgAgencyUserRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (domain.AgencyUser, error) {
	result, err := r.get(ctx, "user_id", userID)
	if err != nil {
		return domain.AgencyUser{}, fmt.Errorf("repo.AgencyUserRepo.GetByUserID: %w", err)
	}
	return result, nil
}

// get loads a worker by one of its unique columns together with its services.
// column is always a literal chosen by this file, never caller input.
func (r *pgAgencyUserRepo) get(ctx context.Context, column string, value uuid.UUID) (domain.AgencyUser, error) {
	q := `
		SELECT a.id, a.user_id, a.created_at,
		       COALESCE(array_agg(s.service_id::text ORDER BY s.service_id) FILTER (WHERE s.service_id IS NOT NULL), '{}')
		FROM agency_users a
		LEFT JOIN agency_user_services s ON s.agency_user_id = a.id
		WHERE a.` + column + ` = @value
		GROUP BY a.id`

	var (
		a        domain.AgencyUser
		id, uid  pgtype.UUID
		services []string
	)
	err := r.db.QueryRow(ctx, q, pgx.NamedArgs{"value": value}).Scan(&id, &uid, &a.CreatedAt, &services)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AgencyUser{}, domain.ErrNotFound
		}
		return domain.AgencyUser{}, err
	}
	a.ID = uuid.UUID(id.Bytes)
	a.UserID = uuid.UUID(uid.Bytes)
	a.ServiceIDs = make([]uuid.UUID, 0, len(services))
	for _, s := range services {
		sid, err := uuid.Parse(s)
		if err != nil {
			return domain.AgencyUser{}, fmt.Errorf("parse service id %q: %w", s, err)
		}
		a.ServiceIDs = append(a.ServiceIDs, sid)
	}
	return a, nil
}
