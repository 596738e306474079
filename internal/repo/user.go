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

// UserRepo defines the persistence operations for Users.
type UserRepo interface {
	// Create inserts a user whose id is the authenticated subject.
	// Returns domain.ErrConflict if the id or email is already registered.
	Create(ctx context.Context, user domain.User) (domain.User, error)

	// GetByID retrieves a user by id. Returns domain.ErrNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (domain.User, error)

	// UpdateProfile overwrites full_name and phone_number.
	// Returns domain.ErrNotFound if the user does not exist.
	UpdateProfile(ctx context.Context, user domain.User) (domain.User, error)

	// SetCustomerID records the payment gateway customer reference, only if
	// none is stored yet. Returns domain.ErrConflict if one already exists.
	SetCustomerID(ctx context.Context, id uuid.UUID, customerID string) (domain.User, error)
}

// pgUserRepo is the Postgres implementation of UserRepo.
type pgUserRepo struct {
	db db
}

// NewUserRepo constructs a UserRepo backed by the provided db connection.
func NewUserRepo(db db) UserRepo {
	return &pgUserRepo{db: db}
}

const userColumns = `id, email, full_name, phone_number, customer_id, created_at, updated_at`

func (r *pgUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	const q = `
		INSERT INTO users (id, email, full_name, phone_number)
		VALUES (@id, @email, @full_name, @phone_number)
		RETURNING ` + userColumns

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{
		"id":           user.ID,
		"email":        user.Email,
		"full_name":    user.FullName,
		"phone_number": user.PhoneNumber,
	})
	result, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, fmt.Errorf("repo.UserRepo.Create: %w: user already exists", domain.ErrConflict)
		}
		return domain.User{}, fmt.Errorf("repo.UserRepo.Create: %w", err)
	}
	return result, nil
}

func (r *pgUserRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id = @id`

	result, err := scanUser(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.User{}, fmt.Errorf("repo.UserRepo.GetByID: %w", err)
	}
	return result, nil
}

func (r *pgUserRepo) UpdateProfile(ctx context.Context, user domain.User) (domain.User, error) {
	const q = `
		UPDATE users
		SET full_name    = @full_name,
		    phone_number = @phone_number,
		    updated_at   = now()
		WHERE id = @id
		RETURNING ` + userColumns

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{
		"id":           user.ID,
		"full_name":    user.FullName,
		"phone_number": user.PhoneNumber,
	})
	result, err := scanUser(row)
	if err != nil {
		return domain.User{}, fmt.Errorf("repo.UserRepo.UpdateProfile: %w", err)
	}
	return result, nil
}

func (r *pgUserRepo) SetCustomerID(ctx context.Context, id uuid.UUID, customerID string) (domain.User, error) {
	const q = `
		UPDATE users
		SET customer_id = @customer_id,
		    updated_at  = now()
		WHERE id = @id AND customer_id IS NULL
		RETURNING ` + userColumns

	result, err := scanUser(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id, "customer_id": customerID}))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, fmt.Errorf("repo.UserRepo.SetCustomerID: %w: customer already set", domain.ErrConflict)
		}
		return domain.User{}, fmt.Errorf("repo.UserRepo.SetCustomerID: %w", err)
	}
	return result, nil
}

// scanUser maps a single database row into a domain.User.
func scanUser(s scanner) (domain.User, error) {
	var (
		u          domain.User
		id         pgtype.UUID
		customerID pgtype.Text
	)
	err := s.Scan(&id, &u.Email, &u.FullName, &u.PhoneNumber, &customerID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, err
	}
	u.ID = uuid.UUID(id.Bytes)
	u.CustomerID = customerID.String
	return u, nil
}
