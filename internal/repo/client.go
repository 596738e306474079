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

// ClientRepo defines the persistence operations for Clients.
type ClientRepo interface {
	// Create inserts a client owned by client.UserID.
	Create(ctx context.Context, client domain.Client) (domain.Client, error)

	// GetByID retrieves a client by id. Returns domain.ErrNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (domain.Client, error)

	// ListByUserID returns the user's clients, oldest first.
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Client, error)
}

// pgClientRepo is the Postgres implementation of ClientRepo.
type pgClientRepo struct {
	db db
}

// NewClientRepo constructs a ClientRepo backed by the provided db connection.
func NewClientRepo(db db) ClientRepo {
	return &pgClientRepo{db: db}
}

const clientColumns = `id, user_id, full_name, city, country, line1, line2, postal_code, state,
	phone_number, approved_at, created_at`

func (r *pgClientRepo) Create(ctx context.Context, client domain.Client) (domain.Client, error) {
	const q = `
		INSERT INTO clients (user_id, full_name, city, country, line1, line2, postal_code, state, phone_number)
		VALUES (@user_id, @full_name, @city, @country, @line1, @line2, @postal_code, @state, @phone_number)
		RETURNING ` + clientColumns

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{
		"user_id":      client.UserID,
		"full_name":    client.FullName,
		"city":         client.Address.City,
		"country":      client.Address.Country,
		"line1":        client.Address.Line1,
		"line2":        client.Address.Line2,
		"postal_code":  client.Address.PostalCode,
		"state":        client.Address.State,
		"phone_number": client.PhoneNumber,
	})
	result, err := scanClient(row)
	if err != nil {
		return domain.Client{}, fmt.Errorf("repo.ClientRepo.Create: %w", err)
	}
	return result, nil
}

func (r *pgClientRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Client, error) {
	const q = `SELECT ` + clientColumns + ` FROM clients WHERE id = @id`

	result, err := scanClient(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.Client{}, fmt.Errorf("repo.ClientRepo.GetByID: %w", err)
	}
	return result, nil
}

func (r *pgClientRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Client, error) {
	const q = `SELECT ` + clientColumns + ` FROM clients WHERE user_id = @user_id ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("repo.ClientRepo.ListByUserID: %w", err)
	}
	defer rows.Close()

	clients := []domain.Client{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("repo.ClientRepo.ListByUserID: scan: %w", err)
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.ClientRepo.ListByUserID: rows: %w", err)
	}
	return clients, nil
}

// scanClient maps a single database row into a domain.Client.
func scanClient(s scanner) (domain.Client, error) {
	var (
		c      domain.Client
		id     pgtype.UUID
		userID pgtype.UUID
	)
	err := s.Scan(&id, &userID, &c.FullName,
		&c.Address.City, &c.Address.Country, &c.Address.Line1, &c.Address.Line2,
		&c.Address.PostalCode, &c.Address.State,
		&c.PhoneNumber, &c.ApprovedAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Client{}, domain.ErrNotFound
		}
		return domain.Client{}, err
	}
	c.ID = uuid.UUID(id.Bytes)
	c.UserID = uuid.UUID(userID.Bytes)
	return c, nil
}
