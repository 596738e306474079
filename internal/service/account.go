package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/pkordes/homecare/internal/domain"
	"github.com/pkordes/homecare/internal/repo"
)

// AccountService manages the requester's own profile, clients, and cards.
type AccountService struct {
	users    repo.UserRepo
	clients  repo.ClientRepo
	payments *PaymentReconciler
}

// NewAccountService constructs an AccountService.
func NewAccountService(users repo.UserRepo, clients repo.ClientRepo, payments *PaymentReconciler) *AccountService {
	return &AccountService{users: users, clients: clients, payments: payments}
}

// CreateMe registers the authenticated subject as a user.
func (s *AccountService) CreateMe(ctx context.Context, actor domain.Actor, email string, profile domain.User) (domain.User, error) {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.User{}, fmt.Errorf("service.AccountService.CreateMe: %w: a valid email is required", domain.ErrValidation)
	}
	u, err := s.users.Create(ctx, domain.User{
		ID:          actor.UserID,
		Email:       strings.ToLower(email),
		FullName:    strings.TrimSpace(profile.FullName),
		PhoneNumber: strings.TrimSpace(profile.PhoneNumber),
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("service.AccountService.CreateMe: %w", err)
	}
	return u, nil
}

// UpdateMe overwrites the actor's name and phone number.
func (s *AccountService) UpdateMe(ctx context.Context, actor domain.Actor, profile domain.User) (domain.User, error) {
	u, err := s.users.UpdateProfile(ctx, domain.User{
		ID:          actor.UserID,
		FullName:    strings.TrimSpace(profile.FullName),
		PhoneNumber: strings.TrimSpace(profile.PhoneNumber),
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("service.AccountService.UpdateMe: %w", err)
	}
	return u, nil
}

// Me returns the actor's user record.
func (s *AccountService) Me(ctx context.Context, actor domain.Actor) (domain.User, error) {
	u, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		return domain.User{}, fmt.Errorf("service.AccountService.Me: %w", err)
	}
	return u, nil
}

// CreateClient adds a service-recipient profile owned by the actor.
func (s *AccountService) CreateClient(ctx context.Context, actor domain.Actor, c domain.Client) (domain.Client, error) {
	c.FullName = strings.TrimSpace(c.FullName)
	if err := validateClient(c); err != nil {
		return domain.Client{}, fmt.Errorf("service.AccountService.CreateClient: %w", err)
	}
	if _, err := s.users.GetByID(ctx, actor.UserID); err != nil {
		return domain.Client{}, fmt.Errorf("service.AccountService.CreateClient: %w", err)
	}
	c.UserID = actor.UserID
	created, err := s.clients.Create(ctx, c)
	if err != nil {
		return domain.Client{}, fmt.Errorf("service.AccountService.CreateClient: %w", err)
	}
	return created, nil
}

// ListClients returns the actor's clients.
func (s *AccountService) ListClients(ctx context.Context, actor domain.Actor) ([]domain.Client, error) {
	clients, err := s.clients.ListByUserID(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("service.AccountService.ListClients: %w", err)
	}
	return clients, nil
}

// SaveCard stores a tokenized card as the actor's default payment method.
func (s *AccountService) SaveCard(ctx context.Context, actor domain.Actor, token string) (domain.PaymentMethod, error) {
	pm, err := s.payments.SaveCard(ctx, actor.UserID, token)
	if err != nil {
		return domain.PaymentMethod{}, fmt.Errorf("service.AccountService.SaveCard: %w", err)
	}
	return pm, nil
}

func validateClient(c domain.Client) error {
	var missing []string
	if c.FullName == "" {
		missing = append(missing, "full_name")
	}
	for _, f := range []struct{ name, value string }{
		{"city", c.Address.City},
		{"country", c.Address.Country},
		{"line1", c.Address.Line1},
		{"postal_code", c.Address.PostalCode},
		{"state", c.Address.State},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", domain.ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}
