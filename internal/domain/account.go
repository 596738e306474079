package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the requester identity. ID is the authenticated subject.
// CustomerID is the payment gateway's customer reference; empty until the
// user first saves a card or releases a visit.
type User struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	FullName    string    `json:"full_name,omitempty"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	CustomerID  string    `json:"customer_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Client is a service-recipient profile owned by a User. Its address is
// snapshotted onto every visit drafted for it.
type Client struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	FullName    string     `json:"full_name"`
	Address     Address    `json:"address"`
	PhoneNumber string     `json:"phone_number,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Service is a catalog entry a requester can add to a visit.
// Fee is in the smallest currency unit (cents).
type Service struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Fee       int64     `json:"fee"`
	CreatedAt time.Time `json:"created_at"`
}

// AgencyUser is the worker identity, linked 1:1 to a User.
// ServiceIDs are the catalog services the worker is qualified to perform.
type AgencyUser struct {
	ID         uuid.UUID   `json:"id"`
	UserID     uuid.UUID   `json:"user_id"`
	ServiceIDs []uuid.UUID `json:"service_ids"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Qualified reports whether the worker may perform every given service.
// An empty list is trivially satisfied.
func (a AgencyUser) Qualified(serviceIDs []uuid.UUID) bool {
	allowed := make(map[uuid.UUID]struct{}, len(a.ServiceIDs))
	for _, id := range a.ServiceIDs {
		allowed[id] = struct{}{}
	}
	for _, id := range serviceIDs {
		if _, ok := allowed[id]; !ok {
			return false
		}
	}
	return true
}

// Actor is the verified identity performing an operation, supplied by the
// transport layer after authentication. The engine trusts it as given.
type Actor struct {
	UserID uuid.UUID
}
