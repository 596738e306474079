// Package domain contains the core data types for the home-care visit service.
// This package has zero external dependencies beyond uuid and is imported by
// every other internal package (repo, service, payments, handler).
package domain

import (
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle position of a Visit. It is derived from the visit's
// timestamps and never stored on its own.
type State string

const (
	StateDraft          State = "draft"
	StatePaymentPending State = "payment_pending"
	StateReleased       State = "released"
	StateMatched        State = "matched"
	StateStarted        State = "started"
	StateFinished       State = "finished"
	StateCancelled      State = "cancelled"
)

// Terminal reports whether no further transition may leave this state.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateCancelled
}

// Address is the service location copied from a Client when a visit is drafted.
// Later edits to the client never change a visit's address.
type Address struct {
	City       string `json:"city"`
	Country    string `json:"country"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	PostalCode string `json:"postal_code"`
	State      string `json:"state"`
}

// VisitService is an immutable fee snapshot of one requested Service.
// Fee is in the smallest currency unit (cents).
type VisitService struct {
	ID        uuid.UUID `json:"id"`
	VisitID   uuid.UUID `json:"visit_id"`
	ServiceID uuid.UUID `json:"service_id"`
	Name      string    `json:"name"`
	Fee       int64     `json:"fee"`
	CreatedAt time.Time `json:"created_at"`
}

// Visit is a single home-care engagement between a requester and a worker.
//
// Progress is recorded as nullable timestamps set in order:
// ReleasedAt, MatchedAt, StartedAt, FinishedAt. CancelledAt may be set at any
// non-terminal point and freezes the visit. DeletedAt is a visibility flag
// orthogonal to the lifecycle.
type Visit struct {
	ID           uuid.UUID      `json:"id"`
	UserID       uuid.UUID      `json:"user_id"`
	ClientID     uuid.UUID      `json:"client_id"`
	AgencyUserID *uuid.UUID     `json:"agency_user_id,omitempty"`
	Address      Address        `json:"address"`
	Notes        string         `json:"notes,omitempty"`
	BaseFee      int64          `json:"base_fee"`
	Services     []VisitService `json:"services"`

	PaymentIntentID  string     `json:"payment_intent_id,omitempty"`
	PaymentPendingAt *time.Time `json:"payment_pending_at,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	ReleasedAt  *time.Time `json:"released_at,omitempty"`
	MatchedAt   *time.Time `json:"matched_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// State derives the lifecycle state from the visit's timestamps.
func (v Visit) State() State {
	switch {
	case v.CancelledAt != nil:
		return StateCancelled
	case v.FinishedAt != nil:
		return StateFinished
	case v.StartedAt != nil:
		return StateStarted
	case v.MatchedAt != nil:
		return StateMatched
	case v.ReleasedAt != nil:
		return StateReleased
	case v.PaymentPendingAt != nil:
		return StatePaymentPending
	default:
		return StateDraft
	}
}

// Deleted reports whether the visit has been soft-deleted.
func (v Visit) Deleted() bool {
	return v.DeletedAt != nil
}

// AssignedTo reports whether the visit is assigned to the given agency user.
func (v Visit) AssignedTo(agencyUserID uuid.UUID) bool {
	return v.AgencyUserID != nil && *v.AgencyUserID == agencyUserID
}

// ServiceIDs returns the catalog ids of the visit's line items, in line-item order.
func (v Visit) ServiceIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(v.Services))
	for _, s := range v.Services {
		ids = append(ids, s.ServiceID)
	}
	return ids
}
