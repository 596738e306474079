package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a lifecycle event. The value doubles as the routing key.
type EventType string

const (
	EventVisitDrafted   EventType = "visit.drafted"
	EventVisitReleased  EventType = "visit.released"
	EventVisitMatched   EventType = "visit.matched"
	EventVisitStarted   EventType = "visit.started"
	EventVisitFinished  EventType = "visit.finished"
	EventVisitCancelled EventType = "visit.cancelled"
)

// VisitEvent is published after a lifecycle transition has been committed.
type VisitEvent struct {
	Type         EventType  `json:"type"`
	VisitID      uuid.UUID  `json:"visit_id"`
	UserID       uuid.UUID  `json:"user_id"`
	AgencyUserID *uuid.UUID `json:"agency_user_id,omitempty"`
	Amount       int64      `json:"amount,omitempty"`
	OccurredAt   time.Time  `json:"occurred_at"`
}

// NewVisitEvent builds an event of type t from the visit's current state.
func NewVisitEvent(t EventType, v Visit, at time.Time) VisitEvent {
	return VisitEvent{
		Type:         t,
		VisitID:      v.ID,
		UserID:       v.UserID,
		AgencyUserID: v.AgencyUserID,
		OccurredAt:   at,
	}
}
