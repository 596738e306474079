package service

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/pkordes/homecare/internal/domain"
)

// Relation is the single tie between an actor and a visit that an operation
// requires.
type Relation int

const (
	// RelationRequester: the actor's user id owns the visit (draft, release,
	// cancel, delete).
	RelationRequester Relation = iota
	// RelationAssignee: the actor's agency user id is the assigned worker
	// (start, finish).
	RelationAssignee
	// RelationUnassigned: no worker holds the visit yet (match).
	RelationUnassigned
)

func (r Relation) String() string {
	switch r {
	case RelationRequester:
		return "requester"
	case RelationAssignee:
		return "assignee"
	case RelationUnassigned:
		return "unassigned"
	default:
		return fmt.Sprintf("Relation(%d)", int(r))
	}
}

// Authorize checks one relation on v. id is a user id for RelationRequester,
// an agency user id for RelationAssignee, and ignored for RelationUnassigned.
//
// It returns domain.ErrForbidden when the actor lacks the relation,
// domain.ErrConflict when the assignee check runs on a visit nobody holds yet,
// and domain.ErrAlreadyTaken when an unassigned visit is required but held.
func Authorize(v domain.Visit, rel Relation, id uuid.UUID) error {
	switch rel {
	case RelationRequester:
		if v.UserID != id {
			return fmt.Errorf("%w: not the requester of this visit", domain.ErrForbidden)
		}
	case RelationAssignee:
		if v.AgencyUserID == nil {
			return fmt.Errorf("%w: visit is not matched", domain.ErrConflict)
		}
		if *v.AgencyUserID != id {
			return fmt.Errorf("%w: visit is assigned to another worker", domain.ErrForbidden)
		}
	case RelationUnassigned:
		if v.AgencyUserID != nil || v.MatchedAt != nil {
			return domain.ErrAlreadyTaken
		}
	default:
		return fmt.Errorf("unknown relation %s", rel)
	}
	return nil
}

// CanView reports whether the actor may read v: the requester, the assigned
// worker, or any worker while the visit is released and unassigned. worker is
// nil when the actor is not an agency user. Deleted visits are visible to no one.
func CanView(v domain.Visit, userID uuid.UUID, worker *domain.AgencyUser) bool {
	if v.Deleted() {
		return false
	}
	if v.UserID == userID {
		return true
	}
	if worker == nil {
		return false
	}
	if v.AssignedTo(worker.ID) {
		return true
	}
	return v.State() == domain.StateReleased && v.AgencyUserID == nil
}
