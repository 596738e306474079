package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/homecare/internal/domain"
)

// VisitRepo defines the persistence operations for Visits and their line items.
//
// Every Mark* method is a conditional update: it only writes when the stored
// row still satisfies the transition's preconditions, and returns
// domain.ErrConflict when zero rows match. Callers check existence first, so a
// conflict always means the visit moved on underneath them.
type VisitRepo interface {
	// Create inserts a draft visit and all of its line items in one transaction.
	// Nothing is persisted if any insert fails.
	Create(ctx context.Context, visit domain.Visit) (domain.Visit, error)

	// GetByID retrieves a visit with its line items, including soft-deleted
	// visits. Returns domain.ErrNotFound if no visit with that id exists.
	GetByID(ctx context.Context, id uuid.UUID) (domain.Visit, error)

	// ListOpen returns released, unassigned, uncancelled, undeleted visits whose
	// every line item is among the worker's qualifying services, oldest release first.
	ListOpen(ctx context.Context, agencyUserID uuid.UUID) ([]domain.Visit, error)

	// ListActiveByUserID returns the requester's released visits that are not
	// finished, cancelled, or deleted, newest first.
	ListActiveByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Visit, error)

	// GetActiveByAgencyUserID returns the worker's current assignment.
	// Returns domain.ErrNotFound if the worker has none.
	GetActiveByAgencyUserID(ctx context.Context, agencyUserID uuid.UUID) (domain.Visit, error)

	// ClaimPayment marks a release attempt as in flight at `at`. A previous claim
	// older than staleBefore is treated as abandoned and may be taken over.
	ClaimPayment(ctx context.Context, id uuid.UUID, at, staleBefore time.Time) (domain.Visit, error)

	// ReleaseClaim clears an in-flight claim after a failed charge.
	ReleaseClaim(ctx context.Context, id uuid.UUID) error

	// MarkReleased records the confirmed charge and clears the claim.
	MarkReleased(ctx context.Context, id uuid.UUID, paymentIntentID string, at time.Time) (domain.Visit, error)

	// MarkMatched assigns the worker. Returns domain.ErrConflict if the worker
	// already holds another active visit.
	MarkMatched(ctx context.Context, id, agencyUserID uuid.UUID, at time.Time) (domain.Visit, error)

	MarkStarted(ctx context.Context, id, agencyUserID uuid.UUID, at time.Time) (domain.Visit, error)
	MarkFinished(ctx context.Context, id, agencyUserID uuid.UUID, at time.Time) (domain.Visit, error)

	// MarkCancelled freezes a non-terminal visit that has no release in flight.
	MarkCancelled(ctx context.Context, id uuid.UUID, at time.Time) (domain.Visit, error)

	// SoftDelete hides a draft or cancelled visit from every listing.
	SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error
}

// pgVisitRepo is the Postgres implementation of VisitRepo.
type pgVisitRepo struct {
	db db
}

// NewVisitRepo constructs a VisitRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewVisitRepo(db db) VisitRepo {
	return &pgVisitRepo{db: db}
}

const visitColumns = `v.id, v.user_id, v.client_id, v.agency_user_id, v.notes,
	v.city, v.country, v.line1, v.line2, v.postal_code, v.state,
	v.base_fee, v.payment_intent_id, v.payment_pending_at,
	v.created_at, v.released_at, v.matched_at, v.started_at, v.finished_at,
	v.cancelled_at, v.deleted_at`

func (r *pgVisitRepo) Create(ctx context.Context, visit domain.Visit) (domain.Visit, error) {
	var result domain.Visit
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		const insertVisit = `
			INSERT INTO visits AS v (user_id, client_id, notes, city, country, line1, line2,
			                         postal_code, state, base_fee)
			VALUES (@user_id, @client_id, @notes, @city, @country, @line1, @line2,
			        @postal_code, @state, @base_fee)
			RETURNING ` + visitColumns

		row := tx.QueryRow(ctx, insertVisit, pgx.NamedArgs{
			"user_id":     visit.UserID,
			"client_id":   visit.ClientID,
			"notes":       visit.Notes,
			"city":        visit.Address.City,
			"country":     visit.Address.Country,
			"line1":       visit.Address.Line1,
			"line2":       visit.Address.Line2,
			"postal_code": visit.Address.PostalCode,
			"state":       visit.Address.State,
			"base_fee":    visit.BaseFee,
		})
		v, err := scanVisit(row)
		if err != nil {
			return fmt.Errorf("insert visit: %w", err)
		}

		const insertItem = `
			INSERT INTO visit_services (visit_id, service_id, position, name, fee)
			VALUES (@visit_id, @service_id, @position, @name, @fee)
			RETURNING id, visit_id, service_id, name, fee, created_at`

		v.Services = make([]domain.VisitService, 0, len(visit.Services))
		for i, item := range visit.Services {
			vs, err := scanVisitService(tx.QueryRow(ctx, insertItem, pgx.NamedArgs{
				"visit_id":   v.ID,
				"service_id": item.ServiceID,
				"position":   i,
				"name":       item.Name,
				"fee":        item.Fee,
			}))
			if err != nil {
				return fmt.Errorf("insert line item %s: %w", item.ServiceID, err)
			}
			v.Services = append(v.Services, vs)
		}
		result = v
		return nil
	})
	if err != nil {
		return domain.Visit{}, fmt.Errorf("repo.VisitRepo.Create: %w", err)
	}
	return result, nil
}

func (r *pgVisitRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Visit, error) {
	const q = `SELECT ` + visitColumns + ` FROM visits v WHERE v.id = @id`

	v, err := scanVisit(r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if err != nil {
		return domain.Visit{}, fmt.Errorf("repo.VisitRepo.GetByID: %w", err)
	}
	if err := r.attachServices(ctx, []*domain.Visit{&v}); err != nil {
		return domain.Visit{}, fmt.Errorf("repo.VisitRepo.GetByID: %w", err)
	}
	return v, nil
}

func (r *pgVisitRepo) ListOpen(ctx context.Context, agencyUserID uuid.UUID) ([]domain.Visit, error) {
	const q = `
		SELECT ` + visitColumns + `
		FROM visits v
		WHERE v.released_at IS NOT NULL
		  AND v.matched_at IS NULL
		  AND v.agency_user_id IS NULL
		  AND v.cancelled_at IS NULL
		  AND v.deleted_at IS NULL
		  AND NOT EXISTS (
		      SELECT 1 FROM visit_services vs
		      WHERE vs.visit_id = v.id
		        AND vs.service_id NOT IN (
		            SELECT s.service_id FROM agency_user_services s
		            WHERE s.agency_user_id = @agency_user_id))
		ORDER BY v.released_at, v.id`

	visits, err := r.list(ctx, q, pgx.NamedArgs{"agency_user_id": agencyUserID})
	if err != nil {
		return nil, fmt.Errorf("repo.VisitRepo.ListOpen: %w", err)
	}
	return visits, nil
}

func (r *pgVisitRepo) ListActiveByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Visit, error) {
	const q = `
		SELECT ` + visitColumns + `
		FROM visits v
		WHERE v.user_id = @user_id
		  AND v.released_at IS NOT NULL
		  AND v.finished_at IS NULL
		  AND v.cancelled_at IS NULL
		  AND v.deleted_at IS NULL
		ORDER BY v.released_at DESC, v.id`

	visits, err := r.list(ctx, q, pgx.NamedArgs{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("repo.VisitRepo.ListActiveByUserID: %w", err)
	}
	return visits, nil
}

func (r *pgVisitRepo) GetActiveByAgencyUserID(ctx context.Context, agencyUserID uuid.UUID) (domain.Visit, error) {
	const q = `
		SELECT ` + visitColumns + `
		FROM visits v
		WHERE v.agency_user_id = @agency_user_id
		  AND v.finished_at IS NULL
		  AND v.cancelled_at IS NULL
		  AND v.deleted_at IS NULL`

	v, err := scanVisit(r.db.QueryRow(ctx, q, pgx.NamedArgs{"agency_user_id": agencyUserID}))
	if err != nil {
		return domain.Visit{}, fmt.Errorf("repo.VisitRepo.GetActiveByAgencyUserID: %w", err)
	}
	if err := r.attachServices(ctx, []*domain.Visit{&v}); err != nil {
		return domain.Visit{}, fmt.Errorf("repo.VisitRepo.GetActiveByAgencyUserID: %w", err)
	}
	return v, nil
}

func (r *pgVisitRepo) ClaimPayment(ctx context.Context, id uuid.UUID, at, staleBefore time.Time) (domain.Visit, error) {
	const q = `
		UPDATE visits v
		SET payment_pending_at = @at
		WHERE v.id = @id
		  AND v.released_at IS NULL
		  AND v.cancelled_at IS NULL
		  AND v.deleted_at IS NULL
		  AND (v.payment_pending_at IS NULL OR v.payment_pending_at < @stale_before)
		RETURNING ` + visitColumns

	return r.transition(ctx, "ClaimPayment", q, pgx.NamedArgs{"id": id, "at": at, "stale_before": staleBefore})
}

func (r *pgVisitRepo) ReleaseClaim(ctx context.Context, id uuid.UUID) error {
	const q = `
		UPDATE visits
		SET payment_pending_at = NULL
		WHERE id = @id AND released_at IS NULL`

	if _, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id}); err != nil {
		return fmt.Errorf("repo.VisitRepo.ReleaseClaim: %w", err)
	}
	return nil
}

func (r *pgVisitRepo) MarkReleased(ctx context.Context, id uuid.UUID, paymentIntentID string, at time.Time) (domain.Visit, error) {
	const q = `
		UPDATE visits v
		SET released_at        = @at,
		    payment_intent_id  = @payment_intent_id,
		    payment_pending_at = NULL
		WHERE v.id = @id
		  AND v.released_at IS NULL
		  AND v.cancelled_at IS NULL
		RETURNING ` + visitColumns

	return r.transition(ctx, "MarkReleased", q, pgx.NamedArgs{
		"id":                id,
		"at":                at,
		"payment_intent_id": paymentIntentID,
	})
}

func (r *pgVisitRepo) MarkMatched(ctx context.Context, id, agencyUserID uuid.UUID, at time.Time) (domain.Visit, error) {
	const q = `
		UPDATE visits v
		SET matched_at     = @at,
		    agency_user_id = @agency_user_id
		WHERE v.id = @id
		  AND v.released_at IS NOT NULL
		  AND v.matched_at IS NULL
		  AND v.agency_user_id IS NULL
		  AND v.cancelled_at IS NULL
		  AND v.deleted_at IS NULL
		RETURNING ` + visitColumns

	v, err := r.transition(ctx, "MarkMatched", q, pgx.NamedArgs{"id": id, "agency_user_id": agencyUserID, "at": at})
	if err != nil && isUniqueViolation(err) {
		return domain.Visit{}, fmt.Errorf("repo.VisitRepo.MarkMatched: %w: worker already has an active visit", domain.ErrConflict)
	}
	return v, err
}

func (r *pgVisitRepo) MarkStarted(ctx context.Context, id, agencyUserID uuid.UUID, at time.Time) (domain.Visit, error) {
	const q = `
		UPDATE visits v
		SET started_at = @at
		WHERE v.id = @id
		  AND v.agency_user_id = @agency_user_id
		  AND v.matched_at IS NOT NULL
		  AND v.started_at IS NULL
		  AND v.cancelled_at IS NULL
		RETURNING ` + visitColumns

	return r.transition(ctx, "MarkStarted", q, pgx.NamedArgs{"id": id, "agency_user_id": agencyUserID, "at": at})
}

func (r *pgVisitRepo) MarkFinished(ctx context.Context, id, agencyUserID uuid.UUID, at time.Time) (domain.Visit, error) {
	const q = `
		UPDATE visits v
		SET finished_at = @at
		WHERE v.id = @id
		  AND v.agency_user_id = @agency_user_id
		  AND v.started_at IS NOT NULL
		  AND v.finished_at IS NULL
		  AND v.cancelled_at IS NULL
		RETURNING ` + visitColumns

	return r.transition(ctx, "MarkFinished", q, pgx.NamedArgs{"id": id, "agency_user_id": agencyUserID, "at": at})
}

func (r *pgVisitRepo) MarkCancelled(ctx context.Context, id uuid.UUID, at time.Time) (domain.Visit, error) {
	const q = `
		UPDATE visits v
		SET cancelled_at = @at
		WHERE v.id = @id
		  AND v.finished_at IS NULL
		  AND v.cancelled_at IS NULL
		  AND v.payment_pending_at IS NULL
		RETURNING ` + visitColumns

	return r.transition(ctx, "MarkCancelled", q, pgx.NamedArgs{"id": id, "at": at})
}

func (r *pgVisitRepo) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	const q = `
		UPDATE visits
		SET deleted_at = @at
		WHERE id = @id
		  AND deleted_at IS NULL
		  AND payment_pending_at IS NULL
		  AND (released_at IS NULL OR cancelled_at IS NOT NULL)`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id, "at": at})
	if err != nil {
		return fmt.Errorf("repo.VisitRepo.SoftDelete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.VisitRepo.SoftDelete: %w", domain.ErrConflict)
	}
	return nil
}

// transition runs a conditional UPDATE ... RETURNING and loads line items for
// the updated row. No returned row means the preconditions no longer held.
func (r *pgVisitRepo) transition(ctx context.Context, op, q string, args pgx.NamedArgs) (domain.Visit, error) {
	v, err := scanVisit(r.db.QueryRow(ctx, q, args))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Visit{}, fmt.Errorf("repo.VisitRepo.%s: %w", op, domain.ErrConflict)
		}
		return domain.Visit{}, fmt.Errorf("repo.VisitRepo.%s: %w", op, err)
	}
	if err := r.attachServices(ctx, []*domain.Visit{&v}); err != nil {
		return domain.Visit{}, fmt.Errorf("repo.VisitRepo.%s: %w", op, err)
	}
	return v, nil
}

func (r *pgVisitRepo) list(ctx context.Context, q string, args pgx.NamedArgs) ([]domain.Visit, error) {
	rows, err := r.db.Query(ctx, q, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	visits := []domain.Visit{}
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		visits = append(visits, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	ptrs := make([]*domain.Visit, len(visits))
	for i := range visits {
		ptrs[i] = &visits[i]
	}
	if err := r.attachServices(ctx, ptrs); err != nil {
		return nil, err
	}
	return visits, nil
}

// attachServices loads line items for all given visits in a single query.
func (r *pgVisitRepo) attachServices(ctx context.Context, visits []*domain.Visit) error {
	if len(visits) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*domain.Visit, len(visits))
	ids := make([]uuid.UUID, 0, len(visits))
	for _, v := range visits {
		v.Services = []domain.VisitService{}
		byID[v.ID] = v
		ids = append(ids, v.ID)
	}

	const q = `
		SELECT id, visit_id, service_id, name, fee, created_at
		FROM visit_services
		WHERE visit_id = ANY(@ids::uuid[])
		ORDER BY visit_id, position`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"ids": uuidStrings(ids)})
	if err != nil {
		return fmt.Errorf("line items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		vs, err := scanVisitService(rows)
		if err != nil {
			return fmt.Errorf("line items: scan: %w", err)
		}
		if v, ok := byID[vs.VisitID]; ok {
			v.Services = append(v.Services, vs)
		}
	}
	return rows.Err()
}

// scanVisit maps a single visits row (visitColumns order) into a domain.Visit.
// Line items are not loaded here.
func scanVisit(s scanner) (domain.Visit, error) {
	var (
		v               domain.Visit
		id, uid, cid    pgtype.UUID
		agencyUserID    pgtype.UUID
		paymentIntentID pgtype.Text
	)
	err := s.Scan(&id, &uid, &cid, &agencyUserID, &v.Notes,
		&v.Address.City, &v.Address.Country, &v.Address.Line1, &v.Address.Line2,
		&v.Address.PostalCode, &v.Address.State,
		&v.BaseFee, &paymentIntentID, &v.PaymentPendingAt,
		&v.CreatedAt, &v.ReleasedAt, &v.MatchedAt, &v.StartedAt, &v.FinishedAt,
		&v.CancelledAt, &v.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Visit{}, domain.ErrNotFound
		}
		return domain.Visit{}, err
	}
	v.ID = uuid.UUID(id.Bytes)
	v.UserID = uuid.UUID(uid.Bytes)
	v.ClientID = uuid.UUID(cid.Bytes)
	v.AgencyUserID = nullableUUID(agencyUserID)
	v.PaymentIntentID = paymentIntentID.String
	return v, nil
}

// scanVisitService maps a single visit_services row into a domain.VisitService.
func scanVisitService(s scanner) (domain.VisitService, error) {
	var (
		vs                  domain.VisitService
		id, visitID, svcID pgtype.UUID
	)
	if err := s.Scan(&id, &visitID, &svcID, &vs.Name, &vs.Fee, &vs.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.VisitService{}, domain.ErrNotFound
		}
		return domain.VisitService{}, err
	}
	vs.ID = uuid.UUID(id.Bytes)
	vs.VisitID = uuid.UUID(visitID.Bytes)
	vs.ServiceID = uuid.UUID(svcID.Bytes)
	return vs, nil
}
