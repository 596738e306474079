// Package service contains the business logic for the home-care API.
// Services validate inputs, enforce lifecycle rules, and orchestrate repo and
// payment gateway calls. No SQL lives here: services depend on repo interfaces,
// not implementations.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/homecare/internal/domain"
	"github.com/pkordes/homecare/internal/repo"
)

// EventPublisher receives lifecycle events after each committed transition.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.VisitEvent) error
}

// DraftInput is what a requester supplies to create a visit.
type DraftInput struct {
	ClientID   uuid.UUID
	Notes      string
	ServiceIDs []uuid.UUID
}

// VisitDeps are the collaborators of a VisitService.
type VisitDeps struct {
	Visits   repo.VisitRepo
	Users    repo.UserRepo
	Clients  repo.ClientRepo
	Catalog  repo.ServiceRepo
	Workers  repo.AgencyUserRepo
	Payments *PaymentReconciler
	Events   EventPublisher
	Logger   *slog.Logger

	Fees     FeeCalculator
	BaseFee  int64
	ClaimTTL time.Duration

	// PublishTimeout bounds each event publish. Defaults to 5s.
	PublishTimeout time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// VisitService is the visit lifecycle engine. It is the only mutation surface
// for visit state: every transition re-reads the visit, checks its guards in a
// fixed order (existence, cancellation, already-in-target, relation), then
// writes through a conditional update so a concurrent caller that slipped in
// between observes domain.ErrConflict.
type VisitService struct {
	visits   repo.VisitRepo
	users    repo.UserRepo
	clients  repo.ClientRepo
	catalog  repo.ServiceRepo
	workers  repo.AgencyUserRepo
	payments *PaymentReconciler
	events   EventPublisher
	log      *slog.Logger

	fees           FeeCalculator
	baseFee        int64
	claimTTL       time.Duration
	publishTimeout time.Duration
	now            func() time.Time
}

// NewVisitService constructs the lifecycle engine.
func NewVisitService(d VisitDeps) *VisitService {
	s := &VisitService{
		visits:   d.Visits,
		users:    d.Users,
		clients:  d.Clients,
		catalog:  d.Catalog,
		workers:  d.Workers,
		payments: d.Payments,
		events:   d.Events,
		log:      d.Logger,
		fees:           d.Fees,
		baseFee:        d.BaseFee,
		claimTTL:       d.ClaimTTL,
		publishTimeout: d.PublishTimeout,
		now:            d.Now,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.claimTTL <= 0 {
		s.claimTTL = 2 * time.Minute
	}
	if s.publishTimeout <= 0 {
		s.publishTimeout = 5 * time.Second
	}
	return s
}

// Draft creates a visit for one of the requester's clients, snapshotting the
// client's address, the base fee, and each requested service's fee.
func (s *VisitService) Draft(ctx context.Context, actor domain.Actor, in DraftInput) (domain.Visit, error) {
	if err := validateDraft(in); err != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Draft: %w", err)
	}
	if _, err := s.users.GetByID(ctx, actor.UserID); err != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Draft: requester: %w", err)
	}
	client, err := s.clients.GetByID(ctx, in.ClientID)
	if err != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Draft: client: %w", err)
	}
	if client.UserID != actor.UserID {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Draft: %w: client belongs to another user", domain.ErrForbidden)
	}

	found, err := s.catalog.ListByIDs(ctx, in.ServiceIDs)
	if err != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Draft: services: %w", err)
	}
	byID := make(map[uuid.UUID]domain.Service, len(found))
	for _, svc := range found {
		byID[svc.ID] = svc
	}
	items := make([]domain.VisitService, 0, len(in.ServiceIDs))
	for _, id := range in.ServiceIDs {
		svc, ok := byID[id]
		if !ok {
			return domain.Visit{}, fmt.Errorf("service.VisitService.Draft: %w: service %s", domain.ErrNotFound, id)
		}
		items = append(items, domain.VisitService{ServiceID: svc.ID, Name: svc.Name, Fee: svc.Fee})
	}

	created, err := s.visits.Create(ctx, domain.Visit{
		UserID:   actor.UserID,
		ClientID: client.ID,
		Address:  client.Address,
		Notes:    strings.TrimSpace(in.Notes),
		BaseFee:  s.baseFee,
		Services: items,
	})
	if err != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Draft: %w", err)
	}

	s.log.InfoContext(ctx, "visit drafted", "visit_id", created.ID, "actor", actor.UserID, "services", len(items))
	s.publish(ctx, domain.NewVisitEvent(domain.EventVisitDrafted, created, created.CreatedAt))
	return created, nil
}

// Release authorizes payment and makes the visit available to workers.
// It is safe to retry after domain.ErrPaymentFailed or a timeout: a charge
// already made for the visit is found and reused, never repeated. When the
// gateway outcome is unknown the payment claim is kept, so retries get
// domain.ErrConflict until the claim expires and the retry can reconcile.
func (s *VisitService) Release(ctx context.Context, actor domain.Actor, visitID uuid.UUID) (domain.Visit, error) {
	v, err := s.load(ctx, visitID)
	if err != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Release: %w", err)
	}
	if v.CancelledAt != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Release: %w: visit is cancelled", domain.ErrConflict)
	}
	if v.ReleasedAt != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Release: %w: visit is already released", domain.ErrConflict)
	}
	if err := Authorize(v, RelationRequester, actor.UserID); err != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Release: %w", err)
	}

	funding, err := s.payments.Prepare(ctx, v.UserID)
	if err != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Release: %w", err)
	}

	now := s.now()
	claimed, err := s.visits.ClaimPayment(ctx, v.ID, now, now.Add(-s.claimTTL))
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return domain.Visit{}, fmt.Errorf("service.VisitService.Release: %w: payment already in progress", domain.ErrConflict)
		}
		return domain.Visit{}, fmt.Errorf("service.VisitService.Release: %w", err)
	}

	// The gateway attempt ignores caller cancellation and must finish well
	// before the claim goes stale, so no retry can charge alongside it.
	gctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.claimTTL/2)
	defer cancel()

	amount := s.fees.Amount(claimed)
	charge, err := s.payments.Charge(gctx, funding, claimed, amount)
	if err != nil {
		if chargeSettled(err) {
			if rerr := s.visits.ReleaseClaim(context.WithoutCancel(ctx), v.ID); rerr != nil {
				s.log.ErrorContext(ctx, "release payment claim failed", "visit_id", v.ID, "error", rerr)
			}
		} else {
			s.log.WarnContext(ctx, "payment claim kept until reconciled",
				"visit_id", v.ID, "claim_expires", now.Add(s.claimTTL))
		}
		return domain.Visit{}, fmt.Errorf("service.VisitService.Release: %w", err)
	}

	// The charge exists now; persist it even if the caller has gone away.
	released, err := s.visits.MarkReleased(context.WithoutCancel(ctx), v.ID, charge.ID, s.now())
	if err != nil {
		s.log.ErrorContext(ctx, "charge not recorded", "visit_id", v.ID, "charge_id", charge.ID, "error", err)
		return domain.Visit{}, fmt.Errorf("service.VisitService.Release: %w", err)
	}

	s.logTransition(ctx, released, domain.StateDraft, actor.UserID, "amount", amount)
	ev := domain.NewVisitEvent(domain.EventVisitReleased, released, *released.ReleasedAt)
	ev.Amount = amount
	s.publish(ctx, ev)
	return released, nil
}

// Match assigns the acting worker to a released, unassigned visit.
func (s *VisitService) Match(ctx context.Context, actor domain.Actor, visitID uuid.UUID) (domain.Visit, error) {
	v, err := s.load(ctx, visitID)
	if err != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Match: %w", err)
	}
	worker, err := s.worker(ctx, actor)
	if err != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Match: %w", err)
	}
	if v.CancelledAt != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Match: %w: visit is cancelled", domain.ErrConflict)
	}
	if err := Authorize(v, RelationUnassigned, worker.ID); err != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Match: %w", err)
	}
	if v.ReleasedAt == nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Match: %w: visit is not released", domain.ErrConflict)
	}
	if !worker.Qualified(v.ServiceIDs()) {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Match: %w: not qualified for every requested service", domain.ErrForbidden)
	}

	matched, err := s.visits.MarkMatched(ctx, v.ID, worker.ID, s.now())
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Tell a lost race apart from the worker's own active assignment.
			if latest, lerr := s.visits.GetByID(ctx, v.ID); lerr == nil && latest.AgencyUserID != nil {
				return domain.Visit{}, fmt.Errorf("service.VisitService.Match: %w", domain.ErrAlreadyTaken)
			}
		}
		return domain.Visit{}, fmt.Errorf("service.VisitService.Match: %w", err)
	}

	s.logTransition(ctx, matched, domain.StateReleased, actor.UserID)
	s.publish(ctx, domain.NewVisitEvent(domain.EventVisitMatched, matched, *matched.MatchedAt))
	return matched, nil
}

// Start records that the assigned worker has begun the visit.
func (s *VisitService) Start(ctx context.Context, actor domain.Actor, visitID uuid.UUID) (domain.Visit, error) {
	v, err := s.load(ctx, visitID)
	if err != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Start: %w", err)
	}
	worker, err := s.worker(ctx, actor)
	if err != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Start: %w", err)
	}
	if v.CancelledAt != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Start: %w: visit is cancelled", domain.ErrConflict)
	}
	if v.StartedAt != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Start: %w: visit is already started", domain.ErrConflict)
	}
	if err := Authorize(v, RelationAssignee, worker.ID); err != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Start: %w", err)
	}

	started, err := s.visits.MarkStarted(ctx, v.ID, worker.ID, s.now())
	if err != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Start: %w", err)
	}

	s.logTransition(ctx, started, domain.StateMatched, actor.UserID)
	s.publish(ctx, domain.NewVisitEvent(domain.EventVisitStarted, started, *started.StartedAt))
	return started, nil
}

// Finish records that the assigned worker has completed the visit.
func (s *VisitService) Finish(ctx context.Context, actor domain.Actor, visitID uuid.UUID) (domain.Visit, error) {
	v, err := s.load(ctx, visitID)
	if err != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Finish: %w", err)
	}
	worker, err := s.worker(ctx, actor)
	if err != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Finish: %w", err)
	}
	if v.CancelledAt != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Finish: %w: visit is cancelled", domain.ErrConflict)
	}
	if v.FinishedAt != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Finish: %w: visit is already finished", domain.ErrConflict)
	}
	if err := Authorize(v, RelationAssignee, worker.ID); err != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Finish: %w", err)
	}
	if v.StartedAt == nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Finish: %w: visit is not started", domain.ErrConflict)
	}

	finished, err := s.visits.MarkFinished(ctx, v.ID, worker.ID, s.now())
	if err != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Finish: %w", err)
	}

	s.logTransition(ctx, finished, domain.StateStarted, actor.UserID)
	s.publish(ctx, domain.NewVisitEvent(domain.EventVisitFinished, finished, *finished.FinishedAt))
	return finished, nil
}

// Cancel freezes a non-terminal visit. Only the requester may cancel, and not
// while a release is charging. No refund is issued here.
func (s *VisitService) Cancel(ctx context.Context, actor domain.Actor, visitID uuid.UUID) (domain.Visit, error) {
	v, err := s.load(ctx, visitID)
	if err != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Cancel: %w", err)
	}
	if v.CancelledAt != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Cancel: %w: visit is already cancelled", domain.ErrConflict)
	}
	if v.FinishedAt != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Cancel: %w: visit is finished", domain.ErrConflict)
	}
	if err := Authorize(v, RelationRequester, actor.UserID); err != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Cancel: %w", err)
	}
	if v.PaymentPendingAt != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Cancel: %w: payment in progress", domain.ErrConflict)
	}

	from := v.State()
	cancelled, err := s.visits.MarkCancelled(ctx, v.ID, s.now())
	if err != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Cancel: %w", err)
	}

	s.logTransition(ctx, cancelled, from, actor.UserID)
	s.publish(ctx, domain.NewVisitEvent(domain.EventVisitCancelled, cancelled, *cancelled.CancelledAt))
	return cancelled, nil
}

// Delete soft-deletes a draft or cancelled visit owned by the actor.
func (s *VisitService) Delete(ctx context.Context, actor domain.Actor, visitID uuid.UUID) error {
	v, err := s.load(ctx, visitID)
	if err != nil {
		return fmt.Errorf("service.VisitService.Delete: %w", err)
	}
	if err := Authorize(v, RelationRequester, actor.UserID); err != nil {
		return fmt.Errorf("service.VisitService.Delete: %w", err)
	}
	if st := v.State(); st != domain.StateDraft && st != domain.StateCancelled {
		return fmt.Errorf("service.VisitService.Delete: %w: only draft or cancelled visits can be deleted", domain.ErrConflict)
	}
	if err := s.visits.SoftDelete(ctx, v.ID, s.now()); err != nil {
		return fmt.Errorf("service.VisitService.Delete: %w", err)
	}
	s.log.InfoContext(ctx, "visit deleted", "visit_id", v.ID, "actor", actor.UserID)
	return nil
}

// Get returns a visit the actor is allowed to see. Visits the actor has no
// relation to are reported as domain.ErrNotFound.
func (s *VisitService) Get(ctx context.Context, actor domain.Actor, visitID uuid.UUID) (domain.Visit, error) {
	v, err := s.load(ctx, visitID)
	if err != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Get: %w", err)
	}
	var worker *domain.AgencyUser
	if w, err := s.workers.GetByUserID(ctx, actor.UserID); err == nil {
		worker = &w
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Get: %w", err)
	}
	if !CanView(v, actor.UserID, worker) {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Get: %w", domain.ErrNotFound)
	}
	return v, nil
}

// ListOpen returns the visits the acting worker could match right now.
func (s *VisitService) ListOpen(ctx context.Context, actor domain.Actor) ([]domain.Visit, error) {
	worker, err := s.worker(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("service.VisitService.ListOpen: %w", err)
	}
	visits, err := s.visits.ListOpen(ctx, worker.ID)
	if err != nil {
		return nil, fmt.Errorf("service.VisitService.ListOpen: %w", err)
	}
	return visits, nil
}

// ListActive returns the requester's released visits that are still in progress.
func (s *VisitService) ListActive(ctx context.Context, actor domain.Actor) ([]domain.Visit, error) {
	visits, err := s.visits.ListActiveByUserID(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("service.VisitService.ListActive: %w", err)
	}
	return visits, nil
}

// Current returns the acting worker's active assignment.
func (s *VisitService) Current(ctx context.Context, actor domain.Actor) (domain.Visit, error) {
	worker, err := s.worker(ctx, actor)
	if err != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Current: %w", err)
	}
	v, err := s.visits.GetActiveByAgencyUserID(ctx, worker.ID)
	if err != nil {
		return domain.Visit{}, fmt.Errorf("service.VisitService.Current: %w", err)
	}
	return v, nil
}

// Quote returns the amount Release would charge for the visit as it is stored.
func (s *VisitService) Quote(ctx context.Context, visitID uuid.UUID) (int64, error) {
	v, err := s.load(ctx, visitID)
	if err != nil {
		return 0, fmt.Errorf("service.VisitService.Quote: %w", err)
	}
	return s.fees.Amount(v), nil
}

// load fetches a visit, treating soft-deleted visits as absent.
func (s *VisitService) load(ctx context.Context, id uuid.UUID) (domain.Visit, error) {
	v, err := s.visits.GetByID(ctx, id)
	if err != nil {
		return domain.Visit{}, err
	}
	if v.Deleted() {
		return domain.Visit{}, domain.ErrNotFound
	}
	return v, nil
}

// worker resolves the actor's agency user. An actor who is not a worker is
// forbidden from worker operations.
func (s *VisitService) worker(ctx context.Context, actor domain.Actor) (domain.AgencyUser, error) {
	w, err := s.workers.GetByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.AgencyUser{}, fmt.Errorf("%w: not an agency user", domain.ErrForbidden)
		}
		return domain.AgencyUser{}, err
	}
	return w, nil
}

func (s *VisitService) logTransition(ctx context.Context, v domain.Visit, from domain.State, actor uuid.UUID, extra ...any) {
	attrs := append([]any{"visit_id", v.ID, "from", from, "to", v.State(), "actor", actor}, extra...)
	s.log.InfoContext(ctx, "visit transition", attrs...)
}

// publish sends an event without letting a broker failure affect the caller.
func (s *VisitService) publish(ctx context.Context, ev domain.VisitEvent) {
	if s.events == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()
	if err := s.events.Publish(pctx, ev); err != nil {
		s.log.WarnContext(ctx, "publish event failed", "type", ev.Type, "visit_id", ev.VisitID, "error", err)
	}
}

func validateDraft(in DraftInput) error {
	if in.ClientID == uuid.Nil {
		return fmt.Errorf("%w: client_id is required", domain.ErrValidation)
	}
	if len(in.ServiceIDs) == 0 {
		return fmt.Errorf("%w: at least one service is required", domain.ErrValidation)
	}
	seen := make(map[uuid.UUID]struct{}, len(in.ServiceIDs))
	for _, id := range in.ServiceIDs {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: service %s listed twice", domain.ErrValidation, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
