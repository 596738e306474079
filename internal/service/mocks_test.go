package service_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pkordes/homecare/internal/domain"
	"github.com/pkordes/homecare/internal/repo"
	"github.com/pkordes/homecare/internal/service"
)

// mockVisitRepo is a hand-written test double for repo.VisitRepo.
// Each method is a function field; set only the ones your test needs.
type mockVisitRepo struct {
	create                  func(ctx context.Context, v domain.Visit) (domain.Visit, error)
	getByID                 func(ctx context.Context, id uuid.UUID) (domain.Visit, error)
	listOpen                func(ctx context.Context, agencyUserID uuid.UUID) ([]domain.Visit, error)
	listActiveByUserID      func(ctx context.Context, userID uuid.UUID) ([]domain.Visit, error)
	getActiveByAgencyUserID func(ctx context.Context, agencyUserID uuid.UUID) (domain.Visit, error)
	claimPayment            func(ctx context.Context, id uuid.UUID, at, staleBefore time.Time) (domain.Visit, error)
	releaseClaim            func(ctx context.Context, id uuid.UUID) error
	markReleased            func(ctx context.Context, id uuid.UUID, paymentIntentID string, at time.Time) (domain.Visit, error)
	markMatched             func(ctx context.Context, id, agencyUserID uuid.UUID, at time.Time) (domain.Visit, error)
	markStarted             func(ctx context.Context, id, agencyUserID uuid.UUID, at time.Time) (domain.Visit, error)
	markFinished            func(ctx context.Context, id, agencyUserID uuid.UUID, at time.Time) (domain.Visit, error)
	markCancelled           func(ctx context.Context, id uuid.UUID, at time.Time) (domain.Visit, error)
	softDelete              func(ctx context.Context, id uuid.UUID, at time.Time) error
}

func (m *mockVisitRepo) Create(ctx context.Context, v domain.Visit) (domain.Visit, error) {
	return m.create(ctx, v)
}
func (m *mockVisitRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Visit, error) {
	return m.getByID(ctx, id)
}
func (m *mockVisitRepo) ListOpen(ctx context.Context, agencyUserID uuid.UUID) ([]domain.Visit, error) {
	return m.listOpen(ctx, agencyUserID)
}
func (m *mockVisitRepo) ListActiveByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Visit, error) {
	return m.listActiveByUserID(ctx, userID)
}
func (m *mockVisitRepo) GetActiveByAgencyUserID(ctx context.Context, agencyUserID uuid.UUID) (domain.Visit, error) {
	return m.getActiveByAgencyUserID(ctx, agencyUserID)
}
func (m *mockVisitRepo) ClaimPayment(ctx context.Context, id uuid.UUID, at, staleBefore time.Time) (domain.Visit, error) {
	return m.claimPayment(ctx, id, at, staleBefore)
}
func (m *mockVisitRepo) ReleaseClaim(ctx context.Context, id uuid.UUID) error {
	return m.releaseClaim(ctx, id)
}
func (m *mockVisitRepo) MarkReleased(ctx context.Context, id uuid.UUID, paymentIntentID string, at time.Time) (domain.Visit, error) {
	return m.markReleased(ctx, id, paymentIntentID, at)
}
func (m *mockVisitRepo) MarkMatched(ctx context.Context, id, agencyUserID uuid.UUID, at time.Time) (domain.Visit, error) {
	return m.markMatched(ctx, id, agencyUserID, at)
}
func (m *mockVisitRepo) MarkStarted(ctx context.Context, id, agencyUserID uuid.UUID, at time.Time) (domain.Visit, error) {
	return m.markStarted(ctx, id, agencyUserID, at)
}
func (m *mockVisitRepo) MarkFinished(ctx context.Context, id, agencyUserID uuid.UUID, at time.Time) (domain.Visit, error) {
	return m.markFinished(ctx, id, agencyUserID, at)
}
func (m *mockVisitRepo) MarkCancelled(ctx context.Context, id uuid.UUID, at time.Time) (domain.Visit, error) {
	return m.markCancelled(ctx, id, at)
}
func (m *mockVisitRepo) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) error {
	return m.softDelete(ctx, id, at)
}

var _ repo.VisitRepo = (*mockVisitRepo)(nil)

// visitStore wires a mockVisitRepo to an in-memory map guarded by a mutex.
// Every Mark* closure applies the same preconditions as the SQL conditional
// updates, so races resolve exactly as they would in Postgres.
type visitStore struct {
	mu     sync.Mutex
	visits map[uuid.UUID]domain.Visit
}

func newVisitStore(visits ...domain.Visit) (*visitStore, *mockVisitRepo) {
	st := &visitStore{visits: map[uuid.UUID]domain.Visit{}}
	for _, v := range visits {
		st.visits[v.ID] = v
	}
	return st, st.repo()
}

func (st *visitStore) get(id uuid.UUID) domain.Visit {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.visits[id]
}

// update applies fn to the stored visit when ok reports the precondition holds.
func (st *visitStore) update(id uuid.UUID, ok func(domain.Visit) bool, fn func(*domain.Visit)) (domain.Visit, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	v, found := st.visits[id]
	if !found || !ok(v) {
		return domain.Visit{}, domain.ErrConflict
	}
	fn(&v)
	st.visits[id] = v
	return v, nil
}

func (st *visitStore) activeFor(agencyUserID uuid.UUID) bool {
	for _, v := range st.visits {
		if v.AssignedTo(agencyUserID) && v.FinishedAt == nil && v.CancelledAt == nil && v.DeletedAt == nil {
			return true
		}
	}
	return false
}

func (st *visitStore) repo() *mockVisitRepo {
	ptr := func(t time.Time) *time.Time { return &t }
	return &mockVisitRepo{
		create: func(_ context.Context, v domain.Visit) (domain.Visit, error) {
			st.mu.Lock()
			defer st.mu.Unlock()
			v.ID = uuid.New()
			v.CreatedAt = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
			for i := range v.Services {
				v.Services[i].ID = uuid.New()
				v.Services[i].VisitID = v.ID
			}
			st.visits[v.ID] = v
			return v, nil
		},
		getByID: func(_ context.Context, id uuid.UUID) (domain.Visit, error) {
			st.mu.Lock()
			defer st.mu.Unlock()
			v, ok := st.visits[id]
			if !ok {
				return domain.Visit{}, domain.ErrNotFound
			}
			return v, nil
		},
		getActiveByAgencyUserID: func(_ context.Context, agencyUserID uuid.UUID) (domain.Visit, error) {
			st.mu.Lock()
			defer st.mu.Unlock()
			for _, v := range st.visits {
				if v.AssignedTo(agencyUserID) && v.FinishedAt == nil && v.CancelledAt == nil && v.DeletedAt == nil {
					return v, nil
				}
			}
			return domain.Visit{}, domain.ErrNotFound
		},
		claimPayment: func(_ context.Context, id uuid.UUID, at, staleBefore time.Time) (domain.Visit, error) {
			return st.update(id, func(v domain.Visit) bool {
				return v.ReleasedAt == nil && v.CancelledAt == nil && v.DeletedAt == nil &&
					(v.PaymentPendingAt == nil || v.PaymentPendingAt.Before(staleBefore))
			}, func(v *domain.Visit) { v.PaymentPendingAt = ptr(at) })
		},
		releaseClaim: func(_ context.Context, id uuid.UUID) error {
			_, _ = st.update(id, func(v domain.Visit) bool { return v.ReleasedAt == nil },
				func(v *domain.Visit) { v.PaymentPendingAt = nil })
			return nil
		},
		markReleased: func(_ context.Context, id uuid.UUID, pi string, at time.Time) (domain.Visit, error) {
			return st.update(id, func(v domain.Visit) bool {
				return v.ReleasedAt == nil && v.CancelledAt == nil
			}, func(v *domain.Visit) {
				v.ReleasedAt = ptr(at)
				v.PaymentIntentID = pi
				v.PaymentPendingAt = nil
			})
		},
		markMatched: func(_ context.Context, id, agencyUserID uuid.UUID, at time.Time) (domain.Visit, error) {
			return st.update(id, func(v domain.Visit) bool {
				// Runs under st.mu, like the unique index check in Postgres.
				return !st.activeFor(agencyUserID) && v.ReleasedAt != nil && v.MatchedAt == nil && v.AgencyUserID == nil &&
					v.CancelledAt == nil && v.DeletedAt == nil
			}, func(v *domain.Visit) {
				v.MatchedAt = ptr(at)
				v.AgencyUserID = &agencyUserID
			})
		},
		markStarted: func(_ context.Context, id, agencyUserID uuid.UUID, at time.Time) (domain.Visit, error) {
			return st.update(id, func(v domain.Visit) bool {
				return v.AssignedTo(agencyUserID) && v.MatchedAt != nil && v.StartedAt == nil && v.CancelledAt == nil
			}, func(v *domain.Visit) { v.StartedAt = ptr(at) })
		},
		markFinished: func(_ context.Context, id, agencyUserID uuid.UUID, at time.Time) (domain.Visit, error) {
			return st.update(id, func(v domain.Visit) bool {
				return v.AssignedTo(agencyUserID) && v.StartedAt != nil && v.FinishedAt == nil && v.CancelledAt == nil
			}, func(v *domain.Visit) { v.FinishedAt = ptr(at) })
		},
		markCancelled: func(_ context.Context, id uuid.UUID, at time.Time) (domain.Visit, error) {
			return st.update(id, func(v domain.Visit) bool {
				return v.FinishedAt == nil && v.CancelledAt == nil && v.PaymentPendingAt == nil
			}, func(v *domain.Visit) { v.CancelledAt = ptr(at) })
		},
		softDelete: func(_ context.Context, id uuid.UUID, at time.Time) error {
			_, err := st.update(id, func(v domain.Visit) bool {
				return v.DeletedAt == nil && v.PaymentPendingAt == nil &&
					(v.ReleasedAt == nil || v.CancelledAt != nil)
			}, func(v *domain.Visit) { v.DeletedAt = ptr(at) })
			return err
		},
	}
}

// mockUserRepo is a hand-written test double for repo.UserRepo.
type mockUserRepo struct {
	create        func(ctx context.Context, u domain.User) (domain.User, error)
	getByID       func(ctx context.Context, id uuid.UUID) (domain.User, error)
	updateProfile func(ctx context.Context, u domain.User) (domain.User, error)
	setCustomerID func(ctx context.Context, id uuid.UUID, customerID string) (domain.User, error)
}

func (m *mockUserRepo) Create(ctx context.Context, u domain.User) (domain.User, error) {
	return m.create(ctx, u)
}
func (m *mockUserRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.User, error) {
	return m.getByID(ctx, id)
}
func (m *mockUserRepo) UpdateProfile(ctx context.Context, u domain.User) (domain.User, error) {
	return m.updateProfile(ctx, u)
}
func (m *mockUserRepo) SetCustomerID(ctx context.Context, id uuid.UUID, customerID string) (domain.User, error) {
	return m.setCustomerID(ctx, id, customerID)
}

var _ repo.UserRepo = (*mockUserRepo)(nil)

// userStore backs a mockUserRepo with a map.
func userStore(users ...domain.User) (map[uuid.UUID]domain.User, *mockUserRepo) {
	var mu sync.Mutex
	byID := map[uuid.UUID]domain.User{}
	for _, u := range users {
		byID[u.ID] = u
	}
	return byID, &mockUserRepo{
		create: func(_ context.Context, u domain.User) (domain.User, error) {
			mu.Lock()
			defer mu.Unlock()
			if _, ok := byID[u.ID]; ok {
				return domain.User{}, domain.ErrConflict
			}
			byID[u.ID] = u
			return u, nil
		},
		getByID: func(_ context.Context, id uuid.UUID) (domain.User, error) {
			mu.Lock()
			defer mu.Unlock()
			u, ok := byID[id]
			if !ok {
				return domain.User{}, domain.ErrNotFound
			}
			return u, nil
		},
		updateProfile: func(_ context.Context, in domain.User) (domain.User, error) {
			mu.Lock()
			defer mu.Unlock()
			u, ok := byID[in.ID]
			if !ok {
				return domain.User{}, domain.ErrNotFound
			}
			u.FullName, u.PhoneNumber = in.FullName, in.PhoneNumber
			byID[in.ID] = u
			return u, nil
		},
		setCustomerID: func(_ context.Context, id uuid.UUID, customerID string) (domain.User, error) {
			mu.Lock()
			defer mu.Unlock()
			u, ok := byID[id]
			if !ok || u.CustomerID != "" {
				return domain.User{}, domain.ErrConflict
			}
			u.CustomerID = customerID
			byID[id] = u
			return u, nil
		},
	}
}

// mockClientRepo is a hand-written test double for repo.ClientRepo.
type mockClientRepo struct {
	create       func(ctx context.Context, c domain.Client) (domain.Client, error)
	getByID      func(ctx context.Context, id uuid.UUID) (domain.Client, error)
	listByUserID func(ctx context.Context, userID uuid.UUID) ([]domain.Client, error)
}

func (m *mockClientRepo) Create(ctx context.Context, c domain.Client) (domain.Client, error) {
	return m.create(ctx, c)
}
func (m *mockClientRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Client, error) {
	return m.getByID(ctx, id)
}
func (m *mockClientRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Client, error) {
	return m.listByUserID(ctx, userID)
}

var _ repo.ClientRepo = (*mockClientRepo)(nil)

// mockServiceRepo is a hand-written test double for repo.ServiceRepo.
type mockServiceRepo struct {
	create    func(ctx context.Context, s domain.Service) (domain.Service, error)
	list      func(ctx context.Context) ([]domain.Service, error)
	listByIDs func(ctx context.Context, ids []uuid.UUID) ([]domain.Service, error)
}

func (m *mockServiceRepo) Create(ctx context.Context, s domain.Service) (domain.Service, error) {
	return m.create(ctx, s)
}
func (m *mockServiceRepo) List(ctx context.Context) ([]domain.Service, error) {
	return m.list(ctx)
}
func (m *mockServiceRepo) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Service, error) {
	return m.listByIDs(ctx, ids)
}

var _ repo.ServiceRepo = (*mockServiceRepo)(nil)

// catalogOf returns a mockServiceRepo whose lookups are served from services.
func catalogOf(services ...domain.Service) *mockServiceRepo {
	return &mockServiceRepo{
		list: func(context.Context) ([]domain.Service, error) { return services, nil },
		listByIDs: func(_ context.Context, ids []uuid.UUID) ([]domain.Service, error) {
			var out []domain.Service
			for _, s := range services {
				for _, id := range ids {
					if s.ID == id {
						out = append(out, s)
					}
				}
			}
			return out, nil
		},
	}
}

// mockAgencyUserRepo is a hand-written test double for repo.AgencyUserRepo.
type mockAgencyUserRepo struct {
	create      func(ctx context.Context, userID uuid.UUID, serviceIDs []uuid.UUID) (domain.AgencyUser, error)
	getByID     func(ctx context.Context, id uuid.UUID) (domain.AgencyUser, error)
	getByUserID func(ctx context.Context, userID uuid.UUID) (domain.AgencyUser, error)
}

func (m *mockAgencyUserRepo) Create(ctx context.Context, userID uuid.UUID, serviceIDs []uuid.UUID) (domain.AgencyUser, error) {
	return m.create(ctx, userID, serviceIDs)
}
func (m *mockAgencyUserRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.AgencyUser, error) {
	return m.getByID(ctx, id)
}
func (m *mockAgencyUserRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (domain.AgencyUser, error) {
	return m.getByUserID(ctx, userID)
}

var _ repo.AgencyUserRepo = (*mockAgencyUserRepo)(nil)

// workersOf returns a mockAgencyUserRepo that knows exactly the given workers.
func workersOf(workers ...domain.AgencyUser) *mockAgencyUserRepo {
	find := func(match func(domain.AgencyUser) bool) (domain.AgencyUser, error) {
		for _, w := range workers {
			if match(w) {
				return w, nil
			}
		}
		return domain.AgencyUser{}, domain.ErrNotFound
	}
	return &mockAgencyUserRepo{
		getByID: func(_ context.Context, id uuid.UUID) (domain.AgencyUser, error) {
			return find(func(w domain.AgencyUser) bool { return w.ID == id })
		},
		getByUserID: func(_ context.Context, userID uuid.UUID) (domain.AgencyUser, error) {
			return find(func(w domain.AgencyUser) bool { return w.UserID == userID })
		},
	}
}

// mockGateway is a hand-written test double for service.PaymentGateway that
// records successful charges by reference.
type mockGateway struct {
	mu      sync.Mutex
	calls   []string
	charges []domain.Charge // every charge created, in order

	getCustomer    func(ctx context.Context, id string) (domain.Customer, error)
	createCustomer func(ctx context.Context, email, name string) (domain.Customer, error)
	attach         func(ctx context.Context, customerID, token string) (domain.PaymentMethod, error)
	// chargeErr, when set, makes CreateAndConfirmCharge fail without charging.
	chargeErr error
	// afterCharge, when set, runs once the charge exists upstream. A non-nil
	// result replaces the response, as when the reply is lost in transit.
	afterCharge func(ctx context.Context) error
	findErr     error
}

func (m *mockGateway) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockGateway) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	m.record("GetCustomer")
	return m.getCustomer(ctx, id)
}
func (m *mockGateway) CreateCustomer(ctx context.Context, email, name string) (domain.Customer, error) {
	m.record("CreateCustomer")
	return m.createCustomer(ctx, email, name)
}
func (m *mockGateway) AttachPaymentMethod(ctx context.Context, customerID, token string) (domain.PaymentMethod, error) {
	m.record("AttachPaymentMethod")
	return m.attach(ctx, customerID, token)
}
func (m *mockGateway) CreateAndConfirmCharge(ctx context.Context, req domain.ChargeRequest) (domain.Charge, error) {
	m.record("CreateAndConfirmCharge")
	if m.chargeErr != nil {
		return domain.Charge{}, m.chargeErr
	}
	m.mu.Lock()
	c := domain.Charge{
		ID:        fmt.Sprintf("pay_%d", len(m.charges)+1),
		Status:    "approved",
		Amount:    req.Amount,
		Reference: req.Reference,
	}
	m.charges = append(m.charges, c)
	after := m.afterCharge
	m.mu.Unlock()

	if after != nil {
		if err := after(ctx); err != nil {
			return domain.Charge{}, err
		}
	}
	return c, nil
}
func (m *mockGateway) FindChargeByReference(_ context.Context, ref string) (domain.Charge, bool, error) {
	m.record("FindChargeByReference")
	if m.findErr != nil {
		return domain.Charge{}, false, m.findErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.charges {
		if c.Reference == ref {
			return c, true, nil
		}
	}
	return domain.Charge{}, false, nil
}

// chargeCount returns how many charges were created, repeats included.
func (m *mockGateway) chargeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.charges)
}

var _ service.PaymentGateway = (*mockGateway)(nil)

// mockPublisher records published events and optionally fails.
type mockPublisher struct {
	mu     sync.Mutex
	events []domain.VisitEvent
	err    error
	// stall makes Publish block until its context ends, like a broker
	// applying flow control.
	stall bool
}

func (m *mockPublisher) Publish(ctx context.Context, ev domain.VisitEvent) error {
	m.mu.Lock()
	m.events = append(m.events, ev)
	err, stall := m.err, m.stall
	m.mu.Unlock()
	if stall {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (m *mockPublisher) types() []domain.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.EventType, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.Type
	}
	return out
}

var _ service.EventPublisher = (*mockPublisher)(nil)
