package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/homecare/internal/domain"
	"github.com/pkordes/homecare/internal/handler"
	"github.com/pkordes/homecare/internal/middleware"
	"github.com/pkordes/homecare/internal/service"
)

type visitOp func(ctx context.Context, actor domain.Actor, id uuid.UUID) (domain.Visit, error)

// mockVisitServicer is a test double for handler.VisitServicer.
// Set only the method fields your test needs.
type mockVisitServicer struct {
	draft      func(ctx context.Context, actor domain.Actor, in service.DraftInput) (domain.Visit, error)
	release    visitOp
	match      visitOp
	start      visitOp
	finish     visitOp
	cancel     visitOp
	get        visitOp
	delete     func(ctx context.Context, actor domain.Actor, id uuid.UUID) error
	listOpen   func(ctx context.Context, actor domain.Actor) ([]domain.Visit, error)
	listActive func(ctx context.Context, actor domain.Actor) ([]domain.Visit, error)
	current    func(ctx context.Context, actor domain.Actor) (domain.Visit, error)
}

func (m *mockVisitServicer) Draft(ctx context.Context, a domain.Actor, in service.DraftInput) (domain.Visit, error) {
	return m.draft(ctx, a, in)
}
func (m *mockVisitServicer) Release(ctx context.Context, a domain.Actor, id uuid.UUID) (domain.Visit, error) {
	return m.release(ctx, a, id)
}
func (m *mockVisitServicer) Match(ctx context.Context, a domain.Actor, id uuid.UUID) (domain.Visit, error) {
	return m.match(ctx, a, id)
}
func (m *mockVisitServicer) Start(ctx context.Context, a domain.Actor, id uuid.UUID) (domain.Visit, error) {
	return m.start(ctx, a, id)
}
func (m *mockVisitServicer) Finish(ctx context.Context, a domain.Actor, id uuid.UUID) (domain.Visit, error) {
	return m.finish(ctx, a, id)
}
func (m *mockVisitServicer) Cancel(ctx context.Context, a domain.Actor, id uuid.UUID) (domain.Visit, error) {
	return m.cancel(ctx, a, id)
}
func (m *mockVisitServicer) Delete(ctx context.Context, a domain.Actor, id uuid.UUID) error {
	return m.delete(ctx, a, id)
}
func (m *mockVisitServicer) Get(ctx context.Context, a domain.Actor, id uuid.UUID) (domain.Visit, error) {
	return m.get(ctx, a, id)
}
func (m *mockVisitServicer) ListOpen(ctx context.Context, a domain.Actor) ([]domain.Visit, error) {
	return m.listOpen(ctx, a)
}
func (m *mockVisitServicer) ListActive(ctx context.Context, a domain.Actor) ([]domain.Visit, error) {
	return m.listActive(ctx, a)
}
func (m *mockVisitServicer) Current(ctx context.Context, a domain.Actor) (domain.Visit, error) {
	return m.current(ctx, a)
}

var _ handler.VisitServicer = (*mockVisitServicer)(nil)

// mockAccountServicer is a test double for handler.AccountServicer.
type mockAccountServicer struct {
	createMe     func(ctx context.Context, actor domain.Actor, email string, profile domain.User) (domain.User, error)
	updateMe     func(ctx context.Context, actor domain.Actor, profile domain.User) (domain.User, error)
	me           func(ctx context.Context, actor domain.Actor) (domain.User, error)
	createClient func(ctx context.Context, actor domain.Actor, c domain.Client) (domain.Client, error)
	listClients  func(ctx context.Context, actor domain.Actor) ([]domain.Client, error)
	saveCard     func(ctx context.Context, actor domain.Actor, token string) (domain.PaymentMethod, error)
}

func (m *mockAccountServicer) CreateMe(ctx context.Context, a domain.Actor, email string, p domain.User) (domain.User, error) {
	return m.createMe(ctx, a, email, p)
}
func (m *mockAccountServicer) UpdateMe(ctx context.Context, a domain.Actor, p domain.User) (domain.User, error) {
	return m.updateMe(ctx, a, p)
}
func (m *mockAccountServicer) Me(ctx context.Context, a domain.Actor) (domain.User, error) {
	return m.me(ctx, a)
}
func (m *mockAccountServicer) CreateClient(ctx context.Context, a domain.Actor, c domain.Client) (domain.Client, error) {
	return m.createClient(ctx, a, c)
}
func (m *mockAccountServicer) ListClients(ctx context.Context, a domain.Actor) ([]domain.Client, error) {
	return m.listClients(ctx, a)
}
func (m *mockAccountServicer) SaveCard(ctx context.Context, a domain.Actor, token string) (domain.PaymentMethod, error) {
	return m.saveCard(ctx, a, token)
}

var _ handler.AccountServicer = (*mockAccountServicer)(nil)

// mockCatalogServicer is a test double for handler.CatalogServicer.
type mockCatalogServicer struct {
	listServices func(ctx context.Context) ([]domain.Service, error)
}

func (m *mockCatalogServicer) ListServices(ctx context.Context) ([]domain.Service, error) {
	return m.listServices(ctx)
}

var _ handler.CatalogServicer = (*mockCatalogServicer)(nil)

// ---- helpers ---------------------------------------------------------------

var testActor = domain.Actor{UserID: uuid.MustParse("0b6f2a3e-6a3c-4a53-9d51-3f3c2e0f7a10")}

// asActor stands in for the bearer-token authenticator.
func asActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := middleware.WithActor(r.Context(), testActor, "ann@example.com")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type servicers struct {
	visits   *mockVisitServicer
	accounts *mockAccountServicer
	catalog  *mockCatalogServicer
}

// newHTTPHandler wires a Server with the given mocks into the chi router the
// same way main.go does, with a fixed authenticated actor.
func newHTTPHandler(s servicers) http.Handler {
	if s.visits == nil {
		s.visits = &mockVisitServicer{}
	}
	if s.accounts == nil {
		s.accounts = &mockAccountServicer{}
	}
	if s.catalog == nil {
		s.catalog = &mockCatalogServicer{}
	}
	srv := handler.NewServer(s.visits, s.accounts, s.catalog, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return srv.Routes(asActor)
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func decodeError(t *testing.T, body io.Reader) handler.ErrorDetail {
	t.Helper()
	var resp handler.ErrorResponse
	require.NoError(t, json.NewDecoder(body).Decode(&resp))
	return resp.Error
}
