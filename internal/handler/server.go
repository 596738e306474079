// Package handler implements the HTTP transport for the home-care API.
// All handlers are methods on Server. Methods are split into domain-specific
// files (health.go, visit.go, etc.) but share the same Server struct so they
// can access its dependencies.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pkordes/homecare/internal/domain"
	"github.com/pkordes/homecare/internal/service"
)

// VisitServicer defines the lifecycle operations the visit handlers depend on.
// Defining the interface here (in the consumer package) lets handler tests
// inject a mock without touching the database or service layer.
type VisitServicer interface {
	Draft(ctx context.Context, actor domain.Actor, in service.DraftInput) (domain.Visit, error)
	Release(ctx context.Context, actor domain.Actor, visitID uuid.UUID) (domain.Visit, error)
	Match(ctx context.Context, actor domain.Actor, visitID uuid.UUID) (domain.Visit, error)
	Start(ctx context.Context, actor domain.Actor, visitID uuid.UUID) (domain.Visit, error)
	Finish(ctx context.Context, actor domain.Actor, visitID uuid.UUID) (domain.Visit, error)
	Cancel(ctx context.Context, actor domain.Actor, visitID uuid.UUID) (domain.Visit, error)
	Delete(ctx context.Context, actor domain.Actor, visitID uuid.UUID) error
	Get(ctx context.Context, actor domain.Actor, visitID uuid.UUID) (domain.Visit, error)
	ListOpen(ctx context.Context, actor domain.Actor) ([]domain.Visit, error)
	ListActive(ctx context.Context, actor domain.Actor) ([]domain.Visit, error)
	Current(ctx context.Context, actor domain.Actor) (domain.Visit, error)
}

// AccountServicer defines the profile, client and card operations.
type AccountServicer interface {
	CreateMe(ctx context.Context, actor domain.Actor, email string, profile domain.User) (domain.User, error)
	UpdateMe(ctx context.Context, actor domain.Actor, profile domain.User) (domain.User, error)
	Me(ctx context.Context, actor domain.Actor) (domain.User, error)
	CreateClient(ctx context.Context, actor domain.Actor, c domain.Client) (domain.Client, error)
	ListClients(ctx context.Context, actor domain.Actor) ([]domain.Client, error)
	SaveCard(ctx context.Context, actor domain.Actor, token string) (domain.PaymentMethod, error)
}

// CatalogServicer lists the services a visit may include.
type CatalogServicer interface {
	ListServices(ctx context.Context) ([]domain.Service, error)
}

// Server holds the dependencies of every handler.
type Server struct {
	visits   VisitServicer
	accounts AccountServicer
	catalog  CatalogServicer
	log      *slog.Logger
}

// NewServer constructs the Server with all its dependencies.
func NewServer(visits VisitServicer, accounts AccountServicer, catalog CatalogServicer, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{visits: visits, accounts: accounts, catalog: catalog, log: log}
}

// Routes returns the API router. authenticate guards every route except the
// health check and the OpenAPI document.
func (s *Server) Routes(authenticate func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.GetHealth)
	r.Get("/openapi.yaml", s.GetOpenAPI)

	r.Group(func(r chi.Router) {
		r.Use(authenticate)

		r.Route("/me", func(r chi.Router) {
			r.Get("/", s.GetMe)
			r.Post("/", s.CreateMe)
			r.Put("/", s.UpdateMe)
			r.Post("/cards", s.SaveCard)
			r.Get("/clients", s.ListClients)
			r.Post("/clients", s.CreateClient)
		})

		r.Get("/services", s.ListServices)

		r.Route("/visits", func(r chi.Router) {
			r.Post("/", s.DraftVisit)
			r.Get("/active", s.ListActiveVisits)
			r.Get("/open", s.ListOpenVisits)
			r.Get("/current", s.CurrentVisit)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.GetVisit)
				r.Delete("/", s.DeleteVisit)
				r.Post("/release", s.transition(s.visits.Release))
				r.Post("/match", s.transition(s.visits.Match))
				r.Post("/start", s.transition(s.visits.Start))
				r.Post("/finish", s.transition(s.visits.Finish))
				r.Post("/cancel", s.transition(s.visits.Cancel))
			})
		})
	})
	return r
}
