package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"

	"github.com/pkordes/homecare/internal/domain"
	"github.com/pkordes/homecare/internal/middleware"
	"github.com/pkordes/homecare/internal/service"
)

// DraftVisitRequest is the body of POST /visits.
type DraftVisitRequest struct {
	ClientID   uuid.UUID   `json:"client_id"`
	Notes      string      `json:"notes"`
	ServiceIDs []uuid.UUID `json:"service_ids"`
}

// VisitResponse is a visit plus its derived lifecycle state.
type VisitResponse struct {
	domain.Visit
	State domain.State `json:"state"`
}

func visitToResponse(v domain.Visit) VisitResponse {
	if v.Services == nil {
		v.Services = []domain.VisitService{}
	}
	return VisitResponse{Visit: v, State: v.State()}
}

func visitsToResponse(vs []domain.Visit) []VisitResponse {
	out := make([]VisitResponse, len(vs))
	for i, v := range vs {
		out[i] = visitToResponse(v)
	}
	return out
}

// DraftVisit handles POST /visits.
func (s *Server) DraftVisit(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var body DraftVisitRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	v, err := s.visits.Draft(r.Context(), actor, service.DraftInput{
		ClientID:   body.ClientID,
		Notes:      body.Notes,
		ServiceIDs: body.ServiceIDs,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, visitToResponse(v))
}

// GetVisit handles GET /visits/{id}.
func (s *Server) GetVisit(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	v, err := s.visits.Get(r.Context(), actor, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, visitToResponse(v))
}

// DeleteVisit handles DELETE /visits/{id}.
func (s *Server) DeleteVisit(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.visits.Delete(r.Context(), actor, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListActiveVisits handles GET /visits/active.
func (s *Server) ListActiveVisits(w http.ResponseWriter, r *http.Request) {
	s.list(w, r, s.visits.ListActive)
}

// ListOpenVisits handles GET /visits/open.
func (s *Server) ListOpenVisits(w http.ResponseWriter, r *http.Request) {
	s.list(w, r, s.visits.ListOpen)
}

// CurrentVisit handles GET /visits/current.
func (s *Server) CurrentVisit(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	v, err := s.visits.Current(r.Context(), actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, visitToResponse(v))
}

// transition adapts one lifecycle operation to POST /visits/{id}/<op>.
func (s *Server) transition(op func(context.Context, domain.Actor, uuid.UUID) (domain.Visit, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := s.actor(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		v, err := op(r.Context(), actor, id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, visitToResponse(v))
	}
}

func (s *Server) list(w http.ResponseWriter, r *http.Request, fn func(context.Context, domain.Actor) ([]domain.Visit, error)) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	vs, err := fn(r.Context(), actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": visitsToResponse(vs)})
}

// --- request helpers ---------------------------------------------------------

// actor returns the authenticated actor. Routes are mounted behind the
// authenticator, so a missing actor is a wiring bug.
func (s *Server) actor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	a, ok := middleware.ActorFrom(r.Context())
	if !ok {
		s.log.ErrorContext(r.Context(), "route reached without an authenticated actor", "path", r.URL.Path)
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: ErrorDetail{Code: "unauthorized", Message: "authentication required"}})
	}
	return a, ok
}

// pathID binds the {id} path parameter as a UUID.
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	var id uuid.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		requestError(w, http.StatusBadRequest, "invalid format for parameter id: must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
