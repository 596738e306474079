package handler

import (
	"net/http"

	"github.com/pkordes/homecare/internal/domain"
)

// ListServices handles GET /services.
func (s *Server) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.catalog.ListServices(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if services == nil {
		services = []domain.Service{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": services})
}
