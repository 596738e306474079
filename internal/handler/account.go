package handler

import (
	"net/http"

	"github.com/pkordes/homecare/internal/domain"
	"github.com/pkordes/homecare/internal/middleware"
)

// ProfileRequest is the body of POST /me and PUT /me.
type ProfileRequest struct {
	FullName    string `json:"full_name"`
	PhoneNumber string `json:"phone_number"`
}

// SaveCardRequest is the body of POST /me/cards. Token is a card token
// produced client-side by the payment processor's SDK.
type SaveCardRequest struct {
	Token string `json:"token"`
}

// ClientRequest is the body of POST /me/clients.
type ClientRequest struct {
	FullName    string         `json:"full_name"`
	PhoneNumber string         `json:"phone_number"`
	Address     domain.Address `json:"address"`
}

// GetMe handles GET /me.
func (s *Server) GetMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	u, err := s.accounts.Me(r.Context(), actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// CreateMe handles POST /me. The email comes from the bearer token.
func (s *Server) CreateMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var body ProfileRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	u, err := s.accounts.CreateMe(r.Context(), actor, middleware.EmailFrom(r.Context()), domain.User{
		FullName:    body.FullName,
		PhoneNumber: body.PhoneNumber,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// UpdateMe handles PUT /me.
func (s *Server) UpdateMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var body ProfileRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	u, err := s.accounts.UpdateMe(r.Context(), actor, domain.User{FullName: body.FullName, PhoneNumber: body.PhoneNumber})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// SaveCard handles POST /me/cards.
func (s *Server) SaveCard(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var body SaveCardRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	pm, err := s.accounts.SaveCard(r.Context(), actor, body.Token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pm)
}

// ListClients handles GET /me/clients.
func (s *Server) ListClients(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	clients, err := s.accounts.ListClients(r.Context(), actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if clients == nil {
		clients = []domain.Client{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": clients})
}

// CreateClient handles POST /me/clients.
func (s *Server) CreateClient(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var body ClientRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	c, err := s.accounts.CreateClient(r.Context(), actor, domain.Client{
		FullName:    body.FullName,
		PhoneNumber: body.PhoneNumber,
		Address:     body.Address,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}
