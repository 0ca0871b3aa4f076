package serve

import (
	"net/http"

	holonlog "github.com/holon-run/supportchat/pkg/log"
)

// TicketRequest is the body of POST /tickets.
type TicketRequest struct {
	Email string `json:"email"`
	Issue string `json:"issue"`
}

func (s *Server) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var req TicketRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, badRequest(err))
		return
	}
	t, err := s.cfg.Tickets.Create(r.Context(), req.Email, req.Issue)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	holonlog.Info("ticket created", "ticket_id", t.ID)
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	t, err := s.cfg.Tickets.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
