package internal

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"itam-api/internal/models"
	"itam-api/internal/support"
)

// createSupportTicket forwards a help-desk request to the task tracker.
func (s *Server) createSupportTicket(w http.ResponseWriter, r *http.Request) {
	if !s.Support.Configured() {
		writeError(w, http.StatusServiceUnavailable, "SUPPORT_UNAVAILABLE", "Support ticketing is not configured")
		return
	}
	var req models.SupportTicketRequest
	if !s.decode(w, r, &req) {
		return
	}

	resp, err := s.Support.CreateTask(r.Context(), req)
	if err != nil {
		var upstream *support.UpstreamError
		switch {
		case errors.Is(err, support.ErrNotConfigured):
			writeError(w, http.StatusServiceUnavailable, "SUPPORT_UNAVAILABLE", "Support ticketing is not configured")
		case errors.As(err, &upstream):
			s.Log.Warn("support tracker rejected task", zap.Int("status", upstream.Status), zap.String("message", upstream.Message))
			writeError(w, http.StatusBadGateway, "UPSTREAM_ERROR", upstream.Message)
		default:
			s.Log.Error("support tracker unreachable", zap.Error(err))
			writeError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "Support tracker is unreachable")
		}
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}
