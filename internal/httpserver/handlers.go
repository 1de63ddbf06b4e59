package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"

	"burnbin/internal/paste"
	"burnbin/internal/storage"
)

type createResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	OK bool `json:"ok"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.maxBytes))

	var input paste.CreateInput
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&input); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "body must be a JSON object"})
		return
	}

	validated, err := paste.ValidateCreateInput(input)
	if err != nil {
		var verr *paste.ValidationError
		if errors.As(err, &verr) {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Message})
			return
		}
		s.serverError(w, err)
		return
	}

	nowMS := s.clock.FromRequest(r)
	pasteID, err := paste.CreatePaste(r.Context(), s.store, s.idGen, validated, nowMS)
	if err != nil {
		s.serverError(w, err)
		return
	}

	pastesCreated.Inc()
	s.writeJSON(w, http.StatusCreated, createResponse{
		ID:  pasteID,
		URL: s.pasteURL(r, pasteID),
	})
}

func (s *Server) handleConsume(w http.ResponseWriter, r *http.Request) {
	pasteID := chi.URLParam(r, "id")
	nowMS := s.clock.FromRequest(r)

	resp, err := paste.ConsumePaste(r.Context(), s.store, pasteID, nowMS)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			consumeOutcomes.WithLabelValues("not_found").Inc()
			s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found"})
			return
		}
		consumeOutcomes.WithLabelValues("error").Inc()
		s.serverError(w, err)
		return
	}

	consumeOutcomes.WithLabelValues("hit").Inc()
	s.writeJSON(w, http.StatusOK, resp)
}

// handleQR renders a QR code for the paste link. It is computed from the id
// alone and never touches the store, so fetching a QR code cannot burn a
// view.
func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	pasteID := chi.URLParam(r, "id")
	if pasteID == "" {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found"})
		return
	}

	png, err := qrcode.Encode(s.pasteURL(r, pasteID), qrcode.Medium, 256)
	if err != nil {
		s.serverError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.store.HealthCheck(ctx); err != nil {
		if s.logger != nil {
			s.logger.Error("health check failed", "error", err)
		}
		s.writeJSON(w, http.StatusServiceUnavailable, healthResponse{OK: false})
		return
	}
	s.writeJSON(w, http.StatusOK, healthResponse{OK: true})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && s.logger != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) serverError(w http.ResponseWriter, err error) {
	if s.logger != nil {
		s.logger.Error("internal error", "error", err)
	}
	s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal_error"})
}
