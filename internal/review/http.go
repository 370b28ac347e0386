package review

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// approveRequest is the body of POST /reviews/{id}/approve.
type approveRequest struct {
	Resolution string `json:"resolution"`
}

// rejectRequest is the body of POST /reviews/{id}/reject.
type rejectRequest struct {
	Feedback string `json:"feedback"`
}

// NewRouter mounts the Human Review Service's out-of-band HTTP surface
// per spec.md §1's narrow "review-request contract" carve-out: approve
// and reject, plus a listing endpoint so a review front-end can poll the
// queue.
func NewRouter(service *Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/reviews", service.handleList)
	r.Get("/reviews/{id}", service.handleGet)
	r.Post("/reviews/{id}/approve", service.handleApprove)
	r.Post("/reviews/{id}/reject", service.handleReject)

	return r
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	pending, err := s.Pending()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, err := s.Get(id)
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Service) handleApprove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body approveRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if err := s.Approve(id, body.Resolution); err != nil {
		writeStatusForError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleReject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.Reject(id, body.Feedback); err != nil {
		writeStatusForError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeStatusForError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeError(w, http.StatusBadRequest, err)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
