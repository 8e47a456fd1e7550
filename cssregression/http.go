// CLAUDE:SUMMARY Read-only chi API over run history: runs, per-case results and the recorded PNG artifacts.
package cssregression

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/cssregression/cssregression/internal/store"
)

// Router returns a chi router with the service routes and the standard
// middleware stack.
func (s *Service) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.RegisterHTTP(r)
	return r
}

// RegisterHTTP mounts the history endpoints on r.
func (s *Service) RegisterHTTP(r chi.Router) {
	r.Route("/api/runs", func(r chi.Router) {
		r.Get("/", s.handleListRuns)
		r.Get("/{id}", s.handleGetRun)
		r.Get("/{id}/results", s.handleResults)
		r.Get("/{id}/results/{n}/{kind}.png", s.handleArtifact)
	})
}

// GET /api/runs?limit=n
func (s *Service) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if err := s.requireStore(); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// GET /api/runs/{id}
func (s *Service) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if err := s.requireStore(); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, errors.New("run not found"))
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GET /api/runs/{id}/results?failed=1
func (s *Service) handleResults(w http.ResponseWriter, r *http.Request) {
	if err := s.requireStore(); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	failedOnly, _ := strconv.ParseBool(r.URL.Query().Get("failed"))
	results, err := s.store.Results(r.Context(), chi.URLParam(r, "id"), failedOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if results == nil {
		results = []*store.Result{}
	}
	writeJSON(w, http.StatusOK, results)
}

// GET /api/runs/{id}/results/{n}/{kind}.png
func (s *Service) handleArtifact(w http.ResponseWriter, r *http.Request) {
	if err := s.requireStore(); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid result number"))
		return
	}
	res, err := s.store.GetResult(r.Context(), chi.URLParam(r, "id"), n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if res == nil {
		writeError(w, http.StatusNotFound, errors.New("result not found"))
		return
	}

	var path string
	switch chi.URLParam(r, "kind") {
	case "reference":
		path = res.ReferencePath
	case "test":
		path = res.TestPath
	case "difference":
		path = res.DifferencePath
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown artifact kind"))
		return
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		writeError(w, http.StatusNotFound, errors.New("artifact not found"))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeContent(w, r, "", info.ModTime(), f)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
