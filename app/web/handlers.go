package web

import (
	"encoding/json"
	"net/http"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"

	"jobtrack/app/store"
)

// handleListJobs returns all jobs keyed by id. Always 200: the repository
// degrades to an empty result when the store is unreachable.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.jobs.All(r.Context()))
}

// handleGetJob returns a single job by id
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.Get(r.Context(), r.PathValue("id"))
	if !ok {
		s.writeJSONError(w, http.StatusNotFound, "Job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

// handleCreateJob creates a job from the request body, id supplied by the caller
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var job store.Job
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := s.jobs.Create(r.Context(), job)
	if err != nil {
		log.Printf("[ERROR] failed to create job %s: %v", job.ID, err)
		s.writeJSONError(w, http.StatusInternalServerError, "failed to create job")
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

// handleUpdateJob replaces a job's mutable fields, full-replace semantics
func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var job store.Job
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := s.jobs.Update(r.Context(), id, job)
	if err != nil {
		s.writeJSONError(w, http.StatusNotFound, "Job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, updated)
}

// handleDeleteJob removes a job. The success flag reports the store call
// outcome, not whether the job existed before.
func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	ok := s.jobs.Delete(r.Context(), r.PathValue("id"))
	s.writeJSON(w, http.StatusOK, rest.JSON{"success": ok})
}

// handleCleanup triggers an immediate purge of expired jobs
func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if err := s.jobs.PurgeExpired(r.Context()); err != nil {
		log.Printf("[WARN] manual cleanup failed: %v", err)
	}
	s.writeJSON(w, http.StatusOK, rest.JSON{"success": true})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[WARN] failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes a JSON error response
func (s *Server) writeJSONError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, rest.JSON{"error": message})
}
