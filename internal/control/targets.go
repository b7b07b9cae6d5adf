package control

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hakim/reconcore/internal/models"
	"github.com/hakim/reconcore/internal/pipeline"
)

type createTargetRequest struct {
	Name     string   `json:"name"`
	Domain   string   `json:"domain"`
	Include  []string `json:"include,omitempty"`
	Exclude  []string `json:"exclude,omitempty"`
	IPRanges []string `json:"ip_ranges,omitempty"`
	ASNs     []string `json:"asns,omitempty"`
}

// createTarget validates the new target's own scope before persisting it:
// if Include patterns are given, Domain must satisfy at least one, and
// Domain must not fall under any Exclude pattern — Target.Include/Exclude
// bound the target's own apex, not just later discoveries.
func (s *Server) createTarget(w http.ResponseWriter, r *http.Request) {
	var req createTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.Domain == "" {
		badRequest(w, "domain is required")
		return
	}

	t := models.NewTarget(req.Name, req.Domain)
	t.Include = req.Include
	t.Exclude = req.Exclude
	t.IPRanges = req.IPRanges
	t.ASNs = req.ASNs

	scope := pipeline.ScopeFor(t)
	if err := scope.ValidateHost(t, t.Domain); err != nil {
		badRequest(w, err.Error())
		return
	}

	if err := s.store.CreateTarget(t); err != nil {
		storeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) listTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := s.store.ListTargets()
	if err != nil {
		storeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, targets)
}

func (s *Server) getTarget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := s.store.GetTarget(id)
	if err != nil {
		storeFailure(w, err)
		return
	}
	if t == nil {
		notFound(w, "target")
		return
	}
	writeJSON(w, http.StatusOK, t)
}
