package control

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hakim/reconcore/internal/models"
)

type createScanRequest struct {
	TargetID    string   `json:"target_id"`
	Profile     string   `json:"profile,omitempty"`
	StopOnError bool     `json:"stop_on_error,omitempty"`
	SkipStages  []string `json:"skip_stages,omitempty"`
}

func (s *Server) createScan(w http.ResponseWriter, r *http.Request) {
	var req createScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.TargetID == "" {
		badRequest(w, "target_id is required")
		return
	}
	target, err := s.store.GetTarget(req.TargetID)
	if err != nil {
		storeFailure(w, err)
		return
	}
	if target == nil {
		notFound(w, "target")
		return
	}

	sc := models.NewScan(req.TargetID, models.Profile(req.Profile))
	sc.StopOnError = req.StopOnError
	sc.SkipStages = req.SkipStages

	if err := s.store.CreateScan(sc); err != nil {
		storeFailure(w, err)
		return
	}
	s.queue.Add(sc.ID)
	s.hub.broadcast(event{Type: "scan_queued", ScanID: sc.ID})

	writeJSON(w, http.StatusCreated, sc)
}

func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sc, err := s.store.GetScan(id)
	if err != nil {
		storeFailure(w, err)
		return
	}
	if sc == nil {
		notFound(w, "scan")
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) pauseScan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.queue.Pause(id); err != nil {
		badRequest(w, err.Error())
		return
	}
	s.hub.broadcast(event{Type: "scan_paused", ScanID: id})
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) resumeScan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.queue.Resume(id); err != nil {
		badRequest(w, err.Error())
		return
	}
	s.hub.broadcast(event{Type: "scan_resumed", ScanID: id})
	writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

func (s *Server) stopScan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.queue.Stop(id); err != nil {
		badRequest(w, err.Error())
		return
	}
	s.hub.broadcast(event{Type: "scan_stopped", ScanID: id})
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) listSubdomains(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rows, err := s.store.ListSubdomains(id)
	if err != nil {
		storeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) listVulnerabilities(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rows, err := s.store.ListFindings(id)
	if err != nil {
		storeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
