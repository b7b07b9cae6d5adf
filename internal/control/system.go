package control

import "net/http"

type systemStatusResponse struct {
	NetworkStatus  string   `json:"network_status"`
	AvailableMemMB int      `json:"available_mem_mb"`
	LLMModelLoaded string   `json:"llm_model_loaded,omitempty"`
	QueuePending   int      `json:"queue_pending"`
	QueueActive    []string `json:"queue_active"`
	QueuePaused    []string `json:"queue_paused"`
}

func (s *Server) systemStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.GetSystemState()
	if err != nil {
		storeFailure(w, err)
		return
	}
	qs := s.queue.QueueStatus()

	resp := systemStatusResponse{
		QueuePending: qs.Pending,
		QueueActive:  qs.Active,
		QueuePaused:  qs.Paused,
	}
	if st != nil {
		resp.NetworkStatus = string(st.NetworkStatus)
		resp.AvailableMemMB = st.AvailableMemMB
		resp.LLMModelLoaded = st.LLMModelLoaded
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) systemPause(w http.ResponseWriter, r *http.Request) {
	if s.resilient == nil {
		writeError(w, http.StatusServiceUnavailable, "ResilienceDisabled", "resilience monitor is not running")
		return
	}
	s.resilient.TriggerPause()
	s.hub.broadcast(event{Type: "system_paused"})
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) systemResume(w http.ResponseWriter, r *http.Request) {
	if s.resilient == nil {
		writeError(w, http.StatusServiceUnavailable, "ResilienceDisabled", "resilience monitor is not running")
		return
	}
	s.resilient.TriggerResume()
	s.hub.broadcast(event{Type: "system_resumed"})
	writeJSON(w, http.StatusOK, map[string]string{"status": "online"})
}
