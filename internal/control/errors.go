package control

import (
	"encoding/json"
	"net/http"
)

// errorResponse is the structured, taxonomy-tagged error body returned by
// the control surface — never a language-specific stack trace.
type errorResponse struct {
	Error string `json:"error"`
	Tag   string `json:"tag"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, tag, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Tag: tag})
}

func notFound(w http.ResponseWriter, what string) {
	writeError(w, http.StatusNotFound, "NotFound", what+" not found")
}

func badRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, "BadRequest", msg)
}

func storeFailure(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "StoreWriteFailure", err.Error())
}
