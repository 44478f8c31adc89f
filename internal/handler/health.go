package handler

import "net/http"

// HandleHealth is the liveness probe.
//
// HTTP: GET /healthz → {"status":"ok"}
func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
