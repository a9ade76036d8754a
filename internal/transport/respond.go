package transport

import (
	"encoding/json"
	"net/http"
)

// writeJSON mirrors sagasu's Server.respondJSON: set the content type,
// write the status, and encode the body, ignoring encode errors since the
// headers are already committed by the time encoding could fail.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
