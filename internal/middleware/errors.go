package middleware

import (
	"encoding/json"
	"net/http"
	"time"
)

// errorBody matches the envelope written by the HTTP adapter.
type errorBody struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg, Timestamp: time.Now().UTC().Format(time.RFC3339)})
}
