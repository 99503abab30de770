package handlers

import (
	"encoding/json"
	"net/http"

	"media-cache/internal/logging"
)

// writeJSON encodes v as JSON and writes it to the response writer.
// Any encoding or write errors are logged since we typically cannot
// recover from them in an HTTP handler context.
func writeJSON(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONResponse sets the JSON content type and status, then writes v.
func writeJSONResponse(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, v)
}

// writeJSONError writes an error response as JSON with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONResponse(w, statusCode, map[string]string{"error": message})
}

// writeJSONStatus writes a simple status response as JSON.
func writeJSONStatus(w http.ResponseWriter, statusCode int, status string) {
	writeJSONResponse(w, statusCode, map[string]string{"status": status})
}
