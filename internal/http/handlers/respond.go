package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// Timestamps are rendered in the clock's zone with millisecond precision
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

type messageResponse struct {
	Message string `json:"message"`
}

func formatTime(t time.Time) string {
	return t.Format(timeLayout)
}

func respondWithJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, messageResponse{Message: message})
}
