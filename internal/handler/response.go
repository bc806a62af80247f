package handler

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"safety-app/pkg/logger"
)

// isoMillis matches the timestamps the web client already parses
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

func timestamp(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}, logger *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithError(err).Error("Failed to encode response")
	}
}
