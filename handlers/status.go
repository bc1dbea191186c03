package handlers

import (
	"encoding/json"
	"net/http"

	"gridalert/services/calendar"
	"gridalert/services/notifier"
	"gridalert/services/users"
)

// StatusHandler serves the aggregated service status endpoint.
type StatusHandler struct {
	Calendar *calendar.Service
	Notifier *notifier.Service
	Users    *users.Service
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(cal *calendar.Service, n *notifier.Service, us *users.Service) *StatusHandler {
	return &StatusHandler{Calendar: cal, Notifier: n, Users: us}
}

// GetStatus returns the current state of the refresher and the scheduler.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"calendar":  h.Calendar.GetStatus(),
		"scheduler": h.Notifier.GetStatus(),
		"users":     len(h.Users.List()),
		"events":    h.Calendar.Len(),
	})
}
