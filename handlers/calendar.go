package handlers

import (
	"encoding/json"
	"net/http"

	"gridalert/services/calendar"
)

// CalendarHandler serves the calendar API endpoints.
type CalendarHandler struct {
	Service *calendar.Service
}

// NewCalendarHandler creates a new CalendarHandler.
func NewCalendarHandler(service *calendar.Service) *CalendarHandler {
	return &CalendarHandler{Service: service}
}

// GetCalendar returns the full event list in display order.
// GET /api/calendar
func (h *CalendarHandler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	events := h.Service.Snapshot()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"events": events,
		"total":  len(events),
	})
}

// RefreshCalendar requests an immediate upstream refresh. The refresh runs on
// the background worker; this endpoint only signals it.
// POST /api/calendar/refresh
func (h *CalendarHandler) RefreshCalendar(w http.ResponseWriter, r *http.Request) {
	h.Service.Refresh()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
	})
}
