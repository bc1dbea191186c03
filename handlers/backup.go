package handlers

import (
	"encoding/json"
	"net/http"

	"gridalert/services/backup"
)

// BackupHandler handles backup API endpoints.
type BackupHandler struct {
	backupService *backup.Service
}

// NewBackupHandler creates a new backup handler.
func NewBackupHandler(backupService *backup.Service) *BackupHandler {
	return &BackupHandler{backupService: backupService}
}

// ListBackups returns all available backups, newest first.
// GET /api/backups
func (h *BackupHandler) ListBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := h.backupService.List()
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": "Failed to list backups: " + err.Error(),
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"backups": backups,
	})
}

// CreateBackup creates a new state backup.
// POST /api/backup
func (h *BackupHandler) CreateBackup(w http.ResponseWriter, r *http.Request) {
	info, err := h.backupService.Create()
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": "Failed to create backup: " + err.Error(),
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"backup":  info,
	})
}
