package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"disaster-alerts-go/internal/models"
)

// CreateAlertHandler stores an alert written by a teacher or admin and
// announces it to subscribers.
func (h *Handler) CreateAlertHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	claims, _ := CurrentClaims(r)

	var req struct {
		Title       string     `json:"title"`
		Description string     `json:"description"`
		StartTime   *time.Time `json:"startTime"`
		EndTime     *time.Time `json:"endTime"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" || req.StartTime == nil || req.EndTime == nil {
		writeError(w, http.StatusBadRequest, "Title, startTime and endTime are required")
		return
	}
	if req.EndTime.Before(*req.StartTime) {
		writeError(w, http.StatusBadRequest, "endTime must not be before startTime")
		return
	}

	start, end := req.StartTime.UTC(), req.EndTime.UTC()
	alert, err := h.Store.InsertAlert(r.Context(), models.StoredAlert{
		Title:       req.Title,
		Description: req.Description,
		StartTime:   &start,
		EndTime:     &end,
		CreatedBy:   strconv.Itoa(claims.UserID),
	})
	if err != nil {
		log.Println("Failed to create alert:", err)
		writeError(w, http.StatusInternalServerError, "Failed to create alert")
		return
	}

	meta, _ := json.Marshal(map[string]any{"title": alert.Title})
	if err := h.Store.InsertAudit(r.Context(), claims.UserID, "create_alert", "alert", alert.ID, string(meta)); err != nil {
		log.Println("Failed to write audit log:", err)
	}

	h.announce([]models.StoredAlert{alert})

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": alert.ID})
}

// AuditLogsHandler lists recent audit entries, newest first.
func (h *Handler) AuditLogsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = v
		}
	}

	logs, err := h.Store.GetAuditLogs(r.Context(), limit)
	if err != nil {
		log.Println("Failed to load audit logs:", err)
		writeError(w, http.StatusInternalServerError, "Failed to load audit logs")
		return
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}
