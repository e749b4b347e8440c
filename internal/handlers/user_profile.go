package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"disaster-alerts-go/internal/models"
	"disaster-alerts-go/internal/store"
)

// CurrentUserHandler returns the account behind the bearer token.
func (h *Handler) CurrentUserHandler(w http.ResponseWriter, r *http.Request) {
	claims, _ := CurrentClaims(r)

	user, err := h.Store.GetUser(r.Context(), claims.UserID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		log.Println("Failed to load user:", err)
		writeError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": userView(user)})
}

// UpdateProfileHandler renames the caller.
func (h *Handler) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	claims, _ := CurrentClaims(r)

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name cannot be empty")
		return
	}

	if err := h.Store.UpdateUserProfile(r.Context(), claims.UserID, req.Name); err != nil {
		log.Printf("Failed to update profile: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to update profile")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// ChangePasswordHandler replaces the caller's password after checking the
// current one.
func (h *Handler) ChangePasswordHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	claims, _ := CurrentClaims(r)

	var req struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if len(req.NewPassword) < minPasswordLen {
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	user, err := h.Store.GetUser(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if !user.CheckPassword(req.OldPassword) {
		writeError(w, http.StatusUnauthorized, "Incorrect old password")
		return
	}

	newHash, err := models.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to hash password")
		return
	}

	if err := h.Store.UpdateUserPassword(r.Context(), user.ID, newHash); err != nil {
		log.Printf("Failed to update password: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to update password")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
