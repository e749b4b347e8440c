package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"disaster-alerts-go/internal/models"
	"disaster-alerts-go/internal/store"
)

const minPasswordLen = 8

// === User Management ===

// UsersHandler lists accounts (GET) or creates one (POST).
func (h *Handler) UsersHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.GetUsersHandler(w, r)
	case http.MethodPost:
		h.CreateUserHandler(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// UserHandler updates (PUT) or deletes (DELETE) /api/admin/users/{id}.
func (h *Handler) UserHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		h.UpdateUserHandler(w, r)
	case http.MethodDelete:
		h.DeleteUserHandler(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *Handler) GetUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.GetUsers(r.Context())
	if err != nil {
		log.Println("Failed to get users:", err)
		writeError(w, http.StatusInternalServerError, "Failed to get users")
		return
	}

	respUsers := make([]map[string]any, 0, len(users))
	for _, u := range users {
		view := userView(u)
		view["createdAt"] = u.CreatedAt
		respUsers = append(respUsers, view)
	}

	writeJSON(w, http.StatusOK, map[string]any{"users": respUsers})
}

func (h *Handler) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "Name and email are required")
		return
	}
	if len(req.Password) < minPasswordLen {
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}
	if !models.ValidRole(req.Role) {
		writeError(w, http.StatusBadRequest, "Invalid role")
		return
	}

	user, err := h.Store.CreateUser(r.Context(), req.Name, req.Email, req.Password, req.Role)
	if errors.Is(err, store.ErrDuplicate) {
		writeError(w, http.StatusBadRequest, "Email already exists")
		return
	}
	if err != nil {
		log.Println("Failed to create user:", err)
		writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	claims, _ := CurrentClaims(r)
	meta, _ := json.Marshal(map[string]any{"email": user.Email, "role": user.Role})
	h.audit(r, claims.UserID, "create_user", "user", int64(user.ID), string(meta))

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": userView(user)})
}

func userIDFromPath(r *http.Request) (int, error) {
	return strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/api/admin/users/"))
}

func (h *Handler) UpdateUserHandler(w http.ResponseWriter, r *http.Request) {
	id, err := userIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid ID")
		return
	}

	var req struct {
		Name string `json:"name"`
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Name cannot be empty")
		return
	}
	if !models.ValidRole(req.Role) {
		writeError(w, http.StatusBadRequest, "Invalid role")
		return
	}

	claims, _ := CurrentClaims(r)
	if id == claims.UserID && req.Role != models.RoleAdmin {
		writeError(w, http.StatusBadRequest, "Cannot remove your own admin role")
		return
	}

	err = h.Store.UpdateUser(r.Context(), id, strings.TrimSpace(req.Name), req.Role)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		log.Println("Failed to update user:", err)
		writeError(w, http.StatusInternalServerError, "Failed to update user")
		return
	}

	meta, _ := json.Marshal(map[string]any{"name": req.Name, "role": req.Role})
	h.audit(r, claims.UserID, "update_user", "user", int64(id), string(meta))

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	id, err := userIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid ID")
		return
	}

	claims, _ := CurrentClaims(r)
	if id == claims.UserID {
		writeError(w, http.StatusBadRequest, "Cannot delete your own account")
		return
	}

	err = h.Store.DeleteUser(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		log.Println("Failed to delete user:", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete user")
		return
	}

	h.audit(r, claims.UserID, "delete_user", "user", int64(id), "{}")

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// AdminResetPasswordHandler sets a new password without the old one.
func (h *Handler) AdminResetPasswordHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req struct {
		UserID      int    `json:"userId"`
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

	newHash, err := models.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to hash password")
		return
	}

	err = h.Store.UpdateUserPassword(r.Context(), req.UserID, newHash)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		log.Printf("Failed to reset password: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to reset password")
		return
	}

	claims, _ := CurrentClaims(r)
	h.audit(r, claims.UserID, "reset_password", "user", int64(req.UserID), "{}")

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// AdminDisable2FAHandler turns off 2FA for any account, for recovery.
func (h *Handler) AdminDisable2FAHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req struct {
		UserID int `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	err := h.Store.UpdateUser2FA(r.Context(), req.UserID, "", false)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		log.Printf("Failed to disable 2FA: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to disable 2FA")
		return
	}

	claims, _ := CurrentClaims(r)
	h.audit(r, claims.UserID, "disable_2fa", "user", int64(req.UserID), "{}")

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "2FA disabled by admin"})
}

func (h *Handler) audit(r *http.Request, actorID int, action, targetType string, targetID int64, metadata string) {
	if err := h.Store.InsertAudit(r.Context(), actorID, action, targetType, targetID, metadata); err != nil {
		log.Println("Failed to write audit log:", err)
	}
}
