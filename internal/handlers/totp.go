package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"disaster-alerts-go/internal/models"
)

// Setup2FAHandler generates a new TOTP secret and QR code for the caller.
// Nothing is stored until the secret is confirmed.
func (h *Handler) Setup2FAHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	claims, _ := CurrentClaims(r)

	key, err := models.GenerateTOTPSecret(claims.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate secret")
		return
	}

	qrCode, err := models.GenerateQRCode(key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate QR code")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"secret":  key.Secret(),
		"qrCode":  "data:image/png;base64," + qrCode,
		"issuer":  models.TOTPIssuer,
		"account": claims.Email,
	})
}

// Enable2FAHandler verifies a code against the proposed secret and enables 2FA.
func (h *Handler) Enable2FAHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	claims, _ := CurrentClaims(r)

	var req struct {
		Secret string `json:"secret"`
		Code   string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	if !models.VerifyTOTPCode(req.Secret, req.Code) {
		writeError(w, http.StatusUnauthorized, "Invalid verification code")
		return
	}

	if err := h.Store.UpdateUser2FA(r.Context(), claims.UserID, req.Secret, true); err != nil {
		log.Printf("Failed to enable 2FA for user %d: %v", claims.UserID, err)
		writeError(w, http.StatusInternalServerError, "Failed to enable 2FA")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Disable2FAHandler turns 2FA off after checking a current code.
func (h *Handler) Disable2FAHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	claims, _ := CurrentClaims(r)

	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	user, err := h.Store.GetUser(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if !user.TOTPEnabled {
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	}
	if !models.VerifyTOTPCode(user.TOTPSecret, req.Code) {
		writeError(w, http.StatusUnauthorized, "Invalid verification code")
		return
	}

	if err := h.Store.UpdateUser2FA(r.Context(), user.ID, "", false); err != nil {
		log.Printf("Failed to disable 2FA for user %d: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, "Failed to disable 2FA")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
