package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"disaster-alerts-go/internal/models"
	"disaster-alerts-go/internal/store"
)

const tokenTTL = 7 * 24 * time.Hour

type ctxKey int

const (
	claimsKey ctxKey = iota
	userKey
)

// Claims is the bearer token payload.
type Claims struct {
	UserID int    `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func (h *Handler) issueToken(u models.User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: u.ID,
		Name:   u.Name,
		Email:  u.Email,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(u.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.jwtSecret)
}

func (h *Handler) parseToken(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return h.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func userView(u models.User) map[string]any {
	return map[string]any{
		"id":          u.ID,
		"name":        u.Name,
		"email":       u.Email,
		"role":        u.Role,
		"totpEnabled": u.TOTPEnabled,
	}
}

// AuthMiddleware requires a valid bearer token.
func (h *Handler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		claims, err := h.parseToken(strings.TrimSpace(raw))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	}
}

// RequireUser loads the account behind the token and rejects it unless allow
// accepts it. Deleted or demoted accounts lose access immediately rather than
// when their token expires. It must run inside AuthMiddleware.
func (h *Handler) RequireUser(allow func(*models.User) bool) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, ok := CurrentClaims(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			user, err := h.Store.GetUser(r.Context(), claims.UserID)
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusForbidden, "Forbidden")
				return
			}
			if err != nil {
				log.Println("Failed to load user:", err)
				writeError(w, http.StatusInternalServerError, "Something went wrong")
				return
			}
			if !allow(&user) {
				writeError(w, http.StatusForbidden, "Forbidden")
				return
			}

			next(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
		}
	}
}

// RoleMiddleware admits users whose stored role is one of roles.
func (h *Handler) RoleMiddleware(roles ...string) func(http.HandlerFunc) http.HandlerFunc {
	return h.RequireUser(func(u *models.User) bool {
		for _, role := range roles {
			if u.Role == role {
				return true
			}
		}
		return false
	})
}

// CurrentUser returns the account loaded by RequireUser.
func CurrentUser(r *http.Request) (models.User, bool) {
	u, ok := r.Context().Value(userKey).(models.User)
	return u, ok
}

// CurrentClaims returns the token claims of the authenticated request.
func CurrentClaims(r *http.Request) (*Claims, bool) {
	claims, ok := r.Context().Value(claimsKey).(*Claims)
	return claims, ok
}

// SignupHandler registers a student or teacher account.
func (h *Handler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

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
	if req.Name == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Name, email and password are required")
		return
	}
	if req.Role == "" {
		req.Role = models.RoleStudent
	}
	// admins are provisioned by the operator, never self-registered
	if !models.ValidRole(req.Role) || req.Role == models.RoleAdmin {
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
		writeError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": userView(user)})
}

// LoginHandler exchanges credentials for a bearer token. Accounts with 2FA
// must also send a valid code.
func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Code     string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	user, err := h.Store.GetUserByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Println("Failed to load user:", err)
		}
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if !user.CheckPassword(req.Password) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if user.TOTPEnabled {
		if req.Code == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{
				"error":       "Two-factor code required",
				"requires2fa": true,
			})
			return
		}
		if !models.VerifyTOTPCode(user.TOTPSecret, req.Code) {
			writeError(w, http.StatusUnauthorized, "Invalid verification code")
			return
		}
	}

	token, err := h.issueToken(user)
	if err != nil {
		log.Println("Failed to sign token:", err)
		writeError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  userView(user),
	})
}

// LogoutHandler is stateless; clients drop their token.
func (h *Handler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Logged out successfully",
	})
}

// InitAdmin creates the operator admin account if it does not exist yet.
func (h *Handler) InitAdmin(ctx context.Context, email, password string) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return
	}
	if _, err := h.Store.GetUserByEmail(ctx, email); err == nil {
		return
	}
	user, err := h.Store.CreateUser(ctx, "Administrator", email, password, models.RoleAdmin)
	if err != nil {
		log.Println("Failed to create admin user:", err)
		return
	}
	log.Printf("Created admin user: %s", user.Email)
}
