package store

import (
	"context"
	"errors"
	"strings"

	"disaster-alerts-go/internal/models"
)

var (
	// ErrNotFound is returned when a lookup matches no record.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert collides with a unique key.
	ErrDuplicate = errors.New("duplicate")
)

const (
	OriginExternal = "external"
	OriginInternal = "internal"
)

// AlertQuery narrows SearchAlerts. Zero fields match everything.
type AlertQuery struct {
	Text   string // case-insensitive, title or description
	Source string
	Origin string // OriginExternal, OriginInternal or empty
}

// Matches reports whether a satisfies q.
func (q AlertQuery) Matches(a models.StoredAlert) bool {
	if q.Source != "" && !strings.EqualFold(a.Source, q.Source) {
		return false
	}
	switch q.Origin {
	case OriginExternal:
		if !a.IsExternal() {
			return false
		}
	case OriginInternal:
		if a.IsExternal() {
			return false
		}
	}
	if q.Text != "" {
		text := strings.ToLower(q.Text)
		return strings.Contains(strings.ToLower(a.Title), text) ||
			strings.Contains(strings.ToLower(a.Description), text)
	}
	return true
}

// AlertStore persists alerts. The store is append-only for ingestion.
type AlertStore interface {
	FindAlertByExternalID(ctx context.Context, externalID string) (models.StoredAlert, error)
	InsertAlert(ctx context.Context, a models.StoredAlert) (models.StoredAlert, error)
	ListAlerts(ctx context.Context) ([]models.StoredAlert, error)
	SearchAlerts(ctx context.Context, q AlertQuery) ([]models.StoredAlert, error)
}

// UserStore handles accounts used for bearer-token auth.
type UserStore interface {
	CreateUser(ctx context.Context, name, email, password, role string) (models.User, error)
	GetUser(ctx context.Context, id int) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUsers(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, id int, name, role string) error
	UpdateUserProfile(ctx context.Context, id int, name string) error
	UpdateUserPassword(ctx context.Context, id int, passwordHash string) error
	UpdateUser2FA(ctx context.Context, userID int, totpSecret string, enabled bool) error
	DeleteUser(ctx context.Context, id int) error
}

// PushStore keeps web push subscriptions.
type PushStore interface {
	SavePushSubscription(ctx context.Context, userID int, endpoint, p256dh, auth string) error
	GetPushSubscriptions(ctx context.Context) ([]models.PushSubscription, error)
}

type AuditStore interface {
	InsertAudit(ctx context.Context, actorID int, action, targetType string, targetID int64, metadata string) error
	GetAuditLogs(ctx context.Context, limit int) ([]models.AuditLog, error)
}

// Store is everything the HTTP layer needs from persistence.
type Store interface {
	AlertStore
	UserStore
	PushStore
	AuditStore
}

var (
	_ Store    = (*PostgresStore)(nil)
	_ Store    = (*MemoryStore)(nil)
	_ EventBus = (*RedisBus)(nil)
)
