package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"disaster-alerts-go/internal/models"
)

// MemoryStore keeps everything in process memory. It is used when no
// database is configured and as the store double in tests.
type MemoryStore struct {
	mu          sync.RWMutex
	alerts      []models.StoredAlert
	byExternal  map[string]int
	users       map[int]models.User
	subs        map[string]models.PushSubscription
	audit       []models.AuditLog
	nextAlertID int64
	nextUserID  int
	nextOtherID int
	now         func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byExternal: make(map[string]int),
		users:      make(map[int]models.User),
		subs:       make(map[string]models.PushSubscription),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) FindAlertByExternalID(ctx context.Context, externalID string) (models.StoredAlert, error) {
	if err := ctx.Err(); err != nil {
		return models.StoredAlert{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byExternal[externalID]
	if !ok {
		return models.StoredAlert{}, ErrNotFound
	}
	return s.alerts[idx], nil
}

func (s *MemoryStore) InsertAlert(ctx context.Context, a models.StoredAlert) (models.StoredAlert, error) {
	if err := ctx.Err(); err != nil {
		return models.StoredAlert{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ExternalID != "" {
		if _, ok := s.byExternal[a.ExternalID]; ok {
			return models.StoredAlert{}, ErrDuplicate
		}
	}

	s.nextAlertID++
	a.ID = s.nextAlertID
	a.CreatedAt = s.now()
	s.alerts = append(s.alerts, a)
	if a.ExternalID != "" {
		s.byExternal[a.ExternalID] = len(s.alerts) - 1
	}
	return a, nil
}

func (s *MemoryStore) ListAlerts(ctx context.Context) ([]models.StoredAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.StoredAlert, len(s.alerts))
	copy(out, s.alerts)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) SearchAlerts(ctx context.Context, q AlertQuery) ([]models.StoredAlert, error) {
	all, err := s.ListAlerts(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, a := range all {
		if q.Matches(a) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, name, email, password, role string) (models.User, error) {
	passwordHash, err := models.HashPassword(password)
	if err != nil {
		return models.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			return models.User{}, ErrDuplicate
		}
	}

	s.nextUserID++
	user := models.User{
		ID:           s.nextUserID,
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    s.now(),
	}
	s.users[user.ID] = user
	return user, nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id int) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, ErrNotFound
}

func (s *MemoryStore) GetUsers(ctx context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// updateUser applies fn to the stored user with id.
func (s *MemoryStore) updateUser(id int, fn func(*models.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	fn(&u)
	s.users[id] = u
	return nil
}

func (s *MemoryStore) UpdateUser(ctx context.Context, id int, name, role string) error {
	return s.updateUser(id, func(u *models.User) {
		u.Name = name
		u.Role = role
	})
}

func (s *MemoryStore) UpdateUserProfile(ctx context.Context, id int, name string) error {
	return s.updateUser(id, func(u *models.User) { u.Name = name })
}

func (s *MemoryStore) UpdateUserPassword(ctx context.Context, id int, passwordHash string) error {
	return s.updateUser(id, func(u *models.User) { u.PasswordHash = passwordHash })
}

func (s *MemoryStore) UpdateUser2FA(ctx context.Context, userID int, totpSecret string, enabled bool) error {
	return s.updateUser(userID, func(u *models.User) {
		u.TOTPSecret = totpSecret
		u.TOTPEnabled = enabled
	})
}

// DeleteUser removes the user and their push subscriptions.
func (s *MemoryStore) DeleteUser(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.users, id)
	for endpoint, sub := range s.subs {
		if sub.UserID == id {
			delete(s.subs, endpoint)
		}
	}
	return nil
}

func (s *MemoryStore) SavePushSubscription(ctx context.Context, userID int, endpoint, p256dh, auth string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[endpoint]
	if !ok {
		s.nextOtherID++
		sub = models.PushSubscription{ID: s.nextOtherID, Endpoint: endpoint, CreatedAt: s.now()}
	}
	sub.UserID = userID
	sub.P256dh = p256dh
	sub.Auth = auth
	s.subs[endpoint] = sub
	return nil
}

func (s *MemoryStore) GetPushSubscriptions(ctx context.Context) ([]models.PushSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subs := make([]models.PushSubscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	return subs, nil
}

func (s *MemoryStore) InsertAudit(ctx context.Context, actorID int, action, targetType string, targetID int64, metadata string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextOtherID++
	s.audit = append(s.audit, models.AuditLog{
		ID:         s.nextOtherID,
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Metadata:   metadata,
		CreatedAt:  s.now(),
	})
	return nil
}

func (s *MemoryStore) GetAuditLogs(ctx context.Context, limit int) ([]models.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]models.AuditLog, 0, len(s.audit))
	for i := len(s.audit) - 1; i >= 0; i-- {
		if limit > 0 && len(logs) == limit {
			break
		}
		logs = append(logs, s.audit[i])
	}
	return logs, nil
}
