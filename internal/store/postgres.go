package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"disaster-alerts-go/internal/models"

	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// RunMigrations creates tables if they don't exist and applies schema updates
func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return err
	}

	migrations := []string{
		`ALTER TABLE users ADD COLUMN IF NOT EXISTS totp_secret VARCHAR(255);`,
		`ALTER TABLE users ADD COLUMN IF NOT EXISTS totp_enabled BOOLEAN DEFAULT FALSE;`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// Alert methods

const alertColumns = `id, title, description, start_time, end_time, created_by, external_id, source, link, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (models.StoredAlert, error) {
	var a models.StoredAlert
	var start, end sql.NullTime
	var externalID, source, link sql.NullString

	if err := row.Scan(&a.ID, &a.Title, &a.Description, &start, &end, &a.CreatedBy, &externalID, &source, &link, &a.CreatedAt); err != nil {
		return models.StoredAlert{}, err
	}

	if start.Valid {
		t := start.Time.UTC()
		a.StartTime = &t
	}
	if end.Valid {
		t := end.Time.UTC()
		a.EndTime = &t
	}
	a.ExternalID = externalID.String
	a.Source = source.String
	a.Link = link.String
	return a, nil
}

func (s *PostgresStore) FindAlertByExternalID(ctx context.Context, externalID string) (models.StoredAlert, error) {
	a, err := scanAlert(s.db.QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE external_id = $1`,
		externalID,
	))
	if err == sql.ErrNoRows {
		return models.StoredAlert{}, ErrNotFound
	}
	return a, err
}

// InsertAlert stores a. A second alert with the same external id is rejected
// by the unique index and reported as ErrDuplicate.
func (s *PostgresStore) InsertAlert(ctx context.Context, a models.StoredAlert) (models.StoredAlert, error) {
	stored, err := scanAlert(s.db.QueryRowContext(ctx,
		`INSERT INTO alerts (title, description, start_time, end_time, created_by, external_id, source, link, created_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NOW())
		 ON CONFLICT (external_id) DO NOTHING
		 RETURNING `+alertColumns,
		a.Title, a.Description, nullTime(a.StartTime), nullTime(a.EndTime), a.CreatedBy, a.ExternalID, a.Source, a.Link,
	))
	if err == sql.ErrNoRows {
		return models.StoredAlert{}, ErrDuplicate
	}
	if err != nil {
		return models.StoredAlert{}, err
	}
	return stored, nil
}

func (s *PostgresStore) ListAlerts(ctx context.Context) ([]models.StoredAlert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM alerts ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := []models.StoredAlert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}

	return alerts, rows.Err()
}

// SearchAlerts lists alerts matching q, newest first.
func (s *PostgresStore) SearchAlerts(ctx context.Context, q AlertQuery) ([]models.StoredAlert, error) {
	var (
		where []string
		args  []any
	)
	if q.Text != "" {
		args = append(args, "%"+q.Text+"%")
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}
	if q.Source != "" {
		args = append(args, q.Source)
		where = append(where, fmt.Sprintf("LOWER(source) = LOWER($%d)", len(args)))
	}
	switch q.Origin {
	case OriginExternal:
		where = append(where, "created_by LIKE 'external:%'")
	case OriginInternal:
		where = append(where, "created_by NOT LIKE 'external:%'")
	}

	query := `SELECT ` + alertColumns + ` FROM alerts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := []models.StoredAlert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}

	return alerts, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// User methods

func (s *PostgresStore) CreateUser(ctx context.Context, name, email, password, role string) (models.User, error) {
	passwordHash, err := models.HashPassword(password)
	if err != nil {
		return models.User{}, err
	}

	var user models.User
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO users (name, email, password_hash, role, created_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 RETURNING id, name, email, password_hash, role, created_at`,
		name, email, passwordHash, role,
	).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)

	if isUniqueViolation(err) {
		return models.User{}, ErrDuplicate
	}
	if err != nil {
		return models.User{}, err
	}

	return user, nil
}

func (s *PostgresStore) getUserWhere(ctx context.Context, where string, arg any) (models.User, error) {
	var user models.User
	var totpSecret sql.NullString
	var totpEnabled sql.NullBool

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, role, totp_secret, totp_enabled, created_at FROM users WHERE `+where,
		arg,
	).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Role, &totpSecret, &totpEnabled, &user.CreatedAt)

	if err == sql.ErrNoRows {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, err
	}

	user.TOTPSecret = totpSecret.String
	user.TOTPEnabled = totpEnabled.Bool
	return user, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id int) (models.User, error) {
	return s.getUserWhere(ctx, "id = $1", id)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return s.getUserWhere(ctx, "email = $1", email)
}

func (s *PostgresStore) GetUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, email, role, totp_enabled, created_at FROM users ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var user models.User
		var totpEnabled sql.NullBool
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.Role, &totpEnabled, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.TOTPEnabled = totpEnabled.Bool
		users = append(users, user)
	}

	return users, rows.Err()
}

func (s *PostgresStore) execUser(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, id int, name, role string) error {
	return s.execUser(ctx, `UPDATE users SET name = $1, role = $2 WHERE id = $3`, name, role, id)
}

func (s *PostgresStore) UpdateUserProfile(ctx context.Context, id int, name string) error {
	return s.execUser(ctx, `UPDATE users SET name = $1 WHERE id = $2`, name, id)
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, id int, passwordHash string) error {
	return s.execUser(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, passwordHash, id)
}

func (s *PostgresStore) DeleteUser(ctx context.Context, id int) error {
	return s.execUser(ctx, `DELETE FROM users WHERE id = $1`, id)
}

func (s *PostgresStore) UpdateUser2FA(ctx context.Context, userID int, totpSecret string, enabled bool) error {
	return s.execUser(ctx,
		`UPDATE users SET totp_secret = NULLIF($1, ''), totp_enabled = $2 WHERE id = $3`,
		totpSecret, enabled, userID,
	)
}

// Push subscription methods

func (s *PostgresStore) SavePushSubscription(ctx context.Context, userID int, endpoint, p256dh, auth string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth, created_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (endpoint) DO UPDATE SET user_id = EXCLUDED.user_id, p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth`,
		userID, endpoint, p256dh, auth,
	)
	return err
}

func (s *PostgresStore) GetPushSubscriptions(ctx context.Context) ([]models.PushSubscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, endpoint, p256dh, auth, created_at FROM push_subscriptions`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []models.PushSubscription
	for rows.Next() {
		var sub models.PushSubscription
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.P256dh, &sub.Auth, &sub.CreatedAt); err != nil {
			continue
		}
		subs = append(subs, sub)
	}

	return subs, rows.Err()
}

// Audit methods

func (s *PostgresStore) InsertAudit(ctx context.Context, actorID int, action, targetType string, targetID int64, metadata string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_logs (actor_id, action, target_type, target_id, metadata, created_at)
		 VALUES ($1, $2, $3, NULLIF($4::bigint, 0), $5, NOW())`,
		actorID, action, targetType, targetID, metadata,
	)
	return err
}

func (s *PostgresStore) GetAuditLogs(ctx context.Context, limit int) ([]models.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, actor_id, action, target_type, target_id, metadata, created_at
		 FROM audit_logs ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.AuditLog
	for rows.Next() {
		var l models.AuditLog
		var targetID sql.NullInt64
		var metadata sql.NullString
		if err := rows.Scan(&l.ID, &l.ActorID, &l.Action, &l.TargetType, &targetID, &metadata, &l.CreatedAt); err != nil {
			continue
		}
		l.TargetID = targetID.Int64
		l.Metadata = metadata.String
		logs = append(logs, l)
	}

	return logs, rows.Err()
}
