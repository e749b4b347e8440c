package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"disaster-alerts-go/internal/aggregator"
	"disaster-alerts-go/internal/config"
	"disaster-alerts-go/internal/ingest"
	"disaster-alerts-go/internal/models"
	"disaster-alerts-go/internal/sources"
	"disaster-alerts-go/internal/store"
)

type stubSource struct {
	alerts []models.NormalizedAlert
	params []sources.Params
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Fetch(_ context.Context, p sources.Params) ([]models.NormalizedAlert, error) {
	s.params = append(s.params, p)
	return s.alerts, nil
}

func quake(id string, published time.Time) models.NormalizedAlert {
	return models.NormalizedAlert{
		ID:          "usgs:" + id,
		Source:      "usgs",
		Type:        "earthquake",
		Title:       "M5.2 - " + id,
		Description: "Magnitude 5.2 earthquake",
		Published:   &published,
	}
}

func newTestHandler(t *testing.T, alerts ...models.NormalizedAlert) (*Handler, *store.MemoryStore, *stubSource) {
	t.Helper()
	src := &stubSource{alerts: alerts}
	st := store.NewMemoryStore()
	agg := aggregator.New([]sources.Source{src}, aggregator.NewCache(5*time.Minute), time.Second, nil)
	cfg := config.Config{
		JWTSecret: "test-secret",
		Alerts: config.AlertsConfig{
			DefaultLat:   "28.7041",
			DefaultLon:   "77.1025",
			MinMagnitude: 4,
		},
	}
	h := NewHandler(st, nil, agg, ingest.NewWriter(agg, st, nil), nil, cfg)
	return h, st, src
}

func doJSON(t *testing.T, handler http.HandlerFunc, method, target string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func loginAs(t *testing.T, h *Handler, st *store.MemoryStore, email, role string) string {
	t.Helper()
	_, err := st.CreateUser(context.Background(), "Test "+role, email, "hunter22", role)
	require.NoError(t, err)

	rec := doJSON(t, h.LoginHandler, http.MethodPost, "/api/auth/login",
		map[string]string{"email": email, "password": "hunter22"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token, _ := decode(t, rec)["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestExternalAlertsHandler_ServesCachedFeed(t *testing.T) {
	now := time.Now().UTC()
	h, _, src := newTestHandler(t, quake("older", now.Add(-time.Hour)), quake("newer", now))

	rec := doJSON(t, h.ExternalAlertsHandler, http.MethodGet, "/api/disaleart?lat=1.5&lon=2.5&minMag=6", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var res aggregator.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.Cached)
	require.Len(t, res.Alerts, 2)
	assert.Equal(t, "usgs:newer", res.Alerts[0].ID)
	require.Len(t, src.params, 1)
	assert.Equal(t, sources.Params{Lat: "1.5", Lon: "2.5", MinMagnitude: 6}, src.params[0])

	rec = doJSON(t, h.ExternalAlertsHandler, http.MethodGet, "/api/disaleart", nil, "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Cached)
	assert.Len(t, src.params, 1)
}

func TestExternalAlertsHandler_InvalidMinMagUsesDefault(t *testing.T) {
	h, _, src := newTestHandler(t)

	rec := doJSON(t, h.ExternalAlertsHandler, http.MethodGet, "/api/disaleart?minMag=big", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, src.params, 1)
	assert.Equal(t, 4.0, src.params[0].MinMagnitude)
	assert.Equal(t, "28.7041", src.params[0].Lat)

	var res aggregator.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.NotNil(t, res.Alerts)
	assert.Empty(t, res.Alerts)
}

func TestMethodNotAllowed(t *testing.T) {
	h, _, _ := newTestHandler(t)

	cases := []struct {
		name    string
		handler http.HandlerFunc
		method  string
	}{
		{"feed", h.ExternalAlertsHandler, http.MethodPost},
		{"save", h.SaveExternalAlertsHandler, http.MethodGet},
		{"list", h.ListAlertsHandler, http.MethodDelete},
		{"login", h.LoginHandler, http.MethodGet},
		{"signup", h.SignupHandler, http.MethodPut},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, tc.handler, tc.method, "/", nil, "")
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
			assert.Equal(t, "Method not allowed", decode(t, rec)["error"])
		})
	}
}

func TestSaveExternalAlertsHandler_SkipsStoredAlerts(t *testing.T) {
	now := time.Now().UTC()
	h, st, _ := newTestHandler(t, quake("a", now), quake("b", now.Add(-time.Minute)))

	rec := doJSON(t, h.SaveExternalAlertsHandler, http.MethodPost, "/api/disaleart/save", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(2), decode(t, rec)["insertedCount"])

	rec = doJSON(t, h.SaveExternalAlertsHandler, http.MethodPost, "/api/disaleart/save?refresh=1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(0), body["insertedCount"])
	assert.Equal(t, []any{}, body["inserted"])

	stored, err := st.ListAlerts(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	assert.Equal(t, "external:usgs", stored[0].CreatedBy)

	logs, err := st.GetAuditLogs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "ingest_external", logs[0].Action)
}

func TestListAlertsHandler_Filter(t *testing.T) {
	h, st, _ := newTestHandler(t, quake("a", time.Now().UTC()))
	ctx := context.Background()

	rec := doJSON(t, h.SaveExternalAlertsHandler, http.MethodPost, "/api/disaleart/save", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	_, err := st.InsertAlert(ctx, models.StoredAlert{Title: "Drill", CreatedBy: "7"})
	require.NoError(t, err)

	for filter, want := range map[string]int{"": 2, "external": 1, "internal": 1, "bogus": 2} {
		rec := doJSON(t, h.ListAlertsHandler, http.MethodGet, "/api/alerts?filter="+filter, nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		alerts, _ := decode(t, rec)["alerts"].([]any)
		assert.Len(t, alerts, want, "filter %q", filter)
	}
}

func TestSignupHandler(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := doJSON(t, h.SignupHandler, http.MethodPost, "/api/auth/signup",
		map[string]string{"name": "Asha", "email": "Asha@School.org", "password": "pw123456", "role": "teacher"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	user, _ := decode(t, rec)["user"].(map[string]any)
	assert.Equal(t, "asha@school.org", user["email"])
	assert.Equal(t, "teacher", user["role"])
	assert.NotContains(t, rec.Body.String(), "hash")

	rec = doJSON(t, h.SignupHandler, http.MethodPost, "/api/auth/signup",
		map[string]string{"name": "Asha", "email": "asha@school.org", "password": "pw123456"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email already exists", decode(t, rec)["error"])

	rec = doJSON(t, h.SignupHandler, http.MethodPost, "/api/auth/signup",
		map[string]string{"name": "Root", "email": "root@school.org", "password": "pw123456", "role": "admin"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid role", decode(t, rec)["error"])
}

func TestLoginHandler_RejectsBadPassword(t *testing.T) {
	h, st, _ := newTestHandler(t)
	_, err := st.CreateUser(context.Background(), "Sam", "sam@school.org", "right-password", models.RoleStudent)
	require.NoError(t, err)

	rec := doJSON(t, h.LoginHandler, http.MethodPost, "/api/auth/login",
		map[string]string{"email": "sam@school.org", "password": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h.LoginHandler, http.MethodPost, "/api/auth/login",
		map[string]string{"email": "nobody@school.org", "password": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid credentials", decode(t, rec)["error"])
}

func TestLoginHandler_RequiresTOTPCode(t *testing.T) {
	h, st, _ := newTestHandler(t)
	ctx := context.Background()

	user, err := st.CreateUser(ctx, "Ravi", "ravi@school.org", "hunter22", models.RoleTeacher)
	require.NoError(t, err)
	key, err := models.GenerateTOTPSecret(user.Email)
	require.NoError(t, err)
	require.NoError(t, st.UpdateUser2FA(ctx, user.ID, key.Secret(), true))

	creds := map[string]string{"email": "ravi@school.org", "password": "hunter22"}
	rec := doJSON(t, h.LoginHandler, http.MethodPost, "/api/auth/login", creds, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, true, decode(t, rec)["requires2fa"])

	creds["code"] = "000000"
	if totp.Validate("000000", key.Secret()) {
		creds["code"] = "999999"
	}
	rec = doJSON(t, h.LoginHandler, http.MethodPost, "/api/auth/login", creds, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	code, err := totp.GenerateCode(key.Secret(), time.Now())
	require.NoError(t, err)
	creds["code"] = code
	rec = doJSON(t, h.LoginHandler, http.MethodPost, "/api/auth/login", creds, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decode(t, rec)["token"])
}

func TestCreateAlertHandler_Roles(t *testing.T) {
	h, st, _ := newTestHandler(t)
	create := h.AuthMiddleware(h.RequireUser((*models.User).CanPublishAlerts)(h.CreateAlertHandler))

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	body := map[string]any{
		"title":       "Evacuation drill",
		"description": "Assemble at the north gate",
		"startTime":   start,
		"endTime":     start.Add(time.Hour),
	}

	rec := doJSON(t, create, http.MethodPost, "/api/alerts/admin/create", body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, create, http.MethodPost, "/api/alerts/admin/create", body, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	student := loginAs(t, h, st, "student@school.org", models.RoleStudent)
	rec = doJSON(t, create, http.MethodPost, "/api/alerts/admin/create", body, student)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	teacher := loginAs(t, h, st, "teacher@school.org", models.RoleTeacher)
	rec = doJSON(t, create, http.MethodPost, "/api/alerts/admin/create", body, teacher)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode(t, rec)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, float64(1), resp["id"])

	stored, err := st.ListAlerts(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.False(t, stored[0].IsExternal())
	assert.Equal(t, start, *stored[0].StartTime)

	logs, err := st.GetAuditLogs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "create_alert", logs[0].Action)
	assert.Equal(t, int64(1), logs[0].TargetID)
}

func TestCreateAlertHandler_Validation(t *testing.T) {
	h, st, _ := newTestHandler(t)
	create := h.AuthMiddleware(h.CreateAlertHandler)
	admin := loginAs(t, h, st, "admin@school.org", models.RoleAdmin)

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rec := doJSON(t, create, http.MethodPost, "/", map[string]any{"title": "No window"}, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, create, http.MethodPost, "/", map[string]any{
		"title": "Backwards", "startTime": start, "endTime": start.Add(-time.Hour),
	}, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSSEHandler_UnavailableWithoutBus(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := doJSON(t, h.SSEHandler, http.MethodGet, "/api/alerts/events", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCurrentUserHandler(t *testing.T) {
	h, st, _ := newTestHandler(t)
	token := loginAs(t, h, st, "me@school.org", models.RoleStudent)

	rec := doJSON(t, h.AuthMiddleware(h.CurrentUserHandler), http.MethodGet, "/api/auth/me", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	user, _ := decode(t, rec)["user"].(map[string]any)
	assert.Equal(t, "me@school.org", user["email"])
	assert.Equal(t, false, user["totpEnabled"])
}

func TestInitAdmin_Idempotent(t *testing.T) {
	h, st, _ := newTestHandler(t)
	ctx := context.Background()

	h.InitAdmin(ctx, "Ops@School.org", "s3cret")
	h.InitAdmin(ctx, "ops@school.org", "other")

	u, err := st.GetUserByEmail(ctx, "ops@school.org")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)
	assert.True(t, u.CheckPassword("s3cret"))
}

func TestAuditLogsHandler_AdminOnly(t *testing.T) {
	h, st, _ := newTestHandler(t)
	audit := h.AuthMiddleware(h.RoleMiddleware(models.RoleAdmin)(h.AuditLogsHandler))

	teacher := loginAs(t, h, st, "t@school.org", models.RoleTeacher)
	rec := doJSON(t, audit, http.MethodGet, "/api/admin/audit", nil, teacher)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := loginAs(t, h, st, "a@school.org", models.RoleAdmin)
	rec = doJSON(t, audit, http.MethodGet, "/api/admin/audit", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, decode(t, rec)["logs"])
}

// brokenLookupStore fails external id lookups for selected ids.
type brokenLookupStore struct {
	*store.MemoryStore
	failLookupOf map[string]bool
}

func (s *brokenLookupStore) FindAlertByExternalID(ctx context.Context, id string) (models.StoredAlert, error) {
	if s.failLookupOf[id] {
		return models.StoredAlert{}, errors.New("connection reset")
	}
	return s.MemoryStore.FindAlertByExternalID(ctx, id)
}

func TestSaveExternalAlertsHandler_RecordsAlertsStoredBeforeFailure(t *testing.T) {
	now := time.Now().UTC()
	src := &stubSource{alerts: []models.NormalizedAlert{quake("a", now), quake("b", now.Add(-time.Minute))}}
	st := &brokenLookupStore{MemoryStore: store.NewMemoryStore(), failLookupOf: map[string]bool{"usgs:b": true}}
	agg := aggregator.New([]sources.Source{src}, aggregator.NewCache(5*time.Minute), time.Second, nil)
	h := NewHandler(st, nil, agg, ingest.NewWriter(agg, st, nil), nil, config.Config{JWTSecret: "test-secret"})

	rec := doJSON(t, h.SaveExternalAlertsHandler, http.MethodPost, "/api/disaleart/save", nil, "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "usgs:b")

	logs, err := st.GetAuditLogs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "ingest_external", logs[0].Action)
	assert.JSONEq(t, `{"inserted":1,"failed":0}`, logs[0].Metadata)
}

func TestListAlertsHandler_Search(t *testing.T) {
	h, st, _ := newTestHandler(t)
	ctx := context.Background()
	for _, a := range []models.StoredAlert{
		{Title: "M5.2 - Offshore", CreatedBy: "external:usgs", ExternalID: "usgs:1", Source: "usgs"},
		{Title: "Cyclone warning", Description: "Landfall expected", CreatedBy: "external:gdacs", ExternalID: "gdacs:1", Source: "gdacs"},
		{Title: "Cyclone drill", CreatedBy: "4"},
	} {
		_, err := st.InsertAlert(ctx, a)
		require.NoError(t, err)
	}

	for target, want := range map[string]float64{
		"/api/alerts?q=cyclone":                  2,
		"/api/alerts?q=cyclone&filter=internal":  1,
		"/api/alerts?source=gdacs":               1,
		"/api/alerts?source=usgs&q=cyclone":      0,
		"/api/alerts?q=landfall&filter=external": 1,
	} {
		rec := doJSON(t, h.ListAlertsHandler, http.MethodGet, target, nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, want, decode(t, rec)["count"], target)
	}
}

func TestRequireUser_ChecksStoredAccount(t *testing.T) {
	h, st, _ := newTestHandler(t)
	ctx := context.Background()
	create := h.AuthMiddleware(h.RequireUser((*models.User).CanPublishAlerts)(h.CreateAlertHandler))

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	body := map[string]any{"title": "Drill", "startTime": start, "endTime": start.Add(time.Hour)}

	token := loginAs(t, h, st, "demoted@school.org", models.RoleTeacher)
	rec := doJSON(t, create, http.MethodPost, "/api/alerts/admin/create", body, token)
	require.Equal(t, http.StatusOK, rec.Code)

	u, err := st.GetUserByEmail(ctx, "demoted@school.org")
	require.NoError(t, err)
	require.NoError(t, st.UpdateUser(ctx, u.ID, u.Name, models.RoleStudent))
	rec = doJSON(t, create, http.MethodPost, "/api/alerts/admin/create", body, token)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	require.NoError(t, st.DeleteUser(ctx, u.ID))
	rec = doJSON(t, create, http.MethodPost, "/api/alerts/admin/create", body, token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminUserManagement(t *testing.T) {
	h, st, _ := newTestHandler(t)
	ctx := context.Background()
	admin := loginAs(t, h, st, "root@school.org", models.RoleAdmin)
	users := h.AuthMiddleware(h.RoleMiddleware(models.RoleAdmin)(h.UsersHandler))
	user := h.AuthMiddleware(h.RoleMiddleware(models.RoleAdmin)(h.UserHandler))

	rec := doJSON(t, users, http.MethodPost, "/api/admin/users",
		map[string]string{"name": "Kim", "email": "Kim@School.org", "password": "longenough", "role": "teacher"}, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created, _ := decode(t, rec)["user"].(map[string]any)
	id := int(created["id"].(float64))

	rec = doJSON(t, users, http.MethodPost, "/api/admin/users",
		map[string]string{"name": "Bad", "email": "bad@school.org", "password": "longenough", "role": "janitor"}, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, users, http.MethodPost, "/api/admin/users",
		map[string]string{"name": "Short", "email": "short@school.org", "password": "short", "role": "student"}, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, users, http.MethodGet, "/api/admin/users", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	list, _ := decode(t, rec)["users"].([]any)
	assert.Len(t, list, 2)

	target := "/api/admin/users/" + strconv.Itoa(id)
	rec = doJSON(t, user, http.MethodPut, target, map[string]string{"name": "Kim Lee", "role": "student"}, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got, err := st.GetUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Kim Lee", got.Name)
	assert.Equal(t, models.RoleStudent, got.Role)

	self, err := st.GetUserByEmail(ctx, "root@school.org")
	require.NoError(t, err)
	rec = doJSON(t, user, http.MethodDelete, "/api/admin/users/"+strconv.Itoa(self.ID), nil, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, user, http.MethodDelete, target, nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	_, err = st.GetUser(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)

	rec = doJSON(t, user, http.MethodDelete, target, nil, admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, user, http.MethodDelete, "/api/admin/users/abc", nil, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	logs, err := st.GetAuditLogs(ctx, 10)
	require.NoError(t, err)
	actions := []string{}
	for _, l := range logs {
		actions = append(actions, l.Action)
	}
	assert.Equal(t, []string{"delete_user", "update_user", "create_user"}, actions)
}

func TestChangePasswordHandler(t *testing.T) {
	h, st, _ := newTestHandler(t)
	change := h.AuthMiddleware(h.ChangePasswordHandler)
	token := loginAs(t, h, st, "pw@school.org", models.RoleStudent)

	rec := doJSON(t, change, http.MethodPost, "/api/auth/password",
		map[string]string{"oldPassword": "wrong-one", "newPassword": "brand-new-pw"}, token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, change, http.MethodPost, "/api/auth/password",
		map[string]string{"oldPassword": "hunter22", "newPassword": "short"}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, change, http.MethodPost, "/api/auth/password",
		map[string]string{"oldPassword": "hunter22", "newPassword": "brand-new-pw"}, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, h.LoginHandler, http.MethodPost, "/api/auth/login",
		map[string]string{"email": "pw@school.org", "password": "brand-new-pw"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateProfileHandler(t *testing.T) {
	h, st, _ := newTestHandler(t)
	update := h.AuthMiddleware(h.UpdateProfileHandler)
	token := loginAs(t, h, st, "profile@school.org", models.RoleStudent)

	rec := doJSON(t, update, http.MethodPut, "/api/auth/profile", map[string]string{"name": "  "}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, update, http.MethodPut, "/api/auth/profile", map[string]string{"name": "New Name"}, token)
	require.Equal(t, http.StatusOK, rec.Code)
	u, err := st.GetUserByEmail(context.Background(), "profile@school.org")
	require.NoError(t, err)
	assert.Equal(t, "New Name", u.Name)
}

func TestAdminAccountRecovery(t *testing.T) {
	h, st, _ := newTestHandler(t)
	ctx := context.Background()
	admin := loginAs(t, h, st, "ops@school.org", models.RoleAdmin)
	reset := h.AuthMiddleware(h.RoleMiddleware(models.RoleAdmin)(h.AdminResetPasswordHandler))
	disable := h.AuthMiddleware(h.RoleMiddleware(models.RoleAdmin)(h.AdminDisable2FAHandler))

	locked, err := st.CreateUser(ctx, "Locked", "locked@school.org", "forgotten-pw", models.RoleTeacher)
	require.NoError(t, err)
	require.NoError(t, st.UpdateUser2FA(ctx, locked.ID, "JBSWY3DPEHPK3PXP", true))

	rec := doJSON(t, reset, http.MethodPost, "/api/admin/reset-password",
		map[string]any{"userId": locked.ID, "newPassword": "temporary-pw"}, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, disable, http.MethodPost, "/api/admin/disable-2fa", map[string]any{"userId": locked.ID}, admin)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, disable, http.MethodPost, "/api/admin/disable-2fa", map[string]any{"userId": 999}, admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h.LoginHandler, http.MethodPost, "/api/auth/login",
		map[string]string{"email": "locked@school.org", "password": "temporary-pw"}, "")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
