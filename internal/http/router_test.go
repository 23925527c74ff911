package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/capiorg/backend-auth/internal/auth"
	"github.com/capiorg/backend-auth/internal/cache"
	"github.com/capiorg/backend-auth/internal/http/handlers"
	"github.com/capiorg/backend-auth/internal/middleware"
	"github.com/capiorg/backend-auth/internal/mocks"
	"github.com/capiorg/backend-auth/internal/model"
	"github.com/capiorg/backend-auth/internal/users"
)

type server struct {
	store  *mocks.MockStore
	sender *mocks.MockSender
	cache  *mocks.MockCache
	inv    *cache.Invalidator
	srv    *httptest.Server
}

func newServer(t *testing.T, limiter *middleware.RateLimiter) *server {
	t.Helper()
	s := &server{
		store:  mocks.NewMockStore(),
		sender: mocks.NewMockSender(),
		cache:  mocks.NewMockCache(),
	}
	logger := zap.NewNop()
	s.inv = cache.NewInvalidator(s.cache, time.Second, logger)

	tokens, err := auth.NewTokenService("router-test-secret", "HS256")
	require.NoError(t, err)

	authSvc := auth.NewService(s.store, tokens, s.sender, &mocks.MockLocator{}, s.inv, auth.Config{
		AccessTokenTTL:        15 * time.Minute,
		RefreshTokenTTL:       time.Hour,
		CodeSalt:              "salt",
		CodeTTL:               5 * time.Minute,
		CodeMaxAttempts:       5,
		CodeRequestsPerWindow: 10,
		CodeRequestWindow:     10 * time.Minute,
		DevMode:               true,
	}, logger)
	userSvc := users.NewService(s.store, auth.DefaultProfilePolicy(false), s.inv, logger)
	gate := auth.NewGate(tokens, s.store.Repos().Users, logger, auth.WithCache(s.cache, time.Minute))

	router := NewRouter(Deps{
		Auth:    handlers.NewAuthHandler(authSvc, userSvc, logger),
		Users:   handlers.NewUsersHandler(userSvc, logger),
		Health:  handlers.NewHealthHandler(map[string]handlers.Pinger{"postgres": s.store, "redis": s.cache}, logger),
		Gate:    gate,
		Limiter: limiter,
		Logger:  logger,
	})
	s.srv = httptest.NewServer(router)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *server) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequestWithContext(context.Background(), method, s.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func registerBody(phone string) map[string]any {
	return map[string]any{
		"phone":      phone,
		"login":      "login" + phone[1:],
		"first_name": "Ivan",
		"last_name":  "Petrov",
		"password":   "secret-password",
	}
}

// signUp registers and verifies a user, returning the token pair
func (s *server) signUp(t *testing.T, phone string) (string, string) {
	t.Helper()
	resp, body := s.do(t, http.MethodPost, "/api/v1/auth/register", "", registerBody(phone))
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	session := body["session"].(map[string]any)

	resp, body = s.do(t, http.MethodPost, "/api/v1/auth/sessions/"+session["session_uuid"].(string)+"/verify", "",
		map[string]any{"code": session["code"]})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	return body["access_token"].(string), body["refresh_token"].(string)
}

func TestRegisterVerifyFlow(t *testing.T) {
	s := newServer(t, nil)

	resp, body := s.do(t, http.MethodPost, "/api/v1/auth/register", "", registerBody("+79990000001"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	user := body["user"].(map[string]any)
	session := body["session"].(map[string]any)
	assert.Equal(t, float64(model.StatusPending), user["status_id"])
	assert.NotContains(t, user, "password")
	assert.Equal(t, "REGISTER", session["session_type"])
	assert.Equal(t, "0000", session["code"])
	assert.Equal(t, "0000", s.sender.LastCode("+79990000001"))

	sessionPath := "/api/v1/auth/sessions/" + session["session_uuid"].(string) + "/verify"
	resp, body = s.do(t, http.MethodPost, sessionPath, "", map[string]any{"code": "1234"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid or expired code", body["error"])

	resp, body = s.do(t, http.MethodPost, sessionPath, "", map[string]any{"code": "0000"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "bearer", body["token_type"])
	assert.Equal(t, float64(900), body["expires_in"])
	access := body["access_token"].(string)

	resp, body = s.do(t, http.MethodGet, "/api/v1/auth/me", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "+79990000001", body["phone"])
	assert.Equal(t, float64(model.StatusActive), body["status_id"])
	assert.Equal(t, true, body["is_me"])

	// a verified session cannot be reused
	resp, _ = s.do(t, http.MethodPost, sessionPath, "", map[string]any{"code": "0000"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRegister_Validation(t *testing.T) {
	s := newServer(t, nil)

	body := registerBody("89990000001")
	body["password"] = "short"
	resp, out := s.do(t, http.MethodPost, "/api/v1/auth/register", "", body)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	fields := out["fields"].(map[string]any)
	assert.Contains(t, fields, "phone")
	assert.Contains(t, fields, "password")

	resp, _ = s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{"phone": "+79990000001", "unexpected": 1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRegister_DuplicatePhone(t *testing.T) {
	s := newServer(t, nil)
	s.signUp(t, "+79990000001")

	body := registerBody("+79990000001")
	body["login"] = "another-login"
	resp, out := s.do(t, http.MethodPost, "/api/v1/auth/register", "", body)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "phone", out["field"])
}

func TestLogin(t *testing.T) {
	s := newServer(t, nil)
	s.signUp(t, "+79990000001")

	resp, body := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{"phone": "+79990000001", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid credentials", body["error"])

	resp, unknown := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{"phone": "+79990000999", "password": "secret-password"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, body, unknown, "unknown phone and wrong password look alike")

	resp, body = s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{"phone": "+79990000001", "password": "secret-password"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "AUTH", body["session_type"])

	resp, body = s.do(t, http.MethodPost, "/api/v1/auth/sessions/"+body["session_uuid"].(string)+"/verify", "", map[string]any{"code": "0000"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["access_token"])
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	s := newServer(t, nil)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/auth/me"},
		{http.MethodPatch, "/api/v1/auth/me"},
		{http.MethodPatch, "/api/v1/auth/me/activity"},
		{http.MethodPost, "/api/v1/auth/logout"},
		{http.MethodGet, "/api/v1/users"},
		{http.MethodGet, "/api/v1/users/" + uuid.NewString()},
	} {
		resp, _ := s.do(t, route.method, route.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, route.path)

		resp, _ = s.do(t, route.method, route.path, "not-a-token", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, route.path)
	}
}

func TestPendingUserIsDenied(t *testing.T) {
	s := newServer(t, nil)
	resp, body := s.do(t, http.MethodPost, "/api/v1/auth/register", "", registerBody("+79990000001"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	userID := uuid.MustParse(body["user"].(map[string]any)["uuid"].(string))
	sessionID := uuid.MustParse(body["session"].(map[string]any)["session_uuid"].(string))
	tokens, err := auth.NewTokenService("router-test-secret", "HS256")
	require.NoError(t, err)
	token, err := tokens.Issue(userID, sessionID, auth.KindAccess, time.Minute)
	require.NoError(t, err)

	resp, body = s.do(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "account is disabled", body["error"])
}

func TestUpdateProfile(t *testing.T) {
	s := newServer(t, nil)
	access, _ := s.signUp(t, "+79990000001")

	// warm the identity cache
	resp, _ := s.do(t, http.MethodGet, "/api/v1/auth/me", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	avatar := uuid.New()
	resp, body := s.do(t, http.MethodPatch, "/api/v1/auth/me", access, map[string]any{
		"first_name": "Pyotr",
		"last_name":  nil,
		"avatar_id":  avatar.String(),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "Pyotr", body["first_name"])
	assert.Equal(t, "Petrov", body["last_name"], "null leaves the field unchanged")
	assert.Equal(t, avatar.String(), body["avatar"].(map[string]any)["document_id"])

	s.inv.Wait()
	assert.NotEmpty(t, s.cache.Patterns())

	resp, body = s.do(t, http.MethodGet, "/api/v1/auth/me", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Pyotr", body["first_name"])
}

func TestUpdateProfile_Validation(t *testing.T) {
	s := newServer(t, nil)
	access, _ := s.signUp(t, "+79990000001")

	resp, body := s.do(t, http.MethodPatch, "/api/v1/auth/me", access, map[string]any{"first_name": "  ", "password": "short"})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	fields := body["fields"].(map[string]any)
	assert.Contains(t, fields, "first_name")
	assert.Contains(t, fields, "password")
}

func TestUpdateActivity(t *testing.T) {
	s := newServer(t, nil)
	access, _ := s.signUp(t, "+79990000001")

	resp, body := s.do(t, http.MethodPatch, "/api/v1/auth/me/activity", access, map[string]any{
		"is_online":     true,
		"last_activity": 1700000000,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, true, body["is_online"])
	assert.Equal(t, "2023-11-14T22:13:20Z", body["last_activity"])

	resp, body = s.do(t, http.MethodPatch, "/api/v1/auth/me/activity", access, map[string]any{
		"last_activity": "2024-03-01T15:00:00+03:00",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, true, body["is_online"], "absent field is kept")
	assert.Equal(t, "2024-03-01T12:00:00Z", body["last_activity"])

	resp, _ = s.do(t, http.MethodPatch, "/api/v1/auth/me/activity", access, map[string]any{"last_activity": "yesterday"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRefreshAndLogout(t *testing.T) {
	s := newServer(t, nil)
	access, refresh := s.signUp(t, "+79990000001")

	resp, _ := s.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]any{"refresh_token": access})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "access token is not a refresh token")

	resp, body := s.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]any{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["access_token"])

	resp, _ = s.do(t, http.MethodPost, "/api/v1/auth/logout", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]any{"refresh_token": refresh})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUsers_ListAndGet(t *testing.T) {
	s := newServer(t, nil)
	access, _ := s.signUp(t, "+79990000001")
	s.signUp(t, "+79990000002")

	req, err := http.NewRequest(http.MethodGet, s.srv.URL+"/api/v1/users", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+access)
	resp, err := s.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list []model.User
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 2)

	other := list[0]
	if other.IsMe {
		other = list[1]
	}
	resp2, body := s.do(t, http.MethodGet, "/api/v1/users/"+other.ID.String(), access, nil)
	require.Equal(t, http.StatusOK, resp2.StatusCode)
	assert.Equal(t, false, body["is_me"])

	resp2, _ = s.do(t, http.MethodGet, "/api/v1/users/"+uuid.NewString(), access, nil)
	assert.Equal(t, http.StatusForbidden, resp2.StatusCode)

	resp2, _ = s.do(t, http.MethodGet, "/api/v1/users/not-a-uuid", access, nil)
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestPublicAuthRoutesAreRateLimited(t *testing.T) {
	s := newServer(t, middleware.NewRateLimiter(0.001, 2, time.Minute))

	login := map[string]any{"phone": "+79990000001", "password": "secret-password"}
	for i := 0; i < 2; i++ {
		resp, _ := s.do(t, http.MethodPost, "/api/v1/auth/login", "", login)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	resp, body := s.do(t, http.MethodPost, "/api/v1/auth/login", "", login)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "rate limit exceeded", body["error"])
}

func TestHealthAndMetrics(t *testing.T) {
	s := newServer(t, nil)

	resp, body := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, err := s.srv.Client().Get(s.srv.URL + "/__metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
