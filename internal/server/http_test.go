package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canny/backend/internal/aggregator"
	aggregatordomain "canny/backend/internal/aggregator/domain"
	aggregatorhandler "canny/backend/internal/aggregator/handler"
	aggregatorservice "canny/backend/internal/aggregator/service"
	identityhandler "canny/backend/internal/identity/handler"
	"canny/backend/internal/identity/service"
	"canny/backend/internal/security"
	"canny/backend/internal/server/httpx"
	sessiondomain "canny/backend/internal/session/domain"
	userdomain "canny/backend/internal/user/domain"
	userrepo "canny/backend/internal/user/repository"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type users struct {
	mu   sync.Mutex
	rows map[string]*userdomain.User
}

func (u *users) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.rows[email], nil
}

func (u *users) Create(ctx context.Context, user *userdomain.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.rows[user.Email]; ok {
		return userrepo.ErrEmailTaken
	}
	u.rows[user.Email] = user
	return nil
}

type sessions struct {
	mu   sync.Mutex
	rows map[string]*sessiondomain.DeviceSession
}

func key(userID, deviceID string) string { return userID + "/" + strings.ToLower(deviceID) }

func (s *sessions) Find(ctx context.Context, userID, deviceID string) (*sessiondomain.DeviceSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[key(userID, deviceID)]; ok {
		cp := *row
		return &cp, nil
	}
	return nil, nil
}

func (s *sessions) ListByUser(ctx context.Context, userID string) ([]*sessiondomain.DeviceSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*sessiondomain.DeviceSession
	for _, row := range s.rows {
		if row.UserID == userID {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *sessions) Create(ctx context.Context, row *sessiondomain.DeviceSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *row
	s.rows[key(row.UserID, row.DeviceID)] = &cp
	return nil
}

func (s *sessions) Delete(ctx context.Context, userID, deviceID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(userID, deviceID)
	if _, ok := s.rows[k]; !ok {
		return 0, nil
	}
	delete(s.rows, k)
	return 1, nil
}

func (s *sessions) UpdateRefreshToken(ctx context.Context, userID, deviceID, current, next string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[key(userID, deviceID)]
	if !ok || row.RefreshToken != current {
		return 0, nil
	}
	row.RefreshToken = next
	return 1, nil
}

type linkOnly struct{}

func (linkOnly) CreateLinkToken(ctx context.Context, userID string) (string, error) {
	return "link-" + userID, nil
}

func (linkOnly) ExchangePublicToken(ctx context.Context, publicToken string) (*aggregator.ExchangeResult, error) {
	return nil, aggregator.ErrNotConfigured
}

func (linkOnly) GetAccounts(ctx context.Context, accessToken string) ([]aggregatordomain.Account, error) {
	return nil, aggregator.ErrNotConfigured
}

type noItems struct{}

func (noItems) Save(ctx context.Context, item *aggregatordomain.Item) error { return nil }

func (noItems) ListByUser(ctx context.Context, userID string) ([]*aggregatordomain.Item, error) {
	return nil, nil
}

type testAPI struct {
	handler http.Handler
	clock   *clock
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	c := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	codec, err := security.NewTokenCodec([]byte("router-test-secret"), security.WithClock(c.Now))
	require.NoError(t, err)
	sessionRepo := &sessions{rows: map[string]*sessiondomain.DeviceSession{}}
	auth := service.NewAuthService(
		&users{rows: map[string]*userdomain.User{}}, sessionRepo,
		security.NewHasher(security.MinPasswordCost), codec, nil, nil,
		time.Hour, 90*24*time.Hour, time.Second,
	)
	verifier := service.NewSessionVerifier(sessionRepo, codec, time.Hour, time.Second)
	agg := aggregatorservice.New(linkOnly{}, noItems{}, nil, time.Second)

	h := NewRouter(Deps{
		Auth:       identityhandler.New(auth, nil),
		Aggregator: aggregatorhandler.New(agg, nil),
		Verifier:   verifier,
	})
	return &testAPI{handler: h, clock: c}
}

func (a *testAPI) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func code(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body httpx.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Code
}

type tokens struct {
	UserID       string `json:"userId"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func TestRouter_AuthJourney(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/api/auth/create-account",
		`{"fullName":"Ada","email":"a@x.com","phoneNumber":"555","password":"pw1"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(http.MethodPost, "/api/auth/login", `{"email":"a@x.com","password":"pw1"}`,
		map[string]string{httpx.HeaderDeviceID: "D1", httpx.HeaderDeviceName: "Pixel", httpx.HeaderDeviceModel: "8"})
	require.Equal(t, http.StatusOK, rec.Code)
	var tok tokens
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))
	require.NotEmpty(t, tok.AccessToken)
	require.NotEmpty(t, tok.RefreshToken)

	pair := map[string]string{httpx.HeaderAccessToken: tok.AccessToken, httpx.HeaderRefreshToken: tok.RefreshToken}
	rec = api.do(http.MethodPost, "/api/plaid/get-link-token", "", pair)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"linkToken":"link-`+tok.UserID+`"}`, rec.Body.String())
	assert.Empty(t, rec.Header().Get(httpx.HeaderAccessToken))

	api.clock.Advance(2 * time.Hour)
	rec = api.do(http.MethodPost, "/api/plaid/get-link-token", "", pair)
	require.Equal(t, http.StatusOK, rec.Code)
	refreshed := rec.Header().Get(httpx.HeaderAccessToken)
	require.NotEmpty(t, refreshed)
	assert.NotEqual(t, tok.AccessToken, refreshed)

	rec = api.do(http.MethodPost, "/api/auth/logout", "", map[string]string{httpx.HeaderAccessToken: refreshed})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodPost, "/api/plaid/get-link-token", "",
		map[string]string{httpx.HeaderAccessToken: refreshed, httpx.HeaderRefreshToken: tok.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, httpx.CodeSessionExpired, code(t, rec))
}

func TestRouter_GateRejectsMissingTokens(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(http.MethodGet, "/api/plaid/get-access-tokens", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, httpx.CodeMissingCredentials, code(t, rec))
}

func TestRouter_LoginFailure(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(http.MethodPost, "/api/auth/login", `{"email":"nobody@x.com","password":"pw"}`,
		map[string]string{httpx.HeaderDeviceID: "D1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, httpx.CodeAuthFailed, code(t, rec))
}

func TestRouter_PublicRoutes(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = api.do(http.MethodGet, "/api/plaid/oauth-redirect?public_token=p1", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodGet, "/api/plaid/oauth-redirect", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_NotFound(t *testing.T) {
	rec := newTestAPI(t).do(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, httpx.CodeNotFound, code(t, rec))
}

func TestRouter_CORSExposesAccessToken(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(http.MethodGet, "/healthz", "", map[string]string{"Origin": "https://app.example"})
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, strings.ToLower(rec.Header().Get("Access-Control-Expose-Headers")), httpx.HeaderAccessToken)
}
