package http

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/habitflow/auth-service/internal/config"
	"github.com/habitflow/auth-service/internal/models"
	"github.com/habitflow/auth-service/internal/password"
	"github.com/habitflow/auth-service/internal/service"
	"github.com/habitflow/auth-service/internal/storage"
	"github.com/habitflow/auth-service/mocks"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Тесты HTTP-слоя: собирается настоящий роутер (chi + мидлвары + хендлеры)
// поверх сервиса с мокнутым хранилищем. Для сквозных сценариев ротации и
// logout хранилище эмулируется состоянием в замыканиях (fakeStore).

func testAuthCfg() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:       "http-test-secret",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
		Issuer:          "auth-service",
		Audience:        []string{"habitflow-api"},
	}
}

func testLimits() config.LimitsConfig {
	return config.LimitsConfig{
		General:  config.LimitPolicy{Max: 1000, Window: time.Minute},
		Auth:     config.LimitPolicy{Max: 1000, Window: time.Minute},
		Register: config.LimitPolicy{Max: 1000, Window: time.Minute},
	}
}

func testHasher() *password.Hasher {
	return password.New(password.Params{MemoryKiB: 8 * 1024, Iterations: 1, Parallelism: 1})
}

func hashSecret(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// newServer собирает роутер с мокнутым хранилищем и заданными лимитами.
func newServer(t *testing.T, limits config.LimitsConfig) (http.Handler, *mocks.MockStorage) {
	t.Helper()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	st := mocks.NewMockStorage(ctrl)
	svc := service.New(st, testAuthCfg(), testHasher())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	lim := NewLimiters(limits)
	h := NewRouter(svc, lim, Options{Logger: logger, Timeout: 5 * time.Second, Limits: limits})

	return h, st
}

// fakeStore — состояние refresh-токенов поверх gomock для сквозных сценариев.
type fakeStore struct {
	mu     sync.Mutex
	user   *models.User
	tokens map[string]*models.RefreshToken // token_hash -> запись
}

func newFakeStore(t *testing.T, st *mocks.MockStorage, pw string) *fakeStore {
	t.Helper()

	hash, err := testHasher().Hash(pw)
	require.NoError(t, err)

	f := &fakeStore{
		user: &models.User{
			ID:           uuid.New(),
			Email:        "user@example.com",
			PasswordHash: hash,
		},
		tokens: make(map[string]*models.RefreshToken),
	}

	st.EXPECT().UserByEmail(gomock.Any(), f.user.Email).Return(f.user, nil).AnyTimes()
	st.EXPECT().UserByID(gomock.Any(), f.user.ID).Return(f.user, nil).AnyTimes()

	st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, token *models.RefreshToken) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			if _, ok := f.tokens[token.TokenHash]; ok {
				return storage.ErrAlreadyExists
			}
			cp := *token
			f.tokens[token.TokenHash] = &cp
			return nil
		}).AnyTimes()

	st.EXPECT().ClaimRefreshToken(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, hash string, now time.Time) (*models.RefreshToken, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			token, ok := f.tokens[hash]
			if !ok || !token.Active(now) {
				return nil, storage.ErrNotFound
			}
			revoked := now
			token.RevokedAt = &revoked
			cp := *token
			return &cp, nil
		}).AnyTimes()

	st.EXPECT().RevokeRefreshToken(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, hash string, now time.Time) (bool, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			token, ok := f.tokens[hash]
			if !ok {
				return false, storage.ErrNotFound
			}
			if token.RevokedAt != nil {
				return false, nil
			}
			revoked := now
			token.RevokedAt = &revoked
			return true, nil
		}).AnyTimes()

	st.EXPECT().RevokeAllByUser(gomock.Any(), f.user.ID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, now time.Time) (int64, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			var n int64
			for _, token := range f.tokens {
				if token.RevokedAt == nil {
					revoked := now
					token.RevokedAt = &revoked
					n++
				}
			}
			return n, nil
		}).AnyTimes()

	st.EXPECT().ActiveRefreshTokensByUser(gomock.Any(), f.user.ID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, now time.Time) ([]models.RefreshToken, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			var out []models.RefreshToken
			for _, token := range f.tokens {
				if token.Active(now) {
					out = append(out, *token)
				}
			}
			return out, nil
		}).AnyTimes()

	return f
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(out))
}

type errEnvelope struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
	} `json:"error"`
}

type authBody struct {
	AccessToken     string `json:"access_token"`
	RefreshToken    string `json:"refresh_token"`
	AccessExpiresAt int64  `json:"access_expires_at"`
	Account         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"account"`
}

func TestHTTP_Register_Created(t *testing.T) {
	t.Parallel()

	h, st := newServer(t, testLimits())

	st.EXPECT().UserByEmail(gomock.Any(), "new@example.com").Return(nil, storage.ErrNotFound)
	st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).Return(nil)
	st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).Return(nil)

	rec := doJSON(t, h, http.MethodPost, "/auth/register",
		`{"email":"New@Example.com","password":"Abcdef1!"}`, nil)

	require.Equal(t, http.StatusCreated, rec.Code)

	var body authBody
	decodeBody(t, rec, &body)
	require.NotEmpty(t, body.AccessToken)
	require.NotEmpty(t, body.RefreshToken)
	require.Equal(t, "new@example.com", body.Account.Email)

	// В ответе нет ни пароля, ни его хэша.
	require.NotContains(t, rec.Body.String(), "Abcdef1!")
	require.NotContains(t, rec.Body.String(), "password")
}

func TestHTTP_Register_Validation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{"broken json", `{"email":`},
		{"unknown field", `{"email":"a@b.com","password":"Abcdef1!","admin":true}`},
		{"bad email", `{"email":"nope","password":"Abcdef1!"}`},
		{"weak password", `{"email":"a@b.com","password":"short"}`},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h, _ := newServer(t, testLimits())

			rec := doJSON(t, h, http.MethodPost, "/auth/register", tc.body, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var env errEnvelope
			decodeBody(t, rec, &env)
			require.Equal(t, "validation_error", env.Error.Code)
		})
	}
}

func TestHTTP_Register_Conflict(t *testing.T) {
	t.Parallel()

	h, st := newServer(t, testLimits())

	st.EXPECT().UserByEmail(gomock.Any(), "taken@example.com").
		Return(&models.User{ID: uuid.New(), Email: "taken@example.com"}, nil)

	rec := doJSON(t, h, http.MethodPost, "/auth/register",
		`{"email":"taken@example.com","password":"Abcdef1!"}`, nil)

	require.Equal(t, http.StatusConflict, rec.Code)

	var env errEnvelope
	decodeBody(t, rec, &env)
	require.Equal(t, "account_exists", env.Error.Code)
}

// TestHTTP_Login_UnknownEmailAndWrongPassword_Indistinguishable — оба отказа
// дают одинаковый статус и код: перечисление аккаунтов невозможно.
func TestHTTP_Login_UnknownEmailAndWrongPassword_Indistinguishable(t *testing.T) {
	t.Parallel()

	h, st := newServer(t, testLimits())

	pwHash, err := testHasher().Hash("Correct1!")
	require.NoError(t, err)

	st.EXPECT().UserByEmail(gomock.Any(), "ghost@example.com").
		Return(nil, storage.ErrNotFound)
	st.EXPECT().UserByEmail(gomock.Any(), "user@example.com").
		Return(&models.User{ID: uuid.New(), Email: "user@example.com", PasswordHash: pwHash}, nil)

	// Фиксированный X-Request-Id: иначе сгенерированный UUID попадает в
	// request_id и тела перестают быть сравнимыми побайтно.
	hdr := http.Header{}
	hdr.Set("X-Request-Id", "req-cmp")

	ghost := doJSON(t, h, http.MethodPost, "/auth/login",
		`{"email":"ghost@example.com","password":"Whatever1!"}`, hdr)
	wrong := doJSON(t, h, http.MethodPost, "/auth/login",
		`{"email":"user@example.com","password":"Wrong1!!"}`, hdr)

	require.Equal(t, http.StatusUnauthorized, ghost.Code)
	require.Equal(t, http.StatusUnauthorized, wrong.Code)
	require.JSONEq(t, ghost.Body.String(), wrong.Body.String())

	var env errEnvelope
	decodeBody(t, ghost, &env)
	require.Equal(t, "invalid_credentials", env.Error.Code)
}

// TestHTTP_RefreshFlow_RotateThenReplay — сквозной сценарий: login -> refresh
// (новая пара) -> повтор со старым refresh-токеном отклоняется.
func TestHTTP_RefreshFlow_RotateThenReplay(t *testing.T) {
	t.Parallel()

	h, st := newServer(t, testLimits())
	newFakeStore(t, st, "Abcdef1!")

	login := doJSON(t, h, http.MethodPost, "/auth/login",
		`{"email":"user@example.com","password":"Abcdef1!"}`, nil)
	require.Equal(t, http.StatusOK, login.Code)

	var first authBody
	decodeBody(t, login, &first)

	refresh := doJSON(t, h, http.MethodPost, "/auth/refresh",
		`{"refresh_token":"`+first.RefreshToken+`"}`, nil)
	require.Equal(t, http.StatusOK, refresh.Code)

	var second authBody
	decodeBody(t, refresh, &second)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)
	require.NotEmpty(t, second.AccessToken)

	// Повтор со старым (уже ротированным) токеном.
	replay := doJSON(t, h, http.MethodPost, "/auth/refresh",
		`{"refresh_token":"`+first.RefreshToken+`"}`, nil)
	require.Equal(t, http.StatusUnauthorized, replay.Code)

	var env errEnvelope
	decodeBody(t, replay, &env)
	require.Equal(t, "invalid_refresh_token", env.Error.Code)

	// Новый токен из ротации остаётся рабочим.
	again := doJSON(t, h, http.MethodPost, "/auth/refresh",
		`{"refresh_token":"`+second.RefreshToken+`"}`, nil)
	require.Equal(t, http.StatusOK, again.Code)
}

func TestHTTP_Refresh_MissingToken(t *testing.T) {
	t.Parallel()

	h, _ := newServer(t, testLimits())

	rec := doJSON(t, h, http.MethodPost, "/auth/refresh", `{}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var env errEnvelope
	decodeBody(t, rec, &env)
	require.Equal(t, "validation_error", env.Error.Code)
}

// TestHTTP_Logout_Idempotent — logout по refresh-токену: повторный вызов
// и неизвестный токен так же успешны.
func TestHTTP_Logout_Idempotent(t *testing.T) {
	t.Parallel()

	h, st := newServer(t, testLimits())
	newFakeStore(t, st, "Abcdef1!")

	login := doJSON(t, h, http.MethodPost, "/auth/login",
		`{"email":"user@example.com","password":"Abcdef1!"}`, nil)
	require.Equal(t, http.StatusOK, login.Code)

	var parent authBody
	decodeBody(t, login, &parent)

	// Одна ротация: дальше работаем с дочерним токеном.
	rotate := doJSON(t, h, http.MethodPost, "/auth/refresh",
		`{"refresh_token":"`+parent.RefreshToken+`"}`, nil)
	require.Equal(t, http.StatusOK, rotate.Code)

	var body authBody
	decodeBody(t, rotate, &body)

	payload := `{"refresh_token":"` + body.RefreshToken + `"}`
	first := doJSON(t, h, http.MethodPost, "/auth/logout", payload, nil)
	require.Equal(t, http.StatusOK, first.Code)

	second := doJSON(t, h, http.MethodPost, "/auth/logout", payload, nil)
	require.Equal(t, http.StatusOK, second.Code)

	unknown := doJSON(t, h, http.MethodPost, "/auth/logout",
		`{"refresh_token":"never-issued"}`, nil)
	require.Equal(t, http.StatusOK, unknown.Code)

	// Отозванный токен больше не ротируется.
	replay := doJSON(t, h, http.MethodPost, "/auth/refresh", payload, nil)
	require.Equal(t, http.StatusUnauthorized, replay.Code)
}

// TestHTTP_Logout_WithAccessToken_RevokesAllSessions — logout с валидным
// Authorization отзывает все сессии пользователя.
func TestHTTP_Logout_WithAccessToken_RevokesAllSessions(t *testing.T) {
	t.Parallel()

	h, st := newServer(t, testLimits())
	newFakeStore(t, st, "Abcdef1!")

	// Две сессии.
	first := doJSON(t, h, http.MethodPost, "/auth/login",
		`{"email":"user@example.com","password":"Abcdef1!"}`, nil)
	require.Equal(t, http.StatusOK, first.Code)
	second := doJSON(t, h, http.MethodPost, "/auth/login",
		`{"email":"user@example.com","password":"Abcdef1!"}`, nil)
	require.Equal(t, http.StatusOK, second.Code)

	var a, b authBody
	decodeBody(t, first, &a)
	decodeBody(t, second, &b)

	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+a.AccessToken)

	// До logout видны обе сессии, новые первыми.
	before := doJSON(t, h, http.MethodGet, "/auth/sessions", "", hdr)
	require.Equal(t, http.StatusOK, before.Code)
	var list struct {
		Sessions []struct {
			ID string `json:"id"`
		} `json:"sessions"`
	}
	decodeBody(t, before, &list)
	require.Len(t, list.Sessions, 2)

	logout := doJSON(t, h, http.MethodPost, "/auth/logout", "", hdr)
	require.Equal(t, http.StatusOK, logout.Code)

	// Обе сессии мертвы.
	for _, rt := range []string{a.RefreshToken, b.RefreshToken} {
		rec := doJSON(t, h, http.MethodPost, "/auth/refresh",
			`{"refresh_token":"`+rt+`"}`, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	// Access-токен, выпущенный до logout, ещё действует; список сессий пуст.
	after := doJSON(t, h, http.MethodGet, "/auth/sessions", "", hdr)
	require.Equal(t, http.StatusOK, after.Code)
	decodeBody(t, after, &list)
	require.Empty(t, list.Sessions)
}

func TestHTTP_Sessions_RequiresAuth(t *testing.T) {
	t.Parallel()

	h, _ := newServer(t, testLimits())

	rec := doJSON(t, h, http.MethodGet, "/auth/sessions", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var env errEnvelope
	decodeBody(t, rec, &env)
	require.Equal(t, "auth_required", env.Error.Code)
}

func TestHTTP_Sessions_ListsActive(t *testing.T) {
	t.Parallel()

	h, st := newServer(t, testLimits())
	newFakeStore(t, st, "Abcdef1!")

	login := doJSON(t, h, http.MethodPost, "/auth/login",
		`{"email":"user@example.com","password":"Abcdef1!"}`, nil)
	require.Equal(t, http.StatusOK, login.Code)

	var body authBody
	decodeBody(t, login, &body)

	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+body.AccessToken)
	rec := doJSON(t, h, http.MethodGet, "/auth/sessions", "", hdr)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Sessions []struct {
			ID        string    `json:"id"`
			CreatedAt time.Time `json:"created_at"`
			ExpiresAt time.Time `json:"expires_at"`
		} `json:"sessions"`
	}
	decodeBody(t, rec, &out)
	require.Len(t, out.Sessions, 1)

	// Хэш refresh-токена наружу не уходит.
	require.NotContains(t, rec.Body.String(), hashSecret(body.RefreshToken))
	require.NotContains(t, rec.Body.String(), body.RefreshToken)
}

// TestHTTP_RateLimit_Register — превышение лимита регистраций с одного IP.
func TestHTTP_RateLimit_Register(t *testing.T) {
	t.Parallel()

	limits := testLimits()
	limits.Register = config.LimitPolicy{Max: 2, Window: time.Minute}
	h, st := newServer(t, limits)

	st.EXPECT().UserByEmail(gomock.Any(), gomock.Any()).Return(nil, storage.ErrNotFound).AnyTimes()
	st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	for i := 0; i < 2; i++ {
		rec := doJSON(t, h, http.MethodPost, "/auth/register",
			`{"email":"u`+strings.Repeat("x", i+1)+`@example.com","password":"Abcdef1!"}`, nil)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, h, http.MethodPost, "/auth/register",
		`{"email":"last@example.com","password":"Abcdef1!"}`, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var env errEnvelope
	decodeBody(t, rec, &env)
	require.Equal(t, "rate_limit_exceeded", env.Error.Code)
}

// TestHTTP_RateLimit_Auth_ForgivesSuccess — успешные входы не расходуют лимит,
// неудачные — расходуют.
func TestHTTP_RateLimit_Auth_ForgivesSuccess(t *testing.T) {
	t.Parallel()

	limits := testLimits()
	limits.Auth = config.LimitPolicy{Max: 2, Window: time.Minute}
	h, st := newServer(t, limits)
	newFakeStore(t, st, "Abcdef1!")

	// Успешных входов больше лимита — все проходят.
	for i := 0; i < 4; i++ {
		rec := doJSON(t, h, http.MethodPost, "/auth/login",
			`{"email":"user@example.com","password":"Abcdef1!"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	// Две неудачи исчерпывают лимит, третья попытка отклоняется до проверки пароля.
	for i := 0; i < 2; i++ {
		rec := doJSON(t, h, http.MethodPost, "/auth/login",
			`{"email":"user@example.com","password":"Wrong1!!"}`, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := doJSON(t, h, http.MethodPost, "/auth/login",
		`{"email":"user@example.com","password":"Abcdef1!"}`, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

// TestHTTP_RateLimit_TrustedHeaderKey — за доверенным прокси лимит считается
// по заголовку, разные клиентские IP независимы.
func TestHTTP_RateLimit_TrustedHeaderKey(t *testing.T) {
	t.Parallel()

	limits := testLimits()
	limits.Register = config.LimitPolicy{Max: 1, Window: time.Minute}
	limits.TrustedIPHeader = "X-Real-Ip"
	h, st := newServer(t, limits)

	st.EXPECT().UserByEmail(gomock.Any(), gomock.Any()).Return(nil, storage.ErrNotFound).AnyTimes()
	st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	hdrA := http.Header{}
	hdrA.Set("X-Real-Ip", "203.0.113.10")
	hdrB := http.Header{}
	hdrB.Set("X-Real-Ip", "203.0.113.20")

	rec := doJSON(t, h, http.MethodPost, "/auth/register",
		`{"email":"a@example.com","password":"Abcdef1!"}`, hdrA)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Тот же IP — лимит исчерпан.
	rec = doJSON(t, h, http.MethodPost, "/auth/register",
		`{"email":"b@example.com","password":"Abcdef1!"}`, hdrA)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Другой IP — лимит свой.
	rec = doJSON(t, h, http.MethodPost, "/auth/register",
		`{"email":"c@example.com","password":"Abcdef1!"}`, hdrB)
	require.Equal(t, http.StatusCreated, rec.Code)
}

// TestHTTP_ErrorEnvelope_CarriesRequestID — request_id из X-Request-Id
// возвращается в теле ошибки.
func TestHTTP_ErrorEnvelope_CarriesRequestID(t *testing.T) {
	t.Parallel()

	h, _ := newServer(t, testLimits())

	hdr := http.Header{}
	hdr.Set("X-Request-Id", "req-42")
	rec := doJSON(t, h, http.MethodPost, "/auth/refresh", `{}`, hdr)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var env errEnvelope
	decodeBody(t, rec, &env)
	require.Equal(t, "req-42", env.Error.RequestID)
}
