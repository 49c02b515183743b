package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/wardline/internal/server/middleware"
)

const testJWTSecret = "test-jwt-secret-for-middleware-tests"

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// contextHandler captures context values set by middleware so tests can
// assert that the correct tenant and user were injected.
type contextHandler struct {
	tenantID uuid.UUID
	userID   uuid.UUID
	called   bool
}

func (h *contextHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.called = true
	h.tenantID, _ = middleware.TenantIDFromContext(r.Context())
	h.userID, _ = middleware.UserIDFromContext(r.Context())
	w.WriteHeader(http.StatusOK)
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

type tokenClaims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tid"`
	UserID   string `json:"uid"`
}

func issueToken(t *testing.T, secret, issuer string, tid, uid string, ttl time.Duration) string {
	t.Helper()

	now := time.Now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TenantID: tid,
		UserID:   uid,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func serve(handler http.Handler, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// ===========================================================================
// 1. Context helpers
// ===========================================================================

func TestIdentityFromContext(t *testing.T) {
	t.Parallel()

	t.Run("present", func(t *testing.T) {
		t.Parallel()

		tid, uid := uuid.New(), uuid.New()
		ctx := middleware.WithIdentity(context.Background(), tid, uid)

		gotTenant, ok := middleware.TenantIDFromContext(ctx)
		require.True(t, ok)
		assert.Equal(t, tid, gotTenant)

		gotUser, ok := middleware.UserIDFromContext(ctx)
		require.True(t, ok)
		assert.Equal(t, uid, gotUser)
	})

	t.Run("absent", func(t *testing.T) {
		t.Parallel()

		_, ok := middleware.TenantIDFromContext(context.Background())
		assert.False(t, ok)
		_, ok = middleware.UserIDFromContext(context.Background())
		assert.False(t, ok)
	})

	t.Run("wrong type", func(t *testing.T) {
		t.Parallel()

		ctx := context.WithValue(context.Background(), middleware.ContextKeyTenantID, "not-a-uuid")
		_, ok := middleware.TenantIDFromContext(ctx)
		assert.False(t, ok)
	})
}

// ===========================================================================
// 2. RequireTenant
// ===========================================================================

func TestRequireTenant(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		ctx        context.Context
		wantStatus int
	}{
		{name: "tenant and user", ctx: middleware.WithIdentity(context.Background(), uuid.New(), uuid.New()), wantStatus: http.StatusOK},
		{name: "absent", ctx: context.Background(), wantStatus: http.StatusForbidden},
		{name: "nil tenant", ctx: middleware.WithIdentity(context.Background(), uuid.Nil, uuid.New()), wantStatus: http.StatusForbidden},
		{name: "nil user", ctx: middleware.WithIdentity(context.Background(), uuid.New(), uuid.Nil), wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody).WithContext(tt.ctx)
			rec := httptest.NewRecorder()
			middleware.RequireTenant()(okHandler).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

// ===========================================================================
// 3. Auth
// ===========================================================================

func TestAuth_ValidToken_PopulatesContext(t *testing.T) {
	t.Parallel()

	tenantID, userID := uuid.New(), uuid.New()
	token := issueToken(t, testJWTSecret, "", tenantID.String(), userID.String(), 15*time.Minute)

	capture := &contextHandler{}
	rec := serve(middleware.Auth(testJWTSecret, "")(capture), "Bearer "+token)

	require.True(t, capture.called, "inner handler must be called")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tenantID, capture.tenantID)
	assert.Equal(t, userID, capture.userID)
}

func TestAuth_Rejections(t *testing.T) {
	t.Parallel()

	tid, uid := uuid.New().String(), uuid.New().String()

	tests := []struct {
		name   string
		header string
		issuer string
	}{
		{name: "no credentials", header: ""},
		{name: "garbage token", header: "Bearer totally.invalid.token"},
		{name: "expired", header: "Bearer " + issueToken(t, testJWTSecret, "", tid, uid, -time.Second)},
		{name: "wrong secret", header: "Bearer " + issueToken(t, "another-secret-another-secret-xx", "", tid, uid, time.Minute)},
		{name: "bad tenant claim", header: "Bearer " + issueToken(t, testJWTSecret, "", "tenant-1", uid, time.Minute)},
		{name: "bad user claim", header: "Bearer " + issueToken(t, testJWTSecret, "", tid, "", time.Minute)},
		{name: "wrong issuer", header: "Bearer " + issueToken(t, testJWTSecret, "evil", tid, uid, time.Minute), issuer: "auth.example"},
		{name: "basic scheme", header: "Basic " + issueToken(t, testJWTSecret, "", tid, uid, time.Minute)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			capture := &contextHandler{}
			rec := serve(middleware.Auth(testJWTSecret, tt.issuer)(capture), tt.header)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), "Unauthorized")
			assert.False(t, capture.called)
		})
	}
}

func TestAuth_NoneAlgorithmRejected(t *testing.T) {
	t.Parallel()

	claims := tokenClaims{TenantID: uuid.New().String(), UserID: uuid.New().String()}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	rec := serve(middleware.Auth(testJWTSecret, "")(okHandler), "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_BearerFormat(t *testing.T) {
	t.Parallel()

	token := issueToken(t, testJWTSecret, "auth.example", uuid.New().String(), uuid.New().String(), 15*time.Minute)

	for _, prefix := range []string{"Bearer ", "bearer ", "BEARER "} {
		t.Run(prefix, func(t *testing.T) {
			t.Parallel()

			rec := serve(middleware.Auth(testJWTSecret, "auth.example")(okHandler), prefix+token)
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}
