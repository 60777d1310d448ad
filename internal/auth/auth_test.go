package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueThenValidate(t *testing.T) {
	v, err := NewValidator([]byte("super-secret"), "batchd")
	require.NoError(t, err)

	token, err := v.Issue("svc-a", time.Minute)
	require.NoError(t, err)

	claims, err := v.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "svc-a", claims.Subject)
}

func TestValidate_RejectsExpiredToken(t *testing.T) {
	v, err := NewValidator([]byte("super-secret"), "batchd")
	require.NoError(t, err)

	token, err := v.Issue("svc-a", -time.Minute)
	require.NoError(t, err)

	_, err = v.Validate(token)
	assert.Error(t, err)
}

func TestValidate_RejectsWrongSigningKey(t *testing.T) {
	v1, err := NewValidator([]byte("key-one"), "batchd")
	require.NoError(t, err)
	v2, err := NewValidator([]byte("key-two"), "batchd")
	require.NoError(t, err)

	token, err := v1.Issue("svc-a", time.Minute)
	require.NoError(t, err)

	_, err = v2.Validate(token)
	assert.Error(t, err)
}

func TestMiddleware_RejectsMissingHeader(t *testing.T) {
	v, err := NewValidator([]byte("super-secret"), "batchd")
	require.NoError(t, err)

	handler := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run without a valid token")
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/items", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_AllowsValidToken(t *testing.T) {
	v, err := NewValidator([]byte("super-secret"), "batchd")
	require.NoError(t, err)

	token, err := v.Issue("svc-a", time.Minute)
	require.NoError(t, err)

	var subject string
	handler := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		subject = claims.Subject
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/items", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "svc-a", subject)
}
