package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testKey = "0123456789abcdef0123"

func newTestAuth(t *testing.T) *Auth {
	t.Helper()
	a, err := New(Options{Logger: zap.NewNop(), JWTSigningKey: testKey})
	require.NoError(t, err)
	return a
}

func TestNewValidation(t *testing.T) {
	_, err := New(Options{Logger: zap.NewNop(), JWTSigningKey: "short"})
	assert.Error(t, err)
	_, err = New(Options{JWTSigningKey: testKey})
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	a := newTestAuth(t)

	valid, err := a.CreateToken("erp-bridge", time.Minute)
	require.NoError(t, err)
	expired, err := a.CreateToken("erp-bridge", -time.Minute)
	require.NoError(t, err)

	other, err := New(Options{Logger: zap.NewNop(), JWTSigningKey: "another-signing-key-0000"})
	require.NoError(t, err)
	foreign, err := other.CreateToken("erp-bridge", time.Minute)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Caller: "x"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCaller string
	}{
		{name: "valid", header: "Bearer " + valid, wantStatus: http.StatusOK, wantCaller: "erp-bridge"},
		{name: "missing", header: "", wantStatus: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + expired, wantStatus: http.StatusUnauthorized},
		{name: "wrong key", header: "Bearer " + foreign, wantStatus: http.StatusUnauthorized},
		{name: "unsigned", header: "Bearer " + unsigned, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var caller string
			h := a.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				caller = CallerFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCaller, caller)
		})
	}
}

func TestCreateTokenRequiresCaller(t *testing.T) {
	a := newTestAuth(t)
	_, err := a.CreateToken("", time.Minute)
	assert.Error(t, err)
}
