package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/syncline/internal/server/jwt"
)

func TestAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := jwt.NewService("test-secret", time.Hour)

	var gotClientID string
	handler := Auth(logger, tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := ClientID(r.Context())
		require.True(t, ok)
		gotClientID = id
		w.WriteHeader(http.StatusOK)
	}))

	validToken, err := tokens.GenerateToken("client-1")
	require.NoError(t, err)

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{name: "valid token", authHeader: "Bearer " + validToken, wantStatus: http.StatusOK},
		{name: "missing header", authHeader: "", wantStatus: http.StatusUnauthorized},
		{name: "not bearer", authHeader: "Basic abc123", wantStatus: http.StatusUnauthorized},
		{name: "malformed header", authHeader: "Bearer", wantStatus: http.StatusUnauthorized},
		{name: "garbage token", authHeader: "Bearer not-a-token", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotClientID = ""

			req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/push", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "client-1", gotClientID)
			}
		})
	}
}

func TestClientID_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	_, ok := ClientID(req.Context())
	assert.False(t, ok)
}
