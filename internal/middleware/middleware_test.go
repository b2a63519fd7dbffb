package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/locolive/pulse/internal/auth"
)

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		query   string
		want    string
		wantErr bool
	}{
		{name: "bearer header", header: "Bearer abc", want: "abc"},
		{name: "lowercase scheme", header: "bearer abc", want: "abc"},
		{name: "query fallback", query: "?token=xyz", want: "xyz"},
		{name: "header wins", header: "Bearer abc", query: "?token=xyz", want: "abc"},
		{name: "basic scheme", header: "Basic abc", wantErr: true},
		{name: "missing", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws"+tt.query, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, err := TokenFromRequest(r)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("token = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAuthAndLogging(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	jwtManager := auth.NewJWTManager("secret", time.Minute)

	var seen, seenEmail string
	handler := LoggingMiddleware(zap.New(core))(AuthMiddleware(jwtManager)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen, _ = GetUserID(r.Context())
			seenEmail, _ = GetEmail(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}),
	))

	token, _ := jwtManager.GenerateAccessToken("user-1", "user-1@example.com")
	r := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusNoContent || seen != "user-1" || seenEmail != "user-1@example.com" {
		t.Fatalf("status = %d, user = %q, email = %q", w.Code, seen, seenEmail)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID")
	}

	entries := logs.FilterMessage("http request").All()
	if len(entries) != 1 {
		t.Fatalf("got %d access log entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["user_id"] != "user-1" || fields["status"] != int64(http.StatusNoContent) {
		t.Fatalf("log fields = %v", fields)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want 401", w.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatal("panic not logged")
	}
}
