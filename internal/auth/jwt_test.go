package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Minute)

	token, err := m.GenerateAccessToken("user-1", "u@example.com")
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	claims, err := m.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if claims.UserID != "user-1" || claims.Email != "u@example.com" || claims.Issuer != "locolive" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestJWTManager_Rejects(t *testing.T) {
	m := NewJWTManager("secret", time.Minute)

	expired, _ := NewJWTManager("secret", -time.Minute).GenerateAccessToken("user-1", "")
	foreign, _ := NewJWTManager("other", time.Minute).GenerateAccessToken("user-1", "")

	wrongType, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID:    "user-1",
		TokenType: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "locolive",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte("secret"))

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"expired", expired, ErrExpiredToken},
		{"wrong secret", foreign, ErrInvalidToken},
		{"wrong type", wrongType, ErrInvalidToken},
		{"garbage", "not-a-token", ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.ValidateAccessToken(tt.token); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestJWTManager_SubjectFallback(t *testing.T) {
	m := NewJWTManager("secret", time.Minute)

	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		TokenType: AccessToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "locolive",
			Subject:   "user-9",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte("secret"))

	claims, err := m.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if claims.UserID != "user-9" {
		t.Fatalf("UserID = %q, want user-9", claims.UserID)
	}
}

func TestJWTManager_EmptyUser(t *testing.T) {
	m := NewJWTManager("secret", time.Minute)
	if _, err := m.GenerateAccessToken("", ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}
