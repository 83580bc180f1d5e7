package mockapi

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestBearerTokenFromHeader(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		wantToken string
		wantErr   bool
	}{
		{"valid", "Bearer abc.def.ghi", "abc.def.ghi", false},
		{"lower case scheme", "bearer abc", "abc", false},
		{"surrounding whitespace", "  Bearer   abc  ", "abc", false},
		{"missing", "", "", true},
		{"basic auth", "Basic YWxpY2U6cHc=", "", true},
		{"no token", "Bearer", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set("Authorization", tt.header)
			}
			got, err := BearerTokenFromHeader(h)
			if (err != nil) != tt.wantErr {
				t.Fatalf("BearerTokenFromHeader() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.wantToken {
				t.Errorf("BearerTokenFromHeader() = %q, want %q", got, tt.wantToken)
			}
		})
	}
}

func TestAccessTokens(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC))
	auth := NewAuthService("a-secret-key-for-tests", time.Hour, clock)

	token, err := auth.GenerateAccessToken("user-1", "session-1")
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	claims, err := auth.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}
	if claims.Subject != "user-1" || claims.ID != "session-1" {
		t.Errorf("claims = %+v", claims)
	}
	if want := clock.Now().Add(time.Hour); !claims.ExpiresAt.Time.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", claims.ExpiresAt.Time, want)
	}

	other := NewAuthService("a-different-secret-key", time.Hour, clock)
	if _, err := other.ValidateAccessToken(token); err == nil || errors.Is(err, errTokenExpired) {
		t.Errorf("token signed with another key: error = %v", err)
	}

	clock.Advance(time.Hour + time.Second)
	if _, err := auth.ValidateAccessToken(token); !errors.Is(err, errTokenExpired) {
		t.Errorf("expired token: error = %v, want errTokenExpired", err)
	}
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if err := CheckPasswordHash(hash, "s3cret"); err != nil {
		t.Errorf("CheckPasswordHash(correct) error = %v", err)
	}
	if err := CheckPasswordHash(hash, "wrong"); err == nil {
		t.Error("CheckPasswordHash(wrong) succeeded")
	}
}
