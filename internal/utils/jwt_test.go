package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestNewAccessToken_Claims(t *testing.T) {
	at, err := NewAccessToken("secret", 42, "ADMIN", 15)
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	if at.Token == "" {
		t.Fatal("empty token")
	}

	parsed, err := jwt.Parse(at.Token, func(tok *jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("parse: %v", err)
	}
	claims := parsed.Claims.(jwt.MapClaims)
	if claims["sub"].(float64) != 42 {
		t.Errorf("unexpected sub: %v", claims["sub"])
	}
	if claims["role"].(string) != "ADMIN" {
		t.Errorf("unexpected role: %v", claims["role"])
	}
	if time.Until(at.Exp) > 15*time.Minute || time.Until(at.Exp) < 14*time.Minute {
		t.Errorf("unexpected expiry: %v", at.Exp)
	}
}

func TestNewAccessToken_WrongSecret(t *testing.T) {
	at, err := NewAccessToken("secret", 1, "USER", 15)
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	_, err = jwt.Parse(at.Token, func(tok *jwt.Token) (interface{}, error) {
		return []byte("other"), nil
	})
	if err == nil {
		t.Error("expected verification failure with wrong secret")
	}
}

func TestNewRefreshToken(t *testing.T) {
	rt, err := NewRefreshToken(30)
	if err != nil {
		t.Fatalf("NewRefreshToken: %v", err)
	}
	if len(rt.Raw) != 96 {
		t.Errorf("expected 96 hex chars, got %d", len(rt.Raw))
	}
	if time.Until(rt.Exp) < 29*24*time.Hour {
		t.Errorf("unexpected expiry: %v", rt.Exp)
	}

	other, _ := NewRefreshToken(30)
	if rt.Raw == other.Raw {
		t.Error("two refresh tokens should not collide")
	}
}

func TestHashRefreshRaw_Deterministic(t *testing.T) {
	a := HashRefreshRaw("token-value")
	b := HashRefreshRaw("token-value")
	if a != b {
		t.Error("hash must be deterministic")
	}
	if a == HashRefreshRaw("other-value") {
		t.Error("distinct tokens must hash differently")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}
