package jwt

import (
	"testing"
	"time"
)

func TestGenerateAndParse(t *testing.T) {
	token, err := GenerateToken("u1", "Ada", "secret", time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := Parse(token, "secret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != "u1" || claims.DisplayName != "Ada" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken("u1", "", "secret", time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := Parse(token, "other"); err == nil {
		t.Fatalf("expected signature failure")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	token, err := GenerateToken("u1", "", "secret", -time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := Parse(token, "secret"); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestInspectReadsClaimsWithoutSecret(t *testing.T) {
	token, err := GenerateToken("u7", "Grace", "secret", time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := Inspect(token)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if claims.UserID != "u7" || claims.DisplayName != "Grace" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if _, err := Inspect("garbage"); err == nil {
		t.Fatalf("expected malformed token error")
	}
}
