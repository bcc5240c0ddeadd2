package auth

import (
	"testing"
	"time"
)

func TestIssueAndParseRoundTrip(t *testing.T) {
	pair, err := Issue("room-101", RoleStation, "hallpass-test", "secret", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	claims, err := Parse(pair.AccessToken, "secret", "hallpass-test")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if claims.Subject != "room-101" {
		t.Fatalf("expected subject room-101, got %s", claims.Subject)
	}
	if claims.Role != RoleStation {
		t.Fatalf("expected station role, got %s", claims.Role)
	}
}

func TestParseRejectsWrongKeyAndIssuer(t *testing.T) {
	pair, err := Issue("room-101", RoleAdmin, "hallpass-test", "secret", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	if _, err := Parse(pair.AccessToken, "other-secret", "hallpass-test"); err == nil {
		t.Fatalf("expected error for wrong signing key")
	}
	if _, err := Parse(pair.AccessToken, "secret", "someone-else"); err == nil {
		t.Fatalf("expected error for issuer mismatch")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	pair, err := Issue("room-101", RoleStation, "hallpass-test", "secret", -time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := Parse(pair.AccessToken, "secret", "hallpass-test"); err == nil {
		t.Fatalf("expected error for expired token")
	}
}
