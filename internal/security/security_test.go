package security

import (
	"testing"
	"time"
)

func TestAdminTokenRoundTrip(t *testing.T) {
	token, errGenerate := GenerateAdminToken("secret", "admin", time.Minute)
	if errGenerate != nil {
		t.Fatalf("generate: %v", errGenerate)
	}
	claims, errParse := ParseAdminToken("secret", token)
	if errParse != nil {
		t.Fatalf("parse: %v", errParse)
	}
	if claims.Username != "admin" {
		t.Fatalf("username = %q", claims.Username)
	}

	if _, errWrong := ParseAdminToken("other", token); errWrong == nil {
		t.Fatalf("wrong secret must fail")
	}
}

func TestAdminTokenExpiry(t *testing.T) {
	token, errGenerate := GenerateAdminToken("secret", "admin", -time.Minute)
	if errGenerate != nil {
		t.Fatalf("generate: %v", errGenerate)
	}
	if _, errParse := ParseAdminToken("secret", token); errParse != ErrExpiredToken {
		t.Fatalf("expired token error = %v", errParse)
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, errHash := HashPassword("s3cret")
	if errHash != nil {
		t.Fatalf("hash: %v", errHash)
	}
	if !CheckPassword(hash, "s3cret") {
		t.Fatalf("correct password rejected")
	}
	if CheckPassword(hash, "nope") {
		t.Fatalf("wrong password accepted")
	}
}
