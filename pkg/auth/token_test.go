package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/gritsync/gritsync-backend/pkg/config"
	"github.com/gritsync/gritsync-backend/pkg/enums"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret: "super-secret",
		Audience:  "authenticated",
		Issuer:    "https://project.supabase.co/auth/v1",
	}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testAuthConfig()
	userID := uuid.New()

	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{
		UserID: userID,
		Email:  "maria@example.com",
		Role:   enums.UserRoleAdmin,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	got, err := claims.UserID()
	if err != nil || got != userID {
		t.Fatalf("expected user id %s, got %s (%v)", userID, got, err)
	}
	if claims.Email != "maria@example.com" {
		t.Fatalf("unexpected email %q", claims.Email)
	}
	if claims.UserRole() != enums.UserRoleAdmin {
		t.Fatalf("unexpected role %s", claims.UserRole())
	}
}

func TestUserRoleDefaultsToClient(t *testing.T) {
	claims := &AccessTokenClaims{}
	if claims.UserRole() != enums.UserRoleClient {
		t.Fatalf("expected client role, got %s", claims.UserRole())
	}
}

func TestParseAccessTokenRejects(t *testing.T) {
	cfg := testAuthConfig()
	now := time.Now()
	valid, err := MintAccessToken(cfg, now, AccessTokenPayload{UserID: uuid.New()})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	expired, err := MintAccessToken(cfg, now.Add(-2*time.Hour), AccessTokenPayload{UserID: uuid.New(), TTL: time.Minute})
	if err != nil {
		t.Fatalf("mint expired: %v", err)
	}
	wrongAudience := cfg
	wrongAudience.Audience = "anon"
	otherAud, err := MintAccessToken(wrongAudience, now, AccessTokenPayload{UserID: uuid.New()})
	if err != nil {
		t.Fatalf("mint other audience: %v", err)
	}
	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		Audience:  jwt.ClaimStrings{cfg.Audience},
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "not-a-uuid",
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		t.Fatalf("sign bad subject: %v", err)
	}

	cases := map[string]struct {
		cfg   config.AuthConfig
		token string
	}{
		"expired":        {cfg, expired},
		"wrong audience": {cfg, otherAud},
		"wrong secret":   {config.AuthConfig{JWTSecret: "other", Audience: cfg.Audience}, valid},
		"alg none":       {cfg, noneToken},
		"bad subject":    {cfg, badSubject},
		"garbage":        {cfg, "not.a.jwt"},
		"missing secret": {config.AuthConfig{}, valid},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseAccessToken(tc.cfg, tc.token); err == nil {
				t.Fatalf("expected %s token to be rejected", name)
			}
		})
	}
}

func TestMintAccessTokenValidatesPayload(t *testing.T) {
	cfg := testAuthConfig()
	if _, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{}); err == nil || !strings.Contains(err.Error(), "user id") {
		t.Fatalf("expected user id error, got %v", err)
	}
	if _, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: "root"}); err == nil {
		t.Fatal("expected invalid role error")
	}
	if _, err := MintAccessToken(config.AuthConfig{}, time.Now(), AccessTokenPayload{UserID: uuid.New()}); err == nil {
		t.Fatal("expected missing secret error")
	}
}
