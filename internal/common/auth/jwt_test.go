package auth

import (
	"context"
	"testing"
	"time"

	"erp-nlquery/internal/common/config"
	"erp-nlquery/internal/common/logger"
	"erp-nlquery/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret: "test-secret",
		Issuer:    "erp",
		Audience:  "erp_mcp",
	}
}

func newVerifier(t *testing.T, cfg config.AuthConfig) *Verifier {
	return NewVerifier(config.AppConfig{Environment: "production"}, cfg, logger.NewTestLogger(t))
}

func TestVerify_ValidToken(t *testing.T) {
	cfg := testAuthConfig()
	token, err := IssueToken(cfg, "u-42", []string{"teacher"}, time.Hour, time.Now())
	require.NoError(t, err)

	p, err := newVerifier(t, cfg).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u-42", p.UserID)
	assert.Equal(t, []string{"teacher"}, p.Roles)
}

func TestVerify_UserIDClaimFallback(t *testing.T) {
	cfg := testAuthConfig()
	claims := Claims{
		UserID: "legacy-7",
		Roles:  []string{"student"},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   cfg.Issuer,
			Audience: jwt.ClaimStrings{cfg.Audience},
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	require.NoError(t, err)

	p, err := newVerifier(t, cfg).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "legacy-7", p.UserID)
}

func TestVerify_Rejections(t *testing.T) {
	cfg := testAuthConfig()
	now := time.Now()

	wrongSecret := cfg
	wrongSecret.JWTSecret = "other"
	forged, _ := IssueToken(wrongSecret, "u-1", []string{"admin"}, time.Hour, now)

	wrongAudience := cfg
	wrongAudience.Audience = "someone_else"
	otherAud, _ := IssueToken(wrongAudience, "u-1", []string{"admin"}, time.Hour, now)

	wrongIssuer := cfg
	wrongIssuer.Issuer = "elsewhere"
	otherIss, _ := IssueToken(wrongIssuer, "u-1", []string{"admin"}, time.Hour, now)

	expired, _ := IssueToken(cfg, "u-1", []string{"admin"}, time.Hour, now.Add(-2*time.Hour))
	noUser, _ := IssueToken(cfg, "", []string{"admin"}, time.Hour, now)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"empty", "", ErrMissingToken},
		{"garbage", "not-a-jwt", ErrInvalidToken},
		{"wrong secret", forged, ErrInvalidToken},
		{"wrong audience", otherAud, ErrInvalidToken},
		{"wrong issuer", otherIss, ErrInvalidToken},
		{"expired", expired, ErrInvalidToken},
		{"missing user", noUser, ErrMissingUserID},
	}

	v := newVerifier(t, cfg)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestVerify_DevelopmentBypass(t *testing.T) {
	cfg := config.AuthConfig{DisableAuth: true}
	v := NewVerifier(config.AppConfig{Environment: "development"}, cfg, logger.NewNoOpLogger())

	require.True(t, v.Bypassed())
	p, err := v.Verify("")
	require.NoError(t, err)
	assert.Equal(t, DevUserID, p.UserID)
	assert.True(t, p.HasAnyRole(models.RoleAdmin))
}

func TestVerify_BypassIgnoredOutsideDevelopment(t *testing.T) {
	cfg := testAuthConfig()
	cfg.DisableAuth = true
	v := NewVerifier(config.AppConfig{Environment: "production"}, cfg, logger.NewNoOpLogger())

	assert.False(t, v.Bypassed())
	_, err := v.Verify("")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc"))
	assert.Equal(t, "", BearerToken("Basic abc"))
	assert.Equal(t, "", BearerToken(""))
}

func TestPrincipalContext(t *testing.T) {
	ctx := WithPrincipal(context.Background(), models.Principal{UserID: "u"})
	p, ok := PrincipalFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "u", p.UserID)

	_, ok = PrincipalFrom(context.Background())
	assert.False(t, ok)
}
