// internal/common/auth/jwt.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"erp-nlquery/internal/common/config"
	"erp-nlquery/internal/common/logger"
	"erp-nlquery/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken  = errors.New("MISSING_TOKEN")
	ErrInvalidToken  = errors.New("INVALID_TOKEN")
	ErrMissingUserID = errors.New("MISSING_USER_ID")
)

// DevUserID is the identity used when authentication is bypassed in development.
const DevUserID = "dev_user"

var devRoles = []string{string(models.RoleTeacher), string(models.RoleHOD), string(models.RoleAdmin)}

// Claims is the payload of tokens minted by the ERP.
type Claims struct {
	UserID string   `json:"user_id,omitempty"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 bearer tokens issued by the ERP.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
	bypass   bool
	logger   logger.Logger
}

func NewVerifier(app config.AppConfig, cfg config.AuthConfig, log logger.Logger) *Verifier {
	return &Verifier{
		secret:   []byte(cfg.JWTSecret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		bypass:   app.IsDevelopment() && cfg.DisableAuth,
		logger:   logger.Component(log, "auth"),
	}
}

// Bypassed reports whether every request is treated as the development user.
func (v *Verifier) Bypassed() bool {
	return v.bypass
}

// Verify validates the token and returns the caller identity.
func (v *Verifier) Verify(tokenString string) (models.Principal, error) {
	if v.bypass {
		v.logger.Warn("authentication disabled in development mode", nil)
		return models.Principal{UserID: DevUserID, Roles: append([]string(nil), devRoles...)}, nil
	}

	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return models.Principal{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		v.logger.Error("JWT verification failed", map[string]interface{}{"error": err})
		return models.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID := claims.Subject
	if userID == "" {
		userID = claims.UserID
	}
	if userID == "" {
		return models.Principal{}, ErrMissingUserID
	}

	return models.Principal{UserID: userID, Roles: claims.Roles}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// IssueToken mints a token the Verifier accepts. Used by the CLI and tests.
func IssueToken(cfg config.AuthConfig, userID string, roles []string, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

type principalKey struct{}

// WithPrincipal stores the verified caller on the context.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the caller stored by WithPrincipal.
func PrincipalFrom(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(models.Principal)
	return p, ok
}
