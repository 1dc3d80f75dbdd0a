package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/simp-lee/advocatedir/internal/domain"
	"github.com/simp-lee/advocatedir/internal/pkg"
)

// RoleAdmin is the role claim required on admin routes.
const RoleAdmin = "admin"

const adminClaimsKey = "admin_claims"

// AdminClaims is the JWT payload accepted on admin routes.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	Secret string
	Issuer string
}

// MintToken signs an HS256 admin token for subject that expires after ttl.
func MintToken(secret, issuer, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	now := time.Now()
	claims := AdminClaims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken verifies signature, issuer, expiry and role.
func ParseToken(cfg AuthConfig, raw string) (*AdminClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	claims := &AdminClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}, opts...); err != nil {
		return nil, err
	}
	if claims.Role != RoleAdmin {
		return nil, errors.New("token lacks admin role")
	}
	return claims, nil
}

// AdminAuth guards admin routes with an HS256 bearer token. Failures answer
// 401 with the standard envelope.
func AdminAuth(cfg AuthConfig) gin.HandlerFunc {
	if cfg.Secret == "" {
		return DenyAll()
	}
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			pkg.Abort(c, domain.NewAppError(domain.CodeUnauthorized, "missing bearer token", nil))
			return
		}
		claims, err := ParseToken(cfg, raw)
		if err != nil {
			pkg.Abort(c, domain.NewAppError(domain.CodeUnauthorized, "invalid token", err))
			return
		}
		c.Set(adminClaimsKey, claims)
		c.Next()
	}
}

// DenyAll rejects every request. It stands in for AdminAuth when admin
// access is disabled.
func DenyAll() gin.HandlerFunc {
	return func(c *gin.Context) {
		pkg.Abort(c, domain.NewAppError(domain.CodeUnauthorized, "admin access is disabled", nil))
	}
}

// GetAdminClaims returns the verified claims stored by AdminAuth.
func GetAdminClaims(c *gin.Context) (*AdminClaims, bool) {
	v, ok := c.Get(adminClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*AdminClaims)
	return claims, ok
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
