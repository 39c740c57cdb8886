package scanner

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"campusconnect/internal/httpmiddleware"
)

// DeviceRole is the role claim carried by every scanner device token.
const DeviceRole = "scanner"

// Claims represents the device token payload.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssueDeviceToken signs a token identifying deviceID as a scanner.
func IssueDeviceToken(deviceID, issuer, key string, ttl time.Duration) (string, time.Time, error) {
	if deviceID == "" {
		return "", time.Time{}, errors.New("device id required")
	}
	now := time.Now()
	exp := now.Add(ttl)
	claims := Claims{
		Role: DeviceRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   deviceID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// ParseDeviceToken validates a token and returns its claims.
func ParseDeviceToken(tokenStr, key, issuer string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if issuer != "" && claims.Issuer != issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	if claims.Role != DeviceRole || claims.Subject == "" {
		return Claims{}, errors.New("not a scanner token")
	}
	return *claims, nil
}

// DeviceAuth enforces bearer device tokens and records the device id for
// the rate limiter.
func DeviceAuth(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := ParseDeviceToken(tokenStr, signingKey, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("claims", claims)
		c.Set(httpmiddleware.DeviceKey, claims.Subject)
		c.Next()
	}
}
