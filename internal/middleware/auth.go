package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"exeat/internal/model"
	apperrors "exeat/internal/pkg/errors"
)

// Context keys set by RequireRole.
const (
	ContextUserID   = "userID"
	ContextUserRole = "userRole"
	ContextUserName = "userName"
)

// Claims are the access-token claims.
type Claims struct {
	Name string     `json:"name"`
	Role model.Role `json:"role"`
	jwt.RegisteredClaims
}

// JWT signs and verifies access tokens and manages the auth cookies.
type JWT struct {
	secret        []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	secureCookies bool
}

// NewJWT creates a JWT helper.
func NewJWT(secret, issuer string, accessTTL, refreshTTL time.Duration, secureCookies bool) *JWT {
	return &JWT{
		secret:        []byte(secret),
		issuer:        issuer,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		secureCookies: secureCookies,
	}
}

// RefreshTTL returns the refresh-token lifetime.
func (j *JWT) RefreshTTL() time.Duration {
	return j.refreshTTL
}

// Issue creates a signed access token for user.
func (j *JWT) Issue(user *model.User) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(j.accessTTL)

	claims := Claims{
		Name: user.FullName,
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return tokenString, expiresAt, nil
}

// Parse verifies tokenString and returns its claims.
func (j *JWT) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return j.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(j.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.Wrap(apperrors.ErrUnauthorized, apperrors.CodeTokenInvalid, "token expired", http.StatusUnauthorized)
		}
		return nil, apperrors.Wrap(apperrors.ErrUnauthorized, apperrors.CodeTokenInvalid, "invalid token", http.StatusUnauthorized)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" || !claims.Role.Valid() {
		return nil, apperrors.Wrap(apperrors.ErrUnauthorized, apperrors.CodeTokenInvalid, "invalid token claims", http.StatusUnauthorized)
	}
	return claims, nil
}

// SetTokenCookies sets access_token and refresh_token as HttpOnly cookies
func (j *JWT) SetTokenCookies(c *gin.Context, accessToken, refreshToken string) {
	// Production (cross-origin): SameSiteNoneMode + Secure=true
	// Development (same-site):   SameSiteLaxMode  + Secure=false
	sameSite := http.SameSiteLaxMode
	if j.secureCookies {
		sameSite = http.SameSiteNoneMode
	}

	c.SetSameSite(sameSite)
	c.SetCookie("access_token", accessToken, int(j.accessTTL.Seconds()), "/", "", j.secureCookies, true)
	c.SetCookie("refresh_token", refreshToken, int(j.refreshTTL.Seconds()), "/", "", j.secureCookies, true)
}

// ClearTokenCookies removes access_token and refresh_token cookies
func (j *JWT) ClearTokenCookies(c *gin.Context) {
	sameSite := http.SameSiteLaxMode
	if j.secureCookies {
		sameSite = http.SameSiteNoneMode
	}

	c.SetSameSite(sameSite)
	c.SetCookie("access_token", "", -1, "/", "", j.secureCookies, true)
	c.SetCookie("refresh_token", "", -1, "/", "", j.secureCookies, true)
}

// RequireRole validates the access token and checks that its role is one of
// allowedRoles. With no roles any authenticated caller passes.
func (j *JWT) RequireRole(allowedRoles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Try cookie first, fallback to Authorization header
		tokenString, cookieErr := c.Cookie("access_token")
		if cookieErr != nil || tokenString == "" {
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				abortWithError(c, apperrors.Wrap(apperrors.ErrUnauthorized, apperrors.CodeAuthFailed, "authorization is missing", http.StatusUnauthorized))
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				abortWithError(c, apperrors.Wrap(apperrors.ErrUnauthorized, apperrors.CodeAuthFailed, "expected 'Bearer <token>'", http.StatusUnauthorized))
				return
			}
			tokenString = parts[1]
		}

		claims, err := j.Parse(tokenString)
		if err != nil {
			abortWithError(c, err)
			return
		}

		if len(allowedRoles) > 0 {
			roleAllowed := false
			for _, role := range allowedRoles {
				if claims.Role == role {
					roleAllowed = true
					break
				}
			}
			if !roleAllowed {
				abortWithError(c, apperrors.Forbidden("access denied for role "+string(claims.Role)))
				return
			}
		}

		c.Set(ContextUserID, claims.Subject)
		c.Set(ContextUserRole, claims.Role)
		c.Set(ContextUserName, claims.Name)

		c.Next()
	}
}

// UserID returns the authenticated user id set by RequireRole.
func UserID(c *gin.Context) (string, bool) {
	id := c.GetString(ContextUserID)
	return id, id != ""
}

// UserRole returns the authenticated role set by RequireRole.
func UserRole(c *gin.Context) model.Role {
	role, _ := c.Get(ContextUserRole)
	r, _ := role.(model.Role)
	return r
}
