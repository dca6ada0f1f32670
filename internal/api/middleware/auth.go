// Package middleware provides gin middleware shared by the API handlers.
package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/aimd54/leafline/internal/config"
	"github.com/aimd54/leafline/internal/models"
	"github.com/aimd54/leafline/pkg/logger"
)

const userContextKey = "leafline.user"

// UserStore creates or refreshes the local user for an authenticated subject.
type UserStore interface {
	UpsertByAuthID(ctx context.Context, user *models.User) (*models.User, error)
}

// IdentityClaims are the claims issued by the hosted auth provider.
type IdentityClaims struct {
	Username string   `json:"username,omitempty"`
	Email    string   `json:"email,omitempty"`
	Role     string   `json:"role,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator validates bearer tokens and resolves them to local users.
type Authenticator struct {
	secret     []byte
	issuer     string
	adminRoles []string
	users      UserStore
	log        *logger.Logger
}

// NewAuthenticator creates an authenticator for HS256 tokens signed with the shared secret.
func NewAuthenticator(cfg *config.AuthConfig, users UserStore, log *logger.Logger) *Authenticator {
	return &Authenticator{
		secret:     []byte(cfg.JWTSecret),
		issuer:     cfg.Issuer,
		adminRoles: cfg.AdminRoles,
		users:      users,
		log:        log.Component("auth"),
	}
}

// RequireAuth rejects requests without a valid bearer token and stores the user in the context.
func (a *Authenticator) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			abort(c, http.StatusUnauthorized, "missing or invalid token")
			return
		}

		claims, err := a.parse(token)
		if err != nil {
			a.log.Debug().Err(err).Msg("Rejected bearer token")
			abort(c, http.StatusUnauthorized, "missing or invalid token")
			return
		}

		user, err := a.users.UpsertByAuthID(c.Request.Context(), a.userFromClaims(claims))
		if err != nil {
			a.log.Error().Err(err).Str("subject", claims.Subject).Msg("Failed to resolve user")
			abort(c, http.StatusInternalServerError, "failed to resolve user")
			return
		}

		c.Set(userContextKey, user)
		c.Next()
	}
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CurrentUser(c).IsAdmin() {
			abort(c, http.StatusForbidden, "admin role required")
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user, or nil outside RequireAuth.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userContextKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

// SetCurrentUser stores user in the context. Used by tests and trusted internal callers.
func SetCurrentUser(c *gin.Context, user *models.User) {
	c.Set(userContextKey, user)
}

func (a *Authenticator) parse(token string) (*IdentityClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &IdentityClaims{}
	if _, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, jwt.ErrTokenInvalidSubject
	}
	return claims, nil
}

func (a *Authenticator) userFromClaims(claims *IdentityClaims) *models.User {
	username := claims.Username
	if username == "" {
		username = claims.Email
	}
	if username == "" {
		username = claims.Subject
	}

	role := models.RoleUser
	if a.isAdmin(claims) {
		role = models.RoleAdmin
	}

	return &models.User{
		AuthID:   claims.Subject,
		Username: username,
		Email:    claims.Email,
		Role:     role,
	}
}

func (a *Authenticator) isAdmin(claims *IdentityClaims) bool {
	if claims.Role != "" && slices.Contains(a.adminRoles, claims.Role) {
		return true
	}
	for _, r := range claims.Roles {
		if slices.Contains(a.adminRoles, r) {
			return true
		}
	}
	return false
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
