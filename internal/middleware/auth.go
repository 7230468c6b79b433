package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/papergrade/core/internal/pkg/jwt"
	"github.com/papergrade/core/internal/pkg/response"
)

const ContextKeyUserID = "user_id"

// Auth rejects requests without a valid bearer token.
func Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := ValidateToken(extractToken(c))
		if err != nil {
			response.Unauthorized(c)
			return
		}
		c.Set(ContextKeyUserID, userID)
		c.Next()
	}
}

// OptionalAuth sets the user ID if a valid token is present, but does not block the request.
func OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID, err := ValidateToken(extractToken(c)); err == nil {
			c.Set(ContextKeyUserID, userID)
		}
		c.Next()
	}
}

// AdminOnly must run after Auth. isAdmin decides from the authenticated user ID.
func AdminOnly(isAdmin func(userID string) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := CurrentUserID(c)
		if userID == "" {
			response.Unauthorized(c)
			return
		}
		if isAdmin == nil || !isAdmin(userID) {
			response.Forbidden(c)
			return
		}
		c.Next()
	}
}

// ValidateToken validates a JWT and returns the authenticated user id.
func ValidateToken(rawToken string) (string, error) {
	token := NormalizeToken(rawToken)
	if token == "" {
		return "", errors.New("token is required")
	}
	claims, err := jwt.Parse(token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// CurrentUserID extracts the authenticated user ID from context.
func CurrentUserID(c *gin.Context) string {
	v, _ := c.Get(ContextKeyUserID)
	id, _ := v.(string)
	return id
}

// CurrentUserRef returns the user ID as a nullable column value.
func CurrentUserRef(c *gin.Context) *string {
	if id := CurrentUserID(c); id != "" {
		return &id
	}
	return nil
}

// IsAuthenticated returns true if the request has a valid auth token.
func IsAuthenticated(c *gin.Context) bool {
	return CurrentUserID(c) != ""
}

func extractToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		return NormalizeToken(auth)
	}
	return NormalizeToken(c.Query("token"))
}

// NormalizeToken trims spaces and strips optional Bearer prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}
