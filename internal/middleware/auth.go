package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"campus-nav-api/internal/response"
)

// TokenValidator validates a bearer token and resolves the user id
type TokenValidator interface {
	ValidateToken(ctx context.Context, tokenStr string) (string, error)
}

// Auth returns a middleware that authenticates requests via the validator
// and stores the resolved user id in the context
func Auth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			response.SendError(c, http.StatusUnauthorized, response.ErrCodeUnauthorized, "Authorization header is required")
			c.Abort()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		userID, err := validator.ValidateToken(ctx, tokenString)
		if err != nil {
			response.SendError(c, http.StatusUnauthorized, response.ErrCodeUnauthorized, "Invalid or expired token")
			c.Abort()
			return
		}

		c.Set("user_id", userID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		// Websocket clients cannot set headers; accept a query token there
		if token := c.Query("token"); token != "" {
			return token, true
		}
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	return parts[1], true
}

// AuthServiceValidator validates tokens against the auth service, which
// also rejects blacklisted (logged out) tokens. When no service URL is
// configured it falls back to local JWT validation with the shared secret.
type AuthServiceValidator struct {
	serviceURL string
	secretKey  string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewAuthServiceValidator(serviceURL, secretKey string, logger *zap.Logger) *AuthServiceValidator {
	return &AuthServiceValidator{
		serviceURL: serviceURL,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		logger:     logger,
	}
}

func (v *AuthServiceValidator) ValidateToken(ctx context.Context, tokenStr string) (string, error) {
	if v.serviceURL == "" {
		return v.validateLocal(tokenStr)
	}

	url := fmt.Sprintf("%s/api/auth/validate", v.serviceURL)
	body, err := json.Marshal(map[string]string{"token": tokenStr})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("validation failed: status=%d", resp.StatusCode)
	}

	var result struct {
		UserID string `json:"userId"`
		Valid  bool   `json:"valid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if !result.Valid || result.UserID == "" {
		return "", fmt.Errorf("token rejected by auth service")
	}
	return result.UserID, nil
}

// validateLocal parses and verifies the JWT with the shared secret.
// No blacklist check is possible on this path.
func (v *AuthServiceValidator) validateLocal(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(v.secretKey), nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token claims")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return sub, nil
}
