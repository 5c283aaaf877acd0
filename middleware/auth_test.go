package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Nachoram/plataforma-inmobiliaria-sub005/config"
	"github.com/Nachoram/plataforma-inmobiliaria-sub005/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testAuthConfig() *config.AuthConfig {
	return &config.AuthConfig{
		JWTSecret:        "test-secret-key",
		TokenExpireHours: 24,
	}
}

func TestGenerateToken(t *testing.T) {
	cfg := testAuthConfig()

	token, expiresAt, err := GenerateToken("agent1", "agent", cfg)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if token == "" {
		t.Error("Expected non-empty token")
	}

	expectedExpiry := time.Now().Add(24 * time.Hour)
	if expiresAt.Before(expectedExpiry.Add(-time.Minute)) || expiresAt.After(expectedExpiry.Add(time.Minute)) {
		t.Errorf("Expiry time %v is not within expected range of %v", expiresAt, expectedExpiry)
	}

	claims, err := ParseToken(token, cfg)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if claims.Username != "agent1" || claims.Role != "agent" {
		t.Errorf("Unexpected claims: %+v", claims)
	}
	if claims.Subject != "agent1" {
		t.Errorf("Expected subject agent1, got %s", claims.Subject)
	}
}

func TestParseTokenRejects(t *testing.T) {
	cfg := testAuthConfig()

	other := &config.AuthConfig{JWTSecret: "another-secret", TokenExpireHours: 1}
	foreign, _, err := GenerateToken("agent1", "agent", other)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Username: "agent1"})
	noneToken, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("Failed to build unsigned token: %v", err)
	}

	for name, token := range map[string]string{
		"wrong secret": foreign,
		"alg none":     noneToken,
		"garbage":      "not-a-token",
	} {
		if _, err := ParseToken(token, cfg); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	cfg := testAuthConfig()

	token, _, err := GenerateToken("agent1", "agent", cfg)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
	}{
		{
			name:           "valid token",
			authHeader:     "Bearer " + token,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "missing header",
			authHeader:     "",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "invalid format",
			authHeader:     token,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "invalid token",
			authHeader:     "Bearer invalid.token.here",
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(AuthMiddleware(cfg))
			router.GET("/test", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"message": "ok"})
			})

			req := httptest.NewRequest("GET", "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestAuthMiddlewareSetsIdentity(t *testing.T) {
	cfg := testAuthConfig()
	token, _, err := GenerateToken("agent1", "admin", cfg)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	var username, role, ctxUser string
	router := gin.New()
	router.Use(AuthMiddleware(cfg))
	router.GET("/test", func(c *gin.Context) {
		username = GetUsername(c)
		role = GetRole(c)
		ctxUser, _ = c.Request.Context().Value(logger.UsernameKey).(string)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(httptest.NewRecorder(), req)

	if username != "agent1" || role != "admin" {
		t.Errorf("Unexpected identity %q/%q", username, role)
	}
	if ctxUser != "agent1" {
		t.Errorf("Expected username in request context, got %q", ctxUser)
	}
}

func TestAuthMiddlewareExpiredToken(t *testing.T) {
	cfg := testAuthConfig()

	claims := Claims{
		Username: "agent1",
		Role:     "agent",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(cfg.JWTSecret))

	router := gin.New()
	router.Use(AuthMiddleware(cfg))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+tokenString)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d for expired token, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestGetUsernameAndRole(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if GetUsername(c) != "" || GetRole(c) != "" {
		t.Error("Expected empty identity when unset")
	}

	c.Set("username", "agent1")
	c.Set("role", "admin")
	if GetUsername(c) != "agent1" {
		t.Errorf("Expected 'agent1', got '%s'", GetUsername(c))
	}
	if GetRole(c) != "admin" {
		t.Errorf("Expected 'admin', got '%s'", GetRole(c))
	}
}
