package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Nachoram/plataforma-inmobiliaria-sub005/config"
	"github.com/Nachoram/plataforma-inmobiliaria-sub005/middleware"
)

func TestAuthHandlerLogin(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name           string
		body           map[string]string
		expectedStatus int
		expectedRole   string
	}{
		{
			name:           "valid login",
			body:           map[string]string{"username": "agent1", "password": "secret1"},
			expectedStatus: http.StatusOK,
			expectedRole:   "agent",
		},
		{
			name:           "user without role",
			body:           map[string]string{"username": "ops", "password": "secret2"},
			expectedStatus: http.StatusOK,
			expectedRole:   defaultRole,
		},
		{
			name:           "invalid username",
			body:           map[string]string{"username": "wronguser", "password": "secret1"},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "invalid password",
			body:           map[string]string{"username": "agent1", "password": "wrongpass"},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "missing fields",
			body:           map[string]string{"username": "agent1"},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, _ := json.Marshal(tt.body)
			req := httptest.NewRequest("POST", "/api/auth/login", bytes.NewReader(data))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			env.router.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.expectedStatus != http.StatusOK {
				return
			}

			var resp LoginResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("Failed to parse response: %v", err)
			}
			if resp.Role != tt.expectedRole {
				t.Errorf("Expected role %q, got %q", tt.expectedRole, resp.Role)
			}
			claims, err := middleware.ParseToken(resp.Token, &env.cfg.Auth)
			if err != nil {
				t.Fatalf("Issued token does not parse: %v", err)
			}
			if claims.Username != tt.body["username"] || claims.Role != tt.expectedRole {
				t.Errorf("Unexpected claims %+v", claims)
			}
		})
	}
}

func TestAuthHandlerGetCurrentUser(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do("GET", "/api/auth/me", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	body := decode(t, w)
	if body["username"] != "agent1" || body["role"] != "agent" {
		t.Errorf("Unexpected identity %v", body)
	}

	req := httptest.NewRequest("GET", "/api/auth/me", nil)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", w.Code)
	}
}

func TestLoginRateLimited(t *testing.T) {
	env := newTestEnv(t, nil)

	var last int
	for i := 0; i < 11; i++ {
		data, _ := json.Marshal(map[string]string{"username": "agent1", "password": "nope"})
		req := httptest.NewRequest("POST", "/api/auth/login", bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		last = w.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("Expected the 11th login attempt to be limited, got %d", last)
	}
}

func TestNewAuthHandler(t *testing.T) {
	cfg := &config.Config{}
	if h := NewAuthHandler(cfg); h.config != cfg {
		t.Error("Expected handler to keep the config")
	}
}
