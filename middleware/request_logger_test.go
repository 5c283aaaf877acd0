package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/Nachoram/plataforma-inmobiliaria-sub005/pkg/logger"
)

// captureLogs routes the default logger into a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(logger.New(&logger.Config{Level: "info", Format: "text", Output: &buf}))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestRequestLoggerMiddleware(t *testing.T) {
	buf := captureLogs(t)

	router := gin.New()
	router.Use(RequestID())
	router.Use(RequestLogger())
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
	router.GET("/error", func(c *gin.Context) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
	})
	router.GET("/server-error", func(c *gin.Context) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
	})

	tests := []struct {
		name           string
		path           string
		expectedStatus int
		logLevel       string
	}{
		{"success request", "/test", http.StatusOK, "INFO"},
		{"client error", "/error", http.StatusBadRequest, "WARN"},
		{"server error", "/server-error", http.StatusInternalServerError, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()

			req := httptest.NewRequest("GET", tt.path, nil)
			req.Header.Set("X-Request-ID", "req-"+tt.logLevel)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}

			logOutput := buf.String()
			for _, want := range []string{"request completed", tt.path, tt.logLevel, "request_id=req-" + tt.logLevel} {
				if !strings.Contains(logOutput, want) {
					t.Errorf("Expected %q in log: %s", want, logOutput)
				}
			}
		})
	}
}

func TestRequestLoggerContractRoute(t *testing.T) {
	buf := captureLogs(t)

	router := gin.New()
	router.Use(RequestLogger())
	router.POST("/contracts/:id/approve", ContractScope(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("POST", "/contracts/c-7/approve?dry", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	logOutput := buf.String()
	for _, want := range []string{"contract_id=c-7", "route=/contracts/:id/approve", "query=dry"} {
		if !strings.Contains(logOutput, want) {
			t.Errorf("Expected %q in log: %s", want, logOutput)
		}
	}
}
