package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yumenosora/otakudb-backend/internal/platform/logger"
)

func adminRouter(t *testing.T, token string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}

	router := gin.New()
	router.Use(NewAdminMiddleware(log, token).RequireAdminToken())
	router.POST("/run", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func TestRequireAdminToken(t *testing.T) {
	router := adminRouter(t, "s3cret")

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "s3cret", http.StatusOK},
		{"wrong token", "guess", http.StatusUnauthorized},
		{"missing token", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/run", nil)
			if tt.header != "" {
				req.Header.Set("X-Admin-Token", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRequireAdminTokenUnconfigured(t *testing.T) {
	router := adminRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/run", nil)
	req.Header.Set("X-Admin-Token", "anything")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// No configured token disables the surface; it never becomes open.
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
