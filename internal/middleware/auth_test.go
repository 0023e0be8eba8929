package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newProtectedRouter(adminKey string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", APIKeyAuthMiddleware(adminKey), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return r
}

func TestAPIKeyAuthMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		adminKey string
		header   string
		want     int
	}{
		{"valid key", "admin-key", "admin-key", http.StatusOK},
		{"missing key", "admin-key", "", http.StatusUnauthorized},
		{"wrong key", "admin-key", "guess", http.StatusUnauthorized},
		{"disabled", "", "", http.StatusUnauthorized},
		{"disabled ignores header", "", "anything", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set(APIKeyHeader, tt.header)
			}
			w := httptest.NewRecorder()
			newProtectedRouter(tt.adminKey).ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
