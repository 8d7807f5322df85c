package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopherai-kbqa/internal/pkg/jwtutil"
)

func newAdminRouter(secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/admin", AuthJWT(secret), RequireRole(jwtutil.RoleAdmin), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextSubjectKey))
	})
	return router
}

func TestAuthJWT(t *testing.T) {
	t.Run("Admin token passes", func(t *testing.T) {
		token, err := jwtutil.GenerateToken("s3cret", "ops", jwtutil.RoleAdmin, time.Hour)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		newAdminRouter("s3cret").ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ops", rec.Body.String())
	})

	t.Run("Missing header is unauthorized", func(t *testing.T) {
		rec := httptest.NewRecorder()

		newAdminRouter("s3cret").ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "missing authorization header")
	})

	t.Run("Non-admin role is forbidden", func(t *testing.T) {
		token, err := jwtutil.GenerateToken("s3cret", "viewer", "reader", time.Hour)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		newAdminRouter("s3cret").ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("Token signed with another secret is unauthorized", func(t *testing.T) {
		token, err := jwtutil.GenerateToken("other", "ops", jwtutil.RoleAdmin, time.Hour)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		newAdminRouter("s3cret").ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	router.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextRequestIDKey)) })

	t.Run("Keeps the caller id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderRequestID, "abc-123")
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		assert.Equal(t, "abc-123", rec.Body.String())
		assert.Equal(t, "abc-123", rec.Header().Get(HeaderRequestID))
	})

	t.Run("Generates an id when absent", func(t *testing.T) {
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Len(t, rec.Body.String(), 36)
		assert.Equal(t, rec.Body.String(), rec.Header().Get(HeaderRequestID))
	})
}
