package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	t.Run("Query outcomes are counted by label", func(t *testing.T) {
		r := NewRegistry("test")

		r.ObserveQuery("knowledge_query", "answered", 120*time.Millisecond)
		r.ObserveQuery("knowledge_query", "answered", 80*time.Millisecond)
		r.ObserveQuery("greeting", "greeting", time.Millisecond)

		assert.InDelta(t, 2, testutil.ToFloat64(r.queriesTotal.WithLabelValues("knowledge_query", "answered")), 1e-9)
		assert.InDelta(t, 1, testutil.ToFloat64(r.queriesTotal.WithLabelValues("greeting", "greeting")), 1e-9)
	})

	t.Run("Index gauge and reload results", func(t *testing.T) {
		r := NewRegistry("")

		r.SetIndexDocuments(42)
		r.IndexReloaded(nil)
		r.IndexReloaded(errors.New("bad file"))

		assert.InDelta(t, 42, testutil.ToFloat64(r.indexDocuments), 1e-9)
		assert.InDelta(t, 1, testutil.ToFloat64(r.indexReloads.WithLabelValues("error")), 1e-9)
		r.UnfaithfulAnswer()
		assert.InDelta(t, 1, testutil.ToFloat64(r.unfaithfulTotal), 1e-9)
	})

	t.Run("Middleware and handler expose request metrics", func(t *testing.T) {
		gin.SetMode(gin.TestMode)
		r := NewRegistry("test")
		router := gin.New()
		router.Use(r.Middleware())
		router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
		router.GET("/metrics", r.Handler())

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `test_http_requests_total{method="GET",path="/ping",status="2xx"} 1`)
	})
}
