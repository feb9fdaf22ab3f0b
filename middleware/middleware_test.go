package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func nop() *zap.Logger { return zap.NewNop() }

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func fromIP(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Real-IP", ip)
	return req
}

func TestRateLimit_BurstThenReject(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(rate.Limit(0.001), 2))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, fromIP("10.0.0.1")).Code)
	assert.Equal(t, http.StatusOK, serve(r, fromIP("10.0.0.1")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, fromIP("10.0.0.1")).Code)
	// Buckets are per client.
	assert.Equal(t, http.StatusOK, serve(r, fromIP("10.0.0.2")).Code)
}

func TestIPWhitelist(t *testing.T) {
	r := gin.New()
	r.Use(IPWhitelist([]string{"127.0.0.1", "10.1.0.0/16"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, fromIP("127.0.0.1")).Code)
	assert.Equal(t, http.StatusOK, serve(r, fromIP("10.1.42.7")).Code)
	assert.Equal(t, http.StatusForbidden, serve(r, fromIP("10.2.0.1")).Code)
	assert.Equal(t, http.StatusForbidden, serve(r, fromIP("192.168.1.5")).Code)
}

func TestIPWhitelist_EmptyAllowsAll(t *testing.T) {
	r := gin.New()
	r.Use(IPWhitelist(nil))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusOK, serve(r, fromIP("8.8.8.8")).Code)
}

func TestTraceID(t *testing.T) {
	r := gin.New()
	r.Use(TraceID())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, GetTraceID(c)) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	generated := w.Header().Get(TraceIDHeader)
	_, err := uuid.Parse(generated)
	require.NoError(t, err)
	assert.Equal(t, generated, w.Body.String())

	incoming := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(TraceIDHeader, incoming)
	assert.Equal(t, incoming, serve(r, req).Header().Get(TraceIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(TraceIDHeader, "not-a-uuid\nInjected: 1")
	assert.NotEqual(t, "not-a-uuid\nInjected: 1", serve(r, req).Header().Get(TraceIDHeader))
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(TraceID(), Recovery(nop()), Logger(nop()))
	r.GET("/x", func(c *gin.Context) { panic("boom") })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
}
