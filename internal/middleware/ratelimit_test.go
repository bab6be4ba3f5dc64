package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3"
)

func TestRateLimitRejectsAfterQuota(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rate, err := limiter.NewRateFromFormatted("2-M")
	require.NoError(t, err)

	r := gin.New()
	r.POST("/auth/login", RateLimit(NewRateLimitStore(nil, "test-login", nil), rate), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	send := func(remote string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = remote
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, send("192.0.2.1:1000").Code)
	assert.Equal(t, http.StatusOK, send("192.0.2.1:1001").Code)

	w := send("192.0.2.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "TOO_MANY_REQUESTS")
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, send("198.51.100.7:1000").Code)
}
