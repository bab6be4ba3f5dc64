package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/trial-subjects-api/internal/service"
)

// UnmatchedRoute is the path label for requests no route accepted, so requests
// for arbitrary URLs cannot grow the series count.
const UnmatchedRoute = "unmatched"

// Metrics records method, route template and status of each request. Subject
// and audit lookups share one series per template regardless of identifier.
// Routes listed in skip (typically the scrape endpoint) are not recorded.
func Metrics(metricsSvc *service.MetricsService, skip ...string) gin.HandlerFunc {
	ignored := make(map[string]struct{}, len(skip))
	for _, route := range skip {
		ignored[route] = struct{}{}
	}
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		route := c.FullPath()
		if _, ok := ignored[route]; ok && route != "" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		if route == "" {
			route = UnmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
