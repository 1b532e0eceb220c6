package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/meschain/marketsync/internal/infrastructure/telemetry"
)

// ProfilingConfig holds configuration for the profiling middleware.
type ProfilingConfig struct {
	Enabled bool
	// SkipPathPrefixes are never labeled, e.g. /health and /metrics
	SkipPathPrefixes []string
}

// DefaultProfilingConfig returns default profiling middleware configuration.
func DefaultProfilingConfig() ProfilingConfig {
	return ProfilingConfig{
		Enabled:          true,
		SkipPathPrefixes: []string{"/health", "/metrics", "/swagger"},
	}
}

// Profiling runs each request under Pyroscope labels for method, route and,
// on the webhook route, marketplace
func Profiling(cfg ProfilingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, prefix := range cfg.SkipPathPrefixes {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}

		telemetry.WithProfilingLabels(c.Request.Context(), profilingLabels(c), func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}

func profilingLabels(c *gin.Context) map[string]string {
	labels := map[string]string{
		telemetry.LabelMethod: c.Request.Method,
		telemetry.LabelRoute:  c.FullPath(),
	}
	if mp := c.Param("marketplace"); mp != "" {
		labels[telemetry.LabelMarketplace] = strings.ToLower(mp)
	}
	return labels
}
