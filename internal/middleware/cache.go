package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

type CacheConfig struct {
	MaxAge               int
	Private              bool
	NoStore              bool
	MustRevalidate       bool
	StaleWhileRevalidate int
	Vary                 []string
}

// NoStoreConfig is for authenticated and live data.
func NoStoreConfig() CacheConfig {
	return CacheConfig{NoStore: true}
}

// PublicCacheConfig is for directory data the displays poll.
func PublicCacheConfig(maxAge int) CacheConfig {
	return CacheConfig{
		MaxAge:               maxAge,
		StaleWhileRevalidate: maxAge,
		Vary:                 []string{"Accept"},
	}
}

// Cache sets Cache-Control on GET responses; everything else is no-store.
func Cache(config CacheConfig) gin.HandlerFunc {
	var directives []string
	switch {
	case config.NoStore:
		directives = append(directives, "no-store")
	default:
		if config.Private {
			directives = append(directives, "private")
		} else {
			directives = append(directives, "public")
		}
		if config.MaxAge > 0 {
			directives = append(directives, "max-age="+strconv.Itoa(config.MaxAge))
		}
		if config.MustRevalidate {
			directives = append(directives, "must-revalidate")
		}
		if config.StaleWhileRevalidate > 0 {
			directives = append(directives, "stale-while-revalidate="+strconv.Itoa(config.StaleWhileRevalidate))
		}
	}
	value := strings.Join(directives, ", ")
	vary := strings.Join(config.Vary, ", ")

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Header("Cache-Control", "no-store")
			c.Next()
			return
		}
		c.Header("Cache-Control", value)
		if vary != "" {
			c.Header("Vary", vary)
		}
		c.Next()
	}
}
