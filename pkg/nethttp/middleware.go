// Package nethttp adapts the transport-agnostic internal/secctx Security
// Context Pipeline onto fiber (the teacher's HTTP framework), and carries
// the ambient fiber concerns — correlation id, CORS, structured request
// logging, error mapping — in the teacher's idiom (common/net/http).
package nethttp

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/google/uuid"

	"github.com/rustcare/core/internal/platform/logging"
)

const (
	headerCorrelationID = "X-Correlation-ID"
	headerRealIP        = "X-Real-Ip"
	headerForwardedFor  = "X-Forwarded-For"
)

// WithCorrelationID stamps every request with a correlation id, mirroring
// the teacher's withCorrelationID.go — generated fresh per request unless
// the caller already supplied one (a gateway/load-balancer-assigned id is
// preserved, not overwritten).
func WithCorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		cid := c.Get(headerCorrelationID)
		if cid == "" {
			cid = uuid.NewString()
		}

		c.Set(headerCorrelationID, cid)
		c.Request().Header.Set(headerCorrelationID, cid)

		return c.Next()
	}
}

// CORSConfig mirrors the teacher's WithCORS defaults, generalized to take
// its values as explicit configuration rather than package-level env vars.
type CORSConfig struct {
	AllowOrigins string
	AllowMethods string
	AllowHeaders string
}

func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: "*",
		AllowMethods: "POST, GET, OPTIONS, PUT, DELETE, PATCH",
		AllowHeaders: "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization",
	}
}

// WithCORS enables CORS per cfg — grounded directly on the teacher's
// common/net/http/withCORS.go. Credentials are allowed only for an
// explicit origin list; fiber's cors middleware refuses credentials
// combined with the "*" wildcard.
func WithCORS(cfg CORSConfig) fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     cfg.AllowMethods,
		AllowHeaders:     cfg.AllowHeaders,
		AllowCredentials: cfg.AllowOrigins != "*",
	})
}

// GetRemoteAddress mirrors the teacher's httputils.go GetRemoteAddress:
// proxy-aware client IP resolution, preferring the first hop of
// X-Forwarded-For, then X-Real-Ip, falling back to the raw connection
// address.
func GetRemoteAddress(c *fiber.Ctx) string {
	realIP := c.Get(headerRealIP)
	forwardedFor := c.Get(headerForwardedFor)

	if realIP == "" && forwardedFor == "" {
		return ipAddrFromRemoteAddr(c.Context().RemoteAddr().String())
	}

	if forwardedFor != "" {
		parts := strings.Split(forwardedFor, ",")
		return strings.TrimSpace(parts[0])
	}

	return realIP
}

func ipAddrFromRemoteAddr(s string) string {
	idx := strings.LastIndex(s, ":")
	if idx == -1 {
		return s
	}

	return s[:idx]
}

// WithRequestLogger logs one structured entry per request (method, path,
// status, duration, correlation id, remote address) via base, mirroring
// the teacher's withLogging.go CLF-style access log but through the
// structured logging.Logger rather than a formatted string.
func WithRequestLogger(base logging.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		base.Info("http_request",
			logging.F("method", c.Method()),
			logging.F("path", c.Path()),
			logging.F("status", status),
			logging.F("duration", time.Since(start)),
			logging.F("correlation_id", c.Get(headerCorrelationID)),
			logging.F("remote_addr", GetRemoteAddress(c)),
		)

		return err
	}
}
