package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medibook/medibook/internal/platform/auth"
)

// Audit logs every state-changing API call with the acting user and the
// target resource. Reads are not audited.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			action := auditAction(req.Method)
			if action == "" || !strings.HasPrefix(req.URL.Path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}

			evt := logger.Info().Str("type", "audit")
			if actor, ok := auth.ActorFromContext(req.Context()); ok {
				evt = evt.Str("actor_id", actor.ID.String()).Str("actor_role", actor.Role.String())
			}
			rid, _ := c.Get("request_id").(string)
			evt.
				Str("request_id", rid).
				Str("action", action).
				Str("resource", resourceOf(req.URL.Path)).
				Str("resource_id", c.Param("id")).
				Int("status", status).
				Msg("mutation")

			return err
		}
	}
}

func auditAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	return ""
}

// resourceOf returns the first path segment after /api/v1/.
func resourceOf(path string) string {
	rest := strings.TrimPrefix(path, "/api/v1/")
	seg, _, _ := strings.Cut(rest, "/")
	if seg == "" {
		return "unknown"
	}
	return seg
}
