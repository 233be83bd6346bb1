package auth

import (
	"github.com/labstack/echo/v4"
)

// publicRoutes bypass authentication: infrastructure endpoints, account
// entry points and the read-only doctor directory. Keys are "METHOD path"
// using echo's route pattern.
var publicRoutes = map[string]bool{
	"GET /health":                          true,
	"GET /health/db":                       true,
	"GET /metrics":                         true,
	"POST /api/v1/auth/signup":             true,
	"POST /api/v1/auth/login":              true,
	"GET /api/v1/doctors":                  true,
	"GET /api/v1/doctors/:id":              true,
	"GET /api/v1/doctors/:id/availability": true,
}

// AuthSkipper reports whether the matched route is public.
func AuthSkipper(c echo.Context) bool {
	return IsPublicRoute(c.Request().Method, c.Path())
}

func IsPublicRoute(method, path string) bool {
	return publicRoutes[method+" "+path]
}
