package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const actorKey contextKey = "actor"

// Claims carried by issued access tokens. Subject holds the user id.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
	Name string `json:"name"`
}

type JWTConfig struct {
	SigningKey []byte
	Issuer     string
	// Skipper lets public routes through without a token.
	Skipper func(c echo.Context) bool
}

// WithActor returns a copy of ctx carrying the actor.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromContext returns the actor attached by the auth middleware.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	return a, ok
}

func setActor(c echo.Context, a Actor) {
	c.SetRequest(c.Request().WithContext(WithActor(c.Request().Context(), a)))
	c.Set("actor_id", a.ID.String())
}

// JWTMiddleware validates an HS256 bearer token and attaches the Actor it
// describes to the request context.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}
			scheme, tokenStr, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || tokenStr == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
				return cfg.SigningKey, nil
			}, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			actor, err := claims.actor()
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
			}
			setActor(c, actor)
			return next(c)
		}
	}
}

func (c *Claims) actor() (Actor, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return Actor{}, err
	}
	role, err := ParseRole(c.Role)
	if err != nil {
		return Actor{}, err
	}
	return Actor{ID: id, Role: role, Name: c.Name}, nil
}

// Headers read by DevAuthMiddleware.
const (
	DevActorIDHeader   = "X-Actor-ID"
	DevActorRoleHeader = "X-Actor-Role"
)

// DevAuthMiddleware trusts X-Actor-ID and X-Actor-Role headers. Development
// only. Requests carrying a bearer token fall through to the JWT middleware.
func DevAuthMiddleware(jwtCfg JWTConfig) echo.MiddlewareFunc {
	jwtMW := JWTMiddleware(jwtCfg)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		withJWT := jwtMW(next)
		return func(c echo.Context) error {
			if jwtCfg.Skipper != nil && jwtCfg.Skipper(c) {
				return next(c)
			}
			if c.Request().Header.Get("Authorization") != "" {
				return withJWT(c)
			}

			id, err := uuid.Parse(c.Request().Header.Get(DevActorIDHeader))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing or invalid "+DevActorIDHeader)
			}
			role, err := ParseRole(c.Request().Header.Get(DevActorRoleHeader))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing or invalid "+DevActorRoleHeader)
			}
			setActor(c, Actor{ID: id, Role: role})
			return next(c)
		}
	}
}
