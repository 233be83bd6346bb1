package identity

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medibook/medibook/internal/platform/apperr"
	"github.com/medibook/medibook/internal/platform/auth"
	"github.com/medibook/medibook/pkg/pagination"
)

const minPasswordLength = 6

type Handler struct {
	svc    *Service
	tokens *auth.TokenIssuer
}

func NewHandler(svc *Service, tokens *auth.TokenIssuer) *Handler {
	return &Handler{svc: svc, tokens: tokens}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/auth/signup", h.Signup)
	api.POST("/auth/login", h.Login)

	api.GET("/profile", h.GetProfile)
	api.PUT("/profile", h.UpdateProfile)

	adminGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	adminGroup.GET("/admin/users", h.ListUsers)
	adminGroup.PUT("/admin/users/:id/block", h.SetBlocked)
}

type signupRequest struct {
	Name            string   `json:"name"`
	Email           string   `json:"email"`
	Password        string   `json:"password"`
	Role            string   `json:"role"`
	Phone           *string  `json:"phone"`
	Specialization  string   `json:"specialization"`
	Bio             string   `json:"bio"`
	Experience      *int     `json:"experience"`
	ConsultationFee *float64 `json:"consultation_fee"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}

func (h *Handler) Signup(c echo.Context) error {
	var req signupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Password) < minPasswordLength {
		return apperr.ToHTTP(apperr.Validation("password must be at least %d characters", minPasswordLength))
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	u, err := h.svc.RegisterUser(c.Request().Context(), Registration{
		Name:            req.Name,
		Email:           req.Email,
		PasswordHash:    hash,
		Role:            req.Role,
		Phone:           req.Phone,
		Specialization:  req.Specialization,
		Bio:             req.Bio,
		Experience:      req.Experience,
		ConsultationFee: req.ConsultationFee,
	})
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return h.respondWithToken(c, http.StatusCreated, u)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

var errInvalidCredentials = echo.NewHTTPError(http.StatusUnauthorized, apperr.Body{
	Error:   "invalid_credentials",
	Message: "invalid email or password",
})

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.AuthenticateCheck(c.Request().Context(), req.Email)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return errInvalidCredentials
	case err != nil:
		return apperr.ToHTTP(err)
	}
	if err := auth.CheckPassword(u.PasswordHash, req.Password); err != nil {
		return errInvalidCredentials
	}
	return h.respondWithToken(c, http.StatusOK, u)
}

func (h *Handler) respondWithToken(c echo.Context, status int, u *User) error {
	token, exp, err := h.tokens.Issue(u.Actor())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not issue token")
	}
	return c.JSON(status, tokenResponse{Token: token, ExpiresAt: exp, User: u})
}

func (h *Handler) GetProfile(c echo.Context) error {
	actor, ok := auth.ActorFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	p, err := h.svc.GetProfile(c.Request().Context(), actor)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

type profileRequest struct {
	Name  string  `json:"name"`
	Phone *string `json:"phone"`
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	actor, ok := auth.ActorFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	var req profileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.UpdateProfile(c.Request().Context(), actor, req.Name, req.Phone)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) ListUsers(c echo.Context) error {
	actor, ok := auth.ActorFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	pg := pagination.FromContext(c)
	users, total, err := h.svc.ListAllUsersWithDoctorInfo(c.Request().Context(), actor, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(users, total, pg).WithNext(c))
}

type blockRequest struct {
	Blocked *bool `json:"is_blocked"`
}

func (h *Handler) SetBlocked(c echo.Context) error {
	actor, ok := auth.ActorFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req blockRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Blocked == nil {
		return apperr.ToHTTP(apperr.Validation("is_blocked is required"))
	}
	u, err := h.svc.SetUserBlocked(c.Request().Context(), actor, id, *req.Blocked)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, u)
}
