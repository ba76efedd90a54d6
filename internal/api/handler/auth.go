package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facetag/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/facetag/internal/domain"
	"github.com/saturnino-fabrica-de-software/facetag/internal/service"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 50
	minPasswordLen = 6
	maxPasswordLen = 128
)

// AccountService is the subset of service.UserService the handlers need
type AccountService interface {
	Register(ctx context.Context, username, email, password string) (*service.Session, error)
	Login(ctx context.Context, username, password string) (*service.Session, error)
	Me(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

type AuthHandler struct {
	accounts AccountService
	logger   *slog.Logger
}

func NewAuthHandler(accounts AccountService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		logger:   logger,
	}
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ProfileResponse is the authenticated user as returned by /auth/profile
type ProfileResponse struct {
	*domain.User
	HasProfile bool `json:"has_profile"`
}

// Register POST /api/auth/register
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)

	if err := validateRegister(req); err != nil {
		return err
	}

	session, err := h.accounts.Register(c.UserContext(), req.Username, req.Email, req.Password)
	if err != nil {
		return err
	}

	h.logger.Info("user registered", "user_id", session.User.ID, "username", session.User.Username)

	return c.Status(fiber.StatusCreated).JSON(session)
}

// Login POST /api/auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}
	req.Username = strings.TrimSpace(req.Username)

	if req.Username == "" {
		return domain.ErrValidationFailed.WithError(errors.New("username is required"))
	}
	if req.Password == "" || utf8.RuneCountInString(req.Password) > maxPasswordLen {
		return domain.ErrValidationFailed.WithError(errors.New("password is required"))
	}

	session, err := h.accounts.Login(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(session)
}

// Profile GET /api/auth/profile
func (h *AuthHandler) Profile(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return err
	}

	user, err := h.accounts.Me(c.UserContext(), userID)
	if err != nil {
		return err
	}

	return c.JSON(ProfileResponse{User: user, HasProfile: user.EmbeddingVersion > 0})
}

func validateRegister(req RegisterRequest) error {
	n := utf8.RuneCountInString(req.Username)
	if n < minUsernameLen || n > maxUsernameLen {
		return domain.ErrValidationFailed.WithError(errors.New("username must have between 3 and 50 characters"))
	}

	addr, err := mail.ParseAddress(req.Email)
	if err != nil || addr.Address != req.Email {
		return domain.ErrValidationFailed.WithError(errors.New("email is invalid"))
	}

	n = utf8.RuneCountInString(req.Password)
	if n < minPasswordLen || n > maxPasswordLen {
		return domain.ErrValidationFailed.WithError(errors.New("password must have between 6 and 128 characters"))
	}
	return nil
}
