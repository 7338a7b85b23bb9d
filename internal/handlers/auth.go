package handlers

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/backoffice/server/internal/middleware"
	"github.com/backoffice/server/internal/models"
	"github.com/backoffice/server/internal/store"
	"github.com/backoffice/server/internal/twofactor"
	"github.com/backoffice/server/pkg/logger"
	"github.com/backoffice/server/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type UserFinder interface {
	FindUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

type AuthHandler struct {
	Users        *store.Users
	Gate         *twofactor.Service
	DeviceCookie string
}

func NewAuthHandler(users *store.Users, gate *twofactor.Service, deviceCookie string) *AuthHandler {
	return &AuthHandler{Users: users, Gate: gate, DeviceCookie: deviceCookie}
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)

	if _, err := mail.ParseAddress(req.Email); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid email")
	}
	if len(req.Password) < 8 {
		return utils.Error(c, fiber.StatusBadRequest, "password must be at least 8 characters")
	}
	if req.FirstName == "" || req.LastName == "" {
		return utils.Error(c, fiber.StatusBadRequest, "firstName and lastName are required")
	}

	ctx := c.UserContext()
	if _, err := h.Users.FindByEmail(ctx, req.Email); err == nil {
		return utils.Error(c, fiber.StatusConflict, "email already registered")
	} else if !errors.Is(err, twofactor.ErrNotFound) {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking existing user")
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to hash password")
	}

	user := models.User{
		Email:        req.Email,
		PasswordHash: passwordHash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         models.UserRoleUser,
	}
	if err := h.Users.Create(ctx, &user); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating user")
	}

	logger.Info("user_registered", map[string]interface{}{
		"user_id": user.ID.String(),
		"email":   user.Email,
		"role":    string(user.Role),
	})

	token, err := utils.GenerateToken(&user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	return utils.Success(c, fiber.StatusCreated, fiber.Map{"token": token, "user": user})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login checks the password and then hands the user to the two-factor
// gate. A gated login answers with the challenge instead of a token.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if req.Email == "" || req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "email and password are required")
	}

	ctx := c.UserContext()
	user, err := h.Users.FindByEmail(ctx, req.Email)
	if err != nil {
		logger.Warn("login_failed_user_not_found", map[string]interface{}{
			"email": req.Email,
			"ip":    c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		logger.Warn("login_failed_invalid_password", map[string]interface{}{
			"user_id": user.ID.String(),
			"email":   req.Email,
			"ip":      c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	decision, err := h.Gate.Begin(ctx, twofactor.LoginAttempt{
		UserID:      user.ID,
		DeviceToken: readDeviceToken(c, h.DeviceCookie),
	})
	if err != nil {
		return twoFactorError(c, "login_gate_failed", err)
	}

	if decision.Required {
		logger.Info("user_login_mfa_pending", map[string]interface{}{
			"user_id": user.ID.String(),
			"method":  string(decision.Method),
			"ip":      c.IP(),
		})
		return utils.Success(c, fiber.StatusOK, decision)
	}

	logger.Info("user_login", map[string]interface{}{
		"user_id":        user.ID.String(),
		"email":          user.Email,
		"ip":             c.IP(),
		"trusted_device": decision.TrustedDevice,
	})

	amr := []string{"pwd"}
	if decision.TrustedDevice {
		amr = append(amr, "trusted_device")
	}
	token, err := utils.GenerateToken(user, amr...)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	data := fiber.Map{"token": token, "user": user, "mfaRequired": false}
	if decision.SetupRequired {
		data["setupRequired"] = true
	}
	return utils.Success(c, fiber.StatusOK, data)
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return utils.Success(c, fiber.StatusOK, user)
}
