package handlers

import (
	"strings"

	"github.com/backoffice/server/internal/middleware"
	"github.com/backoffice/server/internal/models"
	"github.com/backoffice/server/internal/twofactor"
	"github.com/backoffice/server/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// DeviceTokenHeader lets non-browser clients present a trusted-device
// token without the cookie.
const DeviceTokenHeader = "X-Device-Token"

type TwoFactorHandler struct {
	Service      *twofactor.Service
	Users        UserFinder
	DeviceCookie string
	SecureCookie bool
}

func NewTwoFactorHandler(service *twofactor.Service, users UserFinder, deviceCookie string) *TwoFactorHandler {
	return &TwoFactorHandler{Service: service, Users: users, DeviceCookie: deviceCookie}
}

type setupRequest struct {
	Method      string `json:"method"`
	PhoneNumber string `json:"phone_number"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

type verifyRequest struct {
	UserID      string `json:"user_id"`
	Code        string `json:"code"`
	Nonce       string `json:"nonce"`
	TrustDevice bool   `json:"trust_device"`
	DeviceName  string `json:"device_name"`
}

type sendCodeRequest struct {
	UserID string `json:"user_id"`
	Nonce  string `json:"nonce"`
}

func (h *TwoFactorHandler) SetupOverview(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	overview, err := h.Service.SetupOverview(c.UserContext(), user.ID)
	if err != nil {
		return twoFactorError(c, "twofactor_setup_overview_failed", err)
	}
	return utils.Success(c, fiber.StatusOK, overview)
}

func (h *TwoFactorHandler) Setup(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req setupRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	method := models.FactorMethod(strings.ToLower(strings.TrimSpace(req.Method)))
	if method == "" {
		return utils.Error(c, fiber.StatusBadRequest, "method is required")
	}

	result, err := h.Service.Setup(c.UserContext(), user.ID, twofactor.SetupRequest{
		Method:      method,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		return twoFactorError(c, "twofactor_setup_failed", err)
	}
	return utils.Success(c, fiber.StatusOK, result)
}

func (h *TwoFactorHandler) VerifySetup(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req codeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Code) == "" {
		return utils.Error(c, fiber.StatusBadRequest, "code is required")
	}

	codes, err := h.Service.ConfirmSetup(c.UserContext(), user.ID, req.Code)
	if err != nil {
		return twoFactorError(c, "twofactor_verify_setup_failed", err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"enabled":     true,
		"backupCodes": codes,
	})
}

func (h *TwoFactorHandler) Disable(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req passwordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "password is required")
	}

	if err := h.Service.Disable(c.UserContext(), user.ID, req.Password); err != nil {
		return twoFactorError(c, "twofactor_disable_failed", err)
	}
	h.clearDeviceCookie(c)
	return utils.Success(c, fiber.StatusOK, fiber.Map{"enabled": false})
}

// Verify finalizes a login held back by the gate. It runs without a
// session; the nonce from the login response stands in for one.
func (h *TwoFactorHandler) Verify(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	userID, err := parseUUID(req.UserID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user_id")
	}
	if strings.TrimSpace(req.Code) == "" {
		return utils.Error(c, fiber.StatusBadRequest, "code is required")
	}

	result, err := h.Service.VerifyChallenge(c.UserContext(), twofactor.ChallengeResponse{
		UserID:      userID,
		Nonce:       req.Nonce,
		Code:        req.Code,
		TrustDevice: req.TrustDevice,
		Device: twofactor.DeviceInfo{
			Name:      req.DeviceName,
			UserAgent: c.Get(fiber.HeaderUserAgent),
			IPAddress: c.IP(),
		},
	})
	if err != nil {
		return twoFactorError(c, "twofactor_verify_error", err)
	}

	user, err := h.Users.FindUser(c.UserContext(), userID)
	if err != nil {
		return twoFactorError(c, "twofactor_verify_load_user_failed", err)
	}
	token, err := utils.GenerateToken(user, "pwd", string(result.Method))
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	data := fiber.Map{"token": token, "user": user, "method": result.Method}
	if result.DeviceToken != "" {
		c.Cookie(&fiber.Cookie{
			Name:     h.DeviceCookie,
			Value:    result.DeviceToken,
			Path:     "/",
			Expires:  result.Device.TrustedUntil,
			HTTPOnly: true,
			Secure:   h.SecureCookie,
			SameSite: fiber.CookieSameSiteStrictMode,
		})
		data["deviceToken"] = result.DeviceToken
		data["trustedUntil"] = result.Device.TrustedUntil
	}
	return utils.Success(c, fiber.StatusOK, data)
}

// SendCode re-issues an email or SMS code for a pending login.
func (h *TwoFactorHandler) SendCode(c *fiber.Ctx) error {
	var req sendCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	userID, err := parseUUID(req.UserID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user_id")
	}

	if err := h.Service.ResendCode(c.UserContext(), userID, req.Nonce); err != nil {
		return twoFactorError(c, "twofactor_send_code_failed", err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"codeSent": true})
}

func (h *TwoFactorHandler) BackupCodesRemaining(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	remaining, err := h.Service.BackupCodesRemaining(c.UserContext(), user.ID)
	if err != nil {
		return twoFactorError(c, "twofactor_backup_count_failed", err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"remaining": remaining})
}

func (h *TwoFactorHandler) RegenerateBackupCodes(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req passwordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "password is required")
	}

	codes, err := h.Service.RegenerateBackupCodes(c.UserContext(), user.ID, req.Password)
	if err != nil {
		return twoFactorError(c, "twofactor_backup_regenerate_failed", err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"backupCodes": codes})
}

func (h *TwoFactorHandler) ListDevices(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	devices, err := h.Service.ListDevices(c.UserContext(), user.ID)
	if err != nil {
		return twoFactorError(c, "twofactor_list_devices_failed", err)
	}
	if devices == nil {
		devices = []models.TrustedDevice{}
	}
	return utils.Success(c, fiber.StatusOK, devices)
}

func (h *TwoFactorHandler) RevokeDevice(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	deviceID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid device id")
	}

	if err := h.Service.RevokeDevice(c.UserContext(), user.ID, deviceID); err != nil {
		return twoFactorError(c, "twofactor_revoke_device_failed", err)
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"revoked": deviceID})
}

func (h *TwoFactorHandler) Status(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	status, err := h.Service.Status(c.UserContext(), user.ID)
	if err != nil {
		return twoFactorError(c, "twofactor_status_failed", err)
	}
	return utils.Success(c, fiber.StatusOK, status)
}

func (h *TwoFactorHandler) GetSettings(c *fiber.Ctx) error {
	settings, err := h.Service.Settings(c.UserContext())
	if err != nil {
		return twoFactorError(c, "twofactor_settings_load_failed", err)
	}
	return utils.Success(c, fiber.StatusOK, settings)
}

func (h *TwoFactorHandler) UpdateSettings(c *fiber.Ctx) error {
	var req twofactor.SettingsUpdate
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	settings, err := h.Service.UpdateSettings(c.UserContext(), req)
	if err != nil {
		return twoFactorError(c, "twofactor_settings_update_failed", err)
	}
	return utils.Success(c, fiber.StatusOK, settings)
}

// readDeviceToken reads the trusted-device token from the header first,
// then the cookie.
func readDeviceToken(c *fiber.Ctx, cookieName string) string {
	if token := strings.TrimSpace(c.Get(DeviceTokenHeader)); token != "" {
		return token
	}
	return c.Cookies(cookieName)
}

func (h *TwoFactorHandler) clearDeviceCookie(c *fiber.Ctx) {
	c.ClearCookie(h.DeviceCookie)
}
