package handlers

import (
	"github.com/backoffice/server/internal/middleware"
	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts the auth, two-factor and audit routes on api.
func RegisterRoutes(api fiber.Router, auth *middleware.AuthMiddleware, authHandler *AuthHandler, twoFactor *TwoFactorHandler, audit *AuditHandler) {
	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/me", auth.RequireAuth, authHandler.Me)

	// Mid-login endpoints; the login nonce replaces a session.
	api.Post("/2fa/verify", twoFactor.Verify)
	api.Post("/2fa/send-code", twoFactor.SendCode)

	tfa := api.Group("/2fa", auth.RequireAuth)
	tfa.Get("/setup", twoFactor.SetupOverview)
	tfa.Post("/setup", twoFactor.Setup)
	tfa.Post("/verify-setup", twoFactor.VerifySetup)
	tfa.Post("/disable", twoFactor.Disable)
	tfa.Get("/backup-codes", twoFactor.BackupCodesRemaining)
	tfa.Post("/backup-codes", twoFactor.RegenerateBackupCodes)
	tfa.Get("/trusted-devices", twoFactor.ListDevices)
	tfa.Delete("/trusted-devices/:id", twoFactor.RevokeDevice)
	tfa.Get("/status", twoFactor.Status)
	tfa.Get("/settings", middleware.AdminOnly, twoFactor.GetSettings)
	tfa.Put("/settings", middleware.AdminOnly, twoFactor.UpdateSettings)

	auditRoutes := api.Group("/audit-log", auth.RequireAuth)
	auditRoutes.Get("/export", audit.ExportMyLog)
}
