package controllers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/tradevault/TradeVault/app/models"
	"github.com/tradevault/TradeVault/app/repository"
	"github.com/tradevault/TradeVault/internal/pkg/audit"
	"github.com/tradevault/TradeVault/internal/pkg/database"
	"github.com/tradevault/TradeVault/internal/pkg/session"
	"github.com/tradevault/TradeVault/internal/pkg/usercontext"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleAuthRegister creates a new user account.
func HandleAuthRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Malformed JSON body")
	}

	user, err := models.CreateUser(strings.TrimSpace(req.Username), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", err.Error())
	}

	if err := repository.GetGlobalFactory().GetUserRepository().Create(user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return jsonError(c, fiber.StatusConflict, "email_taken", "An account with this email already exists")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to create user")
	}

	audit.Log(database.GetDB(), audit.Entry{
		UserID:    &user.ID,
		Action:    audit.ActionAuthRegistered,
		Resource:  "user",
		IPAddress: GetClientIP(c),
		UserAgent: c.Get("User-Agent"),
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":    user.ID,
		"name":  user.Name,
		"email": user.Email,
	})
}

// HandleAuthLogin authenticates a user and establishes a session.
func HandleAuthLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Malformed JSON body")
	}

	// notice: in production you should not inform the user
	// with detailed messages about login failures
	loginFailed := func() error {
		audit.Log(database.GetDB(), audit.Entry{
			Action:       audit.ActionAuthLoginFailed,
			Resource:     "user",
			Details:      map[string]interface{}{"email": req.Email},
			IPAddress:    GetClientIP(c),
			UserAgent:    c.Get("User-Agent"),
			Failed:       true,
			ErrorMessage: "invalid credentials",
			Severity:     audit.SeverityWarning,
		})
		return jsonError(c, fiber.StatusUnauthorized, "invalid_credentials", "Email or password is incorrect")
	}

	user, err := repository.GetGlobalFactory().GetUserRepository().GetByEmail(strings.TrimSpace(req.Email))
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load user")
	}
	if user == nil || !user.IsActive() {
		return loginFailed()
	}
	if !models.CheckPasswordHash(req.Password, user.Password) {
		return loginFailed()
	}

	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to create session")
	}
	sess.Set(usercontext.AuthKey, true)
	sess.Set(usercontext.KeyUserID, user.ID)
	sess.Set(usercontext.KeyUsername, user.Name)
	sess.Set(usercontext.KeyEmail, user.Email)
	sess.Set(usercontext.KeyIsAdmin, user.Role == "admin")
	if err := sess.Save(); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to save session")
	}

	database.GetDB().Model(user).Update("last_login_at", time.Now())

	audit.Log(database.GetDB(), audit.Entry{
		UserID:    &user.ID,
		Action:    audit.ActionAuthLogin,
		Resource:  "user",
		IPAddress: GetClientIP(c),
		UserAgent: c.Get("User-Agent"),
	})

	return c.JSON(fiber.Map{
		"id":    user.ID,
		"name":  user.Name,
		"email": user.Email,
	})
}

// HandleAuthLogout destroys the current session.
func HandleAuthLogout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	sess, err := session.GetSessionStore().Get(c)
	if err == nil {
		_ = sess.Destroy()
	}
	c.Locals(usercontext.KeyFromProtected, false)

	if userCtx.IsLoggedIn {
		uid := userCtx.UserID
		audit.Log(database.GetDB(), audit.Entry{
			UserID:    &uid,
			Action:    audit.ActionAuthLogout,
			Resource:  "user",
			IPAddress: GetClientIP(c),
			UserAgent: c.Get("User-Agent"),
		})
	}

	return c.JSON(fiber.Map{"ok": true})
}

// HandleAuthMe returns the authenticated user's profile.
func HandleAuthMe(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}

	user, err := repository.GetGlobalFactory().GetUserRepository().GetByID(userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load user")
	}
	if user == nil {
		// Live session for a deleted account; treat as logged out.
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "User account no longer exists")
	}

	return c.JSON(fiber.Map{
		"id":            user.ID,
		"name":          user.Name,
		"email":         user.Email,
		"role":          user.Role,
		"last_login_at": user.LastLoginAt,
	})
}
