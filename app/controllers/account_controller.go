package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/tradevault/TradeVault/app/models"
	"github.com/tradevault/TradeVault/app/repository"
	"github.com/tradevault/TradeVault/internal/pkg/audit"
	"github.com/tradevault/TradeVault/internal/pkg/database"
	"github.com/tradevault/TradeVault/internal/pkg/usercontext"
)

// HandleListAccounts returns all trading accounts of the caller.
func HandleListAccounts(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	accounts, err := repository.GetGlobalFactory().GetTradingAccountRepository().ListByUser(userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load accounts")
	}
	return c.JSON(fiber.Map{"accounts": accounts})
}

// HandleGetAccount returns a single trading account owned by the caller.
func HandleGetAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	account, err := repository.GetGlobalFactory().GetTradingAccountRepository().GetByID(c.Params("id"), userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load account")
	}
	if account == nil {
		return jsonError(c, fiber.StatusNotFound, "not_found", "Account not found")
	}
	return c.JSON(account)
}

// HandleCreateAccount registers a new prop-firm account.
func HandleCreateAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var account models.TradingAccount
	if err := c.BodyParser(&account); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Malformed JSON body")
	}
	account.ID = ""
	account.UserID = userCtx.UserID
	if err := account.Validate(); err != nil {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", err.Error())
	}

	if err := repository.GetGlobalFactory().GetTradingAccountRepository().Create(&account); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return jsonError(c, fiber.StatusConflict, "account_exists", "An account with this number already exists")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to create account")
	}

	uid := userCtx.UserID
	audit.Log(database.GetDB(), audit.Entry{
		UserID:     &uid,
		Action:     audit.ActionAccountCreated,
		Resource:   "trading_account",
		ResourceID: account.ID,
		Details:    map[string]interface{}{"number": account.Number, "propfirm": account.Propfirm},
		IPAddress:  GetClientIP(c),
		UserAgent:  c.Get("User-Agent"),
	})

	return c.Status(fiber.StatusCreated).JSON(account)
}

// HandleUpdateAccount applies a partial update to a trading account.
func HandleUpdateAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	repo := repository.GetGlobalFactory().GetTradingAccountRepository()

	account, err := repo.GetByID(c.Params("id"), userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load account")
	}
	if account == nil {
		return jsonError(c, fiber.StatusNotFound, "not_found", "Account not found")
	}

	// BodyParser overlays only the fields present in the request body.
	if err := c.BodyParser(account); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Malformed JSON body")
	}
	account.ID = c.Params("id")
	account.UserID = userCtx.UserID
	if err := account.Validate(); err != nil {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", err.Error())
	}

	if err := repo.Update(account); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to update account")
	}

	uid := userCtx.UserID
	audit.Log(database.GetDB(), audit.Entry{
		UserID:     &uid,
		Action:     audit.ActionAccountUpdated,
		Resource:   "trading_account",
		ResourceID: account.ID,
		IPAddress:  GetClientIP(c),
		UserAgent:  c.Get("User-Agent"),
	})

	return c.JSON(account)
}

// HandleDeleteAccount removes a trading account. Journaled trades keep their
// account number and survive the deletion.
func HandleDeleteAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	id := c.Params("id")
	err := repository.GetGlobalFactory().GetTradingAccountRepository().Delete(id, userCtx.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return jsonError(c, fiber.StatusNotFound, "not_found", "Account not found")
	}
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to delete account")
	}

	uid := userCtx.UserID
	audit.Log(database.GetDB(), audit.Entry{
		UserID:     &uid,
		Action:     audit.ActionAccountDeleted,
		Resource:   "trading_account",
		ResourceID: id,
		IPAddress:  GetClientIP(c),
		UserAgent:  c.Get("User-Agent"),
	})

	return c.JSON(fiber.Map{"ok": true})
}

// HandleGetAccountStats returns PnL aggregates and the current balance for
// one trading account.
func HandleGetAccountStats(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	repos := repository.GetGlobalFactory()

	account, err := repos.GetTradingAccountRepository().GetByID(c.Params("id"), userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load account")
	}
	if account == nil {
		return jsonError(c, fiber.StatusNotFound, "not_found", "Account not found")
	}

	stats, err := repos.GetTradeRepository().StatsByUser(userCtx.UserID, repository.TradeFilter{AccountNumber: account.Number})
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to aggregate trades")
	}

	latest, err := repos.GetTradeRepository().LatestByAccount(userCtx.UserID, account.Number)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load latest trade")
	}

	resp := fiber.Map{
		"account_id":       account.ID,
		"number":           account.Number,
		"starting_balance": account.StartingBalance,
		"current_balance":  account.StartingBalance + stats.TotalPnL - stats.TotalCommission,
		"profit_target":    account.ProfitTarget,
		"total_trades":     stats.TotalTrades,
		"total_pnl":        stats.TotalPnL,
		"total_commission": stats.TotalCommission,
		"average_pnl":      stats.AveragePnL,
	}
	if latest != nil {
		resp["latest_trade_at"] = latest.EntryDate
	}
	return c.JSON(resp)
}
