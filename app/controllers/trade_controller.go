package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/tradevault/TradeVault/app/models"
	"github.com/tradevault/TradeVault/app/repository"
	"github.com/tradevault/TradeVault/internal/pkg/audit"
	"github.com/tradevault/TradeVault/internal/pkg/database"
	"github.com/tradevault/TradeVault/internal/pkg/usercontext"
)

type tradeRequest struct {
	AccountNumber  string     `json:"account_number"`
	Quantity       int        `json:"quantity"`
	EntryID        string     `json:"entry_id"`
	CloseID        string     `json:"close_id"`
	Instrument     string     `json:"instrument"`
	EntryPrice     priceValue `json:"entry_price"`
	ClosePrice     priceValue `json:"close_price"`
	EntryDate      time.Time  `json:"entry_date"`
	CloseDate      time.Time  `json:"close_date"`
	PnL            float64    `json:"pnl"`
	TimeInPosition int        `json:"time_in_position"`
	Side           string     `json:"side"`
	Commission     float64    `json:"commission"`
	Comment        string     `json:"comment"`
	Tags           []string   `json:"tags"`
	ImageBase64    string     `json:"image_base64"`
	VideoURL       string     `json:"video_url"`
	GroupID        string     `json:"group_id"`
}

func (req *tradeRequest) toModel(userID uint) (*models.Trade, error) {
	trade := &models.Trade{
		UserID:         userID,
		AccountNumber:  req.AccountNumber,
		Quantity:       req.Quantity,
		EntryID:        req.EntryID,
		CloseID:        req.CloseID,
		Instrument:     req.Instrument,
		EntryPrice:     req.EntryPrice.String(),
		ClosePrice:     req.ClosePrice.String(),
		EntryDate:      req.EntryDate,
		CloseDate:      req.CloseDate,
		PnL:            req.PnL,
		TimeInPosition: req.TimeInPosition,
		Side:           req.Side,
		Commission:     req.Commission,
		Comment:        req.Comment,
		ImageBase64:    req.ImageBase64,
		VideoURL:       req.VideoURL,
		GroupID:        req.GroupID,
	}
	if err := trade.SetTags(req.Tags); err != nil {
		return nil, err
	}
	if err := trade.Validate(); err != nil {
		return nil, err
	}
	return trade, nil
}

func tradeResponse(t *models.Trade) fiber.Map {
	return fiber.Map{
		"id":               t.ID,
		"account_number":   t.AccountNumber,
		"quantity":         t.Quantity,
		"entry_id":         t.EntryID,
		"close_id":         t.CloseID,
		"instrument":       t.Instrument,
		"entry_price":      t.EntryPrice,
		"close_price":      t.ClosePrice,
		"entry_date":       t.EntryDate,
		"close_date":       t.CloseDate,
		"pnl":              t.PnL,
		"time_in_position": t.TimeInPosition,
		"side":             t.Side,
		"commission":       t.Commission,
		"comment":          t.Comment,
		"tags":             t.GetTags(),
		"image_base64":     t.ImageBase64,
		"video_url":        t.VideoURL,
		"group_id":         t.GroupID,
		"created_at":       t.CreatedAt,
		"updated_at":       t.UpdatedAt,
	}
}

func tradeFilterFromQuery(c *fiber.Ctx) (repository.TradeFilter, error) {
	filter := repository.TradeFilter{
		AccountNumber: c.Query("account_number"),
		Instrument:    c.Query("instrument"),
		Tag:           c.Query("tag"),
		Limit:         queryInt(c, "limit", 100),
		Offset:        queryInt(c, "offset", 0),
	}
	start, err := parseTimeParam(c.Query("start_date"))
	if err != nil {
		return filter, err
	}
	end, err := parseTimeParam(c.Query("end_date"))
	if err != nil {
		return filter, err
	}
	filter.StartDate = start
	filter.EndDate = end
	return filter, nil
}

// HandleListTrades returns a filtered, paginated page of the user's journal.
func HandleListTrades(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	filter, err := tradeFilterFromQuery(c)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Invalid date filter, expected RFC 3339 or YYYY-MM-DD")
	}

	trades, total, err := repository.GetGlobalFactory().GetTradeRepository().ListByUser(userCtx.UserID, filter)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load trades")
	}

	items := make([]fiber.Map, 0, len(trades))
	for i := range trades {
		items = append(items, tradeResponse(&trades[i]))
	}
	return c.JSON(fiber.Map{"trades": items, "total": total})
}

// HandleGetTrade returns a single trade owned by the caller.
func HandleGetTrade(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	trade, err := repository.GetGlobalFactory().GetTradeRepository().GetByID(c.Params("id"), userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load trade")
	}
	if trade == nil {
		return jsonError(c, fiber.StatusNotFound, "not_found", "Trade not found")
	}
	return c.JSON(tradeResponse(trade))
}

// HandleCreateTrade journals a single trade.
func HandleCreateTrade(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req tradeRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Malformed JSON body")
	}
	trade, err := req.toModel(userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", err.Error())
	}

	if err := repository.GetGlobalFactory().GetTradeRepository().Create(trade); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to create trade")
	}

	uid := userCtx.UserID
	audit.Log(database.GetDB(), audit.Entry{
		UserID:     &uid,
		Action:     audit.ActionTradeCreated,
		Resource:   "trade",
		ResourceID: trade.ID,
		Details:    map[string]interface{}{"instrument": trade.Instrument, "account_number": trade.AccountNumber},
		IPAddress:  GetClientIP(c),
		UserAgent:  c.Get("User-Agent"),
	})

	return c.Status(fiber.StatusCreated).JSON(tradeResponse(trade))
}

// HandleUpdateTrade applies a partial update to an existing trade.
func HandleUpdateTrade(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	repo := repository.GetGlobalFactory().GetTradeRepository()

	trade, err := repo.GetByID(c.Params("id"), userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load trade")
	}
	if trade == nil {
		return jsonError(c, fiber.StatusNotFound, "not_found", "Trade not found")
	}

	var req struct {
		AccountNumber  *string     `json:"account_number"`
		Quantity       *int        `json:"quantity"`
		Instrument     *string     `json:"instrument"`
		EntryPrice     *priceValue `json:"entry_price"`
		ClosePrice     *priceValue `json:"close_price"`
		EntryDate      *time.Time  `json:"entry_date"`
		CloseDate      *time.Time  `json:"close_date"`
		PnL            *float64    `json:"pnl"`
		TimeInPosition *int        `json:"time_in_position"`
		Side           *string     `json:"side"`
		Commission     *float64    `json:"commission"`
		Comment        *string     `json:"comment"`
		Tags           *[]string   `json:"tags"`
		ImageBase64    *string     `json:"image_base64"`
		VideoURL       *string     `json:"video_url"`
		GroupID        *string     `json:"group_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Malformed JSON body")
	}

	if req.AccountNumber != nil {
		trade.AccountNumber = *req.AccountNumber
	}
	if req.Quantity != nil {
		trade.Quantity = *req.Quantity
	}
	if req.Instrument != nil {
		trade.Instrument = *req.Instrument
	}
	if req.EntryPrice != nil {
		trade.EntryPrice = req.EntryPrice.String()
	}
	if req.ClosePrice != nil {
		trade.ClosePrice = req.ClosePrice.String()
	}
	if req.EntryDate != nil {
		trade.EntryDate = *req.EntryDate
	}
	if req.CloseDate != nil {
		trade.CloseDate = *req.CloseDate
	}
	if req.PnL != nil {
		trade.PnL = *req.PnL
	}
	if req.TimeInPosition != nil {
		trade.TimeInPosition = *req.TimeInPosition
	}
	if req.Side != nil {
		trade.Side = *req.Side
	}
	if req.Commission != nil {
		trade.Commission = *req.Commission
	}
	if req.Comment != nil {
		trade.Comment = *req.Comment
	}
	if req.Tags != nil {
		if err := trade.SetTags(*req.Tags); err != nil {
			return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", err.Error())
		}
	}
	if req.ImageBase64 != nil {
		trade.ImageBase64 = *req.ImageBase64
	}
	if req.VideoURL != nil {
		trade.VideoURL = *req.VideoURL
	}
	if req.GroupID != nil {
		trade.GroupID = *req.GroupID
	}

	if err := trade.Validate(); err != nil {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", err.Error())
	}
	if err := repo.Update(trade); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to update trade")
	}

	uid := userCtx.UserID
	audit.Log(database.GetDB(), audit.Entry{
		UserID:     &uid,
		Action:     audit.ActionTradeUpdated,
		Resource:   "trade",
		ResourceID: trade.ID,
		IPAddress:  GetClientIP(c),
		UserAgent:  c.Get("User-Agent"),
	})

	return c.JSON(tradeResponse(trade))
}

// HandleDeleteTrade soft-deletes a trade.
func HandleDeleteTrade(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	id := c.Params("id")
	err := repository.GetGlobalFactory().GetTradeRepository().SoftDelete(id, userCtx.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return jsonError(c, fiber.StatusNotFound, "not_found", "Trade not found")
	}
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to delete trade")
	}

	uid := userCtx.UserID
	audit.Log(database.GetDB(), audit.Entry{
		UserID:     &uid,
		Action:     audit.ActionTradeDeleted,
		Resource:   "trade",
		ResourceID: id,
		IPAddress:  GetClientIP(c),
		UserAgent:  c.Get("User-Agent"),
	})

	return c.JSON(fiber.Map{"ok": true})
}

// HandleImportTrades journals a batch of trades in one call, typically from a
// broker CSV import on the client.
func HandleImportTrades(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var reqs []tradeRequest
	if err := c.BodyParser(&reqs); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Malformed JSON body, expected an array of trades")
	}
	if len(reqs) == 0 {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Empty trade list")
	}

	trades := make([]models.Trade, 0, len(reqs))
	for i := range reqs {
		trade, err := reqs[i].toModel(userCtx.UserID)
		if err != nil {
			return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", err.Error())
		}
		trades = append(trades, *trade)
	}

	if err := repository.GetGlobalFactory().GetTradeRepository().CreateMany(trades); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to import trades")
	}

	uid := userCtx.UserID
	audit.Log(database.GetDB(), audit.Entry{
		UserID:    &uid,
		Action:    audit.ActionTradeImported,
		Resource:  "trade",
		Details:   map[string]interface{}{"count": len(trades)},
		IPAddress: GetClientIP(c),
		UserAgent: c.Get("User-Agent"),
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"imported": len(trades)})
}

// HandleGetTradeStats aggregates PnL over the filtered trade set.
func HandleGetTradeStats(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	filter, err := tradeFilterFromQuery(c)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Invalid date filter, expected RFC 3339 or YYYY-MM-DD")
	}

	stats, err := repository.GetGlobalFactory().GetTradeRepository().StatsByUser(userCtx.UserID, filter)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to aggregate trades")
	}
	return c.JSON(stats)
}
