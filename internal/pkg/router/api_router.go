package router

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/tradevault/TradeVault/app/controllers"
	"github.com/tradevault/TradeVault/internal/pkg/database"
	"github.com/tradevault/TradeVault/internal/pkg/env"
	"github.com/tradevault/TradeVault/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// Rate-limit counters live in Redis DB 2 so they survive restarts and
	// are shared between instances (sessions use DB 1, cache DB 0).
	port, _ := strconv.Atoi(env.GetEnv("CACHE_PORT", "6379"))
	limiterStorage := redisstorage.New(redisstorage.Config{
		Host:     env.GetEnv("CACHE_HOST", "localhost"),
		Port:     port,
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		Database: 2,
	})

	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Storage:    limiterStorage,
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// Provider webhooks are unauthenticated; deliveries are verified by
	// signature in the handler. Whop retries aggressively, so the limit is
	// looser than for interactive clients.
	billingCtrl := controllers.NewBillingController(database.GetDB())
	webhooks := app.Group("/api/webhooks", limiter.New(limiter.Config{
		Max:        1000,
		Expiration: 1 * time.Minute,
		Storage:    limiterStorage,
	}))
	webhooks.Post("/whop", billingCtrl.HandleWhopWebhook)

	v1 := api.Group("/v1")

	auth := v1.Group("/auth")
	authLimited := limiter.New(limiter.Config{
		Max:        10,
		Expiration: 1 * time.Minute,
		Storage:    limiterStorage,
	})
	auth.Post("/register", authLimited, controllers.HandleAuthRegister)
	auth.Post("/login", authLimited, controllers.HandleAuthLogin)
	auth.Post("/logout", controllers.HandleAuthLogout)
	auth.Get("/me", controllers.HandleAuthMe)

	v1.Get("/subscription", middleware.RequireAPISessionAuth, billingCtrl.HandleGetSubscription)

	trades := v1.Group("/trades", middleware.RequireAPISessionAuth)
	trades.Get("/", controllers.HandleListTrades)
	trades.Post("/", controllers.HandleCreateTrade)
	trades.Post("/import", controllers.HandleImportTrades)
	trades.Get("/stats", controllers.HandleGetTradeStats)
	trades.Get("/:id", controllers.HandleGetTrade)
	trades.Patch("/:id", controllers.HandleUpdateTrade)
	trades.Delete("/:id", controllers.HandleDeleteTrade)

	accounts := v1.Group("/accounts", middleware.RequireAPISessionAuth)
	accounts.Get("/", controllers.HandleListAccounts)
	accounts.Post("/", controllers.HandleCreateAccount)
	accounts.Get("/:id", controllers.HandleGetAccount)
	accounts.Get("/:id/stats", controllers.HandleGetAccountStats)
	accounts.Patch("/:id", controllers.HandleUpdateAccount)
	accounts.Delete("/:id", controllers.HandleDeleteAccount)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
