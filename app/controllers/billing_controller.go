package controllers

import (
	"crypto/sha256"
	"encoding/hex"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/tradevault/TradeVault/app/models"
	"github.com/tradevault/TradeVault/internal/pkg/audit"
	"github.com/tradevault/TradeVault/internal/pkg/billing"
	"github.com/tradevault/TradeVault/internal/pkg/env"
	"github.com/tradevault/TradeVault/internal/pkg/usercontext"
	"gorm.io/gorm"
)

// BillingController serves subscription reads and ingests provider webhooks.
// Both paths mutate the same email-keyed subscription store.
type BillingController struct {
	db            *gorm.DB
	service       *billing.Service
	ingestor      *billing.Ingestor
	events        billing.WebhookEventStore
	webhookSecret string
}

// NewBillingController wires the controller from the database and environment.
func NewBillingController(db *gorm.DB) *BillingController {
	store := billing.NewSubscriptionStore(db)
	return &BillingController{
		db:            db,
		service:       billing.NewService(store, billing.NewWhopClientFromEnv()),
		ingestor:      billing.NewIngestor(store, billing.NewUserFinder(db)),
		events:        billing.NewWebhookEventStore(db),
		webhookSecret: env.GetEnv("WHOP_WEBHOOK_SECRET", ""),
	}
}

// NewBillingControllerWithDeps builds a controller from explicit collaborators.
func NewBillingControllerWithDeps(service *billing.Service, ingestor *billing.Ingestor, events billing.WebhookEventStore, webhookSecret string) *BillingController {
	return &BillingController{
		service:       service,
		ingestor:      ingestor,
		events:        events,
		webhookSecret: webhookSecret,
	}
}

// HandleGetSubscription returns the caller's last-known subscription, or a
// null subscription when none is active. The response never waits on the
// billing provider; a background revalidation refreshes the store for
// subsequent calls.
func (bc *BillingController) HandleGetSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}

	sub := bc.service.GetCurrentSubscription(userCtx.UserID, userCtx.Email)
	if sub == nil {
		return c.JSON(fiber.Map{"subscription": nil})
	}
	return c.JSON(fiber.Map{"subscription": sub})
}

// HandleWhopWebhook ingests a provider push event. Benign no-ops are
// acknowledged with 200 so the provider stops redelivering; malformed
// payloads and store failures return 500 so it retries.
func (bc *BillingController) HandleWhopWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Whop-Signature"))

	signatureValid := billing.VerifyWhopWebhookSignature(rawBody, signature, bc.webhookSecret)
	if bc.webhookSecret != "" && !signatureValid {
		return jsonError(c, fiber.StatusUnauthorized, "invalid_signature", "Webhook signature verification failed")
	}
	if bc.webhookSecret == "" {
		log.Print("WHOP_WEBHOOK_SECRET is not set, accepting webhook without signature verification")
	}

	event, parseErr := billing.ParseWhopEvent(rawBody)
	action := ""
	if event != nil {
		action = event.Action
	}

	// Dedup key: provider-supplied delivery ID, falling back to a payload hash.
	eventID := strings.TrimSpace(c.Get("Whop-Webhook-ID"))
	if eventID == "" {
		sum := sha256.Sum256(rawBody)
		eventID = "payload:" + hex.EncodeToString(sum[:])
	}

	created, stored, err := bc.events.CreateIfNotExists(&models.BillingWebhookEvent{
		Provider:        "whop",
		ProviderEventID: eventID,
		EventType:       action,
		PayloadJSON:     string(rawBody),
		SignatureValid:  signatureValid,
	})
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "webhook_persist_failed", "Failed to record webhook event")
	}
	if !created && stored.ProcessedAt != nil && stored.ProcessingError == "" {
		// Redelivery of an event that already applied cleanly; idempotent ack.
		// Deliveries whose processing failed fall through and are retried:
		// the provider's redelivery is the recovery path for those.
		return c.JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	if parseErr != nil {
		_ = bc.events.MarkProcessed(stored.ID, parseErr.Error())
		bc.auditWebhookFailure(c, eventID, action, parseErr)
		return jsonError(c, fiber.StatusInternalServerError, "invalid_payload", "Webhook payload could not be parsed")
	}

	outcome, err := bc.ingestor.Process(event)
	if err != nil {
		_ = bc.events.MarkProcessed(stored.ID, err.Error())
		bc.auditWebhookFailure(c, eventID, event.Action, err)
		return jsonError(c, fiber.StatusInternalServerError, "subscription_sync_failed", "Failed to apply webhook event")
	}
	_ = bc.events.MarkProcessed(stored.ID, "")

	audit.Log(bc.db, audit.Entry{
		Action:     audit.ActionWebhookProcessed,
		Resource:   "billing_webhook",
		ResourceID: eventID,
		Details:    map[string]interface{}{"action": event.Action, "outcome": string(outcome)},
		IPAddress:  GetClientIP(c),
		UserAgent:  c.Get("User-Agent"),
	})

	return c.JSON(fiber.Map{"ok": true, "result": outcome})
}

func (bc *BillingController) auditWebhookFailure(c *fiber.Ctx, eventID, action string, err error) {
	audit.Log(bc.db, audit.Entry{
		Action:       audit.ActionWebhookFailed,
		Resource:     "billing_webhook",
		ResourceID:   eventID,
		Details:      map[string]interface{}{"action": action},
		IPAddress:    GetClientIP(c),
		UserAgent:    c.Get("User-Agent"),
		ErrorMessage: err.Error(),
		Severity:     audit.SeverityError,
	})
}
