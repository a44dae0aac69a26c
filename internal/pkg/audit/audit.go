package audit

import (
	"encoding/json"
	"log"

	"github.com/tradevault/TradeVault/app/models"
	"gorm.io/gorm"
)

// Actions recorded by this application.
const (
	ActionAuthLogin       = "AUTH_LOGIN"
	ActionAuthLogout      = "AUTH_LOGOUT"
	ActionAuthLoginFailed = "AUTH_LOGIN_FAILED"
	ActionAuthRegistered  = "AUTH_REGISTERED"

	ActionTradeCreated  = "TRADE_CREATED"
	ActionTradeUpdated  = "TRADE_UPDATED"
	ActionTradeDeleted  = "TRADE_DELETED"
	ActionTradeImported = "TRADE_IMPORTED"

	ActionAccountCreated = "ACCOUNT_CREATED"
	ActionAccountUpdated = "ACCOUNT_UPDATED"
	ActionAccountDeleted = "ACCOUNT_DELETED"

	ActionWebhookProcessed = "WEBHOOK_PROCESSED"
	ActionWebhookFailed    = "WEBHOOK_FAILED"
)

const (
	SeverityInfo     = "INFO"
	SeverityWarning  = "WARNING"
	SeverityError    = "ERROR"
	SeverityCritical = "CRITICAL"
)

// Entry is one audit record. Success defaults to true when ErrorMessage is
// empty and Failed is unset.
type Entry struct {
	UserID       *uint
	Action       string
	Resource     string
	ResourceID   string
	Details      map[string]interface{}
	IPAddress    string
	UserAgent    string
	Failed       bool
	ErrorMessage string
	Severity     string
}

// Log persists an audit entry best-effort. Failures are logged and swallowed;
// auditing must never break the request that triggered it.
func Log(db *gorm.DB, entry Entry) {
	if db == nil {
		return
	}

	details := ""
	if len(entry.Details) > 0 {
		if b, err := json.Marshal(entry.Details); err == nil {
			details = string(b)
		}
	}

	severity := entry.Severity
	if severity == "" {
		severity = SeverityInfo
	}

	row := &models.AuditLog{
		UserID:       entry.UserID,
		Action:       entry.Action,
		Resource:     entry.Resource,
		ResourceID:   entry.ResourceID,
		Details:      details,
		IPAddress:    entry.IPAddress,
		UserAgent:    entry.UserAgent,
		Success:      !entry.Failed && entry.ErrorMessage == "",
		ErrorMessage: entry.ErrorMessage,
		Severity:     severity,
	}
	if err := db.Create(row).Error; err != nil {
		log.Printf("failed to create audit log entry (%s): %v", entry.Action, err)
	}
}
