package billing

import (
	"errors"
	"time"

	"github.com/tradevault/TradeVault/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubscriptionStore is the durable mapping from user email to last-known
// subscription state. Both the reconciler and the webhook ingestor write to
// it; writes are idempotent upserts keyed by email, last write wins.
type SubscriptionStore interface {
	// GetByEmail returns (nil, nil) when no record exists for the email.
	GetByEmail(email string) (*models.Subscription, error)
	// Upsert creates the record if absent and overwrites the supplied
	// fields if present. Safe under concurrent callers for the same key.
	Upsert(sub *models.Subscription) error
	// UpdateStatus mutates only the status of an existing record.
	UpdateStatus(id string, status string) error
}

// UserFinder resolves local users by email for the webhook ingestor.
type UserFinder interface {
	// FindByEmail returns (nil, nil) when no local user exists.
	FindByEmail(email string) (*models.User, error)
}

// WebhookEventStore persists webhook deliveries for deduplication and audit.
type WebhookEventStore interface {
	CreateIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkProcessed(id uint, processingError string) error
}

type gormSubscriptionStore struct {
	db *gorm.DB
}

// NewSubscriptionStore creates a subscription store backed by GORM.
func NewSubscriptionStore(db *gorm.DB) SubscriptionStore {
	return &gormSubscriptionStore{db: db}
}

func (s *gormSubscriptionStore) GetByEmail(email string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.Where("email = ?", email).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *gormSubscriptionStore) Upsert(sub *models.Subscription) error {
	if err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "email"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"status",
			"plan",
			"interval",
			"end_date",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return s.db.Where("email = ?", sub.Email).First(sub).Error
}

func (s *gormSubscriptionStore) UpdateStatus(id string, status string) error {
	return s.db.Model(&models.Subscription{}).Where("id = ?", id).Update("status", status).Error
}

type gormUserFinder struct {
	db *gorm.DB
}

// NewUserFinder creates a user lookup backed by GORM.
func NewUserFinder(db *gorm.DB) UserFinder {
	return &gormUserFinder{db: db}
}

func (f *gormUserFinder) FindByEmail(email string) (*models.User, error) {
	var user models.User
	err := f.db.Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

type gormWebhookEventStore struct {
	db *gorm.DB
}

// NewWebhookEventStore creates a webhook event store backed by GORM.
func NewWebhookEventStore(db *gorm.DB) WebhookEventStore {
	return &gormWebhookEventStore{db: db}
}

func (s *gormWebhookEventStore) CreateIfNotExists(event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := s.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (s *gormWebhookEventStore) MarkProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return s.db.Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
