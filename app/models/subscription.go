package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Subscription statuses. ACTIVE is the only state that grants product access;
// everything else (including a missing row) means "no active subscription".
const (
	SubscriptionStatusActive    = "ACTIVE"
	SubscriptionStatusCancelled = "CANCELLED"
	SubscriptionStatusExpired   = "EXPIRED"
)

const (
	SubscriptionIntervalMonth    = "month"
	SubscriptionIntervalYear     = "year"
	SubscriptionIntervalLifetime = "lifetime"
)

// Subscription mirrors the last-known billing provider state for a user.
// The email is the join key between the local identity and the provider;
// rows are upserted by the reconciler and the webhook ingestor, never deleted.
type Subscription struct {
	ID        string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    uint       `gorm:"not null;uniqueIndex" json:"user_id"`
	Email     string     `gorm:"type:varchar(200);not null;uniqueIndex" json:"email"`
	Status    string     `gorm:"type:varchar(20);not null;default:'ACTIVE';index" json:"status"`
	Plan      string     `gorm:"type:varchar(100);not null;default:'pro'" json:"plan"`
	Interval  string     `gorm:"type:varchar(16);not null;default:'month'" json:"interval"`
	EndDate   *time.Time `gorm:"type:timestamp;default:null" json:"end_date,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// IsActive reports whether this subscription grants product access.
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}
