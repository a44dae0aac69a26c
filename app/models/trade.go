package models

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Trade is a single journaled trade. Prices are stored as strings because
// import sources deliver them both as numbers and as broker-formatted text.
type Trade struct {
	ID             string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID         uint           `gorm:"not null;index" json:"user_id"`
	AccountNumber  string         `gorm:"type:varchar(100);not null;index" json:"account_number" validate:"required"`
	Quantity       int            `gorm:"not null" json:"quantity" validate:"required,gt=0"`
	EntryID        string         `gorm:"type:varchar(100);default:''" json:"entry_id"`
	CloseID        string         `gorm:"type:varchar(100);default:''" json:"close_id"`
	Instrument     string         `gorm:"type:varchar(50);not null;index" json:"instrument" validate:"required"`
	EntryPrice     string         `gorm:"type:varchar(50);not null" json:"entry_price" validate:"required"`
	ClosePrice     string         `gorm:"type:varchar(50);not null" json:"close_price" validate:"required"`
	EntryDate      time.Time      `gorm:"not null;index" json:"entry_date"`
	CloseDate      time.Time      `gorm:"not null" json:"close_date"`
	PnL            float64        `gorm:"column:pnl;not null;default:0" json:"pnl"`
	TimeInPosition int            `gorm:"default:0" json:"time_in_position"`
	Side           string         `gorm:"type:varchar(10);default:''" json:"side"`
	Commission     float64        `gorm:"default:0" json:"commission"`
	Comment        string         `gorm:"type:text" json:"comment"`
	Tags           string         `gorm:"type:text" json:"-"`
	ImageBase64    string         `gorm:"type:longtext" json:"image_base64,omitempty"`
	VideoURL       string         `gorm:"type:varchar(255);default:''" json:"video_url"`
	GroupID        string         `gorm:"type:varchar(36);default:'';index" json:"group_id"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func (t *Trade) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

func (t *Trade) Validate() error {
	v := validator.New()

	return v.Struct(t)
}

// SetTags serializes the tag list into the stored column.
func (t *Trade) SetTags(tags []string) error {
	if len(tags) == 0 {
		t.Tags = ""
		return nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return err
	}
	t.Tags = string(b)
	return nil
}

// GetTags deserializes the stored tag column; an empty column yields nil.
func (t *Trade) GetTags() []string {
	if t.Tags == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(t.Tags), &tags); err != nil {
		return nil
	}
	return tags
}
