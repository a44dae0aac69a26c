package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TradingAccount is a prop-firm (or live) account a user journals trades
// against. Trades reference it by account number, not by foreign key, so
// imported trades can arrive before the account is registered.
type TradingAccount struct {
	ID                    string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID                uint       `gorm:"not null;index:ux_trading_accounts_user_number,unique,priority:1" json:"user_id"`
	Number                string     `gorm:"type:varchar(100);not null;index:ux_trading_accounts_user_number,unique,priority:2" json:"number" validate:"required"`
	Propfirm              string     `gorm:"type:varchar(100);default:''" json:"propfirm"`
	StartingBalance       float64    `gorm:"default:0" json:"starting_balance"`
	DrawdownThreshold     float64    `gorm:"default:0" json:"drawdown_threshold"`
	ProfitTarget          float64    `gorm:"default:0" json:"profit_target"`
	IsPerformance         bool       `gorm:"default:false" json:"is_performance"`
	PayoutCount           int        `gorm:"default:0" json:"payout_count"`
	TrailingDrawdown      bool       `gorm:"default:false" json:"trailing_drawdown"`
	TrailingStopProfit    *float64   `gorm:"default:null" json:"trailing_stop_profit,omitempty"`
	ResetDate             *time.Time `gorm:"type:timestamp;default:null" json:"reset_date,omitempty"`
	ConsistencyPercentage float64    `gorm:"default:30" json:"consistency_percentage"`
	GroupID               string     `gorm:"type:varchar(36);default:''" json:"group_id"`
	AccountSize           string     `gorm:"type:varchar(50);default:''" json:"account_size"`
	AccountSizeName       string     `gorm:"type:varchar(100);default:''" json:"account_size_name"`
	ActivationFees        *float64   `gorm:"default:null" json:"activation_fees,omitempty"`
	CreatedAt             time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (a *TradingAccount) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

func (a *TradingAccount) Validate() error {
	v := validator.New()

	return v.Struct(a)
}
