package repository

import (
	"time"

	"github.com/tradevault/TradeVault/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Update(user *models.User) error
}

// TradeFilter narrows trade listings and aggregates to a subset of a user's
// journal. Zero values mean "no restriction".
type TradeFilter struct {
	AccountNumber string
	Instrument    string
	StartDate     *time.Time
	EndDate       *time.Time
	Tag           string
	Limit         int
	Offset        int
}

// TradeStats is the aggregate view over a (filtered) set of trades.
type TradeStats struct {
	TotalTrades     int64   `json:"total_trades"`
	TotalPnL        float64 `json:"total_pnl"`
	TotalCommission float64 `json:"total_commission"`
	AveragePnL      float64 `json:"average_pnl"`
}

// TradeRepository defines the interface for trade-related database operations
type TradeRepository interface {
	Create(trade *models.Trade) error
	CreateMany(trades []models.Trade) error
	GetByID(id string, userID uint) (*models.Trade, error)
	ListByUser(userID uint, filter TradeFilter) ([]models.Trade, int64, error)
	Update(trade *models.Trade) error
	SoftDelete(id string, userID uint) error
	StatsByUser(userID uint, filter TradeFilter) (*TradeStats, error)
	LatestByAccount(userID uint, accountNumber string) (*models.Trade, error)
}

// TradingAccountRepository defines the interface for prop-firm account operations
type TradingAccountRepository interface {
	Create(account *models.TradingAccount) error
	GetByID(id string, userID uint) (*models.TradingAccount, error)
	ListByUser(userID uint) ([]models.TradingAccount, error)
	Update(account *models.TradingAccount) error
	Delete(id string, userID uint) error
}

// Repositories bundles all repository implementations
type Repositories struct {
	User           UserRepository
	Trade          TradeRepository
	TradingAccount TradingAccountRepository
}
