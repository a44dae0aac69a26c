package repository

import (
	"errors"

	"github.com/tradevault/TradeVault/app/models"
	"gorm.io/gorm"
)

// tradingAccountRepository implements the TradingAccountRepository interface
type tradingAccountRepository struct {
	db *gorm.DB
}

// NewTradingAccountRepository creates a new trading account repository instance
func NewTradingAccountRepository(db *gorm.DB) TradingAccountRepository {
	return &tradingAccountRepository{db: db}
}

// Create creates a new trading account in the database
func (r *tradingAccountRepository) Create(account *models.TradingAccount) error {
	return r.db.Create(account).Error
}

// GetByID retrieves a trading account by ID, scoped to its owner
func (r *tradingAccountRepository) GetByID(id string, userID uint) (*models.TradingAccount, error) {
	var account models.TradingAccount
	err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// ListByUser returns all trading accounts belonging to a user
func (r *tradingAccountRepository) ListByUser(userID uint) ([]models.TradingAccount, error) {
	var accounts []models.TradingAccount
	err := r.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// Update updates an existing trading account in the database
func (r *tradingAccountRepository) Update(account *models.TradingAccount) error {
	return r.db.Save(account).Error
}

// Delete removes a trading account permanently
func (r *tradingAccountRepository) Delete(id string, userID uint) error {
	result := r.db.Where("id = ? AND user_id = ?", id, userID).Delete(&models.TradingAccount{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
