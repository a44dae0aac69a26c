package repository

import (
	"errors"

	"github.com/tradevault/TradeVault/app/models"
	"gorm.io/gorm"
)

// tradeRepository implements the TradeRepository interface
type tradeRepository struct {
	db *gorm.DB
}

// NewTradeRepository creates a new trade repository instance
func NewTradeRepository(db *gorm.DB) TradeRepository {
	return &tradeRepository{db: db}
}

// Create creates a new trade in the database
func (r *tradeRepository) Create(trade *models.Trade) error {
	return r.db.Create(trade).Error
}

// CreateMany inserts a batch of imported trades in chunks.
func (r *tradeRepository) CreateMany(trades []models.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	return r.db.CreateInBatches(trades, 200).Error
}

// GetByID retrieves a trade by ID, scoped to its owner
func (r *tradeRepository) GetByID(id string, userID uint) (*models.Trade, error) {
	var trade models.Trade
	err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&trade).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &trade, nil
}

// ListByUser returns a filtered, paginated page of a user's trades together
// with the total match count.
func (r *tradeRepository) ListByUser(userID uint, filter TradeFilter) ([]models.Trade, int64, error) {
	query := r.filtered(userID, filter)

	var total int64
	if err := query.Model(&models.Trade{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var trades []models.Trade
	err := query.
		Order("entry_date DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&trades).Error
	if err != nil {
		return nil, 0, err
	}
	return trades, total, nil
}

// Update updates an existing trade in the database
func (r *tradeRepository) Update(trade *models.Trade) error {
	return r.db.Save(trade).Error
}

// SoftDelete marks a trade as deleted without removing the row
func (r *tradeRepository) SoftDelete(id string, userID uint) error {
	result := r.db.Where("id = ? AND user_id = ?", id, userID).Delete(&models.Trade{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// StatsByUser aggregates PnL and commission over the filtered trade set.
func (r *tradeRepository) StatsByUser(userID uint, filter TradeFilter) (*TradeStats, error) {
	var stats TradeStats
	err := r.filtered(userID, filter).
		Model(&models.Trade{}).
		Select("COUNT(*) AS total_trades, COALESCE(SUM(pnl), 0) AS total_pn_l, COALESCE(SUM(commission), 0) AS total_commission, COALESCE(AVG(pnl), 0) AS average_pn_l").
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// LatestByAccount returns the most recently entered trade on an account, or
// (nil, nil) when the account has none.
func (r *tradeRepository) LatestByAccount(userID uint, accountNumber string) (*models.Trade, error) {
	var trade models.Trade
	err := r.db.
		Where("user_id = ? AND account_number = ?", userID, accountNumber).
		Order("entry_date DESC").
		First(&trade).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &trade, nil
}

func (r *tradeRepository) filtered(userID uint, filter TradeFilter) *gorm.DB {
	query := r.db.Where("user_id = ?", userID)
	if filter.AccountNumber != "" {
		query = query.Where("account_number = ?", filter.AccountNumber)
	}
	if filter.Instrument != "" {
		query = query.Where("instrument = ?", filter.Instrument)
	}
	if filter.StartDate != nil {
		query = query.Where("entry_date >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		query = query.Where("entry_date <= ?", *filter.EndDate)
	}
	if filter.Tag != "" {
		// Tags are stored as a JSON array in a text column.
		query = query.Where("tags LIKE ?", "%\""+filter.Tag+"\"%")
	}
	return query
}
