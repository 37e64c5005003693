package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vhm24r/ledger_backend/config"
	"github.com/vhm24r/ledger_backend/utils"
	"gorm.io/gorm"
)

// Order is the canonical order record. OrderNumber is the natural key:
// the first sighting creates the row, every later sighting mutates it in
// place. SourceFileId is a weak back-reference to the file that last
// touched the record.
type Order struct {
	ID            int             `gorm:"primary_key" json:"id"`
	OrderNumber   string          `gorm:"size:100;uniqueIndex;not null" json:"order_number"`
	MachineCode   string          `gorm:"size:100;index" json:"machine_code"`
	Price         decimal.Decimal `gorm:"type:decimal(12,2);default:0" json:"price"`
	PaymentType   string          `gorm:"size:100;index" json:"payment_type"`
	PaymentStatus string          `gorm:"size:100" json:"payment_status"`
	MatchStatus   MatchStatus     `gorm:"size:50;index;default:'unmatched'" json:"match_status"`
	CreationTime  *time.Time      `gorm:"index" json:"creation_time"`
	Version       int             `gorm:"default:1" json:"version"`
	SourceFileId  *int            `gorm:"index" json:"source_file_id"`
	CreatedBy     int             `json:"created_by"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetOrdersByNumbers loads all existing canonical records for a chunk's
// natural keys in one query, keyed by order number.
func GetOrdersByNumbers(ctx context.Context, db *gorm.DB, orderNumbers []string) (map[string]*Order, error) {
	result := make(map[string]*Order, len(orderNumbers))
	if len(orderNumbers) == 0 {
		return result, nil
	}

	var orders []*Order
	if err := db.WithContext(ctx).Where("order_number IN ?", orderNumbers).Find(&orders).Error; err != nil {
		return nil, err
	}
	for _, order := range orders {
		result[order.OrderNumber] = order
	}
	return result, nil
}

func GetOrder(ctx context.Context, id int) (*Order, error) {
	db := config.GetDB()
	var result Order
	if err := db.WithContext(ctx).First(&result, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

func GetOrderByNumber(ctx context.Context, orderNumber string) (*Order, error) {
	db := config.GetDB()
	var result Order
	if err := db.WithContext(ctx).Where("order_number = ?", orderNumber).First(&result).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

func CountOrders(ctx context.Context) (int64, error) {
	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).Model(&Order{}).Count(&count).Error
	return count, err
}
