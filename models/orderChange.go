package models

import (
	"context"
	"time"

	"github.com/vhm24r/ledger_backend/config"
)

// OrderChange is one append-only entry in an order's field-level change
// history. Rows are never mutated after creation.
type OrderChange struct {
	ID           int        `gorm:"primary_key" json:"id"`
	OrderId      int        `gorm:"index;not null" json:"order_id"`
	RowNumber    int        `json:"row_number"`
	ColumnName   string     `gorm:"size:100;index;not null" json:"column_name"`
	OldValue     string     `gorm:"type:text" json:"old_value"`
	NewValue     string     `gorm:"type:text" json:"new_value"`
	ChangeType   ChangeType `gorm:"size:20;not null" json:"change_type"`
	SourceFileId *int       `gorm:"index" json:"source_file_id"`
	ChangedBy    int        `json:"changed_by"`
	ChangedAt    time.Time  `gorm:"autoCreateTime;index" json:"changed_at"`
}

func GetOrderChanges(ctx context.Context, orderId int, changeType *ChangeType) ([]*OrderChange, error) {
	db := config.GetDB()
	var results []*OrderChange

	dbCtx := db.WithContext(ctx).Where("order_id = ?", orderId)
	if changeType != nil && *changeType != "" {
		dbCtx = dbCtx.Where("change_type = ?", *changeType)
	}
	if err := dbCtx.Order("id ASC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func CountOrderChanges(ctx context.Context, orderId int) (int64, error) {
	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).Model(&OrderChange{}).Where("order_id = ?", orderId).Count(&count).Error
	return count, err
}
