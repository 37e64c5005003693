package ingest

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/vhm24r/ledger_backend/config"
	"github.com/vhm24r/ledger_backend/decode"
	"github.com/vhm24r/ledger_backend/models"
	"github.com/vhm24r/ledger_backend/utils"
	"gorm.io/gorm"
)

// ReprocessFile re-runs a previously ingested file against the current
// order store. Field differences are recorded as CORRECTION changes and
// the touched orders move to match_status corrected. Rows with unknown
// natural keys are created as NEW, same as the regular pipeline.
func ReprocessFile(ctx context.Context, db *gorm.DB, logger *logrus.Logger, fileId int) (*BatchResult, error) {
	file, err := models.GetUploadedFile(ctx, fileId)
	if err != nil {
		return nil, err
	}

	data, err := utils.ReadUpload(ctx, file.StoragePath)
	if err != nil {
		return nil, &DecodingError{Filename: file.OriginalName, Err: err}
	}
	format, err := decode.DetectFormat(file.OriginalName, data)
	if err != nil {
		return nil, &DecodingError{Filename: file.OriginalName, Err: err}
	}

	dc, err := decode.NewContext()
	if err != nil {
		return nil, &DecodingError{Filename: file.OriginalName, Err: err}
	}
	defer dc.Close()

	src, err := decode.Decode(dc, format, data)
	if err != nil {
		return nil, &DecodingError{Filename: file.OriginalName, Err: err}
	}

	corrected := models.MatchStatusCorrected
	writer := &BatchWriter{
		DB:                db,
		ChunkSize:         chunkSizeFromEnv(),
		Logger:            logger,
		UpdateChangeType:  models.ChangeTypeCorrection,
		UpdateMatchStatus: &corrected,
	}
	result, err := writer.ProcessRows(ctx, file, src)
	if err != nil {
		return result, &DecodingError{Filename: file.OriginalName, Err: err}
	}

	if err := models.UpdateFileCounts(ctx, db, file.ID, result.TotalRows, result.ProcessedRows, result.NewOrders, result.UpdatedOrders); err != nil {
		config.LogError(logger, "ingest", "ReprocessFile", "update file counts", file.ID, err)
	}
	return result, nil
}

// settledPaymentStatuses are the values treated as confirmation from the
// payment side. Matching is by order number, which both sources share.
var settledPaymentStatuses = []string{"completed", "paid", "success"}

// AutoMatchOrders promotes unmatched orders whose payment already settled
// to match_status matched, recording one AUTO_MATCH change per order.
// Returns the number of orders matched.
func AutoMatchOrders(ctx context.Context, db *gorm.DB, logger *logrus.Logger) (int, error) {
	matched := 0
	batch := DefaultChunkSize

	for {
		var orders []*models.Order
		err := db.WithContext(ctx).
			Where("match_status = ?", models.MatchStatusUnmatched).
			Where("payment_status IN ?", settledPaymentStatuses).
			Order("id asc").
			Limit(batch).
			Find(&orders).Error
		if err != nil {
			return matched, err
		}
		if len(orders) == 0 {
			return matched, nil
		}

		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			ids := make([]int, 0, len(orders))
			changes := make([]*models.OrderChange, 0, len(orders))
			for _, order := range orders {
				ids = append(ids, order.ID)
				changes = append(changes, &models.OrderChange{
					OrderId:    order.ID,
					ColumnName: "match_status",
					OldValue:   string(models.MatchStatusUnmatched),
					NewValue:   string(models.MatchStatusMatched),
					ChangeType: models.ChangeTypeAutoMatch,
				})
			}
			if err := tx.Model(&models.Order{}).Where("id IN ?", ids).
				Update("match_status", models.MatchStatusMatched).Error; err != nil {
				return err
			}
			return tx.Create(&changes).Error
		})
		if err != nil {
			return matched, err
		}
		matched += len(orders)

		if logger != nil {
			logger.WithFields(logrus.Fields{"matched": len(orders)}).Info("auto-matched settled orders")
		}
		if len(orders) < batch {
			return matched, nil
		}
	}
}
