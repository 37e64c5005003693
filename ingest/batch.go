package ingest

import (
	"context"
	"errors"
	"io"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"github.com/vhm24r/ledger_backend/decode"
	"github.com/vhm24r/ledger_backend/models"
	"github.com/vhm24r/ledger_backend/utils"
	"gorm.io/gorm"
)

const DefaultChunkSize = 1000

// BatchWriter consumes a decoded row sequence in fixed-size chunks and
// performs bulk create/update against the order store. Each chunk commits
// as one unit; a failed chunk is logged and skipped, never aborting the
// file or the session.
type BatchWriter struct {
	DB        *gorm.DB
	ChunkSize int
	Logger    *logrus.Logger

	// AfterChunk, when set, is invoked after every attempted chunk with
	// the rows consumed so far. The progress tracker hangs off this.
	AfterChunk func(processedRows int)

	// UpdateChangeType overrides the change type recorded for updated
	// records. Reprocessing passes use CORRECTION; empty means UPDATE.
	UpdateChangeType models.ChangeType

	// UpdateMatchStatus, when set, is written to every updated record.
	UpdateMatchStatus *models.MatchStatus
}

// BatchResult aggregates one file's write outcome, including the per-row
// errors collected instead of propagated.
type BatchResult struct {
	TotalRows     int
	ProcessedRows int
	NewOrders     int
	UpdatedOrders int
	ChangeRecords int
	RowErrors     []*RowError
	ChunkFailures []*PartialBatchFailure

	// Columns holds the column order observed on the first decoded row.
	Columns []string
}

type chunkStats struct {
	newOrders     int
	updatedOrders int
	changeRecords int
}

func (w *BatchWriter) updateChangeType() models.ChangeType {
	if w.UpdateChangeType != "" {
		return w.UpdateChangeType
	}
	return models.ChangeTypeUpdate
}

func (w *BatchWriter) chunkSize() int {
	if w.ChunkSize > 0 {
		return w.ChunkSize
	}
	return DefaultChunkSize
}

// ProcessRows drains the source chunk by chunk. Chunks within one file are
// strictly sequential so the file's change history appends in order.
func (w *BatchWriter) ProcessRows(ctx context.Context, file *models.UploadedFile, src decode.RowSource) (*BatchResult, error) {
	result := &BatchResult{}
	chunkIndex := 0

	for {
		chunk, err := readChunk(src, w.chunkSize())
		if err != nil {
			return result, err
		}
		if len(chunk) == 0 {
			break
		}
		chunkIndex++
		result.TotalRows += len(chunk)
		if result.Columns == nil {
			result.Columns = chunk[0].Columns
		}

		mapped, numbers, rowErrors := mapChunk(chunk)
		result.RowErrors = append(result.RowErrors, rowErrors...)

		if len(mapped) > 0 {
			stats, err := w.writeChunk(ctx, file, mapped, numbers)
			if err != nil && isDuplicateKeyError(err) {
				// A concurrent worker created the same order number between
				// our lookup and insert; re-running the chunk reconciles
				// against the now-existing record.
				stats, err = w.writeChunk(ctx, file, mapped, numbers)
			}
			if err != nil {
				failure := &PartialBatchFailure{ChunkIndex: chunkIndex, RowCount: len(chunk), Err: err}
				result.ChunkFailures = append(result.ChunkFailures, failure)
				if w.Logger != nil {
					w.Logger.WithFields(logrus.Fields{
						"file_id": file.ID,
						"chunk":   chunkIndex,
						"rows":    len(chunk),
					}).Error(failure.Error())
				}
				if w.AfterChunk != nil {
					w.AfterChunk(result.TotalRows)
				}
				continue
			}
			result.NewOrders += stats.newOrders
			result.UpdatedOrders += stats.updatedOrders
			result.ChangeRecords += stats.changeRecords
		}
		result.ProcessedRows += len(chunk)

		if w.AfterChunk != nil {
			w.AfterChunk(result.TotalRows)
		}
	}
	return result, nil
}

func isDuplicateKeyError(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func readChunk(src decode.RowSource, size int) ([]*decode.Row, error) {
	chunk := make([]*decode.Row, 0, size)
	for len(chunk) < size {
		row, err := src.Next()
		if err == io.EOF {
			return chunk, nil
		}
		if err != nil {
			return chunk, err
		}
		chunk = append(chunk, row)
	}
	return chunk, nil
}

func mapChunk(chunk []*decode.Row) ([]*OrderValues, []string, []*RowError) {
	mapped := make([]*OrderValues, 0, len(chunk))
	numbers := make([]string, 0, len(chunk))
	var rowErrors []*RowError
	for _, row := range chunk {
		values, err := MapRow(row)
		if err != nil {
			if rowErr, ok := err.(*RowError); ok {
				rowErrors = append(rowErrors, rowErr)
				continue
			}
			rowErrors = append(rowErrors, &RowError{RowNumber: row.Number, Reason: err.Error()})
			continue
		}
		values.rowNumber = row.Number
		mapped = append(mapped, values)
		numbers = append(numbers, values.OrderNumber)
	}
	return mapped, numbers, rowErrors
}

type pendingUpdate struct {
	order   *models.Order
	changes []FieldChange
	rowNum  int
}

// writeChunk is the atomic unit: natural-key lookup, partition into
// to-create and to-update, bulk insert plus NEW changes, reconcile plus
// UPDATE changes, all inside one transaction.
func (w *BatchWriter) writeChunk(ctx context.Context, file *models.UploadedFile, mapped []*OrderValues, numbers []string) (chunkStats, error) {
	var stats chunkStats
	userId, _ := utils.GetUserIdFromContext(ctx)
	sourceFileId := &file.ID

	err := w.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stats = chunkStats{}
		existing, err := models.GetOrdersByNumbers(ctx, tx, numbers)
		if err != nil {
			return err
		}

		var (
			toCreate []*models.Order
			byNumber = existing
			updates  = make(map[string]*pendingUpdate)
		)

		// Later sightings of a key already pending in this chunk fold
		// into it: last write wins in processing order.
		for _, values := range mapped {
			order, known := byNumber[values.OrderNumber]
			if !known {
				order = values.NewOrder(sourceFileId, userId)
				toCreate = append(toCreate, order)
				byNumber[values.OrderNumber] = order
				continue
			}

			changes := DiffOrder(order, values)
			if len(changes) == 0 {
				continue
			}
			ApplyTo(order, values, changes)

			if order.ID == 0 {
				// Still unsaved; the fold-in needs no change records.
				continue
			}
			pending, ok := updates[values.OrderNumber]
			if !ok {
				pending = &pendingUpdate{order: order, rowNum: values.rowNumber}
				updates[values.OrderNumber] = pending
			}
			pending.changes = append(pending.changes, changes...)
			pending.rowNum = values.rowNumber
		}

		var changeRows []*models.OrderChange

		if len(toCreate) > 0 {
			if err := tx.Create(&toCreate).Error; err != nil {
				return err
			}
			for _, order := range toCreate {
				changeRows = append(changeRows, &models.OrderChange{
					OrderId:      order.ID,
					ColumnName:   "order_number",
					NewValue:     order.OrderNumber,
					ChangeType:   models.ChangeTypeNew,
					SourceFileId: sourceFileId,
					ChangedBy:    userId,
				})
			}
			stats.newOrders = len(toCreate)
		}

		for _, number := range numbers {
			pending, ok := updates[number]
			if !ok {
				continue
			}
			delete(updates, number)

			order := pending.order
			order.Version++
			order.SourceFileId = sourceFileId
			columns := map[string]interface{}{
				"machine_code":   order.MachineCode,
				"price":          order.Price,
				"payment_type":   order.PaymentType,
				"payment_status": order.PaymentStatus,
				"creation_time":  order.CreationTime,
				"version":        order.Version,
				"source_file_id": order.SourceFileId,
			}
			if w.UpdateMatchStatus != nil {
				order.MatchStatus = *w.UpdateMatchStatus
				columns["match_status"] = order.MatchStatus
			}
			if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(columns).Error; err != nil {
				return err
			}

			for _, change := range pending.changes {
				changeRows = append(changeRows, &models.OrderChange{
					OrderId:      order.ID,
					RowNumber:    pending.rowNum,
					ColumnName:   change.Column,
					OldValue:     change.OldValue,
					NewValue:     change.NewValue,
					ChangeType:   w.updateChangeType(),
					SourceFileId: sourceFileId,
					ChangedBy:    userId,
				})
			}
			stats.updatedOrders++
		}

		if len(changeRows) > 0 {
			if err := tx.Create(&changeRows).Error; err != nil {
				return err
			}
			stats.changeRecords = len(changeRows)
		}
		return nil
	})
	if err != nil {
		return chunkStats{}, err
	}
	return stats, nil
}
