package ingest_test

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vhm24r/ledger_backend/config"
	"github.com/vhm24r/ledger_backend/decode"
	"github.com/vhm24r/ledger_backend/ingest"
	"github.com/vhm24r/ledger_backend/models"
	"github.com/vhm24r/ledger_backend/utils"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&models.IngestionSession{},
		&models.UploadedFile{},
		&models.Order{},
		&models.OrderChange{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	config.SetDB(db)
	t.Cleanup(func() {
		config.SetDB(nil)
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func testContext() context.Context {
	return utils.SetUserIdInContext(context.Background(), 1)
}

func seedFile(t *testing.T, db *gorm.DB, sessionId string) *models.UploadedFile {
	t.Helper()
	file := &models.UploadedFile{
		SessionId:    sessionId,
		Filename:     "20260301_100000_hardware.csv",
		OriginalName: "hardware.csv",
		StoragePath:  "uploads/20260301_100000_hardware.csv",
		ContentHash:  "deadbeef",
		ByteSize:     100,
	}
	if err := db.Create(file).Error; err != nil {
		t.Fatalf("seed file: %v", err)
	}
	return file
}

type stubSource struct {
	rows []*decode.Row
	pos  int
}

func (s *stubSource) Next() (*decode.Row, error) {
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

func orderRows(t *testing.T, records ...map[string]string) *stubSource {
	t.Helper()
	rows := make([]*decode.Row, 0, len(records))
	for i, record := range records {
		rows = append(rows, makeRow(i+1, record))
	}
	return &stubSource{rows: rows}
}

func TestBatchWriterCreatesNewOrders(t *testing.T) {
	db := setupTestDB(t)
	ctx := testContext()
	file := seedFile(t, db, "s-1")

	writer := &ingest.BatchWriter{DB: db, Logger: config.GetLogger()}
	src := orderRows(t,
		map[string]string{"order_number": "A-1", "machine_code": "VM-7", "price": "12.50"},
		map[string]string{"order_number": "A-2", "machine_code": "VM-7", "price": "3.00"},
		map[string]string{"order_number": "A-3", "machine_code": "VM-8", "price": "5.00"},
	)

	result, err := writer.ProcessRows(ctx, file, src)
	if err != nil {
		t.Fatalf("ProcessRows: %v", err)
	}
	if result.TotalRows != 3 || result.ProcessedRows != 3 {
		t.Errorf("rows = %d/%d, want 3/3", result.ProcessedRows, result.TotalRows)
	}
	if result.NewOrders != 3 || result.UpdatedOrders != 0 {
		t.Errorf("new/updated = %d/%d, want 3/0", result.NewOrders, result.UpdatedOrders)
	}

	var orders []models.Order
	if err := db.Order("order_number").Find(&orders).Error; err != nil {
		t.Fatalf("load orders: %v", err)
	}
	if len(orders) != 3 {
		t.Fatalf("got %d orders, want 3", len(orders))
	}
	first := orders[0]
	if first.OrderNumber != "A-1" || first.Version != 1 {
		t.Errorf("order = %s v%d, want A-1 v1", first.OrderNumber, first.Version)
	}
	if first.MatchStatus != models.MatchStatusUnmatched {
		t.Errorf("MatchStatus = %s, want unmatched", first.MatchStatus)
	}
	if first.SourceFileId == nil || *first.SourceFileId != file.ID {
		t.Errorf("SourceFileId = %v, want %d", first.SourceFileId, file.ID)
	}

	var changes []models.OrderChange
	if err := db.Find(&changes).Error; err != nil {
		t.Fatalf("load changes: %v", err)
	}
	if len(changes) != 3 {
		t.Fatalf("got %d change records, want 3", len(changes))
	}
	for _, change := range changes {
		if change.ChangeType != models.ChangeTypeNew {
			t.Errorf("ChangeType = %s, want NEW", change.ChangeType)
		}
	}
}

func TestBatchWriterRecordsFieldUpdates(t *testing.T) {
	db := setupTestDB(t)
	ctx := testContext()
	file := seedFile(t, db, "s-1")

	writer := &ingest.BatchWriter{DB: db, Logger: config.GetLogger()}
	if _, err := writer.ProcessRows(ctx, file, orderRows(t,
		map[string]string{"order_number": "A-1", "machine_code": "VM-7", "price": "12.50", "payment_status": "pending"},
	)); err != nil {
		t.Fatalf("seed run: %v", err)
	}

	second := seedFile(t, db, "s-2")
	result, err := writer.ProcessRows(ctx, second, orderRows(t,
		map[string]string{"order_number": "A-1", "machine_code": "VM-7", "price": "12.50", "payment_status": "completed"},
	))
	if err != nil {
		t.Fatalf("ProcessRows: %v", err)
	}
	if result.NewOrders != 0 || result.UpdatedOrders != 1 {
		t.Fatalf("new/updated = %d/%d, want 0/1", result.NewOrders, result.UpdatedOrders)
	}

	order, err := models.GetOrderByNumber(ctx, "A-1")
	if err != nil {
		t.Fatalf("GetOrderByNumber: %v", err)
	}
	if order.PaymentStatus != "completed" {
		t.Errorf("PaymentStatus = %q, want completed", order.PaymentStatus)
	}
	if order.Version != 2 {
		t.Errorf("Version = %d, want 2", order.Version)
	}
	if order.SourceFileId == nil || *order.SourceFileId != second.ID {
		t.Errorf("SourceFileId = %v, want %d", order.SourceFileId, second.ID)
	}

	updateType := models.ChangeTypeUpdate
	changes, err := models.GetOrderChanges(ctx, order.ID, &updateType)
	if err != nil {
		t.Fatalf("GetOrderChanges: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("got %d UPDATE changes, want 1: %+v", len(changes), changes)
	}
	change := changes[0]
	if change.ColumnName != "payment_status" || change.OldValue != "pending" || change.NewValue != "completed" {
		t.Errorf("change = %s %q -> %q", change.ColumnName, change.OldValue, change.NewValue)
	}
}

func TestBatchWriterIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := testContext()
	file := seedFile(t, db, "s-1")

	rows := func() *stubSource {
		return orderRows(t,
			map[string]string{"order_number": "A-1", "price": "12.50"},
			map[string]string{"order_number": "A-2", "price": "3.00"},
		)
	}

	writer := &ingest.BatchWriter{DB: db, Logger: config.GetLogger()}
	if _, err := writer.ProcessRows(ctx, file, rows()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	result, err := writer.ProcessRows(ctx, file, rows())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if result.NewOrders != 0 || result.UpdatedOrders != 0 {
		t.Errorf("new/updated = %d/%d, want 0/0", result.NewOrders, result.UpdatedOrders)
	}

	var changeCount int64
	if err := db.Model(&models.OrderChange{}).Count(&changeCount).Error; err != nil {
		t.Fatalf("count changes: %v", err)
	}
	if changeCount != 2 {
		t.Errorf("change records = %d, want 2 (the NEW pair only)", changeCount)
	}
}

func TestBatchWriterCollectsRowErrors(t *testing.T) {
	db := setupTestDB(t)
	ctx := testContext()
	file := seedFile(t, db, "s-1")

	writer := &ingest.BatchWriter{DB: db, Logger: config.GetLogger()}
	result, err := writer.ProcessRows(ctx, file, orderRows(t,
		map[string]string{"order_number": "A-1", "price": "5"},
		map[string]string{"price": "7"},
	))
	if err != nil {
		t.Fatalf("ProcessRows: %v", err)
	}
	if result.NewOrders != 1 {
		t.Errorf("NewOrders = %d, want 1", result.NewOrders)
	}
	if len(result.RowErrors) != 1 {
		t.Fatalf("got %d row errors, want 1", len(result.RowErrors))
	}
	if result.RowErrors[0].RowNumber != 2 {
		t.Errorf("RowNumber = %d, want 2", result.RowErrors[0].RowNumber)
	}
}

func TestBatchWriterLastWriteWinsWithinChunk(t *testing.T) {
	db := setupTestDB(t)
	ctx := testContext()
	file := seedFile(t, db, "s-1")

	writer := &ingest.BatchWriter{DB: db, Logger: config.GetLogger()}
	result, err := writer.ProcessRows(ctx, file, orderRows(t,
		map[string]string{"order_number": "A-1", "price": "5.00"},
		map[string]string{"order_number": "A-1", "price": "6.00"},
	))
	if err != nil {
		t.Fatalf("ProcessRows: %v", err)
	}
	if result.NewOrders != 1 {
		t.Errorf("NewOrders = %d, want 1", result.NewOrders)
	}

	order, err := models.GetOrderByNumber(ctx, "A-1")
	if err != nil {
		t.Fatalf("GetOrderByNumber: %v", err)
	}
	if !order.Price.Equal(decimal.RequireFromString("6.00")) {
		t.Errorf("Price = %s, want 6.00 (later row wins)", order.Price)
	}
}

func TestBatchWriterChunking(t *testing.T) {
	db := setupTestDB(t)
	ctx := testContext()
	file := seedFile(t, db, "s-1")

	var totals []int
	writer := &ingest.BatchWriter{
		DB:        db,
		ChunkSize: 2,
		Logger:    config.GetLogger(),
		AfterChunk: func(totalRows int) {
			totals = append(totals, totalRows)
		},
	}
	result, err := writer.ProcessRows(ctx, file, orderRows(t,
		map[string]string{"order_number": "A-1"},
		map[string]string{"order_number": "A-2"},
		map[string]string{"order_number": "A-3"},
		map[string]string{"order_number": "A-4"},
		map[string]string{"order_number": "A-5"},
	))
	if err != nil {
		t.Fatalf("ProcessRows: %v", err)
	}
	if result.NewOrders != 5 {
		t.Errorf("NewOrders = %d, want 5", result.NewOrders)
	}
	if len(totals) != 3 || totals[0] != 2 || totals[1] != 4 || totals[2] != 5 {
		t.Errorf("chunk totals = %v, want [2 4 5]", totals)
	}
}

func TestBatchWriterExactChunkBoundary(t *testing.T) {
	db := setupTestDB(t)
	ctx := testContext()
	file := seedFile(t, db, "s-1")

	var totals []int
	writer := &ingest.BatchWriter{
		DB:        db,
		ChunkSize: 3,
		Logger:    config.GetLogger(),
		AfterChunk: func(totalRows int) {
			totals = append(totals, totalRows)
		},
	}
	result, err := writer.ProcessRows(ctx, file, orderRows(t,
		map[string]string{"order_number": "A-1"},
		map[string]string{"order_number": "A-2"},
		map[string]string{"order_number": "A-3"},
	))
	if err != nil {
		t.Fatalf("ProcessRows: %v", err)
	}
	if result.NewOrders != 3 || result.ProcessedRows != 3 {
		t.Errorf("new/processed = %d/%d, want 3/3", result.NewOrders, result.ProcessedRows)
	}
	// Exactly one chunk when the row count equals the chunk size.
	if len(totals) != 1 || totals[0] != 3 {
		t.Errorf("chunk totals = %v, want [3]", totals)
	}
}

func TestBatchWriterEmptySource(t *testing.T) {
	db := setupTestDB(t)
	ctx := testContext()
	file := seedFile(t, db, "s-1")

	chunks := 0
	writer := &ingest.BatchWriter{
		DB:         db,
		Logger:     config.GetLogger(),
		AfterChunk: func(int) { chunks++ },
	}
	result, err := writer.ProcessRows(ctx, file, &stubSource{})
	if err != nil {
		t.Fatalf("ProcessRows: %v", err)
	}
	if result.TotalRows != 0 || result.ProcessedRows != 0 || result.NewOrders != 0 {
		t.Errorf("result = %+v, want all-zero", result)
	}
	if len(result.RowErrors) != 0 || len(result.ChunkFailures) != 0 {
		t.Errorf("errors = %d/%d, want none", len(result.RowErrors), len(result.ChunkFailures))
	}
	if chunks != 0 {
		t.Errorf("AfterChunk called %d times, want 0", chunks)
	}
}
