package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/vhm24r/ledger_backend/config"
	"github.com/vhm24r/ledger_backend/decode"
	"github.com/vhm24r/ledger_backend/models"
	"github.com/vhm24r/ledger_backend/utils"
	"gorm.io/gorm"
)

const (
	DefaultWorkers            = 4
	DefaultDuplicateThreshold = 90

	sessionLockTTL     = 10 * time.Minute
	sessionLockRefresh = 1 * time.Minute
)

// Processor drives one ingestion session: decode every file, reconcile
// rows against the order store, and keep the session counters current.
// Files fan out across a bounded worker pool; chunks within a file stay
// sequential.
type Processor struct {
	DB      *gorm.DB
	Logger  *logrus.Logger
	Workers int
}

func NewProcessor(db *gorm.DB, logger *logrus.Logger) *Processor {
	return &Processor{
		DB:      db,
		Logger:  logger,
		Workers: workersFromEnv(),
	}
}

func workersFromEnv() int {
	if raw := os.Getenv("INGEST_WORKERS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return DefaultWorkers
}

func duplicateThreshold() decimal.Decimal {
	if raw := os.Getenv("DUPLICATE_SKIP_THRESHOLD"); raw != "" {
		if d, err := decimal.NewFromString(raw); err == nil {
			return d
		}
	}
	return decimal.NewFromInt(DefaultDuplicateThreshold)
}

// RunSession processes every file attached to the session. A redis lock
// keeps concurrent runners off the same session; when redis is down the
// lock degrades to a no-op and the session runs unguarded.
func (p *Processor) RunSession(ctx context.Context, sessionId string) error {
	session, err := models.GetIngestionSession(ctx, sessionId)
	if err != nil {
		return &SessionSetupError{SessionId: sessionId, Err: err}
	}
	if session.Status != models.SessionStatusPending {
		return &SessionSetupError{SessionId: sessionId, Err: fmt.Errorf("session is %s, expected %s", session.Status, models.SessionStatusPending)}
	}

	lock, err := p.acquireSessionLock(ctx, sessionId)
	if err != nil {
		return &SessionSetupError{SessionId: sessionId, Err: err}
	}
	if lock != nil {
		defer lock.Release(context.Background())
	}

	files, err := models.GetSessionFiles(ctx, sessionId)
	if err != nil {
		return &SessionSetupError{SessionId: sessionId, Err: err}
	}

	if err := models.UpdateSessionStatus(ctx, p.DB, sessionId, models.SessionStatusProcessing); err != nil {
		return &SessionSetupError{SessionId: sessionId, Err: err}
	}

	tracker := NewProgressTracker(p.DB, p.Logger, sessionId, len(files))

	workers := p.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > len(files) && len(files) > 0 {
		workers = len(files)
	}

	jobs := make(chan *models.UploadedFile)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range jobs {
				p.processFile(ctx, sessionId, file, tracker)
			}
		}()
	}
	for _, file := range files {
		jobs <- file
	}
	close(jobs)
	wg.Wait()

	tracker.Finish(ctx, models.SessionStatusCompleted)
	if err := models.UpdateSessionStatus(ctx, p.DB, sessionId, models.SessionStatusCompleted); err != nil {
		config.LogError(p.Logger, "ingest", "RunSession", "mark session completed", sessionId, err)
		return err
	}

	p.publishSessionEvent(ctx, sessionId)
	return nil
}

func (p *Processor) acquireSessionLock(ctx context.Context, sessionId string) (*redislock.Lock, error) {
	locker := config.GetRedisLock()
	if locker == nil {
		return nil, nil
	}
	lock, err := locker.Obtain(ctx, "ingest:session:"+sessionId, sessionLockTTL, nil)
	if err == redislock.ErrNotObtained {
		return nil, fmt.Errorf("session %s is already being processed", sessionId)
	}
	if err != nil {
		config.LogError(p.Logger, "ingest", "acquireSessionLock", "obtain session lock", sessionId, err)
		return nil, nil
	}
	return lock, nil
}

// processFile runs one file start to finish. Failures are recorded on the
// file and the session error list; they never abort the session.
func (p *Processor) processFile(ctx context.Context, sessionId string, file *models.UploadedFile, tracker *ProgressTracker) {
	if err := models.UpdateFileStatus(ctx, p.DB, file.ID, models.ProcessingStatusProcessing, ""); err != nil {
		config.LogError(p.Logger, "ingest", "processFile", "mark file processing", file.ID, err)
	}

	result, err := p.ingestFile(ctx, file, tracker)
	if err != nil {
		p.failFile(ctx, sessionId, file, err)
		tracker.FileDone(ctx, result)
		return
	}

	if result != nil {
		if err := models.UpdateFileCounts(ctx, p.DB, file.ID, result.TotalRows, result.ProcessedRows, result.NewOrders, result.UpdatedOrders); err != nil {
			config.LogError(p.Logger, "ingest", "processFile", "update file counts", file.ID, err)
		}
		p.recordRowErrors(ctx, sessionId, file, result)
	}

	if err := models.UpdateFileStatus(ctx, p.DB, file.ID, models.ProcessingStatusCompleted, ""); err != nil {
		config.LogError(p.Logger, "ingest", "processFile", "mark file completed", file.ID, err)
	}
	tracker.FileDone(ctx, result)
}

func (p *Processor) ingestFile(ctx context.Context, file *models.UploadedFile, tracker *ProgressTracker) (*BatchResult, error) {
	// Near-identical content was already reconciled by its canonical
	// holder, so re-processing would only replay the same changes.
	if file.DuplicateOfId != nil && file.SimilarityPercent.GreaterThanOrEqual(duplicateThreshold()) {
		p.Logger.WithFields(logrus.Fields{
			"file_id":      file.ID,
			"duplicate_of": *file.DuplicateOfId,
		}).Info("skipping duplicate file content")
		return &BatchResult{}, nil
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

	writer := &BatchWriter{
		DB:        p.DB,
		ChunkSize: chunkSizeFromEnv(),
		Logger:    p.Logger,
	}
	// AfterChunk reports the running total; the tracker takes deltas.
	previous := 0
	writer.AfterChunk = func(totalRows int) {
		tracker.AddRows(ctx, totalRows-previous)
		previous = totalRows
	}

	result, err := writer.ProcessRows(ctx, file, src)
	if err != nil {
		return result, &DecodingError{Filename: file.OriginalName, Err: err}
	}

	metadata, marshalErr := json.Marshal(map[string]interface{}{
		"format":  string(format),
		"columns": result.Columns,
	})
	if marshalErr == nil {
		if err := models.UpdateFileMetadata(ctx, p.DB, file.ID, string(metadata)); err != nil {
			config.LogError(p.Logger, "ingest", "ingestFile", "update file metadata", file.ID, err)
		}
	}
	return result, nil
}

func chunkSizeFromEnv() int {
	if raw := os.Getenv("INGEST_CHUNK_SIZE"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return DefaultChunkSize
}

func (p *Processor) failFile(ctx context.Context, sessionId string, file *models.UploadedFile, cause error) {
	config.LogError(p.Logger, "ingest", "processFile", "process uploaded file", file.OriginalName, cause)
	if err := models.UpdateFileStatus(ctx, p.DB, file.ID, models.ProcessingStatusFailed, cause.Error()); err != nil {
		config.LogError(p.Logger, "ingest", "failFile", "mark file failed", file.ID, err)
	}
	message := fmt.Sprintf("%s: %v", file.OriginalName, cause)
	if err := models.AppendSessionError(ctx, p.DB, sessionId, message); err != nil {
		config.LogError(p.Logger, "ingest", "failFile", "append session error", sessionId, err)
	}
}

func (p *Processor) recordRowErrors(ctx context.Context, sessionId string, file *models.UploadedFile, result *BatchResult) {
	for _, rowErr := range result.RowErrors {
		message := fmt.Sprintf("%s: %v", file.OriginalName, rowErr)
		if err := models.AppendSessionError(ctx, p.DB, sessionId, message); err != nil {
			config.LogError(p.Logger, "ingest", "recordRowErrors", "append session error", sessionId, err)
			return
		}
	}
	for _, failure := range result.ChunkFailures {
		message := fmt.Sprintf("%s: %v", file.OriginalName, failure)
		if err := models.AppendSessionError(ctx, p.DB, sessionId, message); err != nil {
			config.LogError(p.Logger, "ingest", "recordRowErrors", "append session error", sessionId, err)
			return
		}
	}
}

func (p *Processor) publishSessionEvent(ctx context.Context, sessionId string) {
	if !config.PubSubEnabled() {
		return
	}
	session, err := models.GetIngestionSession(ctx, sessionId)
	if err != nil {
		config.LogError(p.Logger, "ingest", "publishSessionEvent", "reload session", sessionId, err)
		return
	}
	evt := config.SessionEvent{
		SessionId:      session.SessionId,
		Status:         string(session.Status),
		TotalFiles:     session.TotalFiles,
		ProcessedFiles: session.ProcessedFiles,
		TotalRows:      session.TotalRows,
		ProcessedRows:  session.ProcessedRows,
		CompletedAt:    time.Now().UTC(),
	}
	if correlationId, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		evt.CorrelationId = correlationId
	}
	if _, err := config.PublishSessionEvent(ctx, evt); err != nil {
		config.LogError(p.Logger, "ingest", "publishSessionEvent", "publish session event", sessionId, err)
	}
}
