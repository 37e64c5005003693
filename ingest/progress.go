package ingest

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vhm24r/ledger_backend/config"
	"github.com/vhm24r/ledger_backend/models"
	"gorm.io/gorm"
)

const (
	DefaultProgressInterval = 5000
	progressCacheTTL        = 30 * time.Minute
)

// ProgressSnapshot is the cached view of a running session, cheap enough
// for clients to poll without touching the database.
type ProgressSnapshot struct {
	SessionId      string `json:"sessionId"`
	Status         string `json:"status"`
	TotalFiles     int    `json:"totalFiles"`
	ProcessedFiles int    `json:"processedFiles"`
	TotalRows      int    `json:"totalRows"`
	ProcessedRows  int    `json:"processedRows"`
	UpdatedAt      string `json:"updatedAt"`
}

// ProgressTracker batches counter updates so row-level progress never
// writes the database more than once per interval. File completions and
// terminal flushes always write through.
type ProgressTracker struct {
	DB       *gorm.DB
	Logger   *logrus.Logger
	Interval int

	sessionId  string
	totalFiles int

	mu             sync.Mutex
	processedFiles int
	totalRows      int
	processedRows  int
	sinceFlush     int
}

func NewProgressTracker(db *gorm.DB, logger *logrus.Logger, sessionId string, totalFiles int) *ProgressTracker {
	return &ProgressTracker{
		DB:         db,
		Logger:     logger,
		Interval:   progressIntervalFromEnv(),
		sessionId:  sessionId,
		totalFiles: totalFiles,
	}
}

func progressIntervalFromEnv() int {
	if raw := os.Getenv("INGEST_PROGRESS_INTERVAL"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return DefaultProgressInterval
}

// AddRows reports newly consumed rows for one file. The session row is
// refreshed only when the accumulated delta crosses the interval.
func (t *ProgressTracker) AddRows(ctx context.Context, consumed int) {
	t.mu.Lock()
	t.totalRows += consumed
	t.processedRows += consumed
	t.sinceFlush += consumed
	flush := t.sinceFlush >= t.Interval
	if flush {
		t.sinceFlush = 0
	}
	t.mu.Unlock()

	if flush {
		t.flush(ctx, models.SessionStatusProcessing)
	}
}

// FileDone folds a finished file's final counts into the session. The
// row totals were already accumulated chunk by chunk; only the rows that
// failed mapping or landed in a failed chunk get corrected here.
func (t *ProgressTracker) FileDone(ctx context.Context, result *BatchResult) {
	t.mu.Lock()
	t.processedFiles++
	if result != nil {
		t.processedRows -= result.TotalRows - result.ProcessedRows
	}
	t.sinceFlush = 0
	t.mu.Unlock()

	t.flush(ctx, models.SessionStatusProcessing)
}

// Finish writes the final counters under the given terminal status.
func (t *ProgressTracker) Finish(ctx context.Context, status models.SessionStatus) {
	t.mu.Lock()
	t.sinceFlush = 0
	t.mu.Unlock()
	t.flush(ctx, status)
}

func (t *ProgressTracker) flush(ctx context.Context, status models.SessionStatus) {
	t.mu.Lock()
	snapshot := ProgressSnapshot{
		SessionId:      t.sessionId,
		Status:         string(status),
		TotalFiles:     t.totalFiles,
		ProcessedFiles: t.processedFiles,
		TotalRows:      t.totalRows,
		ProcessedRows:  t.processedRows,
		UpdatedAt:      time.Now().UTC().Format(time.RFC3339),
	}
	t.mu.Unlock()

	err := models.UpdateSessionProgress(ctx, t.DB, t.sessionId, snapshot.ProcessedFiles, snapshot.TotalRows, snapshot.ProcessedRows)
	if err != nil && t.Logger != nil {
		config.LogError(t.Logger, "ingest", "flush", "update session progress", t.sessionId, err)
	}

	if err := config.SetRedisObject(progressCacheKey(t.sessionId), snapshot, progressCacheTTL); err != nil && t.Logger != nil {
		config.LogError(t.Logger, "ingest", "flush", "cache session progress", t.sessionId, err)
	}
}

func progressCacheKey(sessionId string) string {
	return "ingest:progress:" + sessionId
}

// GetProgressSnapshot serves the cached snapshot when present and falls
// back to the session row otherwise.
func GetProgressSnapshot(ctx context.Context, sessionId string) (*ProgressSnapshot, error) {
	var snapshot ProgressSnapshot
	found, err := config.GetRedisObject(progressCacheKey(sessionId), &snapshot)
	if err == nil && found {
		return &snapshot, nil
	}

	session, err := models.GetIngestionSession(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	return &ProgressSnapshot{
		SessionId:      session.SessionId,
		Status:         string(session.Status),
		TotalFiles:     session.TotalFiles,
		ProcessedFiles: session.ProcessedFiles,
		TotalRows:      session.TotalRows,
		ProcessedRows:  session.ProcessedRows,
		UpdatedAt:      session.CreatedAt.UTC().Format(time.RFC3339),
	}, nil
}
