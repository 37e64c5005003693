package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/vhm24r/ledger_backend/config"
	"github.com/vhm24r/ledger_backend/utils"
	"gorm.io/gorm"
)

// IngestionSession covers one multi-file upload from validation through
// completion. The session owns the lifecycle of its UploadedFile rows for
// the duration of the run.
type IngestionSession struct {
	ID             int           `gorm:"primary_key" json:"id"`
	SessionId      string        `gorm:"size:36;uniqueIndex;not null" json:"session_id"`
	Status         SessionStatus `gorm:"size:20;not null;default:'PENDING'" json:"status"`
	TotalFiles     int           `gorm:"default:0" json:"total_files"`
	ProcessedFiles int           `gorm:"default:0" json:"processed_files"`
	TotalRows      int           `gorm:"default:0" json:"total_rows"`
	ProcessedRows  int           `gorm:"default:0" json:"processed_rows"`
	Errors         string        `gorm:"type:text" json:"errors"`
	CreatedBy      int           `gorm:"index" json:"created_by"`
	CreatedAt      time.Time     `gorm:"autoCreateTime" json:"created_at"`
	CompletedAt    *time.Time    `json:"completed_at"`
}

func CreateIngestionSession(ctx context.Context, createdBy int, totalFiles int) (*IngestionSession, error) {
	db := config.GetDB()
	session := IngestionSession{
		SessionId:  uuid.NewString(),
		Status:     SessionStatusPending,
		TotalFiles: totalFiles,
		CreatedBy:  createdBy,
	}
	if err := db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func GetIngestionSession(ctx context.Context, sessionId string) (*IngestionSession, error) {
	db := config.GetDB()
	var result IngestionSession
	err := db.WithContext(ctx).Where("session_id = ?", sessionId).First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

func UpdateSessionStatus(ctx context.Context, db *gorm.DB, sessionId string, status SessionStatus) error {
	updates := map[string]interface{}{"status": status}
	if status == SessionStatusCompleted || status == SessionStatusFailed {
		now := time.Now().UTC()
		updates["completed_at"] = &now
	}
	return db.WithContext(ctx).Model(&IngestionSession{}).
		Where("session_id = ?", sessionId).
		Updates(updates).Error
}

// SetSessionTotalFiles corrects the file count when uploads accepted at
// validation time fail to store or register.
func SetSessionTotalFiles(ctx context.Context, db *gorm.DB, sessionId string, totalFiles int) error {
	return db.WithContext(ctx).Model(&IngestionSession{}).
		Where("session_id = ?", sessionId).
		Update("total_files", totalFiles).Error
}

// UpdateSessionProgress refreshes the aggregate counters on the session row.
func UpdateSessionProgress(ctx context.Context, db *gorm.DB, sessionId string, processedFiles, totalRows, processedRows int) error {
	return db.WithContext(ctx).Model(&IngestionSession{}).
		Where("session_id = ?", sessionId).
		Updates(map[string]interface{}{
			"processed_files": processedFiles,
			"total_rows":      totalRows,
			"processed_rows":  processedRows,
		}).Error
}

func AppendSessionError(ctx context.Context, db *gorm.DB, sessionId string, message string) error {
	var session IngestionSession
	if err := db.WithContext(ctx).Where("session_id = ?", sessionId).First(&session).Error; err != nil {
		return err
	}
	combined := message
	if session.Errors != "" {
		combined = session.Errors + "\n" + message
	}
	return db.WithContext(ctx).Model(&IngestionSession{}).
		Where("session_id = ?", sessionId).
		Update("errors", combined).Error
}
