package main

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/vhm24r/ledger_backend/config"
	"github.com/vhm24r/ledger_backend/decode"
	"github.com/vhm24r/ledger_backend/ingest"
	"github.com/vhm24r/ledger_backend/models"
	"github.com/vhm24r/ledger_backend/utils"
)

type uploadFileResult struct {
	Filename          string `json:"filename"`
	Accepted          bool   `json:"accepted"`
	Reason            string `json:"reason,omitempty"`
	FileId            int    `json:"fileId,omitempty"`
	DetectedFormat    string `json:"detectedFormat,omitempty"`
	SimilarityPercent string `json:"similarityPercent,omitempty"`
	DuplicateOfId     *int   `json:"duplicateOfId,omitempty"`
}

type uploadResponse struct {
	SessionId string             `json:"sessionId"`
	Files     []uploadFileResult `json:"files"`
}

// uploadHandler accepts a multipart batch under the "files" field, stores
// every accepted file, and dispatches the ingestion session in the
// background. Rejected files are reported per file; one bad file never
// blocks the rest of the batch.
func uploadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		ctx := c.Request.Context()

		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
			return
		}
		uploads := form.File["files"]
		if len(uploads) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no files provided"})
			return
		}

		db := config.GetDB()
		userId, _ := utils.GetUserIdFromContext(ctx)

		results := make([]uploadFileResult, 0, len(uploads))
		accepted := 0
		for _, header := range uploads {
			if err := ingest.ValidateFile(header.Filename, header.Size); err != nil {
				results = append(results, uploadFileResult{Filename: header.Filename, Reason: err.Error()})
				continue
			}
			results = append(results, uploadFileResult{Filename: header.Filename, Accepted: true})
			accepted++
		}
		if accepted == 0 {
			c.JSON(http.StatusBadRequest, uploadResponse{Files: results})
			return
		}

		session, err := models.CreateIngestionSession(ctx, userId, accepted)
		if err != nil {
			config.LogError(logger, "uploads.go", "uploadHandler", "create ingestion session", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
			return
		}

		stored := 0
		for i, header := range uploads {
			if !results[i].Accepted {
				continue
			}

			src, err := header.Open()
			if err != nil {
				rejectUpload(&results[i], "failed to read upload")
				continue
			}
			data, err := io.ReadAll(src)
			src.Close()
			if err != nil {
				rejectUpload(&results[i], "failed to read upload")
				continue
			}

			format, err := decode.DetectFormat(header.Filename, data)
			if err != nil {
				rejectUpload(&results[i], err.Error())
				continue
			}

			hash, canonical, err := models.IdentifyContent(ctx, db, data)
			if err != nil {
				config.LogError(logger, "uploads.go", "uploadHandler", "identify content", header.Filename, err)
				rejectUpload(&results[i], "failed to check for duplicates")
				continue
			}

			storageName := utils.StorageName(header.Filename)
			storagePath, err := utils.SaveUpload(ctx, storageName, data)
			if err != nil {
				config.LogError(logger, "uploads.go", "uploadHandler", "save upload", header.Filename, err)
				rejectUpload(&results[i], "failed to store upload")
				continue
			}

			file := &models.UploadedFile{
				SessionId:      session.SessionId,
				Filename:       storageName,
				OriginalName:   header.Filename,
				StoragePath:    storagePath,
				ContentHash:    hash,
				ByteSize:       int64(len(data)),
				DetectedFormat: string(format),
				UploadedBy:     userId,
			}
			// Byte-identical content scores 100, anything else 0.
			if canonical != nil {
				file.SimilarityPercent = decimal.NewFromInt(100)
				file.DuplicateOfId = &canonical.ID
			}

			created, err := models.CreateUploadedFile(ctx, file)
			if err != nil {
				config.LogError(logger, "uploads.go", "uploadHandler", "create uploaded file", header.Filename, err)
				rejectUpload(&results[i], "failed to register upload")
				continue
			}

			results[i].FileId = created.ID
			results[i].DetectedFormat = string(format)
			results[i].SimilarityPercent = created.SimilarityPercent.StringFixed(2)
			results[i].DuplicateOfId = created.DuplicateOfId
			stored++
		}

		// Files rejected while storing must not inflate the session's file
		// count, or a finished session would read as incomplete.
		if stored < accepted {
			if err := models.SetSessionTotalFiles(ctx, db, session.SessionId, stored); err != nil {
				config.LogError(logger, "uploads.go", "uploadHandler", "adjust session total files", session.SessionId, err)
			}
		}
		if stored == 0 {
			if err := models.UpdateSessionStatus(ctx, db, session.SessionId, models.SessionStatusCompleted); err != nil {
				config.LogError(logger, "uploads.go", "uploadHandler", "complete empty session", session.SessionId, err)
			}
			c.JSON(http.StatusAccepted, uploadResponse{SessionId: session.SessionId, Files: results})
			return
		}

		bgCtx := detachRequestContext(ctx)
		go func() {
			processor := ingest.NewProcessor(config.GetDB(), config.GetLogger())
			if err := processor.RunSession(bgCtx, session.SessionId); err != nil {
				config.LogError(config.GetLogger(), "uploads.go", "uploadHandler", "run session", session.SessionId, err)
			}
		}()

		c.JSON(http.StatusAccepted, uploadResponse{SessionId: session.SessionId, Files: results})
	}
}

func rejectUpload(result *uploadFileResult, reason string) {
	result.Accepted = false
	result.Reason = reason
}
