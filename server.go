package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vhm24r/ledger_backend/config"
	"github.com/vhm24r/ledger_backend/ingest"
	"github.com/vhm24r/ledger_backend/models"
	"github.com/vhm24r/ledger_backend/utils"
)

const defaultPort = "8080"

func sessionStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionId := c.Param("sessionId")
		snapshot, err := ingest.GetProgressSnapshot(c.Request.Context(), sessionId)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
				return
			}
			config.LogError(config.GetLogger(), "server.go", "sessionStatusHandler", "load session progress", sessionId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
			return
		}
		c.JSON(http.StatusOK, snapshot)
	}
}

func sessionFilesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionId := c.Param("sessionId")
		files, err := models.GetSessionFiles(c.Request.Context(), sessionId)
		if err != nil {
			config.LogError(config.GetLogger(), "server.go", "sessionFilesHandler", "load session files", sessionId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session files"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"files": files})
	}
}

// sessionRunHandler re-dispatches a PENDING session. Uploads normally
// dispatch themselves; this covers sessions whose runner died before
// starting.
func sessionRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionId := c.Param("sessionId")
		ctx := detachRequestContext(c.Request.Context())
		go func() {
			processor := ingest.NewProcessor(config.GetDB(), config.GetLogger())
			if err := processor.RunSession(ctx, sessionId); err != nil {
				config.LogError(config.GetLogger(), "server.go", "sessionRunHandler", "run session", sessionId, err)
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{"session_id": sessionId, "status": "dispatched"})
	}
}

// detachRequestContext carries request identity into a background context
// that outlives the HTTP request.
func detachRequestContext(ctx context.Context) context.Context {
	detached := context.Background()
	if userId, ok := utils.GetUserIdFromContext(ctx); ok {
		detached = utils.SetUserIdInContext(detached, userId)
	}
	if userName, ok := utils.GetUserNameFromContext(ctx); ok {
		detached = utils.SetUserNameInContext(detached, userName)
	}
	if correlationId, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		detached = utils.SetCorrelationIdInContext(detached, correlationId)
	}
	return detached
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, we return 503 for app endpoints.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow Cloud Run startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate critical endpoints on dependency readiness.
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production, require explicit allowlist via CORS_ALLOWED_ORIGINS
	// (comma-separated). In non-production, allow all.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/api/v1/uploads", uploadHandler())
	r.GET("/api/v1/sessions/:sessionId", sessionStatusHandler())
	r.GET("/api/v1/sessions/:sessionId/files", sessionFilesHandler())
	r.POST("/api/v1/sessions/:sessionId/run", sessionRunHandler())
	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables. Allow disabling migrations
	// on startup (run them as a separate job instead).
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port, "/")
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}
