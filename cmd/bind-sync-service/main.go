package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/bindsync_backend/bindsync"
	"bitbucket.org/mmdatafocus/bindsync_backend/config"
	"bitbucket.org/mmdatafocus/bindsync_backend/models"
	"bitbucket.org/mmdatafocus/bindsync_backend/smartsheet"
	"bitbucket.org/mmdatafocus/bindsync_backend/utils"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("BIND_SYNC_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	token := config.SmartsheetToken()
	if token == "" {
		logger.Fatal("SMARTSHEET_TOKEN is not set")
	}
	if config.ConfigSheetID() == 0 {
		logger.Warn("SMARTSHEET_CONFIG_ID not set; /api/bind/* will fail")
	}

	sheets, err := smartsheet.NewClient(token, logger)
	if err != nil {
		logger.Fatal(err.Error())
	}
	svc := bindsync.NewService(sheets, logger)

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	corsConfig := cors.DefaultConfig()
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
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")

	r.Use(cors.New(corsConfig))
	r.Use(requestLogger(logger))
	r.Use(gin.Recovery())

	// API endpoints (Bind sync)
	r.GET("/api/sheet/:sheetId", bindsync.SheetHandler(svc))
	r.GET("/api/bind/config", bindsync.ConfigHandler(svc))
	r.GET("/api/bind/invoices", bindsync.InvoicesHandler(svc))
	r.GET("/api/bind/invoices/:accountId", bindsync.InvoicesHandler(svc))
	r.POST("/api/bind/push", bindsync.PushHandler(svc))
	r.GET("/api/bind/sync-runs", bindsync.SyncRunsHandler())
	r.GET("/api/bind/sync-runs/:id", bindsync.SyncRunDetailHandler())

	// Pub/Sub push endpoint for async cycles.
	r.POST("/pubsub/bind-sync", bindsync.PubSubPushHandler(svc))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	if strings.TrimSpace(os.Getenv("DB_HOST")) != "" {
		config.ConnectDatabaseWithRetry()
		models.MigrateTable()
	} else {
		logger.Warn("DB_HOST not set; run history disabled")
	}
	if strings.TrimSpace(os.Getenv("REDIS_ADDRESS")) != "" {
		config.ConnectRedisWithRetry()
	} else {
		logger.Warn("REDIS_ADDRESS not set; per-account leases disabled")
	}

	db := config.GetDB()
	if db != nil {
		if sqlDB, _ := db.DB(); sqlDB != nil {
			defer sqlDB.Close()
		}
	}

	var wg sync.WaitGroup
	if config.JobEnabled() {
		logger.Info("scheduler enabled (HABILITAR_JOB=1)")
		scheduler := bindsync.NewScheduler(svc, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			scheduler.Run(sigCtx)
		}()
	} else {
		logger.Info("scheduler disabled (HABILITAR_JOB=0)")
	}

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
		stopSignals()
	}
	wg.Wait()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		logger.WithFields(logrus.Fields{
			"status":         c.Writer.Status(),
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"latency":        latency.String(),
			"correlation_id": cid,
		}).Info("request")
	}
}
