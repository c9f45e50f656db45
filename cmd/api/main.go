package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zimi2002/qr-system/internal/auth"
	"github.com/zimi2002/qr-system/internal/config"
	"github.com/zimi2002/qr-system/internal/httpmiddleware"
	"github.com/zimi2002/qr-system/internal/queue"
	"github.com/zimi2002/qr-system/internal/sheets"
	"github.com/zimi2002/qr-system/internal/sheetsync"
	"github.com/zimi2002/qr-system/internal/store"
	"github.com/zimi2002/qr-system/internal/students"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Printf("warning: db not reachable: %v", err)
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "qrsystem:sync-jobs")
	}

	repo := students.NewRepository(db.Client)
	svc := students.NewService(repo, cfg.ScanWindow)
	fetcher := sheets.New(cfg.SheetsAPIKey)
	pipeline := sheetsync.NewPipeline(fetcher, repo, cfg.SyncBatchSize)

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:           24 * time.Hour,
		AllowCredentials: false,
	}))

	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db != nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/devices/register", func(c *gin.Context) {
		var req struct {
			DeviceID string `json:"device_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := repo.UpsertDevice(c.Request.Context(), req.DeviceID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		tokens, err := auth.Issue(req.DeviceID, "scanner", cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}

		_ = repo.SaveRefreshToken(c.Request.Context(), req.DeviceID, tokens.RefreshToken, tokens.RefreshExp)

		c.JSON(http.StatusCreated, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	authGroup := r.Group("/v1", auth.DeviceAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	// Sync pulls the roster sheet into the students table. Synchronous by
	// default; async hands the job to the worker via the queue.
	authGroup.POST("/sync", func(c *gin.Context) {
		var req struct {
			SheetURL  string `json:"sheet_url"`
			SheetID   string `json:"sheet_id"`
			CellRange string `json:"range"`
			Async     bool   `json:"async"`
		}
		// Body is optional: an empty request falls back to SHEET_ID.
		_ = c.ShouldBindJSON(&req)

		sheetID := req.SheetID
		if sheetID == "" && req.SheetURL != "" {
			id, err := sheets.ExtractSheetID(req.SheetURL)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
				return
			}
			sheetID = id
		}
		if sheetID == "" {
			sheetID = cfg.DefaultSheetID
		}
		if sheetID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Missing sheetUrl or sheetId parameter"})
			return
		}

		cellRange := req.CellRange
		if cellRange == "" {
			cellRange = cfg.DefaultRange
		}

		if req.Async {
			msg, err := queue.NewSyncMessage(queue.SyncJob{SheetID: sheetID, CellRange: cellRange})
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
				return
			}
			if err := q.Publish(c.Request.Context(), msg); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "queue publish failed"})
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"success": true, "message": "Sync queued"})
			return
		}

		report, err := pipeline.Run(c.Request.Context(), sheetID, cellRange)
		if err != nil {
			status := http.StatusInternalServerError
			if sheetsync.IsUserError(err) {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	})

	authGroup.GET("/students/:qr_token", func(c *gin.Context) {
		st, err := svc.GetStudent(c.Request.Context(), c.Param("qr_token"))
		if err != nil {
			if errors.Is(err, students.ErrNotFound) {
				c.JSON(http.StatusOK, gin.H{"success": false, "error": "QR token not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": st})
	})

	authGroup.POST("/students/:qr_token/activate", func(c *gin.Context) {
		res, err := svc.Activate(c.Request.Context(), c.Param("qr_token"))
		if err != nil {
			if errors.Is(err, students.ErrNotFound) {
				c.JSON(http.StatusOK, gin.H{"success": false, "error": "QR token not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		resp := gin.H{
			"success":           true,
			"message":           "Student activated successfully",
			"data":              res.Student,
			"is_duplicate_scan": res.IsDuplicateScan,
		}
		if res.PreviousScanTime != nil {
			resp["previous_scan_time"] = *res.PreviousScanTime
		}
		c.JSON(http.StatusOK, resp)
	})

	authGroup.DELETE("/students", func(c *gin.Context) {
		n, err := svc.DeleteAll(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":       true,
			"message":       "All student records deleted successfully",
			"deleted_count": n,
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // synchronous syncs can be slow on big sheets
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
