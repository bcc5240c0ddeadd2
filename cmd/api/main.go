package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"hallpass/internal/auth"
	"hallpass/internal/config"
	"hallpass/internal/httpmiddleware"
	"hallpass/internal/ledger"
	"hallpass/internal/logging"
	"hallpass/internal/metrics"
	"hallpass/internal/period"
	"hallpass/internal/queue"
	"hallpass/internal/quota"
	"hallpass/internal/roster"
	"hallpass/internal/signout"
	"hallpass/internal/station"
	"hallpass/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, logger *zap.Logger) error {
	// Store init is the one fatal condition: without it nothing works.
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database unreachable, restart once it is back", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		logger.Fatal("schema migration failed", zap.Error(err))
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "hallpass:events")
	}

	rosterRepo := roster.NewRepository(db.Client)
	ledgerRepo := ledger.NewRepository(db.Client)
	stationRepo := station.NewRepository(db.Client)

	manager := roster.NewManager(rosterRepo, logger)
	policy := quota.NewPolicy(ledgerRepo, cfg.MonitoredDest, cfg.QuotaThreshold)
	machine := signout.NewMachine(rosterRepo, ledgerRepo, policy, cfg.OverridePIN, logger)

	publish := func(ctx context.Context, entry ledger.Entry) {
		if err := q.Publish(ctx, queue.Message{Type: entry.Type, Body: []byte(entry.ID)}); err != nil {
			logger.Warn("queue publish failed", zap.Error(err))
		}
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/stations/register", func(c *gin.Context) {
		var req struct {
			StationID string `json:"station_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := stationRepo.Upsert(c.Request.Context(), req.StationID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
			return
		}

		tokens, err := auth.Issue(req.StationID, auth.RoleStation, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		_ = stationRepo.SaveRefreshToken(c.Request.Context(), req.StationID, tokens.RefreshToken, tokens.RefreshExp)

		c.JSON(http.StatusCreated, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	r.POST("/v1/tokens/refresh", func(c *gin.Context) {
		var req struct {
			RefreshToken string `json:"refresh_token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		stationID, err := stationRepo.ValidateRefreshToken(c.Request.Context(), req.RefreshToken)
		if err != nil {
			if errors.Is(err, station.ErrTokenInvalid) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		tokens, err := auth.Issue(stationID, auth.RoleStation, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		_ = stationRepo.RevokeRefreshToken(c.Request.Context(), req.RefreshToken)
		_ = stationRepo.SaveRefreshToken(c.Request.Context(), stationID, tokens.RefreshToken, tokens.RefreshExp)

		c.JSON(http.StatusOK, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	// Admin authority is a role claim scoped to the issued token.
	r.POST("/v1/admin/login", func(c *gin.Context) {
		var req struct {
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Password != cfg.AdminPassword {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect password"})
			return
		}
		tokens, err := auth.Issue("admin", auth.RoleAdmin, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"access_token": tokens.AccessToken,
			"expires_at":   tokens.AccessExp.Unix(),
		})
	})

	authGroup := r.Group("/v1", auth.StationAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	authGroup.GET("/students", func(c *gin.Context) {
		students, err := rosterRepo.GetAll(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		sort.Slice(students, func(i, j int) bool { return students[i].Name < students[j].Name })
		c.JSON(http.StatusOK, gin.H{"students": students})
	})

	authGroup.POST("/students", func(c *gin.Context) {
		var req struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			StudentID string `json:"student_id"`
			Grade     string `json:"grade"`
			Gender    string `json:"gender"`
			Course    string `json:"course"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		student, err := manager.CreateOrUpdate(c.Request.Context(), roster.Fields{
			ID: req.ID, Name: req.Name, StudentID: req.StudentID,
			Grade: req.Grade, Gender: req.Gender, Course: req.Course,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		status := http.StatusOK
		if req.ID == "" {
			status = http.StatusCreated
		}
		c.JSON(status, student)
	})

	authGroup.DELETE("/students/:id", auth.RequireAdmin(), func(c *gin.Context) {
		if err := manager.Delete(c.Request.Context(), c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	authGroup.POST("/students/import", func(c *gin.Context) {
		var req struct {
			Rows    [][]string `json:"rows" binding:"required"`
			Skip    *int       `json:"skip"`
			Mapping *struct {
				Name      *int `json:"name"`
				StudentID *int `json:"student_id"`
				Grade     *int `json:"grade"`
				Gender    *int `json:"gender"`
				Course    *int `json:"course"`
			} `json:"mapping"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		skip := 1
		if req.Skip != nil {
			skip = *req.Skip
		}

		var mapping roster.ColumnMapping
		if req.Mapping != nil {
			mapping = roster.ColumnMapping{
				Name:      idxOrUnset(req.Mapping.Name),
				StudentID: idxOrUnset(req.Mapping.StudentID),
				Grade:     idxOrUnset(req.Mapping.Grade),
				Gender:    idxOrUnset(req.Mapping.Gender),
				Course:    idxOrUnset(req.Mapping.Course),
			}
		} else if len(req.Rows) > 0 {
			mapping = roster.DetectColumns(req.Rows[0])
		}

		result, err := manager.BulkImport(c.Request.Context(), req.Rows, mapping, skip)
		if err != nil {
			respondError(c, err)
			return
		}
		metrics.ImportedStudents.Add(float64(result.Imported))
		c.JSON(http.StatusOK, result)
	})

	respondSignoutResult := func(c *gin.Context, res signout.Result) {
		if res.OverrideRequired {
			metrics.QuotaBlocks.Inc()
			c.JSON(http.StatusConflict, gin.H{
				"status":       "override_required",
				"student":      res.Student,
				"pass_count":   res.Decision.Count,
				"period":       res.Decision.Period.Label,
				"period_start": res.Decision.Period.Start,
				"period_end":   res.Decision.Period.End,
			})
			return
		}
		metrics.SignOuts.WithLabelValues(res.Entry.Destination, strconv.FormatBool(res.Entry.Override)).Inc()
		publish(c.Request.Context(), res.Entry)
		c.JSON(http.StatusOK, gin.H{"status": "signed_out", "student": res.Student, "entry": res.Entry})
	}

	authGroup.POST("/signouts", func(c *gin.Context) {
		var req struct {
			StudentID   string `json:"student_id" binding:"required"`
			Destination string `json:"destination"`
			Reason      string `json:"reason"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.Destination == "" {
			req.Destination = cfg.MonitoredDest
		}

		res, err := machine.SignOut(c.Request.Context(), req.StudentID, req.Destination, req.Reason)
		if err != nil {
			respondError(c, err)
			return
		}
		respondSignoutResult(c, res)
	})

	authGroup.POST("/signouts/override", func(c *gin.Context) {
		var req struct {
			PIN string `json:"pin" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		res, err := machine.ConfirmOverride(c.Request.Context(), req.PIN)
		if err != nil {
			respondError(c, err)
			return
		}
		metrics.SignOuts.WithLabelValues(res.Entry.Destination, "true").Inc()
		publish(c.Request.Context(), res.Entry)
		c.JSON(http.StatusOK, gin.H{"status": "signed_out", "student": res.Student, "entry": res.Entry})
	})

	authGroup.POST("/signouts/override/cancel", func(c *gin.Context) {
		machine.CancelOverride()
		c.Status(http.StatusNoContent)
	})

	authGroup.POST("/signins", func(c *gin.Context) {
		var req struct {
			StudentID string `json:"student_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		res, err := machine.SignIn(c.Request.Context(), req.StudentID)
		if err != nil {
			respondError(c, err)
			return
		}
		metrics.SignIns.Inc()
		publish(c.Request.Context(), res.Entry)
		c.JSON(http.StatusOK, gin.H{"status": "signed_in", "student": res.Student, "entry": res.Entry})
	})

	authGroup.GET("/signouts/active", func(c *gin.Context) {
		students, err := rosterRepo.GetActiveSignouts(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		sort.Slice(students, func(i, j int) bool { return students[i].Name < students[j].Name })
		c.JSON(http.StatusOK, gin.H{"students": students})
	})

	authGroup.GET("/ledger", func(c *gin.Context) {
		limit := 10
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				limit = parsed
			}
		}
		entries, err := ledgerRepo.Recent(c.Request.Context(), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"entries": entries})
	})

	authGroup.GET("/activity", func(c *gin.Context) {
		limit := int64(20)
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		raw, err := redisClient.RecentActivity(c.Request.Context(), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		events := make([]json.RawMessage, 0, len(raw))
		for _, item := range raw {
			events = append(events, json.RawMessage(item))
		}
		c.JSON(http.StatusOK, gin.H{"events": events})
	})

	authGroup.GET("/stats", func(c *gin.Context) {
		students, err := rosterRepo.GetAll(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		signedOut, monitoredOut := 0, 0
		for _, s := range students {
			if !s.IsSignedOut {
				continue
			}
			signedOut++
			if s.SignOutDestination != nil && *s.SignOutDestination == cfg.MonitoredDest {
				monitoredOut++
			}
		}
		pd := period.Current(time.Now())
		c.JSON(http.StatusOK, gin.H{
			"total_students": len(students),
			"signed_out":     signedOut,
			"monitored_out":  monitoredOut,
			"period": gin.H{
				"label": pd.Label,
				"start": pd.Start,
				"end":   pd.End,
			},
		})
	})

	// Scan input: a badge scanner resolves a natural id. "select" mode just
	// returns the student; "toggle" mode drives the transition directly.
	authGroup.POST("/scan", func(c *gin.Context) {
		var req struct {
			Code string `json:"code" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		student, err := rosterRepo.GetByStudentID(c.Request.Context(), strings.TrimSpace(req.Code))
		if err != nil {
			respondError(c, err)
			return
		}

		if cfg.ScannerMode != "toggle" {
			c.JSON(http.StatusOK, gin.H{"status": "selected", "student": student})
			return
		}

		if student.IsSignedOut {
			res, err := machine.SignIn(c.Request.Context(), student.StudentID)
			if err != nil {
				respondError(c, err)
				return
			}
			metrics.SignIns.Inc()
			publish(c.Request.Context(), res.Entry)
			c.JSON(http.StatusOK, gin.H{"status": "signed_in", "student": res.Student, "entry": res.Entry})
			return
		}

		res, err := machine.SignOut(c.Request.Context(), student.StudentID, cfg.ScannerDest, "")
		if err != nil {
			respondError(c, err)
			return
		}
		respondSignoutResult(c, res)
	})

	authGroup.POST("/admin/reset", auth.RequireAdmin(), func(c *gin.Context) {
		if err := db.ResetAll(c.Request.Context()); err != nil {
			respondError(c, err)
			return
		}
		logger.Warn("all collections wiped by admin")
		c.Status(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", zap.Error(err))
	}

	logger.Info("server exited")
	return nil
}

// respondError maps the domain error taxonomy onto HTTP statuses. Storage
// failures land on 500; everything else is a caller problem.
func respondError(c *gin.Context, err error) {
	var verr *roster.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "missing": verr.Missing})
	case errors.Is(err, roster.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, roster.ErrDuplicateID):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, signout.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, signout.ErrNoPendingOverride):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, signout.ErrPinMismatch):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect PIN, try again or cancel"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func idxOrUnset(v *int) int {
	if v == nil {
		return -1
	}
	return *v
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
