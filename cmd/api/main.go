package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"rollcall/internal/apperr"
	"rollcall/internal/auth"
	"rollcall/internal/checkin"
	"rollcall/internal/config"
	"rollcall/internal/httpmiddleware"
	"rollcall/internal/queue"
	"rollcall/internal/report"
	"rollcall/internal/roster"
	"rollcall/internal/session"
	"rollcall/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	if err := runHTTP(cfg); err != nil {
		logrus.WithError(err).Fatal("http server failed")
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.EnsureSchema(context.Background()); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "rollcall:events")
	}

	rosterRepo := roster.NewRepository(db.Client)
	sessionRepo := session.NewRepository(db.Client)
	ledgerRepo := checkin.NewRepository(db.Client)

	rosters := roster.NewService(rosterRepo)
	sessions := session.NewService(sessionRepo, rosterRepo, cfg.TokenTTL)
	checkins := checkin.NewService(sessionRepo, rosterRepo, ledgerRepo, cfg.OnTimeMinutes)
	reports := report.NewService(rosterRepo, sessionRepo, ledgerRepo, redisClient, cfg.ReportCacheTTL)

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

	// Dev-grade registration: creates the user (or finds them by email) and
	// issues a token pair. Identity federation lives outside this service.
	r.POST("/v1/auth/register", func(c *gin.Context) {
		var req struct {
			FullName string `json:"fullName" binding:"required"`
			Email    string `json:"email" binding:"required,email"`
			Role     string `json:"role" binding:"required,oneof=teacher student"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		user, err := rosterRepo.UserByEmail(c.Request.Context(), req.Email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
			return
		}
		if user == nil {
			created, err := rosterRepo.CreateUser(c.Request.Context(), req.FullName, req.Email, req.Role)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
				return
			}
			user = &created
		} else if user.Role != req.Role {
			c.JSON(http.StatusConflict, gin.H{"error": "email registered with a different role"})
			return
		}

		tokens, err := auth.Issue(user.ID, user.Role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"user":          user,
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	authed := r.Group("/v1", auth.UserAuth(cfg.JWTSigningKey, cfg.JWTIssuer))
	teacher := authed.Group("/teacher", auth.RequireRole(auth.RoleTeacher))
	student := authed.Group("/student", auth.RequireRole(auth.RoleStudent))

	teacher.GET("/classes", func(c *gin.Context) {
		classes, err := rosters.MyClasses(c.Request.Context(), auth.UserID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"classes": classes})
	})

	teacher.POST("/classes", func(c *gin.Context) {
		var req struct {
			ClassName string `json:"className" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cls, err := rosters.CreateClass(c.Request.Context(), auth.UserID(c), req.ClassName)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, cls)
	})

	teacher.GET("/classes/:classId/members", func(c *gin.Context) {
		members, err := rosters.Members(c.Request.Context(), c.Param("classId"), auth.UserID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"members": members})
	})

	teacher.DELETE("/classes/:classId/members/:memberId", func(c *gin.Context) {
		err := rosters.RemoveMember(c.Request.Context(), c.Param("classId"), c.Param("memberId"), auth.UserID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "removed"})
	})

	teacher.POST("/classes/:classId/sessions", func(c *gin.Context) {
		var req struct {
			Title       string    `json:"title" binding:"required"`
			ScheduledAt time.Time `json:"scheduledAt" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sess, err := sessions.Create(c.Request.Context(), c.Param("classId"), auth.UserID(c), req.Title, req.ScheduledAt)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, sess)
	})

	teacher.GET("/classes/:classId/sessions", func(c *gin.Context) {
		list, err := sessions.List(c.Request.Context(), c.Param("classId"), auth.UserID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": list})
	})

	teacher.POST("/sessions/:sessionId/open", func(c *gin.Context) {
		var req struct {
			AnchorLat *float64 `json:"anchorLat"`
			AnchorLng *float64 `json:"anchorLng"`
		}
		// An empty body means open without geofencing.
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var anchor *session.LatLng
		if req.AnchorLat != nil && req.AnchorLng != nil {
			anchor = &session.LatLng{Lat: *req.AnchorLat, Lng: *req.AnchorLng}
		}
		res, err := sessions.Open(c.Request.Context(), c.Param("sessionId"), auth.UserID(c), anchor)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	})

	teacher.POST("/sessions/:sessionId/close", func(c *gin.Context) {
		sess, err := sessions.Close(c.Request.Context(), c.Param("sessionId"), auth.UserID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, sess)
	})

	teacher.GET("/sessions/:sessionId/attendance", func(c *gin.Context) {
		rows, err := checkins.SessionAttendance(c.Request.Context(), c.Param("sessionId"), auth.UserID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"attendance": rows})
	})

	teacher.POST("/sessions/:sessionId/manual", func(c *gin.Context) {
		var req struct {
			StudentID string `json:"studentId" binding:"required"`
			Note      string `json:"note"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rec, already, err := checkins.ManualCheckIn(c.Request.Context(), c.Param("sessionId"), auth.UserID(c), req.StudentID, req.Note)
		if err != nil {
			writeError(c, err)
			return
		}
		if !already {
			publishCheckin(c.Request.Context(), q, sessionRepo, rec)
		}
		c.JSON(http.StatusOK, gin.H{"attendance": rec, "alreadyCheckedIn": already})
	})

	teacher.GET("/classes/:classId/report", func(c *gin.Context) {
		rep, err := reports.ForClass(c.Request.Context(), c.Param("classId"), auth.UserID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, rep)
	})

	student.GET("/classes", func(c *gin.Context) {
		classes, err := rosters.JoinedClasses(c.Request.Context(), auth.UserID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"classes": classes})
	})

	student.POST("/classes/join", func(c *gin.Context) {
		var req struct {
			ClassCode string `json:"classCode" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		outcome, err := rosters.Join(c.Request.Context(), auth.UserID(c), req.ClassCode)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, outcome)
	})

	student.POST("/checkins", func(c *gin.Context) {
		var req struct {
			SessionID    string   `json:"sessionId" binding:"required"`
			CheckinToken string   `json:"checkinToken" binding:"required"`
			Lat          *float64 `json:"lat" binding:"required"`
			Lng          *float64 `json:"lng" binding:"required"`
			PhotoRef     *string  `json:"photoRef"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.PhotoRef != nil && strings.HasPrefix(*req.PhotoRef, "data:") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "photoRef must be an uploaded reference, not inline data"})
			return
		}

		attempt := checkin.CheckInRequest{
			SessionID: req.SessionID,
			Token:     req.CheckinToken,
			StudentID: auth.UserID(c),
			Lat:       *req.Lat,
			Lng:       *req.Lng,
			PhotoRef:  req.PhotoRef,
		}
		rec, err := checkins.CheckIn(c.Request.Context(), attempt)
		if apperr.KindOf(err) == apperr.KindInternal {
			// One retry on storage contention; the unique constraint makes
			// the insert safe to repeat.
			rec, err = checkins.CheckIn(c.Request.Context(), attempt)
		}
		if err != nil {
			writeError(c, err)
			return
		}

		publishCheckin(c.Request.Context(), q, sessionRepo, rec)
		c.JSON(http.StatusCreated, gin.H{"message": "check-in success", "attendance": rec})
	})

	student.GET("/classes/:classId/attendance", func(c *gin.Context) {
		records, err := reports.StudentHistory(c.Request.Context(), c.Param("classId"), auth.UserID(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"attendance": records})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.WithField("port", cfg.HTTPPort).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("server forced shutdown")
	}

	logrus.Info("server exited")
	return nil
}

// publishCheckin emits the event the worker uses for cache invalidation.
// Publish failures are logged, never surfaced to the student.
func publishCheckin(ctx context.Context, q queue.Queue, sessions *session.Repository, rec checkin.Record) {
	sess, err := sessions.Get(ctx, rec.SessionID)
	if err != nil || sess == nil {
		logrus.WithError(err).WithField("session_id", rec.SessionID).Warn("event session lookup failed")
		return
	}
	msg, err := queue.NewCheckinMessage(queue.CheckinEvent{
		RecordID:  rec.ID,
		SessionID: rec.SessionID,
		ClassID:   sess.ClassID,
		StudentID: rec.StudentID,
		Status:    string(rec.Status),
		At:        rec.CheckInTime,
	})
	if err == nil {
		err = q.Publish(ctx, msg)
	}
	if err != nil {
		logrus.WithError(err).Warn("queue publish failed")
	}
}

func writeError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		logrus.WithError(err).Error("unhandled error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	body := gin.H{"error": appErr.Message, "kind": string(appErr.Kind)}
	if appErr.Details != nil {
		body["details"] = appErr.Details
	}
	c.JSON(statusFor(appErr.Kind), body)
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden, apperr.KindNotAMember:
		return http.StatusForbidden
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindInvalidState, apperr.KindInvalidToken, apperr.KindTokenExpired,
		apperr.KindTooFar, apperr.KindDuplicateCheckIn:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
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

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
