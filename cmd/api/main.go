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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"schoolmarks/internal/auth"
	"schoolmarks/internal/checkin"
	"schoolmarks/internal/config"
	"schoolmarks/internal/httpmiddleware"
	"schoolmarks/internal/importstatus"
	"schoolmarks/internal/scheduler"
	"schoolmarks/internal/store"
	"schoolmarks/internal/totp"
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
		return err
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var sched scheduler.Scheduler
	if cfg.SchedulerBackend == "memory" {
		sched = scheduler.NewInMemory()
	} else {
		sched = scheduler.NewRedisScheduler(redisClient.Client, cfg.SchedulerKey)
	}

	repo := checkin.NewRepository(db.Client)
	gen := totp.New(cfg.TOTPInterval)
	svc := checkin.NewService(repo, gen, sched)
	imports := importstatus.NewStore(redisClient.Client, cfg.ImportStatusTTL)

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

	r.POST("/v1/auth/login", func(c *gin.Context) {
		var req struct {
			Email    string `json:"email" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
			return
		}

		user, err := repo.GetUserByEmail(c.Request.Context(), req.Email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "login failed"})
			return
		}
		if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "invalid credentials"})
			return
		}

		tokens, err := auth.Issue(user.ID, string(user.Role), cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "token issue failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
			"role":          user.Role,
		})
	})

	authGroup := r.Group("/v1", auth.UserAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	authGroup.POST("/checkin-sessions", func(c *gin.Context) {
		var req struct {
			ClassSessionID string    `json:"class_session_id" binding:"required"`
			StartedAt      time.Time `json:"started_at" binding:"required"`
			ClosedAt       time.Time `json:"closed_at" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
			return
		}

		sess, err := svc.OpenSession(c.Request.Context(), actorFrom(c), req.ClassSessionID, req.StartedAt, req.ClosedAt)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, sess)
	})

	authGroup.GET("/checkin-sessions/:id/totp", func(c *gin.Context) {
		token, err := svc.CurrentTOTP(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"totp": token})
	})

	authGroup.POST("/checkin-sessions/:id/attendances", func(c *gin.Context) {
		var req struct {
			TOTPCode string `json:"totp_code"`
		}
		// Missing body is treated as a missing code, not a bind error.
		_ = c.ShouldBindJSON(&req)

		rec, err := svc.Register(c.Request.Context(), actorFrom(c), c.Param("id"), req.TOTPCode)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, rec)
	})

	authGroup.GET("/checkin-sessions/:id/attendances", func(c *gin.Context) {
		recs, err := svc.ListRecords(c.Request.Context(), actorFrom(c), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"attendances": recs})
	})

	authGroup.GET("/imports/:id", func(c *gin.Context) {
		state, err := imports.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, importstatus.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "import not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "import lookup failed"})
			return
		}
		c.JSON(http.StatusOK, state)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
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

// actorFrom rebuilds the actor from the claims the auth middleware parsed.
func actorFrom(c *gin.Context) checkin.Actor {
	claimsAny, _ := c.Get("claims")
	claims, _ := claimsAny.(auth.Claims)
	return checkin.Actor{ID: claims.Subject, Role: checkin.Role(claims.Role)}
}

// respondError maps the domain error taxonomy onto HTTP statuses with the
// standard error envelope.
func respondError(c *gin.Context, err error) {
	var (
		notFound   *checkin.NotFoundError
		validation *checkin.ValidationError
		authz      *checkin.AuthorizationError
		conflict   *checkin.ConflictError
	)
	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": notFound.Msg})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": validation.Msg})
	case errors.As(err, &authz):
		c.JSON(http.StatusForbidden, gin.H{"status": "error", "message": authz.Msg})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"status": "error", "message": conflict.Msg})
	default:
		log.Printf("internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "internal error"})
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
