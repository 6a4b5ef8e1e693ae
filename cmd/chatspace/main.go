package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/chatspace/chatspace/internal/auth"
	"github.com/chatspace/chatspace/internal/friends"
	"github.com/chatspace/chatspace/internal/handlers"
	"github.com/chatspace/chatspace/internal/push"
	"github.com/chatspace/chatspace/internal/store"
	"github.com/chatspace/chatspace/internal/ws"
	"github.com/chatspace/chatspace/pkg/config"
	"github.com/chatspace/chatspace/pkg/logger"
)

func main() {
	cfg := config.Load()

	logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		JSONOutput: cfg.Environment == "production",
	})

	if len(os.Args) > 1 {
		if err := runCommand(cfg, os.Args[1:]); err != nil {
			logger.Fatal().Err(err).Msg("command failed")
		}
		return
	}

	if err := runServer(cfg); err != nil {
		logger.Fatal().Err(err).Msg("failed to start server")
	}
}

func runCommand(cfg *config.Config, args []string) error {
	switch args[0] {
	case "status":
		return runStatus(cfg, os.Stdout, args[1:])
	case "-h", "--help", "help":
		printUsage(os.Stdout)
		return nil
	default:
		printUsage(os.Stderr)
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func printUsage(out *os.File) {
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  chatspace           Start the chat server")
	fmt.Fprintln(out, "  chatspace status    Show application statistics")
	fmt.Fprintln(out, "  chatspace status --json")
}

// openStore picks the backend once for the process lifetime. If the
// durable store cannot be opened the server degrades to in-memory
// storage and stays there; there is no background reconnect.
func openStore(cfg *config.Config) store.Store {
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		logger.Warn().Err(err).Str("path", cfg.DatabasePath).
			Msg("durable store unavailable, running on in-memory storage for this process lifetime")
		return store.NewMemoryStore()
	}
	st, err := store.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.DatabasePath).
			Msg("durable store unavailable, running on in-memory storage for this process lifetime")
		return store.NewMemoryStore()
	}
	logger.Info().Str("path", cfg.DatabasePath).Msg("sqlite store opened")
	return st
}

func rateLimitMiddleware(limiterInstance *limiter.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		limiterContext, err := limiterInstance.Get(c.Request.Context(), c.ClientIP())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "rate limiter error"})
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", limiterContext.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", limiterContext.Remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", limiterContext.Reset))

		if limiterContext.Reached {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"message": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func panicRecovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("ip", c.ClientIP()).
			Interface("panic", recovered).
			Msg("panic recovered")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
	})
}

func corsMiddleware(origins string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origins)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func runServer(cfg *config.Config) error {
	if err := os.MkdirAll(cfg.FileStoragePath, 0o755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	st := openStore(cfg)
	defer st.Close()

	authSvc := auth.New(st, cfg.JWTSecret, cfg.GoogleClientID)
	gate := friends.NewService(st)
	notifier := push.NewNotifier(st, cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject)

	hub := ws.NewHub(st)
	go hub.Run()

	authHandler := handlers.NewAuthHandler(authSvc)
	userHandler := handlers.NewUserHandler(st)
	msgHandler := handlers.NewMessageHandler(st, gate, hub, notifier)
	friendHandler := handlers.NewFriendHandler(st, gate, hub)
	fileHandler := handlers.NewFileHandler(st, cfg.FileStoragePath, cfg.MaxUploadSize)
	pushHandler := handlers.NewPushHandler(st, notifier)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(panicRecovery())
	router.Use(corsMiddleware(cfg.CORSOrigins))
	router.MaxMultipartMemory = cfg.MaxUploadSize

	api := router.Group("/api")
	{
		loginLimiter := limiter.New(memory.NewStore(), limiter.Rate{Period: time.Minute, Limit: 5})
		registerLimiter := limiter.New(memory.NewStore(), limiter.Rate{Period: time.Minute, Limit: 2})

		api.POST("/auth/register", rateLimitMiddleware(registerLimiter), authHandler.Register)
		api.POST("/auth/login", rateLimitMiddleware(loginLimiter), authHandler.Login)
		api.POST("/auth/google", rateLimitMiddleware(loginLimiter), authHandler.GoogleLogin)
	}

	protected := api.Group("")
	protected.Use(authHandler.AuthMiddleware())
	{
		protected.GET("/users", userHandler.GetUsers)
		protected.GET("/users/search", userHandler.SearchUsers)

		protected.GET("/messages", msgHandler.GetMessages)
		protected.POST("/messages", msgHandler.SendMessage)

		protected.POST("/upload", fileHandler.Upload)
		protected.POST("/files/upload", fileHandler.Upload)
		protected.POST("/profile/upload", fileHandler.UploadAvatar)
		protected.GET("/files/recover", fileHandler.Recover)
		protected.GET("/files/check-missing", fileHandler.CheckMissing)

		protected.POST("/friend-requests", friendHandler.SendRequest)
		protected.GET("/friend-requests/received", friendHandler.ReceivedRequests)
		protected.GET("/friend-requests/sent", friendHandler.SentRequests)
		protected.PUT("/friend-requests/:id", friendHandler.Respond)
		protected.DELETE("/friend-requests/:id", friendHandler.Cancel)
		protected.GET("/friends/:userId", friendHandler.AreFriends)

		protected.GET("/push/key", pushHandler.PublicKey)
		protected.POST("/push/subscriptions", pushHandler.Subscribe)
		protected.DELETE("/push/subscriptions", pushHandler.Unsubscribe)
	}

	router.GET("/uploads/:filename", fileHandler.ServeUpload)

	router.GET("/ws", authHandler.AuthMiddleware(), hub.HandleWebSocket)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "storage": st.Name()})
	})

	addr := "0.0.0.0:" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		logger.Info().Msg("shutting down gracefully")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("shutdown error")
		}
	}()

	logger.Info().Str("addr", addr).Str("storage", st.Name()).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
