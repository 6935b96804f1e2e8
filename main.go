package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"alerts-service/config"
	"alerts-service/database"
	"alerts-service/handlers"
	"alerts-service/metrics"
	"alerts-service/middleware"
	"alerts-service/proofs"
	"alerts-service/proofstore"
	"alerts-service/rabbitmq"
	"alerts-service/service"
	"alerts-service/version"
	ws "alerts-service/websocket"

	"github.com/apex/log"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// .env is optional; real deployments set the environment directly
	godotenv.Load()

	cfg := config.Load()

	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	files := proofstore.New(cfg.UploadsDir, cfg.PublicBasePath)
	if err := files.EnsureFolders(); err != nil {
		log.Fatalf("Failed to prepare uploads directory: %v", err)
	}

	db, err := database.NewConnection(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.InitSchema(db); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	var publisher *rabbitmq.Publisher
	if cfg.AMQPUrl != "" {
		publisher, err = rabbitmq.NewPublisher(cfg.AMQPUrl, cfg.AMQPExchange)
		if err != nil {
			log.Warnf("RabbitMQ unavailable, events disabled: %v", err)
			publisher = nil
		} else {
			defer publisher.Close()
		}
	}

	hub := ws.NewHub()
	go hub.Run()

	metrics.Register()

	store := database.NewAlertStore(db)
	pipeline := proofs.NewPipeline(files, cfg.FFmpegPath)
	svc := service.New(cfg, store, files, pipeline, publisher, hub)
	h := handlers.NewHandlers(svc, hub, cfg)

	router := setupRouter(cfg, h, files)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Infof("Starting HTTP server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited")
}

func setupRouter(cfg *config.Config, h *handlers.Handlers, files *proofstore.Store) *gin.Engine {
	router := gin.Default()

	// Add gzip compression middleware
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Service-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Processed proofs are served straight from disk
	router.Static(cfg.PublicBasePath, files.Root())

	router.GET("/health", h.HealthCheck)
	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, version.Get())
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v3/alerts")

	// Status webhook is authenticated by the shared service key, not a
	// citizen token
	api.POST("/webhook/status", middleware.ServiceKeyMiddleware(cfg), h.UpdateAlertStatus)

	authed := api.Group("")
	authed.Use(middleware.AuthMiddleware(cfg))
	{
		authed.POST("", h.CreateAlert)
		authed.GET("/me", h.GetMyAlerts)
		authed.GET("/nearby", h.GetNearbyAlerts)
		authed.GET("/listen", h.Listen)
		authed.POST("/upload", h.UploadProof)
		authed.POST("/uploads", h.UploadProofs)
		authed.DELETE("/upload", h.DeleteUpload)
		authed.GET("/:id", h.GetAlertByID)
		authed.POST("/:id/comments", h.AddComment)
	}

	return router
}
