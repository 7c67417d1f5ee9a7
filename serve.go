package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/myseetara-source/seetara-website-sub001/consumer"
	"github.com/myseetara-source/seetara-website-sub001/controllers"
	"github.com/myseetara-source/seetara-website-sub001/metrics"
	"github.com/myseetara-source/seetara-website-sub001/middleware"
	"github.com/myseetara-source/seetara-website-sub001/pkg/apperrors"
	aws_pkg "github.com/myseetara-source/seetara-website-sub001/pkg/aws"
	"github.com/myseetara-source/seetara-website-sub001/routes"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the storefront HTTP API and the order-status consumer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, logger, err := bootstrap(ctx, "storefront")
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if err := controllers.RegisterValidators(); err != nil {
		return err
	}
	metrics.Register()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to start", zap.Error(err))
		return err
	}
	defer a.Close()

	limiter := middleware.NewRateLimiter(rate.Every(time.Minute/20), 10, 10*time.Minute)
	go limiter.Run(ctx)

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middleware.RequestID())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Metrics(a.metrics, "storefront"))
	r.Use(apperrors.ErrorMiddleware(logger))
	r.Use(func(c *gin.Context) {
		reqCtx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()
		c.Request = c.Request.WithContext(reqCtx)
		c.Next()
	})

	rc := routes.Controllers{
		Orders: controllers.NewOrderController(a.orders),
		Admin:  controllers.NewAdminController(a.orders),
	}
	if a.aws != nil && cfg.UploadBucket != "" {
		rc.Uploads = controllers.NewUploadController(aws_pkg.NewS3Presigner(*a.aws), cfg.UploadBucket, cfg.UploadPublicURL)
	}
	routes.RegisterRoutes(r, rc, []byte(cfg.JWTSecret), limiter)

	consumerDone := make(chan struct{})
	if a.aws != nil && cfg.OrderStatusQueueURL != "" {
		c := consumer.NewSQSConsumer(aws_pkg.NewSQSClient(*a.aws), cfg.OrderStatusQueueURL, a.orders, logger.Named("consumer"))
		go func() {
			defer close(consumerDone)
			c.Start(ctx)
		}()
	} else {
		close(consumerDone)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()
	logger.Info("Storefront service started", zap.String("port", cfg.Port), zap.String("ledger", cfg.LedgerBackend))

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			logger.Error("Server failed", zap.Error(err))
			return err
		}
	}
	logger.Info("Shutting down storefront service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	<-consumerDone
	logger.Info("Server exited cleanly")
	return nil
}
