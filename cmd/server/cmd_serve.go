package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Brownie44l1/carid/internal/config"
	"github.com/Brownie44l1/carid/internal/handlers"
	"github.com/Brownie44l1/carid/internal/middleware"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the prediction HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, opts.cfg, opts.logger)
		},
	}
}

func runServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if err := fetchAssets(ctx, cfg, logger); err != nil {
		return err
	}
	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	h := handlers.NewHandler(a.service, a.engine, a.service.Catalog(), cfg.Server.MaxUploadBytes)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newRouter(cfg, logger, h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("server stopping...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func newRouter(cfg *config.Config, logger *zap.Logger, h *handlers.Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(
		middleware.RequestID(logger),
		middleware.AccessLog(),
		middleware.Recovery(),
		middleware.CORS(cfg.Server.CORSOrigins),
		gzip.Gzip(gzip.DefaultCompression),
	)
	handlers.RegisterRoutes(r, h, cfg.Samples.StaticDir)
	return r
}
