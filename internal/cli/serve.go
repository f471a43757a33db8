package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/goatkit/prodmanager/internal/api"
	"github.com/goatkit/prodmanager/internal/database"
	"github.com/goatkit/prodmanager/internal/middleware"
	"github.com/goatkit/prodmanager/internal/plugin"
)

var (
	serveAddr    string
	serveMigrate bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API. Extensions are discovered from plugins.dir on first
use, connected, and optionally rediscovered on a schedule or when the
directory changes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if serveAddr != "" {
			cfg.HTTP.Addr = serveAddr
		}
		return serve(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides http.addr)")
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "create missing tables before serving")
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
	a, err := newApp(ctx, cfg, vcfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if serveMigrate {
		if err := database.Migrate(ctx, a.db); err != nil {
			return err
		}
	}
	if err := database.ExposePoolStats(prometheus.DefaultRegisterer, a.db); err != nil {
		logger.Warn("pool stats not exported", "error", err)
	}

	// Discover and connect now rather than on the first request.
	logger.Info("extensions ready", "count", len(a.registry.All(ctx)))

	if cfg.Plugins.HotReload {
		if err := a.loader.WatchDir(ctx, cfg.Plugins.Dir, a.registry.Reload); err != nil {
			logger.Warn("hot reload disabled", "error", err)
		} else {
			defer a.loader.StopWatch()
		}
	}

	if cfg.Plugins.RediscoverSchedule != "" {
		r, err := plugin.NewRediscovery(a.registry, cfg.Plugins.RediscoverSchedule, logger)
		if err != nil {
			return err
		}
		r.Start()
		defer r.Stop()
		logger.Info("scheduled rediscovery enabled", "schedule", cfg.Plugins.RediscoverSchedule, "next", r.Next())
	}

	gin.SetMode(gin.ReleaseMode)
	h := api.NewHandler(api.HandlerConfig{
		Manager:        a.manager,
		Dispatcher:     a.dispatcher,
		Installed:      a.installed,
		Links:          a.links,
		Logs:           a.logs,
		TmpDir:         cfg.Plugins.TmpDir,
		MaxUploadBytes: cfg.HTTP.MaxUploadMB << 20,
		Logger:         logger,
	})
	router := api.NewRouter(h, api.RouterConfig{
		Logger:         logger,
		Limiter:        middleware.NewRateLimiter(ctx),
		UploadsPerHour: cfg.HTTP.UploadsPerHour,
		Metrics:        true,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTP.Addr, "plugins", cfg.Plugins.Dir)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
