package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Tomifemme/dashboard/internal/api"
	"github.com/Tomifemme/dashboard/internal/config"
	"github.com/Tomifemme/dashboard/internal/datawatch"
	"github.com/Tomifemme/dashboard/internal/engine"
	"github.com/Tomifemme/dashboard/internal/web"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		dataPath   string
		listen     string
	)
	cmd := &cobra.Command{
		Use:          "covid-dashboard",
		Short:        "Serve the WHO COVID-19 analytics dashboard",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if dataPath != "" {
				cfg.Data.Path = dataPath
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}
			return run(cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	cmd.Flags().StringVar(&dataPath, "data", "", "path to the WHO CSV (overrides config)")
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")
	return cmd
}

func run(cfg *config.Config) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Initialize Echo (starts instantly)
	e := echo.New()
	e.HideBanner = true
	e.JSONSerializer = api.JSONSerializer{}
	e.Use(middleware.CORS())
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	// 2. Handler starts with nil data; endpoints answer 503 until the
	// ETL lands
	h := api.NewHandler(cfg.Dashboard.TopN)
	h.RegisterRoutes(e)
	web.Register(e)

	reload := func() error {
		store, err := engine.Open(ctx, cfg.Data.Path, cfg.Data.URL)
		if err != nil {
			return err
		}
		h.SetStore(store)
		logger.Info("dataset ready",
			zap.Int("rows", store.Rows()),
			zap.Int("countries", len(store.CountryDict)),
			zap.String("first", engine.DayString(store.MinDay)),
			zap.String("last", engine.DayString(store.MaxDay)))
		return nil
	}

	// 3. Launch ETL in the background; the server answers immediately
	go func() {
		t0 := time.Now()
		if err := reload(); err != nil {
			h.SetLoadError(err)
			logger.Error("initial dataset load failed", zap.Error(err))
			return
		}
		logger.Info("ETL complete", zap.Duration("took", time.Since(t0)))
	}()

	if cfg.Data.Watch {
		go func() {
			if err := datawatch.Watch(ctx, logger, cfg.Data.Path, reload); err != nil {
				logger.Warn("dataset watch disabled", zap.Error(err))
			}
		}()
	}

	// 4. Start server
	go func() {
		if err := e.Start(cfg.Server.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", zap.Error(err))
			stop()
		}
	}()
	logger.Info("server ready, data loading in background", zap.String("listen", cfg.Server.Listen))

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
