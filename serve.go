package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eyetrack-go/internal/config"
	"eyetrack-go/internal/database"
	"eyetrack-go/internal/handlers"
	logger "eyetrack-go/internal/logging"
	"eyetrack-go/internal/metrics"
	"eyetrack-go/internal/router"
	"eyetrack-go/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the experiment server",
	Long: `Run the experiment server.

Configuration is read from <root>/config/config.yaml and EYETRACK_* environment
variables. Changes to the config file apply to sessions started afterwards.

Examples:
  # Serve from the current directory
  eyetrack serve

  # Serve another study
  eyetrack serve --root /srv/study-2`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	boot := logger.Console()
	if err := config.Init(projectRoot, boot); err != nil {
		return err
	}

	log, err := logger.Init(projectRoot, config.Conf.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	if config.Conf.Server.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	if config.Conf.Server.SessionSecret == "change-me" {
		log.Warn("Using the default session secret, set server.session_secret")
	}

	if err := database.Init(log); err != nil {
		return err
	}

	design, err := services.LoadDesign(projectRoot, config.Conf)
	if err != nil {
		return err
	}
	log.Info("Experiment design loaded",
		zap.Int("trials", len(design.Trials)),
		zap.Int("practice", len(design.Practice)),
	)

	manager := services.NewManager(design, services.DBStore{}, metrics.NewCollectors(), log)
	config.OnChange(func(c *config.Config) {
		d, err := services.LoadDesign(projectRoot, c)
		if err != nil {
			log.Error("Keeping previous experiment design", zap.Error(err))
			return
		}
		manager.SetDesign(d)
		log.Info("Experiment design reloaded", zap.Int("trials", len(d.Trials)))
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services.NewReaper(log, manager, config.Conf.Sessions.IdleTimeout, config.Conf.Sessions.ReapEvery).Start(ctx)

	srv := &http.Server{
		Addr:              ":" + config.Conf.Server.Port,
		Handler:           router.Setup(log, manager, handlers.RepositoryStore{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.Info("Server listening on http://localhost" + srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		if err != nil {
			return fmt.Errorf("failed to run server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := manager.Shutdown(shutdownCtx); err != nil {
		log.Warn("Sessions did not stop in time", zap.Error(err))
	}
	return srv.Shutdown(shutdownCtx)
}
