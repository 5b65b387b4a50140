// cmd/server/main.go
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

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"fastbus-service/internal/config"
	"fastbus-service/internal/fast"
	"fastbus-service/internal/handler"
	"fastbus-service/internal/metrics"
	"fastbus-service/internal/routes"
	"fastbus-service/internal/utils"
	"fastbus-service/internal/variables"
)

// configFileEnv names an explicit config file instead of the search path
const configFileEnv = "FASTBUS_CONFIG_FILE"

// Application represents the main application
type Application struct {
	config *config.Config
	logger *zap.Logger
	server *http.Server

	variables *variables.Store
	metrics   *metrics.Registry
	eventBus  *handler.EventBus
	websocket *handler.WebSocketHandler
	platform  *fast.Platform

	// shutdownRequests receives reasons from the FAST engine
	shutdownRequests chan string
}

// @title FAST Bus Service API
// @version 1.0.0
// @description Serial engine and expansion bus coordinator for FAST Pinball controllers

// @contact.name FAST Bus Service

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8086
// @BasePath /
func main() {
	app, err := NewApplication()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Error("Application stopped with error", zap.Error(err))
		utils.CloseLogger(app.logger)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if path := os.Getenv(configFileEnv); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// NewApplication creates a new application instance
func NewApplication() (*Application, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, cfg.App.Name)
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	app := &Application{
		config:           cfg,
		logger:           logger,
		shutdownRequests: make(chan string, 1),
	}

	if err := app.initializeVariables(); err != nil {
		return nil, fmt.Errorf("failed to initialize variable store: %w", err)
	}

	if err := app.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	app.eventBus = handler.NewEventBus(logger)
	app.websocket = handler.NewWebSocketHandler(app.eventBus, cfg.Server.AllowedOrigins, logger)
	app.variables.OnChange(app.eventBus.PublishVariable)

	if err := app.initializePlatform(); err != nil {
		return nil, fmt.Errorf("failed to initialize FAST platform: %w", err)
	}

	app.initializeServer()

	return app, nil
}

// initializeVariables opens the persistent store when configured
func (app *Application) initializeVariables() error {
	if !app.config.Variables.Persist {
		app.variables = variables.NewStore(app.logger)
		return nil
	}

	store, err := variables.OpenStore(app.config.Variables.DBPath, app.logger)
	if err != nil {
		return err
	}
	app.variables = store
	return nil
}

func (app *Application) initializeMetrics() error {
	registry, err := metrics.NewRegistry()
	if err != nil {
		return err
	}
	app.metrics = registry
	return nil
}

// initializePlatform builds the machine context and the communicators
func (app *Application) initializePlatform() error {
	machine := &fast.Machine{
		Logger:     app.logger,
		Production: app.config.IsProduction(),
		Variables:  app.variables,
		Metrics:    app.metrics.Bus,
		Traffic:    app.eventBus,
		Shutdown:   app.requestShutdown,
	}

	platform, err := fast.NewPlatform(machine, app.config.Fast, fast.DefaultTransportFactory(app.logger))
	if err != nil {
		return err
	}
	app.platform = platform

	app.logger.Info("FAST platform initialized",
		zap.Int("processors", len(platform.Communicators())),
		zap.Int("configured_boards", len(app.config.Fast.Exp.Boards)),
	)
	return nil
}

// requestShutdown is handed to the FAST engine. It never blocks.
func (app *Application) requestShutdown(reason string) {
	select {
	case app.shutdownRequests <- reason:
	default:
	}
}

func (app *Application) initializeServer() {
	if !app.config.Server.Enabled {
		return
	}

	routerManager := routes.NewRouter(
		app.config,
		app.logger,
		app.platform,
		app.variables,
		app.metrics,
		app.websocket,
	)

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      routerManager.SetupRouter(),
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized", zap.String("address", app.config.GetServerAddr()))
}

// Start runs until a signal arrives or the FAST engine asks to stop
func (app *Application) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go app.eventBus.Start()
	go app.websocket.Run(ctx)

	serverErrors := make(chan error, 1)
	if app.server != nil {
		go func() {
			app.logger.Info("Starting HTTP server", zap.String("address", app.server.Addr))
			if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErrors <- err
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	connectErr := make(chan error, 1)
	go func() {
		connectErr <- app.platform.Connect(ctx)
	}()

	var runErr error
	reason := ""

	for reason == "" {
		select {
		case sig := <-quit:
			reason = "received " + sig.String()
		case r := <-app.shutdownRequests:
			reason = r
		case err := <-serverErrors:
			runErr = fmt.Errorf("HTTP server failed: %w", err)
			reason = runErr.Error()
		case err := <-connectErr:
			if err != nil {
				runErr = fmt.Errorf("failed to connect to FAST controller: %w", err)
				reason = runErr.Error()
			}
		}
	}

	cancel()
	app.logger.Info("Shutting down", zap.String("reason", reason))

	if err := app.shutdown(reason); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// shutdown stops the hardware first, then the API, then flushes state
func (app *Application) shutdown(reason string) error {
	utils.NewServiceLogger(app.logger, app.config.App.Name).LogServiceStop(reason)

	var err error
	if perr := app.platform.Stop(); perr != nil {
		app.logger.Error("FAST platform stop error", zap.Error(perr))
		err = multierr.Append(err, perr)
	}

	if app.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if serr := app.server.Shutdown(ctx); serr != nil {
			app.logger.Error("HTTP server shutdown error", zap.Error(serr))
			err = multierr.Append(err, serr)
		} else {
			app.logger.Info("HTTP server stopped")
		}
	}

	app.eventBus.Stop()

	if verr := app.variables.Close(); verr != nil {
		app.logger.Error("Variable store close error", zap.Error(verr))
		err = multierr.Append(err, verr)
	}

	app.logger.Info("Application shutdown completed")

	if lerr := utils.CloseLogger(app.logger); lerr != nil {
		fmt.Printf("Logger close error: %v\n", lerr)
	}
	return err
}
