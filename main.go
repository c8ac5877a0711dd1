package main

import (
	"context"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"edupersona/cmd"
	"edupersona/internal/data/repository"
	"edupersona/internal/wire"
	"edupersona/pkg/database"
	"edupersona/pkg/metrics"
	"edupersona/pkg/token"
	"edupersona/pkg/utils"

	"go.uber.org/zap"
)

func main() {
	// Load config
	config, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := utils.InitLogger(config.App.LogPath, config.App.Debug)
	if err != nil {
		log.Printf("Failed to init logger: %v. Using standard log.", err)
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	logger.Info("Starting application",
		zap.String("app", config.App.Name),
		zap.String("port", config.App.Port),
		zap.Bool("debug", config.App.Debug),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if config.Database.AutoMigrate {
		if err := database.Migrate(config.Database, logger); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	// Connect to database
	db, err := database.InitDB(config.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Database connected successfully")

	tokens, err := token.NewService(config.JWT.Secret, config.JWT.Issuer, config.JWT.TTL())
	if err != nil {
		logger.Fatal("Failed to create token service", zap.Error(err))
	}

	repos := repository.NewRepository(db, logger)
	app := wire.Wiring(repos, tokens, config, metrics.New(), logger)

	// Background workers stop when ctx is cancelled
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.Service.Presence.Run(ctx)
	}()
	for _, limiter := range app.Limiters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			limiter.Run(ctx, time.Minute)
		}()
	}

	if err := cmd.APIServer(ctx, app.Router, config.App, logger); err != nil {
		logger.Error("Server error", zap.Error(err))
	}

	stop()
	wg.Wait()
	logger.Info("Shutdown complete")
}
