package main

import (
	"FaceBridge/internal/config"
	"FaceBridge/pkg/log"
	"FaceBridge/pkg/redis"
	"FaceBridge/pkg/utils"
	websocketPkg "FaceBridge/pkg/websocket"
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
)

func main() {
	envErr := godotenv.Load()
	logger := log.NewLogger()
	if envErr != nil && !os.IsNotExist(envErr) {
		logger.Warnf("Error loading .env file: %v", envErr)
	}

	fiberApp := config.NewFiber(logger)
	validator := config.NewValidator()
	redisServer := redis.New()
	engineClient := websocketPkg.NewEngineClient(logger, utils.New())

	server, err := config.NewServer(
		config.WithFiber(fiberApp),
		config.WithLogger(logger),
		config.WithValidator(validator),
		config.WithRedisServer(redisServer),
		config.WithEngine(engineClient),
		config.WithUtils(),
		config.WithMiddleware(),
		config.WithS3Client(),
		config.WithFaceDetectorConfig(),
	)
	if err != nil {
		logger.Fatal(err)
	}

	server.RegisterHandler()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Run(); err != nil {
			logger.Fatalf("Error starting server: %v", err)
		}
	}()

	logger.Info("Server started successfully")

	<-sigChan
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Shutdown finished with errors: %v", err)
		return
	}
	logger.Info("Server stopped")
}
