package config

import (
	faceDetectorHandler "FaceBridge/internal/api/facedetector/handler"
	faceDetectorRepository "FaceBridge/internal/api/facedetector/repository"
	faceDetectorService "FaceBridge/internal/api/facedetector/service"
	"FaceBridge/internal/middleware"
	"FaceBridge/pkg/engine"
	"FaceBridge/pkg/redis"
	"FaceBridge/pkg/s3"
	"FaceBridge/pkg/utils"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type ServerOption func(*Server) error

type Server struct {
	engine         *fiber.App
	log            *logrus.Logger
	middleware     middleware.Middleware
	validator      *validator.Validate
	utils          utils.IUtils
	handlers       []handler
	redisServer    redis.IRedis
	s3Client       s3.ItfS3
	detection      engine.Engine
	detectorConfig faceDetectorService.Config
	ledgerTTL      time.Duration
	faceDetector   faceDetectorService.IFaceDetectorService
}

type handler interface {
	Start(srv fiber.Router)
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.engine == nil {
		return nil, fmt.Errorf("fiber app is required")
	}
	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if server.detection == nil {
		return nil, fmt.Errorf("face detection engine is required")
	}
	if server.validator == nil {
		server.validator = NewValidator()
	}
	if server.utils == nil {
		server.utils = utils.New()
	}
	if server.middleware == nil {
		server.middleware = middleware.New(server.log, server.utils)
	}

	return server, nil
}

func WithFiber(fiberApp *fiber.App) ServerOption {
	return func(s *Server) error {
		s.engine = fiberApp
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithValidator(validator *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = validator
		return nil
	}
}

func WithRedisServer(redisServer redis.IRedis) ServerOption {
	return func(s *Server) error {
		s.redisServer = redisServer
		return nil
	}
}

func WithEngine(detection engine.Engine) ServerOption {
	return func(s *Server) error {
		s.detection = detection
		return nil
	}
}

func WithUtils() ServerOption {
	return func(s *Server) error {
		s.utils = utils.New()
		return nil
	}
}

func WithMiddleware() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before middleware")
		}
		if s.utils == nil {
			s.utils = utils.New()
		}
		s.middleware = middleware.New(s.log, s.utils)
		return nil
	}
}

func WithS3Client() ServerOption {
	return func(s *Server) error {
		client, err := s3.New()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to initialize S3 client: %v", err)
			}
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		s.s3Client = client
		return nil
	}
}

// WithFaceDetectorConfig reads the detector lifecycle settings from the
// environment.
func WithFaceDetectorConfig() ServerOption {
	return func(s *Server) error {
		s.detectorConfig = faceDetectorService.Config{
			StrictRequests: utils.EnvBool("FACE_DETECTOR_STRICT_REQUESTS", false),
			IdleTimeout:    utils.EnvDuration("FACE_DETECTOR_IDLE_TIMEOUT", 0),
		}
		s.ledgerTTL = utils.EnvDuration("FACE_DETECTOR_LEDGER_TTL", 24*time.Hour)

		if s.detectorConfig.IdleTimeout < 0 {
			return fmt.Errorf("FACE_DETECTOR_IDLE_TIMEOUT must not be negative")
		}
		return nil
	}
}

func (s *Server) RegisterHandler() {
	// Face Detector
	faceDetectorRepo := faceDetectorRepository.New(s.log, s.redisServer, s.ledgerTTL)
	s.faceDetector = faceDetectorService.NewFaceDetectorService(
		s.log,
		s.validator,
		s.detection,
		faceDetectorRepo,
		s.s3Client,
		s.utils,
		s.detectorConfig,
	)
	faceDetectorHandlers := faceDetectorHandler.New(s.log, s.validator, s.middleware, s.faceDetector)

	s.setupHealthCheck()
	s.handlers = append(s.handlers, faceDetectorHandlers)
}

// Mount wires middleware and every registered handler onto the app.
func (s *Server) Mount() {
	s.engine.Use(s.middleware.NewRequestIDMiddleware())
	s.engine.Use(s.middleware.NewLoggingMiddleware())

	router := s.engine.Group("/api/v1")
	for _, h := range s.handlers {
		h.Start(router)
	}
}

func (s *Server) Run() error {
	s.Mount()

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "3000"
	}

	return s.engine.Listen(fmt.Sprintf(":%s", port))
}

// Shutdown stops accepting requests, then drains the face detector so every
// engine handle is released.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error

	if err := s.engine.ShutdownWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("fiber shutdown: %w", err))
	}

	if s.faceDetector != nil {
		if err := s.faceDetector.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("face detector shutdown: %w", err))
		}
	} else if err := s.detection.Close(); err != nil {
		errs = append(errs, fmt.Errorf("engine close: %w", err))
	}

	if s.redisServer != nil {
		if err := s.redisServer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (s *Server) setupHealthCheck() {
	s.engine.Get("/", func(ctx *fiber.Ctx) error {
		health := fiber.Map{
			"message": "Server is Healthy!",
		}
		if probe, ok := s.detection.(interface{ IsConnected() bool }); ok {
			health["engine_connected"] = probe.IsConnected()
		}
		return ctx.JSON(health)
	})
}
