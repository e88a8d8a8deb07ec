package faceDetectorHandler

import (
	faceDetectorService "FaceBridge/internal/api/facedetector/service"
	"FaceBridge/internal/middleware"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

type FaceDetectorHandler struct {
	log                 *logrus.Logger
	validator           *validator.Validate
	middleware          middleware.Middleware
	faceDetectorService faceDetectorService.IFaceDetectorService
}

func New(
	log *logrus.Logger,
	validator *validator.Validate,
	middleware middleware.Middleware,
	fs faceDetectorService.IFaceDetectorService,
) *FaceDetectorHandler {
	return &FaceDetectorHandler{
		faceDetectorService: fs,
		log:                 log,
		validator:           validator,
		middleware:          middleware,
	}
}

func (h *FaceDetectorHandler) Start(srv fiber.Router) {
	wsMiddleware := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}

	channel := srv.Group("/channel")
	channel.Post("/facedetection", h.middleware.NewTokenMiddleware, h.middleware.NewRateLimiter, h.HandleMethodCall)

	detector := srv.Group("/face-detector")
	detector.Use("/ws", wsMiddleware)
	detector.Get("/ws", h.middleware.NewTokenMiddleware, websocket.New(h.handleStream))

	sessions := detector.Group("/sessions", h.middleware.NewTokenMiddleware)
	sessions.Get("/", h.ListSessions)
	sessions.Post("/:id/detect", h.middleware.NewRateLimiter, h.Detect)
	sessions.Delete("/:id", h.CloseSession)
}
