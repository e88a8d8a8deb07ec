package faceDetectorService

import (
	"FaceBridge/internal/api/facedetector"
	faceDetectorRepository "FaceBridge/internal/api/facedetector/repository"
	"FaceBridge/internal/entity"
	"FaceBridge/pkg/engine"
	"FaceBridge/pkg/s3"
	"FaceBridge/pkg/utils"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// Result is the single outcome of a start call.
type Result struct {
	Faces []entity.DetectedFace
	Err   error
}

type IFaceDetectorService interface {
	// Start submits a frame for detection. The returned channel yields
	// exactly one Result and is never closed without one.
	Start(ctx context.Context, args facedetector.CallArguments) <-chan Result
	Close(ctx context.Context, id string)
	Sessions(ctx context.Context) (facedetector.SessionsResponse, error)
	StrictRequests() bool
	Shutdown(ctx context.Context) error
}

type Config struct {
	// StrictRequests reports malformed requests as errors instead of
	// dropping them.
	StrictRequests bool
	// IdleTimeout evicts handles unused for this long. Zero keeps handles
	// until they are closed.
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	LedgerTimeout time.Duration
}

type faceDetectorService struct {
	log        *logrus.Logger
	validator  *validator.Validate
	engine     engine.Engine
	repository faceDetectorRepository.Repository
	archive    s3.ItfS3
	utils      utils.IUtils
	config     Config

	closed   atomic.Bool
	inFlight sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
	janitor  sync.WaitGroup
}

func NewFaceDetectorService(
	log *logrus.Logger,
	validate *validator.Validate,
	eng engine.Engine,
	repo faceDetectorRepository.Repository,
	archive s3.ItfS3,
	utils utils.IUtils,
	config Config,
) IFaceDetectorService {
	if config.LedgerTimeout <= 0 {
		config.LedgerTimeout = 2 * time.Second
	}
	if config.IdleTimeout > 0 && config.SweepInterval <= 0 {
		config.SweepInterval = config.IdleTimeout / 2
		if config.SweepInterval < time.Second {
			config.SweepInterval = time.Second
		}
	}

	s := &faceDetectorService{
		log:        log,
		validator:  validate,
		engine:     eng,
		repository: repo,
		archive:    archive,
		utils:      utils,
		config:     config,
		stop:       make(chan struct{}),
	}

	if config.IdleTimeout > 0 {
		s.janitor.Add(1)
		go s.sweepIdle()
	}

	return s
}

func (s *faceDetectorService) StrictRequests() bool {
	return s.config.StrictRequests
}
