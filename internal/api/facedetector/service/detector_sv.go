package faceDetectorService

import (
	"FaceBridge/internal/api/facedetector"
	"FaceBridge/internal/entity"
	contextPkg "FaceBridge/pkg/context"
	"FaceBridge/pkg/engine"
	"FaceBridge/pkg/log"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

func (s *faceDetectorService) Start(ctx context.Context, args facedetector.CallArguments) <-chan Result {
	out := make(chan Result, 1)
	ctx = contextPkg.WithSessionID(ctx, args.ID)
	logger := log.FromContext(s.log, ctx)

	if s.closed.Load() {
		out <- Result{Err: facedetector.ErrBridgeShutdown}
		return out
	}

	image, err := ParseImage(s.validator, args.ImageData)
	if err == nil && args.ID == "" {
		err = fmt.Errorf("%w: id is required", facedetector.ErrInvalidRequest)
	}
	if err != nil {
		out <- Result{Err: err}
		return out
	}

	detector, release, created, err := s.repository.Detectors().GetOrCreate(args.ID, func() (engine.Detector, entity.DetectorOptions, error) {
		if args.Options == nil {
			return nil, entity.DetectorOptions{}, facedetector.ErrInvalidOptions
		}

		options, err := ParseOptions(s.validator, args.Options)
		if err != nil {
			return nil, entity.DetectorOptions{}, err
		}

		detector, err := s.engine.CreateDetector(context.WithoutCancel(ctx), options)
		if err != nil {
			return nil, options, fmt.Errorf("%w: %v", facedetector.ErrEngineFailure, err)
		}

		s.recordSession(ctx, args.ID, options)
		return detector, options, nil
	})
	if err != nil {
		logger.WithError(err).Warn("Failed to obtain detector")
		out <- Result{Err: err}
		return out
	}
	if !created {
		s.touchSession(ctx, args.ID)
	}

	s.inFlight.Add(1)
	go func() {
		defer s.inFlight.Done()
		defer release()

		start := time.Now()
		faces, err := detector.Process(context.WithoutCancel(ctx), image)
		if err != nil {
			logger.WithError(err).Error("Face detection failed")
			out <- Result{Err: fmt.Errorf("%w: %v", facedetector.ErrEngineFailure, err)}
			s.archiveFrame(ctx, args.ID, image, err)
			return
		}

		logger.WithFields(logrus.Fields{
			"faces":      len(faces),
			"latency_ms": time.Since(start).Milliseconds(),
		}).Debug("Face detection completed")

		out <- Result{Faces: MapFaces(faces)}
	}()

	return out
}

func (s *faceDetectorService) Close(ctx context.Context, id string) {
	detector, ok := s.repository.Detectors().Remove(id)
	if !ok {
		s.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"session_id": id,
		}).Debug("Close requested for unknown detector session")
		return
	}

	s.closeDetector(id, detector)
	s.forgetSessions(ctx, id)
}

func (s *faceDetectorService) Sessions(ctx context.Context) (facedetector.SessionsResponse, error) {
	resp := facedetector.SessionsResponse{
		Sessions: s.repository.Detectors().Snapshot(),
	}

	ledger, err := s.repository.Ledger().List(ctx)
	if err != nil {
		return resp, err
	}
	resp.Ledger = ledger

	return resp, nil
}

// Shutdown rejects new work, waits for in-flight detections until ctx is
// done, then closes every remaining detector.
func (s *faceDetectorService) Shutdown(ctx context.Context) error {
	s.closed.Store(true)
	s.stopOnce.Do(func() { close(s.stop) })
	s.janitor.Wait()

	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()

	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		waitErr = fmt.Errorf("waiting for in-flight detections: %w", ctx.Err())
	}

	drained := s.repository.Detectors().Drain()
	ids := make([]string, 0, len(drained))
	for id, detector := range drained {
		s.closeDetector(id, detector)
		ids = append(ids, id)
	}
	s.forgetSessions(context.WithoutCancel(ctx), ids...)

	s.log.WithField("sessions", len(ids)).Info("Face detector bridge drained")

	return errors.Join(waitErr, s.engine.Close())
}

func (s *faceDetectorService) sweepIdle() {
	defer s.janitor.Done()

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			evicted := s.repository.Detectors().EvictIdle(s.config.IdleTimeout)
			if len(evicted) == 0 {
				continue
			}

			ids := make([]string, 0, len(evicted))
			for id, detector := range evicted {
				s.closeDetector(id, detector)
				ids = append(ids, id)
			}
			s.forgetSessions(context.Background(), ids...)

			s.log.WithFields(logrus.Fields{
				"evicted":      len(ids),
				"idle_timeout": s.config.IdleTimeout.String(),
			}).Info("Evicted idle detector sessions")
		}
	}
}

func (s *faceDetectorService) closeDetector(id string, detector engine.Detector) {
	if err := detector.Close(); err != nil {
		s.log.WithFields(logrus.Fields{
			"session_id": id,
			"error":      err.Error(),
		}).Warn("Failed to release detector")
		return
	}
	s.log.WithField("session_id", id).Debug("Detector released")
}

func (s *faceDetectorService) recordSession(ctx context.Context, id string, options entity.DetectorOptions) {
	c, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.LedgerTimeout)
	defer cancel()

	now := time.Now()
	err := s.repository.Ledger().Record(c, entity.DetectorSession{
		ID:        id,
		Options:   options,
		CreatedAt: now,
		LastUsed:  now,
	})
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"session_id": id,
			"error":      err.Error(),
		}).Warn("Failed to record detector session")
	}
}

func (s *faceDetectorService) touchSession(ctx context.Context, id string) {
	c, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.LedgerTimeout)
	defer cancel()

	if err := s.repository.Ledger().Touch(c, id); err != nil {
		s.log.WithFields(logrus.Fields{
			"session_id": id,
			"error":      err.Error(),
		}).Debug("Failed to refresh detector session")
	}
}

func (s *faceDetectorService) forgetSessions(ctx context.Context, ids ...string) {
	if len(ids) == 0 {
		return
	}

	c, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.LedgerTimeout)
	defer cancel()

	if err := s.repository.Ledger().Forget(c, ids...); err != nil {
		s.log.WithFields(logrus.Fields{
			"sessions": ids,
			"error":    err.Error(),
		}).Warn("Failed to remove detector sessions from ledger")
	}
}

func (s *faceDetectorService) archiveFrame(ctx context.Context, id string, image *entity.InputImage, cause error) {
	if s.archive == nil {
		return
	}

	key, err := s.utils.FrameKey(id, time.Now())
	if err != nil {
		s.log.WithError(err).Warn("Failed to name archived frame")
		return
	}

	c, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	location, err := s.archive.UploadFrame(c, key, image.Bytes, map[string]string{
		"width":    strconv.Itoa(image.Width),
		"height":   strconv.Itoa(image.Height),
		"rotation": strconv.Itoa(image.Rotation),
		"format":   image.Format,
		"error":    cause.Error(),
	})
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"session_id": id,
			"error":      err.Error(),
		}).Warn("Failed to archive frame")
		return
	}

	fields := logrus.Fields{
		"session_id": id,
		"location":   location,
	}
	if url, err := s.archive.PresignUrl(key); err == nil {
		fields["download_url"] = url
	}
	s.log.WithFields(fields).Info("Archived failed frame")
}
