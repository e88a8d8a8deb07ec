package faceDetectorService

import (
	"FaceBridge/internal/api/facedetector"
	faceDetectorRepository "FaceBridge/internal/api/facedetector/repository"
	"FaceBridge/internal/entity"
	"FaceBridge/pkg/engine"
	"FaceBridge/pkg/engine/enginetest"
	"FaceBridge/pkg/utils"
	validatorPkg "FaceBridge/pkg/validator"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestService(t *testing.T, eng engine.Engine, archive *fakeArchive, config Config) IFaceDetectorService {
	t.Helper()

	log := quietLogger()
	svc := NewFaceDetectorService(
		log,
		validatorPkg.New(),
		eng,
		faceDetectorRepository.New(log, nil, time.Minute),
		nil,
		utils.New(),
		config,
	)
	if archive != nil {
		svc.(*faceDetectorService).archive = archive
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})

	return svc
}

func await(t *testing.T, ch <-chan Result) Result {
	t.Helper()

	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for detection result")
		return Result{}
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func startArgs(id string, options *facedetector.OptionsPayload) facedetector.CallArguments {
	return facedetector.CallArguments{
		ID:        id,
		ImageData: validImage(),
		Options:   options,
	}
}

type fakeArchive struct {
	mu   sync.Mutex
	keys []string
	meta []map[string]string
}

func (f *fakeArchive) UploadFrame(_ context.Context, key string, _ []byte, metadata map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	f.meta = append(f.meta, metadata)
	return "memory://" + key, nil
}

func (f *fakeArchive) PresignUrl(key string) (string, error) { return "memory://" + key, nil }

func (f *fakeArchive) uploads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.keys)
}

func TestStartReusesDetectorForSameID(t *testing.T) {
	eng := enginetest.New()
	svc := newTestService(t, eng, nil, Config{})
	ctx := context.Background()

	first := await(t, svc.Start(ctx, startArgs("cam-1", validOptions())))
	if first.Err != nil {
		t.Fatalf("first start: %v", first.Err)
	}

	second := await(t, svc.Start(ctx, startArgs("cam-1", nil)))
	if second.Err != nil {
		t.Fatalf("second start without options: %v", second.Err)
	}

	changed := validOptions()
	changed.Mode = strPtr("fast")
	third := await(t, svc.Start(ctx, startArgs("cam-1", changed)))
	if third.Err != nil {
		t.Fatalf("third start: %v", third.Err)
	}

	if got := eng.Created(); got != 1 {
		t.Fatalf("Created() = %d, want 1", got)
	}
	detector := eng.Detectors()[0]
	if detector.Processed() != 3 {
		t.Errorf("Processed() = %d, want 3", detector.Processed())
	}
	if detector.Options().PerformanceMode != entity.PerformanceModeAccurate {
		t.Errorf("options changed on reuse: %+v", detector.Options())
	}
}

func TestStartAfterCloseRequiresOptions(t *testing.T) {
	eng := enginetest.New()
	svc := newTestService(t, eng, nil, Config{})
	ctx := context.Background()

	if res := await(t, svc.Start(ctx, startArgs("cam-1", validOptions()))); res.Err != nil {
		t.Fatalf("start: %v", res.Err)
	}

	svc.Close(ctx, "cam-1")
	if !eng.Detectors()[0].Closed() {
		t.Fatal("detector should be released by close")
	}

	res := await(t, svc.Start(ctx, startArgs("cam-1", nil)))
	if !errors.Is(res.Err, facedetector.ErrInvalidOptions) {
		t.Fatalf("Start() error = %v, want ErrInvalidOptions", res.Err)
	}
	if res.Err.Error() != "Invalid options" {
		t.Errorf("message = %q, want %q", res.Err.Error(), "Invalid options")
	}
	if eng.Created() != 1 {
		t.Errorf("no detector should be created without options")
	}
}

func TestStartRejectsInvalidConfiguration(t *testing.T) {
	eng := enginetest.New()
	svc := newTestService(t, eng, nil, Config{})

	options := validOptions()
	options.Mode = strPtr("slow")

	res := await(t, svc.Start(context.Background(), startArgs("cam-1", options)))
	if !errors.Is(res.Err, facedetector.ErrInvalidConfiguration) {
		t.Fatalf("Start() error = %v, want ErrInvalidConfiguration", res.Err)
	}
	if eng.Created() != 0 {
		t.Errorf("Created() = %d, want 0", eng.Created())
	}
}

func TestStartRejectsMalformedRequests(t *testing.T) {
	eng := enginetest.New()
	svc := newTestService(t, eng, nil, Config{})

	tests := []struct {
		name string
		args facedetector.CallArguments
	}{
		{"missing id", startArgs("", validOptions())},
		{"missing image", facedetector.CallArguments{ID: "cam-1", Options: validOptions()}},
		{"short frame", func() facedetector.CallArguments {
			args := startArgs("cam-1", validOptions())
			args.ImageData.Bytes = args.ImageData.Bytes[:4]
			return args
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := await(t, svc.Start(context.Background(), tt.args))
			if !errors.Is(res.Err, facedetector.ErrInvalidRequest) {
				t.Errorf("Start() error = %v, want ErrInvalidRequest", res.Err)
			}
		})
	}

	if eng.Created() != 0 {
		t.Errorf("Created() = %d, want 0", eng.Created())
	}
}

func TestStartReturnsNormalisedFaces(t *testing.T) {
	smiling := float32(0.92)
	tracking := 7

	eng := enginetest.New(
		engine.Face{
			BoundingBox:        entity.Rect{Left: 10, Top: 20, Right: 110, Bottom: 140},
			HeadEulerAngleY:    12.5,
			SmilingProbability: &smiling,
			TrackingID:         &tracking,
			Landmarks: map[entity.LandmarkType]entity.Point{
				entity.LandmarkLeftEye: entity.NewPoint(40, 60),
			},
			Contours: map[entity.ContourType][]entity.Point{
				entity.ContourFace: {entity.NewPoint(10, 20), entity.NewPoint(110, 20)},
			},
		},
		engine.Face{
			BoundingBox: entity.Rect{Left: 200, Top: 40, Right: 260, Bottom: 120},
		},
	)
	svc := newTestService(t, eng, nil, Config{})

	res := await(t, svc.Start(context.Background(), startArgs("cam-1", validOptions())))
	if res.Err != nil {
		t.Fatalf("Start() error = %v", res.Err)
	}
	if len(res.Faces) != 2 {
		t.Fatalf("len(Faces) = %d, want 2", len(res.Faces))
	}

	images := eng.Detectors()[0].Images()
	if len(images) != 1 || images[0].Width != 4 || images[0].Rotation != 90 || images[0].Format != entity.ImageFormatNV21 {
		t.Errorf("engine received %+v, want the 4x2 NV21 frame rotated 90", images)
	}

	first, second := res.Faces[0], res.Faces[1]
	if first.Rect.Left != 10 || second.Rect.Left != 200 {
		t.Errorf("faces out of engine order: %+v, %+v", first.Rect, second.Rect)
	}
	if first.SmilingProbability == nil || *first.SmilingProbability != smiling {
		t.Errorf("SmilingProbability = %v, want %v", first.SmilingProbability, smiling)
	}
	if first.TrackingID == nil || *first.TrackingID != tracking {
		t.Errorf("TrackingID = %v, want %d", first.TrackingID, tracking)
	}
	if second.SmilingProbability != nil || second.TrackingID != nil || second.LeftEyeOpenProbability != nil {
		t.Errorf("second face should have no optional values: %+v", second)
	}

	for i, face := range res.Faces {
		if len(face.Landmarks) != len(entity.LandmarkTypes) {
			t.Errorf("face %d has %d landmark keys, want %d", i, len(face.Landmarks), len(entity.LandmarkTypes))
		}
		if len(face.Contours) != len(entity.ContourTypes) {
			t.Errorf("face %d has %d contour keys, want %d", i, len(face.Contours), len(entity.ContourTypes))
		}
	}

	if eye := first.Landmarks[entity.LandmarkLeftEye]; eye == nil || eye.X() != 40 || eye.Y() != 60 {
		t.Errorf("left eye = %v, want [40 60]", eye)
	}
	if first.Landmarks[entity.LandmarkNoseBase] != nil {
		t.Errorf("undetected landmark should be nil")
	}
	if got := len(first.Contours[entity.ContourFace]); got != 2 {
		t.Errorf("face contour has %d points, want 2", got)
	}
	if first.Contours[entity.ContourNoseBridge] != nil {
		t.Errorf("undetected contour should be nil")
	}
}

func TestStartReportsEngineFailureAndArchivesFrame(t *testing.T) {
	eng := enginetest.New()
	eng.ProcessErr = errors.New("inference crashed")
	archive := &fakeArchive{}
	svc := newTestService(t, eng, archive, Config{})

	res := await(t, svc.Start(context.Background(), startArgs("cam-1", validOptions())))
	if !errors.Is(res.Err, facedetector.ErrEngineFailure) {
		t.Fatalf("Start() error = %v, want ErrEngineFailure", res.Err)
	}

	eventually(t, func() bool { return archive.uploads() == 1 })

	archive.mu.Lock()
	defer archive.mu.Unlock()
	if archive.meta[0]["rotation"] != "90" || archive.meta[0]["width"] != "4" {
		t.Errorf("unexpected frame metadata %v", archive.meta[0])
	}
}

func TestStartReportsCreateFailure(t *testing.T) {
	eng := enginetest.New()
	eng.CreateErr = errors.New("model not loaded")
	svc := newTestService(t, eng, nil, Config{})

	res := await(t, svc.Start(context.Background(), startArgs("cam-1", validOptions())))
	if !errors.Is(res.Err, facedetector.ErrEngineFailure) {
		t.Fatalf("Start() error = %v, want ErrEngineFailure", res.Err)
	}

	sessions, err := svc.Sessions(context.Background())
	if err != nil {
		t.Fatalf("Sessions() error = %v", err)
	}
	if len(sessions.Sessions) != 0 {
		t.Errorf("failed create must not register a session: %+v", sessions.Sessions)
	}
}

func TestCloseUnknownIDIsNoop(t *testing.T) {
	eng := enginetest.New()
	svc := newTestService(t, eng, nil, Config{})
	ctx := context.Background()

	svc.Close(ctx, "missing")

	if res := await(t, svc.Start(ctx, startArgs("cam-1", validOptions()))); res.Err != nil {
		t.Fatalf("start: %v", res.Err)
	}
	svc.Close(ctx, "missing")

	if eng.Detectors()[0].Closed() {
		t.Error("closing an unknown id must not touch other detectors")
	}
}

func TestConcurrentStartsCreateOneDetector(t *testing.T) {
	eng := enginetest.New()
	eng.CreateDelay = 20 * time.Millisecond
	svc := newTestService(t, eng, nil, Config{})

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := <-svc.Start(context.Background(), startArgs("cam-1", validOptions()))
			errs <- res.Err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	}
	if got := eng.Created(); got != 1 {
		t.Errorf("Created() = %d, want 1", got)
	}
}

func TestSessionsListsLiveDetectors(t *testing.T) {
	eng := enginetest.New()
	svc := newTestService(t, eng, nil, Config{})
	ctx := context.Background()

	for _, id := range []string{"cam-b", "cam-a"} {
		if res := await(t, svc.Start(ctx, startArgs(id, validOptions()))); res.Err != nil {
			t.Fatalf("start %s: %v", id, res.Err)
		}
	}

	resp, err := svc.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions() error = %v", err)
	}
	if len(resp.Sessions) != 2 || resp.Sessions[0].ID != "cam-a" || resp.Sessions[1].ID != "cam-b" {
		t.Fatalf("unexpected sessions %+v", resp.Sessions)
	}
	if resp.Sessions[0].Options.PerformanceMode != entity.PerformanceModeAccurate {
		t.Errorf("session options not recorded: %+v", resp.Sessions[0].Options)
	}
}

func TestShutdownReleasesDetectorsAndRejectsWork(t *testing.T) {
	eng := enginetest.New()
	svc := newTestService(t, eng, nil, Config{})
	ctx := context.Background()

	for _, id := range []string{"cam-1", "cam-2"} {
		if res := await(t, svc.Start(ctx, startArgs(id, validOptions()))); res.Err != nil {
			t.Fatalf("start %s: %v", id, res.Err)
		}
	}

	if err := svc.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	for _, d := range eng.Detectors() {
		if !d.Closed() {
			t.Error("detector left open after shutdown")
		}
	}
	if !eng.Closed() {
		t.Error("engine left open after shutdown")
	}

	res := await(t, svc.Start(ctx, startArgs("cam-1", validOptions())))
	if !errors.Is(res.Err, facedetector.ErrBridgeShutdown) {
		t.Errorf("Start() after shutdown error = %v, want ErrBridgeShutdown", res.Err)
	}
}

func TestShutdownWaitsForInFlightDetections(t *testing.T) {
	eng := enginetest.New()
	eng.Block = make(chan struct{})
	svc := newTestService(t, eng, nil, Config{})

	pending := svc.Start(context.Background(), startArgs("cam-1", validOptions()))

	done := make(chan error, 1)
	go func() { done <- svc.Shutdown(context.Background()) }()

	select {
	case <-done:
		t.Fatal("shutdown returned while a detection was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(eng.Block)

	if res := await(t, pending); res.Err != nil {
		t.Errorf("in-flight detection failed: %v", res.Err)
	}
	if err := <-done; err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestCallerCancellationDoesNotAbortDetection(t *testing.T) {
	eng := enginetest.New(engine.Face{BoundingBox: entity.Rect{Right: 5, Bottom: 5}})
	eng.Block = make(chan struct{})
	svc := newTestService(t, eng, nil, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	pending := svc.Start(ctx, startArgs("cam-1", validOptions()))
	cancel()
	close(eng.Block)

	res := await(t, pending)
	if res.Err != nil || len(res.Faces) != 1 {
		t.Errorf("Start() = %+v, want one face", res)
	}
}

func TestIdleSweepEvictsOnlyUnusedDetectors(t *testing.T) {
	eng := enginetest.New()
	eng.Block = make(chan struct{})
	svc := newTestService(t, eng, nil, Config{
		IdleTimeout:   30 * time.Millisecond,
		SweepInterval: 10 * time.Millisecond,
	})

	pending := svc.Start(context.Background(), startArgs("cam-1", validOptions()))
	eventually(t, func() bool { return eng.Created() == 1 })

	time.Sleep(100 * time.Millisecond)
	detector := eng.Detectors()[0]
	if detector.Closed() {
		t.Fatal("busy detector was evicted")
	}

	close(eng.Block)
	if res := await(t, pending); res.Err != nil {
		t.Fatalf("detection failed: %v", res.Err)
	}

	eventually(t, detector.Closed)

	res := await(t, svc.Start(context.Background(), startArgs("cam-1", nil)))
	if !errors.Is(res.Err, facedetector.ErrInvalidOptions) {
		t.Errorf("Start() after eviction error = %v, want ErrInvalidOptions", res.Err)
	}
}
