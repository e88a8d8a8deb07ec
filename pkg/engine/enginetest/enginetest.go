// Package enginetest provides an in-memory engine for tests.
package enginetest

import (
	"FaceBridge/internal/entity"
	"FaceBridge/pkg/engine"
	"context"
	"sync"
	"time"
)

// Engine hands out detectors that return a fixed set of faces.
type Engine struct {
	Faces       []engine.Face
	CreateErr   error
	ProcessErr  error
	CreateDelay time.Duration
	// Block, when non-nil, holds every Process call until it is closed.
	Block chan struct{}

	mu        sync.Mutex
	detectors []*Detector
	closed    bool
}

func New(faces ...engine.Face) *Engine {
	return &Engine{Faces: faces}
}

func (e *Engine) CreateDetector(ctx context.Context, options entity.DetectorOptions) (engine.Detector, error) {
	if e.CreateDelay > 0 {
		time.Sleep(e.CreateDelay)
	}
	if e.CreateErr != nil {
		return nil, e.CreateErr
	}

	d := &Detector{engine: e, options: options}

	e.mu.Lock()
	e.detectors = append(e.detectors, d)
	e.mu.Unlock()

	return d, nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Created is the number of detectors built so far.
func (e *Engine) Created() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.detectors)
}

func (e *Engine) Detectors() []*Detector {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Detector(nil), e.detectors...)
}

type Detector struct {
	engine  *Engine
	options entity.DetectorOptions

	mu        sync.Mutex
	closed    bool
	processed int
	images    []*entity.InputImage
}

func (d *Detector) Process(ctx context.Context, image *entity.InputImage) ([]engine.Face, error) {
	if d.engine.Block != nil {
		<-d.engine.Block
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, engine.ErrDetectorClosed
	}
	d.processed++
	d.images = append(d.images, image)

	if d.engine.ProcessErr != nil {
		return nil, d.engine.ProcessErr
	}
	return append([]engine.Face(nil), d.engine.Faces...), nil
}

func (d *Detector) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *Detector) Options() entity.DetectorOptions {
	return d.options
}

func (d *Detector) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Detector) Processed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.processed
}

func (d *Detector) Images() []*entity.InputImage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*entity.InputImage(nil), d.images...)
}
