// Package engine defines the contract between the bridge and a face
// detection engine. The bridge never looks past these types.
package engine

import (
	"FaceBridge/internal/entity"
	"context"
	"errors"
)

var ErrDetectorClosed = errors.New("detector closed")

// Engine builds detector handles from immutable options.
type Engine interface {
	CreateDetector(ctx context.Context, options entity.DetectorOptions) (Detector, error)
	Close() error
}

// Detector is an engine-owned handle. Close releases it; Process on a closed
// detector returns ErrDetectorClosed.
type Detector interface {
	Process(ctx context.Context, image *entity.InputImage) ([]Face, error)
	Close() error
}

// Face is a raw engine result. Optional fields are nil when the engine did
// not compute them.
type Face struct {
	BoundingBox             entity.Rect                           `msgpack:"bbox"`
	HeadEulerAngleX         float32                               `msgpack:"eulerX"`
	HeadEulerAngleY         float32                               `msgpack:"eulerY"`
	HeadEulerAngleZ         float32                               `msgpack:"eulerZ"`
	SmilingProbability      *float32                              `msgpack:"smiling,omitempty"`
	LeftEyeOpenProbability  *float32                              `msgpack:"leftEyeOpen,omitempty"`
	RightEyeOpenProbability *float32                              `msgpack:"rightEyeOpen,omitempty"`
	TrackingID              *int                                  `msgpack:"trackingId,omitempty"`
	Landmarks               map[entity.LandmarkType]entity.Point  `msgpack:"landmarks,omitempty"`
	Contours                map[entity.ContourType][]entity.Point `msgpack:"contours,omitempty"`
}

// Landmark returns the position of t and whether the engine detected it.
func (f *Face) Landmark(t entity.LandmarkType) (entity.Point, bool) {
	p, ok := f.Landmarks[t]
	return p, ok
}

// Contour returns the polyline for t and whether the engine detected it.
func (f *Face) Contour(t entity.ContourType) ([]entity.Point, bool) {
	points, ok := f.Contours[t]
	return points, ok
}
