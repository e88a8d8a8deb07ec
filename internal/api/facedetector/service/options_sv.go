package faceDetectorService

import (
	"FaceBridge/internal/api/facedetector"
	"FaceBridge/internal/entity"
	validatorPkg "FaceBridge/pkg/validator"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
)

// ParseOptions converts a caller supplied options payload into detector
// options. It has no side effects.
func ParseOptions(validate *validator.Validate, payload *facedetector.OptionsPayload) (entity.DetectorOptions, error) {
	if payload == nil {
		return entity.DetectorOptions{}, fmt.Errorf("%w: options are required", facedetector.ErrInvalidConfiguration)
	}

	mode, err := parsePerformanceMode(payload.Mode)
	if err != nil {
		return entity.DetectorOptions{}, err
	}

	if err := validate.Struct(payload); err != nil {
		return entity.DetectorOptions{}, fmt.Errorf("%w: %s", facedetector.ErrInvalidConfiguration, validatorPkg.Describe(err))
	}

	return entity.DetectorOptions{
		PerformanceMode:       mode,
		ClassificationEnabled: *payload.EnableClassification,
		LandmarksEnabled:      *payload.EnableLandmarks,
		ContoursEnabled:       *payload.EnableContours,
		TrackingEnabled:       *payload.EnableTracking,
		MinFaceSize:           float32(*payload.MinFaceSize),
	}, nil
}

func parsePerformanceMode(mode *string) (entity.PerformanceMode, error) {
	if mode == nil {
		return "", fmt.Errorf("%w: Not a mode: null", facedetector.ErrInvalidConfiguration)
	}

	switch entity.PerformanceMode(*mode) {
	case entity.PerformanceModeAccurate, entity.PerformanceModeFast:
		return entity.PerformanceMode(*mode), nil
	default:
		return "", fmt.Errorf("%w: Not a mode: %s", facedetector.ErrInvalidConfiguration, *mode)
	}
}

// ParseImage validates the frame payload and returns the NV21 image it
// describes.
func ParseImage(validate *validator.Validate, data *facedetector.ImageData) (*entity.InputImage, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: imageData is required", facedetector.ErrInvalidRequest)
	}
	if len(data.Bytes) == 0 {
		return nil, fmt.Errorf("%w: image bytes are required", facedetector.ErrInvalidRequest)
	}
	if data.Metadata == nil {
		return nil, fmt.Errorf("%w: image metadata is required", facedetector.ErrInvalidRequest)
	}

	if err := validate.Struct(data.Metadata); err != nil {
		return nil, fmt.Errorf("%w: %s", facedetector.ErrInvalidRequest, validatorPkg.Describe(err))
	}

	width, height := *data.Metadata.Width, *data.Metadata.Height
	if width != math.Trunc(width) || height != math.Trunc(height) {
		return nil, fmt.Errorf("%w: image size %vx%v is not integral", facedetector.ErrInvalidRequest, width, height)
	}

	w, h := int(width), int(height)
	if need := entity.NV21Size(w, h); len(data.Bytes) < need {
		return nil, fmt.Errorf("%w: NV21 frame %dx%d needs %d bytes, got %d",
			facedetector.ErrInvalidRequest, w, h, need, len(data.Bytes))
	}

	return &entity.InputImage{
		Bytes:    data.Bytes,
		Width:    w,
		Height:   h,
		Rotation: *data.Metadata.Rotation,
		Format:   entity.ImageFormatNV21,
	}, nil
}
