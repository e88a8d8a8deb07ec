package facedetector

import (
	"FaceBridge/internal/entity"
)

const (
	MethodStart = "vision#startFaceDetector"
	MethodClose = "vision#closeFaceDetector"
)

// MethodCall is the envelope callers use to invoke a bridge operation by
// name. Seq is echoed back on stream connections to correlate replies.
type MethodCall struct {
	Seq       int64         `json:"seq,omitempty" msgpack:"seq,omitempty"`
	Method    string        `json:"method" msgpack:"method" validate:"required"`
	Arguments CallArguments `json:"arguments" msgpack:"arguments" validate:"-"`
}

type CallArguments struct {
	ID        string          `json:"id" msgpack:"id"`
	ImageData *ImageData      `json:"imageData,omitempty" msgpack:"imageData,omitempty"`
	Options   *OptionsPayload `json:"options,omitempty" msgpack:"options,omitempty"`
}

type ImageData struct {
	Bytes    []byte         `json:"bytes" msgpack:"bytes"`
	Metadata *ImageMetadata `json:"metadata" msgpack:"metadata"`
}

// ImageMetadata mirrors what capture pipelines send: width and height as
// generic numbers, rotation as an integer.
type ImageMetadata struct {
	Width    *float64 `json:"width" msgpack:"width" validate:"required,gt=0,lte=16384"`
	Height   *float64 `json:"height" msgpack:"height" validate:"required,gt=0,lte=16384"`
	Rotation *int     `json:"rotation" msgpack:"rotation" validate:"required,oneof=0 90 180 270"`
}

// OptionsPayload is the unparsed detector configuration. Every field is a
// pointer so that absence can be told apart from a zero value.
type OptionsPayload struct {
	Mode                 *string  `json:"mode" msgpack:"mode" validate:"required"`
	EnableClassification *bool    `json:"enableClassification" msgpack:"enableClassification" validate:"required"`
	EnableLandmarks      *bool    `json:"enableLandmarks" msgpack:"enableLandmarks" validate:"required"`
	EnableContours       *bool    `json:"enableContours" msgpack:"enableContours" validate:"required"`
	EnableTracking       *bool    `json:"enableTracking" msgpack:"enableTracking" validate:"required"`
	MinFaceSize          *float64 `json:"minFaceSize" msgpack:"minFaceSize" validate:"required,gt=0,lte=1"`
}

// DetectRequest is the body of the REST detect alias; the session id comes
// from the path.
type DetectRequest struct {
	ImageData *ImageData      `json:"imageData"`
	Options   *OptionsPayload `json:"options,omitempty"`
}

// MethodResponse is the reply envelope. Exactly one of Result, Error or
// NotImplemented is meaningful.
type MethodResponse struct {
	Seq            int64        `json:"seq,omitempty" msgpack:"seq,omitempty"`
	Result         interface{}  `json:"result" msgpack:"result"`
	Error          *ErrorDetail `json:"error,omitempty" msgpack:"error,omitempty"`
	NotImplemented bool         `json:"notImplemented,omitempty" msgpack:"notImplemented,omitempty"`
}

type ErrorDetail struct {
	Code    string      `json:"code" msgpack:"code"`
	Message string      `json:"message" msgpack:"message"`
	Details interface{} `json:"details" msgpack:"details"`
}

type DetectionResponse struct {
	Faces []entity.DetectedFace `json:"faces"`
	Count int                   `json:"count"`
}

type SessionsResponse struct {
	Sessions []entity.DetectorSession `json:"sessions"`
	Ledger   []string                 `json:"ledger,omitempty"`
}
