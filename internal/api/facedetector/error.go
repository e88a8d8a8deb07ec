package facedetector

import (
	"FaceBridge/pkg/response"
	"net/http"
)

// ErrorKind is the error code callers receive for every detector failure.
const ErrorKind = "FaceDetectorError"

var (
	ErrInvalidRequest       = response.NewKindError(http.StatusBadRequest, ErrorKind, "invalid request")
	ErrInvalidOptions       = response.NewKindError(http.StatusBadRequest, ErrorKind, "Invalid options")
	ErrInvalidConfiguration = response.NewKindError(http.StatusBadRequest, ErrorKind, "invalid configuration")
	ErrEngineFailure        = response.NewKindError(http.StatusBadGateway, ErrorKind, "face detection failed")
	ErrMethodNotImplemented = response.NewError(http.StatusNotImplemented, "method not implemented")
	ErrBridgeShutdown       = response.NewKindError(http.StatusServiceUnavailable, ErrorKind, "face detector bridge is shutting down")
	ErrInternalServerError  = response.NewError(http.StatusInternalServerError, "internal server error")
)
