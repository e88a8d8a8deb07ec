package faceDetectorHandler

import (
	"FaceBridge/internal/api/facedetector"
	contextPkg "FaceBridge/pkg/context"
	"FaceBridge/pkg/handlerUtil"
	"FaceBridge/pkg/log"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// invoke runs a method call and returns the reply with the HTTP status it
// maps to. A nil reply means the call was dropped.
func (h *FaceDetectorHandler) invoke(ctx context.Context, call facedetector.MethodCall) (*facedetector.MethodResponse, int, error) {
	switch call.Method {
	case facedetector.MethodStart:
		res := <-h.faceDetectorService.Start(ctx, call.Arguments)
		if res.Err != nil {
			if errors.Is(res.Err, facedetector.ErrInvalidRequest) && !h.faceDetectorService.StrictRequests() {
				return nil, http.StatusNoContent, res.Err
			}
			reply := handlerUtil.NewErrorResponse(res.Err)
			return &reply, handlerUtil.StatusOf(res.Err), res.Err
		}
		return &facedetector.MethodResponse{Result: res.Faces}, http.StatusOK, nil

	case facedetector.MethodClose:
		h.faceDetectorService.Close(ctx, call.Arguments.ID)
		return &facedetector.MethodResponse{}, http.StatusOK, nil

	default:
		err := fmt.Errorf("%w: %s", facedetector.ErrMethodNotImplemented, call.Method)
		reply := handlerUtil.NewErrorResponse(err)
		return &reply, http.StatusNotImplemented, err
	}
}

func (h *FaceDetectorHandler) HandleMethodCall(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c := contextPkg.FromFiberCtx(ctx)
	errHandler := handlerUtil.New(h.log)

	var call facedetector.MethodCall
	if err := ctx.BodyParser(&call); err != nil {
		return errHandler.Handle(ctx, requestID, fmt.Errorf("%w: %v", facedetector.ErrInvalidRequest, err), ctx.Path(), "parse_request_body")
	}

	if err := h.validator.Struct(call); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"method":     call.Method,
		"session_id": call.Arguments.ID,
	}).Debug("Processing method call")

	reply, status, err := h.invoke(c, call)
	if reply == nil {
		return errHandler.HandleDropped(ctx, requestID, err, ctx.Path())
	}
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), call.Method)
	}

	return errHandler.HandleSuccess(ctx, status, reply)
}

func (h *FaceDetectorHandler) Detect(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c := contextPkg.FromFiberCtx(ctx)
	errHandler := handlerUtil.New(h.log)

	var req facedetector.DetectRequest
	if err := ctx.BodyParser(&req); err != nil {
		return errHandler.Handle(ctx, requestID, fmt.Errorf("%w: %v", facedetector.ErrInvalidRequest, err), ctx.Path(), "parse_request_body")
	}

	id := ctx.Params("id")
	res := <-h.faceDetectorService.Start(c, facedetector.CallArguments{
		ID:        id,
		ImageData: req.ImageData,
		Options:   req.Options,
	})
	if res.Err != nil {
		if errors.Is(res.Err, facedetector.ErrInvalidRequest) && !h.faceDetectorService.StrictRequests() {
			return errHandler.HandleDropped(ctx, requestID, res.Err, ctx.Path())
		}
		return errHandler.Handle(ctx, requestID, res.Err, ctx.Path(), "detect")
	}

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"session_id": id,
		"faces":      len(res.Faces),
	}).Info("Face detection successful")

	return errHandler.HandleSuccess(ctx, fiber.StatusOK, facedetector.MethodResponse{
		Result: facedetector.DetectionResponse{
			Faces: res.Faces,
			Count: len(res.Faces),
		},
	})
}

func (h *FaceDetectorHandler) CloseSession(ctx *fiber.Ctx) error {
	c := contextPkg.FromFiberCtx(ctx)

	h.faceDetectorService.Close(c, ctx.Params("id"))

	return handlerUtil.New(h.log).HandleSuccess(ctx, fiber.StatusOK, facedetector.MethodResponse{})
}

func (h *FaceDetectorHandler) ListSessions(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c := contextPkg.FromFiberCtx(ctx)
	errHandler := handlerUtil.New(h.log)

	sessions, err := h.faceDetectorService.Sessions(c)
	if err != nil {
		// the ledger is advisory; local sessions are still worth returning
		h.log.WithFields(log.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Warn("Failed to read session ledger")
	}

	return errHandler.HandleSuccess(ctx, fiber.StatusOK, facedetector.MethodResponse{Result: sessions})
}
