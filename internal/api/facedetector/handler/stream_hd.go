package faceDetectorHandler

import (
	"FaceBridge/internal/api/facedetector"
	"FaceBridge/internal/middleware"
	contextPkg "FaceBridge/pkg/context"
	"FaceBridge/pkg/handlerUtil"
	"FaceBridge/pkg/log"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	streamReadTimeout  = 60 * time.Second
	streamWriteTimeout = 10 * time.Second
)

type streamCodec struct {
	marshal   func(v interface{}) ([]byte, error)
	unmarshal func(data []byte, v interface{}) error
}

// Text frames carry JSON envelopes, binary frames carry msgpack. Replies use
// the encoding of the request they answer.
var streamCodecs = map[int]streamCodec{
	websocket.TextMessage:   {marshal: jsoniter.Marshal, unmarshal: jsoniter.Unmarshal},
	websocket.BinaryMessage: {marshal: msgpack.Marshal, unmarshal: msgpack.Unmarshal},
}

type streamWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *streamWriter) write(messageType int, payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
		return err
	}
	return w.conn.WriteMessage(messageType, payload)
}

func (h *FaceDetectorHandler) handleStream(c *websocket.Conn) {
	requestID, _ := c.Locals(middleware.RequestIDKey).(string)
	ctx := contextPkg.WithRequestID(context.Background(), requestID)
	logger := h.log.WithField("request_id", requestID)

	logger.Info("Face detector stream connected")
	defer logger.Info("Face detector stream disconnected")

	c.SetPingHandler(func(data string) error {
		if err := c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second)); err != nil {
			logger.Errorf("Error sending pong: %v", err)
		}
		return nil
	})

	writer := &streamWriter{conn: c}
	var pending sync.WaitGroup
	defer pending.Wait()

	for {
		if err := c.SetReadDeadline(time.Now().Add(streamReadTimeout)); err != nil {
			logger.Errorf("Error setting read deadline: %v", err)
			break
		}

		messageType, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("Face detector stream error: %v", err)
			}
			break
		}

		codec, ok := streamCodecs[messageType]
		if !ok {
			logger.Warnf("Received unexpected message type: %d", messageType)
			continue
		}

		var call facedetector.MethodCall
		if err := codec.unmarshal(message, &call); err != nil {
			h.replyStream(writer, codec, messageType, 0, fmt.Errorf("%w: %v", facedetector.ErrInvalidRequest, err))
			continue
		}
		if err := h.validator.Struct(call); err != nil {
			h.replyStream(writer, codec, messageType, call.Seq, fmt.Errorf("%w: %v", facedetector.ErrInvalidRequest, err))
			continue
		}

		pending.Add(1)
		go func(call facedetector.MethodCall) {
			defer pending.Done()

			reply, _, err := h.invoke(ctx, call)
			if reply == nil {
				logger.WithFields(log.Fields{
					"seq":        call.Seq,
					"session_id": call.Arguments.ID,
					"error":      err.Error(),
				}).Warn("Dropping malformed request")
				return
			}

			reply.Seq = call.Seq
			h.writeStream(writer, codec, messageType, reply)
		}(call)
	}
}

func (h *FaceDetectorHandler) replyStream(w *streamWriter, codec streamCodec, messageType int, seq int64, err error) {
	h.log.WithFields(log.Fields{
		"seq":   seq,
		"error": err.Error(),
	}).Warn("Rejecting stream message")

	reply := handlerUtil.NewErrorResponse(err)
	reply.Seq = seq
	h.writeStream(w, codec, messageType, &reply)
}

func (h *FaceDetectorHandler) writeStream(w *streamWriter, codec streamCodec, messageType int, reply *facedetector.MethodResponse) {
	payload, err := codec.marshal(reply)
	if err != nil {
		h.log.Errorf("Error encoding stream reply: %v", err)
		return
	}

	if err := w.write(messageType, payload); err != nil {
		h.log.Errorf("Error writing stream reply: %v", err)
	}
}
