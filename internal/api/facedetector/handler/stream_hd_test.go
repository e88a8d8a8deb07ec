package faceDetectorHandler

import (
	"FaceBridge/internal/api/facedetector"
	faceDetectorService "FaceBridge/internal/api/facedetector/service"
	"FaceBridge/pkg/engine"
	"FaceBridge/pkg/engine/enginetest"
	"net"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/vmihailenco/msgpack/v5"
)

type msgpackEnvelope struct {
	Seq            int64                     `msgpack:"seq"`
	Result         []map[string]interface{}  `msgpack:"result"`
	Error          *facedetector.ErrorDetail `msgpack:"error"`
	NotImplemented bool                      `msgpack:"notImplemented"`
}

func dialStream(t *testing.T, b *testBridge) *websocket.Conn {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = b.app.Listener(ln) }()
	t.Cleanup(func() { _ = b.app.Shutdown() })

	url := "ws://" + ln.Addr().String() + "/api/v1/face-detector/ws"
	var conn *websocket.Conn
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, _, err = websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("dial %s: %v", url, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Cleanup(func() { _ = conn.Close() })

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestStreamEchoesSeqOverJSON(t *testing.T) {
	b := newTestBridge(t, enginetest.New(engine.Face{}), faceDetectorService.Config{})
	conn := dialStream(t, b)

	call := startCall("cam-1", options("fast"))
	call.Seq = 7
	payload, err := jsoniter.Marshal(call)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	messageType, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if messageType != websocket.TextMessage {
		t.Errorf("reply type = %d, want text", messageType)
	}

	var env envelope
	if err := jsoniter.Unmarshal(message, &env); err != nil {
		t.Fatalf("decode %q: %v", message, err)
	}
	if env.Seq != 7 {
		t.Errorf("seq = %d, want 7", env.Seq)
	}
	if env.Error != nil {
		t.Fatalf("unexpected error %+v", env.Error)
	}

	var faces []map[string]interface{}
	if err := jsoniter.Unmarshal(env.Result, &faces); err != nil || len(faces) != 1 {
		t.Errorf("result = %s, want one face", env.Result)
	}
}

func TestStreamAnswersMsgpackInKind(t *testing.T) {
	b := newTestBridge(t, enginetest.New(engine.Face{}, engine.Face{}), faceDetectorService.Config{})
	conn := dialStream(t, b)

	call := startCall("cam-2", options("accurate"))
	call.Seq = 42
	payload, err := msgpack.Marshal(&call)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	messageType, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if messageType != websocket.BinaryMessage {
		t.Fatalf("reply type = %d, want binary", messageType)
	}

	var env msgpackEnvelope
	if err := msgpack.Unmarshal(message, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Seq != 42 || env.Error != nil || len(env.Result) != 2 {
		t.Errorf("reply = %+v, want seq 42 with two faces", env)
	}
}

func TestStreamRejectsUndecodableMessages(t *testing.T) {
	b := newTestBridge(t, enginetest.New(), faceDetectorService.Config{})
	conn := dialStream(t, b)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var env envelope
	if err := jsoniter.Unmarshal(message, &env); err != nil {
		t.Fatalf("decode %q: %v", message, err)
	}
	if env.Error == nil || env.Error.Code != facedetector.ErrorKind {
		t.Errorf("error = %+v, want %s", env.Error, facedetector.ErrorKind)
	}
}

func TestStreamUnknownMethod(t *testing.T) {
	b := newTestBridge(t, enginetest.New(), faceDetectorService.Config{})
	conn := dialStream(t, b)

	payload, _ := jsoniter.Marshal(facedetector.MethodCall{Seq: 3, Method: "vision#startBarcodeScanner"})
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var env envelope
	if err := jsoniter.Unmarshal(message, &env); err != nil {
		t.Fatalf("decode %q: %v", message, err)
	}
	if env.Seq != 3 || !env.NotImplemented {
		t.Errorf("reply = %+v, want seq 3 not implemented", env)
	}
}
