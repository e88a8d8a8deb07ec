package websocketPkg

import (
	"FaceBridge/internal/entity"
	"FaceBridge/pkg/engine"
	"FaceBridge/pkg/utils"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	opCreate  = "create"
	opProcess = "process"
	opClose   = "close"
)

var (
	ErrNotConnected = errors.New("not connected to face detection engine")
	ErrEngineClosed = errors.New("face detection engine client closed")
	ErrTimeout      = errors.New("face detection engine did not answer in time")
)

// IWebsocket is an engine reached over a single WebSocket connection.
type IWebsocket interface {
	engine.Engine
	IsConnected() bool
	Reconnect() error
}

type engineRequest struct {
	ID       string                  `msgpack:"id"`
	Op       string                  `msgpack:"op"`
	Detector string                  `msgpack:"detector,omitempty"`
	Options  *entity.DetectorOptions `msgpack:"options,omitempty"`
	Image    *wireImage              `msgpack:"image,omitempty"`
}

type wireImage struct {
	Width    int    `msgpack:"w"`
	Height   int    `msgpack:"h"`
	Rotation int    `msgpack:"r"`
	Format   string `msgpack:"f"`
	Data     []byte `msgpack:"d"`
}

type engineResponse struct {
	ID       string        `msgpack:"id"`
	OK       bool          `msgpack:"ok"`
	Error    string        `msgpack:"error,omitempty"`
	Detector string        `msgpack:"detector,omitempty"`
	Faces    []engine.Face `msgpack:"faces,omitempty"`
}

type pendingCall struct {
	conn  *websocket.Conn
	reply chan engineResponse
	fail  chan error
}

type webSocketClient struct {
	url   string
	log   *logrus.Logger
	utils utils.IUtils

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]*pendingCall
	closed  bool

	writeMu sync.Mutex

	pingInterval   time.Duration
	pongWait       time.Duration
	writeTimeout   time.Duration
	requestTimeout time.Duration
}

// NewEngineClient dials ENGINE_URL in the background. Calls made before the
// link is up connect on demand.
func NewEngineClient(log *logrus.Logger, utils utils.IUtils) IWebsocket {
	url := os.Getenv("ENGINE_URL")
	if url == "" {
		url = "ws://localhost:8000/api/v1/face/ws"
	}

	timeout, err := time.ParseDuration(os.Getenv("ENGINE_REQUEST_TIMEOUT"))
	if err != nil || timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := newClient(log, utils, url, timeout)
	go client.connectInBackground()

	return client
}

func newClient(log *logrus.Logger, utils utils.IUtils, url string, timeout time.Duration) *webSocketClient {
	return &webSocketClient{
		url:            url,
		log:            log,
		utils:          utils,
		pending:        make(map[string]*pendingCall),
		pingInterval:   30 * time.Second,
		pongWait:       60 * time.Second,
		writeTimeout:   5 * time.Second,
		requestTimeout: timeout,
	}
}

func (c *webSocketClient) connectInBackground() {
	if err := c.Reconnect(); err != nil {
		c.log.WithError(err).Warn("Initial connection to face detection engine failed. Will retry on demand.")
		return
	}
	c.log.WithField("url", c.url).Info("Connected to face detection engine")
}

func (c *webSocketClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *webSocketClient) Reconnect() error {
	_, err := c.dial(true)
	return err
}

// dial returns the live connection, opening one when there is none or when
// force is set.
func (c *webSocketClient) dial(force bool) (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrEngineClosed
	}
	if c.conn != nil {
		if !force {
			return c.conn, nil
		}
		c.dropLocked(c.conn, ErrNotConnected)
	}

	c.log.WithField("url", c.url).Debug("Connecting to face detection engine")

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	conn.SetPingHandler(func(appData string) error {
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.writeTimeout))
		if err != nil {
			c.log.WithError(err).Debug("Error sending pong")
		}
		return nil
	})
	_ = conn.SetReadDeadline(time.Now().Add(c.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	c.conn = conn

	go c.readLoop(conn)
	go c.keepAlive(conn)

	return conn, nil
}

// Close fails every pending call and closes the link. The client cannot be
// reused afterwards.
func (c *webSocketClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.conn == nil {
		return nil
	}

	conn := c.conn
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.writeTimeout),
	)
	c.dropLocked(conn, ErrEngineClosed)

	return nil
}

func (c *webSocketClient) CreateDetector(ctx context.Context, options entity.DetectorOptions) (engine.Detector, error) {
	name, err := c.utils.NewULIDFromTimestamp(time.Now())
	if err != nil {
		return nil, err
	}

	resp, err := c.call(ctx, engineRequest{
		Op:       opCreate,
		Detector: name,
		Options:  &options,
	})
	if err != nil {
		return nil, err
	}

	if resp.Detector != "" {
		name = resp.Detector
	}

	c.log.WithFields(logrus.Fields{
		"detector": name,
		"mode":     options.PerformanceMode,
	}).Debug("Remote detector created")

	return &remoteDetector{client: c, name: name}, nil
}

func (c *webSocketClient) call(ctx context.Context, req engineRequest) (engineResponse, error) {
	conn, err := c.dial(false)
	if err != nil {
		return engineResponse{}, fmt.Errorf("cannot connect to face detection engine: %w", err)
	}

	id, err := c.utils.NewULIDFromTimestamp(time.Now())
	if err != nil {
		return engineResponse{}, err
	}
	req.ID = id

	payload, err := msgpack.Marshal(&req)
	if err != nil {
		return engineResponse{}, fmt.Errorf("error encoding %s request: %w", req.Op, err)
	}

	call := &pendingCall{
		conn:  conn,
		reply: make(chan engineResponse, 1),
		fail:  make(chan error, 1),
	}
	c.mu.Lock()
	c.pending[id] = call
	c.mu.Unlock()
	defer c.forget(id)

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	err = conn.WriteMessage(websocket.BinaryMessage, payload)
	c.writeMu.Unlock()
	if err != nil {
		c.drop(conn, err)
		return engineResponse{}, fmt.Errorf("error sending %s request: %w", req.Op, err)
	}

	timer := time.NewTimer(c.requestTimeout)
	defer timer.Stop()

	select {
	case resp := <-call.reply:
		if !resp.OK {
			msg := resp.Error
			if msg == "" {
				msg = "unknown engine error"
			}
			return resp, errors.New(msg)
		}
		return resp, nil
	case err := <-call.fail:
		return engineResponse{}, err
	case <-timer.C:
		return engineResponse{}, fmt.Errorf("%w: %s after %s", ErrTimeout, req.Op, c.requestTimeout)
	case <-ctx.Done():
		return engineResponse{}, ctx.Err()
	}
}

func (c *webSocketClient) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.drop(conn, fmt.Errorf("%w: %v", ErrNotConnected, err))
			return
		}

		var resp engineResponse
		if err := msgpack.Unmarshal(message, &resp); err != nil {
			c.log.WithError(err).Warn("Discarding undecodable engine message")
			continue
		}

		c.mu.Lock()
		call, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()

		if !ok {
			c.log.WithField("engine_request_id", resp.ID).Debug("Engine reply for an abandoned request")
			continue
		}
		call.reply <- resp
	}
}

func (c *webSocketClient) keepAlive(conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		current := c.conn
		c.mu.Unlock()

		if current != conn {
			return
		}

		err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(c.writeTimeout))
		if err != nil {
			c.log.WithError(err).Warn("Ping failed for face detection engine, marking connection as dead")
			c.drop(conn, fmt.Errorf("%w: %v", ErrNotConnected, err))
			return
		}
	}
}

func (c *webSocketClient) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *webSocketClient) drop(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked(conn, cause)
}

// dropLocked closes conn and fails the calls waiting on it. c.mu must be held.
func (c *webSocketClient) dropLocked(conn *websocket.Conn, cause error) {
	if c.conn == conn {
		c.conn = nil
	}
	_ = conn.Close()

	for id, call := range c.pending {
		if call.conn != conn {
			continue
		}
		delete(c.pending, id)
		select {
		case call.fail <- cause:
		default:
		}
	}
}

type remoteDetector struct {
	client *webSocketClient
	name   string

	mu     sync.Mutex
	closed bool
}

func (d *remoteDetector) Process(ctx context.Context, image *entity.InputImage) ([]engine.Face, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, engine.ErrDetectorClosed
	}

	resp, err := d.client.call(ctx, engineRequest{
		Op:       opProcess,
		Detector: d.name,
		Image: &wireImage{
			Width:    image.Width,
			Height:   image.Height,
			Rotation: image.Rotation,
			Format:   image.Format,
			Data:     image.Bytes,
		},
	})
	if err != nil {
		return nil, err
	}

	return resp.Faces, nil
}

func (d *remoteDetector) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), d.client.requestTimeout)
	defer cancel()

	_, err := d.client.call(ctx, engineRequest{
		Op:       opClose,
		Detector: d.name,
	})
	if errors.Is(err, ErrEngineClosed) {
		return nil
	}
	return err
}
