package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rideline-io/rideline/pkg/log"
)

// Disconnect reasons, named as the reference Socket.IO client names them.
const (
	ReasonClientDisconnect = "io client disconnect"
	ReasonServerDisconnect = "io server disconnect"
	ReasonTransportClose   = "transport close"
	ReasonTransportError   = "transport error"
	ReasonPingTimeout      = "ping timeout"
	ReasonParseError       = "parse error"
)

// ErrNotConnected is returned by Emit before the CONNECT handshake completed.
var ErrNotConnected = errors.New("socketio: not connected")

// Handler receives connection and event callbacks. Callbacks of one session arrive
// on a single goroutine, in wire order.
type Handler interface {
	OnConnect()
	OnDisconnect(reason string)
	OnConnectError(err error)
	OnEvent(name string, payload json.RawMessage)
}

// Client is a Socket.IO v5 client speaking Engine.IO v4 over WebSocket only.
type Client struct {
	cfg      *Config
	endpoint string
	handler  Handler
	dialer   *websocket.Dialer

	mu      sync.Mutex
	current *session
}

type session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	connected atomic.Bool
	// quiet suppresses callbacks once the session has been replaced or closed locally.
	quiet   atomic.Bool
	closing atomic.Bool
	done    chan struct{}
}

// NewClient creates a client. It does not dial.
func NewClient(cfg *Config, h Handler) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("socketio config is required")
	}
	if h == nil {
		return nil, errors.New("socketio handler is required")
	}
	setDefaultConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid socketio config: %w", err)
	}
	endpoint, _ := cfg.Endpoint() // Already validated

	return &Client{
		cfg:      cfg,
		endpoint: endpoint,
		handler:  h,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: cfg.ConnectTimeout,
		},
	}, nil
}

// Open starts a session in the background. The outcome is reported to the Handler.
func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && !c.current.closing.Load() {
		return nil
	}
	c.start(ctx)
	return nil
}

// Reconnect drops the current session without reporting it and dials again.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s := c.current; s != nil {
		s.quiet.Store(true)
		s.close()
	}
	c.start(ctx)
	return nil
}

// Close ends the session, reporting ReasonClientDisconnect if it was connected.
func (c *Client) Close() error {
	c.mu.Lock()
	s := c.current
	c.current = nil
	c.mu.Unlock()

	if s == nil {
		return nil
	}
	wasConnected := s.connected.Load()
	s.quiet.Store(true)
	if wasConnected {
		_ = s.write(Packet{Type: PacketDisconnect}.Encode(), time.Now().Add(time.Second))
	}
	s.close()
	if wasConnected {
		c.handler.OnDisconnect(ReasonClientDisconnect)
	}
	return nil
}

// Connected reports whether the CONNECT handshake completed and the session is alive.
func (c *Client) Connected() bool {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	return s != nil && s.connected.Load()
}

// Emit writes a single EVENT packet.
func (c *Client) Emit(ctx context.Context, event string, payload any) error {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s == nil || !s.connected.Load() {
		return ErrNotConnected
	}

	frame, err := EncodeEvent(event, payload)
	if err != nil {
		return err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.cfg.WriteTimeout)
	}
	return s.write(frame, deadline)
}

// start must be called with c.mu held.
func (c *Client) start(ctx context.Context) {
	s := &session{done: make(chan struct{})}
	c.current = s
	go c.run(context.WithoutCancel(ctx), s)
}

func (c *Client) run(ctx context.Context, s *session) {
	defer close(s.done)

	dctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	conn, _, err := c.dialer.DialContext(dctx, c.endpoint, c.cfg.Header)
	cancel()
	if err != nil {
		s.close()
		c.connectError(s, fmt.Errorf("dial %s: %w", c.cfg.URL, err))
		return
	}

	s.writeMu.Lock()
	s.conn = conn
	s.writeMu.Unlock()
	if s.closing.Load() {
		_ = conn.Close()
		return
	}

	open, err := c.handshake(s)
	if err != nil {
		s.close()
		c.connectError(s, err)
		return
	}

	s.connected.Store(true)
	log.Debug("Socket.IO session established", "sid", open.SID, "pingInterval", open.PingInterval)
	if !s.quiet.Load() {
		c.handler.OnConnect()
	}

	reason := c.readLoop(s, open)
	s.connected.Store(false)
	s.close()
	if !s.quiet.Load() {
		c.handler.OnDisconnect(reason)
	}
}

func (c *Client) connectError(s *session, err error) {
	if s.quiet.Load() {
		return
	}
	log.Debug("Socket.IO connect failed", "error", err.Error())
	c.handler.OnConnectError(err)
}

// handshake reads the Engine.IO open packet, sends CONNECT and waits for the server's CONNECT.
func (c *Client) handshake(s *session) (*OpenPayload, error) {
	deadline := time.Now().Add(c.cfg.ConnectTimeout)
	_ = s.conn.SetReadDeadline(deadline)

	_, frame, err := s.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read open packet: %w", err)
	}
	if len(frame) == 0 || EngineType(frame[0]) != EngineOpen {
		return nil, fmt.Errorf("expected open packet, got %q", frame)
	}
	open := &OpenPayload{}
	if err := json.Unmarshal(frame[1:], open); err != nil {
		return nil, fmt.Errorf("decode open packet: %w", err)
	}

	connect, err := EncodeConnect(c.cfg.Auth)
	if err != nil {
		return nil, err
	}
	if err := s.write(connect, deadline); err != nil {
		return nil, fmt.Errorf("send connect: %w", err)
	}

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("await connect: %w", err)
		}
		et, p, err := DecodeFrame(frame)
		if err != nil {
			return nil, err
		}
		switch {
		case et == EnginePing:
			if err := s.write([]byte{byte(EnginePong)}, deadline); err != nil {
				return nil, err
			}
		case et == EngineMessage && p.Type == PacketConnect:
			return open, nil
		case et == EngineMessage && p.Type == PacketConnectError:
			ce := &ConnectError{}
			if err := json.Unmarshal(p.Data, ce); err != nil {
				ce.Message = string(p.Data)
			}
			return nil, ce
		case et == EngineClose:
			return nil, errors.New("server closed during handshake")
		}
	}
}

// readLoop pumps frames until the session ends and returns the disconnect reason.
func (c *Client) readLoop(s *session, open *OpenPayload) string {
	window := time.Duration(open.PingInterval+open.PingTimeout) * time.Millisecond
	if window <= 0 {
		window = 45 * time.Second
	}

	for {
		_ = s.conn.SetReadDeadline(time.Now().Add(window))
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			return readErrorReason(s, err)
		}

		et, p, err := DecodeFrame(frame)
		if err != nil {
			log.Warn("Dropping undecodable frame", "error", err.Error())
			return ReasonParseError
		}

		switch et {
		case EnginePing:
			if err := s.write([]byte{byte(EnginePong)}, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				return ReasonTransportError
			}
		case EngineClose:
			return ReasonTransportClose
		case EngineMessage:
			switch p.Type {
			case PacketEvent:
				name, payload, err := p.Event()
				if err != nil {
					return ReasonParseError
				}
				if !s.quiet.Load() {
					c.handler.OnEvent(name, payload)
				}
			case PacketDisconnect:
				return ReasonServerDisconnect
			case PacketAck, PacketConnect:
			default:
				log.Debug("Ignoring unsupported packet", "type", string(p.Type))
			}
		}
	}
}

func readErrorReason(s *session, err error) string {
	if s.closing.Load() {
		return ReasonClientDisconnect
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return ReasonPingTimeout
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ReasonTransportClose
	}
	return ReasonTransportError
}

func (s *session) write(frame []byte, deadline time.Time) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	_ = s.conn.SetWriteDeadline(deadline)
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

func (s *session) close() {
	if s.closing.Swap(true) {
		return
	}
	s.connected.Store(false)
	s.writeMu.Lock()
	conn := s.conn
	s.writeMu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}
