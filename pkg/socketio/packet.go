package socketio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// EngineType is an Engine.IO v4 packet type.
type EngineType byte

const (
	EngineOpen    EngineType = '0'
	EngineClose   EngineType = '1'
	EnginePing    EngineType = '2'
	EnginePong    EngineType = '3'
	EngineMessage EngineType = '4'
	EngineUpgrade EngineType = '5'
	EngineNoop    EngineType = '6'
)

// PacketType is a Socket.IO v5 packet type carried inside an Engine.IO message.
type PacketType byte

const (
	PacketConnect      PacketType = '0'
	PacketDisconnect   PacketType = '1'
	PacketEvent        PacketType = '2'
	PacketAck          PacketType = '3'
	PacketConnectError PacketType = '4'
	PacketBinaryEvent  PacketType = '5'
	PacketBinaryAck    PacketType = '6'
)

// DefaultNamespace is omitted on the wire.
const DefaultNamespace = "/"

var (
	ErrEmptyFrame    = errors.New("socketio: empty frame")
	ErrUnknownPacket = errors.New("socketio: unknown packet type")
	ErrBadEvent      = errors.New("socketio: malformed event payload")
)

// Packet is a decoded Socket.IO packet.
type Packet struct {
	Type      PacketType
	Namespace string
	// ID is the acknowledgement id, nil when none was sent.
	ID   *uint64
	Data json.RawMessage
}

// OpenPayload is the body of the Engine.IO open packet.
type OpenPayload struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload"`
}

// ConnectError is the body of a CONNECT_ERROR packet.
type ConnectError struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ConnectError) Error() string {
	return "socketio: connect rejected: " + e.Message
}

// Encode renders p as an Engine.IO message frame.
func (p Packet) Encode() []byte {
	var b bytes.Buffer
	b.WriteByte(byte(EngineMessage))
	b.WriteByte(byte(p.Type))
	if p.Namespace != "" && p.Namespace != DefaultNamespace {
		b.WriteString(p.Namespace)
		b.WriteByte(',')
	}
	if p.ID != nil {
		b.WriteString(strconv.FormatUint(*p.ID, 10))
	}
	b.Write(p.Data)
	return b.Bytes()
}

// EncodeEvent builds the frame for emitting event with a single argument.
func EncodeEvent(event string, payload any) ([]byte, error) {
	args := []any{event}
	if payload != nil {
		args = append(args, payload)
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return Packet{Type: PacketEvent, Data: data}.Encode(), nil
}

// EncodeConnect builds the CONNECT frame carrying the auth object.
func EncodeConnect(auth any) ([]byte, error) {
	p := Packet{Type: PacketConnect}
	if auth != nil {
		data, err := json.Marshal(auth)
		if err != nil {
			return nil, fmt.Errorf("encode auth: %w", err)
		}
		p.Data = data
	}
	return p.Encode(), nil
}

// DecodeFrame splits a text frame into its Engine.IO type and, for messages, the Socket.IO packet.
func DecodeFrame(frame []byte) (EngineType, *Packet, error) {
	if len(frame) == 0 {
		return 0, nil, ErrEmptyFrame
	}
	et := EngineType(frame[0])
	switch et {
	case EngineMessage:
		p, err := decodePacket(frame[1:])
		return et, p, err
	case EngineOpen, EngineClose, EnginePing, EnginePong, EngineUpgrade, EngineNoop:
		return et, nil, nil
	}
	return et, nil, fmt.Errorf("%w: engine %q", ErrUnknownPacket, frame[0])
}

func decodePacket(b []byte) (*Packet, error) {
	if len(b) == 0 {
		return nil, ErrEmptyFrame
	}
	p := &Packet{Type: PacketType(b[0]), Namespace: DefaultNamespace}
	if p.Type < PacketConnect || p.Type > PacketBinaryAck {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPacket, b[0])
	}
	b = b[1:]

	if len(b) > 0 && b[0] == '/' {
		i := bytes.IndexByte(b, ',')
		if i < 0 {
			p.Namespace, b = string(b), nil
		} else {
			p.Namespace, b = string(b[:i]), b[i+1:]
		}
	}

	n := 0
	for n < len(b) && b[n] >= '0' && b[n] <= '9' {
		n++
	}
	if n > 0 {
		id, err := strconv.ParseUint(string(b[:n]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("socketio: ack id: %w", err)
		}
		p.ID = &id
		b = b[n:]
	}

	if len(b) > 0 {
		if !json.Valid(b) {
			return nil, fmt.Errorf("socketio: packet data is not valid JSON")
		}
		p.Data = json.RawMessage(b)
	}
	return p, nil
}

// Event splits an EVENT packet's data into the event name and its first argument.
// A missing argument is returned as JSON null.
func (p *Packet) Event() (string, json.RawMessage, error) {
	var args []json.RawMessage
	if err := json.Unmarshal(p.Data, &args); err != nil || len(args) == 0 {
		return "", nil, ErrBadEvent
	}
	var name string
	if err := json.Unmarshal(args[0], &name); err != nil {
		return "", nil, ErrBadEvent
	}
	if len(args) == 1 {
		return name, json.RawMessage("null"), nil
	}
	return name, args[1], nil
}
