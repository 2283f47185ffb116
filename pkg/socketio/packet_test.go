package socketio

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name      string
		frame     string
		engine    EngineType
		typ       PacketType
		namespace string
		id        *uint64
		data      string
		wantErr   error
	}{
		{name: "ping", frame: "2", engine: EnginePing},
		{name: "connect ack", frame: `40{"sid":"x"}`, engine: EngineMessage, typ: PacketConnect, namespace: "/", data: `{"sid":"x"}`},
		{name: "server disconnect", frame: "41", engine: EngineMessage, typ: PacketDisconnect, namespace: "/"},
		{name: "event", frame: `42["ride_taken",{"rideId":"R1"}]`, engine: EngineMessage, typ: PacketEvent, namespace: "/", data: `["ride_taken",{"rideId":"R1"}]`},
		{name: "event with ack id", frame: `4212["x"]`, engine: EngineMessage, typ: PacketEvent, namespace: "/", id: ptr(12), data: `["x"]`},
		{name: "namespaced event", frame: `42/driver,["x",1]`, engine: EngineMessage, typ: PacketEvent, namespace: "/driver", data: `["x",1]`},
		{name: "empty", frame: "", wantErr: ErrEmptyFrame},
		{name: "unknown engine", frame: "9", wantErr: ErrUnknownPacket},
		{name: "unknown packet", frame: "49", wantErr: ErrUnknownPacket},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			et, p, err := DecodeFrame([]byte(tt.frame))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if et != tt.engine {
				t.Errorf("engine type = %q, want %q", et, tt.engine)
			}
			if et != EngineMessage {
				return
			}
			if p.Type != tt.typ || p.Namespace != tt.namespace || string(p.Data) != tt.data {
				t.Errorf("packet = {%q %q %s}, want {%q %q %s}", p.Type, p.Namespace, p.Data, tt.typ, tt.namespace, tt.data)
			}
			if (p.ID == nil) != (tt.id == nil) || (p.ID != nil && *p.ID != *tt.id) {
				t.Errorf("ack id = %v, want %v", p.ID, tt.id)
			}
		})
	}
}

func TestEncodeEvent(t *testing.T) {
	frame, err := EncodeEvent("send_otp", map[string]string{"otp": "1234"})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(frame), `42["send_otp",{"otp":"1234"}]`; got != want {
		t.Errorf("frame = %s, want %s", got, want)
	}

	frame, _ = EncodeEvent("test_event", nil)
	if got, want := string(frame), `42["test_event"]`; got != want {
		t.Errorf("frame = %s, want %s", got, want)
	}
}

func TestEncodeConnect(t *testing.T) {
	frame, err := EncodeConnect(map[string]string{"token": "abc"})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(frame), `40{"token":"abc"}`; got != want {
		t.Errorf("frame = %s, want %s", got, want)
	}
	frame, _ = EncodeConnect(nil)
	if string(frame) != "40" {
		t.Errorf("frame = %s, want 40", frame)
	}
}

func TestPacketEvent(t *testing.T) {
	p := &Packet{Type: PacketEvent, Data: json.RawMessage(`["active_ride_requests",[{"rideId":"R1"}]]`)}
	name, payload, err := p.Event()
	if err != nil {
		t.Fatal(err)
	}
	if name != "active_ride_requests" || string(payload) != `[{"rideId":"R1"}]` {
		t.Errorf("got %s %s", name, payload)
	}

	p.Data = json.RawMessage(`["connect"]`)
	if _, payload, _ := p.Event(); string(payload) != "null" {
		t.Errorf("missing argument should decode as null, got %s", payload)
	}

	for _, bad := range []string{`[]`, `{"a":1}`, `[1,2]`} {
		p.Data = json.RawMessage(bad)
		if _, _, err := p.Event(); !errors.Is(err, ErrBadEvent) {
			t.Errorf("Event(%s) err = %v, want ErrBadEvent", bad, err)
		}
	}
}

func TestConfigEndpoint(t *testing.T) {
	cfg := &Config{URL: "https://api.rideline.app", Query: map[string][]string{"type": {"driver"}, "id": {"D1"}}}
	got, err := cfg.Endpoint()
	if err != nil {
		t.Fatal(err)
	}
	want := "wss://api.rideline.app/socket.io/?EIO=4&id=D1&transport=websocket&type=driver"
	if got != want {
		t.Errorf("endpoint = %s, want %s", got, want)
	}

	for _, bad := range []string{"ftp://x", "https://", "://bad"} {
		cfg := &Config{URL: bad}
		if err := cfg.Validate(); err == nil {
			t.Errorf("Validate(%q) should fail", bad)
		}
	}
}

func ptr(v uint64) *uint64 { return &v }
