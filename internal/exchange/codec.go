package exchange

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
)

type FrameKind int

// Пакеты Engine.IO v3 поверх websocket:
// 2probe, 3probe, 2 (ping), 3 (pong), 5 (upgrade, сервер начинает слать
// события), 1 (close), 42["name",{...}] (событие).
const (
	Unknown FrameKind = iota
	Probe
	ProbeAck
	Ping
	Pong
	Upgrade
	Close
	Event
)

func (k FrameKind) String() string {
	switch k {
	case Probe:
		return "probe"
	case ProbeAck:
		return "probe_ack"
	case Ping:
		return "ping"
	case Pong:
		return "pong"
	case Upgrade:
		return "upgrade"
	case Close:
		return "close"
	case Event:
		return "event"
	default:
		return "unknown"
	}
}

var ErrMalformedFrame = errors.New("malformed frame")

const eventPrefix = "42"

// Frame один пакет engine.io/socket.io. Payload у события хранится сырым JSON.
type Frame struct {
	Kind    FrameKind
	Name    string
	Payload []byte
}

var simpleFrames = map[string]FrameKind{
	"2probe": Probe,
	"3probe": ProbeAck,
	"2":      Ping,
	"3":      Pong,
	"5":      Upgrade,
	"1":      Close,
}

// Decode разбирает текстовый кадр. Незнакомый, но корректный пакет (40, 6 ...)
// отдаём как Unknown без ошибки; битое событие как Unknown + ErrMalformedFrame.
func Decode(raw []byte) (Frame, error) {
	s := strings.TrimSpace(string(raw))
	if k, ok := simpleFrames[s]; ok {
		return Frame{Kind: k}, nil
	}
	if !strings.HasPrefix(s, eventPrefix) {
		return Frame{Kind: Unknown}, nil
	}

	var parts []json.RawMessage
	if err := sonic.UnmarshalString(s[len(eventPrefix):], &parts); err != nil {
		return Frame{Kind: Unknown}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if len(parts) == 0 {
		return Frame{Kind: Unknown}, fmt.Errorf("%w: empty event", ErrMalformedFrame)
	}

	var name string
	if err := sonic.Unmarshal(parts[0], &name); err != nil || name == "" {
		return Frame{Kind: Unknown}, fmt.Errorf("%w: event name is not a string", ErrMalformedFrame)
	}

	f := Frame{Kind: Event, Name: name}
	if len(parts) > 1 {
		f.Payload = append([]byte(nil), parts[1]...)
	}
	return f, nil
}

func Encode(f Frame) []byte {
	switch f.Kind {
	case Probe:
		return []byte("2probe")
	case ProbeAck:
		return []byte("3probe")
	case Ping:
		return []byte("2")
	case Pong:
		return []byte("3")
	case Upgrade:
		return []byte("5")
	case Close:
		return []byte("1")
	case Event:
		name, _ := sonic.MarshalString(f.Name)
		var b strings.Builder
		b.Grow(len(eventPrefix) + len(name) + len(f.Payload) + 3)
		b.WriteString(eventPrefix)
		b.WriteByte('[')
		b.WriteString(name)
		if len(f.Payload) > 0 {
			b.WriteByte(',')
			b.Write(f.Payload)
		}
		b.WriteByte(']')
		return []byte(b.String())
	default:
		return nil
	}
}

// NewEvent событие с payload, сериализованным через sonic. v == nil => без payload.
func NewEvent(name string, v any) (Frame, error) {
	f := Frame{Kind: Event, Name: name}
	if v == nil {
		return f, nil
	}
	b, err := sonic.Marshal(v)
	if err != nil {
		return Frame{}, fmt.Errorf("NewEvent %s: %w", name, err)
	}
	f.Payload = b
	return f, nil
}

func (f Frame) Bind(v any) error {
	if f.Kind != Event || len(f.Payload) == 0 {
		return fmt.Errorf("%w: %s has no payload", ErrMalformedFrame, f.Name)
	}
	if err := sonic.Unmarshal(f.Payload, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedFrame, f.Name, err)
	}
	return nil
}

func (f Frame) String() string {
	if f.Kind == Event {
		return string(Encode(f))
	}
	return f.Kind.String()
}
