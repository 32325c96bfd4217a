package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBoot struct {
	mu    sync.Mutex
	calls int
	sid   string
	err   error
}

func (f *fakeBoot) Acquire(ctx context.Context, ep Endpoint) (Handshake, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return Handshake{}, f.err
	}
	return Handshake{SID: f.sid}, nil
}

func (f *fakeBoot) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// wsServer отвечает 3probe на 2probe и складывает остальные кадры клиента в received.
type wsServer struct {
	*httptest.Server
	received chan string
}

func newWSServer(t *testing.T, afterUpgrade func(c *websocket.Conn)) *wsServer {
	t.Helper()
	s := &wsServer{received: make(chan string, 256)}
	up := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			switch string(msg) {
			case "2probe":
				_ = c.WriteMessage(websocket.TextMessage, []byte("3probe"))
				continue
			case "5":
				if afterUpgrade != nil {
					afterUpgrade(c)
				}
			}
			select {
			case s.received <- string(msg):
			default:
			}
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *wsServer) waitFor(t *testing.T, prefix string) string {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case m := <-s.received:
			if strings.HasPrefix(m, prefix) {
				return m
			}
		case <-deadline:
			t.Fatalf("server did not receive %q", prefix)
			return ""
		}
	}
}

func waitEvent(t *testing.T, ch <-chan SessionEvent, kind SessionEventKind) SessionEvent {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event", kind)
			return SessionEvent{}
		}
	}
}

func testConfig(srv *wsServer) SessionConfig {
	return SessionConfig{
		Tag:              "feed",
		Endpoint:         Endpoint{BaseURL: srv.URL},
		KeepAlive:        time.Hour,
		HandshakeTimeout: time.Second,
		RetryDelay:       time.Millisecond,
	}
}

func startSession(t *testing.T, s *Session) <-chan error {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- s.Run(context.Background()) }()
	return errc
}

func TestSessionReadyAndMessages(t *testing.T) {
	srv := newWSServer(t, func(c *websocket.Conn) {
		_ = c.WriteMessage(websocket.TextMessage, []byte(`42["RealData",{"n":1}]`))
	})
	events := make(chan SessionEvent, 64)
	s := NewSession(testConfig(srv), &fakeBoot{sid: "sid-1"}, nil, events)
	errc := startSession(t, s)

	ready := waitEvent(t, events, SessionReady)
	assert.Equal(t, s.ID(), ready.SessionID)
	assert.Equal(t, "feed", ready.Tag)

	msg := waitEvent(t, events, SessionMessage)
	assert.Equal(t, "RealData", msg.Frame.Name)
	assert.JSONEq(t, `{"n":1}`, string(msg.Frame.Payload))

	f, err := NewEvent("ping_me", map[string]int{"a": 1})
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), f))
	assert.Equal(t, `42["ping_me",{"a":1}]`, srv.waitFor(t, `42["ping_me"`))

	s.Stop()
	assert.Equal(t, StateClosed, s.State())
	assert.NoError(t, <-errc)
	assert.ErrorIs(t, s.Send(context.Background(), f), ErrNotReady)
}

func TestSessionTradeIdentity(t *testing.T) {
	srv := newWSServer(t, nil)
	events := make(chan SessionEvent, 64)

	var preparedSID string
	cfg := testConfig(srv)
	cfg.Tag = "a1"
	cfg.Identity = &Identity{UID: "u1", AccountID: "a1", Token: "tok"}
	cfg.Prepare = func(ctx context.Context, sid string) error {
		preparedSID = sid
		return nil
	}

	s := NewSession(cfg, &fakeBoot{sid: "sid-7"}, nil, events)
	startSession(t, s)
	defer s.Stop()

	waitEvent(t, events, SessionReady)
	assert.Equal(t, "sid-7", preparedSID)
	assert.Equal(t, `42["keep_alive",{"uid":"u1","account_id":"a1","token":"tok"}]`, srv.waitFor(t, `42["keep_alive"`))
}

func TestSessionKeepAlivePing(t *testing.T) {
	srv := newWSServer(t, nil)
	events := make(chan SessionEvent, 64)
	cfg := testConfig(srv)
	cfg.KeepAlive = 10 * time.Millisecond

	s := NewSession(cfg, &fakeBoot{sid: "sid"}, nil, events)
	startSession(t, s)
	defer s.Stop()

	waitEvent(t, events, SessionReady)
	srv.waitFor(t, "2")
	srv.waitFor(t, "2")
}

func TestSessionSendNotReady(t *testing.T) {
	s := NewSession(SessionConfig{Tag: "a1"}, &fakeBoot{sid: "sid"}, nil, nil)
	f, _ := NewEvent("keep_alive", nil)
	assert.ErrorIs(t, s.Send(context.Background(), f), ErrNotReady)
	assert.Equal(t, StateIdle, s.State())
}

func TestSessionExhaustsRetries(t *testing.T) {
	boot := &fakeBoot{err: errors.New("connection refused")}
	events := make(chan SessionEvent, 64)
	s := NewSession(SessionConfig{
		Tag:        "a1",
		Endpoint:   Endpoint{BaseURL: "http://127.0.0.1:1"},
		MaxRetries: 5,
		RetryDelay: time.Millisecond,
	}, boot, nil, events)

	err := s.Run(context.Background())
	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 6, boot.Calls())

	close(events)
	var reconnecting, exhausted int
	for ev := range events {
		switch ev.Kind {
		case SessionReconnecting:
			reconnecting++
			assert.Equal(t, reconnecting, ev.Attempt)
		case SessionExhausted:
			exhausted++
		}
	}
	assert.Equal(t, 6, reconnecting)
	assert.Equal(t, 1, exhausted)
}

func TestSessionReconnectsAfterMalformedFrames(t *testing.T) {
	var once sync.Once
	srv := newWSServer(t, func(c *websocket.Conn) {
		once.Do(func() {
			for i := 0; i < 3; i++ {
				_ = c.WriteMessage(websocket.TextMessage, []byte(`42[`))
			}
		})
	})
	events := make(chan SessionEvent, 64)
	cfg := testConfig(srv)
	cfg.MaxMalformed = 3

	s := NewSession(cfg, &fakeBoot{sid: "sid"}, nil, events)
	startSession(t, s)
	defer s.Stop()

	waitEvent(t, events, SessionReady)
	ev := waitEvent(t, events, SessionReconnecting)
	assert.ErrorIs(t, ev.Err, errTooManyMalformed)
	assert.Equal(t, 1, ev.Attempt)

	waitEvent(t, events, SessionReady)
}

func TestSessionServerClose(t *testing.T) {
	var once sync.Once
	srv := newWSServer(t, func(c *websocket.Conn) {
		once.Do(func() { _ = c.WriteMessage(websocket.TextMessage, []byte("1")) })
	})
	events := make(chan SessionEvent, 64)
	s := NewSession(testConfig(srv), &fakeBoot{sid: "sid"}, nil, events)
	startSession(t, s)
	defer s.Stop()

	ev := waitEvent(t, events, SessionReconnecting)
	assert.ErrorIs(t, ev.Err, errServerClosed)
}

func TestSessionForceReconnect(t *testing.T) {
	srv := newWSServer(t, nil)
	events := make(chan SessionEvent, 64)
	boot := &fakeBoot{sid: "sid"}
	s := NewSession(testConfig(srv), boot, nil, events)
	startSession(t, s)
	defer s.Stop()

	waitEvent(t, events, SessionReady)
	s.ForceReconnect()
	ev := waitEvent(t, events, SessionReconnecting)
	assert.ErrorIs(t, ev.Err, errForcedReconnect)

	waitEvent(t, events, SessionReady)
	assert.Equal(t, 2, boot.Calls())
}

func TestSessionForceReconnectBeforeReady(t *testing.T) {
	srv := newWSServer(t, nil)
	events := make(chan SessionEvent, 64)
	boot := &fakeBoot{sid: "sid"}
	s := NewSession(testConfig(srv), boot, nil, events)
	s.ForceReconnect()
	startSession(t, s)
	defer s.Stop()

	waitEvent(t, events, SessionReady)
	s.ForceReconnect()
	ev := waitEvent(t, events, SessionReconnecting)
	assert.ErrorIs(t, ev.Err, errForcedReconnect)
	waitEvent(t, events, SessionReady)
	// старый запрос не рвёт свежее подключение
	assert.Equal(t, 2, boot.Calls())

	time.Sleep(50 * time.Millisecond)
	for {
		select {
		case ev := <-events:
			assert.NotEqual(t, SessionReconnecting, ev.Kind)
			continue
		default:
		}
		break
	}
	assert.Equal(t, 2, boot.Calls())
}

func TestSessionStopBeforeRun(t *testing.T) {
	s := NewSession(SessionConfig{Tag: "a1"}, &fakeBoot{sid: "sid"}, nil, nil)
	s.Stop()
	assert.NoError(t, s.Run(context.Background()))
	assert.Equal(t, StateClosed, s.State())
	assert.ErrorIs(t, s.Run(context.Background()), ErrAlreadyStarted)
}
