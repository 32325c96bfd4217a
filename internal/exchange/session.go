package exchange

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"streak_bot/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	DefaultKeepAlive        = 25 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultMaxRetries       = 5
	DefaultRetryDelay       = time.Second
	DefaultMaxMalformed     = 20

	writeWait = 10 * time.Second
)

// Bootstrapper выдаёт sid до открытия сокета.
type Bootstrapper interface {
	Acquire(ctx context.Context, ep Endpoint) (Handshake, error)
}

// Dialer реализует *websocket.Dialer.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

type SessionConfig struct {
	Tag      string
	Endpoint Endpoint
	// Identity != nil => торговая сессия: после апгрейда шлём keep_alive.
	Identity *Identity

	KeepAlive        time.Duration
	HandshakeTimeout time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
	MaxMalformed     int

	// Prepare вызывается на каждом подключении, после получения sid и до
	// открытия сокета (активация токена, ресинк по снимку).
	Prepare func(ctx context.Context, sid string) error
}

func (c *SessionConfig) withDefaults() {
	if c.KeepAlive <= 0 {
		c.KeepAlive = DefaultKeepAlive
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.MaxMalformed <= 0 {
		c.MaxMalformed = DefaultMaxMalformed
	}
}

type outbound struct {
	frame Frame
	errc  chan error
}

// Session одно логическое подключение (фид или торговый аккаунт) со своим
// циклом переподключений. Пишет в сокет только горутина Run.
type Session struct {
	id     uuid.UUID
	cfg    SessionConfig
	boot   Bootstrapper
	dialer Dialer
	events chan<- SessionEvent

	state     atomic.Int32
	outbox    chan outbound
	reconnect chan struct{}
	done      chan struct{}

	mu      sync.Mutex
	cancel  context.CancelFunc
	conn    *websocket.Conn
	live    chan struct{} // закрывается при выходе из Ready
	started bool
	stopped bool
}

func NewSession(cfg SessionConfig, boot Bootstrapper, dialer Dialer, events chan<- SessionEvent) *Session {
	cfg.withDefaults()
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	}
	return &Session{
		id:        uuid.New(),
		cfg:       cfg,
		boot:      boot,
		dialer:    dialer,
		events:    events,
		outbox:    make(chan outbound),
		reconnect: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

func (s *Session) ID() uuid.UUID       { return s.id }
func (s *Session) Tag() string         { return s.cfg.Tag }
func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

func (s *Session) setState(st SessionState) { s.state.Store(int32(st)) }

// Run крутит подключение до Stop, отмены ctx или исчерпания попыток.
// Возвращает ErrRetriesExhausted, если сессия сдалась.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	if s.stopped {
		s.mu.Unlock()
		close(s.done)
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	defer close(s.done)
	defer cancel()

	retries := 0
	for {
		err := s.connectOnce(ctx, &retries)
		if ctx.Err() != nil {
			s.finish()
			return nil
		}

		retries++
		s.setState(StateReconnecting)
		logger.Warn("[WS] %s connection lost (attempt %d/%d): %v", s.cfg.Tag, retries, s.cfg.MaxRetries, err)
		s.emit(ctx, SessionEvent{Kind: SessionReconnecting, Attempt: retries, Err: err})

		if retries > s.cfg.MaxRetries {
			s.setState(StateClosed)
			logger.Error("[WS] %s gave up after %d attempts", s.cfg.Tag, s.cfg.MaxRetries)
			s.emit(ctx, SessionEvent{Kind: SessionExhausted, Err: err})
			return ErrRetriesExhausted
		}

		t := time.NewTimer(s.cfg.RetryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			s.finish()
			return nil
		case <-t.C:
		}
	}
}

func (s *Session) finish() {
	s.setState(StateClosed)
	ev := s.stamp(SessionEvent{Kind: SessionClosed})
	select {
	case s.events <- ev:
	default:
	}
}

// Stop синхронный: после возврата сокет закрыт и горутины сессии вышли.
func (s *Session) Stop() {
	s.mu.Lock()
	s.stopped = true
	started := s.started
	cancel := s.cancel
	conn := s.conn
	s.mu.Unlock()

	if !started {
		s.setState(StateClosed)
		return
	}
	s.setState(StateClosing)
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	<-s.done
	s.setState(StateClosed)
}

// ForceReconnect рвёт текущий сокет и проходит подключение заново.
func (s *Session) ForceReconnect() {
	select {
	case s.reconnect <- struct{}{}:
	default:
	}
}

// Send пишет кадр в сокет и ждёт результата записи. Вне Ready кадр не
// ставится в очередь: ErrNotReady. Не вызывать из горутины, которая читает
// события этой сессии, иначе можно встать в дедлок.
func (s *Session) Send(ctx context.Context, f Frame) error {
	s.mu.Lock()
	live := s.live
	s.mu.Unlock()
	if live == nil || s.State() != StateReady {
		return ErrNotReady
	}

	out := outbound{frame: f, errc: make(chan error, 1)}
	select {
	case s.outbox <- out:
	case <-live:
		return ErrNotReady
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-out.errc:
		return err
	case <-live:
		select {
		case err := <-out.errc:
			return err
		default:
			return ErrNotReady
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) connectOnce(ctx context.Context, retries *int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.setState(StateIdle)

	hctx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	hs, err := s.boot.Acquire(hctx, s.cfg.Endpoint)
	cancel()
	if err != nil {
		return err
	}
	logger.Info("[WS] %s sid=%s", s.cfg.Tag, hs.SID)

	if s.cfg.Prepare != nil {
		if err := s.cfg.Prepare(ctx, hs.SID); err != nil {
			return err
		}
	}

	s.setState(StateHandshaking)
	dctx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	conn, _, err := s.dialer.DialContext(dctx, s.cfg.Endpoint.SocketURL(hs.SID), nil)
	cancel()
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		_ = conn.Close()
		return context.Canceled
	}
	s.conn = conn
	s.mu.Unlock()

	in := make(chan []byte)
	readErr := make(chan error, 1)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.readLoop(conn, in, readErr, stop)
	}()

	defer func() {
		s.leaveReady()
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		_ = conn.Close()
		close(stop)
		wg.Wait()
	}()

	s.setState(StateConnected)
	if err := s.probe(ctx, conn, in, readErr); err != nil {
		return err
	}

	if s.cfg.Identity != nil {
		s.setState(StateAuthenticating)
		ka, err := KeepAliveFrame(*s.cfg.Identity)
		if err != nil {
			return err
		}
		if err := s.write(conn, ka); err != nil {
			return err
		}
	}

	s.enterReady()
	*retries = 0
	logger.Info("[WS] %s ready", s.cfg.Tag)
	s.emit(ctx, SessionEvent{Kind: SessionReady})

	return s.serve(ctx, conn, in, readErr, keepAliveInterval(s.cfg.KeepAlive, hs.PingInterval))
}

// probe: 2probe -> 3probe -> 5.
func (s *Session) probe(ctx context.Context, conn *websocket.Conn, in <-chan []byte, readErr <-chan error) error {
	if err := s.write(conn, Frame{Kind: Probe}); err != nil {
		return err
	}

	timer := time.NewTimer(s.cfg.HandshakeTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return errHandshakeTimeout
		case err := <-readErr:
			return err
		case msg := <-in:
			f, _ := Decode(msg)
			switch f.Kind {
			case ProbeAck:
				return s.write(conn, Frame{Kind: Upgrade})
			case Close:
				return errServerClosed
			}
		}
	}
}

func (s *Session) serve(ctx context.Context, conn *websocket.Conn, in <-chan []byte, readErr <-chan error, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	malformed := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.reconnect:
			return errForcedReconnect
		case err := <-readErr:
			return err
		case <-ticker.C:
			if err := s.write(conn, Frame{Kind: Ping}); err != nil {
				return err
			}
		case out := <-s.outbox:
			err := s.write(conn, out.frame)
			out.errc <- err
			if err != nil {
				return err
			}
		case msg := <-in:
			f, err := Decode(msg)
			if err != nil {
				malformed++
				logger.Debug("[WS] %s %v: %.120s", s.cfg.Tag, err, msg)
				if malformed >= s.cfg.MaxMalformed {
					return errTooManyMalformed
				}
				continue
			}
			malformed = 0

			switch f.Kind {
			case Close:
				return errServerClosed
			case Ping:
				if err := s.write(conn, Frame{Kind: Pong}); err != nil {
					return err
				}
			case Event:
				s.emit(ctx, SessionEvent{Kind: SessionMessage, Frame: f})
			}
		}
	}
}

func (s *Session) readLoop(conn *websocket.Conn, in chan<- []byte, readErr chan<- error, stop <-chan struct{}) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}
		select {
		case in <- msg:
		case <-stop:
			return
		}
	}
}

func (s *Session) write(conn *websocket.Conn, f Frame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, Encode(f))
}

func (s *Session) enterReady() {
	// запрос на переподключение, пришедший до Ready, уже выполнен этим подключением
	select {
	case <-s.reconnect:
	default:
	}
	s.mu.Lock()
	s.live = make(chan struct{})
	s.mu.Unlock()
	s.setState(StateReady)
}

// leaveReady валит всех, кто ждёт записи: повторно кадры не отправляем.
func (s *Session) leaveReady() {
	s.mu.Lock()
	if s.live != nil {
		close(s.live)
		s.live = nil
	}
	s.mu.Unlock()
}

func (s *Session) stamp(ev SessionEvent) SessionEvent {
	ev.SessionID = s.id
	ev.Tag = s.cfg.Tag
	return ev
}

func (s *Session) emit(ctx context.Context, ev SessionEvent) {
	if s.events == nil {
		return
	}
	select {
	case s.events <- s.stamp(ev):
	case <-ctx.Done():
	}
}

// KeepAliveFrame 42["keep_alive",{uid,account_id,token}] продлевает токен.
func KeepAliveFrame(id Identity) (Frame, error) { return NewEvent("keep_alive", id) }

func keepAliveInterval(def, server time.Duration) time.Duration {
	if server > 0 && server < def {
		return server
	}
	return def
}
