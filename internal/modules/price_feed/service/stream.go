package service

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"streak_bot/internal/exchange"
	"streak_bot/internal/models"
	"streak_bot/pkg/logger"
)

// Snapshotter polling-часть фида: sid и снимок последнего RealData.
type Snapshotter interface {
	exchange.Bootstrapper
	Snapshot(ctx context.Context, ep exchange.Endpoint, sid, name string) (exchange.Frame, error)
}

type Notifier interface {
	Market(ctx context.Context, msg string)
	System(ctx context.Context, msg string)
}

// Health реализует health/service.State.
type Health interface {
	SetWSConnected(v bool)
	TouchTick(t time.Time)
}

type Config struct {
	Endpoint exchange.Endpoint
	Session  exchange.SessionConfig

	// окно проверки цены внутри серой свечи, [from, until)
	CheckFromSecond  int
	CheckUntilSecond int
	HistorySize      int

	// алерты в ценовой чат; 0 выключено
	NotifyThreshold  int
	SuggestThreshold int

	// пауза перед новым циклом подключений после того как сессия сдалась;
	// 0 => фид стоит до Resume
	RestartDelay time.Duration
	Location     *time.Location
}

// Stream клиент ценового фида: держит сессию, считает серию и шлёт
// рыночные события в out.
type Stream struct {
	cfg      Config
	boot     Snapshotter
	dialer   exchange.Dialer
	notifier Notifier
	health   Health
	streak   *Streak
	out      chan<- models.MarketEvent
	now      func() time.Time

	halted atomic.Bool
	resume chan struct{}
}

func NewStream(cfg Config, boot Snapshotter, dialer exchange.Dialer, n Notifier, h Health, out chan<- models.MarketEvent) *Stream {
	if cfg.CheckUntilSecond <= cfg.CheckFromSecond {
		cfg.CheckFromSecond, cfg.CheckUntilSecond = 5, 20
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	cfg.Session.Tag = "feed"
	cfg.Session.Endpoint = cfg.Endpoint
	cfg.Session.Identity = nil

	return &Stream{
		cfg:      cfg,
		boot:     boot,
		dialer:   dialer,
		notifier: n,
		health:   h,
		streak:   NewStreak(cfg.HistorySize),
		out:      out,
		now:      time.Now,
		resume:   make(chan struct{}, 1),
	}
}

func (s *Stream) Streak() *Streak { return s.streak }

// Run до отмены ctx. Если сессия исчерпала попытки, фид стоит до Resume
// (или до RestartDelay, если он задан), потом поднимается новая сессия.
func (s *Stream) Run(ctx context.Context) error {
	for {
		err := s.runSession(ctx)
		if ctx.Err() != nil {
			return nil
		}
		logger.Error("[FEED] stopped: %v", err)
		s.notifier.System(ctx, fmt.Sprintf("Market feed stopped: %v. Use /resume feed", err))
		if !s.wait(ctx) {
			return nil
		}
		logger.Info("[FEED] restarting")
	}
}

// wait false, если ctx отменён раньше, чем пришёл Resume или истёк RestartDelay.
func (s *Stream) wait(ctx context.Context) bool {
	// Resume из прошлой остановки, не дождавшийся своего wait
	select {
	case <-s.resume:
	default:
	}
	s.halted.Store(true)
	defer s.halted.Store(false)

	var timeout <-chan time.Time
	if s.cfg.RestartDelay > 0 {
		t := time.NewTimer(s.cfg.RestartDelay)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-ctx.Done():
		return false
	case <-s.resume:
		return true
	case <-timeout:
		return true
	}
}

// Resume поднимает остановленный фид. false, если фид и так работает.
func (s *Stream) Resume() bool {
	if !s.halted.Load() {
		return false
	}
	select {
	case s.resume <- struct{}{}:
	default:
	}
	return true
}

func (s *Stream) runSession(ctx context.Context) error {
	events := make(chan exchange.SessionEvent, 64)
	cfg := s.cfg.Session
	cfg.Prepare = s.resync
	sess := exchange.NewSession(cfg, s.boot, s.dialer, events)

	errc := make(chan error, 1)
	go func() { errc <- sess.Run(ctx) }()

	for {
		select {
		case ev := <-events:
			s.handleSessionEvent(ctx, ev)
		case err := <-errc:
			for {
				select {
				case ev := <-events:
					s.handleSessionEvent(ctx, ev)
				default:
					s.health.SetWSConnected(false)
					return err
				}
			}
		}
	}
}

func (s *Stream) handleSessionEvent(ctx context.Context, ev exchange.SessionEvent) {
	switch ev.Kind {
	case exchange.SessionReady:
		s.health.SetWSConnected(true)
		logger.Info("[FEED] connected, session %s", ev.SessionID)
	case exchange.SessionReconnecting, exchange.SessionClosed:
		s.health.SetWSConnected(false)
	case exchange.SessionExhausted:
		s.health.SetWSConnected(false)
		logger.Error("[FEED] session %s exhausted: %v", ev.SessionID, ev.Err)
	case exchange.SessionMessage:
		s.HandleFrame(ctx, ev.Frame)
	}
}

// HandleFrame обрабатывает одно событие фида.
func (s *Stream) HandleFrame(ctx context.Context, f exchange.Frame) {
	switch f.Name {
	case EventRealData:
		s.handleRealData(ctx, f)
	case EventStartSession:
		logger.Info("[FEED] %s", f)
	case EventCloseOrder:
		s.emit(ctx, models.MarketEvent{Kind: models.PeriodClosed, Period: s.streak.LastPeriod()})
	default:
		logger.Debug("[FEED] skip %s", f.Name)
	}
}

func (s *Stream) handleRealData(ctx context.Context, f exchange.Frame) {
	now := s.now()
	s.health.TouchTick(now)

	upd, err := ParseUpdate(f)
	if err != nil {
		logger.Warn("[FEED] bad RealData: %v", err)
		s.notifier.System(ctx, fmt.Sprintf("Market error: %v", err))
		return
	}
	if upd.Second < s.cfg.CheckFromSecond || upd.Second >= s.cfg.CheckUntilSecond {
		return
	}
	candle, ok := upd.ClosedCandle()
	if !ok {
		return
	}

	sig, ok := s.streak.Push(candle.Time, candle.Color(), now)
	if !ok {
		return
	}
	logger.Info("[FEED] %s:%d vol %v [B:%v, S:%v] %s streak %d",
		upd.DateTime, upd.Second, candle.Volume, candle.BuyVolume(), candle.SellVolume(), sig.Color, sig.StreakLength)

	s.emit(ctx, models.MarketEvent{Kind: models.PeriodOpened, Period: sig.Period})
	s.emit(ctx, models.MarketEvent{Kind: models.PriceSignalled, Period: sig.Period, Signal: sig})
	s.alert(ctx, sig, candle, now)
}

func (s *Stream) alert(ctx context.Context, sig models.PriceSignal, c models.Candle, now time.Time) {
	if s.cfg.NotifyThreshold <= 0 || sig.StreakLength < s.cfg.NotifyThreshold {
		return
	}
	msg := AlertMessage(sig, c, now.In(s.cfg.Location), s.cfg.SuggestThreshold)
	logger.Info("[FEED] ALERT %s", msg)
	s.notifier.Market(ctx, msg)
}

// AlertMessage напр. "7 GREEN at 15:25 [BUY:12.5, SELL:3.1] => SELL now"
func AlertMessage(sig models.PriceSignal, c models.Candle, at time.Time, suggestThreshold int) string {
	msg := fmt.Sprintf("%d %s at %s [BUY:%v, SELL:%v]",
		sig.StreakLength, sig.Color, at.Format("15:04"), c.BuyVolume(), c.SellVolume())
	if suggestThreshold > 0 && sig.StreakLength >= suggestThreshold {
		msg += fmt.Sprintf(" => %s now", strings.ToUpper(string(models.Opposite(sig.Color))))
	}
	return msg
}

// resync Prepare-хук сессии: восстанавливаем серию по снимку перед каждым подключением.
func (s *Stream) resync(ctx context.Context, sid string) error {
	f, err := s.boot.Snapshot(ctx, s.cfg.Endpoint, sid, EventRealData)
	if err != nil {
		return err
	}
	upd, err := ParseUpdate(f)
	if err != nil {
		return fmt.Errorf("resync: %w", err)
	}

	colors, last := SnapshotColors(upd)
	s.streak.Resync(colors, last)
	g, r := s.streak.Runs()
	logger.Info("[FEED] resync %d candles, green %d, red %d, last %s", len(colors), g, r, last)
	return nil
}

func (s *Stream) emit(ctx context.Context, ev models.MarketEvent) {
	select {
	case s.out <- ev:
	case <-ctx.Done():
	}
}
