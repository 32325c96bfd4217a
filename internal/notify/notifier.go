package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"streak_bot/internal/modules/config"
	"streak_bot/pkg/logger"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

type Notifier interface {
	// Account сообщение в чат владельца аккаунта.
	Account(ctx context.Context, chatID int64, msg string)
	// System сообщение админам.
	System(ctx context.Context, msg string)
	// Market ценовые алерты.
	Market(ctx context.Context, msg string)
}

// Controller то, чем админ управляет из чата.
type Controller interface {
	Report(ctx context.Context) (string, error)
	Resume(ctx context.Context, accountID string) error
	Pause(ctx context.Context, accountID string) error
	SetStrategy(ctx context.Context, accountID, strategyID string) error
}

// Feed ценовой фид; после остановки поднимается командой /resume feed.
type Feed interface {
	Resume() bool
}

// FeedID аргумент /resume для ценового фида.
const FeedID = "feed"

// Telegram нотифайер + админские команды /status, /resume, /pause, /strategy.
type Telegram struct {
	bot     *tgbot.BotAPI
	limiter *rate.Limiter
	admins  []int64
	market  int64

	mu   sync.RWMutex
	ctrl Controller
	feed Feed
}

func NewTelegram(cfg config.TelegramConfig) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("notify.NewTelegram: %w", err)
	}
	return newTelegram(b, cfg), nil
}

func newTelegram(b *tgbot.BotAPI, cfg config.TelegramConfig) *Telegram {
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 20
	}
	return &Telegram{
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		admins:  cfg.AdminChatIDs,
		market:  cfg.PriceChatID,
	}
}

func (t *Telegram) SetController(c Controller) {
	t.mu.Lock()
	t.ctrl = c
	t.mu.Unlock()
}

func (t *Telegram) SetFeed(f Feed) {
	t.mu.Lock()
	t.feed = f
	t.mu.Unlock()
}

func (t *Telegram) feedResumer() Feed {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.feed
}

func (t *Telegram) controller() Controller {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ctrl
}

func (t *Telegram) Account(ctx context.Context, chatID int64, msg string) {
	if chatID == 0 {
		logger.Info("[NOTIFY] %s", msg)
		return
	}
	t.send(ctx, chatID, msg)
}

func (t *Telegram) System(ctx context.Context, msg string) {
	logger.Info("[NOTIFY] system: %s", msg)
	for _, id := range t.admins {
		t.send(ctx, id, msg)
	}
}

func (t *Telegram) Market(ctx context.Context, msg string) {
	if t.market == 0 {
		t.System(ctx, msg)
		return
	}
	t.send(ctx, t.market, msg)
}

func (t *Telegram) send(ctx context.Context, chatID int64, msg string) {
	if err := t.limiter.Wait(ctx); err != nil {
		return
	}
	if _, err := t.bot.Send(tgbot.NewMessage(chatID, msg)); err != nil {
		logger.Warn("[NOTIFY] send to %d: %v", chatID, err)
	}
}

func (t *Telegram) isAdmin(chatID int64) bool {
	for _, id := range t.admins {
		if id == chatID {
			return true
		}
	}
	return false
}

// Start: long-polling, только команды из админских чатов.
func (t *Telegram) Start(ctx context.Context) {
	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message"}

	updates := t.bot.GetUpdatesChan(u)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case upd, ok := <-updates:
				if !ok {
					return
				}
				m := upd.Message
				if m == nil || m.Chat == nil || !m.IsCommand() || !t.isAdmin(m.Chat.ID) {
					continue
				}
				go func(chatID int64, cmd, args string) {
					t.send(ctx, chatID, t.Command(ctx, cmd, args))
				}(m.Chat.ID, m.Command(), m.CommandArguments())
			}
		}
	}()
}

func (t *Telegram) Stop() {
	t.bot.StopReceivingUpdates()
}

// Command выполняет админскую команду и возвращает ответ для чата.
func (t *Telegram) Command(ctx context.Context, cmd, args string) string {
	if cmd == "resume" && strings.TrimSpace(args) == FeedID {
		f := t.feedResumer()
		if f == nil {
			return "Market feed is not configured"
		}
		if !f.Resume() {
			return "Market feed is running"
		}
		return "Market feed resumed"
	}

	c := t.controller()
	if c == nil {
		return "Supervisor is not running"
	}
	id := strings.TrimSpace(args)

	switch cmd {
	case "status":
		r, err := c.Report(ctx)
		if err != nil {
			return fmt.Sprintf("Status error: %v", err)
		}
		return r
	case "resume", "pause":
		if id == "" {
			return fmt.Sprintf("Usage: /%s <account_id>", cmd)
		}
		do, verb := c.Resume, "resumed"
		if cmd == "pause" {
			do, verb = c.Pause, "paused"
		}
		if err := do(ctx, id); err != nil {
			return fmt.Sprintf("%s: %v", id, err)
		}
		return fmt.Sprintf("%s %s", id, verb)
	case "strategy":
		f := strings.Fields(args)
		if len(f) != 2 {
			return "Usage: /strategy <account_id> <strategy_id>"
		}
		if err := c.SetStrategy(ctx, f[0], f[1]); err != nil {
			return fmt.Sprintf("%s: %v", f[0], err)
		}
		return fmt.Sprintf("%s strategy %s", f[0], f[1])
	default:
		return "Commands: /status, /resume <account_id|feed>, /pause <account_id>, /strategy <account_id> <strategy_id>"
	}
}

// Stdout без бота: всё в лог.
type Stdout struct{}

func NewStdout() *Stdout { return &Stdout{} }

func (Stdout) Account(_ context.Context, chatID int64, msg string) {
	logger.Info("[NOTIFY] %d: %s", chatID, msg)
}
func (Stdout) System(_ context.Context, msg string) { logger.Info("[NOTIFY] system: %s", msg) }
func (Stdout) Market(_ context.Context, msg string) { logger.Info("[NOTIFY] market: %s", msg) }
