package models

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"streak_bot/pkg/logger"
)

// DefaultStrategyID встроенная контр-трендовая стратегия, доступна любому аккаунту.
const DefaultStrategyID = "default_order"

var (
	ErrEmptyAccountID  = errors.New("empty account id")
	ErrUnknownStrategy = errors.New("strategy is not registered for account")
)

// AccountTradeConfig торговый аккаунт в том виде, как его хранит store.
type AccountTradeConfig struct {
	AccountID string `json:"account_id" yaml:"account_id"`
	UserID    string `json:"user_id" yaml:"user_id"`
	Alias     string `json:"alias" yaml:"alias"`
	ChatID    int64  `json:"chat_id" yaml:"chat_id"`
	Token     string `json:"token" yaml:"token"`

	// сумма ставки по длине серии, индекс с 1.
	// напр. 0,0,0,0,0,0,1,2,4,9 => играем с 7-й свечи
	AmountStrategy []float64 `json:"amount_strategy" yaml:"amount_strategy"`
	// вне торгового окна серии от этой длины всё равно торгуются,
	// сумма сдвигается на SplitOffsetStrategy. <= 0 выключено
	SplitCandleThStrategy int `json:"split_candle_th_strategy" yaml:"split_candle_th_strategy"`
	SplitOffsetStrategy   int `json:"split_offset_strategy" yaml:"split_offset_strategy"`

	StartTrade TimeOfDay `json:"start_trade" yaml:"start_trade"`
	StopTrade  TimeOfDay `json:"stop_trade" yaml:"stop_trade"`

	// Active ставит админ, Running снимается рынком или юзером
	Active  bool `json:"active" yaml:"active"`
	Running bool `json:"running" yaml:"running"`

	StrategyRunning string   `json:"strategy_running" yaml:"strategy_running"`
	StrategyList    []string `json:"strategy_list" yaml:"strategy_list"`
}

func (a AccountTradeConfig) Eligible() bool { return a.Active && a.Running }

// DisplayName имя для сообщений в чат.
func (a AccountTradeConfig) DisplayName() string {
	if a.Alias != "" {
		return a.Alias
	}
	return a.AccountID
}

// Strategy id запущенной стратегии, по умолчанию default_order.
func (a AccountTradeConfig) Strategy() string {
	if strings.TrimSpace(a.StrategyRunning) == "" {
		return DefaultStrategyID
	}
	return a.StrategyRunning
}

func (a AccountTradeConfig) HasStrategy(id string) bool {
	return id == DefaultStrategyID || slices.Contains(a.StrategyList, id)
}

func (a AccountTradeConfig) Validate() error {
	if strings.TrimSpace(a.AccountID) == "" {
		return ErrEmptyAccountID
	}
	if !a.StartTrade.Valid() || !a.StopTrade.Valid() {
		return fmt.Errorf("account %s: invalid trading window %q-%q", a.AccountID, a.StartTrade, a.StopTrade)
	}
	if !a.HasStrategy(a.Strategy()) {
		return fmt.Errorf("account %s: %w: %s", a.AccountID, ErrUnknownStrategy, a.Strategy())
	}
	return nil
}

// Clone копирует слайсы, чтобы снимок никто извне не мутировал.
func (a AccountTradeConfig) Clone() AccountTradeConfig {
	a.AmountStrategy = slices.Clone(a.AmountStrategy)
	a.StrategyList = slices.Clone(a.StrategyList)
	return a
}

// TimeOfDay время суток без даты, точность до секунды.
// Нулевое значение не задано и ни в одно окно не попадает.
type TimeOfDay struct {
	sec int
	set bool
	// нераспознанное значение из yaml, пишется обратно как было
	raw string
}

func NewTimeOfDay(h, m, s int) TimeOfDay {
	return TimeOfDay{sec: h*3600 + m*60 + s, set: true}
}

// ParseTimeOfDay понимает "HH:MM:SS" и "HH:MM".
func ParseTimeOfDay(v string) (TimeOfDay, error) {
	v = strings.TrimSpace(v)
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, v); err == nil {
			return NewTimeOfDay(t.Hour(), t.Minute(), t.Second()), nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("invalid time of day %q", v)
}

func (t TimeOfDay) Valid() bool { return t.set }

func (t TimeOfDay) Clock() (h, m, s int) {
	return t.sec / 3600, (t.sec % 3600) / 60, t.sec % 60
}

// On ставит время на дату d в её таймзоне.
func (t TimeOfDay) On(d time.Time) time.Time {
	h, m, s := t.Clock()
	return time.Date(d.Year(), d.Month(), d.Day(), h, m, s, 0, d.Location())
}

func (t TimeOfDay) String() string {
	if !t.set {
		return ""
	}
	h, m, s := t.Clock()
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func (t TimeOfDay) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*t = TimeOfDay{}
		return nil
	}
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// для gopkg.in/yaml.v2
func (t TimeOfDay) MarshalYAML() (interface{}, error) {
	if !t.set {
		return t.raw, nil
	}
	return t.String(), nil
}

// UnmarshalYAML кривое время не валит весь файл: значение остаётся
// незаданным, и Validate отсеивает только этот аккаунт.
func (t *TimeOfDay) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if err := t.UnmarshalText([]byte(s)); err != nil {
		logger.Warn("[MODELS] %v", err)
		*t = TimeOfDay{raw: s}
	}
	return nil
}
