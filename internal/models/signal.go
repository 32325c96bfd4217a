package models

import "time"

type Action string

const (
	ActionNone Action = ""
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// Opposite против цвета свечи.
func Opposite(c CandleColor) Action {
	if c == Green {
		return ActionSell
	}
	return ActionBuy
}

// Matching по цвету свечи.
func Matching(c CandleColor) Action {
	if c == Green {
		return ActionBuy
	}
	return ActionSell
}

// Instruction решение стратегии по одному аккаунту на один сигнал.
type Instruction struct {
	Action Action
	Amount float64
	Data   string // сообщение от внешней стратегии, может быть пустым
}

func (i Instruction) Actionable() bool {
	return i.Amount > 0 && (i.Action == ActionBuy || i.Action == ActionSell)
}

// PriceSignal один раз за период, после учёта закрытой свечи.
type PriceSignal struct {
	Color        CandleColor
	StreakLength int
	RecentColors []CandleColor
	Period       string
	At           time.Time
}

type MarketEventKind int

const (
	PeriodOpened MarketEventKind = iota + 1
	PriceSignalled
	PeriodClosed
)

func (k MarketEventKind) String() string {
	switch k {
	case PeriodOpened:
		return "period_opened"
	case PriceSignalled:
		return "price_signal"
	case PeriodClosed:
		return "period_closed"
	default:
		return "unknown"
	}
}

type MarketEvent struct {
	Kind   MarketEventKind
	Period string
	Signal PriceSignal
}
