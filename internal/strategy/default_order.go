package strategy

import (
	"time"

	"streak_bot/internal/models"
)

// DefaultOrder ставит против цвета серии.
//   - в торговом окне сумма берётся по длине серии: AmountStrategy[streak-1]
//   - вне окна, если серия >= SplitCandleThStrategy, со сдвигом SplitOffsetStrategy
//   - сумма > 0 => против цвета, < 0 => по цвету на |сумму|, 0 => ничего
//
// Окно проверяем с запасом: now + (последняя ненулевая позиция - серия) минут
// должно попасть в [StartTrade, StopTrade] того же дня в loc.
func DefaultOrder(sig models.PriceSignal, acc models.AccountTradeConfig, now time.Time, loc *time.Location) models.Instruction {
	streak := sig.StreakLength
	amounts := acc.AmountStrategy

	valid := validTime(streak, acc, now, loc)
	split := acc.SplitCandleThStrategy > 0 && streak >= acc.SplitCandleThStrategy

	var amount float64
	switch {
	case valid:
		amount = at(amounts, streak)
	case split:
		amount = at(amounts, streak+acc.SplitOffsetStrategy)
	default:
		return noop
	}

	switch {
	case amount > 0:
		return models.Instruction{Action: models.Opposite(sig.Color), Amount: amount}
	case amount < 0:
		return models.Instruction{Action: models.Matching(sig.Color), Amount: -amount}
	default:
		return noop
	}
}

func validTime(streak int, acc models.AccountTradeConfig, now time.Time, loc *time.Location) bool {
	if !acc.StartTrade.Valid() || !acc.StopTrade.Valid() {
		return false
	}
	if loc != nil {
		now = now.In(loc)
	}

	remaining := lastNonZero(acc.AmountStrategy) - streak
	if remaining < 0 {
		return false
	}

	from := acc.StartTrade.On(now)
	to := acc.StopTrade.On(now)
	t := now.Add(time.Duration(remaining) * time.Minute)
	return !t.Before(from) && !t.After(to)
}

// lastNonZero позиция (с 1) последней ненулевой суммы, 1 если все нули.
func lastNonZero(amounts []float64) int {
	for i := len(amounts) - 1; i >= 0; i-- {
		if amounts[i] != 0 {
			return i + 1
		}
	}
	return 1
}

// at сумма для позиции n (с 1), 0 вне диапазона.
func at(amounts []float64, n int) float64 {
	if n <= 0 || n > len(amounts) {
		return 0
	}
	return amounts[n-1]
}
