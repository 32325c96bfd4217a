package strategy

import (
	"context"

	"streak_bot/internal/models"
)

// Strategy решение по одному аккаунту на один ценовой сигнал.
// Ошибок наружу не отдаёт: при любом сбое возвращает пустую инструкцию.
type Strategy interface {
	Apply(ctx context.Context, sig models.PriceSignal, acc models.AccountTradeConfig) models.Instruction
}

type StrategyFunc func(ctx context.Context, sig models.PriceSignal, acc models.AccountTradeConfig) models.Instruction

func (f StrategyFunc) Apply(ctx context.Context, sig models.PriceSignal, acc models.AccountTradeConfig) models.Instruction {
	return f(ctx, sig, acc)
}

var noop = models.Instruction{Action: models.ActionNone}

// failed ответ при сбое внешней стратегии: buy на 0, ставки не будет
var failed = models.Instruction{Action: models.ActionBuy}
