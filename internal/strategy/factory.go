package strategy

import (
	"context"
	"fmt"
	"time"

	"streak_bot/internal/models"
	"streak_bot/pkg/logger"
)

var _ Strategy = (*External)(nil)

// Engine выбирает стратегию по StrategyRunning аккаунта.
type Engine struct {
	builtin  map[string]Strategy
	external *External
	loc      *time.Location
	now      func() time.Time
}

func NewEngine(external *External, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	e := &Engine{external: external, loc: loc, now: time.Now}
	e.builtin = map[string]Strategy{
		models.DefaultStrategyID: StrategyFunc(e.defaultOrder),
	}
	return e
}

func (e *Engine) defaultOrder(_ context.Context, sig models.PriceSignal, acc models.AccountTradeConfig) models.Instruction {
	in := DefaultOrder(sig, acc, e.now(), e.loc)
	if in.Actionable() {
		logger.Info("[STRATEGY] %s default_order ok [%s, %v]", acc.AccountID, in.Action, in.Amount)
	}
	return in
}

// Decide встроенная стратегия по id (default_order, в т.ч. пустой id),
// иначе внешняя.
func (e *Engine) Decide(ctx context.Context, sig models.PriceSignal, acc models.AccountTradeConfig) models.Instruction {
	id := acc.Strategy()
	if s, ok := e.builtin[id]; ok {
		return s.Apply(ctx, sig, acc)
	}
	if e.external == nil {
		logger.Warn("[STRATEGY] %s: %s requested, external strategies are disabled", acc.AccountID, id)
		return failed
	}
	return e.external.Apply(ctx, sig, acc)
}

// Clear сброс кэша внешней стратегии; для default_order ничего не делает.
func (e *Engine) Clear(ctx context.Context, strategyID, accountID string) error {
	if _, ok := e.builtin[strategyID]; ok || strategyID == "" {
		return nil
	}
	if e.external == nil {
		return fmt.Errorf("strategy.Clear: external strategies are disabled")
	}
	return e.external.Clear(ctx, strategyID, accountID)
}
