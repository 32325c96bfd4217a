package runner

import (
	"context"
	"fmt"

	"streak_bot/internal/exchange"
	"streak_bot/internal/models"
	"streak_bot/pkg/logger"
	"streak_bot/pkg/tracing"

	"golang.org/x/sync/errgroup"
)

type target struct {
	acc  models.AccountTradeConfig
	sess Session
}

func (s *Supervisor) readyTargets() []target {
	out := make([]target, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.ready() {
			out = append(out, target{acc: t.acc.Clone(), sess: t.sess})
		}
	}
	return out
}

// keepAlive продлевает токен на всех Ready сессиях в начале периода.
func (s *Supervisor) keepAlive(ctx context.Context) {
	targets := s.readyTargets()
	if len(targets) == 0 {
		return
	}
	s.async(ctx, func(ctx context.Context) {
		for _, tg := range targets {
			if err := s.sendKeepAlive(ctx, tg.acc, tg.sess); err != nil {
				logger.Warn("[RUNNER] %s keep_alive: %v", tg.acc.AccountID, err)
			}
		}
	})
}

func (s *Supervisor) sendKeepAlive(ctx context.Context, acc models.AccountTradeConfig, sess Session) error {
	f, err := exchange.KeepAliveFrame(Identity(acc))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()
	return sess.Send(ctx, f)
}

// trade торговый раунд по сигналу. Решения и отправка идут параллельно
// вне горутины супервизора.
func (s *Supervisor) trade(ctx context.Context, sig models.PriceSignal) {
	if sec := s.now().In(s.cfg.Location).Second(); sec >= s.cfg.OrderCutoffSecond {
		logger.Info("[RUNNER] skip round %s: second %d", sig.Period, sec)
		return
	}
	targets := s.readyTargets()
	if len(targets) == 0 {
		return
	}

	s.async(ctx, func(ctx context.Context) {
		maintenance, err := s.store.Maintenance(ctx)
		if err != nil {
			logger.Warn("[RUNNER] maintenance flag: %v", err)
		}
		if maintenance {
			logger.Info("[RUNNER] maintenance, skip round %s", sig.Period)
			return
		}
		targets = s.refresh(ctx, targets)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.MaxParallel)
		for _, tg := range targets {
			tg := tg
			g.Go(func() error {
				if err := s.tradeOne(gctx, sig, tg); err != nil {
					logger.Error("[RUNNER] %s: %v", tg.acc.AccountID, err)
					s.notifier.System(gctx, fmt.Sprintf("%s Market error: %v", tg.acc.AccountID, err))
				}
				return nil
			})
		}
		_ = g.Wait()
	})
}

// refresh берёт свежие настройки из store; без store работаем на копиях.
func (s *Supervisor) refresh(ctx context.Context, targets []target) []target {
	roster, err := s.store.ActiveAccounts(ctx)
	if err != nil {
		logger.Warn("[RUNNER] roster refresh: %v", err)
		return targets
	}
	byID := make(map[string]models.AccountTradeConfig, len(roster))
	for _, acc := range roster {
		byID[acc.AccountID] = acc
	}

	out := targets[:0]
	for _, tg := range targets {
		acc, ok := byID[tg.acc.AccountID]
		if !ok || !acc.Eligible() {
			continue
		}
		tg.acc = acc
		out = append(out, tg)
	}
	return out
}

func (s *Supervisor) tradeOne(ctx context.Context, sig models.PriceSignal, tg target) (err error) {
	acc := tg.acc
	in := s.decider.Decide(ctx, sig, acc)
	if !in.Actionable() {
		return nil
	}

	ok, err := s.guard.Acquire(ctx, acc.AccountID, sig.Period)
	if err != nil {
		return err
	}
	if !ok {
		logger.Warn("[RUNNER] %s already ordered in %s", acc.AccountID, sig.Period)
		return nil
	}

	if in.Data != "" {
		s.notifier.Account(ctx, acc.ChatID, in.Data)
	}

	order := exchange.NewOrder(acc.Token, acc.AccountID, s.cfg.PairID, s.cfg.Wallet, string(in.Action), in.Amount)
	span, ctx := tracing.StartSpan(ctx, "runner.send_order", map[string]any{
		"account_id": acc.AccountID,
		"period":     sig.Period,
		"action":     order.Action,
		"amount":     in.Amount,
	})
	defer func() { tracing.Finish(span, err) }()

	f, err := order.Frame()
	if err != nil {
		return err
	}
	sctx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()
	if err = tg.sess.Send(sctx, f); err != nil {
		return fmt.Errorf("send_order %s: %w", order.Action, err)
	}
	logger.Info("[RUNNER] %s %s %v at %s (streak %d)", acc.AccountID, order.Action, in.Amount, sig.Period, sig.StreakLength)
	return nil
}
