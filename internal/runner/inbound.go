package runner

import (
	"context"
	"fmt"
	"strconv"

	"streak_bot/internal/exchange"
	"streak_bot/pkg/logger"
)

const (
	EventOrderResult = "OrderResult"
	EventAccountData = "account_data"
	EventTradeResult = "TradeResult"
	EventLogout      = "logout"

	amountScale = 1e8
)

// 42["OrderResult",{"result":"ok","action":"buy","message":"(BTC-USD) buy success"}]
type orderResult struct {
	Result  string `json:"result"`
	Action  string `json:"action"`
	Message string `json:"message"`
}

// 42["account_data",{"account_status":1,"account_balance":99760000000,"orders":{"BTC-USD":{"buy_amount":500000000,"sell_amount":0}}}]
// AccountBalance nil, если поля нет: это не нулевой баланс.
type accountData struct {
	AccountStatus  int                    `json:"account_status"`
	AccountBalance *float64               `json:"account_balance"`
	Orders         map[string]orderTotals `json:"orders"`
}

type orderTotals struct {
	BuyAmount  float64 `json:"buy_amount"`
	SellAmount float64 `json:"sell_amount"`
}

// 42["TradeResult",{"status":1,"message":"+0.95"}]
type tradeResult struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (s *Supervisor) onMessage(ctx context.Context, t *task, f exchange.Frame) {
	acc := t.acc
	logger.Info("[RUNNER] %s <- %s", acc.AccountID, f)

	switch f.Name {
	case EventOrderResult:
		var r orderResult
		if err := f.Bind(&r); err != nil {
			logger.Warn("[RUNNER] %s bad %s: %v", acc.AccountID, f.Name, err)
			return
		}
		if r.Result == "error" {
			s.marketStop(ctx, acc.AccountID, r.Message)
		}

	case EventAccountData:
		var d accountData
		if err := f.Bind(&d); err != nil {
			logger.Warn("[RUNNER] %s bad %s: %v", acc.AccountID, f.Name, err)
			return
		}
		if msg := accountDataMessage(acc.DisplayName(), s.cfg.PairID, d); msg != "" {
			s.async(ctx, func(ctx context.Context) { s.notifier.Account(ctx, acc.ChatID, msg) })
		}
		if d.AccountBalance != nil && *d.AccountBalance == 0 {
			s.marketStop(ctx, acc.AccountID, "Balance is 0")
		}

	case EventTradeResult:
		var r tradeResult
		if err := f.Bind(&r); err != nil {
			logger.Warn("[RUNNER] %s bad %s: %v", acc.AccountID, f.Name, err)
			return
		}
		msg := tradeResultMessage(acc.DisplayName(), r, s.funny(r.Status > 0))
		s.async(ctx, func(ctx context.Context) { s.notifier.Account(ctx, acc.ChatID, msg) })

	case EventLogout:
		// токен протух: продлеваем и переподключаемся
		logger.Info("[RUNNER] %s token expired", acc.AccountID)
		sess := t.sess
		s.async(ctx, func(ctx context.Context) {
			if err := s.sendKeepAlive(ctx, acc, sess); err != nil {
				logger.Warn("[RUNNER] %s keep_alive: %v", acc.AccountID, err)
			}
			sess.ForceReconnect()
		})
	}
}

// marketStop биржа отказала аккаунту: снимаем running и гасим только его задачу.
func (s *Supervisor) marketStop(ctx context.Context, accountID, reason string) {
	t, ok := s.tasks[accountID]
	if !ok {
		return
	}
	acc := t.acc
	s.stopTask(accountID)

	msg := fmt.Sprintf("%s stop by market", accountID)
	if reason != "" {
		msg += ": " + reason
	}
	logger.Warn("[RUNNER] %s", msg)

	// флаг пишем до следующей сверки; при сбое store держит halted
	s.halted[accountID] = struct{}{}
	if err := s.store.SetAccountRunning(ctx, accountID, false); err != nil {
		logger.Error("[RUNNER] %s set running: %v", accountID, err)
	}
	s.async(ctx, func(ctx context.Context) {
		s.notifier.Account(ctx, acc.ChatID, msg)
		s.notifier.System(ctx, msg)
	})
}

// accountDataMessage итог ставок периода, либо баланс если ставок нет.
// Пусто, если нет ни того, ни другого.
func accountDataMessage(name, pairID string, d accountData) string {
	if o, ok := d.Orders[pairID]; ok && len(d.Orders) > 0 {
		buy, sell := o.BuyAmount/amountScale, o.SellAmount/amountScale
		switch {
		case buy > 0 && sell > 0:
			return fmt.Sprintf("%s Total: BUY $%s, SELL $%s", name, money(buy), money(sell))
		case buy > 0:
			return fmt.Sprintf("%s Total BUY $%s success", name, money(buy))
		case sell > 0:
			return fmt.Sprintf("%s Total SELL $%s success", name, money(sell))
		}
	}
	if d.AccountBalance == nil {
		return ""
	}
	return fmt.Sprintf("%s Balance: $%s", name, money(*d.AccountBalance/amountScale))
}

func tradeResultMessage(name string, r tradeResult, funny string) string {
	result := "LOSE"
	if r.Status > 0 {
		result = "WIN"
	}
	msg := fmt.Sprintf("%s Result: %s (%s)", name, result, r.Message)
	if funny != "" {
		msg += " => " + funny
	}
	return msg
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
