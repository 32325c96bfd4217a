package strategy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"streak_bot/internal/models"
	"streak_bot/pkg/logger"
	"streak_bot/pkg/tracing"

	"github.com/bytedance/sonic"
)

const strategyPath = "/api/strategy"

type externalRequest struct {
	StrategyID     string               `json:"strategyId"`
	IsGreen        bool                 `json:"isGreen"`
	Candles        int                  `json:"candles"`
	ColorList      []models.CandleColor `json:"colorList"`
	AccountID      string               `json:"accountId"`
	AccountAmounts []float64            `json:"accountAmounts"`
}

type externalResponse struct {
	Code int `json:"code"`
	Body *struct {
		Buy    bool    `json:"buy"`
		Amount float64 `json:"amount"`
		Data   any     `json:"data"`
	} `json:"body"`
}

type clearRequest struct {
	StrategyID string `json:"strategyId"`
	AccountID  string `json:"accountId"`
}

// External клиент внешнего сервиса стратегий. Любая ошибка => пустая инструкция.
type External struct {
	host  string
	token string
	http  *http.Client
}

func NewExternal(host, token string, timeout time.Duration) *External {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &External{
		host:  strings.TrimRight(host, "/"),
		token: token,
		http:  &http.Client{Timeout: timeout},
	}
}

func (e *External) Apply(ctx context.Context, sig models.PriceSignal, acc models.AccountTradeConfig) models.Instruction {
	strategyID := acc.Strategy()
	span, ctx := tracing.StartSpan(ctx, "strategy.External.Apply", map[string]any{
		"account_id":  acc.AccountID,
		"strategy_id": strategyID,
		"streak":      sig.StreakLength,
	})

	colors := sig.RecentColors
	if colors == nil {
		colors = []models.CandleColor{}
	}
	amounts := acc.AmountStrategy
	if amounts == nil {
		amounts = []float64{}
	}

	var res externalResponse
	err := e.do(ctx, http.MethodPost, externalRequest{
		StrategyID:     strategyID,
		IsGreen:        sig.Color == models.Green,
		Candles:        sig.StreakLength,
		ColorList:      colors,
		AccountID:      acc.AccountID,
		AccountAmounts: amounts,
	}, &res)
	if err == nil && (res.Code != http.StatusOK || res.Body == nil) {
		err = fmt.Errorf("strategy %s answered code %d", strategyID, res.Code)
	}
	tracing.Finish(span, err)
	if err != nil {
		logger.Warn("[STRATEGY] %s %s: %v", acc.AccountID, strategyID, err)
		return failed
	}

	in := models.Instruction{Action: models.ActionSell, Amount: max(res.Body.Amount, 0), Data: dataText(res.Body.Data)}
	if res.Body.Buy {
		in.Action = models.ActionBuy
	}
	return in
}

// Clear сбрасывает кэш стратегии для аккаунта (PUT).
func (e *External) Clear(ctx context.Context, strategyID, accountID string) error {
	if err := e.do(ctx, http.MethodPut, clearRequest{StrategyID: strategyID, AccountID: accountID}, nil); err != nil {
		return fmt.Errorf("strategy.Clear %s %s: %w", accountID, strategyID, err)
	}
	return nil
}

func (e *External) do(ctx context.Context, method string, body, out any) error {
	if e.host == "" {
		return fmt.Errorf("strategy host is not configured")
	}
	payload, err := sonic.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, e.host+strategyPath, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("token", e.token)

	resp, err := e.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	rb, _ := io.ReadAll(resp.Body)
	if out == nil {
		if resp.StatusCode/100 != 2 {
			return fmt.Errorf("http %d: %s", resp.StatusCode, rb)
		}
		return nil
	}
	return sonic.Unmarshal(rb, out)
}

func dataText(v any) string {
	switch d := v.(type) {
	case nil:
		return ""
	case string:
		return d
	default:
		s, _ := sonic.MarshalString(d)
		return s
	}
}
