package strategy

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"streak_bot/internal/models"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func externalAccount() models.AccountTradeConfig {
	acc := account(1, 2, 3)
	acc.StrategyRunning = "martingale"
	acc.StrategyList = []string{"martingale"}
	return acc
}

func TestExternalApply(t *testing.T) {
	var got externalRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, strategyPath, r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("token"))
		b, _ := io.ReadAll(r.Body)
		assert.NoError(t, sonic.Unmarshal(b, &got))
		_, _ = io.WriteString(w, `{"code":200,"body":{"buy":false,"amount":2.5,"data":"martingale step 3"}}`)
	}))
	defer srv.Close()

	sig := models.PriceSignal{Color: models.Green, StreakLength: 3, RecentColors: []models.CandleColor{models.Red, models.Green}}
	in := NewExternal(srv.URL, "secret", time.Second).Apply(context.Background(), sig, externalAccount())

	assert.Equal(t, models.Instruction{Action: models.ActionSell, Amount: 2.5, Data: "martingale step 3"}, in)
	assert.Equal(t, "martingale", got.StrategyID)
	assert.True(t, got.IsGreen)
	assert.Equal(t, 3, got.Candles)
	assert.Equal(t, []models.CandleColor{models.Red, models.Green}, got.ColorList)
	assert.Equal(t, "acc-1", got.AccountID)
	assert.Equal(t, []float64{1, 2, 3}, got.AccountAmounts)
}

func reply(status int, body string, delay time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(delay)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func TestExternalApplyFailuresAreNoop(t *testing.T) {
	for name, handler := range map[string]http.HandlerFunc{
		"not json":   reply(http.StatusOK, "<html>", 0),
		"bad code":   reply(http.StatusOK, `{"code":500}`, 0),
		"no body":    reply(http.StatusOK, `{"code":200}`, 0),
		"zero":       reply(http.StatusOK, `{"code":200,"body":{"buy":true,"amount":0}}`, 0),
		"slow":       reply(http.StatusOK, "", 200*time.Millisecond),
		"status 502": reply(http.StatusBadGateway, "", 0),
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(handler)
			defer srv.Close()

			in := NewExternal(srv.URL, "", 50*time.Millisecond).Apply(context.Background(), models.PriceSignal{}, externalAccount())
			assert.False(t, in.Actionable())
			assert.Equal(t, models.ActionBuy, in.Action)
			assert.Equal(t, 0.0, in.Amount)
		})
	}
}

func TestExternalUnreachable(t *testing.T) {
	in := NewExternal("http://127.0.0.1:1", "", 50*time.Millisecond).Apply(context.Background(), models.PriceSignal{}, externalAccount())
	assert.False(t, in.Actionable())
	assert.Equal(t, models.Instruction{Action: models.ActionBuy}, in)

	in = NewExternal("", "", 0).Apply(context.Background(), models.PriceSignal{}, externalAccount())
	assert.False(t, in.Actionable())
}

func TestExternalClear(t *testing.T) {
	var got clearRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		b, _ := io.ReadAll(r.Body)
		assert.NoError(t, sonic.Unmarshal(b, &got))
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	require.NoError(t, NewExternal(srv.URL, "", time.Second).Clear(context.Background(), "martingale", "acc-1"))
	assert.Equal(t, clearRequest{StrategyID: "martingale", AccountID: "acc-1"}, got)
}

func TestEngineDispatch(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `{"code":200,"body":{"buy":true,"amount":7}}`)
	}))
	defer srv.Close()

	e := NewEngine(NewExternal(srv.URL, "", time.Second), ict)
	e.now = func() time.Time { return time.Date(2019, 9, 10, 10, 0, 10, 0, ict) }

	in := e.Decide(context.Background(), signal(models.Green, 3), account(0, 0, 1, 2, 4))
	assert.Equal(t, models.Instruction{Action: models.ActionSell, Amount: 1}, in)
	assert.EqualValues(t, 0, calls.Load())

	in = e.Decide(context.Background(), signal(models.Green, 3), externalAccount())
	assert.Equal(t, models.Instruction{Action: models.ActionBuy, Amount: 7}, in)
	assert.EqualValues(t, 1, calls.Load())

	assert.NoError(t, e.Clear(context.Background(), models.DefaultStrategyID, "acc-1"))
	assert.EqualValues(t, 1, calls.Load())
}

func TestEngineWithoutExternal(t *testing.T) {
	e := NewEngine(nil, ict)
	in := e.Decide(context.Background(), signal(models.Green, 3), externalAccount())
	assert.False(t, in.Actionable())
	assert.Error(t, e.Clear(context.Background(), "martingale", "acc-1"))
}
