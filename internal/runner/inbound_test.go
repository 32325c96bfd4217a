package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func balance(v float64) *float64 { return &v }

func TestAccountDataMessage(t *testing.T) {
	tests := []struct {
		name string
		data accountData
		want string
	}{
		{
			name: "both sides",
			data: accountData{AccountBalance: balance(99760000000), Orders: map[string]orderTotals{"BTC-USD": {BuyAmount: 500000000, SellAmount: 150000000}}},
			want: "main Total: BUY $5, SELL $1.5",
		},
		{
			name: "buy only",
			data: accountData{AccountBalance: balance(99760000000), Orders: map[string]orderTotals{"BTC-USD": {BuyAmount: 500000000}}},
			want: "main Total BUY $5 success",
		},
		{
			name: "sell only",
			data: accountData{AccountBalance: balance(99260000000), Orders: map[string]orderTotals{"BTC-USD": {SellAmount: 500000000}}},
			want: "main Total SELL $5 success",
		},
		{
			name: "no orders",
			data: accountData{AccountBalance: balance(99760000000), Orders: map[string]orderTotals{}},
			want: "main Balance: $997.6",
		},
		{
			name: "no balance field",
			data: accountData{Orders: map[string]orderTotals{}},
			want: "",
		},
		{
			name: "other pair",
			data: accountData{AccountBalance: balance(0), Orders: map[string]orderTotals{"ETH-USD": {BuyAmount: 1}}},
			want: "main Balance: $0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, accountDataMessage("main", "BTC-USD", tt.data))
		})
	}
}

func TestTradeResultMessage(t *testing.T) {
	assert.Equal(t, "main Result: WIN (+0.95) => nice",
		tradeResultMessage("main", tradeResult{Status: 1, Message: "+0.95"}, "nice"))
	assert.Equal(t, "main Result: LOSE (-5)",
		tradeResultMessage("main", tradeResult{Status: -1, Message: "-5"}, ""))
}
