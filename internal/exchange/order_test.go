package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderHash(t *testing.T) {
	assert.Equal(t, "fb55b3fd51fdc99f4437ae5c7eeea8bb", OrderHash("12345", "BTC-USD", 0, "buy", 1.5))
	assert.Equal(t, "d8afa385a932e1f0b91e07ca95d51178", OrderHash("12345", "BTC-USD", 0, "sell", 10))
}

func TestOrderFrame(t *testing.T) {
	o := NewOrder("tok", "12345", "", 0, "buy", 1.5)
	assert.Equal(t, DefaultPairID, o.PairID)

	f, err := o.Frame()
	require.NoError(t, err)
	assert.Equal(t,
		`42["send_order",{"u_token":"tok","t":"fb55b3fd51fdc99f4437ae5c7eeea8bb","account_id":"12345","pair_id":"BTC-USD","wallet":0,"action":"buy","amount":1.5}]`,
		string(Encode(f)),
	)
}
