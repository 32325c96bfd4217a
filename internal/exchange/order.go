package exchange

import (
	"crypto/md5"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
)

const (
	DefaultPairID = "BTC-USD"
	amountScale   = 1e8
)

// Order send_order для торговой сессии.
type Order struct {
	Token     string  `json:"u_token"`
	Hash      string  `json:"t"`
	AccountID string  `json:"account_id"`
	PairID    string  `json:"pair_id"`
	Wallet    int     `json:"wallet"`
	Action    string  `json:"action"`
	Amount    float64 `json:"amount"`
}

func NewOrder(token, accountID, pairID string, wallet int, action string, amount float64) Order {
	if pairID == "" {
		pairID = DefaultPairID
	}
	o := Order{
		Token:     token,
		AccountID: accountID,
		PairID:    pairID,
		Wallet:    wallet,
		Action:    action,
		Amount:    amount,
	}
	o.Hash = OrderHash(accountID, pairID, wallet, action, amount)
	return o
}

// OrderHash md5("account_id,pair_id,wallet,action,round(amount*1e8)") в hex,
// так же считает веб-клиент биржи.
func OrderHash(accountID, pairID string, wallet int, action string, amount float64) string {
	scaled := int64(math.Round(amount * amountScale))
	s := strings.Join([]string{
		accountID,
		pairID,
		strconv.Itoa(wallet),
		action,
		strconv.FormatInt(scaled, 10),
	}, ",")
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func (o Order) Frame() (Frame, error) { return NewEvent("send_order", o) }
