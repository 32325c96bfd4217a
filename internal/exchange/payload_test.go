package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodePayload(t *testing.T) {
	body := `97:0{"sid":"UPZOG_fJBnlRL3dLAgSb","upgrades":["websocket"],"pingInterval":25000,"pingTimeout":60000}2:40`
	got := DecodePayload(body)
	assert.Equal(t, []string{
		`0{"sid":"UPZOG_fJBnlRL3dLAgSb","upgrades":["websocket"],"pingInterval":25000,"pingTimeout":60000}`,
		"40",
	}, got)
}

func TestDecodePayloadCountsCharacters(t *testing.T) {
	assert.Equal(t, []string{"4é", "3"}, DecodePayload("2:4é1:3"))
}

func TestDecodePayloadGarbage(t *testing.T) {
	assert.Empty(t, DecodePayload("ok"))
	assert.Equal(t, []string{"40"}, DecodePayload("2:40x:zz"))
	assert.Equal(t, []string{"40"}, DecodePayload("2:4010:short"))
}

func TestEncodePayload(t *testing.T) {
	assert.Equal(t, "2:406:2probe", EncodePayload("40", "2probe"))
	assert.Equal(t, []string{"40", "2probe"}, DecodePayload(EncodePayload("40", "2probe")))
}
