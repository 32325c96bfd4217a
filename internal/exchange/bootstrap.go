package exchange

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

const socketPath = "/socket.io/?EIO=3&transport="

// Endpoint хост биржи, напр. https://wstrade.alpari.io
type Endpoint struct {
	BaseURL string
}

func (e Endpoint) PollingURL(sid string) string {
	u := strings.TrimRight(e.BaseURL, "/") + socketPath + "polling"
	if sid != "" {
		u += "&sid=" + url.QueryEscape(sid)
	}
	return u
}

// SocketURL http(s) => ws(s).
func (e Endpoint) SocketURL(sid string) string {
	base := strings.TrimRight(e.BaseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + socketPath + "websocket&sid=" + url.QueryEscape(sid)
}

// Handshake open-пакет engine.io: 0{"sid":..,"upgrades":[..],"pingInterval":..,"pingTimeout":..}
type Handshake struct {
	SID          string
	Upgrades     []string
	PingInterval time.Duration
	PingTimeout  time.Duration
}

type openPacket struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int64    `json:"pingInterval"`
	PingTimeout  int64    `json:"pingTimeout"`
}

// Identity то, чем торговая сессия представляется бирже (send_user, keep_alive).
type Identity struct {
	UID       string `json:"uid"`
	AccountID string `json:"account_id"`
	Token     string `json:"token"`
}

var ErrNoSID = errors.New("handshake without sid")

// HTTPBootstrapper polling-часть протокола: sid, активация токена, снимок.
type HTTPBootstrapper struct {
	http *http.Client
}

func NewHTTPBootstrapper(client *http.Client) *HTTPBootstrapper {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPBootstrapper{http: client}
}

func (b *HTTPBootstrapper) Acquire(ctx context.Context, ep Endpoint) (Handshake, error) {
	body, err := b.do(ctx, http.MethodGet, ep.PollingURL(""), "")
	if err != nil {
		return Handshake{}, errors.Wrap(err, "acquire sid")
	}
	h, err := ParseHandshake(body)
	if err != nil {
		return Handshake{}, errors.Wrapf(err, "acquire sid: body %q", truncate(body, 200))
	}
	return h, nil
}

// Activate привязывает sid к аккаунту: POST 42["send_user",{uid,account_id,token}].
func (b *HTTPBootstrapper) Activate(ctx context.Context, ep Endpoint, sid string, id Identity) error {
	f, err := NewEvent("send_user", id)
	if err != nil {
		return err
	}
	_, err = b.do(ctx, http.MethodPost, ep.PollingURL(sid), EncodePayload(string(Encode(f))))
	return errors.Wrapf(err, "activate sid for %s", id.AccountID)
}

// Snapshot последнее событие name из polling-ответа по sid.
func (b *HTTPBootstrapper) Snapshot(ctx context.Context, ep Endpoint, sid, name string) (Frame, error) {
	body, err := b.do(ctx, http.MethodGet, ep.PollingURL(sid), "")
	if err != nil {
		return Frame{}, errors.Wrap(err, "snapshot")
	}

	var last Frame
	found := false
	for _, p := range DecodePayload(body) {
		f, err := Decode([]byte(p))
		if err != nil || f.Kind != Event || f.Name != name {
			continue
		}
		last, found = f, true
	}
	if !found {
		return Frame{}, errors.Errorf("snapshot: no %s event in %q", name, truncate(body, 200))
	}
	return last, nil
}

func (b *HTTPBootstrapper) do(ctx context.Context, method, u, body string) (string, error) {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return "", errors.Wrap(err, "new request")
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	rb, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return "", errors.Errorf("http %d: %s", resp.StatusCode, truncate(string(rb), 200))
	}
	return string(rb), nil
}

// ParseHandshake ищет open-пакет в polling-теле. Если тело не в формате
// <len>:<packet>, пробуем старый вариант биржи: body[4:len-4].
func ParseHandshake(body string) (Handshake, error) {
	var raw string
	for _, p := range DecodePayload(body) {
		if strings.HasPrefix(p, "0{") {
			raw = p[1:]
			break
		}
	}
	if raw == "" && len(body) > 8 {
		raw = body[4 : len(body)-4]
	}
	if raw == "" {
		return Handshake{}, ErrNoSID
	}

	var op openPacket
	if err := sonic.UnmarshalString(raw, &op); err != nil {
		return Handshake{}, errors.Wrap(err, "parse open packet")
	}
	if op.SID == "" {
		return Handshake{}, ErrNoSID
	}
	return Handshake{
		SID:          op.SID,
		Upgrades:     op.Upgrades,
		PingInterval: time.Duration(op.PingInterval) * time.Millisecond,
		PingTimeout:  time.Duration(op.PingTimeout) * time.Millisecond,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
