package exchange

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

// TokenLength длина валидного токена auth-сервиса.
const TokenLength = 124

var ErrInvalidToken = errors.New("invalid token")

type Credentials struct {
	UID       string `json:"uid"`
	AccountID string `json:"account_id"`
	Token     string `json:"token"`
}

type AuthClient struct {
	baseURL string
	http    *http.Client
}

// NewAuthClient baseURL напр. https://auth.alpari.io
func NewAuthClient(baseURL string, client *http.Client) *AuthClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &AuthClient{baseURL: strings.TrimRight(baseURL, "/"), http: client}
}

// RetrieveToken POST {base}/signin {account_id, password} => {uid, account_id, token}.
func (c *AuthClient) RetrieveToken(ctx context.Context, accountID, password string) (Credentials, error) {
	payload, err := sonic.Marshal(map[string]string{
		"account_id": accountID,
		"password":   password,
	})
	if err != nil {
		return Credentials{}, errors.Wrap(err, "signin marshal")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/signin", bytes.NewReader(payload))
	if err != nil {
		return Credentials{}, errors.Wrap(err, "signin new request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return Credentials{}, errors.Wrap(err, "signin")
	}
	defer resp.Body.Close()

	rb, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return Credentials{}, errors.Errorf("signin: http %d: %s", resp.StatusCode, truncate(string(rb), 200))
	}

	var out Credentials
	if err := sonic.Unmarshal(rb, &out); err != nil {
		return Credentials{}, errors.Wrapf(err, "signin: body %q", truncate(string(rb), 200))
	}
	if len(out.Token) != TokenLength {
		return Credentials{}, errors.Wrapf(ErrInvalidToken, "signin %s: token length %d", accountID, len(out.Token))
	}
	if out.AccountID == "" {
		out.AccountID = accountID
	}
	return out, nil
}
