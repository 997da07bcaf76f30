package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
)

const (
	tokenPath = "/open-apis/auth/v3/tenant_access_token/internal"
	// tokenSkew refreshes the token this long before it expires.
	tokenSkew = 5 * time.Minute
)

type tokenResponse struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Token  string `json:"tenant_access_token"`
	Expire int64  `json:"expire"`
}

// AccessToken returns a cached tenant access token, refreshing it when it
// is within five minutes of expiry. Concurrent refreshes share one request.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && c.now().Add(tokenSkew).Before(c.tokenExpiry) {
		tok := c.token
		c.mu.Unlock()
		return tok, nil
	}
	c.mu.Unlock()

	v, err, _ := c.refresh.Do("token", func() (any, error) {
		return c.fetchToken(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) fetchToken(ctx context.Context) (string, error) {
	started := time.Now()
	body := map[string]string{"app_id": c.appID, "app_secret": c.appSecret}
	resp, err := c.raw.Post(ctx, tokenPath, body, larkcore.AccessTokenTypeNone)
	if err != nil {
		c.observe("auth.tenant_access_token", started, err)
		return "", fmt.Errorf("%w: %w", ErrToken, err)
	}

	var tr tokenResponse
	if err := json.Unmarshal(resp.RawBody, &tr); err != nil {
		c.observe("auth.tenant_access_token", started, err)
		return "", fmt.Errorf("%w: decode: %w", ErrToken, err)
	}
	if resp.StatusCode != http.StatusOK || tr.Code != 0 || tr.Token == "" {
		apiErr := &APIError{Code: tr.Code, Msg: tr.Msg}
		c.observe("auth.tenant_access_token", started, apiErr)
		return "", fmt.Errorf("%w: %w", ErrToken, apiErr)
	}
	c.observe("auth.tenant_access_token", started, nil)

	c.mu.Lock()
	c.token = tr.Token
	c.tokenExpiry = c.now().Add(time.Duration(tr.Expire) * time.Second)
	c.mu.Unlock()
	return tr.Token, nil
}
