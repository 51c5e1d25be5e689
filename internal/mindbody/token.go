package mindbody

import (
	"context"
	"sync"
	"time"
)

// expiryBuffer is subtracted from the server-reported expiry so we refresh
// before the token actually dies mid-call.
const expiryBuffer = 60 * time.Second

// tokenCache holds the staff token for one Client instance. It is owned by
// the gateway, never process-global.
type tokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// token returns a valid bearer token: the static override when configured,
// the cached token while fresh, otherwise a new one from usertoken/issue.
func (c *Client) token(ctx context.Context) (string, error) {
	if c.cfg.StaticToken != "" {
		return c.cfg.StaticToken, nil
	}

	c.tokens.mu.Lock()
	defer c.tokens.mu.Unlock()

	now := c.now()
	if c.tokens.token != "" && now.Before(c.tokens.expiresAt) {
		return c.tokens.token, nil
	}

	if c.cfg.Username == "" || c.cfg.Password == "" {
		return "", &AuthError{Msg: "MBO_USERNAME / MBO_PASSWORD not set"}
	}

	resp, err := c.http.Post(ctx, "usertoken/issue", map[string]string{
		"Username": c.cfg.Username,
		"Password": c.cfg.Password,
	}, c.baseHeaders())
	if err != nil {
		return "", err
	}
	if !resp.Success() {
		return "", &AuthError{Msg: "usertoken HTTP " + httpStatus(resp.Status) + " body=" + string(resp.Body)}
	}

	var body tokenResponse
	if err := resp.Decode(&body); err != nil {
		return "", &AuthError{Msg: "usertoken: " + err.Error()}
	}
	if body.AccessToken == "" {
		return "", &AuthError{Msg: "no AccessToken in response"}
	}

	c.tokens.token = body.AccessToken
	if exp, err := time.Parse(time.RFC3339, body.Expires); err == nil {
		c.tokens.expiresAt = exp.Add(-expiryBuffer)
	} else {
		c.tokens.expiresAt = now.Add(time.Hour)
	}
	return c.tokens.token, nil
}
