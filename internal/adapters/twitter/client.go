// Package twitter is a minimal X/Twitter API v2 client for posting as a user.
//
// Requests are signed with OAuth 1.0a user-context credentials (the only auth
// mode the free tier allows for writes). Failures are returned as *APIError,
// classified into a small set of kinds the posting loop can act on.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dghubble/oauth1"

	logx "postbot/pkg/logx"
)

const (
	DefaultBaseURL = "https://api.twitter.com"
	DefaultTimeout = 15 * time.Second

	maxBody = 1 << 20
)

type Config struct {
	APIKey       string
	APISecret    string
	AccessToken  string
	AccessSecret string

	BaseURL string
	Timeout time.Duration

	// HTTPClient is the base client wrapped by the OAuth transport (tests).
	HTTPClient *http.Client
}

// Post is a created post.
type Post struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// User is the authenticated account.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

type Client struct {
	log  logx.Logger
	base string
	http *http.Client
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" || cfg.AccessToken == "" || cfg.AccessSecret == "" {
		return nil, &APIError{Kind: ErrUnauthorized, Detail: "credentials are empty"}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx := context.Background()
	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth1.HTTPClient, cfg.HTTPClient)
	}
	hc := oauth1.NewConfig(cfg.APIKey, cfg.APISecret).Client(ctx, oauth1.NewToken(cfg.AccessToken, cfg.AccessSecret))
	hc.Timeout = timeout

	return &Client{log: log, base: base, http: hc}, nil
}

// CreatePost publishes text and returns the new post.
func (c *Client) CreatePost(ctx context.Context, text string) (Post, error) {
	var out struct {
		Data Post `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/2/tweets", map[string]string{"text": text}, &out); err != nil {
		return Post{}, fmt.Errorf("create post: %w", err)
	}
	if out.Data.ID == "" {
		return Post{}, fmt.Errorf("create post: %w", &APIError{Kind: ErrTransient, Detail: "response without post id"})
	}
	c.log.Debug("post created", logx.String("id", out.Data.ID))
	return out.Data, nil
}

// Me returns the account the credentials belong to. Used to verify auth at startup.
func (c *Client) Me(ctx context.Context) (User, error) {
	var out struct {
		Data User `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/2/users/me", nil, &out); err != nil {
		return User{}, fmt.Errorf("verify credentials: %w", err)
	}
	if out.Data.ID == "" {
		return User{}, fmt.Errorf("verify credentials: %w", &APIError{Kind: ErrUnauthorized, Detail: "no user data returned"})
	}
	return out.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return transportError(method+" "+path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return transportError("read "+path, err)
	}
	c.log.Debug("api call",
		logx.String("method", method),
		logx.String("path", path),
		logx.Int("status", resp.StatusCode),
		logx.Duration("took", time.Since(start)),
	)

	if resp.StatusCode/100 != 2 {
		return classify(resp.StatusCode, resp.Header, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &APIError{Kind: ErrTransient, Status: resp.StatusCode, Detail: "malformed response", Err: err}
	}
	return nil
}

// Remediation lists operator steps for a permission failure.
func Remediation(err error) []string {
	if !IsAuth(err) {
		return nil
	}
	steps := []string{
		"open the developer portal and select the app",
		"under User authentication settings enable OAuth 1.0a",
		"set App permissions to Read and Write",
		"regenerate the Access Token and Secret after changing permissions",
		"update TWITTER_ACCESS_TOKEN and TWITTER_ACCESS_SECRET and restart",
	}
	if errors.Is(err, ErrUnauthorized) {
		steps = append([]string{"check that all four TWITTER_* credentials belong to the same app"}, steps...)
	}
	return steps
}
