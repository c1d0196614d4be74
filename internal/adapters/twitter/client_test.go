package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	logx "postbot/pkg/logx"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{
		APIKey:       "key",
		APISecret:    "secret",
		AccessToken:  "token",
		AccessSecret: "token-secret",
		BaseURL:      srv.URL,
		Timeout:      2 * time.Second,
		HTTPClient:   srv.Client(),
	}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestCreatePostSignsAndDecodes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/2/tweets" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "OAuth ") || !strings.Contains(auth, `oauth_consumer_key="key"`) || !strings.Contains(auth, `oauth_token="token"`) {
			t.Errorf("missing oauth1 signature: %q", auth)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"1800","text":` + strconv.Quote(body["text"]) + `}}`))
	})

	p, err := c.CreatePost(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	if p.ID != "1800" || p.Text != "hello world" {
		t.Fatalf("post = %+v", p)
	}
}

func TestMeReturnsUser(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/users/me" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"data":{"id":"42","name":"Bot","username":"postbot"}}`))
	})
	u, err := c.Me(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if u.Username != "postbot" {
		t.Fatalf("user = %+v", u)
	}
}

func TestCreatePostErrorKinds(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"rate limited", 429, `{"title":"Too Many Requests","detail":"Too Many Requests","status":429}`, ErrRateLimited},
		{"unauthorized", 401, `{"title":"Unauthorized","status":401}`, ErrUnauthorized},
		{"forbidden", 403, `{"title":"Forbidden","detail":"You are not permitted to perform this action.","status":403}`, ErrForbidden},
		{"duplicate on 403", 403, `{"detail":"You are not allowed to create a Tweet with duplicate content.","status":403}`, ErrDuplicate},
		{"duplicate legacy code", 400, `{"errors":[{"code":187,"message":"Status is a duplicate."}]}`, ErrDuplicate},
		{"bad request", 400, `{"title":"Invalid Request","detail":"text too long"}`, ErrBadRequest},
		{"unprocessable", 422, ``, ErrBadRequest},
		{"server error", 503, `upstream unavailable`, ErrTransient},
		{"timeout", 408, ``, ErrTransient},
		{"write forbidden code", 400, `{"errors":[{"code":261,"message":"Application cannot perform write actions."}]}`, ErrForbidden},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := c.CreatePost(context.Background(), "x")
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.Status != tc.status {
				t.Fatalf("want *APIError with status %d, got %v", tc.status, err)
			}
		})
	}
}

func TestRateLimitRetryAfter(t *testing.T) {
	reset := time.Now().Add(90 * time.Second).Unix()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-rate-limit-reset", strconv.FormatInt(reset, 10))
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := c.CreatePost(context.Background(), "x")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v", err)
	}
	if apiErr.RetryAfter <= 60*time.Second || apiErr.RetryAfter > 91*time.Second {
		t.Fatalf("RetryAfter = %v", apiErr.RetryAfter)
	}
}

func TestTransportFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := New(Config{APIKey: "k", APISecret: "s", AccessToken: "t", AccessSecret: "ts", BaseURL: url, Timeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.CreatePost(context.Background(), "x")
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("err = %v, want transient", err)
	}
}

func TestCanceledContextIsNotClassified(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.CreatePost(ctx, "x")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrTransient) {
		t.Fatal("canceled request must not look transient")
	}
}

func TestNewRejectsEmptyCredentials(t *testing.T) {
	_, err := New(Config{APIKey: "k"}, logx.Nop())
	if !IsAuth(err) {
		t.Fatalf("err = %v, want auth error", err)
	}
}

func TestRemediationOnlyForAuth(t *testing.T) {
	if Remediation(&APIError{Kind: ErrTransient}) != nil {
		t.Fatal("transient errors have no remediation")
	}
	if len(Remediation(&APIError{Kind: ErrForbidden})) == 0 {
		t.Fatal("forbidden must list remediation steps")
	}
}
