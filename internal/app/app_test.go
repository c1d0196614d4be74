package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"postbot/internal/adapters/twitter"
	"postbot/internal/config"
	"postbot/internal/messages"
)

type fakeAPI struct {
	mu     sync.Mutex
	posts  []string
	status int // for /2/tweets; 0 means 201
	meCode int // for /2/users/me; 0 means 200
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.URL.Path {
	case "/2/users/me":
		if f.meCode != 0 {
			w.WriteHeader(f.meCode)
			_, _ = w.Write([]byte(`{"title":"Unauthorized","status":401}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"id":"1","name":"Bot","username":"postbot"}}`))
	case "/2/tweets":
		body, _ := io.ReadAll(r.Body)
		f.posts = append(f.posts, string(body))
		if f.status != 0 {
			w.WriteHeader(f.status)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"99","text":"x"}}`))
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts)
}

type fixture struct {
	api    *fakeAPI
	srv    *httptest.Server
	env    map[string]string
	cursor string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	msgs := filepath.Join(dir, "tweet.txt")
	if err := os.WriteFile(msgs, []byte("first\n\nsecond\nthird\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	f := &fixture{api: &fakeAPI{}, cursor: filepath.Join(dir, "last_index.txt")}
	f.srv = httptest.NewServer(f.api)
	t.Cleanup(f.srv.Close)
	f.env = map[string]string{
		"TWITTER_API_KEY":       "k",
		"TWITTER_API_SECRET":    "s",
		"TWITTER_ACCESS_TOKEN":  "t",
		"TWITTER_ACCESS_SECRET": "ts",
		"TWITTER_API_BASE_URL":  f.srv.URL,
		"POSTBOT_MESSAGES":      msgs,
		"POSTBOT_CURSOR":        f.cursor,
		"POSTBOT_HTTP_ADDR":     "127.0.0.1:0",
		"POSTBOT_RETRY_BASE":    "1ms",
		"LOG_LEVEL":             "error",
	}
	return f
}

func (f *fixture) options() Options {
	return Options{
		Lookup: func(k string) (string, bool) {
			v, ok := f.env[k]
			return v, ok
		},
		HTTPClient: f.srv.Client(),
	}
}

func (f *fixture) cursorValue(t *testing.T) string {
	t.Helper()
	b, err := os.ReadFile(f.cursor)
	if err != nil {
		t.Fatalf("read cursor: %v", err)
	}
	return strings.TrimSpace(string(b))
}

func TestRunOnceAdvancesCursor(t *testing.T) {
	f := newFixture(t)
	a, err := New(context.Background(), f.options())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Stop(context.Background())

	for i, want := range []string{"1", "2"} {
		if err := a.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce %d: %v", i, err)
		}
		if got := f.cursorValue(t); got != want {
			t.Fatalf("cursor = %s, want %s", got, want)
		}
	}
	if !strings.Contains(f.api.posts[1], "second") {
		t.Fatalf("second post = %s", f.api.posts[1])
	}
}

func TestRunOnceFailsWhenRejected(t *testing.T) {
	f := newFixture(t)
	f.api.status = http.StatusServiceUnavailable
	a, err := New(context.Background(), f.options())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Stop(context.Background())

	if err := a.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if f.api.count() != 3 {
		t.Fatalf("attempts = %d, want 3", f.api.count())
	}
	if _, err := os.Stat(f.cursor); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("cursor must not be written, stat err = %v", err)
	}
}

func TestNewFailsOnRejectedCredentials(t *testing.T) {
	f := newFixture(t)
	f.api.meCode = http.StatusUnauthorized
	_, err := New(context.Background(), f.options())
	if !twitter.IsAuth(err) {
		t.Fatalf("err = %v, want auth error", err)
	}
}

func TestNewFailsOnMissingCredentials(t *testing.T) {
	f := newFixture(t)
	delete(f.env, "TWITTER_ACCESS_SECRET")
	_, err := New(context.Background(), f.options())
	if !errors.Is(err, config.ErrMissingCredentials) {
		t.Fatalf("err = %v, want ErrMissingCredentials", err)
	}
}

func TestNewFailsOnMissingMessages(t *testing.T) {
	f := newFixture(t)
	f.env["POSTBOT_MESSAGES"] = filepath.Join(t.TempDir(), "absent.txt")
	_, err := New(context.Background(), f.options())
	var le *messages.LoadError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want *messages.LoadError", err)
	}
}

func TestStartPostsOnStartAndServesStatus(t *testing.T) {
	f := newFixture(t)
	f.env["POSTBOT_SCHEDULE"] = "1h"
	a, err := New(context.Background(), f.options())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for f.api.count() == 0 || a.health.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("no post on start or server not bound")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Get("http://" + a.health.Addr() + "/status")
	if err != nil {
		t.Fatal(err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"schedule": "1h"`, `"account": "@postbot"`, `"messages": 3`} {
		if !strings.Contains(string(body), want) {
			t.Errorf("status missing %s:\n%s", want, body)
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestApplyConfigUpdatesSchedule(t *testing.T) {
	f := newFixture(t)
	a, err := New(context.Background(), f.options())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Stop(context.Background())

	old := a.cfgm.Get()
	next := *old
	next.Posting.Schedule = "45m"
	next.Posting.WindowStart, next.Posting.WindowEnd = "8", "20"
	a.applyConfig(old, &next)

	snap := a.posting.Snapshot()
	if snap.Schedule != "45m" || snap.Window != "08:00-20:00" {
		t.Fatalf("snapshot = %+v", snap)
	}

	bad := next
	bad.Posting.Schedule = "whenever"
	a.applyConfig(&next, &bad)
	if a.posting.Snapshot().Schedule != "45m" {
		t.Fatal("invalid schedule must keep the previous one")
	}
}

func TestMapPostingConfigBudget(t *testing.T) {
	cases := []struct{ in, want int }{{0, 17}, {-1, 0}, {5, 5}}
	for _, tc := range cases {
		pc, err := mapPostingConfig(&config.Config{Posting: config.PostingConfig{MaxPostsPerDay: tc.in}})
		if err != nil {
			t.Fatal(err)
		}
		if pc.MaxPostsPerDay != tc.want {
			t.Fatalf("max_posts_per_day %d -> %d, want %d", tc.in, pc.MaxPostsPerDay, tc.want)
		}
		if !pc.PostOnStart {
			t.Fatal("post_on_start defaults to true")
		}
	}
}
