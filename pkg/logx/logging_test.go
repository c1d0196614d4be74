package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

type chanSender struct {
	got chan string
}

func (c *chanSender) SendText(_ context.Context, chatID int64, threadID int, text string) error {
	if chatID != 42 || threadID != 7 {
		return errors.New("unexpected chat")
	}
	c.got <- text
	return nil
}

func TestFormatAlert(t *testing.T) {
	line := `{"level":"error","time":"2026-01-01T00:00:00Z","message":"post failed","outcome":"fatal","attempt":3}`
	got := formatAlert([]byte(line))
	want := "[ERROR] post failed\n- attempt=3\n- outcome=fatal"
	if got != want {
		t.Fatalf("formatAlert = %q, want %q", got, want)
	}

	long := strings.Repeat("x", 5000)
	if got := formatAlert([]byte(long)); len(got) != 3500 || !strings.HasSuffix(got, "...") {
		t.Fatalf("non-JSON line not truncated: len=%d", len(got))
	}
}

func TestTelegramSinkHonorsMinLevel(t *testing.T) {
	snd := &chanSender{got: make(chan string, 4)}
	svc, log := New(Config{
		Level: "debug",
		Telegram: TelegramConfig{
			Enabled: true, ChatID: 42, ThreadID: 7, MinLevel: "error", RatePerSec: 10,
		},
	}, snd)
	defer svc.Close()

	log.Warn("below threshold")
	log.Error("store failed", Err(errors.New("disk full")), String("comp", "storage"))

	select {
	case msg := <-snd.got:
		for _, want := range []string{"[ERROR] store failed", "err=disk full", "comp=storage"} {
			if !strings.Contains(msg, want) {
				t.Fatalf("alert %q missing %q", msg, want)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no alert delivered")
	}
	select {
	case msg := <-snd.got:
		t.Fatalf("unexpected extra alert %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWithFieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With(String("comp", "posting"))
	log.Debug("hidden")
	log.Info("tick", Uint64("cursor", 5), Duration("wait", time.Second))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %s", len(lines), buf.String())
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &m); err != nil {
		t.Fatal(err)
	}
	if m["comp"] != "posting" || m["cursor"] != float64(5) || m["message"] != "tick" {
		t.Fatalf("record = %v", m)
	}
	if _, ok := m["caller"]; !ok {
		t.Fatal("caller missing")
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"", "debug", "WARN", "warning", "Error"} {
		if _, err := ParseLevel(s); err != nil {
			t.Fatalf("ParseLevel(%q): %v", s, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	var zero Logger
	if !zero.IsZero() {
		t.Fatal("zero logger must report IsZero")
	}
	zero.Info("no panic")
}
