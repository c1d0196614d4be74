package posting

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Window is a half-open time-of-day range [start, end) in minutes after midnight.
// A start later than end wraps midnight ("22" to "06"). The zero Window is always open.
type Window struct {
	start, end int
	set        bool
}

// ParseWindow accepts "HH" or "HH:MM" bounds; "24" is allowed as an end bound.
// Both empty disables the window.
func ParseWindow(start, end string) (Window, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start == "" && end == "" {
		return Window{}, nil
	}
	if start == "" || end == "" {
		return Window{}, fmt.Errorf("window needs both start and end (got %q-%q)", start, end)
	}
	s, err := parseClock(start, false)
	if err != nil {
		return Window{}, fmt.Errorf("window start: %w", err)
	}
	e, err := parseClock(end, true)
	if err != nil {
		return Window{}, fmt.Errorf("window end: %w", err)
	}
	if s == e {
		return Window{}, fmt.Errorf("window %s-%s is empty", start, end)
	}
	return Window{start: s, end: e, set: true}, nil
}

func parseClock(v string, allow24 bool) (int, error) {
	hs, ms, hasMin := strings.Cut(v, ":")
	h, err := strconv.Atoi(hs)
	if err != nil {
		return 0, fmt.Errorf("invalid hour %q", v)
	}
	m := 0
	if hasMin {
		if len(ms) != 2 {
			return 0, fmt.Errorf("invalid minutes %q", v)
		}
		if m, err = strconv.Atoi(ms); err != nil || m < 0 || m > 59 {
			return 0, fmt.Errorf("invalid minutes %q", v)
		}
	}
	switch {
	case h >= 0 && h < 24:
	case h == 24 && m == 0 && allow24:
	default:
		return 0, fmt.Errorf("hour out of range %q", v)
	}
	return h*60 + m, nil
}

func (w Window) Enabled() bool { return w.set }

// Contains reports whether t's wall-clock time (in t's location) is inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.set {
		return true
	}
	m := t.Hour()*60 + t.Minute()
	if w.start < w.end {
		return m >= w.start && m < w.end
	}
	return m >= w.start || m < w.end
}

func (w Window) String() string {
	if !w.set {
		return ""
	}
	return fmtClock(w.start) + "-" + fmtClock(w.end)
}

func fmtClock(m int) string { return fmt.Sprintf("%02d:%02d", m/60, m%60) }
