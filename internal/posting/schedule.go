package posting

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule posts every three hours.
const DefaultSchedule = "3h"

// Accepts 5-field and 6-field (leading seconds) specs plus descriptors.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// Schedule computes the next tick time.
//
// Supported forms:
//   - cron: "0 */3 * * *", "@hourly", "@every 3h"
//   - interval duration: "3h", "90m"
//   - interval HH:MM: "03:00" (3 hours), "00:45" (45 minutes)
//
// The prefixes "cron:", "interval:" and "every:" force a form.
type Schedule struct {
	raw   string
	kind  string // "cron" | "duration" | "hhmm"
	sched cron.Schedule
	every time.Duration
}

// interval is a fixed delay measured from the end of the previous tick.
// cron.Every rounds to whole seconds, which is too coarse for tests.
type interval time.Duration

func (d interval) Next(t time.Time) time.Time { return t.Add(time.Duration(d)) }

func ParseSchedule(raw string) (Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		s = DefaultSchedule
	}
	low := strings.ToLower(s)

	switch {
	case strings.HasPrefix(low, "cron:"):
		return parseCron(raw, strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "interval:"):
		return parseInterval(raw, strings.TrimSpace(s[len("interval:"):]))
	case strings.HasPrefix(low, "every:"):
		return parseInterval(raw, strings.TrimSpace(s[len("every:"):]))
	case strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@"):
		return parseCron(raw, s)
	}

	if sc, err := parseInterval(raw, s); err == nil {
		return sc, nil
	}
	return Schedule{}, fmt.Errorf(
		"invalid schedule %q (use cron like '0 */3 * * *', HH:MM like '03:00', or duration like '3h')", raw)
}

func parseCron(raw, expr string) (Schedule, error) {
	if expr == "" {
		return Schedule{}, fmt.Errorf("cron schedule required after 'cron:'")
	}
	sc, err := cronParser.Parse(expr)
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}
	return Schedule{raw: strings.TrimSpace(raw), kind: "cron", sched: sc}, nil
}

func parseInterval(raw, v string) (Schedule, error) {
	var (
		d    time.Duration
		kind string
	)
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return Schedule{}, fmt.Errorf("invalid minutes in %q", v)
		}
		d, kind = time.Duration(hh)*time.Hour+time.Duration(mm)*time.Minute, "hhmm"
	} else {
		pd, err := time.ParseDuration(v)
		if err != nil {
			return Schedule{}, fmt.Errorf("invalid interval %q (use HH:MM or a duration like '3h')", v)
		}
		d, kind = pd, "duration"
	}
	if d <= 0 {
		return Schedule{}, fmt.Errorf("interval must be > 0")
	}
	if raw = strings.TrimSpace(raw); raw == "" {
		raw = DefaultSchedule
	}
	return Schedule{raw: raw, kind: kind, sched: interval(d), every: d}, nil
}

// Next returns the first tick strictly after t. For cron schedules t should
// already be in the posting timezone.
func (s Schedule) Next(t time.Time) time.Time {
	if s.sched == nil {
		return t.Add(3 * time.Hour)
	}
	return s.sched.Next(t)
}

// Every is the fixed interval, or 0 for cron schedules.
func (s Schedule) Every() time.Duration { return s.every }

func (s Schedule) Kind() string { return s.kind }

func (s Schedule) String() string { return s.raw }
