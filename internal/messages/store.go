// Package messages loads the pre-written posts the bot cycles through.
//
// The list is read once at startup and never mutated afterwards, so it can be
// shared freely between goroutines.
package messages

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// MaxLength is the posting API's per-post character limit.
const MaxLength = 280

var (
	// ErrEmptyStore is returned when selecting from an empty list.
	ErrEmptyStore = errors.New("message store is empty")
	// ErrNoMessages is wrapped by LoadError when the file has no usable lines.
	ErrNoMessages = errors.New("no messages found")
)

// LoadError reports a missing or unusable message source. It is fatal at startup.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string { return fmt.Sprintf("load messages %s: %v", e.Path, e.Err) }
func (e *LoadError) Unwrap() error { return e.Err }

// List is an ordered, immutable sequence of messages.
type List struct {
	items []string
}

// New builds a List from in-memory messages using the same trimming rules as Load.
func New(items ...string) List {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s := strings.TrimSpace(it); s != "" {
			out = append(out, s)
		}
	}
	return List{items: out}
}

// Load reads one message per line from path. Lines are trimmed and blank lines dropped.
func Load(path string) (List, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return List{}, &LoadError{Path: path, Err: err}
	}
	b = bytes.TrimPrefix(b, []byte("\ufeff"))
	if !utf8.Valid(b) {
		return List{}, &LoadError{Path: path, Err: errors.New("file is not valid UTF-8")}
	}

	var items []string
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if s := strings.TrimSpace(sc.Text()); s != "" {
			items = append(items, s)
		}
	}
	if err := sc.Err(); err != nil {
		return List{}, &LoadError{Path: path, Err: err}
	}
	if len(items) == 0 {
		return List{}, &LoadError{Path: path, Err: ErrNoMessages}
	}
	return List{items: items}, nil
}

func (l List) Len() int { return len(l.items) }

// At returns the message at i. It panics on out-of-range like a slice would.
func (l List) At(i int) string { return l.items[i] }

// Overlong returns the indexes of messages longer than MaxLength characters.
func (l List) Overlong() []int {
	var out []int
	for i, s := range l.items {
		if utf8.RuneCountInString(s) > MaxLength {
			out = append(out, i)
		}
	}
	return out
}

// Select picks the message for cursor: index = cursor mod len.
// It is a pure function of its inputs.
func Select(cursor uint64, l List) (int, string, error) {
	n := l.Len()
	if n == 0 {
		return 0, "", ErrEmptyStore
	}
	i := int(cursor % uint64(n))
	return i, l.items[i], nil
}
