package model

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Stamper hands out millisecond timestamps that strictly increase within the process.
type Stamper struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewStamper returns a Stamper reading the wall clock.
func NewStamper() *Stamper {
	return &Stamper{now: time.Now}
}

// NewStamperWithClock returns a Stamper reading the given clock.
func NewStamperWithClock(now func() time.Time) *Stamper {
	return &Stamper{now: now}
}

// Next returns the current time truncated to milliseconds, bumped by one
// millisecond past the previous value when the clock has not advanced.
func (s *Stamper) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.now().Truncate(time.Millisecond)
	if !t.After(s.last) {
		t = s.last.Add(time.Millisecond)
	}
	s.last = t
	return t
}

// FormatTimestamp renders t as YYYY-MM-DD_HH-MM-SS-mmm.
func FormatTimestamp(t time.Time) string {
	return fmt.Sprintf("%s-%03d", t.Format("2006-01-02_15-04-05"), t.Nanosecond()/int(time.Millisecond))
}

// ParseTimestamp is the inverse of FormatTimestamp, in local time.
func ParseTimestamp(s string) (time.Time, error) {
	if len(s) != len("2006-01-02_15-04-05-000") {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	base, err := time.ParseInLocation("2006-01-02_15-04-05", s[:19], time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	ms, err := strconv.Atoi(s[20:])
	if err != nil || s[19] != '-' || ms < 0 {
		return time.Time{}, fmt.Errorf("invalid millisecond part in %q", s)
	}
	return base.Add(time.Duration(ms) * time.Millisecond), nil
}
