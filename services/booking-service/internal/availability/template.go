package availability

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Clock is a time of day in minutes since midnight.
type Clock int

var ErrInvalidClock = errors.New("invalid time of day")

// ParseClock parses "HH:MM" (24h).
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(mm) != 2 || len(hh) == 0 || len(hh) > 2 {
		return 0, ErrInvalidClock
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, ErrInvalidClock
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, ErrInvalidClock
	}
	return Clock(h*60 + m), nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// On returns the instant of c on the civil date of day, in loc.
func (c Clock) On(day time.Time, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), int(c)/60, int(c)%60, 0, 0, loc)
}

// Template is the ordered universe of bookable times for a day.
type Template struct {
	times []Clock
}

// NewTemplate sorts and de-duplicates times.
func NewTemplate(times ...Clock) Template {
	out := append([]Clock(nil), times...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	uniq := out[:0]
	for i, c := range out {
		if i > 0 && c == out[i-1] {
			continue
		}
		uniq = append(uniq, c)
	}
	return Template{times: uniq}
}

// DefaultTemplate is 09:00-13:00 and 14:00-19:00 every 30 minutes.
func DefaultTemplate() Template {
	t, _ := ParseTemplate("09:00-13:00,14:00-19:00", 30*time.Minute)
	return t
}

// ParseTemplate builds a template from inclusive "HH:MM-HH:MM" ranges separated by commas.
func ParseTemplate(spec string, step time.Duration) (Template, error) {
	stepMins := int(step / time.Minute)
	if stepMins <= 0 {
		return Template{}, fmt.Errorf("slot step must be at least one minute (got %s)", step)
	}
	var times []Clock
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		from, to, ok := strings.Cut(part, "-")
		if !ok {
			return Template{}, fmt.Errorf("invalid slot range %q", part)
		}
		start, err := ParseClock(from)
		if err != nil {
			return Template{}, fmt.Errorf("invalid slot range %q: %w", part, err)
		}
		end, err := ParseClock(to)
		if err != nil {
			return Template{}, fmt.Errorf("invalid slot range %q: %w", part, err)
		}
		if end < start {
			return Template{}, fmt.Errorf("slot range %q ends before it starts", part)
		}
		for c := start; c <= end; c += Clock(stepMins) {
			times = append(times, c)
		}
	}
	if len(times) == 0 {
		return Template{}, errors.New("slot template is empty")
	}
	return NewTemplate(times...), nil
}

func (t Template) Times() []Clock {
	return append([]Clock(nil), t.times...)
}

func (t Template) Len() int {
	return len(t.times)
}

func (t Template) Contains(c Clock) bool {
	i := sort.Search(len(t.times), func(i int) bool { return t.times[i] >= c })
	return i < len(t.times) && t.times[i] == c
}

// FreeTimes returns the template times present in neither booked nor blocked,
// in ascending order.
func FreeTimes(t Template, booked, blocked []Clock) []Clock {
	taken := make(map[Clock]struct{}, len(booked)+len(blocked))
	for _, c := range booked {
		taken[c] = struct{}{}
	}
	for _, c := range blocked {
		taken[c] = struct{}{}
	}
	free := make([]Clock, 0, len(t.times))
	for _, c := range t.times {
		if _, ok := taken[c]; ok {
			continue
		}
		free = append(free, c)
	}
	return free
}
