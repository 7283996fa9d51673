package availability

import (
	"testing"
	"time"
)

func clocks(t *testing.T, values ...string) []Clock {
	t.Helper()
	out := make([]Clock, 0, len(values))
	for _, v := range values {
		c, err := ParseClock(v)
		if err != nil {
			t.Fatalf("ParseClock(%q): %v", v, err)
		}
		out = append(out, c)
	}
	return out
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:30")
	if err != nil {
		t.Fatalf("ParseClock failed: %v", err)
	}
	if c != 570 || c.String() != "09:30" {
		t.Fatalf("unexpected clock %d (%s)", c, c)
	}
	for _, bad := range []string{"", "9", "24:00", "12:60", "ab:cd", "12:5"} {
		if _, err := ParseClock(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestDefaultTemplate(t *testing.T) {
	tpl := DefaultTemplate()
	times := tpl.Times()
	if len(times) != 20 {
		t.Fatalf("expected 20 slots, got %d", len(times))
	}
	if times[0].String() != "09:00" || times[len(times)-1].String() != "19:00" {
		t.Fatalf("unexpected bounds %s..%s", times[0], times[len(times)-1])
	}
	if tpl.Contains(clocks(t, "13:30")[0]) {
		t.Fatal("midday gap must not be bookable")
	}
	if !tpl.Contains(clocks(t, "14:00")[0]) {
		t.Fatal("14:00 must be bookable")
	}
	for i := 1; i < len(times); i++ {
		if times[i] <= times[i-1] {
			t.Fatalf("template not strictly ascending at %d", i)
		}
	}
}

func TestParseTemplateErrors(t *testing.T) {
	cases := []string{"", "10:00", "12:00-10:00", "xx-10:00"}
	for _, spec := range cases {
		if _, err := ParseTemplate(spec, 30*time.Minute); err == nil {
			t.Fatalf("expected error for %q", spec)
		}
	}
	if _, err := ParseTemplate("09:00-10:00", 0); err == nil {
		t.Fatal("expected error for zero step")
	}
}

func TestNewTemplateSortsAndDedupes(t *testing.T) {
	tpl := NewTemplate(clocks(t, "10:00", "09:00", "10:00")...)
	got := tpl.Times()
	if len(got) != 2 || got[0].String() != "09:00" || got[1].String() != "10:00" {
		t.Fatalf("unexpected template %v", got)
	}
}

func TestFreeTimesIsSubsetAndDisjoint(t *testing.T) {
	tpl := DefaultTemplate()
	booked := clocks(t, "09:00", "10:30", "18:00")
	blocked := clocks(t, "10:30", "14:00", "21:00")

	free := FreeTimes(tpl, booked, blocked)
	if len(free) != tpl.Len()-4 {
		t.Fatalf("expected %d free slots, got %d", tpl.Len()-4, len(free))
	}

	excluded := map[Clock]bool{}
	for _, c := range append(booked, blocked...) {
		excluded[c] = true
	}
	for i, c := range free {
		if !tpl.Contains(c) {
			t.Fatalf("%s is not in the template", c)
		}
		if excluded[c] {
			t.Fatalf("%s is booked or blocked", c)
		}
		if i > 0 && free[i-1] >= c {
			t.Fatalf("free times not ascending at %d", i)
		}
	}
}

func TestFreeTimesEverythingTaken(t *testing.T) {
	tpl := NewTemplate(clocks(t, "09:00", "09:30")...)
	free := FreeTimes(tpl, clocks(t, "09:00"), clocks(t, "09:30"))
	if len(free) != 0 {
		t.Fatalf("expected no free slots, got %v", free)
	}
}
