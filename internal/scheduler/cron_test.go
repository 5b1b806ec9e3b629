package scheduler

import (
	"testing"
	"time"
)

func TestParseCron_Basic(t *testing.T) {
	expr, err := ParseCron("0 9 * * 1")
	if err != nil {
		t.Fatalf("ParseCron() error: %v", err)
	}

	// Monday 09:00 matches.
	monday := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if !expr.Matches(monday) {
		t.Error("expected Monday 09:00 to match")
	}
	// Tuesday 09:00 does not.
	if expr.Matches(monday.Add(24 * time.Hour)) {
		t.Error("Tuesday should not match day-of-week 1")
	}
}

func TestParseCron_StepsAndRanges(t *testing.T) {
	expr, err := ParseCron("*/15 8-17 * * 1-5")
	if err != nil {
		t.Fatalf("ParseCron() error: %v", err)
	}

	weekday := time.Date(2026, 3, 4, 8, 45, 0, 0, time.UTC)
	if !expr.Matches(weekday) {
		t.Error("expected Wednesday 08:45 to match")
	}
	if expr.Matches(time.Date(2026, 3, 4, 8, 46, 0, 0, time.UTC)) {
		t.Error("08:46 should not match */15")
	}
	if expr.Matches(time.Date(2026, 3, 7, 8, 45, 0, 0, time.UTC)) {
		t.Error("Saturday should not match 1-5")
	}
}

func TestParseCron_SundayBothSpellings(t *testing.T) {
	sunday := time.Date(2026, 3, 8, 6, 30, 0, 0, time.UTC)
	for _, spec := range []string{"30 6 * * 0", "30 6 * * 7"} {
		expr, err := ParseCron(spec)
		if err != nil {
			t.Fatalf("ParseCron(%q) error: %v", spec, err)
		}
		if !expr.Matches(sunday) {
			t.Errorf("%q should match Sunday", spec)
		}
	}
}

func TestParseCron_Errors(t *testing.T) {
	bad := []string{
		"* * * *",       // 4 fields
		"60 * * * *",    // minute out of range
		"* 24 * * *",    // hour out of range
		"* * 0 * *",     // day-of-month out of range
		"* * * 13 *",    // month out of range
		"* * * * 8",     // day-of-week out of range
		"*/0 * * * *",   // zero step
		"10-5 * * * *",  // inverted range
		"a * * * *",     // not a number
	}
	for _, spec := range bad {
		if _, err := ParseCron(spec); err == nil {
			t.Errorf("ParseCron(%q) should fail", spec)
		}
	}
}

func TestCronNext(t *testing.T) {
	expr, err := ParseCron("0 9 * * *")
	if err != nil {
		t.Fatalf("ParseCron() error: %v", err)
	}

	from := time.Date(2026, 3, 2, 10, 15, 0, 0, time.UTC)
	next := expr.Next(from)
	want := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next() = %v, want %v", next, want)
	}

	// Strictly after: asking from exactly 09:00 yields the next day.
	atNine := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if got := expr.Next(atNine); !got.Equal(want) {
		t.Errorf("Next() from fire time = %v, want %v", got, want)
	}
}

func TestCronNext_RespectsLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	expr, err := ParseCron("0 9 * * *")
	if err != nil {
		t.Fatalf("ParseCron() error: %v", err)
	}

	from := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) // 07:00 in New York
	next := expr.Next(from.In(loc))
	if next.Hour() != 9 {
		t.Errorf("expected 09:00 local, got %v", next)
	}
	if got := next.UTC().Hour(); got != 14 {
		t.Errorf("expected 14:00 UTC for 09:00 EST, got %d", got)
	}
}
