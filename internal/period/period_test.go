package period

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d, hh, mm, ss int) time.Time {
	return time.Date(y, m, d, hh, mm, ss, 0, time.UTC)
}

func TestCurrentQuarters(t *testing.T) {
	cases := map[time.Time]string{
		date(2025, time.September, 10, 9, 0, 0): "Q1",
		date(2025, time.October, 15, 23, 59, 59): "Q1",
		date(2025, time.October, 16, 0, 0, 0):    "Q2",
		date(2026, time.January, 15, 12, 0, 0):   "Q2",
		date(2026, time.January, 16, 0, 0, 0):    "Q3",
		date(2026, time.March, 31, 23, 59, 59):   "Q3",
		date(2026, time.April, 1, 0, 0, 0):       "Q4",
		date(2026, time.June, 30, 23, 59, 59):    "Q4",
	}
	for ts, expected := range cases {
		if got := Current(ts).Label; got != expected {
			t.Fatalf("timestamp %s expected %s got %s", ts, expected, got)
		}
	}
}

func TestCurrentSchoolYearRollover(t *testing.T) {
	// February belongs to the school year that started the previous August.
	p := Current(date(2026, time.February, 1, 8, 0, 0))
	if p.Label != "Q3" {
		t.Fatalf("expected Q3, got %s", p.Label)
	}
	if p.Start.Year() != 2026 || p.Start.Month() != time.January || p.Start.Day() != 16 {
		t.Fatalf("unexpected Q3 start %s", p.Start)
	}

	// September starts a fresh school year.
	p = Current(date(2026, time.September, 1, 8, 0, 0))
	if p.Start.Year() != 2026 || p.Start.Month() != time.August {
		t.Fatalf("unexpected Q1 start %s", p.Start)
	}
}

func TestCurrentUncoveredFallsBackToQ4(t *testing.T) {
	// July sits between school years; the defensive default is Q4.
	p := Current(date(2026, time.July, 4, 12, 0, 0))
	if p.Label != "Q4" {
		t.Fatalf("expected fallback Q4, got %s", p.Label)
	}
	if p.End.Month() != time.June || p.End.Day() != 30 {
		t.Fatalf("unexpected fallback end %s", p.End)
	}
}

func TestBoundaryInclusive(t *testing.T) {
	end := date(2025, time.October, 15, 23, 59, 59)
	if got := Current(end).Label; got != "Q1" {
		t.Fatalf("end instant should count toward Q1, got %s", got)
	}
	if got := Current(end.Add(time.Second)).Label; got != "Q2" {
		t.Fatalf("one second past the boundary should be Q2, got %s", got)
	}
}

func TestContains(t *testing.T) {
	p := Current(date(2025, time.September, 1, 0, 0, 0))
	if !p.Contains(p.Start) || !p.Contains(p.End) {
		t.Fatalf("period must include its own bounds")
	}
	if p.Contains(p.End.Add(time.Second)) {
		t.Fatalf("period must exclude instants past its end")
	}
}
