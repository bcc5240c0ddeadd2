package period

import "time"

// Period is one grading quarter of the school year. Start and End are both
// inclusive; End sits at 23:59:59 of the closing calendar day.
type Period struct {
	Label string
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the period, boundaries included.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

// quarter bounds relative to the school-year start year. Month/day pairs;
// yearOffset is 0 for the starting calendar year, 1 for the following one.
type bound struct {
	yearOffset int
	month      time.Month
	day        int
}

var quarters = []struct {
	label      string
	start, end bound
}{
	{"Q1", bound{0, time.August, 1}, bound{0, time.October, 15}},
	{"Q2", bound{0, time.October, 16}, bound{1, time.January, 15}},
	{"Q3", bound{1, time.January, 16}, bound{1, time.March, 31}},
	{"Q4", bound{1, time.April, 1}, bound{1, time.June, 30}},
}

// Current maps a timestamp to its grading period. The school year starts
// August 1: timestamps before August belong to the year that started the
// previous calendar year. A timestamp covered by none of the four quarters
// (July) falls back to Q4 so callers never get a zero period.
func Current(t time.Time) Period {
	year := t.Year()
	if t.Month() < time.August {
		year--
	}

	loc := t.Location()
	var last Period
	for _, q := range quarters {
		p := Period{
			Label: q.label,
			Start: time.Date(year+q.start.yearOffset, q.start.month, q.start.day, 0, 0, 0, 0, loc),
			End:   time.Date(year+q.end.yearOffset, q.end.month, q.end.day, 23, 59, 59, 0, loc),
		}
		if p.Contains(t) {
			return p
		}
		last = p
	}
	return last
}
