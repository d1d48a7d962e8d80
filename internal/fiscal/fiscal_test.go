package fiscal

import (
	"testing"
	"time"
)

func TestMonthFinancialToCalendar(t *testing.T) {
	cases := []struct {
		financial int
		offset    int
		calendar  int
	}{
		{1, -6, 7},
		{6, -6, 12},
		{7, -6, 1},
		{12, -6, 6},
		{1, 0, 1},
		{12, 3, 3},
	}
	for _, c := range cases {
		if got := MonthFinancialToCalendar(c.financial, c.offset); got != c.calendar {
			t.Errorf("MonthFinancialToCalendar(%d, %d) = %d, want %d", c.financial, c.offset, got, c.calendar)
		}
	}
}

func TestMonthRoundTrip(t *testing.T) {
	for offset := -11; offset <= 11; offset++ {
		for fm := 1; fm <= 12; fm++ {
			cm := MonthFinancialToCalendar(fm, offset)
			if cm < 1 || cm > 12 {
				t.Fatalf("offset %d: calendar month %d out of range", offset, cm)
			}
			if got := MonthCalendarToFinancial(cm, offset); got != fm {
				t.Fatalf("offset %d: round trip of financial month %d gave %d", offset, fm, got)
			}
		}
	}
}

func TestFinancialCalendarRoundTrip(t *testing.T) {
	for fy := 2020; fy <= 2026; fy++ {
		for fm := 1; fm <= 12; fm++ {
			ft := FinancialTime{Year: fy, Month: fm}
			y, m := FinancialToCalendar(ft, DefaultOffset)
			if got := CalendarToFinancial(y, m, DefaultOffset); got != ft {
				t.Fatalf("round trip of %+v gave %+v via calendar %d-%d", ft, got, y, m)
			}
		}
	}
}

func TestFinancialTimeFromDate(t *testing.T) {
	cases := []struct {
		date time.Time
		want FinancialTime
	}{
		{time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC), FinancialTime{2024, 1}},
		{time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC), FinancialTime{2024, 6}},
		{time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), FinancialTime{2024, 7}},
		{time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC), FinancialTime{2024, 12}},
		// End-of-month dates must not overflow into the next month.
		{time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC), FinancialTime{2023, 9}},
	}
	for _, c := range cases {
		if got := FinancialTimeFromDate(c.date, DefaultOffset); got != c.want {
			t.Errorf("FinancialTimeFromDate(%s) = %+v, want %+v", c.date.Format("2006-01-02"), got, c.want)
		}
	}
}

func TestMonthsBetween(t *testing.T) {
	months := MonthsBetween(
		time.Date(2024, time.November, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2025, time.February, 3, 0, 0, 0, 0, time.UTC),
	)
	if len(months) != 4 {
		t.Fatalf("expected 4 months, got %d", len(months))
	}
	wantLabels := []string{"Nov 2024", "Dec 2024", "Jan 2025", "Feb 2025"}
	for i, m := range months {
		if m.Label != wantLabels[i] {
			t.Errorf("month %d label = %q, want %q", i, m.Label, wantLabels[i])
		}
		if m.FirstDay.Day() != 1 {
			t.Errorf("month %d first day = %s", i, m.FirstDay)
		}
	}
}

func TestFinancialYearSpan(t *testing.T) {
	start, end := FinancialYearSpan(2024, DefaultOffset)
	if !start.Equal(time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %s", start)
	}
	if !end.Equal(time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("end = %s", end)
	}
	if months := FinancialYearMonths(2024, DefaultOffset); len(months) != 12 || months[0].Label != "Jul 2024" || months[11].Label != "Jun 2025" {
		t.Errorf("unexpected financial year months: %v", months)
	}
}
