// Package fiscal converts between the financial calendar and the
// Gregorian calendar. The financial calendar is shifted from the
// Gregorian one by a fixed month offset; with the default offset of -6
// financial month 1 falls on calendar July, so FY2024 spans July 2024
// through June 2025.
package fiscal

import "time"

// DefaultOffset is the month shift applied when none is configured.
const DefaultOffset = -6

// FinancialTime identifies one month of a financial year.
type FinancialTime struct {
	Year  int
	Month int
}

// Month describes a single report column.
type Month struct {
	Label    string
	FirstDay time.Time
}

// MonthLabelLayout is the time layout used for report column labels.
const MonthLabelLayout = "Jan 2006"

// MonthFinancialToCalendar maps a financial month (1-12) to its calendar
// month. Inputs are always within one cycle of the valid range, so a
// single wrap correction suffices.
func MonthFinancialToCalendar(financialMonth, offset int) int {
	m := financialMonth + offset
	if m < 1 {
		m += 12
	} else if m > 12 {
		m -= 12
	}
	return m
}

// MonthCalendarToFinancial is the inverse of MonthFinancialToCalendar.
func MonthCalendarToFinancial(calendarMonth, offset int) int {
	m := calendarMonth - offset
	if m < 1 {
		m += 12
	} else if m > 12 {
		m -= 12
	}
	return m
}

// FinancialTimeFromDate returns the financial year and month containing
// the given date. The date is normalised to the first of its month
// before shifting so day-of-month overflow cannot skew the result.
func FinancialTimeFromDate(date time.Time, offset int) FinancialTime {
	d := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, time.UTC)
	d = d.AddDate(0, offset, 0)
	return FinancialTime{Year: d.Year(), Month: int(d.Month())}
}

// FinancialToDate returns the first calendar day of a financial month.
func FinancialToDate(ft FinancialTime, offset int) time.Time {
	d := time.Date(ft.Year, time.Month(ft.Month), 1, 0, 0, 0, 0, time.UTC)
	return d.AddDate(0, -offset, 0)
}

// FinancialToCalendar returns the calendar year and month equivalent to
// a financial year and month.
func FinancialToCalendar(ft FinancialTime, offset int) (year, month int) {
	d := FinancialToDate(ft, offset)
	return d.Year(), int(d.Month())
}

// CalendarToFinancial returns the financial period containing a
// calendar year and month.
func CalendarToFinancial(year, month, offset int) FinancialTime {
	return FinancialTimeFromDate(time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC), offset)
}

// MonthsBetween returns one descriptor per calendar month from the
// month of start through the month of end, inclusive.
func MonthsBetween(start, end time.Time) []Month {
	first := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)
	var months []Month
	for d := first; !d.After(last); d = d.AddDate(0, 1, 0) {
		months = append(months, Month{Label: d.Format(MonthLabelLayout), FirstDay: d})
	}
	return months
}

// FinancialYearMonths returns the twelve months of a financial year in
// financial-month order.
func FinancialYearMonths(financialYear, offset int) []Month {
	start := FinancialToDate(FinancialTime{Year: financialYear, Month: 1}, offset)
	return MonthsBetween(start, start.AddDate(0, 11, 0))
}

// FinancialYearSpan returns the first and last calendar day covered by
// a financial year. The end date is inclusive.
func FinancialYearSpan(financialYear, offset int) (start, end time.Time) {
	start = FinancialToDate(FinancialTime{Year: financialYear, Month: 1}, offset)
	end = start.AddDate(1, 0, -1)
	return start, end
}
