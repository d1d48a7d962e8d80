package report

import (
	"math"
	"sort"
	"strconv"

	"github.com/meridian-fp/meridian-fp/internal/fiscal"
	"github.com/meridian-fp/meridian-fp/internal/forecast"
)

// ConsultantRevenueRow is one consultant's billed revenue per month.
type ConsultantRevenueRow struct {
	Consultant string    `json:"consultant"`
	Amounts    []float64 `json:"amounts"`
	Total      float64   `json:"total"`
}

// ConsultantRevenue is the service revenue table aggregated by
// consultant name rather than by project.
type ConsultantRevenue struct {
	FinancialYear int                    `json:"financial_year"`
	Columns       []string               `json:"columns"`
	Rows          []ConsultantRevenueRow `json:"rows"`
}

// BuildConsultantRevenue aggregates time-and-materials revenue by the
// consultant who delivered it, walking roster entries directly: the
// per-project cells do not retain who earned each day rate.
func BuildConsultantRevenue(data *forecast.BaseData) *ConsultantRevenue {
	cr := &ConsultantRevenue{FinancialYear: data.FinancialYear, Columns: make([]string, len(data.Months))}
	for i, m := range data.Months {
		cr.Columns[i] = m.Label
	}
	byName := make(map[string][]float64)
	for _, e := range data.RosterEntries {
		if !data.InScopeProject(e.ProjectID) {
			continue
		}
		p, ok := data.ProjectByID(e.ProjectID)
		if !ok || p.Type != forecast.ProjectTimeMaterials {
			continue
		}
		pa, ok := data.Assignment(e.ConsultantID, e.ProjectID)
		if !ok || pa.DayRate == 0 {
			continue
		}
		c, ok := data.ConsultantByID(e.ConsultantID)
		if !ok {
			continue
		}
		ft := fiscal.FinancialTimeFromDate(e.Date, data.Offset)
		if ft.Year != data.FinancialYear {
			continue
		}
		amounts, seen := byName[c.Name]
		if !seen {
			amounts = make([]float64, len(data.Months))
			byName[c.Name] = amounts
		}
		amounts[ft.Month-1] += pa.DayRate
	}
	for name, amounts := range byName {
		row := ConsultantRevenueRow{Consultant: name, Amounts: amounts}
		for _, a := range amounts {
			row.Total += a
		}
		row.Total = round2(row.Total)
		cr.Rows = append(cr.Rows, row)
	}
	sort.Slice(cr.Rows, func(i, j int) bool { return cr.Rows[i].Consultant < cr.Rows[j].Consultant })
	return cr
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func parseID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
