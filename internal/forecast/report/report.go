// Package report shapes calculation output into the row and column
// view models the UI renders. It reads the cell map and base data; it
// performs no I/O of its own.
package report

import (
	"sort"

	"github.com/meridian-fp/meridian-fp/internal/fiscal"
	"github.com/meridian-fp/meridian-fp/internal/forecast"
)

// Row is one element line across the twelve months of a financial year.
type Row struct {
	ElementKey  string    `json:"element_key"`
	ElementName string    `json:"element_name"`
	Amounts     []float64 `json:"amounts"`
	Total       float64   `json:"total"`
}

// Report is the profit-centre forecast table: element rows grouped into
// P&L sections with per-month subtotals and margin lines.
type Report struct {
	ProfitCentreID int64     `json:"profit_centre_id"`
	FinancialYear  int       `json:"financial_year"`
	Columns        []string  `json:"columns"`
	RevenueRows    []Row     `json:"revenue_rows"`
	CostRows       []Row     `json:"cost_rows"`
	OverheadRows   []Row     `json:"overhead_rows"`
	TotalRevenue   []float64 `json:"total_revenue"`
	TotalCost      []float64 `json:"total_cost"`
	GrossMargin    []float64 `json:"gross_margin"`
	TotalOverheads []float64 `json:"total_overheads"`
	NetProfit      []float64 `json:"net_profit"`
}

// BuildProfitCentreReport assembles the forecast table for one profit
// centre from a calculated cell map. Elements with no cells are left
// out; section totals always carry all twelve months.
func BuildProfitCentreReport(data *forecast.BaseData, cells forecast.CellMap) *Report {
	months := len(data.Months)
	rpt := &Report{
		ProfitCentreID: data.Scope.ID,
		FinancialYear:  data.FinancialYear,
		Columns:        make([]string, months),
		TotalRevenue:   make([]float64, months),
		TotalCost:      make([]float64, months),
		GrossMargin:    make([]float64, months),
		TotalOverheads: make([]float64, months),
		NetProfit:      make([]float64, months),
	}
	for i, m := range data.Months {
		rpt.Columns[i] = m.Label
	}

	for _, el := range data.Elements {
		row := Row{ElementKey: el.Key, ElementName: el.Name, Amounts: make([]float64, months)}
		populated := false
		for fm := 1; fm <= months; fm++ {
			cell, ok := cells[forecast.CellKey{Element: el.Key, Year: data.FinancialYear, Month: fm}]
			if !ok {
				continue
			}
			populated = true
			row.Amounts[fm-1] = round2(cell.Value)
			row.Total = round2(row.Total + cell.Value)
		}
		if !populated {
			continue
		}
		switch el.Type {
		case forecast.ElementRevenue:
			rpt.RevenueRows = append(rpt.RevenueRows, row)
			accumulate(rpt.TotalRevenue, row.Amounts)
		case forecast.ElementCost:
			rpt.CostRows = append(rpt.CostRows, row)
			accumulate(rpt.TotalCost, row.Amounts)
		case forecast.ElementOverhead:
			rpt.OverheadRows = append(rpt.OverheadRows, row)
			accumulate(rpt.TotalOverheads, row.Amounts)
		}
	}

	for i := 0; i < months; i++ {
		rpt.GrossMargin[i] = round2(rpt.TotalRevenue[i] - rpt.TotalCost[i])
		rpt.NetProfit[i] = round2(rpt.GrossMargin[i] - rpt.TotalOverheads[i])
	}
	return rpt
}

// DrilldownRow is one entity's contribution to a single cell.
type DrilldownRow struct {
	EntityID string  `json:"entity_id"`
	Name     string  `json:"name"`
	Amount   float64 `json:"amount"`
}

// Drilldown lists the per-entity breakdown behind one cell.
type Drilldown struct {
	ElementKey string         `json:"element_key"`
	MonthLabel string         `json:"month_label"`
	Rows       []DrilldownRow `json:"rows"`
	Total      float64        `json:"total"`
}

// BuildDrilldown expands one cell into its entity rows, resolving
// consultant or project names from the snapshot, sorted by amount
// descending. An absent cell yields an empty drilldown, not an error.
func BuildDrilldown(data *forecast.BaseData, cells forecast.CellMap, elementKey string, financialMonth int) *Drilldown {
	key := forecast.CellKey{Element: elementKey, Year: data.FinancialYear, Month: financialMonth}
	dd := &Drilldown{
		ElementKey: elementKey,
		MonthLabel: fiscal.FinancialToDate(fiscal.FinancialTime{Year: data.FinancialYear, Month: financialMonth}, data.Offset).Format(fiscal.MonthLabelLayout),
	}
	cell, ok := cells[key]
	if !ok {
		return dd
	}
	for entity, amount := range cell.Amounts {
		dd.Rows = append(dd.Rows, DrilldownRow{EntityID: entity, Name: entityName(data, entity), Amount: round2(amount)})
	}
	sort.Slice(dd.Rows, func(i, j int) bool {
		if dd.Rows[i].Amount != dd.Rows[j].Amount {
			return dd.Rows[i].Amount > dd.Rows[j].Amount
		}
		return dd.Rows[i].EntityID < dd.Rows[j].EntityID
	})
	dd.Total = round2(cell.Value)
	return dd
}

func accumulate(dst, src []float64) {
	for i := range src {
		dst[i] = round2(dst[i] + src[i])
	}
}

func entityName(data *forecast.BaseData, entity string) string {
	id, err := parseID(entity)
	if err != nil {
		return entity
	}
	if c, ok := data.ConsultantByID(id); ok {
		return c.Name
	}
	if p, ok := data.ProjectByID(id); ok {
		return p.Name
	}
	return entity
}
