package forecast

import (
	"fmt"
	"math"
	"sort"

	"github.com/meridian-fp/meridian-fp/internal/fiscal"
)

// CellKey addresses one cell: a forecast element in one financial month.
type CellKey struct {
	Element string
	Year    int
	Month   int
}

// EntryString renders the key in the persisted-entry format used when
// writing forecast entry rows: "financialYear.financialMonth.elementID".
func (k CellKey) EntryString(elementID int64) string {
	return fmt.Sprintf("%d.%d.%d", k.Year, k.Month, elementID)
}

// ReportString renders the key in the in-memory report format:
// "elementKey-monthLabel" with the label formatted as "Jan 2006".
func (k CellKey) ReportString(offset int) string {
	label := fiscal.FinancialToDate(fiscal.FinancialTime{Year: k.Year, Month: k.Month}, offset).Format(fiscal.MonthLabelLayout)
	return fmt.Sprintf("%s-%s", k.Element, label)
}

// Cell accumulates one running total plus per-entity partial amounts.
// Value always equals the sum of Amounts.
type Cell struct {
	Value   float64
	Amounts map[string]float64
}

// Consistent reports whether the running total matches the sum of the
// per-entity amounts, within floating point tolerance.
func (c *Cell) Consistent() bool {
	var sum float64
	for _, v := range c.Amounts {
		sum += v
	}
	return math.Abs(sum-c.Value) < 1e-6
}

// CellMap is the sparse output table of a calculation run. Cells are
// rebuilt from scratch each run, never patched; there is no removal.
type CellMap map[CellKey]*Cell

// Ensure lazily initialises the cell for key and returns it.
func (m CellMap) Ensure(key CellKey) *Cell {
	cell, ok := m[key]
	if !ok {
		cell = &Cell{Amounts: make(map[string]float64)}
		m[key] = cell
	}
	return cell
}

// Add accrues amount against one entity in the cell, keeping the
// running total in step.
func (m CellMap) Add(key CellKey, entityID string, amount float64) {
	cell := m.Ensure(key)
	cell.Amounts[entityID] += amount
	cell.Value += amount
}

// Merge folds every cell of other into m, entity by entity, so the
// sum invariant holds on the merged cells.
func (m CellMap) Merge(other CellMap) {
	for key, cell := range other {
		for entityID, amount := range cell.Amounts {
			m.Add(key, entityID, amount)
		}
	}
}

// Keys returns the cell keys sorted by year, month and element, giving
// deterministic iteration for persistence and tests.
func (m CellMap) Keys() []CellKey {
	keys := make([]CellKey, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Year != keys[j].Year {
			return keys[i].Year < keys[j].Year
		}
		if keys[i].Month != keys[j].Month {
			return keys[i].Month < keys[j].Month
		}
		return keys[i].Element < keys[j].Element
	})
	return keys
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
