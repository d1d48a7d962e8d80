package forecast

import (
	"testing"
)

func TestCellAddKeepsSumInvariant(t *testing.T) {
	cells := make(CellMap)
	key := CellKey{Element: ElementKeySalary, Year: 2024, Month: 3}
	cells.Add(key, "100", 10000)
	cells.Add(key, "101", 8000.25)
	cells.Add(key, "100", 500)

	cell := cells[key]
	if !cell.Consistent() {
		t.Fatalf("cell inconsistent: value %v amounts %v", cell.Value, cell.Amounts)
	}
	if got, want := cell.Amounts["100"], 10500.0; got != want {
		t.Fatalf("entity 100 amount = %v, want %v", got, want)
	}
	if got, want := cell.Value, 18500.25; got != want {
		t.Fatalf("cell value = %v, want %v", got, want)
	}
}

func TestCellMapMergeFoldsPerEntity(t *testing.T) {
	key := CellKey{Element: ElementKeyPayrollTax, Year: 2024, Month: 9}
	a := make(CellMap)
	a.Add(key, "100", 600)
	b := make(CellMap)
	b.Add(key, "101", 840)
	b.Add(key, "100", 60)
	b.Add(CellKey{Element: ElementKeyBonus, Year: 2024, Month: 9}, "100", 1000)

	a.Merge(b)

	cell := a[key]
	if !cell.Consistent() {
		t.Fatalf("merged cell inconsistent: value %v amounts %v", cell.Value, cell.Amounts)
	}
	if got, want := cell.Value, 1500.0; got != want {
		t.Fatalf("merged value = %v, want %v", got, want)
	}
	if got, want := cell.Amounts["100"], 660.0; got != want {
		t.Fatalf("merged entity 100 = %v, want %v", got, want)
	}
	if len(a) != 2 {
		t.Fatalf("merged map has %d cells, want 2", len(a))
	}
}

func TestCellKeyEntryString(t *testing.T) {
	key := CellKey{Element: ElementKeySalary, Year: 2024, Month: 7}
	if got, want := key.EntryString(3), "2024.7.3"; got != want {
		t.Fatalf("EntryString = %q, want %q", got, want)
	}
}

func TestCellKeyReportString(t *testing.T) {
	// Financial month 1 of 2024 at the default offset is July 2024;
	// month 9 is March 2025.
	cases := []struct {
		key  CellKey
		want string
	}{
		{CellKey{Element: ElementKeySalary, Year: 2024, Month: 1}, "SAL-Jul 2024"},
		{CellKey{Element: ElementKeyContractorWages, Year: 2024, Month: 9}, "CWAGES-Mar 2025"},
		{CellKey{Element: ElementKeyServiceRevenue, Year: 2024, Month: 12}, "TMREV-Jun 2025"},
	}
	for _, tc := range cases {
		if got := tc.key.ReportString(-6); got != tc.want {
			t.Errorf("ReportString(%v) = %q, want %q", tc.key, got, tc.want)
		}
	}
}

func TestCellMapKeysSorted(t *testing.T) {
	cells := make(CellMap)
	cells.Add(CellKey{Element: ElementKeySalary, Year: 2025, Month: 1}, "1", 1)
	cells.Add(CellKey{Element: ElementKeyBonus, Year: 2024, Month: 2}, "1", 1)
	cells.Add(CellKey{Element: ElementKeySalary, Year: 2024, Month: 2}, "1", 1)
	cells.Add(CellKey{Element: ElementKeySalary, Year: 2024, Month: 1}, "1", 1)

	keys := cells.Keys()
	want := []CellKey{
		{Element: ElementKeySalary, Year: 2024, Month: 1},
		{Element: ElementKeyBonus, Year: 2024, Month: 2},
		{Element: ElementKeySalary, Year: 2024, Month: 2},
		{Element: ElementKeySalary, Year: 2025, Month: 1},
	}
	for i, key := range keys {
		if key != want[i] {
			t.Fatalf("keys[%d] = %v, want %v", i, key, want[i])
		}
	}
}
