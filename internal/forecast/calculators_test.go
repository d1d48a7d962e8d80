package forecast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-fp/meridian-fp/internal/fiscal"
)

func loadSydney(t *testing.T, store *fakeStore) *BaseData {
	t.Helper()
	data, err := NewLoader(store, -6).LoadProfitCentre(context.Background(), 1, 2024)
	require.NoError(t, err)
	return data
}

func TestCalcPermanentSalariesFullYear(t *testing.T) {
	data := loadSydney(t, fixtureStore())
	cells := CalcPermanentSalaries(data)

	// 120000 a year accrues 10000 a month plus 600 payroll tax.
	for fm := 1; fm <= 12; fm++ {
		salary := cells[CellKey{Element: ElementKeySalary, Year: 2024, Month: fm}]
		require.NotNil(t, salary, "no salary cell for month %d", fm)
		assert.InDelta(t, 10000, salary.Amounts["100"], 0.001)
		tax := cells[CellKey{Element: ElementKeyPayrollTax, Year: 2024, Month: fm}]
		require.NotNil(t, tax, "no tax cell for month %d", fm)
		assert.InDelta(t, 600, tax.Amounts["100"], 0.001)
		// The contractor never accrues salary.
		assert.NotContains(t, salary.Amounts, "101")
	}
}

func TestCalcPermanentSalariesProratesByEmploymentDays(t *testing.T) {
	// Starting on the 16th of a 30 day month leaves 15 employed days,
	// exactly half the monthly salary. June 2025 is financial month 12
	// of 2024.
	data := &BaseData{
		FinancialYear: 2024,
		Offset:        -6,
		Months:        fiscal.FinancialYearMonths(2024, -6),
		Permanent: []Consultant{{
			ID: 1, Type: ConsultantPermanent, AnnualSalary: 120000,
			StartDate: date(2025, time.June, 16),
		}},
	}
	cells := CalcPermanentSalaries(data)

	salary := cells[CellKey{Element: ElementKeySalary, Year: 2024, Month: 12}]
	require.NotNil(t, salary)
	assert.InDelta(t, 5000, salary.Value, 0.001)
	tax := cells[CellKey{Element: ElementKeyPayrollTax, Year: 2024, Month: 12}]
	require.NotNil(t, tax)
	assert.InDelta(t, 300, tax.Value, 0.001)

	// Months before the start date produce no cells at all.
	assert.Len(t, cells, 2)
}

func TestCalcPermanentSalariesEndDateCutsOff(t *testing.T) {
	end := date(2024, time.September, 30)
	data := &BaseData{
		FinancialYear: 2024,
		Offset:        -6,
		Months:        fiscal.FinancialYearMonths(2024, -6),
		Permanent: []Consultant{{
			ID: 1, Type: ConsultantPermanent, AnnualSalary: 60000,
			StartDate: date(2020, time.January, 1), EndDate: &end,
		}},
	}
	cells := CalcPermanentSalaries(data)

	// July, August, September only.
	assert.NotNil(t, cells[CellKey{Element: ElementKeySalary, Year: 2024, Month: 3}])
	assert.Nil(t, cells[CellKey{Element: ElementKeySalary, Year: 2024, Month: 4}])
}

func TestCalcBonusProvisions(t *testing.T) {
	data := loadSydney(t, fixtureStore())
	cells := CalcBonusProvisions(data)

	for fm := 1; fm <= 12; fm++ {
		bonus := cells[CellKey{Element: ElementKeyBonus, Year: 2024, Month: fm}]
		require.NotNil(t, bonus, "no bonus cell for month %d", fm)
		assert.InDelta(t, 1000, bonus.Amounts["100"], 0.001)
	}
	assert.Len(t, cells, 12)
}

func TestCalcContractorWagesBillableGating(t *testing.T) {
	data := loadSydney(t, fixtureStore())
	cells := CalcContractorWages(data)

	// 20 billable March days at the 700 cost rate. The 21st entry is
	// NA and accrues nothing.
	wages := cells[CellKey{Element: ElementKeyContractorWages, Year: 2024, Month: 9}]
	require.NotNil(t, wages)
	assert.InDelta(t, 14000, wages.Amounts["101"], 0.001)

	tax := cells[CellKey{Element: ElementKeyPayrollTax, Year: 2024, Month: 9}]
	require.NotNil(t, tax)
	assert.InDelta(t, 840, tax.Amounts["101"], 0.001)

	assert.Len(t, cells, 2)
}

func TestCalcContractorWagesSkipsUntaxedContractor(t *testing.T) {
	store := fixtureStore()
	for i := range store.consultants {
		if store.consultants[i].ID == 101 {
			store.consultants[i].IncursPayrollTax = false
		}
	}
	data := loadSydney(t, store)
	cells := CalcContractorWages(data)

	require.NotNil(t, cells[CellKey{Element: ElementKeyContractorWages, Year: 2024, Month: 9}])
	assert.Nil(t, cells[CellKey{Element: ElementKeyPayrollTax, Year: 2024, Month: 9}])
}

func TestCalcServiceRevenueUsesAssignmentRate(t *testing.T) {
	data := loadSydney(t, fixtureStore())
	cells := CalcServiceRevenue(data)

	// All 21 March bookings bill the 900 assignment day rate, keyed by
	// project. Probability does not gate revenue.
	revenue := cells[CellKey{Element: ElementKeyServiceRevenue, Year: 2024, Month: 9}]
	require.NotNil(t, revenue)
	assert.InDelta(t, 21*900, revenue.Amounts["200"], 0.001)

	// Comet belongs to Melbourne; its bookings yield no Sydney revenue.
	for key := range cells {
		cell := cells[key]
		assert.NotContains(t, cell.Amounts, "202")
	}
}

func TestCalcFixedPriceRevenueSkipsCostRows(t *testing.T) {
	data := loadSydney(t, fixtureStore())
	cells := CalcFixedPriceRevenue(data)

	fixed := cells[CellKey{Element: ElementKeyFixedRevenue, Year: 2024, Month: 2}]
	require.NotNil(t, fixed)
	assert.InDelta(t, 20000, fixed.Amounts["201"], 0.001)
	// The 4000 cost row for the same month contributes nothing.
	assert.Len(t, cells, 1)
}

func TestCalcInternalRevenueChargePrefersAssignmentOverride(t *testing.T) {
	store := fixtureStore()
	override := 550.0
	for i := range store.byConsultant {
		if store.byConsultant[i].ConsultantID == 100 && store.byConsultant[i].ProjectID == 202 {
			store.byConsultant[i].InternalRate = &override
		}
	}
	data := loadSydney(t, store)
	cells := CalcInternalRevenueCharge(data)

	// Two August days at the 550 override, negative on the consultant's
	// own centre.
	rev := cells[CellKey{Element: ElementKeyInternalRevenue, Year: 2024, Month: 2}]
	require.NotNil(t, rev)
	assert.InDelta(t, -1100, rev.Amounts["100"], 0.001)
}

func TestCalcPeopleCostRecovery(t *testing.T) {
	data := loadSydney(t, fixtureStore())
	cells := CalcPeopleCostRecovery(data)

	// 21 Atlas bookings at Bob's 600 internal rate, keyed by project.
	// The leave project and the foreign Comet bookings accrue nothing.
	recovery := cells[CellKey{Element: ElementKeyCostRecovery, Year: 2024, Month: 9}]
	require.NotNil(t, recovery)
	assert.InDelta(t, 21*600, recovery.Amounts["200"], 0.001)
	assert.Len(t, cells, 1)
}

func TestCalcOverheadsKeyedByElement(t *testing.T) {
	data := loadSydney(t, fixtureStore())
	cells := CalcOverheads(data)

	rent := cells[CellKey{Element: "RENT", Year: 2024, Month: 1}]
	require.NotNil(t, rent)
	assert.InDelta(t, 5000, rent.Amounts["manual"], 0.001)
	assert.Len(t, cells, 1)
}
