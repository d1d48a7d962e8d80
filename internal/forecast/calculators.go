package forecast

import (
	"strconv"
	"time"

	"github.com/meridian-fp/meridian-fp/internal/fiscal"
)

// Calculator computes one forecast element family into a fresh cell
// map. Calculators are pure over the loaded snapshot; the orchestrator
// merges their outputs after all have completed.
type Calculator func(data *BaseData) CellMap

// Calculators returns the set applicable to a profit-centre scope, in a
// stable order.
func Calculators() []Calculator {
	return []Calculator{
		CalcPermanentSalaries,
		CalcBonusProvisions,
		CalcContractorWages,
		CalcServiceRevenue,
		CalcFixedPriceRevenue,
		CalcInternalRevenueCharge,
		CalcPeopleCostRecovery,
		CalcOverheads,
	}
}

// ComputedElementKeys are the elements whose persisted rows the engine
// owns and rebuilds on every run. Overhead elements are manual input
// and are never rewritten.
func ComputedElementKeys() []string {
	return []string{
		ElementKeySalary,
		ElementKeyBonus,
		ElementKeyPayrollTax,
		ElementKeyContractorWages,
		ElementKeyServiceRevenue,
		ElementKeyFixedRevenue,
		ElementKeyInternalCharge,
		ElementKeyInternalRevenue,
		ElementKeyCostRecovery,
	}
}

func entityID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// employedFraction counts the calendar days of the month falling within
// the consultant's employment interval, over the days in the month.
func employedFraction(c Consultant, monthStart time.Time) float64 {
	monthEnd := monthStart.AddDate(0, 1, -1)
	from := monthStart
	if c.StartDate.After(from) {
		from = c.StartDate
	}
	to := monthEnd
	if c.EndDate != nil && c.EndDate.Before(to) {
		to = *c.EndDate
	}
	if to.Before(from) {
		return 0
	}
	worked := int(to.Sub(from).Hours()/24) + 1
	return float64(worked) / float64(monthEnd.Day())
}

// CalcPermanentSalaries accrues the monthly salary of each permanent
// consultant, prorated by employment days, together with 6% payroll
// tax. Months where the prorated salary rounds to zero are skipped.
func CalcPermanentSalaries(data *BaseData) CellMap {
	cells := make(CellMap)
	for _, c := range data.Permanent {
		monthly := c.AnnualSalary / 12
		for i, m := range data.Months {
			fm := i + 1
			salary := round2(monthly * employedFraction(c, m.FirstDay))
			if salary <= 0 {
				continue
			}
			cells.Add(CellKey{Element: ElementKeySalary, Year: data.FinancialYear, Month: fm}, entityID(c.ID), salary)
			cells.Add(CellKey{Element: ElementKeyPayrollTax, Year: data.FinancialYear, Month: fm}, entityID(c.ID), round2(salary*PayrollTaxRate))
		}
	}
	return cells
}

// CalcBonusProvisions accrues one twelfth of the annual bonus provision
// for each permanent consultant, for the months their employment
// interval overlaps.
func CalcBonusProvisions(data *BaseData) CellMap {
	cells := make(CellMap)
	for _, c := range data.Permanent {
		if c.BonusProvision == 0 {
			continue
		}
		monthly := round2(c.BonusProvision / 12)
		for i, m := range data.Months {
			if !c.EmployedDuring(m.FirstDay, m.FirstDay.AddDate(0, 1, -1)) {
				continue
			}
			cells.Add(CellKey{Element: ElementKeyBonus, Year: data.FinancialYear, Month: i + 1}, entityID(c.ID), monthly)
		}
	}
	return cells
}

// CalcContractorWages accrues one full daily rate per qualifying roster
// entry: a contractor on a time-and-materials project at a billable
// probability. Payroll tax applies only to contractors flagged for it.
func CalcContractorWages(data *BaseData) CellMap {
	cells := make(CellMap)
	for _, e := range data.RosterEntries {
		if !data.InScopeConsultant(e.ConsultantID) {
			continue
		}
		c, ok := data.ConsultantByID(e.ConsultantID)
		if !ok || c.Type != ConsultantContractor {
			continue
		}
		p, ok := data.ProjectByID(e.ProjectID)
		if !ok || p.Type != ProjectTimeMaterials {
			continue
		}
		if !BillableProbability(e.Probability) {
			continue
		}
		ft := fiscal.FinancialTimeFromDate(e.Date, data.Offset)
		if ft.Year != data.FinancialYear {
			continue
		}
		cells.Add(CellKey{Element: ElementKeyContractorWages, Year: ft.Year, Month: ft.Month}, entityID(c.ID), c.DailyRate)
		if c.IncursPayrollTax {
			cells.Add(CellKey{Element: ElementKeyPayrollTax, Year: ft.Year, Month: ft.Month}, entityID(c.ID), round2(c.DailyRate*PayrollTaxRate))
		}
	}
	return cells
}

// CalcServiceRevenue accrues the assignment day rate for every roster
// entry on an in-scope time-and-materials project, keyed by project. A
// missing assignment or rate contributes zero.
func CalcServiceRevenue(data *BaseData) CellMap {
	cells := make(CellMap)
	for _, e := range data.RosterEntries {
		if !data.InScopeProject(e.ProjectID) {
			continue
		}
		p, ok := data.ProjectByID(e.ProjectID)
		if !ok || p.Type != ProjectTimeMaterials {
			continue
		}
		var rate float64
		if pa, ok := data.Assignment(e.ConsultantID, e.ProjectID); ok {
			rate = pa.DayRate
		}
		if rate == 0 {
			continue
		}
		ft := fiscal.FinancialTimeFromDate(e.Date, data.Offset)
		if ft.Year != data.FinancialYear {
			continue
		}
		cells.Add(CellKey{Element: ElementKeyServiceRevenue, Year: ft.Year, Month: ft.Month}, entityID(e.ProjectID), rate)
	}
	return cells
}

// CalcFixedPriceRevenue sums the manually entered project forecast
// revenue rows per project per month.
func CalcFixedPriceRevenue(data *BaseData) CellMap {
	cells := make(CellMap)
	for _, pe := range data.ProjectEntries {
		if pe.Type != ForecastRevenue || pe.FinancialYear != data.FinancialYear {
			continue
		}
		cells.Add(CellKey{Element: ElementKeyFixedRevenue, Year: pe.FinancialYear, Month: pe.FinancialMonth}, entityID(pe.ProjectID), pe.Amount)
	}
	return cells
}

// internalRate resolves the cross-centre rate for a booking: the
// assignment override when present, otherwise the consultant's own.
func internalRate(data *BaseData, c Consultant, projectID int64) float64 {
	if pa, ok := data.Assignment(c.ID, projectID); ok && pa.InternalRate != nil {
		return *pa.InternalRate
	}
	return c.InternalRate
}

// CalcInternalRevenueCharge records cross-profit-centre cost
// allocation. A booking of an in-scope consultant on another centre's
// project credits this centre with negative internal revenue; a booking
// of another centre's consultant on an in-scope project debits this
// centre with a positive internal charge.
func CalcInternalRevenueCharge(data *BaseData) CellMap {
	cells := make(CellMap)
	if data.Scope == nil {
		return cells
	}
	for _, e := range data.RosterEntries {
		c, ok := data.ConsultantByID(e.ConsultantID)
		if !ok {
			continue
		}
		p, ok := data.ProjectByID(e.ProjectID)
		if !ok || !p.Billable() {
			continue
		}
		consultantPC := data.ProfitCentreOfConsultant(c)
		if consultantPC == 0 || consultantPC == p.ProfitCentreID {
			continue
		}
		ft := fiscal.FinancialTimeFromDate(e.Date, data.Offset)
		if ft.Year != data.FinancialYear {
			continue
		}
		rate := internalRate(data, c, e.ProjectID)
		if consultantPC == data.Scope.ID {
			cells.Add(CellKey{Element: ElementKeyInternalRevenue, Year: ft.Year, Month: ft.Month}, entityID(c.ID), -rate)
		}
		if p.ProfitCentreID == data.Scope.ID {
			cells.Add(CellKey{Element: ElementKeyInternalCharge, Year: ft.Year, Month: ft.Month}, entityID(c.ID), rate)
		}
	}
	return cells
}

// CalcPeopleCostRecovery accrues each booked consultant's internal rate
// into the project's recovery cell, representing the cost center
// earning back the consultant's internal cost.
func CalcPeopleCostRecovery(data *BaseData) CellMap {
	cells := make(CellMap)
	for _, e := range data.RosterEntries {
		if !data.InScopeProject(e.ProjectID) {
			continue
		}
		p, ok := data.ProjectByID(e.ProjectID)
		if !ok || !p.Billable() {
			continue
		}
		c, ok := data.ConsultantByID(e.ConsultantID)
		if !ok || c.InternalRate == 0 {
			continue
		}
		ft := fiscal.FinancialTimeFromDate(e.Date, data.Offset)
		if ft.Year != data.FinancialYear {
			continue
		}
		cells.Add(CellKey{Element: ElementKeyCostRecovery, Year: ft.Year, Month: ft.Month}, entityID(e.ProjectID), c.InternalRate)
	}
	return cells
}

// CalcOverheads sums the manually entered overhead rows per element per
// month. These rows are input only; the engine never rewrites them.
func CalcOverheads(data *BaseData) CellMap {
	cells := make(CellMap)
	byID := make(map[int64]ForecastElement, len(data.Elements))
	for _, el := range data.Elements {
		byID[el.ID] = el
	}
	for _, m := range data.ManualEntries {
		el, ok := byID[m.ElementID]
		if !ok || el.Type != ElementOverhead || m.FinancialYear != data.FinancialYear {
			continue
		}
		entity := "manual"
		if m.CostCenterID != nil {
			entity = entityID(*m.CostCenterID)
		}
		cells.Add(CellKey{Element: el.Key, Year: m.FinancialYear, Month: m.FinancialMonth}, entity, m.Amount)
	}
	return cells
}
