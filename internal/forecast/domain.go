// Package forecast derives monthly revenue, cost, tax and margin
// figures from consultant roster bookings, project assignments and
// manually entered forecast line items, per profit centre and financial
// year.
package forecast

import (
	"errors"
	"fmt"
	"time"
)

// ConsultantType classifies how a consultant is engaged.
type ConsultantType int

const (
	// ConsultantPermanent is a salaried employee.
	ConsultantPermanent ConsultantType = 1
	// ConsultantContractor is paid a daily rate per billable booking.
	ConsultantContractor ConsultantType = 2
	// ConsultantCasual is engaged ad hoc and carries no forecast cost.
	ConsultantCasual ConsultantType = 3
)

// ProjectType classifies how a project is billed.
type ProjectType int

const (
	// ProjectInternal is not billed externally.
	ProjectInternal ProjectType = 1
	// ProjectTimeMaterials is billed per rostered day.
	ProjectTimeMaterials ProjectType = 2
	// ProjectFixedPrice is billed per manually forecast amount.
	ProjectFixedPrice ProjectType = 3

	// Types 4-7 are leave bookings; they never carry revenue or wages.
	ProjectAnnualLeave   ProjectType = 4
	ProjectSickLeave     ProjectType = 5
	ProjectPublicHoliday ProjectType = 6
	ProjectOtherLeave    ProjectType = 7
)

// ElementType assigns a forecast element to a P&L section.
type ElementType int

const (
	// ElementCost groups salary, wages and tax elements.
	ElementCost ElementType = 1
	// ElementRevenue groups billing and internal revenue elements.
	ElementRevenue ElementType = 2
	// ElementOverhead groups manually entered overhead elements.
	ElementOverhead ElementType = 3
)

// ForecastType classifies a manual project forecast line.
type ForecastType int

const (
	// ForecastCost is a planned project cost.
	ForecastCost ForecastType = 1
	// ForecastRevenue is a planned project revenue.
	ForecastRevenue ForecastType = 2
)

// Well-known forecast element keys. Calculators locate their target
// element by key; the numeric ids come from the element table.
const (
	ElementKeySalary          = "SAL"
	ElementKeyBonus           = "BON"
	ElementKeyPayrollTax      = "PTAX"
	ElementKeyContractorWages = "CWAGES"
	ElementKeyServiceRevenue  = "TMREV"
	ElementKeyFixedRevenue    = "FIXREV"
	ElementKeyInternalCharge  = "INTCH"
	ElementKeyInternalRevenue = "INTREV"
	ElementKeyCostRecovery    = "PCREC"
)

// PayrollTaxRate is applied to salaries and to contractor wages for
// consultants flagged as incurring payroll tax.
const PayrollTaxRate = 0.06

// billableProbabilities are the roster probability tiers that count as
// billable for contractor wages.
var billableProbabilities = map[string]struct{}{
	"50%":  {},
	"90%":  {},
	"100%": {},
}

// BillableProbability reports whether a roster probability tier incurs
// contractor wages.
func BillableProbability(name string) bool {
	_, ok := billableProbabilities[name]
	return ok
}

// ProfitCentre is a revenue-bearing organisational unit.
type ProfitCentre struct {
	ID        int64
	CompanyID int64
	Name      string
}

// CostCenter groups consultants under a profit centre.
type CostCenter struct {
	ID             int64
	ProfitCentreID int64
	Name           string
}

// Consultant is master data describing one person; read-only here.
type Consultant struct {
	ID               int64
	Name             string
	Type             ConsultantType
	AnnualSalary     float64
	BonusProvision   float64
	DailyRate        float64
	InternalRate     float64
	IncursPayrollTax bool
	StartDate        time.Time
	EndDate          *time.Time
	CostCenterID     int64
}

// EmployedDuring reports whether the consultant's employment interval
// overlaps the inclusive day range.
func (c Consultant) EmployedDuring(start, end time.Time) bool {
	if c.StartDate.After(end) {
		return false
	}
	if c.EndDate != nil && c.EndDate.Before(start) {
		return false
	}
	return true
}

// Project belongs to a profit centre and defines how bookings bill.
type Project struct {
	ID             int64
	Name           string
	Type           ProjectType
	ProfitCentreID int64
}

// Billable reports whether the project type is a real engagement rather
// than a leave booking.
func (p Project) Billable() bool {
	return p.Type == ProjectInternal || p.Type == ProjectTimeMaterials || p.Type == ProjectFixedPrice
}

// ProjectAssignment links a consultant to a project with its rates.
type ProjectAssignment struct {
	ConsultantID   int64
	ProjectID      int64
	DayRate        float64
	ProjectExpense float64
	InternalRate   *float64
}

// AssignmentKey builds the composite lookup key for an assignment.
func AssignmentKey(consultantID, projectID int64) string {
	return fmt.Sprintf("%d.%d", consultantID, projectID)
}

// RosterEntry books one consultant onto one project for one calendar day.
type RosterEntry struct {
	ID           int64
	ConsultantID int64
	ProjectID    int64
	Date         time.Time
	Probability  string
}

// ForecastElement defines a named forecast line item.
type ForecastElement struct {
	ID   int64
	Key  string
	Name string
	Type ElementType
}

// ForecastEntry is one persisted amount for a financial period, element
// and scope. Calculators own the computed elements and rebuild their
// rows from scratch on every run; manually entered rows (overheads) are
// inputs only.
type ForecastEntry struct {
	ID             int64
	FinancialYear  int
	FinancialMonth int
	ElementID      int64
	ProfitCentreID int64
	CostCenterID   *int64
	Amount         float64
}

// ProjectForecastEntry is a manually entered per-project monthly amount
// used for fixed-price planning.
type ProjectForecastEntry struct {
	ID             int64
	ProjectID      int64
	FinancialYear  int
	FinancialMonth int
	Type           ForecastType
	Amount         float64
}

// ErrConcurrentRecalculation is returned when another recalculation
// already holds the lock for the same profit centre and year.
var ErrConcurrentRecalculation = errors.New("forecast: recalculation already in progress for this scope")

// ErrElementNotFound is returned when a calculator's target element is
// missing from the element table.
var ErrElementNotFound = errors.New("forecast: element not found")

// MissingAssignmentError reports a roster entry whose consultant and
// project pair has no project assignment. The calculation for the
// affected scope fails; other scopes in a company run proceed.
type MissingAssignmentError struct {
	ConsultantID int64
	ProjectID    int64
	Date         time.Time
}

func (e *MissingAssignmentError) Error() string {
	return fmt.Sprintf("forecast: no assignment for consultant %d on project %d (roster entry %s)",
		e.ConsultantID, e.ProjectID, e.Date.Format("2006-01-02"))
}
