package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-fp/meridian-fp/internal/platform/db"
	"github.com/meridian-fp/meridian-fp/internal/shared"
)

// Repository is the PostgreSQL implementation of Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository on the shared pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ErrProfitCentreNotFound indicates the requested profit centre is missing.
var ErrProfitCentreNotFound = fmt.Errorf("forecast: profit centre %w", shared.ErrNotFound)

// ProfitCentre fetches one profit centre by id.
func (r *Repository) ProfitCentre(ctx context.Context, id int64) (ProfitCentre, error) {
	const query = `SELECT id, company_id, name FROM profit_centres WHERE id = $1`
	var pc ProfitCentre
	if err := r.pool.QueryRow(ctx, query, id).Scan(&pc.ID, &pc.CompanyID, &pc.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProfitCentre{}, ErrProfitCentreNotFound
		}
		return ProfitCentre{}, err
	}
	return pc, nil
}

// ProfitCentresByCompany lists the profit centres of a company.
func (r *Repository) ProfitCentresByCompany(ctx context.Context, companyID int64) ([]ProfitCentre, error) {
	const query = `SELECT id, company_id, name FROM profit_centres WHERE company_id = $1 ORDER BY name`
	rows, err := r.pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var pcs []ProfitCentre
	for rows.Next() {
		var pc ProfitCentre
		if err := rows.Scan(&pc.ID, &pc.CompanyID, &pc.Name); err != nil {
			return nil, err
		}
		pcs = append(pcs, pc)
	}
	return pcs, rows.Err()
}

// CompanyIDs lists every company owning at least one profit centre.
// The nightly recalculation fan-out walks this list.
func (r *Repository) CompanyIDs(ctx context.Context) ([]int64, error) {
	const query = `SELECT DISTINCT company_id FROM profit_centres ORDER BY company_id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CostCenters lists cost centers under the given profit centres.
func (r *Repository) CostCenters(ctx context.Context, profitCentreIDs []int64) ([]CostCenter, error) {
	const query = `SELECT id, profit_centre_id, name FROM cost_centers WHERE profit_centre_id = ANY($1)`
	return r.costCenters(ctx, query, profitCentreIDs)
}

// CostCentersByIDs fetches cost centers by id.
func (r *Repository) CostCentersByIDs(ctx context.Context, ids []int64) ([]CostCenter, error) {
	const query = `SELECT id, profit_centre_id, name FROM cost_centers WHERE id = ANY($1)`
	return r.costCenters(ctx, query, ids)
}

func (r *Repository) costCenters(ctx context.Context, query string, ids []int64) ([]CostCenter, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ccs []CostCenter
	for rows.Next() {
		var cc CostCenter
		if err := rows.Scan(&cc.ID, &cc.ProfitCentreID, &cc.Name); err != nil {
			return nil, err
		}
		ccs = append(ccs, cc)
	}
	return ccs, rows.Err()
}

const consultantColumns = `id, name, consultant_type, annual_salary, bonus_provision,
daily_rate, internal_rate, incurs_payroll_tax, start_date, end_date, cost_center_id`

// Consultants lists consultants belonging to the given cost centers.
func (r *Repository) Consultants(ctx context.Context, costCenterIDs []int64) ([]Consultant, error) {
	query := `SELECT ` + consultantColumns + ` FROM consultants WHERE cost_center_id = ANY($1) ORDER BY name`
	return r.consultants(ctx, query, costCenterIDs)
}

// ConsultantsByIDs fetches consultants by id.
func (r *Repository) ConsultantsByIDs(ctx context.Context, ids []int64) ([]Consultant, error) {
	query := `SELECT ` + consultantColumns + ` FROM consultants WHERE id = ANY($1)`
	return r.consultants(ctx, query, ids)
}

func (r *Repository) consultants(ctx context.Context, query string, ids []int64) ([]Consultant, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var consultants []Consultant
	for rows.Next() {
		var c Consultant
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &c.AnnualSalary, &c.BonusProvision,
			&c.DailyRate, &c.InternalRate, &c.IncursPayrollTax, &c.StartDate, &c.EndDate, &c.CostCenterID); err != nil {
			return nil, err
		}
		consultants = append(consultants, c)
	}
	return consultants, rows.Err()
}

// Projects lists projects owned by the given profit centres.
func (r *Repository) Projects(ctx context.Context, profitCentreIDs []int64) ([]Project, error) {
	const query = `SELECT id, name, project_type, profit_centre_id FROM projects WHERE profit_centre_id = ANY($1) ORDER BY name`
	return r.projects(ctx, query, profitCentreIDs)
}

// ProjectsByIDs fetches projects by id.
func (r *Repository) ProjectsByIDs(ctx context.Context, ids []int64) ([]Project, error) {
	const query = `SELECT id, name, project_type, profit_centre_id FROM projects WHERE id = ANY($1)`
	return r.projects(ctx, query, ids)
}

func (r *Repository) projects(ctx context.Context, query string, ids []int64) ([]Project, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var projects []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Type, &p.ProfitCentreID); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

const assignmentColumns = `consultant_id, project_id, day_rate, project_expense, internal_rate`

// AssignmentsByConsultants lists assignments held by the given consultants.
func (r *Repository) AssignmentsByConsultants(ctx context.Context, consultantIDs []int64) ([]ProjectAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM project_assignments WHERE consultant_id = ANY($1)`
	return r.assignments(ctx, query, consultantIDs)
}

// AssignmentsByProjects lists assignments on the given projects.
func (r *Repository) AssignmentsByProjects(ctx context.Context, projectIDs []int64) ([]ProjectAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM project_assignments WHERE project_id = ANY($1)`
	return r.assignments(ctx, query, projectIDs)
}

func (r *Repository) assignments(ctx context.Context, query string, ids []int64) ([]ProjectAssignment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var pas []ProjectAssignment
	for rows.Next() {
		var pa ProjectAssignment
		if err := rows.Scan(&pa.ConsultantID, &pa.ProjectID, &pa.DayRate, &pa.ProjectExpense, &pa.InternalRate); err != nil {
			return nil, err
		}
		pas = append(pas, pa)
	}
	return pas, rows.Err()
}

// Elements lists every forecast element definition.
func (r *Repository) Elements(ctx context.Context) ([]ForecastElement, error) {
	const query = `SELECT id, key, name, element_type FROM forecast_elements ORDER BY id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var elements []ForecastElement
	for rows.Next() {
		var el ForecastElement
		if err := rows.Scan(&el.ID, &el.Key, &el.Name, &el.Type); err != nil {
			return nil, err
		}
		elements = append(elements, el)
	}
	return elements, rows.Err()
}

const rosterColumns = `id, consultant_id, project_id, entry_date, probability`

// RosterEntriesByConsultants lists bookings of the given consultants
// within the inclusive date range.
func (r *Repository) RosterEntriesByConsultants(ctx context.Context, consultantIDs []int64, start, end time.Time) ([]RosterEntry, error) {
	query := `SELECT ` + rosterColumns + ` FROM roster_entries
WHERE consultant_id = ANY($1) AND entry_date BETWEEN $2 AND $3 ORDER BY entry_date`
	return r.rosterEntries(ctx, query, consultantIDs, start, end)
}

// RosterEntriesByProjects lists bookings on the given projects within
// the inclusive date range.
func (r *Repository) RosterEntriesByProjects(ctx context.Context, projectIDs []int64, start, end time.Time) ([]RosterEntry, error) {
	query := `SELECT ` + rosterColumns + ` FROM roster_entries
WHERE project_id = ANY($1) AND entry_date BETWEEN $2 AND $3 ORDER BY entry_date`
	return r.rosterEntries(ctx, query, projectIDs, start, end)
}

func (r *Repository) rosterEntries(ctx context.Context, query string, ids []int64, start, end time.Time) ([]RosterEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, query, ids, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []RosterEntry
	for rows.Next() {
		var e RosterEntry
		if err := rows.Scan(&e.ID, &e.ConsultantID, &e.ProjectID, &e.Date, &e.Probability); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ManualEntries lists the persisted forecast entries of the given
// profit centres for one financial year, overheads included.
func (r *Repository) ManualEntries(ctx context.Context, profitCentreIDs []int64, financialYear int) ([]ForecastEntry, error) {
	if len(profitCentreIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT id, financial_year, financial_month, forecast_element_id, profit_centre_id, cost_center_id, amount
FROM forecast_entries WHERE profit_centre_id = ANY($1) AND financial_year = $2`
	rows, err := r.pool.Query(ctx, query, profitCentreIDs, financialYear)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []ForecastEntry
	for rows.Next() {
		var fe ForecastEntry
		if err := rows.Scan(&fe.ID, &fe.FinancialYear, &fe.FinancialMonth, &fe.ElementID, &fe.ProfitCentreID, &fe.CostCenterID, &fe.Amount); err != nil {
			return nil, err
		}
		entries = append(entries, fe)
	}
	return entries, rows.Err()
}

// ProjectEntries lists the manually entered project forecast lines of
// the given projects for one financial year.
func (r *Repository) ProjectEntries(ctx context.Context, projectIDs []int64, financialYear int) ([]ProjectForecastEntry, error) {
	if len(projectIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT id, project_id, financial_year, financial_month, forecast_type, amount
FROM project_forecast_entries WHERE project_id = ANY($1) AND financial_year = $2`
	rows, err := r.pool.Query(ctx, query, projectIDs, financialYear)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []ProjectForecastEntry
	for rows.Next() {
		var pe ProjectForecastEntry
		if err := rows.Scan(&pe.ID, &pe.ProjectID, &pe.FinancialYear, &pe.FinancialMonth, &pe.Type, &pe.Amount); err != nil {
			return nil, err
		}
		entries = append(entries, pe)
	}
	return entries, rows.Err()
}

// ReplaceEntries rewrites the persisted rows of each element partition
// for one profit centre and year: delete the partition, recreate it
// from the new rows. The whole run commits or rolls back as one
// transaction, so readers never observe a half-replaced year.
func (r *Repository) ReplaceEntries(ctx context.Context, financialYear int, profitCentreID int64, byElement map[int64][]ForecastEntry) (int, error) {
	var written int
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for elementID, entries := range byElement {
			const del = `DELETE FROM forecast_entries
WHERE financial_year = $1 AND forecast_element_id = $2 AND profit_centre_id = $3`
			if _, err := tx.Exec(ctx, del, financialYear, elementID, profitCentreID); err != nil {
				return fmt.Errorf("delete element %d: %w", elementID, err)
			}
			if len(entries) == 0 {
				continue
			}
			src := make([][]any, len(entries))
			for i, fe := range entries {
				src[i] = []any{fe.FinancialYear, fe.FinancialMonth, fe.ElementID, fe.ProfitCentreID, fe.CostCenterID, fe.Amount}
			}
			n, err := tx.CopyFrom(ctx,
				pgx.Identifier{"forecast_entries"},
				[]string{"financial_year", "financial_month", "forecast_element_id", "profit_centre_id", "cost_center_id", "amount"},
				pgx.CopyFromRows(src))
			if err != nil {
				return fmt.Errorf("insert element %d: %w", elementID, err)
			}
			written += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}
