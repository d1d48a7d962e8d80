package forecast

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-fp/meridian-fp/internal/fiscal"
)

// Store abstracts the persistence operations the engine issues. The pgx
// implementation lives in repository.go; tests substitute an in-memory
// fake.
type Store interface {
	ProfitCentre(ctx context.Context, id int64) (ProfitCentre, error)
	ProfitCentresByCompany(ctx context.Context, companyID int64) ([]ProfitCentre, error)
	CostCenters(ctx context.Context, profitCentreIDs []int64) ([]CostCenter, error)
	CostCentersByIDs(ctx context.Context, ids []int64) ([]CostCenter, error)
	Consultants(ctx context.Context, costCenterIDs []int64) ([]Consultant, error)
	ConsultantsByIDs(ctx context.Context, ids []int64) ([]Consultant, error)
	Projects(ctx context.Context, profitCentreIDs []int64) ([]Project, error)
	ProjectsByIDs(ctx context.Context, ids []int64) ([]Project, error)
	AssignmentsByConsultants(ctx context.Context, consultantIDs []int64) ([]ProjectAssignment, error)
	AssignmentsByProjects(ctx context.Context, projectIDs []int64) ([]ProjectAssignment, error)
	Elements(ctx context.Context) ([]ForecastElement, error)
	RosterEntriesByConsultants(ctx context.Context, consultantIDs []int64, start, end time.Time) ([]RosterEntry, error)
	RosterEntriesByProjects(ctx context.Context, projectIDs []int64, start, end time.Time) ([]RosterEntry, error)
	ManualEntries(ctx context.Context, profitCentreIDs []int64, financialYear int) ([]ForecastEntry, error)
	ProjectEntries(ctx context.Context, projectIDs []int64, financialYear int) ([]ProjectForecastEntry, error)
	ReplaceEntries(ctx context.Context, financialYear int, profitCentreID int64, byElement map[int64][]ForecastEntry) (int, error)
}

// BaseData is the frozen snapshot one calculation run works from. The
// engine only reads it; source records are never mutated.
type BaseData struct {
	FinancialYear int
	Offset        int
	Months        []fiscal.Month

	// Scope is the profit centre this snapshot is calculated for. It is
	// nil on a company-wide snapshot until partitioned.
	Scope *ProfitCentre

	ProfitCentres []ProfitCentre
	Consultants   []Consultant
	Permanent     []Consultant
	Contractors   []Consultant
	Casuals       []Consultant
	Projects      []Project

	Assignments   map[string]ProjectAssignment
	Elements      []ForecastElement
	RosterEntries []RosterEntry

	ManualEntries  []ForecastEntry
	ProjectEntries []ProjectForecastEntry

	costCenters    map[int64]CostCenter
	consultantsAll map[int64]Consultant
	projectsAll    map[int64]Project
	elementsByKey  map[string]ForecastElement
	scopeConsult   map[int64]struct{}
	scopeProjects  map[int64]struct{}
}

// Element resolves a forecast element by its key.
func (d *BaseData) Element(key string) (ForecastElement, error) {
	el, ok := d.elementsByKey[key]
	if !ok {
		return ForecastElement{}, fmt.Errorf("%w: %s", ErrElementNotFound, key)
	}
	return el, nil
}

// Assignment looks up the assignment for a consultant and project pair.
func (d *BaseData) Assignment(consultantID, projectID int64) (ProjectAssignment, bool) {
	pa, ok := d.Assignments[AssignmentKey(consultantID, projectID)]
	return pa, ok
}

// ConsultantByID resolves any consultant referenced by a roster entry,
// in or out of scope.
func (d *BaseData) ConsultantByID(id int64) (Consultant, bool) {
	c, ok := d.consultantsAll[id]
	return c, ok
}

// ProjectByID resolves any project referenced by a roster entry.
func (d *BaseData) ProjectByID(id int64) (Project, bool) {
	p, ok := d.projectsAll[id]
	return p, ok
}

// ProfitCentreOfConsultant resolves the profit centre a consultant
// belongs to through their cost center, or 0 when unknown.
func (d *BaseData) ProfitCentreOfConsultant(c Consultant) int64 {
	cc, ok := d.costCenters[c.CostCenterID]
	if !ok {
		return 0
	}
	return cc.ProfitCentreID
}

// InScopeConsultant reports whether the consultant belongs to the
// snapshot's scope.
func (d *BaseData) InScopeConsultant(id int64) bool {
	_, ok := d.scopeConsult[id]
	return ok
}

// InScopeProject reports whether the project belongs to the snapshot's
// scope.
func (d *BaseData) InScopeProject(id int64) bool {
	_, ok := d.scopeProjects[id]
	return ok
}

// Loader fetches the flat record sets one calculation run needs. Pure
// I/O plus joining and indexing; no business logic.
type Loader struct {
	store  Store
	offset int
}

// NewLoader constructs a loader with the given fiscal month offset.
func NewLoader(store Store, offset int) *Loader {
	return &Loader{store: store, offset: offset}
}

// LoadProfitCentre builds the snapshot for one profit centre and
// financial year.
func (l *Loader) LoadProfitCentre(ctx context.Context, profitCentreID int64, financialYear int) (*BaseData, error) {
	pc, err := l.store.ProfitCentre(ctx, profitCentreID)
	if err != nil {
		return nil, fmt.Errorf("forecast: load profit centre %d: %w", profitCentreID, err)
	}
	data, err := l.load(ctx, []ProfitCentre{pc}, financialYear)
	if err != nil {
		return nil, err
	}
	data.Scope = &data.ProfitCentres[0]
	data.index()
	if err := data.validateAssignments(); err != nil {
		return nil, err
	}
	return data, nil
}

// LoadCompany builds one company-wide snapshot covering every profit
// centre of the company. The result is partitioned per centre before
// calculation.
func (l *Loader) LoadCompany(ctx context.Context, companyID int64, financialYear int) (*BaseData, error) {
	pcs, err := l.store.ProfitCentresByCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("forecast: load company %d: %w", companyID, err)
	}
	if len(pcs) == 0 {
		return nil, fmt.Errorf("forecast: company %d has no profit centres", companyID)
	}
	data, err := l.load(ctx, pcs, financialYear)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (l *Loader) load(ctx context.Context, pcs []ProfitCentre, financialYear int) (*BaseData, error) {
	start, end := fiscal.FinancialYearSpan(financialYear, l.offset)
	pcIDs := make([]int64, len(pcs))
	for i, pc := range pcs {
		pcIDs[i] = pc.ID
	}

	costCenters, err := l.store.CostCenters(ctx, pcIDs)
	if err != nil {
		return nil, fmt.Errorf("forecast: load cost centers: %w", err)
	}
	ccIDs := make([]int64, len(costCenters))
	for i, cc := range costCenters {
		ccIDs[i] = cc.ID
	}

	consultants, err := l.store.Consultants(ctx, ccIDs)
	if err != nil {
		return nil, fmt.Errorf("forecast: load consultants: %w", err)
	}
	projects, err := l.store.Projects(ctx, pcIDs)
	if err != nil {
		return nil, fmt.Errorf("forecast: load projects: %w", err)
	}

	consultantIDs := make([]int64, len(consultants))
	for i, c := range consultants {
		consultantIDs[i] = c.ID
	}
	projectIDs := make([]int64, len(projects))
	for i, p := range projects {
		projectIDs[i] = p.ID
	}

	// Assignments come from two queries, by consultant set and by
	// project set. Entries from the first query win on key collisions.
	byConsultant, err := l.store.AssignmentsByConsultants(ctx, consultantIDs)
	if err != nil {
		return nil, fmt.Errorf("forecast: load assignments by consultant: %w", err)
	}
	byProject, err := l.store.AssignmentsByProjects(ctx, projectIDs)
	if err != nil {
		return nil, fmt.Errorf("forecast: load assignments by project: %w", err)
	}
	assignments := make(map[string]ProjectAssignment, len(byConsultant)+len(byProject))
	for _, pa := range byConsultant {
		assignments[AssignmentKey(pa.ConsultantID, pa.ProjectID)] = pa
	}
	for _, pa := range byProject {
		key := AssignmentKey(pa.ConsultantID, pa.ProjectID)
		if _, exists := assignments[key]; !exists {
			assignments[key] = pa
		}
	}

	elements, err := l.store.Elements(ctx)
	if err != nil {
		return nil, fmt.Errorf("forecast: load elements: %w", err)
	}

	// Roster entries are the union of bookings by the scope's
	// consultants and bookings on the scope's projects, so cross-centre
	// internal charges see both sides of the event.
	entries, err := l.store.RosterEntriesByConsultants(ctx, consultantIDs, start, end)
	if err != nil {
		return nil, fmt.Errorf("forecast: load roster entries: %w", err)
	}
	entriesByProject, err := l.store.RosterEntriesByProjects(ctx, projectIDs, start, end)
	if err != nil {
		return nil, fmt.Errorf("forecast: load roster entries by project: %w", err)
	}
	seen := make(map[int64]struct{}, len(entries))
	for _, e := range entries {
		seen[e.ID] = struct{}{}
	}
	for _, e := range entriesByProject {
		if _, dup := seen[e.ID]; !dup {
			entries = append(entries, e)
			seen[e.ID] = struct{}{}
		}
	}

	manual, err := l.store.ManualEntries(ctx, pcIDs, financialYear)
	if err != nil {
		return nil, fmt.Errorf("forecast: load manual entries: %w", err)
	}
	projectEntries, err := l.store.ProjectEntries(ctx, projectIDs, financialYear)
	if err != nil {
		return nil, fmt.Errorf("forecast: load project entries: %w", err)
	}

	data := &BaseData{
		FinancialYear:  financialYear,
		Offset:         l.offset,
		Months:         fiscal.FinancialYearMonths(financialYear, l.offset),
		ProfitCentres:  pcs,
		Consultants:    consultants,
		Projects:       projects,
		Assignments:    assignments,
		Elements:       elements,
		RosterEntries:  entries,
		ManualEntries:  manual,
		ProjectEntries: projectEntries,
		costCenters:    make(map[int64]CostCenter, len(costCenters)),
		consultantsAll: make(map[int64]Consultant, len(consultants)),
		projectsAll:    make(map[int64]Project, len(projects)),
	}
	for _, cc := range costCenters {
		data.costCenters[cc.ID] = cc
	}
	for _, c := range consultants {
		data.consultantsAll[c.ID] = c
	}
	for _, p := range projects {
		data.projectsAll[p.ID] = p
	}

	if err := l.resolveForeign(ctx, data); err != nil {
		return nil, err
	}
	data.bucketConsultants()
	data.indexElements()
	return data, nil
}

// resolveForeign fetches consultants, projects and cost centers that
// roster entries reference from outside the scope.
func (l *Loader) resolveForeign(ctx context.Context, data *BaseData) error {
	var missingConsultants, missingProjects []int64
	for _, e := range data.RosterEntries {
		if _, ok := data.consultantsAll[e.ConsultantID]; !ok {
			missingConsultants = append(missingConsultants, e.ConsultantID)
			data.consultantsAll[e.ConsultantID] = Consultant{}
		}
		if _, ok := data.projectsAll[e.ProjectID]; !ok {
			missingProjects = append(missingProjects, e.ProjectID)
			data.projectsAll[e.ProjectID] = Project{}
		}
	}
	if len(missingConsultants) > 0 {
		foreign, err := l.store.ConsultantsByIDs(ctx, missingConsultants)
		if err != nil {
			return fmt.Errorf("forecast: load foreign consultants: %w", err)
		}
		var ccIDs []int64
		for _, c := range foreign {
			data.consultantsAll[c.ID] = c
			if _, ok := data.costCenters[c.CostCenterID]; !ok {
				ccIDs = append(ccIDs, c.CostCenterID)
			}
		}
		if len(ccIDs) > 0 {
			ccs, err := l.store.CostCentersByIDs(ctx, ccIDs)
			if err != nil {
				return fmt.Errorf("forecast: load foreign cost centers: %w", err)
			}
			for _, cc := range ccs {
				data.costCenters[cc.ID] = cc
			}
		}
	}
	if len(missingProjects) > 0 {
		foreign, err := l.store.ProjectsByIDs(ctx, missingProjects)
		if err != nil {
			return fmt.Errorf("forecast: load foreign projects: %w", err)
		}
		for _, p := range foreign {
			data.projectsAll[p.ID] = p
		}
	}
	return nil
}

func (d *BaseData) bucketConsultants() {
	d.Permanent = d.Permanent[:0]
	d.Contractors = d.Contractors[:0]
	d.Casuals = d.Casuals[:0]
	for _, c := range d.Consultants {
		switch c.Type {
		case ConsultantPermanent:
			d.Permanent = append(d.Permanent, c)
		case ConsultantContractor:
			d.Contractors = append(d.Contractors, c)
		case ConsultantCasual:
			d.Casuals = append(d.Casuals, c)
		}
	}
}

func (d *BaseData) indexElements() {
	d.elementsByKey = make(map[string]ForecastElement, len(d.Elements))
	for _, el := range d.Elements {
		d.elementsByKey[el.Key] = el
	}
}

// index builds the scope membership sets from the snapshot's scoped
// consultant and project lists.
func (d *BaseData) index() {
	d.scopeConsult = make(map[int64]struct{}, len(d.Consultants))
	for _, c := range d.Consultants {
		d.scopeConsult[c.ID] = struct{}{}
	}
	d.scopeProjects = make(map[int64]struct{}, len(d.Projects))
	for _, p := range d.Projects {
		d.scopeProjects[p.ID] = struct{}{}
	}
}

// validateAssignments checks at load time that every roster entry on a
// real project has a matching assignment, so calculators never hit a
// missing lookup mid-run.
func (d *BaseData) validateAssignments() error {
	for _, e := range d.RosterEntries {
		p, ok := d.projectsAll[e.ProjectID]
		if !ok || !p.Billable() {
			continue
		}
		if _, ok := d.Assignment(e.ConsultantID, e.ProjectID); !ok {
			return &MissingAssignmentError{ConsultantID: e.ConsultantID, ProjectID: e.ProjectID, Date: e.Date}
		}
	}
	return nil
}

// PartitionByProfitCentre carves a scoped snapshot for one centre out
// of a company-wide snapshot. Shared reference data (assignments,
// elements, cost centers, foreign records) is reused, not re-fetched.
func (d *BaseData) PartitionByProfitCentre(pc ProfitCentre) (*BaseData, error) {
	part := &BaseData{
		FinancialYear:  d.FinancialYear,
		Offset:         d.Offset,
		Months:         d.Months,
		Scope:          &pc,
		ProfitCentres:  []ProfitCentre{pc},
		Assignments:    d.Assignments,
		Elements:       d.Elements,
		costCenters:    d.costCenters,
		consultantsAll: d.consultantsAll,
		projectsAll:    d.projectsAll,
		elementsByKey:  d.elementsByKey,
	}
	memberCC := make(map[int64]struct{})
	for _, cc := range d.costCenters {
		if cc.ProfitCentreID == pc.ID {
			memberCC[cc.ID] = struct{}{}
		}
	}
	for _, c := range d.Consultants {
		if _, ok := memberCC[c.CostCenterID]; ok {
			part.Consultants = append(part.Consultants, c)
		}
	}
	for _, p := range d.Projects {
		if p.ProfitCentreID == pc.ID {
			part.Projects = append(part.Projects, p)
		}
	}
	part.bucketConsultants()
	part.index()
	for _, e := range d.RosterEntries {
		if part.InScopeConsultant(e.ConsultantID) || part.InScopeProject(e.ProjectID) {
			part.RosterEntries = append(part.RosterEntries, e)
		}
	}
	for _, m := range d.ManualEntries {
		if m.ProfitCentreID == pc.ID {
			part.ManualEntries = append(part.ManualEntries, m)
		}
	}
	for _, pe := range d.ProjectEntries {
		if part.InScopeProject(pe.ProjectID) {
			part.ProjectEntries = append(part.ProjectEntries, pe)
		}
	}
	if err := part.validateAssignments(); err != nil {
		return nil, err
	}
	return part, nil
}
