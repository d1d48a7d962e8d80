package forecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-fp/meridian-fp/internal/fiscal"
	"github.com/meridian-fp/meridian-fp/internal/shared"
)

// Lock is a held recalculation lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker serialises recalculation runs per scope. Obtain returns
// ErrConcurrentRecalculation when the lock is already held.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// RunResult summarises one profit-centre calculation run.
type RunResult struct {
	RunID          uuid.UUID
	ProfitCentreID int64
	FinancialYear  int
	Cells          CellMap
	RowsWritten    int
}

// ScopeFailure records one profit centre whose calculation failed
// during a company run.
type ScopeFailure struct {
	ProfitCentreID int64
	Err            error
}

// CompanyRunResult aggregates the per-centre outcomes of a company run.
type CompanyRunResult struct {
	CompanyID     int64
	FinancialYear int
	Runs          []RunResult
	Failures      []ScopeFailure
}

// ServiceConfig carries the tunables of the calculation service.
type ServiceConfig struct {
	Offset  int
	LockTTL time.Duration
}

// Service orchestrates forecast calculation runs: lock, load, fan out
// the calculators, merge at the barrier, persist destroy-then-recreate.
type Service struct {
	store   Store
	loader  *Loader
	locker  Locker
	logger  *slog.Logger
	offset  int
	lockTTL time.Duration
	now     func() time.Time
}

// NewService wires the calculation service.
func NewService(store Store, locker Locker, logger *slog.Logger, cfg ServiceConfig) *Service {
	offset := cfg.Offset
	if offset == 0 {
		offset = fiscal.DefaultOffset
	}
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{
		store:   store,
		loader:  NewLoader(store, offset),
		locker:  locker,
		logger:  logger,
		offset:  offset,
		lockTTL: ttl,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CalculateForProfitCentre runs every calculator for one profit centre
// and financial year, merges the payroll tax contributions, and
// replaces the persisted rows of each computed element inside a single
// transaction. Re-running with identical inputs writes identical rows.
func (s *Service) CalculateForProfitCentre(ctx context.Context, profitCentreID int64, financialYear int) (*RunResult, error) {
	if profitCentreID <= 0 {
		return nil, fmt.Errorf("forecast: profit centre id is required")
	}
	if financialYear <= 0 {
		return nil, fmt.Errorf("forecast: %w", shared.ErrInvalidFinancialYear)
	}
	lock, err := s.locker.Obtain(ctx, shared.ForecastLockKey(profitCentreID, financialYear), s.lockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			s.log().Warn("release forecast lock", slog.Any("error", err))
		}
	}()

	data, err := s.loader.LoadProfitCentre(ctx, profitCentreID, financialYear)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, data)
}

// CalculateForCompany loads one company-wide snapshot, partitions it by
// profit centre and runs each centre in turn. A centre that fails with
// a scope-local error (missing assignment, held lock) is recorded and
// skipped; infrastructure errors abort the batch.
func (s *Service) CalculateForCompany(ctx context.Context, companyID int64, financialYear int) (*CompanyRunResult, error) {
	if companyID <= 0 {
		return nil, fmt.Errorf("forecast: company id is required")
	}
	if financialYear <= 0 {
		return nil, fmt.Errorf("forecast: %w", shared.ErrInvalidFinancialYear)
	}
	data, err := s.loader.LoadCompany(ctx, companyID, financialYear)
	if err != nil {
		return nil, err
	}
	result := &CompanyRunResult{CompanyID: companyID, FinancialYear: financialYear}
	for _, pc := range data.ProfitCentres {
		run, err := s.runCentre(ctx, data, pc, financialYear)
		if err != nil {
			if scopeLocal(err) {
				s.log().Warn("profit centre calculation failed",
					slog.Int64("profit_centre_id", pc.ID),
					slog.Int("financial_year", financialYear),
					slog.Any("error", err))
				result.Failures = append(result.Failures, ScopeFailure{ProfitCentreID: pc.ID, Err: err})
				continue
			}
			return nil, err
		}
		result.Runs = append(result.Runs, *run)
	}
	return result, nil
}

func (s *Service) runCentre(ctx context.Context, company *BaseData, pc ProfitCentre, financialYear int) (*RunResult, error) {
	lock, err := s.locker.Obtain(ctx, shared.ForecastLockKey(pc.ID, financialYear), s.lockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			s.log().Warn("release forecast lock", slog.Any("error", err))
		}
	}()
	part, err := company.PartitionByProfitCentre(pc)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, part)
}

// run executes the calculators concurrently, merges their cell maps
// after the barrier, and persists the computed elements.
func (s *Service) run(ctx context.Context, data *BaseData) (*RunResult, error) {
	started := s.now()
	calcs := Calculators()
	results := make([]CellMap, len(calcs))
	g, _ := errgroup.WithContext(ctx)
	for i, calc := range calcs {
		g.Go(func() error {
			results[i] = calc(data)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Barrier passed: fold every calculator's cells together. The
	// payroll tax contributions of the salary and contractor
	// calculators land in the same cells here, which is the
	// reconciliation the persisted PTAX rows are built from.
	cells := make(CellMap)
	for _, m := range results {
		cells.Merge(m)
	}

	byElement, err := s.entriesByElement(data, cells)
	if err != nil {
		return nil, err
	}
	written, err := s.store.ReplaceEntries(ctx, data.FinancialYear, data.Scope.ID, byElement)
	if err != nil {
		return nil, fmt.Errorf("forecast: persist entries for profit centre %d year %d: %w", data.Scope.ID, data.FinancialYear, err)
	}

	result := &RunResult{
		RunID:          uuid.New(),
		ProfitCentreID: data.Scope.ID,
		FinancialYear:  data.FinancialYear,
		Cells:          cells,
		RowsWritten:    written,
	}
	s.log().Info("forecast recalculated",
		slog.String("run_id", result.RunID.String()),
		slog.Int64("profit_centre_id", result.ProfitCentreID),
		slog.Int("financial_year", result.FinancialYear),
		slog.Int("rows_written", result.RowsWritten),
		slog.Duration("took", s.now().Sub(started)))
	return result, nil
}

// Preview computes the cell map for one profit centre without taking
// the lock or writing entries. Report and drilldown reads use this
// path; persisted rows stay untouched.
func (s *Service) Preview(ctx context.Context, profitCentreID int64, financialYear int) (*BaseData, CellMap, error) {
	data, err := s.loader.LoadProfitCentre(ctx, profitCentreID, financialYear)
	if err != nil {
		return nil, nil, err
	}
	cells := make(CellMap)
	for _, calc := range Calculators() {
		cells.Merge(calc(data))
	}
	return data, cells, nil
}

// entriesByElement converts the merged cells into persisted rows,
// grouped by the element whose partition they replace. Every computed
// element is present, including empty ones, so stale rows from a
// previous run are always destroyed.
func (s *Service) entriesByElement(data *BaseData, cells CellMap) (map[int64][]ForecastEntry, error) {
	byElement := make(map[int64][]ForecastEntry)
	ids := make(map[string]int64)
	for _, key := range ComputedElementKeys() {
		el, err := data.Element(key)
		if err != nil {
			return nil, err
		}
		ids[key] = el.ID
		byElement[el.ID] = nil
	}
	for _, key := range cells.Keys() {
		elementID, computed := ids[key.Element]
		if !computed {
			continue
		}
		byElement[elementID] = append(byElement[elementID], ForecastEntry{
			FinancialYear:  key.Year,
			FinancialMonth: key.Month,
			ElementID:      elementID,
			ProfitCentreID: data.Scope.ID,
			Amount:         round2(cells[key].Value),
		})
	}
	return byElement, nil
}

// scopeLocal reports whether the error invalidates only one profit
// centre's run rather than the whole batch.
func scopeLocal(err error) bool {
	var missing *MissingAssignmentError
	return errors.As(err, &missing) || errors.Is(err, ErrConcurrentRecalculation)
}

func (s *Service) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
