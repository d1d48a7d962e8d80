package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-fp/meridian-fp/internal/fiscal"
	"github.com/meridian-fp/meridian-fp/internal/forecast"
	jobmetrics "github.com/meridian-fp/meridian-fp/internal/jobs"
)

// RecalculationService describes the behaviour required to rebuild
// forecast entries.
type RecalculationService interface {
	CalculateForCompany(ctx context.Context, companyID int64, financialYear int) (*forecast.CompanyRunResult, error)
	CalculateForProfitCentre(ctx context.Context, profitCentreID int64, financialYear int) (*forecast.RunResult, error)
}

// CompanyLister resolves the companies covered by an unscoped run.
type CompanyLister interface {
	CompanyIDs(ctx context.Context) ([]int64, error)
}

// ForecastRecalculateJob coordinates the recalculation workflow.
type ForecastRecalculateJob struct {
	Service RecalculationService
	Lister  CompanyLister
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Offset  int
	clock   func() time.Time
}

// NewForecastRecalculateJob constructs the job handler.
func NewForecastRecalculateJob(service RecalculationService, lister CompanyLister, logger *slog.Logger, metrics *jobmetrics.Metrics, offset int) *ForecastRecalculateJob {
	return &ForecastRecalculateJob{
		Service: service,
		Lister:  lister,
		Logger:  logger,
		Metrics: metrics,
		Offset:  offset,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the recalculation job.
func (j *ForecastRecalculateJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("forecast recalculate: dependencies not configured")
	}
	var payload ForecastRecalculatePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	fy := payload.FinancialYear
	if fy == 0 {
		fy = fiscal.FinancialTimeFromDate(j.clock(), j.Offset).Year
	}

	tracker := j.Metrics.Track(TaskForecastRecalculate)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	switch {
	case payload.ProfitCentreID > 0:
		resultErr = j.runProfitCentre(ctx, payload.ProfitCentreID, fy)
	case payload.CompanyID > 0:
		resultErr = j.runCompany(ctx, payload.CompanyID, fy)
	default:
		resultErr = j.runAll(ctx, fy)
	}
	return resultErr
}

func (j *ForecastRecalculateJob) runProfitCentre(ctx context.Context, profitCentreID int64, fy int) error {
	result, err := j.Service.CalculateForProfitCentre(ctx, profitCentreID, fy)
	if err != nil {
		// A held lock means another run is already doing this work.
		if errors.Is(err, forecast.ErrConcurrentRecalculation) {
			j.log().Info("recalculation already in progress, skipping",
				slog.Int64("profit_centre_id", profitCentreID), slog.Int("financial_year", fy))
			return nil
		}
		return err
	}
	j.log().Info("profit centre recalculated",
		slog.Int64("profit_centre_id", profitCentreID),
		slog.Int("financial_year", fy),
		slog.Int("rows_written", result.RowsWritten))
	return nil
}

func (j *ForecastRecalculateJob) runCompany(ctx context.Context, companyID int64, fy int) error {
	result, err := j.Service.CalculateForCompany(ctx, companyID, fy)
	if err != nil {
		return err
	}
	for _, f := range result.Failures {
		j.log().Warn("profit centre skipped",
			slog.Int64("company_id", companyID),
			slog.Int64("profit_centre_id", f.ProfitCentreID),
			slog.Any("error", f.Err))
	}
	j.log().Info("company recalculated",
		slog.Int64("company_id", companyID),
		slog.Int("financial_year", fy),
		slog.Int("centres", len(result.Runs)),
		slog.Int("skipped", len(result.Failures)))
	return nil
}

func (j *ForecastRecalculateJob) runAll(ctx context.Context, fy int) error {
	if j.Lister == nil {
		return errors.New("forecast recalculate: company lister not configured")
	}
	companyIDs, err := j.Lister.CompanyIDs(ctx)
	if err != nil {
		return err
	}
	var failed int
	for _, id := range companyIDs {
		if err := j.runCompany(ctx, id, fy); err != nil {
			failed++
			j.log().Error("company recalculation failed", slog.Int64("company_id", id), slog.Any("error", err))
		}
	}
	if failed > 0 {
		return errors.New("forecast recalculate: one or more companies failed")
	}
	return nil
}

func (j *ForecastRecalculateJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
