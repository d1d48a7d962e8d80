package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-fp/meridian-fp/internal/forecast"
	jobmetrics "github.com/meridian-fp/meridian-fp/internal/jobs"
)

type recordedRun struct {
	companyID      int64
	profitCentreID int64
	financialYear  int
}

type fakeRecalcService struct {
	runs   []recordedRun
	pcErr  error
	cmpErr error
}

func (f *fakeRecalcService) CalculateForCompany(_ context.Context, companyID int64, fy int) (*forecast.CompanyRunResult, error) {
	f.runs = append(f.runs, recordedRun{companyID: companyID, financialYear: fy})
	if f.cmpErr != nil {
		return nil, f.cmpErr
	}
	return &forecast.CompanyRunResult{CompanyID: companyID, FinancialYear: fy}, nil
}

func (f *fakeRecalcService) CalculateForProfitCentre(_ context.Context, profitCentreID int64, fy int) (*forecast.RunResult, error) {
	f.runs = append(f.runs, recordedRun{profitCentreID: profitCentreID, financialYear: fy})
	if f.pcErr != nil {
		return nil, f.pcErr
	}
	return &forecast.RunResult{ProfitCentreID: profitCentreID, FinancialYear: fy}, nil
}

type fakeLister struct{ ids []int64 }

func (f fakeLister) CompanyIDs(context.Context) ([]int64, error) {
	return f.ids, nil
}

func newTestJob(service *fakeRecalcService, lister CompanyLister) *ForecastRecalculateJob {
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	job := NewForecastRecalculateJob(service, lister, nil, metrics, -6)
	// Pin the clock to December 2024, financial year 2024 at the
	// default offset.
	job.clock = func() time.Time {
		return time.Date(2024, time.December, 15, 2, 0, 0, 0, time.UTC)
	}
	return job
}

func TestHandleProfitCentrePayload(t *testing.T) {
	service := &fakeRecalcService{}
	job := newTestJob(service, fakeLister{})

	task, err := NewForecastRecalculateTask(ForecastRecalculatePayload{ProfitCentreID: 7, FinancialYear: 2023})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Len(t, service.runs, 1)
	assert.Equal(t, recordedRun{profitCentreID: 7, financialYear: 2023}, service.runs[0])
}

func TestHandleCompanyPayload(t *testing.T) {
	service := &fakeRecalcService{}
	job := newTestJob(service, fakeLister{})

	task, err := NewForecastRecalculateTask(ForecastRecalculatePayload{CompanyID: 3, FinancialYear: 2024})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Len(t, service.runs, 1)
	assert.Equal(t, recordedRun{companyID: 3, financialYear: 2024}, service.runs[0])
}

func TestHandleEmptyPayloadRunsEveryCompany(t *testing.T) {
	service := &fakeRecalcService{}
	job := newTestJob(service, fakeLister{ids: []int64{1, 2}})

	task, err := NewForecastRecalculateTask(ForecastRecalculatePayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	// The financial year defaults to the one the pinned clock falls in.
	require.Len(t, service.runs, 2)
	assert.Equal(t, recordedRun{companyID: 1, financialYear: 2024}, service.runs[0])
	assert.Equal(t, recordedRun{companyID: 2, financialYear: 2024}, service.runs[1])
}

func TestHandleSkipsWhenLockHeld(t *testing.T) {
	service := &fakeRecalcService{pcErr: forecast.ErrConcurrentRecalculation}
	job := newTestJob(service, fakeLister{})

	task, err := NewForecastRecalculateTask(ForecastRecalculatePayload{ProfitCentreID: 7, FinancialYear: 2024})
	require.NoError(t, err)
	assert.NoError(t, job.Handle(context.Background(), task))
}

func TestHandlePropagatesCompanyError(t *testing.T) {
	service := &fakeRecalcService{cmpErr: errors.New("db down")}
	job := newTestJob(service, fakeLister{})

	task, err := NewForecastRecalculateTask(ForecastRecalculatePayload{CompanyID: 3, FinancialYear: 2024})
	require.NoError(t, err)
	assert.Error(t, job.Handle(context.Background(), task))
}

func TestHandleBadPayloadSkipsRetry(t *testing.T) {
	job := newTestJob(&fakeRecalcService{}, fakeLister{})
	task := asynq.NewTask(TaskForecastRecalculate, []byte("{"))

	err := job.Handle(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
