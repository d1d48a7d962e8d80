package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskForecastRecalculate schedules a forecast recalculation run.
	TaskForecastRecalculate = "forecast:recalculate"
)

// ForecastRecalculatePayload configures the scope of a recalculation.
// Exactly one of CompanyID or ProfitCentreID should be set; zero in
// both means every company. FinancialYear zero means the active year.
type ForecastRecalculatePayload struct {
	CompanyID      int64 `json:"company_id,omitempty"`
	ProfitCentreID int64 `json:"profit_centre_id,omitempty"`
	FinancialYear  int   `json:"financial_year,omitempty"`
}

// NewForecastRecalculateTask creates an Asynq task for a recalculation.
func NewForecastRecalculateTask(payload ForecastRecalculatePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskForecastRecalculate, body, asynq.Queue(QueueDefault)), nil
}

// Client enqueues background tasks.
type Client struct {
	client *asynq.Client
}

// NewClient wraps an asynq client.
func NewClient(opts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(opts)}
}

// EnqueueForecastRecalculate schedules a recalculation run.
func (c *Client) EnqueueForecastRecalculate(ctx context.Context, payload ForecastRecalculatePayload) error {
	task, err := NewForecastRecalculateTask(payload)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task)
	return err
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.client.Close()
}
