package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/taxpilot/taxpilot/internal/filings"
	jobmetrics "github.com/taxpilot/taxpilot/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// FilingMetricsSource aggregates filings for a tax year.
type FilingMetricsSource interface {
	Metrics(ctx context.Context, year int) (filings.Metrics, error)
}

// MetricsSnapshotJob publishes filing counts and refund totals as gauges.
type MetricsSnapshotJob struct {
	Filings FilingMetricsSource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewMetricsSnapshotJob wires dependencies for the snapshot handler.
func NewMetricsSnapshotJob(source FilingMetricsSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *MetricsSnapshotJob {
	return &MetricsSnapshotJob{
		Filings: source,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskFilingsMetricsSnapshot tasks.
func (j *MetricsSnapshotJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Filings == nil {
		return errors.New("metrics snapshot: handler not configured")
	}
	var payload MetricsSnapshotPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("metrics snapshot: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	years := payload.Years
	if len(years) == 0 {
		current := j.now().Year()
		years = []int{current - 1, current}
	}

	tracker := j.metrics().Track(TaskFilingsMetricsSnapshot)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	for _, year := range years {
		m, err := j.Filings.Metrics(ctx, year)
		if err != nil {
			resultErr = err
			j.logger().Error("load filing metrics", slog.Int("year", year), slog.Any("error", err))
			return resultErr
		}
		byStatus := make(map[string]int, len(m.ByStatus))
		for status, count := range m.ByStatus {
			byStatus[string(status)] = count
		}
		j.metrics().SetFilingSnapshot(year, byStatus, m.TotalEstimatedRefund.InexactFloat64(), m.TotalActualRefund.InexactFloat64())
		j.logger().Info("filing metrics snapshot", slog.Int("year", year), slog.Int("total", m.Total))
	}
	return resultErr
}

func (j *MetricsSnapshotJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskFilingsMetricsSnapshot))
	}
	return slog.Default().With(slog.String("job", TaskFilingsMetricsSnapshot))
}

func (j *MetricsSnapshotJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *MetricsSnapshotJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
