package report

import (
	"context"

	obsmetrics "github.com/harborlabs/cruisesync/internal/observability/metrics"
	syncdomain "github.com/harborlabs/cruisesync/internal/sync/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Summary is the run report emitted after every orchestration run.
type Summary struct {
	LineCode        string                  `json:"line_code"`
	BatchID         string                  `json:"batch_id"`
	Status          syncdomain.RunStatus    `json:"status"`
	Health          syncdomain.Health       `json:"health"`
	TotalSelected   int                     `json:"total_selected"`
	Skipped         int                     `json:"skipped"`
	Created         int                     `json:"created"`
	Updated         int                     `json:"updated"`
	ActuallyUpdated int                     `json:"actually_updated"`
	Failed          int                     `json:"failed"`
	SuccessRate     float64                 `json:"success_rate"`
	Errors          []syncdomain.RecordError `json:"errors,omitempty"`
	ErrorOverflow   int                     `json:"error_overflow,omitempty"`
	DurationSeconds float64                 `json:"duration_seconds"`
}

// Sink delivers a run summary somewhere external. Delivery is best
// effort; the pipeline never fails on a reporting error.
type Sink interface {
	Deliver(ctx context.Context, summary Summary) error
}

type NoOpSink struct{}

func (NoOpSink) Deliver(ctx context.Context, summary Summary) error { return nil }

// ClassifyHealth grades a run by the ratio of transport-class failures
// to candidates selected.
func ClassifyHealth(result *syncdomain.ProcessingResult) syncdomain.Health {
	if result.TotalSelected == 0 {
		return syncdomain.HealthHealthy
	}
	ratio := float64(result.ConnectionErrors) / float64(result.TotalSelected)
	switch {
	case ratio <= 0.10:
		return syncdomain.HealthHealthy
	case ratio <= 0.50:
		return syncdomain.HealthDegraded
	default:
		return syncdomain.HealthFailing
	}
}

// Reporter turns a finished run into a log line, metrics and a sink
// delivery.
type Reporter struct {
	sink Sink
	log  *zap.Logger
}

func NewReporter(sink Sink, log *zap.Logger) *Reporter {
	if sink == nil {
		sink = NoOpSink{}
	}
	return &Reporter{sink: sink, log: log.Named("report")}
}

func (r *Reporter) Report(ctx context.Context, result *syncdomain.ProcessingResult) Summary {
	duration := result.FinishedAt.Sub(result.StartedAt)
	summary := Summary{
		LineCode:        result.LineCode,
		BatchID:         result.BatchID,
		Status:          result.Status,
		Health:          ClassifyHealth(result),
		TotalSelected:   result.TotalSelected,
		Skipped:         result.Skipped,
		Created:         result.Created,
		Updated:         result.Updated,
		ActuallyUpdated: result.ActuallyUpdated,
		Failed:          result.Failed,
		SuccessRate:     result.SuccessRate(),
		Errors:          result.Errors,
		ErrorOverflow:   result.ErrorOverflow,
		DurationSeconds: duration.Seconds(),
	}

	obsmetrics.Sync().IncRun(string(result.Status))
	if result.Status == syncdomain.RunStatusCompleted {
		obsmetrics.Sync().ObserveRun(result.LineCode, duration)
	}

	fields := []zap.Field{
		zap.String("line_code", summary.LineCode),
		zap.String("batch_id", summary.BatchID),
		zap.String("status", string(summary.Status)),
		zap.String("health", string(summary.Health)),
		zap.Int("total_selected", summary.TotalSelected),
		zap.Int("skipped", summary.Skipped),
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("actually_updated", summary.ActuallyUpdated),
		zap.Int("failed", summary.Failed),
		zap.Float64("success_rate", summary.SuccessRate),
		zap.Float64("duration_seconds", summary.DurationSeconds),
	}
	if summary.ErrorOverflow > 0 {
		fields = append(fields, zap.Int("error_overflow", summary.ErrorOverflow))
	}
	switch summary.Health {
	case syncdomain.HealthFailing:
		r.log.Error("sync run finished", fields...)
	case syncdomain.HealthDegraded:
		r.log.Warn("sync run finished", fields...)
	default:
		r.log.Info("sync run finished", fields...)
	}

	if err := r.sink.Deliver(ctx, summary); err != nil {
		r.log.Warn("run summary delivery failed", zap.String("batch_id", summary.BatchID), zap.Error(err))
	}
	return summary
}

var Module = fx.Module("report",
	fx.Provide(
		func() Sink { return NoOpSink{} },
		NewReporter,
	),
)
