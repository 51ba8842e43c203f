package report

import (
	"context"
	"errors"
	"testing"
	"time"

	syncdomain "github.com/harborlabs/cruisesync/internal/sync/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captureSink struct {
	summaries []Summary
	err       error
}

func (s *captureSink) Deliver(ctx context.Context, summary Summary) error {
	s.summaries = append(s.summaries, summary)
	return s.err
}

func TestClassifyHealth(t *testing.T) {
	cases := []struct {
		name       string
		selected   int
		connection int
		want       syncdomain.Health
	}{
		{"no candidates", 0, 0, syncdomain.HealthHealthy},
		{"no errors", 100, 0, syncdomain.HealthHealthy},
		{"at ten percent", 100, 10, syncdomain.HealthHealthy},
		{"above ten percent", 100, 11, syncdomain.HealthDegraded},
		{"at fifty percent", 100, 50, syncdomain.HealthDegraded},
		{"above fifty percent", 100, 51, syncdomain.HealthFailing},
		{"total loss", 10, 10, syncdomain.HealthFailing},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := &syncdomain.ProcessingResult{
				TotalSelected:    tc.selected,
				ConnectionErrors: tc.connection,
			}
			require.Equal(t, tc.want, ClassifyHealth(result))
		})
	}
}

func TestReportBuildsSummary(t *testing.T) {
	sink := &captureSink{}
	reporter := NewReporter(sink, zap.NewNop())

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	result := &syncdomain.ProcessingResult{
		LineCode:        "7",
		BatchID:         "batch-1",
		Status:          syncdomain.RunStatusCompleted,
		TotalSelected:   20,
		Skipped:         5,
		Created:         3,
		Updated:         15,
		ActuallyUpdated: 10,
		Failed:          2,
		StartedAt:       started,
		FinishedAt:      started.Add(90 * time.Second),
	}
	result.AddError("100", syncdomain.ErrorKindTimeout, errors.New("deadline"))

	summary := reporter.Report(context.Background(), result)

	require.Equal(t, "7", summary.LineCode)
	require.Equal(t, syncdomain.RunStatusCompleted, summary.Status)
	require.Equal(t, syncdomain.HealthHealthy, summary.Health)
	require.InDelta(t, 0.5, summary.SuccessRate, 1e-9)
	require.InDelta(t, 90.0, summary.DurationSeconds, 1e-9)
	require.Len(t, summary.Errors, 1)

	require.Len(t, sink.summaries, 1)
	require.Equal(t, summary, sink.summaries[0])
}

func TestReportSurvivesSinkFailure(t *testing.T) {
	sink := &captureSink{err: errors.New("slack down")}
	reporter := NewReporter(sink, zap.NewNop())

	result := &syncdomain.ProcessingResult{
		LineCode: "7",
		BatchID:  "batch-1",
		Status:   syncdomain.RunStatusCompleted,
	}
	summary := reporter.Report(context.Background(), result)
	require.Equal(t, syncdomain.HealthHealthy, summary.Health)
}

func TestNewReporterDefaultsToNoOpSink(t *testing.T) {
	reporter := NewReporter(nil, zap.NewNop())
	result := &syncdomain.ProcessingResult{Status: syncdomain.RunStatusDeferred}
	require.NotPanics(t, func() { reporter.Report(context.Background(), result) })
}
