package tuning

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for search operations.
var (
	tracer = otel.Tracer("pricetune.tuning")
	meter  = otel.Meter("pricetune.tuning")
)

var (
	trialsTotal   metric.Int64Counter
	trialDuration metric.Float64Histogram
	foldsTotal    metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		trialsTotal, err = meter.Int64Counter(
			"tuning_trials_total",
			metric.WithDescription("Total number of hyperparameter trials by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		trialDuration, err = meter.Float64Histogram(
			"tuning_trial_duration_seconds",
			metric.WithDescription("Wall time of one cross-validated trial"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		foldsTotal, err = meter.Int64Counter(
			"tuning_folds_total",
			metric.WithDescription("Total number of cross-validation folds trained"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func startTrialSpan(ctx context.Context, trial int, cfg Config) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Controller.Trial",
		trace.WithAttributes(
			attribute.Int("tuning.trial", trial),
			attribute.String("tuning.config", cfg.Format()),
		),
	)
}

func startFoldSpan(ctx context.Context, fold int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "CVObjective.Fold",
		trace.WithAttributes(attribute.Int("cv.fold", fold)),
	)
}

// endSpan records err on span, if any, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func recordTrial(ctx context.Context, duration time.Duration, ok bool) {
	if err := initMetrics(); err != nil {
		return
	}
	outcome := "complete"
	if !ok {
		outcome = "failed"
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	trialsTotal.Add(ctx, 1, attrs)
	trialDuration.Record(ctx, duration.Seconds(), attrs)
}

func recordFold(ctx context.Context, ok bool) {
	if err := initMetrics(); err != nil {
		return
	}
	foldsTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", ok)))
}
