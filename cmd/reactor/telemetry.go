package main

import (
	"context"
	"os"

	"github.com/vango-dev/reactor/pkg/reactive"
	"github.com/vango-dev/reactor/pkg/telemetry"
	"github.com/vango-dev/reactor/pkg/workload"
)

// observer builds the runtime observers enabled in the config, plus extra.
// It returns nil when nothing observes. Metrics are shared by every runtime;
// each call gets its own tracer, since a tracer follows one runtime's flushes.
func (a *app) observer(extra ...reactive.Observer) reactive.Observer {
	observers := append([]reactive.Observer(nil), extra...)
	if a.cfg.Metrics.Enabled {
		if a.metrics == nil {
			a.metrics = telemetry.NewMetrics(
				telemetry.WithNamespace(a.cfg.Metrics.Namespace),
				telemetry.WithRegistry(a.registry),
			)
		}
		observers = append(observers, a.metrics)
	}
	if a.cfg.Tracing.Enabled {
		observers = append(observers, telemetry.NewTracer(
			telemetry.WithTracerName(a.cfg.Tracing.TracerName),
		))
	}
	return telemetry.Multi(observers...)
}

// runner builds a workload runner from the config.
func (a *app) runner(extra ...reactive.Observer) *workload.Runner {
	opts := []workload.RunnerOption{
		workload.WithLogger(a.logger),
		workload.WithDebug(a.cfg.Runtime.Debug),
	}
	if obs := a.observer(extra...); obs != nil {
		opts = append(opts, workload.WithObserver(obs))
	}
	if budget := a.cfg.BudgetConfig(); budget != nil {
		opts = append(opts, workload.WithBudget(budget))
	}
	return workload.NewRunner(opts...)
}

// sink returns where reports go: the configured S3 bucket, else the
// report directory.
func (a *app) sink() workload.Sink {
	rc := a.cfg.Report
	if rc.S3Bucket != "" {
		client := workload.NewS3Client(rc.Region, rc.Endpoint)
		return workload.NewS3Uploader(client, rc.S3Bucket, rc.S3Prefix)
	}
	return workload.DirSink{Dir: rc.Dir}
}

// save stores r and reports where it went.
func (a *app) save(ctx context.Context, r *workload.Report) error {
	location, err := a.sink().Put(ctx, r)
	if err != nil {
		return err
	}
	a.success("Report saved to %s", location)
	a.logger.Info("report saved", "run_id", r.RunID, "kind", r.Kind, "location", location)
	return nil
}

// writeJSON writes r as JSON to path, or to stdout when path is "-".
func (a *app) writeJSON(path string, r *workload.Report) error {
	if path == "-" {
		return r.WriteJSON(a.out)
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	if err := r.WriteJSON(file); err != nil {
		return err
	}
	return file.Close()
}
