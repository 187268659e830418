package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/reactor/pkg/devtools"
	"github.com/vango-dev/reactor/pkg/reactive"
	"github.com/vango-dev/reactor/pkg/workload"
)

func devtoolsCmd(a *app) *cobra.Command {
	var (
		addr     string
		interval time.Duration
		demo     bool
	)

	cmd := &cobra.Command{
		Use:   "devtools [scenario]...",
		Short: "Serve a live view of a running runtime",
		Long: `Serve a live view of a running runtime.

Endpoints:
  /healthz    liveness probe
  /metrics    Prometheus metrics
  /snapshot   recent events as JSON
  /events     websocket stream of msgpack frames

With --demo, a counter runtime ticks on an event loop. Scenario files
given as arguments are replayed every interval.

Examples:
  reactor devtools
  reactor devtools --addr=:7070 --interval=500ms
  reactor devtools --demo=false scenarios/*.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Devtools.Addr
			}

			scenarios := make([]*workload.Scenario, 0, len(args))
			for _, path := range args {
				sc, err := workload.LoadScenario(path)
				if err != nil {
					return err
				}
				scenarios = append(scenarios, sc)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rec := devtools.NewRecorder(devtools.WithBufferSize(a.cfg.Devtools.BufferSize))
			srv := devtools.NewServer(devtools.Config{
				Addr:     addr,
				Recorder: rec,
				Gatherer: a.registry,
				Logger:   a.logger,
			})

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			a.success("Devtools listening on http://%s", ln.Addr())
			a.info("Press Ctrl+C to stop")

			var wg sync.WaitGroup
			if demo {
				obs := a.observer(rec)
				wg.Add(1)
				go func() {
					defer wg.Done()
					a.runDemo(ctx, obs, interval)
				}()
			}
			if len(scenarios) > 0 {
				runner := a.runner(rec)
				wg.Add(1)
				go func() {
					defer wg.Done()
					a.replay(ctx, runner, scenarios, interval)
				}()
			}

			err = srv.Serve(ctx, ln)
			stop()
			wg.Wait()
			return err
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from config)")
	cmd.Flags().DurationVarP(&interval, "interval", "i", time.Second, "Tick interval for the demo and scenario replay")
	cmd.Flags().BoolVar(&demo, "demo", true, "Run a demo counter runtime")

	return cmd
}

// runDemo drives a small counter runtime on an event loop until ctx is done.
func (a *app) runDemo(ctx context.Context, obs reactive.Observer, interval time.Duration) {
	opts := append(a.cfg.RuntimeOptions(a.logger), reactive.WithObserver(obs))
	loop := reactive.NewLoop(a.cfg.Runtime.QueueSize, opts...)
	rt := loop.Runtime()

	count := reactive.NewRef(rt, 0)
	double := reactive.NewComputed(rt, func() int { return count.Value() * 2 })
	rt.Effect(func() { _ = double.Value() })
	rt.Watch(count, func(value, old any, _ reactive.OnCleanup) {
		a.logger.Debug("demo tick", "count", value, "previous", old)
	})

	go func() { _ = loop.Run(ctx) }()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			<-loop.Done()
			return
		case <-ticker.C:
			if err := loop.Do(ctx, func() {
				count.Update(func(n int) int { return n + 1 })
			}); err != nil {
				<-loop.Done()
				return
			}
		}
	}
}

// replay runs scenarios every interval until ctx is done.
func (a *app) replay(ctx context.Context, runner *workload.Runner, scenarios []*workload.Scenario, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		for _, sc := range scenarios {
			res, err := runner.Run(ctx, sc)
			if err != nil {
				if ctx.Err() == nil {
					a.logger.Error("scenario replay failed", "scenario", sc.Name, "error", err)
				}
				return
			}
			if !res.Passed() {
				a.logger.Warn("scenario expectations failed", "scenario", sc.Name, "failures", res.Failures)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
