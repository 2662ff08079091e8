package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Swind/go-offload/binding"
	"github.com/Swind/go-offload/core"
	"github.com/Swind/go-offload/internal/config"
	offloadprom "github.com/Swind/go-offload/observability/prometheus"
)

type demoOptions struct {
	Sheep    int
	Interval time.Duration
	Sleep    time.Duration
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Count sheep while a native sleep runs on the dispatcher",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a TOML config file",
			},
			&cli.IntFlag{
				Name:  "sheep",
				Value: 5,
				Usage: "Number of sheep to count",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Value: time.Second,
				Usage: "Time between two sheep",
			},
			&cli.DurationFlag{
				Name:  "sleep",
				Value: 5500 * time.Millisecond,
				Usage: "Duration of the blocking native sleep",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on this address (overrides metrics.listen_addr)",
			},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if c.IsSet("metrics-addr") {
		cfg.Metrics.ListenAddr = c.String("metrics-addr")
	}

	opts := demoOptions{
		Sheep:    c.Int("sheep"),
		Interval: c.Duration("interval"),
		Sleep:    c.Duration("sleep"),
	}
	if opts.Sheep < 0 || opts.Interval <= 0 || opts.Sleep < 0 {
		return cli.Exit("sheep and sleep must be >= 0, interval must be > 0", 1)
	}

	if err := runDemo(c.Context, cfg, opts, c.App.Writer); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	return nil
}

func opsCommand() *cli.Command {
	return &cli.Command{
		Name:  "ops",
		Usage: "List the operations bound from the native library",
		Action: func(c *cli.Context) error {
			table, err := binding.FromSpec(nativeLib{})
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			for _, name := range table.Names() {
				sig, _ := table.Signature(name)
				fmt.Fprintf(c.App.Writer, "%s %s\n", name, sig)
			}
			return nil
		},
	}
}

// runDemo wires config, metrics, dispatcher and loop, and returns once every
// sheep is counted and the native sleep has reported back.
func runDemo(ctx context.Context, cfg config.Config, opts demoOptions, out io.Writer) error {
	logger := cfg.NewLogger()

	table, err := binding.FromSpec(nativeLib{})
	if err != nil {
		return err
	}

	reg := prom.NewRegistry()
	var metrics core.Metrics
	var poller *offloadprom.SnapshotPoller
	if cfg.Metrics.ListenAddr != "" {
		exporter, err := offloadprom.NewMetricsExporter(cfg.Metrics.Namespace, reg, offloadprom.ExporterOptions{})
		if err != nil {
			return err
		}
		metrics = exporter
		if poller, err = offloadprom.NewSnapshotPoller(cfg.Metrics.Namespace, reg, time.Second); err != nil {
			return err
		}
	}

	dispatcher := core.NewDispatcherWithConfig(table, cfg.DispatcherConfig(logger, metrics))
	defer dispatcher.Stop()
	loop := core.NewEventLoopWithConfig(cfg.EventLoopConfig(logger))
	defer loop.Stop()

	g, gctx := errgroup.WithContext(ctx)

	if poller != nil {
		poller.AddDispatcher(dispatcher.Name(), dispatcher)
		poller.AddLoop(loop.Name(), loop)
		poller.Start(gctx)
		defer poller.Stop()

		ln, err := net.Listen("tcp", cfg.Metrics.ListenAddr)
		if err != nil {
			return fmt.Errorf("listen metrics: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		logger.Info("metrics listening", core.F("addr", ln.Addr().String()))

		served := make(chan struct{})
		g.Go(func() error {
			defer close(served)
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-loop.Done():
			case <-gctx.Done():
			case <-served:
				return nil
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	var demoErr error
	g.Go(func() error {
		err := loop.Run(gctx, func(ctx context.Context) {
			demoErr = startDemo(ctx, loop, dispatcher, opts, out)
		})
		if demoErr != nil {
			return demoErr
		}
		return err
	})

	return g.Wait()
}

// startDemo runs on the loop. It starts both jobs and shuts the loop down
// once both have finished.
func startDemo(ctx context.Context, loop *core.EventLoop, d *core.Dispatcher, opts demoOptions, out io.Writer) error {
	pending := 2
	finish := func() {
		pending--
		if pending == 0 {
			loop.Shutdown()
		}
	}

	fmt.Fprintln(out, "Pre-sleep")
	completion, err := core.Invoke[int32](ctx, d, "rust_sleep", int32(opts.Sleep.Milliseconds()))
	if err != nil {
		loop.Shutdown()
		return err
	}
	completion.OnComplete(func(ctx context.Context, status int32, err error) {
		switch {
		case err != nil:
			fmt.Fprintf(out, "sleep failed: %v\n", err)
		case status != 0:
			fmt.Fprintf(out, "sleep failed: status %d\n", status)
		default:
			fmt.Fprintln(out, "Post-sleep")
		}
		finish()
	})

	if opts.Sheep == 0 {
		finish()
		return nil
	}
	counted := 0
	var handle core.RepeatingTaskHandle
	handle = loop.PostRepeatingTaskWithInitialDelay(func(ctx context.Context) {
		counted++
		fmt.Fprintln(out, counted, "sheep")
		if counted == opts.Sheep {
			handle.Stop()
			finish()
		}
	}, opts.Interval, opts.Interval)
	return nil
}
