// Command l2switchd runs the Layer-2 switch: it opens every valid network
// interface, learns and forwards frames, snoops IGMP traffic to constrain
// multicast delivery, and serves an interactive operator REPL on stdin.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"net/http"

	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/l2switch/internal/aging"
	"github.com/malbeclabs/l2switch/internal/broadcast"
	"github.com/malbeclabs/l2switch/internal/cam"
	"github.com/malbeclabs/l2switch/internal/frameio/pcap"
	"github.com/malbeclabs/l2switch/internal/iface"
	"github.com/malbeclabs/l2switch/internal/mcast"
	"github.com/malbeclabs/l2switch/internal/metrics"
	"github.com/malbeclabs/l2switch/internal/repl"
	"github.com/malbeclabs/l2switch/internal/trafficloop"
)

const minValidInterfaces = 2

type config struct {
	MinTTL        time.Duration
	CleanupPeriod time.Duration
	Verbose       bool
	MetricsEnable bool
	MetricsAddr   string
}

func (c config) Validate() error {
	if c.MinTTL <= 0 {
		return fmt.Errorf("min-ttl must be > 0, got %s", c.MinTTL)
	}
	if c.CleanupPeriod <= 0 {
		return fmt.Errorf("cleanup-period must be > 0, got %s", c.CleanupPeriod)
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := parseFlags()
	if err != nil {
		return err
	}

	log := newLogger(cfg.Verbose)

	stack := iface.NewStack()
	opened, err := iface.OpenValid(pcap.Enumerator{}, pcap.Opener{}, stack)
	if err != nil {
		return fmt.Errorf("discover interfaces: %w", err)
	}
	if len(opened) < minValidInterfaces {
		return fmt.Errorf("need at least %d valid interfaces, found %d", minValidInterfaces, len(opened))
	}
	log.Info("opened interfaces", "count", len(opened))

	bcast := broadcast.New(stack)
	camTable := cam.New(cam.DefaultCapacity, clockwork.NewRealClock())
	camTable.SetDefaultPort(bcast)
	camTable.SetMinTTL(cfg.MinTTL)
	mcastStack := mcast.New(bcast)

	var recorder metrics.Recorder = metrics.Noop{}
	if cfg.MetricsEnable {
		m := metrics.New(prometheus.DefaultRegisterer)
		recorder = m
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server error", "error", err)
			}
		}()
		log.Info("metrics enabled", "addr", cfg.MetricsAddr)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	workers := make([]*trafficloop.Worker, 0, len(opened))
	for _, i := range opened {
		w := trafficloop.New(log.With("iface", i.Name()), i, camTable, bcast, mcastStack, recorder)
		w.Start(ctx)
		workers = append(workers, w)
	}

	agingWorker := aging.New(log, cfg.CleanupPeriod, stack, camTable, mcastStack, recorder)
	agingWorker.Start(ctx)

	r := repl.New(os.Stdin, os.Stdout, stack, camTable, mcastStack)
	if err := r.Run(ctx); err != nil {
		log.Error("repl error", "error", err)
	}

	cancel()
	for _, w := range workers {
		w.Stop()
	}
	agingWorker.Stop()

	if err := stack.CloseAll(); err != nil {
		log.Error("error closing interfaces", "error", err)
	}

	log.Info("shutdown complete")
	return nil
}

func parseFlags() (config, error) {
	var (
		minTTLSeconds  int
		cleanupSeconds int
		verbose        bool
		metricsEnable  bool
		metricsAddr    string
	)

	flag.CommandLine.Init(os.Args[0], flag.ContinueOnError)
	flag.IntVarP(&minTTLSeconds, "min-ttl", "t", 300, "minimum CAM entry age in seconds before it is eligible for cleanup")
	flag.IntVarP(&cleanupSeconds, "cleanup-period", "c", 1, "seconds between aging cleanup cycles")
	flag.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flag.BoolVar(&metricsEnable, "metrics-enable", false, "expose a Prometheus /metrics endpoint")
	flag.StringVar(&metricsAddr, "metrics-addr", ":9090", "listen address for the metrics endpoint")
	if err := flag.CommandLine.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		return config{}, err
	}

	cfg := config{
		MinTTL:        time.Duration(minTTLSeconds) * time.Second,
		CleanupPeriod: time.Duration(cleanupSeconds) * time.Second,
		Verbose:       verbose,
		MetricsEnable: metricsEnable,
		MetricsAddr:   metricsAddr,
	}
	if err := cfg.Validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	}))
}
