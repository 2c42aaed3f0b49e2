package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/OCAP2/mpmc/internal/api"
	"github.com/OCAP2/mpmc/internal/channel"
	"github.com/OCAP2/mpmc/internal/config"
	"github.com/OCAP2/mpmc/internal/database"
	"github.com/OCAP2/mpmc/internal/dispatcher"
	"github.com/OCAP2/mpmc/internal/influx"
	"github.com/OCAP2/mpmc/internal/logging"
	"github.com/OCAP2/mpmc/internal/model"
	"github.com/OCAP2/mpmc/internal/monitor"
	intOtel "github.com/OCAP2/mpmc/internal/otel"
	"github.com/OCAP2/mpmc/internal/worker"
	"github.com/rs/zerolog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// CommandRun is dispatched with the worker.Result of a finished run.
const CommandRun = ":RUN:"

// app holds everything a single invocation sets up.
type app struct {
	backend channel.Kind
	start   time.Time

	slogManager *logging.SlogManager
	logger      *slog.Logger
	zlog        zerolog.Logger
	logFile     *os.File
	gelfWriter  *gelf.Writer
	otel        *intOtel.Provider

	db     *database.Manager
	influx *influx.Manager
	api    *api.Client

	dispatcher *dispatcher.Dispatcher
	workers    *worker.Manager
	monitor    *monitor.Service

	mu      sync.Mutex
	samples []model.RunSample
	lastRun *model.Run
}

func newApp(ctx context.Context, backend channel.Kind) (*app, error) {
	a := &app{
		backend: backend,
		start:   time.Now(),
	}

	if err := a.setupLogging(); err != nil {
		a.close()
		return nil, err
	}

	a.connectSinks(ctx)

	d, err := dispatcher.New(logging.NewDispatcherLogger(a.zlog))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}
	a.dispatcher = d
	a.registerHandlers()

	a.workers = worker.NewManager(worker.Dependencies{LogManager: a.slogManager})
	a.monitor = monitor.NewService(monitor.Dependencies{
		Workers:    a.workers,
		Dispatcher: a.dispatcher,
		LogManager: a.slogManager,
		Interval:   config.GetBenchConfig().SampleInterval,
	})

	return a, nil
}

func (a *app) setupLogging() error {
	level := config.GetString("logLevel")
	a.slogManager = logging.NewSlogManager(ProgramName)
	a.slogManager.SetContextProvider(func() []slog.Attr {
		attrs := []slog.Attr{slog.String("backend", string(a.backend))}
		if a.workers != nil {
			attrs = append(attrs, slog.Bool("running", a.workers.Stats().Running))
		}
		return attrs
	})

	var out io.Writer
	if dir := config.GetString("logsDir"); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating logs dir: %w", err)
		}
		path := logging.LogFilePath(dir, ProgramName, a.start)
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		a.logFile = f
		out = f
	}

	otelCfg := config.GetOTelConfig()
	var otelLogProvider *sdklog.LoggerProvider
	if otelCfg.Enabled {
		p, err := intOtel.New(intOtel.Config{
			Enabled:      otelCfg.Enabled,
			ServiceName:  otelCfg.ServiceName,
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    out,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		})
		if err != nil {
			return fmt.Errorf("initializing OTel provider: %w", err)
		}
		a.otel = p
		otelLogProvider = p.LoggerProvider()
	}

	var extra []slog.Handler
	if config.GetBool("graylog.enabled") {
		h, w, err := logging.NewGraylogHandler(config.GetString("graylog.address"), level)
		if err != nil {
			return err
		}
		a.gelfWriter = w
		extra = append(extra, h)
	}

	a.slogManager.Setup(out, level, otelLogProvider, extra...)
	a.logger = a.slogManager.Logger()

	if out != nil {
		a.zlog = logging.NewZerolog(level, out)
	} else {
		a.zlog = logging.NewZerolog(level, os.Stderr)
	}
	return nil
}

// connectSinks connects the result database and InfluxDB. A sink that
// fails is logged and left disabled.
func (a *app) connectSinks(ctx context.Context) {
	if dbCfg := config.GetDBConfig(); dbCfg.Enabled {
		m := database.NewManager(dbCfg, a.zlog)
		err := m.Connect()
		if err == nil {
			err = m.Migrate()
		}
		if err != nil {
			a.logger.Error("Database unavailable, results will not be stored", "error", err)
			m.Close()
		} else {
			a.db = m
		}
	}

	if influxCfg := config.GetInfluxConfig(); influxCfg.Enabled {
		m := influx.NewManager(influxCfg, a.zlog)
		if err := m.Connect(ctx); err != nil {
			a.logger.Error("InfluxDB unavailable, points will not be written", "error", err)
			m.Close()
		} else {
			a.influx = m
		}
	}

	if apiCfg := config.GetAPIConfig(); apiCfg.Enabled {
		c := api.New(apiCfg.URL, apiCfg.Secret)
		if err := c.Healthcheck(); err != nil {
			a.logger.Error("Results server unavailable, runs will not be uploaded", "error", err)
		} else {
			a.api = c
		}
	}
}

func (a *app) registerHandlers() {
	a.dispatcher.Register(monitor.CommandSample, func(e dispatcher.Event) (any, error) {
		sample, ok := e.Payload.(model.RunSample)
		if !ok {
			return nil, fmt.Errorf("unexpected sample payload %T", e.Payload)
		}
		a.mu.Lock()
		a.samples = append(a.samples, sample)
		a.mu.Unlock()

		if a.influx != nil {
			return nil, a.influx.WritePoint(influx.SamplePoint(string(a.backend), sample))
		}
		return nil, nil
	}, dispatcher.Async(1), dispatcher.Logged())

	a.dispatcher.Register(CommandRun, func(e dispatcher.Event) (any, error) {
		res, ok := e.Payload.(worker.Result)
		if !ok {
			return nil, fmt.Errorf("unexpected run payload %T", e.Payload)
		}
		run, err := res.Model()
		if err != nil {
			return nil, err
		}

		a.mu.Lock()
		samples := a.samples
		a.samples = nil
		a.lastRun = run
		a.mu.Unlock()

		var errs []error
		if a.db != nil {
			if err := a.db.SaveRun(run); err != nil {
				errs = append(errs, err)
			} else {
				for i := range samples {
					samples[i].RunID = run.ID
				}
				errs = append(errs, a.db.SaveSamples(samples))
			}
		}
		run.Samples = samples

		if a.influx != nil {
			errs = append(errs, a.influx.WritePoint(influx.RunPoint(run)))
		}
		if a.api != nil {
			errs = append(errs, a.api.UploadRun(run))
		}
		return run, errors.Join(errs...)
	}, dispatcher.Logged())
}

// run executes the configured workload with sampling and records the result.
func (a *app) run(ctx context.Context, bench config.BenchConfig) (worker.Result, error) {
	ctx, cancel := withTimeout(ctx, bench.Timeout)
	defer cancel()

	if err := a.monitor.Start(ctx); err != nil {
		return worker.Result{}, err
	}

	res, err := a.workers.Run(ctx, worker.Workload{
		Backend:    a.backend,
		BufferSize: bench.BufferSize,
		Producers:  bench.Producers,
		Consumers:  bench.Consumers,
		Items:      bench.Items,
	})
	a.monitor.Stop()
	if err != nil {
		return worker.Result{}, err
	}

	// let queued samples land before the run is stored
	a.dispatcher.Close()

	if _, err := a.dispatcher.Dispatch(dispatcher.Event{Command: CommandRun, Payload: res}); err != nil {
		a.logger.Error("Failed to record run", "error", err)
	}
	return res, nil
}

func (a *app) close() {
	if a.dispatcher != nil {
		a.dispatcher.Close()
	}
	if a.influx != nil {
		if err := a.influx.Close(); err != nil && a.logger != nil {
			a.logger.Warn("Failed to close InfluxDB", "error", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}

	if a.otel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.otel.Shutdown(ctx); err != nil && a.logger != nil {
			a.logger.Warn("Failed to shut down OTel provider", "error", err)
		}
	}
	if a.gelfWriter != nil {
		a.gelfWriter.Close()
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}

// recentRuns opens the results database on its own for the history command.
func recentRuns(limit int) ([]model.Run, error) {
	dbCfg := config.GetDBConfig()
	if !dbCfg.Enabled {
		return nil, errors.New("db.enabled is false, no results database configured")
	}

	m := database.NewManager(dbCfg, zerolog.Nop())
	if err := m.Connect(); err != nil {
		return nil, err
	}
	defer m.Close()

	if err := m.Migrate(); err != nil {
		return nil, err
	}
	return m.RecentRuns(limit)
}
