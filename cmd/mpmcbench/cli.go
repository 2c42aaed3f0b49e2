package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/OCAP2/mpmc/internal/channel"
	"github.com/OCAP2/mpmc/internal/config"
	"github.com/OCAP2/mpmc/internal/model"
	"github.com/OCAP2/mpmc/internal/worker"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ErrViolations is returned when a run breaks a delivery guarantee.
var ErrViolations = errors.New("delivery guarantees violated")

func newRootCmd() *cobra.Command {
	var configDir string

	root := &cobra.Command{
		Use:           ProgramName,
		Short:         "Soak and benchmark harness for the mpmc channel",
		Version:       fmt.Sprintf("%s (%s)", Version, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(configDir); err != nil {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) {
					return err
				}
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configDir, "config-dir", ".", "directory containing "+config.FileName)
	root.PersistentFlags().String("log-level", "", "log level (TRACE, DEBUG, INFO, WARN, ERROR)")
	root.PersistentFlags().String("logs-dir", "", "directory for log files; empty logs to the console")
	_ = viper.BindPFlag("logLevel", root.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logsDir", root.PersistentFlags().Lookup("logs-dir"))

	root.AddCommand(newRunCmd(), newHistoryCmd())
	return root
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a producer/consumer workload and verify delivery",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			bench := config.GetBenchConfig()
			a, err := newApp(ctx, channel.Kind(bench.Backend))
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.run(ctx, bench)
			if err != nil {
				return err
			}

			printResult(cmd.OutOrStdout(), res)
			if res.Violations() > 0 {
				return fmt.Errorf("%w: %d duplicates, %d out of order, %d lost",
					ErrViolations, res.Duplicates, res.OutOfOrder, res.Lost)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.String("backend", "", "channel backend: mpmc, buffered or unbuffered")
	f.Int("buffer-size", 0, "capacity of the buffered backend")
	f.Int("producers", 0, "number of producer goroutines")
	f.Int("consumers", 0, "number of consumer goroutines")
	f.Int("items", 0, "total number of items to send")
	f.Duration("sample-interval", 0, "how often progress is sampled")
	f.Duration("timeout", 0, "stop producing after this long")

	_ = viper.BindPFlag("bench.backend", f.Lookup("backend"))
	_ = viper.BindPFlag("bench.bufferSize", f.Lookup("buffer-size"))
	_ = viper.BindPFlag("bench.producers", f.Lookup("producers"))
	_ = viper.BindPFlag("bench.consumers", f.Lookup("consumers"))
	_ = viper.BindPFlag("bench.items", f.Lookup("items"))
	_ = viper.BindPFlag("bench.sampleInterval", f.Lookup("sample-interval"))
	_ = viper.BindPFlag("bench.timeout", f.Lookup("timeout"))

	return cmd
}

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs from the results database",
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := recentRuns(limit)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of runs to show")
	return cmd
}

func printResult(w io.Writer, r worker.Result) {
	fmt.Fprintf(w, "backend:      %s\n", r.Backend)
	fmt.Fprintf(w, "producers:    %d\n", r.Producers)
	fmt.Fprintf(w, "consumers:    %d\n", r.Consumers)
	fmt.Fprintf(w, "sent:         %d\n", r.Sent)
	fmt.Fprintf(w, "received:     %d\n", r.Received)
	fmt.Fprintf(w, "duration:     %s\n", r.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "throughput:   %.0f items/s\n", r.Throughput)
	fmt.Fprintf(w, "mean latency: %s\n", r.MeanLatency)
	fmt.Fprintf(w, "violations:   %d\n", r.Violations())
	if r.Cancelled {
		fmt.Fprintln(w, "cancelled:    true")
	}
}

func printHistory(w io.Writer, runs []model.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return
	}
	for _, r := range runs {
		fmt.Fprintf(w, "#%d %s %-10s p=%d c=%d items=%d %.0f items/s violations=%d samples=%d\n",
			r.ID,
			r.StartedAt.Format(time.RFC3339),
			r.Backend,
			r.Producers,
			r.Consumers,
			r.Items,
			r.Throughput,
			r.Violations(),
			len(r.Samples),
		)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
