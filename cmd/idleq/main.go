package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"idleq/internal/config"
	"idleq/internal/job"
	"idleq/internal/logging"
	"idleq/internal/metric"
	"idleq/internal/outputs"
	"idleq/internal/sched"
	"idleq/internal/sim"
)

var version = "0.1.0"

var (
	configPath  string
	tasks       int
	minTask     time.Duration
	maxTask     time.Duration
	minTaskTime time.Duration
	work        string
	seed        int64
	hideAfter   time.Duration
	showAfter   time.Duration
	unloadAfter time.Duration
	timeout     time.Duration
	serve       bool
)

var rootCmd = &cobra.Command{
	Use:     "idleq",
	Short:   "Idle-until-urgent task queue playground",
	Version: version,
	Long: `idleq runs deferred work in a simulated page's idle periods, and makes
sure it still runs when the page is hidden or about to unload.

The simulate command loads a page, queues busy work, optionally hides or
closes the tab, and reports how the queue coped.`,
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run one simulated page session",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Read the configuration
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err := logging.New(os.Stderr, cfg.Logging)
		if err != nil {
			return err
		}

		prom, err := outputs.NewPrometheusOutput(&cfg.Prometheus, logger)
		if err != nil {
			return err
		}
		defer prom.Close()
		prom.Start()

		es, err := outputs.NewElasticsearchOutput(&cfg.Elasticsearch, logger)
		if err != nil {
			return err
		}
		defer es.Close()

		logs := outputs.NewLogObserver(logger)
		observer := sched.Observers{logs}
		tracker := metric.Trackers{logs}
		if prom != nil {
			observer = append(observer, prom)
			tracker = append(tracker, prom)
		}
		if es != nil {
			tracker = append(tracker, es)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		res, err := sim.Run(ctx, cfg, sim.Options{
			Tasks:       tasks,
			MinTask:     minTask,
			MaxTask:     maxTask,
			MinTaskTime: minTaskTime,
			Work:        work,
			Seed:        seed,
			HideAfter:   hideAfter,
			ShowAfter:   showAfter,
			UnloadAfter: unloadAfter,
			Timeout:     timeout,
		}, logger, observer, tracker)

		logger.Info().
			Str("session", res.ID).
			Int("ran", res.Ran).
			Int("panicked", res.Panicked).
			Int("yields", res.Yields).
			Int("forced", res.Forced).
			Str("visibility", string(res.Visibility)).
			Dur("elapsed", res.Elapsed).
			Log("simulation finished")
		if err != nil {
			return err
		}

		if serve && prom != nil {
			logger.Info().Log("serving metrics until interrupted")
			<-ctx.Done()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yml", "Path to the YAML config file")

	simulateCmd.Flags().IntVar(&tasks, "tasks", 50, "Number of tasks queued at page load")
	simulateCmd.Flags().DurationVar(&minTask, "min-task", time.Millisecond, "Shortest task")
	simulateCmd.Flags().DurationVar(&maxTask, "max-task", 8*time.Millisecond, "Longest task")
	simulateCmd.Flags().DurationVar(&minTaskTime, "min-task-time", 0, "Idle time reserved per task, 0 uses the queue default")
	simulateCmd.Flags().StringVar(&work, "work", job.KindSpin, "Kind of work per task: spin (busy CPU) or sleep (blocked thread)")
	simulateCmd.Flags().Int64Var(&seed, "seed", 1, "Seed for task lengths and synthetic page entries")
	simulateCmd.Flags().DurationVar(&hideAfter, "hide-after", 0, "Hide the tab after this long, 0 keeps it visible")
	simulateCmd.Flags().DurationVar(&showAfter, "show-after", 0, "Bring the tab back after this long, 0 leaves it hidden")
	simulateCmd.Flags().DurationVar(&unloadAfter, "unload-after", 0, "Close the tab after this long, 0 never closes it")
	simulateCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Give up if the queue has not drained by then")
	simulateCmd.Flags().BoolVar(&serve, "serve", false, "Keep serving Prometheus metrics after the session")

	rootCmd.AddCommand(simulateCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
