package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HandyGuySoftware/dupReport-sub000/internal/config"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/logging"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/runner"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/runner/tasks"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/store"
	"github.com/HandyGuySoftware/dupReport-sub000/internal/version"
)

var configFlag string

var rootCmd = &cobra.Command{
	Use:   "dupingest",
	Short: "Collect backup job reports from mail servers",
	Long: `dupingest reads backup job report emails from IMAP and POP3 mailboxes,
extracts the job statistics and stores one record per job run.`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Poll every inbound server once",
	RunE:  runCollect,
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Poll inbound servers on the configured cron schedule",
	Long: `schedule keeps running and collects on schedule.cron. A run still in
progress makes the next tick a no-op. Inbound server changes in the config
file apply from the next run.`,
	RunE: runSchedule,
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List stored job records, newest first",
	RunE:  runJobs,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "dupingest", version.Full())
	},
}

var (
	sourceFlag      string
	destinationFlag string
	sinceFlag       time.Duration
	limitFlag       int
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "config file (default dupreport.yaml in . or /etc/dupreport)")

	jobsCmd.Flags().StringVar(&sourceFlag, "source", "", "only jobs of this source")
	jobsCmd.Flags().StringVar(&destinationFlag, "destination", "", "only jobs of this destination")
	jobsCmd.Flags().DurationVar(&sinceFlag, "since", 0, "only jobs that ended within this duration")
	jobsCmd.Flags().IntVar(&limitFlag, "limit", 50, "maximum number of jobs")

	rootCmd.AddCommand(collectCmd, scheduleCmd, jobsCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger.
func setup() (*config.Loader, *zap.Logger, error) {
	loader, err := config.NewLoader(configFlag, nil)
	if err != nil {
		return nil, nil, err
	}
	cfg := loader.Get()
	logger, err := logging.New(cfg.App, cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range cfg.Warnings() {
		logger.Warn("config", zap.String("warning", w))
	}
	return loader, logger, nil
}

func runCollect(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	a, err := newApp(ctx, loader, logger)
	if err != nil {
		return err
	}
	defer a.close()

	reg, err := a.tasks()
	if err != nil {
		return err
	}
	r := runner.NewRunner(reg, runner.WithLogger(logger.Named("runner")), runner.WithSignals())
	err = r.RunOnce(ctx, tasks.CollectTaskName)

	task, _ := reg.Get(tasks.CollectTaskName)
	if summary, ok := task.(*tasks.CollectTask).Last(); ok {
		fmt.Fprintln(cmd.OutOrStdout(), summary.String())
	}
	return err
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	a, err := newApp(ctx, loader, logger)
	if err != nil {
		return err
	}
	defer a.close()

	loader.Watch(func(cfg *config.Config) {
		logger.Info("inbound servers updated", zap.Int("servers", len(cfg.Inbound)))
	})
	a.serveMetrics(ctx, loader.Get().Metrics)

	reg, err := a.tasks()
	if err != nil {
		return err
	}
	err = runner.NewRunner(reg, runner.WithLogger(logger.Named("runner")), runner.WithSignals()).Start(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runJobs(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	loader, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	st, err := store.OpenConfig(ctx, loader.Get().Database, store.WithLogger(logger.Named("store")))
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	q := store.JobQuery{Source: sourceFlag, Destination: destinationFlag, Limit: limitFlag}
	if sinceFlag > 0 {
		q.Since = time.Now().Add(-sinceFlag)
	}
	jobs, err := st.ListJobRecords(ctx, q)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tDESTINATION\tEND\tRESULT\tEXAMINED\tADDED\tDURATION")
	for _, j := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			j.Source, j.Destination, j.EndTime.Local().Format("2006-01-02 15:04:05"),
			j.ParsedResult, j.ExaminedFiles, j.AddedFiles, j.Duration)
	}
	return w.Flush()
}
