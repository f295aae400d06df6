package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/interop/jobgather/internal/bootstrap"
	"github.com/interop/jobgather/internal/domain/model"
	"github.com/interop/jobgather/internal/service"
)

type jobShowOptions struct {
	JobID   string
	RawJSON bool
}

func parseJobShowFlags(args []string) (jobShowOptions, error) {
	fs := flag.NewFlagSet("job-show", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts jobShowOptions
	fs.BoolVar(&opts.RawJSON, "json", false, "Print the stored job as JSON")
	if err := fs.Parse(args); err != nil {
		return jobShowOptions{}, err
	}
	opts.JobID = strings.TrimSpace(fs.Arg(0))
	if opts.JobID == "" {
		return jobShowOptions{}, errors.New("usage: job-show [-json] <job-id>")
	}
	return opts, nil
}

func runJobShow(cmdCtx *commandContext, args []string) error {
	opts, err := parseJobShowFlags(args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, serviceOptions{Timeout: defaultCommandTimeout},
		func(ctx context.Context, svc *bootstrap.ServiceContainer) error {
			job, getErr := svc.Jobs.Get(ctx, opts.JobID)
			if getErr != nil {
				return fmt.Errorf("get job %s: %w", opts.JobID, getErr)
			}
			if opts.RawJSON {
				enc := json.NewEncoder(cmdCtx.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(job)
			}
			return printJob(cmdCtx.Stdout, job)
		})
}

func printJob(out io.Writer, job *model.Job) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	total := "unknown"
	if job.HasTotal() {
		total = fmt.Sprintf("%d", job.Total)
	}
	rows := [][2]string{
		{"Job ID", job.ID},
		{"Owner", job.OwnerID},
		{"Status", string(job.Status)},
		{"Successful", fmt.Sprintf("%d", job.Successful)},
		{"Failed", fmt.Sprintf("%d", job.Failed)},
		{"Total", total},
		{"Version", fmt.Sprintf("%d", job.Version)},
		{"Created", job.CreatedAt.Format(time.RFC3339)},
	}
	if job.FinishedAt != nil {
		rows = append(rows, [2]string{"Finished", job.FinishedAt.Format(time.RFC3339)})
	}
	if job.Reason != nil {
		rows = append(rows, [2]string{"Reason", *job.Reason})
	}
	if snap := job.Progress(); snap.Done() && !job.Status.Terminal() {
		rows = append(rows, [2]string{"Note", "counters reached total; run job-reconcile to complete"})
	}
	for _, r := range rows {
		if err := writef(w, "%s:\t%s\n", r[0], r[1]); err != nil {
			return fmt.Errorf("write job row: %w", err)
		}
	}
	return w.Flush()
}

func runJobReconcile(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("job-reconcile", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	timeout := fs.Duration("timeout", defaultCommandTimeout, "Maximum duration of the command")
	if err := fs.Parse(args); err != nil {
		return err
	}
	jobID := strings.TrimSpace(fs.Arg(0))
	if jobID == "" {
		return errors.New("usage: job-reconcile [-timeout d] <job-id>")
	}

	return withServices(cmdCtx, serviceOptions{Timeout: *timeout},
		func(ctx context.Context, svc *bootstrap.ServiceContainer) error {
			decision, err := svc.Coordinator.Reconcile(ctx, jobID)
			if err != nil {
				return fmt.Errorf("reconcile %s: %w", jobID, err)
			}
			return writef(cmdCtx.Stdout, "job %s: %s\n", jobID, decision)
		})
}

func runReconcileSweep(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("reconcile-sweep", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	timeout := fs.Duration("timeout", 10*time.Minute, "Maximum duration of the sweep")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withServices(cmdCtx, serviceOptions{Timeout: *timeout},
		func(ctx context.Context, svc *bootstrap.ServiceContainer) error {
			stats, err := svc.Reconciler.RunOnce(ctx)
			if printErr := printReconcileStats(cmdCtx.Stdout, stats); printErr != nil {
				return errors.Join(err, printErr)
			}
			return err
		})
}

func printReconcileStats(out io.Writer, stats service.ReconcileStats) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if err := writeln(w, "Metric\tValue"); err != nil {
		return err
	}
	for _, row := range []struct {
		name  string
		value int
	}{
		{"Scanned", stats.Scanned},
		{"Completed", stats.Completed},
		{"Stale", stats.Stale},
		{"Errors", stats.Errors},
	} {
		if err := writef(w, "%s\t%d\n", row.name, row.value); err != nil {
			return err
		}
	}
	return w.Flush()
}

type awaitOptions struct {
	CorrelationID string
	Expected      int
	Timeout       time.Duration
	Interval      time.Duration
}

func parseAwaitFlags(args []string) (awaitOptions, error) {
	fs := flag.NewFlagSet("await-results", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts awaitOptions
	fs.IntVar(&opts.Expected, "expected", 0, "Number of distinct results to wait for")
	fs.DurationVar(&opts.Timeout, "timeout", 0, "Overall wait (defaults to POLLER_TIMEOUT)")
	fs.DurationVar(&opts.Interval, "interval", 0, "Poll interval (defaults to POLLER_INTERVAL)")
	if err := fs.Parse(args); err != nil {
		return awaitOptions{}, err
	}
	opts.CorrelationID = strings.TrimSpace(fs.Arg(0))
	if opts.CorrelationID == "" {
		return awaitOptions{}, errors.New("usage: await-results -expected n [-timeout d] <correlation-id>")
	}
	if opts.Expected < 1 {
		return awaitOptions{}, errors.New("--expected must be at least 1")
	}
	return opts, nil
}

func runAwaitResults(cmdCtx *commandContext, args []string) error {
	opts, err := parseAwaitFlags(args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, serviceOptions{},
		func(ctx context.Context, svc *bootstrap.ServiceContainer) error {
			res, awaitErr := svc.Poller.Await(ctx, service.AwaitRequest{
				CorrelationID: opts.CorrelationID,
				ExpectedCount: opts.Expected,
				Timeout:       opts.Timeout,
				PollInterval:  opts.Interval,
			})
			if printErr := printAwaitResult(cmdCtx.Stdout, opts, res); printErr != nil {
				return errors.Join(awaitErr, printErr)
			}
			return awaitErr
		})
}

func printAwaitResult(out io.Writer, opts awaitOptions, res service.AwaitResult) error {
	state := "complete"
	if !res.Complete {
		state = "timed out"
	}
	if err := writef(out, "%s: %d/%d results, %s after %d polls (%s)\n",
		opts.CorrelationID, len(res.Results), opts.Expected, state, res.Polls, res.Elapsed.Round(time.Millisecond),
	); err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if err := writeln(w, "Target\tChunk\tStatus\tCreated"); err != nil {
		return err
	}
	for _, r := range res.Results {
		if err := writef(w, "%s\t%s\t%s\t%s\n", r.TargetID, r.RequestChunkID, r.Status, r.CreatedAt.Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return w.Flush()
}
