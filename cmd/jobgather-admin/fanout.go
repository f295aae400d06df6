package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/interop/jobgather/config"
	"github.com/interop/jobgather/internal/adapters/eventbus"
	"github.com/interop/jobgather/internal/bootstrap"
	"github.com/interop/jobgather/internal/domain/fanout"
	"github.com/interop/jobgather/internal/domain/model"
	"github.com/interop/jobgather/internal/service"
)

// requestInput is the stdin document accepted by plan and gather.
type requestInput struct {
	RequestID string           `json:"request_id"`
	Target    *model.Target    `json:"target,omitempty"`
	Items     []model.WorkItem `json:"items"`
}

func decodeRequestInput(r io.Reader) (requestInput, error) {
	var in requestInput
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return requestInput{}, fmt.Errorf("decode request: %w", err)
	}
	if strings.TrimSpace(in.RequestID) == "" {
		return requestInput{}, errors.New("request_id is required")
	}
	return in, nil
}

type planOutput struct {
	ItemCount int                   `json:"item_count"`
	Targets   []string              `json:"targets"`
	Requests  []model.FanoutRequest `json:"requests"`
	Invalid   []model.InvalidItem   `json:"invalid,omitempty"`
}

// buildPlan plans in using the fan-out configuration only; nothing is dispatched.
func buildPlan(cfg config.FanoutConfig, in requestInput) (fanout.Plan, error) {
	capacity, err := fanout.NewCapacityPolicy(cfg.DefaultCapacity, cfg.CapacityOverrides)
	if err != nil {
		return fanout.Plan{}, fmt.Errorf("capacity policy: %w", err)
	}
	var targetOf fanout.TargetFunc
	if in.Target != nil {
		targetOf = fanout.StaticTarget(*in.Target)
	} else {
		resolver, resolveErr := fanout.NewJMESPathTargetResolver(cfg.TargetIDExpr, cfg.EndpointExpr, cfg.Endpoints)
		if resolveErr != nil {
			return fanout.Plan{}, fmt.Errorf("target resolver: %w", resolveErr)
		}
		targetOf = resolver.Resolve
	}
	return fanout.BuildPlan(in.RequestID, in.Items, targetOf, capacity.CapacityOf)
}

func runPlan(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return writePlan(cmdCtx.Stdout, cmdCtx.Stdin, cmdCtx.Config.Fanout)
}

func writePlan(out io.Writer, in io.Reader, cfg config.FanoutConfig) error {
	req, err := decodeRequestInput(in)
	if err != nil {
		return err
	}
	plan, err := buildPlan(cfg, req)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(planOutput{
		ItemCount: plan.ItemCount(),
		Targets:   plan.Targets(),
		Requests:  plan.Requests,
		Invalid:   plan.Invalid,
	})
}

type gatherOutput struct {
	Complete       bool                 `json:"complete"`
	Dispatched     int                  `json:"dispatched"`
	DispatchErrors []gatherDispatchErr  `json:"dispatch_errors,omitempty"`
	Invalid        []model.InvalidItem  `json:"invalid,omitempty"`
	Results        []model.ResultRecord `json:"results"`
}

type gatherDispatchErr struct {
	RequestChunkID string `json:"request_chunk_id"`
	TargetID       string `json:"target_id"`
	Error          string `json:"error"`
}

func runGather(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("gather", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	timeout := fs.Duration("timeout", 0, "Result wait (defaults to POLLER_TIMEOUT)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	in, err := decodeRequestInput(cmdCtx.Stdin)
	if err != nil {
		return err
	}

	return withServices(cmdCtx, serviceOptions{},
		func(ctx context.Context, svc *bootstrap.ServiceContainer) error {
			res, gatherErr := svc.Gather.ScatterGather(ctx, service.GatherRequest{
				RequestID: in.RequestID,
				Items:     in.Items,
				Target:    in.Target,
				Timeout:   *timeout,
			})
			if res == nil {
				return gatherErr
			}
			out := gatherOutput{
				Complete:   res.Complete,
				Dispatched: res.Dispatched,
				Invalid:    res.Plan.Invalid,
				Results:    res.Results,
			}
			for _, f := range res.DispatchErrors {
				out.DispatchErrors = append(out.DispatchErrors, gatherDispatchErr{
					RequestChunkID: f.RequestChunkID,
					TargetID:       f.TargetID,
					Error:          f.Err.Error(),
				})
			}
			enc := json.NewEncoder(cmdCtx.Stdout)
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(out); encErr != nil {
				return errors.Join(gatherErr, encErr)
			}
			return gatherErr
		})
}

type replayOptions struct {
	File     string
	Attempts int
	Timeout  time.Duration
}

func parseReplayFlags(args []string) (replayOptions, error) {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := replayOptions{}
	fs.StringVar(&opts.File, "file", "", "Read events from this file instead of stdin")
	fs.IntVar(&opts.Attempts, "attempts", 3, "Deliveries per event before it is dead-lettered")
	fs.DurationVar(&opts.Timeout, "timeout", 10*time.Minute, "Maximum duration of the replay")
	if err := fs.Parse(args); err != nil {
		return replayOptions{}, err
	}
	if opts.Attempts < 1 {
		return replayOptions{}, errors.New("--attempts must be at least 1")
	}
	return opts, nil
}

// replayStats summarises one replay.
type replayStats struct {
	Read        int
	Undecodable []int
	Dead        []eventbus.DeadLetter
}

// decodeEvents reads newline-delimited unit events. Blank lines are skipped and lines that
// do not decode are reported by line number.
func decodeEvents(r io.Reader, emit func(model.UnitEvent) error) (replayStats, error) {
	var stats replayStats
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var ev model.UnitEvent
		if err := json.Unmarshal([]byte(text), &ev); err != nil {
			stats.Undecodable = append(stats.Undecodable, line)
			continue
		}
		stats.Read++
		if err := emit(ev); err != nil {
			return stats, err
		}
	}
	return stats, sc.Err()
}

func runReplay(cmdCtx *commandContext, args []string) error {
	opts, err := parseReplayFlags(args)
	if err != nil {
		return err
	}
	src := cmdCtx.Stdin
	if opts.File != "" {
		f, openErr := os.Open(opts.File)
		if openErr != nil {
			return fmt.Errorf("open %s: %w", opts.File, openErr)
		}
		defer f.Close()
		src = f
	}

	bus := eventbus.NewMemoryBus(64, opts.Attempts, cmdCtx.Logger)
	return withServices(cmdCtx, serviceOptions{Timeout: opts.Timeout, Bus: bus},
		func(ctx context.Context, svc *bootstrap.ServiceContainer) error {
			stats, err := replay(ctx, bus, svc.Ingestor, src)
			if printErr := printReplayStats(cmdCtx.Stdout, stats); printErr != nil {
				return errors.Join(err, printErr)
			}
			return err
		})
}

// replay publishes every event to bus while ing consumes it, then drains the bus.
func replay(ctx context.Context, bus *eventbus.MemoryBus, ing *service.ResultIngestor, src io.Reader) (replayStats, error) {
	done := make(chan error, 1)
	go func() { done <- ing.Run(ctx) }()

	stats, readErr := decodeEvents(src, func(ev model.UnitEvent) error {
		return bus.Publish(ctx, ev)
	})
	bus.Close()
	runErr := <-done
	stats.Dead = bus.DeadLetters()
	return stats, errors.Join(readErr, runErr)
}

func printReplayStats(out io.Writer, stats replayStats) error {
	if err := writef(out, "replayed %d events, %d undecodable, %d dead-lettered\n",
		stats.Read, len(stats.Undecodable), len(stats.Dead)); err != nil {
		return err
	}
	for _, line := range stats.Undecodable {
		if err := writef(out, "  line %d: undecodable\n", line); err != nil {
			return err
		}
	}
	for _, d := range stats.Dead {
		key := d.Event.DedupKey()
		if err := writef(out, "  %s: %d attempts: %v\n", key, d.Attempts, d.Err); err != nil {
			return err
		}
	}
	return nil
}
