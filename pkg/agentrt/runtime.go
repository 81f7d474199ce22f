package agentrt

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codeready-toolchain/crater/pkg/config"
	"github.com/codeready-toolchain/crater/pkg/crerr"
	"github.com/codeready-toolchain/crater/pkg/job"
	"github.com/codeready-toolchain/crater/pkg/model"
	"github.com/codeready-toolchain/crater/pkg/sandbox"
)

// Options configures a Runtime (§4.5, §6 env vars, `--threads` CLI flag).
type Options struct {
	Threads         int           // worker pool size
	PollInterval    time.Duration // base backoff when the queue is empty
	HeartbeatPeriod time.Duration // default 60s per §6
	BatchSize       int           // progress records flushed per RecordProgress call
}

// DefaultOptions returns the runtime defaults named in §6, sharing its
// poll/heartbeat cadence with the server-side config.DefaultQueueConfig.
func DefaultOptions() Options {
	q := config.DefaultQueueConfig()
	return Options{
		Threads:         4,
		PollInterval:    q.PollInterval,
		HeartbeatPeriod: q.HeartbeatInterval,
		BatchSize:       10,
	}
}

// Runtime is the cooperative agent worker described in §4.5: it polls for
// an experiment, fans its jobs out across a bounded worker pool, and
// reports outcomes back to the server, all while a heartbeat runs on an
// independent timer.
type Runtime struct {
	client    Client
	executor  *sandbox.Executor
	opts      Options
	log       *slog.Logger
	rng       *rand.Rand
}

// New builds a Runtime. executor already wraps the workspace collaborator
// and sandbox caps (§4.4); the runtime itself only sequences polling,
// dispatch, and reporting.
func New(client Client, executor *sandbox.Executor, opts Options) *Runtime {
	return &Runtime{
		client:   client,
		executor: executor,
		opts:     opts,
		log:      slog.With("component", "agentrt"),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run fetches the server configuration once, starts the heartbeat timer,
// and loops polling and executing experiments until ctx is cancelled
// (§4.5).
func (r *Runtime) Run(ctx context.Context) error {
	cfg, err := r.client.Config(ctx)
	if err != nil {
		return err
	}

	hbCtx, cancelHB := context.WithCancel(ctx)
	defer cancelHB()
	go r.runHeartbeat(hbCtx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := r.pollAndRun(ctx, cfg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.log.Error("experiment cycle failed", "error", err)
			r.sleep(ctx, time.Second)
		}
	}
}

// runHeartbeat posts a liveness signal every HeartbeatPeriod on its own
// timer, independent of the poll loop (§4.5 "on a separate timer", §5
// "independent thread").
func (r *Runtime) runHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(r.opts.HeartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.client.Heartbeat(ctx); err != nil {
				r.log.Warn("heartbeat failed", "error", err)
			}
		}
	}
}

// pollAndRun claims the next experiment, runs it to completion (or until
// the server reports it aborted), and returns. A nil descriptor with no
// error means the queue had nothing eligible; the caller backs off.
func (r *Runtime) pollAndRun(ctx context.Context, cfg *config.Config) error {
	desc, err := r.client.NextExperiment(ctx)
	if err != nil {
		return err
	}
	if desc == nil {
		r.sleep(ctx, r.jitteredPoll())
		return nil
	}

	log := r.log.With("experiment", desc.Name)
	log.Info("claimed experiment")

	exp := model.Experiment{
		Name:       desc.Name,
		ToolchainA: desc.Toolchains[0],
		ToolchainB: desc.Toolchains[1],
		Mode:       desc.Mode,
		CapLints:   desc.CapLints,
	}
	plans := job.Build(exp, desc.Crates, cfg)

	return r.runPlans(ctx, exp, plans, log)
}

// runPlans executes every planned job across a bounded worker pool and
// flushes results to the server in batches, dropping the experiment the
// moment the server reports it aborted (§4.5, §5 "in-flight sandboxes
// receive SIGTERM").
func (r *Runtime) runPlans(ctx context.Context, exp model.Experiment, plans []job.Plan, log *slog.Logger) error {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(jobCtx)
	g.SetLimit(r.opts.Threads)

	var (
		mu      sync.Mutex
		pending []ProgressResult
		dropped bool
	)

	flush := func() error {
		mu.Lock()
		batch := pending
		pending = nil
		mu.Unlock()
		if len(batch) == 0 {
			return nil
		}
		if err := r.client.RecordProgress(ctx, exp.Name, batch); err != nil {
			if errIsNotFound(err) {
				mu.Lock()
				dropped = true
				mu.Unlock()
				cancel()
				return nil
			}
			return err
		}
		return nil
	}

	for _, p := range plans {
		p := p
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return nil
			default:
			}

			runTests := job.RunsTests(exp, p)
			result := r.executor.Run(gctx, p.Package, p.Toolchain, exp, runTests, p.Override)

			mu.Lock()
			pending = append(pending, ProgressResult{
				Crate:     p.Package,
				Toolchain: p.Toolchain,
				Result:    result.Outcome,
				Log:       encodeLog(result.Log),
			})
			shouldFlush := len(pending) >= r.opts.BatchSize
			mu.Unlock()

			if shouldFlush {
				return flush()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		_ = r.client.ReportError(ctx, exp.Name, err.Error())
		return err
	}
	if err := flush(); err != nil {
		_ = r.client.ReportError(ctx, exp.Name, err.Error())
		return err
	}
	if dropped {
		log.Info("experiment aborted by server, dropping")
	}
	return nil
}

func errIsNotFound(err error) bool {
	return errors.Is(err, crerr.ErrNotFound)
}

// sleep waits for d or until ctx is cancelled.
func (r *Runtime) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// jitteredPoll adds up to PollInterval of jitter to the base poll backoff
// (§5 "network sleep with jitter").
func (r *Runtime) jitteredPoll() time.Duration {
	jitter := time.Duration(r.rng.Int63n(int64(r.opts.PollInterval)))
	return r.opts.PollInterval + jitter
}
