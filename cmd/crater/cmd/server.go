package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codeready-toolchain/crater/pkg/api"
	"github.com/codeready-toolchain/crater/pkg/config"
	"github.com/codeready-toolchain/crater/pkg/corpus"
	"github.com/codeready-toolchain/crater/pkg/crerr"
	"github.com/codeready-toolchain/crater/pkg/experiment"
	"github.com/codeready-toolchain/crater/pkg/store"
)

var (
	serverAddr     string
	corpusFilePath string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the Crater server: experiment registry, agent dispatch, and operator API",
	RunE:  runServer,
}

func init() {
	serverCmd.Flags().StringVar(&serverAddr, "addr", envOr("CRATER_ADDR", ":8080"), "HTTP listen address")
	serverCmd.Flags().StringVar(&corpusFilePath, "corpus", envOr("CRATER_CORPUS_FILE", "./corpus.json"), "path to the corpus-discovery pipeline's package list")
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	dbCfg, err := store.ConfigFromEnv()
	if err != nil {
		return crerr.NewConfigError("database", err.Error())
	}
	st, err := store.Open(ctx, dbCfg)
	if err != nil {
		return crerr.Wrap(err)
	}
	defer st.Close()

	pkgCorpus, err := corpus.Load(corpusFilePath)
	if err != nil {
		return crerr.NewConfigError("corpus", err.Error())
	}
	if err := cfg.Validate(pkgCorpus.KnownPackages()); err != nil {
		return crerr.NewConfigError("overrides", err.Error())
	}

	boundCorpus := pkgCorpus.Bind(cfg)
	registry := experiment.New(st, boundCorpus)
	reporter := experiment.NewReporter(st, cfg)
	srv := api.NewServer(cfg, registry, reporter, st, st, boundCorpus)
	srv.SetHealthCheck(func(ctx context.Context) error {
		status, err := st.Health(ctx)
		if err != nil {
			return err
		}
		if status.Status != "healthy" {
			return fmt.Errorf("store unhealthy")
		}
		return nil
	})

	queueCfg := config.DefaultQueueConfig()
	sweepStaleAgents(ctx, st, queueCfg) // startup orphan cleanup, §4.9
	go staleAgentSweepLoop(ctx, st, queueCfg)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("crater server listening", "addr", serverAddr)
		if err := srv.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return crerr.Wrap(err)
	case <-sigCh:
		slog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// staleAgentSweepLoop periodically sweeps agents whose heartbeat has
// lapsed past the stale threshold, returning every experiment still
// assigned to them to queued (§4.9). It runs at the configured heartbeat
// cadence until ctx is cancelled.
func staleAgentSweepLoop(ctx context.Context, st *store.Store, queueCfg config.QueueConfig) {
	ticker := time.NewTicker(queueCfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepStaleAgents(ctx, st, queueCfg)
		}
	}
}

// sweepStaleAgents reclaims work from agents that have missed
// queueCfg.StaleAgentThreshold's worth of heartbeats, returning each
// affected experiment to queued while retaining the job outcomes already
// recorded (§4.9 "server marks assignment stale ... returns the experiment
// to queued with partial results retained"). Failures are logged; a stuck
// agent or experiment is picked up again on the next sweep.
func sweepStaleAgents(ctx context.Context, st *store.Store, queueCfg config.QueueConfig) {
	stale, err := st.StaleAgents(ctx, queueCfg.StaleAgentThreshold)
	if err != nil {
		slog.Error("stale-agent sweep failed", "error", err)
		return
	}
	for _, agent := range stale {
		exps, err := st.ExperimentsAssignedTo(ctx, agent.Name)
		if err != nil {
			slog.Error("stale-agent lookup failed", "agent", agent.Name, "error", err)
			continue
		}
		for _, exp := range exps {
			if err := st.Requeue(ctx, exp.Name); err != nil {
				slog.Error("stale-agent requeue failed", "agent", agent.Name, "experiment", exp.Name, "error", err)
				continue
			}
			slog.Info("requeued experiment from stale agent", "agent", agent.Name, "experiment", exp.Name)
		}
	}
}
