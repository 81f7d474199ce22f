package api

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/crater/pkg/crerr"
	"github.com/codeready-toolchain/crater/pkg/job"
	"github.com/codeready-toolchain/crater/pkg/model"
)

func isNotFound(err error) bool {
	return errors.Is(err, crerr.ErrNotFound)
}

// agentConfigHandler handles GET /agent-api/config (§6 "GET /config →
// {agent-name, crater-config}").
func (s *Server) agentConfigHandler(c *echo.Context) error {
	name, _ := c.Get(ctxAgentName).(string)
	return c.JSON(http.StatusOK, ok(map[string]any{
		"agent-name":    name,
		"crater-config": s.cfg,
	}))
}

// experimentDescriptor is the wire shape handed to agents for
// GET /next-experiment (§6).
type experimentDescriptor struct {
	Name        string                  `json:"name"`
	Crates      []model.PackageRef      `json:"crates"`
	Toolchains  [2]model.ToolchainRef   `json:"toolchains"`
	Mode        model.Mode              `json:"mode"`
	CapLints    model.LintCap           `json:"cap-lints"`
	Requirement []string                `json:"requirement"`
}

// nextExperimentHandler handles GET /agent-api/next-experiment, claiming
// the next eligible queued experiment for the calling agent, or returning
// null if none match (§6).
func (s *Server) nextExperimentHandler(c *echo.Context) error {
	name, _ := c.Get(ctxAgentName).(string)
	agentRecord, err := s.agents.GetAgent(c.Request().Context(), name)
	if err != nil {
		return writeError(c, err)
	}

	exp, err := s.registry.Claim(c.Request().Context(), name, agentRecord.Capabilities)
	if err != nil {
		if isNotFound(err) {
			return c.JSON(http.StatusOK, ok(nil))
		}
		return writeError(c, err)
	}

	// The job set was already planned at experiment-creation time
	// (experiment.Registry.Create, §4.2 "computes the full job set
	// eagerly"); crates here is only recomputed to describe the plan to
	// the agent, not to materialize rows.
	crates := job.Resolve(exp.Crates, s.corpus, nil)
	desc := experimentDescriptor{
		Name:        exp.Name,
		Crates:      crates,
		Toolchains:  [2]model.ToolchainRef{exp.ToolchainA, exp.ToolchainB},
		Mode:        exp.Mode,
		CapLints:    exp.CapLints,
		Requirement: exp.Requirement,
	}

	return c.JSON(http.StatusOK, ok(desc))
}

// progressResult is a single reported (package, toolchain) outcome in a
// record-progress batch (§6).
type progressResult struct {
	Crate     model.PackageRef   `json:"crate"`
	Toolchain model.ToolchainRef `json:"toolchain"`
	Result    model.Outcome      `json:"result"`
	Log       string             `json:"log"` // base64
}

type recordProgressRequest struct {
	ExperimentName string            `json:"experiment-name"`
	Results        []progressResult  `json:"results"`
}

// recordProgressHandler handles POST /agent-api/record-progress (§6).
// Identical re-submissions of an already-recorded outcome succeed
// idempotently; a mismatched re-submission surfaces as internal-error
// (§5 "last-writer-wins is forbidden").
func (s *Server) recordProgressHandler(c *echo.Context) error {
	var req recordProgressRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, failed(statusInternal, "malformed request body"))
	}

	ctx := c.Request().Context()
	for _, r := range req.Results {
		logBytes, err := base64.StdEncoding.DecodeString(r.Log)
		if err != nil {
			return c.JSON(http.StatusBadRequest, failed(statusInternal, "malformed log encoding"))
		}
		err = s.jobs.RecordOutcome(ctx, req.ExperimentName, r.Crate, r.Toolchain, r.Result, logBytes, false)
		if err != nil {
			return writeError(c, err)
		}
	}

	s.checkAndTriggerReport(ctx, req.ExperimentName)
	return c.JSON(http.StatusOK, ok(true))
}

// checkAndTriggerReport implements the §2 data-flow step "on last job,
// server marks experiment complete and triggers report generation": once
// CheckCompletion's compare-and-set observes every planned job has a
// recorded outcome, it runs the comparator synchronously and advances the
// experiment to completed (or report-failed). Failures are logged rather
// than surfaced to the reporting agent, whose own record-progress call
// already succeeded; an operator can retry via POST
// /ops/experiments/:name/retry-report.
func (s *Server) checkAndTriggerReport(ctx context.Context, name string) {
	applied, err := s.registry.CheckCompletion(ctx, name)
	if err != nil {
		slog.Error("completion check failed", "experiment", name, "error", err)
		return
	}
	if !applied {
		return
	}
	if _, err := s.reporter.Generate(ctx, name); err != nil {
		slog.Error("report generation failed", "experiment", name, "error", err)
	}
}

// heartbeatHandler handles POST /agent-api/heartbeat (§6, expected cadence
// 60s, stale past 120s).
func (s *Server) heartbeatHandler(c *echo.Context) error {
	name, _ := c.Get(ctxAgentName).(string)
	if err := s.agents.Heartbeat(c.Request().Context(), name, ""); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, ok(true))
}

type agentErrorRequest struct {
	ExperimentName string `json:"experiment-name"`
	Error          string `json:"error"`
}

// agentErrorHandler handles POST /agent-api/error, logging an
// infrastructure-level failure the agent could not recover from locally
// (§4.5 "on infrastructure error, POST /error and continue").
func (s *Server) agentErrorHandler(c *echo.Context) error {
	var req agentErrorRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, failed(statusInternal, "malformed request body"))
	}
	name, _ := c.Get(ctxAgentName).(string)
	slog.Error("agent reported infrastructure error", "agent", name, "experiment", req.ExperimentName, "error", req.Error)
	return c.JSON(http.StatusOK, ok(true))
}
