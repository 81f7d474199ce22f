package api

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/crater/pkg/config"
	"github.com/codeready-toolchain/crater/pkg/model"
)

// createExperimentRequest is the operator/bot payload for POST
// /ops/experiments, matching the command grammar named in §6 ("one command
// per line ... key=value arguments").
type createExperimentRequest struct {
	Name            string             `json:"name"`
	ToolchainA      model.ToolchainRef `json:"toolchain_a"`
	ToolchainB      model.ToolchainRef `json:"toolchain_b"`
	Mode            model.Mode         `json:"mode"`
	Crates          model.CrateSelection `json:"crates"`
	CapLints        model.LintCap      `json:"cap_lints"`
	IgnoreBlacklist bool               `json:"ignore_blacklist"`
	Requirement     []string           `json:"requirement"`
	Priority        int                `json:"priority"`
	Assign          string             `json:"assign,omitempty"`
	GitHubURL       string             `json:"github_url,omitempty"`
}

// createExperimentHandler handles POST /ops/experiments (§4.2, §6
// "create").
func (s *Server) createExperimentHandler(c *echo.Context) error {
	var req createExperimentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, failed(statusInternal, "malformed request body"))
	}
	identity, _ := c.Get(ctxIdentity).(string)

	exp := model.Experiment{
		Name:            req.Name,
		ToolchainA:      req.ToolchainA,
		ToolchainB:      req.ToolchainB,
		Mode:            req.Mode,
		Crates:          req.Crates,
		CapLints:        req.CapLints,
		IgnoreBlacklist: req.IgnoreBlacklist,
		Requirement:     req.Requirement,
		Priority:        req.Priority,
		Assign:          req.Assign,
		Requester:       identity,
		GitHubURL:       req.GitHubURL,
	}
	if err := s.registry.Create(c.Request().Context(), exp); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, ok(map[string]string{"name": exp.Name}))
}

// editExperimentRequest carries only the fields the command grammar allows
// editing (§3 invariant 3, §6).
type editExperimentRequest struct {
	ToolchainA *model.ToolchainRef   `json:"toolchain_a,omitempty"`
	ToolchainB *model.ToolchainRef   `json:"toolchain_b,omitempty"`
	Mode       *model.Mode           `json:"mode,omitempty"`
	Crates     *model.CrateSelection `json:"crates,omitempty"`
	CapLints   *model.LintCap        `json:"cap_lints,omitempty"`
	Priority   *int                  `json:"priority,omitempty"`
	Assign     *string               `json:"assign,omitempty"`
}

// editExperimentHandler handles PATCH /ops/experiments/:name, rejected
// unless the experiment is still queued (§3 invariant 3).
func (s *Server) editExperimentHandler(c *echo.Context) error {
	name := c.Param("name")
	var req editExperimentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, failed(statusInternal, "malformed request body"))
	}

	err := s.registry.Edit(c.Request().Context(), name, func(e *model.Experiment) {
		if req.ToolchainA != nil {
			e.ToolchainA = *req.ToolchainA
		}
		if req.ToolchainB != nil {
			e.ToolchainB = *req.ToolchainB
		}
		if req.Mode != nil {
			e.Mode = *req.Mode
		}
		if req.Crates != nil {
			e.Crates = *req.Crates
		}
		if req.CapLints != nil {
			e.CapLints = *req.CapLints
		}
		if req.Priority != nil {
			e.Priority = *req.Priority
		}
		if req.Assign != nil {
			e.Assign = *req.Assign
		}
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, ok(true))
}

// abortExperimentHandler handles POST /ops/experiments/:name/abort (§3
// "Lifecycle", §6 "abort").
func (s *Server) abortExperimentHandler(c *echo.Context) error {
	name := c.Param("name")
	if err := s.registry.Abort(c.Request().Context(), name); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, ok(true))
}

// experimentProgressHandler handles GET /ops/experiments/:name/progress,
// surfacing completed/total job counts for the bot collaborator's status
// command.
func (s *Server) experimentProgressHandler(c *echo.Context) error {
	name := c.Param("name")
	completed, total, err := s.registry.Progress(c.Request().Context(), name)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, ok(map[string]int{"completed": completed, "total": total}))
}

// reloadACLHandler handles POST /ops/acl/reload (§4.8 "reload-acl").
// It re-reads the configuration document and swaps in the new ACL without
// disturbing the rest of the configuration snapshot.
func (s *Server) reloadACLHandler(c *echo.Context) error {
	reloaded, err := config.Load(s.cfg.ConfigPath())
	if err != nil {
		return writeError(c, err)
	}
	s.cfg.ReloadACL(reloaded.ACL())
	return c.JSON(http.StatusOK, ok(true))
}

// registerAgentRequest carries the capability set for a new agent record
// (§3 "Agent record").
type registerAgentRequest struct {
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
}

// registerAgentHandler handles POST /ops/agents: it mints a high-entropy
// token, stores only its digest (§6 token.go), and returns the plaintext
// token once. The operator is responsible for delivering it to the agent
// out of band; the server never stores or logs the plaintext.
func (s *Server) registerAgentHandler(c *echo.Context) error {
	var req registerAgentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, failed(statusInternal, "malformed request body"))
	}

	token, err := generateToken()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, failed(statusInternal, "token generation failed"))
	}

	if err := s.agents.RegisterAgent(c.Request().Context(), req.Name, hashToken(token), req.Capabilities); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, ok(map[string]string{"name": req.Name, "token": token}))
}

// retryReportHandler handles POST /ops/experiments/:name/retry-report (§6),
// re-entering report generation for an experiment stuck in report-failed
// (or re-running it idempotently from needs-report if the automatic trigger
// never fired).
func (s *Server) retryReportHandler(c *echo.Context) error {
	name := c.Param("name")
	results, err := s.reporter.Generate(c.Request().Context(), name)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, ok(results))
}

// generateToken produces a 256-bit random token, hex-encoded (§6 "token
// generated server-side with high entropy").
func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
