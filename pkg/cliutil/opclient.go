package cliutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/codeready-toolchain/crater/pkg/crerr"
	"github.com/codeready-toolchain/crater/pkg/model"
)

// OpClient is the operator-side HTTP client over the server's /ops/
// endpoints (§6 "Operator/bot endpoints"), mirroring agentrt.HTTPClient's
// request/envelope handling but authenticating as an operator identity
// rather than an agent.
type OpClient struct {
	BaseURL  string
	Identity string
	http     *http.Client
}

// NewOpClient builds an OpClient that identifies itself via the
// X-Forwarded-User header the server's operatorAuth middleware expects.
func NewOpClient(baseURL, identity string) *OpClient {
	return &OpClient{BaseURL: baseURL, Identity: identity, http: &http.Client{Timeout: 30 * time.Second}}
}

type envelope struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func (c *OpClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Forwarded-User", c.Identity)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return crerr.Wrap(fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return crerr.Wrap(fmt.Errorf("decode envelope from %s: %w", path, err))
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden:
		return crerr.ErrAuth
	case http.StatusNotFound:
		return crerr.ErrNotFound
	case http.StatusBadRequest:
		return crerr.NewConfigError("request", env.Error)
	default:
		return crerr.Wrap(fmt.Errorf("%s %s: %s", method, path, env.Error))
	}

	if out != nil && env.Result != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("decode result from %s: %w", path, err)
		}
	}
	return nil
}

// CreateExperimentRequest mirrors the server's createExperimentRequest
// wire shape (§6 "create").
type CreateExperimentRequest struct {
	Name            string               `json:"name"`
	ToolchainA      model.ToolchainRef   `json:"toolchain_a"`
	ToolchainB      model.ToolchainRef   `json:"toolchain_b"`
	Mode            model.Mode           `json:"mode"`
	Crates          model.CrateSelection `json:"crates"`
	CapLints        model.LintCap        `json:"cap_lints"`
	IgnoreBlacklist bool                 `json:"ignore_blacklist"`
	Requirement     []string             `json:"requirement"`
	Priority        int                  `json:"priority"`
	Assign          string               `json:"assign,omitempty"`
	GitHubURL       string               `json:"github_url,omitempty"`
}

// CreateExperiment issues POST /ops/experiments.
func (c *OpClient) CreateExperiment(ctx context.Context, req CreateExperimentRequest) error {
	return c.do(ctx, http.MethodPost, "/ops/experiments", req, nil)
}

// EditExperimentRequest mirrors the server's editExperimentRequest wire
// shape (§6 "edit (queued only)").
type EditExperimentRequest struct {
	ToolchainA *model.ToolchainRef   `json:"toolchain_a,omitempty"`
	ToolchainB *model.ToolchainRef   `json:"toolchain_b,omitempty"`
	Mode       *model.Mode           `json:"mode,omitempty"`
	Crates     *model.CrateSelection `json:"crates,omitempty"`
	CapLints   *model.LintCap        `json:"cap_lints,omitempty"`
	Priority   *int                  `json:"priority,omitempty"`
	Assign     *string               `json:"assign,omitempty"`
}

// EditExperiment issues PATCH /ops/experiments/:name.
func (c *OpClient) EditExperiment(ctx context.Context, name string, req EditExperimentRequest) error {
	return c.do(ctx, http.MethodPatch, "/ops/experiments/"+name, req, nil)
}

// AbortExperiment issues POST /ops/experiments/:name/abort.
func (c *OpClient) AbortExperiment(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, "/ops/experiments/"+name+"/abort", nil, nil)
}

// Progress issues GET /ops/experiments/:name/progress.
func (c *OpClient) Progress(ctx context.Context, name string) (completed, total int, err error) {
	var result struct {
		Completed int `json:"completed"`
		Total     int `json:"total"`
	}
	if err := c.do(ctx, http.MethodGet, "/ops/experiments/"+name+"/progress", nil, &result); err != nil {
		return 0, 0, err
	}
	return result.Completed, result.Total, nil
}

// ReloadACL issues POST /ops/acl/reload.
func (c *OpClient) ReloadACL(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/ops/acl/reload", nil, nil)
}

// RetryReport issues POST /ops/experiments/:name/retry-report, re-entering
// report generation for an experiment stuck in report-failed (§6).
func (c *OpClient) RetryReport(ctx context.Context, name string) ([]model.CrateResult, error) {
	var results []model.CrateResult
	if err := c.do(ctx, http.MethodPost, "/ops/experiments/"+name+"/retry-report", nil, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// RegisterAgent issues POST /ops/agents, returning the newly minted
// plaintext token. The caller is responsible for delivering it to the
// agent out of band; it is never recoverable afterward.
func (c *OpClient) RegisterAgent(ctx context.Context, name string, capabilities []string) (token string, err error) {
	req := struct {
		Name         string   `json:"name"`
		Capabilities []string `json:"capabilities"`
	}{Name: name, Capabilities: capabilities}

	var result struct {
		Name  string `json:"name"`
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/ops/agents", req, &result); err != nil {
		return "", err
	}
	return result.Token, nil
}
