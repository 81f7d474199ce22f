// Package agentrt is the agent-side runtime: the cooperative worker that
// polls the server for experiments, runs their jobs through a sandbox
// executor, and reports progress back (§4.5). It is deployed as a
// standalone process (cmd/crater's "agent" verb) independent of the
// server.
package agentrt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/codeready-toolchain/crater/pkg/config"
	"github.com/codeready-toolchain/crater/pkg/crerr"
	"github.com/codeready-toolchain/crater/pkg/model"
)

// ExperimentDescriptor is the wire shape of a claimed experiment, matching
// the agent API's `GET /next-experiment` response (§6).
type ExperimentDescriptor struct {
	Name        string              `json:"name"`
	Crates      []model.PackageRef  `json:"crates"`
	Toolchains  [2]model.ToolchainRef `json:"toolchains"`
	Mode        model.Mode          `json:"mode"`
	CapLints    model.LintCap       `json:"cap-lints"`
	Requirement []string            `json:"requirement"`
}

// ProgressResult is a single (package, toolchain) outcome reported back to
// the server in a `POST /record-progress` batch (§6).
type ProgressResult struct {
	Crate     model.PackageRef   `json:"crate"`
	Toolchain model.ToolchainRef `json:"toolchain"`
	Result    model.Outcome      `json:"result"`
	Log       string             `json:"log"` // base64
}

// Client is the HTTP surface an agent needs against the server's
// /agent-api/ endpoints (§6). A small interface so the runtime can be
// tested without a live HTTP server.
type Client interface {
	Config(ctx context.Context) (*config.Config, error)
	NextExperiment(ctx context.Context) (*ExperimentDescriptor, error)
	RecordProgress(ctx context.Context, experiment string, results []ProgressResult) error
	Heartbeat(ctx context.Context) error
	ReportError(ctx context.Context, experiment, message string) error
}

// envelope mirrors the server's {status, result?, error?} response shape
// (§4.6).
type envelope struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// HTTPClient implements Client over net/http, authenticating with the
// CraterToken bearer scheme (§6 "Auth header").
type HTTPClient struct {
	BaseURL    string
	Token      string
	AgentName  string
	HTTPClient *http.Client
}

// NewHTTPClient builds an HTTPClient with a sane request timeout.
func NewHTTPClient(baseURL, agentName, token string) *HTTPClient {
	return &HTTPClient{
		BaseURL:    baseURL,
		Token:      token,
		AgentName:  agentName,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any, out any) error {
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
	req.Header.Set("Authorization", "CraterToken "+c.Token)
	req.Header.Set("X-Crater-Agent", c.AgentName)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
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

// Config fetches the server's configuration blob, the crater-config member
// of the GET /config result. It does not cache; Runtime.Run calls it once
// at startup and keeps the result (§4.5 "fetches /config once").
func (c *HTTPClient) Config(ctx context.Context) (*config.Config, error) {
	var resp struct {
		AgentName    string        `json:"agent-name"`
		CraterConfig config.Config `json:"crater-config"`
	}
	if err := c.do(ctx, http.MethodGet, "/agent-api/config", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.CraterConfig, nil
}

// NextExperiment claims the next eligible experiment, or returns (nil, nil)
// when the queue has nothing this agent can run (§6 "or null").
func (c *HTTPClient) NextExperiment(ctx context.Context) (*ExperimentDescriptor, error) {
	var desc *ExperimentDescriptor
	if err := c.do(ctx, http.MethodGet, "/agent-api/next-experiment", nil, &desc); err != nil {
		return nil, err
	}
	return desc, nil
}

// RecordProgress reports one or more completed job outcomes (§6). Each
// result's Log is sent as given; runPlans base64-encodes it via encodeLog.
func (c *HTTPClient) RecordProgress(ctx context.Context, experiment string, results []ProgressResult) error {
	payload := struct {
		ExperimentName string           `json:"experiment-name"`
		Results        []ProgressResult `json:"results"`
	}{ExperimentName: experiment, Results: results}
	return c.do(ctx, http.MethodPost, "/agent-api/record-progress", payload, nil)
}

// Heartbeat reports liveness (§6, expected cadence 60s).
func (c *HTTPClient) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/agent-api/heartbeat", nil, nil)
}

// ReportError notifies the server of an infrastructure error encountered
// while working an experiment (§4.5 "on infrastructure error, POST
// /error").
func (c *HTTPClient) ReportError(ctx context.Context, experiment, message string) error {
	payload := struct {
		ExperimentName string `json:"experiment-name"`
		Error          string `json:"error"`
	}{ExperimentName: experiment, Error: message}
	return c.do(ctx, http.MethodPost, "/agent-api/error", payload, nil)
}

// encodeLog base64-encodes a compressed job log for wire transport.
func encodeLog(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
