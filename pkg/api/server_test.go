package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/crater/pkg/config"
	"github.com/codeready-toolchain/crater/pkg/crerr"
	"github.com/codeready-toolchain/crater/pkg/experiment"
	"github.com/codeready-toolchain/crater/pkg/model"
)

type fakeExpStore struct {
	experiments map[string]model.Experiment
	jobs        []model.Job
	claimResult *model.Experiment
	claimErr    error
}

func newFakeExpStore() *fakeExpStore {
	return &fakeExpStore{experiments: make(map[string]model.Experiment)}
}

func (s *fakeExpStore) CreateExperiment(ctx context.Context, e model.Experiment) error {
	if _, ok := s.experiments[e.Name]; ok {
		return crerr.NewStateConflict(e.Name, "exists")
	}
	s.experiments[e.Name] = e
	return nil
}

func (s *fakeExpStore) GetExperiment(ctx context.Context, name string) (*model.Experiment, error) {
	e, ok := s.experiments[name]
	if !ok {
		return nil, crerr.ErrNotFound
	}
	return &e, nil
}

func (s *fakeExpStore) EditExperimentIfQueued(ctx context.Context, name string, mutate func(*model.Experiment)) error {
	e, ok := s.experiments[name]
	if !ok {
		return crerr.ErrNotFound
	}
	if !e.Status.Editable() {
		return crerr.NewStateConflict(name, "not queued")
	}
	mutate(&e)
	s.experiments[name] = e
	return nil
}

func (s *fakeExpStore) NextQueuedMatching(ctx context.Context, agentName string, capabilities []string) (*model.Experiment, error) {
	return s.claimResult, s.claimErr
}

func (s *fakeExpStore) Abort(ctx context.Context, name string) error {
	e := s.experiments[name]
	e.Status = model.StatusAborted
	s.experiments[name] = e
	return nil
}

func (s *fakeExpStore) AssignReportStateCAS(ctx context.Context, name string, from, to model.Status) (bool, error) {
	e, ok := s.experiments[name]
	if !ok || e.Status != from {
		return false, nil
	}
	e.Status = to
	s.experiments[name] = e
	return true, nil
}

func (s *fakeExpStore) EnsureJob(ctx context.Context, experiment string, pkg model.PackageRef, tc model.ToolchainRef) error {
	s.jobs = append(s.jobs, model.Job{Experiment: experiment, Package: pkg, Toolchain: tc})
	return nil
}

func (s *fakeExpStore) AllOutcomes(ctx context.Context, experiment string) ([]model.Job, error) {
	var out []model.Job
	for _, j := range s.jobs {
		if j.Experiment == experiment && j.Outcome != "" {
			out = append(out, j)
		}
	}
	return out, nil
}

func (s *fakeExpStore) CompletedCount(ctx context.Context, name string) (int, error) { return 0, nil }
func (s *fakeExpStore) TotalCount(ctx context.Context, name string) (int, error)     { return 0, nil }

type fakeAgentStore struct {
	agents map[string]model.Agent
}

func newFakeAgentStore() *fakeAgentStore { return &fakeAgentStore{agents: make(map[string]model.Agent)} }

func (s *fakeAgentStore) GetAgent(ctx context.Context, name string) (*model.Agent, error) {
	a, ok := s.agents[name]
	if !ok {
		return nil, crerr.ErrNotFound
	}
	return &a, nil
}

func (s *fakeAgentStore) RegisterAgent(ctx context.Context, name, tokenHash string, capabilities []string) error {
	s.agents[name] = model.Agent{Name: name, TokenHash: tokenHash, Capabilities: capabilities}
	return nil
}

func (s *fakeAgentStore) Heartbeat(ctx context.Context, name, inflightJobKey string) error {
	a := s.agents[name]
	a.InflightJobKey = inflightJobKey
	s.agents[name] = a
	return nil
}

type fakeJobStore struct{ recorded int }

func (s *fakeJobStore) RecordOutcome(ctx context.Context, experiment string, pkg model.PackageRef, tc model.ToolchainRef, outcome model.Outcome, logBytes []byte, truncated bool) error {
	s.recorded++
	return nil
}

type fakeCorpus struct{ pkgs []model.PackageRef }

func (c fakeCorpus) All() []model.PackageRef      { return c.pkgs }
func (c fakeCorpus) TopN(n int) []model.PackageRef { return c.pkgs }
func (c fakeCorpus) Demo() []model.PackageRef     { return c.pkgs }

func newTestServer(t *testing.T) (*Server, *fakeExpStore, *fakeAgentStore, *fakeJobStore) {
	expStore := newFakeExpStore()
	agentStore := newFakeAgentStore()
	jobStore := &fakeJobStore{}
	cfg, err := config.Load("/nonexistent/crater.yaml")
	require.NoError(t, err)
	corpus := fakeCorpus{pkgs: []model.PackageRef{model.NewRegistryPackage("a", "1.0.0")}}
	registry := experiment.New(expStore, corpus)
	reporter := experiment.NewReporter(expStore, cfg)
	srv := NewServer(cfg, registry, reporter, agentStore, jobStore, corpus)
	return srv, expStore, agentStore, jobStore
}

func TestHealthHandler(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAgentAPI_RequiresBearerToken(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/agent-api/config", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAgentAPI_RejectsBadToken(t *testing.T) {
	srv, _, agentStore, _ := newTestServer(t)
	require.NoError(t, agentStore.RegisterAgent(context.Background(), "agent-1", hashToken("correct"), nil))

	req := httptest.NewRequest(http.MethodGet, "/agent-api/config", nil)
	req.Header.Set("X-Crater-Agent", "agent-1")
	req.Header.Set("Authorization", "CraterToken wrong")
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAgentAPI_ConfigWithValidToken(t *testing.T) {
	srv, _, agentStore, _ := newTestServer(t)
	require.NoError(t, agentStore.RegisterAgent(context.Background(), "agent-1", hashToken("correct"), nil))

	req := httptest.NewRequest(http.MethodGet, "/agent-api/config", nil)
	req.Header.Set("X-Crater-Agent", "agent-1")
	req.Header.Set("Authorization", "CraterToken correct")
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, statusSuccess, env.Status)
}

func TestAgentAPI_NextExperiment_NullWhenNoneQueued(t *testing.T) {
	srv, expStore, agentStore, _ := newTestServer(t)
	expStore.claimErr = crerr.ErrNotFound // what the store returns when nothing is eligible
	require.NoError(t, agentStore.RegisterAgent(context.Background(), "agent-1", hashToken("tok"), nil))

	req := httptest.NewRequest(http.MethodGet, "/agent-api/next-experiment", nil)
	req.Header.Set("X-Crater-Agent", "agent-1")
	req.Header.Set("Authorization", "CraterToken tok")
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, statusSuccess, env.Status)
	assert.Nil(t, env.Result)
}

func TestOperatorAPI_RejectsUnknownIdentity(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	body, _ := json.Marshal(createExperimentRequest{Name: "exp-1"})
	req := httptest.NewRequest(http.MethodPost, "/ops/experiments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestOperatorAPI_CreateExperiment(t *testing.T) {
	srv, expStore, _, _ := newTestServer(t)
	srv.cfg.ReloadACL(config.ACL{Users: []string{"alice"}})

	body, _ := json.Marshal(createExperimentRequest{
		Name:       "exp-1",
		ToolchainA: model.NewDistToolchain("stable"),
		ToolchainB: model.NewDistToolchain("beta"),
		Mode:       model.ModeBuildAndTest,
		Crates:     model.CrateSelection{Kind: model.SelectionFull},
		CapLints:   model.LintWarn,
	})
	req := httptest.NewRequest(http.MethodPost, "/ops/experiments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-User", "alice")
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, expStore.experiments, "exp-1")
}

func TestOperatorAPI_AbortExperiment(t *testing.T) {
	srv, expStore, _, _ := newTestServer(t)
	srv.cfg.ReloadACL(config.ACL{Users: []string{"alice"}})
	expStore.experiments["exp-1"] = model.Experiment{Name: "exp-1", Status: model.StatusQueued}

	req := httptest.NewRequest(http.MethodPost, "/ops/experiments/exp-1/abort", nil)
	req.Header.Set("X-Forwarded-User", "alice")
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.StatusAborted, expStore.experiments["exp-1"].Status)
}

func TestOperatorAPI_RegisterAgent(t *testing.T) {
	srv, _, agentStore, _ := newTestServer(t)
	srv.cfg.ReloadACL(config.ACL{Users: []string{"alice"}})

	body, _ := json.Marshal(registerAgentRequest{Name: "agent-2", Capabilities: []string{"linux"}})
	req := httptest.NewRequest(http.MethodPost, "/ops/agents", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-User", "alice")
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Status string          `json:"status"`
		Result json.RawMessage `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	var result struct {
		Name  string `json:"name"`
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Result, &result))
	assert.Equal(t, "agent-2", result.Name)
	assert.NotEmpty(t, result.Token)

	stored, err := agentStore.GetAgent(context.Background(), "agent-2")
	require.NoError(t, err)
	assert.Equal(t, hashToken(result.Token), stored.TokenHash)
}
