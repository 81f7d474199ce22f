package store

import (
	"context"
	stdsql "database/sql"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/codeready-toolchain/crater/pkg/crerr"
	"github.com/codeready-toolchain/crater/pkg/model"
)

// experimentColumns lists the columns selected by every experiment read, in
// the order scanExperiment expects them.
var experimentColumns = []string{
	"name", "toolchain_a", "toolchain_b", "mode", "crates", "cap_lints",
	"ignore_blacklist", "requirement", "priority", "assign", "requester",
	"github_url", "assigned_agent", "status", "created_at", "started_at", "completed_at",
}

// CreateExperiment inserts a new experiment in the queued state (§4.2
// "create_experiment"). Returns a StateConflictError if the name is taken.
func (s *Store) CreateExperiment(ctx context.Context, e model.Experiment) error {
	tcA, err := marshalJSON(e.ToolchainA)
	if err != nil {
		return err
	}
	tcB, err := marshalJSON(e.ToolchainB)
	if err != nil {
		return err
	}
	crates, err := marshalJSON(e.Crates)
	if err != nil {
		return err
	}
	requirement, err := marshalJSON(e.Requirement)
	if err != nil {
		return err
	}

	builder := entsql.Dialect(s.drv.Dialect()).
		Insert("experiments").
		Columns("name", "toolchain_a", "toolchain_b", "mode", "crates", "cap_lints",
			"ignore_blacklist", "requirement", "priority", "assign", "requester",
			"github_url", "assigned_agent", "status").
		Values(e.Name, tcA, tcB, string(e.Mode), crates, string(e.CapLints),
			e.IgnoreBlacklist, requirement, e.Priority, e.Assign, e.Requester,
			e.GitHubURL, e.AssignedAgent, string(model.StatusQueued))

	query, args := builder.Query()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return crerr.NewStateConflict(e.Name, "experiment already exists")
		}
		return crerr.Wrap(err)
	}
	return nil
}

// GetExperiment loads an experiment by name.
func (s *Store) GetExperiment(ctx context.Context, name string) (*model.Experiment, error) {
	builder := entsql.Dialect(s.drv.Dialect()).
		Select(experimentColumns...).
		From(entsql.Table("experiments")).
		Where(entsql.EQ("name", name))

	query, args := builder.Query()
	row := s.db.QueryRowContext(ctx, query, args...)
	exp, err := scanExperiment(row)
	if err == stdsql.ErrNoRows {
		return nil, crerr.ErrNotFound
	}
	if err != nil {
		return nil, crerr.Wrap(err)
	}
	return exp, nil
}

// EditExperimentIfQueued applies mutate to the named experiment's editable
// fields (toolchains, mode, crates, cap-lints, ignore-blacklist, priority,
// assign) only if it is still queued (§3
// invariant 3, §4.2 "edit_experiment_if_queued"). Returns a
// StateConflictError if the experiment has already left the queued state.
func (s *Store) EditExperimentIfQueued(ctx context.Context, name string, mutate func(*model.Experiment)) error {
	return s.withTx(ctx, func(tx *stdsql.Tx) error {
		builder := entsql.Dialect(s.drv.Dialect()).
			Select(experimentColumns...).
			From(entsql.Table("experiments")).
			Where(entsql.EQ("name", name))
		query, args := builder.Query()
		row := tx.QueryRowContext(ctx, query+" FOR UPDATE", args...)
		exp, err := scanExperiment(row)
		if err == stdsql.ErrNoRows {
			return crerr.ErrNotFound
		}
		if err != nil {
			return crerr.Wrap(err)
		}
		if !exp.Status.Editable() {
			return crerr.NewStateConflict(name, "experiment is no longer queued")
		}

		mutate(exp)

		tcA, err := marshalJSON(exp.ToolchainA)
		if err != nil {
			return err
		}
		tcB, err := marshalJSON(exp.ToolchainB)
		if err != nil {
			return err
		}
		crates, err := marshalJSON(exp.Crates)
		if err != nil {
			return err
		}

		upd := entsql.Dialect(s.drv.Dialect()).
			Update("experiments").
			Set("toolchain_a", tcA).
			Set("toolchain_b", tcB).
			Set("mode", string(exp.Mode)).
			Set("crates", crates).
			Set("cap_lints", string(exp.CapLints)).
			Set("ignore_blacklist", exp.IgnoreBlacklist).
			Set("priority", exp.Priority).
			Set("assign", exp.Assign).
			Where(entsql.EQ("name", name))
		uquery, uargs := upd.Query()
		_, err = tx.ExecContext(ctx, uquery, uargs...)
		return crerr.Wrap(err)
	})
}

// NextQueuedMatching atomically claims the highest-priority queued
// experiment eligible for the given agent (§4.2 "next_queued_matching",
// §4.5): eligibility filtering on requirement-subset-of-capabilities and
// Assign pinning happens in Go since it's cheaper than a JSONB containment
// query against an unbounded number of capability tags, and this path is
// only ever invoked by one poller at a time per agent. The row lock is
// taken with SKIP LOCKED so concurrent pollers never block on each other.
func (s *Store) NextQueuedMatching(ctx context.Context, agentName string, capabilities []string) (*model.Experiment, error) {
	var claimed *model.Experiment
	err := s.withTx(ctx, func(tx *stdsql.Tx) error {
		builder := entsql.Dialect(s.drv.Dialect()).
			Select(experimentColumns...).
			From(entsql.Table("experiments")).
			Where(entsql.EQ("status", string(model.StatusQueued))).
			OrderBy(entsql.Desc("priority"), entsql.Asc("created_at"))
		query, args := builder.Query()

		rows, err := tx.QueryContext(ctx, query+" FOR UPDATE SKIP LOCKED", args...)
		if err != nil {
			return crerr.Wrap(err)
		}
		defer rows.Close()

		for rows.Next() {
			exp, err := scanExperimentRows(rows)
			if err != nil {
				return crerr.Wrap(err)
			}
			if exp.EligibleFor(agentName, capabilities) {
				claimed = exp
				break
			}
		}
		if err := rows.Err(); err != nil {
			return crerr.Wrap(err)
		}
		if claimed == nil {
			return crerr.ErrNotFound
		}

		now := time.Now()
		upd := entsql.Dialect(s.drv.Dialect()).
			Update("experiments").
			Set("status", string(model.StatusRunning)).
			Set("assigned_agent", agentName).
			Set("started_at", now).
			Where(entsql.EQ("name", claimed.Name))
		uquery, uargs := upd.Query()
		if _, err := tx.ExecContext(ctx, uquery, uargs...); err != nil {
			return crerr.Wrap(err)
		}
		claimed.Status = model.StatusRunning
		claimed.AssignedAgent = agentName
		claimed.StartedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// MarkRunning transitions name to running with the given agent (used by
// Assign-pinned re-dispatch and recovery paths; §4.2 "mark_running").
func (s *Store) MarkRunning(ctx context.Context, name, agentName string) error {
	now := time.Now()
	upd := entsql.Dialect(s.drv.Dialect()).
		Update("experiments").
		Set("status", string(model.StatusRunning)).
		Set("assigned_agent", agentName).
		Set("started_at", now).
		Where(entsql.EQ("name", name), entsql.EQ("status", string(model.StatusQueued)))
	query, args := upd.Query()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return crerr.Wrap(err)
	}
	return requireRowsAffected(res, name)
}

// Abort transitions name to aborted whatever its current state (§4.2
// "abort"); Registry.Abort is what rejects already-terminal experiments.
func (s *Store) Abort(ctx context.Context, name string) error {
	now := time.Now()
	upd := entsql.Dialect(s.drv.Dialect()).
		Update("experiments").
		Set("status", string(model.StatusAborted)).
		Set("completed_at", now).
		Where(entsql.EQ("name", name))
	query, args := upd.Query()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return crerr.Wrap(err)
	}
	return requireRowsAffected(res, name)
}

// AssignReportStateCAS transitions name from the given `from` status to `to`
// only if its current status is still `from` (§3 "Lifecycle": needs-report →
// generating-report → completed/report-failed, §4.2 "assign_report_state",
// §4.6). It stamps completed_at when `to` is terminal and returns
// applied=false with no error if the experiment had already moved past
// `from` — the compare-and-set guard that lets concurrent progress reports
// race the same experiment to completion without double-triggering report
// generation.
func (s *Store) AssignReportStateCAS(ctx context.Context, name string, from, to model.Status) (bool, error) {
	upd := entsql.Dialect(s.drv.Dialect()).
		Update("experiments").
		Set("status", string(to)).
		Where(entsql.EQ("name", name), entsql.EQ("status", string(from)))
	if to.Terminal() {
		upd.Set("completed_at", time.Now())
	}
	query, args := upd.Query()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, crerr.Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, crerr.Wrap(err)
	}
	return n > 0, nil
}

// ExperimentsAssignedTo returns the running experiments currently assigned
// to agentName, for stale-agent recovery (§4.9).
func (s *Store) ExperimentsAssignedTo(ctx context.Context, agentName string) ([]model.Experiment, error) {
	builder := entsql.Dialect(s.drv.Dialect()).
		Select(experimentColumns...).
		From(entsql.Table("experiments")).
		Where(entsql.EQ("status", string(model.StatusRunning)), entsql.EQ("assigned_agent", agentName))
	query, args := builder.Query()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, crerr.Wrap(err)
	}
	defer rows.Close()

	var exps []model.Experiment
	for rows.Next() {
		exp, err := scanExperimentRows(rows)
		if err != nil {
			return nil, crerr.Wrap(err)
		}
		exps = append(exps, *exp)
	}
	return exps, rows.Err()
}

// Requeue returns a running experiment to queued, releasing its agent
// assignment while retaining any job outcomes already recorded (§4.9
// "server marks assignment stale ... returns the experiment to queued with
// partial results retained").
func (s *Store) Requeue(ctx context.Context, name string) error {
	upd := entsql.Dialect(s.drv.Dialect()).
		Update("experiments").
		Set("status", string(model.StatusQueued)).
		Set("assigned_agent", "").
		Where(entsql.EQ("name", name), entsql.EQ("status", string(model.StatusRunning)))
	query, args := upd.Query()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return crerr.Wrap(err)
	}
	return requireRowsAffected(res, name)
}

func requireRowsAffected(res stdsql.Result, name string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return crerr.Wrap(err)
	}
	if n == 0 {
		return crerr.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperiment(row rowScanner) (*model.Experiment, error) {
	return scanExperimentRow(row)
}

func scanExperimentRows(rows *stdsql.Rows) (*model.Experiment, error) {
	return scanExperimentRow(rows)
}

func scanExperimentRow(row rowScanner) (*model.Experiment, error) {
	var (
		e                                    model.Experiment
		tcA, tcB, crates, requirement        []byte
		mode, capLints, status               string
		startedAt, completedAt               stdsql.NullTime
	)
	if err := row.Scan(
		&e.Name, &tcA, &tcB, &mode, &crates, &capLints,
		&e.IgnoreBlacklist, &requirement, &e.Priority, &e.Assign, &e.Requester,
		&e.GitHubURL, &e.AssignedAgent, &status, &e.CreatedAt, &startedAt, &completedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if e.ToolchainA, err = unmarshalToolchain(tcA); err != nil {
		return nil, err
	}
	if e.ToolchainB, err = unmarshalToolchain(tcB); err != nil {
		return nil, err
	}
	if e.Crates, err = unmarshalSelection(crates); err != nil {
		return nil, err
	}
	if e.Requirement, err = unmarshalStrings(requirement); err != nil {
		return nil, err
	}
	e.Mode = model.Mode(mode)
	e.CapLints = model.LintCap(capLints)
	e.Status = model.Status(status)
	if startedAt.Valid {
		e.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		e.CompletedAt = &completedAt.Time
	}
	return &e, nil
}
