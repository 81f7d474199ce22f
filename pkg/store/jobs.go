package store

import (
	"context"
	stdsql "database/sql"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/codeready-toolchain/crater/pkg/crerr"
	"github.com/codeready-toolchain/crater/pkg/model"
)

// EnsureJob inserts a planned (experiment, package, toolchain) job row with
// no outcome yet, idempotently (§4.3 planner fan-out). A conflict on the
// unique (experiment, package, toolchain) key is treated as already-planned.
func (s *Store) EnsureJob(ctx context.Context, experiment string, pkg model.PackageRef, tc model.ToolchainRef) error {
	pkgJSON, err := marshalJSON(pkg)
	if err != nil {
		return err
	}
	tcJSON, err := marshalJSON(tc)
	if err != nil {
		return err
	}

	builder := entsql.Dialect(s.drv.Dialect()).
		Insert("jobs").
		Columns("experiment_name", "package_key", "package", "toolchain_key", "toolchain").
		Values(experiment, pkg.Key(), pkgJSON, tc.Key(), tcJSON).
		OnConflict(
			entsql.ConflictColumns("experiment_name", "package_key", "toolchain_key"),
			entsql.ResolveWithIgnore(),
		)
	query, args := builder.Query()
	_, err = s.db.ExecContext(ctx, query, args...)
	return crerr.Wrap(err)
}

// RecordOutcome stores a job's terminal outcome and captured log (§4.1
// "record_outcome"). A second write for the same key with a matching
// outcome is treated as idempotent success rather than a conflict, per §5
// "last-writer-wins is forbidden ... the agent treats [it] as idempotent
// success if the outcome matches". It returns ErrNotFound when the
// experiment is missing or aborted, which makes the agent drop it.
func (s *Store) RecordOutcome(ctx context.Context, experiment string, pkg model.PackageRef, tc model.ToolchainRef, outcome model.Outcome, logBytes []byte, truncated bool) error {
	return s.withTx(ctx, func(tx *stdsql.Tx) error {
		statusSel := entsql.Dialect(s.drv.Dialect()).
			Select("status").
			From(entsql.Table("experiments")).
			Where(entsql.EQ("name", experiment))
		squery, sargs := statusSel.Query()
		var status string
		if err := tx.QueryRowContext(ctx, squery, sargs...).Scan(&status); err != nil {
			if err == stdsql.ErrNoRows {
				return crerr.ErrNotFound
			}
			return crerr.Wrap(err)
		}
		if model.Status(status) == model.StatusAborted {
			return crerr.ErrNotFound
		}

		sel := entsql.Dialect(s.drv.Dialect()).
			Select("outcome").
			From(entsql.Table("jobs")).
			Where(entsql.EQ("experiment_name", experiment), entsql.EQ("package_key", pkg.Key()), entsql.EQ("toolchain_key", tc.Key()))
		query, args := sel.Query()
		var existing string
		err := tx.QueryRowContext(ctx, query+" FOR UPDATE", args...).Scan(&existing)
		if err == stdsql.ErrNoRows {
			return crerr.ErrNotFound
		}
		if err != nil {
			return crerr.Wrap(err)
		}
		if existing != "" {
			if existing == string(outcome) {
				return nil
			}
			return crerr.NewStateConflict(experiment+"/"+pkg.Key()+"/"+tc.Key(), "outcome already recorded with a different value")
		}

		upd := entsql.Dialect(s.drv.Dialect()).
			Update("jobs").
			Set("outcome", string(outcome)).
			Set("log_bytes", logBytes).
			Set("truncated", truncated).
			Set("recorded_at", time.Now()).
			Where(entsql.EQ("experiment_name", experiment), entsql.EQ("package_key", pkg.Key()), entsql.EQ("toolchain_key", tc.Key()))
		uquery, uargs := upd.Query()
		_, err = tx.ExecContext(ctx, uquery, uargs...)
		return crerr.Wrap(err)
	})
}

// CompletedCount returns how many of an experiment's planned jobs have a
// recorded outcome (§4.1 "completed_count", used to detect when a run is
// ready for report generation).
func (s *Store) CompletedCount(ctx context.Context, experiment string) (int, error) {
	sel := entsql.Dialect(s.drv.Dialect()).
		Select("count(*)").
		From(entsql.Table("jobs")).
		Where(entsql.EQ("experiment_name", experiment), entsql.NEQ("outcome", ""))
	query, args := sel.Query()
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, crerr.Wrap(err)
	}
	return n, nil
}

// TotalCount returns the number of jobs planned for an experiment,
// regardless of outcome, for progress reporting alongside CompletedCount.
func (s *Store) TotalCount(ctx context.Context, experiment string) (int, error) {
	sel := entsql.Dialect(s.drv.Dialect()).
		Select("count(*)").
		From(entsql.Table("jobs")).
		Where(entsql.EQ("experiment_name", experiment))
	query, args := sel.Query()
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, crerr.Wrap(err)
	}
	return n, nil
}

// AllOutcomes returns every recorded job for an experiment (§4.1
// "all_outcomes"), used by the comparator pass to build the results tree.
func (s *Store) AllOutcomes(ctx context.Context, experiment string) ([]model.Job, error) {
	sel := entsql.Dialect(s.drv.Dialect()).
		Select("package", "toolchain", "outcome", "truncated").
		From(entsql.Table("jobs")).
		Where(entsql.EQ("experiment_name", experiment), entsql.NEQ("outcome", ""))
	query, args := sel.Query()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, crerr.Wrap(err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var pkgJSON, tcJSON []byte
		var outcome string
		var truncated bool
		if err := rows.Scan(&pkgJSON, &tcJSON, &outcome, &truncated); err != nil {
			return nil, crerr.Wrap(err)
		}
		pkg, err := unmarshalPackage(pkgJSON)
		if err != nil {
			return nil, err
		}
		tc, err := unmarshalToolchain(tcJSON)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, model.Job{
			Experiment: experiment,
			Package:    pkg,
			Toolchain:  tc,
			Outcome:    model.Outcome(outcome),
			Truncated:  truncated,
		})
	}
	return jobs, rows.Err()
}

// JobLog fetches the zstd-compressed log for a single job, loaded lazily
// per §3 "Job" ("log_bytes []byte ... loaded lazily").
func (s *Store) JobLog(ctx context.Context, experiment string, pkg model.PackageRef, tc model.ToolchainRef) ([]byte, error) {
	sel := entsql.Dialect(s.drv.Dialect()).
		Select("log_bytes").
		From(entsql.Table("jobs")).
		Where(entsql.EQ("experiment_name", experiment), entsql.EQ("package_key", pkg.Key()), entsql.EQ("toolchain_key", tc.Key()))
	query, args := sel.Query()
	var log []byte
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&log)
	if err == stdsql.ErrNoRows {
		return nil, crerr.ErrNotFound
	}
	if err != nil {
		return nil, crerr.Wrap(err)
	}
	return log, nil
}
