package store

import (
	"context"
	stdsql "database/sql"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/codeready-toolchain/crater/pkg/crerr"
	"github.com/codeready-toolchain/crater/pkg/model"
)

// RegisterAgent upserts an agent record with its hashed token and
// capability set (§3 "Agent record", §6 agent registration).
func (s *Store) RegisterAgent(ctx context.Context, name, tokenHash string, capabilities []string) error {
	caps, err := marshalJSON(capabilities)
	if err != nil {
		return err
	}
	builder := entsql.Dialect(s.drv.Dialect()).
		Insert("agents").
		Columns("name", "token_hash", "capabilities").
		Values(name, tokenHash, caps).
		OnConflict(
			entsql.ConflictColumns("name"),
			entsql.ResolveWith(func(set *entsql.UpdateSet) {
				set.Set("token_hash", tokenHash).Set("capabilities", caps)
			}),
		)
	query, args := builder.Query()
	_, err = s.db.ExecContext(ctx, query, args...)
	return crerr.Wrap(err)
}

// GetAgent loads an agent record by name.
func (s *Store) GetAgent(ctx context.Context, name string) (*model.Agent, error) {
	sel := entsql.Dialect(s.drv.Dialect()).
		Select("name", "token_hash", "capabilities", "last_heartbeat", "assignment", "inflight_job_key").
		From(entsql.Table("agents")).
		Where(entsql.EQ("name", name))
	query, args := sel.Query()
	row := s.db.QueryRowContext(ctx, query, args...)
	agent, err := scanAgent(row)
	if err == stdsql.ErrNoRows {
		return nil, crerr.ErrNotFound
	}
	if err != nil {
		return nil, crerr.Wrap(err)
	}
	return agent, nil
}

// Heartbeat updates an agent's last-seen timestamp and current job
// assignment, for orphan detection (§4.5, §9 stale-agent threshold).
func (s *Store) Heartbeat(ctx context.Context, name, inflightJobKey string) error {
	upd := entsql.Dialect(s.drv.Dialect()).
		Update("agents").
		Set("last_heartbeat", time.Now()).
		Set("inflight_job_key", inflightJobKey).
		Where(entsql.EQ("name", name))
	query, args := upd.Query()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return crerr.Wrap(err)
	}
	return requireRowsAffected(res, name)
}

// StaleAgents returns agents whose last heartbeat is older than threshold,
// for startup orphan cleanup and periodic sweeps (§9, modeled after the
// teacher's pkg/queue/orphan.go).
func (s *Store) StaleAgents(ctx context.Context, threshold time.Duration) ([]model.Agent, error) {
	cutoff := time.Now().Add(-threshold)
	sel := entsql.Dialect(s.drv.Dialect()).
		Select("name", "token_hash", "capabilities", "last_heartbeat", "assignment", "inflight_job_key").
		From(entsql.Table("agents")).
		Where(entsql.LT("last_heartbeat", cutoff))
	query, args := sel.Query()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, crerr.Wrap(err)
	}
	defer rows.Close()

	var agents []model.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, crerr.Wrap(err)
		}
		agents = append(agents, *a)
	}
	return agents, rows.Err()
}

func scanAgent(row rowScanner) (*model.Agent, error) {
	var (
		a                   model.Agent
		caps                []byte
		lastHeartbeat       stdsql.NullTime
	)
	if err := row.Scan(&a.Name, &a.TokenHash, &caps, &lastHeartbeat, &a.Assignment, &a.InflightJobKey); err != nil {
		return nil, err
	}
	capabilities, err := unmarshalStrings(caps)
	if err != nil {
		return nil, err
	}
	a.Capabilities = capabilities
	if lastHeartbeat.Valid {
		a.LastHeartbeat = lastHeartbeat.Time
	}
	return &a, nil
}
