// Package registry implements the Connection Registry: a namespace of
// (database, role, shard) keys to pooled adapters, replica groups, and the
// role-fallback chains external callers rely on.
package registry

import (
	"context"
	"sync"

	"eve.evalgo.org/multidb/adapter"
	"eve.evalgo.org/multidb/common"
	"eve.evalgo.org/multidb/health"
	"eve.evalgo.org/multidb/lb"
	"eve.evalgo.org/multidb/multidberr"
	"eve.evalgo.org/multidb/pool"
)

// Role is the intent tag used to pick an adapter.
type Role string

const (
	Primary Role = "primary"
	Writing Role = "writing"
	Reading Role = "reading"
)

// Key identifies one connection spec: (database, role, shard). Shard is
// empty for an unsharded database. Key is comparable and used directly as
// a map key, satisfying invariant 1 (registry uniqueness).
type Key struct {
	Database string
	Role     Role
	Shard    string
}

// PoolConfig and HealthConfig alias pool/health configs so callers of
// establish() don't need to import those packages directly.
type PoolConfig = pool.Config
type HealthConfig = health.Config

// PooledAdapter is the unit the registry manages: an Adapter plus its
// owning Pool and Health Monitor.
type PooledAdapter struct {
	Key     Key
	Adapter *adapter.Adapter
	Pool    *pool.Pool
	Health  *health.Monitor
}

// IsHealthy, InUse, and Identity satisfy lb.Adapter so the load balancer
// can select among PooledAdapters without importing this package.
func (p *PooledAdapter) IsHealthy() bool { return p.Health.IsHealthy() }
func (p *PooledAdapter) InUse() int      { return p.Pool.Stats().InUse }
func (p *PooledAdapter) Identity() string {
	return p.Key.Database + "/" + string(p.Key.Role) + "/" + p.Key.Shard
}

// spec is the immutable connection spec recorded at establish() time.
type spec struct {
	key         Key
	dialect     adapter.Dialect
	url         string
	opener      adapter.Opener
	poolCfg     pool.Config
	healthCfg   health.Config
}

// Registry is a process-wide namespace of connection specs and their
// realized pooled adapters. Callers should obtain a fresh Registry per
// test case via New(); a single process normally owns exactly one.
type Registry struct {
	mu       sync.RWMutex
	specs    map[Key]*spec
	adapters map[Key]*PooledAdapter
	groups   map[groupKey][]*PooledAdapter // replica groups, declaration order
	balancers map[groupKey]*lb.Balancer

	logger *common.ContextLogger
}

type groupKey struct {
	Database string
	Shard    string
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		specs:     make(map[Key]*spec),
		adapters:  make(map[Key]*PooledAdapter),
		groups:    make(map[groupKey][]*PooledAdapter),
		balancers: make(map[groupKey]*lb.Balancer),
		logger:    common.ComponentLogger("registry"),
	}
}

// Establish upserts a connection spec and, on first call for this key,
// creates its adapter. Reading-role specs register into the (D,S) replica
// group in declaration order, per §4.3's invariant.
func (r *Registry) Establish(ctx context.Context, database string, dialect adapter.Dialect, url string, role Role, shard string, poolCfg pool.Config, healthCfg health.Config) (*PooledAdapter, error) {
	key := Key{Database: database, Role: role, Shard: shard}

	var opener adapter.Opener
	switch dialect {
	case adapter.Postgres:
		opener = adapter.OpenPostgres
	case adapter.MySQL:
		opener = adapter.OpenMySQL
	case adapter.SQLite:
		opener = adapter.OpenSQLite
	}

	s := &spec{key: key, dialect: dialect, url: url, opener: opener, poolCfg: poolCfg, healthCfg: healthCfg}

	r.mu.Lock()
	r.specs[key] = s
	if existing, ok := r.adapters[key]; ok {
		r.mu.Unlock()
		return existing, nil
	}
	r.mu.Unlock()

	pa, err := r.buildAdapter(ctx, s)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.adapters[key] = pa
	if role == Reading {
		gk := groupKey{Database: database, Shard: shard}
		r.groups[gk] = append(r.groups[gk], pa)
		if _, ok := r.balancers[gk]; !ok {
			r.balancers[gk] = lb.New(lb.RoundRobin)
		}
	}
	r.mu.Unlock()

	r.logger.WithFields(common.DatabaseFields(database, string(role), shard, "establish", 0, 0)).Info("adapter established")
	return pa, nil
}

func (r *Registry) buildAdapter(ctx context.Context, s *spec) (*PooledAdapter, error) {
	p := pool.New(s.poolCfg, s.url, s.opener)
	if err := p.Warm(ctx); err != nil {
		return nil, err
	}

	var a *adapter.Adapter
	switch s.dialect {
	case adapter.Postgres:
		a = adapter.NewPostgres(p.Checkout)
	case adapter.MySQL:
		a = adapter.NewMySQL(p.Checkout)
	case adapter.SQLite:
		a = adapter.NewSQLite(p.Checkout)
	}

	hm := health.NewMonitor(s.key.Database, string(s.key.Role), s.key.Shard, s.healthCfg, func(ctx context.Context) error {
		return a.WithConnection(ctx, s.healthCfg.Timeout, func(c adapter.Conn) error {
			return c.PingContext(ctx)
		})
	})
	hm.Start()

	return &PooledAdapter{Key: s.key, Adapter: a, Pool: p, Health: hm}, nil
}

// AdapterFor resolves an adapter for (database, role, shard) applying the
// role-fallback chains from §4.3: Reading consults the replica group's
// load balancer (falling back to Primary|Writing if no healthy replica);
// missing roles fall back Reading→Primary→Writing, Writing→Primary,
// Primary→Writing.
func (r *Registry) AdapterFor(database string, role Role, shard string) (*PooledAdapter, error) {
	if role == Reading {
		if pa, err := r.pickReplica(database, shard); err == nil {
			return pa, nil
		}
	}

	for _, candidate := range fallbackChain(role) {
		if role == Reading && candidate == Reading {
			// pickReplica already found no healthy member of the group.
			continue
		}
		r.mu.RLock()
		pa, ok := r.adapters[Key{Database: database, Role: candidate, Shard: shard}]
		r.mu.RUnlock()
		if ok {
			return pa, nil
		}
	}
	return nil, &multidberr.NoAdapterError{Database: database, Role: string(role), Shard: shard}
}

func fallbackChain(role Role) []Role {
	switch role {
	case Reading:
		return []Role{Reading, Primary, Writing}
	case Writing:
		return []Role{Writing, Primary}
	case Primary:
		return []Role{Primary, Writing}
	default:
		return []Role{role}
	}
}

func (r *Registry) pickReplica(database, shard string) (*PooledAdapter, error) {
	gk := groupKey{Database: database, Shard: shard}
	r.mu.RLock()
	group := r.groups[gk]
	balancer := r.balancers[gk]
	r.mu.RUnlock()

	if len(group) == 0 || balancer == nil {
		return nil, &multidberr.NoHealthyReplicaError{Database: database, Shard: shard}
	}
	candidates := make([]lb.Adapter, len(group))
	for i, pa := range group {
		candidates[i] = pa
	}
	picked, err := balancer.Pick(candidates)
	if err != nil {
		return nil, err
	}
	return picked.(*PooledAdapter), nil
}

// ReplicaGroup returns the ordered set of Reading adapters for (D,S).
func (r *Registry) ReplicaGroup(database, shard string) []*PooledAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	group := r.groups[groupKey{Database: database, Shard: shard}]
	out := make([]*PooledAdapter, len(group))
	copy(out, group)
	return out
}

// HealthStatus returns a snapshot of every known adapter's health.
func (r *Registry) HealthStatus() map[Key]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[Key]bool, len(r.adapters))
	for k, pa := range r.adapters {
		out[k] = pa.Health.IsHealthy()
	}
	return out
}

// ClearAll tears down every pool and health monitor and empties the
// registry. After ClearAll, HealthStatus and AdapterFor report nothing.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, pa := range r.adapters {
		pa.Health.Stop()
		_ = pa.Pool.Close()
	}
	r.specs = make(map[Key]*spec)
	r.adapters = make(map[Key]*PooledAdapter)
	r.groups = make(map[groupKey][]*PooledAdapter)
	r.balancers = make(map[groupKey]*lb.Balancer)
}
