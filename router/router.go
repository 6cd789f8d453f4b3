// Package router implements the Shard Manager and Query Router: it
// registers model descriptors against a shard resolver and classifies a
// query.State into an execution Plan (SingleShard, TargetedMultiShard, or
// ScatterGather), per §4.9.
package router

import (
	"eve.evalgo.org/multidb/model"
	"eve.evalgo.org/multidb/multidberr"
	"eve.evalgo.org/multidb/query"
	"eve.evalgo.org/multidb/shard"
)

// Kind names the three plan shapes a query can route to.
type Kind string

const (
	SingleShard       Kind = "single_shard"
	TargetedMultiShard Kind = "targeted_multi_shard"
	ScatterGather     Kind = "scatter_gather"
)

// Plan is the router's output: a value describing where a query.State
// must execute. Plans carry no connection or transaction state; applying
// one is a separate step that runs under whatever Connection Context is
// current when it is executed.
type Plan struct {
	Kind   Kind
	Shards []string // exactly one for SingleShard, 1..N for the others
}

// registration pairs a model descriptor with its shard resolver.
type registration struct {
	descriptor *model.Descriptor
	resolver   shard.Resolver
}

// Manager registers model/resolver pairs and routes query.States against
// them.
type Manager struct {
	registrations map[string]*registration
}

// NewManager constructs an empty Manager.
func NewManager() *Manager {
	return &Manager{registrations: make(map[string]*registration)}
}

// Register binds a model descriptor to the resolver governing its shard
// key. A model with no shard-key columns is treated as unsharded: Route
// always returns SingleShard(none) for it even without a call to
// Register.
func (m *Manager) Register(descriptor *model.Descriptor, resolver shard.Resolver) {
	m.registrations[descriptor.Name] = &registration{descriptor: descriptor, resolver: resolver}
}

// ShardsFor returns every shard name known for model, or nil if model is
// unsharded or unregistered.
func (m *Manager) ShardsFor(modelName string) []string {
	reg, ok := m.registrations[modelName]
	if !ok || reg.descriptor == nil || !reg.descriptor.HasShardKeys() {
		return nil
	}
	return reg.resolver.Shards()
}

// Resolve maps keys (one value per shard-key column, in the descriptor's
// ShardKeyColumns order) to a single shard name. With more than one key it
// returns MissingShardKeyError, because no registered resolver accepts
// several values (see the composite note in classify).
func (m *Manager) Resolve(modelName string, keys ...interface{}) (string, error) {
	reg, ok := m.registrations[modelName]
	if !ok {
		return "", &multidberr.NoShardForValueError{Resolver: modelName}
	}
	if composite, ok := reg.resolver.(interface {
		Resolve(values ...interface{}) (string, error)
	}); ok && len(keys) > 1 {
		return composite.Resolve(keys...)
	}
	if len(keys) != 1 {
		return "", &multidberr.MissingShardKeyError{Model: modelName}
	}
	return reg.resolver.Resolve(keys[0])
}

// Route classifies s into an execution Plan for modelName, per §4.9's
// algorithm: unsharded models always plan SingleShard(none); otherwise
// walk the AND-dominated equality/IN terms on shard-key columns and
// resolve as far as possible, falling back to ScatterGather(all shards)
// when no shard key is bound. isWrite gates the ScatterGather-write rule:
// a write that cannot resolve to specific shards is rejected with
// MissingShardKeyError unless allowAllShardsWrite is set (the caller
// opted into on_all_shards()).
func (m *Manager) Route(modelName string, s query.State, isWrite, allowAllShardsWrite bool) (Plan, error) {
	reg, registered := m.registrations[modelName]
	if !registered || reg.descriptor == nil || !reg.descriptor.HasShardKeys() {
		return Plan{Kind: SingleShard, Shards: nil}, nil
	}

	// A Raw term's safety depends on which plan kind we land on, which
	// isn't known until binding completes, so the check happens after
	// classify() below rather than here.
	bound := collectBoundValues(s.Terms, reg.descriptor.ShardKeyColumns)

	plan, err := m.classify(reg, bound)
	if err != nil {
		return Plan{}, err
	}

	if plan.Kind != SingleShard && !s.IsSingleShardSafe() {
		return Plan{}, multidberr.ErrRawUnderScatterGather
	}

	if isWrite && plan.Kind == ScatterGather && !allowAllShardsWrite {
		return Plan{}, &multidberr.MissingShardKeyError{Model: modelName}
	}

	return plan, nil
}

// boundValue is either a single constant or a finite set bound to one
// shard-key column.
type boundValue struct {
	single interface{}
	hasSingle bool
	set    []interface{}
}

// collectBoundValues walks terms looking for equality/IN predicates on
// shardKeyColumns. Per §4.9 step 2, only terms reachable through an
// AND-dominated path count: terms nested under an Or group do not bind a
// shard key, since the predicate could still match rows on any shard.
func collectBoundValues(terms []query.Term, shardKeyColumns []string) map[string]*boundValue {
	wanted := make(map[string]bool, len(shardKeyColumns))
	for _, c := range shardKeyColumns {
		wanted[c] = true
	}
	bound := make(map[string]*boundValue)
	walkAndDominated(terms, wanted, bound)
	return bound
}

func walkAndDominated(terms []query.Term, wanted map[string]bool, bound map[string]*boundValue) {
	for _, t := range terms {
		switch v := t.(type) {
		case query.EqTerm:
			if wanted[v.Column] {
				bound[v.Column] = &boundValue{single: v.Value, hasSingle: true}
			}
		case query.InTerm:
			if wanted[v.Column] && !v.Negate {
				bound[v.Column] = &boundValue{set: v.Values}
			}
			// A NotIn term excludes values rather than binding the shard
			// key to a known set, so it never narrows the plan.
		case query.GroupTerm:
			if v.Op == query.And {
				walkAndDominated(v.Terms, wanted, bound)
			}
			// Or-joined groups never bind a shard key.
		}
	}
}

func (m *Manager) classify(reg *registration, bound map[string]*boundValue) (Plan, error) {
	cols := reg.descriptor.ShardKeyColumns

	// Single composite column or one shard-key column: resolve directly.
	if len(cols) == 1 {
		bv, ok := bound[cols[0]]
		if !ok {
			return Plan{Kind: ScatterGather, Shards: reg.resolver.Shards()}, nil
		}
		if bv.hasSingle {
			s, err := reg.resolver.Resolve(bv.single)
			if err != nil {
				return Plan{}, err
			}
			return Plan{Kind: SingleShard, Shards: []string{s}}, nil
		}
		seen := make(map[string]bool)
		var shards []string
		for _, val := range bv.set {
			s, err := reg.resolver.Resolve(val)
			if err != nil {
				return Plan{}, err
			}
			if !seen[s] {
				seen[s] = true
				shards = append(shards, s)
			}
		}
		if len(shards) == 1 {
			return Plan{Kind: SingleShard, Shards: shards}, nil
		}
		return Plan{Kind: TargetedMultiShard, Shards: shards}, nil
	}

	// Composite shard key: resolving takes a resolver with a variadic
	// Resolve. A shard.Resolver's Resolve takes one value, so no registered
	// resolver has that form (shard.CompositeResolver's Resolve is
	// variadic, so it does not satisfy shard.Resolver and cannot be passed
	// to Register). A multi-column shard key therefore always plans
	// ScatterGather over every shard, whether or not its columns are bound.
	composite, ok := reg.resolver.(interface {
		Resolve(values ...interface{}) (string, error)
	})
	if !ok {
		return Plan{Kind: ScatterGather, Shards: reg.resolver.Shards()}, nil
	}
	values := make([]interface{}, len(cols))
	for i, c := range cols {
		bv, ok := bound[c]
		if !ok || !bv.hasSingle {
			return Plan{Kind: ScatterGather, Shards: reg.resolver.Shards()}, nil
		}
		values[i] = bv.single
	}
	s, err := composite.Resolve(values...)
	if err != nil {
		return Plan{}, err
	}
	return Plan{Kind: SingleShard, Shards: []string{s}}, nil
}
