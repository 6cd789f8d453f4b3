// Package lb implements the Replica Load Balancer: round-robin, random,
// and least-connections strategies over a replica group, skipping
// unhealthy members and falling back per §4.5.
package lb

import (
	"math/rand"
	"sync/atomic"

	"eve.evalgo.org/multidb/multidberr"
)

// Strategy names a load-balancing strategy.
type Strategy string

const (
	RoundRobin       Strategy = "round_robin"
	Random           Strategy = "random"
	LeastConnections Strategy = "least_connections"
)

// Adapter is the minimal shape Balancer needs from a pooled adapter,
// satisfied by *registry.PooledAdapter without an import cycle.
type Adapter interface {
	IsHealthy() bool
	InUse() int
	Identity() string
}

// Balancer holds per-group load-balancer state: strategy, a cursor for
// round-robin, and nothing else -- health and in-use counts are read live
// from each adapter, never cached here.
type Balancer struct {
	strategy Strategy
	cursor   uint64
}

// New constructs a Balancer using strategy.
func New(strategy Strategy) *Balancer {
	return &Balancer{strategy: strategy}
}

// Pick selects one adapter from group per the balancer's strategy. Pick
// never returns an adapter from a different group -- callers always pass
// exactly one (D,S) replica group. If the group is empty or entirely
// unhealthy, it returns NoHealthyReplicaError.
func (b *Balancer) Pick(group []Adapter) (Adapter, error) {
	if len(group) == 0 {
		return nil, &multidberr.NoHealthyReplicaError{}
	}

	switch b.strategy {
	case Random:
		return b.pickRandom(group)
	case LeastConnections:
		return b.pickLeastConnections(group)
	default:
		return b.pickRoundRobin(group)
	}
}

func (b *Balancer) pickRoundRobin(group []Adapter) (Adapter, error) {
	n := uint64(len(group))
	for i := uint64(0); i < n; i++ {
		idx := (atomic.AddUint64(&b.cursor, 1) - 1) % n
		if group[idx].IsHealthy() {
			return group[idx], nil
		}
	}
	// None healthy: no adapter is returned, not even an unhealthy one;
	// NoHealthyReplicaError lets callers fall back to primary.
	return nil, &multidberr.NoHealthyReplicaError{}
}

func (b *Balancer) pickRandom(group []Adapter) (Adapter, error) {
	healthy := make([]Adapter, 0, len(group))
	for _, a := range group {
		if a.IsHealthy() {
			healthy = append(healthy, a)
		}
	}
	if len(healthy) == 0 {
		return nil, &multidberr.NoHealthyReplicaError{}
	}
	return healthy[rand.Intn(len(healthy))], nil
}

func (b *Balancer) pickLeastConnections(group []Adapter) (Adapter, error) {
	var best Adapter
	bestCount := -1
	for _, a := range group {
		if !a.IsHealthy() {
			continue
		}
		if bestCount == -1 || a.InUse() < bestCount {
			best = a
			bestCount = a.InUse()
		}
	}
	if best == nil {
		return nil, &multidberr.NoHealthyReplicaError{}
	}
	return best, nil
}
