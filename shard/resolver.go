// Package shard implements shard-key Resolvers: the pluggable strategies
// that map a shard-key value to a shard name. All resolvers must be
// deterministic across processes (no language-default hash) so the same
// value always routes to the same shard from any instance.
package shard

import (
	"fmt"
	"hash/fnv"
	"sort"

	"eve.evalgo.org/multidb/multidberr"
)

// Resolver maps a shard-key value to a shard name. Implementations must
// never accept nil: a nil shard-key value is a configuration error, not a
// routable case, and must return MissingShardKeyError.
type Resolver interface {
	// Name identifies the resolver for error messages and logging.
	Name() string
	// Resolve returns the shard name for value, or an error if value is
	// nil, unmapped, or otherwise unroutable.
	Resolve(value interface{}) (string, error)
	// Shards returns every shard name the resolver knows about, in a
	// stable order.
	Shards() []string
}

// stableHash is the deterministic hash used by HashResolver. FNV-1a over
// the value's string form is stable across processes and Go versions,
// unlike the language's built-in map iteration order or any hash seeded
// per-process (e.g. maphash with a random seed).
func stableHash(value interface{}) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(fmt.Sprint(value)))
	return h.Sum64()
}

// HashResolver distributes values across a fixed set of shards by
// stable hash modulo shard count.
type HashResolver struct {
	shards []string
}

// NewHashResolver constructs a HashResolver over shards, in the given
// order. The order only affects Shards(); routing is by hash.
func NewHashResolver(shards ...string) *HashResolver {
	cp := make([]string, len(shards))
	copy(cp, shards)
	return &HashResolver{shards: cp}
}

func (h *HashResolver) Name() string { return "hash" }

func (h *HashResolver) Resolve(value interface{}) (string, error) {
	if value == nil {
		return "", &multidberr.MissingShardKeyError{}
	}
	if len(h.shards) == 0 {
		return "", &multidberr.NoShardForValueError{Resolver: h.Name(), Value: value}
	}
	idx := stableHash(value) % uint64(len(h.shards))
	return h.shards[idx], nil
}

func (h *HashResolver) Shards() []string {
	out := make([]string, len(h.shards))
	copy(out, h.shards)
	return out
}

// RangeBound is one [Low, High) half-open range mapped to Shard. High is
// exclusive; callers comparing ordered values (ints, times-as-unix) use
// this to mean "up to but not including".
type RangeBound struct {
	Low   int64
	High  int64
	Shard string
}

// RangeResolver maps an ordered integer key to the shard owning its
// range. Ranges must be registered covering a contiguous, non-overlapping
// span; RangeResolver rejects construction if they are not, since a gap
// or overlap would make routing ambiguous or make some values unroutable.
type RangeResolver struct {
	bounds []RangeBound
}

// NewRangeResolver sorts a copy of bounds by Low, then validates they are
// contiguous (bounds[i].High == bounds[i+1].Low) and non-overlapping
// before constructing the resolver. Gaps and overlaps are both configuration errors caught at
// registration time rather than surfacing as a runtime NoShardForValueError
// for values that should have been routable.
func NewRangeResolver(bounds []RangeBound) (*RangeResolver, error) {
	cp := make([]RangeBound, len(bounds))
	copy(cp, bounds)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Low < cp[j].Low })

	for i := 1; i < len(cp); i++ {
		if cp[i].Low != cp[i-1].High {
			return nil, fmt.Errorf("shard range gap or overlap between %q and %q", cp[i-1].Shard, cp[i].Shard)
		}
	}
	return &RangeResolver{bounds: cp}, nil
}

func (r *RangeResolver) Name() string { return "range" }

func (r *RangeResolver) Resolve(value interface{}) (string, error) {
	if value == nil {
		return "", &multidberr.MissingShardKeyError{}
	}
	v, ok := toInt64(value)
	if !ok {
		return "", &multidberr.NoShardForValueError{Resolver: r.Name(), Value: value}
	}
	for _, b := range r.bounds {
		if v >= b.Low && v < b.High {
			return b.Shard, nil
		}
	}
	return "", &multidberr.NoShardForValueError{Resolver: r.Name(), Value: value}
}

func (r *RangeResolver) Shards() []string {
	out := make([]string, len(r.bounds))
	for i, b := range r.bounds {
		out[i] = b.Shard
	}
	return out
}

func toInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	default:
		return 0, false
	}
}

// LookupResolver maps discrete, explicitly enumerated values to shards
// (e.g. tenant ID -> shard from a directory). Unmapped values are an
// error; LookupResolver never guesses.
type LookupResolver struct {
	table  map[interface{}]string
	shards []string
}

// NewLookupResolver constructs a LookupResolver from an explicit table.
func NewLookupResolver(table map[interface{}]string) *LookupResolver {
	cp := make(map[interface{}]string, len(table))
	seen := make(map[string]bool)
	var shards []string
	for k, v := range table {
		cp[k] = v
		if !seen[v] {
			seen[v] = true
			shards = append(shards, v)
		}
	}
	sort.Strings(shards)
	return &LookupResolver{table: cp, shards: shards}
}

func (l *LookupResolver) Name() string { return "lookup" }

func (l *LookupResolver) Resolve(value interface{}) (string, error) {
	if value == nil {
		return "", &multidberr.MissingShardKeyError{}
	}
	shard, ok := l.table[value]
	if !ok {
		return "", &multidberr.NoShardForValueError{Resolver: l.Name(), Value: value}
	}
	return shard, nil
}

func (l *LookupResolver) Shards() []string {
	out := make([]string, len(l.shards))
	copy(out, l.shards)
	return out
}

// CompositeResolver combines multiple shard-key columns into one routing
// decision by delegating to an inner Resolver keyed on a composite value
// built from all columns' values, joined in declaration order. Used when
// a model's shard key spans more than one column.
type CompositeResolver struct {
	inner   Resolver
	columns []string
}

// NewCompositeResolver wraps inner, documenting which columns the caller
// must supply (in order) when building the composite value passed to
// Resolve.
func NewCompositeResolver(inner Resolver, columns ...string) *CompositeResolver {
	cp := make([]string, len(columns))
	copy(cp, columns)
	return &CompositeResolver{inner: inner, columns: cp}
}

func (c *CompositeResolver) Name() string { return "composite:" + c.inner.Name() }

// Resolve expects values with one entry per registered column, in order.
// Any nil entry is a MissingShardKeyError: a composite shard key is only
// as complete as its least-present part.
func (c *CompositeResolver) Resolve(values ...interface{}) (string, error) {
	if len(values) != len(c.columns) {
		return "", fmt.Errorf("composite resolver expects %d values, got %d", len(c.columns), len(values))
	}
	parts := make([]string, len(values))
	for i, v := range values {
		if v == nil {
			return "", &multidberr.MissingShardKeyError{Column: c.columns[i]}
		}
		parts[i] = fmt.Sprint(v)
	}
	composite := fmt.Sprintf("%v", parts)
	return c.inner.Resolve(composite)
}

func (c *CompositeResolver) Shards() []string { return c.inner.Shards() }
