package query

import (
	"eve.evalgo.org/multidb/adapter"
)

// OrderDirection is ascending or descending for one OrderBy entry.
type OrderDirection string

const (
	Asc  OrderDirection = "ASC"
	Desc OrderDirection = "DESC"
)

// OrderTerm is one ORDER BY column/direction pair.
type OrderTerm struct {
	Column    string
	Direction OrderDirection
}

// State is an immutable description of a query: table, predicates,
// ordering, pagination, and an optional row lock. Every builder method
// returns a new State, leaving the receiver untouched, so a State can be
// safely shared and extended along multiple branches (e.g. a base scope
// reused by several callers).
type State struct {
	Table   string
	Terms   []Term
	Order   []OrderTerm
	Limit   int
	Offset  int
	HasLock bool
	Lock    adapter.LockMode
}

// New starts a State for table.
func New(table string) State {
	return State{Table: table}
}

// Where appends terms (implicitly AND-ed together), returning a new
// State.
func (s State) Where(terms ...Term) State {
	next := s.clone()
	next.Terms = append(next.Terms, terms...)
	return next
}

// OrderBy appends an ordering term.
func (s State) OrderBy(column string, dir OrderDirection) State {
	next := s.clone()
	next.Order = append(next.Order, OrderTerm{Column: column, Direction: dir})
	return next
}

// Paginate sets LIMIT/OFFSET.
func (s State) Paginate(limit, offset int) State {
	next := s.clone()
	next.Limit = limit
	next.Offset = offset
	return next
}

// Locked sets a row lock mode for this query; the assembler rejects
// modes unsupported by the target dialect at assembly time rather than
// silently downgrading to an unlocked read.
func (s State) Locked(mode adapter.LockMode) State {
	next := s.clone()
	next.HasLock = true
	next.Lock = mode
	return next
}

// IsSingleShardSafe reports whether this State contains no RawTerm,
// making it safe to route as TargetedMultiShard or ScatterGather. Plans
// that are guaranteed SingleShard may carry Raw terms since exactly one
// shard ever executes them.
func (s State) IsSingleShardSafe() bool {
	return !HasRaw(s.Terms)
}

func (s State) clone() State {
	next := s
	next.Terms = append([]Term(nil), s.Terms...)
	next.Order = append([]OrderTerm(nil), s.Order...)
	return next
}
