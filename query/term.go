// Package query implements Query State: an immutable, builder-style
// representation of a query's predicates, ordering, and limits, plus the
// SQL Assembler that renders it through a dialect's adapter.Adapter.
package query

// Term is the closed sum type of predicate kinds a State may carry. The
// unexported marker method keeps it closed to this package: callers
// compose queries from the constructors below (Eq, In, Range, ...)
// rather than implementing Term themselves.
type Term interface {
	term()
}

// Eq is an equality predicate: Column = Value.
type EqTerm struct {
	Column string
	Value  interface{}
}

func (EqTerm) term() {}

// Eq constructs an equality predicate.
func Eq(column string, value interface{}) Term { return EqTerm{Column: column, Value: value} }

// InTerm is a membership predicate: Column IN (Values...), or
// Column NOT IN (Values...) when Negate is set.
type InTerm struct {
	Column string
	Values []interface{}
	Negate bool
}

func (InTerm) term() {}

// In constructs a membership predicate.
func In(column string, values ...interface{}) Term { return InTerm{Column: column, Values: values} }

// NotIn constructs a negated membership predicate.
func NotIn(column string, values ...interface{}) Term {
	return InTerm{Column: column, Values: values, Negate: true}
}

// RangeTerm is a bounded-range predicate: Column BETWEEN Low AND High,
// honoring LowInclusive/HighInclusive for open vs. closed ends.
type RangeTerm struct {
	Column        string
	Low, High     interface{}
	LowInclusive  bool
	HighInclusive bool
}

func (RangeTerm) term() {}

// Range constructs a closed range predicate (>= low, <= high).
func Range(column string, low, high interface{}) Term {
	return RangeTerm{Column: column, Low: low, High: high, LowInclusive: true, HighInclusive: true}
}

// CmpOp is a comparison operator for CmpTerm.
type CmpOp string

const (
	GT CmpOp = ">"
	GE CmpOp = ">="
	LT CmpOp = "<"
	LE CmpOp = "<="
	NE CmpOp = "<>"
)

// CmpTerm is a single comparison predicate: Column Op Value.
type CmpTerm struct {
	Column string
	Op     CmpOp
	Value  interface{}
}

func (CmpTerm) term() {}

// Cmp constructs a comparison predicate.
func Cmp(column string, op CmpOp, value interface{}) Term {
	return CmpTerm{Column: column, Op: op, Value: value}
}

// NullTerm is an IS [NOT] NULL predicate.
type NullTerm struct {
	Column string
	Negate bool
}

func (NullTerm) term() {}

// IsNull constructs an IS NULL predicate.
func IsNull(column string) Term { return NullTerm{Column: column} }

// IsNotNull constructs an IS NOT NULL predicate.
func IsNotNull(column string) Term { return NullTerm{Column: column, Negate: true} }

// LikeTerm is a pattern-match predicate: Column LIKE Pattern, or
// Column NOT LIKE Pattern when Negate is set.
type LikeTerm struct {
	Column  string
	Pattern string
	Negate  bool
}

func (LikeTerm) term() {}

// Like constructs a LIKE predicate.
func Like(column, pattern string) Term { return LikeTerm{Column: column, Pattern: pattern} }

// NotLike constructs a negated LIKE predicate.
func NotLike(column, pattern string) Term {
	return LikeTerm{Column: column, Pattern: pattern, Negate: true}
}

// GroupOp joins GroupTerm's inner terms. Not is unary: it negates the
// parenthesized conjunction of Terms rather than joining them.
type GroupOp string

const (
	And GroupOp = "AND"
	Or  GroupOp = "OR"
	Not GroupOp = "NOT"
)

// GroupTerm parenthesizes a set of Terms joined by Op, for building
// nested boolean expressions. When Op is Not, Terms are AND-joined and
// the whole group is negated: NOT (a AND b).
type GroupTerm struct {
	Op    GroupOp
	Terms []Term
}

func (GroupTerm) term() {}

// Group constructs a parenthesized conjunction/disjunction/negation of
// terms.
func Group(op GroupOp, terms ...Term) Term { return GroupTerm{Op: op, Terms: terms} }

// ExistsTerm is an EXISTS/NOT EXISTS subquery predicate. Subquery is the
// already-assembled inner SQL text; correlated columns must be baked into
// it by the caller, since a closed sum type can't express an arbitrary
// correlated subquery builder without a recursive State reference.
type ExistsTerm struct {
	Subquery string
	Args     []interface{}
	Negate   bool
}

func (ExistsTerm) term() {}

// Exists constructs an EXISTS predicate over a pre-built subquery.
func Exists(subquery string, args ...interface{}) Term {
	return ExistsTerm{Subquery: subquery, Args: args}
}

// RawTerm escapes to hand-written SQL with positional args. Raw is
// forbidden under any routing plan that is not guaranteed single-shard
// (TargetedMultiShard or ScatterGather): the router rejects State values
// containing a RawTerm in that case, since there is no way to verify a
// hand-written fragment only touches state safe to run on every shard.
type RawTerm struct {
	SQL  string
	Args []interface{}
}

func (RawTerm) term() {}

// Raw constructs a raw-SQL predicate. Use sparingly; see RawTerm's
// routing restriction.
func Raw(sql string, args ...interface{}) Term { return RawTerm{SQL: sql, Args: args} }

// HasRaw reports whether any term in terms is, or transitively contains,
// a RawTerm.
func HasRaw(terms []Term) bool {
	for _, t := range terms {
		switch v := t.(type) {
		case RawTerm:
			return true
		case GroupTerm:
			if HasRaw(v.Terms) {
				return true
			}
		}
	}
	return false
}
