package query

import (
	"fmt"
	"strings"

	"eve.evalgo.org/multidb/adapter"
	"eve.evalgo.org/multidb/multidberr"
)

// Assembled is a ready-to-execute statement: dialect SQL text and its
// positional argument list, guaranteed to have one arg per placeholder.
type Assembled struct {
	SQL  string
	Args []interface{}
}

// Assembler renders a State into dialect SQL through an adapter.Adapter,
// never silently downgrading a requested lock mode the dialect doesn't
// support.
type Assembler struct {
	a *adapter.Adapter
}

// NewAssembler binds an Assembler to a, whose Capabilities and quoting
// rules govern every Assemble call.
func NewAssembler(a *adapter.Adapter) *Assembler {
	return &Assembler{a: a}
}

// AssembleSelect renders a SELECT statement for s, appending any lock
// suffix requested. It returns UnsupportedLockModeError if s requests a
// mode the dialect cannot honor, rather than emitting an unlocked read.
func (asm *Assembler) AssembleSelect(s State, columns ...string) (Assembled, error) {
	if s.HasLock && !asm.a.Caps.SupportsLockMode(s.Lock) {
		return Assembled{}, &multidberr.UnsupportedLockModeError{Dialect: string(asm.a.Dialect), Mode: string(s.Lock)}
	}

	cols := "*"
	if len(columns) > 0 {
		quoted := make([]string, len(columns))
		for i, c := range columns {
			quoted[i] = asm.a.QuoteIdentifier(c)
		}
		cols = strings.Join(quoted, ", ")
	}

	var b strings.Builder
	var args []interface{}
	fmt.Fprintf(&b, "SELECT %s FROM %s", cols, asm.a.QuoteIdentifier(s.Table))

	if len(s.Terms) > 0 {
		whereSQL, whereArgs, err := asm.renderTerms(s.Terms, And)
		if err != nil {
			return Assembled{}, err
		}
		b.WriteString(" WHERE ")
		b.WriteString(whereSQL)
		args = append(args, whereArgs...)
	}

	if len(s.Order) > 0 {
		parts := make([]string, len(s.Order))
		for i, o := range s.Order {
			parts[i] = fmt.Sprintf("%s %s", asm.a.QuoteIdentifier(o.Column), o.Direction)
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(parts, ", "))
	}

	if s.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", s.Limit)
	}
	if s.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", s.Offset)
	}

	if s.HasLock {
		if suffix := asm.a.EmitLockSuffix(s.Lock); suffix != "" {
			b.WriteString(" ")
			b.WriteString(suffix)
		}
	}

	return Assembled{SQL: b.String(), Args: args}, nil
}

// AssembleDelete renders a DELETE statement for s.
func (asm *Assembler) AssembleDelete(s State) (Assembled, error) {
	var b strings.Builder
	var args []interface{}
	fmt.Fprintf(&b, "DELETE FROM %s", asm.a.QuoteIdentifier(s.Table))

	if len(s.Terms) > 0 {
		whereSQL, whereArgs, err := asm.renderTerms(s.Terms, And)
		if err != nil {
			return Assembled{}, err
		}
		b.WriteString(" WHERE ")
		b.WriteString(whereSQL)
		args = append(args, whereArgs...)
	}
	return Assembled{SQL: b.String(), Args: args}, nil
}

// AssembleUpdate renders an UPDATE statement setting columns in the order
// given by setOrder, with values from sets, filtered by s's WHERE terms.
func (asm *Assembler) AssembleUpdate(s State, setOrder []string, sets map[string]interface{}) (Assembled, error) {
	var b strings.Builder
	var args []interface{}
	fmt.Fprintf(&b, "UPDATE %s SET ", asm.a.QuoteIdentifier(s.Table))

	assigns := make([]string, len(setOrder))
	for i, col := range setOrder {
		assigns[i] = fmt.Sprintf("%s = ?", asm.a.QuoteIdentifier(col))
		args = append(args, sets[col])
	}
	b.WriteString(strings.Join(assigns, ", "))

	if len(s.Terms) > 0 {
		whereSQL, whereArgs, err := asm.renderTerms(s.Terms, And)
		if err != nil {
			return Assembled{}, err
		}
		b.WriteString(" WHERE ")
		b.WriteString(whereSQL)
		args = append(args, whereArgs...)
	}
	return Assembled{SQL: b.String(), Args: args}, nil
}

// AssembleInsert renders an INSERT statement for one row, columns in
// insertOrder with values from values.
func (asm *Assembler) AssembleInsert(table string, insertOrder []string, values map[string]interface{}) Assembled {
	cols := make([]string, len(insertOrder))
	placeholders := make([]string, len(insertOrder))
	args := make([]interface{}, len(insertOrder))
	for i, col := range insertOrder {
		cols[i] = asm.a.QuoteIdentifier(col)
		placeholders[i] = "?"
		args[i] = values[col]
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", asm.a.QuoteIdentifier(table), strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	return Assembled{SQL: sql, Args: args}
}

func (asm *Assembler) renderTerms(terms []Term, joiner GroupOp) (string, []interface{}, error) {
	parts := make([]string, 0, len(terms))
	var args []interface{}
	for _, t := range terms {
		sql, termArgs, err := asm.renderTerm(t)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		args = append(args, termArgs...)
	}
	return strings.Join(parts, " "+string(joiner)+" "), args, nil
}

func (asm *Assembler) renderTerm(t Term) (string, []interface{}, error) {
	switch v := t.(type) {
	case EqTerm:
		return fmt.Sprintf("%s = ?", asm.a.QuoteIdentifier(v.Column)), []interface{}{v.Value}, nil

	case InTerm:
		if len(v.Values) == 0 {
			if v.Negate {
				return "1 = 1", nil, nil
			}
			return "1 = 0", nil, nil
		}
		placeholders := strings.Repeat("?, ", len(v.Values))
		placeholders = strings.TrimSuffix(placeholders, ", ")
		kw := "IN"
		if v.Negate {
			kw = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", asm.a.QuoteIdentifier(v.Column), kw, placeholders), v.Values, nil

	case RangeTerm:
		lowOp, highOp := ">=", "<="
		if !v.LowInclusive {
			lowOp = ">"
		}
		if !v.HighInclusive {
			highOp = "<"
		}
		col := asm.a.QuoteIdentifier(v.Column)
		return fmt.Sprintf("(%s %s ? AND %s %s ?)", col, lowOp, col, highOp), []interface{}{v.Low, v.High}, nil

	case CmpTerm:
		return fmt.Sprintf("%s %s ?", asm.a.QuoteIdentifier(v.Column), v.Op), []interface{}{v.Value}, nil

	case NullTerm:
		if v.Negate {
			return fmt.Sprintf("%s IS NOT NULL", asm.a.QuoteIdentifier(v.Column)), nil, nil
		}
		return fmt.Sprintf("%s IS NULL", asm.a.QuoteIdentifier(v.Column)), nil, nil

	case LikeTerm:
		kw := "LIKE"
		if v.Negate {
			kw = "NOT LIKE"
		}
		return fmt.Sprintf("%s %s ?", asm.a.QuoteIdentifier(v.Column), kw), []interface{}{v.Pattern}, nil

	case GroupTerm:
		if v.Op == Not {
			inner, innerArgs, err := asm.renderTerms(v.Terms, And)
			if err != nil {
				return "", nil, err
			}
			return "NOT (" + inner + ")", innerArgs, nil
		}
		inner, innerArgs, err := asm.renderTerms(v.Terms, v.Op)
		if err != nil {
			return "", nil, err
		}
		return "(" + inner + ")", innerArgs, nil

	case ExistsTerm:
		kw := "EXISTS"
		if v.Negate {
			kw = "NOT EXISTS"
		}
		return fmt.Sprintf("%s (%s)", kw, v.Subquery), v.Args, nil

	case RawTerm:
		return v.SQL, v.Args, nil

	default:
		return "", nil, fmt.Errorf("query: unknown term type %T", t)
	}
}
