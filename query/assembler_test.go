package query

import (
	"errors"
	"testing"

	"eve.evalgo.org/multidb/adapter"
	"eve.evalgo.org/multidb/multidberr"
	"github.com/stretchr/testify/require"
)

func postgresAssembler() *Assembler {
	a := adapter.NewPostgres(nil)
	return NewAssembler(a)
}

func TestAssembleSelectWithWhereAndOrder(t *testing.T) {
	asm := postgresAssembler()
	s := New("orders").
		Where(Eq("status", "open"), In("region", "us", "eu")).
		OrderBy("created_at", Desc).
		Paginate(10, 20)

	out, err := asm.AssembleSelect(s)
	require.NoError(t, err)
	require.Contains(t, out.SQL, `WHERE "status" = ? AND "region" IN (?, ?)`)
	require.Contains(t, out.SQL, "ORDER BY")
	require.Contains(t, out.SQL, "LIMIT 10")
	require.Contains(t, out.SQL, "OFFSET 20")
	require.Equal(t, []interface{}{"open", "us", "eu"}, out.Args)
}

func TestAssembleSelectRejectsUnsupportedLockMode(t *testing.T) {
	a := adapter.NewSQLite(nil)
	asm := NewAssembler(a)
	s := New("orders").Locked(adapter.LockUpdate)

	_, err := asm.AssembleSelect(s)
	var unsupported *multidberr.UnsupportedLockModeError
	require.True(t, errors.As(err, &unsupported))
}

func TestAssembleSelectArgCountMatchesPlaceholders(t *testing.T) {
	asm := postgresAssembler()
	s := New("accounts").Where(Group(Or, Eq("a", 1), Eq("b", 2)), Range("created_at", 1, 100))

	out, err := asm.AssembleSelect(s)
	require.NoError(t, err)
	placeholderCount := 0
	for _, c := range out.SQL {
		if c == '?' {
			placeholderCount++
		}
	}
	require.Len(t, out.Args, placeholderCount)
}

func TestAssembleSelectRendersNotLike(t *testing.T) {
	asm := postgresAssembler()
	s := New("orders").Where(NotLike("note", "%cancelled%"))

	out, err := asm.AssembleSelect(s)
	require.NoError(t, err)
	require.Contains(t, out.SQL, `"note" NOT LIKE ?`)
	require.Equal(t, []interface{}{"%cancelled%"}, out.Args)
}

func TestAssembleSelectRendersNotIn(t *testing.T) {
	asm := postgresAssembler()
	s := New("orders").Where(NotIn("region", "us", "eu"))

	out, err := asm.AssembleSelect(s)
	require.NoError(t, err)
	require.Contains(t, out.SQL, `"region" NOT IN (?, ?)`)
	require.Equal(t, []interface{}{"us", "eu"}, out.Args)
}

func TestAssembleSelectEmptyNotInIsConstantTrue(t *testing.T) {
	asm := postgresAssembler()
	s := New("orders").Where(NotIn("region"))

	out, err := asm.AssembleSelect(s)
	require.NoError(t, err)
	require.Contains(t, out.SQL, "1 = 1")
	require.Empty(t, out.Args)
}

func TestAssembleSelectRendersNotGroupAsUnaryPrefix(t *testing.T) {
	asm := postgresAssembler()
	s := New("orders").Where(Group(Not, Eq("status", "open"), Eq("region", "us")))

	out, err := asm.AssembleSelect(s)
	require.NoError(t, err)
	require.Contains(t, out.SQL, `NOT ("status" = ? AND "region" = ?)`)
	require.Equal(t, []interface{}{"open", "us"}, out.Args)
}
