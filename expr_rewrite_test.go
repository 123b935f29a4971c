package strrefine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubstitute(t *testing.T) {
	eb := NewExprBuilder()
	a := eb.Sym("a", IntSort)
	b := eb.Sym("b", IntSort)

	e, _ := eb.Add(a, b)
	e, _ = eb.Le(e, eb.IntVal(10))

	r, err := eb.Substitute(e, map[*ExprPtr]*ExprPtr{a: eb.IntVal(1)})
	require.NoError(t, err)
	assert.Equal(t, "(1 + b) <= 10", r.String())

	r, err = eb.Substitute(e, map[*ExprPtr]*ExprPtr{a: eb.IntVal(1), b: eb.IntVal(2)})
	require.NoError(t, err)
	assert.True(t, r.IsTrue())

	_, err = eb.Substitute(e, map[*ExprPtr]*ExprPtr{a: eb.CharVal('x')})
	assert.ErrorIs(t, err, ErrSortMismatch)
}

func TestInstantiateForall(t *testing.T) {
	eb := NewExprBuilder()
	s := eb.Sym("s", StringSort)
	n := eb.Sym("n", IntSort)
	i := eb.Sym("i", IntSort)

	c, _ := eb.Index(s, i)
	body, _ := eb.Eq(c, eb.CharVal('a'))
	f, _ := eb.Forall(i, eb.IntVal(0), n, body)

	instances, err := eb.InstantiateForall(f, 2)
	require.NoError(t, err)
	assert.NotContains(t, instances.String(), "forall")

	holds := func(length int64) bool {
		v, err := eb.Eval(instances, Interpretation{Values: map[string]*ExprPtr{
			"s": eb.StringLit("ab"),
			"n": eb.IntVal(length),
		}})
		require.NoError(t, err)
		require.True(t, v.IsConst(), "not a constant: %s", v)
		return v.IsTrue()
	}
	assert.True(t, holds(0))
	assert.True(t, holds(1))
	assert.False(t, holds(2))

	_, err = eb.InstantiateForall(body, 2)
	assert.ErrorIs(t, err, ErrUnsupportedExpr)
}

func evalAt(t *testing.T, eb *ExprBuilder, e *ExprPtr, name string, v int64) *ExprPtr {
	t.Helper()
	r, err := eb.Eval(e, Interpretation{Values: map[string]*ExprPtr{name: eb.IntVal(v)}})
	require.NoError(t, err)
	return r
}

func TestSubstituteArrayAccess(t *testing.T) {
	eb := NewExprBuilder()
	i := eb.Sym("i", IntSort)

	arr, _ := eb.ArrayOf(eb.CharVal('z'))
	arr, _ = eb.With(arr, eb.IntVal(2), eb.CharVal('a'))
	arr, _ = eb.With(arr, eb.IntVal(5), eb.CharVal('b'))
	read, _ := eb.Index(arr, i)

	point, err := eb.SubstituteArrayAccess(read, false)
	require.NoError(t, err)
	assert.Equal(t, "(i == 2) ? 'a' : ((i == 5) ? 'b' : 'z')", point.String())
	assert.Equal(t, eb.CharVal('a'), evalAt(t, eb, point, "i", 2))
	assert.Equal(t, eb.CharVal('z'), evalAt(t, eb, point, "i", 3))

	interval, err := eb.SubstituteArrayAccess(read, true)
	require.NoError(t, err)
	assert.Equal(t, eb.CharVal('a'), evalAt(t, eb, interval, "i", 0))
	assert.Equal(t, eb.CharVal('b'), evalAt(t, eb, interval, "i", 3))
	assert.Equal(t, eb.CharVal('z'), evalAt(t, eb, interval, "i", 6))
}

func TestSubstituteArrayAccessSymbolicUpdate(t *testing.T) {
	eb := NewExprBuilder()
	i := eb.Sym("i", IntSort)
	j := eb.Sym("j", IntSort)

	arr, _ := eb.ArrayOf(eb.CharVal('z'))
	arr, _ = eb.With(arr, j, eb.CharVal('a'))
	read, _ := eb.Index(arr, i)

	r, err := eb.SubstituteArrayAccess(read, false)
	require.NoError(t, err)
	assert.Equal(t, "(i == j) ? 'a' : 'z'", r.String())
}

func TestSubstituteArrayAccessLiteral(t *testing.T) {
	eb := NewExprBuilder()
	i := eb.Sym("i", IntSort)

	read, _ := eb.Index(eb.StringLit("ab"), i)
	r, err := eb.SubstituteArrayAccess(read, false)
	require.NoError(t, err)
	assert.Equal(t, eb.CharVal('a'), evalAt(t, eb, r, "i", 0))
	assert.Equal(t, eb.CharVal('b'), evalAt(t, eb, r, "i", 1))
	assert.Equal(t, eb.CharVal(0), evalAt(t, eb, r, "i", 7))
}

func TestSubstituteArrayAccessConditional(t *testing.T) {
	eb := NewExprBuilder()
	i := eb.Sym("i", IntSort)
	s := eb.Sym("s", StringSort)
	u := eb.Sym("u", StringSort)
	cond := eb.Sym("c", BoolSort)

	str, _ := eb.ITE(cond, s, u)
	read, _ := eb.Index(str, i)
	l, _ := eb.Length(str)
	e, _ := eb.Eq(read, eb.CharVal('x'))
	e2, _ := eb.Eq(l, eb.IntVal(3))
	e, _ = eb.And(e, e2)

	r, err := eb.SubstituteArrayAccess(e, false)
	require.NoError(t, err)
	assert.Equal(t, "((c ? s[i] : u[i]) == 'x') && ((c ? len(s) : len(u)) == 3)", r.String())
}
