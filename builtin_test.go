package strrefine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// refString returns the {name_len, name_ptr} argument of a string primitive.
func refString(eb *ExprBuilder, name string) *ExprPtr {
	r, err := eb.RefString(eb.Sym(name+"_len", IntSort), eb.Sym(name+"_ptr", PointerSort))
	if err != nil {
		panic(err)
	}
	return r
}

func lookupOf(values map[string]*ExprPtr) ValueLookup {
	return func(e *ExprPtr) *ExprPtr {
		return values[e.String()]
	}
}

type builtinFixture struct {
	eb   *ExprBuilder
	pool *ArrayPool
	n, p *ExprPtr
	rc   *ExprPtr
}

func newBuiltinFixture() *builtinFixture {
	eb := NewExprBuilder()
	return &builtinFixture{
		eb:   eb,
		pool: NewArrayPool(eb),
		n:    eb.Sym("n", IntSort),
		p:    eb.Sym("p", PointerSort),
		rc:   eb.Sym("rc", IntSort),
	}
}

func (f *builtinFixture) build(t *testing.T, name string, args ...*ExprPtr) BuiltinFunction {
	t.Helper()
	app := f.eb.FunApp(name, IntSort, append([]*ExprPtr{f.n, f.p}, args...)...)
	b, err := NewBuiltinFunction(f.eb, f.rc, app, f.pool)
	require.NoError(t, err)
	return b
}

func TestConcatenationBuiltin(t *testing.T) {
	f := newBuiltinFixture()
	eb := f.eb
	b := f.build(t, FuncStringConcat, refString(eb, "a"), refString(eb, "b"))

	require.IsType(t, &ConcatenationBuiltin{}, b)
	assert.Equal(t, FuncStringConcat, b.Name())
	assert.Equal(t, f.rc, b.ReturnCode())
	assert.False(t, b.MaybeTestingFunction())
	result, ok := b.StringResult()
	require.True(t, ok)
	assert.Equal(t, "string_array_0", result.String())
	assert.Equal(t, []string{"string_array_1", "string_array_2"}, names(b.StringArguments()))

	v, ok := b.Eval(lookupOf(map[string]*ExprPtr{
		"string_array_1": eb.StringLit("ab"),
		"string_array_2": eb.StringLit("cd"),
	}))
	require.True(t, ok)
	assert.Equal(t, eb.StringLit("abcd"), v)

	_, ok = b.Eval(lookupOf(map[string]*ExprPtr{"string_array_1": eb.StringLit("ab")}))
	assert.False(t, ok)

	l, err := b.LengthConstraint()
	require.NoError(t, err)
	assert.Equal(t, "len(string_array_0) == (len(string_array_1) + len(string_array_2))", l.String())

	g := NewGenerator(eb, f.pool, 64, nil)
	ret, err := b.AddConstraints(g)
	require.NoError(t, err)
	assert.Equal(t, eb.IntVal(0), ret)

	values := map[string]*ExprPtr{
		"string_array_0": eb.StringLit("abcd"),
		"string_array_1": eb.StringLit("ab"),
		"string_array_2": eb.StringLit("cd"),
	}
	assert.True(t, holds(t, eb, g.Lemmas(), values))
	values["string_array_0"] = eb.StringLit("abce")
	assert.False(t, holds(t, eb, g.Lemmas(), values))
	values["string_array_0"] = eb.StringLit("abcdx")
	assert.False(t, holds(t, eb, g.Lemmas(), values))
}

func TestConcatenationBuiltinBounds(t *testing.T) {
	f := newBuiltinFixture()
	eb := f.eb
	start := eb.Sym("start", IntSort)
	end := eb.Sym("end", IntSort)
	b := f.build(t, FuncStringConcat, refString(eb, "a"), refString(eb, "b"), start, end)

	tests := []struct {
		start, end int64
		want       string
	}{
		{0, 2, "abcd"},
		{1, 10, "abd"},
		{-4, 1, "abc"},
		{5, 0, "ab"},
		{1, 0, "ab"},
	}
	for _, tt := range tests {
		values := map[string]*ExprPtr{
			"string_array_1": eb.StringLit("ab"),
			"string_array_2": eb.StringLit("cd"),
			"start":          eb.IntVal(tt.start),
			"end":            eb.IntVal(tt.end),
		}
		v, ok := b.Eval(lookupOf(values))
		require.True(t, ok)
		assert.Equal(t, eb.StringLit(tt.want), v, "start=%d end=%d", tt.start, tt.end)

		g := NewGenerator(eb, f.pool, 64, nil)
		_, err := b.AddConstraints(g)
		require.NoError(t, err)
		values["string_array_0"] = v
		assert.True(t, holds(t, eb, g.Lemmas(), values), "start=%d end=%d", tt.start, tt.end)
		values["string_array_0"] = eb.StringLit(tt.want + "x")
		assert.False(t, holds(t, eb, g.Lemmas(), values), "start=%d end=%d", tt.start, tt.end)
	}
}

func TestInsertionBuiltin(t *testing.T) {
	f := newBuiltinFixture()
	eb := f.eb
	offset := eb.Sym("offset", IntSort)
	b := f.build(t, FuncStringInsert, refString(eb, "a"), refString(eb, "b"), offset)
	require.IsType(t, &InsertionBuiltin{}, b)

	tests := []struct {
		offset int64
		want   string
	}{
		{2, "heXYllo"},
		{0, "XYhello"},
		{-3, "XYhello"},
		{5, "helloXY"},
		{99, "helloXY"},
	}
	for _, tt := range tests {
		values := map[string]*ExprPtr{
			"string_array_1": eb.StringLit("hello"),
			"string_array_2": eb.StringLit("XY"),
			"offset":         eb.IntVal(tt.offset),
		}
		v, ok := b.Eval(lookupOf(values))
		require.True(t, ok)
		assert.Equal(t, eb.StringLit(tt.want), v, "offset %d", tt.offset)

		g := NewGenerator(eb, f.pool, 64, nil)
		_, err := b.AddConstraints(g)
		require.NoError(t, err)
		values["string_array_0"] = v
		assert.True(t, holds(t, eb, g.Lemmas(), values), "offset %d", tt.offset)
	}

	g := NewGenerator(eb, f.pool, 64, nil)
	_, err := b.AddConstraints(g)
	require.NoError(t, err)
	assert.False(t, holds(t, eb, g.Lemmas(), map[string]*ExprPtr{
		"string_array_0": eb.StringLit("heXYlol"),
		"string_array_1": eb.StringLit("hello"),
		"string_array_2": eb.StringLit("XY"),
		"offset":         eb.IntVal(2),
	}))

	l, err := b.LengthConstraint()
	require.NoError(t, err)
	assert.Equal(t, "len(string_array_0) == (len(string_array_1) + len(string_array_2))", l.String())
}

func TestConcatCharBuiltin(t *testing.T) {
	f := newBuiltinFixture()
	eb := f.eb
	b := f.build(t, FuncStringConcatChar, refString(eb, "a"), eb.CharVal('c'))
	require.IsType(t, &ConcatCharBuiltin{}, b)

	values := map[string]*ExprPtr{"string_array_1": eb.StringLit("ab")}
	v, ok := b.Eval(lookupOf(values))
	require.True(t, ok)
	assert.Equal(t, eb.StringLit("abc"), v)

	g := NewGenerator(eb, f.pool, 64, nil)
	_, err := b.AddConstraints(g)
	require.NoError(t, err)
	values["string_array_0"] = eb.StringLit("abc")
	assert.True(t, holds(t, eb, g.Lemmas(), values))
	values["string_array_0"] = eb.StringLit("abd")
	assert.False(t, holds(t, eb, g.Lemmas(), values))

	l, err := b.LengthConstraint()
	require.NoError(t, err)
	assert.Equal(t, "len(string_array_0) == (len(string_array_1) + 1)", l.String())
}

func TestConcatCharBuiltinInvalidChar(t *testing.T) {
	f := newBuiltinFixture()
	eb := f.eb
	b := f.build(t, FuncStringConcatChar, refString(eb, "a"), eb.Sym("ch", CharSort))

	values := map[string]*ExprPtr{
		"string_array_1": eb.StringLit("ab"),
		"ch":             eb.CharVal('c'),
	}
	v, ok := b.Eval(lookupOf(values))
	require.True(t, ok)
	assert.Equal(t, eb.StringLit("abc"), v)

	// a surrogate half and a value past the rune range
	for _, ch := range []*ExprPtr{eb.CharVal(0xD800), eb.IntVal(1 << 40), eb.IntVal(-1)} {
		values["ch"] = ch
		_, ok := b.Eval(lookupOf(values))
		assert.False(t, ok, "character %s", ch)
	}
}

func TestOpaqueBuiltin(t *testing.T) {
	eb := NewExprBuilder()
	pool := NewArrayPool(eb)
	rc := eb.Sym("rc", IntSort)

	app := eb.FunApp(FuncStringEqual, IntSort, refString(eb, "a"), eb.StringLit("xy"))
	b, err := NewBuiltinFunction(eb, rc, app, pool)
	require.NoError(t, err)
	require.IsType(t, &OpaqueBuiltin{}, b)

	assert.True(t, b.MaybeTestingFunction())
	_, ok := b.StringResult()
	assert.False(t, ok)
	assert.Equal(t, []string{"string_array_0", `"xy"`}, names(b.StringArguments()))
	_, ok = b.Eval(lookupOf(nil))
	assert.False(t, ok)
	l, err := b.LengthConstraint()
	require.NoError(t, err)
	assert.True(t, l.IsTrue())

	g := NewGenerator(eb, pool, 64, nil)
	ret, err := b.AddConstraints(g)
	require.NoError(t, err)
	assert.Equal(t, "string_equal_ret#0", ret.String())
	assert.NotEmpty(t, g.Lemmas())
}

func TestOpaqueBuiltinArguments(t *testing.T) {
	eb := NewExprBuilder()
	pool := NewArrayPool(eb)
	rc := eb.Sym("rc", IntSort)
	n := eb.Sym("n", IntSort)
	p := eb.Sym("p", PointerSort)

	// out-argument first, then the strings
	app := eb.FunApp(FuncStringCopy, IntSort, n, p, refString(eb, "a"))
	b, err := NewBuiltinFunction(eb, rc, app, pool)
	require.NoError(t, err)
	assert.Equal(t, []string{"string_array_0", "string_array_1"}, names(b.StringArguments()))

	// strings nested in other arguments
	s := eb.Sym("s", StringSort)
	l, _ := eb.Length(s)
	sum, _ := eb.Add(l, eb.IntVal(1))
	cond, _ := eb.ITE(eb.Sym("c", BoolSort), refString(eb, "a"), refString(eb, "b"))
	app = eb.FunApp("string_check", IntSort, sum, cond)
	b, err = NewBuiltinFunction(eb, rc, app, pool)
	require.NoError(t, err)
	assert.Equal(t, []string{"s", "c ? string_array_1 : string_array_2"}, names(b.StringArguments()))
}

func TestBuiltinMalformed(t *testing.T) {
	f := newBuiltinFixture()
	eb := f.eb

	_, err := NewBuiltinFunction(eb, f.rc, eb.Sym("s", StringSort), f.pool)
	assert.ErrorIs(t, err, ErrMalformedApplication)

	tests := []struct {
		name string
		app  *ExprPtr
	}{
		{"too few arguments", eb.FunApp(FuncStringConcat, IntSort, f.n, f.p, refString(eb, "a"))},
		{"no out-argument", eb.FunApp(FuncStringConcat, IntSort, refString(eb, "a"), refString(eb, "b"), refString(eb, "c"), refString(eb, "d"))},
		{"five arguments", eb.FunApp(FuncStringConcat, IntSort, f.n, f.p, refString(eb, "a"), refString(eb, "b"), f.n)},
		{"int instead of char", eb.FunApp(FuncStringConcatChar, IntSort, f.n, f.p, refString(eb, "a"), f.n)},
		{"string offset", eb.FunApp(FuncStringInsert, IntSort, f.n, f.p, refString(eb, "a"), refString(eb, "b"), refString(eb, "c"))},
		{"int string argument", eb.FunApp(FuncStringInsert, IntSort, f.n, f.p, f.n, refString(eb, "b"), f.n)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBuiltinFunction(eb, f.rc, tt.app, f.pool)
			assert.ErrorIs(t, err, ErrMalformedApplication)
		})
	}
}
