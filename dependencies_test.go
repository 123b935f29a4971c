package strrefine

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBuiltin records how the graph uses it. Its full encoding is the lemma
// `full_<name> == 1` and its length constraint `length_<name> == 1`.
type fakeBuiltin struct {
	builtinBase
	args    []*ExprPtr
	result  *ExprPtr
	testing bool
	value   *ExprPtr
	evals   int
}

func newFake(eb *ExprBuilder, name string, result *ExprPtr, testing bool, args ...*ExprPtr) *fakeBuiltin {
	return &fakeBuiltin{
		builtinBase: builtinBase{eb: eb, name: name, returnCode: eb.Sym("rc_"+name, IntSort)},
		args:        args,
		result:      result,
		testing:     testing,
	}
}

func (b *fakeBuiltin) StringArguments() []*ExprPtr {
	return b.args
}

func (b *fakeBuiltin) StringResult() (*ExprPtr, bool) {
	return b.result, b.result != nil
}

func (b *fakeBuiltin) Eval(get ValueLookup) (*ExprPtr, bool) {
	b.evals += 1
	return b.value, b.value != nil
}

func (b *fakeBuiltin) AddConstraints(gen ConstraintGenerator) (*ExprPtr, error) {
	lemma, err := b.eb.Eq(b.eb.Sym("full_"+b.name, IntSort), b.eb.IntVal(1))
	if err != nil {
		return nil, err
	}
	if err := gen.AddLemma(lemma); err != nil {
		return nil, err
	}
	return b.eb.IntVal(0), nil
}

func (b *fakeBuiltin) LengthConstraint() (*ExprPtr, error) {
	return b.eb.Eq(b.eb.Sym("length_"+b.name, IntSort), b.eb.IntVal(1))
}

func (b *fakeBuiltin) MaybeTestingFunction() bool {
	return b.testing
}

// producerConsumer builds the graph where n produces s from a and the
// testing function t reads s.
func producerConsumer(t *testing.T) (*ExprBuilder, *StringDependencies, *fakeBuiltin, *fakeBuiltin) {
	t.Helper()
	eb := NewExprBuilder()
	d := NewStringDependencies(eb, nil)
	s := eb.Sym("s", StringSort)
	a := eb.Sym("a", StringSort)

	n := newFake(eb, "n", s, false, a)
	tf := newFake(eb, "t", nil, true, s)
	require.NoError(t, d.addBuiltin(n))
	require.NoError(t, d.addBuiltin(tf))
	return eb, d, n, tf
}

func TestGetNode(t *testing.T) {
	eb := NewExprBuilder()
	d := NewStringDependencies(eb, nil)
	s := eb.Sym("s", StringSort)
	u := eb.Sym("u", StringSort)

	n1 := d.GetNode(s)
	n2 := d.GetNode(u)
	assert.Same(t, n1, d.GetNode(s))
	assert.Equal(t, 0, n1.Index)
	assert.Equal(t, 1, n2.Index)
	assert.Len(t, d.StringNodes(), 2)

	_, ok := d.NodeAt(eb.Sym("v", StringSort))
	assert.False(t, ok)
	_, ok = n1.ResultFrom()
	assert.False(t, ok)
}

func TestAddDependency(t *testing.T) {
	eb := NewExprBuilder()
	d := NewStringDependencies(eb, nil)
	s := eb.Sym("s", StringSort)
	u := eb.Sym("u", StringSort)

	b0 := d.MakeNode(newFake(eb, "f", nil, true, s))
	b1 := d.MakeNode(newFake(eb, "g", nil, true, s))
	d.AddDependency(s, b0)
	d.AddDependency(s, b0)
	d.AddDependency(s, b1)
	assert.Equal(t, []int{0, 1}, d.GetNode(s).Dependencies)

	ite, _ := eb.ITE(eb.Sym("c", BoolSort), s, u)
	d.AddDependency(ite, b0)
	assert.Equal(t, []int{0, 1, 0}, d.GetNode(s).Dependencies)
	assert.Equal(t, []int{0}, d.GetNode(u).Dependencies)
	_, ok := d.NodeAt(ite)
	assert.False(t, ok)
}

func TestAddBuiltinResult(t *testing.T) {
	_, d, _, _ := producerConsumer(t)

	require.Len(t, d.StringNodes(), 2)
	s, a := d.StringNodes()[0], d.StringNodes()[1]
	from, ok := s.ResultFrom()
	require.True(t, ok)
	assert.Equal(t, 0, from)
	assert.Equal(t, []int{0, 1}, s.Dependencies)
	assert.Empty(t, a.Dependencies)
}

func TestMultipleProducers(t *testing.T) {
	eb, d, _, _ := producerConsumer(t)

	other := newFake(eb, "m", eb.Sym("s", StringSort), false, eb.Sym("b", StringSort))
	err := d.addBuiltin(other)
	assert.ErrorIs(t, err, ErrMultipleProducers)
	assert.Len(t, d.BuiltinNodes(), 2)
	assert.Len(t, d.StringNodes(), 2)
}

func TestAddNode(t *testing.T) {
	eb := NewExprBuilder()
	pool := NewArrayPool(eb)
	d := NewStringDependencies(eb, nil)
	n := eb.Sym("n", IntSort)
	p := eb.Sym("p", PointerSort)

	concat := eb.FunApp(FuncStringConcat, IntSort, n, p, refString(eb, "a"), refString(eb, "b"))
	eq, _ := eb.Eq(eb.Sym("r1", IntSort), concat)
	captured, err := d.AddNode(eq, pool)
	require.NoError(t, err)
	assert.True(t, captured)

	equal := eb.FunApp(FuncStringEqual, IntSort, refString(eb, "a"), eb.StringLit("xy"))
	eq, _ = eb.Eq(eb.Sym("r2", IntSort), equal)
	captured, err = d.AddNode(eq, pool)
	require.NoError(t, err)
	assert.True(t, captured)

	le, _ := eb.Le(eb.Sym("r3", IntSort), concat)
	captured, err = d.AddNode(le, pool)
	require.NoError(t, err)
	assert.False(t, captured)

	eq, _ = eb.Eq(eb.Sym("r3", IntSort), eb.IntVal(3))
	captured, err = d.AddNode(eq, pool)
	require.NoError(t, err)
	assert.False(t, captured)

	nodes := make(map[string]*StringNode)
	for _, s := range d.StringNodes() {
		nodes[s.Expr.String()] = s
	}
	require.Contains(t, nodes, "string_array_0")
	from, ok := nodes["string_array_0"].ResultFrom()
	assert.True(t, ok)
	assert.Equal(t, 0, from)
	assert.Equal(t, []int{1}, nodes["string_array_1"].Dependencies)
	assert.Empty(t, nodes["string_array_2"].Dependencies)
	assert.Equal(t, []int{1}, nodes[`"xy"`].Dependencies)
	assert.Len(t, d.BuiltinNodes(), 2)

	bad := eb.FunApp(FuncStringConcat, IntSort, n, p, refString(eb, "a"))
	eq, _ = eb.Eq(eb.Sym("r4", IntSort), bad)
	_, err = d.AddNode(eq, pool)
	assert.ErrorIs(t, err, ErrMalformedApplication)
}

func TestAddConstraintsFull(t *testing.T) {
	eb, d, n, tf := producerConsumer(t)
	g := newTestGenerator(eb)

	require.NoError(t, d.AddConstraints(g))
	retN, _ := eb.Eq(eb.IntVal(0), n.ReturnCode())
	retT, _ := eb.Eq(eb.IntVal(0), tf.ReturnCode())
	want := []string{"full_n == 1", retN.String(), "full_t == 1", retT.String()}
	if diff := cmp.Diff(want, names(g.Lemmas())); diff != "" {
		t.Errorf("lemmas mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, uint(2), d.Stats.FullConstraints)
	assert.Equal(t, uint(0), d.Stats.LengthConstraints)
}

func TestAddConstraintsWeakened(t *testing.T) {
	eb := NewExprBuilder()
	d := NewStringDependencies(eb, nil)
	s := eb.Sym("s", StringSort)
	u := eb.Sym("u", StringSort)

	require.NoError(t, d.addBuiltin(newFake(eb, "n", s, false, eb.Sym("a", StringSort))))
	require.NoError(t, d.addBuiltin(newFake(eb, "t", nil, true, u)))

	g := newTestGenerator(eb)
	require.NoError(t, d.AddConstraints(g))

	var length []string
	for _, l := range names(g.Lemmas()) {
		if strings.HasPrefix(l, "length_") {
			length = append(length, l)
		}
	}
	assert.Equal(t, []string{"length_n == 1"}, length)
	assert.NotContains(t, names(g.Lemmas()), "full_n == 1")
	assert.Contains(t, names(g.Lemmas()), "full_t == 1")
	assert.Equal(t, uint(1), d.Stats.FullConstraints)
	assert.Equal(t, uint(1), d.Stats.LengthConstraints)
}

func TestAddConstraintsTransitive(t *testing.T) {
	eb := NewExprBuilder()
	d := NewStringDependencies(eb, nil)
	a := eb.Sym("a", StringSort)
	b := eb.Sym("b", StringSort)
	s := eb.Sym("s", StringSort)

	// t reads s, produced by n2 from b, produced by n1 from a
	require.NoError(t, d.addBuiltin(newFake(eb, "n1", b, false, a)))
	require.NoError(t, d.addBuiltin(newFake(eb, "n2", s, false, b)))
	require.NoError(t, d.addBuiltin(newFake(eb, "t", nil, true, s)))
	require.NoError(t, d.addBuiltin(newFake(eb, "n3", eb.Sym("w", StringSort), false, a)))

	g := newTestGenerator(eb)
	require.NoError(t, d.AddConstraints(g))
	lemmas := names(g.Lemmas())
	assert.Contains(t, lemmas, "full_n1 == 1")
	assert.Contains(t, lemmas, "full_n2 == 1")
	assert.Contains(t, lemmas, "full_t == 1")
	assert.Contains(t, lemmas, "length_n3 == 1")
	assert.Equal(t, uint(3), d.Stats.FullConstraints)
}

func TestDependenciesEval(t *testing.T) {
	eb := NewExprBuilder()
	d := NewStringDependencies(eb, nil)
	s := eb.Sym("s", StringSort)
	a := eb.Sym("a", StringSort)
	n := newFake(eb, "n", s, false, a)
	n.value = eb.StringLit("abc")
	require.NoError(t, d.addBuiltin(n))

	get := lookupOf(nil)
	v, ok := d.Eval(s, get)
	require.True(t, ok)
	assert.Equal(t, eb.StringLit("abc"), v)
	v, ok = d.Eval(s, get)
	require.True(t, ok)
	assert.Equal(t, eb.StringLit("abc"), v)
	assert.Equal(t, 1, n.evals)
	assert.Equal(t, uint(1), d.Stats.CacheHits)

	d.CleanCache()
	_, ok = d.Eval(s, get)
	assert.True(t, ok)
	assert.Equal(t, 2, n.evals)

	_, ok = d.Eval(a, get)
	assert.False(t, ok, "a has no producer")
	_, ok = d.Eval(eb.Sym("v", StringSort), get)
	assert.False(t, ok, "v has no node")
}

func TestDependenciesEvalAmbiguous(t *testing.T) {
	eb, d, n, _ := producerConsumer(t)
	n.value = eb.StringLit("abc")

	_, ok := d.Eval(eb.Sym("s", StringSort), lookupOf(nil))
	assert.False(t, ok)
	assert.Equal(t, 0, n.evals)
}

func TestUnknownStringNode(t *testing.T) {
	eb := NewExprBuilder()
	d := NewStringDependencies(eb, nil)
	d.MakeNode(newFake(eb, "t", nil, true, eb.Sym("x", StringSort)))

	err := d.ForEachSuccessor(Node{Kind: BuiltinNodeKind, Index: 0}, func(Node) {})
	assert.ErrorIs(t, err, ErrUnknownStringNode)
	assert.ErrorIs(t, d.AddConstraints(newTestGenerator(eb)), ErrUnknownStringNode)
}

func TestOutputDot(t *testing.T) {
	_, d, _, _ := producerConsumer(t)

	var b strings.Builder
	require.NoError(t, d.OutputDot(&b))
	want := "digraph dependencies {\n" +
		"  \"s\" -> \"n_0\";\n" +
		"  \"s\" -> \"t_1\";\n" +
		"  \"a\";\n" +
		"  \"n_0\" -> \"a\";\n" +
		"  \"t_1\" -> \"s\";\n" +
		"}\n"
	assert.Equal(t, want, b.String())
}

func TestAddNodeConditionalResult(t *testing.T) {
	eb := NewExprBuilder()
	pool := NewArrayPool(eb)
	d := NewStringDependencies(eb, nil)
	n := eb.Sym("n", IntSort)
	p1 := eb.Sym("p1", PointerSort)
	p2 := eb.Sym("p2", PointerSort)
	ptr, err := eb.ITE(eb.Sym("c", BoolSort), p1, p2)
	require.NoError(t, err)

	// the concatenation writes to p1 or p2, the comparison reads p1
	concat := eb.FunApp(FuncStringConcat, IntSort, n, ptr, refString(eb, "a"), refString(eb, "b"))
	eq, _ := eb.Eq(eb.Sym("r1", IntSort), concat)
	_, err = d.AddNode(eq, pool)
	require.NoError(t, err)

	read, _ := eb.RefString(n, p1)
	equal := eb.FunApp(FuncStringEqual, IntSort, read, eb.StringLit("ab"))
	eq, _ = eb.Eq(eb.Sym("r2", IntSort), equal)
	_, err = d.AddNode(eq, pool)
	require.NoError(t, err)

	for _, name := range []string{"string_array_0", "string_array_1"} {
		node, ok := d.NodeAt(eb.Sym(name, StringSort))
		require.True(t, ok, name)
		from, ok := node.ResultFrom()
		assert.True(t, ok, name)
		assert.Equal(t, 0, from, name)
	}
	node, _ := d.NodeAt(eb.Sym("string_array_0", StringSort))
	assert.Equal(t, []int{0, 1}, node.Dependencies)

	require.NoError(t, d.AddConstraints(newTestGenerator(eb)))
	assert.Equal(t, uint(2), d.Stats.FullConstraints)
	assert.Equal(t, uint(0), d.Stats.LengthConstraints)
}

func TestConditionalResultProducers(t *testing.T) {
	eb := NewExprBuilder()
	s0 := eb.Sym("s0", StringSort)
	s1 := eb.Sym("s1", StringSort)
	result, _ := eb.ITE(eb.Sym("c", BoolSort), s0, s1)

	d := NewStringDependencies(eb, nil)
	require.NoError(t, d.addBuiltin(newFake(eb, "n", result, false, eb.Sym("a", StringSort))))
	err := d.addBuiltin(newFake(eb, "m", s1, false, eb.Sym("b", StringSort)))
	assert.ErrorIs(t, err, ErrMultipleProducers)
	assert.Len(t, d.BuiltinNodes(), 1)

	d = NewStringDependencies(eb, nil)
	require.NoError(t, d.addBuiltin(newFake(eb, "m", s1, false, eb.Sym("b", StringSort))))
	err = d.addBuiltin(newFake(eb, "n", result, false, eb.Sym("a", StringSort)))
	assert.ErrorIs(t, err, ErrMultipleProducers)
	assert.Len(t, d.BuiltinNodes(), 1)
	_, ok := d.NodeAt(s0)
	assert.False(t, ok, "a rejected builtin must not add nodes")
}

func TestConditionalResultEval(t *testing.T) {
	eb := NewExprBuilder()
	d := NewStringDependencies(eb, nil)
	s0 := eb.Sym("s0", StringSort)
	result, _ := eb.ITE(eb.Sym("c", BoolSort), s0, eb.Sym("s1", StringSort))
	n := newFake(eb, "n", result, false, eb.Sym("a", StringSort))
	n.value = eb.StringLit("abc")
	require.NoError(t, d.addBuiltin(n))

	_, ok := d.Eval(s0, lookupOf(nil))
	assert.False(t, ok)
	assert.Equal(t, 0, n.evals)
}

func TestMarkObserved(t *testing.T) {
	eb := NewExprBuilder()
	d := NewStringDependencies(eb, nil)
	s := eb.Sym("s", StringSort)
	u := eb.Sym("u", StringSort)
	require.NoError(t, d.addBuiltin(newFake(eb, "n", s, false, eb.Sym("a", StringSort))))
	require.NoError(t, d.addBuiltin(newFake(eb, "m", u, false, eb.Sym("b", StringSort))))

	observed, _ := eb.ITE(eb.Sym("c", BoolSort), s, eb.Sym("v", StringSort))
	d.MarkObserved(observed)
	node, _ := d.NodeAt(s)
	assert.True(t, node.Observed())

	g := newTestGenerator(eb)
	require.NoError(t, d.AddConstraints(g))
	assert.Contains(t, names(g.Lemmas()), "full_n == 1")
	assert.Contains(t, names(g.Lemmas()), "length_m == 1")
	assert.Equal(t, uint(1), d.Stats.FullConstraints)
	assert.Equal(t, uint(1), d.Stats.LengthConstraints)
}
