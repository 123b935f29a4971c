package strrefine

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
)

// StringNode is a string of the verification conditions.
type StringNode struct {
	Index int
	Expr  *ExprPtr
	// Dependencies are the builtin functions consuming the string, in
	// insertion order.
	Dependencies []int

	resultFrom int
	hasResult  bool
	observed   bool
}

// ResultFrom returns the builtin function producing the string, if any.
func (n *StringNode) ResultFrom() (int, bool) {
	return n.resultFrom, n.hasResult
}

// Observed reports whether a constraint outside the graph reads the string.
func (n *StringNode) Observed() bool {
	return n.observed
}

type BuiltinFunctionNode struct {
	Index int
	Data  BuiltinFunction
}

type NodeKind uint8

const (
	StringNodeKind NodeKind = iota
	BuiltinNodeKind
)

// Node designates either a string node or a builtin function node.
type Node struct {
	Kind  NodeKind
	Index int
}

type cachedValue struct {
	value      *ExprPtr
	ok         bool
	evaluating bool
}

type DependencyStats struct {
	FullConstraints   uint
	LengthConstraints uint
	CacheHits         uint
	CacheMisses       uint
}

// StringDependencies is the bipartite graph relating strings to the builtin
// functions producing and consuming them. The graph is built once, by calling
// AddNode on every equation, and then consumed by AddConstraints. It is not
// safe for concurrent use.
type StringDependencies struct {
	eb     *ExprBuilder
	logger *slog.Logger

	stringNodes  []*StringNode
	builtinNodes []*BuiltinFunctionNode
	nodeIndex    map[uintptr]int

	evalCache []cachedValue

	Stats DependencyStats
}

func NewStringDependencies(eb *ExprBuilder, logger *slog.Logger) *StringDependencies {
	if logger == nil {
		logger = slog.Default()
	}
	return &StringDependencies{
		eb:        eb,
		logger:    logger,
		nodeIndex: make(map[uintptr]int),
	}
}

// GetNode returns the node of e, creating it if needed.
func (d *StringDependencies) GetNode(e *ExprPtr) *StringNode {
	if i, ok := d.nodeIndex[e.Id()]; ok {
		return d.stringNodes[i]
	}
	n := &StringNode{Index: len(d.stringNodes), Expr: e}
	d.nodeIndex[e.Id()] = n.Index
	d.stringNodes = append(d.stringNodes, n)
	return n
}

// NodeAt returns the node of e if it exists.
func (d *StringDependencies) NodeAt(e *ExprPtr) (*StringNode, bool) {
	i, ok := d.nodeIndex[e.Id()]
	if !ok {
		return nil, false
	}
	return d.stringNodes[i], true
}

func (d *StringDependencies) StringNodes() []*StringNode {
	return d.stringNodes
}

func (d *StringDependencies) BuiltinNodes() []*BuiltinFunctionNode {
	return d.builtinNodes
}

// MakeNode adds a node for builtin. The graph owns builtin from now on.
func (d *StringDependencies) MakeNode(builtin BuiltinFunction) *BuiltinFunctionNode {
	n := &BuiltinFunctionNode{Index: len(d.builtinNodes), Data: builtin}
	d.builtinNodes = append(d.builtinNodes, n)
	return n
}

func (n *StringNode) addDependency(builtin int) {
	if k := len(n.Dependencies); k > 0 && n.Dependencies[k-1] == builtin {
		return
	}
	n.Dependencies = append(n.Dependencies, builtin)
}

// AddDependency records that every atomic string of e is consumed by builtin.
func (d *StringDependencies) AddDependency(e *ExprPtr, builtin *BuiltinFunctionNode) {
	ForEachAtomicString(e, func(s *ExprPtr) {
		d.GetNode(s).addDependency(builtin.Index)
	})
}

// AddNode adds the function application of an equation `lhs == f(args)` to
// the graph. It returns false, leaving the graph untouched, when equation is
// not of that form.
func (d *StringDependencies) AddNode(equation *ExprPtr, pool ArrayResolver) (bool, error) {
	if equation.Kind() != TY_EQ {
		return false, nil
	}
	c := equation.Children()
	returnCode, app := c[0], c[1]
	if app.Kind() != TY_FUNAPP {
		return false, nil
	}

	builtin, err := NewBuiltinFunction(d.eb, returnCode, app, pool)
	if err != nil {
		return false, err
	}
	if err := d.addBuiltin(builtin); err != nil {
		return false, err
	}
	return true, nil
}

func (d *StringDependencies) addBuiltin(builtin BuiltinFunction) error {
	result, hasResult := builtin.StringResult()
	if !hasResult {
		node := d.MakeNode(builtin)
		for _, arg := range builtin.StringArguments() {
			d.AddDependency(arg, node)
		}
		return nil
	}

	var err error
	ForEachAtomicString(result, func(s *ExprPtr) {
		existing, ok := d.NodeAt(s)
		if !ok || err != nil {
			return
		}
		if from, ok := existing.ResultFrom(); ok {
			err = fmt.Errorf("%w: %s is produced by %s and %s",
				ErrMultipleProducers, s, d.builtinNodes[from].Data.Name(), builtin.Name())
		}
	})
	if err != nil {
		return err
	}

	// a result written through a conditional pointer may be any of its
	// leaves: each of them is produced by the builtin
	node := d.MakeNode(builtin)
	d.AddDependency(result, node)
	ForEachAtomicString(result, func(s *ExprPtr) {
		n := d.GetNode(s)
		n.resultFrom = node.Index
		n.hasResult = true
	})
	for _, arg := range builtin.StringArguments() {
		ForEachAtomicString(arg, func(s *ExprPtr) {
			d.GetNode(s)
		})
	}
	return nil
}

// MarkObserved records that the atomic strings of e are read by a constraint
// that is not part of the graph. Their producers get their full encoding.
func (d *StringDependencies) MarkObserved(e *ExprPtr) {
	ForEachAtomicString(e, func(s *ExprPtr) {
		d.GetNode(s).observed = true
	})
}

// Eval returns the value of s computed from the builtin function producing it.
// Nothing is returned when s has no producer or when it has other
// dependencies, as its value would then be ambiguous. Results are cached
// until the next call to CleanCache.
func (d *StringDependencies) Eval(s *ExprPtr, get ValueLookup) (*ExprPtr, bool) {
	node, ok := d.NodeAt(s)
	if !ok {
		return nil, false
	}
	if node.Index >= len(d.evalCache) {
		d.evalCache = append(d.evalCache, make([]cachedValue, len(d.stringNodes)-len(d.evalCache))...)
	}

	cached := &d.evalCache[node.Index]
	if cached.ok {
		d.Stats.CacheHits += 1
		evalCacheTotal.WithLabelValues("hit").Inc()
		return cached.value, true
	}
	if cached.evaluating {
		return nil, false
	}
	d.Stats.CacheMisses += 1
	evalCacheTotal.WithLabelValues("miss").Inc()

	from, ok := node.ResultFrom()
	if !ok || len(node.Dependencies) != 1 || node.Dependencies[0] != from {
		return nil, false
	}
	// the leaf of a conditional result only holds it on one branch
	if result, _ := d.builtinNodes[from].Data.StringResult(); result != s {
		return nil, false
	}

	cached.evaluating = true
	v, ok := d.builtinNodes[from].Data.Eval(get)
	// the slice may have been reallocated by a nested evaluation
	cached = &d.evalCache[node.Index]
	cached.evaluating = false
	if !ok {
		return nil, false
	}
	cached.value, cached.ok = v, true
	return v, true
}

// CleanCache drops every evaluated value. It must be called before
// evaluating strings against a new model.
func (d *StringDependencies) CleanCache() {
	d.evalCache = make([]cachedValue, len(d.stringNodes))
}

func (d *StringDependencies) ForEachNode(f func(Node)) {
	for i := range d.stringNodes {
		f(Node{Kind: StringNodeKind, Index: i})
	}
	for i := range d.builtinNodes {
		f(Node{Kind: BuiltinNodeKind, Index: i})
	}
}

// ForEachSuccessor calls f on the successors of n: the strings a builtin
// function reads, or the builtin functions reading a string.
func (d *StringDependencies) ForEachSuccessor(n Node, f func(Node)) error {
	if n.Kind == StringNodeKind {
		for _, b := range d.stringNodes[n.Index].Dependencies {
			f(Node{Kind: BuiltinNodeKind, Index: b})
		}
		return nil
	}

	var err error
	for _, arg := range d.builtinNodes[n.Index].Data.StringArguments() {
		ForEachAtomicString(arg, func(s *ExprPtr) {
			if err != nil {
				return
			}
			node, ok := d.NodeAt(s)
			if !ok {
				err = fmt.Errorf("%w: %s", ErrUnknownStringNode, s)
				return
			}
			f(Node{Kind: StringNodeKind, Index: node.Index})
		})
	}
	return err
}

func (d *StringDependencies) nodeLabel(n Node) string {
	if n.Kind == StringNodeKind {
		return fmt.Sprintf("%q", d.stringNodes[n.Index].Expr.String())
	}
	b := d.builtinNodes[n.Index]
	return fmt.Sprintf("\"%s_%d\"", b.Data.Name(), b.Index)
}

// OutputDot writes the graph in the dot format.
func (d *StringDependencies) OutputDot(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "digraph dependencies {")

	var err error
	d.ForEachNode(func(n Node) {
		if err != nil {
			return
		}
		from := d.nodeLabel(n)
		hasSuccessor := false
		err = d.ForEachSuccessor(n, func(m Node) {
			hasSuccessor = true
			fmt.Fprintf(bw, "  %s -> %s;\n", from, d.nodeLabel(m))
		})
		if err == nil && !hasSuccessor {
			fmt.Fprintf(bw, "  %s;\n", from)
		}
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(bw, "}")
	return bw.Flush()
}

// reachableBuiltins marks the builtin functions connected to a testing
// function or to an observed string.
func (d *StringDependencies) reachableBuiltins() ([]bool, error) {
	visitedStrings := make([]bool, len(d.stringNodes))
	visitedBuiltins := make([]bool, len(d.builtinNodes))

	stack := make([]Node, 0)
	for _, s := range d.stringNodes {
		if s.observed {
			visitedStrings[s.Index] = true
			stack = append(stack, Node{Kind: StringNodeKind, Index: s.Index})
		}
	}
	for _, b := range d.builtinNodes {
		if b.Data.MaybeTestingFunction() {
			visitedBuiltins[b.Index] = true
			stack = append(stack, Node{Kind: BuiltinNodeKind, Index: b.Index})
		}
	}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		err := d.ForEachSuccessor(n, func(m Node) {
			visited := visitedBuiltins
			if m.Kind == StringNodeKind {
				visited = visitedStrings
			}
			if visited[m.Index] {
				return
			}
			visited[m.Index] = true
			stack = append(stack, m)
		})
		if err != nil {
			return nil, err
		}
	}
	return visitedBuiltins, nil
}

// AddConstraints adds to gen the encoding of every builtin function. The
// functions connected to a testing function or to an observed string get
// their full encoding and a lemma equating their result to their return
// code; the others only get their length constraint.
func (d *StringDependencies) AddConstraints(gen ConstraintGenerator) error {
	reachable, err := d.reachableBuiltins()
	if err != nil {
		return err
	}

	for _, b := range d.builtinNodes {
		if !reachable[b.Index] {
			lemma, err := b.Data.LengthConstraint()
			if err != nil {
				return fmt.Errorf("%s_%d: %w", b.Data.Name(), b.Index, err)
			}
			if err := gen.AddLemma(lemma); err != nil {
				return err
			}
			d.Stats.LengthConstraints += 1
			builtinConstraintsTotal.WithLabelValues("length").Inc()
			continue
		}

		ret, err := b.Data.AddConstraints(gen)
		if err != nil {
			return fmt.Errorf("%s_%d: %w", b.Data.Name(), b.Index, err)
		}
		lemma, err := d.eb.Eq(ret, b.Data.ReturnCode())
		if err != nil {
			return fmt.Errorf("%s_%d: %w", b.Data.Name(), b.Index, err)
		}
		if err := gen.AddLemma(lemma); err != nil {
			return err
		}
		d.Stats.FullConstraints += 1
		builtinConstraintsTotal.WithLabelValues("full").Inc()
	}

	d.logger.Debug("string dependencies encoded",
		"strings", len(d.stringNodes),
		"builtins", len(d.builtinNodes),
		"full", d.Stats.FullConstraints,
		"length_only", d.Stats.LengthConstraints)
	return nil
}
