package strrefine

import (
	"fmt"
	"log/slog"
)

// ConstraintGenerator collects the lemmas produced while encoding string
// primitives.
type ConstraintGenerator interface {
	Builder() *ExprBuilder
	Resolver() ArrayResolver

	// AddLemma records a boolean constraint for the solver.
	AddLemma(lemma *ExprPtr) error

	// FreshSymbol returns a symbol that was never returned before.
	FreshSymbol(prefix string, s Sort) *ExprPtr

	// AddAxiomsForFunctionApplication encodes a primitive that has no
	// dedicated builtin function and returns the expression of its result.
	AddAxiomsForFunctionApplication(app *ExprPtr) (*ExprPtr, error)
}

// Names of the string primitives understood by the generator.
const (
	FuncStringEqual        = "string_equal"
	FuncStringLength       = "string_length"
	FuncStringCharAt       = "string_char_at"
	FuncStringIsEmpty      = "string_is_empty"
	FuncStringCopy         = "string_copy"
	FuncStringContainsChar = "string_contains_char"
)

type axiomFunc func(g *Generator, app *ExprPtr) (*ExprPtr, error)

var functionCatalog = map[string]axiomFunc{
	FuncStringEqual:        (*Generator).addAxiomsForEqual,
	FuncStringLength:       (*Generator).addAxiomsForLength,
	FuncStringCharAt:       (*Generator).addAxiomsForCharAt,
	FuncStringIsEmpty:      (*Generator).addAxiomsForIsEmpty,
	FuncStringCopy:         (*Generator).addAxiomsForCopy,
	FuncStringContainsChar: (*Generator).addAxiomsForContainsChar,
}

// Generator is the ConstraintGenerator used by the refinement loop. Every
// string symbol mentioned by a lemma gets its length bounded by
// maxStringLength.
type Generator struct {
	eb              *ExprBuilder
	pool            *ArrayPool
	logger          *slog.Logger
	maxStringLength int64

	lemmas  []*ExprPtr
	bounded map[uintptr]bool
	fresh   map[string]int
}

func NewGenerator(eb *ExprBuilder, pool *ArrayPool, maxStringLength int64, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		eb:              eb,
		pool:            pool,
		logger:          logger,
		maxStringLength: maxStringLength,
		bounded:         make(map[uintptr]bool),
		fresh:           make(map[string]int),
	}
}

func (g *Generator) Builder() *ExprBuilder {
	return g.eb
}

func (g *Generator) Resolver() ArrayResolver {
	return g.pool
}

func (g *Generator) Lemmas() []*ExprPtr {
	return g.lemmas
}

// Clear drops the recorded lemmas. Fresh symbol counters are kept, so symbols
// are never reused.
func (g *Generator) Clear() {
	g.lemmas = nil
	g.bounded = make(map[uintptr]bool)
}

func (g *Generator) FreshSymbol(prefix string, s Sort) *ExprPtr {
	n := g.fresh[prefix]
	g.fresh[prefix] = n + 1
	return g.eb.Sym(fmt.Sprintf("%s#%d", prefix, n), s)
}

func (g *Generator) AddLemma(lemma *ExprPtr) error {
	if err := expectSort("AddLemma", lemma, BoolSort); err != nil {
		return err
	}
	if lemma.IsTrue() {
		return nil
	}
	g.lemmas = append(g.lemmas, lemma)
	return g.boundStrings(lemma)
}

func (g *Generator) boundStrings(lemma *ExprPtr) error {
	var err error
	ForEachSubexpr(lemma, func(e *ExprPtr) {
		if err != nil || e.Kind() != TY_SYM || e.Sort() != StringSort || g.bounded[e.Id()] {
			return
		}
		g.bounded[e.Id()] = true

		c := g.eb.chain()
		l := c.Length(e)
		bound := c.And(
			c.Le(g.eb.IntVal(0), l),
			c.Le(l, g.eb.IntVal(g.maxStringLength)))
		if err = c.Err(); err == nil {
			g.lemmas = append(g.lemmas, bound)
		}
	})
	return err
}

func (g *Generator) addLemmas(c *exprChain, lemmas ...*ExprPtr) error {
	if c.Err() != nil {
		return c.Err()
	}
	for _, l := range lemmas {
		if err := g.AddLemma(l); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) AddAxiomsForFunctionApplication(app *ExprPtr) (*ExprPtr, error) {
	if app.Kind() != TY_FUNAPP {
		return nil, fmt.Errorf("generator: %w: %s is not a function application", ErrMalformedApplication, app)
	}

	f, ok := functionCatalog[app.Name()]
	if !ok {
		g.logger.Debug("no axioms for string function, leaving its result unconstrained",
			"function", app.Name())
		return g.FreshSymbol("return_code_"+app.Name(), app.Sort()), nil
	}
	return f(g, app)
}

// stringArgs resolves the first n arguments of app to strings, starting at
// argument from.
func (g *Generator) stringArgs(app *ExprPtr, from, n int) ([]*ExprPtr, error) {
	args := app.Children()
	if len(args) < from+n {
		return nil, fmt.Errorf("generator: %w: %s expects at least %d arguments",
			ErrMalformedApplication, app.Name(), from+n)
	}
	res := make([]*ExprPtr, 0, n)
	for i := from; i < from+n; i++ {
		s, err := g.pool.OfArgument(args[i])
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, nil
}

func expectReturnSort(app *ExprPtr, s Sort) error {
	if app.Sort() != s {
		return fmt.Errorf("generator: %w: %s must return %s, not %s",
			ErrMalformedApplication, app.Name(), s, app.Sort())
	}
	return nil
}

// string_equal(s1, s2) is 1 when both strings have the same length and the
// same characters, 0 otherwise.
func (g *Generator) addAxiomsForEqual(app *ExprPtr) (*ExprPtr, error) {
	if err := expectReturnSort(app, IntSort); err != nil {
		return nil, err
	}
	s, err := g.stringArgs(app, 0, 2)
	if err != nil {
		return nil, err
	}

	eb := g.eb
	r := g.FreshSymbol("string_equal_ret", IntSort)
	w := g.FreshSymbol("string_equal_witness", IntSort)
	i := g.FreshSymbol("QA_string_equal", IntSort)
	zero, one := eb.IntVal(0), eb.IntVal(1)

	c := eb.chain()
	l1, l2 := c.Length(s[0]), c.Length(s[1])
	isOne, isZero := c.Eq(r, one), c.Eq(r, zero)
	sameLength := c.Eq(l1, l2)

	err = g.addLemmas(c,
		c.Or(isOne, isZero),
		c.Implies(isOne, sameLength),
		c.Implies(isOne, c.Forall(i, zero, l1, c.Eq(c.Index(s[0], i), c.Index(s[1], i)))),
		c.Implies(isZero, c.Or(
			c.Not(sameLength),
			c.And(
				c.And(c.Le(zero, w), c.Lt(w, l1)),
				c.Not(c.Eq(c.Index(s[0], w), c.Index(s[1], w)))))),
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (g *Generator) addAxiomsForLength(app *ExprPtr) (*ExprPtr, error) {
	if err := expectReturnSort(app, IntSort); err != nil {
		return nil, err
	}
	s, err := g.stringArgs(app, 0, 1)
	if err != nil {
		return nil, err
	}
	return g.eb.Length(s[0])
}

func (g *Generator) addAxiomsForCharAt(app *ExprPtr) (*ExprPtr, error) {
	if err := expectReturnSort(app, CharSort); err != nil {
		return nil, err
	}
	s, err := g.stringArgs(app, 0, 1)
	if err != nil {
		return nil, err
	}
	args := app.Children()
	if len(args) != 2 {
		return nil, fmt.Errorf("generator: %w: %s expects 2 arguments", ErrMalformedApplication, app.Name())
	}
	return g.eb.Index(s[0], args[1])
}

func (g *Generator) addAxiomsForIsEmpty(app *ExprPtr) (*ExprPtr, error) {
	if err := expectReturnSort(app, IntSort); err != nil {
		return nil, err
	}
	s, err := g.stringArgs(app, 0, 1)
	if err != nil {
		return nil, err
	}
	c := g.eb.chain()
	r := c.ITE(c.Eq(c.Length(s[0]), g.eb.IntVal(0)), g.eb.IntVal(1), g.eb.IntVal(0))
	return r, c.Err()
}

// string_copy(len, ptr, s) writes a copy of s to the out-argument.
func (g *Generator) addAxiomsForCopy(app *ExprPtr) (*ExprPtr, error) {
	if err := expectReturnSort(app, IntSort); err != nil {
		return nil, err
	}
	s, err := g.stringArgs(app, 2, 1)
	if err != nil {
		return nil, err
	}
	args := app.Children()
	res, err := g.pool.Find(args[1], args[0])
	if err != nil {
		return nil, err
	}

	eb := g.eb
	i := g.FreshSymbol("QA_string_copy", IntSort)
	c := eb.chain()
	l := c.Length(s[0])
	err = g.addLemmas(c,
		c.Eq(c.Length(res), l),
		c.Forall(i, eb.IntVal(0), l, c.Eq(c.Index(res, i), c.Index(s[0], i))),
	)
	if err != nil {
		return nil, err
	}
	return eb.IntVal(0), nil
}

// string_contains_char(s, c) is 1 when some character of s is c, 0
// otherwise.
func (g *Generator) addAxiomsForContainsChar(app *ExprPtr) (*ExprPtr, error) {
	if err := expectReturnSort(app, IntSort); err != nil {
		return nil, err
	}
	s, err := g.stringArgs(app, 0, 1)
	if err != nil {
		return nil, err
	}
	args := app.Children()
	if len(args) != 2 || args[1].Sort() != CharSort {
		return nil, fmt.Errorf("generator: %w: %s expects a string and a char", ErrMalformedApplication, app.Name())
	}
	ch := args[1]

	eb := g.eb
	r := g.FreshSymbol("string_contains_char_ret", IntSort)
	w := g.FreshSymbol("string_contains_char_witness", IntSort)
	i := g.FreshSymbol("QA_string_contains_char", IntSort)
	zero, one := eb.IntVal(0), eb.IntVal(1)

	c := eb.chain()
	l := c.Length(s[0])
	isOne, isZero := c.Eq(r, one), c.Eq(r, zero)
	err = g.addLemmas(c,
		c.Or(isOne, isZero),
		c.Implies(isOne, c.And(
			c.And(c.Le(zero, w), c.Lt(w, l)),
			c.Eq(c.Index(s[0], w), ch))),
		c.Implies(isZero, c.Forall(i, zero, l, c.Not(c.Eq(c.Index(s[0], i), ch)))),
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}
