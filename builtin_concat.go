package strrefine

import (
	"fmt"
	"unicode/utf8"
)

// ConcatenationBuiltin is string_concat(len, ptr, s1, s2 [, start, end]). The
// result is s1 followed by s2[start:end], with start and end clamped to the
// bounds of s2, or by the whole of s2.
type ConcatenationBuiltin struct {
	withResult
	input1, input2 *ExprPtr
	start, end     *ExprPtr
}

func newConcatenationBuiltin(eb *ExprBuilder, returnCode, app *ExprPtr, pool ArrayResolver) (*ConcatenationBuiltin, error) {
	base, rest, err := newWithResult(eb, returnCode, app, pool, 4)
	if err != nil {
		return nil, err
	}
	if len(rest) != 2 && len(rest) != 4 {
		return nil, fmt.Errorf("%w: %s expects 4 or 6 arguments", ErrMalformedApplication, app.Name())
	}

	b := &ConcatenationBuiltin{withResult: base}
	if b.input1, err = pool.OfArgument(rest[0]); err != nil {
		return nil, err
	}
	if b.input2, err = pool.OfArgument(rest[1]); err != nil {
		return nil, err
	}
	if len(rest) == 4 {
		if rest[2].Sort() != IntSort || rest[3].Sort() != IntSort {
			return nil, fmt.Errorf("%w: %s bounds must be integers", ErrMalformedApplication, app.Name())
		}
		b.start, b.end = rest[2], rest[3]
	}
	return b, nil
}

func (b *ConcatenationBuiltin) StringArguments() []*ExprPtr {
	return []*ExprPtr{b.input1, b.input2}
}

func (b *ConcatenationBuiltin) Eval(get ValueLookup) (*ExprPtr, bool) {
	s1, ok := concreteString(get, b.input1)
	if !ok {
		return nil, false
	}
	s2, ok := concreteString(get, b.input2)
	if !ok {
		return nil, false
	}

	start, end := int64(0), int64(len(s2))
	if b.start != nil {
		st, ok := concreteInt(get, b.start)
		if !ok {
			return nil, false
		}
		en, ok := concreteInt(get, b.end)
		if !ok {
			return nil, false
		}
		start = clampInt(st, 0, int64(len(s2)))
		end = clampInt(en, start, int64(len(s2)))
	}
	return b.eb.StringLit(string(s1) + string(s2[start:end])), true
}

// bounds returns the clamped slice of input2 that is appended.
func (b *ConcatenationBuiltin) bounds(c *exprChain) (*ExprPtr, *ExprPtr) {
	l2 := c.Length(b.input2)
	if b.start == nil {
		return b.eb.IntVal(0), l2
	}
	start := c.Clamp(b.start, b.eb.IntVal(0), l2)
	return start, c.Clamp(b.end, start, l2)
}

func (b *ConcatenationBuiltin) lengthConstraint(c *exprChain) *ExprPtr {
	start, end := b.bounds(c)
	return c.Eq(c.Length(b.result), c.Add(c.Length(b.input1), c.Sub(end, start)))
}

func (b *ConcatenationBuiltin) LengthConstraint() (*ExprPtr, error) {
	c := b.eb.chain()
	r := b.lengthConstraint(c)
	return r, c.Err()
}

func (b *ConcatenationBuiltin) AddConstraints(gen ConstraintGenerator) (*ExprPtr, error) {
	eb := b.eb
	i := gen.FreshSymbol("QA_concat1", IntSort)
	j := gen.FreshSymbol("QA_concat2", IntSort)

	c := eb.chain()
	zero := eb.IntVal(0)
	l1 := c.Length(b.input1)
	start, end := b.bounds(c)
	lemmas := []*ExprPtr{
		b.lengthConstraint(c),
		c.Forall(i, zero, l1, c.Eq(c.Index(b.result, i), c.Index(b.input1, i))),
		c.Forall(j, zero, c.Sub(end, start),
			c.Eq(c.Index(b.result, c.Add(l1, j)), c.Index(b.input2, c.Add(start, j)))),
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	for _, lemma := range lemmas {
		if err := gen.AddLemma(lemma); err != nil {
			return nil, err
		}
	}
	return eb.IntVal(0), nil
}

// ConcatCharBuiltin is string_concat_char(len, ptr, s1, c): s1 followed by the
// character c.
type ConcatCharBuiltin struct {
	withResult
	input     *ExprPtr
	character *ExprPtr
}

func newConcatCharBuiltin(eb *ExprBuilder, returnCode, app *ExprPtr, pool ArrayResolver) (*ConcatCharBuiltin, error) {
	base, rest, err := newWithResult(eb, returnCode, app, pool, 4)
	if err != nil {
		return nil, err
	}
	if len(rest) != 2 || rest[1].Sort() != CharSort {
		return nil, fmt.Errorf("%w: %s expects a string and a char", ErrMalformedApplication, app.Name())
	}

	b := &ConcatCharBuiltin{withResult: base, character: rest[1]}
	if b.input, err = pool.OfArgument(rest[0]); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *ConcatCharBuiltin) StringArguments() []*ExprPtr {
	return []*ExprPtr{b.input}
}

func (b *ConcatCharBuiltin) Eval(get ValueLookup) (*ExprPtr, bool) {
	s, ok := concreteString(get, b.input)
	if !ok {
		return nil, false
	}
	ch, ok := concreteInt(get, b.character)
	if !ok || int64(rune(ch)) != ch || !utf8.ValidRune(rune(ch)) {
		return nil, false
	}
	return b.eb.StringLit(string(s) + string(rune(ch))), true
}

func (b *ConcatCharBuiltin) LengthConstraint() (*ExprPtr, error) {
	c := b.eb.chain()
	r := c.Eq(c.Length(b.result), c.Add(c.Length(b.input), b.eb.IntVal(1)))
	return r, c.Err()
}

func (b *ConcatCharBuiltin) AddConstraints(gen ConstraintGenerator) (*ExprPtr, error) {
	eb := b.eb
	i := gen.FreshSymbol("QA_concat_char", IntSort)

	lengthConstraint, err := b.LengthConstraint()
	if err != nil {
		return nil, err
	}
	c := eb.chain()
	l := c.Length(b.input)
	lemmas := []*ExprPtr{
		lengthConstraint,
		c.Forall(i, eb.IntVal(0), l, c.Eq(c.Index(b.result, i), c.Index(b.input, i))),
		c.Eq(c.Index(b.result, l), b.character),
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	for _, lemma := range lemmas {
		if err := gen.AddLemma(lemma); err != nil {
			return nil, err
		}
	}
	return eb.IntVal(0), nil
}
