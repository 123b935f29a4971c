package strrefine

import "fmt"

// InsertionBuiltin is string_insert(len, ptr, s1, s2, offset): s1 with s2
// inserted at offset, the offset being clamped to [0, len(s1)].
type InsertionBuiltin struct {
	withResult
	input1, input2 *ExprPtr
	offset         *ExprPtr
}

func newInsertionBuiltin(eb *ExprBuilder, returnCode, app *ExprPtr, pool ArrayResolver) (*InsertionBuiltin, error) {
	base, rest, err := newWithResult(eb, returnCode, app, pool, 5)
	if err != nil {
		return nil, err
	}
	if len(rest) != 3 || rest[2].Sort() != IntSort {
		return nil, fmt.Errorf("%w: %s expects two strings and an offset", ErrMalformedApplication, app.Name())
	}

	b := &InsertionBuiltin{withResult: base, offset: rest[2]}
	if b.input1, err = pool.OfArgument(rest[0]); err != nil {
		return nil, err
	}
	if b.input2, err = pool.OfArgument(rest[1]); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *InsertionBuiltin) StringArguments() []*ExprPtr {
	return []*ExprPtr{b.input1, b.input2}
}

func (b *InsertionBuiltin) Eval(get ValueLookup) (*ExprPtr, bool) {
	s1, ok := concreteString(get, b.input1)
	if !ok {
		return nil, false
	}
	s2, ok := concreteString(get, b.input2)
	if !ok {
		return nil, false
	}
	offset, ok := concreteInt(get, b.offset)
	if !ok {
		return nil, false
	}

	offset = clampInt(offset, 0, int64(len(s1)))
	res := make([]rune, 0, len(s1)+len(s2))
	res = append(res, s1[:offset]...)
	res = append(res, s2...)
	res = append(res, s1[offset:]...)
	return b.eb.StringLit(string(res)), true
}

func (b *InsertionBuiltin) LengthConstraint() (*ExprPtr, error) {
	c := b.eb.chain()
	r := c.Eq(c.Length(b.result), c.Add(c.Length(b.input1), c.Length(b.input2)))
	return r, c.Err()
}

func (b *InsertionBuiltin) AddConstraints(gen ConstraintGenerator) (*ExprPtr, error) {
	eb := b.eb
	i := gen.FreshSymbol("QA_insert1", IntSort)
	j := gen.FreshSymbol("QA_insert2", IntSort)
	k := gen.FreshSymbol("QA_insert3", IntSort)

	lengthConstraint, err := b.LengthConstraint()
	if err != nil {
		return nil, err
	}

	c := eb.chain()
	zero := eb.IntVal(0)
	l1, l2 := c.Length(b.input1), c.Length(b.input2)
	offset := c.Clamp(b.offset, zero, l1)
	lemmas := []*ExprPtr{
		lengthConstraint,
		c.Forall(i, zero, offset, c.Eq(c.Index(b.result, i), c.Index(b.input1, i))),
		c.Forall(j, zero, l2, c.Eq(c.Index(b.result, c.Add(offset, j)), c.Index(b.input2, j))),
		c.Forall(k, offset, l1, c.Eq(c.Index(b.result, c.Add(l2, k)), c.Index(b.input1, k))),
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
