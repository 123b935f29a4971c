package strrefine

// exprChain wraps an ExprBuilder and keeps the first construction error, so
// that long axiom encodings can be written without checking every step. Once
// an error is recorded every method returns nil.
type exprChain struct {
	eb  *ExprBuilder
	err error
}

func (eb *ExprBuilder) chain() *exprChain {
	return &exprChain{eb: eb}
}

func (c *exprChain) Err() error {
	return c.err
}

func (c *exprChain) apply(f func() (*ExprPtr, error)) *ExprPtr {
	if c.err != nil {
		return nil
	}
	r, err := f()
	if err != nil {
		c.err = err
		return nil
	}
	return r
}

func (c *exprChain) ok(args ...*ExprPtr) bool {
	if c.err != nil {
		return false
	}
	for _, a := range args {
		invariant(a != nil, "exprChain: nil operand without recorded error")
	}
	return true
}

func (c *exprChain) ITE(g, a, b *ExprPtr) *ExprPtr {
	if !c.ok(g, a, b) {
		return nil
	}
	return c.apply(func() (*ExprPtr, error) { return c.eb.ITE(g, a, b) })
}

func (c *exprChain) Eq(a, b *ExprPtr) *ExprPtr {
	if !c.ok(a, b) {
		return nil
	}
	return c.apply(func() (*ExprPtr, error) { return c.eb.Eq(a, b) })
}

func (c *exprChain) Le(a, b *ExprPtr) *ExprPtr {
	if !c.ok(a, b) {
		return nil
	}
	return c.apply(func() (*ExprPtr, error) { return c.eb.Le(a, b) })
}

func (c *exprChain) Lt(a, b *ExprPtr) *ExprPtr {
	if !c.ok(a, b) {
		return nil
	}
	return c.apply(func() (*ExprPtr, error) { return c.eb.Lt(a, b) })
}

func (c *exprChain) Not(a *ExprPtr) *ExprPtr {
	if !c.ok(a) {
		return nil
	}
	return c.apply(func() (*ExprPtr, error) { return c.eb.Not(a) })
}

func (c *exprChain) And(a, b *ExprPtr) *ExprPtr {
	if !c.ok(a, b) {
		return nil
	}
	return c.apply(func() (*ExprPtr, error) { return c.eb.And(a, b) })
}

func (c *exprChain) Or(a, b *ExprPtr) *ExprPtr {
	if !c.ok(a, b) {
		return nil
	}
	return c.apply(func() (*ExprPtr, error) { return c.eb.Or(a, b) })
}

func (c *exprChain) Implies(a, b *ExprPtr) *ExprPtr {
	if !c.ok(a, b) {
		return nil
	}
	return c.apply(func() (*ExprPtr, error) { return c.eb.Implies(a, b) })
}

func (c *exprChain) Add(a, b *ExprPtr) *ExprPtr {
	if !c.ok(a, b) {
		return nil
	}
	return c.apply(func() (*ExprPtr, error) { return c.eb.Add(a, b) })
}

func (c *exprChain) Sub(a, b *ExprPtr) *ExprPtr {
	if !c.ok(a, b) {
		return nil
	}
	return c.apply(func() (*ExprPtr, error) { return c.eb.Sub(a, b) })
}

func (c *exprChain) Min(a, b *ExprPtr) *ExprPtr {
	if !c.ok(a, b) {
		return nil
	}
	return c.apply(func() (*ExprPtr, error) { return c.eb.Min(a, b) })
}

func (c *exprChain) Max(a, b *ExprPtr) *ExprPtr {
	if !c.ok(a, b) {
		return nil
	}
	return c.apply(func() (*ExprPtr, error) { return c.eb.Max(a, b) })
}

func (c *exprChain) Length(s *ExprPtr) *ExprPtr {
	if !c.ok(s) {
		return nil
	}
	return c.apply(func() (*ExprPtr, error) { return c.eb.Length(s) })
}

func (c *exprChain) Index(s, i *ExprPtr) *ExprPtr {
	if !c.ok(s, i) {
		return nil
	}
	return c.apply(func() (*ExprPtr, error) { return c.eb.Index(s, i) })
}

func (c *exprChain) Forall(v, lo, hi, body *ExprPtr) *ExprPtr {
	if !c.ok(v, lo, hi, body) {
		return nil
	}
	return c.apply(func() (*ExprPtr, error) { return c.eb.Forall(v, lo, hi, body) })
}

// Clamp returns e restricted to [lo, hi].
func (c *exprChain) Clamp(e, lo, hi *ExprPtr) *ExprPtr {
	return c.Min(c.Max(e, lo), hi)
}
