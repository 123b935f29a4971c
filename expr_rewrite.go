package strrefine

import (
	"errors"
	"fmt"
)

// rebuild returns an expression of the same kind as e with the given
// children. Construction goes through the public constructors, so constants
// are folded again.
func (eb *ExprBuilder) rebuild(e *ExprPtr, c []*ExprPtr) (*ExprPtr, error) {
	switch e.Kind() {
	case TY_SYM, TY_INT_CONST, TY_CHAR_CONST, TY_BOOL_CONST, TY_STRING_LIT:
		return e, nil
	case TY_ITE:
		return eb.ITE(c[0], c[1], c[2])
	case TY_EQ:
		return eb.Eq(c[0], c[1])
	case TY_LE:
		return eb.Le(c[0], c[1])
	case TY_LT:
		return eb.Lt(c[0], c[1])
	case TY_NOT:
		return eb.Not(c[0])
	case TY_AND:
		return eb.And(c[0], c[1])
	case TY_OR:
		return eb.Or(c[0], c[1])
	case TY_IMPLIES:
		return eb.Implies(c[0], c[1])
	case TY_ADD:
		return eb.Add(c[0], c[1])
	case TY_SUB:
		return eb.Sub(c[0], c[1])
	case TY_LENGTH:
		return eb.Length(c[0])
	case TY_INDEX:
		return eb.Index(c[0], c[1])
	case TY_ARRAY_OF:
		return eb.ArrayOf(c[0])
	case TY_WITH:
		return eb.With(c[0], c[1], c[2])
	case TY_REFSTRING:
		return eb.RefString(c[0], c[1])
	case TY_FUNAPP:
		return eb.FunApp(e.Name(), e.Sort(), c...), nil
	case TY_FORALL:
		return eb.Forall(c[0], c[1], c[2], c[3])
	}
	return nil, fmt.Errorf("rebuild: %w: kind %d", ErrUnsupportedExpr, e.Kind())
}

// rewrite rebuilds e bottom-up and applies f to every rebuilt node. Shared
// subexpressions are rewritten once.
func (eb *ExprBuilder) rewrite(e *ExprPtr, cache map[uintptr]*ExprPtr, f func(*ExprPtr) (*ExprPtr, error)) (*ExprPtr, error) {
	if r, ok := cache[e.Id()]; ok {
		return r, nil
	}

	rebuilt := e
	children := e.Children()
	if len(children) > 0 {
		changed := false
		newChildren := make([]*ExprPtr, len(children))
		for i, c := range children {
			r, err := eb.rewrite(c, cache, f)
			if err != nil {
				return nil, err
			}
			newChildren[i] = r
			changed = changed || r != c
		}
		if changed {
			var err error
			rebuilt, err = eb.rebuild(e, newChildren)
			if err != nil {
				return nil, err
			}
		}
	}

	r, err := f(rebuilt)
	if err != nil {
		return nil, err
	}
	cache[e.Id()] = r
	return r, nil
}

// Substitute replaces every occurrence of the keys of m in e by the
// associated value. Keys and values must have the same sort. Bound variables
// of quantifiers are fresh symbols, so no capture can happen.
func (eb *ExprBuilder) Substitute(e *ExprPtr, m map[*ExprPtr]*ExprPtr) (*ExprPtr, error) {
	for k, v := range m {
		if k.Sort() != v.Sort() {
			return nil, sortMismatch("Substitute", k.Sort(), v.Sort())
		}
	}
	return eb.rewrite(e, make(map[uintptr]*ExprPtr), func(x *ExprPtr) (*ExprPtr, error) {
		if v, ok := m[x]; ok {
			return v, nil
		}
		return x, nil
	})
}

// InstantiateForall expands `forall v in [lo, hi). body` into the conjunction
// of `lo <= k && k < hi => body[v:=k]` for k in [0, bound).
func (eb *ExprBuilder) InstantiateForall(f *ExprPtr, bound int64) (*ExprPtr, error) {
	if f.Kind() != TY_FORALL {
		return nil, fmt.Errorf("InstantiateForall: %w: %s is not a quantifier", ErrUnsupportedExpr, f)
	}
	c := f.Children()
	v, lo, hi, body := c[0], c[1], c[2], c[3]

	res := eb.BoolVal(true)
	for k := int64(0); k < bound; k++ {
		kk := eb.IntVal(k)
		ch := eb.chain()
		inRange := ch.And(ch.Le(lo, kk), ch.Lt(kk, hi))
		if err := ch.Err(); err != nil {
			return nil, err
		}
		if inRange.IsFalse() {
			continue
		}
		instance, err := eb.Substitute(body, map[*ExprPtr]*ExprPtr{v: kk})
		if err != nil {
			return nil, err
		}
		res = ch.And(res, ch.Implies(inRange, instance))
		if err := ch.Err(); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// SubstituteArrayAccess rewrites the reads of e so that they only apply to
// symbols: reads of update chains and string literals become conditional
// expressions built with the sparse array encodings, reads and lengths of
// conditional values are distributed over the branches. When leftPropagate
// is set, update chains are read with the interval encoding.
func (eb *ExprBuilder) SubstituteArrayAccess(e *ExprPtr, leftPropagate bool) (*ExprPtr, error) {
	return eb.rewrite(e, make(map[uintptr]*ExprPtr), func(x *ExprPtr) (*ExprPtr, error) {
		switch x.Kind() {
		case TY_INDEX:
			c := x.Children()
			return eb.substituteIndex(c[0], c[1], leftPropagate)
		case TY_LENGTH:
			return eb.substituteLength(x.Children()[0])
		}
		return x, nil
	})
}

func (eb *ExprBuilder) substituteLength(s *ExprPtr) (*ExprPtr, error) {
	if s.Kind() != TY_ITE {
		return eb.Length(s)
	}
	c := s.Children()
	l1, err := eb.substituteLength(c[1])
	if err != nil {
		return nil, err
	}
	l2, err := eb.substituteLength(c[2])
	if err != nil {
		return nil, err
	}
	return eb.ITE(c[0], l1, l2)
}

func (eb *ExprBuilder) substituteIndex(arr, index *ExprPtr, leftPropagate bool) (*ExprPtr, error) {
	switch arr.Kind() {
	case TY_ITE:
		c := arr.Children()
		v1, err := eb.substituteIndex(c[1], index, leftPropagate)
		if err != nil {
			return nil, err
		}
		v2, err := eb.substituteIndex(c[2], index, leftPropagate)
		if err != nil {
			return nil, err
		}
		return eb.ITE(c[0], v1, v2)

	case TY_ARRAY_OF, TY_WITH:
		var v *ExprPtr
		var err error
		if leftPropagate {
			var a *IntervalSparseArray
			if a, err = NewIntervalSparseArray(eb, arr); err == nil {
				v, err = a.ToIfExpression(index)
			}
		} else {
			var a *SparseArray
			if a, err = NewSparseArray(eb, arr); err == nil {
				v, err = a.ToIfExpression(index)
			}
		}
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrMalformedUpdateChain) || arr.Kind() != TY_WITH {
			return nil, err
		}

		// symbolic update index
		c := arr.Children()
		inner, err := eb.substituteIndex(c[0], index, leftPropagate)
		if err != nil {
			return nil, err
		}
		cond, err := eb.Eq(index, c[1])
		if err != nil {
			return nil, err
		}
		return eb.ITE(cond, c[2], inner)

	case TY_STRING_LIT:
		if _, err := index.GetInt(); err == nil {
			return eb.Index(arr, index)
		}
		chain, err := eb.stringLitToArray(arr)
		if err != nil {
			return nil, err
		}
		a, err := NewSparseArray(eb, chain)
		if err != nil {
			return nil, err
		}
		return a.ToIfExpression(index)
	}
	return eb.Index(arr, index)
}

// stringLitToArray writes the characters of a literal over a zero array.
func (eb *ExprBuilder) stringLitToArray(lit *ExprPtr) (*ExprPtr, error) {
	s, err := lit.GetString()
	if err != nil {
		return nil, err
	}
	chain, err := eb.ArrayOf(eb.CharVal(0))
	if err != nil {
		return nil, err
	}
	for i, r := range []rune(s) {
		chain, err = eb.With(chain, eb.IntVal(int64(i)), eb.CharVal(r))
		if err != nil {
			return nil, err
		}
	}
	return chain, nil
}
