package strrefine

// Interpretation assigns values to symbols, by name. Arrays are given as
// update chains over a constant array.
type Interpretation struct {
	Values map[string]*ExprPtr
	// LeftPropagate reads update chains with the interval encoding: an index
	// takes the value of the closest update at or after it.
	LeftPropagate bool
}

// Eval simplifies e after replacing the symbols of interp by their values.
// Symbols without a value are kept, so the result is a constant only when
// every symbol e depends on is assigned.
func (eb *ExprBuilder) Eval(e *ExprPtr, interp Interpretation) (*ExprPtr, error) {
	cache := make(map[uintptr]*ExprPtr)
	return eb.evalInternal(e, cache, &interp)
}

func isUpdateChain(e *ExprPtr) bool {
	return e.Kind() == TY_WITH || e.Kind() == TY_ARRAY_OF
}

func (eb *ExprBuilder) evalInternal(e *ExprPtr, cache map[uintptr]*ExprPtr, interp *Interpretation) (*ExprPtr, error) {
	if r, ok := cache[e.Id()]; ok {
		return r, nil
	}

	var result *ExprPtr
	var err error
	switch e.Kind() {
	case TY_SYM:
		result = e
		if v, ok := interp.Values[e.Name()]; ok {
			if v.Sort() != e.Sort() {
				return nil, sortMismatch("Eval "+e.Name(), v.Sort(), e.Sort())
			}
			result = v
		}
	case TY_INT_CONST, TY_CHAR_CONST, TY_BOOL_CONST, TY_STRING_LIT:
		result = e
	case TY_INDEX:
		c := e.Children()
		var arr, index *ExprPtr
		if arr, err = eb.evalInternal(c[0], cache, interp); err != nil {
			return nil, err
		}
		if index, err = eb.evalInternal(c[1], cache, interp); err != nil {
			return nil, err
		}
		if interp.LeftPropagate && isUpdateChain(arr) && index.IsConst() {
			var a *IntervalSparseArray
			if a, err = NewIntervalSparseArray(eb, arr); err == nil {
				result, err = a.ToIfExpression(index)
			}
		} else {
			result, err = eb.Index(arr, index)
		}
	case TY_FORALL:
		result, err = eb.evalForall(e, cache, interp)
	default:
		children := e.Children()
		evaluated := make([]*ExprPtr, len(children))
		for i, c := range children {
			if evaluated[i], err = eb.evalInternal(c, cache, interp); err != nil {
				return nil, err
			}
		}
		result, err = eb.rebuild(e, evaluated)
	}
	if err != nil {
		return nil, err
	}

	cache[e.Id()] = result
	return result, nil
}

// evalForall expands the quantifier when its bounds evaluate to constants.
func (eb *ExprBuilder) evalForall(e *ExprPtr, cache map[uintptr]*ExprPtr, interp *Interpretation) (*ExprPtr, error) {
	c := e.Children()
	v, body := c[0], c[3]
	lo, err := eb.evalInternal(c[1], cache, interp)
	if err != nil {
		return nil, err
	}
	hi, err := eb.evalInternal(c[2], cache, interp)
	if err != nil {
		return nil, err
	}

	l, errLo := lo.GetInt()
	h, errHi := hi.GetInt()
	if errLo != nil || errHi != nil {
		evaluated, err := eb.evalInternal(body, cache, interp)
		if err != nil {
			return nil, err
		}
		return eb.Forall(v, lo, hi, evaluated)
	}

	res := eb.BoolVal(true)
	for k := l; k < h && !res.IsFalse(); k++ {
		instance, err := eb.Substitute(body, map[*ExprPtr]*ExprPtr{v: eb.IntVal(k)})
		if err != nil {
			return nil, err
		}
		evaluated, err := eb.evalInternal(instance, cache, interp)
		if err != nil {
			return nil, err
		}
		if res, err = eb.And(res, evaluated); err != nil {
			return nil, err
		}
	}
	return res, nil
}
