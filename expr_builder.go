package strrefine

import (
	"fmt"
	"io"
	"sync"
)

type ExprBuilderStats struct {
	CacheHits    uint
	CacheLookups uint
	CachedExprs  uint
}

// ExprBuilder hash-conses expressions: two structurally equal expressions
// built by the same builder are the same *ExprPtr. Expressions live as long as
// the builder.
type ExprBuilder struct {
	lock  sync.Mutex
	cache map[uint64][]*ExprPtr

	Stats ExprBuilderStats
}

func NewExprBuilder() *ExprBuilder {
	return &ExprBuilder{
		cache: map[uint64][]*ExprPtr{},
	}
}

func (eb *ExprBuilder) PrintStats(w io.Writer) {
	eb.lock.Lock()
	defer eb.lock.Unlock()

	ratio := 0.0
	if eb.Stats.CacheLookups > 0 {
		ratio = float64(eb.Stats.CacheHits) / float64(eb.Stats.CacheLookups) * 100
	}
	fmt.Fprintln(w, "=====================")
	fmt.Fprintln(w, "  ExprBuilder Stats")
	fmt.Fprintln(w, "=====================")
	fmt.Fprintf(w, "hits:       %d\n", eb.Stats.CacheHits)
	fmt.Fprintf(w, "hit ratio:  %.03f %%\n", ratio)
	fmt.Fprintf(w, "num cached: %d\n", eb.Stats.CachedExprs)
	fmt.Fprintln(w, "=====================")
}

func (eb *ExprBuilder) getOrCreate(e internalExpr) *ExprPtr {
	eb.lock.Lock()
	defer eb.lock.Unlock()
	eb.Stats.CacheLookups += 1

	h := e.hash()
	bucket := eb.cache[h]
	for i := 0; i < len(bucket); i++ {
		if bucket[i].e.shallowEq(e) {
			eb.Stats.CacheHits += 1
			return bucket[i]
		}
	}
	eb.Stats.CachedExprs += 1

	r := &ExprPtr{e}
	eb.cache[h] = append(bucket, r)
	return r
}

// ForEachSubexpr visits e and its subexpressions depth first. Shared
// subexpressions are visited once.
func ForEachSubexpr(e *ExprPtr, f func(*ExprPtr)) {
	stack := []*ExprPtr{e}
	visited := make(map[uintptr]bool)
	for len(stack) > 0 {
		el := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[el.Id()] {
			continue
		}
		visited[el.Id()] = true
		f(el)

		children := el.Children()
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
}

// InvolvedSymbols returns the symbols occurring in e.
func (eb *ExprBuilder) InvolvedSymbols(e *ExprPtr) []*ExprPtr {
	symbols := make([]*ExprPtr, 0)
	ForEachSubexpr(e, func(el *ExprPtr) {
		if el.Kind() == TY_SYM {
			symbols = append(symbols, el)
		}
	})
	return symbols
}

func sortMismatch(op string, a, b Sort) error {
	return fmt.Errorf("%s: %w: %s vs %s", op, ErrSortMismatch, a, b)
}

func expectSort(op string, e *ExprPtr, s Sort) error {
	if e.Sort() != s {
		return sortMismatch(op, e.Sort(), s)
	}
	return nil
}

func isOrdered(s Sort) bool {
	return s == IntSort || s == CharSort
}

// *** Constructors ***

func (eb *ExprBuilder) Sym(name string, s Sort) *ExprPtr {
	return eb.getOrCreate(mkinternalSym(name, s))
}

func (eb *ExprBuilder) IntVal(v int64) *ExprPtr {
	return eb.getOrCreate(mkinternalIntVal(v, IntSort))
}

func (eb *ExprBuilder) CharVal(c rune) *ExprPtr {
	return eb.getOrCreate(mkinternalIntVal(int64(c), CharSort))
}

func (eb *ExprBuilder) BoolVal(v bool) *ExprPtr {
	return eb.getOrCreate(mkinternalBoolVal(v))
}

func (eb *ExprBuilder) StringLit(s string) *ExprPtr {
	return eb.getOrCreate(mkinternalStringLit(s))
}

func (eb *ExprBuilder) ITE(guard, iftrue, iffalse *ExprPtr) (*ExprPtr, error) {
	if err := expectSort("ITE", guard, BoolSort); err != nil {
		return nil, err
	}
	if iftrue.Sort() != iffalse.Sort() {
		return nil, sortMismatch("ITE", iftrue.Sort(), iffalse.Sort())
	}

	// Constant propagation
	if guard.IsTrue() {
		return iftrue, nil
	}
	if guard.IsFalse() {
		return iffalse, nil
	}
	if iftrue == iffalse {
		return iftrue, nil
	}

	return eb.getOrCreate(mkinternalOp(TY_ITE, "?", iftrue.Sort(), guard, iftrue, iffalse)), nil
}

func (eb *ExprBuilder) Eq(lhs, rhs *ExprPtr) (*ExprPtr, error) {
	if lhs.Sort() != rhs.Sort() {
		return nil, sortMismatch("Eq", lhs.Sort(), rhs.Sort())
	}

	if lhs == rhs {
		return eb.BoolVal(true), nil
	}
	// Constants are hash-consed: distinct pointers mean distinct values.
	if lhs.IsConst() && rhs.IsConst() {
		return eb.BoolVal(false), nil
	}

	return eb.getOrCreate(mkinternalOp(TY_EQ, "==", BoolSort, lhs, rhs)), nil
}

func (eb *ExprBuilder) cmp(kind int, symbol string, lhs, rhs *ExprPtr) (*ExprPtr, error) {
	if lhs.Sort() != rhs.Sort() || !isOrdered(lhs.Sort()) {
		return nil, sortMismatch(symbol, lhs.Sort(), rhs.Sort())
	}

	// Constant propagation
	if lhs.IsConst() && rhs.IsConst() {
		l, _ := lhs.GetInt()
		r, _ := rhs.GetInt()
		if kind == TY_LE {
			return eb.BoolVal(l <= r), nil
		}
		return eb.BoolVal(l < r), nil
	}

	return eb.getOrCreate(mkinternalOp(kind, symbol, BoolSort, lhs, rhs)), nil
}

func (eb *ExprBuilder) Le(lhs, rhs *ExprPtr) (*ExprPtr, error) {
	return eb.cmp(TY_LE, "<=", lhs, rhs)
}

func (eb *ExprBuilder) Lt(lhs, rhs *ExprPtr) (*ExprPtr, error) {
	return eb.cmp(TY_LT, "<", lhs, rhs)
}

func (eb *ExprBuilder) Not(e *ExprPtr) (*ExprPtr, error) {
	if err := expectSort("Not", e, BoolSort); err != nil {
		return nil, err
	}

	if e.IsConst() {
		v, _ := e.GetBool()
		return eb.BoolVal(!v), nil
	}
	if e.Kind() == TY_NOT {
		return e.Children()[0], nil
	}

	return eb.getOrCreate(mkinternalOp(TY_NOT, "!", BoolSort, e)), nil
}

func (eb *ExprBuilder) And(lhs, rhs *ExprPtr) (*ExprPtr, error) {
	if lhs.Sort() != BoolSort || rhs.Sort() != BoolSort {
		return nil, sortMismatch("And", lhs.Sort(), rhs.Sort())
	}

	switch {
	case lhs.IsFalse() || rhs.IsFalse():
		return eb.BoolVal(false), nil
	case lhs.IsTrue():
		return rhs, nil
	case rhs.IsTrue() || lhs == rhs:
		return lhs, nil
	}

	return eb.getOrCreate(mkinternalOp(TY_AND, "&&", BoolSort, lhs, rhs)), nil
}

func (eb *ExprBuilder) Or(lhs, rhs *ExprPtr) (*ExprPtr, error) {
	if lhs.Sort() != BoolSort || rhs.Sort() != BoolSort {
		return nil, sortMismatch("Or", lhs.Sort(), rhs.Sort())
	}

	switch {
	case lhs.IsTrue() || rhs.IsTrue():
		return eb.BoolVal(true), nil
	case lhs.IsFalse():
		return rhs, nil
	case rhs.IsFalse() || lhs == rhs:
		return lhs, nil
	}

	return eb.getOrCreate(mkinternalOp(TY_OR, "||", BoolSort, lhs, rhs)), nil
}

func (eb *ExprBuilder) Implies(lhs, rhs *ExprPtr) (*ExprPtr, error) {
	if lhs.Sort() != BoolSort || rhs.Sort() != BoolSort {
		return nil, sortMismatch("Implies", lhs.Sort(), rhs.Sort())
	}

	switch {
	case lhs.IsFalse() || rhs.IsTrue():
		return eb.BoolVal(true), nil
	case lhs.IsTrue():
		return rhs, nil
	}

	return eb.getOrCreate(mkinternalOp(TY_IMPLIES, "=>", BoolSort, lhs, rhs)), nil
}

func (eb *ExprBuilder) Add(lhs, rhs *ExprPtr) (*ExprPtr, error) {
	if lhs.Sort() != IntSort || rhs.Sort() != IntSort {
		return nil, sortMismatch("Add", lhs.Sort(), rhs.Sort())
	}

	// Constant propagation
	if lhs.IsConst() && rhs.IsConst() {
		l, _ := lhs.GetInt()
		r, _ := rhs.GetInt()
		return eb.IntVal(l + r), nil
	}
	if c, err := lhs.GetInt(); err == nil && c == 0 {
		return rhs, nil
	}
	if c, err := rhs.GetInt(); err == nil && c == 0 {
		return lhs, nil
	}

	return eb.getOrCreate(mkinternalOp(TY_ADD, "+", IntSort, lhs, rhs)), nil
}

func (eb *ExprBuilder) Sub(lhs, rhs *ExprPtr) (*ExprPtr, error) {
	if lhs.Sort() != IntSort || rhs.Sort() != IntSort {
		return nil, sortMismatch("Sub", lhs.Sort(), rhs.Sort())
	}

	// Constant propagation
	if lhs.IsConst() && rhs.IsConst() {
		l, _ := lhs.GetInt()
		r, _ := rhs.GetInt()
		return eb.IntVal(l - r), nil
	}
	if c, err := rhs.GetInt(); err == nil && c == 0 {
		return lhs, nil
	}
	if lhs == rhs {
		return eb.IntVal(0), nil
	}

	return eb.getOrCreate(mkinternalOp(TY_SUB, "-", IntSort, lhs, rhs)), nil
}

func (eb *ExprBuilder) Length(s *ExprPtr) (*ExprPtr, error) {
	if err := expectSort("Length", s, StringSort); err != nil {
		return nil, err
	}

	if lit, err := s.GetString(); err == nil {
		return eb.IntVal(int64(len([]rune(lit)))), nil
	}

	return eb.getOrCreate(mkinternalOp(TY_LENGTH, "len", IntSort, s)), nil
}

// Index reads a character of a string or an element of an array. Reads at a
// constant index are resolved through literals and update chains when the
// answer is known.
func (eb *ExprBuilder) Index(arr, index *ExprPtr) (*ExprPtr, error) {
	if err := expectSort("Index", index, IntSort); err != nil {
		return nil, err
	}

	var elem Sort
	switch arr.Sort().Kind {
	case SortString:
		elem = CharSort
	case SortArray:
		elem = arr.Sort().ElemSort()
	default:
		return nil, fmt.Errorf("Index: %w: cannot index %s", ErrSortMismatch, arr.Sort())
	}

	i, err := index.GetInt()
	if err == nil {
		switch arr.Kind() {
		case TY_STRING_LIT:
			lit, _ := arr.GetString()
			runes := []rune(lit)
			if i >= 0 && i < int64(len(runes)) {
				return eb.CharVal(runes[i]), nil
			}
		case TY_ARRAY_OF:
			return arr.Children()[0], nil
		case TY_WITH:
			c := arr.Children()
			if j, err := c[1].GetInt(); err == nil {
				if i == j {
					return c[2], nil
				}
				return eb.Index(c[0], index)
			}
		}
	}

	return eb.getOrCreate(mkinternalOp(TY_INDEX, "[]", elem, arr, index)), nil
}

func (eb *ExprBuilder) ArrayOf(value *ExprPtr) (*ExprPtr, error) {
	if !value.Sort().IsScalar() {
		return nil, fmt.Errorf("ArrayOf: %w: non scalar element %s", ErrSortMismatch, value.Sort())
	}
	return eb.getOrCreate(mkinternalOp(TY_ARRAY_OF, "array_of", ArraySort(value.Sort()), value)), nil
}

func (eb *ExprBuilder) With(arr, index, value *ExprPtr) (*ExprPtr, error) {
	if arr.Sort().Kind != SortArray {
		return nil, fmt.Errorf("With: %w: cannot update %s", ErrSortMismatch, arr.Sort())
	}
	if err := expectSort("With", index, IntSort); err != nil {
		return nil, err
	}
	if err := expectSort("With", value, arr.Sort().ElemSort()); err != nil {
		return nil, err
	}
	return eb.getOrCreate(mkinternalOp(TY_WITH, "with", arr.Sort(), arr, index, value)), nil
}

// RefString builds the {length, content} pair a program passes to string
// primitives.
func (eb *ExprBuilder) RefString(length, content *ExprPtr) (*ExprPtr, error) {
	if err := expectSort("RefString", length, IntSort); err != nil {
		return nil, err
	}
	if err := expectSort("RefString", content, PointerSort); err != nil {
		return nil, err
	}
	return eb.getOrCreate(mkinternalOp(TY_REFSTRING, "refstring", RefStringSort, length, content)), nil
}

func (eb *ExprBuilder) FunApp(name string, ret Sort, args ...*ExprPtr) *ExprPtr {
	cpy := make([]*ExprPtr, len(args))
	copy(cpy, args)
	return eb.getOrCreate(mkinternalFunApp(name, ret, cpy))
}

// Forall builds the bounded quantification "for every v in [lo, hi), body".
func (eb *ExprBuilder) Forall(v, lo, hi, body *ExprPtr) (*ExprPtr, error) {
	if v.Kind() != TY_SYM || v.Sort() != IntSort {
		return nil, fmt.Errorf("Forall: %w: bound variable must be an int symbol, got %s", ErrSortMismatch, v)
	}
	if lo.Sort() != IntSort || hi.Sort() != IntSort {
		return nil, sortMismatch("Forall", lo.Sort(), hi.Sort())
	}
	if err := expectSort("Forall", body, BoolSort); err != nil {
		return nil, err
	}

	if body.IsTrue() {
		return body, nil
	}

	return eb.getOrCreate(mkinternalOp(TY_FORALL, "forall", BoolSort, v, lo, hi, body)), nil
}

// Min and Max are expressed with ITE so they stay in the core language.

func (eb *ExprBuilder) Min(lhs, rhs *ExprPtr) (*ExprPtr, error) {
	le, err := eb.Le(lhs, rhs)
	if err != nil {
		return nil, err
	}
	return eb.ITE(le, lhs, rhs)
}

func (eb *ExprBuilder) Max(lhs, rhs *ExprPtr) (*ExprPtr, error) {
	le, err := eb.Le(lhs, rhs)
	if err != nil {
		return nil, err
	}
	return eb.ITE(le, rhs, lhs)
}
