package strrefine

import (
	"fmt"
	"sort"
	"strings"
)

type SparseEntry struct {
	Index int64
	Value *ExprPtr
}

// SparseArray is the (index, value) view of a chain of point updates
// `array_of(d) with [i0:=v0] ... with [iN:=vN]`. Entries are recorded while
// unwinding the chain, most recent update first.
type SparseArray struct {
	eb      *ExprBuilder
	Entries []SparseEntry
	Default *ExprPtr
}

func NewSparseArray(eb *ExprBuilder, chain *ExprPtr) (*SparseArray, error) {
	a := &SparseArray{eb: eb}

	ref := chain
	for ref.Kind() == TY_WITH {
		c := ref.Children()
		index, err := c[1].GetInt()
		if err != nil || index < 0 {
			return nil, fmt.Errorf("sparse array: %w: update index %s is not a non-negative constant",
				ErrMalformedUpdateChain, c[1])
		}
		a.Entries = append(a.Entries, SparseEntry{Index: index, Value: c[2]})
		ref = c[0]
	}

	if ref.Kind() != TY_ARRAY_OF {
		return nil, fmt.Errorf("sparse array: %w: chain ends in %s", ErrMalformedUpdateChain, ref)
	}
	a.Default = ref.Children()[0]
	return a, nil
}

// ToIfExpression encodes a read at index as
// `index == iK ? vK : ... index == i0 ? v0 : d`, folding the entries in
// recorded order.
func (a *SparseArray) ToIfExpression(index *ExprPtr) (*ExprPtr, error) {
	acc := a.Default
	for _, entry := range a.Entries {
		if entry.Value.Sort() != acc.Sort() {
			return nil, fmt.Errorf("sparse array: %w", sortMismatch("ToIfExpression", entry.Value.Sort(), acc.Sort()))
		}
		cond, err := a.eb.Eq(index, a.eb.IntVal(entry.Index))
		if err != nil {
			return nil, err
		}
		acc, err = a.eb.ITE(cond, entry.Value, acc)
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}

func (a *SparseArray) String() string {
	b := strings.Builder{}
	b.WriteString("{")
	for i, entry := range a.Entries {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(fmt.Sprintf("%d:%s", entry.Index, entry.Value))
	}
	b.WriteString(fmt.Sprintf("} default %s", a.Default))
	return b.String()
}

// IntervalSparseArray reads an update chain as a sequence of intervals: an
// index takes the value of the first update at or after it. Entries are
// sorted by index.
type IntervalSparseArray struct {
	SparseArray
}

func NewIntervalSparseArray(eb *ExprBuilder, chain *ExprPtr) (*IntervalSparseArray, error) {
	a, err := NewSparseArray(eb, chain)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(a.Entries, func(i, j int) bool {
		return a.Entries[i].Index < a.Entries[j].Index
	})
	return &IntervalSparseArray{SparseArray: *a}, nil
}

// CheckMonotonic reports ErrNonMonotonicUpdates when two updates write the
// same index: the intervals they describe would overlap and the encoding
// would depend on the sort order of equal keys.
func (a *IntervalSparseArray) CheckMonotonic() error {
	for i := 1; i < len(a.Entries); i++ {
		if a.Entries[i-1].Index == a.Entries[i].Index {
			return fmt.Errorf("interval sparse array: %w: index %d written twice",
				ErrNonMonotonicUpdates, a.Entries[i].Index)
		}
	}
	return nil
}

// ToIfExpression encodes a read at index as
// `index <= i0 ? v0 : index <= i1 ? v1 : ... : d` with i0 < i1 < ...
func (a *IntervalSparseArray) ToIfExpression(index *ExprPtr) (*ExprPtr, error) {
	if err := a.CheckMonotonic(); err != nil {
		return nil, err
	}

	acc := a.Default
	for i := len(a.Entries) - 1; i >= 0; i-- {
		entry := a.Entries[i]
		if entry.Value.Sort() != acc.Sort() {
			return nil, fmt.Errorf("interval sparse array: %w", sortMismatch("ToIfExpression", entry.Value.Sort(), acc.Sort()))
		}
		cond, err := a.eb.Le(index, a.eb.IntVal(entry.Index))
		if err != nil {
			return nil, err
		}
		acc, err = a.eb.ITE(cond, entry.Value, acc)
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// ConcretizeArray turns an update chain over characters into a string literal
// of the given length, propagating every written value to the left up to the
// previous write. For instance `array_of('?') with [2:='a'] with [4:='b']`
// of length 5 gives "aaabb".
func ConcretizeArray(eb *ExprBuilder, chain *ExprPtr, length int) (*ExprPtr, error) {
	if chain.Sort() != ArraySort(CharSort) {
		return nil, fmt.Errorf("concretize: %w", sortMismatch("ConcretizeArray", chain.Sort(), ArraySort(CharSort)))
	}
	a, err := NewIntervalSparseArray(eb, chain)
	if err != nil {
		return nil, err
	}

	runes := make([]rune, 0, length)
	for i := 0; i < length; i++ {
		v, err := a.ToIfExpression(eb.IntVal(int64(i)))
		if err != nil {
			return nil, err
		}
		c, err := v.GetInt()
		if err != nil {
			return nil, fmt.Errorf("concretize: value %s at index %d is not constant", v, i)
		}
		runes = append(runes, rune(c))
	}
	return eb.StringLit(string(runes)), nil
}
