package strrefine

// ForEachAtomicString calls f on every string that s may denote, looking
// through conditional strings. A leaf reachable through several branches is
// visited once per occurrence.
func ForEachAtomicString(s *ExprPtr, f func(*ExprPtr)) {
	if s.Kind() != TY_ITE {
		f(s)
		return
	}
	c := s.Children()
	ForEachAtomicString(c[1], f)
	ForEachAtomicString(c[2], f)
}

// EquationSymbolMapping relates equation indices and the string expressions
// the equations mention, in both directions.
type EquationSymbolMapping struct {
	stringsInEquation   map[int][]*ExprPtr
	equationsContaining map[uintptr][]int
}

func NewEquationSymbolMapping() *EquationSymbolMapping {
	return &EquationSymbolMapping{
		stringsInEquation:   make(map[int][]*ExprPtr),
		equationsContaining: make(map[uintptr][]int),
	}
}

func (m *EquationSymbolMapping) Add(i int, e *ExprPtr) {
	m.stringsInEquation[i] = append(m.stringsInEquation[i], e)
	m.equationsContaining[e.Id()] = append(m.equationsContaining[e.Id()], i)
}

func (m *EquationSymbolMapping) FindExpressions(i int) []*ExprPtr {
	if r, ok := m.stringsInEquation[i]; ok {
		return r
	}
	return []*ExprPtr{}
}

func (m *EquationSymbolMapping) FindEquations(e *ExprPtr) []int {
	if r, ok := m.equationsContaining[e.Id()]; ok {
		return r
	}
	return []int{}
}
