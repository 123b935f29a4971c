package strrefine

import "fmt"

const (
	RESULT_ERROR   = 0
	RESULT_SAT     = 1
	RESULT_UNSAT   = 2
	RESULT_UNKNOWN = 3
)

func ResultString(r int) string {
	switch r {
	case RESULT_SAT:
		return "sat"
	case RESULT_UNSAT:
		return "unsat"
	case RESULT_UNKNOWN:
		return "unknown"
	}
	return "error"
}

type solverBackend interface {
	check(constraints []*ExprPtr) (int, error)
	// eval returns the value of e in the model of the last satisfiable check.
	eval(e *ExprPtr) (*ExprPtr, error)
}

// Solver is a set of constraints checked by a backend. Constraints are
// indexed by the symbols they involve, so that a query only needs the
// constraints it is related to.
type Solver struct {
	eb               *ExprBuilder
	backend          solverBackend
	constraints      []*ExprPtr
	seen             map[uintptr]bool
	symToConstraints map[uintptr]map[uintptr]*ExprPtr
	symDependencies  map[uintptr]map[uintptr]*ExprPtr
}

// NewZ3Solver returns a solver backed by z3. Quantifiers are expanded and
// strings are compared up to maxStringLength characters.
func NewZ3Solver(eb *ExprBuilder, maxStringLength int64) *Solver {
	return newSolver(eb, newZ3Backend(eb, maxStringLength))
}

func newSolver(eb *ExprBuilder, backend solverBackend) *Solver {
	return &Solver{
		eb:               eb,
		backend:          backend,
		seen:             make(map[uintptr]bool),
		symToConstraints: make(map[uintptr]map[uintptr]*ExprPtr),
		symDependencies:  make(map[uintptr]map[uintptr]*ExprPtr),
	}
}

func (s *Solver) registerConstraintForSym(sym *ExprPtr, constraint *ExprPtr) {
	if _, ok := s.symToConstraints[sym.Id()]; !ok {
		s.symToConstraints[sym.Id()] = make(map[uintptr]*ExprPtr)
	}
	s.symToConstraints[sym.Id()][constraint.Id()] = constraint
}

func (s *Solver) registerSymDependency(sym1 *ExprPtr, sym2 *ExprPtr) {
	if _, ok := s.symDependencies[sym1.Id()]; !ok {
		s.symDependencies[sym1.Id()] = make(map[uintptr]*ExprPtr)
	}
	if _, ok := s.symDependencies[sym2.Id()]; !ok {
		s.symDependencies[sym2.Id()] = make(map[uintptr]*ExprPtr)
	}
	s.symDependencies[sym1.Id()][sym2.Id()] = sym2
	s.symDependencies[sym2.Id()][sym1.Id()] = sym1
}

// getDependentConstraints returns the constraints related to e, even
// indirectly, in insertion order.
func (s *Solver) getDependentConstraints(e *ExprPtr) []*ExprPtr {
	syms := s.eb.InvolvedSymbols(e)
	symsMap := make(map[uintptr]bool)
	for _, sym := range syms {
		symsMap[sym.Id()] = true
		for id := range s.symDependencies[sym.Id()] {
			symsMap[id] = true
		}
	}

	related := make(map[uintptr]bool)
	for id := range symsMap {
		for cid := range s.symToConstraints[id] {
			related[cid] = true
		}
	}

	res := make([]*ExprPtr, 0, len(related))
	for _, c := range s.constraints {
		if related[c.Id()] {
			res = append(res, c)
		}
	}
	return res
}

func (s *Solver) Add(constraint *ExprPtr) error {
	if err := expectSort("Solver.Add", constraint, BoolSort); err != nil {
		return err
	}
	if s.seen[constraint.Id()] || constraint.IsTrue() {
		return nil
	}
	s.seen[constraint.Id()] = true
	s.constraints = append(s.constraints, constraint)

	syms := s.eb.InvolvedSymbols(constraint)
	for i := 0; i < len(syms); i++ {
		s.registerConstraintForSym(syms[i], constraint)
		for j := i + 1; j < len(syms); j++ {
			s.registerSymDependency(syms[i], syms[j])
		}
	}
	return nil
}

func (s *Solver) Constraints() []*ExprPtr {
	return s.constraints
}

// Pi returns the conjunction of the constraints.
func (s *Solver) Pi() (*ExprPtr, error) {
	res := s.eb.BoolVal(true)
	for _, c := range s.constraints {
		var err error
		if res, err = s.eb.And(res, c); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (s *Solver) Satisfiable() (int, error) {
	return s.backend.check(s.constraints)
}

// CheckSat checks query together with the constraints it is related to.
func (s *Solver) CheckSat(query *ExprPtr) (int, error) {
	if err := expectSort("CheckSat", query, BoolSort); err != nil {
		return RESULT_ERROR, err
	}
	constraints := append(s.getDependentConstraints(query), query)
	return s.backend.check(constraints)
}

// Eval returns the value of e in the model found by the last satisfiable
// check.
func (s *Solver) Eval(e *ExprPtr) (*ExprPtr, error) {
	v, err := s.backend.eval(e)
	if err != nil {
		return nil, fmt.Errorf("eval %s: %w", e, err)
	}
	return v, nil
}
