package strrefine

import (
	"errors"
	"fmt"

	"github.com/aclements/go-z3/z3"
)

// z3String is the translation of a string: its length and the function
// reading its characters.
type z3String struct {
	length z3.Int
	at     func(i z3.Int) z3.Int
}

type z3backend struct {
	eb              *ExprBuilder
	ctx             *z3.Context
	cfg             *z3.Config
	solver          *z3.Solver
	maxStringLength int64

	cache   map[uintptr]z3.Value
	strings map[uintptr]z3String
	model   *z3.Model
}

var errNoModel = errors.New("no model available")

func newZ3Backend(eb *ExprBuilder, maxStringLength int64) *z3backend {
	cfg := z3.NewContextConfig()
	ctx := z3.NewContext(cfg)
	return &z3backend{
		eb:              eb,
		ctx:             ctx,
		cfg:             cfg,
		solver:          z3.NewSolver(ctx),
		maxStringLength: maxStringLength,
	}
}

func (s *z3backend) check(constraints []*ExprPtr) (int, error) {
	s.solver.Reset()
	s.cache = make(map[uintptr]z3.Value)
	s.strings = make(map[uintptr]z3String)
	s.model = nil

	for _, c := range constraints {
		z3c, err := s.convert(c)
		if err != nil {
			return RESULT_ERROR, err
		}
		s.solver.Assert(z3c.(z3.Bool))
	}

	r, err := s.solver.Check()
	if err != nil {
		return RESULT_UNKNOWN, nil
	}
	if r {
		s.model = s.solver.Model()
		return RESULT_SAT, nil
	}
	return RESULT_UNSAT, nil
}

func (s *z3backend) eval(e *ExprPtr) (*ExprPtr, error) {
	if s.model == nil {
		return nil, errNoModel
	}

	if e.Sort() == StringSort {
		return s.evalString(e)
	}

	v, err := s.convert(e)
	if err != nil {
		return nil, err
	}
	switch e.Sort() {
	case BoolSort:
		b, isLiteral := s.model.Eval(v, true).(z3.Bool).AsBool()
		if !isLiteral {
			return nil, fmt.Errorf("%s: model value is not a literal", e)
		}
		return s.eb.BoolVal(b), nil
	case IntSort, PointerSort, CharSort:
		i, err := s.modelInt(v.(z3.Int))
		if err != nil {
			return nil, err
		}
		if e.Sort() == CharSort {
			return s.eb.CharVal(rune(i)), nil
		}
		return s.eb.IntVal(i), nil
	}
	return nil, fmt.Errorf("%w: cannot read a %s from the model", ErrUnsupportedExpr, e.Sort())
}

func (s *z3backend) modelInt(v z3.Int) (int64, error) {
	i, isLiteral, ok := s.model.Eval(v, true).(z3.Int).AsInt64()
	if !isLiteral || !ok {
		return 0, fmt.Errorf("%s: model value is not a 64 bit literal", v)
	}
	return i, nil
}

// evalString reads the length and the characters of a string. Characters are
// collected as an update chain holding the last index of every run of equal
// characters, which is then expanded.
func (s *z3backend) evalString(e *ExprPtr) (*ExprPtr, error) {
	str, err := s.convertString(e)
	if err != nil {
		return nil, err
	}
	length, err := s.modelInt(str.length)
	if err != nil {
		return nil, err
	}
	if length < 0 {
		length = 0
	}
	if length > s.maxStringLength {
		length = s.maxStringLength
	}

	chars := make([]int64, length)
	for i := int64(0); i < length; i++ {
		if chars[i], err = s.modelInt(str.at(s.ctx.FromInt(i, s.ctx.IntSort()).(z3.Int))); err != nil {
			return nil, err
		}
	}

	chain, err := s.eb.ArrayOf(s.eb.CharVal('?'))
	if err != nil {
		return nil, err
	}
	for i := int64(0); i < length; i++ {
		if i+1 < length && chars[i] == chars[i+1] {
			continue
		}
		if chain, err = s.eb.With(chain, s.eb.IntVal(i), s.eb.CharVal(rune(chars[i]))); err != nil {
			return nil, err
		}
	}
	return ConcretizeArray(s.eb, chain, int(length))
}

func (s *z3backend) sortOf(srt Sort) (z3.Sort, error) {
	switch srt.Kind {
	case SortBool:
		return s.ctx.BoolSort(), nil
	case SortInt, SortChar, SortPointer:
		return s.ctx.IntSort(), nil
	case SortArray:
		elem, err := s.sortOf(srt.ElemSort())
		if err != nil {
			return z3.Sort{}, err
		}
		return s.ctx.ArraySort(s.ctx.IntSort(), elem), nil
	}
	return z3.Sort{}, fmt.Errorf("%w: no z3 sort for %s", ErrUnsupportedExpr, srt)
}

func (s *z3backend) convertInt(e *ExprPtr) (z3.Int, error) {
	v, err := s.convert(e)
	if err != nil {
		return z3.Int{}, err
	}
	return v.(z3.Int), nil
}

func (s *z3backend) convertBool(e *ExprPtr) (z3.Bool, error) {
	v, err := s.convert(e)
	if err != nil {
		return z3.Bool{}, err
	}
	return v.(z3.Bool), nil
}

func (s *z3backend) convertString(e *ExprPtr) (z3String, error) {
	if r, ok := s.strings[e.Id()]; ok {
		return r, nil
	}

	var result z3String
	switch e.Kind() {
	case TY_SYM:
		content := s.ctx.Const(e.Name()+".content", s.ctx.ArraySort(s.ctx.IntSort(), s.ctx.IntSort())).(z3.Array)
		result = z3String{
			length: s.ctx.Const(e.Name()+".length", s.ctx.IntSort()).(z3.Int),
			at: func(i z3.Int) z3.Int {
				return content.Select(i).(z3.Int)
			},
		}
	case TY_STRING_LIT:
		lit, _ := e.GetString()
		runes := []rune(lit)
		intSort := s.ctx.IntSort()
		result = z3String{
			length: s.ctx.FromInt(int64(len(runes)), intSort).(z3.Int),
			at: func(i z3.Int) z3.Int {
				res := s.ctx.FromInt(0, intSort).(z3.Int)
				for k := len(runes) - 1; k >= 0; k-- {
					cond := i.Eq(s.ctx.FromInt(int64(k), intSort).(z3.Int))
					res = cond.IfThenElse(s.ctx.FromInt(int64(runes[k]), intSort), res).(z3.Int)
				}
				return res
			},
		}
	case TY_ITE:
		c := e.Children()
		guard, err := s.convertBool(c[0])
		if err != nil {
			return z3String{}, err
		}
		s1, err := s.convertString(c[1])
		if err != nil {
			return z3String{}, err
		}
		s2, err := s.convertString(c[2])
		if err != nil {
			return z3String{}, err
		}
		result = z3String{
			length: guard.IfThenElse(s1.length, s2.length).(z3.Int),
			at: func(i z3.Int) z3.Int {
				return guard.IfThenElse(s1.at(i), s2.at(i)).(z3.Int)
			},
		}
	default:
		return z3String{}, fmt.Errorf("%w: string %s", ErrUnsupportedExpr, e)
	}

	s.strings[e.Id()] = result
	return result, nil
}

// stringEq compares the lengths and the first maxStringLength characters.
func (s *z3backend) stringEq(lhs, rhs *ExprPtr) (z3.Bool, error) {
	s1, err := s.convertString(lhs)
	if err != nil {
		return z3.Bool{}, err
	}
	s2, err := s.convertString(rhs)
	if err != nil {
		return z3.Bool{}, err
	}

	res := s1.length.Eq(s2.length)
	for k := int64(0); k < s.maxStringLength; k++ {
		kk := s.ctx.FromInt(k, s.ctx.IntSort()).(z3.Int)
		res = res.And(kk.LT(s1.length).Not().Or(s1.at(kk).Eq(s2.at(kk))))
	}
	return res, nil
}

func (s *z3backend) convert(e *ExprPtr) (z3.Value, error) {
	if v, ok := s.cache[e.Id()]; ok {
		return v, nil
	}

	var result z3.Value
	var err error
	c := e.Children()
	switch e.Kind() {
	case TY_SYM:
		var srt z3.Sort
		if srt, err = s.sortOf(e.Sort()); err == nil {
			result = s.ctx.Const(e.Name(), srt)
		}
	case TY_INT_CONST, TY_CHAR_CONST:
		v, _ := e.GetInt()
		result = s.ctx.FromInt(v, s.ctx.IntSort())
	case TY_BOOL_CONST:
		v, _ := e.GetBool()
		result = s.ctx.FromBool(v)
	case TY_ITE:
		var guard z3.Bool
		var iftrue, iffalse z3.Value
		if guard, err = s.convertBool(c[0]); err != nil {
			return nil, err
		}
		if iftrue, err = s.convert(c[1]); err != nil {
			return nil, err
		}
		if iffalse, err = s.convert(c[2]); err != nil {
			return nil, err
		}
		result = guard.IfThenElse(iftrue, iffalse)
	case TY_EQ:
		switch c[0].Sort() {
		case StringSort:
			result, err = s.stringEq(c[0], c[1])
		case BoolSort:
			var lhs, rhs z3.Bool
			if lhs, err = s.convertBool(c[0]); err != nil {
				return nil, err
			}
			if rhs, err = s.convertBool(c[1]); err != nil {
				return nil, err
			}
			result = lhs.Eq(rhs)
		case IntSort, CharSort, PointerSort:
			var lhs, rhs z3.Int
			if lhs, err = s.convertInt(c[0]); err != nil {
				return nil, err
			}
			if rhs, err = s.convertInt(c[1]); err != nil {
				return nil, err
			}
			result = lhs.Eq(rhs)
		default:
			err = fmt.Errorf("%w: equality over %s", ErrUnsupportedExpr, c[0].Sort())
		}
	case TY_LE, TY_LT, TY_ADD, TY_SUB:
		var lhs, rhs z3.Int
		if lhs, err = s.convertInt(c[0]); err != nil {
			return nil, err
		}
		if rhs, err = s.convertInt(c[1]); err != nil {
			return nil, err
		}
		switch e.Kind() {
		case TY_LE:
			result = lhs.LE(rhs)
		case TY_LT:
			result = lhs.LT(rhs)
		case TY_ADD:
			result = lhs.Add(rhs)
		case TY_SUB:
			result = lhs.Sub(rhs)
		}
	case TY_NOT:
		var child z3.Bool
		if child, err = s.convertBool(c[0]); err != nil {
			return nil, err
		}
		result = child.Not()
	case TY_AND, TY_OR, TY_IMPLIES:
		var lhs, rhs z3.Bool
		if lhs, err = s.convertBool(c[0]); err != nil {
			return nil, err
		}
		if rhs, err = s.convertBool(c[1]); err != nil {
			return nil, err
		}
		switch e.Kind() {
		case TY_AND:
			result = lhs.And(rhs)
		case TY_OR:
			result = lhs.Or(rhs)
		case TY_IMPLIES:
			result = lhs.Not().Or(rhs)
		}
	case TY_LENGTH:
		var str z3String
		if str, err = s.convertString(c[0]); err == nil {
			result = str.length
		}
	case TY_INDEX:
		var index z3.Int
		if index, err = s.convertInt(c[1]); err != nil {
			return nil, err
		}
		if c[0].Sort() == StringSort {
			var str z3String
			if str, err = s.convertString(c[0]); err == nil {
				result = str.at(index)
			}
			break
		}
		if c[0].Kind() != TY_SYM {
			err = fmt.Errorf("%w: read of %s, array accesses must be substituted first", ErrUnsupportedExpr, c[0])
			break
		}
		var arr z3.Value
		if arr, err = s.convert(c[0]); err == nil {
			result = arr.(z3.Array).Select(index)
		}
	case TY_FORALL:
		var instances *ExprPtr
		if instances, err = s.eb.InstantiateForall(e, s.maxStringLength); err == nil {
			result, err = s.convert(instances)
		}
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedExpr, e)
	}
	if err != nil {
		return nil, err
	}

	s.cache[e.Id()] = result
	return result, nil
}
