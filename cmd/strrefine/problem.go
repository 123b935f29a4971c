package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/borzacchiello/strrefine"
	"gopkg.in/yaml.v3"
)

// problemFile is the YAML form of a set of constraints. Expressions are
// written as flow sequences `[op, arg...]`; scalars are integers, booleans,
// double quoted string literals, single quoted characters or declared
// symbols. Any op that is not a core operator is a function application,
// returning the sort given in Functions (int by default).
//
//	symbols: {r: int, n: int, p: pointer, l1: int, p1: pointer}
//	constraints:
//	  - [eq, r, [string_concat, n, p, [ref, l1, p1], "abc"]]
type problemFile struct {
	Symbols     map[string]string `yaml:"symbols"`
	Functions   map[string]string `yaml:"functions"`
	Constraints []yaml.Node       `yaml:"constraints"`
	Print       []yaml.Node       `yaml:"print"`
}

type problem struct {
	constraints []*strrefine.ExprPtr
	print       []*strrefine.ExprPtr
}

var errBadExpression = errors.New("bad expression")

type problemParser struct {
	eb        *strrefine.ExprBuilder
	symbols   map[string]*strrefine.ExprPtr
	functions map[string]strrefine.Sort
}

func parseSort(name string) (strrefine.Sort, error) {
	switch name {
	case "bool":
		return strrefine.BoolSort, nil
	case "int":
		return strrefine.IntSort, nil
	case "char":
		return strrefine.CharSort, nil
	case "pointer":
		return strrefine.PointerSort, nil
	case "string":
		return strrefine.StringSort, nil
	case "refstring":
		return strrefine.RefStringSort, nil
	}
	return strrefine.Sort{}, fmt.Errorf("unknown sort %q", name)
}

func loadProblem(eb *strrefine.ExprBuilder, path string) (*problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read problem: %w", err)
	}
	return parseProblem(eb, data)
}

func parseProblem(eb *strrefine.ExprBuilder, data []byte) (*problem, error) {
	var f problemFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse problem: %w", err)
	}

	p := &problemParser{
		eb:        eb,
		symbols:   make(map[string]*strrefine.ExprPtr),
		functions: make(map[string]strrefine.Sort),
	}
	for name, sortName := range f.Symbols {
		s, err := parseSort(sortName)
		if err != nil {
			return nil, fmt.Errorf("symbol %s: %w", name, err)
		}
		p.symbols[name] = eb.Sym(name, s)
	}
	for name, sortName := range f.Functions {
		s, err := parseSort(sortName)
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", name, err)
		}
		p.functions[name] = s
	}

	res := &problem{}
	for i := range f.Constraints {
		e, err := p.parse(&f.Constraints[i])
		if err != nil {
			return nil, fmt.Errorf("constraint %d: %w", i, err)
		}
		if e.Sort() != strrefine.BoolSort {
			return nil, fmt.Errorf("constraint %d: %w: %s is not a boolean", i, errBadExpression, e)
		}
		res.constraints = append(res.constraints, e)
	}
	for i := range f.Print {
		e, err := p.parse(&f.Print[i])
		if err != nil {
			return nil, fmt.Errorf("print %d: %w", i, err)
		}
		res.print = append(res.print, e)
	}
	return res, nil
}

func (p *problemParser) parse(n *yaml.Node) (*strrefine.ExprPtr, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		return p.parseScalar(n)
	case yaml.SequenceNode:
		return p.parseOp(n)
	}
	return nil, fmt.Errorf("%w at line %d: expected a scalar or a sequence", errBadExpression, n.Line)
}

func (p *problemParser) parseScalar(n *yaml.Node) (*strrefine.ExprPtr, error) {
	switch {
	case n.Style == yaml.DoubleQuotedStyle:
		return p.eb.StringLit(n.Value), nil
	case n.Style == yaml.SingleQuotedStyle:
		runes := []rune(n.Value)
		if len(runes) != 1 {
			return nil, fmt.Errorf("%w at line %d: '%s' is not a single character", errBadExpression, n.Line, n.Value)
		}
		return p.eb.CharVal(runes[0]), nil
	case n.ShortTag() == "!!int":
		v, err := strconv.ParseInt(n.Value, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("%w at line %d: %v", errBadExpression, n.Line, err)
		}
		return p.eb.IntVal(v), nil
	case n.ShortTag() == "!!bool":
		var v bool
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return p.eb.BoolVal(v), nil
	}

	if s, ok := p.symbols[n.Value]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w at line %d: undeclared symbol %q", errBadExpression, n.Line, n.Value)
}

func (p *problemParser) parseOp(n *yaml.Node) (*strrefine.ExprPtr, error) {
	if len(n.Content) == 0 || n.Content[0].Kind != yaml.ScalarNode {
		return nil, fmt.Errorf("%w at line %d: expected [op, args...]", errBadExpression, n.Line)
	}
	op := n.Content[0].Value

	args := make([]*strrefine.ExprPtr, 0, len(n.Content)-1)
	for _, c := range n.Content[1:] {
		a, err := p.parse(c)
		if err != nil {
			return nil, err
		}
		args = append(args, a)
	}

	arity := func(k int) error {
		if len(args) != k {
			return fmt.Errorf("%w at line %d: %s takes %d arguments, got %d", errBadExpression, n.Line, op, k, len(args))
		}
		return nil
	}
	binary := func(f func(a, b *strrefine.ExprPtr) (*strrefine.ExprPtr, error)) (*strrefine.ExprPtr, error) {
		if err := arity(2); err != nil {
			return nil, err
		}
		return f(args[0], args[1])
	}
	// and, or, add are folded left over any number of arguments
	fold := func(f func(a, b *strrefine.ExprPtr) (*strrefine.ExprPtr, error)) (*strrefine.ExprPtr, error) {
		if len(args) < 2 {
			return nil, fmt.Errorf("%w at line %d: %s takes at least 2 arguments", errBadExpression, n.Line, op)
		}
		res := args[0]
		for _, a := range args[1:] {
			var err error
			if res, err = f(res, a); err != nil {
				return nil, err
			}
		}
		return res, nil
	}

	eb := p.eb
	switch op {
	case "ite":
		if err := arity(3); err != nil {
			return nil, err
		}
		return eb.ITE(args[0], args[1], args[2])
	case "eq":
		return binary(eb.Eq)
	case "le":
		return binary(eb.Le)
	case "lt":
		return binary(eb.Lt)
	case "not":
		if err := arity(1); err != nil {
			return nil, err
		}
		return eb.Not(args[0])
	case "and":
		return fold(eb.And)
	case "or":
		return fold(eb.Or)
	case "implies":
		return binary(eb.Implies)
	case "add":
		return fold(eb.Add)
	case "sub":
		return binary(eb.Sub)
	case "min":
		return binary(eb.Min)
	case "max":
		return binary(eb.Max)
	case "len":
		if err := arity(1); err != nil {
			return nil, err
		}
		return eb.Length(args[0])
	case "index":
		return binary(eb.Index)
	case "ref":
		return binary(eb.RefString)
	case "forall":
		if err := arity(4); err != nil {
			return nil, err
		}
		return eb.Forall(args[0], args[1], args[2], args[3])
	}

	ret, ok := p.functions[op]
	if !ok {
		ret = strrefine.IntSort
	}
	return eb.FunApp(op, ret, args...), nil
}
