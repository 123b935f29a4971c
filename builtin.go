package strrefine

import "fmt"

// ValueLookup maps an expression to its value in the current model. Values
// that are not constants are treated as unknown.
type ValueLookup func(*ExprPtr) *ExprPtr

// BuiltinFunction is a string primitive applied to concrete arguments. The
// set of implementations is closed: see NewBuiltinFunction.
type BuiltinFunction interface {
	Name() string
	ReturnCode() *ExprPtr

	// StringArguments returns the strings read by the function.
	StringArguments() []*ExprPtr
	// StringResult returns the string produced by the function, if any.
	StringResult() (*ExprPtr, bool)

	// Eval computes the produced string from the values of the arguments. It
	// reports false when the result cannot be computed locally.
	Eval(get ValueLookup) (*ExprPtr, bool)

	// AddConstraints adds the full encoding of the function to gen and
	// returns the value of its return code.
	AddConstraints(gen ConstraintGenerator) (*ExprPtr, error)
	// LengthConstraint relates only the length of the result to the lengths
	// of the arguments.
	LengthConstraint() (*ExprPtr, error)

	// MaybeTestingFunction reports whether the return code of the function
	// may be observed by the program.
	MaybeTestingFunction() bool

	builtin()
}

// Names of the primitives that have a dedicated builtin function.
const (
	FuncStringInsert     = "string_insert"
	FuncStringConcat     = "string_concat"
	FuncStringConcatChar = "string_concat_char"
)

// NewBuiltinFunction builds the builtin function for the application app,
// whose result is returnCode. Strings are resolved through pool. Primitives
// without a dedicated implementation give an OpaqueBuiltin.
func NewBuiltinFunction(eb *ExprBuilder, returnCode, app *ExprPtr, pool ArrayResolver) (BuiltinFunction, error) {
	if app.Kind() != TY_FUNAPP {
		return nil, fmt.Errorf("%w: %s is not a function application", ErrMalformedApplication, app)
	}

	switch app.Name() {
	case FuncStringInsert:
		return newInsertionBuiltin(eb, returnCode, app, pool)
	case FuncStringConcat:
		return newConcatenationBuiltin(eb, returnCode, app, pool)
	case FuncStringConcatChar:
		return newConcatCharBuiltin(eb, returnCode, app, pool)
	}
	return newOpaqueBuiltin(eb, returnCode, app, pool)
}

// outArgument resolves the (length, pointer) pair at the start of args, if
// present.
func outArgument(args []*ExprPtr, pool ArrayResolver) (*ExprPtr, bool, error) {
	if len(args) < 2 || args[0].Sort() != IntSort || args[1].Sort() != PointerSort {
		return nil, false, nil
	}
	s, err := pool.Find(args[1], args[0])
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

func isStringArgument(e *ExprPtr) bool {
	return e.Sort() == StringSort || e.Sort() == RefStringSort
}

type builtinBase struct {
	eb         *ExprBuilder
	name       string
	returnCode *ExprPtr
}

func (b *builtinBase) Name() string {
	return b.name
}

func (b *builtinBase) ReturnCode() *ExprPtr {
	return b.returnCode
}

func (b *builtinBase) builtin() {}

// withResult is embedded by the functions that write a string through their
// out-argument.
type withResult struct {
	builtinBase
	result *ExprPtr
}

func newWithResult(eb *ExprBuilder, returnCode, app *ExprPtr, pool ArrayResolver, nargs int) (withResult, []*ExprPtr, error) {
	args := app.Children()
	if len(args) < nargs {
		return withResult{}, nil, fmt.Errorf("%w: %s expects at least %d arguments, got %d",
			ErrMalformedApplication, app.Name(), nargs, len(args))
	}
	result, ok, err := outArgument(args, pool)
	if err != nil {
		return withResult{}, nil, err
	}
	if !ok {
		return withResult{}, nil, fmt.Errorf("%w: %s has no (length, pointer) result argument",
			ErrMalformedApplication, app.Name())
	}
	return withResult{
		builtinBase: builtinBase{eb: eb, name: app.Name(), returnCode: returnCode},
		result:      result,
	}, args[2:], nil
}

func (b *withResult) StringResult() (*ExprPtr, bool) {
	return b.result, true
}

func (b *withResult) MaybeTestingFunction() bool {
	return false
}

// concreteString returns the literal value of s, or false when get does not
// know it.
func concreteString(get ValueLookup, s *ExprPtr) ([]rune, bool) {
	v := get(s)
	if v == nil {
		return nil, false
	}
	lit, err := v.GetString()
	if err != nil {
		return nil, false
	}
	return []rune(lit), true
}

func concreteInt(get ValueLookup, e *ExprPtr) (int64, bool) {
	v := get(e)
	if v == nil {
		return 0, false
	}
	i, err := v.GetInt()
	if err != nil {
		return 0, false
	}
	return i, true
}

func clampInt(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// OpaqueBuiltin is a primitive without a local evaluator. Its encoding is
// delegated to the constraint generator and its return code is assumed to be
// observed by the program.
type OpaqueBuiltin struct {
	builtinBase
	app  *ExprPtr
	args []*ExprPtr
}

func newOpaqueBuiltin(eb *ExprBuilder, returnCode, app *ExprPtr, pool ArrayResolver) (*OpaqueBuiltin, error) {
	b := &OpaqueBuiltin{
		builtinBase: builtinBase{eb: eb, name: app.Name(), returnCode: returnCode},
		app:         app,
	}

	args := app.Children()
	if out, ok, err := outArgument(args, pool); err != nil {
		return nil, err
	} else if ok {
		b.args = append(b.args, out)
		args = args[2:]
	}
	var err error
	for _, a := range args {
		forEachStringSubexpr(a, func(e *ExprPtr) {
			if err != nil {
				return
			}
			var s *ExprPtr
			if s, err = pool.OfArgument(e); err == nil {
				b.args = append(b.args, s)
			}
		})
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// forEachStringSubexpr calls f on the outermost string subexpressions of e.
func forEachStringSubexpr(e *ExprPtr, f func(*ExprPtr)) {
	if isStringArgument(e) {
		f(e)
		return
	}
	for _, c := range e.Children() {
		forEachStringSubexpr(c, f)
	}
}

func (b *OpaqueBuiltin) StringArguments() []*ExprPtr {
	return b.args
}

func (b *OpaqueBuiltin) StringResult() (*ExprPtr, bool) {
	return nil, false
}

func (b *OpaqueBuiltin) Eval(get ValueLookup) (*ExprPtr, bool) {
	return nil, false
}

func (b *OpaqueBuiltin) AddConstraints(gen ConstraintGenerator) (*ExprPtr, error) {
	return gen.AddAxiomsForFunctionApplication(b.app)
}

// LengthConstraint is trivial: nothing is known about the strings an opaque
// function touches.
func (b *OpaqueBuiltin) LengthConstraint() (*ExprPtr, error) {
	return b.eb.BoolVal(true), nil
}

func (b *OpaqueBuiltin) MaybeTestingFunction() bool {
	return true
}
