package strrefine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type RefinementStats struct {
	Equations                int
	CapturedEquations        int
	UnrelatedStringEquations int
	Lemmas                   int
	Dependencies             DependencyStats
}

// StringRefinement decides formulas mixing string primitives with integer
// and boolean constraints. Equations defining the result of a string
// primitive are turned into a dependency graph, which decides which of them
// need their full encoding.
type StringRefinement struct {
	eb     *ExprBuilder
	config Config
	logger *slog.Logger

	pool         *ArrayPool
	generator    *Generator
	dependencies *StringDependencies
	solver       *Solver

	equations []*ExprPtr
	residual  []*ExprPtr
	built     bool
	stats     RefinementStats
}

func NewStringRefinement(eb *ExprBuilder, config Config) (*StringRefinement, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return newStringRefinement(eb, config, NewZ3Solver(eb, config.MaxStringLength)), nil
}

func newStringRefinement(eb *ExprBuilder, config Config, solver *Solver) *StringRefinement {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pool := NewArrayPool(eb)
	return &StringRefinement{
		eb:           eb,
		config:       config,
		logger:       logger,
		pool:         pool,
		generator:    NewGenerator(eb, pool, config.MaxStringLength, logger),
		dependencies: NewStringDependencies(eb, logger),
		solver:       solver,
	}
}

// SetTo records a constraint. Equations `lhs == f(args)` where f is a string
// primitive are handled by the dependency graph.
func (r *StringRefinement) SetTo(e *ExprPtr) error {
	if err := expectSort("SetTo", e, BoolSort); err != nil {
		return err
	}
	if r.built {
		return fmt.Errorf("SetTo %s: the dependency graph is already built", e)
	}
	r.equations = append(r.equations, e)
	return nil
}

func (r *StringRefinement) Dependencies() *StringDependencies {
	return r.dependencies
}

// connectedEquations counts the string equations that share a string,
// directly or through other equations, with an application of a string
// primitive.
func (r *StringRefinement) connectedEquations(eqMap *EquationSymbolMapping, stringEquations map[int]bool) int {
	connected := make([]bool, len(r.equations))
	stack := make([]int, 0)
	for i, eq := range r.equations {
		if !stringEquations[i] {
			continue
		}
		ForEachSubexpr(eq, func(e *ExprPtr) {
			if e.Kind() == TY_FUNAPP && !connected[i] {
				connected[i] = true
				stack = append(stack, i)
			}
		})
	}

	count := len(stack)
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range eqMap.FindExpressions(i) {
			for _, j := range eqMap.FindEquations(s) {
				if !connected[j] {
					connected[j] = true
					count += 1
					stack = append(stack, j)
				}
			}
		}
	}
	return count
}

// BuildGraph adds every recorded equation to the dependency graph. It is
// called by DecSolve and only needs to be called directly to inspect the
// graph.
func (r *StringRefinement) BuildGraph(ctx context.Context) error {
	if r.built {
		return nil
	}

	eqMap := NewEquationSymbolMapping()
	stringEquations := make(map[int]bool)
	for i, eq := range r.equations {
		ForEachSubexpr(eq, func(e *ExprPtr) {
			if isStringArgument(e) {
				eqMap.Add(i, e)
				stringEquations[i] = true
			}
		})
	}
	r.stats.Equations = len(r.equations)
	r.stats.UnrelatedStringEquations = len(stringEquations) - r.connectedEquations(eqMap, stringEquations)

	for _, eq := range r.equations {
		captured, err := r.dependencies.AddNode(eq, r.pool)
		if err != nil {
			return fmt.Errorf("add node %s: %w", eq, err)
		}
		if captured {
			r.stats.CapturedEquations += 1
		} else {
			r.residual = append(r.residual, eq)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	for _, eq := range r.residual {
		if err := r.markObserved(eq); err != nil {
			return fmt.Errorf("residual equation %s: %w", eq, err)
		}
	}
	r.built = true

	r.logger.Debug("dependency graph built",
		"equations", r.stats.Equations,
		"captured", r.stats.CapturedEquations,
		"unrelated_string_equations", r.stats.UnrelatedStringEquations)
	return nil
}

// markObserved records the strings read by an equation the graph does not
// capture, so that whatever produces them is fully encoded.
func (r *StringRefinement) markObserved(eq *ExprPtr) error {
	var err error
	forEachStringSubexpr(eq, func(e *ExprPtr) {
		if err != nil {
			return
		}
		var s *ExprPtr
		if s, err = r.pool.OfArgument(e); err == nil {
			r.dependencies.MarkObserved(s)
		}
	})
	return err
}

func (r *StringRefinement) dumpGraph(ctx context.Context) error {
	if r.config.DependencyGraphPath != "" {
		f, err := os.Create(r.config.DependencyGraphPath)
		if err != nil {
			return fmt.Errorf("dump dependency graph: %w", err)
		}
		defer f.Close()
		if err := r.dependencies.OutputDot(f); err != nil {
			return fmt.Errorf("dump dependency graph: %w", err)
		}
	}

	if r.logger.Enabled(ctx, slog.LevelDebug) {
		b := strings.Builder{}
		if err := r.dependencies.OutputDot(&b); err != nil {
			return err
		}
		r.logger.Debug("dependency graph", "dot", b.String())
	}
	return nil
}

// OutputDot builds the dependency graph if needed and writes it to w.
func (r *StringRefinement) OutputDot(ctx context.Context, w io.Writer) error {
	if err := r.BuildGraph(ctx); err != nil {
		return err
	}
	return r.dependencies.OutputDot(w)
}

// DecSolve encodes the recorded constraints and checks them. It returns one
// of RESULT_SAT, RESULT_UNSAT and RESULT_UNKNOWN.
func (r *StringRefinement) DecSolve(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "strrefine.DecSolve",
		trace.WithAttributes(attribute.Int("equations", len(r.equations))))
	defer span.End()

	result, err := r.decSolve(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		decSolveTotal.WithLabelValues(ResultString(RESULT_ERROR)).Inc()
		return RESULT_ERROR, err
	}

	span.SetAttributes(
		attribute.String("result", ResultString(result)),
		attribute.Int("lemmas", r.stats.Lemmas))
	span.SetStatus(codes.Ok, "")
	decSolveTotal.WithLabelValues(ResultString(result)).Inc()
	return result, nil
}

func (r *StringRefinement) decSolve(ctx context.Context) (int, error) {
	if err := r.BuildGraph(ctx); err != nil {
		return RESULT_ERROR, err
	}
	if err := r.dumpGraph(ctx); err != nil {
		return RESULT_ERROR, err
	}

	r.generator.Clear()
	if err := r.dependencies.AddConstraints(r.generator); err != nil {
		return RESULT_ERROR, fmt.Errorf("add constraints: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return RESULT_ERROR, err
	}

	for _, e := range r.residual {
		if err := r.generator.AddLemma(e); err != nil {
			return RESULT_ERROR, err
		}
	}
	for _, e := range r.pool.Associations() {
		if err := r.generator.AddLemma(e); err != nil {
			return RESULT_ERROR, err
		}
	}

	for _, lemma := range r.generator.Lemmas() {
		substituted, err := r.eb.SubstituteArrayAccess(lemma, r.config.LeftPropagate)
		if err != nil {
			return RESULT_ERROR, fmt.Errorf("substitute array access in %s: %w", lemma, err)
		}
		if err := r.solver.Add(substituted); err != nil {
			return RESULT_ERROR, err
		}
	}
	r.stats.Lemmas = len(r.generator.Lemmas())
	lemmasTotal.Add(float64(r.stats.Lemmas))
	if err := ctx.Err(); err != nil {
		return RESULT_ERROR, err
	}

	r.dependencies.CleanCache()
	r.logger.Debug("checking string constraints",
		"lemmas", r.stats.Lemmas,
		"full", r.dependencies.Stats.FullConstraints,
		"length_only", r.dependencies.Stats.LengthConstraints)
	return r.solver.Satisfiable()
}

func (r *StringRefinement) lookup(e *ExprPtr) *ExprPtr {
	v, err := r.Get(e)
	if err != nil {
		r.logger.Debug("no model value", "expr", e.String(), "error", err)
		return nil
	}
	return v
}

// Get returns the value of e in the model found by DecSolve. Strings produced
// by a string primitive are computed from the values of its arguments when
// possible.
func (r *StringRefinement) Get(e *ExprPtr) (*ExprPtr, error) {
	switch e.Sort() {
	case StringSort:
		if v, ok := r.dependencies.Eval(e, r.lookup); ok {
			return v, nil
		}
	case RefStringSort:
		s, err := r.pool.OfArgument(e)
		if err != nil {
			return nil, err
		}
		return r.Get(s)
	}

	substituted, err := r.eb.SubstituteArrayAccess(e, r.config.LeftPropagate)
	if err != nil {
		return nil, err
	}
	return r.solver.Eval(substituted)
}

func (r *StringRefinement) Stats() RefinementStats {
	stats := r.stats
	stats.Dependencies = r.dependencies.Stats
	return stats
}
