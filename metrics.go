package strrefine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("strrefine")

var (
	builtinConstraintsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strrefine_builtin_constraints_total",
		Help: "Builtin functions encoded, by encoding (full or length)",
	}, []string{"encoding"})

	evalCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strrefine_eval_cache_total",
		Help: "String evaluations through the dependency graph, by cache result",
	}, []string{"result"})

	decSolveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strrefine_dec_solve_total",
		Help: "Decision procedure runs, by result",
	}, []string{"result"})

	lemmasTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "strrefine_lemmas_total",
		Help: "Lemmas sent to the solver",
	})
)
