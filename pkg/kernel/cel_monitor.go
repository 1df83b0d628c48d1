package kernel

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
)

// CELMonitor is an operator-supplied monitor predicate compiled from a CEL
// expression over the ObsEvent fields:
//
//	phase, step_type, rule_id, goal_id  (string)
//	deps_count, infer_count, aggregate_count, decision_count  (int)
//
// The expression must be deterministic: it is evaluated during replay and a
// nondeterministic predicate would make verification unrepeatable. The
// compiler therefore rejects expressions that call double(), now(),
// timestamp() or duration() (a textual check; float literals are not
// rejected), and the expression must produce a bool.
type CELMonitor struct {
	source  string
	program cel.Program
}

// NewCELMonitor validates and compiles expr.
func NewCELMonitor(expr string) (*CELMonitor, error) {
	if err := checkDeterministic(expr); err != nil {
		return nil, err
	}

	env, err := cel.NewEnv(
		cel.Variable("phase", cel.StringType),
		cel.Variable("step_type", cel.StringType),
		cel.Variable("rule_id", cel.StringType),
		cel.Variable("goal_id", cel.StringType),
		cel.Variable("deps_count", cel.IntType),
		cel.Variable("infer_count", cel.IntType),
		cel.Variable("aggregate_count", cel.IntType),
		cel.Variable("decision_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("kernel: cel env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("kernel: cel compile: %w", issues.Err())
	}
	if ast.OutputType().String() != cel.BoolType.String() {
		return nil, fmt.Errorf("kernel: cel monitor must produce bool, got %s", ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("kernel: cel program: %w", err)
	}
	return &CELMonitor{source: expr, program: program}, nil
}

// Step evaluates the predicate. Evaluation errors reject the event: a
// monitor that cannot decide must not pass.
func (m *CELMonitor) Step(event ObsEvent) bool {
	out, _, err := m.program.Eval(map[string]interface{}{
		"phase":           event.Phase.String(),
		"step_type":       event.StepType.String(),
		"rule_id":         event.RuleID,
		"goal_id":         event.Norms.GoalID,
		"deps_count":      int64(event.DepsCount),
		"infer_count":     int64(event.Norms.InferCount),
		"aggregate_count": int64(event.Norms.AggregateCount),
		"decision_count":  int64(event.Norms.DecisionCount),
	})
	if err != nil {
		return false
	}
	b, isBool := out.Value().(bool)
	return isBool && b
}

// Source returns the original expression.
func (m *CELMonitor) Source() string {
	return m.source
}

// checkDeterministic statically rejects constructs that would make monitor
// decisions irreproducible across replays.
func checkDeterministic(expr string) error {
	for _, forbidden := range []string{"double(", "now(", "timestamp(", "duration("} {
		if strings.Contains(expr, forbidden) {
			return fmt.Errorf("kernel: cel monitor: %q is not allowed in deterministic monitors", forbidden)
		}
	}
	return nil
}
