package kernel

// Norms are running tallies maintained across a proof's replay, exposed to
// monitors after every verified step.
type Norms struct {
	InferCount     int
	AggregateCount int
	DecisionCount  int // DECIDE + ACT
	GoalID         string
}

// ObsEvent is what a monitor observes after each successful step
// recomputation.
type ObsEvent struct {
	Phase     Phase
	StepType  StepType
	RuleID    string
	DepsCount int
	Norms     Norms
}

// Monitor is a predicate over ObsEvents. Monitors run in declared order and
// the first rejection halts replay.
type Monitor interface {
	Step(event ObsEvent) bool
}

// PhaseAllowlistMonitor rejects steps whose type is not allowed in the
// current phase.
type PhaseAllowlistMonitor struct{}

func (PhaseAllowlistMonitor) Step(event ObsEvent) bool {
	return PhaseAllowed[event.Phase][event.StepType]
}

// HiddenPremiseMonitor rejects INFER, DECIDE, and ACT steps with no inputs:
// a conclusion must rest on at least one recorded premise.
type HiddenPremiseMonitor struct{}

func (HiddenPremiseMonitor) Step(event ObsEvent) bool {
	switch event.StepType {
	case StepInfer, StepDecide, StepAct:
		return event.DepsCount > 0
	}
	return true
}

// DefaultMonitors returns the built-in monitor chain in its canonical order.
func DefaultMonitors() []Monitor {
	return []Monitor{PhaseAllowlistMonitor{}, HiddenPremiseMonitor{}}
}
