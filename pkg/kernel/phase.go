// Package kernel implements the proof kernel: a phase-constrained execution
// checker that re-evaluates typed steps over a content-addressed memory DAG,
// checks monitor predicates, and mints receipts binding an output to a
// pinned law hash.
package kernel

import "fmt"

// Phase is the controller's coarse execution stage.
type Phase int

const (
	PhaseIngest Phase = iota
	PhaseTraverse
	PhaseAnalyze
	PhaseHypothesize
	PhaseDecide
	PhaseAct
)

var phaseNames = map[Phase]string{
	PhaseIngest:      "INGEST",
	PhaseTraverse:    "TRAVERSE",
	PhaseAnalyze:     "ANALYZE",
	PhaseHypothesize: "HYPOTHESIZE",
	PhaseDecide:      "DECIDE",
	PhaseAct:         "ACT",
}

func (p Phase) String() string {
	if n, known := phaseNames[p]; known {
		return n
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// StepType is the opcode of one proof step.
type StepType int

const (
	StepParse StepType = iota
	StepExtract
	StepInfer
	StepAggregate
	StepEntityBind
	StepDecide
	StepAct
)

var stepTypeNames = map[StepType]string{
	StepParse:      "PARSE",
	StepExtract:    "EXTRACT",
	StepInfer:      "INFER",
	StepAggregate:  "AGGREGATE",
	StepEntityBind: "ENTITY_BIND",
	StepDecide:     "DECIDE",
	StepAct:        "ACT",
}

func (s StepType) String() string {
	if n, known := stepTypeNames[s]; known {
		return n
	}
	return fmt.Sprintf("StepType(%d)", int(s))
}

// AllPhases lists every phase.
var AllPhases = []Phase{
	PhaseIngest, PhaseTraverse, PhaseAnalyze, PhaseHypothesize, PhaseDecide, PhaseAct,
}

// AllStepTypes lists every step type.
var AllStepTypes = []StepType{
	StepParse, StepExtract, StepInfer, StepAggregate, StepEntityBind, StepDecide, StepAct,
}

// PhaseAllowed is the fixed phase → allowed-step-types map enforced by the
// PhaseAllowlistMonitor and pinned into the law hash.
var PhaseAllowed = map[Phase]map[StepType]bool{
	PhaseIngest:      {StepParse: true},
	PhaseTraverse:    {StepExtract: true},
	PhaseAnalyze:     {StepExtract: true, StepAggregate: true, StepInfer: true},
	PhaseHypothesize: {StepExtract: true, StepAggregate: true, StepInfer: true},
	PhaseDecide:      {StepDecide: true},
	PhaseAct:         {StepAct: true},
}
