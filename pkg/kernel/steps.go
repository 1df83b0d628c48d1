package kernel

import "github.com/epistemiclabs/ledger/pkg/canon"

// Step is one typed re-evaluation unit: an opcode, the rule that produced
// it, ordered input node digests, semantic params, and the expected output
// node digest.
type Step struct {
	Type       StepType
	RuleID     string
	Inputs     []string
	Params     map[string]interface{}
	OutputNode string
}

// Proof is an ordered, non-empty sequence of steps toward a goal, plus the
// memory digests of any prior receipts it depends on.
type Proof struct {
	GoalID      string
	Steps       []Step
	ReceiptDeps []string
}

// opcodeEval recomputes a step's output bytes from its input nodes. The
// payload covers the opcode, rule, params, and for each input both its data
// digest and its parent digests — so replay detects any drift in either the
// step description or its inputs.
func opcodeEval(step Step, inNodes []MemNode) ([]byte, error) {
	inputsData := make([]string, len(inNodes))
	inputsParents := make([][]string, len(inNodes))
	for i, n := range inNodes {
		inputsData[i] = canon.SHA256Hex(n.Data)
		parents := n.Parents
		if parents == nil {
			parents = []string{}
		}
		inputsParents[i] = parents
	}

	params := step.Params
	if params == nil {
		params = map[string]interface{}{}
	}

	return canon.Canonical(map[string]interface{}{
		"op":             step.Type.String(),
		"rule":           step.RuleID,
		"params":         params,
		"inputs_data":    inputsData,
		"inputs_parents": inputsParents,
	})
}
