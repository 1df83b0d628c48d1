package kernel

import "encoding/json"

// Deterministic verdict codes. Verification never returns free-form text:
// identical inputs yield identical codes.
const (
	CodeAccept                   = "ACCEPT"
	CodeCommitted                = "COMMITTED"
	CodeEmptyProof               = "EMPTY_PROOF"
	CodeMissingReceiptNode       = "MISSING_RECEIPT_NODE"
	CodeBadReceiptEncoding       = "BAD_RECEIPT_ENCODING"
	CodeReceiptLawMismatch       = "RECEIPT_LAW_MISMATCH"
	CodeBadReceiptSchema         = "BAD_RECEIPT_SCHEMA"
	CodeMissingReceiptOutputNode = "MISSING_RECEIPT_OUTPUT_NODE"
	CodeMissingMemNode           = "MISSING_MEMNODE"
	CodeReplayMismatch           = "REPLAY_MISMATCH"
	CodeMonitorReject            = "MONITOR_REJECT"
	CodeBadActShape              = "BAD_ACT_SHAPE"
	codeOK                       = "OK"
)

// Critic re-evaluates proofs against memory and the monitor chain.
type Critic struct {
	Memory   *MemoryStore
	Monitors []Monitor
	LawHash  string
}

// NewCritic builds a critic over memory with the given monitor chain and
// pinned law hash.
func NewCritic(memory *MemoryStore, monitors []Monitor, lawHash string) *Critic {
	return &Critic{Memory: memory, Monitors: monitors, LawHash: lawHash}
}

// validateReceipts checks every receipt dependency: present in memory,
// decodable as a JSON object, pinned to this critic's law, schema-complete,
// and with its declared output node still in memory.
func (c *Critic) validateReceipts(receiptDeps []string) (bool, string) {
	for _, rh := range receiptDeps {
		node, err := c.Memory.Get(rh)
		if err != nil {
			return false, CodeMissingReceiptNode
		}

		var r map[string]interface{}
		if err := json.Unmarshal(node.Data, &r); err != nil {
			return false, CodeBadReceiptEncoding
		}

		if lawHash, _ := r["law_hash"].(string); lawHash != c.LawHash {
			return false, CodeReceiptLawMismatch
		}

		for _, key := range []string{"output_node", "phase", "goal_id"} {
			if _, present := r[key]; !present {
				return false, CodeBadReceiptSchema
			}
		}

		outputNode, _ := r["output_node"].(string)
		if !c.Memory.Has(outputNode) {
			return false, CodeMissingReceiptOutputNode
		}
	}
	return true, codeOK
}

// ReplayAndVerify re-evaluates every step of proof under phase.
//
// Each step's output bytes are recomputed from its declared inputs and put
// into memory with those inputs as parents; the resulting digest must equal
// the step's declared output node. After each verified step, the monitor
// chain observes the event in declared order and the first rejection halts
// replay. Verification is idempotent: ACCEPT re-verifies to ACCEPT.
func (c *Critic) ReplayAndVerify(proof Proof, phase Phase) (bool, string) {
	if len(proof.Steps) == 0 {
		return false, CodeEmptyProof
	}

	if ok, code := c.validateReceipts(proof.ReceiptDeps); !ok {
		return false, code
	}

	norms := Norms{GoalID: proof.GoalID}

	for _, step := range proof.Steps {
		inNodes := make([]MemNode, 0, len(step.Inputs))
		for _, h := range step.Inputs {
			n, err := c.Memory.Get(h)
			if err != nil {
				return false, CodeMissingMemNode
			}
			inNodes = append(inNodes, n)
		}

		outBytes, err := opcodeEval(step, inNodes)
		if err != nil {
			return false, CodeReplayMismatch
		}
		outHash, err := c.Memory.Put(outBytes, step.Inputs)
		if err != nil {
			return false, CodeReplayMismatch
		}
		if outHash != step.OutputNode {
			return false, CodeReplayMismatch
		}

		switch step.Type {
		case StepInfer:
			norms.InferCount++
		case StepAggregate:
			norms.AggregateCount++
		case StepDecide, StepAct:
			norms.DecisionCount++
		}

		event := ObsEvent{
			Phase:     phase,
			StepType:  step.Type,
			RuleID:    step.RuleID,
			DepsCount: len(step.Inputs),
			Norms:     norms,
		}
		for _, m := range c.Monitors {
			if !m.Step(event) {
				return false, CodeMonitorReject
			}
		}
	}

	// ACT phase admits exactly one step, and it must be an ACT step.
	if phase == PhaseAct {
		if len(proof.Steps) != 1 || proof.Steps[0].Type != StepAct {
			return false, CodeBadActShape
		}
	}

	return true, CodeAccept
}
