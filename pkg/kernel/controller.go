package kernel

import "github.com/epistemiclabs/ledger/pkg/canon"

// Receipt binds a law hash, a phase, a goal, and a final output digest. It
// is stored as a MemNode whose data is the receipt's canonical JSON and
// whose sole parent is that output node, chaining receipts into the DAG.
type Receipt struct {
	LawHash    string `json:"law_hash"`
	Phase      string `json:"phase"`
	GoalID     string `json:"goal_id"`
	OutputNode string `json:"output_node"`
}

// Controller holds the current phase, delegates verification to the critic,
// and mints receipts for accepted proofs.
type Controller struct {
	memory        *MemoryStore
	critic        *Critic
	phase         Phase
	lawHash       string
	lastReceiptID string
}

// NewController starts in PhaseIngest with no prior receipt.
func NewController(memory *MemoryStore, critic *Critic) *Controller {
	return &Controller{
		memory:  memory,
		critic:  critic,
		phase:   PhaseIngest,
		lawHash: critic.LawHash,
	}
}

// AdvancePhase sets the current phase. Phase ordering is deliberately not
// enforced: harnesses may jump phases, and the monitors (not the
// transition) are what constrain which steps a phase admits.
func (c *Controller) AdvancePhase(phase Phase) {
	c.phase = phase
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	return c.phase
}

// LastReceiptID returns the memory digest of the most recently minted
// receipt; empty until the first successful Submit.
func (c *Controller) LastReceiptID() string {
	return c.lastReceiptID
}

// Submit verifies proof under the current phase and, on acceptance, mints a
// receipt chained to the proof's final output node.
func (c *Controller) Submit(proof Proof) (bool, string) {
	ok, code := c.critic.ReplayAndVerify(proof, c.phase)
	if !ok {
		return false, code
	}

	finalNode := proof.Steps[len(proof.Steps)-1].OutputNode
	receipt := Receipt{
		LawHash:    c.lawHash,
		Phase:      c.phase.String(),
		GoalID:     proof.GoalID,
		OutputNode: finalNode,
	}

	data, err := canon.Canonical(receipt)
	if err != nil {
		return false, CodeBadReceiptEncoding
	}
	rh, err := c.memory.Put(data, []string{finalNode})
	if err != nil {
		return false, CodeBadReceiptEncoding
	}
	c.lastReceiptID = rh
	return true, CodeCommitted
}
