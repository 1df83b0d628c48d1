package kernel

import (
	"sort"

	"github.com/epistemiclabs/ledger/pkg/canon"
)

// The law bundle is a canonical snapshot of the kernel's rules of evidence:
// the phase → allowed-step-types map, the full opcode set, and the built-in
// monitor names. Its SHA-256 is the law hash every receipt is pinned to, so
// two kernels accept each other's receipts iff they run the same law.

// lawMonitorNames lists the built-in monitors pinned into the law.
var lawMonitorNames = []string{
	"PhaseAllowlistMonitor",
	"HiddenPremiseMonitor",
}

// LawBundle returns the canonical JSON snapshot of the kernel configuration.
func LawBundle() ([]byte, error) {
	phases := make(map[string]interface{}, len(PhaseAllowed))
	for phase, allowed := range PhaseAllowed {
		names := make([]string, 0, len(allowed))
		for st := range allowed {
			names = append(names, st.String())
		}
		sort.Strings(names)
		phases[phase.String()] = names
	}

	opcodes := make([]string, 0, len(AllStepTypes))
	for _, st := range AllStepTypes {
		opcodes = append(opcodes, st.String())
	}
	sort.Strings(opcodes)

	monitors := append([]string(nil), lawMonitorNames...)
	sort.Strings(monitors)

	return canon.Canonical(map[string]interface{}{
		"phases":   phases,
		"opcodes":  opcodes,
		"monitors": monitors,
	})
}

// LawHash returns the bare 64-hex digest of the law bundle.
func LawHash() (string, error) {
	bundle, err := LawBundle()
	if err != nil {
		return "", err
	}
	return canon.SHA256Hex(bundle), nil
}
