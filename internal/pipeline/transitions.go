// Package pipeline orchestrates the three ticket processing stages:
// raw-content extraction, AI-assisted standardization, and invoice
// validation with payment submission. Each stage reads the ticket document,
// runs its work, and persists a patch; completed stages chain the next one.
package pipeline

import (
	"slices"

	"github.com/zavaops/ticketflow/constants"
)

// Stage identifies one of the three pipeline stages.
type Stage int

const (
	StageExtract Stage = iota + 1
	StageStandardize
	StageInvoice
)

func (s Stage) String() string {
	switch s {
	case StageExtract:
		return "extract"
	case StageStandardize:
		return "standardize"
	case StageInvoice:
		return "invoice"
	default:
		return "unknown"
	}
}

// stageEntry lists the ticket statuses a stage may start from. A stage can
// re-run while its own in-progress status is set (retry after a crash) and
// from the error status (manual recovery). Extraction has no guard: it runs
// on fresh tickets and on explicit reprocessing from any state.
var stageEntry = map[Stage][]constants.TicketStatus{
	StageStandardize: {
		constants.StatusExtracted,
		constants.StatusAIProcessing,
		constants.StatusError,
	},
	StageInvoice: {
		constants.StatusAIProcessed,
		constants.StatusInvoiceProcessing,
		constants.StatusError,
	},
}

// CanRun reports whether a stage may start for a ticket in the given status.
func CanRun(stage Stage, status constants.TicketStatus) bool {
	allowed, ok := stageEntry[stage]
	if !ok {
		return true
	}
	return slices.Contains(allowed, status)
}
