package orchestrator

import "github.com/epiwatch/epiwatch/internal/domain"

// DefaultBatchSize is how many signals the rule planner requests per
// FETCHING step.
const DefaultBatchSize = 3

// RulePlanner is the default Planner: fetch pending signals in fixed-size
// batches, finalize once everything requested has been attempted. The
// orchestrator enforces the iteration budget on top of whatever the planner
// decides, so the planner itself only reasons about coverage.
type RulePlanner struct {
	batchSize int
}

// NewRulePlanner creates a rule-based planner. A batch size below 1 selects
// the default.
func NewRulePlanner(batchSize int) *RulePlanner {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &RulePlanner{batchSize: batchSize}
}

// DecideNextAction fetches the next batch of pending signals, or finalizes
// when none remain.
func (p *RulePlanner) DecideNextAction(evidence domain.EvidenceSummary) domain.Action {
	if len(evidence.PendingSignals) == 0 {
		return domain.Action{Type: domain.ActionFinalize}
	}

	n := p.batchSize
	if n > len(evidence.PendingSignals) {
		n = len(evidence.PendingSignals)
	}
	batch := make([]string, n)
	copy(batch, evidence.PendingSignals[:n])

	return domain.Action{Type: domain.ActionFetchSignal, Signals: batch}
}
