// Package route defines routing decisions and replan adjustments.
package route

import "github.com/percept-io/percept/internal/domain/worker"

// Mode selects between a single worker and an ensemble.
type Mode string

const (
	ModeSingle   Mode = "single"
	ModeEnsemble Mode = "ensemble"
)

// Decision is the router's output for one iteration: which domains to
// dispatch to, and whether their outcomes are verified individually or
// by majority vote.
type Decision struct {
	Mode    Mode            `json:"mode"`
	Domains []worker.Domain `json:"domains"`
}

// Hint carries the reflector's strategy adjustment into the next
// iteration. The zero value means "default policy".
type Hint struct {
	ForceEnsemble  bool     `json:"force_ensemble,omitempty"`
	ExcludeWorkers []string `json:"exclude_workers,omitempty"`
	AdjustedPrompt string   `json:"adjusted_prompt,omitempty"`
}

// Excluded reports whether the given worker ID is excluded by the hint.
func (h Hint) Excluded(workerID string) bool {
	for _, id := range h.ExcludeWorkers {
		if id == workerID {
			return true
		}
	}
	return false
}
