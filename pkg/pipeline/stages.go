package pipeline

import "fmt"

// Stage identifies where a pipeline run sits in its delivery flow. The
// stage value doubles as the rule subject value for stage-scoped rules.
type Stage string

const (
	StageBranch             Stage = "branch"
	StagePRCreated          Stage = "pr_created"
	StageCIRunning          Stage = "ci_running"
	StageCIFailed           Stage = "ci_failed"
	StageCIPassed           Stage = "ci_passed"
	StageReviewPending      Stage = "review_pending"
	StageReviewRejected     Stage = "review_rejected"
	StageReviewApproved     Stage = "review_approved"
	StageMerged             Stage = "merged"
	StageStagingDeployed    Stage = "staging_deployed"
	StageE2ERunning         Stage = "e2e_running"
	StageE2EFailed          Stage = "e2e_failed"
	StageE2EPassed          Stage = "e2e_passed"
	StageProductionDeployed Stage = "production_deployed"
	StageRolledBack         Stage = "rolled_back"
	StageAborted            Stage = "aborted"
)

// successors is the fixed stage graph. A stage with two successors is a
// branch point: the first entry is the success edge, the second the
// failure edge. Terminal stages have none.
var successors = map[Stage][]Stage{
	StageBranch:             {StagePRCreated},
	StagePRCreated:          {StageCIRunning},
	StageCIRunning:          {StageCIPassed, StageCIFailed},
	StageCIFailed:           {StagePRCreated},
	StageCIPassed:           {StageReviewPending},
	StageReviewPending:      {StageReviewApproved, StageReviewRejected},
	StageReviewRejected:     {StagePRCreated},
	StageReviewApproved:     {StageMerged},
	StageMerged:             {StageStagingDeployed},
	StageStagingDeployed:    {StageE2ERunning},
	StageE2ERunning:         {StageE2EPassed, StageE2EFailed},
	StageE2EFailed:          {StageRolledBack},
	StageE2EPassed:          {StageProductionDeployed},
	StageProductionDeployed: nil,
	StageRolledBack:         nil,
	StageAborted:            nil,
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	_, ok := successors[s]
	return ok
}

// Terminal reports whether s ends a run. A terminal run accepts no
// further events.
func (s Stage) Terminal() bool {
	switch s {
	case StageProductionDeployed, StageRolledBack, StageAborted:
		return true
	}
	return false
}

func (s Stage) String() string {
	return string(s)
}

// Successors returns the stages reachable from s in one transition,
// not counting the abort edge every non-terminal stage carries.
func (s Stage) Successors() []Stage {
	next := successors[s]
	out := make([]Stage, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether the graph permits moving from one
// stage to another. Aborting is permitted from any non-terminal stage.
func CanTransition(from, to Stage) bool {
	if to == StageAborted {
		return from.Valid() && !from.Terminal()
	}
	for _, next := range successors[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ParseStage converts a stage name from configuration or the wire into
// a Stage.
func ParseStage(s string) (Stage, error) {
	stage := Stage(s)
	if !stage.Valid() {
		return "", fmt.Errorf("unknown pipeline stage: %q", s)
	}
	return stage, nil
}
