package pipeline_test

import (
	"testing"

	"mercator-hq/ganymede/pkg/pipeline"
)

func TestStageTerminal(t *testing.T) {
	terminal := []pipeline.Stage{
		pipeline.StageProductionDeployed,
		pipeline.StageRolledBack,
		pipeline.StageAborted,
	}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("stage %s should be terminal", s)
		}
	}

	active := []pipeline.Stage{
		pipeline.StageBranch,
		pipeline.StageCIRunning,
		pipeline.StageReviewPending,
		pipeline.StageE2EFailed,
	}
	for _, s := range active {
		if s.Terminal() {
			t.Errorf("stage %s should not be terminal", s)
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to pipeline.Stage
		want     bool
	}{
		{pipeline.StageBranch, pipeline.StagePRCreated, true},
		{pipeline.StageCIRunning, pipeline.StageCIPassed, true},
		{pipeline.StageCIRunning, pipeline.StageCIFailed, true},
		{pipeline.StageCIFailed, pipeline.StagePRCreated, true},
		{pipeline.StageReviewPending, pipeline.StageReviewApproved, true},
		{pipeline.StageReviewRejected, pipeline.StagePRCreated, true},
		{pipeline.StageE2EFailed, pipeline.StageRolledBack, true},
		{pipeline.StageE2EPassed, pipeline.StageProductionDeployed, true},

		// Aborting is allowed from any non-terminal stage only.
		{pipeline.StageBranch, pipeline.StageAborted, true},
		{pipeline.StageMerged, pipeline.StageAborted, true},
		{pipeline.StageProductionDeployed, pipeline.StageAborted, false},
		{pipeline.StageRolledBack, pipeline.StageAborted, false},

		// No skipping or reversing.
		{pipeline.StageBranch, pipeline.StageCIRunning, false},
		{pipeline.StageCIPassed, pipeline.StageCIRunning, false},
		{pipeline.StageMerged, pipeline.StageProductionDeployed, false},
		{pipeline.StageProductionDeployed, pipeline.StageBranch, false},
	}
	for _, tt := range tests {
		if got := pipeline.CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestParseStage(t *testing.T) {
	s, err := pipeline.ParseStage("review_pending")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != pipeline.StageReviewPending {
		t.Errorf("parsed %s, want %s", s, pipeline.StageReviewPending)
	}

	if _, err := pipeline.ParseStage("code_review"); err == nil {
		t.Error("expected error for unknown stage name")
	}
	if _, err := pipeline.ParseStage(""); err == nil {
		t.Error("expected error for empty stage name")
	}
}

func TestSuccessorsReturnsCopy(t *testing.T) {
	first := pipeline.StageCIRunning.Successors()
	if len(first) != 2 {
		t.Fatalf("expected 2 successors for %s, got %d", pipeline.StageCIRunning, len(first))
	}
	first[0] = pipeline.StageAborted

	second := pipeline.StageCIRunning.Successors()
	if second[0] != pipeline.StageCIPassed {
		t.Error("mutating the returned slice must not alter the graph")
	}

	if got := pipeline.StageAborted.Successors(); len(got) != 0 {
		t.Errorf("terminal stage has %d successors, want 0", len(got))
	}
}
