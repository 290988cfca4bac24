package model

import (
	"time"
)

// Phase models the progress of a rebase run
type Phase string

const (
	// PhaseIdle is the state before anything happened
	PhaseIdle Phase = "idle"

	// PhaseExtracting walks the commit range to replay
	PhaseExtracting Phase = "extracting"

	// PhaseReplaying rebuilds each commit on top of regenerated data
	PhaseReplaying Phase = "replaying"

	// PhaseConflictPause waits for a human to resolve a conflict. The resume token records
	// which phase was interrupted.
	PhaseConflictPause Phase = "conflict-pause"

	// PhaseRewritten means the branch now points to the rewritten chain
	PhaseRewritten Phase = "rewritten"

	// PhaseFinalRebase reconciles non-data files with the regenerated upstream tip
	PhaseFinalRebase Phase = "final-rebase"

	// PhaseDone is a terminal state
	PhaseDone Phase = "done"
)

var phaseTransitions = map[Phase][]Phase{
	PhaseIdle:          {PhaseExtracting},
	PhaseExtracting:    {PhaseReplaying},
	PhaseReplaying:     {PhaseConflictPause, PhaseRewritten},
	PhaseConflictPause: {PhaseReplaying, PhaseFinalRebase},
	PhaseRewritten:     {PhaseFinalRebase},
	PhaseFinalRebase:   {PhaseConflictPause, PhaseDone},
}

// IsValid checks the value of a phase
func (p Phase) IsValid() bool {
	if p == PhaseDone {
		return true
	}
	_, ok := phaseTransitions[p]
	return ok
}

// CanTransition tells if moving from this phase to another is legit
func (p Phase) CanTransition(to Phase) bool {
	for _, next := range phaseTransitions[p] {
		if next == to {
			return true
		}
	}
	return false
}

// IsResumable tells if a paused run may be continued from this phase
func (p Phase) IsResumable() bool {
	return p == PhaseReplaying || p == PhaseFinalRebase
}

func (p Phase) String() string {
	return string(p)
}

// Mode tells which command started a run
type Mode string

const (
	// ModeRebase rebases the current branch onto some target
	ModeRebase Mode = "rebase"

	// ModeMerge integrates a pull request
	ModeMerge Mode = "merge"
)

// IsValid checks the value of a mode
func (m Mode) IsValid() bool {
	return m == ModeRebase || m == ModeMerge
}

// ResumeToken is everything a later invocation needs to continue a paused run.
//
// Phase is the interrupted phase: either replaying (a commit's non-data changes could not
// be applied) or final-rebase (the ordinary rebase onto the regenerated upstream stopped).
type ResumeToken struct {
	RunID          string    `json:"runID" yaml:"runID"`
	Mode           Mode      `json:"mode" yaml:"mode"`
	Request        int       `json:"request,omitempty" yaml:"request,omitempty"`
	Title          string    `json:"title,omitempty" yaml:"title,omitempty"`
	Phase          Phase     `json:"phase" yaml:"phase"`
	Branch         string    `json:"branch" yaml:"branch"`                 // the branch being rewritten
	OriginalBranch string    `json:"originalBranch" yaml:"originalBranch"` // the branch checked out before the run
	OriginalTip    string    `json:"originalTip" yaml:"originalTip"`       // tip of Branch before the run
	Target         string    `json:"target" yaml:"target"`                 // what we rebase onto
	UpstreamBase   string    `json:"upstreamBase" yaml:"upstreamBase"`     // target + regenerated data
	RewriteBase    string    `json:"rewriteBase" yaml:"rewriteBase"`       // merge base + regenerated data
	Last           string    `json:"last,omitempty" yaml:"last,omitempty"` // tip of the rewrite chain
	Next           int       `json:"next" yaml:"next"`                     // index of the commit to replay next
	Commits        []string  `json:"commits,omitempty" yaml:"commits,omitempty"`
	Skipped        []string  `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	StartTime      time.Time `json:"startTime" yaml:"startTime"`
	_              struct{}
}
