package model

// State is a step of the review state machine.
type State string

const (
	StatePending        State = "PENDING"
	StateWorkspaceReady State = "WORKSPACE_READY"
	StatePatched        State = "PATCHED"
	StatePatchFailed    State = "PATCHED_FAILED"
	StateClassified     State = "CLASSIFIED"
	StateEvaluated      State = "EVALUATED"
	StateScored         State = "SCORED"
	StateReported       State = "REPORTED"
	StateMerged         State = "MERGED"
	StateHeld           State = "HELD"
	StateAborted        State = "ABORTED"
	StateSkipped        State = "SKIPPED"
	StateCleanedUp      State = "CLEANED_UP"
)

var transitions = map[State][]State{
	StatePending:        {StateWorkspaceReady, StateAborted, StateSkipped},
	StateWorkspaceReady: {StatePatched, StatePatchFailed, StateAborted},
	StatePatched:        {StateClassified, StateAborted},
	StatePatchFailed:    {StateAborted},
	StateClassified:     {StateEvaluated, StateAborted},
	StateEvaluated:      {StateScored, StateAborted},
	StateScored:         {StateReported, StateAborted},
	StateReported:       {StateMerged, StateHeld, StateAborted},
	StateMerged:         {StateCleanedUp},
	StateHeld:           {StateCleanedUp},
	StateAborted:        {StateCleanedUp},
}

// CanTransition reports whether next may follow s. CLEANED_UP is reachable
// from every non-terminal state through the unconditional discard.
func (s State) CanTransition(next State) bool {
	if next == StateCleanedUp {
		return !s.IsTerminal()
	}
	for _, candidate := range transitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateCleanedUp || s == StateSkipped
}
