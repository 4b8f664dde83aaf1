package lifecycle

import (
	"fmt"

	"github.com/dukerupert/foodalloc/internal/model"
)

var allocationTransitions = map[model.AllocationStatus][]model.AllocationStatus{
	model.AllocationCreated: {model.AllocationOngoing},
	model.AllocationOngoing: {model.AllocationSuccess, model.AllocationFailed},
	model.AllocationSuccess: {model.AllocationCompleted},
}

var familyTransitions = map[model.FamilyStatus][]model.FamilyStatus{
	model.FamilyPending: {model.FamilyServed, model.FamilyNotServed},
	model.FamilyServed:  {model.FamilyAccepted, model.FamilyRejected},
}

// CanTransition reports whether an allocation may move from one status to another.
func CanTransition(from, to model.AllocationStatus) bool {
	for _, next := range allocationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransitionFamily reports whether an allocation family may move from one status to another.
func CanTransitionFamily(from, to model.FamilyStatus) bool {
	for _, next := range familyTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition returns to if the move is legal and an error otherwise.
func Transition(from, to model.AllocationStatus) (model.AllocationStatus, error) {
	if !CanTransition(from, to) {
		return from, fmt.Errorf("allocation status %s cannot move to %s", from, to)
	}
	return to, nil
}

// TransitionFamily returns to if the move is legal and an error otherwise.
func TransitionFamily(from, to model.FamilyStatus) (model.FamilyStatus, error) {
	if !CanTransitionFamily(from, to) {
		return from, fmt.Errorf("family status %s cannot move to %s", from, to)
	}
	return to, nil
}

// IsActive reports whether listeners must keep watching an allocation in s.
func IsActive(s model.AllocationStatus) bool {
	switch s {
	case model.AllocationCreated, model.AllocationOngoing, model.AllocationSuccess:
		return true
	}
	return false
}

// IsTerminal reports whether s is terminal for user-facing purposes.
func IsTerminal(s model.AllocationStatus) bool {
	return s == model.AllocationFailed || s == model.AllocationCompleted
}

// IsFamilyTerminal reports whether a family status admits no further change.
func IsFamilyTerminal(s model.FamilyStatus) bool {
	_, ok := familyTransitions[s]
	return !ok
}

// Creatable reports whether a new allocation may be created given the
// statuses of all existing allocations.
func Creatable(statuses ...model.AllocationStatus) bool {
	for _, s := range statuses {
		if IsActive(s) {
			return false
		}
	}
	return true
}

// CanActOnFamily gates the accept and reject actions.
func CanActOnFamily(alloc model.AllocationStatus, family model.FamilyStatus) bool {
	return alloc == model.AllocationSuccess && family == model.FamilyServed
}

// EndTimeConsistent checks that end time is unset while an allocation is
// still queued or processing.
func EndTimeConsistent(a model.Allocation) bool {
	switch a.Status {
	case model.AllocationCreated, model.AllocationOngoing:
		return a.EndTime == nil
	}
	return true
}
