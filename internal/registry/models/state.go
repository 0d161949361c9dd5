package models

import (
	"fmt"

	id "hashplanet/pkg/domain"
	dErrors "hashplanet/pkg/domain-errors"
)

// Status is the tag of an entry's ownership state.
type Status uint8

const (
	// StatusUnclaimed means the registry itself holds the entry.
	StatusUnclaimed Status = iota
	// StatusClaimed means an external principal holds the entry.
	StatusClaimed
)

func (s Status) String() string {
	switch s {
	case StatusUnclaimed:
		return "unclaimed"
	case StatusClaimed:
		return "claimed"
	default:
		return "unknown"
	}
}

// State is the tagged variant Unclaimed | Claimed(owner). The registry's own
// sentinel principal is never stored in a State; it is only how Unclaimed is
// rendered to callers.
type State struct {
	status Status
	owner  id.Principal
}

// Unclaimed returns the state of an entry held by the registry.
func Unclaimed() State { return State{status: StatusUnclaimed} }

// ClaimedBy returns the state of an entry held by owner.
func ClaimedBy(owner id.Principal) State {
	return State{status: StatusClaimed, owner: owner}
}

func (s State) Status() Status { return s.status }

func (s State) IsClaimed() bool { return s.status == StatusClaimed }

// Owner returns the external owner, or false when the entry is unclaimed.
func (s State) Owner() (id.Principal, bool) {
	if s.status != StatusClaimed {
		return "", false
	}
	return s.owner, true
}

func (s State) String() string {
	if s.status == StatusClaimed {
		return fmt.Sprintf("claimed(%s)", s.owner)
	}
	return s.status.String()
}

// StorageOwner is the column/field encoding used by stores: the empty string
// for Unclaimed, the principal otherwise. Principals are never empty.
func (s State) StorageOwner() string {
	return string(s.owner)
}

// StateFromStorage inverts StorageOwner.
func StateFromStorage(owner string) State {
	if owner == "" {
		return Unclaimed()
	}
	return ClaimedBy(id.Principal(owner))
}

// ValidateTransition enforces the two-state machine:
//
//	Unclaimed  -> Claimed(p)   claim
//	Claimed(p) -> Unclaimed    renounce
//	Claimed(p) -> Claimed(q)   transfer
//
// Unclaimed -> Unclaimed has no meaning and is rejected.
func ValidateTransition(from, to State) error {
	if !from.IsClaimed() && !to.IsClaimed() {
		return dErrors.New(dErrors.CodeInvariantViolation, "unclaimed entries can only move to a claimed state")
	}
	if (from.IsClaimed() && from.owner == "") || (to.IsClaimed() && to.owner == "") {
		return dErrors.New(dErrors.CodeInvariantViolation, "claimed state requires an owner")
	}
	return nil
}
