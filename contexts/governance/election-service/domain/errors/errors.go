package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput           = errors.New("invalid election input")
	ErrElectionNotFound       = errors.New("election not found")
	ErrPositionNotFound       = errors.New("position not found")
	ErrCandidateNotFound      = errors.New("candidate not found")
	ErrElectionLocked         = errors.New("election can no longer be edited")
	ErrConflict               = errors.New("election conflict")
	ErrInvalidTransition      = errors.New("invalid election transition")
	ErrElectionNotOpen        = errors.New("election is not open for voting")
	ErrNotEligible            = errors.New("voter is not eligible for this election")
	ErrAlreadyVoted           = errors.New("you have already voted in this election")
	ErrIncompleteBallot       = errors.New("ballot is incomplete")
	ErrInvalidSelection       = errors.New("ballot contains an invalid selection")
	ErrElectionCancelled      = errors.New("election was cancelled")
	ErrPersistenceUnavailable = errors.New("election storage is unavailable")
)

// InvalidTransitionError names the current and requested state of a rejected
// lifecycle change.
type InvalidTransitionError struct {
	From   string
	To     string
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("%s: cannot move from %s to %s", ErrInvalidTransition, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// PositionRef identifies a position by id and display name for error details.
type PositionRef struct {
	PositionID string
	Name       string
}

// IncompleteBallotError lists every position that prevents the ballot from
// covering each contested position exactly once.
type IncompleteBallotError struct {
	Missing   []PositionRef
	Extra     []PositionRef
	Duplicate []PositionRef
}

func (e *IncompleteBallotError) Error() string {
	parts := make([]string, 0, 3)
	if len(e.Missing) > 0 {
		parts = append(parts, "please select a candidate for: "+joinRefs(e.Missing))
	}
	if len(e.Extra) > 0 {
		parts = append(parts, "not on this ballot: "+joinRefs(e.Extra))
	}
	if len(e.Duplicate) > 0 {
		parts = append(parts, "selected more than once: "+joinRefs(e.Duplicate))
	}
	if len(parts) == 0 {
		return ErrIncompleteBallot.Error()
	}
	return ErrIncompleteBallot.Error() + ": " + strings.Join(parts, "; ")
}

func (e *IncompleteBallotError) Is(target error) bool {
	return target == ErrIncompleteBallot
}

type InvalidSelectionError struct {
	PositionID   string
	PositionName string
	CandidateID  string
	Reason       string
}

func (e *InvalidSelectionError) Error() string {
	name := e.PositionName
	if name == "" {
		name = e.PositionID
	}
	return fmt.Sprintf("%s for %s: %s", ErrInvalidSelection, name, e.Reason)
}

func (e *InvalidSelectionError) Is(target error) bool {
	return target == ErrInvalidSelection
}

// Unavailable wraps a collaborator failure as a retryable persistence error
// while keeping the cause for logs.
func Unavailable(cause error) error {
	if cause == nil {
		return ErrPersistenceUnavailable
	}
	return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, cause)
}

func joinRefs(refs []PositionRef) string {
	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		if strings.TrimSpace(ref.Name) != "" {
			names = append(names, ref.Name)
			continue
		}
		names = append(names, ref.PositionID)
	}
	return strings.Join(names, ", ")
}
