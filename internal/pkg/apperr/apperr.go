package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the sentinel for missing submissions and jobs.
	ErrNotFound = errors.New("not found")
	// ErrInvalidDependency marks a malformed job graph at creation time.
	ErrInvalidDependency = errors.New("invalid dependency")
	// ErrIllegalTransition marks a state machine violation.
	ErrIllegalTransition = errors.New("illegal transition")
	// ErrAgencyMismatch marks a finalize attempt by an agency that does not
	// own the submission.
	ErrAgencyMismatch = errors.New("agency mismatch")
	// ErrConcurrentModification marks a compare-and-set transition whose
	// expected prior state no longer matched. Callers retry with a fresh read.
	ErrConcurrentModification = errors.New("concurrent modification")
)

// TransitionError names the attempted and current state of a rejected
// transition so clients see exactly what was refused.
type TransitionError struct {
	Current   string
	Attempted string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition: job is %q, cannot move to %q", e.Current, e.Attempted)
}

func (e *TransitionError) Is(target error) bool { return target == ErrIllegalTransition }

func IllegalTransition(current, attempted string) error {
	return &TransitionError{Current: current, Attempted: attempted}
}

// AgencyError carries the owning and acting agency codes.
type AgencyError struct {
	SubmissionAgency string
	ActorAgency      string
}

func (e *AgencyError) Error() string {
	return fmt.Sprintf("agency mismatch: submission belongs to agency %q, actor belongs to %q", e.SubmissionAgency, e.ActorAgency)
}

func (e *AgencyError) Is(target error) bool { return target == ErrAgencyMismatch }

func AgencyMismatch(submissionAgency, actorAgency string) error {
	return &AgencyError{SubmissionAgency: submissionAgency, ActorAgency: actorAgency}
}
