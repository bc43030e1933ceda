package engine

import (
	"fmt"
	"strings"
)

// ValidationError rejects a submission before anything is stored. Problems
// lists every hard failure found across the submission's records.
type ValidationError struct {
	Document string
	Problems []string
}

func (e *ValidationError) Error() string {
	if e.Document == "" {
		return fmt.Sprintf("invalid submission: %s", strings.Join(e.Problems, "; "))
	}
	return fmt.Sprintf("invalid submission %s: %s", e.Document, strings.Join(e.Problems, "; "))
}

// InconsistentStateError reports a stored contribution whose snapshotted
// target type is no longer recognized. This indicates corruption or a
// schema drift and is surfaced rather than guessed around.
type InconsistentStateError struct {
	ContributionID string
	TargetType     string
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("contribution %s references unrecognized target type %q", e.ContributionID, e.TargetType)
}
