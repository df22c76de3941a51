package output

import (
	"fmt"

	"github.com/leapstack-labs/rqg/pkg/core"
)

// Process exit codes per decision.
const (
	ExitPass      = 0
	ExitSoftBlock = 10
	ExitHardBlock = 20
	ExitFailure   = 1
)

// ExitCode maps a decision to the process exit code.
func ExitCode(d core.Decision) int {
	switch d {
	case core.DecisionPass:
		return ExitPass
	case core.DecisionSoftBlock:
		return ExitSoftBlock
	case core.DecisionHardBlock:
		return ExitHardBlock
	default:
		return ExitFailure
	}
}

// ExitError carries a blocking decision out of a command so main can exit
// with the matching code.
type ExitError struct {
	Decision core.Decision
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("release gate decision: %s", e.Decision)
}

// ExitStatus returns the exit code for the decision.
func (e *ExitError) ExitStatus() int {
	return ExitCode(e.Decision)
}

// DecisionError returns an *ExitError for blocking decisions and nil for PASS.
func DecisionError(d core.Decision) error {
	if d == core.DecisionPass {
		return nil
	}
	return &ExitError{Decision: d}
}
