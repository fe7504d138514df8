package reconciler

import (
	"fmt"
	"strings"
)

// Policy decides what happens to a candidate rider that fails the availability or conflict check
type Policy string

const (
	// PolicyBlock leaves the rider unassigned and reports them in Result.Rejected
	PolicyBlock Policy = "block"
	// PolicyWarn assigns the rider and records the failure in the assignment notes
	PolicyWarn Policy = "warn"
	// PolicyStrict aborts the whole reconcile with a ConflictError
	PolicyStrict Policy = "strict"
)

// ParsePolicy accepts the config spelling of a policy; empty means PolicyBlock
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyBlock:
		return PolicyBlock, nil
	case PolicyWarn:
		return PolicyWarn, nil
	case PolicyStrict:
		return PolicyStrict, nil
	}
	return "", fmt.Errorf("unknown conflict policy %q (expected block, warn or strict)", s)
}
