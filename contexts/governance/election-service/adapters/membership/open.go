package membership

import (
	"context"
	"strings"

	"guildhall/contexts/governance/election-service/ports"
)

// OpenRoll admits every identified member to every election. It stands in
// for the membership service on single-node installs with no roll.
type OpenRoll struct{}

func (OpenRoll) IsEligible(_ context.Context, voterID string, _ string) (bool, error) {
	return strings.TrimSpace(voterID) != "", nil
}

var _ ports.EligibilityChecker = OpenRoll{}
