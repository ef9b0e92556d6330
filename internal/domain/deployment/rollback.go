package deployment

import (
	"fmt"
	"slices"

	"github.com/Strob0t/OpsForge/internal/domain"
)

// RollbackPlan is the derived, unpersisted decision of a rollback.
// PreviousImage is the image of the newest revision, the one being reverted.
type RollbackPlan struct {
	Target        Revision
	TargetImage   string
	PreviousImage string
}

// Result converts the plan into the controller's reply. The reply's
// previous_image field carries the image being restored.
func (p RollbackPlan) Result(deploymentID string) RollbackResult {
	return RollbackResult{
		DeploymentID:   deploymentID,
		PreviousImage:  p.TargetImage,
		TargetRevision: p.Target.Number,
		Status:         ResultRollingBack,
	}
}

// SelectRollbackTarget picks the second-most-recent revision by number.
// Revisions are ordered descending by Number; equal numbers (including the
// 0 used for a missing number) keep their incoming order.
func SelectRollbackTarget(revisions []Revision) (RollbackPlan, error) {
	if len(revisions) < 2 {
		return RollbackPlan{}, fmt.Errorf("%w: found %d revision(s)", domain.ErrNoPreviousRevision, len(revisions))
	}

	sorted := slices.Clone(revisions)
	slices.SortStableFunc(sorted, func(a, b Revision) int {
		switch {
		case a.Number > b.Number:
			return -1
		case a.Number < b.Number:
			return 1
		default:
			return 0
		}
	})

	target := sorted[1]
	if target.Image == "" {
		return RollbackPlan{}, fmt.Errorf("%w: revision %d", domain.ErrRevisionImageMissing, target.Number)
	}

	return RollbackPlan{
		Target:        target,
		TargetImage:   target.Image,
		PreviousImage: sorted[0].Image,
	}, nil
}
