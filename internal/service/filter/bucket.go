package filter

import (
	"github.com/kapu/outreach-pipeline-go/internal/constants"
	"github.com/kapu/outreach-pipeline-go/internal/domain"
)

// MapScoreToBucket is shared by the initial run and manual re-scoring.
func MapScoreToBucket(score int) domain.Bucket {
	switch {
	case score >= constants.ScoreThresholds.Approved:
		return domain.BucketApproved
	case score >= constants.ScoreThresholds.Okish:
		return domain.BucketOkish
	default:
		return domain.BucketRejected
	}
}
