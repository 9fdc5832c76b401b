package ranking

import (
	"time"

	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/model"
)

// RepublishPolicy decides what publishing an unchanged, already published
// ranking does.
type RepublishPolicy string

// Republish policies.
const (
	// RepublishError fails with model.ErrAlreadyPublishedNoChange.
	RepublishError RepublishPolicy = "error"
	// RepublishNoop returns the ranking unchanged.
	RepublishNoop RepublishPolicy = "noop"
)

// Valid reports whether p is a known policy.
func (p RepublishPolicy) Valid() bool { return p == RepublishError || p == RepublishNoop }

// Replace installs a fresh build on r. IsPublished is left alone.
func Replace(r *model.Ranking, res Result) {
	r.Entries = res.Entries
	r.IsFinal = res.IsFinal
	r.RecalculatedSincePublish = true
}

// Clear empties r after a recalculation found nothing eligible.
func Clear(r *model.Ranking) {
	r.Entries = nil
	r.IsFinal = false
	r.RecalculatedSincePublish = true
}

// Publish marks r as published and stamps GeneratedAt. Entries are never
// touched. It reports whether r changed.
func Publish(r *model.Ranking, now time.Time, policy RepublishPolicy) (bool, error) {
	const op = "ranking.publish"
	if len(r.Entries) == 0 {
		return false, model.NewError(op, model.ErrNoEligibleScoreCards).WithField("ranking", "entries", ">0", "0")
	}
	if r.IsPublished && !r.RecalculatedSincePublish {
		if policy == RepublishNoop {
			return false, nil
		}
		return false, model.NewError(op, model.ErrAlreadyPublishedNoChange)
	}
	now = now.UTC()
	r.IsPublished = true
	r.GeneratedAt = &now
	r.RecalculatedSincePublish = false
	return true, nil
}
