package classification

import (
	"github.com/MarcoPoloResearchLab/novelboard/internal/ratings"
)

// Classifier derives submission status from reviewer ratings. It holds no mutable
// state and may be shared freely.
type Classifier struct {
	roster ratings.Roster
}

// NewClassifier binds the classifier to a reviewer partition.
func NewClassifier(roster ratings.Roster) Classifier {
	return Classifier{roster: roster}
}

// Roster exposes the partition the classifier was built with.
func (c Classifier) Roster() ratings.Roster {
	return c.roster
}

// Evaluate computes the flags for the records of a single submission. Records with
// an empty or unrecognized rating are ignored. Blocking short-circuits every other
// flag, and an NG from a reviewer outside the roster still counts.
func (c Classifier) Evaluate(records []ratings.Record) Flags {
	var (
		anyUsable      bool
		primaryRated   bool
		primaryFavored bool
		generalRated   bool
		generalFavored bool
	)

	for _, record := range records {
		if !record.HasRating() {
			continue
		}
		anyUsable = true
		value := record.Rating.Normalized()
		if value == ratings.RatingBlocking {
			return Flags{IsBlocking: true}
		}

		role, known := c.roster.RoleOf(ratings.ReviewerID(record.ReviewerID))
		if !known {
			continue
		}
		switch role {
		case ratings.RolePrimaryReviewBody:
			primaryRated = true
			primaryFavored = primaryFavored || value.Favorable()
		case ratings.RoleGeneralEditors:
			generalRated = true
			generalFavored = generalFavored || value.Favorable()
		}
	}

	if !anyUsable {
		return Flags{IsUnclassified: true}
	}

	flags := Flags{
		IsPrimaryApproved: primaryRated && primaryFavored,
		IsPrimaryRejected: primaryRated && !primaryFavored,
		IsGeneralApproved: generalRated && generalFavored,
		IsGeneralRejected: generalRated && !generalFavored,
	}
	if !primaryRated && !generalRated {
		flags.IsUnclassified = true
	}
	return flags
}

// Classify returns the single status for one submission.
func (c Classifier) Classify(records []ratings.Record) Status {
	return c.Evaluate(records).Status()
}

// EvaluateAll groups records by submission and evaluates each group. Submissions
// without records are absent from the result.
func (c Classifier) EvaluateAll(records []ratings.Record) map[ratings.SubmissionID]Flags {
	grouped := ratings.GroupBySubmission(records)
	result := make(map[ratings.SubmissionID]Flags, len(grouped))
	for submissionID, group := range grouped {
		result[submissionID] = c.Evaluate(group)
	}
	return result
}

// ClassifyAll is EvaluateAll collapsed to statuses.
func (c Classifier) ClassifyAll(records []ratings.Record) map[ratings.SubmissionID]Status {
	flagsBySubmission := c.EvaluateAll(records)
	result := make(map[ratings.SubmissionID]Status, len(flagsBySubmission))
	for submissionID, flags := range flagsBySubmission {
		result[submissionID] = flags.Status()
	}
	return result
}

// UnknownReviewers returns reviewers that appear in records but not in the roster.
func (c Classifier) UnknownReviewers(records []ratings.Record) []ratings.ReviewerID {
	seen := make(map[ratings.ReviewerID]struct{})
	var unknown []ratings.ReviewerID
	for _, record := range records {
		reviewerID := ratings.ReviewerID(record.ReviewerID)
		if c.roster.Contains(reviewerID) {
			continue
		}
		if _, ok := seen[reviewerID]; ok {
			continue
		}
		seen[reviewerID] = struct{}{}
		unknown = append(unknown, reviewerID)
	}
	return unknown
}
