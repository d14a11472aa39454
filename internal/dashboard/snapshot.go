package dashboard

import (
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/novelboard/internal/catalog"
	"github.com/MarcoPoloResearchLab/novelboard/internal/classification"
	"github.com/MarcoPoloResearchLab/novelboard/internal/ratings"
)

// EnrichedSubmission is a catalog row joined with its classification and the
// viewing reviewer's own annotation.
type EnrichedSubmission struct {
	catalog.Submission
	Flags        classification.Flags  `json:"flags"`
	Status       classification.Status `json:"status"`
	StatusLabel  string                `json:"status_label"`
	MyRating     ratings.RatingValue   `json:"my_rating"`
	MyComment    string                `json:"my_comment"`
	OtherRatings string                `json:"other_ratings"`
}

// ID returns the typed submission identifier.
func (row EnrichedSubmission) ID() ratings.SubmissionID {
	return ratings.SubmissionID(row.SubmissionID)
}

func (row *EnrichedSubmission) applyFlags(flags classification.Flags) {
	row.Flags = flags
	row.Status = flags.Status()
	row.StatusLabel = row.Status.String()
}

// Snapshot is one reviewer's materialized view for one cache epoch. Holders must
// treat it as read-only; Reconcile copies before changing anything.
type Snapshot struct {
	ReviewerID ratings.ReviewerID
	Epoch      int64
	BuiltAt    time.Time
	Rows       []EnrichedSubmission
	// Ratings holds every stored record grouped by submission, in store order.
	Ratings map[ratings.SubmissionID][]ratings.Record
	index   map[ratings.SubmissionID]int
}

// Row looks up a submission in the snapshot.
func (s Snapshot) Row(submissionID ratings.SubmissionID) (EnrichedSubmission, bool) {
	position, ok := s.index[submissionID]
	if !ok {
		return EnrichedSubmission{}, false
	}
	return s.Rows[position], true
}

// BuildSnapshot joins catalog rows with the classification of all records and
// annotates each row for the viewing reviewer. Every catalog row appears once;
// rows without usable ratings are Unclassified.
func BuildSnapshot(rows []catalog.Submission, records []ratings.Record, reviewerID ratings.ReviewerID, classifier classification.Classifier) Snapshot {
	grouped := ratings.GroupBySubmission(records)
	flagsBySubmission := classifier.EvaluateAll(records)

	snapshot := Snapshot{
		ReviewerID: reviewerID,
		Rows:       make([]EnrichedSubmission, 0, len(rows)),
		Ratings:    grouped,
		index:      make(map[ratings.SubmissionID]int, len(rows)),
	}

	for _, submission := range rows {
		submissionID := ratings.SubmissionID(submission.SubmissionID)
		if _, duplicate := snapshot.index[submissionID]; duplicate {
			continue
		}

		enriched := EnrichedSubmission{Submission: submission}
		flags, rated := flagsBySubmission[submissionID]
		if !rated {
			flags = classification.Flags{IsUnclassified: true}
		}
		enriched.applyFlags(flags)

		others := make([]string, 0, len(grouped[submissionID]))
		for _, record := range grouped[submissionID] {
			if record.ReviewerID == reviewerID.String() {
				enriched.MyRating = record.Rating.Normalized()
				enriched.MyComment = record.Comment
				continue
			}
			if record.Rating.IsEmpty() {
				continue
			}
			others = append(others, record.ReviewerID+":"+record.Rating.Normalized().String())
		}
		enriched.OtherRatings = strings.Join(others, " ")

		snapshot.index[submissionID] = len(snapshot.Rows)
		snapshot.Rows = append(snapshot.Rows, enriched)
	}

	return snapshot
}
