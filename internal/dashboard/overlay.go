package dashboard

import (
	"sort"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/novelboard/internal/classification"
	"github.com/MarcoPoloResearchLab/novelboard/internal/ratings"
)

// PendingWrite is a rating the session has stored but that the current cache epoch
// does not reflect yet.
type PendingWrite struct {
	SubmissionID ratings.SubmissionID `json:"submission_id"`
	Rating       ratings.RatingValue  `json:"rating"`
	Comment      string               `json:"comment"`
	Role         ratings.Role         `json:"role"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

func (w PendingWrite) record(reviewerID ratings.ReviewerID) ratings.Record {
	return ratings.Record{
		SubmissionID: w.SubmissionID.String(),
		ReviewerID:   reviewerID.String(),
		Rating:       w.Rating,
		Comment:      w.Comment,
		Role:         w.Role,
		UpdatedAt:    w.UpdatedAt,
	}
}

// Session carries one reviewer's pending writes. Entries are overwritten on every
// save and kept for the lifetime of the session.
type Session struct {
	id         string
	reviewerID ratings.ReviewerID
	role       ratings.Role

	// writeMu serializes read-toggle-store sequences for this session.
	writeMu sync.Mutex

	mu      sync.RWMutex
	pending map[ratings.SubmissionID]PendingWrite
}

// NewSession creates an empty session for a reviewer.
func NewSession(id string, reviewerID ratings.ReviewerID, role ratings.Role) *Session {
	return &Session{
		id:         id,
		reviewerID: reviewerID,
		role:       role,
		pending:    make(map[ratings.SubmissionID]PendingWrite),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// ReviewerID returns the reviewer the session belongs to.
func (s *Session) ReviewerID() ratings.ReviewerID { return s.reviewerID }

// Role returns the reviewer's cohort.
func (s *Session) Role() ratings.Role { return s.role }

// Record stores or replaces the pending write for its submission.
func (s *Session) Record(write PendingWrite) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[write.SubmissionID] = write
}

// PendingFor returns the pending write for one submission.
func (s *Session) PendingFor(submissionID ratings.SubmissionID) (PendingWrite, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	write, ok := s.pending[submissionID]
	return write, ok
}

// Pending returns a copy of every pending write.
func (s *Session) Pending() map[ratings.SubmissionID]PendingWrite {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[ratings.SubmissionID]PendingWrite, len(s.pending))
	for submissionID, write := range s.pending {
		out[submissionID] = write
	}
	return out
}

// ToggleRating returns the rating to store when a reviewer presses target while
// holding current: pressing the held rating clears it.
func ToggleRating(current, target ratings.RatingValue) ratings.RatingValue {
	if current.Normalized() == target.Normalized() {
		return ratings.RatingNone
	}
	return target.Normalized()
}

// Reconcile returns a copy of the snapshot rows with the pending writes applied.
// Only rows with a pending write are recomputed; the snapshot is left untouched.
func Reconcile(snapshot Snapshot, pending map[ratings.SubmissionID]PendingWrite, callerID ratings.ReviewerID, classifier classification.Classifier) []EnrichedSubmission {
	rows := make([]EnrichedSubmission, len(snapshot.Rows))
	copy(rows, snapshot.Rows)

	for submissionID, write := range pending {
		position, ok := snapshot.index[submissionID]
		if !ok {
			continue
		}
		rows[position] = reconcileRow(snapshot, rows[position], write, callerID, classifier)
	}
	return rows
}

func reconcileRow(snapshot Snapshot, row EnrichedSubmission, write PendingWrite, callerID ratings.ReviewerID, classifier classification.Classifier) EnrichedSubmission {
	row.MyRating = write.Rating
	row.MyComment = write.Comment
	records := ReconcileRecords(snapshot.Ratings[write.SubmissionID], map[ratings.SubmissionID]PendingWrite{write.SubmissionID: write}, callerID)
	row.applyFlags(classifier.Evaluate(records))
	return row
}

// ReconcileRecords replaces the caller's record for every submission with a pending
// write, appending one when the caller had none. The input slice is not modified.
func ReconcileRecords(records []ratings.Record, pending map[ratings.SubmissionID]PendingWrite, callerID ratings.ReviewerID) []ratings.Record {
	out := make([]ratings.Record, len(records), len(records)+len(pending))
	copy(out, records)

	replaced := make(map[ratings.SubmissionID]struct{}, len(pending))
	for position, record := range out {
		if record.ReviewerID != callerID.String() {
			continue
		}
		submissionID := ratings.SubmissionID(record.SubmissionID)
		write, ok := pending[submissionID]
		if !ok {
			continue
		}
		out[position] = write.record(callerID)
		replaced[submissionID] = struct{}{}
	}

	missing := make([]ratings.SubmissionID, 0, len(pending))
	for submissionID := range pending {
		if _, ok := replaced[submissionID]; !ok {
			missing = append(missing, submissionID)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	for _, submissionID := range missing {
		out = append(out, pending[submissionID].record(callerID))
	}
	return out
}
