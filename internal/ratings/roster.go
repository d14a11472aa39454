package ratings

import "strings"

// Roster partitions the configured reviewers into cohorts. It is built once at
// startup and never mutated, so it is safe to share between goroutines.
type Roster struct {
	order []ReviewerID
	roles map[ReviewerID]Role
}

// NewRoster builds a roster from the full reviewer list and the subset that forms
// the primary review body. Primary reviewers missing from the full list are added.
// Blank and duplicate names are skipped.
func NewRoster(all []string, primary []string) Roster {
	roster := Roster{roles: make(map[ReviewerID]Role)}

	primarySet := make(map[ReviewerID]struct{}, len(primary))
	for _, rawName := range primary {
		reviewerID, err := NewReviewerID(rawName)
		if err != nil {
			continue
		}
		primarySet[reviewerID] = struct{}{}
	}

	add := func(reviewerID ReviewerID) {
		if _, exists := roster.roles[reviewerID]; exists {
			return
		}
		role := RoleGeneralEditors
		if _, isPrimary := primarySet[reviewerID]; isPrimary {
			role = RolePrimaryReviewBody
		}
		roster.roles[reviewerID] = role
		roster.order = append(roster.order, reviewerID)
	}

	for _, rawName := range all {
		reviewerID, err := NewReviewerID(rawName)
		if err != nil {
			continue
		}
		add(reviewerID)
	}
	for _, rawName := range primary {
		reviewerID, err := NewReviewerID(rawName)
		if err != nil {
			continue
		}
		add(reviewerID)
	}

	return roster
}

// RoleOf returns the cohort of the reviewer. The boolean is false for reviewers
// outside the roster.
func (r Roster) RoleOf(reviewerID ReviewerID) (Role, bool) {
	role, ok := r.roles[ReviewerID(strings.TrimSpace(reviewerID.String()))]
	return role, ok
}

// Contains reports whether the reviewer is configured.
func (r Roster) Contains(reviewerID ReviewerID) bool {
	_, ok := r.RoleOf(reviewerID)
	return ok
}

// Reviewers returns the configured reviewers in declaration order.
func (r Roster) Reviewers() []ReviewerID {
	out := make([]ReviewerID, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of configured reviewers.
func (r Roster) Len() int {
	return len(r.order)
}
