package classification

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/MarcoPoloResearchLab/novelboard/internal/ratings"
)

func testRoster() ratings.Roster {
	return ratings.NewRoster(
		[]string{"admin-a", "admin-b", "editor-a", "editor-b", "editor-c"},
		[]string{"admin-a", "admin-b"},
	)
}

func record(submission, reviewer string, value ratings.RatingValue) ratings.Record {
	return ratings.Record{SubmissionID: submission, ReviewerID: reviewer, Rating: value}
}

func TestClassifyPriorityTable(t *testing.T) {
	classifier := NewClassifier(testRoster())

	testCases := []struct {
		name     string
		records  []ratings.Record
		expected Status
	}{
		{name: "no records", records: nil, expected: StatusUnclassified},
		{
			name:     "only empty ratings",
			records:  []ratings.Record{record("s", "admin-a", ratings.RatingNone), record("s", "editor-a", "")},
			expected: StatusUnclassified,
		},
		{
			name:     "blocking wins over primary approval",
			records:  []ratings.Record{record("s", "admin-a", ratings.RatingPositive), record("s", "editor-a", ratings.RatingBlocking)},
			expected: StatusBlocking,
		},
		{
			name:     "blocking from outside roster",
			records:  []ratings.Record{record("s", "guest", ratings.RatingBlocking), record("s", "admin-a", ratings.RatingPositive)},
			expected: StatusBlocking,
		},
		{
			name:     "primary approval beats general rejection",
			records:  []ratings.Record{record("s", "admin-a", ratings.RatingHold), record("s", "editor-a", ratings.RatingNegative)},
			expected: StatusPrimaryApproved,
		},
		{
			name:     "any favorable primary rating approves",
			records:  []ratings.Record{record("s", "admin-a", ratings.RatingNegative), record("s", "admin-b", ratings.RatingPositive)},
			expected: StatusPrimaryApproved,
		},
		{
			name:     "primary rejection beats general approval",
			records:  []ratings.Record{record("s", "admin-a", ratings.RatingNegative), record("s", "editor-a", ratings.RatingPositive)},
			expected: StatusPrimaryRejected,
		},
		{
			name:     "general approval",
			records:  []ratings.Record{record("s", "editor-a", ratings.RatingNegative), record("s", "editor-b", ratings.RatingHold)},
			expected: StatusGeneralApproved,
		},
		{
			name:     "general rejection",
			records:  []ratings.Record{record("s", "editor-a", ratings.RatingNegative)},
			expected: StatusGeneralRejected,
		},
		{
			name:     "legacy circle counts as positive",
			records:  []ratings.Record{record("s", "editor-a", "○")},
			expected: StatusGeneralApproved,
		},
		{
			name:     "invalid values are excluded",
			records:  []ratings.Record{record("s", "admin-a", "maybe"), record("s", "editor-a", ratings.RatingNegative)},
			expected: StatusGeneralRejected,
		},
		{
			name:     "only outsiders rated",
			records:  []ratings.Record{record("s", "guest", ratings.RatingPositive)},
			expected: StatusUnclassified,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			status := classifier.Classify(testCase.records)
			if status != testCase.expected {
				t.Fatalf("expected %s, got %s", testCase.expected, status)
			}
		})
	}
}

func TestEvaluateBlockingIsExclusive(t *testing.T) {
	classifier := NewClassifier(testRoster())
	flags := classifier.Evaluate([]ratings.Record{
		record("s", "admin-a", ratings.RatingPositive),
		record("s", "editor-a", ratings.RatingBlocking),
	})
	if flags != (Flags{IsBlocking: true}) {
		t.Fatalf("expected only the blocking flag, got %#v", flags)
	}
}

func TestEvaluateSetsIndependentCohortFlags(t *testing.T) {
	classifier := NewClassifier(testRoster())
	flags := classifier.Evaluate([]ratings.Record{
		record("s", "admin-a", ratings.RatingNegative),
		record("s", "editor-a", ratings.RatingPositive),
	})
	if !flags.IsPrimaryRejected || !flags.IsGeneralApproved {
		t.Fatalf("expected both cohort flags, got %#v", flags)
	}
	if flags.IsUnclassified {
		t.Fatalf("did not expect unclassified flag")
	}
}

func TestRandomizedInvariants(t *testing.T) {
	classifier := NewClassifier(testRoster())
	reviewers := []string{"admin-a", "admin-b", "editor-a", "editor-b", "editor-c", "guest"}
	values := []ratings.RatingValue{
		ratings.RatingNone, ratings.RatingPositive, ratings.RatingHold,
		ratings.RatingNegative, ratings.RatingBlocking, "○", "junk",
	}
	generator := rand.New(rand.NewSource(42))

	for iteration := 0; iteration < 500; iteration++ {
		var records []ratings.Record
		hasBlocking := false
		allEmpty := true
		primaryFavored := false
		for _, reviewer := range reviewers {
			if generator.Intn(2) == 0 {
				continue
			}
			value := values[generator.Intn(len(values))]
			records = append(records, record("s", reviewer, value))
			if value == ratings.RatingBlocking {
				hasBlocking = true
			}
			if value.Normalized().Valid() {
				allEmpty = false
			}
			if (reviewer == "admin-a" || reviewer == "admin-b") && value.Normalized().Favorable() {
				primaryFavored = true
			}
		}

		flags := classifier.Evaluate(records)
		status := flags.Status()

		tagCount := 0
		for _, candidate := range Statuses() {
			if candidate == status {
				tagCount++
			}
		}
		if tagCount != 1 {
			t.Fatalf("iteration %d: expected exactly one tag", iteration)
		}
		if (status == StatusBlocking) != hasBlocking {
			t.Fatalf("iteration %d: blocking iff NG present violated: %v", iteration, describe(records))
		}
		if allEmpty && status != StatusUnclassified {
			t.Fatalf("iteration %d: expected unclassified for %v", iteration, describe(records))
		}
		if !hasBlocking && primaryFavored && status != StatusPrimaryApproved {
			t.Fatalf("iteration %d: expected primary approval for %v", iteration, describe(records))
		}
		if classifier.Classify(records) != status {
			t.Fatalf("iteration %d: Classify disagrees with Evaluate", iteration)
		}
	}
}

func TestClassifyAllMatchesPerSubmission(t *testing.T) {
	classifier := NewClassifier(testRoster())
	records := []ratings.Record{
		record("s1", "admin-a", ratings.RatingPositive),
		record("s2", "editor-a", ratings.RatingNegative),
		record("s1", "editor-b", ratings.RatingBlocking),
		record("s3", "guest", ratings.RatingHold),
	}

	statuses := classifier.ClassifyAll(records)
	grouped := ratings.GroupBySubmission(records)
	if len(statuses) != len(grouped) {
		t.Fatalf("expected %d statuses, got %d", len(grouped), len(statuses))
	}
	for submissionID, group := range grouped {
		if statuses[submissionID] != classifier.Classify(group) {
			t.Fatalf("batch and single classification diverge for %s", submissionID)
		}
	}
	if statuses["s1"] != StatusBlocking || statuses["s2"] != StatusGeneralRejected || statuses["s3"] != StatusUnclassified {
		t.Fatalf("unexpected statuses: %v", statuses)
	}
}

func TestUnknownReviewers(t *testing.T) {
	classifier := NewClassifier(testRoster())
	unknown := classifier.UnknownReviewers([]ratings.Record{
		record("s1", "guest", ratings.RatingHold),
		record("s2", "guest", ratings.RatingHold),
		record("s2", "admin-a", ratings.RatingHold),
		record("s3", "visitor", ratings.RatingNone),
	})
	if len(unknown) != 2 || unknown[0] != "guest" || unknown[1] != "visitor" {
		t.Fatalf("unexpected unknown reviewers: %v", unknown)
	}
}

func describe(records []ratings.Record) string {
	out := ""
	for _, r := range records {
		out += fmt.Sprintf("%s=%q ", r.ReviewerID, r.Rating)
	}
	return out
}
