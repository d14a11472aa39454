package ratings

import (
	"errors"
	"strings"
	"testing"
)

func TestParseRatingValue(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected RatingValue
		wantErr  bool
	}{
		{name: "blank", input: "  ", expected: RatingNone},
		{name: "canonical positive", input: "〇", expected: RatingPositive},
		{name: "legacy white circle", input: "○", expected: RatingPositive},
		{name: "english hold", input: "Hold", expected: RatingHold},
		{name: "negative glyph", input: "×", expected: RatingNegative},
		{name: "lowercase ng", input: "ng", expected: RatingBlocking},
		{name: "blocking name", input: "BLOCKING", expected: RatingBlocking},
		{name: "unknown", input: "maybe", wantErr: true},
		{name: "latin x", input: "x", wantErr: true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			value, err := ParseRatingValue(testCase.input)
			if testCase.wantErr {
				if !errors.Is(err, ErrInvalidRating) {
					t.Fatalf("expected ErrInvalidRating, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if value != testCase.expected {
				t.Fatalf("expected %q, got %q", testCase.expected, value)
			}
		})
	}
}

func TestRatingValueValidity(t *testing.T) {
	if RatingNone.Valid() {
		t.Fatalf("empty rating must not be valid")
	}
	if !RatingNone.IsEmpty() {
		t.Fatalf("empty rating must report empty")
	}
	if RatingValue("○").Valid() {
		t.Fatalf("legacy glyph must not be valid before normalization")
	}
	if RatingValue("○").Normalized() != RatingPositive {
		t.Fatalf("expected legacy glyph to normalize to positive")
	}
	if RatingValue("???").Normalized() != RatingValue("???") {
		t.Fatalf("unparseable values must be preserved by Normalized")
	}
	if !RatingHold.Favorable() || RatingNegative.Favorable() || RatingBlocking.Favorable() {
		t.Fatalf("unexpected favorable classification")
	}
}

func TestNewSubmissionIDValidation(t *testing.T) {
	if _, err := NewSubmissionID("   "); !errors.Is(err, ErrInvalidSubmissionID) {
		t.Fatalf("expected empty id to be rejected, got %v", err)
	}
	if _, err := NewSubmissionID(strings.Repeat("n", maxIdentifierLength+1)); !errors.Is(err, ErrInvalidSubmissionID) {
		t.Fatalf("expected oversize id to be rejected, got %v", err)
	}
	id, err := NewSubmissionID(" n1234ab ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.String() != "n1234ab" {
		t.Fatalf("expected trimmed id, got %q", id)
	}
}

func TestGroupBySubmissionKeepsOrder(t *testing.T) {
	records := []Record{
		{SubmissionID: "s1", ReviewerID: "a"},
		{SubmissionID: "s2", ReviewerID: "a"},
		{SubmissionID: "s1", ReviewerID: "b"},
	}
	grouped := GroupBySubmission(records)
	if len(grouped) != 2 {
		t.Fatalf("expected two groups, got %d", len(grouped))
	}
	first := grouped["s1"]
	if len(first) != 2 || first[0].ReviewerID != "a" || first[1].ReviewerID != "b" {
		t.Fatalf("unexpected group order: %#v", first)
	}
}

func TestRecordHasRating(t *testing.T) {
	if (Record{Rating: RatingNone}).HasRating() {
		t.Fatalf("empty rating should not count")
	}
	if (Record{Rating: "bogus"}).HasRating() {
		t.Fatalf("invalid rating should not count")
	}
	if !(Record{Rating: "○"}).HasRating() {
		t.Fatalf("legacy glyph should count once normalized")
	}
}
