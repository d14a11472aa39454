package ratings

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidSubmissionID indicates that a submission identifier is empty or exceeds storage bounds.
	ErrInvalidSubmissionID = errors.New("ratings: invalid submission id")
	// ErrInvalidReviewerID indicates that a reviewer identifier is empty or exceeds storage bounds.
	ErrInvalidReviewerID = errors.New("ratings: invalid reviewer id")
	// ErrInvalidRating indicates a rating value outside the enumerated set.
	ErrInvalidRating = errors.New("ratings: invalid rating value")
)

// SubmissionID represents a validated submission identifier (the catalog ncode).
type SubmissionID string

// NewSubmissionID validates raw input and returns a SubmissionID.
func NewSubmissionID(rawInput string) (SubmissionID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidSubmissionID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidSubmissionID, maxIdentifierLength)
	}
	return SubmissionID(trimmed), nil
}

// String returns the underlying string identifier.
func (id SubmissionID) String() string {
	return string(id)
}

// ReviewerID represents a validated reviewer identifier.
type ReviewerID string

// NewReviewerID validates raw input and returns a ReviewerID.
func NewReviewerID(rawInput string) (ReviewerID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidReviewerID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidReviewerID, maxIdentifierLength)
	}
	return ReviewerID(trimmed), nil
}

// String returns the underlying string identifier.
func (id ReviewerID) String() string {
	return string(id)
}

// RatingValue is one reviewer's verdict on a submission. The empty value means
// the reviewer has not expressed an opinion yet.
type RatingValue string

const (
	// RatingNone marks a record without an opinion.
	RatingNone RatingValue = ""
	// RatingPositive marks the submission as interesting / easy to adapt.
	RatingPositive RatingValue = "〇"
	// RatingHold defers the decision.
	RatingHold RatingValue = "△"
	// RatingNegative marks the submission as not suitable.
	RatingNegative RatingValue = "×"
	// RatingBlocking excludes the submission regardless of other opinions.
	RatingBlocking RatingValue = "NG"
)

// legacyPositive is the visually similar white circle some clients submit.
const legacyPositive = "○"

// ParseRatingValue normalizes raw input into a RatingValue. Blank input yields RatingNone.
func ParseRatingValue(rawInput string) (RatingValue, error) {
	trimmed := strings.TrimSpace(rawInput)
	switch strings.ToLower(trimmed) {
	case "":
		return RatingNone, nil
	case string(RatingPositive), legacyPositive, "positive":
		return RatingPositive, nil
	case string(RatingHold), "hold":
		return RatingHold, nil
	case string(RatingNegative), "negative":
		return RatingNegative, nil
	case "ng", "blocking":
		return RatingBlocking, nil
	default:
		return RatingNone, fmt.Errorf("%w: %q", ErrInvalidRating, trimmed)
	}
}

// IsEmpty reports whether the value carries no opinion.
func (value RatingValue) IsEmpty() bool {
	return strings.TrimSpace(string(value)) == ""
}

// Valid reports whether the value is one of the enumerated ratings.
func (value RatingValue) Valid() bool {
	switch value {
	case RatingPositive, RatingHold, RatingNegative, RatingBlocking:
		return true
	default:
		return false
	}
}

// Favorable reports whether the value counts toward an approval (〇 or △).
func (value RatingValue) Favorable() bool {
	return value == RatingPositive || value == RatingHold
}

// Normalized maps legacy glyphs onto their canonical value and leaves anything
// else untouched, so stored values that fail to parse stay visible as-is.
func (value RatingValue) Normalized() RatingValue {
	parsed, err := ParseRatingValue(string(value))
	if err != nil {
		return value
	}
	return parsed
}

// String returns the display glyph.
func (value RatingValue) String() string {
	return string(value)
}

// Role identifies which reviewer cohort a rating belongs to.
type Role string

const (
	// RolePrimaryReviewBody is the rights-management team whose verdict takes display precedence.
	RolePrimaryReviewBody Role = "primary_review_body"
	// RoleGeneralEditors covers every other configured reviewer.
	RoleGeneralEditors Role = "general_editors"
)

// Label returns the human-readable cohort name.
func (role Role) Label() string {
	switch role {
	case RolePrimaryReviewBody:
		return "原作管理チーム"
	case RoleGeneralEditors:
		return "一般編集"
	default:
		return string(role)
	}
}

// Record is one reviewer's rating and comment on one submission.
type Record struct {
	SubmissionID string      `gorm:"column:ncode;primaryKey;size:190;not null"`
	ReviewerID   string      `gorm:"column:user_name;primaryKey;size:190;not null;index:idx_user_ratings_reviewer"`
	Rating       RatingValue `gorm:"column:rating;size:16"`
	Comment      string      `gorm:"column:comment;type:text"`
	Role         Role        `gorm:"column:role;size:32"`
	UpdatedAt    time.Time   `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Record) TableName() string {
	return "user_ratings"
}

// HasRating reports whether the record expresses a valid, non-empty opinion.
func (record Record) HasRating() bool {
	return !record.Rating.IsEmpty() && record.Rating.Normalized().Valid()
}

// GroupBySubmission buckets records by submission, keeping their relative order.
func GroupBySubmission(records []Record) map[SubmissionID][]Record {
	grouped := make(map[SubmissionID][]Record)
	for _, record := range records {
		key := SubmissionID(record.SubmissionID)
		grouped[key] = append(grouped[key], record)
	}
	return grouped
}
