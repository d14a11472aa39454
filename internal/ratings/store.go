package ratings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// StoreError reports a failed read or write against the rating table.
type StoreError struct {
	code string
	err  error
}

func (e *StoreError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *StoreError) Unwrap() error {
	return e.err
}

func (e *StoreError) Code() string {
	return e.code
}

const (
	opStoreNew          = "ratings.store.new"
	opListAll           = "ratings.list_all"
	opListByReviewer    = "ratings.list_by_reviewer"
	opListBySubmission  = "ratings.list_by_submission"
	opUpsert            = "ratings.upsert"
	reasonMissingDB     = "missing_database"
	reasonQueryFailed   = "query_failed"
	reasonInvalidRecord = "invalid_record"
)

func newStoreError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &StoreError{code: code, err: cause}
}

// StoreConfig describes the dependencies of the rating store.
type StoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Store reads and writes reviewer ratings. Rows come back ordered by
// (updated_at, submission, reviewer) so that summaries built from them are stable.
type Store struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewStore validates the configuration and returns a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, newStoreError(opStoreNew, reasonMissingDB, errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{db: cfg.Database, clock: clock, logger: logger}, nil
}

// ListAll returns every rating record.
func (s *Store) ListAll(ctx context.Context) ([]Record, error) {
	var records []Record
	if err := s.ordered(ctx).Find(&records).Error; err != nil {
		s.logError(opListAll, reasonQueryFailed, err)
		return nil, newStoreError(opListAll, reasonQueryFailed, err)
	}
	return records, nil
}

// ListByReviewer returns the records written by one reviewer.
func (s *Store) ListByReviewer(ctx context.Context, reviewerID ReviewerID) ([]Record, error) {
	var records []Record
	if err := s.ordered(ctx).Where("user_name = ?", reviewerID.String()).Find(&records).Error; err != nil {
		s.logError(opListByReviewer, reasonQueryFailed, err, zap.String("reviewer_id", reviewerID.String()))
		return nil, newStoreError(opListByReviewer, reasonQueryFailed, err)
	}
	return records, nil
}

// ListBySubmission returns every reviewer's record for one submission.
func (s *Store) ListBySubmission(ctx context.Context, submissionID SubmissionID) ([]Record, error) {
	var records []Record
	if err := s.ordered(ctx).Where("ncode = ?", submissionID.String()).Find(&records).Error; err != nil {
		s.logError(opListBySubmission, reasonQueryFailed, err, zap.String("submission_id", submissionID.String()))
		return nil, newStoreError(opListBySubmission, reasonQueryFailed, err)
	}
	return records, nil
}

// Upsert replaces the record keyed by (submission, reviewer). A zero UpdatedAt is
// stamped with the store clock. The persisted record is returned.
func (s *Store) Upsert(ctx context.Context, record Record) (Record, error) {
	if _, err := NewSubmissionID(record.SubmissionID); err != nil {
		s.logError(opUpsert, reasonInvalidRecord, err)
		return Record{}, newStoreError(opUpsert, reasonInvalidRecord, err)
	}
	if _, err := NewReviewerID(record.ReviewerID); err != nil {
		s.logError(opUpsert, reasonInvalidRecord, err, zap.String("submission_id", record.SubmissionID))
		return Record{}, newStoreError(opUpsert, reasonInvalidRecord, err)
	}
	if !record.Rating.IsEmpty() && !record.Rating.Valid() {
		s.logError(opUpsert, reasonInvalidRecord, ErrInvalidRating,
			zap.String("submission_id", record.SubmissionID),
			zap.String("reviewer_id", record.ReviewerID))
		return Record{}, newStoreError(opUpsert, reasonInvalidRecord, fmt.Errorf("%w: %q", ErrInvalidRating, record.Rating))
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = s.clock().UTC()
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ncode"}, {Name: "user_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"rating", "comment", "role", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		s.logError(opUpsert, "write_failed", err,
			zap.String("submission_id", record.SubmissionID),
			zap.String("reviewer_id", record.ReviewerID))
		return Record{}, newStoreError(opUpsert, "write_failed", err)
	}
	return record, nil
}

func (s *Store) ordered(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Order("updated_at ASC").Order("ncode ASC").Order("user_name ASC")
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("ratings store error", attrs...)
}
