package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/novelboard/internal/classification"
	"github.com/MarcoPoloResearchLab/novelboard/internal/ratings"
	"go.uber.org/zap"
)

var (
	// ErrSubmissionNotFound indicates a submission outside the reviewer's snapshot.
	ErrSubmissionNotFound = errors.New("dashboard: submission not found")
	errMissingCache       = errors.New("aggregate cache is required")
	errMissingCatalog     = errors.New("catalog source is required")
	errMissingRatingStore = errors.New("rating store is required")
	errMissingSession     = errors.New("session is required")
	noOpLogger            = zap.NewNop()
)

// DisplayLocation is the zone reviewer-facing timestamps are rendered in.
var DisplayLocation = time.FixedZone("JST", 9*60*60)

// ServiceError carries a dotted operation.reason code and the underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew     = "dashboard.service.new"
	opBrowse         = "dashboard.browse"
	opGenres         = "dashboard.genres"
	opDetail         = "dashboard.detail"
	opSubmitRating   = "dashboard.submit_rating"
	opSubmitComment  = "dashboard.submit_comment"
	opExport         = "dashboard.export"
	reasonNotFound   = "submission_not_found"
	reasonUpsert     = "upsert_failed"
	reasonSnapshot   = "snapshot_failed"
	reasonNoSession  = "missing_session"
	reasonStoreRead  = "store_read_failed"
	reasonCatalogErr = "catalog_unavailable"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// SnapshotSource yields the cached view for a reviewer.
type SnapshotSource interface {
	Get(ctx context.Context, reviewerID ratings.ReviewerID) (Snapshot, error)
}

// RatingStore is the persistence the write path and detail view need.
type RatingStore interface {
	RatingReader
	ListBySubmission(ctx context.Context, submissionID ratings.SubmissionID) ([]ratings.Record, error)
	Upsert(ctx context.Context, record ratings.Record) (ratings.Record, error)
}

// ServiceConfig describes the dependencies of the dashboard service.
type ServiceConfig struct {
	Snapshots  SnapshotSource
	Catalog    CatalogSource
	Store      RatingStore
	Classifier classification.Classifier
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service is the read and write surface used by the presentation layer.
type Service struct {
	snapshots  SnapshotSource
	catalog    CatalogSource
	store      RatingStore
	classifier classification.Classifier
	clock      func() time.Time
	logger     *zap.Logger
}

// NewService validates the configuration and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Snapshots == nil {
		return nil, newServiceError(opServiceNew, "missing_cache", errMissingCache)
	}
	if cfg.Catalog == nil {
		return nil, newServiceError(opServiceNew, "missing_catalog", errMissingCatalog)
	}
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingRatingStore)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		snapshots:  cfg.Snapshots,
		catalog:    cfg.Catalog,
		store:      cfg.Store,
		classifier: cfg.Classifier,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Browse returns the session's reconciled table after filtering, sorting and paging.
func (s *Service) Browse(ctx context.Context, session *Session, query Query) (Page, error) {
	rows, err := s.reconciled(ctx, opBrowse, session)
	if err != nil {
		return Page{}, err
	}
	return Apply(rows, query), nil
}

// Genres lists the genre labels offered by the genre filter.
func (s *Service) Genres(ctx context.Context) ([]string, error) {
	genres, err := s.catalog.Genres(ctx)
	if err != nil {
		s.logError(opGenres, reasonCatalogErr, err)
		return nil, newServiceError(opGenres, reasonCatalogErr, err)
	}
	return genres, nil
}

// ReviewEntry is one reviewer's line in the detail panel.
type ReviewEntry struct {
	ReviewerID       string              `json:"reviewer_id"`
	Role             ratings.Role        `json:"role"`
	RoleLabel        string              `json:"role_label"`
	Rating           ratings.RatingValue `json:"rating"`
	Comment          string              `json:"comment"`
	UpdatedAt        time.Time           `json:"updated_at"`
	UpdatedAtDisplay string              `json:"updated_at_display"`
}

// Detail is a single submission with every reviewer's annotation.
type Detail struct {
	Row     EnrichedSubmission `json:"row"`
	Reviews []ReviewEntry      `json:"reviews"`
}

// Detail returns one reconciled row and the reviewer panel with the session's
// pending write applied.
func (s *Service) Detail(ctx context.Context, session *Session, submissionID ratings.SubmissionID) (Detail, error) {
	if session == nil {
		return Detail{}, newServiceError(opDetail, reasonNoSession, errMissingSession)
	}
	snapshot, err := s.snapshots.Get(ctx, session.ReviewerID())
	if err != nil {
		return Detail{}, newServiceError(opDetail, reasonSnapshot, err)
	}
	row, ok := snapshot.Row(submissionID)
	if !ok {
		return Detail{}, newServiceError(opDetail, reasonNotFound, fmt.Errorf("%w: %s", ErrSubmissionNotFound, submissionID))
	}

	pending := map[ratings.SubmissionID]PendingWrite{}
	if write, ok := session.PendingFor(submissionID); ok {
		pending[submissionID] = write
		row = reconcileRow(snapshot, row, write, session.ReviewerID(), s.classifier)
	}

	records, err := s.store.ListBySubmission(ctx, submissionID)
	if err != nil {
		s.logError(opDetail, reasonStoreRead, err, zap.String("submission_id", submissionID.String()))
		return Detail{}, newServiceError(opDetail, reasonStoreRead, err)
	}
	records = ReconcileRecords(records, pending, session.ReviewerID())

	reviews := make([]ReviewEntry, 0, len(records))
	for _, record := range records {
		role := record.Role
		if configured, ok := s.classifier.Roster().RoleOf(ratings.ReviewerID(record.ReviewerID)); ok {
			role = configured
		}
		reviews = append(reviews, ReviewEntry{
			ReviewerID:       record.ReviewerID,
			Role:             role,
			RoleLabel:        role.Label(),
			Rating:           record.Rating.Normalized(),
			Comment:          record.Comment,
			UpdatedAt:        record.UpdatedAt,
			UpdatedAtDisplay: record.UpdatedAt.In(DisplayLocation).Format("2006-01-02 15:04"),
		})
	}
	return Detail{Row: row, Reviews: reviews}, nil
}

// RatingRequest is a rating button press. A nil Comment keeps the current comment.
type RatingRequest struct {
	SubmissionID ratings.SubmissionID
	Rating       ratings.RatingValue
	Comment      *string
}

// SubmitRating stores the toggled rating and records it as a pending write. Pressing
// the rating already held clears it. Nothing is recorded when the store rejects the write.
func (s *Service) SubmitRating(ctx context.Context, session *Session, request RatingRequest) (PendingWrite, error) {
	if !request.Rating.Normalized().Valid() {
		return PendingWrite{}, newServiceError(opSubmitRating, "invalid_rating", fmt.Errorf("%w: %q", ratings.ErrInvalidRating, request.Rating))
	}
	return s.write(ctx, opSubmitRating, session, request.SubmissionID, func(currentRating ratings.RatingValue, currentComment string) (ratings.RatingValue, string) {
		comment := currentComment
		if request.Comment != nil {
			comment = *request.Comment
		}
		return ToggleRating(currentRating, request.Rating), comment
	})
}

// SubmitComment stores a new comment and keeps the current rating.
func (s *Service) SubmitComment(ctx context.Context, session *Session, submissionID ratings.SubmissionID, comment string) (PendingWrite, error) {
	return s.write(ctx, opSubmitComment, session, submissionID, func(currentRating ratings.RatingValue, _ string) (ratings.RatingValue, string) {
		return currentRating, comment
	})
}

type writeDecision func(currentRating ratings.RatingValue, currentComment string) (ratings.RatingValue, string)

func (s *Service) write(ctx context.Context, operation string, session *Session, submissionID ratings.SubmissionID, decide writeDecision) (PendingWrite, error) {
	if session == nil {
		return PendingWrite{}, newServiceError(operation, reasonNoSession, errMissingSession)
	}
	snapshot, err := s.snapshots.Get(ctx, session.ReviewerID())
	if err != nil {
		return PendingWrite{}, newServiceError(operation, reasonSnapshot, err)
	}
	row, ok := snapshot.Row(submissionID)
	if !ok {
		return PendingWrite{}, newServiceError(operation, reasonNotFound, fmt.Errorf("%w: %s", ErrSubmissionNotFound, submissionID))
	}

	session.writeMu.Lock()
	defer session.writeMu.Unlock()

	currentRating, currentComment := row.MyRating, row.MyComment
	if write, ok := session.PendingFor(submissionID); ok {
		currentRating, currentComment = write.Rating, write.Comment
	}
	nextRating, nextComment := decide(currentRating, currentComment)

	stored, err := s.store.Upsert(ctx, ratings.Record{
		SubmissionID: submissionID.String(),
		ReviewerID:   session.ReviewerID().String(),
		Rating:       nextRating,
		Comment:      nextComment,
		Role:         session.Role(),
		UpdatedAt:    s.clock().UTC(),
	})
	if err != nil {
		s.logError(operation, reasonUpsert, err,
			zap.String("submission_id", submissionID.String()),
			zap.String("reviewer_id", session.ReviewerID().String()))
		return PendingWrite{}, newServiceError(operation, reasonUpsert, err)
	}

	write := PendingWrite{
		SubmissionID: submissionID,
		Rating:       stored.Rating,
		Comment:      stored.Comment,
		Role:         stored.Role,
		UpdatedAt:    stored.UpdatedAt,
	}
	session.Record(write)
	return write, nil
}

// ExportRow is one classified submission with every reviewer's annotation flattened.
type ExportRow struct {
	EnrichedSubmission
	Ratings  string
	Comments string
}

// Export lists every catalog submission whose stored ratings classify it, using the
// store state rather than any session's pending writes.
func (s *Service) Export(ctx context.Context) ([]ExportRow, error) {
	rows, err := s.catalog.All(ctx)
	if err != nil {
		s.logError(opExport, reasonCatalogErr, err)
		return nil, newServiceError(opExport, reasonCatalogErr, err)
	}
	records, err := s.store.ListAll(ctx)
	if err != nil {
		s.logError(opExport, reasonStoreRead, err)
		return nil, newServiceError(opExport, reasonStoreRead, err)
	}

	snapshot := BuildSnapshot(rows, records, "", s.classifier)
	exported := make([]ExportRow, 0)
	for _, row := range snapshot.Rows {
		if row.Status == classification.StatusUnclassified {
			continue
		}
		exported = append(exported, ExportRow{
			EnrichedSubmission: row,
			Ratings:            summarize(snapshot.Ratings[row.ID()], func(record ratings.Record) string { return record.Rating.Normalized().String() }),
			Comments:           summarize(snapshot.Ratings[row.ID()], func(record ratings.Record) string { return record.Comment }),
		})
	}
	return exported, nil
}

func summarize(records []ratings.Record, value func(ratings.Record) string) string {
	parts := make([]string, 0, len(records))
	for _, record := range records {
		text := value(record)
		if text == "" {
			continue
		}
		parts = append(parts, record.ReviewerID+":"+text)
	}
	return strings.Join(parts, " ")
}

func (s *Service) reconciled(ctx context.Context, operation string, session *Session) ([]EnrichedSubmission, error) {
	if session == nil {
		return nil, newServiceError(operation, reasonNoSession, errMissingSession)
	}
	snapshot, err := s.snapshots.Get(ctx, session.ReviewerID())
	if err != nil {
		return nil, newServiceError(operation, reasonSnapshot, err)
	}
	return Reconcile(snapshot, session.Pending(), session.ReviewerID(), s.classifier), nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("dashboard service error", attrs...)
}
