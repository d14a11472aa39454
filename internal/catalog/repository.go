package catalog

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opRepositoryNew = "catalog.repository.new"
	opAll           = "catalog.all"
	opList          = "catalog.list"
	opGenres        = "catalog.genres"
	opUpsert        = "catalog.upsert"
	upsertBatchSize = 200
)

// Filter describes catalog predicates. Browse pushes down only the contest scope
// and filters the rest after the overlay; the other fields serve callers that list
// the raw catalog.
type Filter struct {
	// RequiredKeywords keeps rows whose keyword column contains any of the terms.
	RequiredKeywords []string
	// IncludeTerms must each appear in title, author, story or keywords.
	IncludeTerms []string
	// ExcludeTerms drop a row when any of them appears in one of those fields.
	ExcludeTerms       []string
	Genre              string
	FirstPublishedFrom *time.Time
	FirstPublishedTo   *time.Time
	LastPublishedFrom  *time.Time
	LastPublishedTo    *time.Time
	// Limit of zero returns every matching row.
	Limit  int
	Offset int
}

// ListResult carries one page of rows and the total number of matches.
type ListResult struct {
	Rows  []Submission
	Total int64
}

// RepositoryConfig describes the dependencies of the catalog repository.
type RepositoryConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Repository reads and writes catalog rows.
type Repository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewRepository validates the configuration and returns a Repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Database == nil {
		return nil, newError(opRepositoryNew, "missing_database", ErrCatalogUnavailable, errMissingDatabase)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{db: cfg.Database, logger: logger}, nil
}

// All returns every catalog row ordered by submission id.
func (r *Repository) All(ctx context.Context) ([]Submission, error) {
	var rows []Submission
	if err := r.db.WithContext(ctx).Order("ncode ASC").Find(&rows).Error; err != nil {
		r.logError(opAll, "query_failed", err)
		return nil, newError(opAll, "query_failed", ErrCatalogUnavailable, err)
	}
	if len(rows) == 0 {
		return nil, newError(opAll, "no_rows", ErrCatalogEmpty, nil)
	}
	return rows, nil
}

// List evaluates the filter and returns one page plus the total match count
// independent of the page bounds. Genre and dates run in the database; keyword
// terms are matched in process so case folding covers all of Unicode.
func (r *Repository) List(ctx context.Context, filter Filter) (ListResult, error) {
	query := applyFilter(r.db.WithContext(ctx).Model(&Submission{}), filter)

	if matcher, ok := newTextMatcher(filter); ok {
		var candidates []Submission
		if err := query.Order("ncode ASC").Find(&candidates).Error; err != nil {
			r.logError(opList, "query_failed", err)
			return ListResult{}, newError(opList, "query_failed", ErrCatalogUnavailable, err)
		}
		matched := make([]Submission, 0, len(candidates))
		for _, row := range candidates {
			if matcher.matches(row) {
				matched = append(matched, row)
			}
		}
		return ListResult{Rows: pageOf(matched, filter.Offset, filter.Limit), Total: int64(len(matched))}, nil
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		r.logError(opList, "count_failed", err)
		return ListResult{}, newError(opList, "count_failed", ErrCatalogUnavailable, err)
	}

	pageQuery := query.Session(&gorm.Session{}).Order("ncode ASC")
	if filter.Limit > 0 {
		pageQuery = pageQuery.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		pageQuery = pageQuery.Offset(filter.Offset)
	}
	var rows []Submission
	if err := pageQuery.Find(&rows).Error; err != nil {
		r.logError(opList, "query_failed", err)
		return ListResult{}, newError(opList, "query_failed", ErrCatalogUnavailable, err)
	}
	return ListResult{Rows: rows, Total: total}, nil
}

// Genres returns the distinct genre labels present in the catalog. Known labels
// come first in genre-table order, unknown ones follow sorted.
func (r *Repository) Genres(ctx context.Context) ([]string, error) {
	var present []string
	if err := r.db.WithContext(ctx).Model(&Submission{}).Distinct().Pluck("genre", &present).Error; err != nil {
		r.logError(opGenres, "query_failed", err)
		return nil, newError(opGenres, "query_failed", ErrCatalogUnavailable, err)
	}
	return OrderGenres(present), nil
}

// Upsert inserts or replaces catalog rows by submission id.
func (r *Repository) Upsert(ctx context.Context, rows []Submission) error {
	if len(rows) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ncode"}},
		UpdateAll: true,
	}).CreateInBatches(rows, upsertBatchSize).Error
	if err != nil {
		r.logError(opUpsert, "write_failed", err, zap.Int("rows", len(rows)))
		return newError(opUpsert, "write_failed", ErrCatalogUnavailable, err)
	}
	return nil
}

// OrderGenres sorts genre labels by the genre table, then lexically. Blank labels are dropped.
func OrderGenres(present []string) []string {
	seen := make(map[string]struct{}, len(present))
	for _, genre := range present {
		if strings.TrimSpace(genre) == "" {
			continue
		}
		seen[genre] = struct{}{}
	}

	ordered := make([]string, 0, len(seen))
	for _, code := range genreOrder {
		label := GenreLabel[code]
		if _, ok := seen[label]; ok {
			ordered = append(ordered, label)
			delete(seen, label)
		}
	}
	rest := make([]string, 0, len(seen))
	for genre := range seen {
		rest = append(rest, genre)
	}
	sort.Strings(rest)
	return append(ordered, rest...)
}

func applyFilter(query *gorm.DB, filter Filter) *gorm.DB {
	if genre := strings.TrimSpace(filter.Genre); genre != "" {
		query = query.Where("genre = ?", genre)
	}
	if filter.FirstPublishedFrom != nil {
		query = query.Where("general_firstup >= ?", filter.FirstPublishedFrom.UTC())
	}
	if filter.FirstPublishedTo != nil {
		query = query.Where("general_firstup <= ?", filter.FirstPublishedTo.UTC())
	}
	if filter.LastPublishedFrom != nil {
		query = query.Where("general_lastup >= ?", filter.LastPublishedFrom.UTC())
	}
	if filter.LastPublishedTo != nil {
		query = query.Where("general_lastup <= ?", filter.LastPublishedTo.UTC())
	}
	return query
}

// textMatcher holds lower-cased keyword terms. SQL LOWER folds only ASCII on
// SQLite, so these never go to the database.
type textMatcher struct {
	required []string
	include  []string
	exclude  []string
}

func newTextMatcher(filter Filter) (textMatcher, bool) {
	matcher := textMatcher{
		required: lowered(filter.RequiredKeywords),
		include:  lowered(filter.IncludeTerms),
		exclude:  lowered(filter.ExcludeTerms),
	}
	return matcher, len(matcher.required)+len(matcher.include)+len(matcher.exclude) > 0
}

func (m textMatcher) matches(row Submission) bool {
	keywords := strings.ToLower(row.KeywordText)
	if len(m.required) > 0 {
		found := false
		for _, term := range m.required {
			if strings.Contains(keywords, term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	fields := []string{strings.ToLower(row.Title), strings.ToLower(row.Author), strings.ToLower(row.StoryText), keywords}
	for _, term := range m.include {
		if !anyFieldContains(fields, term) {
			return false
		}
	}
	for _, term := range m.exclude {
		if anyFieldContains(fields, term) {
			return false
		}
	}
	return true
}

func anyFieldContains(fields []string, term string) bool {
	for _, field := range fields {
		if strings.Contains(field, term) {
			return true
		}
	}
	return false
}

func lowered(values []string) []string {
	out := nonBlank(values)
	for index, value := range out {
		out[index] = strings.ToLower(value)
	}
	return out
}

func pageOf(rows []Submission, offset, limit int) []Submission {
	if offset >= len(rows) {
		return []Submission{}
	}
	if offset > 0 {
		rows = rows[offset:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

func nonBlank(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (r *Repository) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	r.logger.Error("catalog repository error", attrs...)
}
