package dashboard

import (
	"sort"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/novelboard/internal/classification"
)

// SortKey names the column rows are ordered by.
type SortKey string

const (
	SortDailyScore        SortKey = "daily_score"
	SortGlobalScore       SortKey = "global_score"
	SortUpdatedAt         SortKey = "updated_at"
	SortSubmissionID      SortKey = "submission_id"
	SortTitle             SortKey = "title"
	SortAuthor            SortKey = "author"
	SortGenre             SortKey = "genre"
	SortFirstPublished    SortKey = "first_published_at"
	SortLastPublished     SortKey = "last_published_at"
	SortEpisodeCount      SortKey = "episode_count"
	SortWeeklyUniqueUsers SortKey = "weekly_unique_users"
	SortCharLength        SortKey = "char_length"
)

// Page sizes offered to clients.
const (
	DefaultPageSize = 300
)

var allowedPageSizes = map[int]struct{}{100: {}, 300: {}, 500: {}}

// Query holds the user's filter, sort and page selections. Zero values disable a
// predicate.
type Query struct {
	// Status keeps rows whose collapsed status equals it.
	Status *classification.Status
	// Flag keeps rows whose corresponding cohort flag is set, even when a higher
	// priority status hides it.
	Flag    *classification.Status
	Genre   string
	Include string
	Exclude string
	// MinScore is an inclusive lower bound on the global score.
	MinScore int64
	// MaxScore is an exclusive upper bound on the global score.
	MaxScore           int64
	FirstPublishedFrom *time.Time
	FirstPublishedTo   *time.Time
	LastPublishedFrom  *time.Time
	LastPublishedTo    *time.Time
	UpdatedFrom        *time.Time
	UpdatedTo          *time.Time
	SortKey            SortKey
	Ascending          bool
	Page               int
	PageSize           int
}

// Page is one slice of a filtered, sorted table.
type Page struct {
	Rows      []EnrichedSubmission `json:"rows"`
	Total     int                  `json:"total"`
	Page      int                  `json:"page"`
	PageSize  int                  `json:"page_size"`
	PageCount int                  `json:"page_count"`
}

// SplitTerms splits a keyword box on any whitespace, ideographic spaces included.
func SplitTerms(raw string) []string {
	return strings.Fields(raw)
}

// Filter returns the matching rows in sort order. The input is not modified.
func Filter(rows []EnrichedSubmission, query Query) []EnrichedSubmission {
	include := lowerAll(SplitTerms(query.Include))
	exclude := lowerAll(SplitTerms(query.Exclude))

	matched := make([]EnrichedSubmission, 0, len(rows))
	for _, row := range rows {
		if query.matches(row, include, exclude) {
			matched = append(matched, row)
		}
	}

	less := comparator(query.SortKey, query.Ascending)
	sort.SliceStable(matched, func(i, j int) bool {
		return less(matched[i], matched[j])
	})
	return matched
}

// Apply filters, sorts and paginates rows.
func Apply(rows []EnrichedSubmission, query Query) Page {
	matched := Filter(rows, query)

	pageSize := query.PageSize
	if _, ok := allowedPageSizes[pageSize]; !ok {
		pageSize = DefaultPageSize
	}
	pageCount := (len(matched) + pageSize - 1) / pageSize
	if pageCount == 0 {
		pageCount = 1
	}
	page := query.Page
	if page < 1 || page > pageCount {
		page = 1
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return Page{
		Rows:      matched[start:end],
		Total:     len(matched),
		Page:      page,
		PageSize:  pageSize,
		PageCount: pageCount,
	}
}

func (q Query) matches(row EnrichedSubmission, include, exclude []string) bool {
	if q.Status != nil && row.Status != *q.Status {
		return false
	}
	if q.Flag != nil && !hasFlag(row.Flags, *q.Flag) {
		return false
	}
	if q.Genre != "" && row.Genre != q.Genre {
		return false
	}

	fields := lowerAll([]string{row.Title, row.Author, row.StoryText, row.KeywordText})
	for _, term := range include {
		if !anyContains(fields, term) {
			return false
		}
	}
	for _, term := range exclude {
		if anyContains(fields, term) {
			return false
		}
	}

	if q.MinScore > 0 && row.GlobalScore < q.MinScore {
		return false
	}
	if q.MaxScore > 0 && row.GlobalScore >= q.MaxScore {
		return false
	}

	return within(row.FirstPublishedAt, q.FirstPublishedFrom, q.FirstPublishedTo) &&
		within(row.LastPublishedAt, q.LastPublishedFrom, q.LastPublishedTo) &&
		within(row.UpdatedAt, q.UpdatedFrom, q.UpdatedTo)
}

func hasFlag(flags classification.Flags, status classification.Status) bool {
	switch status {
	case classification.StatusBlocking:
		return flags.IsBlocking
	case classification.StatusPrimaryApproved:
		return flags.IsPrimaryApproved
	case classification.StatusPrimaryRejected:
		return flags.IsPrimaryRejected
	case classification.StatusGeneralApproved:
		return flags.IsGeneralApproved
	case classification.StatusGeneralRejected:
		return flags.IsGeneralRejected
	default:
		return flags.IsUnclassified
	}
}

// within treats a nil value as outside any active bound.
func within(value, from, to *time.Time) bool {
	if from == nil && to == nil {
		return true
	}
	if value == nil {
		return false
	}
	if from != nil && value.Before(*from) {
		return false
	}
	if to != nil && value.After(*to) {
		return false
	}
	return true
}

func anyContains(fields []string, term string) bool {
	for _, field := range fields {
		if strings.Contains(field, term) {
			return true
		}
	}
	return false
}

func lowerAll(values []string) []string {
	out := make([]string, len(values))
	for index, value := range values {
		out[index] = strings.ToLower(value)
	}
	return out
}

func comparator(key SortKey, ascending bool) func(a, b EnrichedSubmission) bool {
	ordered := func(compare int) bool {
		if ascending {
			return compare < 0
		}
		return compare > 0
	}
	byInt := func(value func(EnrichedSubmission) int64) func(a, b EnrichedSubmission) bool {
		return func(a, b EnrichedSubmission) bool {
			return ordered(compareInt(value(a), value(b)))
		}
	}
	byString := func(value func(EnrichedSubmission) string) func(a, b EnrichedSubmission) bool {
		return func(a, b EnrichedSubmission) bool {
			return ordered(strings.Compare(value(a), value(b)))
		}
	}
	byTime := func(value func(EnrichedSubmission) *time.Time) func(a, b EnrichedSubmission) bool {
		return func(a, b EnrichedSubmission) bool {
			left, right := value(a), value(b)
			if left == nil {
				return false
			}
			if right == nil {
				return true
			}
			return ordered(left.Compare(*right))
		}
	}

	switch key {
	case SortGlobalScore:
		return byInt(func(row EnrichedSubmission) int64 { return row.GlobalScore })
	case SortEpisodeCount:
		return byInt(func(row EnrichedSubmission) int64 { return row.EpisodeCount })
	case SortWeeklyUniqueUsers:
		return byInt(func(row EnrichedSubmission) int64 { return row.WeeklyUniqueUsers })
	case SortCharLength:
		return byInt(func(row EnrichedSubmission) int64 { return row.CharLength })
	case SortSubmissionID:
		return byString(func(row EnrichedSubmission) string { return row.SubmissionID })
	case SortTitle:
		return byString(func(row EnrichedSubmission) string { return row.Title })
	case SortAuthor:
		return byString(func(row EnrichedSubmission) string { return row.Author })
	case SortGenre:
		return byString(func(row EnrichedSubmission) string { return row.Genre })
	case SortFirstPublished:
		return byTime(func(row EnrichedSubmission) *time.Time { return row.FirstPublishedAt })
	case SortLastPublished:
		return byTime(func(row EnrichedSubmission) *time.Time { return row.LastPublishedAt })
	case SortUpdatedAt:
		return byTime(func(row EnrichedSubmission) *time.Time { return row.UpdatedAt })
	default:
		return byInt(func(row EnrichedSubmission) int64 { return row.DailyScore })
	}
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// ParseSortKey maps a client-supplied column name onto a SortKey, falling back to
// the daily score.
func ParseSortKey(raw string) SortKey {
	switch key := SortKey(strings.TrimSpace(raw)); key {
	case SortDailyScore, SortGlobalScore, SortUpdatedAt, SortSubmissionID, SortTitle,
		SortAuthor, SortGenre, SortFirstPublished, SortLastPublished, SortEpisodeCount,
		SortWeeklyUniqueUsers, SortCharLength:
		return key
	default:
		return SortDailyScore
	}
}
