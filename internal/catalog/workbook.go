package catalog

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const opImportWorkbook = "catalog.import_workbook"

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006/01/02",
	time.RFC3339,
}

// ParseWorkbook reads the first sheet of an xlsx workbook. The first row names the
// columns; rows without an ncode are skipped.
func ParseWorkbook(reader io.Reader) ([]Submission, error) {
	workbook, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWorkbook, err)
	}
	defer workbook.Close()

	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: no sheets", ErrInvalidWorkbook)
	}
	rows, err := workbook.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWorkbook, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: missing header row", ErrInvalidWorkbook)
	}

	header := make(map[string]int, len(rows[0]))
	for index, name := range rows[0] {
		header[strings.TrimSpace(name)] = index
	}
	if _, ok := header["ncode"]; !ok {
		return nil, fmt.Errorf("%w: missing ncode column", ErrInvalidWorkbook)
	}

	submissions := make([]Submission, 0, len(rows)-1)
	for rowIndex, cells := range rows[1:] {
		row := workbookRow{header: header, cells: cells}
		submissionID := row.text("ncode")
		if submissionID == "" {
			continue
		}
		submission, err := row.submission(submissionID)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrInvalidWorkbook, rowIndex+2, err)
		}
		submissions = append(submissions, submission)
	}
	return submissions, nil
}

// ImportWorkbook parses the workbook and upserts every row, returning the row count.
func (r *Repository) ImportWorkbook(ctx context.Context, reader io.Reader) (int, error) {
	submissions, err := ParseWorkbook(reader)
	if err != nil {
		r.logError(opImportWorkbook, "parse_failed", err)
		return 0, newError(opImportWorkbook, "parse_failed", ErrInvalidWorkbook, err)
	}
	if err := r.Upsert(ctx, submissions); err != nil {
		return 0, err
	}
	r.logger.Info("catalog imported", zap.Int("rows", len(submissions)))
	return len(submissions), nil
}

type workbookRow struct {
	header map[string]int
	cells  []string
}

func (row workbookRow) text(column string) string {
	index, ok := row.header[column]
	if !ok || index >= len(row.cells) {
		return ""
	}
	return strings.TrimSpace(row.cells[index])
}

// integer strips thousands separators; unparseable cells count as zero.
func (row workbookRow) integer(column string) int64 {
	return int64(row.number(column))
}

func (row workbookRow) number(column string) float64 {
	raw := strings.ReplaceAll(row.text(column), ",", "")
	if raw == "" {
		return 0
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return value
}

func (row workbookRow) date(column string) (*time.Time, error) {
	raw := row.text(column)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		parsed, err := time.ParseInLocation(layout, raw, time.UTC)
		if err == nil {
			utc := parsed.UTC()
			return &utc, nil
		}
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		parsed, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			utc := parsed.UTC()
			return &utc, nil
		}
	}
	return nil, fmt.Errorf("column %s: unrecognized date %q", column, raw)
}

func (row workbookRow) submission(submissionID string) (Submission, error) {
	firstPublished, err := row.date("general_firstup")
	if err != nil {
		return Submission{}, err
	}
	lastPublished, err := row.date("general_lastup")
	if err != nil {
		return Submission{}, err
	}
	updatedAt, err := row.date("novelupdated_at")
	if err != nil {
		return Submission{}, err
	}

	return Submission{
		SubmissionID:      submissionID,
		Title:             row.text("title"),
		Author:            row.text("writer"),
		Genre:             ResolveGenre(row.text("genre")),
		KeywordText:       row.text("keyword"),
		StoryText:         row.text("story"),
		FirstPublishedAt:  firstPublished,
		LastPublishedAt:   lastPublished,
		EpisodeCount:      row.integer("general_all_no"),
		CharLength:        row.integer("length"),
		GlobalScore:       row.integer("global_point"),
		DailyScore:        row.integer("daily_point"),
		WeeklyScore:       row.integer("weekly_point"),
		MonthlyScore:      row.integer("monthly_point"),
		QuarterScore:      row.integer("quarter_point"),
		YearlyScore:       row.integer("yearly_point"),
		AllScore:          row.integer("all_point"),
		WeeklyUniqueUsers: row.integer("weekly_unique"),
		BookmarkCount:     row.integer("fav_novel_cnt"),
		ImpressionCount:   row.integer("impression_cnt"),
		ReviewCount:       row.integer("review_cnt"),
		IllustrationCount: row.integer("sasie_cnt"),
		DialogueRatio:     row.number("kaiwaritu"),
		UpdatedAt:         updatedAt,
	}, nil
}
