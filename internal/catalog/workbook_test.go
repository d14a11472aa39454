package catalog

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, rows [][]interface{}) *bytes.Buffer {
	t.Helper()
	workbook := excelize.NewFile()
	defer workbook.Close()
	sheet := workbook.GetSheetName(0)
	for index, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, index+1)
		if err != nil {
			t.Fatalf("cell name failed: %v", err)
		}
		values := row
		if err := workbook.SetSheetRow(sheet, cell, &values); err != nil {
			t.Fatalf("set row failed: %v", err)
		}
	}
	buffer, err := workbook.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook failed: %v", err)
	}
	return buffer
}

func TestParseWorkbookMapsColumns(t *testing.T) {
	buffer := buildWorkbook(t, [][]interface{}{
		{"ncode", "title", "writer", "genre", "keyword", "story", "general_firstup", "general_all_no", "global_point", "weekly_unique", "kaiwaritu"},
		{"n1111aa", "Night Train", "Kai", "302", "ネトコン14", "a story", "2024-02-10 08:30:00", "12", "1,234", "5,600", "41.5"},
		{"", "skipped", "", "", "", "", "", "", "", "", ""},
		{"n2222bb", "Stray", "Yu", "7777", "", "", "", "x", "", "", ""},
	})

	submissions, err := ParseWorkbook(buffer)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(submissions) != 2 {
		t.Fatalf("expected two submissions, got %d", len(submissions))
	}

	first := submissions[0]
	if first.SubmissionID != "n1111aa" || first.Author != "Kai" {
		t.Fatalf("unexpected identity fields: %#v", first)
	}
	if first.Genre != "ヒューマンドラマ〔文芸〕" {
		t.Fatalf("expected genre code to be resolved, got %q", first.Genre)
	}
	if first.GlobalScore != 1234 || first.WeeklyUniqueUsers != 5600 || first.EpisodeCount != 12 {
		t.Fatalf("expected thousands separators to be stripped: %#v", first)
	}
	if first.DialogueRatio != 41.5 {
		t.Fatalf("unexpected dialogue ratio %v", first.DialogueRatio)
	}
	if first.FirstPublishedAt == nil || first.FirstPublishedAt.Format("2006-01-02 15:04") != "2024-02-10 08:30" {
		t.Fatalf("unexpected first published date %v", first.FirstPublishedAt)
	}

	second := submissions[1]
	if second.Genre != "7777" {
		t.Fatalf("expected unknown genre code to pass through, got %q", second.Genre)
	}
	if second.EpisodeCount != 0 {
		t.Fatalf("expected unparseable number to become zero, got %d", second.EpisodeCount)
	}
	if second.FirstPublishedAt != nil {
		t.Fatalf("expected blank date to stay nil")
	}
}

func TestParseWorkbookRejectsMissingKeyColumn(t *testing.T) {
	buffer := buildWorkbook(t, [][]interface{}{{"title"}, {"orphan"}})
	if _, err := ParseWorkbook(buffer); !errors.Is(err, ErrInvalidWorkbook) {
		t.Fatalf("expected ErrInvalidWorkbook, got %v", err)
	}
}

func TestParseWorkbookRejectsBadDates(t *testing.T) {
	buffer := buildWorkbook(t, [][]interface{}{
		{"ncode", "general_lastup"},
		{"n1", "next tuesday"},
	})
	if _, err := ParseWorkbook(buffer); !errors.Is(err, ErrInvalidWorkbook) {
		t.Fatalf("expected ErrInvalidWorkbook, got %v", err)
	}
}

func TestImportWorkbookUpsertsRows(t *testing.T) {
	repository, _ := newTestRepository(t)
	buffer := buildWorkbook(t, [][]interface{}{
		{"ncode", "title"},
		{"n1", "One"},
		{"n2", "Two"},
	})

	imported, err := repository.ImportWorkbook(context.Background(), buffer)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if imported != 2 {
		t.Fatalf("expected two rows imported, got %d", imported)
	}
	rows, err := repository.All(context.Background())
	if err != nil {
		t.Fatalf("all failed: %v", err)
	}
	if len(rows) != 2 || rows[1].Title != "Two" {
		t.Fatalf("unexpected rows: %#v", rows)
	}
}
