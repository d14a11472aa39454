package dashboard

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
)

const exportSheetName = "classified"

var exportHeader = []string{
	"submission_id",
	"title",
	"author",
	"genre",
	"status",
	"global_score",
	"daily_score",
	"weekly_unique_users",
	"first_published_at",
	"last_published_at",
	"ratings",
	"comments",
}

func (row ExportRow) values() []string {
	return []string{
		row.SubmissionID,
		row.Title,
		row.Author,
		row.Genre,
		row.Status.String(),
		strconv.FormatInt(row.GlobalScore, 10),
		strconv.FormatInt(row.DailyScore, 10),
		strconv.FormatInt(row.WeeklyUniqueUsers, 10),
		formatDate(row.FirstPublishedAt),
		formatDate(row.LastPublishedAt),
		row.Ratings,
		row.Comments,
	}
}

func formatDate(value *time.Time) string {
	if value == nil {
		return ""
	}
	return value.In(DisplayLocation).Format("2006-01-02 15:04")
}

// WriteCSV writes one header line and one line per exported row.
func WriteCSV(writer io.Writer, rows []ExportRow) error {
	csvWriter := csv.NewWriter(writer)
	if err := csvWriter.Write(exportHeader); err != nil {
		return err
	}
	for _, row := range rows {
		if err := csvWriter.Write(row.values()); err != nil {
			return err
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

// WriteWorkbook writes the same table as WriteCSV into a single-sheet xlsx file.
func WriteWorkbook(writer io.Writer, rows []ExportRow) error {
	workbook := excelize.NewFile()
	defer workbook.Close()

	if err := workbook.SetSheetName(workbook.GetSheetName(0), exportSheetName); err != nil {
		return err
	}
	streamWriter, err := workbook.NewStreamWriter(exportSheetName)
	if err != nil {
		return err
	}

	if err := streamWriter.SetRow("A1", toCells(exportHeader)); err != nil {
		return err
	}
	for index, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, index+2)
		if err != nil {
			return err
		}
		values := toCells(row.values())
		values[5] = row.GlobalScore
		values[6] = row.DailyScore
		values[7] = row.WeeklyUniqueUsers
		if err := streamWriter.SetRow(cell, values); err != nil {
			return err
		}
	}
	if err := streamWriter.Flush(); err != nil {
		return err
	}
	if _, err := workbook.WriteTo(writer); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for index, value := range values {
		cells[index] = value
	}
	return cells
}
