// Package report renders the yearly feedback report as a spreadsheet.
package report

import (
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/diagnosis/guest-feedback/services/feedback/internal/domain"
)

const (
	SheetDaily   = "Daily"
	SheetMonthly = "Monthly"
	SheetYearly  = "Yearly"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var monthNames = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// WriteXLSX writes rep as a workbook with Daily, Monthly and Yearly sheets.
func WriteXLSX(w io.Writer, rep *domain.YearlyReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetDaily); err != nil {
		return err
	}
	if _, err := f.NewSheet(SheetMonthly); err != nil {
		return err
	}
	if _, err := f.NewSheet(SheetYearly); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	if err := writeDaily(f, rep, bold); err != nil {
		return err
	}
	if err := writeMonthly(f, rep, bold); err != nil {
		return err
	}
	if err := writeYearly(f, rep, bold); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	_, err = f.WriteTo(w)
	return err
}

type sheetWriter struct {
	f     *excelize.File
	sheet string
	row   int
	err   error
}

func (s *sheetWriter) line(values ...any) {
	if s.err != nil {
		return
	}
	s.row++
	cell, err := excelize.CoordinatesToCellName(1, s.row)
	if err != nil {
		s.err = err
		return
	}
	s.err = s.f.SetSheetRow(s.sheet, cell, &values)
}

func (s *sheetWriter) header(style int, values ...any) {
	s.line(values...)
	if s.err != nil || len(values) == 0 {
		return
	}
	last, err := excelize.CoordinatesToCellName(len(values), s.row)
	if err != nil {
		s.err = err
		return
	}
	first, _ := excelize.CoordinatesToCellName(1, s.row)
	s.err = s.f.SetCellStyle(s.sheet, first, last, style)
}

func writeDaily(f *excelize.File, rep *domain.YearlyReport, bold int) error {
	sw := &sheetWriter{f: f, sheet: SheetDaily}

	header := []any{"Date", "Guest", "Room"}
	for _, h := range rep.QuestionHeaders {
		header = append(header, h.Text)
	}
	header = append(header, "Average")
	sw.header(bold, header...)

	for _, row := range rep.DailyData {
		values := []any{row.Date.UTC().Format("2006-01-02 15:04"), row.GuestName, row.RoomNumber}
		for _, h := range rep.QuestionHeaders {
			if v := row.QuestionRatings[h.ID]; v != nil {
				values = append(values, *v)
			} else {
				values = append(values, "")
			}
		}
		if row.Average != nil {
			values = append(values, *row.Average)
		} else {
			values = append(values, "")
		}
		sw.line(values...)
	}
	return sw.err
}

func writeMonthly(f *excelize.File, rep *domain.YearlyReport, bold int) error {
	sw := &sheetWriter{f: f, sheet: SheetMonthly}

	section := func(title string, rows []domain.MonthlyRow) {
		header := []any{title}
		for _, m := range monthNames {
			header = append(header, m)
		}
		sw.header(bold, header...)
		for _, r := range rows {
			values := []any{r.Name}
			for _, a := range r.Averages {
				values = append(values, a)
			}
			sw.line(values...)
		}
	}

	section("Question", rep.MonthlyData.Questions)
	sw.line()
	section("Composite", rep.MonthlyData.Composites)
	return sw.err
}

func writeYearly(f *excelize.File, rep *domain.YearlyReport, bold int) error {
	sw := &sheetWriter{f: f, sheet: SheetYearly}

	sw.header(bold, "Question", "Average")
	for _, q := range rep.YearlyData.Questions {
		sw.line(q.Name, q.Value)
	}
	sw.line()
	sw.header(bold, "Composite", "Average")
	for _, c := range rep.YearlyData.Composites {
		sw.line(c.Name, c.Value)
	}
	return sw.err
}
