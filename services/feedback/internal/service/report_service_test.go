package service_test

import (
	"bytes"
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/diagnosis/guest-feedback/pkg/apperr"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/domain"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/report"
)

func monthSlots(set map[int]string) []string {
	out := make([]string, 12)
	for i := range out {
		out[i] = "-"
		if v, ok := set[i+1]; ok {
			out[i] = v
		}
	}
	return out
}

func (e *testEnv) seedYear() {
	e.addReview(day(2025, 1, 5), domain.RatingAnswer(e.clean.ID, 8, ""), domain.RatingAnswer(e.bed.ID, 6, ""))
	e.addReview(day(2025, 3, 2), domain.RatingAnswer(e.clean.ID, 4, ""), domain.YesNoAnswer(e.issue.ID, true, "lamp"))
	e.addReview(day(2024, 6, 1), domain.RatingAnswer(e.clean.ID, 1, ""))
}

func TestYearlyReport(t *testing.T) {
	e := newTestEnv(t)
	e.seedYear()

	rep, err := e.reports.YearlyReport(context.Background(), 2025, domain.CategoryRoom)
	if err != nil {
		t.Fatal(err)
	}

	wantHeaders := []domain.QuestionHeader{{ID: e.clean.ID, Text: "Cleanliness"}, {ID: e.bed.ID, Text: "Bed comfort"}}
	if !reflect.DeepEqual(rep.QuestionHeaders, wantHeaders) {
		t.Errorf("headers = %+v", rep.QuestionHeaders)
	}

	if len(rep.DailyData) != 2 {
		t.Fatalf("daily rows = %d", len(rep.DailyData))
	}
	first, second := rep.DailyData[0], rep.DailyData[1]
	if first.Average == nil || *first.Average != 7 || *first.QuestionRatings[e.bed.ID] != 6 {
		t.Errorf("first row = %+v", first)
	}
	if second.QuestionRatings[e.bed.ID] != nil || second.Average == nil || *second.Average != 4 {
		t.Errorf("second row = %+v", second)
	}

	wantQuestions := []domain.MonthlyRow{
		{Name: "Bed comfort", Averages: monthSlots(map[int]string{1: "6.00"})},
		{Name: "Cleanliness", Averages: monthSlots(map[int]string{1: "8.00", 3: "4.00"})},
	}
	if !reflect.DeepEqual(rep.MonthlyData.Questions, wantQuestions) {
		t.Errorf("monthly questions = %+v", rep.MonthlyData.Questions)
	}
	wantComposites := []domain.MonthlyRow{{Name: "Room", Averages: monthSlots(map[int]string{1: "7.00", 3: "4.00"})}}
	if !reflect.DeepEqual(rep.MonthlyData.Composites, wantComposites) {
		t.Errorf("monthly composites = %+v", rep.MonthlyData.Composites)
	}

	if len(rep.YearlyData.Questions) != 2 || rep.YearlyData.Questions[1].Value != 6 {
		t.Errorf("yearly questions = %+v", rep.YearlyData.Questions)
	}
	if len(rep.YearlyData.Composites) != 1 || rep.YearlyData.Composites[0].Value != 6 {
		t.Errorf("yearly composites = %+v", rep.YearlyData.Composites)
	}
}

func TestYearlyReportEmptyYear(t *testing.T) {
	e := newTestEnv(t)

	rep, err := e.reports.YearlyReport(context.Background(), 2030, domain.CategoryFnB)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.QuestionHeaders) != 1 || len(rep.DailyData) != 0 || len(rep.MonthlyData.Questions) != 0 {
		t.Errorf("report = %+v", rep)
	}
}

func TestYearlyReportValidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.reports.YearlyReport(ctx, 2025, domain.Category("spa"))
	wantKind(t, err, apperr.KindValidation)
	_, err = e.reports.YearlyReport(ctx, 0, domain.CategoryRoom)
	wantKind(t, err, apperr.KindValidation)
}

func TestExportYearlyReport(t *testing.T) {
	e := newTestEnv(t)
	e.seedYear()

	var buf bytes.Buffer
	if err := e.reports.ExportYearlyReport(context.Background(), 2025, domain.CategoryRoom, &buf); err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	if got := f.GetSheetList(); !reflect.DeepEqual(got, []string{report.SheetDaily, report.SheetMonthly, report.SheetYearly}) {
		t.Errorf("sheets = %v", got)
	}
	if v, _ := f.GetCellValue(report.SheetDaily, "D1"); v != "Cleanliness" {
		t.Errorf("Daily!D1 = %q", v)
	}
	if v, _ := f.GetCellValue(report.SheetDaily, "A2"); v != day(2025, 1, 5).Format("2006-01-02 15:04") {
		t.Errorf("Daily!A2 = %q", v)
	}
	if v, _ := f.GetCellValue(report.SheetMonthly, "D3"); v != "4.00" {
		t.Errorf("Monthly!D3 = %q", v)
	}
}

func TestYearlyReportIsCachedUntilNextSubmission(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.seedYear()

	before, _ := e.reports.YearlyReport(ctx, 2025, domain.CategoryRoom)

	// Stored directly, bypassing the service: the cached copy is still served.
	e.addReview(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), domain.RatingAnswer(e.clean.ID, 9, ""))
	cached, _ := e.reports.YearlyReport(ctx, 2025, domain.CategoryRoom)
	if len(cached.DailyData) != len(before.DailyData) {
		t.Fatalf("expected cached report, got %d rows", len(cached.DailyData))
	}

	req := e.roomRequest(rating(e.clean.ID, 10))
	if _, err := e.reviews.SubmitReview(ctx, e.staff.ID, &req); err != nil {
		t.Fatal(err)
	}
	want := 3
	if time.Now().UTC().Year() == 2025 {
		want++
	}
	after, _ := e.reports.YearlyReport(ctx, 2025, domain.CategoryRoom)
	if len(after.DailyData) != want {
		t.Errorf("rows after invalidation = %d", len(after.DailyData))
	}
}
