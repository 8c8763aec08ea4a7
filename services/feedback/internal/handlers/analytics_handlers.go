package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/diagnosis/guest-feedback/pkg/auth"
	"github.com/diagnosis/guest-feedback/pkg/logger"
	"github.com/diagnosis/guest-feedback/pkg/response"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/domain"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/report"
)

// parseFilter reads startDate, endDate and category from the query string.
// Without a category the result spans every category, so the caller needs an
// unscoped analytics grant.
func parseFilter(w http.ResponseWriter, r *http.Request) (domain.Filter, bool) {
	q := r.URL.Query()
	f, err := domain.NewFilter(q.Get("startDate"), q.Get("endDate"), q.Get("category"))
	if err != nil {
		response.Error(w, r, err)
		return f, false
	}
	if !allowFilterCategory(w, r, f.Category) {
		return f, false
	}
	return f, true
}

func allowFilterCategory(w http.ResponseWriter, r *http.Request, category domain.Category) bool {
	if category == "" {
		return allowAllCategories(w, r, auth.PermAnalyticsRead)
	}
	return allowCategory(w, r, auth.PermAnalyticsRead, string(category))
}

func queryID(r *http.Request, key string) string {
	return strings.ToLower(strings.TrimSpace(r.URL.Query().Get(key)))
}

func parseTimeSeries(w http.ResponseWriter, r *http.Request) (domain.TimeSeriesQuery, bool) {
	q := r.URL.Query()
	ts, err := domain.NewTimeSeriesQuery(q.Get("year"), q.Get("period"), q.Get("month"), q.Get("category"))
	if err != nil {
		response.Error(w, r, err)
		return ts, false
	}
	if !allowFilterCategory(w, r, ts.Category) {
		return ts, false
	}
	return ts, true
}

func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}
	stats, err := h.analyticsService.Stats(r.Context(), f)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.Data(w, stats)
}

func (h *Handlers) QuestionAverages(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}
	rows, err := h.analyticsService.QuestionAverages(r.Context(), f, queryID(r, "compositeId"))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.Data(w, rows)
}

func (h *Handlers) CompositeAverages(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}
	rows, err := h.analyticsService.CompositeAverages(r.Context(), f)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.Data(w, rows)
}

func (h *Handlers) StaffPerformance(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}
	sortBy := domain.ParseStaffSort(r.URL.Query().Get("sortBy"))
	rows, err := h.analyticsService.StaffPerformance(r.Context(), f, sortBy)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.Data(w, rows)
}

func (h *Handlers) CompositeOverTime(w http.ResponseWriter, r *http.Request) {
	q, ok := parseTimeSeries(w, r)
	if !ok {
		return
	}
	q.CompositeID = queryID(r, "compositeId")
	points, err := h.analyticsService.CompositeOverTime(r.Context(), q)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.Data(w, points)
}

func (h *Handlers) QuestionOverTime(w http.ResponseWriter, r *http.Request) {
	q, ok := parseTimeSeries(w, r)
	if !ok {
		return
	}
	q.QuestionID = queryID(r, "questionId")
	points, err := h.analyticsService.QuestionOverTime(r.Context(), q)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.Data(w, points)
}

func (h *Handlers) QuestionAverage(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}
	avg, err := h.analyticsService.QuestionAverage(r.Context(), f, queryID(r, "questionId"))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.Data(w, avg)
}

func (h *Handlers) AvailableYears(w http.ResponseWriter, r *http.Request) {
	if !allowAllCategories(w, r, auth.PermAnalyticsRead) {
		return
	}
	years, err := h.analyticsService.AvailableYears(r.Context())
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.Data(w, years)
}

func (h *Handlers) YesNoResponses(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}
	rows, err := h.analyticsService.YesNoResponses(r.Context(), f)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.Data(w, rows)
}

func (h *Handlers) LowRated(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}
	rows, err := h.analyticsService.LowRatedByQuestion(r.Context(), queryID(r, "questionId"), f)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.Data(w, rows)
}

// parseReportParams requires a year and a category the caller may read.
func parseReportParams(w http.ResponseWriter, r *http.Request) (int, domain.Category, bool) {
	q := r.URL.Query()
	year, err := domain.ParseYear(q.Get("year"))
	if err != nil {
		response.Error(w, r, err)
		return 0, "", false
	}
	if !allowCategory(w, r, auth.PermAnalyticsRead, q.Get("category")) {
		return 0, "", false
	}
	return year, domain.Category(strings.TrimSpace(q.Get("category"))), true
}

func (h *Handlers) YearlyReport(w http.ResponseWriter, r *http.Request) {
	year, category, ok := parseReportParams(w, r)
	if !ok {
		return
	}
	rep, err := h.reportService.YearlyReport(r.Context(), year, category)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.Data(w, rep)
}

var filenameReplacer = strings.NewReplacer("&", "and", " ", "-")

// ExportYearlyReport streams the yearly report as an .xlsx download. The
// workbook is rendered fully before any byte is written so failures still
// produce a JSON error.
func (h *Handlers) ExportYearlyReport(w http.ResponseWriter, r *http.Request) {
	year, category, ok := parseReportParams(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := h.reportService.ExportYearlyReport(r.Context(), year, category, &buf); err != nil {
		response.Error(w, r, err)
		return
	}

	filename := fmt.Sprintf("feedback-%s-%d.xlsx", filenameReplacer.Replace(string(category)), year)
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		logger.WarnContext(r.Context(), "Failed to write report export", "error", err)
	}
}
