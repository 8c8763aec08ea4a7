package domain

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/diagnosis/guest-feedback/pkg/apperr"
)

const (
	dateLayout = "2006-01-02"

	// LowRatingThreshold is the highest rating reported as low.
	LowRatingThreshold = 5

	MinReportYear = 1970
	MaxReportYear = 9999
)

// Filter narrows analytics to an inclusive UTC date range and a category.
// Nil bounds and an empty category mean "unbounded".
type Filter struct {
	Start    *time.Time `json:"start,omitempty"`
	End      *time.Time `json:"end,omitempty"`
	Category Category   `json:"category,omitempty"`
}

// ParseDate parses YYYY-MM-DD as midnight UTC.
func ParseDate(field, raw string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, apperr.ValidationField(field, "invalid date, expected YYYY-MM-DD")
	}
	return t, nil
}

// EndOfDay returns the last millisecond of t's UTC day.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), time.UTC)
}

func NewFilter(startDate, endDate, category string) (Filter, error) {
	var f Filter
	if startDate != "" {
		start, err := ParseDate("startDate", startDate)
		if err != nil {
			return f, err
		}
		f.Start = &start
	}
	if endDate != "" {
		end, err := ParseDate("endDate", endDate)
		if err != nil {
			return f, err
		}
		end = EndOfDay(end)
		f.End = &end
	}
	cat, err := ParseOptionalCategory(category)
	if err != nil {
		return f, err
	}
	f.Category = cat
	return f, nil
}

// YearFilter covers the whole UTC calendar year.
func YearFilter(year int, category Category) Filter {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := EndOfDay(time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC))
	return Filter{Start: &start, End: &end, Category: category}
}

// Matches reports whether a review created at t in category c passes the filter.
func (f Filter) Matches(t time.Time, c Category) bool {
	if f.Start != nil && t.Before(*f.Start) {
		return false
	}
	if f.End != nil && t.After(*f.End) {
		return false
	}
	return f.Category == "" || f.Category == c
}

type Period string

const (
	PeriodMonthly Period = "Monthly"
	PeriodWeekly  Period = "Weekly"
)

// TimeSeriesQuery selects the reviews of one year (or one month of it for
// weekly series) and the scope whose ratings are averaged per bucket.
type TimeSeriesQuery struct {
	Year        int      `json:"year"`
	Period      Period   `json:"period"`
	Month       *int     `json:"month,omitempty"` // 0-11, weekly only
	Category    Category `json:"category,omitempty"`
	CompositeID string   `json:"compositeId,omitempty"`
	QuestionID  string   `json:"questionId,omitempty"`
}

func ParseYear(raw string) (int, error) {
	year, err := strconv.Atoi(raw)
	if err != nil || year < MinReportYear || year > MaxReportYear {
		return 0, apperr.ValidationField("year", "invalid year")
	}
	return year, nil
}

func NewTimeSeriesQuery(yearRaw, periodRaw, monthRaw, categoryRaw string) (TimeSeriesQuery, error) {
	var q TimeSeriesQuery

	year, err := ParseYear(yearRaw)
	if err != nil {
		return q, err
	}
	q.Year = year

	switch Period(periodRaw) {
	case PeriodMonthly:
		q.Period = PeriodMonthly
	case PeriodWeekly:
		q.Period = PeriodWeekly
		month, err := strconv.Atoi(monthRaw)
		if err != nil || month < 0 || month > 11 {
			return q, apperr.ValidationField("month", "month (0-11) is required for weekly period")
		}
		q.Month = &month
	default:
		return q, apperr.ValidationField("period", "period must be Monthly or Weekly")
	}

	cat, err := ParseOptionalCategory(categoryRaw)
	if err != nil {
		return q, err
	}
	q.Category = cat
	return q, nil
}

// Range returns the half-open UTC interval [from, to) the series covers.
func (q TimeSeriesQuery) Range() (from, to time.Time) {
	if q.Period == PeriodWeekly && q.Month != nil {
		from = time.Date(q.Year, time.Month(*q.Month+1), 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(0, 1, 0)
	}
	from = time.Date(q.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(1, 0, 0)
}

// Bucket labels t for the series period: "01".."12" for months, and the
// Sunday-based week of year "00".."53" for weeks, where days before the
// first Sunday fall in week 00.
func (q TimeSeriesQuery) Bucket(t time.Time) string {
	t = t.UTC()
	if q.Period == PeriodMonthly {
		return fmt.Sprintf("%02d", int(t.Month()))
	}
	return fmt.Sprintf("%02d", SundayWeek(t))
}

func SundayWeek(t time.Time) int {
	yday := t.YearDay() - 1
	return (yday + 7 - int(t.Weekday())) / 7
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

type Stats struct {
	TotalSubmissions int     `json:"totalSubmissions"`
	AverageRating    float64 `json:"averageRating"`
}

type QuestionAverage struct {
	QuestionID string  `json:"questionId"`
	Name       string  `json:"name"`
	Value      float64 `json:"value"`
}

type CompositeAverage struct {
	CompositeID string  `json:"compositeId"`
	Name        string  `json:"name"`
	Value       float64 `json:"value"`
}

type StaffPerformance struct {
	StaffID       string   `json:"staffId"`
	StaffName     string   `json:"staffName"`
	TotalReviews  int      `json:"totalReviews"`
	AverageRating *float64 `json:"averageRating"`
}

type StaffSort string

const (
	SortByReviews StaffSort = "reviews"
	SortByRating  StaffSort = "rating"
)

func ParseStaffSort(raw string) StaffSort {
	if raw == string(SortByRating) {
		return SortByRating
	}
	return SortByReviews
}

type TimePoint struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// SingleQuestionAverage has Name "N/A" and a nil Value when nothing matched.
type SingleQuestionAverage struct {
	QuestionID string   `json:"questionId"`
	Name       string   `json:"name"`
	Value      *float64 `json:"value"`
}

type YesNoItem struct {
	QuestionID   string `json:"questionId"`
	QuestionText string `json:"questionText"`
	Answer       bool   `json:"answer"`
	AnswerText   string `json:"answerText,omitempty"`
}

type YesNoResponse struct {
	ReviewID     string      `json:"reviewId"`
	CreatedAt    time.Time   `json:"createdAt"`
	Category     Category    `json:"category"`
	Description  string      `json:"description,omitempty"`
	GuestInfo    GuestInfo   `json:"guestInfo"`
	YesNoAnswers []YesNoItem `json:"yesNoAnswers"`
}

type LowRatedReview struct {
	ReviewID     string    `json:"reviewId"`
	Date         time.Time `json:"date"`
	QuestionText string    `json:"questionText"`
	Point        int       `json:"point"`
	GuestName    string    `json:"guestName,omitempty"`
	Email        string    `json:"email,omitempty"`
	RoomNumber   string    `json:"roomNumber,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	StaffName    string    `json:"staffName,omitempty"`
	Description  string    `json:"description,omitempty"`
	AnswerText   string    `json:"answerText,omitempty"`
}

// MonthlyAverage is one (month, subject) cell of the yearly report.
type MonthlyAverage struct {
	SubjectID string  `json:"subjectId"`
	Name      string  `json:"name"`
	Month     int     `json:"month"` // 1-12
	Value     float64 `json:"value"`
}

// ReviewRatings is one review with its rating answers keyed by question id.
type ReviewRatings struct {
	ReviewID   string         `json:"reviewId"`
	CreatedAt  time.Time      `json:"createdAt"`
	GuestName  string         `json:"guestName,omitempty"`
	RoomNumber string         `json:"roomNumber,omitempty"`
	Ratings    map[string]int `json:"ratings"`
}

type QuestionHeader struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type DailyRow struct {
	ReviewID        string          `json:"reviewId"`
	Date            time.Time       `json:"date"`
	GuestName       string          `json:"guestName,omitempty"`
	RoomNumber      string          `json:"roomNumber,omitempty"`
	QuestionRatings map[string]*int `json:"questionRatings"`
	Average         *float64        `json:"average"`
}

// MonthlyRow holds twelve formatted averages, "-" where a month has no data.
type MonthlyRow struct {
	Name     string   `json:"name"`
	Averages []string `json:"averages"`
}

type YearlyReport struct {
	Year            int              `json:"year"`
	Category        Category         `json:"category"`
	QuestionHeaders []QuestionHeader `json:"questionHeaders"`
	DailyData       []DailyRow       `json:"dailyData"`
	MonthlyData     struct {
		Questions  []MonthlyRow `json:"questions"`
		Composites []MonthlyRow `json:"composites"`
	} `json:"monthlyData"`
	YearlyData struct {
		Questions  []QuestionAverage  `json:"questions"`
		Composites []CompositeAverage `json:"composites"`
	} `json:"yearlyData"`
}
