package repository

import (
	"strconv"
	"strings"

	"github.com/diagnosis/guest-feedback/services/feedback/internal/domain"
)

// queryBuilder collects WHERE conditions and numbers their placeholders.
type queryBuilder struct {
	conds []string
	args  []any
}

// arg appends v and returns its placeholder.
func (b *queryBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *queryBuilder) where(cond string) {
	b.conds = append(b.conds, cond)
}

// filter applies f to the reviews table aliased as alias. It returns the
// category placeholder, or "" when f has no category.
func (b *queryBuilder) filter(f domain.Filter, alias string) string {
	if f.Start != nil {
		b.where(alias + ".created_at >= " + b.arg(*f.Start))
	}
	if f.End != nil {
		b.where(alias + ".created_at <= " + b.arg(*f.End))
	}
	if f.Category == "" {
		return ""
	}
	p := b.arg(string(f.Category))
	b.where(alias + ".category = " + p)
	return p
}

func (b *queryBuilder) clause() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

const (
	monthBucket = `to_char(r.created_at AT TIME ZONE 'UTC', 'MM')`
	// Sunday-based week of year; days before the first Sunday are week 00.
	weekBucket = `lpad(((extract(doy FROM r.created_at AT TIME ZONE 'UTC')::int - 1 + 7
		- extract(dow FROM r.created_at AT TIME ZONE 'UTC')::int) / 7)::text, 2, '0')`
)

func bucketExpr(p domain.Period) string {
	if p == domain.PeriodWeekly {
		return weekBucket
	}
	return monthBucket
}

func statsQuery(f domain.Filter) (string, []any) {
	b := &queryBuilder{}
	b.filter(f, "r")
	return `SELECT COUNT(DISTINCT r.id), AVG(a.rating)::float8
		FROM reviews r
		JOIN review_answers a ON a.review_id = r.id` + b.clause(), b.args
}

func questionAveragesQuery(f domain.Filter, compositeID string) (string, []any) {
	b := &queryBuilder{}
	b.where("a.rating IS NOT NULL")
	b.filter(f, "r")
	if compositeID != "" {
		b.where("a.question_id IN (SELECT cq.question_id FROM composite_questions cq WHERE cq.composite_id = " + b.arg(compositeID) + ")")
	}
	return `SELECT q.id::text, q.text, AVG(a.rating)::float8
		FROM reviews r
		JOIN review_answers a ON a.review_id = r.id
		JOIN questions q ON q.id = a.question_id` + b.clause() + `
		GROUP BY q.id, q.text
		ORDER BY q.text, q.id`, b.args
}

func compositeAveragesQuery(f domain.Filter) (string, []any) {
	b := &queryBuilder{}
	b.where("a.rating IS NOT NULL")
	if p := b.filter(f, "r"); p != "" {
		b.where("c.category = " + p)
	}
	return `SELECT c.id::text, c.name, AVG(a.rating)::float8
		FROM composites c
		JOIN composite_questions cq ON cq.composite_id = c.id
		JOIN review_answers a ON a.question_id = cq.question_id
		JOIN reviews r ON r.id = a.review_id` + b.clause() + `
		GROUP BY c.id, c.name, c.order_index
		ORDER BY c.order_index, c.name`, b.args
}

func staffPerformanceQuery(f domain.Filter) (string, []any) {
	b := &queryBuilder{}
	b.filter(f, "r")
	return `SELECT r.staff_id::text, u.full_name, COUNT(DISTINCT r.id), AVG(a.rating)::float8
		FROM reviews r
		JOIN review_answers a ON a.review_id = r.id
		JOIN users u ON u.id = r.staff_id` + b.clause() + `
		GROUP BY r.staff_id, u.full_name
		ORDER BY u.full_name`, b.args
}

func timeSeriesQuery(q domain.TimeSeriesQuery) (string, []any) {
	from, to := q.Range()
	b := &queryBuilder{}
	b.where("a.rating IS NOT NULL")
	b.where("r.created_at >= " + b.arg(from))
	b.where("r.created_at < " + b.arg(to))
	if q.Category != "" {
		b.where("r.category = " + b.arg(string(q.Category)))
	}
	switch {
	case q.CompositeID != "":
		b.where("a.question_id IN (SELECT cq.question_id FROM composite_questions cq WHERE cq.composite_id = " + b.arg(q.CompositeID) + ")")
	case q.QuestionID != "":
		b.where("a.question_id = " + b.arg(q.QuestionID))
	}
	return `SELECT ` + bucketExpr(q.Period) + ` AS bucket, AVG(a.rating)::float8
		FROM reviews r
		JOIN review_answers a ON a.review_id = r.id` + b.clause() + `
		GROUP BY bucket
		ORDER BY bucket`, b.args
}

func questionAverageQuery(f domain.Filter, questionID string) (string, []any) {
	b := &queryBuilder{}
	b.where("a.question_id = " + b.arg(questionID))
	b.where("a.rating IS NOT NULL")
	b.filter(f, "r")
	return `SELECT AVG(a.rating)::float8
		FROM reviews r
		JOIN review_answers a ON a.review_id = r.id` + b.clause(), b.args
}

func yesNoResponsesQuery(f domain.Filter) (string, []any) {
	b := &queryBuilder{}
	b.filter(f, "r")
	return `SELECT r.id::text, r.created_at, r.category, COALESCE(r.description, ''),
		       COALESCE(r.guest_name, ''), COALESCE(r.guest_phone, ''),
		       COALESCE(r.guest_room_number, ''), COALESCE(r.guest_email, ''),
		       COALESCE(json_agg(json_build_object(
		           'questionId', q.id,
		           'questionText', q.text,
		           'answer', a.answer_boolean,
		           'answerText', COALESCE(a.answer_text, '')
		       ) ORDER BY a.position) FILTER (WHERE a.kind = 'yes_no'), '[]'::json)
		FROM reviews r
		LEFT JOIN review_answers a ON a.review_id = r.id
		LEFT JOIN questions q ON q.id = a.question_id` + b.clause() + `
		GROUP BY r.id
		HAVING COUNT(*) FILTER (WHERE a.kind = 'yes_no') > 0 OR COALESCE(r.description, '') <> ''
		ORDER BY r.created_at DESC, r.id`, b.args
}

func lowRatedQuery(questionID string, f domain.Filter, threshold int) (string, []any) {
	b := &queryBuilder{}
	b.where("a.question_id = " + b.arg(questionID))
	b.where("a.rating IS NOT NULL")
	b.where("a.rating <= " + b.arg(threshold))
	b.filter(f, "r")
	return `SELECT r.id::text, r.created_at, q.text, a.rating,
		       COALESCE(r.guest_name, ''), COALESCE(r.guest_email, ''),
		       COALESCE(r.guest_room_number, ''), COALESCE(r.guest_phone, ''),
		       COALESCE(u.full_name, ''), COALESCE(r.description, ''), COALESCE(a.answer_text, '')
		FROM reviews r
		JOIN review_answers a ON a.review_id = r.id
		JOIN questions q ON q.id = a.question_id
		LEFT JOIN users u ON u.id = r.staff_id` + b.clause() + `
		ORDER BY a.rating ASC, r.created_at DESC, r.id`, b.args
}

func monthlyQuestionQuery(f domain.Filter) (string, []any) {
	b := &queryBuilder{}
	b.where("a.rating IS NOT NULL")
	b.filter(f, "r")
	return `SELECT q.id::text, q.text, EXTRACT(MONTH FROM r.created_at AT TIME ZONE 'UTC')::int AS month,
		       AVG(a.rating)::float8
		FROM reviews r
		JOIN review_answers a ON a.review_id = r.id
		JOIN questions q ON q.id = a.question_id` + b.clause() + `
		GROUP BY q.id, q.text, month
		ORDER BY q.text, month`, b.args
}

func monthlyCompositeQuery(f domain.Filter) (string, []any) {
	b := &queryBuilder{}
	b.where("a.rating IS NOT NULL")
	if p := b.filter(f, "r"); p != "" {
		b.where("c.category = " + p)
	}
	return `SELECT c.id::text, c.name, EXTRACT(MONTH FROM r.created_at AT TIME ZONE 'UTC')::int AS month,
		       AVG(a.rating)::float8
		FROM composites c
		JOIN composite_questions cq ON cq.composite_id = c.id
		JOIN review_answers a ON a.question_id = cq.question_id
		JOIN reviews r ON r.id = a.review_id` + b.clause() + `
		GROUP BY c.id, c.name, c.order_index, month
		ORDER BY c.order_index, c.name, month`, b.args
}

func reviewRatingsQuery(f domain.Filter) (string, []any) {
	b := &queryBuilder{}
	b.filter(f, "r")
	return `SELECT r.id::text, r.created_at, COALESCE(r.guest_name, ''), COALESCE(r.guest_room_number, ''),
		       COALESCE(json_object_agg(a.question_id::text, a.rating) FILTER (WHERE a.rating IS NOT NULL), '{}'::json)
		FROM reviews r
		LEFT JOIN review_answers a ON a.review_id = r.id` + b.clause() + `
		GROUP BY r.id
		ORDER BY r.created_at ASC, r.id`, b.args
}
