package memory

import (
	"context"
	"sort"
	"time"

	"github.com/diagnosis/guest-feedback/services/feedback/internal/domain"
)

type analyticsRepo struct{ db *DB }

// mean accumulates ratings; avg is nil until a sample is added.
type mean struct {
	sum   int
	count int
}

func (m *mean) add(v int) {
	m.sum += v
	m.count++
}

func (m mean) avg() *float64 {
	if m.count == 0 {
		return nil
	}
	v := float64(m.sum) / float64(m.count)
	return &v
}

// eachRating calls fn for every rating answer of reviews matching f.
func (db *DB) eachRating(f domain.Filter, fn func(r domain.Review, a domain.Answer)) {
	for _, r := range db.reviews {
		if !f.Matches(r.CreatedAt, r.Category) {
			continue
		}
		for _, a := range r.Answers {
			if a.Rating != nil {
				fn(r, a)
			}
		}
	}
}

func (a *analyticsRepo) Stats(_ context.Context, f domain.Filter) (int, *float64, error) {
	a.db.mu.RLock()
	defer a.db.mu.RUnlock()

	var (
		count int
		m     mean
	)
	for _, r := range a.db.reviews {
		if !f.Matches(r.CreatedAt, r.Category) || len(r.Answers) == 0 {
			continue
		}
		count++
		for _, ans := range r.Answers {
			if ans.Rating != nil {
				m.add(*ans.Rating)
			}
		}
	}
	return count, m.avg(), nil
}

func (a *analyticsRepo) QuestionAverages(_ context.Context, f domain.Filter, compositeID string) ([]domain.QuestionAverage, error) {
	a.db.mu.RLock()
	defer a.db.mu.RUnlock()

	var scope map[string]bool
	if compositeID != "" {
		scope = map[string]bool{}
		for _, id := range a.db.composites[compositeID].QuestionIDs {
			scope[id] = true
		}
	}

	sums := map[string]*mean{}
	a.db.eachRating(f, func(_ domain.Review, ans domain.Answer) {
		if scope != nil && !scope[ans.QuestionID] {
			return
		}
		if _, ok := a.db.questions[ans.QuestionID]; !ok {
			return
		}
		if sums[ans.QuestionID] == nil {
			sums[ans.QuestionID] = &mean{}
		}
		sums[ans.QuestionID].add(*ans.Rating)
	})

	out := []domain.QuestionAverage{}
	for id, m := range sums {
		out = append(out, domain.QuestionAverage{QuestionID: id, Name: a.db.questions[id].Text, Value: *m.avg()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].QuestionID < out[j].QuestionID
	})
	return out, nil
}

func (a *analyticsRepo) CompositeAverages(_ context.Context, f domain.Filter) ([]domain.CompositeAverage, error) {
	a.db.mu.RLock()
	defer a.db.mu.RUnlock()

	out := []domain.CompositeAverage{}
	for _, c := range a.db.sortedComposites(f.Category) {
		members := toSet(c.QuestionIDs)
		var m mean
		a.db.eachRating(f, func(_ domain.Review, ans domain.Answer) {
			if members[ans.QuestionID] {
				m.add(*ans.Rating)
			}
		})
		if avg := m.avg(); avg != nil {
			out = append(out, domain.CompositeAverage{CompositeID: c.ID, Name: c.Name, Value: *avg})
		}
	}
	return out, nil
}

func (a *analyticsRepo) StaffPerformance(_ context.Context, f domain.Filter) ([]domain.StaffPerformance, error) {
	a.db.mu.RLock()
	defer a.db.mu.RUnlock()

	type acc struct {
		reviews int
		m       mean
	}
	byStaff := map[string]*acc{}
	for _, r := range a.db.reviews {
		if !f.Matches(r.CreatedAt, r.Category) || len(r.Answers) == 0 {
			continue
		}
		if _, ok := a.db.users[r.StaffID]; !ok {
			continue
		}
		s := byStaff[r.StaffID]
		if s == nil {
			s = &acc{}
			byStaff[r.StaffID] = s
		}
		s.reviews++
		for _, ans := range r.Answers {
			if ans.Rating != nil {
				s.m.add(*ans.Rating)
			}
		}
	}

	out := []domain.StaffPerformance{}
	for id, s := range byStaff {
		out = append(out, domain.StaffPerformance{
			StaffID:       id,
			StaffName:     a.db.users[id].FullName,
			TotalReviews:  s.reviews,
			AverageRating: s.m.avg(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StaffName < out[j].StaffName })
	return out, nil
}

func (a *analyticsRepo) TimeSeries(_ context.Context, q domain.TimeSeriesQuery) ([]domain.TimePoint, error) {
	a.db.mu.RLock()
	defer a.db.mu.RUnlock()

	var scope map[string]bool
	switch {
	case q.CompositeID != "":
		scope = toSet(a.db.composites[q.CompositeID].QuestionIDs)
	case q.QuestionID != "":
		scope = map[string]bool{q.QuestionID: true}
	}

	from, to := q.Range()
	buckets := map[string]*mean{}
	for _, r := range a.db.reviews {
		if r.CreatedAt.Before(from) || !r.CreatedAt.Before(to) {
			continue
		}
		if q.Category != "" && r.Category != q.Category {
			continue
		}
		for _, ans := range r.Answers {
			if ans.Rating == nil || (scope != nil && !scope[ans.QuestionID]) {
				continue
			}
			label := q.Bucket(r.CreatedAt)
			if buckets[label] == nil {
				buckets[label] = &mean{}
			}
			buckets[label].add(*ans.Rating)
		}
	}

	out := []domain.TimePoint{}
	for label, m := range buckets {
		out = append(out, domain.TimePoint{Name: label, Value: *m.avg()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (a *analyticsRepo) QuestionAverage(_ context.Context, f domain.Filter, questionID string) (*float64, error) {
	a.db.mu.RLock()
	defer a.db.mu.RUnlock()

	var m mean
	a.db.eachRating(f, func(_ domain.Review, ans domain.Answer) {
		if ans.QuestionID == questionID {
			m.add(*ans.Rating)
		}
	})
	return m.avg(), nil
}

func (a *analyticsRepo) AvailableYears(_ context.Context) ([]int, error) {
	a.db.mu.RLock()
	defer a.db.mu.RUnlock()

	seen := map[int]bool{}
	out := []int{}
	for _, r := range a.db.reviews {
		y := r.CreatedAt.UTC().Year()
		if !seen[y] {
			seen[y] = true
			out = append(out, y)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out, nil
}

func (a *analyticsRepo) YesNoResponses(_ context.Context, f domain.Filter) ([]domain.YesNoResponse, error) {
	a.db.mu.RLock()
	defer a.db.mu.RUnlock()

	out := []domain.YesNoResponse{}
	for _, r := range a.db.reviews {
		if !f.Matches(r.CreatedAt, r.Category) {
			continue
		}
		items := []domain.YesNoItem{}
		for _, ans := range r.Answers {
			if ans.Kind != domain.QuestionYesNo || ans.AnswerBoolean == nil {
				continue
			}
			items = append(items, domain.YesNoItem{
				QuestionID:   ans.QuestionID,
				QuestionText: a.db.questions[ans.QuestionID].Text,
				Answer:       *ans.AnswerBoolean,
				AnswerText:   ans.AnswerText,
			})
		}
		if len(items) == 0 && r.Description == "" {
			continue
		}
		out = append(out, domain.YesNoResponse{
			ReviewID:     r.ID,
			CreatedAt:    r.CreatedAt,
			Category:     r.Category,
			Description:  r.Description,
			GuestInfo:    r.GuestInfo,
			YesNoAnswers: items,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ReviewID < out[j].ReviewID
	})
	return out, nil
}

func (a *analyticsRepo) LowRatedByQuestion(_ context.Context, questionID string, f domain.Filter, threshold int) ([]domain.LowRatedReview, error) {
	a.db.mu.RLock()
	defer a.db.mu.RUnlock()

	q, ok := a.db.questions[questionID]
	if !ok {
		return []domain.LowRatedReview{}, nil
	}

	out := []domain.LowRatedReview{}
	a.db.eachRating(f, func(r domain.Review, ans domain.Answer) {
		if ans.QuestionID != questionID || *ans.Rating > threshold {
			return
		}
		var staffName string
		if u, ok := a.db.users[r.StaffID]; ok {
			staffName = u.FullName
		}
		out = append(out, domain.LowRatedReview{
			ReviewID:     r.ID,
			Date:         r.CreatedAt,
			QuestionText: q.Text,
			Point:        *ans.Rating,
			GuestName:    r.GuestInfo.Name,
			Email:        r.GuestInfo.Email,
			RoomNumber:   r.GuestInfo.RoomNumber,
			Phone:        r.GuestInfo.Phone,
			StaffName:    staffName,
			Description:  r.Description,
			AnswerText:   ans.AnswerText,
		})
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Point != out[j].Point {
			return out[i].Point < out[j].Point
		}
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ReviewID < out[j].ReviewID
	})
	return out, nil
}

type monthKey struct {
	id    string
	month int
}

func monthlyRows(sums map[monthKey]*mean, name func(id string) string) []domain.MonthlyAverage {
	out := make([]domain.MonthlyAverage, 0, len(sums))
	for k, m := range sums {
		out = append(out, domain.MonthlyAverage{SubjectID: k.id, Name: name(k.id), Month: k.month, Value: *m.avg()})
	}
	return out
}

func addMonthly(sums map[monthKey]*mean, id string, at time.Time, rating int) {
	k := monthKey{id: id, month: int(at.UTC().Month())}
	if sums[k] == nil {
		sums[k] = &mean{}
	}
	sums[k].add(rating)
}

func (a *analyticsRepo) MonthlyQuestionAverages(_ context.Context, f domain.Filter) ([]domain.MonthlyAverage, error) {
	a.db.mu.RLock()
	defer a.db.mu.RUnlock()

	sums := map[monthKey]*mean{}
	a.db.eachRating(f, func(r domain.Review, ans domain.Answer) {
		if _, ok := a.db.questions[ans.QuestionID]; ok {
			addMonthly(sums, ans.QuestionID, r.CreatedAt, *ans.Rating)
		}
	})
	out := monthlyRows(sums, func(id string) string { return a.db.questions[id].Text })
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Month < out[j].Month
	})
	return out, nil
}

func (a *analyticsRepo) MonthlyCompositeAverages(_ context.Context, f domain.Filter) ([]domain.MonthlyAverage, error) {
	a.db.mu.RLock()
	defer a.db.mu.RUnlock()

	composites := a.db.sortedComposites(f.Category)
	rank := make(map[string]int, len(composites))
	sums := map[monthKey]*mean{}
	for i, c := range composites {
		rank[c.ID] = i
		members := toSet(c.QuestionIDs)
		a.db.eachRating(f, func(r domain.Review, ans domain.Answer) {
			if members[ans.QuestionID] {
				addMonthly(sums, c.ID, r.CreatedAt, *ans.Rating)
			}
		})
	}
	out := monthlyRows(sums, func(id string) string { return a.db.composites[id].Name })
	sort.Slice(out, func(i, j int) bool {
		if rank[out[i].SubjectID] != rank[out[j].SubjectID] {
			return rank[out[i].SubjectID] < rank[out[j].SubjectID]
		}
		return out[i].Month < out[j].Month
	})
	return out, nil
}

func (a *analyticsRepo) ReviewRatings(_ context.Context, f domain.Filter) ([]domain.ReviewRatings, error) {
	a.db.mu.RLock()
	defer a.db.mu.RUnlock()

	out := []domain.ReviewRatings{}
	for _, r := range a.db.reviews {
		if !f.Matches(r.CreatedAt, r.Category) {
			continue
		}
		rr := domain.ReviewRatings{
			ReviewID:   r.ID,
			CreatedAt:  r.CreatedAt,
			GuestName:  r.GuestInfo.Name,
			RoomNumber: r.GuestInfo.RoomNumber,
			Ratings:    map[string]int{},
		}
		for _, ans := range r.Answers {
			if ans.Rating != nil {
				rr.Ratings[ans.QuestionID] = *ans.Rating
			}
		}
		out = append(out, rr)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ReviewID < out[j].ReviewID
	})
	return out, nil
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
