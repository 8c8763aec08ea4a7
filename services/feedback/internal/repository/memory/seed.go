package memory

import "github.com/diagnosis/guest-feedback/services/feedback/internal/domain"

type seedQuestion struct {
	text    string
	kind    domain.QuestionType
	primary bool
}

type seedComposite struct {
	name    string
	members []int // indexes into the category's question list
}

var seedCatalog = map[domain.Category]struct {
	questions  []seedQuestion
	composites []seedComposite
}{
	domain.CategoryRoom: {
		questions: []seedQuestion{
			{"How clean was your room?", domain.QuestionRating, true},
			{"How comfortable was your bed?", domain.QuestionRating, false},
			{"How was the check-in experience?", domain.QuestionRating, true},
			{"How friendly was the front desk staff?", domain.QuestionRating, false},
			{"Did anything in the room need repair?", domain.QuestionYesNo, false},
		},
		composites: []seedComposite{
			{"Room quality", []int{0, 1}},
			{"Service", []int{2, 3}},
		},
	},
	domain.CategoryFnB: {
		questions: []seedQuestion{
			{"How would you rate the food?", domain.QuestionRating, true},
			{"How would you rate the service?", domain.QuestionRating, true},
			{"How would you rate the ambience?", domain.QuestionRating, false},
			{"Would you dine with us again?", domain.QuestionYesNo, false},
		},
		composites: []seedComposite{
			{"Dining experience", []int{0, 1, 2}},
		},
	},
	domain.CategoryCFC: {
		questions: []seedQuestion{
			{"How satisfied were you with the facilities?", domain.QuestionRating, true},
			{"How helpful was our staff?", domain.QuestionRating, false},
			{"Was the booking process easy?", domain.QuestionYesNo, false},
		},
		composites: []seedComposite{
			{"Overall", []int{0, 1}},
		},
	},
}

// Seed loads a starter catalog so a memory-backed server can serve forms.
func (db *DB) Seed() {
	for category, set := range seedCatalog {
		ids := make([]string, len(set.questions))
		for i, sq := range set.questions {
			q := db.AddQuestion(domain.Question{
				Text:                    sq.text,
				Order:                   i + 1,
				IsActive:                true,
				Category:                category,
				QuestionType:            sq.kind,
				IsPrimaryIssueIndicator: sq.primary,
			})
			ids[i] = q.ID
		}
		for i, sc := range set.composites {
			members := make([]string, len(sc.members))
			for j, idx := range sc.members {
				members[j] = ids[idx]
			}
			db.AddComposite(domain.Composite{Name: sc.name, Category: category, Order: i + 1, QuestionIDs: members})
		}
	}
}
