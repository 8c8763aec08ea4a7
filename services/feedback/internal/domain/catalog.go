package domain

type QuestionType string

const (
	QuestionRating QuestionType = "rating"
	QuestionYesNo  QuestionType = "yes_no"
)

type Question struct {
	ID                      string       `json:"id"`
	Text                    string       `json:"text"`
	Order                   int          `json:"order"`
	IsActive                bool         `json:"isActive"`
	Category                Category     `json:"category"`
	QuestionType            QuestionType `json:"questionType"`
	IsPrimaryIssueIndicator bool         `json:"isPrimaryIssueIndicator"`
}

// Composite is a named, ordered group of questions whose ratings are pooled.
type Composite struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Category    Category `json:"category"`
	Order       int      `json:"order"`
	QuestionIDs []string `json:"questions"`
}
