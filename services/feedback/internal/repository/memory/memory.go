// Package memory keeps every repository in process. It backs
// STORE_DRIVER=memory and the service tests, and aggregates in Go the way the
// Postgres repositories aggregate in SQL.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/diagnosis/guest-feedback/services/feedback/internal/domain"
	"github.com/diagnosis/guest-feedback/services/feedback/internal/repository"
)

type DB struct {
	mu  sync.RWMutex
	now func() time.Time

	users      map[string]*domain.User
	tokens     map[string]*domain.GuestToken // keyed by secret
	questions  map[string]domain.Question
	composites map[string]domain.Composite
	reviews    []domain.Review
}

func New() *DB {
	return &DB{
		now:        func() time.Time { return time.Now().UTC() },
		users:      make(map[string]*domain.User),
		tokens:     make(map[string]*domain.GuestToken),
		questions:  make(map[string]domain.Question),
		composites: make(map[string]domain.Composite),
	}
}

// SetClock replaces the time source; tests use it to create back-dated rows.
func (db *DB) SetClock(now func() time.Time) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.now = now
}

// Store exposes db through the repository interfaces.
func (db *DB) Store() *repository.Store {
	return &repository.Store{
		Tokens:    &tokenRepo{db},
		Reviews:   &reviewRepo{db},
		Catalog:   &catalogRepo{db},
		Users:     &userRepo{db},
		Analytics: &analyticsRepo{db},
	}
}

func (db *DB) AddQuestion(q domain.Question) domain.Question {
	db.mu.Lock()
	defer db.mu.Unlock()
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	db.questions[q.ID] = q
	return q
}

func (db *DB) AddComposite(c domain.Composite) domain.Composite {
	db.mu.Lock()
	defer db.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.QuestionIDs = append([]string(nil), c.QuestionIDs...)
	db.composites[c.ID] = c
	return c
}

// AddReview stores r as given, keeping its CreatedAt when set.
func (db *DB) AddReview(r domain.Review) domain.Review {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.insertLocked(r)
}

func (db *DB) insertLocked(r domain.Review) domain.Review {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = db.now()
	}
	r.Answers = append([]domain.Answer{}, r.Answers...)
	db.reviews = append(db.reviews, r)
	return r
}

type tokenRepo struct{ db *DB }

func (r *tokenRepo) Create(_ context.Context, t *domain.GuestToken) (*domain.GuestToken, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.tokens[t.Token]; ok {
		return nil, repository.ErrDuplicate
	}
	created := *t
	created.ID = uuid.NewString()
	created.IsUsed = false
	created.UsedAt = nil
	created.CreatedAt = r.db.now()
	r.db.tokens[t.Token] = &created

	out := created
	return &out, nil
}

func (r *tokenRepo) FindRedeemable(_ context.Context, token string) (*domain.GuestToken, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	t, ok := r.db.tokens[token]
	if !ok || !t.Redeemable(r.db.now()) {
		return nil, nil
	}
	out := *t
	return &out, nil
}

func (r *tokenRepo) PurgeExpired(_ context.Context) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	now := r.db.now()
	var n int64
	for secret, t := range r.db.tokens {
		if !now.Before(t.ExpiresAt) {
			delete(r.db.tokens, secret)
			n++
		}
	}
	return n, nil
}

type reviewRepo struct{ db *DB }

func (r *reviewRepo) Create(_ context.Context, rev *domain.Review) (*domain.Review, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	in := *rev
	in.ID = ""
	in.CreatedAt = time.Time{}
	out := r.db.insertLocked(in)
	return &out, nil
}

func (r *reviewRepo) CreateWithToken(_ context.Context, token string, rev *domain.Review) (*domain.Review, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	now := r.db.now()
	t, ok := r.db.tokens[token]
	if !ok || !t.Redeemable(now) {
		return nil, repository.ErrTokenNotRedeemable
	}
	if t.Category != rev.Category {
		return nil, repository.ErrTokenCategoryMismatch
	}

	t.IsUsed = true
	t.UsedAt = &now

	in := *rev
	in.ID = ""
	in.CreatedAt = time.Time{}
	in.StaffID = t.StaffID
	out := r.db.insertLocked(in)
	return &out, nil
}

type catalogRepo struct{ db *DB }

func (r *catalogRepo) ListQuestions(_ context.Context, category domain.Category) ([]domain.Question, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	out := []domain.Question{}
	for _, q := range r.db.questions {
		if q.Category == category && q.IsActive {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Text < out[j].Text
	})
	return out, nil
}

func (r *catalogRepo) GetQuestions(_ context.Context, ids []string) (map[string]domain.Question, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	out := make(map[string]domain.Question, len(ids))
	for _, id := range ids {
		if q, ok := r.db.questions[id]; ok {
			out[id] = q
		}
	}
	return out, nil
}

func (r *catalogRepo) GetQuestion(_ context.Context, id string) (*domain.Question, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	q, ok := r.db.questions[id]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

func (r *catalogRepo) GetComposite(_ context.Context, id string) (*domain.Composite, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	c, ok := r.db.composites[id]
	if !ok {
		return nil, nil
	}
	c.QuestionIDs = append([]string{}, c.QuestionIDs...)
	return &c, nil
}

func (r *catalogRepo) ListComposites(_ context.Context, category domain.Category) ([]domain.Composite, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return r.db.sortedComposites(category), nil
}

func (db *DB) sortedComposites(category domain.Category) []domain.Composite {
	out := []domain.Composite{}
	for _, c := range db.composites {
		if category == "" || c.Category == category {
			c.QuestionIDs = append([]string{}, c.QuestionIDs...)
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Name < out[j].Name
	})
	return out
}

type userRepo struct{ db *DB }

func (r *userRepo) Create(_ context.Context, u *domain.User) (*domain.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, existing := range r.db.users {
		if existing.Username == u.Username {
			return nil, repository.ErrDuplicate
		}
	}
	created := *u
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if created.Permissions == nil {
		created.Permissions = []string{}
	}
	created.CreatedAt = r.db.now()
	r.db.users[created.ID] = &created

	out := created
	return &out, nil
}

func (r *userRepo) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	for _, u := range r.db.users {
		if u.Username == username {
			out := *u
			return &out, nil
		}
	}
	return nil, nil
}

func (r *userRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	u, ok := r.db.users[id]
	if !ok {
		return nil, nil
	}
	out := *u
	return &out, nil
}
