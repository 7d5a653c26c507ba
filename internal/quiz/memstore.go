package quiz

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

type memState struct {
	quizzes   map[string]Quiz
	questions map[string][]Question
	attempts  map[string]Attempt
	responses map[string]map[string]Response // attemptID -> questionID -> response
	grades    map[string]Grade
	events    []Event
}

func newMemState() *memState {
	return &memState{
		quizzes:   map[string]Quiz{},
		questions: map[string][]Question{},
		attempts:  map[string]Attempt{},
		responses: map[string]map[string]Response{},
		grades:    map[string]Grade{},
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.quizzes {
		c.quizzes[k] = v
	}
	for k, v := range s.questions {
		c.questions[k] = v
	}
	for k, v := range s.attempts {
		c.attempts[k] = v
	}
	for k, inner := range s.responses {
		m := make(map[string]Response, len(inner))
		for q, r := range inner {
			m[q] = r
		}
		c.responses[k] = m
	}
	for k, v := range s.grades {
		c.grades[k] = v
	}
	c.events = append([]Event(nil), s.events...)
	return c
}

// MemoryStore keeps everything in process. Transactions run one at a time
// against a copy of the state that replaces the live state on success.
type MemoryStore struct {
	txMu  sync.Mutex
	mu    sync.RWMutex
	state *memState
}

func NewInMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

func (m *MemoryStore) Tx(ctx context.Context, fn func(tx Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	staged := m.state.clone()
	m.mu.RUnlock()

	if err := fn(&memTx{st: staged}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.state = staged
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) read() *memTx {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &memTx{st: m.state}
}

func (m *MemoryStore) LoadQuiz(ctx context.Context, quizID string) (Quiz, error) {
	return m.read().LoadQuiz(ctx, quizID)
}

func (m *MemoryStore) LoadQuestions(ctx context.Context, quizID string) ([]Question, error) {
	return m.read().LoadQuestions(ctx, quizID)
}

func (m *MemoryStore) SaveQuiz(ctx context.Context, q Quiz, questions []Question) error {
	return m.Tx(ctx, func(tx Store) error { return tx.SaveQuiz(ctx, q, questions) })
}

func (m *MemoryStore) CountAttempts(ctx context.Context, quizID, studentID string) (int, error) {
	return m.read().CountAttempts(ctx, quizID, studentID)
}

func (m *MemoryStore) CreateAttempt(ctx context.Context, a Attempt) (Attempt, error) {
	var out Attempt
	err := m.Tx(ctx, func(tx Store) error {
		var err error
		out, err = tx.CreateAttempt(ctx, a)
		return err
	})
	return out, err
}

func (m *MemoryStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	return m.read().GetAttempt(ctx, id)
}

// GetAttemptForUpdate needs no row lock: transactions already run one at a time.
func (m *MemoryStore) GetAttemptForUpdate(ctx context.Context, id string) (Attempt, error) {
	return m.read().GetAttempt(ctx, id)
}

func (m *MemoryStore) UpdateAttempt(ctx context.Context, a Attempt) error {
	return m.Tx(ctx, func(tx Store) error { return tx.UpdateAttempt(ctx, a) })
}

func (m *MemoryStore) ListAttempts(ctx context.Context, opts ListOpts) ([]Attempt, error) {
	return m.read().ListAttempts(ctx, opts)
}

func (m *MemoryStore) UpsertResponse(ctx context.Context, r Response) (Response, error) {
	var out Response
	err := m.Tx(ctx, func(tx Store) error {
		var err error
		out, err = tx.UpsertResponse(ctx, r)
		return err
	})
	return out, err
}

func (m *MemoryStore) ListResponses(ctx context.Context, attemptID string) ([]Response, error) {
	return m.read().ListResponses(ctx, attemptID)
}

func (m *MemoryStore) UpsertGrade(ctx context.Context, g Grade) error {
	return m.Tx(ctx, func(tx Store) error { return tx.UpsertGrade(ctx, g) })
}

func (m *MemoryStore) GetGrade(ctx context.Context, attemptID string) (Grade, error) {
	return m.read().GetGrade(ctx, attemptID)
}

func (m *MemoryStore) DeleteGrade(ctx context.Context, attemptID string) error {
	return m.Tx(ctx, func(tx Store) error { return tx.DeleteGrade(ctx, attemptID) })
}

func (m *MemoryStore) AppendEvent(ctx context.Context, e Event) error {
	return m.Tx(ctx, func(tx Store) error { return tx.AppendEvent(ctx, e) })
}

func (m *MemoryStore) ListEvents(ctx context.Context, attemptID string) ([]Event, error) {
	return m.read().ListEvents(ctx, attemptID)
}

// memTx operates on a single state snapshot without locking; MemoryStore
// guarantees exclusive access for writes.
type memTx struct {
	st *memState
}

func (t *memTx) Tx(_ context.Context, fn func(tx Store) error) error { return fn(t) }

func (t *memTx) LoadQuiz(_ context.Context, quizID string) (Quiz, error) {
	q, ok := t.st.quizzes[quizID]
	if !ok {
		return Quiz{}, errors.Wrapf(ErrQuizNotFound, "quiz %s", quizID)
	}
	return q, nil
}

func (t *memTx) LoadQuestions(_ context.Context, quizID string) ([]Question, error) {
	if _, ok := t.st.quizzes[quizID]; !ok {
		return nil, errors.Wrapf(ErrQuizNotFound, "quiz %s", quizID)
	}
	return append([]Question(nil), t.st.questions[quizID]...), nil
}

func (t *memTx) SaveQuiz(_ context.Context, q Quiz, questions []Question) error {
	if existing, ok := t.st.quizzes[q.ID]; ok && q.CreatedAt == 0 {
		q.CreatedAt = existing.CreatedAt
	}
	t.st.quizzes[q.ID] = q
	qs := append([]Question(nil), questions...)
	for i := range qs {
		qs[i].QuizID = q.ID
	}
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].Position < qs[j].Position })
	t.st.questions[q.ID] = qs
	return nil
}

func (t *memTx) CountAttempts(_ context.Context, quizID, studentID string) (int, error) {
	n := 0
	for _, a := range t.st.attempts {
		if a.QuizID == quizID && a.StudentID == studentID {
			n++
		}
	}
	return n, nil
}

func (t *memTx) CreateAttempt(_ context.Context, a Attempt) (Attempt, error) {
	if _, ok := t.st.quizzes[a.QuizID]; !ok {
		return Attempt{}, errors.Wrapf(ErrQuizNotFound, "quiz %s", a.QuizID)
	}
	for _, x := range t.st.attempts {
		if x.ID == a.ID || (x.QuizID == a.QuizID && x.StudentID == a.StudentID && x.Number == a.Number) {
			return Attempt{}, ErrDuplicateAttempt
		}
	}
	a.QuestionIDs = append([]string(nil), a.QuestionIDs...)
	t.st.attempts[a.ID] = a
	return a, nil
}

func (t *memTx) GetAttempt(_ context.Context, id string) (Attempt, error) {
	a, ok := t.st.attempts[id]
	if !ok {
		return Attempt{}, errors.Wrapf(ErrAttemptNotFound, "attempt %s", id)
	}
	return a, nil
}

func (t *memTx) GetAttemptForUpdate(ctx context.Context, id string) (Attempt, error) {
	return t.GetAttempt(ctx, id)
}

func (t *memTx) UpdateAttempt(_ context.Context, a Attempt) error {
	if _, ok := t.st.attempts[a.ID]; !ok {
		return errors.Wrapf(ErrAttemptNotFound, "attempt %s", a.ID)
	}
	t.st.attempts[a.ID] = a
	return nil
}

func (t *memTx) ListAttempts(_ context.Context, opts ListOpts) ([]Attempt, error) {
	out := make([]Attempt, 0)
	for _, a := range t.st.attempts {
		if opts.QuizID != "" && a.QuizID != opts.QuizID {
			continue
		}
		if opts.StudentID != "" && a.StudentID != opts.StudentID {
			continue
		}
		if opts.Status != "" && a.Status != opts.Status {
			continue
		}
		if opts.DeadlineBefore > 0 && (a.DeadlineAt == 0 || a.DeadlineAt >= opts.DeadlineBefore) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt != out[j].StartedAt {
			return out[i].StartedAt < out[j].StartedAt
		}
		if out[i].Number != out[j].Number {
			return out[i].Number < out[j].Number
		}
		return out[i].ID < out[j].ID
	})
	return page(out, opts.Limit, opts.Offset), nil
}

func page(in []Attempt, limit, offset int) []Attempt {
	offset = max(offset, 0)
	if offset > len(in) {
		return []Attempt{}
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}

func (t *memTx) UpsertResponse(_ context.Context, r Response) (Response, error) {
	if _, ok := t.st.attempts[r.AttemptID]; !ok {
		return Response{}, errors.Wrapf(ErrAttemptNotFound, "attempt %s", r.AttemptID)
	}
	byQ, ok := t.st.responses[r.AttemptID]
	if !ok {
		byQ = map[string]Response{}
		t.st.responses[r.AttemptID] = byQ
	}
	if prev, ok := byQ[r.QuestionID]; ok {
		r.ID = prev.ID
	}
	byQ[r.QuestionID] = r
	return r, nil
}

func (t *memTx) ListResponses(_ context.Context, attemptID string) ([]Response, error) {
	byQ := t.st.responses[attemptID]
	out := make([]Response, 0, len(byQ))
	for _, r := range byQ {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

func (t *memTx) UpsertGrade(_ context.Context, g Grade) error {
	if _, ok := t.st.attempts[g.AttemptID]; !ok {
		return errors.Wrapf(ErrAttemptNotFound, "attempt %s", g.AttemptID)
	}
	t.st.grades[g.AttemptID] = g
	return nil
}

func (t *memTx) GetGrade(_ context.Context, attemptID string) (Grade, error) {
	g, ok := t.st.grades[attemptID]
	if !ok {
		return Grade{}, errors.Wrapf(ErrGradeNotFound, "attempt %s", attemptID)
	}
	return g, nil
}

func (t *memTx) DeleteGrade(_ context.Context, attemptID string) error {
	delete(t.st.grades, attemptID)
	return nil
}

func (t *memTx) AppendEvent(_ context.Context, e Event) error {
	t.st.events = append(t.st.events, e)
	return nil
}

func (t *memTx) ListEvents(_ context.Context, attemptID string) ([]Event, error) {
	out := make([]Event, 0)
	for _, e := range t.st.events {
		if e.AttemptID == attemptID {
			out = append(out, e)
		}
	}
	return out, nil
}
