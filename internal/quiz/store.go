package quiz

import (
	"context"
	"sync"
)

// Store is the persistence surface the engine needs. Implementations must
// make CreateAttempt fail with ErrDuplicateAttempt when the attempt number is
// already taken for the (quiz, student) pair, and must run Tx bodies
// all-or-nothing. Inside Tx only the Store handed to fn may be used.
type Store interface {
	LoadQuiz(ctx context.Context, quizID string) (Quiz, error)
	LoadQuestions(ctx context.Context, quizID string) ([]Question, error) // ordered by position
	SaveQuiz(ctx context.Context, q Quiz, questions []Question) error

	CountAttempts(ctx context.Context, quizID, studentID string) (int, error)
	CreateAttempt(ctx context.Context, a Attempt) (Attempt, error)
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	// GetAttemptForUpdate reads an attempt and holds it against concurrent
	// writers until the surrounding Tx ends. Every state transition reads
	// the attempt through it.
	GetAttemptForUpdate(ctx context.Context, id string) (Attempt, error)
	UpdateAttempt(ctx context.Context, a Attempt) error
	ListAttempts(ctx context.Context, opts ListOpts) ([]Attempt, error)

	// UpsertResponse replaces the response for (AttemptID, QuestionID),
	// keeping the id of the first write.
	UpsertResponse(ctx context.Context, r Response) (Response, error)
	ListResponses(ctx context.Context, attemptID string) ([]Response, error)

	// UpsertGrade replaces the grade keyed by AttemptID.
	UpsertGrade(ctx context.Context, g Grade) error
	GetGrade(ctx context.Context, attemptID string) (Grade, error)
	DeleteGrade(ctx context.Context, attemptID string) error

	AppendEvent(ctx context.Context, e Event) error
	ListEvents(ctx context.Context, attemptID string) ([]Event, error)

	Tx(ctx context.Context, fn func(tx Store) error) error
}

// Locker serializes work on a key across callers.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// KeyedMutex is an in-process Locker.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: map[string]*keyLock{}}
}

func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.ch
				k.release(key, l)
			})
		}, nil
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}
}

func (k *KeyedMutex) release(key string, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

func attemptKey(quizID, studentID string) string {
	return "quiz:" + quizID + ":student:" + studentID
}
