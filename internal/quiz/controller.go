package quiz

import (
	"context"
	"encoding/json"
	"math"
	"math/rand/v2"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/metrics"
)

var tracer = otel.Tracer("mindengage-quiz/quiz")

// GradePublisher receives the grade of every attempt that reaches graded on a
// quiz with a line item. It runs after the commit; its failure is logged only.
type GradePublisher interface {
	PublishGrade(ctx context.Context, q Quiz, g Grade) error
}

// Controller owns attempt state transitions. It is the only writer of
// attempt, response and grade records.
type Controller struct {
	store     Store
	grader    grading.Grader
	locker    Locker
	publisher GradePublisher
	log       *zap.Logger

	now     func() time.Time
	newID   func() string
	shuffle func(n int, swap func(i, j int))

	startRetries int
	sweepWorkers int
}

type ControllerOption func(*Controller)

func WithGrader(g grading.Grader) ControllerOption {
	return func(c *Controller) { c.grader = g }
}

// WithLocker replaces the in-process lock guarding attempt starts.
func WithLocker(l Locker) ControllerOption {
	return func(c *Controller) { c.locker = l }
}

func WithPublisher(p GradePublisher) ControllerOption {
	return func(c *Controller) { c.publisher = p }
}

func WithLogger(l *zap.Logger) ControllerOption {
	return func(c *Controller) { c.log = l }
}

func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) { c.now = now }
}

func WithIDGenerator(f func() string) ControllerOption {
	return func(c *Controller) { c.newID = f }
}

// WithShuffle replaces the permutation used for shuffled and random question sets.
func WithShuffle(f func(n int, swap func(i, j int))) ControllerOption {
	return func(c *Controller) { c.shuffle = f }
}

// WithStartRetries bounds how often Start retries after losing an attempt
// number race.
func WithStartRetries(n int) ControllerOption { return func(c *Controller) { c.startRetries = n } }

func WithSweepWorkers(n int) ControllerOption { return func(c *Controller) { c.sweepWorkers = n } }

func NewController(store Store, opts ...ControllerOption) *Controller {
	c := &Controller{
		store:        store,
		grader:       grading.NewDefaultGrader(),
		locker:       NewKeyedMutex(),
		log:          zap.NewNop(),
		now:          time.Now,
		newID:        uuid.NewString,
		shuffle:      rand.Shuffle,
		startRetries: 5,
		sweepWorkers: 4,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SaveQuiz validates and stores a quiz with its questions, replacing any
// previous definition. Questions without a position keep their list order.
func (c *Controller) SaveQuiz(ctx context.Context, q Quiz, questions []Question) (err error) {
	ctx, span := tracer.Start(ctx, "quiz.SaveQuiz", trace.WithAttributes(attribute.String("quiz.id", q.ID)))
	defer func() { endSpan(span, err) }()

	qs := append([]Question(nil), questions...)
	for i := range qs {
		qs[i].QuizID = q.ID
		if qs[i].Position == 0 {
			qs[i].Position = i + 1
		}
	}
	if err := ValidateQuiz(q, qs); err != nil {
		return err
	}
	if q.CreatedAt == 0 {
		q.CreatedAt = c.now().Unix()
	}
	return c.store.SaveQuiz(ctx, q, qs)
}

// Quiz returns a quiz and its questions. Without keys the questions are in
// student view.
func (c *Controller) Quiz(ctx context.Context, quizID string, withKeys bool) (Quiz, []Question, error) {
	q, err := c.store.LoadQuiz(ctx, quizID)
	if err != nil {
		return Quiz{}, nil, err
	}
	questions, err := c.store.LoadQuestions(ctx, quizID)
	if err != nil {
		return Quiz{}, nil, err
	}
	if !withKeys {
		for i := range questions {
			questions[i] = questions[i].StudentView()
		}
	}
	return q, questions, nil
}

// Start creates the student's next attempt if the attempt policy allows it.
// The count-then-create sequence runs in one transaction under a lock on the
// (quiz, student) pair; the store's uniqueness check on the attempt number
// catches any writer that bypassed the lock, and Start retries with a fresh count.
func (c *Controller) Start(ctx context.Context, quizID, studentID string) (a Attempt, err error) {
	ctx, span := tracer.Start(ctx, "quiz.Start", trace.WithAttributes(
		attribute.String("quiz.id", quizID), attribute.String("student.id", studentID)))
	defer func() { endSpan(span, err) }()

	unlock, err := c.locker.Lock(ctx, attemptKey(quizID, studentID))
	if err != nil {
		metrics.AttemptsStarted.WithLabelValues("error").Inc()
		return Attempt{}, errors.Wrap(err, "lock attempt start")
	}
	defer unlock()

	for i := 0; i <= c.startRetries; i++ {
		a, err = c.tryStart(ctx, quizID, studentID)
		if !errors.Is(err, ErrDuplicateAttempt) {
			break
		}
		c.log.Debug("attempt number taken, retrying",
			zap.String("quiz_id", quizID), zap.String("student_id", studentID), zap.Int("retry", i+1))
	}

	switch code := CodeOf(err); {
	case err == nil:
		metrics.AttemptsStarted.WithLabelValues("created").Inc()
		c.log.Debug("attempt started", zap.String("attempt_id", a.ID), zap.String("quiz_id", quizID),
			zap.String("student_id", studentID), zap.Int("attempt_number", a.Number))
	case code == ErrAttemptsExceeded.Code || code == ErrQuizUnpublished.Code:
		metrics.AttemptsStarted.WithLabelValues("denied").Inc()
		c.log.Info("attempt start denied", zap.String("quiz_id", quizID),
			zap.String("student_id", studentID), zap.String("reason", code))
	default:
		metrics.AttemptsStarted.WithLabelValues("error").Inc()
	}
	return a, err
}

func (c *Controller) tryStart(ctx context.Context, quizID, studentID string) (Attempt, error) {
	var out Attempt
	err := c.store.Tx(ctx, func(tx Store) error {
		q, err := tx.LoadQuiz(ctx, quizID)
		if err != nil {
			return err
		}
		prior, err := tx.CountAttempts(ctx, quizID, studentID)
		if err != nil {
			return err
		}
		if err := CanStartAttempt(q, prior).Err(); err != nil {
			return errors.Wrapf(err, "quiz %s student %s", quizID, studentID)
		}
		questions, err := tx.LoadQuestions(ctx, quizID)
		if err != nil {
			return err
		}

		now := c.now().Unix()
		a := Attempt{
			ID:          c.newID(),
			QuizID:      quizID,
			StudentID:   studentID,
			Number:      prior + 1,
			Status:      StatusInProgress,
			QuestionIDs: c.selectQuestions(q, questions),
			StartedAt:   now,
		}
		if q.TimeLimitSec > 0 {
			a.DeadlineAt = now + int64(q.TimeLimitSec)
		}
		a.MaxScore = Aggregate(a.questionSet(questions), nil, q.PassingPercentage, 0).MaxScore
		a.QuestionsUnanswered = len(a.QuestionIDs)

		if out, err = tx.CreateAttempt(ctx, a); err != nil {
			return err
		}
		return c.appendEvent(ctx, tx, EventAttemptStarted, out)
	})
	return out, err
}

// selectQuestions fixes the attempt's question set: every question in
// position order, permuted when shuffling, cut to a random subset when the
// quiz draws fewer questions than it has.
func (c *Controller) selectQuestions(q Quiz, questions []Question) []string {
	ids := make([]string, len(questions))
	rank := make(map[string]int, len(questions))
	for i, qq := range questions {
		ids[i] = qq.ID
		rank[qq.ID] = i
	}
	subset := q.RandomQuestionCount > 0 && q.RandomQuestionCount < len(ids)
	if q.ShuffleQuestions || subset {
		c.shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	}
	if subset {
		ids = ids[:q.RandomQuestionCount]
		if !q.ShuffleQuestions {
			sort.Slice(ids, func(i, j int) bool { return rank[ids[i]] < rank[ids[j]] })
		}
	}
	return ids
}

// RecordAnswer stores the answer to one question, replacing any earlier one.
// Only in-progress attempts before their deadline accept answers.
func (c *Controller) RecordAnswer(ctx context.Context, attemptID, questionID string, value any) (r Response, err error) {
	ctx, span := tracer.Start(ctx, "quiz.RecordAnswer", trace.WithAttributes(
		attribute.String("attempt.id", attemptID), attribute.String("question.id", questionID)))
	defer func() { endSpan(span, err) }()

	err = c.store.Tx(ctx, func(tx Store) error {
		a, err := tx.GetAttemptForUpdate(ctx, attemptID)
		if err != nil {
			return err
		}
		if a.Status != StatusInProgress {
			return errors.Wrapf(ErrInvalidState, "attempt %s is %s", attemptID, a.Status)
		}
		now := c.now().Unix()
		if a.DeadlineAt > 0 && now > a.DeadlineAt {
			return errors.Wrapf(ErrInvalidState, "attempt %s is past its deadline", attemptID)
		}
		if !a.hasQuestion(questionID) {
			return errors.Wrapf(ErrMalformedResponse, "question %s is not part of attempt %s", questionID, attemptID)
		}
		r, err = tx.UpsertResponse(ctx, Response{
			ID:         c.newID(),
			AttemptID:  attemptID,
			QuestionID: questionID,
			Value:      value,
			UpdatedAt:  now,
		})
		return err
	})
	return r, err
}

// Submit freezes an in-progress attempt and records how long it took. A
// submission after the deadline is stamped at the deadline.
func (c *Controller) Submit(ctx context.Context, attemptID string) (a Attempt, err error) {
	ctx, span := tracer.Start(ctx, "quiz.Submit", trace.WithAttributes(attribute.String("attempt.id", attemptID)))
	defer func() { endSpan(span, err) }()

	err = c.store.Tx(ctx, func(tx Store) error {
		if a, err = tx.GetAttemptForUpdate(ctx, attemptID); err != nil {
			return err
		}
		if a.Status != StatusInProgress {
			return errors.Wrapf(ErrInvalidState, "attempt %s is %s", attemptID, a.Status)
		}
		at := c.now().Unix()
		if a.DeadlineAt > 0 && at > a.DeadlineAt {
			at = a.DeadlineAt
		}
		a.Status = StatusSubmitted
		a.SubmittedAt = at
		a.TimeSpentSeconds = at - a.StartedAt
		if a.TimeSpentSeconds < 0 {
			a.TimeSpentSeconds = 0
		}
		if err := tx.UpdateAttempt(ctx, a); err != nil {
			return err
		}
		return c.appendEvent(ctx, tx, EventAttemptSubmitted, a)
	})
	if err == nil {
		c.log.Debug("attempt submitted", zap.String("attempt_id", a.ID), zap.String("quiz_id", a.QuizID),
			zap.String("student_id", a.StudentID), zap.Int64("time_spent_sec", a.TimeSpentSeconds))
	}
	return a, err
}

// AutoGrade grades every response of a submitted or graded attempt and
// re-aggregates. Responses a reviewer already scored keep their points. The
// attempt becomes graded only when nothing awaits manual review; otherwise it
// stays submitted with provisional totals and no grade record.
func (c *Controller) AutoGrade(ctx context.Context, attemptID string) (a Attempt, err error) {
	ctx, span := tracer.Start(ctx, "quiz.AutoGrade", trace.WithAttributes(attribute.String("attempt.id", attemptID)))
	defer func() { endSpan(span, err) }()
	start := time.Now()

	var q Quiz
	var wasGraded bool
	err = c.store.Tx(ctx, func(tx Store) error {
		var set []Question
		if a, q, set, err = c.loadForGrading(ctx, tx, attemptID); err != nil {
			return err
		}
		wasGraded = a.Status == StatusGraded

		responses, err := tx.ListResponses(ctx, attemptID)
		if err != nil {
			return err
		}
		byID := questionsByID(set)
		now := c.now().Unix()
		for i, r := range responses {
			qq, ok := byID[r.QuestionID]
			if !ok || r.ReviewedAt > 0 {
				continue
			}
			res := c.grader.Grade(qq.gradingQ(), r.Value)
			if sameResult(r, res) {
				continue
			}
			next := r
			next.PointsEarned = res.PointsEarned
			next.IsCorrect = res.IsCorrect
			next.Feedback = res.Feedback
			next.RequiresManualReview = res.NeedsManual
			next.Graded = !res.NeedsManual
			next.UpdatedAt = now
			if responses[i], err = tx.UpsertResponse(ctx, next); err != nil {
				return err
			}
		}

		event := EventAttemptGraded
		if wasGraded {
			event = EventAttemptRegraded
		}
		a, err = c.finalize(ctx, tx, a, q, set, responses, event)
		return err
	})
	if err != nil {
		return Attempt{}, err
	}

	metrics.GradingDuration.Observe(time.Since(start).Seconds())
	metrics.AttemptsGraded.WithLabelValues(string(a.Status)).Inc()
	c.log.Debug("attempt auto-graded", zap.String("attempt_id", a.ID), zap.String("status", string(a.Status)),
		zap.Float64("total_score", a.TotalScore), zap.Int("pending_review", a.PendingReview))
	c.publish(ctx, q, a)
	return a, nil
}

// Review applies reviewer scores keyed by question id and re-aggregates.
// Points are clamped to the question's value; rubric awards are used instead
// when the question has a rubric.
func (c *Controller) Review(ctx context.Context, attemptID, reviewerID string, inputs map[string]ReviewInput) (a Attempt, err error) {
	ctx, span := tracer.Start(ctx, "quiz.Review", trace.WithAttributes(
		attribute.String("attempt.id", attemptID), attribute.String("reviewer.id", reviewerID)))
	defer func() { endSpan(span, err) }()

	if len(inputs) == 0 {
		return Attempt{}, errors.Wrap(ErrMalformedResponse, "no review scores given")
	}

	var q Quiz
	err = c.store.Tx(ctx, func(tx Store) error {
		var set []Question
		if a, q, set, err = c.loadForGrading(ctx, tx, attemptID); err != nil {
			return err
		}
		responses, err := tx.ListResponses(ctx, attemptID)
		if err != nil {
			return err
		}
		idx := make(map[string]int, len(responses))
		for i, r := range responses {
			idx[r.QuestionID] = i
		}
		byID := questionsByID(set)

		qids := make([]string, 0, len(inputs))
		for qid := range inputs {
			qids = append(qids, qid)
		}
		sort.Strings(qids)

		now := c.now().Unix()
		for _, qid := range qids {
			in := inputs[qid]
			qq, ok := byID[qid]
			if !ok {
				return errors.Wrapf(ErrMalformedResponse, "question %s is not part of attempt %s", qid, attemptID)
			}
			i, ok := idx[qid]
			if !ok {
				return errors.Wrapf(ErrMalformedResponse, "no response to question %s", qid)
			}
			if math.IsNaN(in.Points) || math.IsInf(in.Points, 0) {
				return errors.Wrapf(ErrMalformedResponse, "points for question %s", qid)
			}

			r := responses[i]
			r.PointsEarned = math.Max(0, math.Min(in.Points, qq.Points))
			r.Feedback = in.Comment
			if qq.Rubric != nil && len(in.Awards) > 0 {
				pts, notes := grading.ScoreRubric(*qq.Rubric, in.Awards)
				r.PointsEarned = math.Min(pts, qq.Points)
				r.Feedback = joinNonEmpty(notes, in.Comment)
			}
			r.IsCorrect = qq.Points > 0 && r.PointsEarned >= qq.Points
			r.RequiresManualReview = false
			r.Graded = true
			r.ReviewedBy = reviewerID
			r.ReviewedAt = now
			r.UpdatedAt = now
			if responses[i], err = tx.UpsertResponse(ctx, r); err != nil {
				return err
			}
		}

		a, err = c.finalize(ctx, tx, a, q, set, responses, EventAttemptReviewed)
		return err
	})
	if err != nil {
		return Attempt{}, err
	}

	metrics.AttemptsGraded.WithLabelValues(string(a.Status)).Inc()
	c.log.Info("attempt reviewed", zap.String("attempt_id", a.ID), zap.String("reviewer_id", reviewerID),
		zap.String("status", string(a.Status)), zap.Int("pending_review", a.PendingReview))
	c.publish(ctx, q, a)
	return a, nil
}

func (c *Controller) loadForGrading(ctx context.Context, tx Store, attemptID string) (Attempt, Quiz, []Question, error) {
	a, err := tx.GetAttemptForUpdate(ctx, attemptID)
	if err != nil {
		return Attempt{}, Quiz{}, nil, err
	}
	if a.Status != StatusSubmitted && a.Status != StatusGraded {
		return Attempt{}, Quiz{}, nil, errors.Wrapf(ErrInvalidState, "attempt %s is %s", attemptID, a.Status)
	}
	q, err := tx.LoadQuiz(ctx, a.QuizID)
	if err != nil {
		return Attempt{}, Quiz{}, nil, err
	}
	questions, err := tx.LoadQuestions(ctx, a.QuizID)
	if err != nil {
		return Attempt{}, Quiz{}, nil, err
	}
	return a, q, a.questionSet(questions), nil
}

// finalize writes the aggregate onto the attempt and keeps the grade record
// in step with the status: present exactly when the attempt is graded.
func (c *Controller) finalize(ctx context.Context, tx Store, a Attempt, q Quiz, set []Question, responses []Response, event string) (Attempt, error) {
	stats := Aggregate(set, responses, q.PassingPercentage, a.TimeSpentSeconds)
	a.applyStats(stats)

	if stats.PendingReview == 0 {
		a.Status = StatusGraded
		a.GradedAt = c.now().Unix()
		if err := tx.UpsertGrade(ctx, gradeFor(a)); err != nil {
			return Attempt{}, err
		}
	} else {
		a.Status = StatusSubmitted
		a.GradedAt = 0
		if err := tx.DeleteGrade(ctx, a.ID); err != nil {
			return Attempt{}, err
		}
	}
	if err := tx.UpdateAttempt(ctx, a); err != nil {
		return Attempt{}, err
	}
	return a, c.appendEvent(ctx, tx, event, a)
}

func (c *Controller) publish(ctx context.Context, q Quiz, a Attempt) {
	if c.publisher == nil || a.Status != StatusGraded || q.LineItemURL == "" {
		return
	}
	if err := c.publisher.PublishGrade(ctx, q, gradeFor(a)); err != nil {
		c.log.Warn("grade passback failed", zap.String("attempt_id", a.ID), zap.String("quiz_id", q.ID),
			zap.String("student_id", a.StudentID), zap.Error(err))
	}
}

// Attempt returns an attempt with its responses and, once graded, its grade.
func (c *Controller) Attempt(ctx context.Context, attemptID string) (AttemptDetail, error) {
	a, err := c.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return AttemptDetail{}, err
	}
	responses, err := c.store.ListResponses(ctx, attemptID)
	if err != nil {
		return AttemptDetail{}, err
	}
	d := AttemptDetail{Attempt: a, Responses: responses}
	g, err := c.store.GetGrade(ctx, attemptID)
	switch {
	case err == nil:
		d.Grade = &g
	case !errors.Is(err, ErrGradeNotFound):
		return AttemptDetail{}, err
	}
	return d, nil
}

// GradingItems lists the attempt's questions in attempt order with the
// matching response, for a reviewer.
func (c *Controller) GradingItems(ctx context.Context, attemptID string) ([]GradingItem, error) {
	a, err := c.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	questions, err := c.store.LoadQuestions(ctx, a.QuizID)
	if err != nil {
		return nil, err
	}
	responses, err := c.store.ListResponses(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	byQ := make(map[string]Response, len(responses))
	for _, r := range responses {
		byQ[r.QuestionID] = r
	}

	set := a.questionSet(questions)
	items := make([]GradingItem, 0, len(set))
	for _, q := range set {
		it := GradingItem{QuestionID: q.ID, Type: q.Type, Prompt: q.Prompt, MaxPoints: q.Points, Rubric: q.Rubric}
		if r, ok := byQ[q.ID]; ok {
			it.Response = &r
		}
		items = append(items, it)
	}
	return items, nil
}

func (c *Controller) ListAttempts(ctx context.Context, opts ListOpts) ([]Attempt, error) {
	return c.store.ListAttempts(ctx, opts)
}

func (c *Controller) Events(ctx context.Context, attemptID string) ([]Event, error) {
	if _, err := c.store.GetAttempt(ctx, attemptID); err != nil {
		return nil, err
	}
	return c.store.ListEvents(ctx, attemptID)
}

// ExpireOverdue submits and grades every in-progress attempt whose deadline
// has passed. It returns how many attempts it closed.
func (c *Controller) ExpireOverdue(ctx context.Context) (int, error) {
	overdue, err := c.store.ListAttempts(ctx, ListOpts{Status: StatusInProgress, DeadlineBefore: c.now().Unix()})
	if err != nil {
		return 0, err
	}

	var closed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.sweepWorkers)
	for _, a := range overdue {
		g.Go(func() error {
			if _, err := c.Submit(gctx, a.ID); err != nil {
				if errors.Is(err, ErrInvalidState) {
					return nil // submitted by the student meanwhile
				}
				return err
			}
			closed.Add(1)
			_, err := c.AutoGrade(gctx, a.ID)
			return err
		})
	}
	err = g.Wait()
	if n := closed.Load(); n > 0 {
		c.log.Info("expired overdue attempts", zap.Int64("count", n))
	}
	return int(closed.Load()), err
}

func (c *Controller) appendEvent(ctx context.Context, tx Store, typ string, a Attempt) error {
	data, err := json.Marshal(map[string]any{
		"quiz_id":        a.QuizID,
		"student_id":     a.StudentID,
		"attempt_number": a.Number,
		"status":         a.Status,
		"total_score":    a.TotalScore,
		"pending_review": a.PendingReview,
	})
	if err != nil {
		return err
	}
	return tx.AppendEvent(ctx, Event{
		ID:        c.newID(),
		Type:      typ,
		AttemptID: a.ID,
		Data:      string(data),
		CreatedAt: c.now().Unix(),
	})
}

func sameResult(r Response, res grading.Result) bool {
	return r.PointsEarned == res.PointsEarned &&
		r.IsCorrect == res.IsCorrect &&
		r.Feedback == res.Feedback &&
		r.RequiresManualReview == res.NeedsManual &&
		r.Graded == !res.NeedsManual
}

func questionsByID(qs []Question) map[string]Question {
	m := make(map[string]Question, len(qs))
	for _, q := range qs {
		m[q.ID] = q
	}
	return m
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "; " + b
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
