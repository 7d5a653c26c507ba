package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"

	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-quiz/internal/db"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore persists the engine's records with database/sql. The same
// statements run on sqlite and postgres; only row locking differs.
type SQLStore struct {
	db     *sql.DB
	q      querier
	driver db.Driver
	inTx   bool
}

func NewSQLStore(conn *sql.DB, driver db.Driver) *SQLStore {
	return &SQLStore{db: conn, q: conn, driver: driver}
}

func (s *SQLStore) Tx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	if err := fn(&SQLStore{db: s.db, q: tx, driver: s.driver, inTx: true}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "commit tx")
}

const quizColumns = `id,course_id,title,passing_percentage,time_limit_sec,attempts_allowed,
	shuffle_questions,random_question_count,published,line_item_url,created_at`

func (s *SQLStore) LoadQuiz(ctx context.Context, quizID string) (Quiz, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+quizColumns+` FROM quizzes WHERE id=$1`, quizID)
	var q Quiz
	err := row.Scan(&q.ID, &q.CourseID, &q.Title, &q.PassingPercentage, &q.TimeLimitSec, &q.AttemptsAllowed,
		&q.ShuffleQuestions, &q.RandomQuestionCount, &q.Published, &q.LineItemURL, &q.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Quiz{}, errors.Wrapf(ErrQuizNotFound, "quiz %s", quizID)
	}
	if err != nil {
		return Quiz{}, errors.Wrap(err, "load quiz")
	}
	return q, nil
}

func (s *SQLStore) LoadQuestions(ctx context.Context, quizID string) ([]Question, error) {
	if _, err := s.LoadQuiz(ctx, quizID); err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT body_json FROM quiz_questions WHERE quiz_id=$1 ORDER BY position, id`, quizID)
	if err != nil {
		return nil, errors.Wrap(err, "load questions")
	}
	defer rows.Close()

	out := make([]Question, 0)
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, errors.Wrap(err, "scan question")
		}
		var q Question
		if err := json.Unmarshal([]byte(body), &q); err != nil {
			return nil, errors.Wrap(err, "decode question")
		}
		q.QuizID = quizID
		out = append(out, q)
	}
	return out, errors.Wrap(rows.Err(), "load questions")
}

func (s *SQLStore) SaveQuiz(ctx context.Context, q Quiz, questions []Question) error {
	return s.Tx(ctx, func(tx Store) error {
		q2 := tx.(*SQLStore).q
		_, err := q2.ExecContext(ctx, `INSERT INTO quizzes (`+quizColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT (id) DO UPDATE SET course_id=EXCLUDED.course_id, title=EXCLUDED.title,
				passing_percentage=EXCLUDED.passing_percentage, time_limit_sec=EXCLUDED.time_limit_sec,
				attempts_allowed=EXCLUDED.attempts_allowed, shuffle_questions=EXCLUDED.shuffle_questions,
				random_question_count=EXCLUDED.random_question_count, published=EXCLUDED.published,
				line_item_url=EXCLUDED.line_item_url`,
			q.ID, q.CourseID, q.Title, q.PassingPercentage, q.TimeLimitSec, q.AttemptsAllowed,
			q.ShuffleQuestions, q.RandomQuestionCount, q.Published, q.LineItemURL, q.CreatedAt)
		if err != nil {
			return errors.Wrap(err, "save quiz")
		}
		if _, err := q2.ExecContext(ctx, `DELETE FROM quiz_questions WHERE quiz_id=$1`, q.ID); err != nil {
			return errors.Wrap(err, "clear questions")
		}
		for _, qq := range questions {
			qq.QuizID = q.ID
			body, err := json.Marshal(qq)
			if err != nil {
				return errors.Wrap(err, "encode question")
			}
			if _, err := q2.ExecContext(ctx,
				`INSERT INTO quiz_questions (quiz_id,id,position,body_json) VALUES ($1,$2,$3,$4)`,
				q.ID, qq.ID, qq.Position, string(body)); err != nil {
				return errors.Wrapf(err, "save question %s", qq.ID)
			}
		}
		return nil
	})
}

func (s *SQLStore) CountAttempts(ctx context.Context, quizID, studentID string) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempts WHERE quiz_id=$1 AND student_id=$2`, quizID, studentID).Scan(&n)
	return n, errors.Wrap(err, "count attempts")
}

const attemptColumns = `id,quiz_id,student_id,attempt_number,status,question_ids,
	started_at,deadline_at,submitted_at,graded_at,time_spent_sec,
	total_score,max_score,percentage,passed,questions_answered,questions_unanswered,pending_review`

func (s *SQLStore) CreateAttempt(ctx context.Context, a Attempt) (Attempt, error) {
	ids, err := json.Marshal(nonNil(a.QuestionIDs))
	if err != nil {
		return Attempt{}, errors.Wrap(err, "encode question ids")
	}
	_, err = s.q.ExecContext(ctx, `INSERT INTO attempts (`+attemptColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		a.ID, a.QuizID, a.StudentID, a.Number, string(a.Status), string(ids),
		a.StartedAt, a.DeadlineAt, a.SubmittedAt, a.GradedAt, a.TimeSpentSeconds,
		a.TotalScore, a.MaxScore, a.Percentage, a.Passed, a.QuestionsAnswered, a.QuestionsUnanswered, a.PendingReview)
	if db.IsUniqueViolation(err) {
		return Attempt{}, ErrDuplicateAttempt
	}
	if db.IsForeignKeyViolation(err) {
		return Attempt{}, errors.Wrapf(ErrQuizNotFound, "quiz %s", a.QuizID)
	}
	if err != nil {
		return Attempt{}, errors.Wrap(err, "create attempt")
	}
	return a, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row scanner) (Attempt, error) {
	var a Attempt
	var status, ids string
	err := row.Scan(&a.ID, &a.QuizID, &a.StudentID, &a.Number, &status, &ids,
		&a.StartedAt, &a.DeadlineAt, &a.SubmittedAt, &a.GradedAt, &a.TimeSpentSeconds,
		&a.TotalScore, &a.MaxScore, &a.Percentage, &a.Passed, &a.QuestionsAnswered, &a.QuestionsUnanswered, &a.PendingReview)
	if err != nil {
		return Attempt{}, err
	}
	a.Status = Status(status)
	if err := json.Unmarshal([]byte(ids), &a.QuestionIDs); err != nil {
		return Attempt{}, errors.Wrap(err, "decode question ids")
	}
	return a, nil
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	return s.getAttempt(ctx, id, false)
}

// GetAttemptForUpdate takes a row lock on postgres. sqlite serializes writers
// on its single connection, so the plain read is enough there.
func (s *SQLStore) GetAttemptForUpdate(ctx context.Context, id string) (Attempt, error) {
	return s.getAttempt(ctx, id, s.inTx)
}

func (s *SQLStore) getAttempt(ctx context.Context, id string, forUpdate bool) (Attempt, error) {
	a, err := scanAttempt(s.q.QueryRowContext(ctx, attemptByIDQuery(s.driver, forUpdate), id))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, errors.Wrapf(ErrAttemptNotFound, "attempt %s", id)
	}
	if err != nil {
		return Attempt{}, errors.Wrap(err, "get attempt")
	}
	return a, nil
}

func attemptByIDQuery(driver db.Driver, forUpdate bool) string {
	q := `SELECT ` + attemptColumns + ` FROM attempts WHERE id=$1`
	if forUpdate && driver == db.DriverPostgres {
		q += ` FOR UPDATE`
	}
	return q
}

func (s *SQLStore) UpdateAttempt(ctx context.Context, a Attempt) error {
	res, err := s.q.ExecContext(ctx, `UPDATE attempts SET status=$1, submitted_at=$2, graded_at=$3, time_spent_sec=$4,
		total_score=$5, max_score=$6, percentage=$7, passed=$8,
		questions_answered=$9, questions_unanswered=$10, pending_review=$11
		WHERE id=$12`,
		string(a.Status), a.SubmittedAt, a.GradedAt, a.TimeSpentSeconds,
		a.TotalScore, a.MaxScore, a.Percentage, a.Passed,
		a.QuestionsAnswered, a.QuestionsUnanswered, a.PendingReview, a.ID)
	if err != nil {
		return errors.Wrap(err, "update attempt")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(ErrAttemptNotFound, "attempt %s", a.ID)
	}
	return nil
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts ListOpts) ([]Attempt, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = math.MaxInt32
	}
	offset := max(opts.Offset, 0)
	rows, err := s.q.QueryContext(ctx, `SELECT `+attemptColumns+` FROM attempts
		WHERE ($1 = '' OR quiz_id = $1)
		  AND ($2 = '' OR student_id = $2)
		  AND ($3 = '' OR status = $3)
		  AND (CAST($4 AS BIGINT) = 0 OR (deadline_at > 0 AND deadline_at < CAST($4 AS BIGINT)))
		ORDER BY started_at, attempt_number, id
		LIMIT $5 OFFSET $6`,
		opts.QuizID, opts.StudentID, string(opts.Status), opts.DeadlineBefore, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "list attempts")
	}
	defer rows.Close()

	out := make([]Attempt, 0)
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan attempt")
		}
		out = append(out, a)
	}
	return out, errors.Wrap(rows.Err(), "list attempts")
}

const responseColumns = `id,attempt_id,question_id,value_json,points_earned,is_correct,feedback,
	requires_manual_review,graded,reviewed_by,reviewed_at,updated_at`

func (s *SQLStore) UpsertResponse(ctx context.Context, r Response) (Response, error) {
	val, err := json.Marshal(r.Value)
	if err != nil {
		return Response{}, errors.Wrap(err, "encode response value")
	}
	row := s.q.QueryRowContext(ctx, `INSERT INTO attempt_responses (`+responseColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (attempt_id, question_id) DO UPDATE SET value_json=EXCLUDED.value_json,
			points_earned=EXCLUDED.points_earned, is_correct=EXCLUDED.is_correct, feedback=EXCLUDED.feedback,
			requires_manual_review=EXCLUDED.requires_manual_review, graded=EXCLUDED.graded,
			reviewed_by=EXCLUDED.reviewed_by, reviewed_at=EXCLUDED.reviewed_at, updated_at=EXCLUDED.updated_at
		RETURNING id`,
		r.ID, r.AttemptID, r.QuestionID, string(val), r.PointsEarned, r.IsCorrect, r.Feedback,
		r.RequiresManualReview, r.Graded, r.ReviewedBy, r.ReviewedAt, r.UpdatedAt)
	if err := row.Scan(&r.ID); err != nil {
		if db.IsForeignKeyViolation(err) {
			return Response{}, errors.Wrapf(ErrAttemptNotFound, "attempt %s", r.AttemptID)
		}
		return Response{}, errors.Wrap(err, "upsert response")
	}
	return r, nil
}

func (s *SQLStore) ListResponses(ctx context.Context, attemptID string) ([]Response, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+responseColumns+` FROM attempt_responses
		WHERE attempt_id=$1 ORDER BY question_id`, attemptID)
	if err != nil {
		return nil, errors.Wrap(err, "list responses")
	}
	defer rows.Close()

	out := make([]Response, 0)
	for rows.Next() {
		var r Response
		var val string
		if err := rows.Scan(&r.ID, &r.AttemptID, &r.QuestionID, &val, &r.PointsEarned, &r.IsCorrect, &r.Feedback,
			&r.RequiresManualReview, &r.Graded, &r.ReviewedBy, &r.ReviewedAt, &r.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan response")
		}
		if err := json.Unmarshal([]byte(val), &r.Value); err != nil {
			return nil, errors.Wrap(err, "decode response value")
		}
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "list responses")
}

const gradeColumns = `attempt_id,quiz_id,student_id,attempt_number,total_score,max_score,percentage,passed,
	questions_answered,questions_unanswered,time_spent_sec`

func (s *SQLStore) UpsertGrade(ctx context.Context, g Grade) error {
	_, err := s.q.ExecContext(ctx, `INSERT INTO attempt_grades (`+gradeColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (attempt_id) DO UPDATE SET total_score=EXCLUDED.total_score, max_score=EXCLUDED.max_score,
			percentage=EXCLUDED.percentage, passed=EXCLUDED.passed,
			questions_answered=EXCLUDED.questions_answered, questions_unanswered=EXCLUDED.questions_unanswered,
			time_spent_sec=EXCLUDED.time_spent_sec`,
		g.AttemptID, g.QuizID, g.StudentID, g.AttemptNumber, g.TotalScore, g.MaxScore, g.Percentage, g.Passed,
		g.QuestionsAnswered, g.QuestionsUnanswered, g.TimeSpentSeconds)
	if db.IsForeignKeyViolation(err) {
		return errors.Wrapf(ErrAttemptNotFound, "attempt %s", g.AttemptID)
	}
	return errors.Wrap(err, "upsert grade")
}

func (s *SQLStore) GetGrade(ctx context.Context, attemptID string) (Grade, error) {
	var g Grade
	err := s.q.QueryRowContext(ctx, `SELECT `+gradeColumns+` FROM attempt_grades WHERE attempt_id=$1`, attemptID).
		Scan(&g.AttemptID, &g.QuizID, &g.StudentID, &g.AttemptNumber, &g.TotalScore, &g.MaxScore, &g.Percentage,
			&g.Passed, &g.QuestionsAnswered, &g.QuestionsUnanswered, &g.TimeSpentSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return Grade{}, errors.Wrapf(ErrGradeNotFound, "attempt %s", attemptID)
	}
	if err != nil {
		return Grade{}, errors.Wrap(err, "get grade")
	}
	return g, nil
}

func (s *SQLStore) DeleteGrade(ctx context.Context, attemptID string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM attempt_grades WHERE attempt_id=$1`, attemptID)
	return errors.Wrap(err, "delete grade")
}

func (s *SQLStore) AppendEvent(ctx context.Context, e Event) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO attempt_events (id,typ,attempt_id,data,created_at) VALUES ($1,$2,$3,$4,$5)`,
		e.ID, e.Type, e.AttemptID, e.Data, e.CreatedAt)
	return errors.Wrap(err, "append event")
}

func (s *SQLStore) ListEvents(ctx context.Context, attemptID string) ([]Event, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id,typ,attempt_id,data,created_at FROM attempt_events WHERE attempt_id=$1 ORDER BY seq`, attemptID)
	if err != nil {
		return nil, errors.Wrap(err, "list events")
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Type, &e.AttemptID, &e.Data, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "list events")
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
