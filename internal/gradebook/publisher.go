package gradebook

import (
	"context"
	"fmt"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// Publisher passes graded attempts back to the quiz's AGS line item.
type Publisher struct {
	client *Client
	now    func() time.Time
}

func NewPublisher(c *Client) *Publisher {
	return &Publisher{client: c, now: time.Now}
}

func (p *Publisher) PublishGrade(ctx context.Context, q quiz.Quiz, g quiz.Grade) error {
	return p.client.PostScore(ctx, q.LineItemURL, Score{
		UserID:           g.StudentID,
		ScoreGiven:       g.TotalScore,
		ScoreMaximum:     g.MaxScore,
		Comment:          fmt.Sprintf("attempt %d: %.2f%%", g.AttemptNumber, g.Percentage),
		ActivityProgress: "Completed",
		GradingProgress:  "FullyGraded",
		Timestamp:        p.now(),
	})
}
