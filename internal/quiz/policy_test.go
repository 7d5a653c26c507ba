package quiz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanStartAttempt(t *testing.T) {
	tests := []struct {
		name    string
		quiz    Quiz
		prior   int
		allowed bool
		reason  *Error
	}{
		{"unlimited", Quiz{Published: true}, 42, true, nil},
		{"under limit", Quiz{Published: true, AttemptsAllowed: 3}, 2, true, nil},
		{"at limit", Quiz{Published: true, AttemptsAllowed: 3}, 3, false, ErrAttemptsExceeded},
		{"over limit", Quiz{Published: true, AttemptsAllowed: 1}, 5, false, ErrAttemptsExceeded},
		{"unpublished wins over count", Quiz{AttemptsAllowed: 0}, 0, false, ErrQuizUnpublished},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := CanStartAttempt(tt.quiz, tt.prior)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.reason, d.Reason)
			if tt.allowed {
				assert.NoError(t, d.Err())
			} else {
				assert.ErrorIs(t, d.Err(), tt.reason)
			}
		})
	}
}
