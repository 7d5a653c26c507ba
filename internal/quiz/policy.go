package quiz

// Decision is the Attempt Policy's verdict. Reason is set when Allowed is false.
type Decision struct {
	Allowed bool
	Reason  *Error
}

// Err returns nil for an allow and the denial reason otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return d.Reason
}

// CanStartAttempt decides whether a student with priorAttempts attempts on q
// may start another one. It is pure; callers must evaluate it inside the same
// critical section that creates the attempt.
func CanStartAttempt(q Quiz, priorAttempts int) Decision {
	if !q.Published {
		return Decision{Reason: ErrQuizUnpublished}
	}
	if q.AttemptsAllowed == 0 {
		return Decision{Allowed: true}
	}
	if priorAttempts < q.AttemptsAllowed {
		return Decision{Allowed: true}
	}
	return Decision{Reason: ErrAttemptsExceeded}
}
