package session

import "time"

// Default retry parameters.
const (
	// DefaultFastFailWindow is how soon after socket open a non-user close
	// is treated as a credential problem rather than a network drop. Closes
	// inside this window typically mean quota exhaustion or a rejected key.
	DefaultFastFailWindow = 4 * time.Second

	defaultRetryAttempts = 1
	defaultRetryDelay    = 500 * time.Millisecond
)

// FailureClass is the outcome of classifying a session failure.
type FailureClass int

const (
	// FailureTerminal means the failure is not worth retrying; the manager
	// reports a lost connection.
	FailureTerminal FailureClass = iota

	// FailureRotate means the failure looks credential-bound; the manager
	// advances to the next credential and redials.
	FailureRotate
)

// Classifier decides how to treat a session failure. sessionAge is how long
// the socket was open before it closed (zero for dial failures), err is the
// terminal error, and credentials is the number of configured credentials.
type Classifier func(sessionAge time.Duration, err error, credentials int) FailureClass

// FastFailClassifier returns the default classifier: a close within window
// with more than one credential configured rotates; anything else is
// terminal.
func FastFailClassifier(window time.Duration) Classifier {
	return func(sessionAge time.Duration, _ error, credentials int) FailureClass {
		if sessionAge < window && credentials > 1 {
			return FailureRotate
		}
		return FailureTerminal
	}
}

// RetryPolicy is the manager's explicit reconnect behaviour: how many
// redials one Start cycle may perform, how long to pause between them, and
// how failures are classified.
type RetryPolicy struct {
	// MaxAttempts is the number of redials allowed per Start cycle.
	// Defaults to 1.
	MaxAttempts int

	// Delay is the pause before a redial. Defaults to 500ms.
	Delay time.Duration

	// Classify decides whether a failure rotates or is terminal. Defaults
	// to [FastFailClassifier] with [DefaultFastFailWindow].
	Classify Classifier
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: defaultRetryAttempts,
		Delay:       defaultRetryDelay,
		Classify:    FastFailClassifier(DefaultFastFailWindow),
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultRetryAttempts
	}
	if p.Delay <= 0 {
		p.Delay = defaultRetryDelay
	}
	if p.Classify == nil {
		p.Classify = FastFailClassifier(DefaultFastFailWindow)
	}
	return p
}
