// Package synthesis defines the narrow adapter to the external TTS engine.
// The rest of the system never inspects model internals: it submits work,
// polls progress, fetches the finished artifact, and cancels.
package synthesis

import (
	"context"
	"errors"
	"fmt"

	"github.com/echoform/echoform-backend/internal/domain"
)

// Handle identifies one in-flight synthesis on the backend.
type Handle string

// Request is one unit of synthesis work. SpeakerRef points at the speaker
// embedding the engine should condition on; the engine resolves it itself.
type Request struct {
	Text       string
	SpeakerRef string
	Config     domain.SynthesisConfig
}

// Progress is a poll snapshot. Fraction is 0..1. PartialWordTimestamps may
// grow across polls while the engine streams output; it is advisory until
// Done.
type Progress struct {
	Fraction              float64
	Done                  bool
	PartialWordTimestamps []domain.WordTimestamp
}

// Result is the finished artifact.
type Result struct {
	Audio              []byte
	MimeType           string
	WordTimestamps     []domain.WordTimestamp
	SyllableTimestamps []domain.SyllableTimestamp
}

type Backend interface {
	Submit(ctx context.Context, req Request) (Handle, error)
	Poll(ctx context.Context, handle Handle) (Progress, error)
	FetchResult(ctx context.Context, handle Handle) (Result, error)
	// Cancel asks the engine to abandon work. It reports whether the
	// cancellation took effect; false means output already completed.
	Cancel(ctx context.Context, handle Handle) (bool, error)
}

// ErrorClass splits backend failures into the two retry categories.
type ErrorClass string

const (
	// ErrorClassTransient covers timeouts and overload; retried with
	// backoff up to a bound.
	ErrorClassTransient ErrorClass = "transient"
	// ErrorClassPermanent covers invalid input and unsupported configs;
	// never retried.
	ErrorClassPermanent ErrorClass = "permanent"
)

type BackendError struct {
	Class      ErrorClass
	StatusCode int
	Message    string
	Cause      error
}

func (e *BackendError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("synthesis backend error: class=%s message=%s", e.Class, e.Message)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status=%d", e.StatusCode)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(" cause=%v", e.Cause)
	}
	return msg
}

func (e *BackendError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Transient reports whether the failure should be retried.
func (e *BackendError) Transient() bool {
	return e != nil && e.Class == ErrorClassTransient
}

// ErrorKindFor maps a backend failure onto the error kind recorded on the
// job row. Unknown errors are treated as transient so the retry bound, not
// a misclassification, decides the job's fate.
func ErrorKindFor(err error) string {
	var be *BackendError
	if errors.As(err, &be) && be.Class == ErrorClassPermanent {
		return domain.ErrorKindPermanentBackend
	}
	return domain.ErrorKindTransientBackend
}
