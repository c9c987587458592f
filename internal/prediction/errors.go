package prediction

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindModelUnavailable Kind = "model_unavailable"
	KindStorage          Kind = "storage"
	KindInference        Kind = "inference"

	// Non-fatal kinds; they only appear in logs and metrics.
	KindCacheWrite Kind = "cache_write"
	KindEmit       Kind = "emit"
)

// Stage is a step of the intake state machine.
type Stage string

const (
	StageReceived         Stage = "received"
	StagePersisted        Stage = "persisted"
	StageFeaturesComputed Stage = "features_computed"
	StageCached           Stage = "cached"
	StageClassified       Stage = "classified"
	StageFinalized        Stage = "finalized"
	StageNotified         Stage = "notified"
)

// Error is a terminal pipeline failure and the stage that was being
// entered when it happened.
type Error struct {
	Kind  Kind
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failure at %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether resubmitting the same transaction may succeed.
// Only malformed input is final; infrastructure failures, a missing model
// included, may clear up.
func (e *Error) Retryable() bool {
	return e.Kind != KindValidation
}

// HTTPStatus maps the failure onto a response code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation, KindModelUnavailable:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func fail(kind Kind, stage Stage, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// AsError extracts a pipeline error from err.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
