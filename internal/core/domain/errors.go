package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingCredential    = errors.New("missing API credential")
	ErrMissingOriginalPost  = errors.New("no original post to analyze against")
	ErrAnalysisFailed       = errors.New("could not get forgery analysis from the AI model")
	ErrBusy                 = errors.New("an analysis is already in progress")
	ErrActorMismatch        = errors.New("actor is not allowed to submit a tampered image")
	ErrUnknownUser          = errors.New("unknown user")
	ErrPostNotFound         = errors.New("post not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrNoAnalysis           = errors.New("post has no analysis")
	ErrEmptyCaption         = errors.New("caption is empty")
)

// AnalysisError wraps a failed call to the analysis service.
type AnalysisError struct {
	Cause error
}

func (e *AnalysisError) Error() string {
	if e.Cause == nil {
		return ErrAnalysisFailed.Error()
	}
	return fmt.Sprintf("%s: %v", ErrAnalysisFailed, e.Cause)
}

func (e *AnalysisError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrAnalysisFailed}
	}
	return []error{ErrAnalysisFailed, e.Cause}
}

// MissingFieldError reports analysis keys that were absent or blank.
type MissingFieldError struct {
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return "analysis response missing fields: " + strings.Join(e.Fields, ", ")
}

// Validate checks that every phase narrative is present.
func (a ForgeryAnalysis) Validate() error {
	var missing []string
	for _, f := range []struct{ key, val string }{
		{"vaccinator", a.Vaccinator},
		{"detector", a.Detector},
		{"recovery", a.Recovery},
		{"assurance", a.Assurance},
	} {
		if strings.TrimSpace(f.val) == "" {
			missing = append(missing, f.key)
		}
	}
	if len(missing) > 0 {
		return &MissingFieldError{Fields: missing}
	}
	return nil
}
