// Package correction holds the error taxonomy and result types shared by the
// correction pipeline stages (markup, redact, completion, pipeline).
package correction

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned when the text is blank once markup is removed.
	ErrEmptyInput = errors.New("empty input text")
	// ErrUnknownAgent is returned for an agent name missing from the registry
	// or not available to the caller's role.
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrExternalService marks failures of the completion service.
	ErrExternalService = errors.New("external completion service failure")
)

// ExternalServiceError wraps a completion failure. Retryable is false for
// failures that repeating the call cannot fix (authentication, bad request).
type ExternalServiceError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrExternalService) match any ExternalServiceError.
func (e *ExternalServiceError) Is(target error) bool { return target == ErrExternalService }

// Stats is the statistics bundle reported for one correction run.
type Stats struct {
	ProcessingTime   float64 `json:"processing_time"`
	WordCount        int     `json:"word_count"`
	CorrectionsCount int     `json:"corrections_count"`
}

// Result is the outcome of a correction run.
type Result struct {
	CorrectedText string `json:"resultat"`
	AgentUsed     string `json:"agent_used"`
	Stats         Stats  `json:"stats"`
}
