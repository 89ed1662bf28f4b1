package assistant

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the chat components and the HTTP layer.
var (
	ErrConfigurationMissing = errors.New("configuration missing")
	ErrThreadCreationFailed = errors.New("thread creation failed")
	ErrRunFailed            = errors.New("run failed")
	ErrRunTimedOut          = errors.New("run timed out")
	ErrEmptyReply           = errors.New("empty assistant reply")
	ErrAssistantUnavailable = errors.New("assistant unavailable")
	ErrUpstreamUnavailable  = errors.New("upstream unavailable")
	ErrUpstreamTransient    = errors.New("upstream rate limited")
	ErrNotFound             = errors.New("not found")
)

// ConfigError reports a required configuration variable that is absent.
type ConfigError struct {
	Variable string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", e.Variable)
}

// Unwrap makes errors.Is(err, ErrConfigurationMissing) hold.
func (e *ConfigError) Unwrap() error { return ErrConfigurationMissing }

// ValidationError reports malformed input at a request boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// RunFailedError carries the terminal status and provider error of a failed run.
type RunFailedError struct {
	Status  string
	Code    string
	Message string
}

func (e *RunFailedError) Error() string {
	if e.Code == "" && e.Message == "" {
		return fmt.Sprintf("run ended with status %s", e.Status)
	}
	return fmt.Sprintf("run ended with status %s: %s %s", e.Status, e.Code, e.Message)
}

// Unwrap makes errors.Is(err, ErrRunFailed) hold.
func (e *RunFailedError) Unwrap() error { return ErrRunFailed }
