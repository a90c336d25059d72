package waf

import "fmt"

// EngineError is the single fatal error shape surfaced out of the engine.
// Anything escaping rule isolation and decode recovery is wrapped into one of
// these; the HTTP adapter maps Status and applies the failure policy.
type EngineError struct {
	Code    string
	Status  int
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func newEngineError(code string, status int, message string, err error) *EngineError {
	return &EngineError{Code: code, Status: status, Message: message, Err: err}
}
