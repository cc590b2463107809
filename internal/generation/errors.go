package generation

import "fmt"

// ServiceError represents a failed call to the generative service
type ServiceError struct {
	Message  string
	Attempts int
	Cause    error
}

func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("keyword service failed after %d attempts: %s: %v", e.Attempts, e.Message, e.Cause)
	}
	return fmt.Sprintf("keyword service failed after %d attempts: %s", e.Attempts, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// ParseError represents a service response that yielded no usable phrases
type ParseError struct {
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("parse error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("parse error: %s", e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}
