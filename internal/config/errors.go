package config

import "fmt"

// ConfigurationError reports invalid or unknown node configuration.
type ConfigurationError struct {
	// Schema names the schema being resolved.
	Schema string

	// Option is the offending option, empty for schema-level problems.
	Option string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Option != "" {
		return fmt.Sprintf("config %s.%s: %s", e.Schema, e.Option, msg)
	}
	return fmt.Sprintf("config %s: %s", e.Schema, msg)
}

// Unwrap returns the underlying cause.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
