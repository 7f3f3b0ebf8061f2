package audit

import "fmt"

// TypeConversionError reports a value that could not be treated as Target.
type TypeConversionError struct {
	Value  any
	Target string
}

// Error implements the error interface.
func (e *TypeConversionError) Error() string {
	return fmt.Sprintf("cannot convert %T to %s", e.Value, e.Target)
}
