package mapping

import "fmt"

// ConfigurationError reports an unusable mapping file. It is fatal at startup.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("mapping configuration: %s", e.Reason)
	}
	return fmt.Sprintf("mapping configuration for field %q: %s", e.Field, e.Reason)
}

// MappingError reports a value of one record that could not be mapped. The
// field is skipped for that record.
type MappingError struct {
	TaskID string
	Field  string
	Value  any
	Err    error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("task %s: field %q value %v: %v", e.TaskID, e.Field, e.Value, e.Err)
}

func (e *MappingError) Unwrap() error { return e.Err }
