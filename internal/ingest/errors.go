package ingest

import "fmt"

// ParameterError reports bad caller input. It is raised before any network
// or storage I/O is attempted.
type ParameterError struct {
	Field  string
	Reason string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("ingest: invalid parameter %s: %s", e.Field, e.Reason)
}

// SchemaError reports an upstream payload whose shape violates the contract.
// It is a hard stop: no partial acceptance of a malformed payload. Sample is
// a truncated rendering of the offending record, bounded so logs stay small.
type SchemaError struct {
	Key    string
	Reason string
	Sample string
}

func (e *SchemaError) Error() string {
	if e.Sample == "" {
		return fmt.Sprintf("ingest: schema violation at %q: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("ingest: schema violation at %q: %s (sample: %s)", e.Key, e.Reason, e.Sample)
}
