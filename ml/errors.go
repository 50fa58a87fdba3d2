package ml

import "fmt"

// DataShapeError reports a dataset that cannot be processed: wrong feature
// count, mismatched lengths or missing values. It is not recoverable.
type DataShapeError struct {
	Row    int
	Col    int
	Reason string
}

func (e *DataShapeError) Error() string {
	switch {
	case e.Row >= 0 && e.Col >= 0:
		return fmt.Sprintf("data shape: row %d col %d: %s", e.Row, e.Col, e.Reason)
	case e.Row >= 0:
		return fmt.Sprintf("data shape: row %d: %s", e.Row, e.Reason)
	default:
		return "data shape: " + e.Reason
	}
}

// NewDataShapeError builds a DataShapeError. Use -1 for an unknown row or column.
func NewDataShapeError(row, col int, reason string) *DataShapeError {
	return &DataShapeError{Row: row, Col: col, Reason: reason}
}

// ConfigurationError reports an invalid hyperparameter or run setting.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

func configErrorf(field, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// FitError wraps a failure of a single model variant.
type FitError struct {
	Model string
	Err   error
}

func (e *FitError) Error() string {
	return fmt.Sprintf("fit %s: %v", e.Model, e.Err)
}

func (e *FitError) Unwrap() error { return e.Err }
