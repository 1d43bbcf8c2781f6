package dataset

import "fmt"

// DataAccessError reports a label row or image that could not be read.
// It is never retried: a broken entry is a data integrity problem.
type DataAccessError struct {
	Path string
	Err  error
}

func (e *DataAccessError) Error() string {
	return fmt.Sprintf("data access %q: %v", e.Path, e.Err)
}

func (e *DataAccessError) Unwrap() error {
	return e.Err
}

// StateError is returned when a DataModule operation is called before the
// module reached the state it requires.
type StateError struct {
	Op   string
	Have State
	Want State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: data module is %s, needs %s", e.Op, e.Have, e.Want)
}

// ConfigError reports invalid split settings.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
