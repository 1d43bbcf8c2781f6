package trainer

import "fmt"

// ConfigError reports an invalid hyperparameter.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// FitError is any failure inside the fit or test loop. Runs are never
// retried after one.
type FitError struct {
	Stage string
	Epoch int
	Err   error
}

func (e *FitError) Error() string {
	if e.Epoch >= 0 {
		return fmt.Sprintf("%s failed in epoch %d: %v", e.Stage, e.Epoch, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *FitError) Unwrap() error {
	return e.Err
}

// CheckpointError reports a checkpoint that could not be written or read.
type CheckpointError struct {
	Path string
	Err  error
}

func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %q: %v", e.Path, e.Err)
}

func (e *CheckpointError) Unwrap() error {
	return e.Err
}
