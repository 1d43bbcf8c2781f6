package cmd

import (
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/shipvision/shipclf/internal/dataset"
	"github.com/shipvision/shipclf/internal/trainer"
)

const (
	colorReset = "\033[0m"
	colorRed   = "\033[1;31m"
	colorWhite = "\033[0;37m"
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "%s%s%s\n", colorRed, describe(err), colorReset)
	os.Exit(1)
}

func infof(msg string, format ...interface{}) {
	formatted := fmt.Sprintf(msg, format...)
	fmt.Fprintf(os.Stderr, "%s%s%s\n", colorWhite, formatted, colorReset)
}

// describe prefixes err with the part of the run it stopped.
func describe(err error) string {
	var (
		cfgErr   *trainer.ConfigError
		splitErr *dataset.ConfigError
		dataErr  *dataset.DataAccessError
		stateErr *dataset.StateError
		ckptErr  *trainer.CheckpointError
		fitErr   *trainer.FitError
	)

	switch {
	case errors.As(err, &cfgErr), errors.As(err, &splitErr):
		return "configuration: " + err.Error()
	case errors.As(err, &dataErr):
		return "dataset: " + err.Error()
	case errors.As(err, &stateErr):
		return "data module: " + err.Error()
	case errors.As(err, &ckptErr):
		return "checkpoint: " + err.Error()
	case errors.As(err, &fitErr):
		return "training: " + err.Error()
	default:
		return err.Error()
	}
}
