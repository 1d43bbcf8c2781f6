package trainer

import (
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// EpochState is handed to every observer after the validation pass of an
// epoch. Setting Stop ends the fit loop after the current epoch.
type EpochState struct {
	Epoch   int
	Metrics Metrics
	Model   Model
	Stop    bool
}

// FitState is handed to every observer once the fit loop is over.
type FitState struct {
	Epochs  int
	Metrics Metrics
	Model   Model
}

// Observer hooks into the fit loop. Observers are called in registration
// order; an error aborts the run.
type Observer interface {
	OnEpochEnd(state *EpochState) error
	OnFitEnd(state *FitState) error
}

type Mode int

const (
	Max Mode = iota
	Min
)

func (m Mode) better(value, best, delta float64) bool {
	if m == Min {
		return value < best-delta
	}
	return value > best+delta
}

func (m Mode) worst() float64 {
	if m == Min {
		return math.Inf(1)
	}
	return math.Inf(-1)
}

// CheckpointObserver keeps the single best checkpoint by Monitor in
// Dir/Filename.ckpt.
type CheckpointObserver struct {
	Dir      string
	Filename string
	Monitor  string
	Mode     Mode

	best      float64
	bestEpoch int
	bestPath  string
}

func NewCheckpointObserver(dir, filename, monitor string, mode Mode) *CheckpointObserver {
	return &CheckpointObserver{
		Dir:       dir,
		Filename:  filename,
		Monitor:   monitor,
		Mode:      mode,
		best:      mode.worst(),
		bestEpoch: -1,
	}
}

func (c *CheckpointObserver) Path() string {
	return filepath.Join(c.Dir, c.Filename+".ckpt")
}

// BestPath is empty until a checkpoint has been written.
func (c *CheckpointObserver) BestPath() string {
	return c.bestPath
}

func (c *CheckpointObserver) BestScore() (float64, bool) {
	return c.best, c.bestPath != ""
}

func (c *CheckpointObserver) OnEpochEnd(state *EpochState) error {
	value, ok := state.Metrics[c.Monitor]
	if !ok {
		return &CheckpointError{Path: c.Path(), Err: errors.Errorf("monitored metric %q was not logged", c.Monitor)}
	}
	if math.IsNaN(value) || !c.Mode.better(value, c.best, 0) {
		return nil
	}

	if err := SaveCheckpoint(state.Model, c.Path()); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"epoch":   state.Epoch,
		c.Monitor: value,
		"path":    c.Path(),
	}).Info("Saved best checkpoint")

	c.best = value
	c.bestEpoch = state.Epoch
	c.bestPath = c.Path()
	return nil
}

func (c *CheckpointObserver) OnFitEnd(state *FitState) error {
	if c.bestPath == "" {
		log.WithFields(log.Fields{"monitor": c.Monitor}).Warn("No checkpoint was saved")
		return nil
	}
	log.WithFields(log.Fields{
		"epoch":   c.bestEpoch,
		c.Monitor: c.best,
		"path":    c.bestPath,
	}).Info("Best checkpoint")
	return nil
}

// SaveCheckpoint writes the model weights to path, replacing any file
// already there.
func SaveCheckpoint(model Model, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &CheckpointError{Path: path, Err: err}
	}
	f, err := os.Create(path)
	if err != nil {
		return &CheckpointError{Path: path, Err: err}
	}
	if err := model.Save(f); err != nil {
		f.Close()
		return &CheckpointError{Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &CheckpointError{Path: path, Err: err}
	}
	return nil
}

func LoadCheckpoint(model Model, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &CheckpointError{Path: path, Err: err}
	}
	defer f.Close()

	if err := model.Load(f); err != nil {
		return &CheckpointError{Path: path, Err: err}
	}
	return nil
}

// EarlyStopping stops the fit loop once Monitor has not improved by more
// than MinDelta for Patience epochs.
type EarlyStopping struct {
	Monitor  string
	MinDelta float64
	Patience int
	Mode     Mode

	best    float64
	wait    int
	stopped int
}

func NewEarlyStopping(monitor string, minDelta float64, patience int, mode Mode) *EarlyStopping {
	return &EarlyStopping{
		Monitor:  monitor,
		MinDelta: minDelta,
		Patience: patience,
		Mode:     mode,
		best:     mode.worst(),
		stopped:  -1,
	}
}

// StoppedEpoch is -1 unless the observer ended the fit.
func (e *EarlyStopping) StoppedEpoch() int {
	return e.stopped
}

func (e *EarlyStopping) OnEpochEnd(state *EpochState) error {
	value, ok := state.Metrics[e.Monitor]
	if !ok {
		return errors.Errorf("early stopping: monitored metric %q was not logged", e.Monitor)
	}

	if e.Mode.better(value, e.best, e.MinDelta) {
		e.best = value
		e.wait = 0
		return nil
	}

	e.wait++
	if e.wait >= e.Patience {
		e.stopped = state.Epoch
		state.Stop = true
		log.WithFields(log.Fields{
			"epoch":   state.Epoch,
			e.Monitor: value,
			"best":    e.best,
		}).Info("Early stopping")
	}
	return nil
}

func (e *EarlyStopping) OnFitEnd(state *FitState) error {
	return nil
}
