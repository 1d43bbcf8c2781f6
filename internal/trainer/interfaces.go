package trainer

import (
	"io"

	"github.com/shipvision/shipclf/internal/dataset"
)

// Model is the network being trained.
type Model interface {
	// TrainBatch runs one optimisation step and returns the batch loss.
	TrainBatch(b dataset.Batch, lr float64) (float64, error)
	// EvalBatch returns the batch loss and one predicted label per sample.
	EvalBatch(b dataset.Batch) (float64, []int, error)
	Save(w io.Writer) error
	Load(r io.Reader) error
}

// BatchSource is a restartable sequence of batches.
type BatchSource interface {
	Each(fn func(dataset.Batch) error) error
	Len() int
}

type DataSource interface {
	// Setup brings the data into a state where all loaders are available.
	Setup() error
	Train() (BatchSource, error)
	Validation() (BatchSource, error)
	Test() (BatchSource, error)
}

// Fitter is the optimisation loop.
type Fitter interface {
	Fit(model Model, data DataSource, observers []Observer) (Metrics, error)
	Test(model Model, data DataSource) (Metrics, error)
}

// MetricLogger records the run configuration and scalar metrics of a run.
type MetricLogger interface {
	LogHyperparams(params map[string]interface{}) error
	LogMetrics(metrics map[string]float64, step int) error
	Finish() error
}

// moduleSource adapts a DataModule to DataSource.
type moduleSource struct {
	dm *dataset.DataModule
}

func DataModuleSource(dm *dataset.DataModule) DataSource {
	return &moduleSource{dm: dm}
}

func (s *moduleSource) Setup() error {
	if s.dm.State() == dataset.Unprepared {
		if err := s.dm.Prepare(); err != nil {
			return err
		}
	}
	if s.dm.State() == dataset.Prepared {
		return s.dm.Setup()
	}
	return nil
}

func (s *moduleSource) Train() (BatchSource, error) {
	l, err := s.dm.TrainLoader()
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (s *moduleSource) Validation() (BatchSource, error) {
	l, err := s.dm.ValidLoader()
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (s *moduleSource) Test() (BatchSource, error) {
	l, err := s.dm.TestLoader()
	if err != nil {
		return nil, err
	}
	return l, nil
}
