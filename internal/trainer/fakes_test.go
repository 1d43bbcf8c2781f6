package trainer

import (
	"fmt"
	"io"

	"github.com/shipvision/shipclf/internal/dataset"
)

// fakeModel predicts a fixed label and stores its version in checkpoints.
type fakeModel struct {
	version int
	predict int
	steps   int
	loaded  []int
	failAt  int
}

func (m *fakeModel) TrainBatch(b dataset.Batch, lr float64) (float64, error) {
	m.steps++
	if m.failAt > 0 && m.steps == m.failAt {
		return 0, fmt.Errorf("step %d exploded", m.steps)
	}
	m.version++
	return 1.0 / float64(m.steps), nil
}

func (m *fakeModel) EvalBatch(b dataset.Batch) (float64, []int, error) {
	predictions := make([]int, b.Len())
	for i := range predictions {
		predictions[i] = m.predict
	}
	return 0.5, predictions, nil
}

func (m *fakeModel) Save(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%d", m.version)
	return err
}

func (m *fakeModel) Load(r io.Reader) error {
	_, err := fmt.Fscanf(r, "%d", &m.version)
	if err != nil {
		return err
	}
	m.loaded = append(m.loaded, m.version)
	return nil
}

type fakeSource struct {
	batches []dataset.Batch
}

func (s *fakeSource) Each(fn func(dataset.Batch) error) error {
	for _, b := range s.batches {
		if err := fn(b); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeSource) Len() int {
	var n int
	for _, b := range s.batches {
		n += b.Len()
	}
	return n
}

// labelled returns one batch per label list.
func labelled(lists ...[]int) *fakeSource {
	s := &fakeSource{}
	offset := 0
	for _, labels := range lists {
		b := dataset.Batch{Labels: labels, Offset: offset}
		for range labels {
			b.Inputs = append(b.Inputs, dataset.NewTensor(2))
		}
		s.batches = append(s.batches, b)
		offset += len(labels)
	}
	return s
}

type fakeData struct {
	train, valid, test *fakeSource
	setupErr           error
	setups             int
}

func newFakeData() *fakeData {
	return &fakeData{
		train: labelled([]int{0, 1, 2}, []int{3, 4}),
		valid: labelled([]int{0, 0, 1}),
		test:  labelled([]int{0, 2}),
	}
}

func (d *fakeData) Setup() error {
	d.setups++
	return d.setupErr
}

func (d *fakeData) Train() (BatchSource, error)      { return d.train, nil }
func (d *fakeData) Validation() (BatchSource, error) { return d.valid, nil }
func (d *fakeData) Test() (BatchSource, error)       { return d.test, nil }

type memLogger struct {
	params   map[string]interface{}
	steps    []int
	metrics  []map[string]float64
	finished int
}

func (l *memLogger) LogHyperparams(params map[string]interface{}) error {
	l.params = params
	return nil
}

func (l *memLogger) LogMetrics(metrics map[string]float64, step int) error {
	l.steps = append(l.steps, step)
	l.metrics = append(l.metrics, metrics)
	return nil
}

func (l *memLogger) Finish() error {
	l.finished++
	return nil
}

// scriptedFitter reports a predetermined monitor value per epoch and bumps
// the fake model's version each epoch.
type scriptedFitter struct {
	logger MetricLogger
	scores []float64
	tested int
	err    error
}

func (f *scriptedFitter) Fit(model Model, data DataSource, observers []Observer) (Metrics, error) {
	if f.err != nil {
		return nil, f.err
	}
	last := Metrics{}
	epochs := 0
	for epoch, score := range f.scores {
		model.(*fakeModel).version = epoch + 1
		metrics := Metrics{DefaultMonitor: score}
		if err := f.logger.LogMetrics(metrics, epoch); err != nil {
			return nil, err
		}
		state := &EpochState{Epoch: epoch, Metrics: metrics, Model: model}
		for _, o := range observers {
			if err := o.OnEpochEnd(state); err != nil {
				return nil, err
			}
		}
		last = metrics
		epochs = epoch + 1
		if state.Stop {
			break
		}
	}
	for _, o := range observers {
		if err := o.OnFitEnd(&FitState{Epochs: epochs, Metrics: last, Model: model}); err != nil {
			return nil, err
		}
	}
	return last, nil
}

func (f *scriptedFitter) Test(model Model, data DataSource) (Metrics, error) {
	f.tested++
	metrics := Metrics{"test_F1Score": float64(model.(*fakeModel).version)}
	return metrics, f.logger.LogMetrics(metrics, len(f.scores))
}
