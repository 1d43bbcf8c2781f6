package trainer

import (
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/shipvision/shipclf/internal/dataset"
)

// Loop is the reference Fitter: mini-batch SGD for MaxEpochs epochs, each
// followed by a validation pass.
type Loop struct {
	Logger       MetricLogger
	MaxEpochs    int
	Precision    int
	LearningRate float64
	Classes      int

	epochs int
}

func NewLoop(cfg Config, logger MetricLogger) *Loop {
	return &Loop{
		Logger:       logger,
		MaxEpochs:    cfg.Epochs,
		Precision:    cfg.Precision,
		LearningRate: cfg.LearningRate,
		Classes:      dataset.NumCategories,
	}
}

func (l *Loop) Fit(model Model, data DataSource, observers []Observer) (Metrics, error) {
	if l.Precision != Precision {
		return nil, &FitError{Stage: "fit", Epoch: -1, Err: errors.Errorf("unsupported precision %d", l.Precision)}
	}

	train, err := data.Train()
	if err != nil {
		return nil, &FitError{Stage: "fit", Epoch: -1, Err: err}
	}
	valid, err := data.Validation()
	if err != nil {
		return nil, &FitError{Stage: "fit", Epoch: -1, Err: err}
	}

	log.WithFields(log.Fields{
		"epochs":     l.MaxEpochs,
		"train":      train.Len(),
		"validation": valid.Len(),
		"lr":         l.LearningRate,
	}).Info("Starting fit")

	last := Metrics{}
	l.epochs = 0
	for epoch := 0; epoch < l.MaxEpochs; epoch++ {
		metrics, err := l.trainEpoch(model, train, epoch)
		if err != nil {
			return nil, err
		}

		validation, err := evaluate(model, valid, l.Classes)
		if err != nil {
			return nil, &FitError{Stage: "validation", Epoch: epoch, Err: err}
		}
		metrics.Merge(validation.metrics("valid"))
		metrics["epoch"] = float64(epoch)

		if err := l.Logger.LogMetrics(metrics, epoch); err != nil {
			return nil, errors.Wrapf(err, "log metrics of epoch %d", epoch)
		}

		log.WithFields(fields(metrics)).Info("Epoch complete")

		state := &EpochState{Epoch: epoch, Metrics: metrics, Model: model}
		for _, o := range observers {
			if err := o.OnEpochEnd(state); err != nil {
				return nil, err
			}
		}

		last = metrics
		l.epochs = epoch + 1
		if state.Stop {
			break
		}
	}

	end := &FitState{Epochs: l.epochs, Metrics: last, Model: model}
	for _, o := range observers {
		if err := o.OnFitEnd(end); err != nil {
			return nil, err
		}
	}

	return last, nil
}

func (l *Loop) trainEpoch(model Model, train BatchSource, epoch int) (Metrics, error) {
	var (
		loss      float64
		samples   int
		durations []time.Duration
	)

	err := train.Each(func(b dataset.Batch) error {
		before := time.Now()
		batchLoss, err := model.TrainBatch(b, l.LearningRate)
		if err != nil {
			return err
		}
		durations = append(durations, time.Since(before))
		loss += batchLoss * float64(b.Len())
		samples += b.Len()
		return nil
	})
	if err != nil {
		return nil, &FitError{Stage: "fit", Epoch: epoch, Err: err}
	}

	metrics := stepStats("train", durations)
	if samples > 0 {
		metrics["train_loss"] = loss / float64(samples)
	}
	return metrics, nil
}

// Test runs one pass over the test split with the model as it is.
func (l *Loop) Test(model Model, data DataSource) (Metrics, error) {
	test, err := data.Test()
	if err != nil {
		return nil, &FitError{Stage: "test", Epoch: -1, Err: err}
	}

	result, err := evaluate(model, test, l.Classes)
	if err != nil {
		return nil, &FitError{Stage: "test", Epoch: -1, Err: err}
	}

	metrics := result.metrics("test")
	if err := l.Logger.LogMetrics(metrics, l.epochs); err != nil {
		return nil, errors.Wrap(err, "log test metrics")
	}

	log.WithFields(fields(metrics)).Info("Test complete")
	return metrics, nil
}

func evaluate(model Model, source BatchSource, classes int) (*confusion, error) {
	c := newConfusion(classes)
	err := source.Each(func(b dataset.Batch) error {
		loss, predictions, err := model.EvalBatch(b)
		if err != nil {
			return err
		}
		c.add(b.Labels, predictions, loss)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func fields(m Metrics) log.Fields {
	f := make(log.Fields, len(m))
	for k, v := range m {
		f[k] = v
	}
	return f
}
