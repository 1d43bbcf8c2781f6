package trainer

import (
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type Options struct {
	Evaluate       bool
	Verbose        bool
	SaveCheckpoint bool
	Offline        bool

	// Extra is merged into the hyperparameters sent to the logger.
	Extra map[string]interface{}
}

// LoggerSpec identifies the experiment a MetricLogger is bound to.
type LoggerSpec struct {
	Project    string
	Experiment string
	RunID      string
	Offline    bool
}

// Dependencies are the collaborators of a run. Data and Model are required;
// everything else falls back to a default.
type Dependencies struct {
	Data      DataSource
	Model     Model
	NewLogger func(LoggerSpec) (MetricLogger, error)
	NewFitter func(Config, MetricLogger) Fitter
	Out       io.Writer
	Now       func() time.Time
}

func (d Dependencies) withDefaults() Dependencies {
	if d.NewLogger == nil {
		d.NewLogger = func(LoggerSpec) (MetricLogger, error) { return discardLogger{}, nil }
	}
	if d.NewFitter == nil {
		d.NewFitter = func(cfg Config, logger MetricLogger) Fitter { return NewLoop(cfg, logger) }
	}
	if d.Out == nil {
		d.Out = os.Stdout
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

type RunResult struct {
	Experiment     string
	RunID          string
	BestCheckpoint string
	BestScore      float64
	FitMetrics     Metrics
	TestMetrics    Metrics
	History        []Metrics
	// Logged is every metric sent to the logger, last value wins.
	Logged Metrics
}

func ExperimentName(now time.Time) string {
	return ExperimentPrefix + "_" + now.Format("2006-01-02_15-04-05.000000")
}

// Run trains the model on the data, optionally evaluates the best
// checkpoint on the test split and prints the logged metrics.
func Run(cfg Config, opts Options, deps Dependencies) (*RunResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Data == nil || deps.Model == nil {
		return nil, errors.New("run needs both a data source and a model")
	}
	deps = deps.withDefaults()

	result := &RunResult{
		Experiment: ExperimentName(deps.Now()),
		RunID:      uuid.NewString(),
		Logged:     Metrics{},
	}

	base, err := deps.NewLogger(LoggerSpec{
		Project:    cfg.Project,
		Experiment: result.Experiment,
		RunID:      result.RunID,
		Offline:    opts.Offline,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create experiment logger")
	}
	logger := &recorder{next: base, result: result}

	if err := run(cfg, opts, deps, logger, result); err != nil {
		if ferr := logger.Finish(); ferr != nil {
			log.WithError(ferr).Warn("Could not finish experiment log")
		}
		return nil, err
	}
	if err := logger.Finish(); err != nil {
		return nil, errors.Wrap(err, "finish experiment log")
	}
	return result, nil
}

func run(cfg Config, opts Options, deps Dependencies, logger MetricLogger, result *RunResult) error {
	params := cfg.Snapshot()
	for k, v := range opts.Extra {
		params[k] = v
	}
	params["run_id"] = result.RunID
	params["experiment"] = result.Experiment
	if err := logger.LogHyperparams(params); err != nil {
		return errors.Wrap(err, "log hyperparameters")
	}

	log.WithFields(log.Fields{
		"experiment": result.Experiment,
		"run_id":     result.RunID,
		"epochs":     cfg.Epochs,
		"bs":         cfg.BatchSize,
		"lr":         cfg.LearningRate,
		"img_size":   cfg.ImgSize,
	}).Info("Starting run")

	if err := deps.Data.Setup(); err != nil {
		return err
	}

	valid, err := deps.Data.Validation()
	if err != nil {
		return err
	}
	monitored := valid.Len() > 0
	if !monitored && (opts.SaveCheckpoint || cfg.Patience > 0) {
		log.WithField("monitor", cfg.Monitor).
			Warn("Validation split is empty, checkpointing and early stopping are disabled")
	}

	var observers []Observer
	var checkpoint *CheckpointObserver
	if opts.SaveCheckpoint && monitored {
		checkpoint = NewCheckpointObserver(cfg.ArtifactsDir, CheckpointName, cfg.Monitor, Max)
		observers = append(observers, checkpoint)
	}
	if cfg.Patience > 0 && monitored {
		observers = append(observers, NewEarlyStopping(cfg.Monitor, cfg.MinDelta, cfg.Patience, Max))
	}

	fitter := deps.NewFitter(cfg, logger)
	fitMetrics, err := fitter.Fit(deps.Model, deps.Data, observers)
	if err != nil {
		return wrapFit(err)
	}
	result.FitMetrics = fitMetrics

	if checkpoint != nil {
		if score, ok := checkpoint.BestScore(); ok {
			result.BestCheckpoint = checkpoint.BestPath()
			result.BestScore = score
		}
	}

	if opts.Evaluate {
		if result.BestCheckpoint != "" {
			if err := LoadCheckpoint(deps.Model, result.BestCheckpoint); err != nil {
				return err
			}
		} else {
			log.Warn("No best checkpoint available, testing the current weights")
		}

		testMetrics, err := fitter.Test(deps.Model, deps.Data)
		if err != nil {
			return wrapFit(err)
		}
		result.TestMetrics = testMetrics
	}

	if opts.Verbose {
		if _, err := result.Logged.WriteTextTo(deps.Out); err != nil {
			return errors.Wrap(err, "print metrics")
		}
	}
	return nil
}

// wrapFit leaves typed errors from observers and the data module alone and
// wraps everything else as a FitError.
func wrapFit(err error) error {
	var fitErr *FitError
	var ckptErr *CheckpointError
	if errors.As(err, &fitErr) || errors.As(err, &ckptErr) {
		return err
	}
	return &FitError{Stage: "fit", Epoch: -1, Err: err}
}

// recorder keeps a copy of everything passed to the logger.
type recorder struct {
	next   MetricLogger
	result *RunResult
}

func (r *recorder) LogHyperparams(params map[string]interface{}) error {
	return r.next.LogHyperparams(params)
}

func (r *recorder) LogMetrics(metrics map[string]float64, step int) error {
	m := Metrics{}
	for k, v := range metrics {
		m[k] = v
	}
	r.result.History = append(r.result.History, m)
	r.result.Logged.Merge(m)
	return r.next.LogMetrics(metrics, step)
}

func (r *recorder) Finish() error {
	return r.next.Finish()
}

type discardLogger struct{}

func (discardLogger) LogHyperparams(map[string]interface{}) error { return nil }
func (discardLogger) LogMetrics(map[string]float64, int) error    { return nil }
func (discardLogger) Finish() error                               { return nil }
