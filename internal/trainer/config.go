package trainer

import (
	"encoding/json"
	"math"

	"github.com/pkg/errors"

	"github.com/shipvision/shipclf/internal/dataset"
)

const (
	// CheckpointName is the fixed file name of the best checkpoint. Every run
	// overwrites the previous one in the same artifacts directory.
	CheckpointName = "classification_model"

	DefaultProject = "Ships_wandb_course"
	DefaultMonitor = "valid_F1Score"

	// ExperimentPrefix starts every experiment name.
	ExperimentPrefix = "ship_classification"

	// Precision is the only numeric precision the reference loop supports.
	Precision = 32
)

// Config is resolved once before a run and passed by value; nothing changes
// it while the run is in progress.
type Config struct {
	ImgSize      int     `mapstructure:"img_size" json:"img_size"`
	BatchSize    int     `mapstructure:"bs" json:"bs"`
	Epochs       int     `mapstructure:"epochs" json:"epochs"`
	LearningRate float64 `mapstructure:"lr" json:"lr"`

	ValidSplit float64 `mapstructure:"valid_split" json:"valid_split"`
	TestSplit  float64 `mapstructure:"test_split" json:"test_split"`
	Seed       int64   `mapstructure:"seed" json:"seed"`
	Workers    int     `mapstructure:"workers" json:"workers"`
	Shuffle    bool    `mapstructure:"shuffle" json:"shuffle"`
	Precision  int     `mapstructure:"precision" json:"precision"`

	Monitor  string  `mapstructure:"monitor" json:"monitor"`
	Patience int     `mapstructure:"patience" json:"patience"`
	MinDelta float64 `mapstructure:"min_delta" json:"min_delta"`

	Project      string `mapstructure:"project" json:"project"`
	DataDir      string `mapstructure:"data_dir" json:"data_dir"`
	ArtifactsDir string `mapstructure:"artifacts" json:"artifacts"`
}

// DefaultConfig returns the hyperparameters the classifier is normally
// trained with.
func DefaultConfig() Config {
	return Config{
		ImgSize:      32,
		BatchSize:    12,
		Epochs:       16,
		LearningRate: 0.004,
		ValidSplit:   0.1,
		TestSplit:    0.1,
		Seed:         dataset.DefaultSeed,
		Workers:      dataset.DefaultWorkers,
		Precision:    Precision,
		Monitor:      DefaultMonitor,
		MinDelta:     0.001,
		Project:      DefaultProject,
		DataDir:      "data",
		ArtifactsDir: "artifacts",
	}
}

func (c Config) Fractions() dataset.Fractions {
	return dataset.Fractions{Valid: c.ValidSplit, Test: c.TestSplit}
}

func (c Config) Validate() error {
	if c.ImgSize <= 0 {
		return &ConfigError{Field: "img_size", Err: errors.Errorf("%d must be > 0", c.ImgSize)}
	}
	if c.BatchSize <= 0 {
		return &ConfigError{Field: "bs", Err: errors.Errorf("%d must be > 0", c.BatchSize)}
	}
	if c.Epochs < 0 {
		return &ConfigError{Field: "epochs", Err: errors.Errorf("%d must be >= 0", c.Epochs)}
	}
	if math.IsNaN(c.LearningRate) || math.IsInf(c.LearningRate, 0) || c.LearningRate <= 0 {
		return &ConfigError{Field: "lr", Err: errors.Errorf("%v must be > 0", c.LearningRate)}
	}
	if err := c.Fractions().Validate(); err != nil {
		return &ConfigError{Field: "split", Err: err}
	}
	if c.Workers < 0 {
		return &ConfigError{Field: "workers", Err: errors.Errorf("%d must be >= 0", c.Workers)}
	}
	if c.Precision != Precision {
		return &ConfigError{Field: "precision", Err: errors.Errorf("only %d-bit training is supported", Precision)}
	}
	if c.Monitor == "" {
		return &ConfigError{Field: "monitor", Err: errors.New("metric name must be set")}
	}
	if c.Patience < 0 {
		return &ConfigError{Field: "patience", Err: errors.Errorf("%d must be >= 0", c.Patience)}
	}
	if c.Project == "" {
		return &ConfigError{Field: "project", Err: errors.New("must be set")}
	}
	return nil
}

// Snapshot flattens the config into the key/value form sent to the
// experiment logger.
func (c Config) Snapshot() map[string]interface{} {
	data, err := json.Marshal(c)
	if err != nil {
		panic(err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		panic(err)
	}
	return out
}
