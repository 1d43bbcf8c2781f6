// Package tracking records the hyperparameters and metrics of a training
// run. Offline runs write a JSON document and a Prometheus text file into
// the results directory; online runs additionally push every epoch to a
// Prometheus pushgateway and to InfluxDB.
package tracking

import (
	"time"

	"github.com/pkg/errors"
)

const (
	Offline = "offline"
	Online  = "online"

	DefaultResultsDir = "results"
	DefaultJobName    = "shipclf"
	measurement       = "ship_classification"
)

// PrometheusConfig holds configuration for pushing metrics to a
// pushgateway.
type PrometheusConfig struct {
	PushURL string
	JobName string
}

// InfluxDBConfig holds configuration for writing metric points to InfluxDB.
type InfluxDBConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

type Config struct {
	Mode       string
	ResultsDir string
	Prometheus PrometheusConfig
	InfluxDB   InfluxDBConfig

	// Retries and RetryWait tune the HTTP client shared by the online sinks.
	Retries   int
	RetryWait time.Duration
	Timeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Mode:       Offline,
		ResultsDir: DefaultResultsDir,
		Prometheus: PrometheusConfig{JobName: DefaultJobName},
		Retries:    2,
		RetryWait:  500 * time.Millisecond,
		Timeout:    10 * time.Second,
	}
}

func (c Config) Validate() error {
	if c.ResultsDir == "" {
		return errors.New("results directory must be set")
	}

	switch c.Mode {
	case Offline:
		return nil
	case Online:
	default:
		return errors.Errorf("unknown log mode %q, must be %q or %q", c.Mode, Offline, Online)
	}

	if c.Prometheus.PushURL == "" && c.InfluxDB.URL == "" {
		return errors.New("online logging needs a pushgateway or InfluxDB URL")
	}
	if c.Prometheus.PushURL != "" && c.Prometheus.JobName == "" {
		return errors.New("pushgateway job name must be set")
	}
	if c.InfluxDB.URL != "" && (c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "") {
		return errors.New("InfluxDB org and bucket must be set")
	}
	if c.Retries < 0 {
		return errors.Errorf("retries %d must be >= 0", c.Retries)
	}
	return nil
}
