package tracking

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	log "github.com/sirupsen/logrus"

	"github.com/shipvision/shipclf/internal/trainer"
)

// OnlineLogger writes the same files as OfflineLogger and also publishes
// every step as it is logged. Failures of the remote sinks are logged and
// never fail the run.
type OnlineLogger struct {
	*OfflineLogger

	cfg      Config
	spec     trainer.LoggerSpec
	registry *prometheus.Registry
	gauges   *runGauges
	pusher   *push.Pusher
	influx   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

func NewOnlineLogger(cfg Config, spec trainer.LoggerSpec) *OnlineLogger {
	client := newHTTPClient(cfg)

	l := &OnlineLogger{
		OfflineLogger: NewOfflineLogger(cfg.ResultsDir, spec),
		cfg:           cfg,
		spec:          spec,
		registry:      prometheus.NewRegistry(),
	}
	l.gauges = newRunGauges(l.registry, spec.Project, spec.Experiment, spec.RunID)

	if cfg.Prometheus.PushURL != "" {
		l.pusher = push.New(cfg.Prometheus.PushURL, cfg.Prometheus.JobName).
			Gatherer(l.registry).
			Client(client)
	}

	if cfg.InfluxDB.URL != "" {
		l.influx = influxdb2.NewClientWithOptions(cfg.InfluxDB.URL, cfg.InfluxDB.Token,
			influxdb2.DefaultOptions().SetHTTPClient(client))
		l.writeAPI = l.influx.WriteAPIBlocking(cfg.InfluxDB.Org, cfg.InfluxDB.Bucket)
	}

	return l
}

func (l *OnlineLogger) LogMetrics(metrics map[string]float64, step int) error {
	if err := l.OfflineLogger.LogMetrics(metrics, step); err != nil {
		return err
	}

	if l.pusher != nil {
		l.gauges.set(metrics)
		if err := l.pusher.Push(); err != nil {
			log.WithError(err).WithField("url", l.cfg.Prometheus.PushURL).Error("Failed to push metrics to Prometheus")
		} else {
			log.WithFields(log.Fields{
				"url":  l.cfg.Prometheus.PushURL,
				"job":  l.cfg.Prometheus.JobName,
				"step": step,
			}).Debug("Pushed metrics to Prometheus")
		}
	}

	if l.writeAPI != nil {
		if err := l.writePoint(metrics, step); err != nil {
			log.WithError(err).WithField("url", l.cfg.InfluxDB.URL).Error("Failed to push metrics to InfluxDB")
		} else {
			log.WithFields(log.Fields{
				"url":    l.cfg.InfluxDB.URL,
				"bucket": l.cfg.InfluxDB.Bucket,
				"step":   step,
			}).Debug("Pushed metrics to InfluxDB")
		}
	}

	return nil
}

func (l *OnlineLogger) writePoint(metrics map[string]float64, step int) error {
	if len(metrics) == 0 {
		return nil
	}

	fields := make(map[string]interface{}, len(metrics)+1)
	for k, v := range metrics {
		fields[k] = v
	}
	fields["step"] = step

	p := influxdb2.NewPoint(measurement, map[string]string{
		"project":    l.spec.Project,
		"experiment": l.spec.Experiment,
		"run_id":     l.spec.RunID,
	}, fields, time.Now())

	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.Timeout)
	defer cancel()
	return l.writeAPI.WritePoint(ctx, p)
}

func (l *OnlineLogger) Finish() error {
	if l.influx != nil {
		l.influx.Close()
	}
	return l.OfflineLogger.Finish()
}

// New returns the logger selected by cfg.Mode.
func New(cfg Config, spec trainer.LoggerSpec) (trainer.MetricLogger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if spec.Offline || cfg.Mode == Offline {
		return NewOfflineLogger(cfg.ResultsDir, spec), nil
	}
	return NewOnlineLogger(cfg, spec), nil
}

func newHTTPClient(cfg Config) *http.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.Retries
	if cfg.RetryWait > 0 {
		client.RetryWaitMin = cfg.RetryWait
		client.RetryWaitMax = 4 * cfg.RetryWait
	}
	client.Logger = retryLogger{}

	std := client.StandardClient()
	if cfg.Timeout > 0 {
		std.Timeout = cfg.Timeout
	}
	return std
}

// retryLogger sends the retry client's messages to logrus at debug level.
type retryLogger struct{}

func (retryLogger) entry(keysAndValues []interface{}) *log.Entry {
	fields := log.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields[key] = keysAndValues[i+1]
		}
	}
	return log.WithFields(fields)
}

func (r retryLogger) Error(msg string, keysAndValues ...interface{}) {
	r.entry(keysAndValues).Debug(msg)
}

func (r retryLogger) Info(msg string, keysAndValues ...interface{}) {
	r.entry(keysAndValues).Debug(msg)
}

func (r retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	r.entry(keysAndValues).Debug(msg)
}

func (r retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	r.entry(keysAndValues).Debug(msg)
}
