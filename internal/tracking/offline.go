package tracking

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	log "github.com/sirupsen/logrus"

	"github.com/shipvision/shipclf/internal/trainer"
)

// Step is the set of metrics logged for one step.
type Step struct {
	Step    int                `json:"step"`
	Time    time.Time          `json:"time"`
	Metrics map[string]float64 `json:"metrics"`
}

// RunDocument is the JSON file an offline run leaves behind.
type RunDocument struct {
	Project    string                 `json:"project"`
	Experiment string                 `json:"experiment"`
	RunID      string                 `json:"run_id"`
	Started    time.Time              `json:"started"`
	Finished   time.Time              `json:"finished"`
	Config     map[string]interface{} `json:"config"`
	History    []Step                 `json:"history"`
	// Final holds the last logged value of every metric.
	Final map[string]float64 `json:"final"`
}

// OfflineLogger keeps everything in memory and writes it out on Finish.
type OfflineLogger struct {
	dir string
	doc RunDocument
	mu  sync.Mutex
}

func NewOfflineLogger(dir string, spec trainer.LoggerSpec) *OfflineLogger {
	return &OfflineLogger{
		dir: dir,
		doc: RunDocument{
			Project:    spec.Project,
			Experiment: spec.Experiment,
			RunID:      spec.RunID,
			Started:    time.Now(),
			Config:     map[string]interface{}{},
			Final:      map[string]float64{},
		},
	}
}

func (l *OfflineLogger) LogHyperparams(params map[string]interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, v := range params {
		l.doc.Config[k] = v
	}
	return nil
}

func (l *OfflineLogger) LogMetrics(metrics map[string]float64, step int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	copied := make(map[string]float64, len(metrics))
	for k, v := range metrics {
		copied[k] = v
		l.doc.Final[k] = v
	}
	l.doc.History = append(l.doc.History, Step{Step: step, Time: time.Now(), Metrics: copied})
	return nil
}

func (l *OfflineLogger) JSONPath() string {
	return filepath.Join(l.dir, l.doc.Experiment+".json")
}

func (l *OfflineLogger) PromPath() string {
	return filepath.Join(l.dir, l.doc.Experiment+".prom")
}

// Finish writes the run document and the textfile with the final metrics.
func (l *OfflineLogger) Finish() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.doc.Finished = time.Now()

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return errors.Wrap(err, "create results directory")
	}

	data, err := json.MarshalIndent(l.doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal run document")
	}
	if err := os.WriteFile(l.JSONPath(), data, 0o644); err != nil {
		return errors.Wrap(err, "write run document")
	}

	if err := l.writeTextfile(); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"file":    l.JSONPath(),
		"steps":   len(l.doc.History),
		"metrics": len(l.doc.Final),
	}).Info("Experiment log written")
	return nil
}

func (l *OfflineLogger) writeTextfile() error {
	registry := prometheus.NewRegistry()
	gauges := newRunGauges(registry, l.doc.Project, l.doc.Experiment, l.doc.RunID)
	gauges.set(l.doc.Final)

	families, err := registry.Gather()
	if err != nil {
		return errors.Wrap(err, "gather final metrics")
	}

	f, err := os.Create(l.PromPath())
	if err != nil {
		return errors.Wrap(err, "create metrics textfile")
	}
	defer f.Close()

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(f, mf); err != nil {
			return errors.Wrap(err, "write metrics textfile")
		}
	}
	return nil
}

// Document returns a copy of the run document as it stands.
func (l *OfflineLogger) Document() RunDocument {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc := l.doc
	doc.History = append([]Step(nil), l.doc.History...)
	doc.Final = make(map[string]float64, len(l.doc.Final))
	for k, v := range l.doc.Final {
		doc.Final[k] = v
	}
	return doc
}

// ReadRunDocument parses a file written by OfflineLogger.Finish.
func ReadRunDocument(path string) (*RunDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc RunDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, "parse run document %s", path)
	}
	return &doc, nil
}

var invalidMetricChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// MetricName maps a logged metric to the Prometheus name it is exported as.
func MetricName(name string) string {
	return "shipclf_" + invalidMetricChars.ReplaceAllString(name, "_")
}

// runGauges creates one gauge per logged metric on first use, labelled with
// the identity of the run.
type runGauges struct {
	registry *prometheus.Registry
	labels   prometheus.Labels
	gauges   map[string]prometheus.Gauge
}

func newRunGauges(registry *prometheus.Registry, project, experiment, runID string) *runGauges {
	return &runGauges{
		registry: registry,
		labels: prometheus.Labels{
			"project":    project,
			"experiment": experiment,
			"run_id":     runID,
		},
		gauges: map[string]prometheus.Gauge{},
	}
}

func (g *runGauges) set(metrics map[string]float64) {
	for name, value := range metrics {
		gauge, ok := g.gauges[name]
		if !ok {
			gauge = prometheus.NewGauge(prometheus.GaugeOpts{
				Name:        MetricName(name),
				Help:        "Last logged value of " + name,
				ConstLabels: g.labels,
			})
			if err := g.registry.Register(gauge); err != nil {
				log.WithError(err).WithField("metric", name).Warn("Could not register gauge")
				continue
			}
			g.gauges[name] = gauge
		}
		gauge.Set(value)
	}
}
