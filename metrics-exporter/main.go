package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/shipvision/shipclf/internal/tracking"
)

const (
	namespace    = "shipclf"
	memorySuffix = "_memory.json"
)

var runLabels = []string{"project", "experiment", "run_id"}

// exported lists the final run metrics served as gauges.
var exported = []struct {
	name string
	help string
}{
	{"train_loss", "Training loss of the last epoch"},
	{"valid_loss", "Validation loss of the last epoch"},
	{"valid_Accuracy", "Validation accuracy of the last epoch"},
	{"valid_F1Score", "Validation macro F1 score of the last epoch"},
	{"test_loss", "Test loss of the best checkpoint"},
	{"test_Accuracy", "Test accuracy of the best checkpoint"},
	{"test_F1Score", "Test macro F1 score of the best checkpoint"},
	{"epoch", "Last completed epoch"},
	{"train_step_p99_s", "99th percentile of the training step duration"},
}

type Exporter struct {
	registry *prometheus.Registry
	metrics  map[string]*prometheus.GaugeVec
	heapPeak *prometheus.GaugeVec

	mu sync.Mutex
	// labels of the run each document path was last exported with
	runs map[string]prometheus.Labels
}

func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		metrics:  make(map[string]*prometheus.GaugeVec),
		runs:     make(map[string]prometheus.Labels),
	}

	for _, metric := range exported {
		e.metrics[metric.name] = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      strings.TrimPrefix(tracking.MetricName(metric.name), namespace+"_"),
				Help:      metric.help,
			},
			runLabels,
		)
		e.registry.MustRegister(e.metrics[metric.name])
	}

	e.heapPeak = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "heap_alloc_peak_bytes",
		Help:      "Largest sampled heap allocation of a run",
	}, []string{"experiment"})
	e.registry.MustRegister(e.heapPeak)

	return e
}

func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

func (e *Exporter) processFile(path string) error {
	if strings.HasSuffix(path, memorySuffix) {
		return e.processMemoryFile(path)
	}

	doc, err := tracking.ReadRunDocument(path)
	if err != nil {
		return err
	}

	labels := prometheus.Labels{
		"project":    doc.Project,
		"experiment": doc.Experiment,
		"run_id":     doc.RunID,
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if previous, ok := e.runs[path]; ok {
		for _, metric := range e.metrics {
			metric.Delete(previous)
		}
	}
	e.runs[path] = labels

	for name, metric := range e.metrics {
		if value, ok := doc.Final[name]; ok {
			metric.With(labels).Set(value)
		}
	}

	log.WithFields(log.Fields{"file": path, "experiment": doc.Experiment}).Info("Successfully processed file")
	return nil
}

func (e *Exporter) processMemoryFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading file %s: %v", path, err)
	}

	var samples []tracking.MemorySample
	if err := json.Unmarshal(content, &samples); err != nil {
		return fmt.Errorf("error parsing JSON from file %s: %v", path, err)
	}

	var peak float64
	for _, s := range samples {
		if s.HeapAllocBytes > peak {
			peak = s.HeapAllocBytes
		}
	}

	experiment := strings.TrimSuffix(filepath.Base(path), memorySuffix)
	e.heapPeak.WithLabelValues(experiment).Set(peak)
	return nil
}

// scan processes every result already in dir.
func (e *Exporter) scan(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("error reading directory: %v", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.processFile(path); err != nil {
			log.WithError(err).WithField("file", path).Warn("Error processing existing file")
		}
	}
	return nil
}

// Watch processes the results in dir and then every result written to it
// until ctx is done.
func (e *Exporter) Watch(ctx context.Context, dir string, ready chan<- struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("error creating watcher: %v", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("error adding directory to watcher: %v", err)
	}
	if err := e.scan(dir); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}
			if err := e.processFile(event.Name); err != nil {
				// files are written in one go, a partial read is retried on
				// the next write event
				log.WithError(err).WithField("file", event.Name).Debug("Error processing file")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("Error watching directory")
		}
	}
}

func main() {
	var (
		dirPath string
		port    int
	)

	rootCmd := &cobra.Command{
		Use:   "metrics-exporter",
		Short: "Training Metrics Exporter",
		Long:  `Watch the shipclf results directory and export the final metrics of every run via Prometheus.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if dirPath == "" {
				return fmt.Errorf("directory path is required")
			}
			return os.MkdirAll(dirPath, 0o755)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			exporter := NewExporter()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			go func() {
				if err := exporter.Watch(ctx, dirPath, nil); err != nil {
					log.WithError(err).Fatal("Watching results failed")
				}
			}()

			mux := http.NewServeMux()
			mux.Handle("/metrics", exporter.Handler())
			mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`<html>
					<head><title>Training Metrics Exporter</title></head>
					<body>
						<h1>Training Metrics Exporter</h1>
						<p><a href="/metrics">Metrics</a></p>
					</body>
					</html>`))
			})

			serverAddr := fmt.Sprintf(":%d", port)
			log.WithField("addr", serverAddr).Info("Starting metrics server")
			return http.ListenAndServe(serverAddr, mux)
		},
	}

	rootCmd.Flags().StringVarP(&dirPath, "dir", "d", tracking.DefaultResultsDir, "Results directory path to watch")
	rootCmd.Flags().IntVarP(&port, "port", "p", 2120, "Port to serve metrics on")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
