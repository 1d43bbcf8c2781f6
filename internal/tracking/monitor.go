package tracking

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"
	log "github.com/sirupsen/logrus"
)

type MemorySample struct {
	Timestamp      time.Time `json:"timestamp"`
	HeapAllocBytes float64   `json:"heap_alloc_bytes"`
	HeapInuseBytes float64   `json:"heap_inuse_bytes"`
	HeapSysBytes   float64   `json:"heap_sys_bytes"`
}

type MonitorConfig struct {
	Enabled  bool
	Interval time.Duration
	// File receives the samples as JSON when the monitor stops.
	File string
}

// MemoryMonitor samples the heap of this process in the background while
// a run is in progress.
type MemoryMonitor struct {
	cfg      MonitorConfig
	gatherer prometheus.Gatherer
	samples  []MemorySample
	mutex    sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewMemoryMonitor(cfg MonitorConfig) *MemoryMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	return &MemoryMonitor{
		cfg:      cfg,
		gatherer: registry,
		samples:  make([]MemorySample, 0),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// MemoryFile is the default location of the samples of an experiment.
func MemoryFile(resultsDir, experiment string) string {
	return filepath.Join(resultsDir, experiment+"_memory.json")
}

func (m *MemoryMonitor) Start() {
	if !m.cfg.Enabled {
		return
	}

	interval := m.cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	log.WithFields(log.Fields{
		"interval": interval,
		"file":     m.cfg.File,
	}).Info("Starting memory monitoring")

	m.wg.Add(1)
	go m.monitorLoop(interval)
}

func (m *MemoryMonitor) Stop() {
	if !m.cfg.Enabled {
		return
	}

	log.Info("Stopping memory monitoring")
	m.cancel()
	m.wg.Wait()

	if m.cfg.File == "" {
		return
	}
	if err := m.writeToFile(); err != nil {
		log.WithError(err).Error("Failed to write memory samples to file")
		return
	}
	log.WithFields(log.Fields{
		"file":    m.cfg.File,
		"entries": len(m.Samples()),
	}).Info("Memory samples written to file")
}

func (m *MemoryMonitor) monitorLoop(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.recordSample()

	for {
		select {
		case <-m.ctx.Done():
			m.recordSample()
			return
		case <-ticker.C:
			m.recordSample()
		}
	}
}

func (m *MemoryMonitor) recordSample() {
	sample, err := readMemoryMetrics(m.gatherer)
	if err != nil {
		log.WithError(err).Warn("Failed to read memory metrics")
		return
	}
	sample.Timestamp = time.Now()

	m.mutex.Lock()
	m.samples = append(m.samples, sample)
	m.mutex.Unlock()

	log.WithFields(log.Fields{
		"heap_alloc": humanize.Bytes(uint64(sample.HeapAllocBytes)),
		"heap_inuse": humanize.Bytes(uint64(sample.HeapInuseBytes)),
		"heap_sys":   humanize.Bytes(uint64(sample.HeapSysBytes)),
	}).Debug("Recorded memory sample")
}

func readMemoryMetrics(gatherer prometheus.Gatherer) (MemorySample, error) {
	families, err := gatherer.Gather()
	if err != nil {
		return MemorySample{}, err
	}

	var sample MemorySample
	for _, mf := range families {
		value, ok := gaugeValue(mf)
		if !ok {
			continue
		}
		switch mf.GetName() {
		case "go_memstats_heap_alloc_bytes":
			sample.HeapAllocBytes = value
		case "go_memstats_heap_inuse_bytes":
			sample.HeapInuseBytes = value
		case "go_memstats_heap_sys_bytes":
			sample.HeapSysBytes = value
		}
	}
	return sample, nil
}

func gaugeValue(mf *dto.MetricFamily) (float64, bool) {
	if mf.GetType() != dto.MetricType_GAUGE || len(mf.GetMetric()) == 0 {
		return 0, false
	}
	return mf.GetMetric()[0].GetGauge().GetValue(), true
}

func (m *MemoryMonitor) writeToFile() error {
	samples := m.Samples()

	if err := os.MkdirAll(filepath.Dir(m.cfg.File), 0o755); err != nil {
		return errors.Wrap(err, "create results directory")
	}

	data, err := json.MarshalIndent(samples, "", "    ")
	if err != nil {
		return errors.Wrap(err, "marshal memory samples")
	}

	return errors.Wrap(os.WriteFile(m.cfg.File, data, 0o644), "write memory samples")
}

func (m *MemoryMonitor) Samples() []MemorySample {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	result := make([]MemorySample, len(m.samples))
	copy(result, m.samples)
	return result
}

// Peak returns the largest heap allocation seen so far.
func (m *MemoryMonitor) Peak() float64 {
	var peak float64
	for _, s := range m.Samples() {
		if s.HeapAllocBytes > peak {
			peak = s.HeapAllocBytes
		}
	}
	return peak
}
