package cmd

import (
	"io"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"

	"github.com/shipvision/shipclf/internal/dataset"
	"github.com/shipvision/shipclf/internal/model"
	"github.com/shipvision/shipclf/internal/tracking"
	"github.com/shipvision/shipclf/internal/trainer"
)

func runTraining(cfg Config, out io.Writer) (*trainer.RunResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dm := dataset.NewDataModule(dataset.Options{
		DataDir:   cfg.DataDir,
		Fractions: cfg.Fractions(),
		Seed:      cfg.Seed,
		BatchSize: cfg.BatchSize,
		ImgSize:   cfg.ImgSize,
		Workers:   cfg.Workers,
		Shuffle:   cfg.Shuffle,
	})
	classifier := model.NewSoftmax(cfg.ImgSize, dataset.NumCategories, cfg.Seed)

	now := time.Now()
	experiment := trainer.ExperimentName(now)

	monitor := tracking.NewMemoryMonitor(tracking.MonitorConfig{
		Enabled:  cfg.MemoryMonitoring,
		Interval: cfg.MemoryInterval,
		File:     tracking.MemoryFile(cfg.ResultsDir, experiment),
	})
	monitor.Start()
	defer func() {
		monitor.Stop()
		if cfg.MemoryMonitoring {
			log.WithField("heap_alloc_peak", humanize.Bytes(uint64(monitor.Peak()))).Info("Memory usage")
		}
	}()

	extra := tracking.HostInfo()
	for k, v := range cfg.LabelMap {
		extra[k] = v
	}

	trackCfg := cfg.tracking()
	return trainer.Run(cfg.Config, trainer.Options{
		Evaluate:       cfg.Evaluate,
		Verbose:        cfg.Verbose,
		SaveCheckpoint: cfg.Save,
		Offline:        cfg.offline(),
		Extra:          extra,
	}, trainer.Dependencies{
		Data:  trainer.DataModuleSource(dm),
		Model: classifier,
		NewLogger: func(spec trainer.LoggerSpec) (trainer.MetricLogger, error) {
			return tracking.New(trackCfg, spec)
		},
		Out: out,
		Now: func() time.Time { return now },
	})
}
