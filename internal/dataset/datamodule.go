package dataset

import (
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// State of a DataModule. Loaders are only available once Ready.
type State int

const (
	Unprepared State = iota
	Prepared
	Ready
)

func (s State) String() string {
	switch s {
	case Unprepared:
		return "unprepared"
	case Prepared:
		return "prepared"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

const (
	DefaultWorkers  = 4
	DefaultPrefetch = 2
)

type Options struct {
	// DataDir holds labels.csv and the images/ directory.
	DataDir   string
	Fractions Fractions
	Seed      int64
	BatchSize int
	ImgSize   int
	Workers   int
	Prefetch  int
	// Shuffle reorders the training batches on every pass. Validation and
	// test loaders always keep their order.
	Shuffle bool
}

func (o Options) LabelsPath() string {
	return filepath.Join(o.DataDir, "labels.csv")
}

func (o Options) ImagesDir() string {
	return filepath.Join(o.DataDir, "images")
}

// DataModule owns the three splits of the ship dataset and hands out
// loaders for them.
type DataModule struct {
	opts      Options
	state     State
	partition Partition
	train     Accessor
	valid     Accessor
	test      Accessor
}

func NewDataModule(opts Options) *DataModule {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Prefetch <= 0 {
		opts.Prefetch = DefaultPrefetch
	}
	return &DataModule{opts: opts}
}

func (dm *DataModule) State() State {
	return dm.state
}

// Prepare reads the label table and computes the split.
func (dm *DataModule) Prepare() error {
	examples, err := ReadLabels(dm.opts.LabelsPath())
	if err != nil {
		return err
	}

	return dm.PrepareFrom(examples)
}

// PrepareFrom splits an already loaded label table.
func (dm *DataModule) PrepareFrom(examples []LabeledExample) error {
	partition, err := Split(examples, dm.opts.Fractions, dm.opts.Seed)
	if err != nil {
		return err
	}

	dm.partition = partition
	dm.state = Prepared

	log.WithFields(log.Fields{
		"examples":   len(examples),
		"train":      len(partition.Train),
		"validation": len(partition.Validation),
		"test":       len(partition.Test),
		"seed":       dm.opts.Seed,
	}).Info("Split dataset")

	return nil
}

// Setup builds the accessors of all splits.
func (dm *DataModule) Setup() error {
	if dm.state < Prepared {
		return &StateError{Op: "setup", Have: dm.state, Want: Prepared}
	}

	imagesDir := dm.opts.ImagesDir()
	dm.train = NewImageDataset(imagesDir, dm.partition.Train, dm.opts.ImgSize)
	dm.valid = NewImageDataset(imagesDir, dm.partition.Validation, dm.opts.ImgSize)
	dm.test = NewImageDataset(imagesDir, dm.partition.Test, dm.opts.ImgSize)
	dm.state = Ready

	return nil
}

// Partition returns the split computed by Prepare.
func (dm *DataModule) Partition() (Partition, error) {
	if dm.state < Prepared {
		return Partition{}, &StateError{Op: "partition", Have: dm.state, Want: Prepared}
	}
	return dm.partition, nil
}

// Sizes reports the number of examples in each split.
func (dm *DataModule) Sizes() (train, validation, test int, err error) {
	p, err := dm.Partition()
	if err != nil {
		return 0, 0, 0, err
	}
	return len(p.Train), len(p.Validation), len(p.Test), nil
}

func (dm *DataModule) TrainLoader() (*Loader, error) {
	return dm.loader("train loader", dm.train, dm.opts.Shuffle)
}

func (dm *DataModule) ValidLoader() (*Loader, error) {
	return dm.loader("validation loader", dm.valid, false)
}

func (dm *DataModule) TestLoader() (*Loader, error) {
	return dm.loader("test loader", dm.test, false)
}

func (dm *DataModule) loader(op string, ds Accessor, shuffle bool) (*Loader, error) {
	if dm.state != Ready {
		return nil, &StateError{Op: op, Have: dm.state, Want: Ready}
	}

	return NewLoader(ds, LoaderOptions{
		BatchSize: dm.opts.BatchSize,
		Workers:   dm.opts.Workers,
		Prefetch:  dm.opts.Prefetch,
		Shuffle:   shuffle,
		Seed:      dm.opts.Seed,
	}), nil
}
