package dataset

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
)

// DefaultSeed keeps the split identical between runs.
const DefaultSeed int64 = 112

// Fractions holds the held-out proportions of the split. Their sum must be
// below 1 so the training partition is never empty by construction.
type Fractions struct {
	Valid float64
	Test  float64
}

func (f Fractions) Validate() error {
	if f.Valid < 0 || math.IsNaN(f.Valid) {
		return &ConfigError{Field: "valid fraction", Err: errors.Errorf("%v must be >= 0", f.Valid)}
	}
	if f.Test < 0 || math.IsNaN(f.Test) {
		return &ConfigError{Field: "test fraction", Err: errors.Errorf("%v must be >= 0", f.Test)}
	}
	if f.Valid+f.Test >= 1 {
		return &ConfigError{Field: "split",
			Err: errors.Errorf("valid + test = %v must be < 1", f.Valid+f.Test)}
	}
	return nil
}

// Partition is the result of splitting the label table.
type Partition struct {
	Train      []LabeledExample
	Validation []LabeledExample
	Test       []LabeledExample
}

// Bounds returns the slice boundaries for n examples: train is [0, trainEnd),
// test is [trainEnd, testStart) and validation is [testStart, n).
func (f Fractions) Bounds(n int) (trainEnd, testStart int) {
	trainEnd = n - int(math.Floor(float64(n)*(f.Valid+f.Test)))
	testStart = n - int(math.Floor(float64(n)*f.Test))
	return trainEnd, testStart
}

// Split shuffles a copy of examples once with seed and slices it. The middle
// slice is the test set and the trailing slice the validation set; model
// selection depends on which slice is which, so this order is fixed.
func Split(examples []LabeledExample, fractions Fractions, seed int64) (Partition, error) {
	if err := fractions.Validate(); err != nil {
		return Partition{}, err
	}

	shuffled := make([]LabeledExample, len(examples))
	copy(shuffled, examples)
	r := rand.New(rand.NewSource(seed))
	r.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	trainEnd, testStart := fractions.Bounds(len(shuffled))

	return Partition{
		Train:      shuffled[:trainEnd:trainEnd],
		Test:       shuffled[trainEnd:testStart:testStart],
		Validation: shuffled[testStart:],
	}, nil
}
