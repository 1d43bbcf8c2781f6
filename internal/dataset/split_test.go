package dataset

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitSizes(t *testing.T) {
	partition, err := Split(makeExamples(100), Fractions{Valid: 0.1, Test: 0.1}, DefaultSeed)
	require.Nil(t, err)

	require.Len(t, partition.Train, 80)
	require.Len(t, partition.Test, 10)
	require.Len(t, partition.Validation, 10)
}

func TestSplitBounds(t *testing.T) {
	tests := []struct {
		n         int
		fractions Fractions
		trainEnd  int
		testStart int
	}{
		{100, Fractions{0.1, 0.1}, 80, 90},
		{7, Fractions{0.1, 0.1}, 6, 7},
		{10, Fractions{0.25, 0.1}, 7, 9},
		{10, Fractions{0, 0}, 10, 10},
		{0, Fractions{0.1, 0.1}, 0, 0},
	}

	for _, test := range tests {
		t.Run(fmt.Sprintf("n=%d %v", test.n, test.fractions), func(t *testing.T) {
			trainEnd, testStart := test.fractions.Bounds(test.n)
			require.Equal(t, test.trainEnd, trainEnd)
			require.Equal(t, test.testStart, testStart)
		})
	}
}

func TestSplitDeterministic(t *testing.T) {
	examples := makeExamples(57)
	fractions := Fractions{Valid: 0.2, Test: 0.15}

	first, err := Split(examples, fractions, DefaultSeed)
	require.Nil(t, err)
	second, err := Split(examples, fractions, DefaultSeed)
	require.Nil(t, err)

	require.Equal(t, first, second)

	other, err := Split(examples, fractions, DefaultSeed+1)
	require.Nil(t, err)
	require.NotEqual(t, first.Train, other.Train)
}

func TestSplitCoversEverythingOnce(t *testing.T) {
	for _, fractions := range []Fractions{{0.1, 0.1}, {0.3, 0.3}, {0, 0.5}, {0.49, 0.5}, {0.05, 0}} {
		t.Run(fmt.Sprintf("%v", fractions), func(t *testing.T) {
			examples := makeExamples(113)
			partition, err := Split(examples, fractions, 7)
			require.Nil(t, err)

			seen := map[string]int{}
			for _, set := range [][]LabeledExample{partition.Train, partition.Validation, partition.Test} {
				for _, e := range set {
					seen[e.Image]++
				}
			}
			require.Len(t, seen, len(examples))
			for name, count := range seen {
				require.Equal(t, 1, count, name)
			}
		})
	}
}

func TestSplitDoesNotModifyInput(t *testing.T) {
	examples := makeExamples(20)
	before := append([]LabeledExample(nil), examples...)

	_, err := Split(examples, Fractions{0.1, 0.1}, DefaultSeed)
	require.Nil(t, err)
	require.Equal(t, before, examples)
}

func TestSplitRejectsInvalidFractions(t *testing.T) {
	for _, fractions := range []Fractions{{0.5, 0.5}, {0.9, 0.2}, {-0.1, 0.1}, {0.1, -0.1}} {
		t.Run(fmt.Sprintf("%v", fractions), func(t *testing.T) {
			_, err := Split(makeExamples(10), fractions, DefaultSeed)
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
		})
	}
}
