package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCategoryLabel(t *testing.T) {
	require.Equal(t, 2, Carrier.Label())
	require.Equal(t, "carrier", Carrier.String())

	for c := Cargo; c <= Tanker; c++ {
		require.Equal(t, int(c)-1, c.Label())
		back, err := CategoryFromLabel(c.Label())
		require.Nil(t, err)
		require.Equal(t, c, back)
	}

	_, err := CategoryFromLabel(NumCategories)
	require.NotNil(t, err)

	require.Equal(t, []string{"cargo", "navy", "carrier", "cruise", "tanker"}, CategoryNames())
}

func TestReadLabels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "labels.csv")
	require.Nil(t, os.WriteFile(path, []byte("image,category,source\n1.jpg,3,x\n2.jpg,5,y\n"), 0o644))

	examples, err := ReadLabels(path)
	require.Nil(t, err)
	require.Equal(t, []LabeledExample{
		{Image: "1.jpg", Category: Carrier},
		{Image: "2.jpg", Category: Tanker},
	}, examples)
}

func TestReadLabelsRejectsBadRows(t *testing.T) {
	tests := map[string]string{
		"code too large": "image,category\n1.jpg,6\n",
		"code zero":      "image,category\n1.jpg,0\n",
		"not a number":   "image,category\n1.jpg,boat\n",
		"empty image":    "image,category\n,2\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "labels.csv")
			require.Nil(t, os.WriteFile(path, []byte(content), 0o644))

			_, err := ReadLabels(path)
			var dataErr *DataAccessError
			require.True(t, errors.As(err, &dataErr), "got %v", err)
		})
	}
}

func TestReadLabelsMissingFile(t *testing.T) {
	_, err := ReadLabels(filepath.Join(t.TempDir(), "nope.csv"))
	var dataErr *DataAccessError
	require.True(t, errors.As(err, &dataErr))
	require.True(t, errors.Is(err, os.ErrNotExist))
}
