package dataset

import (
	"fmt"
	"os"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
)

// LabeledExample is one row of the label table.
type LabeledExample struct {
	Image    string   `csv:"image"`
	Category Category `csv:"category"`
}

// ReadLabels loads the label table at path. Every row must reference an
// image and carry a category code in [1, 5].
func ReadLabels(path string) ([]LabeledExample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &DataAccessError{Path: path, Err: err}
	}
	defer f.Close()

	var rows []*LabeledExample
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, &DataAccessError{Path: path, Err: errors.Wrap(err, "parse label table")}
	}

	examples := make([]LabeledExample, 0, len(rows))
	for i, row := range rows {
		// header is line 1
		line := i + 2
		if row.Image == "" {
			return nil, &DataAccessError{Path: path, Err: fmt.Errorf("line %d: empty image name", line)}
		}
		if !row.Category.Valid() {
			return nil, &DataAccessError{Path: path,
				Err: fmt.Errorf("line %d: category %d not in [1, %d]", line, row.Category, NumCategories)}
		}
		examples = append(examples, *row)
	}

	return examples, nil
}
