package dataset

import "github.com/pkg/errors"

// Category is a ship type. Values are the 1-based codes used in the label
// table.
type Category int

const (
	Cargo Category = iota + 1
	Navy
	Carrier
	Cruise
	Tanker
)

// NumCategories is the number of ship types in the dataset.
const NumCategories = 5

var categoryNames = map[Category]string{
	Cargo:   "cargo",
	Navy:    "navy",
	Carrier: "carrier",
	Cruise:  "cruise",
	Tanker:  "tanker",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "unknown"
}

func (c Category) Valid() bool {
	return c >= Cargo && c <= Tanker
}

// Label converts the 1-based category code into the 0-based class index
// the model is trained on.
func (c Category) Label() int {
	return int(c) - 1
}

// CategoryFromLabel is the inverse of Category.Label.
func CategoryFromLabel(label int) (Category, error) {
	c := Category(label + 1)
	if !c.Valid() {
		return 0, errors.Errorf("label %d out of range [0, %d)", label, NumCategories)
	}
	return c, nil
}

// CategoryNames returns the class names ordered by label.
func CategoryNames() []string {
	names := make([]string, NumCategories)
	for c, name := range categoryNames {
		names[c.Label()] = name
	}
	return names
}
