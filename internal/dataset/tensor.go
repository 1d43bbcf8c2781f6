package dataset

// Tensor is a square single-channel image stored row-major.
type Tensor struct {
	Size int
	Data []float32
}

func NewTensor(size int) Tensor {
	return Tensor{Size: size, Data: make([]float32, size*size)}
}

// Shape returns (rows, cols).
func (t Tensor) Shape() (int, int) {
	return t.Size, t.Size
}

func (t Tensor) At(y, x int) float32 {
	return t.Data[y*t.Size+x]
}

// Sample is one decoded example with its 0-based label.
type Sample struct {
	Tensor Tensor
	Label  int
}

// Batch of consecutive samples of a split. Offset is the position of the
// first sample within the split.
type Batch struct {
	Inputs []Tensor
	Labels []int
	Offset int
}

func (b Batch) Len() int {
	return len(b.Labels)
}
