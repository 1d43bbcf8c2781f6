// Package model holds the reference classifier trained by the shipclf
// driver: multinomial logistic regression over the flattened image tensor.
package model

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/shipvision/shipclf/internal/dataset"
)

// Softmax is a linear classifier followed by a softmax. Weights are stored
// class-major: Weights[c*Inputs+i].
type Softmax struct {
	Inputs  int
	Classes int
	Weights []float32
	Bias    []float32

	// scratch buffers reused across batches
	logits []float64
	grad   []float64
}

// NewSoftmax initialises weights with Xavier uniform noise from seed.
func NewSoftmax(imgSize, classes int, seed int64) *Softmax {
	inputs := imgSize * imgSize
	m := &Softmax{
		Inputs:  inputs,
		Classes: classes,
		Weights: make([]float32, inputs*classes),
		Bias:    make([]float32, classes),
	}

	limit := math.Sqrt(6 / float64(inputs+classes))
	r := rand.New(rand.NewSource(seed))
	for i := range m.Weights {
		m.Weights[i] = float32((r.Float64()*2 - 1) * limit)
	}

	return m
}

func (m *Softmax) checkInput(t dataset.Tensor) error {
	if len(t.Data) != m.Inputs {
		return errors.Errorf("input has %d values, model expects %d", len(t.Data), m.Inputs)
	}
	return nil
}

// probabilities writes softmax(W x + b) into m.logits.
func (m *Softmax) probabilities(x []float32) []float64 {
	if len(m.logits) != m.Classes {
		m.logits = make([]float64, m.Classes)
	}
	maxLogit := math.Inf(-1)
	for c := 0; c < m.Classes; c++ {
		w := m.Weights[c*m.Inputs : (c+1)*m.Inputs]
		sum := float64(m.Bias[c])
		for i, v := range x {
			sum += float64(w[i]) * float64(v)
		}
		m.logits[c] = sum
		if sum > maxLogit {
			maxLogit = sum
		}
	}

	var total float64
	for c := range m.logits {
		m.logits[c] = math.Exp(m.logits[c] - maxLogit)
		total += m.logits[c]
	}
	for c := range m.logits {
		m.logits[c] /= total
	}
	return m.logits
}

func crossEntropy(p float64) float64 {
	return -math.Log(math.Max(p, 1e-12))
}

// TrainBatch runs one SGD step on the mean cross-entropy of the batch and
// returns the loss before the update.
func (m *Softmax) TrainBatch(b dataset.Batch, lr float64) (float64, error) {
	if b.Len() == 0 {
		return 0, nil
	}
	if len(m.grad) != len(m.Weights) {
		m.grad = make([]float64, len(m.Weights))
	}
	for i := range m.grad {
		m.grad[i] = 0
	}
	gradBias := make([]float64, m.Classes)

	var loss float64
	for n, input := range b.Inputs {
		if err := m.checkInput(input); err != nil {
			return 0, err
		}
		label := b.Labels[n]
		if label < 0 || label >= m.Classes {
			return 0, errors.Errorf("label %d out of range [0, %d)", label, m.Classes)
		}

		probs := m.probabilities(input.Data)
		loss += crossEntropy(probs[label])

		for c := 0; c < m.Classes; c++ {
			delta := probs[c]
			if c == label {
				delta -= 1
			}
			gradBias[c] += delta
			row := m.grad[c*m.Inputs : (c+1)*m.Inputs]
			for i, v := range input.Data {
				row[i] += delta * float64(v)
			}
		}
	}

	scale := lr / float64(b.Len())
	for i, g := range m.grad {
		m.Weights[i] -= float32(scale * g)
	}
	for c, g := range gradBias {
		m.Bias[c] -= float32(scale * g)
	}

	return loss / float64(b.Len()), nil
}

// EvalBatch returns the mean loss and the predicted label of every sample.
func (m *Softmax) EvalBatch(b dataset.Batch) (float64, []int, error) {
	predictions := make([]int, b.Len())
	if b.Len() == 0 {
		return 0, predictions, nil
	}

	var loss float64
	for n, input := range b.Inputs {
		if err := m.checkInput(input); err != nil {
			return 0, nil, err
		}
		probs := m.probabilities(input.Data)
		best := 0
		for c := 1; c < m.Classes; c++ {
			if probs[c] > probs[best] {
				best = c
			}
		}
		predictions[n] = best
		if label := b.Labels[n]; label >= 0 && label < m.Classes {
			loss += crossEntropy(probs[label])
		}
	}

	return loss / float64(b.Len()), predictions, nil
}
