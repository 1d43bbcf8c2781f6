package model

import (
	"encoding/json"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

const checkpointFormat = "shipclf/softmax/v1"

type checkpoint struct {
	Format  string            `json:"format"`
	Inputs  int               `json:"inputs"`
	Classes int               `json:"classes"`
	Weights []float32         `json:"weights"`
	Bias    []float32         `json:"bias"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// Save writes the weights as zstd compressed JSON.
func (m *Softmax) Save(w io.Writer) error {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return errors.Wrap(err, "create zstd writer")
	}

	doc := checkpoint{
		Format:  checkpointFormat,
		Inputs:  m.Inputs,
		Classes: m.Classes,
		Weights: m.Weights,
		Bias:    m.Bias,
	}
	if err := json.NewEncoder(enc).Encode(doc); err != nil {
		enc.Close()
		return errors.Wrap(err, "encode checkpoint")
	}

	return errors.Wrap(enc.Close(), "flush checkpoint")
}

// Load replaces the weights with the ones in r. The checkpoint must have
// been written by a model of the same shape.
func (m *Softmax) Load(r io.Reader) error {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return errors.Wrap(err, "create zstd reader")
	}
	defer dec.Close()

	var doc checkpoint
	if err := json.NewDecoder(dec).Decode(&doc); err != nil {
		return errors.Wrap(err, "decode checkpoint")
	}

	if doc.Format != checkpointFormat {
		return errors.Errorf("unsupported checkpoint format %q", doc.Format)
	}
	if doc.Inputs != m.Inputs || doc.Classes != m.Classes {
		return errors.Errorf("checkpoint shape %dx%d does not match model %dx%d",
			doc.Classes, doc.Inputs, m.Classes, m.Inputs)
	}
	if len(doc.Weights) != m.Inputs*m.Classes || len(doc.Bias) != m.Classes {
		return errors.Errorf("checkpoint is truncated")
	}

	copy(m.Weights, doc.Weights)
	copy(m.Bias, doc.Bias)
	return nil
}
