package trainer

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/montanaflynn/stats"
)

// Metrics maps metric names such as "valid_F1Score" to scalar values.
type Metrics map[string]float64

// Merge copies other into m, overwriting existing keys.
func (m Metrics) Merge(other Metrics) Metrics {
	for k, v := range other {
		m[k] = v
	}
	return m
}

func (m Metrics) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m Metrics) WriteTextTo(w io.Writer) (int64, error) {
	b := strings.Builder{}
	for _, k := range m.Keys() {
		b.WriteString(fmt.Sprintf("%s: %f\n", k, m[k]))
	}
	n, err := w.Write([]byte(b.String()))
	return int64(n), err
}

// confusion accumulates predictions of one evaluation pass.
type confusion struct {
	classes int
	matrix  [][]int
	loss    float64
	batches int
	samples int
}

func newConfusion(classes int) *confusion {
	matrix := make([][]int, classes)
	for i := range matrix {
		matrix[i] = make([]int, classes)
	}
	return &confusion{classes: classes, matrix: matrix}
}

func (c *confusion) add(labels, predictions []int, loss float64) {
	for i, label := range labels {
		if label >= 0 && label < c.classes && predictions[i] >= 0 && predictions[i] < c.classes {
			c.matrix[label][predictions[i]]++
		}
	}
	c.loss += loss * float64(len(labels))
	c.samples += len(labels)
	c.batches++
}

func (c *confusion) accuracy() float64 {
	if c.samples == 0 {
		return 0
	}
	var correct int
	for i := 0; i < c.classes; i++ {
		correct += c.matrix[i][i]
	}
	return float64(correct) / float64(c.samples)
}

// macroF1 averages the F1 score over the classes that occur either as a
// label or as a prediction.
func (c *confusion) macroF1() float64 {
	var sum float64
	var counted int
	for k := 0; k < c.classes; k++ {
		tp := c.matrix[k][k]
		var fp, fn int
		for j := 0; j < c.classes; j++ {
			if j == k {
				continue
			}
			fp += c.matrix[j][k]
			fn += c.matrix[k][j]
		}
		if tp+fp+fn == 0 {
			continue
		}
		sum += 2 * float64(tp) / float64(2*tp+fp+fn)
		counted++
	}
	if counted == 0 {
		return 0
	}
	return sum / float64(counted)
}

func (c *confusion) metrics(prefix string) Metrics {
	if c.samples == 0 {
		return Metrics{}
	}
	return Metrics{
		prefix + "_loss":     c.loss / float64(c.samples),
		prefix + "_Accuracy": c.accuracy(),
		prefix + "_F1Score":  c.macroF1(),
	}
}

// stepStats summarises the duration of the optimisation steps of an epoch
// in seconds.
func stepStats(prefix string, durations []time.Duration) Metrics {
	if len(durations) == 0 {
		return Metrics{}
	}
	data := make(stats.Float64Data, len(durations))
	for i, d := range durations {
		data[i] = d.Seconds()
	}

	out := Metrics{}
	if mean, err := data.Mean(); err == nil {
		out[prefix+"_step_mean_s"] = mean
	}
	for _, p := range []float64{50, 90, 99} {
		if v, err := data.Percentile(p); err == nil {
			out[fmt.Sprintf("%s_step_p%d_s", prefix, int(p))] = v
		}
	}
	return out
}
