package trainer

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfusionMetrics(t *testing.T) {
	c := newConfusion(5)
	c.add([]int{0, 0, 1}, []int{0, 0, 0}, 0.5)

	m := c.metrics("valid")
	require.InDelta(t, 0.5, m["valid_loss"], 1e-9)
	require.InDelta(t, 2.0/3.0, m["valid_Accuracy"], 1e-9)
	// class 0: F1 0.8, class 1: F1 0, other classes absent
	require.InDelta(t, 0.4, m["valid_F1Score"], 1e-9)
}

func TestConfusionPerfect(t *testing.T) {
	c := newConfusion(5)
	c.add([]int{0, 1, 2}, []int{0, 1, 2}, 0.1)
	c.add([]int{3, 4}, []int{3, 4}, 0.2)

	m := c.metrics("test")
	require.InDelta(t, 1.0, m["test_Accuracy"], 1e-9)
	require.InDelta(t, 1.0, m["test_F1Score"], 1e-9)
	require.InDelta(t, (0.1*3+0.2*2)/5, m["test_loss"], 1e-9)
}

func TestConfusionEmpty(t *testing.T) {
	require.Empty(t, newConfusion(5).metrics("valid"))
}

func TestStepStats(t *testing.T) {
	durations := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}
	m := stepStats("train", durations)
	require.InDelta(t, 2.0, m["train_step_mean_s"], 1e-9)
	require.Contains(t, m, "train_step_p50_s")
	require.Contains(t, m, "train_step_p90_s")
	require.Contains(t, m, "train_step_p99_s")

	require.Empty(t, stepStats("train", nil))
}

func TestMetricsWriteTextTo(t *testing.T) {
	m := Metrics{"valid_loss": 0.25, "test_F1Score": 1}
	var buf bytes.Buffer
	_, err := m.WriteTextTo(&buf)
	require.Nil(t, err)
	require.Equal(t, "test_F1Score: 1.000000\nvalid_loss: 0.250000\n", buf.String())
}
