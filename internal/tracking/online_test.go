package tracking

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shipvision/shipclf/internal/trainer"
)

type sinkServer struct {
	*httptest.Server
	mu       sync.Mutex
	pushes   []string
	writes   []string
	failWith int
}

func newSinkServer(t *testing.T) *sinkServer {
	s := &sinkServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.failWith != 0 {
			w.WriteHeader(s.failWith)
			return
		}

		switch {
		case strings.HasPrefix(r.URL.Path, "/metrics/job/"):
			s.pushes = append(s.pushes, r.URL.Path+"\n"+string(body))
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/api/v2/write":
			s.writes = append(s.writes, string(body))
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func onlineConfig(t *testing.T, url string) Config {
	cfg := DefaultConfig()
	cfg.Mode = Online
	cfg.ResultsDir = t.TempDir()
	cfg.Prometheus.PushURL = url
	cfg.InfluxDB = InfluxDBConfig{URL: url, Token: "token", Org: "ships", Bucket: "training"}
	cfg.Retries = 0
	cfg.Timeout = 5 * time.Second
	return cfg
}

func TestOnlineLoggerPublishesEveryStep(t *testing.T) {
	server := newSinkServer(t)
	spec := testSpec
	spec.Offline = false

	l := NewOnlineLogger(onlineConfig(t, server.URL), spec)
	logRun(t, l)
	require.Nil(t, l.Finish())

	require.Len(t, server.pushes, 3)
	require.Contains(t, server.pushes[0], "/metrics/job/shipclf\n")
	require.Len(t, server.writes, 3)
	require.Contains(t, server.writes[0], "ship_classification,")
	require.Contains(t, server.writes[0], "valid_F1Score=0.3")
	require.Contains(t, server.writes[0], "run_id="+spec.RunID)

	require.FileExists(t, l.JSONPath())
	require.FileExists(t, l.PromPath())
}

func TestOnlineLoggerSinkFailuresDoNotFailTheRun(t *testing.T) {
	server := newSinkServer(t)
	server.failWith = http.StatusInternalServerError

	l := NewOnlineLogger(onlineConfig(t, server.URL), testSpec)
	logRun(t, l)
	require.Nil(t, l.Finish())

	doc, err := ReadRunDocument(l.JSONPath())
	require.Nil(t, err)
	require.Len(t, doc.History, 3)
}

func TestNewSelectsLogger(t *testing.T) {
	server := newSinkServer(t)

	offline := DefaultConfig()
	offline.ResultsDir = t.TempDir()
	l, err := New(offline, testSpec)
	require.Nil(t, err)
	require.IsType(t, &OfflineLogger{}, l)

	spec := testSpec
	spec.Offline = false
	l, err = New(onlineConfig(t, server.URL), spec)
	require.Nil(t, err)
	require.IsType(t, &OnlineLogger{}, l)

	// an offline run never talks to the sinks even when they are configured
	l, err = New(onlineConfig(t, server.URL), testSpec)
	require.Nil(t, err)
	require.IsType(t, &OfflineLogger{}, l)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		valid  bool
	}{
		{"default", func(c *Config) {}, true},
		{"unknown mode", func(c *Config) { c.Mode = "cloud" }, false},
		{"no results dir", func(c *Config) { c.ResultsDir = "" }, false},
		{"online without sinks", func(c *Config) { c.Mode = Online }, false},
		{"online with pushgateway", func(c *Config) {
			c.Mode = Online
			c.Prometheus.PushURL = "http://localhost:9091"
		}, true},
		{"influx without bucket", func(c *Config) {
			c.Mode = Online
			c.InfluxDB = InfluxDBConfig{URL: "http://localhost:8086", Org: "ships"}
		}, false},
		{"negative retries", func(c *Config) {
			c.Mode = Online
			c.Prometheus.PushURL = "http://localhost:9091"
			c.Retries = -1
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.valid {
				require.Nil(t, err)
			} else {
				require.NotNil(t, err)
			}
		})
	}
}

var _ trainer.MetricLogger = (*OnlineLogger)(nil)
