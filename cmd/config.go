package cmd

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/shipvision/shipclf/internal/tracking"
	"github.com/shipvision/shipclf/internal/trainer"
)

const envPrefix = "SHIPCLF"

// Config is everything the root command needs for one run. Training holds
// the hyperparameters handed to the trainer unchanged.
type Config struct {
	trainer.Config `mapstructure:",squash"`

	Evaluate bool `mapstructure:"evaluate"`
	Verbose  bool `mapstructure:"verbose"`
	Save     bool `mapstructure:"save"`

	LogMode        string `mapstructure:"log_mode"`
	ResultsDir     string `mapstructure:"results"`
	PrometheusURL  string `mapstructure:"prometheus_url"`
	PrometheusJob  string `mapstructure:"prometheus_job"`
	InfluxDBURL    string `mapstructure:"influxdb_url"`
	InfluxDBToken  string `mapstructure:"influxdb_token"`
	InfluxDBOrg    string `mapstructure:"influxdb_org"`
	InfluxDBBucket string `mapstructure:"influxdb_bucket"`

	MemoryMonitoring bool          `mapstructure:"memory_monitor"`
	MemoryInterval   time.Duration `mapstructure:"memory_interval"`

	Labels   string            `mapstructure:"labels"`
	LabelMap map[string]string `mapstructure:"-"`
}

func defaultConfig() Config {
	track := tracking.DefaultConfig()
	return Config{
		Config:         trainer.DefaultConfig(),
		Evaluate:       true,
		Verbose:        true,
		Save:           true,
		LogMode:        track.Mode,
		ResultsDir:     track.ResultsDir,
		PrometheusJob:  track.Prometheus.JobName,
		MemoryInterval: 5 * time.Second,
	}
}

// flagKey maps a flag name to its config key, e.g. data-dir to data_dir.
func flagKey(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// loadConfig resolves the config from defaults, the optional YAML file,
// SHIPCLF_* environment variables and the flags, later sources winning.
func loadConfig(flags *pflag.FlagSet, configFile string) (Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(flagKey(f.Name), f)
	})
	if bindErr != nil {
		return Config{}, errors.Wrap(bindErr, "bind flags")
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config file %s", configFile)
		}
		log.WithField("file", v.ConfigFileUsed()).Info("Using config file")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	cfg.parseLabels()

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	defaults := defaultConfig()
	for k, val := range defaults.Config.Snapshot() {
		v.SetDefault(k, val)
	}
	v.SetDefault("evaluate", defaults.Evaluate)
	v.SetDefault("verbose", defaults.Verbose)
	v.SetDefault("save", defaults.Save)
	v.SetDefault("log_mode", defaults.LogMode)
	v.SetDefault("results", defaults.ResultsDir)
	v.SetDefault("prometheus_job", defaults.PrometheusJob)
	v.SetDefault("memory_interval", defaults.MemoryInterval)
}

func (c *Config) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	if err := c.tracking().Validate(); err != nil {
		return &trainer.ConfigError{Field: "log_mode", Err: err}
	}
	if c.MemoryMonitoring && c.MemoryInterval <= 0 {
		return &trainer.ConfigError{Field: "memory_interval", Err: errors.Errorf("%s must be > 0", c.MemoryInterval)}
	}
	return nil
}

func (c Config) offline() bool {
	return c.LogMode == tracking.Offline
}

func (c Config) tracking() tracking.Config {
	cfg := tracking.DefaultConfig()
	cfg.Mode = c.LogMode
	cfg.ResultsDir = c.ResultsDir
	cfg.Prometheus = tracking.PrometheusConfig{
		PushURL: c.PrometheusURL,
		JobName: c.PrometheusJob,
	}
	cfg.InfluxDB = tracking.InfluxDBConfig{
		URL:    c.InfluxDBURL,
		Token:  c.InfluxDBToken,
		Org:    c.InfluxDBOrg,
		Bucket: c.InfluxDBBucket,
	}
	return cfg
}

func (c *Config) parseLabels() {
	result := make(map[string]string)
	if c.Labels == "" {
		c.LabelMap = result
		return
	}

	for _, pair := range strings.Split(c.Labels, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) == 2 {
			result[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}

	c.LabelMap = result
}
