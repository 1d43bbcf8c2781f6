package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {

	logLevel, ok := os.LookupEnv("LOG_LEVEL")

	if ok {
		// If the environment variable is set, parse it to set the log level
		level, err := log.ParseLevel(logLevel)
		if err == nil {
			log.SetLevel(level)
		} else {
			log.Warn("Invalid log level. Defaulting to Info level.")
			log.SetLevel(log.InfoLevel)
		}
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

var rootCmd = newRootCommand()

func newRootCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "shipclf",
		Short: "Ship image classifier training",
		Long: `Train the ship image classifier on data/labels.csv and data/images,
keep the best checkpoint by validation F1 score and evaluate it on the test split.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := loadConfig(cmd.Flags(), configFile)
			if err != nil {
				fatal(err)
			}

			result, err := runTraining(cfg, cmd.OutOrStdout())
			if err != nil {
				fatal(err)
			}

			if result.BestCheckpoint != "" {
				infof("best checkpoint %s (%s %f)", result.BestCheckpoint, cfg.Monitor, result.BestScore)
			}
			infof("experiment %s finished", result.Experiment)
		},
	}

	defaults := defaultConfig()
	flags := cmd.Flags()

	flags.StringVarP(&configFile, "config", "c", "", "Optional YAML file with any of the settings below")

	flags.Int("img_size", defaults.ImgSize, "Side length images are resized to")
	flags.Int("bs", defaults.BatchSize, "Batch size")
	flags.Int("epochs", defaults.Epochs, "Number of training epochs")
	flags.Float64("lr", defaults.LearningRate, "Learning rate")

	flags.String("data-dir", defaults.DataDir, "Directory holding labels.csv and images/")
	flags.String("artifacts", defaults.ArtifactsDir, "Directory the best checkpoint is written to")
	flags.Int("workers", defaults.Workers, "Number of parallel image decoders per batch")
	flags.Bool("shuffle", defaults.Shuffle, "Shuffle the order of training batches every epoch")
	flags.Int64("seed", defaults.Seed, "Seed for the dataset split and weight initialisation")
	flags.Float64("valid-split", defaults.ValidSplit, "Fraction of examples used for validation")
	flags.Float64("test-split", defaults.TestSplit, "Fraction of examples used for testing")
	flags.String("monitor", defaults.Monitor, "Validation metric that selects the best checkpoint")
	flags.Int("patience", defaults.Patience, "Stop after this many epochs without improvement, 0 disables early stopping")
	flags.Float64("min-delta", defaults.MinDelta, "Smallest change of the monitored metric counted as improvement")
	flags.String("project", defaults.Project, "Experiment project name")

	flags.Bool("evaluate", defaults.Evaluate, "Evaluate the best checkpoint on the test split")
	flags.Bool("verbose", defaults.Verbose, "Print the logged metrics when the run is done")
	flags.Bool("save", defaults.Save, "Keep the best checkpoint")

	flags.String("log-mode", defaults.LogMode, "Experiment logging, one of [offline, online]")
	flags.String("results", defaults.ResultsDir, "Directory for the experiment log and memory samples")
	flags.StringP("labels", "l", "", "Labels of format key1=value1,key2=value2,... added to the run config")
	flags.String("prometheus-url", "", "Pushgateway URL for online logging")
	flags.String("prometheus-job", defaults.PrometheusJob, "Pushgateway job name")
	flags.String("influxdb-url", "", "InfluxDB URL for online logging")
	flags.String("influxdb-token", "", "InfluxDB token")
	flags.String("influxdb-org", "", "InfluxDB organization")
	flags.String("influxdb-bucket", "", "InfluxDB bucket")

	flags.Bool("memory-monitor", false, "Sample heap usage while training")
	flags.Duration("memory-interval", defaults.MemoryInterval, "Interval between heap samples")

	return cmd
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
