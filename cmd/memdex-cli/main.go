package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/memdex/memdex/pkg/dict"
)

type config struct {
	Dict dict.Config `yaml:"dict"`

	Keys           int    `yaml:"keys"`
	HashFunction   string `yaml:"hash_function"`
	PrintHistogram bool   `yaml:"print_histogram"`
}

var (
	configFile   string
	workloadFile string
	cfg          config
)

func init() {
	fs := flag.CommandLine
	cfg.Dict.RegisterFlagsAndApplyDefaults("dict.", fs)
	fs.StringVar(&configFile, "config", "", "optional yaml config file. explicit flags take precedence")
	fs.StringVar(&workloadFile, "workload", "", "yaml workload file for the stats command")
	fs.IntVar(&cfg.Keys, "keys", 1_000_000, "number of keys to load in the bench")
	fs.StringVar(&cfg.HashFunction, "hash", "siphash", "hash function for the bench (siphash/xxhash)")
	fs.BoolVar(&cfg.PrintHistogram, "histogram", false, "print the chain length histogram after the bench")
}

func main() {
	flag.Parse()

	logger := level.NewFilter(log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr)), level.AllowInfo())

	if err := loadConfig(); err != nil {
		level.Error(logger).Log("msg", "failed to load config", "err", err)
		os.Exit(1)
	}
	cfg.Dict.Logger = logger

	switch flag.Arg(0) {
	case "bench", "":
		if err := runBench(logger); err != nil {
			level.Error(logger).Log("msg", "bench failed", "err", err)
			os.Exit(1)
		}
	case "stats":
		if err := runStats(logger); err != nil {
			level.Error(logger).Log("msg", "stats failed", "err", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", flag.Arg(0))
		flag.Usage()
		os.Exit(2)
	}
}

func loadConfig() error {
	if configFile == "" {
		return nil
	}
	b, err := os.ReadFile(configFile)
	if err != nil {
		return errors.Wrap(err, "reading config file")
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return errors.Wrapf(err, "parsing config file %s", configFile)
	}
	// Re-apply the command line so explicit flags beat file values.
	return flag.CommandLine.Parse(os.Args[1:])
}
