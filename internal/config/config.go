// Package config holds the bulkload command configuration. Every option is
// a flag; values are resolved from flags, BULKLOAD_* environment variables
// and an optional config file, in that priority order.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/docker/go-units"
	"github.com/hugolhafner/go-bulkload/batcher"
	"github.com/hugolhafner/go-bulkload/codec"
	"github.com/hugolhafner/go-bulkload/inflight"
	"github.com/hugolhafner/go-bulkload/logger"
	"github.com/hugolhafner/go-bulkload/pipeline"
	"github.com/hugolhafner/go-bulkload/source"
	"github.com/hugolhafner/go-bulkload/writer"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "BULKLOAD"

const (
	StoreBolt  = "bolt"
	StoreEtcd  = "etcd"
	StoreKafka = "kafka"
	StoreLog   = "log"
)

type Config struct {
	ConfigFile  string
	LogLevel    string
	LogFormat   string
	MetricsAddr string
	SpillPath   string
	Store       string

	Input    Input
	Pipeline Pipeline
	Bolt     Bolt
	Etcd     Etcd
	Kafka    Kafka
	LogStore LogStore
}

type Input struct {
	Header      bool
	Separator   string
	KeyColumn   int
	ValueColumn int
	KeyCodec    string
	ValueCodec  string
	Malformed   string
}

// Pipeline sizes are human readable, e.g. "4MiB".
type Pipeline struct {
	MaxBatchCount  int
	MaxBatchBytes  string
	MaxInFlight    int
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Jitter         float64
	AttemptTimeout time.Duration
	FailFast       bool
	BytesPerSecond string
}

type Bolt struct {
	Path    string
	Bucket  string
	Timeout time.Duration
	NoSync  bool
}

type Etcd struct {
	Endpoints   []string
	DialTimeout time.Duration
	Username    string
	Password    string
	Prefix      string
	MaxTxnOps   int
}

type Kafka struct {
	Brokers           []string
	Topic             string
	ClientID          string
	ProduceTimeout    time.Duration
	CreateTopic       bool
	Partitions        int32
	ReplicationFactor int16
}

type LogStore struct {
	Label   string
	Level   string
	Records bool
}

func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "console",
		Store:     StoreBolt,
		Input: Input{
			Header:      true,
			Separator:   ",",
			KeyColumn:   0,
			ValueColumn: 1,
			KeyCodec:    "raw",
			ValueCodec:  "raw",
			Malformed:   source.MalformedReject.String(),
		},
		Pipeline: Pipeline{
			MaxBatchCount:  batcher.DefaultMaxBatchCount,
			MaxBatchBytes:  units.BytesSize(batcher.DefaultMaxBatchBytes),
			MaxInFlight:    inflight.DefaultMaxInFlight,
			MaxRetries:     writer.DefaultMaxRetries,
			BaseDelay:      writer.DefaultBaseDelay,
			MaxDelay:       writer.DefaultMaxDelay,
			Jitter:         writer.DefaultJitter,
			BytesPerSecond: "0",
		},
		Bolt: Bolt{
			Path:    "bulkload.db",
			Bucket:  "bulkload",
			Timeout: time.Second,
		},
		Etcd: Etcd{
			Endpoints:   []string{"localhost:2379"},
			DialTimeout: 5 * time.Second,
			MaxTxnOps:   128,
		},
		Kafka: Kafka{
			Brokers:        []string{"localhost:9092"},
			ClientID:       "go-bulkload",
			ProduceTimeout: 10 * time.Second,
		},
		LogStore: LogStore{
			Label: "batch",
			Level: "info",
		},
	}
}

// RegisterFlags defines a flag for every option, defaulting to the current
// value of c. Flag names double as config file keys.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.ConfigFile, "config", "c", c.ConfigFile, "Configuration file to read from (toml, yaml or json).")
	fs.StringVar(&c.LogLevel, "log.level", c.LogLevel, "Log level: debug, info, warn or error.")
	fs.StringVar(&c.LogFormat, "log.format", c.LogFormat, "Log format: console or json.")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "Serve Prometheus metrics on this address.")
	fs.StringVar(&c.SpillPath, "spill", c.SpillPath, "Write failed records to this file for replay.")
	fs.StringVar(&c.Store, "store", c.Store, "Store backend: bolt, etcd, kafka or log.")

	fs.BoolVar(&c.Input.Header, "input.header", c.Input.Header, "The first CSV row is a header.")
	fs.StringVar(&c.Input.Separator, "input.separator", c.Input.Separator, "CSV field separator.")
	fs.IntVar(&c.Input.KeyColumn, "input.key-column", c.Input.KeyColumn, "Zero based CSV column holding the key.")
	fs.IntVar(&c.Input.ValueColumn, "input.value-column", c.Input.ValueColumn, "Zero based CSV column holding the value.")
	fs.StringVar(&c.Input.KeyCodec, "input.key-codec", c.Input.KeyCodec, "Key encoding: raw, hex or base64.")
	fs.StringVar(&c.Input.ValueCodec, "input.value-codec", c.Input.ValueCodec, "Value encoding: raw, hex or base64.")
	fs.StringVar(&c.Input.Malformed, "input.malformed", c.Input.Malformed, "Malformed rows: reject or skip.")

	fs.IntVar(&c.Pipeline.MaxBatchCount, "batch.max-count", c.Pipeline.MaxBatchCount, "Maximum records per batch.")
	fs.StringVar(&c.Pipeline.MaxBatchBytes, "batch.max-bytes", c.Pipeline.MaxBatchBytes, "Maximum payload bytes per batch.")
	fs.IntVar(&c.Pipeline.MaxInFlight, "max-in-flight", c.Pipeline.MaxInFlight, "Maximum concurrent batch writes.")
	fs.IntVar(&c.Pipeline.MaxRetries, "retry.max-attempts", c.Pipeline.MaxRetries, "Write attempts per batch.")
	fs.DurationVar(&c.Pipeline.BaseDelay, "retry.base-delay", c.Pipeline.BaseDelay, "Delay before the first retry.")
	fs.DurationVar(&c.Pipeline.MaxDelay, "retry.max-delay", c.Pipeline.MaxDelay, "Upper bound on the retry delay.")
	fs.Float64Var(&c.Pipeline.Jitter, "retry.jitter", c.Pipeline.Jitter, "Retry delay jitter in [0, 1).")
	fs.DurationVar(&c.Pipeline.AttemptTimeout, "retry.attempt-timeout", c.Pipeline.AttemptTimeout, "Timeout per write attempt, 0 for none.")
	fs.BoolVar(&c.Pipeline.FailFast, "fail-fast", c.Pipeline.FailFast, "Stop reading after the first failed batch.")
	fs.StringVar(&c.Pipeline.BytesPerSecond, "bytes-per-second", c.Pipeline.BytesPerSecond, "Write throughput limit, 0 for unlimited.")

	fs.StringVar(&c.Bolt.Path, "bolt.path", c.Bolt.Path, "bbolt database file.")
	fs.StringVar(&c.Bolt.Bucket, "bolt.bucket", c.Bolt.Bucket, "bbolt bucket.")
	fs.DurationVar(&c.Bolt.Timeout, "bolt.timeout", c.Bolt.Timeout, "Time to wait for the database file lock.")
	fs.BoolVar(&c.Bolt.NoSync, "bolt.no-sync", c.Bolt.NoSync, "Skip fsync after each batch.")

	fs.StringSliceVar(&c.Etcd.Endpoints, "etcd.endpoints", c.Etcd.Endpoints, "etcd endpoints.")
	fs.DurationVar(&c.Etcd.DialTimeout, "etcd.dial-timeout", c.Etcd.DialTimeout, "etcd dial timeout.")
	fs.StringVar(&c.Etcd.Username, "etcd.username", c.Etcd.Username, "etcd username.")
	fs.StringVar(&c.Etcd.Password, "etcd.password", c.Etcd.Password, "etcd password.")
	fs.StringVar(&c.Etcd.Prefix, "etcd.prefix", c.Etcd.Prefix, "Prefix added to every key.")
	fs.IntVar(&c.Etcd.MaxTxnOps, "etcd.max-txn-ops", c.Etcd.MaxTxnOps, "The server's --max-txn-ops.")

	fs.StringSliceVar(&c.Kafka.Brokers, "kafka.brokers", c.Kafka.Brokers, "Kafka bootstrap servers.")
	fs.StringVar(&c.Kafka.Topic, "kafka.topic", c.Kafka.Topic, "Compacted topic to load into.")
	fs.StringVar(&c.Kafka.ClientID, "kafka.client-id", c.Kafka.ClientID, "Kafka client id.")
	fs.DurationVar(&c.Kafka.ProduceTimeout, "kafka.produce-timeout", c.Kafka.ProduceTimeout, "Produce request timeout.")
	fs.BoolVar(&c.Kafka.CreateTopic, "kafka.create-topic", c.Kafka.CreateTopic, "Create the topic if it does not exist.")
	fs.Int32Var(&c.Kafka.Partitions, "kafka.partitions", c.Kafka.Partitions, "Partitions for a created topic, 0 for the broker default.")
	fs.Int16Var(&c.Kafka.ReplicationFactor, "kafka.replication-factor", c.Kafka.ReplicationFactor, "Replication factor for a created topic, 0 for the broker default.")

	fs.StringVar(&c.LogStore.Label, "logstore.label", c.LogStore.Label, "Label printed with each batch.")
	fs.StringVar(&c.LogStore.Level, "logstore.level", c.LogStore.Level, "Level batches are printed at.")
	fs.BoolVar(&c.LogStore.Records, "logstore.records", c.LogStore.Records, "Print every record, not just batch sizes.")
}

// Resolve fills the flags in fs that were not set on the command line from
// the environment and then the config file named by the config flag. Keys
// in the file that are not flags are rejected.
func Resolve(v *viper.Viper, fs *pflag.FlagSet) error {
	if err := v.BindPFlags(fs); err != nil {
		return err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading configuration file '%s': %w", path, err)
		}

		for _, key := range v.AllKeys() {
			if fs.Lookup(key) == nil {
				return fmt.Errorf("invalid option in configuration file: %v", key)
			}
		}
	}

	var flagErr error
	fs.VisitAll(
		func(f *pflag.Flag) {
			if flagErr != nil || f.Changed {
				return
			}

			var value string
			if f.Value.Type() == "stringSlice" {
				// a list from a file comes back as a slice, not a csv string
				value = strings.Join(v.GetStringSlice(f.Name), ",")
			} else {
				value = v.GetString(f.Name)
			}

			if sv, ok := f.Value.(pflag.SliceValue); ok {
				flagErr = sv.Replace(splitList(value))
				return
			}
			if err := f.Value.Set(value); err != nil {
				flagErr = fmt.Errorf("invalid value %q for %s: %w", value, f.Name, err)
			}
		},
	)
	return flagErr
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// ParseSize parses a human readable binary size such as "4MiB" or "512k".
func ParseSize(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (c Config) Validate() error {
	var errs []error

	switch c.Store {
	case StoreBolt:
		if c.Bolt.Path == "" {
			errs = append(errs, errors.New("bolt.path is required"))
		}
	case StoreEtcd:
		if len(c.Etcd.Endpoints) == 0 {
			errs = append(errs, errors.New("etcd.endpoints is required"))
		}
	case StoreKafka:
		if c.Kafka.Topic == "" {
			errs = append(errs, errors.New("kafka.topic is required"))
		}
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("kafka.brokers is required"))
		}
	case StoreLog:
		if _, err := logger.ParseLevel(c.LogStore.Level); err != nil {
			errs = append(errs, fmt.Errorf("logstore.level: %w", err))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}

	switch c.LogFormat {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}

	if _, err := c.CSVOptions(); err != nil {
		errs = append(errs, err)
	}

	if opts, err := c.PipelineOptions(); err != nil {
		errs = append(errs, err)
	} else if err := pipeline.ValidateOptions(opts...); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (c Config) PipelineOptions() ([]pipeline.ConfigOption, error) {
	maxBytes, err := ParseSize(c.Pipeline.MaxBatchBytes)
	if err != nil {
		return nil, fmt.Errorf("batch.max-bytes: %w", err)
	}
	bps, err := ParseSize(c.Pipeline.BytesPerSecond)
	if err != nil {
		return nil, fmt.Errorf("bytes-per-second: %w", err)
	}

	return []pipeline.ConfigOption{
		pipeline.WithMaxBatchCount(c.Pipeline.MaxBatchCount),
		pipeline.WithMaxBatchBytes(maxBytes),
		pipeline.WithMaxInFlight(c.Pipeline.MaxInFlight),
		pipeline.WithMaxRetries(c.Pipeline.MaxRetries),
		pipeline.WithBackoff(c.Pipeline.BaseDelay, c.Pipeline.MaxDelay),
		pipeline.WithJitter(c.Pipeline.Jitter),
		pipeline.WithAttemptTimeout(c.Pipeline.AttemptTimeout),
		pipeline.WithFailFast(c.Pipeline.FailFast),
		pipeline.WithBytesPerSecond(bps),
	}, nil
}

func (c Config) CSVOptions() ([]source.CSVOption, error) {
	sep, size := utf8.DecodeRuneInString(c.Input.Separator)
	if sep == utf8.RuneError || size != len(c.Input.Separator) {
		return nil, fmt.Errorf("input.separator must be a single character, got %q", c.Input.Separator)
	}

	keyCodec, err := codec.ByName(c.Input.KeyCodec)
	if err != nil {
		return nil, fmt.Errorf("input.key-codec: %w", err)
	}
	valueCodec, err := codec.ByName(c.Input.ValueCodec)
	if err != nil {
		return nil, fmt.Errorf("input.value-codec: %w", err)
	}
	policy, err := source.ParseMalformedPolicy(c.Input.Malformed)
	if err != nil {
		return nil, fmt.Errorf("input.malformed: %w", err)
	}

	return []source.CSVOption{
		source.WithHeader(c.Input.Header),
		source.WithSeparator(sep),
		source.WithColumns(c.Input.KeyColumn, c.Input.ValueColumn),
		source.WithCodecs(keyCodec, valueCodec),
		source.WithMalformedPolicy(policy),
	}, nil
}
