// Package config describes the configuration of spaces and builds them.
package config

import (
	"strings"
	"time"

	"github.com/oneconcern/gibsync/pkg/errors"
	"github.com/oneconcern/gibsync/pkg/ibgib"
	"github.com/oneconcern/gibsync/pkg/space/dynamo"
	"github.com/oneconcern/gibsync/pkg/space/localfs"
	"github.com/spf13/viper"
)

// Space kinds
const (
	KindMemory  = "memory"
	KindLocalFS = "localfs"
	KindBadger  = "badger"
	KindDynamo  = "dynamo"
	KindMeta    = "meta"
)

// Hash names
const (
	HashSHA256  = "sha256"
	HashBlake2b = "blake2b"
)

// EnvConfig points to a configuration file
const EnvConfig = "GIBSYNC_CONFIG"

// ErrInvalidConfig reports an inconsistent configuration
var ErrInvalidConfig = errors.New("invalid configuration")

// Config of the gibsync tooling.
//
// Keep field names aligned with their serialized names: viper matches them
// when unmarshalling.
type Config struct {
	LogLevel string      `json:"loglevel" yaml:"loglevel" mapstructure:"loglevel"`
	Metrics  bool        `json:"metrics,omitempty" yaml:"metrics,omitempty" mapstructure:"metrics"`
	Tracing  bool        `json:"tracing,omitempty" yaml:"tracing,omitempty" mapstructure:"tracing"`
	Space    SpaceConfig `json:"space" yaml:"space" mapstructure:"space"`
}

// SpaceConfig describes one space
type SpaceConfig struct {
	Kind           string        `json:"kind" yaml:"kind" mapstructure:"kind"`
	Name           string        `json:"name,omitempty" yaml:"name,omitempty" mapstructure:"name"`
	CatchAllErrors bool          `json:"catchAllErrors,omitempty" yaml:"catchAllErrors,omitempty" mapstructure:"catchAllErrors"`
	SelfLog        bool          `json:"selfLog,omitempty" yaml:"selfLog,omitempty" mapstructure:"selfLog"`
	Trace          []string      `json:"trace,omitempty" yaml:"trace,omitempty" mapstructure:"trace"`
	BinHash        string        `json:"binHash,omitempty" yaml:"binHash,omitempty" mapstructure:"binHash"`
	LocalFS        LocalFSConfig `json:"localfs,omitempty" yaml:"localfs,omitempty" mapstructure:"localfs"`
	Badger         BadgerConfig  `json:"badger,omitempty" yaml:"badger,omitempty" mapstructure:"badger"`
	Dynamo         DynamoConfig  `json:"dynamo,omitempty" yaml:"dynamo,omitempty" mapstructure:"dynamo"`
	Meta           MetaConfig    `json:"meta,omitempty" yaml:"meta,omitempty" mapstructure:"meta"`
}

// LocalFSConfig locates a file system space
type LocalFSConfig struct {
	BaseDir   string `json:"baseDir,omitempty" yaml:"baseDir,omitempty" mapstructure:"baseDir"`
	SubPath   string `json:"subPath,omitempty" yaml:"subPath,omitempty" mapstructure:"subPath"`
	CacheSize int    `json:"cacheSize,omitempty" yaml:"cacheSize,omitempty" mapstructure:"cacheSize"`
}

// BadgerConfig locates a badger space
type BadgerConfig struct {
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty" mapstructure:"dir"`
}

// DynamoConfig tunes a remote space. Zero values keep the defaults.
type DynamoConfig struct {
	Table              string        `json:"table,omitempty" yaml:"table,omitempty" mapstructure:"table"`
	Region             string        `json:"region,omitempty" yaml:"region,omitempty" mapstructure:"region"`
	Endpoint           string        `json:"endpoint,omitempty" yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	PrimaryKey         string        `json:"primaryKey,omitempty" yaml:"primaryKey,omitempty" mapstructure:"primaryKey"`
	KeyHash            string        `json:"keyHash,omitempty" yaml:"keyHash,omitempty" mapstructure:"keyHash"`
	TjpIndex           string        `json:"tjpIndex,omitempty" yaml:"tjpIndex,omitempty" mapstructure:"tjpIndex"`
	PutBatchSize       int           `json:"putBatchSize,omitempty" yaml:"putBatchSize,omitempty" mapstructure:"putBatchSize"`
	GetBatchSize       int           `json:"getBatchSize,omitempty" yaml:"getBatchSize,omitempty" mapstructure:"getBatchSize"`
	ThrottlePut        time.Duration `json:"throttlePut,omitempty" yaml:"throttlePut,omitempty" mapstructure:"throttlePut"`
	ThrottleGet        time.Duration `json:"throttleGet,omitempty" yaml:"throttleGet,omitempty" mapstructure:"throttleGet"`
	ThroughputRetries  int           `json:"throughputRetries,omitempty" yaml:"throughputRetries,omitempty" mapstructure:"throughputRetries"`
	ThroughputDelay    time.Duration `json:"throughputDelay,omitempty" yaml:"throughputDelay,omitempty" mapstructure:"throughputDelay"`
	UnprocessedRetries int           `json:"unprocessedRetries,omitempty" yaml:"unprocessedRetries,omitempty" mapstructure:"unprocessedRetries"`
	BackoffBase        time.Duration `json:"backoffBase,omitempty" yaml:"backoffBase,omitempty" mapstructure:"backoffBase"`
	Deadline           time.Duration `json:"deadline,omitempty" yaml:"deadline,omitempty" mapstructure:"deadline"`
	Bucket             string        `json:"bucket,omitempty" yaml:"bucket,omitempty" mapstructure:"bucket"`
	LargeItemSize      int           `json:"largeItemSize,omitempty" yaml:"largeItemSize,omitempty" mapstructure:"largeItemSize"`
}

// MetaConfig composes spaces
type MetaConfig struct {
	Policy string       `json:"policy,omitempty" yaml:"policy,omitempty" mapstructure:"policy"`
	Units  []UnitConfig `json:"units,omitempty" yaml:"units,omitempty" mapstructure:"units"`
}

// UnitConfig is a space taking part in a meta space, possibly restricted to some operations
type UnitConfig struct {
	Ops         []string `json:"ops,omitempty" yaml:"ops,omitempty" mapstructure:"ops"`
	SpaceConfig `json:",inline" yaml:",inline" mapstructure:",squash"`
}

// Default configuration: an in-memory space, logging errors
func Default() Config {
	return Config{
		LogLevel: "error",
		Space: SpaceConfig{
			Kind:    KindMemory,
			BinHash: HashSHA256,
			LocalFS: LocalFSConfig{
				BaseDir:   localfs.DefaultBaseDir,
				SubPath:   localfs.DefaultSubPath,
				CacheSize: localfs.DefaultCacheSize,
			},
			Dynamo: DynamoConfig{
				PrimaryKey:         dynamo.DefaultPrimaryKeyName,
				TjpIndex:           dynamo.DefaultTjpIndex,
				PutBatchSize:       dynamo.DefaultPutBatchSize,
				GetBatchSize:       dynamo.DefaultGetBatchSize,
				ThrottlePut:        dynamo.DefaultThrottlePut,
				ThrottleGet:        dynamo.DefaultThrottleGet,
				ThroughputRetries:  dynamo.DefaultThroughputRetries,
				ThroughputDelay:    dynamo.DefaultThroughputDelay,
				UnprocessedRetries: dynamo.DefaultUnprocessedRetries,
				BackoffBase:        dynamo.DefaultBackoffBase,
				Deadline:           dynamo.DefaultDeadline,
				LargeItemSize:      dynamo.DefaultLargeItemSize,
			},
		},
	}
}

// SetDefaults registers the default configuration with viper
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("loglevel", d.LogLevel)
	v.SetDefault("space.kind", d.Space.Kind)
	v.SetDefault("space.binHash", d.Space.BinHash)
	v.SetDefault("space.localfs.baseDir", d.Space.LocalFS.BaseDir)
	v.SetDefault("space.localfs.subPath", d.Space.LocalFS.SubPath)
	v.SetDefault("space.localfs.cacheSize", d.Space.LocalFS.CacheSize)
	v.SetDefault("space.dynamo.primaryKey", d.Space.Dynamo.PrimaryKey)
	v.SetDefault("space.dynamo.tjpIndex", d.Space.Dynamo.TjpIndex)
	v.SetDefault("space.dynamo.putBatchSize", d.Space.Dynamo.PutBatchSize)
	v.SetDefault("space.dynamo.getBatchSize", d.Space.Dynamo.GetBatchSize)
	v.SetDefault("space.dynamo.throttlePut", d.Space.Dynamo.ThrottlePut)
	v.SetDefault("space.dynamo.throttleGet", d.Space.Dynamo.ThrottleGet)
	v.SetDefault("space.dynamo.throughputRetries", d.Space.Dynamo.ThroughputRetries)
	v.SetDefault("space.dynamo.throughputDelay", d.Space.Dynamo.ThroughputDelay)
	v.SetDefault("space.dynamo.unprocessedRetries", d.Space.Dynamo.UnprocessedRetries)
	v.SetDefault("space.dynamo.backoffBase", d.Space.Dynamo.BackoffBase)
	v.SetDefault("space.dynamo.deadline", d.Space.Dynamo.Deadline)
	v.SetDefault("space.dynamo.largeItemSize", d.Space.Dynamo.LargeItemSize)
}

// Locate tells viper where to find the configuration file: the file named by
// GIBSYNC_CONFIG, or gibsync.yaml in the usual places. Environment variables
// prefixed with GIBSYNC_ override file settings.
func Locate(v *viper.Viper, file string) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.gibsync")
		v.AddConfigPath("/etc/gibsync")
		v.SetConfigName("gibsync")
	}
	v.SetEnvPrefix("gibsync")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads and validates the configuration held by viper
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, ErrInvalidConfig.Wrap(err)
	}
	if err := cfg.Space.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate the space configuration, units included
func (c SpaceConfig) Validate() error {
	if _, err := hashFunc(c.BinHash); err != nil {
		return err
	}
	switch c.Kind {
	case KindMemory, KindLocalFS:
		return nil
	case KindBadger:
		if c.Badger.Dir == "" {
			return ErrInvalidConfig.Wrapf("badger space requires a directory")
		}
		return nil
	case KindDynamo:
		if c.Dynamo.Table == "" {
			return ErrInvalidConfig.Wrapf("dynamo space requires a table")
		}
		_, err := hashFunc(c.Dynamo.KeyHash)
		return err
	case KindMeta:
		if len(c.Meta.Units) == 0 {
			return ErrInvalidConfig.Wrapf("meta space requires units")
		}
		for i, u := range c.Meta.Units {
			if u.Kind == KindMeta {
				return ErrInvalidConfig.Wrapf("unit %d: meta spaces don't nest", i)
			}
			if err := u.SpaceConfig.Validate(); err != nil {
				return ErrInvalidConfig.Wrapf("unit %s: %v", u.unitName(i), err)
			}
		}
		return nil
	default:
		return ErrInvalidConfig.Wrapf("unknown space kind %q", c.Kind)
	}
}

func hashFunc(name string) (ibgib.HashFunc, error) {
	switch strings.ToLower(name) {
	case "", HashSHA256:
		return ibgib.SHA256, nil
	case HashBlake2b:
		return ibgib.Blake2b, nil
	default:
		return nil, ErrInvalidConfig.Wrapf("unknown hash %q", name)
	}
}

// BinHasher returns the hash verifying binary payloads
func (c SpaceConfig) BinHasher() (ibgib.HashFunc, error) {
	return hashFunc(c.BinHash)
}
