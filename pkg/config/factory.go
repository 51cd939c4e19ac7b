package config

import (
	"context"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/oneconcern/gibsync/pkg/clock"
	"github.com/oneconcern/gibsync/pkg/latest"
	"github.com/oneconcern/gibsync/pkg/space"
	"github.com/oneconcern/gibsync/pkg/space/bdgr"
	"github.com/oneconcern/gibsync/pkg/space/dynamo"
	"github.com/oneconcern/gibsync/pkg/space/local"
	"github.com/oneconcern/gibsync/pkg/space/localfs"
	"github.com/oneconcern/gibsync/pkg/space/memory"
	"github.com/oneconcern/gibsync/pkg/space/meta"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// FactoryOption tunes the factory
type FactoryOption func(*Factory)

// FS used by file system spaces
func FS(fs afero.Fs) FactoryOption {
	return func(f *Factory) {
		if fs != nil {
			f.fs = fs
		}
	}
}

// Logger for the spaces built
func Logger(l *zap.Logger) FactoryOption {
	return func(f *Factory) {
		if l != nil {
			f.logger = l
		}
	}
}

// Clock for the spaces built
func Clock(clk clock.Clock) FactoryOption {
	return func(f *Factory) {
		if clk != nil {
			f.clock = clk
		}
	}
}

// DynamoAPI overrides how remote clients are built
func DynamoAPI(fn func(*aws.Config) (dynamodbiface.DynamoDBAPI, error)) FactoryOption {
	return func(f *Factory) {
		if fn != nil {
			f.newAPI = fn
		}
	}
}

// S3API overrides how bucket clients are built
func S3API(fn func(*aws.Config) (s3iface.S3API, error)) FactoryOption {
	return func(f *Factory) {
		if fn != nil {
			f.newS3 = fn
		}
	}
}

// Tracer wraps built spaces with tracing spans
func Tracer(tr opentracing.Tracer) FactoryOption {
	return func(f *Factory) {
		f.tracer = tr
	}
}

// Factory builds spaces from their configuration
type Factory struct {
	fs     afero.Fs
	logger *zap.Logger
	clock  clock.Clock
	newAPI func(*aws.Config) (dynamodbiface.DynamoDBAPI, error)
	newS3  func(*aws.Config) (s3iface.S3API, error)
	tracer opentracing.Tracer
}

// NewFactory of spaces
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		fs:     afero.NewOsFs(),
		logger: zap.NewNop(),
		clock:  clock.System(),
		newAPI: dynamo.NewAPI,
		newS3:  dynamo.NewS3API,
	}
	for _, apply := range opts {
		apply(f)
	}
	return f
}

// Backend builds the backend of a space
func (f *Factory) Backend(c SpaceConfig) (space.Backend, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	logger := f.logger.With(zap.String("kind", c.Kind))

	switch c.Kind {
	case KindLocalFS:
		records := localfs.NewRecords(f.fs,
			localfs.BaseDir(c.LocalFS.BaseDir),
			localfs.SubPath(c.LocalFS.SubPath),
			localfs.CacheSize(c.LocalFS.CacheSize),
		)
		return local.New(records, local.Logger(logger)), nil

	case KindBadger:
		records, err := bdgr.NewRecords(c.Badger.Dir)
		if err != nil {
			return nil, err
		}
		return local.New(records, local.Logger(logger)), nil

	case KindDynamo:
		return f.dynamo(c.Dynamo, logger)

	case KindMeta:
		return f.meta(c.Meta, logger)

	default:
		return local.New(memory.NewRecords(), local.Logger(logger)), nil
	}
}

func (f *Factory) dynamo(c DynamoConfig, logger *zap.Logger) (space.Backend, error) {
	awsConfig := aws.NewConfig()
	if c.Region != "" {
		awsConfig = awsConfig.WithRegion(c.Region)
	}
	if c.Endpoint != "" {
		awsConfig = awsConfig.WithEndpoint(c.Endpoint)
	}
	api, err := f.newAPI(awsConfig)
	if err != nil {
		return nil, err
	}
	keyHash, err := hashFunc(c.KeyHash)
	if err != nil {
		return nil, err
	}

	opts := []dynamo.Option{
		dynamo.Table(c.Table),
		dynamo.PrimaryKeyName(c.PrimaryKey),
		dynamo.TjpIndex(c.TjpIndex),
		dynamo.KeyHash(keyHash),
		dynamo.BatchSizes(c.PutBatchSize, c.GetBatchSize),
		dynamo.Clock(f.clock),
		dynamo.Logger(logger),
	}
	if c.ThrottlePut > 0 || c.ThrottleGet > 0 {
		opts = append(opts, dynamo.Throttle(c.ThrottlePut, c.ThrottleGet))
	}
	if c.ThroughputRetries > 0 {
		opts = append(opts, dynamo.ThroughputRetries(c.ThroughputRetries, c.ThroughputDelay))
	}
	if c.UnprocessedRetries > 0 {
		opts = append(opts, dynamo.UnprocessedRetries(c.UnprocessedRetries, c.BackoffBase))
	}
	if c.Deadline > 0 {
		opts = append(opts, dynamo.Deadline(c.Deadline))
	}
	if c.Bucket != "" {
		s3API, err := f.newS3(awsConfig)
		if err != nil {
			return nil, err
		}
		opts = append(opts, dynamo.Bucket(s3API, c.Bucket), dynamo.LargeItemSize(c.LargeItemSize))
	}
	return dynamo.NewBackend(api, opts...), nil
}

func (f *Factory) meta(c MetaConfig, logger *zap.Logger) (space.Backend, error) {
	policy := meta.All()
	if c.Policy != "" {
		var err error
		if policy, err = meta.ParsePolicy(c.Policy); err != nil {
			return nil, ErrInvalidConfig.Wrap(err)
		}
	}

	units := make([]meta.Unit, 0, len(c.Units))
	closeAll := func() {
		for _, u := range units {
			_ = u.Space.Close()
		}
	}
	for i, uc := range c.Units {
		sc := uc.SpaceConfig
		sc.Name = uc.unitName(i)
		s, err := f.Space(sc)
		if err != nil {
			closeAll()
			return nil, err
		}
		units = append(units, meta.Unit{Name: sc.Name, Space: s, Ops: uc.Ops})
	}
	return meta.NewBackend(policy, units, meta.Logger(logger)), nil
}

func (u UnitConfig) unitName(i int) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Kind + "-" + strconv.Itoa(i)
}

func (f *Factory) spaceOptions(c SpaceConfig) ([]space.Option, error) {
	binHash, err := c.BinHasher()
	if err != nil {
		return nil, err
	}
	return []space.Option{
		space.Name(c.Name),
		space.Clock(f.clock),
		space.Logger(f.logger),
		space.CatchAllErrors(c.CatchAllErrors),
		space.Trace(c.Trace...),
		space.BinHasher(binHash),
		space.SelfLog(c.SelfLog),
	}, nil
}

func (f *Factory) instrument(s space.Space) space.Space {
	if f.tracer == nil {
		return s
	}
	return space.Instrument(f.tracer, f.logger, s)
}

// Space builds a space
func (f *Factory) Space(c SpaceConfig, opts ...space.Option) (space.Space, error) {
	backend, err := f.Backend(c)
	if err != nil {
		return nil, err
	}
	spaceOpts, err := f.spaceOptions(c)
	if err != nil {
		return nil, err
	}
	return f.instrument(space.New(backend, append(spaceOpts, opts...)...)), nil
}

// Stack is a space resolving latest versions through a registry kept in the same backend
type Stack struct {
	Space    space.Space
	Registry *latest.Registry
}

// Close releases the backend
func (s *Stack) Close() error {
	return s.Space.Close()
}

// Stack builds a space and its latest registry, loading the registry index persisted in the space
func (f *Factory) Stack(ctx context.Context, c SpaceConfig) (*Stack, error) {
	backend, err := f.Backend(c)
	if err != nil {
		return nil, err
	}
	spaceOpts, err := f.spaceOptions(c)
	if err != nil {
		return nil, err
	}

	// the registry's own space doesn't self log, nor resolve latest versions
	store := space.New(backend, append(spaceOpts, space.SelfLog(false))...)
	registry := latest.New(store, nil, latest.Logger(f.logger), latest.Clock(f.clock))
	if err := registry.Open(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	front := space.New(backend, append(spaceOpts, space.Latest(registry))...)
	return &Stack{Space: f.instrument(front), Registry: registry}, nil
}
