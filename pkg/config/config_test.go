package config

import (
	"context"
	"io/ioutil"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/oneconcern/gibsync/pkg/errors"
	"github.com/oneconcern/gibsync/pkg/space"
	"github.com/oneconcern/gibsync/pkg/space/spacetest"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	yaml "gopkg.in/yaml.v2"
)

const testConfig = `
loglevel: debug
tracing: true
space:
  kind: meta
  name: mirrored
  catchAllErrors: true
  binHash: blake2b
  meta:
    policy: quorum(1)
    units:
      - kind: memory
        name: scratch
        ops: [get, put]
      - kind: dynamo
        dynamo:
          table: ibgibs
          region: eu-west-1
          putBatchSize: 10
          throttlePut: 2s
          backoffBase: 20ms
          bucket: large-ibgibs
`

func loadFrom(t *testing.T, content string) *Config {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/gibsync/gibsync.yaml", []byte(content), 0600))

	v := viper.New()
	v.SetFs(fs)
	SetDefaults(v)
	Locate(v, "/etc/gibsync/gibsync.yaml")
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)
	return cfg
}

func TestLoad(t *testing.T) {
	cfg := loadFrom(t, testConfig)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Tracing)
	assert.Equal(t, KindMeta, cfg.Space.Kind)
	assert.Equal(t, "mirrored", cfg.Space.Name)
	assert.True(t, cfg.Space.CatchAllErrors)
	assert.Equal(t, HashBlake2b, cfg.Space.BinHash)
	assert.Equal(t, "quorum(1)", cfg.Space.Meta.Policy)

	require.Len(t, cfg.Space.Meta.Units, 2)
	scratch, remote := cfg.Space.Meta.Units[0], cfg.Space.Meta.Units[1]
	assert.Equal(t, "scratch", scratch.Name)
	assert.Equal(t, []string{"get", "put"}, scratch.Ops)
	assert.Equal(t, KindDynamo, remote.Kind)
	assert.Equal(t, "ibgibs", remote.Dynamo.Table)
	assert.Equal(t, 10, remote.Dynamo.PutBatchSize)
	assert.Equal(t, 2*time.Second, remote.Dynamo.ThrottlePut)
	assert.Equal(t, 20*time.Millisecond, remote.Dynamo.BackoffBase)
	assert.Equal(t, "large-ibgibs", remote.Dynamo.Bucket)
	assert.Equal(t, "dynamo-1", remote.unitName(1))

	// defaults apply to the top-level space only
	assert.Equal(t, Default().Space.Dynamo.Deadline, cfg.Space.Dynamo.Deadline)
	assert.Equal(t, Default().Space.LocalFS.SubPath, cfg.Space.LocalFS.SubPath)
}

func TestDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestGenerated(t *testing.T) {
	// a generated configuration loads back
	expected := Default()
	expected.Space.Kind = KindLocalFS
	expected.Space.LocalFS.BaseDir = "/data"

	buf, err := yaml.Marshal(expected)
	require.NoError(t, err)
	cfg := loadFrom(t, string(buf))
	assert.Equal(t, expected, *cfg)
}

func TestValidate(t *testing.T) {
	for _, toPin := range []struct {
		name  string
		space SpaceConfig
		valid bool
	}{
		{name: "memory", space: SpaceConfig{Kind: KindMemory}, valid: true},
		{name: "localfs", space: SpaceConfig{Kind: KindLocalFS}, valid: true},
		{name: "unknown kind", space: SpaceConfig{Kind: "tape"}},
		{name: "unknown hash", space: SpaceConfig{Kind: KindMemory, BinHash: "md5"}},
		{name: "badger without dir", space: SpaceConfig{Kind: KindBadger}},
		{name: "dynamo without table", space: SpaceConfig{Kind: KindDynamo}},
		{name: "dynamo key hash", space: SpaceConfig{Kind: KindDynamo, Dynamo: DynamoConfig{Table: "t", KeyHash: "crc"}}},
		{name: "empty meta", space: SpaceConfig{Kind: KindMeta}},
		{name: "nested meta", space: SpaceConfig{Kind: KindMeta, Meta: MetaConfig{Units: []UnitConfig{
			{SpaceConfig: SpaceConfig{Kind: KindMeta}},
		}}}},
		{name: "invalid unit", space: SpaceConfig{Kind: KindMeta, Meta: MetaConfig{Units: []UnitConfig{
			{SpaceConfig: SpaceConfig{Kind: KindMemory}},
			{SpaceConfig: SpaceConfig{Kind: KindBadger}},
		}}}},
	} {
		fixture := toPin
		t.Run(fixture.name, func(t *testing.T) {
			err := fixture.space.Validate()
			if fixture.valid {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

type stubAPI struct {
	dynamodbiface.DynamoDBAPI
}

type stubS3 struct {
	s3iface.S3API
}

func TestFactory(t *testing.T) {
	ctx := context.Background()
	clk := spacetest.Clock()
	nodes := spacetest.Nodes(t, "cfg", 3)

	dir, err := ioutil.TempDir("", "gibsync-badger")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	var awsConfig, s3Config *aws.Config
	f := NewFactory(
		FS(afero.NewMemMapFs()),
		Clock(clk),
		DynamoAPI(func(cfg *aws.Config) (dynamodbiface.DynamoDBAPI, error) {
			awsConfig = cfg
			return stubAPI{}, nil
		}),
		S3API(func(cfg *aws.Config) (s3iface.S3API, error) {
			s3Config = cfg
			return stubS3{}, nil
		}),
	)

	t.Run("dynamo", func(t *testing.T) {
		s, err := f.Space(SpaceConfig{Kind: KindDynamo, Dynamo: DynamoConfig{Table: "ibgibs", Region: "eu-west-1"}})
		require.NoError(t, err)
		assert.Equal(t, "dynamo:ibgibs", s.String())
		require.NotNil(t, awsConfig)
		assert.Equal(t, "eu-west-1", aws.StringValue(awsConfig.Region))
		assert.Nil(t, awsConfig.Endpoint)
		assert.Nil(t, s3Config, "no bucket client without a bucket")

		_, err = f.Space(SpaceConfig{Kind: KindDynamo, Dynamo: DynamoConfig{Table: "ibgibs", Bucket: "large-ibgibs", Endpoint: "http://localhost:8000"}})
		require.NoError(t, err)
		require.NotNil(t, s3Config)
		assert.Equal(t, "http://localhost:8000", aws.StringValue(s3Config.Endpoint))
	})

	for _, toPin := range []SpaceConfig{
		{Kind: KindMemory},
		{Kind: KindLocalFS, LocalFS: LocalFSConfig{BaseDir: "/spaces", SubPath: "test", CacheSize: 8}},
		{Kind: KindBadger, Badger: BadgerConfig{Dir: dir}},
		{Kind: KindMeta, Meta: MetaConfig{Policy: "all", Units: []UnitConfig{
			{SpaceConfig: SpaceConfig{Kind: KindMemory, Name: "left"}},
			{SpaceConfig: SpaceConfig{Kind: KindMemory, Name: "right"}},
		}}},
	} {
		fixture := toPin
		t.Run(fixture.Kind, func(t *testing.T) {
			s, err := f.Space(fixture)
			require.NoError(t, err)
			defer func() { require.NoError(t, s.Close()) }()

			res, err := space.Put(ctx, s, clk, space.Options{}, nodes...)
			require.NoError(t, err)
			require.NoError(t, space.ResultError(res))

			got, err := space.Get(ctx, s, clk, space.Options{Addrs: spacetest.Addrs(nodes)})
			require.NoError(t, err)
			require.NoError(t, space.ResultError(got))
			assert.Len(t, got.Nodes, len(nodes))
		})
	}

	_, err = f.Space(SpaceConfig{Kind: KindMeta, Meta: MetaConfig{Policy: "most", Units: []UnitConfig{
		{SpaceConfig: SpaceConfig{Kind: KindMemory}},
	}}})
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestStack(t *testing.T) {
	ctx := context.Background()
	clk := spacetest.Clock()
	fs := afero.NewMemMapFs()
	tracer := mocktracer.New()
	f := NewFactory(FS(fs), Clock(clk), Tracer(tracer))
	cfg := SpaceConfig{Kind: KindLocalFS, LocalFS: LocalFSConfig{BaseDir: "/spaces", SubPath: "stack"}}

	stack, err := f.Stack(ctx, cfg)
	require.NoError(t, err)

	chain := spacetest.Timeline(t, "doc", 3)
	res, err := space.Put(ctx, stack.Space, clk, space.Options{}, chain...)
	require.NoError(t, err)
	require.NoError(t, space.ResultError(res))
	for _, n := range chain {
		_, err := stack.Registry.Register(ctx, n)
		require.NoError(t, err)
	}
	require.NoError(t, stack.Close())
	assert.NotEmpty(t, tracer.FinishedSpans())

	// the registry index survives in the space
	reopened, err := f.Stack(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	got, err := space.Get(ctx, reopened.Space, clk, space.Options{
		Modifiers: []space.Modifier{space.ModLatest},
		Addrs:     []string{chain[0].Addr()},
	})
	require.NoError(t, err)
	require.NoError(t, space.ResultError(got))
	require.Len(t, got.Nodes, 1)
	assert.Equal(t, chain[2].Addr(), got.Nodes[0].Addr())
}
