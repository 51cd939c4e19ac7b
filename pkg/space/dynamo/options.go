package dynamo

import (
	"time"

	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/oneconcern/gibsync/pkg/clock"
	"github.com/oneconcern/gibsync/pkg/ibgib"
	"go.uber.org/zap"
)

// Defaults of the remote space
const (
	DefaultPrimaryKeyName     = "ibGibAddrHash"
	DefaultPutBatchSize       = 25
	DefaultGetBatchSize       = 100
	DefaultThrottlePut        = time.Second
	DefaultThrottleGet        = 500 * time.Millisecond
	DefaultThroughputRetries  = 5
	DefaultThroughputDelay    = 3 * time.Second
	DefaultUnprocessedRetries = 5
	DefaultBackoffBase        = 10 * time.Millisecond
	DefaultDeadline           = 5 * time.Minute
	DefaultTjpIndex           = "tjp-n-index"

	// DefaultLargeItemSize is the encoded size above which nodes are moved to the bucket.
	// It stays well under the table's 400KB item limit.
	DefaultLargeItemSize = 180000
)

// Option for the remote space
type Option func(*Backend)

// Table name
func Table(name string) Option {
	return func(b *Backend) {
		b.table = name
	}
}

// PrimaryKeyName is the attribute holding the hashed address
func PrimaryKeyName(name string) Option {
	return func(b *Backend) {
		if name != "" {
			b.pk = name
		}
	}
}

// BatchSizes for puts and gets. Non-positive sizes keep the defaults.
func BatchSizes(put, get int) Option {
	return func(b *Backend) {
		if put > 0 {
			b.putBatch = put
		}
		if get > 0 {
			b.getBatch = get
		}
	}
}

// Throttle between successive put and get batches
func Throttle(put, get time.Duration) Option {
	return func(b *Backend) {
		b.throttlePut = put
		b.throttleGet = get
	}
}

// ThroughputRetries sets how many times a batch refused for throughput is retried, and the delay between attempts
func ThroughputRetries(count int, delay time.Duration) Option {
	return func(b *Backend) {
		b.maxThroughput = count
		b.throughputDelay = delay
	}
}

// UnprocessedRetries sets how many times unprocessed items are retried without progress,
// and the base of the exponential backoff
func UnprocessedRetries(count int, base time.Duration) Option {
	return func(b *Backend) {
		b.maxUnprocessed = count
		b.backoffBase = base
	}
}

// Deadline bounds every command. Zero means no deadline.
func Deadline(d time.Duration) Option {
	return func(b *Backend) {
		b.deadline = d
	}
}

// KeyHash derives primary keys from addresses
func KeyHash(h ibgib.HashFunc) Option {
	return func(b *Backend) {
		if h != nil {
			b.hash = h
		}
	}
}

// TjpIndex is the secondary index on (tjp, n) used to resolve latest nodes
func TjpIndex(name string) Option {
	return func(b *Backend) {
		b.tjpIndex = name
	}
}

// Bucket keeps binary payloads and large nodes in S3, leaving a pointer item in the table.
// Without a bucket, everything is held by the table.
func Bucket(api s3iface.S3API, bucket string) Option {
	return func(b *Backend) {
		if api != nil && bucket != "" {
			b.objects = &objects{api: api, bucket: bucket}
		}
	}
}

// LargeItemSize is the encoded node size above which nodes go to the bucket
func LargeItemSize(size int) Option {
	return func(b *Backend) {
		if size > 0 {
			b.largeItem = size
		}
	}
}

// Clock used for throttling and backoff
func Clock(clk clock.Clock) Option {
	return func(b *Backend) {
		if clk != nil {
			b.clock = clk
		}
	}
}

// Logger for the backend
func Logger(l *zap.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}
