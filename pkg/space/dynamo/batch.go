package dynamo

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/cenkalti/backoff/v4"
	"github.com/oneconcern/gibsync/pkg/clock"
	"github.com/oneconcern/gibsync/pkg/metrics"
	"github.com/oneconcern/gibsync/pkg/space/status"
	"go.uber.org/zap"
)

// clockTimer waits on the backend's clock between retries.
//
// Start blocks for the whole delay, so that waits are sequenced like any
// other call to the clock.
type clockTimer struct {
	ctx   context.Context
	clock clock.Clock
	c     chan time.Time
}

func (b *Backend) timer(ctx context.Context) backoff.Timer {
	return &clockTimer{ctx: ctx, clock: b.clock, c: make(chan time.Time, 1)}
}

func (t *clockTimer) Start(d time.Duration) {
	if d > 0 {
		if err := t.clock.Sleep(t.ctx, d); err != nil {
			// the context is done: the retry loop returns its error
			return
		}
	}
	t.c <- t.clock.Now()
}

func (t *clockTimer) Stop() {}

func (t *clockTimer) C() <-chan time.Time {
	return t.c
}

func (b *Backend) notify(op, reason string) backoff.Notify {
	return func(err error, delay time.Duration) {
		metrics.Retry(b.name, reason)
		b.logger.Debug("retrying",
			zap.String("op", op), zap.String("reason", reason), zap.Duration("delay", delay), zap.Error(err))
	}
}

// send runs a request, retrying with a fixed delay as long as the table refuses it for throughput reasons
func (b *Backend) send(ctx context.Context, op string, call func() error) error {
	retries := b.maxThroughput
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(b.throughputDelay), uint64(retries)),
		ctx,
	)
	err := backoff.RetryNotifyWithTimer(func() error {
		err := call()
		if err == nil || isThroughputError(err) {
			return err
		}
		return backoff.Permanent(toSentinelErrors(err))
	}, policy, b.notify(op, "throughput"), b.timer(ctx))

	if err != nil && isThroughputError(err) {
		return status.ErrThroughputExceeded.Wrap(err)
	}
	return err
}

// unprocessed paces the resubmission of items left unprocessed by the table.
//
// Resubmission is immediate as long as fewer items come back than were sent.
// Otherwise the retry count grows, the next attempt waits for an exponential
// backoff, and retries stop once the count exceeds its maximum.
type unprocessed struct {
	base     time.Duration
	max      int
	count    int
	progress bool
}

func (u *unprocessed) track(sent, left int) {
	u.progress = left < sent
}

func (u *unprocessed) NextBackOff() time.Duration {
	if u.progress {
		return 0
	}
	u.count++
	if u.count > u.max {
		return backoff.Stop
	}
	return time.Duration(1<<uint(u.count)) * u.base
}

func (u *unprocessed) Reset() {
	u.count = 0
	u.progress = false
}

// resubmit runs a batch operation until nothing is left unprocessed.
// The operation returns how many items it sent and how many came back.
func (b *Backend) resubmit(ctx context.Context, op string, attempt func() (int, int, error)) error {
	pacing := &unprocessed{base: b.backoffBase, max: b.maxUnprocessed}
	var left int
	err := backoff.RetryNotifyWithTimer(func() error {
		sent, l, err := attempt()
		if err != nil {
			return backoff.Permanent(err)
		}
		left = l
		if left == 0 {
			return nil
		}
		pacing.track(sent, left)
		return status.ErrUnprocessed
	}, backoff.WithContext(pacing, ctx), b.notify(op, "unprocessed"), b.timer(ctx))

	if err == status.ErrUnprocessed {
		return status.ErrUnprocessed.Wrapf("%d items still unprocessed after %d retries", left, b.maxUnprocessed)
	}
	return err
}

// writeBatch submits write requests until all are processed.
// On failure, the requests not known to be processed are returned with the error.
func (b *Backend) writeBatch(ctx context.Context, reqs []*dynamodb.WriteRequest) ([]*dynamodb.WriteRequest, error) {
	pending := reqs
	err := b.resubmit(ctx, "write", func() (int, int, error) {
		var out *dynamodb.BatchWriteItemOutput
		err := b.send(ctx, "write", func() error {
			var err error
			out, err = b.api.BatchWriteItemWithContext(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]*dynamodb.WriteRequest{b.table: pending},
			})
			return err
		})
		if err != nil {
			return 0, 0, err
		}
		sent := len(pending)
		pending = out.UnprocessedItems[b.table]
		return sent, len(pending), nil
	})
	if err != nil {
		return pending, err
	}
	return nil, nil
}

// readBatch fetches items by key until all keys are processed.
// On failure, the items read so far and the keys not yet processed are returned with the error.
func (b *Backend) readBatch(ctx context.Context, keys []item, keysOnly bool) ([]item, []item, error) {
	var items []item
	pending := keys
	err := b.resubmit(ctx, "read", func() (int, int, error) {
		req := &dynamodb.KeysAndAttributes{Keys: pending}
		if keysOnly {
			req.ProjectionExpression = aws.String("#pk, #area, #inS3")
			req.ExpressionAttributeNames = map[string]*string{
				"#pk":   aws.String(b.pk),
				"#area": aws.String(attrArea),
				"#inS3": aws.String(attrInS3),
			}
		}
		var out *dynamodb.BatchGetItemOutput
		err := b.send(ctx, "read", func() error {
			var err error
			out, err = b.api.BatchGetItemWithContext(ctx, &dynamodb.BatchGetItemInput{
				RequestItems: map[string]*dynamodb.KeysAndAttributes{b.table: req},
			})
			return err
		})
		if err != nil {
			return 0, 0, err
		}
		items = append(items, out.Responses[b.table]...)

		sent := len(pending)
		pending = nil
		if u, ok := out.UnprocessedKeys[b.table]; ok && u != nil {
			pending = u.Keys
		}
		return sent, len(pending), nil
	})
	if err != nil {
		return items, pending, err
	}
	return items, nil, nil
}

// chunk splits n elements into consecutive [start, end) ranges of at most size elements
func chunk(n, size int) [][2]int {
	var ranges [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		ranges = append(ranges, [2]int{start, end})
	}
	return ranges
}

// throttle waits between successive batches, never before the first one
func (b *Backend) throttle(ctx context.Context, i int, d time.Duration) error {
	if i == 0 || d <= 0 {
		return nil
	}
	return b.clock.Sleep(ctx, d)
}
