// Package dynamo provides a space synchronized with a DynamoDB table.
//
// Items are keyed by the hash of node addresses. Reads and writes are
// batched, throttled between batches and retried at two levels: requests
// refused for throughput reasons are resent after a fixed delay, while
// items left unprocessed are resubmitted with an exponential backoff
// whenever no progress is made.
//
// When a bucket is configured, binary payloads and nodes too large for a
// table item are kept in S3 and the table only holds a pointer item.
package dynamo

import (
	"context"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/oneconcern/gibsync/pkg/clock"
	"github.com/oneconcern/gibsync/pkg/errors"
	"github.com/oneconcern/gibsync/pkg/ibgib"
	"github.com/oneconcern/gibsync/pkg/metrics"
	"github.com/oneconcern/gibsync/pkg/space"
	"github.com/oneconcern/gibsync/pkg/space/local"
	"github.com/oneconcern/gibsync/pkg/space/status"
	"go.uber.org/zap"
)

var (
	_ space.Backend      = &Backend{}
	_ space.LatestGetter = &Backend{}
)

// Backend executes space commands against a DynamoDB table
type Backend struct {
	api   dynamodbiface.DynamoDBAPI
	table string
	pk    string
	name  string

	putBatch        int
	getBatch        int
	throttlePut     time.Duration
	throttleGet     time.Duration
	maxThroughput   int
	throughputDelay time.Duration
	maxUnprocessed  int
	backoffBase     time.Duration
	deadline        time.Duration
	tjpIndex        string
	objects         *objects
	largeItem       int

	hash   ibgib.HashFunc
	clock  clock.Clock
	logger *zap.Logger
}

// NewAPI builds a DynamoDB client from an AWS configuration
func NewAPI(cfg *aws.Config) (dynamodbiface.DynamoDBAPI, error) {
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, status.ErrStorageAPI.Wrap(err)
	}
	return dynamodb.New(sess), nil
}

// NewBackend over some table
func NewBackend(api dynamodbiface.DynamoDBAPI, opts ...Option) *Backend {
	b := &Backend{
		api:             api,
		pk:              DefaultPrimaryKeyName,
		putBatch:        DefaultPutBatchSize,
		getBatch:        DefaultGetBatchSize,
		throttlePut:     DefaultThrottlePut,
		throttleGet:     DefaultThrottleGet,
		maxThroughput:   DefaultThroughputRetries,
		throughputDelay: DefaultThroughputDelay,
		maxUnprocessed:  DefaultUnprocessedRetries,
		backoffBase:     DefaultBackoffBase,
		deadline:        DefaultDeadline,
		tjpIndex:        DefaultTjpIndex,
		largeItem:       DefaultLargeItemSize,
		hash:            ibgib.SHA256,
		clock:           clock.System(),
		logger:          zap.NewNop(),
	}
	for _, apply := range opts {
		apply(b)
	}
	b.name = "dynamo:" + b.table
	b.logger = b.logger.With(zap.String("table", b.table))
	return b
}

// New space over some table
func New(b *Backend, opts ...space.Option) space.Space {
	return space.New(b, opts...)
}

func (b *Backend) String() string {
	return b.name
}

func (b *Backend) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.deadline <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.deadline)
}

func str(it item, attr string) string {
	if v, ok := it[attr]; ok && v.S != nil {
		return *v.S
	}
	return ""
}

func (b *Backend) keyOfRequest(req *dynamodb.WriteRequest) string {
	switch {
	case req.PutRequest != nil:
		return b.keyOf(req.PutRequest.Item)
	case req.DeleteRequest != nil:
		return b.keyOf(req.DeleteRequest.Key)
	default:
		return ""
	}
}

// lookup reads the items of some addresses in throttled batches.
//
// Addresses that could not be read are reported as errored, along with the aggregated errors.
func (b *Backend) lookup(ctx context.Context, addrs []string, keysOnly bool) (map[string]item, map[string]bool, error) {
	found := make(map[string]item, len(addrs))
	errored := make(map[string]bool)
	byKey := make(map[string]string, len(addrs))
	keys := make([]item, 0, len(addrs))
	for _, addr := range addrs {
		k := b.key(addr)
		if _, dup := byKey[k]; dup {
			continue
		}
		byKey[k] = addr
		keys = append(keys, b.keyItem(addr))
	}

	var errs error
	for i, r := range chunk(len(keys), b.getBatch) {
		if err := b.throttle(ctx, i, b.throttleGet); err != nil {
			for _, k := range keys[r[0]:] {
				errored[byKey[b.keyOf(k)]] = true
			}
			return found, errored, errors.Append(errs, err)
		}
		metrics.Batch(b.name, "get")
		items, left, err := b.readBatch(ctx, keys[r[0]:r[1]], keysOnly)
		for _, it := range items {
			if addr, ok := byKey[b.keyOf(it)]; ok {
				found[addr] = it
			}
		}
		if err != nil {
			b.logger.Warn("read batch failed", zap.Int("batch", i), zap.Int("left", len(left)), zap.Error(err))
			errs = errors.Append(errs, err)
			for _, k := range left {
				errored[byKey[b.keyOf(k)]] = true
			}
		}
	}
	return found, errored, errs
}

// write submits requests in throttled batches and sorts out the addresses written from those errored
func (b *Backend) write(ctx context.Context, op string, reqs []*dynamodb.WriteRequest, byKey map[string]string) ([]string, []string, error) {
	var done, errored []string
	var errs error
	for i, r := range chunk(len(reqs), b.putBatch) {
		if err := b.throttle(ctx, i, b.throttlePut); err != nil {
			for _, req := range reqs[r[0]:] {
				errored = append(errored, byKey[b.keyOfRequest(req)])
			}
			return done, errored, errors.Append(errs, err)
		}
		metrics.Batch(b.name, op)
		batch := reqs[r[0]:r[1]]
		left, err := b.writeBatch(ctx, batch)
		if err != nil {
			b.logger.Warn("write batch failed", zap.String("op", op), zap.Int("batch", i), zap.Int("left", len(left)), zap.Error(err))
			errs = errors.Append(errs, err)
		}
		failed := make(map[string]bool, len(left))
		for _, req := range left {
			failed[b.keyOfRequest(req)] = true
		}
		for _, req := range batch {
			k := b.keyOfRequest(req)
			if failed[k] {
				errored = append(errored, byKey[k])
				continue
			}
			done = append(done, byKey[k])
		}
	}
	return done, errored, errs
}

// Get nodes by address, or a binary payload by hash
func (b *Backend) Get(ctx context.Context, arg *space.Arg) (*space.Result, error) {
	ctx, cancel := b.withDeadline(ctx)
	defer cancel()

	o := arg.Options
	if o.IsBinary() {
		return b.getBin(ctx, o)
	}
	addrs := unique(o.Addrs)
	found, errored, err := b.lookup(ctx, addrs, false)
	res := space.Succeeded()
	if err != nil {
		res.Data.Fail(err)
	}
	areas := searched(o)
	for _, addr := range addrs {
		it, ok := found[addr]
		switch {
		case errored[addr]:
			res.Data.AddrsErrored = append(res.Data.AddrsErrored, addr)
		case !ok || !inAreas(it, areas):
			res.Data.AddrsNotFound = append(res.Data.AddrsNotFound, addr)
		default:
			n, err := b.nodeOf(ctx, it)
			if err == nil && n.Addr() != addr {
				err = status.ErrInvalidNode.Wrapf("item for %s holds %s", addr, n.Addr())
			}
			if err != nil {
				res.Data.Fail(err)
				res.Data.AddrsErrored = append(res.Data.AddrsErrored, addr)
				continue
			}
			res.Nodes = append(res.Nodes, n)
		}
	}
	b.logger.Debug("get", zap.Int("found", len(res.Nodes)), zap.Int("notFound", len(res.Data.AddrsNotFound)))
	return res, nil
}

func (b *Backend) getBin(ctx context.Context, o space.Options) (*space.Result, error) {
	addr := ibgib.BinAddr(o.BinHash, o.BinExt)
	found, _, err := b.lookup(ctx, []string{addr}, false)
	if err != nil {
		return nil, err
	}
	res := space.Succeeded()
	it, ok := found[addr]
	switch {
	case ok && inS3(it):
		data, err := b.object(ctx, it)
		if errors.Is(err, status.ErrNotExists) {
			res.Data.Warn("item for %s points to a missing object", addr)
			res.Data.AddrsNotFound = []string{addr}
			return res, nil
		}
		if err != nil {
			return nil, err
		}
		res.BinData = data
	case ok && it[attrBinData] != nil:
		res.BinData = it[attrBinData].B
	default:
		res.Data.AddrsNotFound = []string{addr}
		return res, nil
	}
	res.Data.Addrs = []string{addr}
	return res, nil
}

// held returns the key items of the addresses already held, in the areas searched for these options
func (b *Backend) held(ctx context.Context, addrs []string, o space.Options) (map[string]item, map[string]bool, error) {
	found, errored, err := b.lookup(ctx, addrs, true)
	areas := searched(o)
	held := make(map[string]item, len(found))
	for addr, it := range found {
		if ibgib.IsBinAddr(addr) || inAreas(it, areas) {
			held[addr] = it
		}
	}
	return held, errored, err
}

// existing tells which addresses are already held, in the areas searched for these options
func (b *Backend) existing(ctx context.Context, addrs []string, o space.Options) (map[string]bool, map[string]bool, error) {
	held, errored, err := b.held(ctx, addrs, o)
	has := make(map[string]bool, len(held))
	for addr := range held {
		has[addr] = true
	}
	return has, errored, err
}

// Put nodes in batches, skipping those already present unless forced
func (b *Backend) Put(ctx context.Context, arg *space.Arg) (*space.Result, error) {
	ctx, cancel := b.withDeadline(ctx)
	defer cancel()

	o := arg.Options
	res := space.Succeeded()
	nodes := make(map[string]*ibgib.Node, len(arg.Nodes))
	var addrs []string
	if o.IsBinary() && len(arg.BinData) > 0 {
		addrs = append(addrs, ibgib.BinAddr(o.BinHash, o.BinExt))
	}
	for _, n := range arg.Nodes {
		addr := n.Addr()
		if _, dup := nodes[addr]; dup {
			continue
		}
		nodes[addr] = n
		addrs = append(addrs, addr)
	}

	has := map[string]bool{}
	errored := map[string]bool{}
	if !o.Force {
		var err error
		has, errored, err = b.existing(ctx, addrs, o)
		if err != nil {
			res.Data.Fail(err)
		}
	}

	area := target(o)
	byKey := make(map[string]string, len(addrs))
	reqs := make([]*dynamodb.WriteRequest, 0, len(addrs))
	for _, addr := range addrs {
		switch {
		case errored[addr]:
			res.Data.AddrsErrored = append(res.Data.AddrsErrored, addr)
			continue
		case has[addr]:
			res.Data.AddrsAlreadyHave = append(res.Data.AddrsAlreadyHave, addr)
			res.Data.Warn("already have %s", addr)
			continue
		}
		var it item
		if n, ok := nodes[addr]; ok {
			var err error
			if it, err = b.nodeItem(ctx, n, area); err != nil {
				res.Data.Fail(err)
				res.Data.AddrsErrored = append(res.Data.AddrsErrored, addr)
				continue
			}
		} else {
			if b.objects != nil {
				if err := b.objects.put(ctx, b.key(addr), arg.BinData); err != nil {
					res.Data.Fail(err)
					res.Data.AddrsErrored = append(res.Data.AddrsErrored, addr)
					continue
				}
			}
			it = b.binItem(o, arg.BinData)
		}
		byKey[b.key(addr)] = addr
		reqs = append(reqs, &dynamodb.WriteRequest{PutRequest: &dynamodb.PutRequest{Item: it}})
	}

	if o.Force && len(reqs) > 0 {
		res.Data.Warn("forced put of %d items: existing items are overwritten", len(reqs))
	}
	done, failed, err := b.write(ctx, "put", reqs, byKey)
	if err != nil {
		res.Data.Fail(err)
	}
	res.Data.Addrs = append(res.Data.Addrs, done...)
	res.Data.AddrsErrored = append(res.Data.AddrsErrored, failed...)
	b.logger.Debug("put",
		zap.Int("written", len(done)), zap.Int("alreadyHave", len(res.Data.AddrsAlreadyHave)), zap.Int("errored", len(res.Data.AddrsErrored)))
	return res, nil
}

// Delete items in batches. Addresses not held are reported as not found.
func (b *Backend) Delete(ctx context.Context, arg *space.Arg) (*space.Result, error) {
	ctx, cancel := b.withDeadline(ctx)
	defer cancel()

	o := arg.Options
	addrs := unique(o.Addrs)
	if o.IsBinary() {
		addrs = append([]string{ibgib.BinAddr(o.BinHash, o.BinExt)}, addrs...)
	}
	res := space.Succeeded()
	held, errored, err := b.held(ctx, addrs, o)
	if err != nil {
		res.Data.Fail(err)
	}

	byKey := make(map[string]string, len(addrs))
	reqs := make([]*dynamodb.WriteRequest, 0, len(addrs))
	for _, addr := range addrs {
		_, has := held[addr]
		switch {
		case errored[addr]:
			res.Data.AddrsErrored = append(res.Data.AddrsErrored, addr)
		case !has:
			res.Data.AddrsNotFound = append(res.Data.AddrsNotFound, addr)
		default:
			byKey[b.key(addr)] = addr
			reqs = append(reqs, &dynamodb.WriteRequest{DeleteRequest: &dynamodb.DeleteRequest{Key: b.keyItem(addr)}})
		}
	}

	done, failed, err := b.write(ctx, "delete", reqs, byKey)
	if err != nil {
		res.Data.Fail(err)
	}
	res.Data.Addrs = done
	res.Data.AddrsErrored = append(res.Data.AddrsErrored, failed...)
	b.deleteObjects(ctx, res, done, held)
	if len(res.Data.Addrs) > 0 && len(res.Data.AddrsErrored) > 0 {
		res.Data.Warn("partially deleted: %d deleted, %d errored", len(res.Data.Addrs), len(res.Data.AddrsErrored))
	}
	return res, nil
}

// deleteObjects removes the bucket objects of deleted items. The items are gone already:
// an object left behind only wastes space, so failures are reported as warnings.
func (b *Backend) deleteObjects(ctx context.Context, res *space.Result, deleted []string, held map[string]item) {
	for _, addr := range deleted {
		it := held[addr]
		if !inS3(it) {
			continue
		}
		if b.objects == nil {
			res.Data.Warn("object of %s left in its bucket: no bucket configured", addr)
			continue
		}
		if err := b.objects.delete(ctx, b.keyOf(it)); err != nil {
			b.logger.Warn("object left behind", zap.String("addr", addr), zap.Error(err))
			res.Data.Warn("object of %s left in %s: %v", addr, b.objects, err)
		}
	}
}

// GetAddrs scans the table for every node address held
func (b *Backend) GetAddrs(ctx context.Context, arg *space.Arg) (*space.Result, error) {
	ctx, cancel := b.withDeadline(ctx)
	defer cancel()

	areas := searched(arg.Options)
	in := &dynamodb.ScanInput{
		TableName:            aws.String(b.table),
		ProjectionExpression: aws.String("#ib, #gib, #area"),
		ExpressionAttributeNames: map[string]*string{
			"#ib":   aws.String(attrIb),
			"#gib":  aws.String(attrGib),
			"#area": aws.String(attrArea),
		},
	}
	var addrs []string
	err := b.send(ctx, "scan", func() error {
		addrs = addrs[:0]
		return b.api.ScanPagesWithContext(ctx, in, func(page *dynamodb.ScanOutput, _ bool) bool {
			for _, it := range page.Items {
				if areaOf(it) == local.AreaBinary || !inAreas(it, areas) {
					continue
				}
				addrs = append(addrs, ibgib.Addr(str(it, attrIb), str(it, attrGib)))
			}
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(addrs)
	res := space.Succeeded()
	res.Data.Addrs = addrs
	return res, nil
}

// GetLatest queries the timeline index for the node with the highest counter of each timeline.
//
// A timeline without indexed versions resolves to its origin, when held.
func (b *Backend) GetLatest(ctx context.Context, arg *space.Arg) (*space.Result, error) {
	ctx, cancel := b.withDeadline(ctx)
	defer cancel()

	o := arg.Options
	res := space.Succeeded()
	var latest, origins []string
	for _, tjpAddr := range unique(o.Addrs) {
		addr, err := b.queryLatest(ctx, tjpAddr)
		switch {
		case err != nil:
			res.Data.Fail(err)
			res.Data.AddrsErrored = append(res.Data.AddrsErrored, tjpAddr)
		case addr == "":
			origins = append(origins, tjpAddr)
		default:
			latest = append(latest, addr)
		}
	}
	if len(origins) > 0 {
		has, errored, err := b.existing(ctx, origins, o)
		if err != nil {
			res.Data.Fail(err)
		}
		for _, tjpAddr := range origins {
			switch {
			case errored[tjpAddr]:
				res.Data.AddrsErrored = append(res.Data.AddrsErrored, tjpAddr)
			case has[tjpAddr]:
				latest = append(latest, tjpAddr)
			default:
				res.Data.AddrsNotFound = append(res.Data.AddrsNotFound, tjpAddr)
			}
		}
	}
	res.Data.Addrs = latest
	if o.Has(space.ModAddrs) || len(latest) == 0 {
		return res, nil
	}

	found, errored, err := b.lookup(ctx, latest, false)
	if err != nil {
		res.Data.Fail(err)
	}
	for _, addr := range latest {
		it, ok := found[addr]
		switch {
		case errored[addr]:
			res.Data.AddrsErrored = append(res.Data.AddrsErrored, addr)
		case !ok:
			res.Data.AddrsNotFound = append(res.Data.AddrsNotFound, addr)
		default:
			n, err := b.nodeOf(ctx, it)
			if err != nil {
				res.Data.Fail(err)
				res.Data.AddrsErrored = append(res.Data.AddrsErrored, addr)
				continue
			}
			res.Nodes = append(res.Nodes, n)
		}
	}
	return res, nil
}

func (b *Backend) queryLatest(ctx context.Context, tjpAddr string) (string, error) {
	var out *dynamodb.QueryOutput
	err := b.send(ctx, "query", func() error {
		var err error
		out, err = b.api.QueryWithContext(ctx, &dynamodb.QueryInput{
			TableName:                aws.String(b.table),
			IndexName:                aws.String(b.tjpIndex),
			KeyConditionExpression:   aws.String("#tjp = :tjp"),
			ExpressionAttributeNames: map[string]*string{"#tjp": aws.String(attrTjp)},
			ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
				":tjp": {S: aws.String(tjpAddr)},
			},
			ScanIndexForward: aws.Bool(false),
			Limit:            aws.Int64(1),
		})
		return err
	})
	if err != nil {
		return "", err
	}
	if len(out.Items) == 0 {
		return "", nil
	}
	it := out.Items[0]
	return ibgib.Addr(str(it, attrIb), str(it, attrGib)), nil
}

// CanGet tells if every address is held
func (b *Backend) CanGet(ctx context.Context, arg *space.Arg) (*space.Result, error) {
	ctx, cancel := b.withDeadline(ctx)
	defer cancel()

	o := arg.Options
	addrs := unique(o.Addrs)
	if o.IsBinary() {
		addrs = append([]string{ibgib.BinAddr(o.BinHash, o.BinExt)}, addrs...)
	}
	has, _, err := b.existing(ctx, addrs, o)
	if err != nil {
		return nil, err
	}
	res := space.Succeeded()
	for _, addr := range addrs {
		if !has[addr] {
			res.Data.AddrsNotFound = append(res.Data.AddrsNotFound, addr)
		}
	}
	res.Data.Can = len(res.Data.AddrsNotFound) == 0
	return res, nil
}

// CanPut reports the addresses that a put would skip as duplicates
func (b *Backend) CanPut(ctx context.Context, arg *space.Arg) (*space.Result, error) {
	ctx, cancel := b.withDeadline(ctx)
	defer cancel()

	o := arg.Options
	addrs := unique(append(arg.PayloadAddrs(), o.Addrs...))
	if o.IsBinary() {
		addrs = append(addrs, ibgib.BinAddr(o.BinHash, o.BinExt))
	}
	has, _, err := b.existing(ctx, addrs, o)
	if err != nil {
		return nil, err
	}
	res := space.Succeeded()
	for _, addr := range addrs {
		if has[addr] {
			res.Data.AddrsAlreadyHave = append(res.Data.AddrsAlreadyHave, addr)
		}
	}
	res.Data.Can = o.Force || len(res.Data.AddrsAlreadyHave) < len(addrs)
	return res, nil
}

// CanDelete tells if every address is held, hence deletable
func (b *Backend) CanDelete(ctx context.Context, arg *space.Arg) (*space.Result, error) {
	return b.CanGet(ctx, arg)
}

func unique(addrs []string) []string {
	seen := make(map[string]bool, len(addrs))
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}
