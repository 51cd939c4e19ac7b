package dynamo

import (
	"bytes"
	"io/ioutil"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/mock"
)

// fakeTable is an in-memory table, keyed by the default primary key.
//
// Scripts tell how many requests successive calls leave unprocessed
// (a negative count leaves them all), or which error they fail with.
type fakeTable struct {
	dynamodbiface.DynamoDBAPI

	mu    sync.Mutex
	items map[string]item

	writeScript []int
	readScript  []int
	writeErrs   map[int]error

	writes [][]*dynamodb.WriteRequest
	reads  [][]item
}

func newFakeTable() *fakeTable {
	return &fakeTable{items: make(map[string]item), writeErrs: make(map[int]error)}
}

func leave(script []int, call, n int) int {
	if call >= len(script) {
		return 0
	}
	if script[call] < 0 || script[call] > n {
		return n
	}
	return script[call]
}

func (f *fakeTable) BatchWriteItemWithContext(_ aws.Context, in *dynamodb.BatchWriteItemInput, _ ...request.Option) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := len(f.writes)
	var reqs []*dynamodb.WriteRequest
	var table string
	for table, reqs = range in.RequestItems {
	}
	f.writes = append(f.writes, reqs)
	if err, ok := f.writeErrs[call]; ok {
		return nil, err
	}

	left := leave(f.writeScript, call, len(reqs))
	processed := reqs[:len(reqs)-left]
	for _, req := range processed {
		switch {
		case req.PutRequest != nil:
			f.items[*req.PutRequest.Item[DefaultPrimaryKeyName].S] = req.PutRequest.Item
		case req.DeleteRequest != nil:
			delete(f.items, *req.DeleteRequest.Key[DefaultPrimaryKeyName].S)
		}
	}
	out := &dynamodb.BatchWriteItemOutput{}
	if left > 0 {
		out.UnprocessedItems = map[string][]*dynamodb.WriteRequest{table: reqs[len(reqs)-left:]}
	}
	return out, nil
}

func (f *fakeTable) BatchGetItemWithContext(_ aws.Context, in *dynamodb.BatchGetItemInput, _ ...request.Option) (*dynamodb.BatchGetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := len(f.reads)
	var req *dynamodb.KeysAndAttributes
	var table string
	for table, req = range in.RequestItems {
	}
	f.reads = append(f.reads, req.Keys)

	left := leave(f.readScript, call, len(req.Keys))
	out := &dynamodb.BatchGetItemOutput{Responses: map[string][]item{table: nil}}
	for _, k := range req.Keys[:len(req.Keys)-left] {
		if it, ok := f.items[*k[DefaultPrimaryKeyName].S]; ok {
			out.Responses[table] = append(out.Responses[table], it)
		}
	}
	if left > 0 {
		out.UnprocessedKeys = map[string]*dynamodb.KeysAndAttributes{table: {Keys: req.Keys[len(req.Keys)-left:]}}
	}
	return out, nil
}

func (f *fakeTable) ScanPagesWithContext(_ aws.Context, _ *dynamodb.ScanInput, fn func(*dynamodb.ScanOutput, bool) bool, _ ...request.Option) error {
	f.mu.Lock()
	page := &dynamodb.ScanOutput{}
	for _, it := range f.items {
		page.Items = append(page.Items, it)
	}
	f.mu.Unlock()
	fn(page, true)
	return nil
}

func (f *fakeTable) QueryWithContext(_ aws.Context, in *dynamodb.QueryInput, _ ...request.Option) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tjp := *in.ExpressionAttributeValues[":tjp"].S
	var best item
	var bestN int64 = -1
	for _, it := range f.items {
		if it[attrTjp] == nil || *it[attrTjp].S != tjp || it[attrN] == nil {
			continue
		}
		n, _ := strconv.ParseInt(*it[attrN].N, 10, 64)
		if n > bestN {
			best, bestN = it, n
		}
	}
	out := &dynamodb.QueryOutput{}
	if best != nil {
		out.Items = []item{best}
	}
	return out, nil
}

func (f *fakeTable) writeSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	sizes := make([]int, 0, len(f.writes))
	for _, w := range f.writes {
		sizes = append(sizes, len(w))
	}
	return sizes
}

// mockAPI scripts raw API responses
type mockAPI struct {
	dynamodbiface.DynamoDBAPI
	mock.Mock
}

func (m *mockAPI) BatchWriteItemWithContext(ctx aws.Context, in *dynamodb.BatchWriteItemInput, _ ...request.Option) (*dynamodb.BatchWriteItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.BatchWriteItemOutput)
	return out, args.Error(1)
}

func (m *mockAPI) BatchGetItemWithContext(ctx aws.Context, in *dynamodb.BatchGetItemInput, _ ...request.Option) (*dynamodb.BatchGetItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.BatchGetItemOutput)
	return out, args.Error(1)
}

// fakeBucket is an in-memory S3 bucket
type fakeBucket struct {
	s3iface.S3API

	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	deleted []string
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: make(map[string][]byte)}
}

func (f *fakeBucket) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	buf, err := ioutil.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Key] = buf
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeBucket) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf, ok := f.objects[*in.Key]
	if !ok {
		return nil, awserr.NewRequestFailure(awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil), 404, "req")
	}
	return &s3.GetObjectOutput{Body: ioutil.NopCloser(bytes.NewReader(buf))}, nil
}

func (f *fakeBucket) DeleteObjectWithContext(_ aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Key)
	f.deleted = append(f.deleted, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}
