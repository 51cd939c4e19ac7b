package dynamo

import (
	"bytes"
	"context"
	"io/ioutil"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/oneconcern/gibsync/pkg/ibgib"
	"github.com/oneconcern/gibsync/pkg/space/local"
	"github.com/oneconcern/gibsync/pkg/space/status"
	"go.uber.org/zap"
)

// NewS3API builds an S3 client from an AWS configuration
func NewS3API(cfg *aws.Config) (s3iface.S3API, error) {
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, status.ErrStorageAPI.Wrap(err)
	}
	return s3.New(sess), nil
}

// objects holds the items too large for the table in a bucket, under the same key as their table item.
// The table item then only carries the attributes needed to find and index them.
type objects struct {
	api    s3iface.S3API
	bucket string
}

func (o *objects) String() string {
	return "s3@" + o.bucket
}

func (o *objects) put(ctx context.Context, key string, body []byte) error {
	_, err := o.api.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	return toSentinelErrors(err)
}

func (o *objects) get(ctx context.Context, key string) ([]byte, error) {
	obj, err := o.api.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isMissingObject(err) {
			return nil, status.ErrNotExists.Wrapf("%s/%s", o, key)
		}
		return nil, toSentinelErrors(err)
	}
	defer func() {
		_ = obj.Body.Close()
	}()
	return ioutil.ReadAll(obj.Body)
}

func (o *objects) delete(ctx context.Context, key string) error {
	_, err := o.api.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(key),
	})
	return toSentinelErrors(err)
}

func isMissingObject(err error) bool {
	if rerr, ok := err.(awserr.RequestFailure); ok && rerr.StatusCode() == 404 {
		return true
	}
	aerr, ok := err.(awserr.Error)
	return ok && aerr.Code() == s3.ErrCodeNoSuchKey
}

// nodeItem converts a node into a table item, first moving large nodes to the bucket
func (b *Backend) nodeItem(ctx context.Context, n *ibgib.Node, area local.Area) (item, error) {
	if b.objects == nil {
		return b.toItem(n, area)
	}
	buf, err := ibgib.Encode(n)
	if err != nil {
		return nil, err
	}
	if len(buf) <= b.largeItem {
		return b.toItem(n, area)
	}
	if err := b.objects.put(ctx, b.key(n.Addr()), buf); err != nil {
		return nil, err
	}
	b.logger.Debug("large node moved to the bucket", zap.String("addr", n.Addr()), zap.Int("size", len(buf)))
	return b.pointerItem(n, area), nil
}

// nodeOf rebuilds the node of an item, fetching it from the bucket when needed
func (b *Backend) nodeOf(ctx context.Context, it item) (*ibgib.Node, error) {
	if !inS3(it) {
		return fromItem(it)
	}
	buf, err := b.object(ctx, it)
	if err != nil {
		return nil, err
	}
	n, err := ibgib.Decode(buf)
	if err != nil {
		return nil, status.ErrInvalidNode.Wrap(err)
	}
	if err := ibgib.Verify(n); err != nil {
		return nil, status.ErrInvalidNode.Wrap(err)
	}
	return n, nil
}

func (b *Backend) object(ctx context.Context, it item) ([]byte, error) {
	if b.objects == nil {
		return nil, status.ErrNotSupported.Wrapf("item %s is held in a bucket, but none is configured", b.keyOf(it))
	}
	return b.objects.get(ctx, b.keyOf(it))
}
