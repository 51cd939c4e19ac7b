package dynamo

import (
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/gibsync/pkg/ibgib"
	"github.com/oneconcern/gibsync/pkg/space"
	"github.com/oneconcern/gibsync/pkg/space/local"
	"github.com/oneconcern/gibsync/pkg/space/status"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Attribute names of stored items, besides the primary key
const (
	attrIb      = "ib"
	attrGib     = "gib"
	attrData    = "data"
	attrRel8ns  = "rel8ns"
	attrN       = "n"
	attrTjp     = "tjp"
	attrArea    = "area"
	attrBinData = "binData"
	attrInS3    = "inS3"
)

type item = map[string]*dynamodb.AttributeValue

// key derives the primary key of an address
func (b *Backend) key(addr string) string {
	return ibgib.HexDigest(b.hash, addr)
}

func (b *Backend) keyOf(it item) string {
	if v, ok := it[b.pk]; ok && v.S != nil {
		return *v.S
	}
	return ""
}

func (b *Backend) keyItem(addr string) item {
	return item{b.pk: {S: aws.String(b.key(addr))}}
}

// searched returns the areas searched for a node
func searched(o space.Options) []local.Area {
	switch {
	case o.IsMeta:
		return []local.Area{local.AreaMeta}
	case o.IsDna:
		return []local.Area{local.AreaDna}
	default:
		return []local.Area{local.AreaRegular, local.AreaMeta, local.AreaDna}
	}
}

func target(o space.Options) local.Area {
	switch {
	case o.IsMeta:
		return local.AreaMeta
	case o.IsDna:
		return local.AreaDna
	default:
		return local.AreaRegular
	}
}

func areaOf(it item) local.Area {
	if v, ok := it[attrArea]; ok && v.S != nil {
		for _, a := range local.Areas {
			if a.String() == *v.S {
				return a
			}
		}
	}
	return local.AreaRegular
}

func inAreas(it item, areas []local.Area) bool {
	a := areaOf(it)
	for _, want := range areas {
		if a == want {
			return true
		}
	}
	return false
}

// toItem converts a node into a storable item.
//
// The counter and tjp attributes feed the secondary index used to resolve
// the latest node of a timeline.
func (b *Backend) toItem(n *ibgib.Node, area local.Area) (item, error) {
	it := item{
		b.pk:     {S: aws.String(b.key(n.Addr()))},
		attrIb:   {S: aws.String(n.ID)},
		attrGib:  {S: aws.String(n.ContentHash)},
		attrArea: {S: aws.String(area.String())},
	}
	if len(n.Data) > 0 {
		buf, err := json.Marshal(n.Data)
		if err != nil {
			return nil, fmt.Errorf("encoding data of %s: %v", n.Addr(), err)
		}
		it[attrData] = &dynamodb.AttributeValue{S: aws.String(string(buf))}
	}
	if len(n.Relations) > 0 {
		buf, err := json.Marshal(n.Relations)
		if err != nil {
			return nil, fmt.Errorf("encoding relations of %s: %v", n.Addr(), err)
		}
		it[attrRel8ns] = &dynamodb.AttributeValue{S: aws.String(string(buf))}
	}
	if c, ok := ibgib.Counter(n); ok {
		it[attrN] = &dynamodb.AttributeValue{N: aws.String(strconv.FormatInt(c, 10))}
	}
	if tjp := tjpOf(n); tjp != "" {
		it[attrTjp] = &dynamodb.AttributeValue{S: aws.String(tjp)}
	}
	return it, nil
}

// pointerItem stands for a node held in the bucket: data and relations are left out
func (b *Backend) pointerItem(n *ibgib.Node, area local.Area) item {
	it := item{
		b.pk:     {S: aws.String(b.key(n.Addr()))},
		attrIb:   {S: aws.String(n.ID)},
		attrGib:  {S: aws.String(n.ContentHash)},
		attrArea: {S: aws.String(area.String())},
		attrInS3: {BOOL: aws.Bool(true)},
	}
	if c, ok := ibgib.Counter(n); ok {
		it[attrN] = &dynamodb.AttributeValue{N: aws.String(strconv.FormatInt(c, 10))}
	}
	if tjp := tjpOf(n); tjp != "" {
		it[attrTjp] = &dynamodb.AttributeValue{S: aws.String(tjp)}
	}
	return it
}

func inS3(it item) bool {
	v, ok := it[attrInS3]
	return ok && v.BOOL != nil && *v.BOOL
}

func tjpOf(n *ibgib.Node) string {
	if ibgib.IsTjp(n) {
		return n.Addr()
	}
	tjp, _ := ibgib.Tjp(n)
	return tjp
}

// fromItem rebuilds a node and checks its content hash
func fromItem(it item) (*ibgib.Node, error) {
	n := &ibgib.Node{}
	if v, ok := it[attrIb]; ok && v.S != nil {
		n.ID = *v.S
	}
	if v, ok := it[attrGib]; ok && v.S != nil {
		n.ContentHash = *v.S
	}
	if v, ok := it[attrData]; ok && v.S != nil {
		if err := json.Unmarshal([]byte(*v.S), &n.Data); err != nil {
			return nil, status.ErrInvalidNode.Wrapf("decoding data of %s: %v", n.Addr(), err)
		}
	}
	if v, ok := it[attrRel8ns]; ok && v.S != nil {
		if err := json.Unmarshal([]byte(*v.S), &n.Relations); err != nil {
			return nil, status.ErrInvalidNode.Wrapf("decoding relations of %s: %v", n.Addr(), err)
		}
	}
	if err := ibgib.Verify(n); err != nil {
		return nil, status.ErrInvalidNode.Wrap(err)
	}
	return n, nil
}

func (b *Backend) binItem(o space.Options, data []byte) item {
	it := item{
		b.pk:     {S: aws.String(b.key(ibgib.BinAddr(o.BinHash, o.BinExt)))},
		attrIb:   {S: aws.String("bin." + o.BinExt)},
		attrGib:  {S: aws.String(o.BinHash)},
		attrArea: {S: aws.String(local.AreaBinary.String())},
	}
	if b.objects != nil {
		it[attrInS3] = &dynamodb.AttributeValue{BOOL: aws.Bool(true)}
	} else {
		it[attrBinData] = &dynamodb.AttributeValue{B: data}
	}
	return it
}
