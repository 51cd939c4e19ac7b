package local

import (
	"context"
	"io"
	"sort"

	"github.com/oneconcern/gibsync/pkg/errors"
	"github.com/oneconcern/gibsync/pkg/ibgib"
	"github.com/oneconcern/gibsync/pkg/space"
	"github.com/oneconcern/gibsync/pkg/space/status"
	"go.uber.org/zap"
)

var _ space.Backend = &Backend{}

// Option for the local backend
type Option func(*Backend)

// Logger for the backend
func Logger(l *zap.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// Backend executes space commands against records
type Backend struct {
	records Records
	logger  *zap.Logger
}

// New backend over some records
func New(records Records, opts ...Option) *Backend {
	b := &Backend{
		records: records,
		logger:  zap.NewNop(),
	}
	for _, apply := range opts {
		apply(b)
	}
	return b
}

func (b *Backend) String() string {
	return b.records.String()
}

// Close the records if they hold resources
func (b *Backend) Close() error {
	if c, ok := b.records.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// searched returns the areas searched for a node, in order
func searched(o space.Options) []Area {
	switch {
	case o.IsMeta:
		return []Area{AreaMeta}
	case o.IsDna:
		return []Area{AreaDna}
	default:
		return []Area{AreaRegular, AreaMeta, AreaDna}
	}
}

// target returns the area a node is written to
func target(o space.Options) Area {
	switch {
	case o.IsMeta:
		return AreaMeta
	case o.IsDna:
		return AreaDna
	default:
		return AreaRegular
	}
}

func binKey(o space.Options) string {
	return ibgib.BinFilename(o.BinHash, o.BinExt)
}

func binAddr(o space.Options) string {
	return ibgib.BinAddr(o.BinHash, o.BinExt)
}

func (b *Backend) find(ctx context.Context, addr string, o space.Options) (*ibgib.Node, error) {
	for _, area := range searched(o) {
		buf, err := b.records.Get(ctx, area, addr)
		if errors.Is(err, status.ErrNotExists) {
			continue
		}
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
		if n.Addr() != addr {
			return nil, status.ErrInvalidNode.Wrapf("record %s holds %s", addr, n.Addr())
		}
		return n, nil
	}
	return nil, status.ErrNotExists.Wrapf("%s", addr)
}

func (b *Backend) exists(ctx context.Context, addr string, o space.Options) (bool, error) {
	for _, area := range searched(o) {
		has, err := b.records.Has(ctx, area, addr)
		if err != nil {
			return false, err
		}
		if has {
			return true, nil
		}
	}
	return false, nil
}

// Get nodes by address, or a binary payload by hash
func (b *Backend) Get(ctx context.Context, arg *space.Arg) (*space.Result, error) {
	o := arg.Options
	if o.IsBinary() {
		return b.getBin(ctx, o)
	}
	res := space.Succeeded()
	for _, addr := range unique(o.Addrs) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := b.find(ctx, addr, o)
		switch {
		case errors.Is(err, status.ErrNotExists):
			res.Data.AddrsNotFound = append(res.Data.AddrsNotFound, addr)
		case err != nil:
			res.Data.Fail(err)
			res.Data.AddrsErrored = append(res.Data.AddrsErrored, addr)
		default:
			res.Nodes = append(res.Nodes, n)
		}
	}
	b.logger.Debug("get", zap.Int("found", len(res.Nodes)), zap.Int("notFound", len(res.Data.AddrsNotFound)))
	return res, nil
}

func (b *Backend) getBin(ctx context.Context, o space.Options) (*space.Result, error) {
	res := space.Succeeded()
	buf, err := b.records.Get(ctx, AreaBinary, binKey(o))
	switch {
	case errors.Is(err, status.ErrNotExists):
		res.Data.AddrsNotFound = []string{binAddr(o)}
	case err != nil:
		return nil, err
	default:
		res.BinData = buf
		res.Data.Addrs = []string{binAddr(o)}
	}
	return res, nil
}

// Put nodes, skipping those already present unless forced
func (b *Backend) Put(ctx context.Context, arg *space.Arg) (*space.Result, error) {
	o := arg.Options
	res := space.Succeeded()
	if o.IsBinary() && len(arg.BinData) > 0 {
		b.putBin(ctx, arg, res)
	}
	area := target(o)
	for _, n := range arg.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		addr := n.Addr()
		has, err := b.exists(ctx, addr, o)
		if err != nil {
			res.Data.Fail(err)
			res.Data.AddrsErrored = append(res.Data.AddrsErrored, addr)
			continue
		}
		if has {
			if !o.Force {
				res.Data.AddrsAlreadyHave = append(res.Data.AddrsAlreadyHave, addr)
				res.Data.Warn("already have %s", addr)
				continue
			}
			res.Data.Warn("overwriting %s", addr)
		}
		buf, err := ibgib.Encode(n)
		if err == nil {
			err = b.records.Put(ctx, area, addr, buf)
		}
		if err != nil {
			res.Data.Fail(err)
			res.Data.AddrsErrored = append(res.Data.AddrsErrored, addr)
			continue
		}
		res.Data.Addrs = append(res.Data.Addrs, addr)
	}
	b.logger.Debug("put", zap.Int("written", len(res.Data.Addrs)), zap.Int("alreadyHave", len(res.Data.AddrsAlreadyHave)))
	return res, nil
}

func (b *Backend) putBin(ctx context.Context, arg *space.Arg, res *space.Result) {
	o := arg.Options
	addr := binAddr(o)
	has, err := b.records.Has(ctx, AreaBinary, binKey(o))
	if err != nil {
		res.Data.Fail(err)
		res.Data.AddrsErrored = append(res.Data.AddrsErrored, addr)
		return
	}
	if has {
		if !o.Force {
			res.Data.AddrsAlreadyHave = append(res.Data.AddrsAlreadyHave, addr)
			res.Data.Warn("already have %s", addr)
			return
		}
		res.Data.Warn("overwriting %s", addr)
	}
	if err := b.records.Put(ctx, AreaBinary, binKey(o), arg.BinData); err != nil {
		res.Data.Fail(err)
		res.Data.AddrsErrored = append(res.Data.AddrsErrored, addr)
		return
	}
	res.Data.Addrs = append(res.Data.Addrs, addr)
}

// Delete nodes from every searched area
func (b *Backend) Delete(ctx context.Context, arg *space.Arg) (*space.Result, error) {
	o := arg.Options
	res := space.Succeeded()
	if o.IsBinary() {
		b.deleteOne(ctx, AreaBinary, binKey(o), binAddr(o), res)
	}
	for _, addr := range unique(o.Addrs) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		deleted := false
		for _, area := range searched(o) {
			has, err := b.records.Has(ctx, area, addr)
			if err != nil {
				res.Data.Fail(err)
				res.Data.AddrsErrored = append(res.Data.AddrsErrored, addr)
				deleted = true
				break
			}
			if !has {
				continue
			}
			if err := b.records.Delete(ctx, area, addr); err != nil {
				res.Data.Fail(err)
				res.Data.AddrsErrored = append(res.Data.AddrsErrored, addr)
			}
			deleted = true
		}
		switch {
		case !deleted:
			res.Data.AddrsNotFound = append(res.Data.AddrsNotFound, addr)
		case !contains(res.Data.AddrsErrored, addr):
			res.Data.Addrs = append(res.Data.Addrs, addr)
		}
	}
	if len(res.Data.Addrs) > 0 && len(res.Data.AddrsErrored) > 0 {
		res.Data.Warn("partially deleted: %d deleted, %d errored", len(res.Data.Addrs), len(res.Data.AddrsErrored))
	}
	return res, nil
}

func (b *Backend) deleteOne(ctx context.Context, area Area, key, addr string, res *space.Result) {
	has, err := b.records.Has(ctx, area, key)
	if err == nil && !has {
		res.Data.AddrsNotFound = append(res.Data.AddrsNotFound, addr)
		return
	}
	if err == nil {
		err = b.records.Delete(ctx, area, key)
	}
	if err != nil {
		res.Data.Fail(err)
		res.Data.AddrsErrored = append(res.Data.AddrsErrored, addr)
		return
	}
	res.Data.Addrs = append(res.Data.Addrs, addr)
}

// GetAddrs lists every node address held
func (b *Backend) GetAddrs(ctx context.Context, arg *space.Arg) (*space.Result, error) {
	seen := make(map[string]bool)
	for _, area := range searched(arg.Options) {
		keys, err := b.records.Keys(ctx, area)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			seen[k] = true
		}
	}
	addrs := make([]string, 0, len(seen))
	for k := range seen {
		addrs = append(addrs, k)
	}
	sort.Strings(addrs)
	res := space.Succeeded()
	res.Data.Addrs = addrs
	return res, nil
}

// CanGet tells if every address is held
func (b *Backend) CanGet(ctx context.Context, arg *space.Arg) (*space.Result, error) {
	o := arg.Options
	res := space.Succeeded()
	if o.IsBinary() {
		has, err := b.records.Has(ctx, AreaBinary, binKey(o))
		if err != nil {
			return nil, err
		}
		if !has {
			res.Data.AddrsNotFound = append(res.Data.AddrsNotFound, binAddr(o))
		}
	}
	for _, addr := range unique(o.Addrs) {
		has, err := b.exists(ctx, addr, o)
		if err != nil {
			return nil, err
		}
		if !has {
			res.Data.AddrsNotFound = append(res.Data.AddrsNotFound, addr)
		}
	}
	res.Data.Can = len(res.Data.AddrsNotFound) == 0
	return res, nil
}

// CanPut reports the addresses that a put would skip as duplicates
func (b *Backend) CanPut(ctx context.Context, arg *space.Arg) (*space.Result, error) {
	o := arg.Options
	addrs := unique(append(arg.PayloadAddrs(), o.Addrs...))
	res := space.Succeeded()
	for _, addr := range addrs {
		has, err := b.exists(ctx, addr, o)
		if err != nil {
			return nil, err
		}
		if has {
			res.Data.AddrsAlreadyHave = append(res.Data.AddrsAlreadyHave, addr)
		}
	}
	total := len(addrs)
	if o.IsBinary() {
		total++
		has, err := b.records.Has(ctx, AreaBinary, binKey(o))
		if err != nil {
			return nil, err
		}
		if has {
			res.Data.AddrsAlreadyHave = append(res.Data.AddrsAlreadyHave, binAddr(o))
		}
	}
	res.Data.Can = o.Force || len(res.Data.AddrsAlreadyHave) < total
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

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
