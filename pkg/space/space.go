// Copyright © 2018 One Concern

package space

import (
	"context"
	"io"

	"github.com/oneconcern/gibsync/pkg/clock"
	"github.com/oneconcern/gibsync/pkg/errors"
	"github.com/oneconcern/gibsync/pkg/ibgib"
	"github.com/oneconcern/gibsync/pkg/metrics"
	"github.com/oneconcern/gibsync/pkg/space/status"
	"github.com/oneconcern/gibsync/pkg/witness"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
)

var (
	errNoLatest = status.ErrNotSupported.Wrapf("no latest resolver configured")
	errSelfLog  = errors.New("self log failed")
)

// Space is a witness over storage.
type Space interface {
	String() string
	Witness(context.Context, *Arg) (*Result, error)
	Close() error
}

// Backend implementations know how to execute each space operation.
//
// Handlers fill the result's data and payload: the response identity is
// built by the space wrapping the backend. A handler error is reported
// as a failed result.
type Backend interface {
	String() string
	Get(context.Context, *Arg) (*Result, error)
	Put(context.Context, *Arg) (*Result, error)
	Delete(context.Context, *Arg) (*Result, error)
	GetAddrs(context.Context, *Arg) (*Result, error)
	CanGet(context.Context, *Arg) (*Result, error)
	CanPut(context.Context, *Arg) (*Result, error)
	CanDelete(context.Context, *Arg) (*Result, error)
}

// LatestGetter is implemented by backends able to resolve the latest node of timelines by themselves
type LatestGetter interface {
	GetLatest(context.Context, *Arg) (*Result, error)
}

// LatestResolver knows the latest address of timelines
type LatestResolver interface {
	LatestAddr(ctx context.Context, tjpAddr string) (string, bool, error)
}

// Option for a space
type Option func(*space)

// Name of the space
func Name(name string) Option {
	return func(s *space) {
		s.name = name
	}
}

// Clock stamps requests and responses
func Clock(clk clock.Clock) Option {
	return func(s *space) {
		if clk != nil {
			s.clock = clk
		}
	}
}

// Logger for the space
func Logger(l *zap.Logger) Option {
	return func(s *space) {
		if l != nil {
			s.logger = l
		}
	}
}

// CatchAllErrors swallows unexpected errors, returning nil results
func CatchAllErrors(enabled bool) Option {
	return func(s *space) {
		s.witness.CatchAllErrors = enabled
	}
}

// Trace logs requests for the named operations
func Trace(ops ...string) Option {
	return func(s *space) {
		s.witness.Trace = append(s.witness.Trace, ops...)
	}
}

// BinHasher sets the hash verifying binary payloads (sha256 by default)
func BinHasher(h ibgib.HashFunc) Option {
	return func(s *space) {
		if h != nil {
			s.binHasher = h
		}
	}
}

// Latest resolves "get latest" requests for backends that can't
func Latest(r LatestResolver) Option {
	return func(s *space) {
		s.latest = r
	}
}

// SelfLog persists every successful request and response in the meta area of the space itself
func SelfLog(enabled bool) Option {
	return func(s *space) {
		s.selfLog = enabled
	}
}

type space struct {
	name      string
	backend   Backend
	clock     clock.Clock
	logger    *zap.Logger
	witness   witness.Config
	base      *witness.Base
	binHasher ibgib.HashFunc
	latest    LatestResolver
	selfLog   bool
}

// New space over some backend
func New(backend Backend, opts ...Option) Space {
	s := &space{
		backend:   backend,
		clock:     clock.System(),
		logger:    zap.NewNop(),
		binHasher: ibgib.SHA256,
	}
	for _, apply := range opts {
		apply(s)
	}
	if s.name == "" {
		s.name = backend.String()
	}
	s.witness.Name = s.name
	s.logger = s.logger.With(zap.String("space", s.name))

	self := &ibgib.Node{
		ID: "space " + s.name,
		Data: map[string]interface{}{
			"name":      s.name,
			"uuid":      ksuid.New().String(),
			"classname": backend.String(),
		},
	}
	s.base = witness.NewBase(self, witness.WithConfig(s.witness), witness.Logger(s.logger))
	return s
}

func (s *space) String() string {
	return s.name
}

// Close the backend, if it holds resources
func (s *space) Close() error {
	if c, ok := s.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Witness validates the request, routes it to the backend and seals the response.
//
// Validation errors are returned. A nil result with a nil error means that
// an error was swallowed under the catch-all policy.
func (s *space) Witness(ctx context.Context, arg *Arg) (*Result, error) {
	if arg == nil {
		arg = &Arg{}
	}
	req := *arg
	req.binHasher = s.binHasher
	op, _ := Route(req.Options)

	var res *Result
	swallowed, err := s.base.Run(ctx, op, &req, func(ctx context.Context) error {
		var err error
		res, err = s.dispatch(ctx, op, &req)
		return err
	})
	if err != nil || swallowed {
		return nil, err
	}
	return res, nil
}

func (s *space) dispatch(ctx context.Context, op string, arg *Arg) (*Result, error) {
	start := s.clock.Now()
	res, err := s.handle(ctx, op, arg)
	if err != nil {
		s.logger.Warn("space command failed", zap.String("op", op), zap.String("arg", arg.Addr()), zap.Error(err))
		res = Failed(err)
	}
	if res == nil {
		res = Succeeded()
	}
	if err := sealResult(s.clock, arg, res); err != nil {
		return nil, err
	}
	metrics.SpaceOp(s.name, op, res.Data.Success, s.clock.Now().Sub(start))

	if s.selfLog && res.Data.Success {
		s.persistSelf(ctx, arg, res)
	}
	return res, nil
}

func (s *space) handle(ctx context.Context, op string, arg *Arg) (*Result, error) {
	switch op {
	case OpGet:
		return s.backend.Get(ctx, arg)
	case OpCanGet:
		return s.backend.CanGet(ctx, arg)
	case OpGetAddrs:
		return s.backend.GetAddrs(ctx, arg)
	case OpGetLatest:
		if lg, ok := s.backend.(LatestGetter); ok {
			return lg.GetLatest(ctx, arg)
		}
		return s.getLatest(ctx, arg)
	case OpPut:
		return s.backend.Put(ctx, arg)
	case OpCanPut:
		return s.backend.CanPut(ctx, arg)
	case OpDelete:
		return s.backend.Delete(ctx, arg)
	case OpCanDelete:
		return s.backend.CanDelete(ctx, arg)
	default:
		// unreachable: requests are validated against the same routes
		return nil, witness.ErrInvalidRequest.Wrapf("no route for %q", op)
	}
}

// getLatest resolves timelines through the latest resolver, then fetches the latest nodes
func (s *space) getLatest(ctx context.Context, arg *Arg) (*Result, error) {
	if s.latest == nil {
		return Failed(errNoLatest), nil
	}
	res := Succeeded()
	var found []string
	for _, tjpAddr := range arg.Options.Addrs {
		addr, ok, err := s.latest.LatestAddr(ctx, tjpAddr)
		if err != nil {
			res.Data.Fail(err)
			res.Data.AddrsErrored = append(res.Data.AddrsErrored, tjpAddr)
			continue
		}
		if !ok {
			res.Data.AddrsNotFound = append(res.Data.AddrsNotFound, tjpAddr)
			continue
		}
		found = append(found, addr)
	}
	res.Data.Addrs = found
	if arg.Options.Has(ModAddrs) || len(found) == 0 {
		return res, nil
	}

	sub, err := NewArg(s.clock, Options{Cmd: CmdGet, Addrs: found}, nil, nil)
	if err != nil {
		return nil, err
	}
	got, err := s.backend.Get(ctx, sub)
	if err != nil {
		return nil, err
	}
	res.Nodes = got.Nodes
	res.Data.Errors = append(res.Data.Errors, got.Data.Errors...)
	res.Data.AddrsNotFound = append(res.Data.AddrsNotFound, got.Data.AddrsNotFound...)
	res.Data.AddrsErrored = append(res.Data.AddrsErrored, got.Data.AddrsErrored...)
	res.Data.Success = res.Data.Success && got.Data.Success
	return res, nil
}

func (s *space) persistSelf(ctx context.Context, arg *Arg, res *Result) {
	if arg.Node == nil || res.Node == nil {
		return
	}
	logArg, err := NewArg(s.clock, Options{Cmd: CmdPut, IsMeta: true}, []*ibgib.Node{arg.Node, res.Node}, nil)
	if err == nil {
		var logged *Result
		logged, err = s.backend.Put(ctx, logArg)
		if err == nil && !logged.Data.Success {
			err = errSelfLog.Wrapf("%v", logged.Data.Errors)
		}
	}
	if err != nil {
		s.logger.Warn("self log failed", zap.String("arg", arg.Addr()), zap.Error(err))
	}
}
