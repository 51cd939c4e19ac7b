// Package witness holds the plumbing shared by everything that answers
// requests: identity, validation, tracing and the catch-all error policy.
package witness

import (
	"context"
	"fmt"
	"strings"

	"github.com/oneconcern/gibsync/pkg/errors"
	"github.com/oneconcern/gibsync/pkg/ibgib"
	"go.uber.org/zap"
)

var (
	// ErrInvalidWitness is returned when the witness' own identity is malformed
	ErrInvalidWitness = errors.New("invalid witness")

	// ErrInvalidRequest is returned when a request fails validation
	ErrInvalidRequest = errors.New("invalid request")
)

// TraceAll enables tracing of every operation
const TraceAll = "*"

// Request is what a witness needs to know about an incoming request
type Request interface {
	// Addr of the request node
	Addr() string
	// Primitive tells if the request node is unhashed
	Primitive() bool
	// CatchAllErrors asks for implementation errors to be swallowed
	CatchAllErrors() bool
	// Validate returns the list of validation failures
	Validate() []string
}

// Config of a witness
type Config struct {
	// Name is used in logs
	Name string

	// CatchAllErrors swallows implementation errors for every request
	CatchAllErrors bool

	// Trace lists the operation names whose requests get logged
	Trace []string

	// AllowPrimitiveArgs accepts unhashed request nodes
	AllowPrimitiveArgs bool
}

// Base implements the witnessing steps around an operation
type Base struct {
	self   *ibgib.Node
	config Config
	logger *zap.Logger
}

// Option for Base
type Option func(*Base)

// WithConfig sets the witness configuration
func WithConfig(c Config) Option {
	return func(b *Base) {
		b.config = c
	}
}

// Logger for the witness
func Logger(l *zap.Logger) Option {
	return func(b *Base) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBase builds the plumbing for a witness identified by self
func NewBase(self *ibgib.Node, opts ...Option) *Base {
	b := &Base{
		self:   self,
		logger: zap.NewNop(),
	}
	for _, apply := range opts {
		apply(b)
	}
	if b.config.Name == "" && self != nil {
		b.config.Name = self.ID
	}
	b.logger = b.logger.With(zap.String("witness", b.config.Name))
	return b
}

// Self returns the witness' own identity node, computing its content hash if absent.
func (b *Base) Self() (*ibgib.Node, error) {
	if b.self == nil {
		return nil, ErrInvalidWitness.Wrapf("no identity")
	}
	if b.self.ContentHash == "" {
		if _, err := ibgib.Seal(b.self); err != nil {
			return nil, ErrInvalidWitness.Wrap(err)
		}
	}
	return b.self, nil
}

// Config returns the witness configuration
func (b *Base) Config() Config {
	return b.config
}

// Logger returns the witness logger
func (b *Base) Logger() *zap.Logger {
	return b.logger
}

func (b *Base) validateThis() error {
	self, err := b.Self()
	if err != nil {
		return err
	}
	if self.ID == "" {
		return ErrInvalidWitness.Wrapf("id required")
	}
	if self.ContentHash == "" {
		return ErrInvalidWitness.Wrapf("content hash required")
	}
	return nil
}

func (b *Base) validateRequest(req Request) error {
	if req == nil {
		return ErrInvalidRequest.Wrapf("request required")
	}
	var problems []string
	if req.Primitive() && !b.config.AllowPrimitiveArgs {
		problems = append(problems, "primitive request not allowed")
	}
	problems = append(problems, req.Validate()...)
	if len(problems) > 0 {
		return ErrInvalidRequest.Wrapf("%s", strings.Join(problems, "; "))
	}
	return nil
}

func (b *Base) traces(op string) bool {
	for _, t := range b.config.Trace {
		if t == op || t == TraceAll {
			return true
		}
	}
	return false
}

// Run witnesses a request: it validates the witness and the request, then runs impl.
//
// Validation errors are always returned. An error returned by impl is swallowed
// (Run returns swallowed=true, err=nil) when the witness or the request asks
// for catch-all errors.
func (b *Base) Run(ctx context.Context, op string, req Request, impl func(context.Context) error) (swallowed bool, err error) {
	if err = b.validateThis(); err != nil {
		return false, err
	}
	if err = b.validateRequest(req); err != nil {
		return false, err
	}
	if b.traces(op) {
		b.logger.Debug("witness", zap.String("op", op), zap.String("arg", req.Addr()))
	}

	if err = runSafe(ctx, impl); err != nil {
		if b.config.CatchAllErrors || req.CatchAllErrors() {
			b.logger.Error("witness error swallowed", zap.String("op", op), zap.String("arg", req.Addr()), zap.Error(err))
			return true, nil
		}
		return false, err
	}
	return false, nil
}

func runSafe(ctx context.Context, impl func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in witness: %v", r)
		}
	}()
	return impl(ctx)
}
