package space

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/gibsync/pkg/clock"
	"github.com/oneconcern/gibsync/pkg/errors"
	"github.com/oneconcern/gibsync/pkg/ibgib"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Cmd is a space command
type Cmd string

// Commands understood by spaces
const (
	CmdGet    Cmd = "get"
	CmdPut    Cmd = "put"
	CmdDelete Cmd = "delete"
)

// Modifier alters a command
type Modifier string

// Command modifiers
const (
	ModCan    Modifier = "can"
	ModAddrs  Modifier = "addrs"
	ModLatest Modifier = "latest"
)

// Options are the parameters of a request. They are hashed into the request node.
type Options struct {
	Cmd            Cmd        `json:"cmd"`
	Modifiers      []Modifier `json:"cmdModifiers,omitempty"`
	Addrs          []string   `json:"ibGibAddrs,omitempty"`
	BinHash        string     `json:"binHash,omitempty"`
	BinExt         string     `json:"binExt,omitempty"`
	Force          bool       `json:"force,omitempty"`
	IsMeta         bool       `json:"isMeta,omitempty"`
	IsDna          bool       `json:"isDna,omitempty"`
	CatchAllErrors bool       `json:"catchAllErrors,omitempty"`
}

// Has tells if the options carry some modifier
func (o Options) Has(m Modifier) bool {
	for _, mod := range o.Modifiers {
		if mod == m {
			return true
		}
	}
	return false
}

// IsBinary tells if the request is about a binary payload
func (o Options) IsBinary() bool {
	return o.BinHash != ""
}

func (o Options) metadata() string {
	parts := []string{string(o.Cmd)}
	for _, m := range o.Modifiers {
		parts = append(parts, string(m))
	}
	return strings.Join(parts, " ")
}

// Arg is a request to a space
type Arg struct {
	// Node is the request's identity
	Node    *ibgib.Node
	Options Options

	// Nodes is the payload being put
	Nodes []*ibgib.Node

	// BinData is the binary payload being put
	BinData []byte

	binHasher ibgib.HashFunc
}

// NewArg builds a request stamped by the given clock
func NewArg(clk clock.Clock, opts Options, nodes []*ibgib.Node, binData []byte) (*Arg, error) {
	data, err := toData(opts)
	if err != nil {
		return nil, err
	}
	node, err := ibgib.NewWitnessArg(clk.Now(), opts.metadata(), data)
	if err != nil {
		return nil, err
	}
	return &Arg{Node: node, Options: opts, Nodes: nodes, BinData: binData}, nil
}

// Addr of the request node
func (a *Arg) Addr() string {
	return a.Node.Addr()
}

// Primitive tells if the request node is a primitive
func (a *Arg) Primitive() bool {
	return a.Node.IsPrimitive()
}

// CatchAllErrors tells if the request asks for errors to be swallowed
func (a *Arg) CatchAllErrors() bool {
	return a.Options.CatchAllErrors
}

// PayloadAddrs returns the addresses of the payload nodes
func (a *Arg) PayloadAddrs() []string {
	addrs := make([]string, 0, len(a.Nodes))
	for _, n := range a.Nodes {
		addrs = append(addrs, n.Addr())
	}
	return addrs
}

// ResultData is the hashed content of a response
type ResultData struct {
	OptsAddr         string   `json:"optsAddr"`
	Success          bool     `json:"success"`
	Can              bool     `json:"can,omitempty"`
	Errors           []string `json:"errors,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`
	Addrs            []string `json:"addrs,omitempty"`
	AddrsNotFound    []string `json:"addrsNotFound,omitempty"`
	AddrsAlreadyHave []string `json:"addrsAlreadyHave,omitempty"`
	AddrsErrored     []string `json:"addrsErrored,omitempty"`
}

// Fail records an error and marks the result unsuccessful
func (d *ResultData) Fail(err error) {
	d.Success = false
	d.Errors = append(d.Errors, errors.Messages(err)...)
}

// Warn records a warning
func (d *ResultData) Warn(format string, args ...interface{}) {
	d.Warnings = append(d.Warnings, fmt.Sprintf(format, args...))
}

// Result is the response of a space
type Result struct {
	// Node is the response's identity
	Node *ibgib.Node
	Data ResultData

	// Nodes is the payload being returned
	Nodes []*ibgib.Node

	// BinData is the binary payload being returned
	BinData []byte
}

// Succeeded builds a successful result for backends
func Succeeded() *Result {
	return &Result{Data: ResultData{Success: true}}
}

// Failed builds a failed result for backends
func Failed(err error) *Result {
	r := &Result{}
	r.Data.Fail(err)
	return r
}

func sealResult(clk clock.Clock, arg *Arg, res *Result) error {
	res.Data.OptsAddr = arg.Addr()
	data, err := toData(res.Data)
	if err != nil {
		return err
	}
	node, err := ibgib.NewWitnessResult(clk.Now(), arg.Options.metadata(), data)
	if err != nil {
		return err
	}
	res.Node = node
	return nil
}

func toData(v interface{}) (map[string]interface{}, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var data map[string]interface{}
	if err := json.Unmarshal(buf, &data); err != nil {
		return nil, err
	}
	return data, nil
}
