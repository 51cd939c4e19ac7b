package ibgib

import (
	"strings"

	jsoniter "github.com/json-iterator/go"
)

const (
	// Delimiter separates the id from the content hash in an address
	Delimiter = "^"

	// Primitive is the sentinel content hash of unhashed nodes
	Primitive = "gib"

	// RootAddr is the address of the root primitive
	RootAddr = "ib^gib"

	// RelPast links a node to its predecessors, oldest first
	RelPast = "past"

	// RelTjp points to the origin of the node's timeline
	RelTjp = "tjp"

	// RelAncestor points to the node's type ancestors
	RelAncestor = "ancestor"

	// DataIsTjp flags a node as the origin of its timeline
	DataIsTjp = "isTjp"

	// DataCounter holds a monotonic version counter
	DataCounter = "n"

	// DataTimestamp holds a creation timestamp
	DataTimestamp = "timestamp"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Node is an immutable, content-addressed value.
//
// Nodes are shared by pointer between packages but must never be mutated
// once their content hash is set: use Clone to derive a new node.
type Node struct {
	ID          string                 `json:"ib"`
	ContentHash string                 `json:"gib"`
	Data        map[string]interface{} `json:"data,omitempty"`
	Relations   map[string][]string    `json:"rel8ns,omitempty"`
}

// Addr returns the address of the node
func (n *Node) Addr() string {
	if n == nil {
		return ""
	}
	return Addr(n.ID, n.ContentHash)
}

// IsPrimitive tells if the node carries the primitive sentinel hash
func (n *Node) IsPrimitive() bool {
	return n != nil && n.ContentHash == Primitive
}

// Clone returns a deep copy of the node
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{ID: n.ID, ContentHash: n.ContentHash}
	if n.Data != nil {
		c.Data = cloneData(n.Data)
	}
	if n.Relations != nil {
		c.Relations = make(map[string][]string, len(n.Relations))
		for k, v := range n.Relations {
			c.Relations[k] = append([]string(nil), v...)
		}
	}
	return c
}

func cloneData(data map[string]interface{}) map[string]interface{} {
	buf, err := json.Marshal(data)
	if err != nil {
		// data that can't be encoded can't be hashed either: keep a shallow copy
		shallow := make(map[string]interface{}, len(data))
		for k, v := range data {
			shallow[k] = v
		}
		return shallow
	}
	var out map[string]interface{}
	_ = json.Unmarshal(buf, &out)
	return out
}

// NewPrimitive builds a primitive node with the given id
func NewPrimitive(id string) *Node {
	return &Node{ID: id, ContentHash: Primitive}
}

// Addr joins an id and a content hash
func Addr(id, contentHash string) string {
	return id + Delimiter + contentHash
}

// ParseAddr splits an address into its id and content hash.
// The content hash is empty when the delimiter is missing.
func ParseAddr(addr string) (id, contentHash string) {
	i := strings.LastIndex(addr, Delimiter)
	if i < 0 {
		return addr, ""
	}
	return addr[:i], addr[i+1:]
}

// IsPrimitiveAddr tells if an address refers to a primitive
func IsPrimitiveAddr(addr string) bool {
	_, gib := ParseAddr(addr)
	return gib == Primitive
}

// Encode serializes the persisted part of a node
func Encode(n *Node) ([]byte, error) {
	return json.Marshal(n)
}

// Decode deserializes a node
func Decode(buf []byte) (*Node, error) {
	var n Node
	if err := json.Unmarshal(buf, &n); err != nil {
		return nil, err
	}
	return &n, nil
}
