package ibgib

import (
	stdjson "encoding/json"
	"math"
)

// Past returns the node's predecessors, oldest first
func Past(n *Node) []string {
	if n == nil || n.Relations == nil {
		return nil
	}
	return n.Relations[RelPast]
}

// TjpAddrs returns the explicit pointers to the timeline origin
func TjpAddrs(n *Node) []string {
	if n == nil || n.Relations == nil {
		return nil
	}
	return n.Relations[RelTjp]
}

// Tjp returns the timeline origin a node points to. Only a single, unambiguous
// tjp relation is trusted.
func Tjp(n *Node) (string, bool) {
	tjps := TjpAddrs(n)
	if len(tjps) != 1 || tjps[0] == "" {
		return "", false
	}
	return tjps[0], true
}

// IsTjp tells if the node is explicitly flagged as a timeline origin
func IsTjp(n *Node) bool {
	if n == nil || n.Data == nil {
		return false
	}
	v, ok := n.Data[DataIsTjp].(bool)
	return ok && v
}

// Counter returns the monotonic version counter carried in the node's data.
// Negative counters are not trusted.
func Counter(n *Node) (int64, bool) {
	if n == nil || n.Data == nil {
		return 0, false
	}
	c, ok := counterValue(n.Data[DataCounter])
	if !ok || c < 0 {
		return 0, false
	}
	return c, true
}

func counterValue(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case float32:
		return floatCounter(float64(v))
	case float64:
		return floatCounter(v)
	case stdjson.Number:
		i, err := v.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

func floatCounter(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

// InPast tells if addr is one of the node's predecessors
func InPast(n *Node, addr string) bool {
	for _, p := range Past(n) {
		if p == addr {
			return true
		}
	}
	return false
}
