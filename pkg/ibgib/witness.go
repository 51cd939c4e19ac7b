package ibgib

import (
	"time"
)

const (
	// WitnessArgID marks request nodes
	WitnessArgID = "witness_arg"

	// WitnessResultID marks response nodes
	WitnessResultID = "witness_result"
)

// NewWitnessArg builds the identity node of a witness request.
//
// The request's parameters go in data, which is hashed; payloads must
// travel beside the node, never inside it.
func NewWitnessArg(now time.Time, metadata string, data map[string]interface{}) (*Node, error) {
	return newWitnessNode(WitnessArgID, now, metadata, data)
}

// NewWitnessResult builds the identity node of a witness response
func NewWitnessResult(now time.Time, metadata string, data map[string]interface{}) (*Node, error) {
	return newWitnessNode(WitnessResultID, now, metadata, data)
}

func newWitnessNode(marker string, now time.Time, metadata string, data map[string]interface{}) (*Node, error) {
	id := marker
	if metadata != "" {
		id += " " + metadata
	}
	d := make(map[string]interface{}, len(data)+1)
	for k, v := range data {
		d[k] = v
	}
	d[DataTimestamp] = now.UTC().Format(time.RFC3339Nano)

	return Seal(&Node{
		ID:   id,
		Data: d,
		Relations: map[string][]string{
			RelAncestor: {Addr(marker, Primitive)},
		},
	})
}
