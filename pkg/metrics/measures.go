package metrics

import (
	"strconv"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

// Measures collected by gibsync
var (
	SpaceOps     = stats.Int64("gibsync/space/ops", "number of space commands", stats.UnitDimensionless)
	SpaceTiming  = stats.Float64("gibsync/space/timing", "space command response time in milliseconds", stats.UnitMilliseconds)
	BatchCount   = stats.Int64("gibsync/remote/batches", "number of batched remote calls", stats.UnitDimensionless)
	RetryCount   = stats.Int64("gibsync/remote/retries", "number of retried remote calls", stats.UnitDimensionless)
	LatestEvents = stats.Int64("gibsync/latest/registrations", "outcome of latest registrations", stats.UnitDimensionless)
)

var (
	keySpace   = tag.MustNewKey("space")
	keyOp      = tag.MustNewKey("op")
	keySuccess = tag.MustNewKey("success")
	keyKind    = tag.MustNewKey("kind")
	keyOutcome = tag.MustNewKey("outcome")
)

// Views over the gibsync measures
func Views() []*view.View {
	return []*view.View{
		{Measure: SpaceOps, Aggregation: view.Count(), TagKeys: []tag.Key{keySpace, keyOp, keySuccess}},
		{
			Measure:     SpaceTiming,
			Aggregation: view.Distribution(1, 5, 10, 50, 100, 500, 1000, 5000),
			TagKeys:     []tag.Key{keySpace, keyOp},
		},
		{Measure: BatchCount, Aggregation: view.Count(), TagKeys: []tag.Key{keySpace, keyOp}},
		{Measure: RetryCount, Aggregation: view.Count(), TagKeys: []tag.Key{keySpace, keyKind}},
		{Measure: LatestEvents, Aggregation: view.Count(), TagKeys: []tag.Key{keyOutcome}},
	}
}

// SpaceOp records a witnessed space command
func SpaceOp(space, op string, success bool, elapsed time.Duration) {
	tags := map[string]string{"space": space, "op": op}
	Duration(elapsed, SpaceTiming, tags)
	tags["success"] = strconv.FormatBool(success)
	Inc(SpaceOps, tags)
}

// Batch records a batched remote call
func Batch(space, op string) {
	Inc(BatchCount, map[string]string{"space": space, "op": op})
}

// Retry records a retried remote call, kind being the failure class
func Retry(space, kind string) {
	Inc(RetryCount, map[string]string{"space": space, "kind": kind})
}

// Registration records the outcome of a latest registration
func Registration(outcome string) {
	Inc(LatestEvents, map[string]string{"outcome": outcome})
}
