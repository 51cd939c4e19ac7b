// Package metrics records opencensus measurements about spaces, remote batches and the latest registry.
package metrics

import (
	"context"
	"sync"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	initOnce sync.Once
	mp       = defaultSettings()
)

// Init global settings for metrics collection, such as views and exporter setup.
//
// Init may be called multiple times: only the first time matters.
func Init(opts ...Option) error {
	var err error
	initOnce.Do(func() {
		mp = newSettings(opts...)
		err = mp.register()
	})
	return err
}

// Inc increments a counter-like metric
func Inc(counter *stats.Int64Measure, tags ...map[string]string) {
	_ = stats.RecordWithTags(mp.contexter(), mergeTags(tags), counter.M(1))
}

// Int64 sets a value to a measurement
func Int64(measure *stats.Int64Measure, value int64, tags ...map[string]string) {
	_ = stats.RecordWithTags(mp.contexter(), mergeTags(tags), measure.M(value))
}

// Duration feeds a millisecs timing measurement
func Duration(elapsed time.Duration, measure *stats.Float64Measure, tags ...map[string]string) {
	ms := float64(elapsed.Nanoseconds()) / 1e6
	_ = stats.RecordWithTags(mp.contexter(), mergeTags(tags), measure.M(ms))
}

// mergeTags adds some dynamically defined tags to a single measurement
func mergeTags(extras []map[string]string) []tag.Mutator {
	mutators := make([]tag.Mutator, 0, 4)
	for _, extra := range extras {
		for k, v := range extra {
			mutators = append(mutators, tag.Upsert(tag.MustNewKey(k), v))
		}
	}
	return mutators
}

// Option defines some options to the metrics initialization
type Option func(*settings)

// WithContexter sets a context generation function. The default contexter is context.Background
func WithContexter(c func() context.Context) Option {
	return func(m *settings) {
		if c != nil {
			m.contexter = c
		}
	}
}

// WithExporter configures the exporter to convey metrics to some backend collector
func WithExporter(exporter view.Exporter) Option {
	return func(m *settings) {
		m.exporter = exporter
	}
}

// WithReportingPeriod configures how often the exporter is going to upload metrics.
func WithReportingPeriod(d time.Duration) Option {
	return func(m *settings) {
		m.period = d
	}
}

type settings struct {
	contexter func() context.Context
	exporter  view.Exporter
	period    time.Duration
}

func defaultSettings() *settings {
	return &settings{
		contexter: context.Background,
		period:    10 * time.Second,
	}
}

func newSettings(opts ...Option) *settings {
	s := defaultSettings()
	for _, apply := range opts {
		apply(s)
	}
	return s
}

func (s *settings) register() error {
	if err := view.Register(Views()...); err != nil {
		return err
	}
	if s.exporter != nil {
		view.RegisterExporter(s.exporter)
		view.SetReportingPeriod(s.period)
	}
	return nil
}
