// Package metrics exposes embed rewrite and fetch activity. Components take
// a Recorder; NoopRecorder is the default when metrics are not served.
package metrics

import (
	"time"

	"github.com/air-gapped/embedmark/internal/transform"
)

// Recorder receives embedmark events. It satisfies transform.Observer so a
// Recorder can be handed straight to transform.Config.
type Recorder interface {
	transform.Observer
	IncCacheLookup(status string)
	ObserveRenderDuration(d time.Duration)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) ObserveCandidate(transform.Outcome, string)     {}
func (NoopRecorder) ObserveResolution(string, time.Duration, error) {}
func (NoopRecorder) IncCacheLookup(string)                          {}
func (NoopRecorder) ObserveRenderDuration(time.Duration)            {}
