package metrics

import (
	"time"

	obserrors "github.com/target/quill/internal/observability/errors"
	"github.com/target/quill/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess   = "success"
	ResultError     = "error"
	ResultNoop      = "noop"
	ResultDiscarded = "discarded"
	ResultRejected  = "rejected"
)

// SyncMetric captures one reconciliation step for metric emission.
type SyncMetric struct {
	// Op is reload, apply, create, update, delete or feed.
	Op       string
	Origin   string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitSync emits standardised reconciliation metrics.
func EmitSync(sink statsd.Sink, in SyncMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"op":     in.Op,
		"result": in.Result,
	}
	if in.Origin != "" {
		tags["origin"] = in.Origin
	}
	if in.Err != nil && (in.Result == ResultError || in.Result == ResultRejected) {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("articles.sync", 1, tags)

	if in.Duration > 0 {
		sink.Timing("articles.sync.duration", in.Duration, CloneTags(tags))
	}
}

// EmitListSize records the size of the canonical list.
func EmitListSize(sink statsd.Sink, size int) {
	if sink == nil {
		return
	}
	sink.Gauge("articles.list.size", float64(size), nil)
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
