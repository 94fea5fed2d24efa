package telemetry

import (
	"context"
	"maps"
	"sort"

	"github.com/grafana/pyroscope-go"
)

// Label keys for slicing profiles in the Pyroscope UI.
const (
	ProfilingLabelController = "controller"
	ProfilingLabelOperation  = "operation"
	ProfilingLabelRegion     = "region"
)

// maxLabelValueLength bounds label values to keep cardinality in check.
const maxLabelValueLength = 128

// WithProfilingLabels wraps a function with profiling labels for Pyroscope.
// The labels map is copied internally, so it is safe to modify the original
// map after calling this function. Avoid high-cardinality values like
// request or invoice IDs.
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	if len(labels) == 0 {
		fn(ctx)
		return
	}

	labelsCopy := make(map[string]string, len(labels))
	maps.Copy(labelsCopy, labels)

	labelPairs := sanitizeLabels(labelsCopy)
	if len(labelPairs) == 0 {
		fn(ctx)
		return
	}

	pyroscope.TagWrapper(ctx, pyroscope.Labels(labelPairs...), fn)
}

// LedgerOperationLabels builds the standard label set for ledger operations.
func LedgerOperationLabels(operation string) map[string]string {
	return map[string]string{
		ProfilingLabelRegion:    "ledger",
		ProfilingLabelOperation: operation,
	}
}

// sanitizeLabels removes empty pairs, truncates oversized values and
// returns a deterministic key-value slice.
func sanitizeLabels(labels map[string]string) []string {
	if len(labels) == 0 {
		return nil
	}

	keys := make([]string, 0, len(labels))
	for k, v := range labels {
		if k == "" || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		v := labels[k]
		if len(v) > maxLabelValueLength {
			v = v[:maxLabelValueLength]
		}
		pairs = append(pairs, k, v)
	}
	return pairs
}
