package core

import "context"

// NopMetricsRecorder drops every measurement. It is the default recorder so
// the service never nil-checks its metrics sink on hot paths.
type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// cloneTags copies a tag map before handing it to a recorder, so recorders
// can hold tags past the call without aliasing caller state.
func cloneTags(tags map[string]string) map[string]string {
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = NopMetricsRecorder{}
