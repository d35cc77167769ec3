package core

import (
	"context"
	"strings"
)

const (
	// MetricResolutions counts applied transitions tagged by outcome, source
	// and provider.
	MetricResolutions = metricPrefix + "ledger.resolutions"
	// MetricCreditedCents counts credited amounts in minor units.
	MetricCreditedCents = metricPrefix + "ledger.credited_cents"
)

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

var _ MetricsRecorder = NopMetricsRecorder{}

// recordResolution reports an applied transition. Replays and conflicts are
// already visible through the resolve operation metrics.
func (t telemetry) recordResolution(ctx context.Context, result ResolutionResult, source ResolutionSource) {
	if !result.Applied {
		return
	}
	tags := map[string]string{
		"outcome": string(result.Intent.Status),
		"source":  string(source),
	}
	if provider := strings.TrimSpace(result.Intent.ProviderID); provider != "" {
		tags["provider_id"] = provider
	}
	t.count(ctx, MetricResolutions, 1, tags)
	if result.Credited.IsPositive() {
		t.count(ctx, MetricCreditedCents, result.Credited.Shift(2).Round(0).IntPart(), tags)
	}
}

func (t telemetry) count(ctx context.Context, name string, value int64, tags map[string]string) {
	if t.metrics == nil {
		return
	}
	t.metrics.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (t telemetry) histogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if t.metrics == nil {
		return
	}
	t.metrics.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}
