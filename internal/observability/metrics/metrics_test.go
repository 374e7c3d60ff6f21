package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("mode", "shadow"),
		attribute.String("garage_id", "g1"),
		attribute.String("result", "ok"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "garage_id" {
			t.Fatalf("garage_id must not become a metric label")
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordSignIn(context.Background(), "standard", "ok")
	m.RecordScopeDenial(context.Background(), "not_in_scope")
}

func TestNewBuildsInstrumentsOnNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "test"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.RecordCanonicalRedirect(context.Background(), "hub")
	m.RecordPriceWrite(context.Background(), "ok")
}
