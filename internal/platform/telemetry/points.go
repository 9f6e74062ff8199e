package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// Point kinds
const (
	KindSum       = "sum"
	KindGauge     = "gauge"
	KindHistogram = "histogram"
)

// Point is one data point of one instrument. Value carries sums and gauges;
// Count and Sum carry histograms.
type Point struct {
	Name       string            `json:"name"`
	Unit       string            `json:"unit,omitempty"`
	Kind       string            `json:"kind"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Value      float64           `json:"value"`
	Count      uint64            `json:"count,omitempty"`
	Sum        float64           `json:"sum,omitempty"`
}

func collect(ctx context.Context, reader *sdkmetric.ManualReader) (metricdata.ResourceMetrics, error) {
	var rm metricdata.ResourceMetrics
	err := reader.Collect(ctx, &rm)
	return rm, err
}

// Flatten turns collected metrics into points. Unsupported aggregations are
// skipped.
func Flatten(rm metricdata.ResourceMetrics) []Point {
	var points []Point
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			base := Point{Name: m.Name, Unit: m.Unit}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					points = append(points, valuePoint(base, KindSum, dp.Attributes, float64(dp.Value)))
				}
			case metricdata.Sum[float64]:
				for _, dp := range data.DataPoints {
					points = append(points, valuePoint(base, KindSum, dp.Attributes, dp.Value))
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					points = append(points, valuePoint(base, KindGauge, dp.Attributes, float64(dp.Value)))
				}
			case metricdata.Gauge[float64]:
				for _, dp := range data.DataPoints {
					points = append(points, valuePoint(base, KindGauge, dp.Attributes, dp.Value))
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					p := valuePoint(base, KindHistogram, dp.Attributes, 0)
					p.Count = dp.Count
					p.Sum = dp.Sum
					points = append(points, p)
				}
			case metricdata.Histogram[int64]:
				for _, dp := range data.DataPoints {
					p := valuePoint(base, KindHistogram, dp.Attributes, 0)
					p.Count = dp.Count
					p.Sum = float64(dp.Sum)
					points = append(points, p)
				}
			}
		}
	}
	return points
}

func valuePoint(base Point, kind string, attrs attribute.Set, value float64) Point {
	base.Kind = kind
	base.Value = value
	if attrs.Len() > 0 {
		base.Attributes = make(map[string]string, attrs.Len())
		for _, kv := range attrs.ToSlice() {
			base.Attributes[string(kv.Key)] = kv.Value.Emit()
		}
	}
	return base
}
