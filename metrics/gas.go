package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"golang.org/x/xerrors"
)

const meterName = "github.com/Kindhearted57/sui-fuzzer/metrics"

// MaxGasGauge is the otel instrument reporting the highest gas seen per
// function.
const MaxGasGauge = "fuzzer_function_max_gas"

// ObserveMaxGas reports the per-function max-gas table returned by source
// through an observable gauge on mp. The returned function unregisters the
// callback.
func ObserveMaxGas(mp otelmetric.MeterProvider, source func() map[string]uint64) (func() error, error) {
	meter := mp.Meter(meterName)
	gauge, err := meter.Int64ObservableGauge(MaxGasGauge,
		otelmetric.WithDescription("Highest gas consumed by a successful call, per function"),
		otelmetric.WithUnit("{gas}"),
	)
	if err != nil {
		return nil, xerrors.Errorf("creating max gas gauge: %w", err)
	}

	reg, err := meter.RegisterCallback(func(_ context.Context, o otelmetric.Observer) error {
		for fn, gas := range source() {
			o.ObserveInt64(gauge, int64(gas), otelmetric.WithAttributes(attribute.String("function", fn)))
		}
		return nil
	}, gauge)
	if err != nil {
		return nil, xerrors.Errorf("registering max gas callback: %w", err)
	}
	return reg.Unregister, nil
}
