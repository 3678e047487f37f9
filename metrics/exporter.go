package metrics

import (
	"net/http"

	"contrib.go.opencensus.io/exporter/prometheus"
	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opencensus.io/stats/view"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"golang.org/x/xerrors"
)

// Exporter registers the default views and returns an HTTP handler serving
// them in the Prometheus exposition format. Metrics recorded through the
// global otel meter provider are bridged into the same registry.
func Exporter(namespace string) (http.Handler, error) {
	if err := view.Register(DefaultViews...); err != nil {
		return nil, xerrors.Errorf("registering metric views: %w", err)
	}

	if bridge, err := otelprom.New(); err != nil {
		log.Errorf("could not create the otel prometheus exporter: %v", err)
	} else {
		otel.SetMeterProvider(metric.NewMeterProvider(metric.WithReader(bridge)))
	}

	registry, ok := promclient.DefaultRegisterer.(*promclient.Registry)
	if !ok {
		return nil, xerrors.Errorf("unexpected default prometheus registerer %T", promclient.DefaultRegisterer)
	}
	exporter, err := prometheus.NewExporter(prometheus.Options{
		Registry:  registry,
		Namespace: namespace,
	})
	if err != nil {
		return nil, xerrors.Errorf("creating prometheus exporter: %w", err)
	}
	return exporter, nil
}

// Serve exposes the exporter on addr under /debug/metrics. It blocks until
// the listener fails.
func Serve(addr string, h http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/debug/metrics", h)
	log.Infow("serving metrics", "addr", addr)
	return http.ListenAndServe(addr, mux)
}
