package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// ExporterType selects the OTLP transport.
type ExporterType string

const (
	ExporterGRPC ExporterType = "grpc"
	ExporterHTTP ExporterType = "http"
)

// ParseExporterType maps a config value to an ExporterType. Empty means gRPC.
func ParseExporterType(s string) (ExporterType, error) {
	switch ExporterType(strings.ToLower(strings.TrimSpace(s))) {
	case "", ExporterGRPC:
		return ExporterGRPC, nil
	case ExporterHTTP:
		return ExporterHTTP, nil
	default:
		return "", fmt.Errorf("unsupported otlp exporter %q", s)
	}
}

// newResource describes this process to every OTLP pipeline.
func newResource(serviceName, serviceVersion string) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(serviceName)}
	if serviceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(serviceVersion))
	}
	return resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
}
