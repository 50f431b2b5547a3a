// Copyright (c) 2024 IoTeX Foundation
// This source code is provided 'as is' and no warranties are given as to title or non-infringement, merchantability
// or fitness for purpose and, to the extent permitted by law, all liability for your use of the code is disclaimed.
// This source code is governed by Apache License 2.0 that can be found in the LICENSE file.

// Package tracer exports request spans to a jaeger collector.
package tracer

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	_defaultServiceName = "rlay-client"
	_tracerName         = "github.com/iotexproject/rlay-client"
)

type (
	// Config is the tracer config, tracing is off without an endpoint
	Config struct {
		// ServiceName is the name of the service reported to the collector
		ServiceName string `yaml:"serviceName"`
		// EndPoint is the jaeger collector url, e.g. http://localhost:14268/api/traces
		EndPoint string `yaml:"endpoint"`
		// InstanceID is the id of this instance
		InstanceID string `yaml:"instanceID"`
		// SamplingRatio is the ratio of sampled traces in [0, 1], all traces are sampled if empty
		SamplingRatio string `yaml:"samplingRatio"`
	}

	// Option sets an option of the provider
	Option func(*optionParams)

	optionParams struct {
		serviceName   string
		endpoint      string
		instanceID    string
		samplingRatio string
	}
)

// WithServiceName sets the service name
func WithServiceName(name string) Option {
	return func(p *optionParams) { p.serviceName = name }
}

// WithEndpoint sets the collector endpoint
func WithEndpoint(endpoint string) Option {
	return func(p *optionParams) { p.endpoint = endpoint }
}

// WithInstanceID sets the instance id
func WithInstanceID(id string) Option {
	return func(p *optionParams) { p.instanceID = id }
}

// WithSamplingRatio sets the sampling ratio
func WithSamplingRatio(ratio string) Option {
	return func(p *optionParams) { p.samplingRatio = ratio }
}

// Options returns the provider options of a config
func (cfg Config) Options() []Option {
	return []Option{
		WithServiceName(cfg.ServiceName),
		WithEndpoint(cfg.EndPoint),
		WithInstanceID(cfg.InstanceID),
		WithSamplingRatio(cfg.SamplingRatio),
	}
}

// NewProvider creates the global trace provider, nil if no endpoint is set
func NewProvider(opts ...Option) (*sdktrace.TracerProvider, error) {
	params := optionParams{serviceName: _defaultServiceName}
	for _, opt := range opts {
		opt(&params)
	}
	if params.endpoint == "" {
		return nil, nil
	}
	if params.serviceName == "" {
		params.serviceName = _defaultServiceName
	}
	sampler := sdktrace.AlwaysSample()
	if params.samplingRatio != "" {
		ratio, err := strconv.ParseFloat(params.samplingRatio, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid sampling ratio %q", params.samplingRatio)
		}
		sampler = sdktrace.TraceIDRatioBased(ratio)
	}
	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(params.endpoint)))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create jaeger exporter")
	}
	attrs := []attribute.KeyValue{attribute.String("service.name", params.serviceName)}
	if params.instanceID != "" {
		attrs = append(attrs, attribute.String("service.instance.id", params.instanceID))
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewSchemaless(attrs...)),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// NewSpan starts a span, a no-op one if no provider is set
func NewSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(_tracerName).Start(ctx, name, opts...)
}

// SpanFromContext returns the span of ctx
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}
