// Package telemetry は OTLP へのトレースとログのエクスポートを構成します。
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const scopeName = "github.com/rso-iota/rso-bots"

type Config struct {
	// Endpoint は "host:port" または "http://host:port" 形式です。空ならエクスポートしません。
	Endpoint    string
	ServiceName string
}

// Providers は構成済みのプロバイダです。LogHandler は無効時 nil です。
type Providers struct {
	TracerProvider trace.TracerProvider
	LogHandler     slog.Handler
	shutdown       []func(context.Context) error
}

func Setup(ctx context.Context, cfg Config) (*Providers, error) {
	if cfg.Endpoint == "" {
		return &Providers{TracerProvider: noop.NewTracerProvider()}, nil
	}

	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))

	traceExporter, err := otlptracegrpc.New(ctx, traceOptions(cfg.Endpoint)...)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	logExporter, err := otlploggrpc.New(ctx, logOptions(cfg.Endpoint)...)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("creating log exporter: %w", err), tp.Shutdown(ctx))
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
		sdklog.WithResource(res),
	)

	return &Providers{
		TracerProvider: tp,
		LogHandler:     otelslog.NewHandler(scopeName, otelslog.WithLoggerProvider(lp)),
		shutdown:       []func(context.Context) error{lp.Shutdown, tp.Shutdown},
	}, nil
}

func (p *Providers) Enabled() bool { return p.LogHandler != nil }

// Shutdown は未送信のデータをフラッシュしてエクスポーターを閉じます。
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdown {
		errs = append(errs, fn(ctx))
	}
	p.shutdown = nil
	return errors.Join(errs...)
}

func hasScheme(endpoint string) bool {
	return strings.Contains(endpoint, "://")
}

func traceOptions(endpoint string) []otlptracegrpc.Option {
	if hasScheme(endpoint) {
		return []otlptracegrpc.Option{otlptracegrpc.WithEndpointURL(endpoint)}
	}
	return []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure()}
}

func logOptions(endpoint string) []otlploggrpc.Option {
	if hasScheme(endpoint) {
		return []otlploggrpc.Option{otlploggrpc.WithEndpointURL(endpoint)}
	}
	return []otlploggrpc.Option{otlploggrpc.WithEndpoint(endpoint), otlploggrpc.WithInsecure()}
}
