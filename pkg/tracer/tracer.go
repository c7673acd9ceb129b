// Copyright 2021-2024 EMQ Technologies Co., Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracer

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.7.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/lf-edge/streamalign/internal/conf"
)

const (
	tracerName = "streamalign"
	// RuleKey is the span attribute used to index traces by rule
	RuleKey = "rule"
)

type TracerConfig struct {
	EnableRemoteCollector bool
	ServiceName           string
	RemoteEndpoint        string
	LocalTraceCapacity    int
}

func TracerConfigFromConf() *TracerConfig {
	if conf.Config == nil {
		return &TracerConfig{ServiceName: tracerName, LocalTraceCapacity: 2048}
	}
	return &TracerConfig{
		EnableRemoteCollector: conf.Config.OpenTelemetry.EnableRemoteCollector,
		ServiceName:           conf.Config.OpenTelemetry.ServiceName,
		RemoteEndpoint:        conf.Config.OpenTelemetry.RemoteEndpoint,
		LocalTraceCapacity:    conf.Config.OpenTelemetry.LocalTraceCapacity,
	}
}

var globalTracerManager = &GlobalTracerManager{}

type GlobalTracerManager struct {
	sync.RWMutex
	provider *sdktrace.TracerProvider
	storage  *LocalSpanStorage
}

func (g *GlobalTracerManager) SetTracer(c *TracerConfig) error {
	g.Lock()
	defer g.Unlock()
	storage := newLocalSpanStorage(c.LocalTraceCapacity)
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(c.ServiceName),
		)),
		// local spans are visible as soon as they end
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(storage)),
	}
	if c.EnableRemoteCollector {
		exporter, err := otlptracehttp.New(context.Background(),
			otlptracehttp.WithEndpoint(c.RemoteEndpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return err
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	var errs error
	if g.provider != nil {
		errs = g.provider.Shutdown(context.Background())
	}
	g.provider = sdktrace.NewTracerProvider(opts...)
	g.storage = storage
	otel.SetTracerProvider(g.provider)
	conf.Log.Infof("set tracer success, enableRemote:%v, serviceName:%v, endpoint:%v", c.EnableRemoteCollector, c.ServiceName, c.RemoteEndpoint)
	return errs
}

func (g *GlobalTracerManager) shutdown(ctx context.Context) error {
	g.Lock()
	defer g.Unlock()
	if g.provider == nil {
		return nil
	}
	err := g.provider.Shutdown(ctx)
	g.provider = nil
	return err
}

// InitTracer installs the process tracer provider from conf.Config.
func InitTracer() error {
	return globalTracerManager.SetTracer(TracerConfigFromConf())
}

func Shutdown(ctx context.Context) error {
	return globalTracerManager.shutdown(ctx)
}

// GetTracer returns a tracer of the global provider. Spans are dropped until InitTracer is called.
func GetTracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(tracerName)
}

var errNotInit = errors.New("tracer is not initialized")

func GetTraceIDListByRuleID(ruleID string, limit int) ([]string, error) {
	globalTracerManager.RLock()
	defer globalTracerManager.RUnlock()
	if globalTracerManager.storage == nil {
		return nil, errNotInit
	}
	return globalTracerManager.storage.GetTraceByRuleID(ruleID, limit), nil
}

func GetSpanByTraceID(traceID string) (*LocalSpan, error) {
	globalTracerManager.RLock()
	defer globalTracerManager.RUnlock()
	if globalTracerManager.storage == nil {
		return nil, errNotInit
	}
	return globalTracerManager.storage.GetTraceById(traceID), nil
}
