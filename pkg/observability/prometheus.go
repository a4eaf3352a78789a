// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package observability

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// PrometheusConfig configures a PrometheusTracer.
type PrometheusConfig struct {
	// Namespace prefixes every exported metric (default: "liverl").
	Namespace string

	// Registry receives the collectors. Default: a fresh registry.
	Registry *prometheus.Registry

	// Buckets for histogram metrics. Default: prometheus.DefBuckets.
	Buckets []float64

	Logger *zap.Logger
}

// PrometheusTracer exports RecordMetric calls as Prometheus collectors and
// span durations as the span_duration_seconds histogram.
//
// Metric kind is derived from the name: names ending in ".total" become
// counters, names registered as gauges (MetricGateHold, ...) become gauges,
// everything else becomes a histogram. Label names are fixed by the first
// observation of a metric; later observations missing a label export it as "".
type PrometheusTracer struct {
	namespace string
	buckets   []float64
	registry  *prometheus.Registry
	factory   promauto.Factory
	logger    *zap.Logger

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	labelNames map[string][]string

	spanDuration *prometheus.HistogramVec
	spanErrors   *prometheus.CounterVec
	events       *prometheus.CounterVec
}

// NewPrometheusTracer creates a tracer backed by a Prometheus registry.
func NewPrometheusTracer(cfg PrometheusConfig) *PrometheusTracer {
	if cfg.Namespace == "" {
		cfg.Namespace = "liverl"
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	if len(cfg.Buckets) == 0 {
		cfg.Buckets = prometheus.DefBuckets
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	factory := promauto.With(cfg.Registry)
	t := &PrometheusTracer{
		namespace:  cfg.Namespace,
		buckets:    cfg.Buckets,
		registry:   cfg.Registry,
		factory:    factory,
		logger:     cfg.Logger,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		labelNames: make(map[string][]string),
	}
	t.spanDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Name:      "span_duration_seconds",
		Help:      "Duration of instrumented operations.",
		Buckets:   cfg.Buckets,
	}, []string{"span", "status"})
	t.spanErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Name:      "span_errors_total",
		Help:      "Instrumented operations that ended with an error.",
	}, []string{"span"})
	t.events = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Name:      "events_total",
		Help:      "Standalone events recorded outside spans.",
	}, []string{"event"})
	return t
}

// Registry returns the registry backing this tracer.
func (t *PrometheusTracer) Registry() *prometheus.Registry {
	return t.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (t *PrometheusTracer) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// StartSpan creates a span linked to any parent in ctx.
func (t *PrometheusTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span) {
	return startSpan(ctx, name, opts)
}

// EndSpan observes the span duration and counts errors.
func (t *PrometheusTracer) EndSpan(span *Span) {
	if !span.finish() {
		return
	}

	status := span.Status.Code
	if status == StatusUnset {
		status = StatusOK
	}
	t.spanDuration.WithLabelValues(span.Name, status.String()).Observe(span.Duration.Seconds())
	if span.Status.Code == StatusError {
		t.spanErrors.WithLabelValues(span.Name).Inc()
	}
}

// RecordMetric routes the value to a counter, gauge or histogram.
func (t *PrometheusTracer) RecordMetric(name string, value float64, labels map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	keys, ok := t.labelNames[name]
	if !ok {
		keys = sortedKeys(labels)
		t.labelNames[name] = keys
	}
	names := make([]string, len(keys))
	values := make([]string, len(keys))
	for i, k := range keys {
		names[i] = sanitizeMetricName(k)
		values[i] = labels[k]
	}

	metricName := sanitizeMetricName(strings.TrimPrefix(name, t.namespace+"."))
	switch {
	case strings.HasSuffix(name, ".total"):
		vec, ok := t.counters[name]
		if !ok {
			vec = t.factory.NewCounterVec(prometheus.CounterOpts{
				Namespace: t.namespace,
				Name:      metricName,
				Help:      name,
			}, names)
			t.counters[name] = vec
		}
		if value < 0 {
			t.logger.Debug("dropping negative counter increment",
				zap.String("metric", name),
				zap.Float64("value", value))
			return
		}
		vec.WithLabelValues(values...).Add(value)
	case gaugeMetrics[name]:
		vec, ok := t.gauges[name]
		if !ok {
			vec = t.factory.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: t.namespace,
				Name:      metricName,
				Help:      name,
			}, names)
			t.gauges[name] = vec
		}
		vec.WithLabelValues(values...).Set(value)
	default:
		vec, ok := t.histograms[name]
		if !ok {
			vec = t.factory.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: t.namespace,
				Name:      metricName,
				Help:      name,
				Buckets:   t.buckets,
			}, names)
			t.histograms[name] = vec
		}
		vec.WithLabelValues(values...).Observe(value)
	}
}

// RecordEvent counts the event by name.
func (t *PrometheusTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	t.events.WithLabelValues(name).Inc()
}

// Flush is a no-op; Prometheus pulls.
func (t *PrometheusTracer) Flush(ctx context.Context) error {
	return nil
}

// sanitizeMetricName maps "liverl.rollouts.completed.total" to
// "liverl_rollouts_completed_total".
func sanitizeMetricName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func sortedKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ Tracer = (*PrometheusTracer)(nil)
