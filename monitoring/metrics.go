package monitoring

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"digitlab/ml"
	"digitlab/search"
)

// MetricType is the exposition type of a metric.
type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
)

// Metric is the latest value of one labelled series.
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Help      string            `json:"help,omitempty"`
}

// MetricsCollector keeps counters and gauges for a run. It is safe for
// concurrent use and implements search.Observer.
type MetricsCollector struct {
	mu        sync.RWMutex
	series    map[string]*Metric
	startTime time.Time
}

// NewMetricsCollector creates an empty collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		series:    make(map[string]*Metric),
		startTime: time.Now(),
	}
}

func seriesKey(name string, labels map[string]string) string {
	return name + formatLabels(labels)
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, labels[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func (mc *MetricsCollector) record(name string, typ MetricType, value float64, labels map[string]string, help string, add bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := seriesKey(name, labels)
	m, ok := mc.series[key]
	if !ok {
		m = &Metric{Name: name, Type: typ, Labels: labels, Help: help}
		mc.series[key] = m
	}
	if add {
		m.Value += value
	} else {
		m.Value = value
	}
	m.Timestamp = time.Now()
}

// IncrCounter adds value to a counter.
func (mc *MetricsCollector) IncrCounter(name string, value float64, labels map[string]string) {
	mc.record(name, MetricTypeCounter, value, labels, "", true)
}

// SetGauge sets a gauge.
func (mc *MetricsCollector) SetGauge(name string, value float64, labels map[string]string) {
	mc.record(name, MetricTypeGauge, value, labels, "", false)
}

// Value returns the current value of a series.
func (mc *MetricsCollector) Value(name string, labels map[string]string) (float64, bool) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	m, ok := mc.series[seriesKey(name, labels)]
	if !ok {
		return 0, false
	}
	return m.Value, true
}

// OnProgress counts finished and failed grid-search jobs.
func (mc *MetricsCollector) OnProgress(p search.Progress) {
	mc.IncrCounter("digitlab_search_jobs_total", 1, nil)
	if p.Error != "" {
		mc.IncrCounter("digitlab_search_job_failures_total", 1, nil)
	}
	if p.Total > 0 {
		mc.SetGauge("digitlab_search_progress_ratio", float64(p.Done)/float64(p.Total), nil)
	}
}

// ObserveEvaluations records accuracy and macro F1 gauges per model.
func (mc *MetricsCollector) ObserveEvaluations(evals []*ml.Evaluation) {
	for _, e := range evals {
		if e == nil {
			continue
		}
		labels := map[string]string{"model": e.Model}
		if e.Err != nil {
			mc.IncrCounter("digitlab_fit_failures_total", 1, labels)
			continue
		}
		mc.SetGauge("digitlab_model_accuracy", e.Accuracy, labels)
		mc.SetGauge("digitlab_model_macro_f1", e.Macro.F1, labels)
	}
}

func (mc *MetricsCollector) snapshot() []Metric {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	out := make([]Metric, 0, len(mc.series)+2)
	for _, m := range mc.series {
		out = append(out, *m)
	}
	now := time.Now()
	out = append(out,
		Metric{Name: "digitlab_uptime_seconds", Type: MetricTypeGauge, Value: now.Sub(mc.startTime).Seconds(), Timestamp: now},
		Metric{Name: "digitlab_goroutines", Type: MetricTypeGauge, Value: float64(runtime.NumGoroutine()), Timestamp: now},
	)
	sort.Slice(out, func(i, j int) bool {
		return seriesKey(out[i].Name, out[i].Labels) < seriesKey(out[j].Name, out[j].Labels)
	})
	return out
}

// ExportPrometheus renders the text exposition format.
func (mc *MetricsCollector) ExportPrometheus() string {
	var b strings.Builder
	seen := make(map[string]bool)
	for _, m := range mc.snapshot() {
		if !seen[m.Name] {
			seen[m.Name] = true
			help := m.Help
			if help == "" {
				help = "Metric " + m.Name
			}
			fmt.Fprintf(&b, "# HELP %s %s\n", m.Name, help)
			fmt.Fprintf(&b, "# TYPE %s %s\n", m.Name, m.Type)
		}
		fmt.Fprintf(&b, "%s%s %g\n", m.Name, formatLabels(m.Labels), m.Value)
	}
	return b.String()
}

// ExportJSON renders every series as JSON.
func (mc *MetricsCollector) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(mc.snapshot(), "", "  ")
}

// ServeHTTP serves the Prometheus text format.
func (mc *MetricsCollector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprint(w, mc.ExportPrometheus())
}
